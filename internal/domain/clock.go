package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// MinutesPerDay is the length of a calendar day on the clock face.
const MinutesPerDay = 24 * 60

// Clock is a wall-clock time expressed as minutes since midnight.
type Clock int

// EndOfDay is "24:00", usable only as an exclusive upper bound.
const EndOfDay Clock = MinutesPerDay

// ParseClock parses "HH:MM" into minutes since midnight.
func ParseClock(s string) (Clock, error) {
	c, err := parseClock(s)
	if err != nil {
		return 0, err
	}
	if c >= EndOfDay {
		return 0, Errorf(KindFormat, "invalid time %q: expected HH:MM between 00:00 and 23:59", s)
	}
	return c, nil
}

// ParseBound is like ParseClock but also accepts "24:00" so that a working day
// may run until midnight.
func ParseBound(s string) (Clock, error) {
	return parseClock(s)
}

func parseClock(s string) (Clock, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 || len(parts[0]) == 0 || len(parts[0]) > 2 || len(parts[1]) != 2 {
		return 0, Errorf(KindFormat, "invalid time %q: expected HH:MM", s)
	}

	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 {
		return 0, Errorf(KindFormat, "invalid hour in %q", s)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, Errorf(KindFormat, "invalid minute in %q", s)
	}

	c := Clock(hour*60 + minute)
	if c > EndOfDay {
		return 0, Errorf(KindFormat, "invalid time %q: past 24:00", s)
	}
	return c, nil
}

// Hour returns the hour component.
func (c Clock) Hour() int { return int(c) / 60 }

// Minute returns the minute component.
func (c Clock) Minute() int { return int(c) % 60 }

// Add returns c shifted by the given number of minutes.
func (c Clock) Add(minutes int) Clock { return c + Clock(minutes) }

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour(), c.Minute())
}

// MarshalText encodes the clock as "HH:MM".
func (c Clock) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText decodes "HH:MM", accepting "24:00".
func (c *Clock) UnmarshalText(text []byte) error {
	v, err := ParseBound(string(text))
	if err != nil {
		return err
	}
	*c = v
	return nil
}
