package timegrid

import (
	"fmt"
	"time"

	"barberbook/internal/domain"
)

// DefaultMinutes is the grid granularity used when none is configured.
const DefaultMinutes = 30

// DateLayout is the calendar date format used across the API.
const DateLayout = "2006-01-02"

// Clock is minutes since midnight.
type Clock = domain.Clock

// ParseClock converts "HH:MM" to minutes since midnight.
func ParseClock(s string) (Clock, error) {
	return domain.ParseClock(s)
}

// ParseBound is ParseClock that also accepts "24:00".
func ParseBound(s string) (Clock, error) {
	return domain.ParseBound(s)
}

// ParseDate parses a YYYY-MM-DD calendar day in loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	d, err := time.ParseInLocation(DateLayout, s, loc)
	if err != nil {
		return time.Time{}, domain.Errorf(domain.KindFormat, "invalid date %q: expected YYYY-MM-DD", s)
	}
	return d, nil
}

// Grid discretizes a day into fixed-size steps aligned to midnight.
type Grid struct {
	step int
	loc  *time.Location
}

// New returns a grid with the given granularity in minutes. A nil location
// means UTC.
func New(minutes int, loc *time.Location) (*Grid, error) {
	if minutes <= 0 || domain.MinutesPerDay%minutes != 0 {
		return nil, fmt.Errorf("grid granularity %d must be a positive divisor of %d", minutes, domain.MinutesPerDay)
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Grid{step: minutes, loc: loc}, nil
}

// MustNew is New that panics on error. For tests and constants.
func MustNew(minutes int, loc *time.Location) *Grid {
	g, err := New(minutes, loc)
	if err != nil {
		panic(err)
	}
	return g
}

// Step returns the granularity in minutes.
func (g *Grid) Step() int { return g.step }

// Location returns the time zone calendar days are interpreted in.
func (g *Grid) Location() *time.Location { return g.loc }

// SlotsNeeded returns duration / step, failing unless the division is exact.
func (g *Grid) SlotsNeeded(durationMinutes int) (int, error) {
	if durationMinutes <= 0 || durationMinutes%g.step != 0 {
		return 0, domain.Errorf(domain.KindInvalidDuration,
			"service duration %d min is not a positive multiple of %d min", durationMinutes, g.step)
	}
	return durationMinutes / g.step, nil
}

// Aligned reports whether c sits on a grid point.
func (g *Grid) Aligned(c Clock) bool {
	return int(c)%g.step == 0
}

// Candidates returns the grid points t in [from, to) with t+duration <= to,
// ascending.
func (g *Grid) Candidates(from, to Clock, duration int) []Clock {
	if duration <= 0 || from >= to {
		return nil
	}

	first := from
	if rem := int(first) % g.step; rem != 0 {
		first = first.Add(g.step - rem)
	}

	var out []Clock
	for t := first; t < to && t.Add(duration) <= to; t = t.Add(g.step) {
		out = append(out, t)
	}
	return out
}

// DayBounds returns the earliest work start and latest work end across
// active workers. ok is false when no worker is active.
func (g *Grid) DayBounds(workers []domain.Worker) (from, to Clock, ok bool) {
	for _, w := range workers {
		if !w.Active {
			continue
		}
		if !ok || w.WorkStart < from {
			from = w.WorkStart
		}
		if !ok || w.WorkEnd > to {
			to = w.WorkEnd
		}
		ok = true
	}
	return from, to, ok
}

// Day truncates t to midnight of its calendar day in the grid location.
func (g *Grid) Day(t time.Time) time.Time {
	t = t.In(g.loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, g.loc)
}

// SameDay reports whether a and b fall on the same calendar day.
func (g *Grid) SameDay(a, b time.Time) bool {
	return g.Day(a).Equal(g.Day(b))
}

// At returns the instant at clock c on the calendar day of date.
func (g *Grid) At(date time.Time, c Clock) time.Time {
	d := g.Day(date)
	return time.Date(d.Year(), d.Month(), d.Day(), c.Hour(), c.Minute(), 0, 0, g.loc)
}

// ClockOf returns the wall-clock time of t in the grid location.
func (g *Grid) ClockOf(t time.Time) Clock {
	t = t.In(g.loc)
	return Clock(t.Hour()*60 + t.Minute())
}

// OnGrid reports whether t has no seconds and its clock is aligned.
func (g *Grid) OnGrid(t time.Time) bool {
	t = t.In(g.loc)
	return t.Second() == 0 && t.Nanosecond() == 0 && g.Aligned(g.ClockOf(t))
}
