package domain

import (
	"strings"
	"time"
)

// Status is the lifecycle state of a booking.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// ParseStatus validates a client-supplied status.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	switch st {
	case StatusPending, StatusCompleted, StatusCancelled:
		return st, nil
	}
	return "", Errorf(KindFormat, "unknown status %q", s)
}

// Active reports whether a booking in this status occupies its interval.
func (s Status) Active() bool {
	return s != StatusCancelled
}

// Interval is a half-open time range [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

// Overlaps reports whether two half-open intervals share any instant.
// Touching endpoints do not overlap.
func (i Interval) Overlaps(o Interval) bool {
	return i.Start.Before(o.End) && o.Start.Before(i.End)
}

// Contains reports whether t falls inside the interval.
func (i Interval) Contains(t time.Time) bool {
	return !t.Before(i.Start) && t.Before(i.End)
}

// Booking is a committed appointment. End is always derived from Start and
// the duration taken from the service at commit time.
type Booking struct {
	ID              int64     `json:"id"`
	WorkerID        int64     `json:"worker_id"`
	ServiceID       int64     `json:"service_id"`
	ClientID        int64     `json:"client_id"`
	Start           time.Time `json:"start"`
	DurationMinutes int       `json:"duration_minutes"`
	Status          Status    `json:"status"`
	Notes           string    `json:"notes,omitempty"`
	IdempotencyKey  string    `json:"-"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// End returns Start + duration.
func (b Booking) End() time.Time {
	return b.Start.Add(time.Duration(b.DurationMinutes) * time.Minute)
}

// Interval returns the occupied range.
func (b Booking) Interval() Interval {
	return Interval{Start: b.Start, End: b.End()}
}

// OverlapsWith reports whether two bookings share time. Status is not considered.
func (b *Booking) OverlapsWith(other *Booking) bool {
	return b.Interval().Overlaps(other.Interval())
}

// BookingFilter narrows booking listings. Zero values mean "any".
type BookingFilter struct {
	WorkerID int64
	ClientID int64
	Status   Status
	From     time.Time
	To       time.Time
	Limit    int
}
