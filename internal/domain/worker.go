package domain

import (
	"fmt"
	"time"
)

// MaxDurationMinutes bounds a single service so ledger window queries can look
// back a fixed amount of time.
const MaxDurationMinutes = 12 * 60

// Worker is a bookable person with a static daily template.
type Worker struct {
	ID          int64    `json:"id"`
	Name        string   `json:"name"`
	Specialties []string `json:"specialties,omitempty"`
	Active      bool     `json:"active"`
	WorkStart   Clock    `json:"work_start"`
	WorkEnd     Clock    `json:"work_end"`
	BreakStart  Clock    `json:"break_start"`
	BreakEnd    Clock    `json:"break_end"`
}

// Validate checks workStart < workEnd and workStart ≤ breakStart < breakEnd ≤ workEnd.
func (w Worker) Validate() error {
	if w.WorkStart < 0 || w.WorkEnd > EndOfDay {
		return fmt.Errorf("worker %d: working hours must lie within the day", w.ID)
	}
	if w.WorkStart >= w.WorkEnd {
		return fmt.Errorf("worker %d: work_end %s must be after work_start %s", w.ID, w.WorkEnd, w.WorkStart)
	}
	if w.BreakStart >= w.BreakEnd {
		return fmt.Errorf("worker %d: break_end %s must be after break_start %s", w.ID, w.BreakEnd, w.BreakStart)
	}
	if w.BreakStart < w.WorkStart || w.BreakEnd > w.WorkEnd {
		return fmt.Errorf("worker %d: break %s-%s must be within working hours %s-%s",
			w.ID, w.BreakStart, w.BreakEnd, w.WorkStart, w.WorkEnd)
	}
	return nil
}

// Service is a catalog entry with a fixed duration.
type Service struct {
	ID              int64  `json:"id"`
	Name            string `json:"name"`
	Description     string `json:"description,omitempty"`
	Category        string `json:"category,omitempty"`
	PriceCents      int64  `json:"price_cents"`
	DurationMinutes int    `json:"duration_minutes"`
	Active          bool   `json:"active"`
}

// Duration returns the service length.
func (s Service) Duration() time.Duration {
	return time.Duration(s.DurationMinutes) * time.Minute
}
