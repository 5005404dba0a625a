package api

import (
	"time"

	"barberbook/internal/availability"
	"barberbook/internal/domain"
	"barberbook/internal/timegrid"
)

// BookingResponse is the JSON form of a booking.
type BookingResponse struct {
	ID              int64         `json:"id"`
	WorkerID        int64         `json:"worker_id"`
	ServiceID       int64         `json:"service_id"`
	ClientID        int64         `json:"client_id"`
	Start           string        `json:"start"`
	End             string        `json:"end"`
	DurationMinutes int           `json:"duration_minutes"`
	Status          domain.Status `json:"status"`
	Notes           string        `json:"notes"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

func newBookingResponse(b *domain.Booking, loc *time.Location) BookingResponse {
	return BookingResponse{
		ID:              b.ID,
		WorkerID:        b.WorkerID,
		ServiceID:       b.ServiceID,
		ClientID:        b.ClientID,
		Start:           b.Start.In(loc).Format(time.RFC3339),
		End:             b.End().In(loc).Format(time.RFC3339),
		DurationMinutes: b.DurationMinutes,
		Status:          b.Status,
		Notes:           b.Notes,
		CreatedAt:       b.CreatedAt,
		UpdatedAt:       b.UpdatedAt,
	}
}

func newBookingList(bookings []domain.Booking, loc *time.Location) []BookingResponse {
	out := make([]BookingResponse, 0, len(bookings))
	for i := range bookings {
		out = append(out, newBookingResponse(&bookings[i], loc))
	}
	return out
}

// CreateBookingRequest is the body of POST /api/v1/bookings. Start is RFC 3339
// or "YYYY-MM-DDTHH:MM" in the configured time zone.
type CreateBookingRequest struct {
	WorkerID       int64  `json:"worker_id"`
	ServiceID      int64  `json:"service_id"`
	ClientID       int64  `json:"client_id,omitempty"`
	Start          string `json:"start"`
	Notes          string `json:"notes,omitempty"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// UpdateStatusRequest is the body of PUT /api/v1/bookings/{id}/status.
type UpdateStatusRequest struct {
	Status string  `json:"status"`
	Notes  *string `json:"notes,omitempty"`
}

// WorkerAvailability lists one worker's free starts.
type WorkerAvailability struct {
	WorkerID int64            `json:"worker_id"`
	Name     string           `json:"name"`
	Slots    []timegrid.Clock `json:"slots"`
}

// Slot is a single bookable (worker, start) pair.
type Slot struct {
	WorkerID int64          `json:"worker_id"`
	Time     timegrid.Clock `json:"time"`
}

// AvailabilityResponse is the body of GET /api/v1/availability.
type AvailabilityResponse struct {
	Date      string               `json:"date"`
	ServiceID int64                `json:"service_id"`
	Workers   []WorkerAvailability `json:"workers"`
	Slots     []Slot               `json:"slots"`
}

// newAvailabilityResponse flattens per-worker slots ordered by time, then by
// worker enumeration order.
func newAvailabilityResponse(date string, serviceID int64, ws []availability.WorkerSlots) AvailabilityResponse {
	resp := AvailabilityResponse{
		Date:      date,
		ServiceID: serviceID,
		Workers:   make([]WorkerAvailability, 0, len(ws)),
		Slots:     []Slot{},
	}
	for _, w := range ws {
		resp.Workers = append(resp.Workers, WorkerAvailability{WorkerID: w.Worker.ID, Name: w.Worker.Name, Slots: w.Slots})
	}

	// k-way merge; each worker's slots are already ascending.
	pos := make([]int, len(ws))
	for {
		best := -1
		for i, w := range ws {
			if pos[i] >= len(w.Slots) {
				continue
			}
			if best < 0 || w.Slots[pos[i]] < ws[best].Slots[pos[best]] {
				best = i
			}
		}
		if best < 0 {
			return resp
		}
		resp.Slots = append(resp.Slots, Slot{WorkerID: ws[best].Worker.ID, Time: ws[best].Slots[pos[best]]})
		pos[best]++
	}
}
