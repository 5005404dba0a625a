package availability

import (
	"context"
	"fmt"
	"time"

	"barberbook/internal/domain"
	"barberbook/internal/timegrid"
)

// Ledger is the read view over committed bookings.
type Ledger interface {
	// ActiveBookings returns the worker's non-cancelled bookings that overlap [from, to).
	ActiveBookings(ctx context.Context, workerID int64, from, to time.Time) ([]domain.Booking, error)
}

// Clock supplies the current instant.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

// SystemClock reads the wall clock.
var SystemClock Clock = ClockFunc(time.Now)

// WorkerSlots holds the bookable start times of one worker, ascending.
type WorkerSlots struct {
	Worker domain.Worker
	Slots  []timegrid.Clock
}

// Engine computes bookable slots from worker templates and the ledger.
type Engine struct {
	grid   *timegrid.Grid
	ledger Ledger
	clock  Clock
}

// NewEngine creates a new availability engine.
func NewEngine(grid *timegrid.Grid, ledger Ledger, clock Clock) *Engine {
	if clock == nil {
		clock = SystemClock
	}
	return &Engine{grid: grid, ledger: ledger, clock: clock}
}

// Grid returns the time grid the engine enumerates.
func (e *Engine) Grid() *timegrid.Grid { return e.grid }

// Compute returns, per worker in input order, every grid-aligned start time on
// date at which the service could be booked. Workers without any slot are
// omitted.
func (e *Engine) Compute(ctx context.Context, date time.Time, service domain.Service, workers []domain.Worker) ([]WorkerSlots, error) {
	if _, err := e.grid.SlotsNeeded(service.DurationMinutes); err != nil {
		return nil, err
	}

	now := e.clock.Now()
	var out []WorkerSlots
	for _, w := range workers {
		if !w.Active {
			continue
		}

		busy, err := e.ledger.ActiveBookings(ctx, w.ID, e.grid.At(date, w.WorkStart), e.grid.At(date, w.WorkEnd))
		if err != nil {
			return nil, fmt.Errorf("load bookings for worker %d: %w", w.ID, err)
		}

		slots := Free(e.grid, date, now, w, service.DurationMinutes, busy)
		if len(slots) == 0 {
			continue
		}
		out = append(out, WorkerSlots{Worker: w, Slots: slots})
	}
	return out, nil
}

// WorkersAt returns the workers, in input order, who could take the service
// starting at clock c on date.
func (e *Engine) WorkersAt(ctx context.Context, date time.Time, c timegrid.Clock, service domain.Service, workers []domain.Worker) ([]domain.Worker, error) {
	if _, err := e.grid.SlotsNeeded(service.DurationMinutes); err != nil {
		return nil, err
	}

	start := e.grid.At(date, c)
	end := start.Add(service.Duration())
	now := e.clock.Now()

	var out []domain.Worker
	for _, w := range workers {
		if !w.Active {
			continue
		}
		busy, err := e.ledger.ActiveBookings(ctx, w.ID, start, end)
		if err != nil {
			return nil, fmt.Errorf("load bookings for worker %d: %w", w.ID, err)
		}
		if Check(e.grid, now, w, service.DurationMinutes, start, busy) == nil {
			out = append(out, w)
		}
	}
	return out, nil
}

// Check validates a single candidate against the engine's clock. It is the
// same rule set Compute applies to every enumerated slot.
func (e *Engine) Check(w domain.Worker, durationMinutes int, start time.Time, busy []domain.Booking) error {
	return Check(e.grid, e.clock.Now(), w, durationMinutes, start, busy)
}
