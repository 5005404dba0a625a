package availability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"barberbook/internal/domain"
	"barberbook/internal/timegrid"
)

// mockLedger implements Ledger over an in-memory slice.
type mockLedger struct {
	bookings []domain.Booking
	calls    int
	err      error
}

func (m *mockLedger) ActiveBookings(ctx context.Context, workerID int64, from, to time.Time) ([]domain.Booking, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	window := domain.Interval{Start: from, End: to}
	var out []domain.Booking
	for _, b := range m.bookings {
		if b.WorkerID == workerID && b.Status.Active() && window.Overlaps(b.Interval()) {
			out = append(out, b)
		}
	}
	return out, nil
}

func fixedClock(t time.Time) Clock {
	return ClockFunc(func() time.Time { return t })
}

func clocks(t *testing.T, values ...string) []timegrid.Clock {
	t.Helper()
	out := make([]timegrid.Clock, 0, len(values))
	for _, v := range values {
		c, err := timegrid.ParseClock(v)
		require.NoError(t, err)
		out = append(out, c)
	}
	return out
}

var (
	grid  = timegrid.MustNew(30, time.UTC)
	day   = time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	early = day.AddDate(0, 0, -1)

	barber = domain.Worker{
		ID: 1, Name: "W", Active: true,
		WorkStart: 8 * 60, WorkEnd: 20 * 60,
		BreakStart: 12 * 60, BreakEnd: 13 * 60,
	}
	haircut = domain.Service{ID: 1, Name: "Haircut", DurationMinutes: 60, Active: true}
	shave   = domain.Service{ID: 2, Name: "Shave", DurationMinutes: 30, Active: true}
)

func TestComputeFullDay(t *testing.T) {
	e := NewEngine(grid, &mockLedger{}, fixedClock(early))

	got, err := e.Compute(context.Background(), day, haircut, []domain.Worker{barber})
	require.NoError(t, err)
	require.Len(t, got, 1)

	want := clocks(t,
		"08:00", "08:30", "09:00", "09:30", "10:00", "10:30", "11:00",
		"13:00", "13:30", "14:00", "14:30", "15:00", "15:30", "16:00",
		"16:30", "17:00", "17:30", "18:00", "18:30", "19:00",
	)
	assert.Equal(t, want, got[0].Slots)
	assert.NotContains(t, got[0].Slots, timegrid.Clock(12*60))
	assert.NotContains(t, got[0].Slots, timegrid.Clock(11*60+30))
	assert.NotContains(t, got[0].Slots, timegrid.Clock(19*60+30))
}

func TestComputeTouchingBookingsAllowed(t *testing.T) {
	ledger := &mockLedger{bookings: []domain.Booking{
		{ID: 7, WorkerID: 1, Start: day.Add(10 * time.Hour), DurationMinutes: 30, Status: domain.StatusPending},
	}}
	e := NewEngine(grid, ledger, fixedClock(early))

	got, err := e.Compute(context.Background(), day, shave, []domain.Worker{barber})
	require.NoError(t, err)
	require.Len(t, got, 1)

	slots := got[0].Slots
	assert.NotContains(t, slots, timegrid.Clock(10*60))
	assert.Contains(t, slots, timegrid.Clock(9*60+30))
	assert.Contains(t, slots, timegrid.Clock(10*60+30))
}

func TestComputeCancelledBookingFreesSlot(t *testing.T) {
	b := domain.Booking{ID: 7, WorkerID: 1, Start: day.Add(10 * time.Hour), DurationMinutes: 30, Status: domain.StatusPending}
	ledger := &mockLedger{bookings: []domain.Booking{b}}
	e := NewEngine(grid, ledger, fixedClock(early))

	before, err := e.Compute(context.Background(), day, shave, []domain.Worker{barber})
	require.NoError(t, err)
	assert.NotContains(t, before[0].Slots, timegrid.Clock(10*60))

	ledger.bookings[0].Status = domain.StatusCancelled

	after, err := e.Compute(context.Background(), day, shave, []domain.Worker{barber})
	require.NoError(t, err)
	assert.Contains(t, after[0].Slots, timegrid.Clock(10*60))
}

func TestComputeToday(t *testing.T) {
	now := day.Add(15*time.Hour + 10*time.Minute)
	e := NewEngine(grid, &mockLedger{}, fixedClock(now))

	got, err := e.Compute(context.Background(), day, haircut, []domain.Worker{barber})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, clocks(t, "15:30", "16:00", "16:30", "17:00", "17:30", "18:00", "18:30", "19:00"), got[0].Slots)

	// A slot starting exactly now is not strictly after now.
	exact := NewEngine(grid, &mockLedger{}, fixedClock(day.Add(15*time.Hour+30*time.Minute)))
	got, err = exact.Compute(context.Background(), day, haircut, []domain.Worker{barber})
	require.NoError(t, err)
	assert.Equal(t, timegrid.Clock(16*60), got[0].Slots[0])
}

func TestComputePastDateIsEmpty(t *testing.T) {
	e := NewEngine(grid, &mockLedger{}, fixedClock(day.AddDate(0, 0, 2)))

	got, err := e.Compute(context.Background(), day, haircut, []domain.Worker{barber})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestComputeOmitsInactiveAndFullyBookedWorkers(t *testing.T) {
	inactive := barber
	inactive.ID = 2
	inactive.Active = false

	short := domain.Worker{ID: 3, Active: true, WorkStart: 9 * 60, WorkEnd: 10 * 60, BreakStart: 9*60 + 30, BreakEnd: 10 * 60}
	other := barber
	other.ID = 4

	e := NewEngine(grid, &mockLedger{}, fixedClock(early))
	got, err := e.Compute(context.Background(), day, haircut, []domain.Worker{other, inactive, short, barber})
	require.NoError(t, err)

	require.Len(t, got, 2)
	assert.Equal(t, int64(4), got[0].Worker.ID)
	assert.Equal(t, int64(1), got[1].Worker.ID)
}

func TestComputeInvalidDuration(t *testing.T) {
	e := NewEngine(grid, &mockLedger{}, fixedClock(early))

	_, err := e.Compute(context.Background(), day, domain.Service{ID: 9, DurationMinutes: 45, Active: true}, []domain.Worker{barber})
	assert.ErrorIs(t, err, domain.ErrInvalidDuration)
}

func TestComputeLedgerError(t *testing.T) {
	boom := errors.New("db down")
	e := NewEngine(grid, &mockLedger{err: boom}, fixedClock(early))

	_, err := e.Compute(context.Background(), day, haircut, []domain.Worker{barber})
	assert.ErrorIs(t, err, boom)
}

func TestComputeIsIdempotent(t *testing.T) {
	ledger := &mockLedger{bookings: []domain.Booking{
		{ID: 1, WorkerID: 1, Start: day.Add(9 * time.Hour), DurationMinutes: 60, Status: domain.StatusPending},
		{ID: 2, WorkerID: 1, Start: day.Add(16 * time.Hour), DurationMinutes: 30, Status: domain.StatusCompleted},
	}}
	e := NewEngine(grid, ledger, fixedClock(early))

	first, err := e.Compute(context.Background(), day, shave, []domain.Worker{barber})
	require.NoError(t, err)
	second, err := e.Compute(context.Background(), day, shave, []domain.Worker{barber})
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

// Every offered slot passes Check and every grid point that passes Check is offered.
func TestFreeSoundAndComplete(t *testing.T) {
	busy := []domain.Booking{
		{ID: 1, WorkerID: 1, Start: day.Add(9 * time.Hour), DurationMinutes: 60, Status: domain.StatusPending},
		{ID: 2, WorkerID: 1, Start: day.Add(14*time.Hour + 30*time.Minute), DurationMinutes: 30, Status: domain.StatusCompleted},
		{ID: 3, WorkerID: 1, Start: day.Add(17 * time.Hour), DurationMinutes: 60, Status: domain.StatusCancelled},
	}

	for _, svc := range []domain.Service{shave, haircut} {
		free := Free(grid, day, early, barber, svc.DurationMinutes, busy)
		offered := make(map[timegrid.Clock]bool, len(free))
		for _, c := range free {
			offered[c] = true
		}

		for c := timegrid.Clock(0); c < domain.EndOfDay; c = c.Add(grid.Step()) {
			err := Check(grid, early, barber, svc.DurationMinutes, grid.At(day, c), busy)
			assert.Equal(t, err == nil, offered[c], "%s for %d min: %v", c, svc.DurationMinutes, err)
		}
		assert.True(t, offered[17*60], "cancelled booking must not block")
	}
}

func TestCheckKinds(t *testing.T) {
	busy := []domain.Booking{
		{ID: 1, WorkerID: 1, Start: day.Add(10 * time.Hour), DurationMinutes: 30, Status: domain.StatusPending},
	}

	tests := []struct {
		name  string
		start time.Time
		want  *domain.Error
	}{
		{"off grid", day.Add(10*time.Hour + 15*time.Minute), domain.ErrFormat},
		{"off grid in break", day.Add(12*time.Hour + 15*time.Minute), domain.ErrBreakConflict},
		{"off grid before work", day.Add(7*time.Hour + 45*time.Minute), domain.ErrOutsideWorkingHours},
		{"before work", day.Add(7*time.Hour + 30*time.Minute), domain.ErrOutsideWorkingHours},
		{"runs past end", day.Add(19*time.Hour + 30*time.Minute), domain.ErrOutsideWorkingHours},
		{"break", day.Add(12 * time.Hour), domain.ErrBreakConflict},
		{"into break", day.Add(11*time.Hour + 30*time.Minute), domain.ErrBreakConflict},
		{"overlap", day.Add(9*time.Hour + 30*time.Minute), domain.ErrDoubleBooking},
		{"past", early.Add(10 * time.Hour), domain.ErrPastSlot},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Check(grid, early.Add(12*time.Hour), barber, 60, tt.start, busy)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	assert.NoError(t, Check(grid, early, barber, 60, day.Add(13*time.Hour), busy))
}

func TestWorkersAt(t *testing.T) {
	second := barber
	second.ID = 2
	ledger := &mockLedger{bookings: []domain.Booking{
		{ID: 1, WorkerID: 1, Start: day.Add(14 * time.Hour), DurationMinutes: 30, Status: domain.StatusPending},
	}}
	e := NewEngine(grid, ledger, fixedClock(early))

	got, err := e.WorkersAt(context.Background(), day, 14*60, shave, []domain.Worker{barber, second})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(2), got[0].ID)

	got, err = e.WorkersAt(context.Background(), day, 12*60, shave, []domain.Worker{barber, second})
	require.NoError(t, err)
	assert.Empty(t, got)
}
