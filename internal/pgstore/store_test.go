package pgstore

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"barberbook/internal/domain"
)

func TestMapWriteError(t *testing.T) {
	overlap := &pgconn.PgError{Code: "23P01", ConstraintName: overlapConstraint}
	assert.ErrorIs(t, mapWriteError(overlap), domain.ErrDoubleBooking)

	dup := &pgconn.PgError{Code: "23505", ConstraintName: idempotencyConstraint}
	assert.ErrorIs(t, mapWriteError(dup), domain.ErrDuplicateKey)

	otherUnique := &pgconn.PgError{Code: "23505", ConstraintName: "workers_pkey"}
	assert.Same(t, otherUnique, mapWriteError(otherUnique))

	plain := errors.New("connection reset")
	assert.Same(t, plain, mapWriteError(plain))
}

func TestListQuery(t *testing.T) {
	q, args := listQuery(domain.BookingFilter{})
	assert.NotContains(t, q, "WHERE")
	assert.Empty(t, args)

	from := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	q, args = listQuery(domain.BookingFilter{WorkerID: 3, Status: domain.StatusPending, From: from, Limit: 5})
	assert.Contains(t, q, "worker_id = $1 AND status = $2 AND start_time >= $3")
	assert.Contains(t, q, "LIMIT $4")
	assert.Equal(t, []any{int64(3), "pending", from, 5}, args)
}

func TestUTCWall(t *testing.T) {
	loc := time.FixedZone("X", 3*3600)
	got := utcWall(time.Date(2025, 3, 10, 9, 30, 0, 0, loc))
	assert.Equal(t, time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC), got)
}

// Runs against a real server when BARBERBOOK_TEST_POSTGRES_URL is set.
func TestStoreIntegration(t *testing.T) {
	url := os.Getenv("BARBERBOOK_TEST_POSTGRES_URL")
	if url == "" {
		t.Skip("BARBERBOOK_TEST_POSTGRES_URL not set")
	}
	ctx := context.Background()

	s, err := Open(ctx, url, nil)
	require.NoError(t, err)
	defer s.Close()

	_, err = s.pool.Exec(ctx, `TRUNCATE bookings`)
	require.NoError(t, err)

	workers := []domain.Worker{{ID: 1, Name: "A", Active: true, WorkStart: 480, WorkEnd: 1200, BreakStart: 720, BreakEnd: 780}}
	services := []domain.Service{{ID: 1, Name: "Shave", DurationMinutes: 30, Active: true}}
	require.NoError(t, s.SyncCatalog(ctx, workers, services))

	start := time.Date(2030, 1, 7, 10, 0, 0, 0, time.UTC)
	b := &domain.Booking{WorkerID: 1, ServiceID: 1, ClientID: 5, Start: start, DurationMinutes: 60, Status: domain.StatusPending, IdempotencyKey: "k"}
	require.NoError(t, s.CreateBooking(ctx, b))

	clash := &domain.Booking{WorkerID: 1, ServiceID: 1, ClientID: 6, Start: start.Add(30 * time.Minute), DurationMinutes: 30, Status: domain.StatusPending}
	assert.ErrorIs(t, s.CreateBooking(ctx, clash), domain.ErrDoubleBooking)

	touching := &domain.Booking{WorkerID: 1, ServiceID: 1, ClientID: 6, Start: start.Add(time.Hour), DurationMinutes: 30, Status: domain.StatusPending}
	require.NoError(t, s.CreateBooking(ctx, touching))

	again := &domain.Booking{WorkerID: 1, ServiceID: 1, ClientID: 5, Start: start.Add(3 * time.Hour), DurationMinutes: 30, Status: domain.StatusPending, IdempotencyKey: "k"}
	assert.ErrorIs(t, s.CreateBooking(ctx, again), domain.ErrDuplicateKey)

	got, err := s.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.True(t, got.Start.Equal(start))

	active, err := s.ActiveBookings(ctx, 1, start, start.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Len(t, active, 2)

	_, err = s.UpdateBookingStatus(ctx, b.ID, domain.StatusPending, domain.StatusCancelled, nil)
	require.NoError(t, err)
	_, err = s.UpdateBookingStatus(ctx, b.ID, domain.StatusPending, domain.StatusCompleted, nil)
	assert.ErrorIs(t, err, domain.ErrConcurrentModification)

	require.NoError(t, s.CreateBooking(ctx, clash))
}
