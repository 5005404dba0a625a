package database

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"barberbook/internal/config"
	"barberbook/internal/domain"
)

var (
	day = time.Date(2030, 3, 10, 0, 0, 0, 0, time.UTC)

	testWorkers = []domain.Worker{
		{ID: 1, Name: "Alice", Specialties: []string{"fade", "beard"}, Active: true, WorkStart: 480, WorkEnd: 1200, BreakStart: 720, BreakEnd: 780},
		{ID: 2, Name: "Bob", Active: true, WorkStart: 600, WorkEnd: 1080, BreakStart: 840, BreakEnd: 870},
	}
	testServices = []domain.Service{
		{ID: 1, Name: "Shave", DurationMinutes: 30, Active: true},
		{ID: 2, Name: "Haircut", Description: "Classic", Category: "hair", PriceCents: 2500, DurationMinutes: 60, Active: true},
	}
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.SyncCatalog(context.Background(), testWorkers, testServices))
	return db
}

func booking(workerID int64, start time.Time, minutes int) *domain.Booking {
	return &domain.Booking{
		WorkerID:        workerID,
		ServiceID:       1,
		ClientID:        100,
		Start:           start,
		DurationMinutes: minutes,
		Status:          domain.StatusPending,
		Notes:           "test",
	}
}

func TestSyncCatalog(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	workers, err := db.ListWorkers(ctx)
	require.NoError(t, err)
	assert.Equal(t, testWorkers, workers)

	services, err := db.ListServices(ctx)
	require.NoError(t, err)
	assert.Equal(t, testServices, services)

	// Dropping Bob and reordering deactivates him and keeps the new order.
	shave := testServices[0]
	shave.Name = "Hot towel shave"
	require.NoError(t, db.SyncCatalog(ctx, testWorkers[:1], []domain.Service{testServices[1], shave}))

	bob, err := db.GetWorker(ctx, 2)
	require.NoError(t, err)
	assert.False(t, bob.Active)

	services, err = db.ListServices(ctx)
	require.NoError(t, err)
	require.Len(t, services, 2)
	assert.Equal(t, int64(2), services[0].ID)
	assert.Equal(t, "Hot towel shave", services[1].Name)

	_, err = db.GetWorker(ctx, 42)
	assert.ErrorIs(t, err, domain.ErrWorkerUnavailable)
	_, err = db.GetService(ctx, 42)
	assert.ErrorIs(t, err, domain.ErrServiceNotFound)
}

func TestCreateAndGetBooking(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	b := booking(1, day.Add(10*time.Hour), 60)
	b.IdempotencyKey = "k1"
	require.NoError(t, db.CreateBooking(ctx, b))
	assert.NotZero(t, b.ID)

	got, err := db.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.True(t, got.Start.Equal(b.Start))
	assert.Equal(t, 60, got.DurationMinutes)
	assert.Equal(t, domain.StatusPending, got.Status)
	assert.Equal(t, "test", got.Notes)
	assert.Equal(t, "k1", got.IdempotencyKey)
	assert.False(t, got.CreatedAt.IsZero())

	found, err := db.FindBookingByIdempotencyKey(ctx, 100, "k1")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, b.ID, found.ID)

	missing, err := db.FindBookingByIdempotencyKey(ctx, 101, "k1")
	require.NoError(t, err)
	assert.Nil(t, missing)

	_, err = db.GetBooking(ctx, 999)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCreateBookingRejectsOverlap(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.CreateBooking(ctx, booking(1, day.Add(10*time.Hour), 60)))

	tests := []struct {
		name    string
		start   time.Time
		minutes int
		wantErr bool
	}{
		{"same start", day.Add(10 * time.Hour), 30, true},
		{"inside", day.Add(10*time.Hour + 30*time.Minute), 30, true},
		{"covering", day.Add(9*time.Hour + 30*time.Minute), 120, true},
		{"touching end", day.Add(11 * time.Hour), 30, false},
		{"touching start", day.Add(9*time.Hour + 30*time.Minute), 30, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := db.CreateBooking(ctx, booking(1, tt.start, tt.minutes))
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrDoubleBooking)
				return
			}
			assert.NoError(t, err)
		})
	}

	// Other workers are unaffected.
	assert.NoError(t, db.CreateBooking(ctx, booking(2, day.Add(10*time.Hour), 60)))
}

func TestCreateBookingDuplicateKey(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	first := booking(1, day.Add(10*time.Hour), 30)
	first.IdempotencyKey = "same"
	require.NoError(t, db.CreateBooking(ctx, first))

	second := booking(2, day.Add(15*time.Hour), 30)
	second.IdempotencyKey = "same"
	assert.ErrorIs(t, db.CreateBooking(ctx, second), domain.ErrDuplicateKey)
}

func TestMapInsertError(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	taken := booking(1, day.Add(10*time.Hour), 30)
	taken.IdempotencyKey = "taken"
	require.NoError(t, db.CreateBooking(ctx, taken))

	unique := sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintUnique}

	reused := booking(2, day.Add(15*time.Hour), 30)
	reused.IdempotencyKey = "taken"
	assert.ErrorIs(t, mapInsertError(ctx, db, reused, unique), domain.ErrDuplicateKey)

	fresh := booking(1, day.Add(10*time.Hour), 30)
	fresh.IdempotencyKey = "fresh"
	assert.ErrorIs(t, mapInsertError(ctx, db, fresh, unique), domain.ErrDoubleBooking)

	assert.ErrorIs(t, mapInsertError(ctx, db, booking(1, day, 30), unique), domain.ErrDoubleBooking)

	other := errors.New("disk I/O error")
	err := mapInsertError(ctx, db, fresh, other)
	assert.ErrorIs(t, err, other)
	assert.Equal(t, domain.Kind(""), domain.KindOf(err))
}

func TestConcurrentCreateSingleWinner(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	const attempts = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// Staggered starts overlap pairwise around 14:00.
			start := day.Add(14*time.Hour - time.Duration(i%2)*30*time.Minute)
			err := db.CreateBooking(ctx, booking(1, start, 60))
			if err == nil {
				mu.Lock()
				success++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, domain.ErrDoubleBooking)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, success)
	active, err := db.ActiveBookings(ctx, 1, day, day.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestActiveBookingsWindow(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	early := booking(1, day.Add(9*time.Hour), 60)
	late := booking(1, day.Add(16*time.Hour), 30)
	cancelled := booking(1, day.Add(12*time.Hour), 30)
	for _, b := range []*domain.Booking{early, late, cancelled} {
		require.NoError(t, db.CreateBooking(ctx, b))
	}
	_, err := db.UpdateBookingStatus(ctx, cancelled.ID, domain.StatusPending, domain.StatusCancelled, nil)
	require.NoError(t, err)

	got, err := db.ActiveBookings(ctx, 1, day.Add(9*time.Hour+30*time.Minute), day.Add(16*time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, early.ID, got[0].ID)

	got, err = db.ActiveBookings(ctx, 1, day, day.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Len(t, got, 2)

	// The cancelled slot is free again.
	assert.NoError(t, db.CreateBooking(ctx, booking(1, day.Add(12*time.Hour), 30)))
}

func TestUpdateBookingStatusCompareAndSet(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	b := booking(1, day.Add(10*time.Hour), 30)
	require.NoError(t, db.CreateBooking(ctx, b))

	note := "done"
	updated, err := db.UpdateBookingStatus(ctx, b.ID, domain.StatusPending, domain.StatusCompleted, &note)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, updated.Status)
	assert.Equal(t, "done", updated.Notes)

	_, err = db.UpdateBookingStatus(ctx, b.ID, domain.StatusPending, domain.StatusCancelled, nil)
	assert.ErrorIs(t, err, domain.ErrConcurrentModification)

	_, err = db.UpdateBookingStatus(ctx, 999, domain.StatusPending, domain.StatusCancelled, nil)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	got, err := db.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "done", got.Notes, "nil notes keep the stored value")
}

func TestListAndDeleteBookings(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	b1 := booking(1, day.Add(10*time.Hour), 30)
	b2 := booking(2, day.Add(11*time.Hour), 30)
	b2.ClientID = 200
	b3 := booking(1, day.AddDate(0, 0, 1).Add(10*time.Hour), 30)
	for _, b := range []*domain.Booking{b3, b1, b2} {
		require.NoError(t, db.CreateBooking(ctx, b))
	}

	all, err := db.ListBookings(ctx, domain.BookingFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []int64{b1.ID, b2.ID, b3.ID}, []int64{all[0].ID, all[1].ID, all[2].ID})

	byWorker, err := db.ListBookings(ctx, domain.BookingFilter{WorkerID: 1})
	require.NoError(t, err)
	assert.Len(t, byWorker, 2)

	byClient, err := db.ListBookings(ctx, domain.BookingFilter{ClientID: 200})
	require.NoError(t, err)
	require.Len(t, byClient, 1)
	assert.Equal(t, b2.ID, byClient[0].ID)

	firstDay, err := db.ListBookings(ctx, domain.BookingFilter{From: day, To: day.AddDate(0, 0, 1)})
	require.NoError(t, err)
	assert.Len(t, firstDay, 2)

	limited, err := db.ListBookings(ctx, domain.BookingFilter{Limit: 1, Status: domain.StatusPending})
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	require.NoError(t, db.DeleteBooking(ctx, b1.ID))
	assert.ErrorIs(t, db.DeleteBooking(ctx, b1.ID), domain.ErrNotFound)
}

func TestBackup(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.CreateBooking(ctx, booking(1, day.Add(10*time.Hour), 30)))

	dir := t.TempDir()
	svc := NewBackupService(db, config.BackupConfig{Enabled: true, Path: dir, RetentionDays: 7}, nil)

	path, err := svc.PerformBackup(ctx)
	require.NoError(t, err)
	assert.FileExists(t, path)

	restored, err := NewDB(path, nil)
	require.NoError(t, err)
	defer restored.Close()
	got, err := restored.ListBookings(ctx, domain.BookingFilter{})
	require.NoError(t, err)
	assert.Len(t, got, 1)

	old := filepath.Join(dir, "backup_20000101_000000.db")
	require.NoError(t, os.WriteFile(old, []byte("x"), 0o644))
	stale := time.Now().AddDate(0, 0, -30)
	require.NoError(t, os.Chtimes(old, stale, stale))
	unrelated := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(unrelated, []byte("x"), 0o644))
	require.NoError(t, os.Chtimes(unrelated, stale, stale))

	svc.CleanupOldBackups()
	assert.NoFileExists(t, old)
	assert.FileExists(t, path)
	assert.FileExists(t, unrelated)
}
