package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"barberbook/internal/domain"
)

// maxDuration bounds how far before a window a booking may start and still
// reach into it.
const maxDuration = domain.MaxDurationMinutes * time.Minute

const bookingColumns = `id, worker_id, service_id, client_id, start_time, duration_minutes, status, notes, idempotency_key, created_at, updated_at`

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func scanBooking(row interface{ Scan(...any) error }) (*domain.Booking, error) {
	var (
		b        domain.Booking
		start    string
		status   string
		notes    sql.NullString
		idemKey  sql.NullString
		created  sql.NullTime
		modified sql.NullTime
	)
	if err := row.Scan(&b.ID, &b.WorkerID, &b.ServiceID, &b.ClientID, &start, &b.DurationMinutes,
		&status, &notes, &idemKey, &created, &modified); err != nil {
		return nil, err
	}

	t, err := parseTime(start)
	if err != nil {
		return nil, err
	}
	b.Start = t
	b.Status = domain.Status(status)
	b.Notes = notes.String
	b.IdempotencyKey = idemKey.String
	b.CreatedAt = created.Time.UTC()
	b.UpdatedAt = modified.Time.UTC()
	return &b, nil
}

func collectBookings(rows *sql.Rows) ([]domain.Booking, error) {
	defer rows.Close()
	var out []domain.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

// activeBookings loads the worker's non-cancelled bookings overlapping [from, to).
func activeBookings(ctx context.Context, q queryer, workerID int64, from, to time.Time) ([]domain.Booking, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+bookingColumns+` FROM bookings
		WHERE worker_id = ? AND status <> 'cancelled'
			AND start_time >= ? AND start_time < ?
		ORDER BY start_time, id`,
		workerID, formatTime(from.Add(-maxDuration)), formatTime(to),
	)
	if err != nil {
		return nil, err
	}
	candidates, err := collectBookings(rows)
	if err != nil {
		return nil, err
	}

	window := domain.Interval{Start: from, End: to}
	out := candidates[:0]
	for _, b := range candidates {
		if window.Overlaps(b.Interval()) {
			out = append(out, b)
		}
	}
	return out, nil
}

// ActiveBookings returns the worker's non-cancelled bookings that overlap [from, to).
func (db *DB) ActiveBookings(ctx context.Context, workerID int64, from, to time.Time) ([]domain.Booking, error) {
	out, err := activeBookings(ctx, db, workerID, from, to)
	if err != nil {
		return nil, fmt.Errorf("active bookings for worker %d: %w", workerID, err)
	}
	return out, nil
}

// CreateBooking inserts b if the worker has no overlapping active booking.
// The check and the insert share one write transaction.
func (db *DB) CreateBooking(ctx context.Context, b *domain.Booking) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	busy, err := activeBookings(ctx, tx, b.WorkerID, b.Start, b.End())
	if err != nil {
		return fmt.Errorf("check overlap: %w", err)
	}
	if len(busy) > 0 {
		return domain.Errorf(domain.KindDoubleBooking, "worker %d already has booking %d at %s",
			b.WorkerID, busy[0].ID, busy[0].Start.Format(time.RFC3339))
	}

	now := time.Now().UTC()
	var idemKey sql.NullString
	if b.IdempotencyKey != "" {
		idemKey = sql.NullString{String: b.IdempotencyKey, Valid: true}
	}

	result, err := tx.ExecContext(ctx, `
		INSERT INTO bookings (
			worker_id, service_id, client_id, start_time, duration_minutes,
			status, notes, idempotency_key, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.WorkerID, b.ServiceID, b.ClientID, formatTime(b.Start), b.DurationMinutes,
		string(b.Status), b.Notes, idemKey, now, now,
	)
	if err != nil {
		return mapInsertError(ctx, tx, b, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	b.ID = id
	b.CreatedAt = now
	b.UpdatedAt = now
	return nil
}

type rowQueryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// mapInsertError classifies a unique violation by checking whether b's
// idempotency key is already taken; any other violation is a same-start clash.
func mapInsertError(ctx context.Context, q rowQueryer, b *domain.Booking, err error) error {
	var se sqlite3.Error
	if !errors.As(err, &se) || se.ExtendedCode != sqlite3.ErrConstraintUnique {
		return fmt.Errorf("insert booking: %w", err)
	}
	if b.IdempotencyKey != "" {
		var one int
		lookup := q.QueryRowContext(ctx,
			`SELECT 1 FROM bookings WHERE client_id = ? AND idempotency_key = ?`, b.ClientID, b.IdempotencyKey).Scan(&one)
		switch {
		case lookup == nil:
			return domain.ErrDuplicateKey
		case !errors.Is(lookup, sql.ErrNoRows):
			return fmt.Errorf("classify insert conflict: %w", lookup)
		}
	}
	return domain.Errorf(domain.KindDoubleBooking, "worker %d already has a booking starting at %s",
		b.WorkerID, b.Start.Format(time.RFC3339))
}

// GetBooking returns a booking by ID.
func (db *DB) GetBooking(ctx context.Context, id int64) (*domain.Booking, error) {
	b, err := scanBooking(db.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.Errorf(domain.KindNotFound, "booking %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get booking %d: %w", id, err)
	}
	return b, nil
}

// FindBookingByIdempotencyKey returns the client's booking carrying key, or nil.
func (db *DB) FindBookingByIdempotencyKey(ctx context.Context, clientID int64, key string) (*domain.Booking, error) {
	b, err := scanBooking(db.QueryRowContext(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE client_id = ? AND idempotency_key = ?`, clientID, key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find booking by key: %w", err)
	}
	return b, nil
}

// UpdateBookingStatus sets the status to `to` only if it is still `from`.
func (db *DB) UpdateBookingStatus(ctx context.Context, id int64, from, to domain.Status, notes *string) (*domain.Booking, error) {
	var n sql.NullString
	if notes != nil {
		n = sql.NullString{String: *notes, Valid: true}
	}

	result, err := db.ExecContext(ctx, `
		UPDATE bookings
		SET status = ?, notes = COALESCE(?, notes), updated_at = ?
		WHERE id = ? AND status = ?`,
		string(to), n, time.Now().UTC(), id, string(from),
	)
	if err != nil {
		return nil, fmt.Errorf("update booking status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		if _, err := db.GetBooking(ctx, id); err != nil {
			return nil, err
		}
		return nil, domain.ErrConcurrentModification
	}

	return db.GetBooking(ctx, id)
}

// DeleteBooking removes a booking record.
func (db *DB) DeleteBooking(ctx context.Context, id int64) error {
	result, err := db.ExecContext(ctx, `DELETE FROM bookings WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete booking: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return domain.Errorf(domain.KindNotFound, "booking %d not found", id)
	}
	return nil
}

// ListBookings returns bookings matching the filter ordered by start time.
// From/To bound the start time, half-open.
func (db *DB) ListBookings(ctx context.Context, f domain.BookingFilter) ([]domain.Booking, error) {
	var (
		where []string
		args  []any
	)
	if f.WorkerID != 0 {
		where = append(where, "worker_id = ?")
		args = append(args, f.WorkerID)
	}
	if f.ClientID != 0 {
		where = append(where, "client_id = ?")
		args = append(args, f.ClientID)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	if !f.From.IsZero() {
		where = append(where, "start_time >= ?")
		args = append(args, formatTime(f.From))
	}
	if !f.To.IsZero() {
		where = append(where, "start_time < ?")
		args = append(args, formatTime(f.To))
	}

	query := `SELECT ` + bookingColumns + ` FROM bookings`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY start_time, id`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	return collectBookings(rows)
}
