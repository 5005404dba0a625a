package pgstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"barberbook/internal/domain"
)

const bookingColumns = `id, worker_id, service_id, client_id, start_time, duration_minutes, status, notes, COALESCE(idempotency_key, ''), created_at, updated_at`

func scanBooking(row pgx.Row) (*domain.Booking, error) {
	var (
		b      domain.Booking
		status string
	)
	if err := row.Scan(&b.ID, &b.WorkerID, &b.ServiceID, &b.ClientID, &b.Start, &b.DurationMinutes,
		&status, &b.Notes, &b.IdempotencyKey, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return nil, err
	}
	b.Start = utcWall(b.Start)
	b.Status = domain.Status(status)
	b.CreatedAt = b.CreatedAt.UTC()
	b.UpdatedAt = b.UpdatedAt.UTC()
	return &b, nil
}

// utcWall reinterprets a zone-less timestamp value as UTC.
func utcWall(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}

func collect(rows pgx.Rows) ([]domain.Booking, error) {
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

// ActiveBookings returns the worker's non-cancelled bookings that overlap [from, to).
func (s *Store) ActiveBookings(ctx context.Context, workerID int64, from, to time.Time) ([]domain.Booking, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+bookingColumns+` FROM bookings
		WHERE worker_id = $1
			AND status <> 'cancelled'
			AND start_time < $3
			AND start_time + make_interval(mins => duration_minutes) > $2
		ORDER BY start_time, id
	`, workerID, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("active bookings for worker %d: %w", workerID, err)
	}
	return collect(rows)
}

// CreateBooking inserts b. The exclusion constraint rejects any overlap with
// an active booking of the same worker.
func (s *Store) CreateBooking(ctx context.Context, b *domain.Booking) error {
	var key *string
	if b.IdempotencyKey != "" {
		key = &b.IdempotencyKey
	}

	err := s.pool.QueryRow(ctx, `
		INSERT INTO bookings (worker_id, service_id, client_id, start_time, duration_minutes, status, notes, idempotency_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at
	`, b.WorkerID, b.ServiceID, b.ClientID, b.Start.UTC(), b.DurationMinutes, string(b.Status), b.Notes, key,
	).Scan(&b.ID, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if mapped := mapWriteError(err); mapped != err {
			return mapped
		}
		return fmt.Errorf("insert booking: %w", err)
	}
	b.CreatedAt = b.CreatedAt.UTC()
	b.UpdatedAt = b.UpdatedAt.UTC()
	return nil
}

func (s *Store) GetBooking(ctx context.Context, id int64) (*domain.Booking, error) {
	b, err := scanBooking(s.pool.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.Errorf(domain.KindNotFound, "booking %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get booking %d: %w", id, err)
	}
	return b, nil
}

func (s *Store) FindBookingByIdempotencyKey(ctx context.Context, clientID int64, key string) (*domain.Booking, error) {
	b, err := scanBooking(s.pool.QueryRow(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE client_id = $1 AND idempotency_key = $2`, clientID, key))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find booking by key: %w", err)
	}
	return b, nil
}

// UpdateBookingStatus sets the status to `to` only if it is still `from`.
func (s *Store) UpdateBookingStatus(ctx context.Context, id int64, from, to domain.Status, notes *string) (*domain.Booking, error) {
	b, err := scanBooking(s.pool.QueryRow(ctx, `
		UPDATE bookings
		SET status = $3, notes = COALESCE($4, notes), updated_at = now()
		WHERE id = $1 AND status = $2
		RETURNING `+bookingColumns,
		id, string(from), string(to), notes))
	if errors.Is(err, pgx.ErrNoRows) {
		if _, gerr := s.GetBooking(ctx, id); gerr != nil {
			return nil, gerr
		}
		return nil, domain.ErrConcurrentModification
	}
	if err != nil {
		return nil, fmt.Errorf("update booking status: %w", mapWriteError(err))
	}
	return b, nil
}

func (s *Store) DeleteBooking(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM bookings WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete booking: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.Errorf(domain.KindNotFound, "booking %d not found", id)
	}
	return nil
}

func (s *Store) ListBookings(ctx context.Context, f domain.BookingFilter) ([]domain.Booking, error) {
	query, args := listQuery(f)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	return collect(rows)
}

func listQuery(f domain.BookingFilter) (string, []any) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.WorkerID != 0 {
		add("worker_id = $%d", f.WorkerID)
	}
	if f.ClientID != 0 {
		add("client_id = $%d", f.ClientID)
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	if !f.From.IsZero() {
		add("start_time >= $%d", f.From.UTC())
	}
	if !f.To.IsZero() {
		add("start_time < $%d", f.To.UTC())
	}

	query := `SELECT ` + bookingColumns + ` FROM bookings`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY start_time, id`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}
	return query, args
}
