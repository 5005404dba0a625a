package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"barberbook/internal/domain"
)

// SyncCatalog applies the catalog to the database. It upserts workers and
// services in the given order and marks entries missing from the catalog inactive.
func (db *DB) SyncCatalog(ctx context.Context, workers []domain.Worker, services []domain.Service) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()

	seenWorkers := make([]any, 0, len(workers))
	for i, w := range workers {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO workers (id, name, specialties, is_active, work_start, work_end, break_start, break_end, sort_order, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				name = excluded.name,
				specialties = excluded.specialties,
				is_active = excluded.is_active,
				work_start = excluded.work_start,
				work_end = excluded.work_end,
				break_start = excluded.break_start,
				break_end = excluded.break_end,
				sort_order = excluded.sort_order,
				updated_at = excluded.updated_at`,
			w.ID, w.Name, strings.Join(w.Specialties, ","), boolToInt(w.Active),
			int(w.WorkStart), int(w.WorkEnd), int(w.BreakStart), int(w.BreakEnd), i, now, now,
		)
		if err != nil {
			return fmt.Errorf("sync worker %d: %w", w.ID, err)
		}
		seenWorkers = append(seenWorkers, w.ID)
	}

	seenServices := make([]any, 0, len(services))
	for i, s := range services {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO services (id, name, description, category, price_cents, duration_minutes, is_active, sort_order, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				name = excluded.name,
				description = excluded.description,
				category = excluded.category,
				price_cents = excluded.price_cents,
				duration_minutes = excluded.duration_minutes,
				is_active = excluded.is_active,
				sort_order = excluded.sort_order,
				updated_at = excluded.updated_at`,
			s.ID, s.Name, s.Description, s.Category, s.PriceCents, s.DurationMinutes, boolToInt(s.Active), i, now, now,
		)
		if err != nil {
			return fmt.Errorf("sync service %d: %w", s.ID, err)
		}
		seenServices = append(seenServices, s.ID)
	}

	if err := deactivateMissing(ctx, tx, "workers", seenWorkers, now); err != nil {
		return err
	}
	if err := deactivateMissing(ctx, tx, "services", seenServices, now); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	db.logger.Info().Int("workers", len(workers)).Int("services", len(services)).Msg("Catalog synced")
	return nil
}

func deactivateMissing(ctx context.Context, tx *sql.Tx, table string, keep []any, now time.Time) error {
	query := fmt.Sprintf(`UPDATE %s SET is_active = 0, updated_at = ? WHERE is_active = 1`, table)
	args := []any{now}
	if len(keep) > 0 {
		query += ` AND id NOT IN (` + strings.TrimSuffix(strings.Repeat("?,", len(keep)), ",") + `)`
		args = append(args, keep...)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("deactivate missing %s: %w", table, err)
	}
	return nil
}

const workerColumns = `id, name, specialties, is_active, work_start, work_end, break_start, break_end`

func scanWorker(row interface{ Scan(...any) error }) (*domain.Worker, error) {
	var (
		w           domain.Worker
		specialties string
	)
	if err := row.Scan(&w.ID, &w.Name, &specialties, &w.Active,
		&w.WorkStart, &w.WorkEnd, &w.BreakStart, &w.BreakEnd); err != nil {
		return nil, err
	}
	if specialties != "" {
		w.Specialties = strings.Split(specialties, ",")
	}
	return &w, nil
}

// GetWorker returns a worker by ID, active or not.
func (db *DB) GetWorker(ctx context.Context, id int64) (*domain.Worker, error) {
	w, err := scanWorker(db.QueryRowContext(ctx, `SELECT `+workerColumns+` FROM workers WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.Errorf(domain.KindWorkerUnavailable, "worker %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get worker %d: %w", id, err)
	}
	return w, nil
}

// ListWorkers returns all workers in catalog order.
func (db *DB) ListWorkers(ctx context.Context) ([]domain.Worker, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+workerColumns+` FROM workers ORDER BY sort_order, id`)
	if err != nil {
		return nil, fmt.Errorf("list workers: %w", err)
	}
	defer rows.Close()

	var out []domain.Worker
	for rows.Next() {
		w, err := scanWorker(rows)
		if err != nil {
			return nil, fmt.Errorf("scan worker: %w", err)
		}
		out = append(out, *w)
	}
	return out, rows.Err()
}

const serviceColumns = `id, name, description, category, price_cents, duration_minutes, is_active`

func scanService(row interface{ Scan(...any) error }) (*domain.Service, error) {
	var (
		s                     domain.Service
		description, category sql.NullString
	)
	if err := row.Scan(&s.ID, &s.Name, &description, &category, &s.PriceCents, &s.DurationMinutes, &s.Active); err != nil {
		return nil, err
	}
	s.Description = description.String
	s.Category = category.String
	return &s, nil
}

// GetService returns a service by ID, active or not.
func (db *DB) GetService(ctx context.Context, id int64) (*domain.Service, error) {
	s, err := scanService(db.QueryRowContext(ctx, `SELECT `+serviceColumns+` FROM services WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.Errorf(domain.KindServiceNotFound, "service %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get service %d: %w", id, err)
	}
	return s, nil
}

// ListServices returns all services in catalog order.
func (db *DB) ListServices(ctx context.Context) ([]domain.Service, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+serviceColumns+` FROM services ORDER BY sort_order, id`)
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	defer rows.Close()

	var out []domain.Service
	for rows.Next() {
		s, err := scanService(rows)
		if err != nil {
			return nil, fmt.Errorf("scan service: %w", err)
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}
