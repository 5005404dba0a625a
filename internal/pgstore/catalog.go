package pgstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"barberbook/internal/domain"
)

// SyncCatalog upserts workers and services in order and deactivates the rest.
func (s *Store) SyncCatalog(ctx context.Context, workers []domain.Worker, services []domain.Service) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	workerIDs := make([]int64, 0, len(workers))
	for i, w := range workers {
		specialties := w.Specialties
		if specialties == nil {
			specialties = []string{}
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO workers (id, name, specialties, is_active, work_start, work_end, break_start, break_end, sort_order)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (id) DO UPDATE SET
				name = EXCLUDED.name,
				specialties = EXCLUDED.specialties,
				is_active = EXCLUDED.is_active,
				work_start = EXCLUDED.work_start,
				work_end = EXCLUDED.work_end,
				break_start = EXCLUDED.break_start,
				break_end = EXCLUDED.break_end,
				sort_order = EXCLUDED.sort_order,
				updated_at = now()
		`, w.ID, w.Name, specialties, w.Active,
			int(w.WorkStart), int(w.WorkEnd), int(w.BreakStart), int(w.BreakEnd), i)
		if err != nil {
			return fmt.Errorf("sync worker %d: %w", w.ID, err)
		}
		workerIDs = append(workerIDs, w.ID)
	}

	serviceIDs := make([]int64, 0, len(services))
	for i, svc := range services {
		_, err := tx.Exec(ctx, `
			INSERT INTO services (id, name, description, category, price_cents, duration_minutes, is_active, sort_order)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (id) DO UPDATE SET
				name = EXCLUDED.name,
				description = EXCLUDED.description,
				category = EXCLUDED.category,
				price_cents = EXCLUDED.price_cents,
				duration_minutes = EXCLUDED.duration_minutes,
				is_active = EXCLUDED.is_active,
				sort_order = EXCLUDED.sort_order,
				updated_at = now()
		`, svc.ID, svc.Name, svc.Description, svc.Category, svc.PriceCents, svc.DurationMinutes, svc.Active, i)
		if err != nil {
			return fmt.Errorf("sync service %d: %w", svc.ID, err)
		}
		serviceIDs = append(serviceIDs, svc.ID)
	}

	if _, err := tx.Exec(ctx, `UPDATE workers SET is_active = FALSE, updated_at = now() WHERE is_active AND NOT (id = ANY($1))`, workerIDs); err != nil {
		return fmt.Errorf("deactivate missing workers: %w", err)
	}
	if _, err := tx.Exec(ctx, `UPDATE services SET is_active = FALSE, updated_at = now() WHERE is_active AND NOT (id = ANY($1))`, serviceIDs); err != nil {
		return fmt.Errorf("deactivate missing services: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	s.logger.Info().Int("workers", len(workers)).Int("services", len(services)).Msg("catalog synced")
	return nil
}

const workerColumns = `id, name, specialties, is_active, work_start, work_end, break_start, break_end`

func scanWorker(row pgx.Row) (*domain.Worker, error) {
	var w domain.Worker
	var start, end, bStart, bEnd int
	if err := row.Scan(&w.ID, &w.Name, &w.Specialties, &w.Active, &start, &end, &bStart, &bEnd); err != nil {
		return nil, err
	}
	if len(w.Specialties) == 0 {
		w.Specialties = nil
	}
	w.WorkStart, w.WorkEnd = domain.Clock(start), domain.Clock(end)
	w.BreakStart, w.BreakEnd = domain.Clock(bStart), domain.Clock(bEnd)
	return &w, nil
}

func (s *Store) GetWorker(ctx context.Context, id int64) (*domain.Worker, error) {
	w, err := scanWorker(s.pool.QueryRow(ctx, `SELECT `+workerColumns+` FROM workers WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.Errorf(domain.KindWorkerUnavailable, "worker %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get worker %d: %w", id, err)
	}
	return w, nil
}

func (s *Store) ListWorkers(ctx context.Context) ([]domain.Worker, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+workerColumns+` FROM workers ORDER BY sort_order, id`)
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

func scanService(row pgx.Row) (*domain.Service, error) {
	var svc domain.Service
	if err := row.Scan(&svc.ID, &svc.Name, &svc.Description, &svc.Category, &svc.PriceCents, &svc.DurationMinutes, &svc.Active); err != nil {
		return nil, err
	}
	return &svc, nil
}

func (s *Store) GetService(ctx context.Context, id int64) (*domain.Service, error) {
	svc, err := scanService(s.pool.QueryRow(ctx, `SELECT `+serviceColumns+` FROM services WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.Errorf(domain.KindServiceNotFound, "service %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get service %d: %w", id, err)
	}
	return svc, nil
}

func (s *Store) ListServices(ctx context.Context) ([]domain.Service, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+serviceColumns+` FROM services ORDER BY sort_order, id`)
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	defer rows.Close()

	var out []domain.Service
	for rows.Next() {
		svc, err := scanService(rows)
		if err != nil {
			return nil, fmt.Errorf("scan service: %w", err)
		}
		out = append(out, *svc)
	}
	return out, rows.Err()
}
