// Package pgstore is the PostgreSQL store. Non-overlap of active bookings is
// enforced by an exclusion constraint, so concurrent inserts from several
// processes cannot double-book a worker.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// Store wraps a pgx connection pool.
type Store struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// Open connects to databaseURL and applies the schema.
func Open(ctx context.Context, databaseURL string, logger *zerolog.Logger) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MinConns = 1
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "pgstore").Logger()
	}
	s := &Store{pool: pool, logger: l}

	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	l.Info().Str("host", cfg.ConnConfig.Host).Str("database", cfg.ConnConfig.Database).Msg("PostgreSQL connected")
	return s, nil
}

var schema = []string{
	`CREATE EXTENSION IF NOT EXISTS btree_gist`,
	`CREATE TABLE IF NOT EXISTS workers (
		id BIGINT PRIMARY KEY,
		name TEXT NOT NULL,
		specialties TEXT[] NOT NULL DEFAULT '{}',
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		work_start INTEGER NOT NULL,
		work_end INTEGER NOT NULL,
		break_start INTEGER NOT NULL,
		break_end INTEGER NOT NULL,
		sort_order INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS services (
		id BIGINT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		category TEXT NOT NULL DEFAULT '',
		price_cents BIGINT NOT NULL DEFAULT 0,
		duration_minutes INTEGER NOT NULL CHECK (duration_minutes > 0),
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		sort_order INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	// start_time holds UTC wall time; timestamp (not timestamptz) keeps the
	// range expression immutable so it can back the exclusion constraint.
	`CREATE TABLE IF NOT EXISTS bookings (
		id BIGSERIAL PRIMARY KEY,
		worker_id BIGINT NOT NULL REFERENCES workers(id),
		service_id BIGINT NOT NULL REFERENCES services(id),
		client_id BIGINT NOT NULL,
		start_time TIMESTAMP NOT NULL,
		duration_minutes INTEGER NOT NULL CHECK (duration_minutes > 0),
		status TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'completed', 'cancelled')),
		notes TEXT NOT NULL DEFAULT '',
		idempotency_key TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		CONSTRAINT ` + overlapConstraint + ` EXCLUDE USING gist (
			worker_id WITH =,
			tsrange(start_time, start_time + make_interval(mins => duration_minutes)) WITH &&
		) WHERE (status <> 'cancelled'),
		CONSTRAINT ` + idempotencyConstraint + ` UNIQUE (client_id, idempotency_key)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_bookings_client ON bookings(client_id, start_time)`,
	`CREATE INDEX IF NOT EXISTS idx_bookings_worker_start ON bookings(worker_id, start_time)`,
}

// Migrate creates the schema if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	for _, q := range schema {
		if _, err := s.pool.Exec(ctx, q); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// Ready reports whether the database answers queries.
func (s *Store) Ready(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return errors.New("db not configured")
	}
	return s.pool.Ping(ctx)
}

func (s *Store) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}
