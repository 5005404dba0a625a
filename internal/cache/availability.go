// Package cache keeps computed availability in Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"barberbook/internal/availability"
	"barberbook/internal/events"
	"barberbook/internal/metrics"
	"barberbook/internal/timegrid"
)

const (
	keyPrefix = "availability"
	epochKey  = keyPrefix + ":epoch"
)

// Availability is a read-through cache of availability results keyed by
// (date, service). Entries are versioned by a global epoch and a per-date
// generation; bumping either makes older entries unreachable.
type Availability struct {
	rdb    *redis.Client
	grid   *timegrid.Grid
	clock  availability.Clock
	ttl    time.Duration
	logger zerolog.Logger
}

// NewAvailability creates the cache. Only dates after today (in the grid's
// location) are cached.
func NewAvailability(rdb *redis.Client, grid *timegrid.Grid, clock availability.Clock, ttl time.Duration, logger *zerolog.Logger) *Availability {
	if clock == nil {
		clock = availability.SystemClock
	}
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "cache").Logger()
	}
	return &Availability{rdb: rdb, grid: grid, clock: clock, ttl: ttl, logger: l}
}

func genKey(date string) string {
	return keyPrefix + ":gen:" + date
}

func entryKey(date, version string, serviceID int64) string {
	return fmt.Sprintf("%s:%s:%s:s%d", keyPrefix, date, version, serviceID)
}

func (c *Availability) cacheable(date time.Time) bool {
	if c == nil || c.rdb == nil || c.ttl <= 0 {
		return false
	}
	return c.grid.Day(date).After(c.grid.Day(c.clock.Now()))
}

func (c *Availability) version(ctx context.Context, date string) (string, error) {
	vals, err := c.rdb.MGet(ctx, epochKey, genKey(date)).Result()
	if err != nil {
		return "", err
	}
	counter := func(v any) string {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
		return "0"
	}
	return "e" + counter(vals[0]) + ":g" + counter(vals[1]), nil
}

// Get returns cached slots. On a miss it returns the version a later Set
// must use; an empty version means the result must not be stored.
func (c *Availability) Get(ctx context.Context, date time.Time, serviceID int64) ([]availability.WorkerSlots, string, bool) {
	if !c.cacheable(date) {
		return nil, "", false
	}
	day := c.grid.Day(date).Format(timegrid.DateLayout)

	version, err := c.version(ctx, day)
	if err != nil {
		c.logger.Warn().Err(err).Str("date", day).Msg("read cache version")
		return nil, "", false
	}

	data, err := c.rdb.Get(ctx, entryKey(day, version, serviceID)).Bytes()
	if errors.Is(err, redis.Nil) {
		metrics.IncCacheLookup(false)
		return nil, version, false
	}
	if err != nil {
		c.logger.Warn().Err(err).Str("date", day).Msg("read cache entry")
		return nil, "", false
	}

	var slots []availability.WorkerSlots
	if err := json.Unmarshal(data, &slots); err != nil {
		c.logger.Warn().Err(err).Str("date", day).Msg("decode cache entry")
		return nil, version, false
	}
	metrics.IncCacheLookup(true)
	return slots, version, true
}

// Set stores slots under version.
func (c *Availability) Set(ctx context.Context, date time.Time, serviceID int64, version string, slots []availability.WorkerSlots) {
	if version == "" || !c.cacheable(date) {
		return
	}
	day := c.grid.Day(date).Format(timegrid.DateLayout)

	data, err := json.Marshal(slots)
	if err != nil {
		c.logger.Warn().Err(err).Msg("encode cache entry")
		return
	}
	if err := c.rdb.Set(ctx, entryKey(day, version, serviceID), data, c.ttl).Err(); err != nil {
		c.logger.Warn().Err(err).Str("date", day).Msg("write cache entry")
	}
}

// Invalidate drops every entry for the date of t.
func (c *Availability) Invalidate(ctx context.Context, t time.Time) error {
	day := c.grid.Day(t).Format(timegrid.DateLayout)
	if err := c.rdb.Incr(ctx, genKey(day)).Err(); err != nil {
		return fmt.Errorf("invalidate %s: %w", day, err)
	}
	return nil
}

// InvalidateAll drops every entry, e.g. after the catalog changed.
func (c *Availability) InvalidateAll(ctx context.Context) error {
	if err := c.rdb.Incr(ctx, epochKey).Err(); err != nil {
		return fmt.Errorf("invalidate all: %w", err)
	}
	return nil
}

// HandleEvent invalidates the day of the booking an event refers to.
func (c *Availability) HandleEvent(ctx context.Context, event events.Event) error {
	return c.Invalidate(ctx, event.Booking.Start)
}

// Ready pings Redis.
func (c *Availability) Ready(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}
