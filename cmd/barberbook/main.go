package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"barberbook/internal/access"
	"barberbook/internal/api"
	"barberbook/internal/availability"
	"barberbook/internal/booking"
	"barberbook/internal/cache"
	"barberbook/internal/config"
	"barberbook/internal/database"
	"barberbook/internal/domain"
	"barberbook/internal/events"
	"barberbook/internal/metrics"
	"barberbook/internal/pgstore"
	"barberbook/internal/report"
	"barberbook/internal/timegrid"
)

// store is what the process needs from either backend.
type store interface {
	booking.Store
	SyncCatalog(ctx context.Context, workers []domain.Worker, services []domain.Service) error
	Ready(ctx context.Context) error
}

type readiness func(ctx context.Context) error

func main() {
	_ = godotenv.Load()

	bootLogger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).With().Timestamp().Logger()

	cfg, err := config.Load(os.Getenv("BARBERBOOK_CONFIG"))
	if err != nil {
		bootLogger.Fatal().Err(err).Msg("failed to load config")
	}
	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, &logger); err != nil {
		logger.Fatal().Err(err).Msg("barberbook stopped")
	}
	logger.Info().Msg("barberbook stopped")
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Log.Level))
	if err != nil || cfg.Log.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Log.Format == "json" {
		return zerolog.New(os.Stdout).With().Timestamp().Logger()
	}
	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	return zerolog.New(output).With().Timestamp().Logger()
}

func run(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) error {
	grid, err := timegrid.New(cfg.Booking.GridMinutes, cfg.Location())
	if err != nil {
		return fmt.Errorf("time grid: %w", err)
	}

	st, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()
	checks := map[string]readiness{"db": st.Ready}

	bookings := booking.NewService(st, grid, availability.SystemClock, logger)
	bus := events.NewBus(logger)
	bookings.SetPublisher(bus)

	var availCache *cache.Availability
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Address, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer func() { _ = rdb.Close() }()
		availCache = cache.NewAvailability(rdb, grid, availability.SystemClock, cfg.CacheTTL(), logger)
		bookings.SetCache(availCache)
		bus.SubscribeAll(availCache.HandleEvent)
		checks["redis"] = availCache.Ready
	}

	if cfg.Monitoring.PrometheusEnabled {
		metrics.Register()
		bus.SubscribeAll(metrics.HandleEvent)
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, logger)
	}

	bus.SubscribeAll(func(_ context.Context, ev events.Event) error {
		logger.Debug().
			Str("event", ev.Type).
			Int64("booking_id", ev.Booking.ID).
			Int64("worker_id", ev.Booking.WorkerID).
			Str("status", string(ev.Booking.Status)).
			Msg("booking event")
		return nil
	})

	err = config.WatchCatalog(ctx, cfg.Catalog.Path, cfg.CatalogReload(), cfg.Booking.AllowedDurations, logger, func(cat *config.Catalog) error {
		syncCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if err := st.SyncCatalog(syncCtx, cat.Workers(), cat.Services()); err != nil {
			return fmt.Errorf("sync catalog: %w", err)
		}
		if availCache != nil {
			if err := availCache.InvalidateAll(syncCtx); err != nil {
				logger.Warn().Err(err).Msg("availability cache flush failed")
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}

	if db, ok := st.(*database.DB); ok && cfg.Backup.Enabled {
		go database.NewBackupService(db, cfg.Backup, logger).Start(ctx)
	}

	go startHealthServer(ctx, cfg.Monitoring.HealthCheckPort, checks, logger)

	server := api.NewServer(bookings, access.NewPolicy(logger), report.NewExporter(bookings, grid.Location(), logger), api.Options{
		RequestTimeout: time.Duration(cfg.HTTP.RequestTimeout) * time.Second,
		RateLimitRPS:   cfg.RateLimit.RPS,
		RateLimitBurst: cfg.RateLimit.Burst,
		AgendaDays:     cfg.Booking.AgendaDays,
	}, logger)

	srv := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      server.Handler(),
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()

	logger.Info().
		Str("address", cfg.HTTP.Address).
		Str("driver", cfg.Database.Driver).
		Int("grid_minutes", grid.Step()).
		Str("timezone", grid.Location().String()).
		Msg("barberbook started")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

func openStore(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (store, func(), error) {
	switch cfg.Database.Driver {
	case "postgres":
		pg, err := pgstore.Open(ctx, cfg.Database.URL, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres: %w", err)
		}
		return pg, pg.Close, nil
	default:
		db, err := database.NewDB(cfg.Database.Path, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite: %w", err)
		}
		return db, func() { _ = db.Close() }, nil
	}
}

func startHealthServer(ctx context.Context, port int, checks map[string]readiness, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		ctxPing, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		for name, check := range checks {
			if err := check(ctxPing); err != nil {
				http.Error(w, name+" not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("health server error")
	}
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
