package config

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// CatalogHandler applies a validated catalog. An error from the first call
// aborts WatchCatalog; errors from later reloads are logged.
type CatalogHandler func(*Catalog) error

type catalogWatcher struct {
	path             string
	allowedDurations []int
	onUpdate         CatalogHandler
	lastMod          time.Time
	log              zerolog.Logger
}

// WatchCatalog loads the catalog, applies it, then polls the file's
// modification time and reapplies it on change until ctx is done. A reload
// that fails validation or cannot be applied leaves the previous catalog in
// effect.
func WatchCatalog(ctx context.Context, path string, interval time.Duration, allowedDurations []int, logger *zerolog.Logger, onUpdate CatalogHandler) error {
	if path == "" {
		path = "configs/catalog.yaml"
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	w := &catalogWatcher{path: path, allowedDurations: allowedDurations, onUpdate: onUpdate, log: zerolog.Nop()}
	if logger != nil {
		w.log = logger.With().Str("component", "catalog").Logger()
	}

	if _, err := w.reload(true); err != nil {
		return err
	}

	go w.poll(ctx, interval)
	return nil
}

func (w *catalogWatcher) poll(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			changed, err := w.reload(false)
			if err != nil {
				w.log.Error().Err(err).Str("path", w.path).Msg("catalog reload rejected")
				continue
			}
			if changed {
				w.log.Info().Str("path", w.path).Msg("catalog reloaded")
			}
		}
	}
}

// reload applies the file when force is set or its mtime moved forward.
// A rejected file is not retried until it changes again.
func (w *catalogWatcher) reload(force bool) (bool, error) {
	info, err := os.Stat(w.path)
	if err != nil {
		return false, fmt.Errorf("stat catalog: %w", err)
	}
	if !force && !info.ModTime().After(w.lastMod) {
		return false, nil
	}
	w.lastMod = info.ModTime()

	cat, err := LoadCatalog(w.path, w.allowedDurations)
	if err != nil {
		return false, err
	}
	if w.onUpdate != nil {
		if err := w.onUpdate(cat); err != nil {
			return false, fmt.Errorf("apply catalog: %w", err)
		}
	}
	return true, nil
}
