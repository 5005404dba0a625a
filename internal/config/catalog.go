package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"barberbook/internal/domain"
)

// WorkerConfig is a worker entry of catalog.yaml.
type WorkerConfig struct {
	ID          int64    `yaml:"id"`
	Name        string   `yaml:"name"`
	Specialties []string `yaml:"specialties,omitempty"`
	IsActive    *bool    `yaml:"is_active,omitempty"`
	Schedule    *Hours   `yaml:"schedule,omitempty"`
}

// Hours is a daily template: working window and break window.
type Hours struct {
	WorkStart  string `yaml:"work_start"`
	WorkEnd    string `yaml:"work_end"`
	BreakStart string `yaml:"break_start"`
	BreakEnd   string `yaml:"break_end"`
}

// ServiceConfig is a service entry of catalog.yaml.
type ServiceConfig struct {
	ID              int64  `yaml:"id"`
	Name            string `yaml:"name"`
	Description     string `yaml:"description"`
	Category        string `yaml:"category"`
	PriceCents      int64  `yaml:"price_cents"`
	DurationMinutes int    `yaml:"duration_minutes"`
	IsActive        *bool  `yaml:"is_active,omitempty"`
}

// Catalog is the root of catalog.yaml.
type Catalog struct {
	Defaults struct {
		Schedule *Hours `yaml:"schedule"`
	} `yaml:"defaults"`
	WorkerEntries  []WorkerConfig  `yaml:"workers"`
	ServiceEntries []ServiceConfig `yaml:"services"`

	workers  []domain.Worker
	services []domain.Service
}

// LoadCatalog loads and validates the catalog file. allowedDurations restricts
// service durations; empty means any positive duration.
func LoadCatalog(path string, allowedDurations []int) (*Catalog, error) {
	if path == "" {
		path = "configs/catalog.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}

	return ParseCatalog(data, allowedDurations)
}

// ParseCatalog decodes and validates catalog YAML.
func ParseCatalog(data []byte, allowedDurations []int) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if err := c.build(allowedDurations); err != nil {
		return nil, fmt.Errorf("validate catalog: %w", err)
	}
	return &c, nil
}

// Workers returns the validated workers in file order.
func (c *Catalog) Workers() []domain.Worker {
	return append([]domain.Worker(nil), c.workers...)
}

// Services returns the validated services in file order.
func (c *Catalog) Services() []domain.Service {
	return append([]domain.Service(nil), c.services...)
}

func (c *Catalog) build(allowedDurations []int) error {
	if len(c.WorkerEntries) == 0 {
		return fmt.Errorf("no workers defined")
	}

	ids := make(map[int64]bool)
	for i, wc := range c.WorkerEntries {
		if wc.ID <= 0 {
			return fmt.Errorf("workers[%d]: id must be positive, got %d", i, wc.ID)
		}
		if ids[wc.ID] {
			return fmt.Errorf("workers[%d]: duplicate id %d", i, wc.ID)
		}
		ids[wc.ID] = true
		if wc.Name == "" {
			return fmt.Errorf("workers[%d]: name is required", i)
		}

		hours := wc.Schedule
		if hours == nil {
			hours = c.Defaults.Schedule
		}
		if hours == nil {
			return fmt.Errorf("workers[%d]: schedule is required when defaults.schedule is not set", i)
		}

		w, err := hours.worker(fmt.Sprintf("workers[%d].schedule", i))
		if err != nil {
			return err
		}
		w.ID = wc.ID
		w.Name = wc.Name
		w.Specialties = wc.Specialties
		w.Active = wc.IsActive == nil || *wc.IsActive
		if err := w.Validate(); err != nil {
			return fmt.Errorf("workers[%d]: %w", i, err)
		}
		c.workers = append(c.workers, w)
	}

	allowed := make(map[int]bool, len(allowedDurations))
	for _, d := range allowedDurations {
		allowed[d] = true
	}

	ids = make(map[int64]bool)
	for i, sc := range c.ServiceEntries {
		if sc.ID <= 0 {
			return fmt.Errorf("services[%d]: id must be positive, got %d", i, sc.ID)
		}
		if ids[sc.ID] {
			return fmt.Errorf("services[%d]: duplicate id %d", i, sc.ID)
		}
		ids[sc.ID] = true
		if sc.Name == "" {
			return fmt.Errorf("services[%d]: name is required", i)
		}
		if sc.DurationMinutes <= 0 || sc.DurationMinutes > domain.MaxDurationMinutes {
			return fmt.Errorf("services[%d]: duration_minutes must be between 1 and %d", i, domain.MaxDurationMinutes)
		}
		if len(allowed) > 0 && !allowed[sc.DurationMinutes] {
			return fmt.Errorf("services[%d]: duration %d is not one of %v", i, sc.DurationMinutes, allowedDurations)
		}
		if sc.PriceCents < 0 {
			return fmt.Errorf("services[%d]: price cannot be negative", i)
		}

		c.services = append(c.services, domain.Service{
			ID:              sc.ID,
			Name:            sc.Name,
			Description:     sc.Description,
			Category:        sc.Category,
			PriceCents:      sc.PriceCents,
			DurationMinutes: sc.DurationMinutes,
			Active:          sc.IsActive == nil || *sc.IsActive,
		})
	}

	return nil
}

func (h *Hours) worker(prefix string) (domain.Worker, error) {
	var (
		w   domain.Worker
		err error
	)
	if w.WorkStart, err = domain.ParseClock(h.WorkStart); err != nil {
		return w, fmt.Errorf("%s.work_start: %w", prefix, err)
	}
	if w.WorkEnd, err = domain.ParseBound(h.WorkEnd); err != nil {
		return w, fmt.Errorf("%s.work_end: %w", prefix, err)
	}
	if w.BreakStart, err = domain.ParseClock(h.BreakStart); err != nil {
		return w, fmt.Errorf("%s.break_start: %w", prefix, err)
	}
	if w.BreakEnd, err = domain.ParseBound(h.BreakEnd); err != nil {
		return w, fmt.Errorf("%s.break_end: %w", prefix, err)
	}
	return w, nil
}
