package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"barberbook/internal/availability"
	"barberbook/internal/domain"
	"barberbook/internal/events"
	"barberbook/internal/timegrid"
)

// Store persists workers, services and bookings. CreateBooking must reject an
// overlapping active booking atomically with domain.ErrDoubleBooking, and an
// already used (client, idempotency key) pair with domain.ErrDuplicateKey.
type Store interface {
	availability.Ledger

	GetWorker(ctx context.Context, id int64) (*domain.Worker, error)
	ListWorkers(ctx context.Context) ([]domain.Worker, error)
	GetService(ctx context.Context, id int64) (*domain.Service, error)
	ListServices(ctx context.Context) ([]domain.Service, error)

	CreateBooking(ctx context.Context, b *domain.Booking) error
	GetBooking(ctx context.Context, id int64) (*domain.Booking, error)
	// FindBookingByIdempotencyKey returns nil, nil when no booking carries the key.
	FindBookingByIdempotencyKey(ctx context.Context, clientID int64, key string) (*domain.Booking, error)
	// UpdateBookingStatus changes the status only if it still equals from;
	// otherwise it returns domain.ErrConcurrentModification.
	UpdateBookingStatus(ctx context.Context, id int64, from, to domain.Status, notes *string) (*domain.Booking, error)
	DeleteBooking(ctx context.Context, id int64) error
	ListBookings(ctx context.Context, filter domain.BookingFilter) ([]domain.Booking, error)
}

// AvailabilityCache memoizes computed availability per (date, service).
// Get returns a version on miss; Set stores under that version so a result
// computed before an invalidation is never served after it.
type AvailabilityCache interface {
	Get(ctx context.Context, date time.Time, serviceID int64) (slots []availability.WorkerSlots, version string, ok bool)
	Set(ctx context.Context, date time.Time, serviceID int64, version string, slots []availability.WorkerSlots)
}

// Publisher receives booking events.
type Publisher interface {
	Publish(ctx context.Context, event events.Event)
}

// Request is the input of CreateBooking.
type Request struct {
	WorkerID       int64
	ServiceID      int64
	ClientID       int64
	Start          time.Time
	Notes          string
	IdempotencyKey string
}

// Stats counts a worker's bookings on one day.
type Stats struct {
	WorkerID int64                 `json:"worker_id"`
	Date     string                `json:"date"`
	Total    int                   `json:"total"`
	ByStatus map[domain.Status]int `json:"by_status"`
}

// Service is the booking core: availability queries, conflict-checked
// creation and lifecycle changes.
type Service struct {
	store     Store
	engine    *availability.Engine
	grid      *timegrid.Grid
	lifecycle *Lifecycle
	locks     *workerLocks
	cache     AvailabilityCache
	events    Publisher
	logger    zerolog.Logger
}

// NewService creates a new booking service.
func NewService(store Store, grid *timegrid.Grid, clock availability.Clock, logger *zerolog.Logger) *Service {
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "booking").Logger()
	}
	return &Service{
		store:     store,
		engine:    availability.NewEngine(grid, store, clock),
		grid:      grid,
		lifecycle: NewLifecycle(),
		locks:     newWorkerLocks(),
		logger:    l,
	}
}

// SetCache enables read-through caching of availability results.
func (s *Service) SetCache(cache AvailabilityCache) {
	s.cache = cache
}

// SetPublisher routes booking events to p.
func (s *Service) SetPublisher(p Publisher) {
	s.events = p
}

// Grid returns the time grid bookings are aligned to.
func (s *Service) Grid() *timegrid.Grid { return s.grid }

// Availability returns the bookable slots for the service on date.
func (s *Service) Availability(ctx context.Context, date time.Time, serviceID int64) ([]availability.WorkerSlots, error) {
	svc, err := s.activeService(ctx, serviceID)
	if err != nil {
		return nil, err
	}

	var version string
	if s.cache != nil {
		slots, v, ok := s.cache.Get(ctx, date, serviceID)
		if ok {
			return slots, nil
		}
		version = v
	}

	workers, err := s.store.ListWorkers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list workers: %w", err)
	}

	slots, err := s.engine.Compute(ctx, date, *svc, workers)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		s.cache.Set(ctx, date, serviceID, version, slots)
	}
	return slots, nil
}

// WorkersAt returns the workers free to take the service at clock c on date.
func (s *Service) WorkersAt(ctx context.Context, date time.Time, c timegrid.Clock, serviceID int64) ([]domain.Worker, error) {
	svc, err := s.activeService(ctx, serviceID)
	if err != nil {
		return nil, err
	}
	if !s.grid.Aligned(c) {
		return nil, domain.Errorf(domain.KindFormat, "time %s is not aligned to the %d-minute grid", c, s.grid.Step())
	}

	workers, err := s.store.ListWorkers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list workers: %w", err)
	}
	return s.engine.WorkersAt(ctx, date, c, *svc, workers)
}

// CreateBooking validates the request against the worker's schedule and the
// live ledger, then persists a pending booking. Calls for the same worker are
// serialized; the store enforces non-overlap on its own as well.
func (s *Service) CreateBooking(ctx context.Context, req Request) (*domain.Booking, error) {
	worker, err := s.store.GetWorker(ctx, req.WorkerID)
	if err != nil {
		return nil, err
	}
	if !worker.Active {
		return nil, domain.Errorf(domain.KindWorkerUnavailable, "worker %d is not active", worker.ID)
	}

	svc, err := s.activeService(ctx, req.ServiceID)
	if err != nil {
		return nil, err
	}
	if _, err := s.grid.SlotsNeeded(svc.DurationMinutes); err != nil {
		return nil, err
	}

	start := req.Start.UTC()
	end := start.Add(svc.Duration())

	unlock := s.locks.Lock(worker.ID)
	defer unlock()

	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		req.IdempotencyKey = key
		existing, err := s.store.FindBookingByIdempotencyKey(ctx, req.ClientID, key)
		if err != nil {
			return nil, fmt.Errorf("find booking by idempotency key: %w", err)
		}
		if existing != nil {
			return s.replay(existing, req)
		}
	}

	busy, err := s.store.ActiveBookings(ctx, worker.ID, start, end)
	if err != nil {
		return nil, fmt.Errorf("load bookings for worker %d: %w", worker.ID, err)
	}
	if err := s.engine.Check(*worker, svc.DurationMinutes, start, busy); err != nil {
		s.logger.Debug().
			Int64("worker_id", worker.ID).
			Time("start", start).
			Str("kind", string(domain.KindOf(err))).
			Msg("booking rejected")
		return nil, err
	}

	notes := strings.TrimSpace(req.Notes)
	if notes == "" {
		notes = fmt.Sprintf("%s (%dmin)", svc.Name, svc.DurationMinutes)
	}

	b := &domain.Booking{
		WorkerID:        worker.ID,
		ServiceID:       svc.ID,
		ClientID:        req.ClientID,
		Start:           start,
		DurationMinutes: svc.DurationMinutes,
		Status:          domain.StatusPending,
		Notes:           notes,
		IdempotencyKey:  req.IdempotencyKey,
	}

	if err := s.store.CreateBooking(ctx, b); err != nil {
		if errors.Is(err, domain.ErrDuplicateKey) {
			existing, ferr := s.store.FindBookingByIdempotencyKey(ctx, req.ClientID, req.IdempotencyKey)
			if ferr != nil {
				return nil, fmt.Errorf("find booking by idempotency key: %w", ferr)
			}
			if existing != nil {
				return s.replay(existing, req)
			}
		}
		return nil, err
	}

	s.logger.Info().
		Int64("booking_id", b.ID).
		Int64("worker_id", b.WorkerID).
		Int64("client_id", b.ClientID).
		Time("start", b.Start).
		Msg("booking created")

	s.publish(ctx, events.Event{Type: events.BookingCreated, Booking: *b})
	return b, nil
}

// replay resolves a create that reuses an idempotency key.
func (s *Service) replay(existing *domain.Booking, req Request) (*domain.Booking, error) {
	if existing.WorkerID != req.WorkerID || existing.ServiceID != req.ServiceID || !existing.Start.Equal(req.Start) {
		return nil, domain.Errorf(domain.KindIdempotencyMismatch,
			"idempotency key %q was already used for booking %d with different parameters", req.IdempotencyKey, existing.ID)
	}
	s.logger.Debug().Int64("booking_id", existing.ID).Msg("idempotent replay")
	return existing, nil
}

// UpdateStatus drives a booking through the lifecycle. notes, when non-nil,
// replaces the booking notes. A concurrent change that wins the race makes
// this call fail with an invalid transition from the status actually stored.
func (s *Service) UpdateStatus(ctx context.Context, id int64, to domain.Status, notes *string) (*domain.Booking, error) {
	current, err := s.store.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.lifecycle.Transition(current.Status, to); err != nil {
		return nil, err
	}

	updated, err := s.store.UpdateBookingStatus(ctx, id, current.Status, to, notes)
	if errors.Is(err, domain.ErrConcurrentModification) {
		latest, gerr := s.store.GetBooking(ctx, id)
		if gerr != nil {
			return nil, gerr
		}
		return nil, domain.InvalidTransition(latest.Status, to)
	}
	if err != nil {
		return nil, fmt.Errorf("update booking %d status: %w", id, err)
	}

	s.logger.Info().
		Int64("booking_id", id).
		Str("from", string(current.Status)).
		Str("to", string(to)).
		Msg("booking status changed")

	s.publish(ctx, events.Event{Type: events.BookingStatusChanged, Booking: *updated, PreviousStatus: current.Status})
	return updated, nil
}

// GetBooking returns a booking by ID.
func (s *Service) GetBooking(ctx context.Context, id int64) (*domain.Booking, error) {
	return s.store.GetBooking(ctx, id)
}

// DeleteBooking removes the record outright. It bypasses the lifecycle.
func (s *Service) DeleteBooking(ctx context.Context, id int64) error {
	b, err := s.store.GetBooking(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteBooking(ctx, id); err != nil {
		return fmt.Errorf("delete booking %d: %w", id, err)
	}

	s.logger.Info().Int64("booking_id", id).Msg("booking deleted")
	s.publish(ctx, events.Event{Type: events.BookingDeleted, Booking: *b, PreviousStatus: b.Status})
	return nil
}

// ListBookings returns bookings matching filter, ordered by start.
func (s *Service) ListBookings(ctx context.Context, filter domain.BookingFilter) ([]domain.Booking, error) {
	return s.store.ListBookings(ctx, filter)
}

// Agenda returns a worker's bookings starting in [from, to).
func (s *Service) Agenda(ctx context.Context, workerID int64, from, to time.Time, status domain.Status) ([]domain.Booking, error) {
	if _, err := s.store.GetWorker(ctx, workerID); err != nil {
		return nil, err
	}
	if !from.Before(to) {
		return nil, domain.Errorf(domain.KindFormat, "range start must be before its end")
	}
	return s.store.ListBookings(ctx, domain.BookingFilter{WorkerID: workerID, Status: status, From: from, To: to})
}

// Stats counts a worker's bookings starting on date, in total and per status.
func (s *Service) Stats(ctx context.Context, workerID int64, date time.Time) (*Stats, error) {
	if _, err := s.store.GetWorker(ctx, workerID); err != nil {
		return nil, err
	}

	from := s.grid.Day(date)
	to := from.AddDate(0, 0, 1)
	bookings, err := s.store.ListBookings(ctx, domain.BookingFilter{WorkerID: workerID, From: from, To: to})
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}

	st := &Stats{
		WorkerID: workerID,
		Date:     from.Format(timegrid.DateLayout),
		ByStatus: map[domain.Status]int{
			domain.StatusPending:   0,
			domain.StatusCompleted: 0,
			domain.StatusCancelled: 0,
		},
	}
	for _, b := range bookings {
		st.Total++
		st.ByStatus[b.Status]++
	}
	return st, nil
}

// ListWorkers returns all workers in catalog order.
func (s *Service) ListWorkers(ctx context.Context) ([]domain.Worker, error) {
	return s.store.ListWorkers(ctx)
}

// ListServices returns all services in catalog order.
func (s *Service) ListServices(ctx context.Context) ([]domain.Service, error) {
	return s.store.ListServices(ctx)
}

func (s *Service) activeService(ctx context.Context, id int64) (*domain.Service, error) {
	svc, err := s.store.GetService(ctx, id)
	if err != nil {
		return nil, err
	}
	if !svc.Active {
		return nil, domain.Errorf(domain.KindServiceNotFound, "service %d is not active", svc.ID)
	}
	return svc, nil
}

func (s *Service) publish(ctx context.Context, event events.Event) {
	if s.events != nil {
		s.events.Publish(ctx, event)
	}
}
