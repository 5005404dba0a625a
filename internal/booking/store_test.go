package booking

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"barberbook/internal/domain"
)

// memStore implements Store in memory with the same atomicity guarantees as
// the SQL stores.
type memStore struct {
	mu       sync.Mutex
	workers  []domain.Worker
	services []domain.Service
	bookings map[int64]*domain.Booking
	nextID   int64
	creates  int
}

func newMemStore(workers []domain.Worker, services []domain.Service) *memStore {
	return &memStore{workers: workers, services: services, bookings: make(map[int64]*domain.Booking)}
}

func (m *memStore) ActiveBookings(ctx context.Context, workerID int64, from, to time.Time) ([]domain.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeLocked(workerID, domain.Interval{Start: from, End: to}), nil
}

func (m *memStore) activeLocked(workerID int64, window domain.Interval) []domain.Booking {
	var out []domain.Booking
	for _, b := range m.sortedLocked() {
		if b.WorkerID == workerID && b.Status.Active() && window.Overlaps(b.Interval()) {
			out = append(out, b)
		}
	}
	return out
}

func (m *memStore) sortedLocked() []domain.Booking {
	out := make([]domain.Booking, 0, len(m.bookings))
	for _, b := range m.bookings {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Start.Equal(out[j].Start) {
			return out[i].ID < out[j].ID
		}
		return out[i].Start.Before(out[j].Start)
	})
	return out
}

func (m *memStore) GetWorker(ctx context.Context, id int64) (*domain.Worker, error) {
	for _, w := range m.workers {
		if w.ID == id {
			w := w
			return &w, nil
		}
	}
	return nil, fmt.Errorf("worker %d: %w", id, domain.ErrWorkerUnavailable)
}

func (m *memStore) ListWorkers(ctx context.Context) ([]domain.Worker, error) {
	return append([]domain.Worker(nil), m.workers...), nil
}

func (m *memStore) GetService(ctx context.Context, id int64) (*domain.Service, error) {
	for _, s := range m.services {
		if s.ID == id {
			s := s
			return &s, nil
		}
	}
	return nil, fmt.Errorf("service %d: %w", id, domain.ErrServiceNotFound)
}

func (m *memStore) ListServices(ctx context.Context) ([]domain.Service, error) {
	return append([]domain.Service(nil), m.services...), nil
}

func (m *memStore) CreateBooking(ctx context.Context, b *domain.Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if b.IdempotencyKey != "" {
		for _, existing := range m.bookings {
			if existing.ClientID == b.ClientID && existing.IdempotencyKey == b.IdempotencyKey {
				return domain.ErrDuplicateKey
			}
		}
	}
	if len(m.activeLocked(b.WorkerID, b.Interval())) > 0 {
		return domain.ErrDoubleBooking
	}

	m.nextID++
	m.creates++
	b.ID = m.nextID
	b.CreatedAt = time.Now().UTC()
	b.UpdatedAt = b.CreatedAt
	stored := *b
	m.bookings[b.ID] = &stored
	return nil
}

func (m *memStore) GetBooking(ctx context.Context, id int64) (*domain.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok {
		return nil, fmt.Errorf("booking %d: %w", id, domain.ErrNotFound)
	}
	out := *b
	return &out, nil
}

func (m *memStore) FindBookingByIdempotencyKey(ctx context.Context, clientID int64, key string) (*domain.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.bookings {
		if b.ClientID == clientID && b.IdempotencyKey == key {
			out := *b
			return &out, nil
		}
	}
	return nil, nil
}

func (m *memStore) UpdateBookingStatus(ctx context.Context, id int64, from, to domain.Status, notes *string) (*domain.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok {
		return nil, fmt.Errorf("booking %d: %w", id, domain.ErrNotFound)
	}
	if b.Status != from {
		return nil, domain.ErrConcurrentModification
	}
	b.Status = to
	if notes != nil {
		b.Notes = *notes
	}
	b.UpdatedAt = time.Now().UTC()
	out := *b
	return &out, nil
}

func (m *memStore) DeleteBooking(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.bookings[id]; !ok {
		return fmt.Errorf("booking %d: %w", id, domain.ErrNotFound)
	}
	delete(m.bookings, id)
	return nil
}

func (m *memStore) ListBookings(ctx context.Context, f domain.BookingFilter) ([]domain.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Booking
	for _, b := range m.sortedLocked() {
		if f.WorkerID != 0 && b.WorkerID != f.WorkerID {
			continue
		}
		if f.ClientID != 0 && b.ClientID != f.ClientID {
			continue
		}
		if f.Status != "" && b.Status != f.Status {
			continue
		}
		if !f.From.IsZero() && b.Start.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && !b.Start.Before(f.To) {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}
