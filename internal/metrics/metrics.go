package metrics

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"barberbook/internal/domain"
	"barberbook/internal/events"
)

const namespace = "barberbook"

var (
	once sync.Once

	bookingCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_created_total",
			Help:      "Count of bookings created per worker.",
		},
		[]string{"worker_id"},
	)

	bookingRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_rejected_total",
			Help:      "Count of booking requests rejected by error kind.",
		},
		[]string{"kind"},
	)

	statusTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_status_transitions_total",
			Help:      "Count of booking status transitions.",
		},
		[]string{"from", "to"},
	)

	bookingDeleted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_deleted_total",
			Help:      "Count of hard-deleted bookings.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Count of HTTP requests by route and status code.",
		},
		[]string{"route", "code"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	cacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "availability_cache_lookups_total",
			Help:      "Availability cache lookups by result.",
		},
		[]string{"result"},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(bookingCreated, bookingRejected, statusTransitions, bookingDeleted,
			httpRequests, httpDuration, cacheLookups)
	})
}

func IncBookingCreated(workerID int64) {
	bookingCreated.WithLabelValues(strconv.FormatInt(workerID, 10)).Inc()
}

// IncBookingRejected counts a failed create by its domain kind.
func IncBookingRejected(err error) {
	kind := string(domain.KindOf(err))
	if kind == "" {
		kind = "internal"
	}
	bookingRejected.WithLabelValues(kind).Inc()
}

func IncStatusTransition(from, to domain.Status) {
	statusTransitions.WithLabelValues(string(from), string(to)).Inc()
}

func ObserveHTTP(route string, code int, elapsed time.Duration) {
	httpRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
	httpDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

func IncCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	cacheLookups.WithLabelValues(result).Inc()
}

// HandleEvent records booking events; subscribe it to the event bus.
func HandleEvent(_ context.Context, event events.Event) error {
	switch event.Type {
	case events.BookingCreated:
		IncBookingCreated(event.Booking.WorkerID)
	case events.BookingStatusChanged:
		IncStatusTransition(event.PreviousStatus, event.Booking.Status)
	case events.BookingDeleted:
		bookingDeleted.Inc()
	}
	return nil
}
