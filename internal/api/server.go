// Package api exposes the booking core over HTTP/JSON.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"barberbook/internal/access"
	"barberbook/internal/availability"
	"barberbook/internal/booking"
	"barberbook/internal/metrics"
	"barberbook/internal/report"
)

var errInvalidActorID = errors.New(HeaderActorID + " must be a positive integer")

// Options tune the HTTP layer.
type Options struct {
	RequestTimeout time.Duration
	RateLimitRPS   float64
	RateLimitBurst int
	AgendaDays     int
	Clock          availability.Clock
}

// Server routes API requests to the booking service.
type Server struct {
	bookings *booking.Service
	policy   *access.Policy
	exporter *report.Exporter
	limiter  *keyedLimiter
	opts     Options
	logger   zerolog.Logger
	handler  http.Handler
}

// NewServer builds the handler tree.
func NewServer(bookings *booking.Service, policy *access.Policy, exporter *report.Exporter, opts Options, logger *zerolog.Logger) *Server {
	if opts.Clock == nil {
		opts.Clock = availability.SystemClock
	}
	if opts.AgendaDays <= 0 {
		opts.AgendaDays = 30
	}
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "api").Logger()
	}

	s := &Server{
		bookings: bookings,
		policy:   policy,
		exporter: exporter,
		limiter:  newKeyedLimiter(opts.RateLimitRPS, opts.RateLimitBurst),
		opts:     opts,
		logger:   l,
	}

	mux := http.NewServeMux()
	s.handle(mux, "GET /api/v1/availability", s.handleAvailability)
	s.handle(mux, "GET /api/v1/availability/workers", s.handleWorkersAt)
	s.handle(mux, "GET /api/v1/services", s.handleServices)
	s.handle(mux, "GET /api/v1/workers", s.handleWorkers)

	s.handle(mux, "POST /api/v1/bookings", s.authed(s.handleCreateBooking))
	s.handle(mux, "GET /api/v1/bookings", s.authed(s.handleListBookings))
	s.handle(mux, "GET /api/v1/bookings/{id}", s.authed(s.handleGetBooking))
	s.handle(mux, "PUT /api/v1/bookings/{id}/status", s.authed(s.handleUpdateStatus))
	s.handle(mux, "DELETE /api/v1/bookings/{id}", s.authed(s.handleDeleteBooking))
	s.handle(mux, "GET /api/v1/workers/{id}/bookings", s.authed(s.handleAgenda))
	s.handle(mux, "GET /api/v1/workers/{id}/stats", s.authed(s.handleStats))
	s.handle(mux, "GET /api/v1/reports/bookings.xlsx", s.authed(s.handleExport))

	s.handler = chain(mux,
		withRecover(l),
		withRequestID,
		withAccessLog(l),
		withRateLimit(s.limiter),
	)
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.handler }

// handle registers h under pattern with the request timeout and route metrics.
func (s *Server) handle(mux *http.ServeMux, pattern string, h http.HandlerFunc) {
	mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		if s.opts.RequestTimeout > 0 {
			ctx, cancel := context.WithTimeout(r.Context(), s.opts.RequestTimeout)
			defer cancel()
			r = r.WithContext(ctx)
		}
		rec := &statusRecorder{ResponseWriter: w}
		h(rec, r)
		if rec.status == 0 {
			rec.status = http.StatusOK
		}
		metrics.ObserveHTTP(pattern, rec.status, time.Since(start))
	})
}

type actorHandler func(w http.ResponseWriter, r *http.Request, actor access.Actor)

// authed requires the identity headers.
func (s *Server) authed(h actorHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok, err := actorFrom(r)
		if !ok {
			writeUnauthenticated(w, "missing "+HeaderActorID+"/"+HeaderActorRole+" headers")
			return
		}
		if err != nil {
			writeUnauthenticated(w, err.Error())
			return
		}
		h(w, r, actor)
	}
}
