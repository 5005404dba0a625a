package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"barberbook/internal/access"
	"barberbook/internal/booking"
	"barberbook/internal/domain"
	"barberbook/internal/metrics"
	"barberbook/internal/report"
	"barberbook/internal/timegrid"
)

const localStartLayout = "2006-01-02T15:04"

func (s *Server) loc() *time.Location {
	return s.bookings.Grid().Location()
}

func (s *Server) today() time.Time {
	return s.bookings.Grid().Day(s.opts.Clock.Now())
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return domain.Errorf(domain.KindFormat, "invalid JSON body: %v", err)
	}
	return nil
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.Errorf(domain.KindFormat, "invalid %s %q", name, r.PathValue(name))
	}
	return id, nil
}

func queryID(r *http.Request, name string) (int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, domain.Errorf(domain.KindFormat, "%s is required", name)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.Errorf(domain.KindFormat, "invalid %s %q", name, raw)
	}
	return id, nil
}

// queryDate parses a YYYY-MM-DD parameter, returning def when it is absent.
func (s *Server) queryDate(r *http.Request, name string, def time.Time) (time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		if def.IsZero() {
			return time.Time{}, domain.Errorf(domain.KindFormat, "%s is required", name)
		}
		return def, nil
	}
	return timegrid.ParseDate(raw, s.loc())
}

func queryStatus(r *http.Request) (domain.Status, error) {
	raw := r.URL.Query().Get("status")
	if raw == "" {
		return "", nil
	}
	return domain.ParseStatus(raw)
}

func (s *Server) parseStart(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, domain.Errorf(domain.KindFormat, "start is required")
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation(localStartLayout, raw, s.loc())
	if err != nil {
		return time.Time{}, domain.Errorf(domain.KindFormat, "invalid start %q; expected RFC 3339 or YYYY-MM-DDTHH:MM", raw)
	}
	return t, nil
}

// GET /api/v1/availability?date=YYYY-MM-DD&service_id=N
func (s *Server) handleAvailability(w http.ResponseWriter, r *http.Request) {
	date, err := s.queryDate(r, "date", time.Time{})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	serviceID, err := queryID(r, "service_id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	slots, err := s.bookings.Availability(r.Context(), date, serviceID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newAvailabilityResponse(date.Format(timegrid.DateLayout), serviceID, slots))
}

// GET /api/v1/availability/workers?date=YYYY-MM-DD&time=HH:MM&service_id=N
func (s *Server) handleWorkersAt(w http.ResponseWriter, r *http.Request) {
	date, err := s.queryDate(r, "date", time.Time{})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	serviceID, err := queryID(r, "service_id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	c, err := timegrid.ParseClock(r.URL.Query().Get("time"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	workers, err := s.bookings.WorkersAt(r.Context(), date, c, serviceID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if workers == nil {
		workers = []domain.Worker{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"workers": workers})
}

// GET /api/v1/services
func (s *Server) handleServices(w http.ResponseWriter, r *http.Request) {
	services, err := s.bookings.ListServices(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	active := make([]domain.Service, 0, len(services))
	for _, svc := range services {
		if svc.Active {
			active = append(active, svc)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"services": active})
}

// GET /api/v1/workers
func (s *Server) handleWorkers(w http.ResponseWriter, r *http.Request) {
	workers, err := s.bookings.ListWorkers(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	active := make([]domain.Worker, 0, len(workers))
	for _, wk := range workers {
		if wk.Active {
			active = append(active, wk)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"workers": active})
}

// POST /api/v1/bookings
func (s *Server) handleCreateBooking(w http.ResponseWriter, r *http.Request, actor access.Actor) {
	var body CreateBookingRequest
	if err := decodeBody(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	if body.WorkerID <= 0 || body.ServiceID <= 0 {
		s.writeError(w, r, domain.Errorf(domain.KindFormat, "worker_id and service_id are required"))
		return
	}
	start, err := s.parseStart(body.Start)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	clientID, err := s.policy.BookFor(actor, body.ClientID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	key := body.IdempotencyKey
	if key == "" {
		key = strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	}

	b, err := s.bookings.CreateBooking(r.Context(), booking.Request{
		WorkerID:       body.WorkerID,
		ServiceID:      body.ServiceID,
		ClientID:       clientID,
		Start:          start,
		Notes:          body.Notes,
		IdempotencyKey: key,
	})
	if err != nil {
		metrics.IncBookingRejected(err)
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newBookingResponse(b, s.loc()))
}

// GET /api/v1/bookings?status=&from=&to=&limit=
func (s *Server) handleListBookings(w http.ResponseWriter, r *http.Request, actor access.Actor) {
	status, err := queryStatus(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	filter := domain.BookingFilter{Status: status}
	if raw := r.URL.Query().Get("from"); raw != "" {
		if filter.From, err = timegrid.ParseDate(raw, s.loc()); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		to, err := timegrid.ParseDate(raw, s.loc())
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		filter.To = to.AddDate(0, 0, 1)
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			s.writeError(w, r, domain.Errorf(domain.KindFormat, "invalid limit %q", raw))
			return
		}
		filter.Limit = limit
	}

	bookings, err := s.bookings.ListBookings(r.Context(), s.policy.Scope(actor, filter))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bookings": newBookingList(bookings, s.loc())})
}

func (s *Server) visibleBooking(r *http.Request, actor access.Actor) (*domain.Booking, error) {
	id, err := pathID(r, "id")
	if err != nil {
		return nil, err
	}
	b, err := s.bookings.GetBooking(r.Context(), id)
	if err != nil {
		return nil, err
	}
	if err := s.policy.CanView(actor, b); err != nil {
		return nil, err
	}
	return b, nil
}

// GET /api/v1/bookings/{id}
func (s *Server) handleGetBooking(w http.ResponseWriter, r *http.Request, actor access.Actor) {
	b, err := s.visibleBooking(r, actor)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newBookingResponse(b, s.loc()))
}

// PUT /api/v1/bookings/{id}/status
func (s *Server) handleUpdateStatus(w http.ResponseWriter, r *http.Request, actor access.Actor) {
	var body UpdateStatusRequest
	if err := decodeBody(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	to, err := domain.ParseStatus(body.Status)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	b, err := s.visibleBooking(r, actor)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.policy.CanTransition(actor, b, to); err != nil {
		s.writeError(w, r, err)
		return
	}

	updated, err := s.bookings.UpdateStatus(r.Context(), b.ID, to, body.Notes)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newBookingResponse(updated, s.loc()))
}

// DELETE /api/v1/bookings/{id}
func (s *Server) handleDeleteBooking(w http.ResponseWriter, r *http.Request, actor access.Actor) {
	b, err := s.visibleBooking(r, actor)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.policy.CanDelete(actor, b); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.bookings.DeleteBooking(r.Context(), b.ID); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GET /api/v1/workers/{id}/bookings?from=&to=&status=
// from defaults to today and to (inclusive) to agenda_days later.
func (s *Server) handleAgenda(w http.ResponseWriter, r *http.Request, actor access.Actor) {
	workerID, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.policy.CanViewAgenda(actor, workerID); err != nil {
		s.writeError(w, r, err)
		return
	}
	from, err := s.queryDate(r, "from", s.today())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	to, err := s.queryDate(r, "to", from.AddDate(0, 0, s.opts.AgendaDays-1))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	status, err := queryStatus(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	bookings, err := s.bookings.Agenda(r.Context(), workerID, from, to.AddDate(0, 0, 1), status)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"worker_id": workerID,
		"from":      from.Format(timegrid.DateLayout),
		"to":        to.Format(timegrid.DateLayout),
		"bookings":  newBookingList(bookings, s.loc()),
	})
}

// GET /api/v1/workers/{id}/stats?date=YYYY-MM-DD
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request, actor access.Actor) {
	workerID, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.policy.CanViewAgenda(actor, workerID); err != nil {
		s.writeError(w, r, err)
		return
	}
	date, err := s.queryDate(r, "date", s.today())
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	st, err := s.bookings.Stats(r.Context(), workerID, date)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// GET /api/v1/reports/bookings.xlsx?from=YYYY-MM-DD&to=YYYY-MM-DD
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request, actor access.Actor) {
	if err := s.policy.CanExport(actor); err != nil {
		s.writeError(w, r, err)
		return
	}
	if s.exporter == nil {
		s.writeError(w, r, domain.Errorf(domain.KindNotFound, "reports are disabled"))
		return
	}
	from, err := s.queryDate(r, "from", time.Time{})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	to, err := s.queryDate(r, "to", time.Time{})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	end := to.AddDate(0, 0, 1)

	var buf bytes.Buffer
	if err := s.exporter.Bookings(r.Context(), &buf, from, end); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="`+report.Filename(from, end)+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
