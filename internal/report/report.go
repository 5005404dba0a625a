// Package report exports bookings to an Excel workbook.
package report

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"barberbook/internal/domain"
	"barberbook/internal/timegrid"
)

// Source provides the data for an export.
type Source interface {
	ListBookings(ctx context.Context, filter domain.BookingFilter) ([]domain.Booking, error)
	ListWorkers(ctx context.Context) ([]domain.Worker, error)
	ListServices(ctx context.Context) ([]domain.Service, error)
}

// Exporter writes booking workbooks.
type Exporter struct {
	source Source
	loc    *time.Location
	logger zerolog.Logger
}

// NewExporter creates an exporter rendering times in loc.
func NewExporter(source Source, loc *time.Location, logger *zerolog.Logger) *Exporter {
	if loc == nil {
		loc = time.UTC
	}
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "report").Logger()
	}
	return &Exporter{source: source, loc: loc, logger: l}
}

// Filename names the workbook for the range [from, to).
func Filename(from, to time.Time) string {
	return fmt.Sprintf("bookings_%s_%s.xlsx", from.Format(timegrid.DateLayout), to.Format(timegrid.DateLayout))
}

// Bookings writes a "Bookings" sheet with every booking starting in [from, to)
// and a "Summary" sheet with per-worker counts by status.
func (e *Exporter) Bookings(ctx context.Context, out io.Writer, from, to time.Time) error {
	if !from.Before(to) {
		return domain.Errorf(domain.KindFormat, "report range must have from before to")
	}

	bookings, err := e.source.ListBookings(ctx, domain.BookingFilter{From: from, To: to})
	if err != nil {
		return fmt.Errorf("list bookings: %w", err)
	}
	workers, err := e.source.ListWorkers(ctx)
	if err != nil {
		return fmt.Errorf("list workers: %w", err)
	}
	services, err := e.source.ListServices(ctx)
	if err != nil {
		return fmt.Errorf("list services: %w", err)
	}

	workerNames := make(map[int64]string, len(workers))
	for _, w := range workers {
		workerNames[w.ID] = w.Name
	}
	serviceNames := make(map[int64]string, len(services))
	for _, s := range services {
		serviceNames[s.ID] = s.Name
	}

	w := newSheetWriter()
	defer func() { _ = w.close() }()

	if err := w.addSheet("Bookings"); err != nil {
		return err
	}
	if err := w.header("ID", "Date", "Start", "End", "Worker", "Service", "Client", "Duration (min)", "Status", "Notes"); err != nil {
		return err
	}
	for _, b := range bookings {
		start := b.Start.In(e.loc)
		end := b.End().In(e.loc)
		row := []any{
			b.ID,
			start.Format(timegrid.DateLayout),
			start.Format("15:04"),
			end.Format("15:04"),
			nameOr(workerNames, b.WorkerID),
			nameOr(serviceNames, b.ServiceID),
			b.ClientID,
			b.DurationMinutes,
			string(b.Status),
			b.Notes,
		}
		if err := w.write(row); err != nil {
			return err
		}
	}

	if err := w.addSheet("Summary"); err != nil {
		return err
	}
	if err := w.header("Worker", "Total", "Pending", "Completed", "Cancelled"); err != nil {
		return err
	}
	for _, s := range summarize(bookings) {
		row := []any{
			nameOr(workerNames, s.workerID),
			s.total,
			s.byStatus[domain.StatusPending],
			s.byStatus[domain.StatusCompleted],
			s.byStatus[domain.StatusCancelled],
		}
		if err := w.write(row); err != nil {
			return err
		}
	}

	if err := w.save(out); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	e.logger.Info().
		Int("bookings", len(bookings)).
		Time("from", from).
		Time("to", to).
		Msg("bookings exported")
	return nil
}

type workerSummary struct {
	workerID int64
	total    int
	byStatus map[domain.Status]int
}

func summarize(bookings []domain.Booking) []workerSummary {
	idx := make(map[int64]*workerSummary)
	for _, b := range bookings {
		s, ok := idx[b.WorkerID]
		if !ok {
			s = &workerSummary{workerID: b.WorkerID, byStatus: make(map[domain.Status]int)}
			idx[b.WorkerID] = s
		}
		s.total++
		s.byStatus[b.Status]++
	}

	out := make([]workerSummary, 0, len(idx))
	for _, s := range idx {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].workerID < out[j].workerID })
	return out
}

func nameOr(names map[int64]string, id int64) string {
	if n, ok := names[id]; ok {
		return n
	}
	return fmt.Sprintf("#%d", id)
}
