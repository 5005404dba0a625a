package availability

import (
	"time"

	"barberbook/internal/domain"
	"barberbook/internal/timegrid"
)

// Free enumerates the grid points of w's working window on date and keeps
// those that pass Check. Pure: the result depends only on the arguments.
func Free(grid *timegrid.Grid, date, now time.Time, w domain.Worker, durationMinutes int, busy []domain.Booking) []timegrid.Clock {
	if !w.Active {
		return nil
	}

	var out []timegrid.Clock
	for _, t := range grid.Candidates(w.WorkStart, w.WorkEnd, durationMinutes) {
		if Check(grid, now, w, durationMinutes, grid.At(date, t), busy) == nil {
			out = append(out, t)
		}
	}
	return out
}

// Check reports why a booking of w starting at start could not be committed,
// or nil if it could. Checks run in a fixed order so callers get a stable kind:
// past, working window, break, grid alignment, ledger.
func Check(grid *timegrid.Grid, now time.Time, w domain.Worker, durationMinutes int, start time.Time, busy []domain.Booking) error {
	if !start.After(now) {
		return domain.ErrPastSlot
	}

	end := start.Add(time.Duration(durationMinutes) * time.Minute)
	if !grid.SameDay(start, end.Add(-time.Nanosecond)) {
		return domain.ErrOutsideWorkingHours
	}
	if err := CheckSchedule(w, grid.ClockOf(start), durationMinutes); err != nil {
		return err
	}
	if !grid.OnGrid(start) {
		return domain.Errorf(domain.KindFormat, "start %s is not aligned to the %d-minute grid",
			start.In(grid.Location()).Format("15:04"), grid.Step())
	}
	return CheckLedger(domain.Interval{Start: start, End: end}, busy)
}

// CheckSchedule validates [start, start+duration) against w's working and
// break windows.
func CheckSchedule(w domain.Worker, start timegrid.Clock, durationMinutes int) error {
	end := start.Add(durationMinutes)
	if start < w.WorkStart || end > w.WorkEnd {
		return domain.Errorf(domain.KindOutsideWorkingHours, "%s-%s is outside working hours %s-%s",
			start, end, w.WorkStart, w.WorkEnd)
	}
	if start < w.BreakEnd && w.BreakStart < end {
		return domain.Errorf(domain.KindBreakConflict, "%s-%s overlaps break %s-%s",
			start, end, w.BreakStart, w.BreakEnd)
	}
	return nil
}

// CheckLedger fails if iv overlaps any active booking in busy.
func CheckLedger(iv domain.Interval, busy []domain.Booking) error {
	for _, b := range busy {
		if !b.Status.Active() {
			continue
		}
		if iv.Overlaps(b.Interval()) {
			return domain.Errorf(domain.KindDoubleBooking, "worker %d already has booking %d at %s",
				b.WorkerID, b.ID, b.Start.Format(time.RFC3339))
		}
	}
	return nil
}
