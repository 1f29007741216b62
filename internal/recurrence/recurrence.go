// Package recurrence computes when a maintenance schedule falls due again,
// by calendar, odometer or engine hours, and advances a schedule once per
// completed work order.
package recurrence

import (
	"fmt"
	"time"

	"github.com/ukydev/fleet-safety/internal/models"
)

// multiplier returns the whole number of base periods a time-based schedule
// repeats over. Anything below one means a single period.
func multiplier(interval float64) int {
	n := int(interval)
	if n < 1 {
		return 1
	}
	return n
}

// addMonths adds months, clamping to the last day of the target month so
// that e.g. Jan 31 + 1 month is Feb 28/29 rather than early March.
func addMonths(t time.Time, months int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(months), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	last := first.AddDate(0, 1, -1).Day()
	if d > last {
		d = last
	}
	return time.Date(first.Year(), first.Month(), d, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

// Offset adds one recurrence step of the given type to from. ok is false for
// `once` and for meter-based types, which have no calendar step.
func Offset(typ models.RecurrenceType, interval float64, from time.Time) (next time.Time, ok bool) {
	n := multiplier(interval)
	switch typ {
	case models.RecurrenceDaily:
		return from.AddDate(0, 0, n), true
	case models.RecurrenceWeekly:
		return from.AddDate(0, 0, 7*n), true
	case models.RecurrenceMonthly:
		return addMonths(from, n), true
	case models.RecurrenceQuarterly:
		return addMonths(from, 3*n), true
	case models.RecurrenceSemiAnnual:
		return addMonths(from, 6*n), true
	case models.RecurrenceAnnual:
		return addMonths(from, 12*n), true
	default:
		return time.Time{}, false
	}
}

// NextDueDate returns the next due date after a service on completedOn, or
// nil when the schedule has no further calendar due date.
func NextDueDate(s models.MaintenanceSchedule, completedOn time.Time) *time.Time {
	next, ok := Offset(s.RecurrenceType, s.RecurrenceInterval, completedOn)
	if !ok {
		return nil
	}
	return &next
}

// MeterStatus is the on-demand due evaluation of an odometer or engine-hours schedule.
type MeterStatus struct {
	ScheduleID string                `json:"schedule_id"`
	VehicleID  string                `json:"vehicle_id"`
	Name       string                `json:"name"`
	Type       models.RecurrenceType `json:"type"`
	Current    float64               `json:"current"`
	DueAt      float64               `json:"due_at"`
	Remaining  float64               `json:"remaining"`
	Due        bool                  `json:"due"`
}

// MeterDue compares the current meter value against the due point. Before any
// completion the due point is baseline + interval; afterwards it is the reading
// recorded on the last work order + interval.
func MeterDue(s models.MaintenanceSchedule, baseline, current float64) MeterStatus {
	from := baseline
	if s.LastCompletedReading != nil {
		from = *s.LastCompletedReading
	}
	dueAt := from + s.RecurrenceInterval
	return MeterStatus{
		ScheduleID: s.ID.Hex(),
		VehicleID:  s.VehicleID,
		Name:       s.Name,
		Type:       s.RecurrenceType,
		Current:    current,
		DueAt:      dueAt,
		Remaining:  dueAt - current,
		Due:        current >= dueAt,
	}
}

// MeterDueForVehicle picks the odometer or engine-hours meter of v that
// matches the schedule type.
func MeterDueForVehicle(s models.MaintenanceSchedule, v models.Vehicle) (MeterStatus, error) {
	switch s.RecurrenceType {
	case models.RecurrenceOdometer:
		return MeterDue(s, v.InitialOdometer, v.OdometerReading), nil
	case models.RecurrenceEngineHours:
		return MeterDue(s, v.InitialEngineHours, v.EngineHours), nil
	default:
		return MeterStatus{}, models.ValidationError("schedule %s is %s, not meter based", s.ID.Hex(), s.RecurrenceType)
	}
}

// Advance applies a completed work order to its schedule: bumps the
// completion count, adds the cost, records the last service and recomputes the
// next due date. A work order is applied at most once; a repeat returns
// ErrAlreadyApplied and leaves the schedule untouched. The last completion
// date and reading only move forward.
func Advance(s *models.MaintenanceSchedule, wo models.WorkOrder, now time.Time) error {
	woID := wo.ID.Hex()
	if s.HasApplied(woID) {
		return &models.AlreadyAppliedError{WorkOrderID: woID, ScheduleID: s.ID.Hex()}
	}
	if wo.Status != models.WorkOrderCompleted && wo.Status != models.WorkOrderVerified {
		return models.ValidationError("work order %s is %s, not completed", woID, wo.Status)
	}
	if wo.ServiceDate == nil {
		return models.ValidationError("work order %s has no service date", woID)
	}
	if !s.RecurrenceType.IsValid() {
		return fmt.Errorf("schedule %s: unknown recurrence type %q", s.ID.Hex(), s.RecurrenceType)
	}
	if s.Status == models.ScheduleCancelled {
		return &models.TransitionError{Entity: "schedule", ID: s.ID.Hex(), From: string(s.Status), Action: "advance"}
	}

	s.CompletedCount++
	s.ActualTotalCost += wo.TotalCost
	s.LastWorkOrderID = woID
	s.AppliedWorkOrderIDs = append(s.AppliedWorkOrderIDs, woID)
	// a late-recorded older service never moves the schedule backwards
	if s.LastCompletedDate == nil || wo.ServiceDate.After(*s.LastCompletedDate) {
		serviced := *wo.ServiceDate
		s.LastCompletedDate = &serviced
	}

	switch s.RecurrenceType {
	case models.RecurrenceOdometer:
		s.LastCompletedReading = laterReading(s.LastCompletedReading, wo.OdometerAtService)
		s.NextDueDate = nil
	case models.RecurrenceEngineHours:
		s.LastCompletedReading = laterReading(s.LastCompletedReading, wo.EngineHoursAtService)
		s.NextDueDate = nil
	default:
		s.NextDueDate = NextDueDate(*s, *s.LastCompletedDate)
		if s.NextDueDate == nil && s.Status == models.ScheduleActive {
			// once: nothing further is due
			s.Status = models.SchedulePaused
		}
	}
	s.UpdatedAt = now
	return nil
}

func laterReading(last, at *float64) *float64 {
	if at == nil || (last != nil && *last >= *at) {
		return last
	}
	reading := *at
	return &reading
}
