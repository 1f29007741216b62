package lifecycle

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ukydev/fleet-safety/internal/db"
	"github.com/ukydev/fleet-safety/internal/models"
	"github.com/ukydev/fleet-safety/internal/recurrence"
)

// CreateScheduleParams describes a recurring maintenance obligation.
type CreateScheduleParams struct {
	VehicleID          string
	Name               string
	ServiceType        string
	Description        string
	RecurrenceType     models.RecurrenceType
	RecurrenceInterval float64
	// StartDate is the first due date of a time-based schedule. Defaults to
	// one period from now (or now for once).
	StartDate     *time.Time
	EstimatedCost float64
}

// CreateSchedule registers a schedule. Time-based schedules get a due date
// immediately; meter-based ones are evaluated against vehicle readings.
func (s *Service) CreateSchedule(ctx context.Context, sc Scope, p CreateScheduleParams) (*models.MaintenanceSchedule, error) {
	const op = "lifecycle.CreateSchedule"
	if strings.TrimSpace(p.Name) == "" {
		return nil, fmt.Errorf("%s: %w", op, models.ValidationError("schedule name is required"))
	}
	if !p.RecurrenceType.IsValid() {
		return nil, fmt.Errorf("%s: %w", op, models.ValidationError("unknown recurrence type %q", p.RecurrenceType))
	}
	if p.RecurrenceType.IsMeterBased() && p.RecurrenceInterval <= 0 {
		return nil, fmt.Errorf("%s: %w", op, models.ValidationError("%s schedules need a positive interval", p.RecurrenceType))
	}
	if p.EstimatedCost < 0 {
		return nil, fmt.Errorf("%s: %w", op, models.ValidationError("estimated cost must not be negative"))
	}
	v, err := s.vehicle(ctx, sc, p.VehicleID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	now := s.now()
	ms := &models.MaintenanceSchedule{
		BranchID:            branchFor(sc, v.BranchID),
		VehicleID:           p.VehicleID,
		Name:                p.Name,
		ServiceType:         p.ServiceType,
		Description:         p.Description,
		RecurrenceType:      p.RecurrenceType,
		RecurrenceInterval:  p.RecurrenceInterval,
		AppliedWorkOrderIDs: []string{},
		EstimatedCost:       p.EstimatedCost,
		Status:              models.ScheduleActive,
		CreatedBy:           sc.ActorID,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if ms.RecurrenceType.IsTimeBased() {
		ms.NextDueDate = firstDueDate(*ms, p.StartDate, now)
	}
	if err := s.store.InsertSchedule(ctx, ms); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.log.WithFields(logrus.Fields{
		"schedule_id": ms.ID.Hex(),
		"vehicle_id":  ms.VehicleID,
		"recurrence":  ms.RecurrenceType,
		"interval":    ms.RecurrenceInterval,
	}).Info("schedule created")
	return ms, nil
}

func firstDueDate(ms models.MaintenanceSchedule, start *time.Time, now time.Time) *time.Time {
	if start != nil {
		t := *start
		return &t
	}
	if next := recurrence.NextDueDate(ms, now); next != nil {
		return next
	}
	return &now
}

func (s *Service) mutateSchedule(ctx context.Context, sc Scope, id string, fn func(ms *models.MaintenanceSchedule, now time.Time) error) (*models.MaintenanceSchedule, error) {
	var out *models.MaintenanceSchedule
	err := s.store.WithTransaction(ctx, func(ctx context.Context) error {
		ms, err := s.schedule(ctx, sc, id)
		if err != nil {
			return err
		}
		from := ms.Status
		now := s.now()
		if err := fn(ms, now); err != nil {
			return err
		}
		ms.UpdatedAt = now
		if err := s.store.UpdateSchedule(ctx, ms); err != nil {
			return err
		}
		s.log.WithFields(logrus.Fields{
			"schedule_id": id,
			"from":        from,
			"to":          ms.Status,
		}).Info("schedule transition")
		out = ms
		return nil
	})
	return out, err
}

func scheduleTransition(ms *models.MaintenanceSchedule, action, reason string) error {
	return &models.TransitionError{Entity: "schedule", ID: ms.ID.Hex(), From: string(ms.Status), Action: action, Reason: reason}
}

// PauseSchedule suspends an active schedule.
func (s *Service) PauseSchedule(ctx context.Context, sc Scope, scheduleID string) (*models.MaintenanceSchedule, error) {
	ms, err := s.mutateSchedule(ctx, sc, scheduleID, func(ms *models.MaintenanceSchedule, _ time.Time) error {
		if ms.Status != models.ScheduleActive {
			return scheduleTransition(ms, "pause", "schedule must be active")
		}
		ms.Status = models.SchedulePaused
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("lifecycle.PauseSchedule: %w", err)
	}
	return ms, nil
}

// ResumeSchedule reactivates a paused schedule. A time-based schedule without
// a due date is given one period from now; a completed once schedule stays
// exhausted.
func (s *Service) ResumeSchedule(ctx context.Context, sc Scope, scheduleID string) (*models.MaintenanceSchedule, error) {
	ms, err := s.mutateSchedule(ctx, sc, scheduleID, func(ms *models.MaintenanceSchedule, now time.Time) error {
		if ms.Status != models.SchedulePaused {
			return scheduleTransition(ms, "resume", "schedule must be paused")
		}
		if ms.RecurrenceType == models.RecurrenceOnce && ms.CompletedCount > 0 {
			return scheduleTransition(ms, "resume", "one-off schedule already completed")
		}
		if ms.RecurrenceType.IsTimeBased() && ms.NextDueDate == nil {
			ms.NextDueDate = firstDueDate(*ms, nil, now)
		}
		ms.Status = models.ScheduleActive
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("lifecycle.ResumeSchedule: %w", err)
	}
	return ms, nil
}

// CancelSchedule retires a schedule for good.
func (s *Service) CancelSchedule(ctx context.Context, sc Scope, scheduleID string) (*models.MaintenanceSchedule, error) {
	ms, err := s.mutateSchedule(ctx, sc, scheduleID, func(ms *models.MaintenanceSchedule, _ time.Time) error {
		if ms.Status == models.ScheduleCancelled {
			return scheduleTransition(ms, "cancel", "schedule is already cancelled")
		}
		ms.Status = models.ScheduleCancelled
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("lifecycle.CancelSchedule: %w", err)
	}
	return ms, nil
}

// CheckMeterSchedules records a meter reading against the vehicle (meters
// only move forward) and evaluates every active odometer and engine-hours
// schedule of that vehicle. Schedules found due emit schedule.meter_due.
func (s *Service) CheckMeterSchedules(ctx context.Context, sc Scope, reading models.MeterReading) ([]recurrence.MeterStatus, error) {
	const op = "lifecycle.CheckMeterSchedules"
	var (
		statuses []recurrence.MeterStatus
		branchID string
	)
	err := s.store.WithTransaction(ctx, func(ctx context.Context) error {
		statuses = nil
		v, err := s.vehicle(ctx, sc, reading.VehicleID)
		if err != nil {
			return err
		}
		branchID = v.BranchID
		if v.ApplyReading(reading.Odometer, reading.EngineHours) {
			if reading.Location != nil {
				v.CurrentLocation = *reading.Location
			}
			v.UpdatedAt = s.now()
			if err := s.store.UpdateVehicle(ctx, v); err != nil {
				return err
			}
		}
		schedules, err := s.store.FindSchedules(ctx, db.ScheduleFilter{
			VehicleID:       reading.VehicleID,
			Statuses:        []models.ScheduleStatus{models.ScheduleActive},
			RecurrenceTypes: models.MeterRecurrenceTypes,
		})
		if err != nil {
			return err
		}
		for _, ms := range schedules {
			st, err := recurrence.MeterDueForVehicle(ms, *v)
			if err != nil {
				return err
			}
			statuses = append(statuses, st)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	for _, st := range statuses {
		if !st.Due {
			continue
		}
		s.log.WithFields(logrus.Fields{
			"schedule_id": st.ScheduleID,
			"vehicle_id":  st.VehicleID,
			"current":     st.Current,
			"due_at":      st.DueAt,
		}).Info("meter schedule due")
		s.emit(ctx, sc, models.EventScheduleMeterDue, branchID, st.VehicleID, st.ScheduleID, st)
	}
	return statuses, nil
}
