package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"github.com/ukydev/fleet-safety/internal/models"
	"github.com/ukydev/fleet-safety/internal/recurrence"
)

// CreateWorkOrderParams describes a maintenance event.
type CreateWorkOrderParams struct {
	VehicleID      string
	ScheduleID     string
	InspectionID   string
	Title          string
	Description    string
	Kind           models.MaintenanceKind
	Priority       string
	SafetyCritical bool
	PartsCost      float64
	LaborCost      float64
	VendorCost     float64
	Vendor         string
	Technician     string
	DueDate        *time.Time
}

// CompleteWorkOrderParams records the service event.
type CompleteWorkOrderParams struct {
	WorkOrderID string
	// ServiceDate defaults to now.
	ServiceDate *time.Time
	// Odometer and EngineHours are the meter readings at service. For a
	// meter-based schedule a missing reading defaults to the vehicle's current one.
	Odometer    *float64
	EngineHours *float64
	Notes       string
}

// WorkOrderCompletion is the result of completing a work order.
type WorkOrderCompletion struct {
	WorkOrder *models.WorkOrder           `json:"work_order"`
	Schedule  *models.MaintenanceSchedule `json:"schedule,omitempty"`
	// RepairedItems lists the inspection items closed out by this work order.
	RepairedItems []string `json:"repaired_items,omitempty"`
}

// CreateWorkOrder opens a work order, optionally linked to a schedule.
func (s *Service) CreateWorkOrder(ctx context.Context, sc Scope, p CreateWorkOrderParams) (*models.WorkOrder, error) {
	const op = "lifecycle.CreateWorkOrder"
	if strings.TrimSpace(p.Title) == "" {
		return nil, fmt.Errorf("%s: %w", op, models.ValidationError("work order title is required"))
	}
	if p.PartsCost < 0 || p.LaborCost < 0 || p.VendorCost < 0 {
		return nil, fmt.Errorf("%s: %w", op, models.ValidationError("costs must not be negative"))
	}
	v, err := s.vehicle(ctx, sc, p.VehicleID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	kind := p.Kind
	if p.ScheduleID != "" {
		ms, err := s.schedule(ctx, sc, p.ScheduleID)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if ms.VehicleID != p.VehicleID {
			return nil, fmt.Errorf("%s: %w", op, models.ValidationError("schedule %s belongs to vehicle %s", p.ScheduleID, ms.VehicleID))
		}
		if ms.Status == models.ScheduleCancelled {
			return nil, fmt.Errorf("%s: %w", op, scheduleTransition(ms, "attach work order", "schedule is cancelled"))
		}
		if kind == "" {
			kind = models.MaintenancePreventive
		}
	}
	if kind == "" {
		kind = models.MaintenanceCorrective
	}
	priority := p.Priority
	if priority == "" {
		priority = "medium"
	}

	now := s.now()
	wo := &models.WorkOrder{
		BranchID:       branchFor(sc, v.BranchID),
		VehicleID:      p.VehicleID,
		ScheduleID:     p.ScheduleID,
		InspectionID:   p.InspectionID,
		Title:          p.Title,
		Description:    p.Description,
		Kind:           kind,
		Priority:       priority,
		SafetyCritical: p.SafetyCritical,
		Status:         models.WorkOrderPending,
		PartsCost:      p.PartsCost,
		LaborCost:      p.LaborCost,
		VendorCost:     p.VendorCost,
		Vendor:         p.Vendor,
		Technician:     p.Technician,
		DueDate:        p.DueDate,
		CreatedBy:      sc.ActorID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	wo.RecalculateTotal()
	if err := s.store.InsertWorkOrder(ctx, wo); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.emitWorkOrderCreated(ctx, sc, wo)
	return wo, nil
}

func (s *Service) mutateWorkOrder(ctx context.Context, sc Scope, id string, fn func(wo *models.WorkOrder, now time.Time) error) (*models.WorkOrder, error) {
	var out *models.WorkOrder
	err := s.store.WithTransaction(ctx, func(ctx context.Context) error {
		wo, err := s.workOrder(ctx, sc, id)
		if err != nil {
			return err
		}
		from := wo.Status
		if err := fn(wo, s.now()); err != nil {
			s.log.WithError(err).WithFields(logrus.Fields{
				"work_order_id": id,
				"status":        from,
			}).Warn("work order guard")
			return err
		}
		if err := s.store.UpdateWorkOrder(ctx, wo); err != nil {
			return err
		}
		if from != wo.Status {
			s.log.WithFields(logrus.Fields{
				"work_order_id": id,
				"vehicle_id":    wo.VehicleID,
				"from":          from,
				"to":            wo.Status,
			}).Info("work order transition")
		}
		out = wo
		return nil
	})
	return out, err
}

// UpdateWorkOrderCosts replaces the cost components and recomputes the total.
func (s *Service) UpdateWorkOrderCosts(ctx context.Context, sc Scope, workOrderID string, parts, labor, vendor float64) (*models.WorkOrder, error) {
	wo, err := s.mutateWorkOrder(ctx, sc, workOrderID, func(wo *models.WorkOrder, now time.Time) error {
		return wo.SetCosts(parts, labor, vendor, now)
	})
	if err != nil {
		return nil, fmt.Errorf("lifecycle.UpdateWorkOrderCosts: %w", err)
	}
	return wo, nil
}

// ApproveWorkOrder authorises a pending work order.
func (s *Service) ApproveWorkOrder(ctx context.Context, sc Scope, workOrderID string) (*models.WorkOrder, error) {
	wo, err := s.mutateWorkOrder(ctx, sc, workOrderID, func(wo *models.WorkOrder, now time.Time) error {
		return wo.Approve(sc.ActorID, now)
	})
	if err != nil {
		return nil, fmt.Errorf("lifecycle.ApproveWorkOrder: %w", err)
	}
	return wo, nil
}

// StartWorkOrder marks the work as begun.
func (s *Service) StartWorkOrder(ctx context.Context, sc Scope, workOrderID string) (*models.WorkOrder, error) {
	wo, err := s.mutateWorkOrder(ctx, sc, workOrderID, func(wo *models.WorkOrder, now time.Time) error {
		return wo.Start(now)
	})
	if err != nil {
		return nil, fmt.Errorf("lifecycle.StartWorkOrder: %w", err)
	}
	return wo, nil
}

// VerifyWorkOrder records an independent quality check. Scheduling is
// unaffected.
func (s *Service) VerifyWorkOrder(ctx context.Context, sc Scope, workOrderID string, rating int, notes string) (*models.WorkOrder, error) {
	wo, err := s.mutateWorkOrder(ctx, sc, workOrderID, func(wo *models.WorkOrder, now time.Time) error {
		return wo.Verify(sc.ActorID, rating, notes, now)
	})
	if err != nil {
		return nil, fmt.Errorf("lifecycle.VerifyWorkOrder: %w", err)
	}
	return wo, nil
}

// CompleteWorkOrder completes a work order and, in the same transaction,
// advances its schedule, closes out the inspection defects it repaired and
// raises the vehicle meters. A work order advances its schedule at most once;
// a repeat returns ErrAlreadyApplied and changes nothing. A work order whose
// schedule was cancelled still completes but leaves the schedule untouched.
func (s *Service) CompleteWorkOrder(ctx context.Context, sc Scope, p CompleteWorkOrderParams) (*WorkOrderCompletion, error) {
	const op = "lifecycle.CompleteWorkOrder"
	peek, err := s.workOrder(ctx, sc, p.WorkOrderID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	// repair close-out touches the inspection, so take its lock before the
	// transaction like every other inspection writer
	if peek.InspectionID != "" {
		unlock := s.locks.Lock(peek.InspectionID)
		defer unlock()
	}

	var out WorkOrderCompletion
	err = s.store.WithTransaction(ctx, func(ctx context.Context) error {
		out = WorkOrderCompletion{}
		wo, err := s.workOrder(ctx, sc, p.WorkOrderID)
		if err != nil {
			return err
		}
		var ms *models.MaintenanceSchedule
		if wo.IsScheduled() {
			if ms, err = s.schedule(ctx, sc, wo.ScheduleID); err != nil {
				return err
			}
		}
		v, err := s.vehicle(ctx, sc, wo.VehicleID)
		if err != nil {
			return err
		}

		now := s.now()
		serviced := now
		if p.ServiceDate != nil {
			serviced = *p.ServiceDate
		}
		if p.Odometer != nil {
			wo.OdometerAtService = p.Odometer
		}
		if p.EngineHours != nil {
			wo.EngineHoursAtService = p.EngineHours
		}
		if ms != nil {
			defaultMeterReading(wo, ms.RecurrenceType, v)
		}
		if p.Notes != "" {
			wo.Notes = p.Notes
		}
		if err := wo.Complete(sc.ActorID, serviced, now); err != nil {
			if ms != nil && ms.HasApplied(wo.ID.Hex()) {
				return &models.AlreadyAppliedError{WorkOrderID: wo.ID.Hex(), ScheduleID: ms.ID.Hex()}
			}
			return err
		}
		if err := s.store.UpdateWorkOrder(ctx, wo); err != nil {
			return err
		}
		out.WorkOrder = wo

		if ms != nil && ms.Status == models.ScheduleCancelled {
			// the work was done and its cost counts; only the recurrence is retired
			s.log.WithFields(logrus.Fields{
				"work_order_id": wo.ID.Hex(),
				"schedule_id":   ms.ID.Hex(),
			}).Warn("schedule cancelled, completing work order without advancing it")
			ms = nil
		}
		if ms != nil {
			if err := recurrence.Advance(ms, *wo, now); err != nil {
				return err
			}
			if err := s.store.UpdateSchedule(ctx, ms); err != nil {
				return err
			}
			out.Schedule = ms
		}

		if wo.InspectionID != "" {
			repaired, err := s.closeOutRepairs(ctx, sc, wo, now)
			if err != nil {
				return err
			}
			out.RepairedItems = repaired
		}

		if v.ApplyReading(wo.OdometerAtService, wo.EngineHoursAtService) {
			v.UpdatedAt = now
			if err := s.store.UpdateVehicle(ctx, v); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, models.ErrAlreadyApplied) {
			s.log.WithField("work_order_id", p.WorkOrderID).Warn("work order already applied")
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	wo := out.WorkOrder
	s.log.WithFields(logrus.Fields{
		"work_order_id": wo.ID.Hex(),
		"vehicle_id":    wo.VehicleID,
		"total_cost":    wo.TotalCost,
		"schedule_id":   wo.ScheduleID,
	}).Info("work order completed")
	s.metrics.WorkOrderCompleted(wo.Kind, wo.TotalCost)
	s.emit(ctx, sc, models.EventWorkOrderCompleted, wo.BranchID, wo.VehicleID, wo.ID.Hex(), map[string]any{
		"total_cost":     wo.TotalCost,
		"service_date":   wo.ServiceDate,
		"schedule_id":    wo.ScheduleID,
		"repaired_items": out.RepairedItems,
	})
	if ms := out.Schedule; ms != nil {
		s.metrics.ScheduleAdvanced(ms.RecurrenceType)
		s.emit(ctx, sc, models.EventScheduleAdvanced, ms.BranchID, ms.VehicleID, ms.ID.Hex(), map[string]any{
			"work_order_id":   wo.ID.Hex(),
			"completed_count": ms.CompletedCount,
			"next_due_date":   ms.NextDueDate,
			"status":          ms.Status,
		})
	}
	return &out, nil
}

func defaultMeterReading(wo *models.WorkOrder, typ models.RecurrenceType, v *models.Vehicle) {
	switch typ {
	case models.RecurrenceOdometer:
		if wo.OdometerAtService == nil {
			reading := v.OdometerReading
			wo.OdometerAtService = &reading
		}
	case models.RecurrenceEngineHours:
		if wo.EngineHoursAtService == nil {
			reading := v.EngineHours
			wo.EngineHoursAtService = &reading
		}
	}
}

// closeOutRepairs marks the inspection items repaired by wo as done. Items
// are the ones named on the work order, or else the ones linked to it.
func (s *Service) closeOutRepairs(ctx context.Context, sc Scope, wo *models.WorkOrder, now time.Time) ([]string, error) {
	in, err := s.inspection(ctx, sc, wo.InspectionID)
	if err != nil {
		return nil, err
	}
	woID := wo.ID.Hex()
	var repaired []string
	for i := range in.Items {
		item := &in.Items[i]
		linked := lo.Contains(wo.InspectionItemIDs, item.ID.Hex()) ||
			(len(wo.InspectionItemIDs) == 0 && item.RepairWorkOrderID == woID)
		if !linked || !item.HasOpenDefect() {
			continue
		}
		item.RepairCompleted = true
		item.RepairCompletedAt = &now
		item.RepairCompletedBy = sc.ActorID
		item.RepairWorkOrderID = woID
		repaired = append(repaired, item.ID.Hex())
	}
	if len(repaired) == 0 {
		return nil, nil
	}
	in.UpdatedAt = now
	if err := s.store.UpdateInspection(ctx, in); err != nil {
		return nil, err
	}
	return repaired, nil
}

// GetWorkOrder returns a work order within scope.
func (s *Service) GetWorkOrder(ctx context.Context, sc Scope, workOrderID string) (*models.WorkOrder, error) {
	wo, err := s.workOrder(ctx, sc, workOrderID)
	if err != nil {
		return nil, fmt.Errorf("lifecycle.GetWorkOrder: %w", err)
	}
	return wo, nil
}
