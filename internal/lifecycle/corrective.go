package lifecycle

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"github.com/ukydev/fleet-safety/internal/models"
)

var severityRank = map[models.DefectSeverity]int{
	models.SeverityMinor:    1,
	models.SeverityMajor:    2,
	models.SeverityCritical: 3,
}

func priorityFor(sev models.DefectSeverity) string {
	switch sev {
	case models.SeverityCritical:
		return "critical"
	case models.SeverityMajor:
		return "high"
	case models.SeverityMinor:
		return "medium"
	default:
		return "low"
	}
}

// raiseCorrective inserts one corrective work order covering every open
// defect of the inspection and links the two. The caller persists the
// inspection.
func (s *Service) raiseCorrective(ctx context.Context, sc Scope, in *models.Inspection, now time.Time) (*models.WorkOrder, error) {
	if in.CorrectiveWorkOrderID != "" {
		return nil, &models.AlreadyAppliedError{
			WorkOrderID: in.CorrectiveWorkOrderID,
			Detail:      fmt.Sprintf("inspection %s already raised corrective work order %s", in.ID.Hex(), in.CorrectiveWorkOrderID),
		}
	}
	if in.Status != models.InspectionCompleted && in.Status != models.InspectionApproved {
		return nil, &models.TransitionError{
			Entity: "inspection",
			ID:     in.ID.Hex(),
			From:   string(in.Status),
			Action: "raise corrective work order",
			Reason: "inspection must be completed or approved",
		}
	}
	defects := in.OpenDefects()
	if len(defects) == 0 {
		return nil, models.ValidationError("inspection %s has no open defects", in.ID.Hex())
	}

	worst := lo.MaxBy(defects, func(a, b models.InspectionItem) bool {
		return severityRank[a.DefectSeverity] > severityRank[b.DefectSeverity]
	})
	var due *time.Time
	for _, d := range defects {
		if d.RepairDueDate != nil && (due == nil || d.RepairDueDate.Before(*due)) {
			t := *d.RepairDueDate
			due = &t
		}
	}
	lines := lo.Map(defects, func(d models.InspectionItem, _ int) string {
		line := fmt.Sprintf("[%s] %s / %s", d.DefectSeverity, d.Category, d.Name)
		if d.DefectDescription != "" {
			line += ": " + d.DefectDescription
		}
		return line
	})

	wo := &models.WorkOrder{
		BranchID:     in.BranchID,
		VehicleID:    in.VehicleID,
		InspectionID: in.ID.Hex(),
		InspectionItemIDs: lo.Map(defects, func(d models.InspectionItem, _ int) string {
			return d.ID.Hex()
		}),
		Title:          fmt.Sprintf("Repair %d defect(s) from %s inspection", len(defects), in.Type),
		Description:    strings.Join(lines, "\n"),
		Kind:           models.MaintenanceCorrective,
		Priority:       priorityFor(worst.DefectSeverity),
		SafetyCritical: lo.SomeBy(defects, func(d models.InspectionItem) bool { return d.SafetyCritical }),
		Status:         models.WorkOrderPending,
		DueDate:        due,
		CreatedBy:      sc.ActorID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	wo.RecalculateTotal()
	if err := s.store.InsertWorkOrder(ctx, wo); err != nil {
		return nil, err
	}

	woID := wo.ID.Hex()
	for _, d := range defects {
		if item := in.Item(d.ID.Hex()); item != nil {
			item.RepairWorkOrderID = woID
		}
	}
	in.CorrectiveWorkOrderID = woID
	in.UpdatedAt = now
	return wo, nil
}

// CreateWorkOrderFromInspectionDefects synthesises a single corrective work
// order for the failed, repair-required items of a completed inspection.
// It is safety-critical iff any contributing item is.
func (s *Service) CreateWorkOrderFromInspectionDefects(ctx context.Context, sc Scope, inspectionID string) (*models.WorkOrder, error) {
	const op = "lifecycle.CreateWorkOrderFromInspectionDefects"
	unlock := s.locks.Lock(inspectionID)
	defer unlock()

	var wo *models.WorkOrder
	err := s.store.WithTransaction(ctx, func(ctx context.Context) error {
		in, err := s.inspection(ctx, sc, inspectionID)
		if err != nil {
			return err
		}
		wo, err = s.raiseCorrective(ctx, sc, in, s.now())
		if err != nil {
			return err
		}
		return s.store.UpdateInspection(ctx, in)
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.emitWorkOrderCreated(ctx, sc, wo)
	return wo, nil
}

func (s *Service) emitWorkOrderCreated(ctx context.Context, sc Scope, wo *models.WorkOrder) {
	s.log.WithFields(logrus.Fields{
		"work_order_id":   wo.ID.Hex(),
		"vehicle_id":      wo.VehicleID,
		"kind":            wo.Kind,
		"safety_critical": wo.SafetyCritical,
	}).Info("work order created")
	s.emit(ctx, sc, models.EventWorkOrderCreated, wo.BranchID, wo.VehicleID, wo.ID.Hex(), map[string]any{
		"kind":            wo.Kind,
		"priority":        wo.Priority,
		"safety_critical": wo.SafetyCritical,
		"inspection_id":   wo.InspectionID,
		"schedule_id":     wo.ScheduleID,
	})
}
