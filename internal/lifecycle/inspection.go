package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ukydev/fleet-safety/internal/models"
	"github.com/ukydev/fleet-safety/internal/policy"
)

// CreateInspectionParams describes a new supervisor inspection.
type CreateInspectionParams struct {
	VehicleID string
	Type      models.InspectionType
	// EquipmentCategory selects the checklist template; the vehicle's own
	// category is used when empty.
	EquipmentCategory string
	InspectorID       string
	OdometerReading   *float64
	Notes             string
}

// RecordItemParams is one checklist answer.
type RecordItemParams struct {
	InspectionID string
	ItemID       string
	Result       models.ItemResult
	// Severity overrides the catalog and generic rules for a failed item.
	Severity    models.DefectSeverity
	Description string
	Notes       string
}

// CompleteInspectionParams closes a checklist.
type CompleteInspectionParams struct {
	InspectionID      string
	Notes             string
	NextInspectionDue *time.Time
	// RaiseWorkOrder creates a corrective work order for open defects, on top
	// of Options.AutoCorrective.
	RaiseWorkOrder bool
}

// InspectionOutcome is the result of completing an inspection.
type InspectionOutcome struct {
	Inspection *models.Inspection `json:"inspection"`
	WorkOrder  *models.WorkOrder  `json:"work_order,omitempty"`
	CanOperate bool               `json:"can_operate"`
}

// CreateInspection builds a pending inspection with one pending item per
// template row.
func (s *Service) CreateInspection(ctx context.Context, sc Scope, p CreateInspectionParams) (*models.Inspection, error) {
	const op = "lifecycle.CreateInspection"
	if !models.IsValidInspectionType(p.Type) {
		return nil, fmt.Errorf("%s: %w", op, models.ValidationError("unknown inspection type %q", p.Type))
	}
	v, err := s.vehicle(ctx, sc, p.VehicleID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	category := p.EquipmentCategory
	if category == "" {
		category = v.Category
	}
	tpl, err := s.templates.Template(category)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, models.ValidationError("%v", err))
	}

	inspector := p.InspectorID
	if inspector == "" {
		inspector = sc.ActorID
	}
	now := s.now()
	in := &models.Inspection{
		BranchID:          branchFor(sc, v.BranchID),
		VehicleID:         p.VehicleID,
		Type:              p.Type,
		Source:            models.SourceSupervisor,
		EquipmentCategory: tpl.Key,
		TemplateVersion:   tpl.Version,
		Status:            models.InspectionPending,
		InspectorID:       inspector,
		OdometerReading:   p.OdometerReading,
		Items:             tpl.Instantiate(),
		Notes:             p.Notes,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	in.Recompute()

	if err := s.store.InsertInspection(ctx, in); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.log.WithFields(logrus.Fields{
		"inspection_id": in.ID.Hex(),
		"vehicle_id":    in.VehicleID,
		"category":      in.EquipmentCategory,
		"items":         in.TotalItems,
	}).Info("inspection created")
	return in, nil
}

// mutateInspection loads an inspection under its lock, applies fn and writes
// it back with the version check.
func (s *Service) mutateInspection(ctx context.Context, sc Scope, id string, fn func(in *models.Inspection, now time.Time) error) (*models.Inspection, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	in, err := s.inspection(ctx, sc, id)
	if err != nil {
		return nil, err
	}
	from := in.Status
	if err := fn(in, s.now()); err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"inspection_id": id,
			"status":        from,
		}).Warn("inspection guard")
		return nil, err
	}
	if err := s.store.UpdateInspection(ctx, in); err != nil {
		return nil, err
	}
	if from != in.Status {
		s.log.WithFields(logrus.Fields{
			"inspection_id": id,
			"vehicle_id":    in.VehicleID,
			"from":          from,
			"to":            in.Status,
		}).Info("inspection transition")
	}
	return in, nil
}

// StartInspection moves a pending inspection to in_progress.
func (s *Service) StartInspection(ctx context.Context, sc Scope, inspectionID string) (*models.Inspection, error) {
	const op = "lifecycle.StartInspection"
	in, err := s.mutateInspection(ctx, sc, inspectionID, func(in *models.Inspection, now time.Time) error {
		return in.Start(sc.ActorID, now)
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return in, nil
}

// RecordItemResult records one answer, classifies it and recomputes the
// inspection counters from the full item set.
func (s *Service) RecordItemResult(ctx context.Context, sc Scope, p RecordItemParams) (*models.Inspection, error) {
	const op = "lifecycle.RecordItemResult"
	if !p.Result.IsValid() {
		return nil, fmt.Errorf("%s: %w", op, models.ValidationError("unknown item result %q", p.Result))
	}
	in, err := s.mutateInspection(ctx, sc, p.InspectionID, func(in *models.Inspection, now time.Time) error {
		if err := in.EnsureRecordable(); err != nil {
			return err
		}
		item := in.Item(p.ItemID)
		if item == nil {
			return models.NotFoundError("inspection item", p.ItemID)
		}
		policy.Apply(item, policy.Outcome{
			Result:      p.Result,
			Severity:    p.Severity,
			Description: p.Description,
			Notes:       p.Notes,
		}, sc.ActorID, now)
		in.Recompute()
		in.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return in, nil
}

// CompleteInspection closes the checklist, writes the inspection dates back
// to the vehicle and optionally raises a corrective work order, all in one
// transaction.
func (s *Service) CompleteInspection(ctx context.Context, sc Scope, p CompleteInspectionParams) (*InspectionOutcome, error) {
	const op = "lifecycle.CompleteInspection"
	unlock := s.locks.Lock(p.InspectionID)
	defer unlock()

	var out InspectionOutcome
	err := s.store.WithTransaction(ctx, func(ctx context.Context) error {
		out = InspectionOutcome{}
		in, err := s.inspection(ctx, sc, p.InspectionID)
		if err != nil {
			return err
		}
		now := s.now()
		if err := in.Complete(sc.ActorID, p.Notes, p.NextInspectionDue, s.opts.InspectionIntervalMonths, now); err != nil {
			s.log.WithError(err).WithField("inspection_id", p.InspectionID).Warn("inspection guard")
			return err
		}
		if err := s.writeBackInspection(ctx, sc, in, now); err != nil {
			return err
		}
		if (p.RaiseWorkOrder || s.opts.AutoCorrective) && len(in.OpenDefects()) > 0 {
			wo, err := s.raiseCorrective(ctx, sc, in, now)
			if err != nil {
				return err
			}
			out.WorkOrder = wo
		}
		if err := s.store.UpdateInspection(ctx, in); err != nil {
			return err
		}
		out.Inspection = in
		out.CanOperate = in.CanVehicleOperate()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.afterCompletion(ctx, sc, &out)
	return &out, nil
}

// writeBackInspection stamps the vehicle's inspection dates and raises its
// odometer to the reading taken during the inspection.
func (s *Service) writeBackInspection(ctx context.Context, sc Scope, in *models.Inspection, now time.Time) error {
	v, err := s.vehicle(ctx, sc, in.VehicleID)
	if err != nil {
		return err
	}
	v.LastInspectionAt = &now
	v.NextInspectionDue = in.NextInspectionDue
	v.ApplyReading(in.OdometerReading, nil)
	v.UpdatedAt = now
	return s.store.UpdateVehicle(ctx, v)
}

func (s *Service) afterCompletion(ctx context.Context, sc Scope, out *InspectionOutcome) {
	in := out.Inspection
	fields := logrus.Fields{
		"inspection_id": in.ID.Hex(),
		"vehicle_id":    in.VehicleID,
		"result":        in.OverallResult,
		"critical":      in.CriticalDefects,
		"major":         in.MajorDefects,
		"minor":         in.MinorDefects,
	}
	s.log.WithFields(fields).Info("inspection completed")
	s.metrics.InspectionCompleted(in.Source, in.OverallResult)
	s.emit(ctx, sc, models.EventInspectionCompleted, in.BranchID, in.VehicleID, in.ID.Hex(), map[string]any{
		"overall_result": in.OverallResult,
		"source":         in.Source,
		"counts":         in.InspectionCounts,
	})
	if !out.CanOperate {
		s.log.WithFields(fields).Warn("vehicle grounded")
		s.metrics.VehicleGrounded()
		s.emit(ctx, sc, models.EventVehicleGrounded, in.BranchID, in.VehicleID, in.ID.Hex(), map[string]any{
			"critical_defects": in.CriticalDefects,
		})
	}
	if out.WorkOrder != nil {
		s.emitWorkOrderCreated(ctx, sc, out.WorkOrder)
	}
}

// ApproveInspection signs off a completed inspection.
func (s *Service) ApproveInspection(ctx context.Context, sc Scope, inspectionID, notes string) (*models.Inspection, error) {
	const op = "lifecycle.ApproveInspection"
	in, err := s.mutateInspection(ctx, sc, inspectionID, func(in *models.Inspection, now time.Time) error {
		return in.Approve(sc.ActorID, notes, now)
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.emit(ctx, sc, models.EventInspectionApproved, in.BranchID, in.VehicleID, in.ID.Hex(), map[string]any{
		"overall_result": in.OverallResult,
	})
	return in, nil
}

// RejectInspection refuses a completed inspection. The inspector raises a
// new inspection to resubmit.
func (s *Service) RejectInspection(ctx context.Context, sc Scope, inspectionID, reason string) (*models.Inspection, error) {
	const op = "lifecycle.RejectInspection"
	in, err := s.mutateInspection(ctx, sc, inspectionID, func(in *models.Inspection, now time.Time) error {
		return in.Reject(sc.ActorID, reason, now)
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.emit(ctx, sc, models.EventInspectionRejected, in.BranchID, in.VehicleID, in.ID.Hex(), map[string]any{
		"reason": reason,
	})
	return in, nil
}

// IsOverdueForApproval reports whether a completed inspection has waited
// longer than the approval SLA.
func (s *Service) IsOverdueForApproval(ctx context.Context, sc Scope, inspectionID string) (bool, error) {
	in, err := s.inspection(ctx, sc, inspectionID)
	if err != nil {
		return false, fmt.Errorf("lifecycle.IsOverdueForApproval: %w", err)
	}
	return in.IsOverdueForApproval(s.now(), s.opts.ApprovalSLA), nil
}

// CanVehicleOperate reports whether the inspection leaves the vehicle fit to
// operate. A critical defect grounds it before any approval.
func (s *Service) CanVehicleOperate(ctx context.Context, sc Scope, inspectionID string) (bool, error) {
	in, err := s.inspection(ctx, sc, inspectionID)
	if err != nil {
		return false, fmt.Errorf("lifecycle.CanVehicleOperate: %w", err)
	}
	return in.CanVehicleOperate(), nil
}

// GetInspection returns an inspection within scope.
func (s *Service) GetInspection(ctx context.Context, sc Scope, inspectionID string) (*models.Inspection, error) {
	in, err := s.inspection(ctx, sc, inspectionID)
	if err != nil {
		return nil, fmt.Errorf("lifecycle.GetInspection: %w", err)
	}
	return in, nil
}
