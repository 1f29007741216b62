package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// WorkOrderStatus is the lifecycle state of a work order.
type WorkOrderStatus string

const (
	WorkOrderPending    WorkOrderStatus = "pending"
	WorkOrderApproved   WorkOrderStatus = "approved"
	WorkOrderInProgress WorkOrderStatus = "in_progress"
	WorkOrderCompleted  WorkOrderStatus = "completed"
	WorkOrderVerified   WorkOrderStatus = "verified"
)

// IsDone reports whether the work has been carried out.
func (s WorkOrderStatus) IsDone() bool {
	return s == WorkOrderCompleted || s == WorkOrderVerified
}

// MaintenanceKind separates planned service from defect repair.
type MaintenanceKind string

const (
	MaintenancePreventive MaintenanceKind = "preventive"
	MaintenanceCorrective MaintenanceKind = "corrective"
)

// WorkOrder is a single maintenance event against a vehicle.
type WorkOrder struct {
	ID                   primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	BranchID             string             `bson:"branch_id,omitempty" json:"branch_id,omitempty"`
	VehicleID            string             `bson:"vehicle_id" json:"vehicle_id"`
	ScheduleID           string             `bson:"schedule_id,omitempty" json:"schedule_id,omitempty"`
	InspectionID         string             `bson:"inspection_id,omitempty" json:"inspection_id,omitempty"`
	InspectionItemIDs    []string           `bson:"inspection_item_ids,omitempty" json:"inspection_item_ids,omitempty"`
	Title                string             `bson:"title" json:"title"`
	Description          string             `bson:"description,omitempty" json:"description,omitempty"`
	Kind                 MaintenanceKind    `bson:"kind" json:"kind"`
	Priority             string             `bson:"priority" json:"priority"` // "low", "medium", "high", "critical"
	SafetyCritical       bool               `bson:"safety_critical" json:"safety_critical"`
	Status               WorkOrderStatus    `bson:"status" json:"status"`
	PartsCost            float64            `bson:"parts_cost" json:"parts_cost"`
	LaborCost            float64            `bson:"labor_cost" json:"labor_cost"`
	VendorCost           float64            `bson:"vendor_cost" json:"vendor_cost"`
	TotalCost            float64            `bson:"total_cost" json:"total_cost"`
	Vendor               string             `bson:"vendor,omitempty" json:"vendor,omitempty"`
	Technician           string             `bson:"technician,omitempty" json:"technician,omitempty"`
	DueDate              *time.Time         `bson:"due_date,omitempty" json:"due_date,omitempty"`
	ServiceDate          *time.Time         `bson:"service_date,omitempty" json:"service_date,omitempty"`
	OdometerAtService    *float64           `bson:"odometer_reading_at_service,omitempty" json:"odometer_reading_at_service,omitempty"`
	EngineHoursAtService *float64           `bson:"engine_hours_at_service,omitempty" json:"engine_hours_at_service,omitempty"`
	Notes                string             `bson:"notes,omitempty" json:"notes,omitempty"`
	CreatedBy            string             `bson:"created_by,omitempty" json:"created_by,omitempty"`
	ApprovedBy           string             `bson:"approved_by,omitempty" json:"approved_by,omitempty"`
	ApprovedAt           *time.Time         `bson:"approved_at,omitempty" json:"approved_at,omitempty"`
	StartedAt            *time.Time         `bson:"started_at,omitempty" json:"started_at,omitempty"`
	CompletedBy          string             `bson:"completed_by,omitempty" json:"completed_by,omitempty"`
	CompletedAt          *time.Time         `bson:"completed_at,omitempty" json:"completed_at,omitempty"`
	VerifiedBy           string             `bson:"verified_by,omitempty" json:"verified_by,omitempty"`
	VerifiedAt           *time.Time         `bson:"verified_at,omitempty" json:"verified_at,omitempty"`
	QualityRating        int                `bson:"quality_rating,omitempty" json:"quality_rating,omitempty"`
	VerificationNotes    string             `bson:"verification_notes,omitempty" json:"verification_notes,omitempty"`
	CreatedAt            time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt            time.Time          `bson:"updated_at" json:"updated_at"`
}

// IsScheduled reports whether the work order services a maintenance schedule.
func (wo *WorkOrder) IsScheduled() bool {
	return wo.ScheduleID != ""
}

// RecalculateTotal sets TotalCost from its components.
func (wo *WorkOrder) RecalculateTotal() {
	wo.TotalCost = wo.PartsCost + wo.LaborCost + wo.VendorCost
}

func (wo *WorkOrder) transitionError(action, reason string) error {
	return &TransitionError{
		Entity: "work order",
		ID:     wo.ID.Hex(),
		From:   string(wo.Status),
		Action: action,
		Reason: reason,
	}
}

// SetCosts replaces the cost components. Costs are frozen once the work is done.
func (wo *WorkOrder) SetCosts(parts, labor, vendor float64, now time.Time) error {
	if wo.Status.IsDone() {
		return wo.transitionError("update costs", "costs are frozen after completion")
	}
	if parts < 0 || labor < 0 || vendor < 0 {
		return ValidationError("work order %s: costs must not be negative", wo.ID.Hex())
	}
	wo.PartsCost, wo.LaborCost, wo.VendorCost = parts, labor, vendor
	wo.RecalculateTotal()
	wo.UpdatedAt = now
	return nil
}

// Approve authorises a pending work order.
func (wo *WorkOrder) Approve(actorID string, now time.Time) error {
	if wo.Status != WorkOrderPending {
		return wo.transitionError("approve", "work order must be pending")
	}
	wo.Status = WorkOrderApproved
	wo.ApprovedBy = actorID
	wo.ApprovedAt = &now
	wo.UpdatedAt = now
	return nil
}

// Start marks work as begun. Approval is optional.
func (wo *WorkOrder) Start(now time.Time) error {
	if wo.Status != WorkOrderPending && wo.Status != WorkOrderApproved {
		return wo.transitionError("start", "work order must be pending or approved")
	}
	wo.Status = WorkOrderInProgress
	wo.StartedAt = &now
	wo.UpdatedAt = now
	return nil
}

// Complete records the service event. The minimal pending → completed path is legal.
func (wo *WorkOrder) Complete(actorID string, serviceDate time.Time, now time.Time) error {
	switch wo.Status {
	case WorkOrderPending, WorkOrderApproved, WorkOrderInProgress:
	default:
		return wo.transitionError("complete", "work order is already done")
	}
	wo.RecalculateTotal()
	wo.Status = WorkOrderCompleted
	wo.ServiceDate = &serviceDate
	wo.CompletedBy = actorID
	wo.CompletedAt = &now
	wo.UpdatedAt = now
	return nil
}

// Verify records an independent quality check. Terminal; scheduling is unaffected.
func (wo *WorkOrder) Verify(actorID string, rating int, notes string, now time.Time) error {
	if wo.Status != WorkOrderCompleted {
		return wo.transitionError("verify", "work order must be completed")
	}
	if rating < 1 || rating > 5 {
		return ValidationError("work order %s: quality rating must be between 1 and 5, got %d", wo.ID.Hex(), rating)
	}
	wo.Status = WorkOrderVerified
	wo.VerifiedBy = actorID
	wo.VerifiedAt = &now
	wo.QualityRating = rating
	wo.VerificationNotes = notes
	wo.UpdatedAt = now
	return nil
}
