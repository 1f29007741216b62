package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// RecurrenceType is the trigger basis of a maintenance schedule.
type RecurrenceType string

const (
	RecurrenceDaily       RecurrenceType = "daily"
	RecurrenceWeekly      RecurrenceType = "weekly"
	RecurrenceMonthly     RecurrenceType = "monthly"
	RecurrenceQuarterly   RecurrenceType = "quarterly"
	RecurrenceSemiAnnual  RecurrenceType = "semi_annual"
	RecurrenceAnnual      RecurrenceType = "annual"
	RecurrenceOnce        RecurrenceType = "once"
	RecurrenceOdometer    RecurrenceType = "odometer_based"
	RecurrenceEngineHours RecurrenceType = "engine_hours"
)

// IsTimeBased reports whether the schedule is driven by the calendar.
func (t RecurrenceType) IsTimeBased() bool {
	switch t {
	case RecurrenceDaily, RecurrenceWeekly, RecurrenceMonthly, RecurrenceQuarterly,
		RecurrenceSemiAnnual, RecurrenceAnnual, RecurrenceOnce:
		return true
	default:
		return false
	}
}

// IsMeterBased reports whether the schedule is driven by odometer or engine hours.
func (t RecurrenceType) IsMeterBased() bool {
	return t == RecurrenceOdometer || t == RecurrenceEngineHours
}

// IsValid reports whether t is a known recurrence type.
func (t RecurrenceType) IsValid() bool {
	return t.IsTimeBased() || t.IsMeterBased()
}

// TimeBasedRecurrenceTypes lists the calendar-driven types.
var TimeBasedRecurrenceTypes = []RecurrenceType{
	RecurrenceDaily, RecurrenceWeekly, RecurrenceMonthly, RecurrenceQuarterly,
	RecurrenceSemiAnnual, RecurrenceAnnual, RecurrenceOnce,
}

// MeterRecurrenceTypes lists the odometer and engine-hours types.
var MeterRecurrenceTypes = []RecurrenceType{RecurrenceOdometer, RecurrenceEngineHours}

// ScheduleStatus is the state of a maintenance schedule.
type ScheduleStatus string

const (
	ScheduleActive    ScheduleStatus = "active"
	SchedulePaused    ScheduleStatus = "paused"
	ScheduleCancelled ScheduleStatus = "cancelled"
)

// MaintenanceSchedule is a recurring service obligation for one vehicle.
//
// RecurrenceInterval is a multiplier of the base period for time-based types,
// kilometres for odometer_based and hours for engine_hours. NextDueDate is
// only meaningful for time-based types; meter types are evaluated on demand.
type MaintenanceSchedule struct {
	ID                   primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	BranchID             string             `bson:"branch_id,omitempty" json:"branch_id,omitempty"`
	VehicleID            string             `bson:"vehicle_id" json:"vehicle_id"`
	Name                 string             `bson:"name" json:"name"`
	ServiceType          string             `bson:"service_type" json:"service_type"` // "oil_change", "brake_service", "tyre_rotation", ...
	Description          string             `bson:"description,omitempty" json:"description,omitempty"`
	RecurrenceType       RecurrenceType     `bson:"recurrence_type" json:"recurrence_type"`
	RecurrenceInterval   float64            `bson:"recurrence_interval" json:"recurrence_interval"`
	LastCompletedDate    *time.Time         `bson:"last_completed_date,omitempty" json:"last_completed_date,omitempty"`
	LastCompletedReading *float64           `bson:"last_completed_reading,omitempty" json:"last_completed_reading,omitempty"`
	LastWorkOrderID      string             `bson:"last_work_order_id,omitempty" json:"last_work_order_id,omitempty"`
	AppliedWorkOrderIDs  []string           `bson:"applied_work_order_ids" json:"applied_work_order_ids"`
	CompletedCount       int                `bson:"completed_count" json:"completed_count"`
	EstimatedCost        float64            `bson:"estimated_cost" json:"estimated_cost"`
	ActualTotalCost      float64            `bson:"actual_total_cost" json:"actual_total_cost"`
	NextDueDate          *time.Time         `bson:"next_due_date,omitempty" json:"next_due_date,omitempty"`
	Status               ScheduleStatus     `bson:"status" json:"status"`
	CreatedBy            string             `bson:"created_by,omitempty" json:"created_by,omitempty"`
	CreatedAt            time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt            time.Time          `bson:"updated_at" json:"updated_at"`
}

// HasApplied reports whether the work order already advanced this schedule.
func (s *MaintenanceSchedule) HasApplied(workOrderID string) bool {
	if s.LastWorkOrderID == workOrderID && workOrderID != "" {
		return true
	}
	for _, id := range s.AppliedWorkOrderIDs {
		if id == workOrderID {
			return true
		}
	}
	return false
}
