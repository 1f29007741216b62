package models

import "time"

// EventType names a lifecycle event published to downstream consumers.
type EventType string

const (
	EventInspectionCompleted EventType = "inspection.completed"
	EventInspectionApproved  EventType = "inspection.approved"
	EventInspectionRejected  EventType = "inspection.rejected"
	EventVehicleGrounded     EventType = "vehicle.grounded"
	EventWorkOrderCreated    EventType = "work_order.created"
	EventWorkOrderCompleted  EventType = "work_order.completed"
	EventScheduleAdvanced    EventType = "schedule.advanced"
	EventScheduleMeterDue    EventType = "schedule.meter_due"
)

// Event is a notification emitted after a lifecycle change has been committed.
// ID is unique per event so consumers can drop redeliveries.
type Event struct {
	ID         string    `json:"id"`
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	BranchID   string    `json:"branch_id,omitempty"`
	VehicleID  string    `json:"vehicle_id,omitempty"`
	EntityID   string    `json:"entity_id"`
	ActorID    string    `json:"actor_id,omitempty"`
	Data       any       `json:"data,omitempty"`
}
