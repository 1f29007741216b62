package db

import (
	"context"
	"time"

	"github.com/ukydev/fleet-safety/internal/models"
)

// InspectionFilter narrows inspection queries. Empty fields match everything.
type InspectionFilter struct {
	BranchID  string
	VehicleID string
	Statuses  []models.InspectionStatus
}

// ScheduleFilter narrows maintenance schedule queries.
type ScheduleFilter struct {
	BranchID        string
	VehicleID       string
	Statuses        []models.ScheduleStatus
	RecurrenceTypes []models.RecurrenceType
}

// WorkOrderFilter narrows work order queries. ServiceFrom/ServiceTo bound the
// service date inclusively.
type WorkOrderFilter struct {
	BranchID    string
	VehicleID   string
	ScheduleID  string
	Statuses    []models.WorkOrderStatus
	ServiceFrom *time.Time
	ServiceTo   *time.Time
}

// VehicleFilter narrows vehicle queries.
type VehicleFilter struct {
	BranchID string
}

// InspectionCollection defines the interface for inspection data operations.
// Items are stored inside their inspection, so deleting or replacing an
// inspection always carries its items with it.
type InspectionCollection interface {
	InsertInspection(ctx context.Context, inspection *models.Inspection) error
	FindInspectionByID(ctx context.Context, id string) (*models.Inspection, error)
	FindInspections(ctx context.Context, filter InspectionFilter) ([]models.Inspection, error)
	// UpdateInspection replaces the stored inspection if its version still
	// matches, then bumps the version. A stale version yields ErrConcurrentUpdate.
	UpdateInspection(ctx context.Context, inspection *models.Inspection) error
}

// ScheduleCollection defines the interface for maintenance schedule data operations.
type ScheduleCollection interface {
	InsertSchedule(ctx context.Context, schedule *models.MaintenanceSchedule) error
	FindScheduleByID(ctx context.Context, id string) (*models.MaintenanceSchedule, error)
	FindSchedules(ctx context.Context, filter ScheduleFilter) ([]models.MaintenanceSchedule, error)
	UpdateSchedule(ctx context.Context, schedule *models.MaintenanceSchedule) error
}

// WorkOrderCollection defines the interface for work order data operations.
type WorkOrderCollection interface {
	InsertWorkOrder(ctx context.Context, workOrder *models.WorkOrder) error
	FindWorkOrderByID(ctx context.Context, id string) (*models.WorkOrder, error)
	FindWorkOrders(ctx context.Context, filter WorkOrderFilter) ([]models.WorkOrder, error)
	UpdateWorkOrder(ctx context.Context, workOrder *models.WorkOrder) error
}

// VehicleCollection defines the interface for vehicle data operations.
type VehicleCollection interface {
	InsertVehicle(ctx context.Context, vehicle *models.Vehicle) error
	FindVehicleByID(ctx context.Context, id string) (*models.Vehicle, error)
	FindVehicles(ctx context.Context, filter VehicleFilter) ([]models.Vehicle, error)
	UpdateVehicle(ctx context.Context, vehicle *models.Vehicle) error
}

// Transactor runs fn atomically: either every write made through the ctx
// passed to fn is committed, or none is.
type Transactor interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Store bundles the collections the lifecycle engine needs.
type Store interface {
	InspectionCollection
	ScheduleCollection
	WorkOrderCollection
	VehicleCollection
	Transactor
}
