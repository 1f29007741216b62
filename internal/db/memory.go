package db

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/samber/lo"

	"github.com/ukydev/fleet-safety/internal/models"
)

type memoryTxKey struct{}

// MemoryStore is an in-process Store used by tests and the offline CLI
// commands. Every value is copied on the way in and out, so callers never
// alias stored state. Transactions serialise all access and roll back by
// restoring a snapshot.
type MemoryStore struct {
	mu          sync.Mutex
	inspections map[primitive.ObjectID]models.Inspection
	schedules   map[primitive.ObjectID]models.MaintenanceSchedule
	workOrders  map[primitive.ObjectID]models.WorkOrder
	vehicles    map[primitive.ObjectID]models.Vehicle
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		inspections: make(map[primitive.ObjectID]models.Inspection),
		schedules:   make(map[primitive.ObjectID]models.MaintenanceSchedule),
		workOrders:  make(map[primitive.ObjectID]models.WorkOrder),
		vehicles:    make(map[primitive.ObjectID]models.Vehicle),
	}
}

type memorySnapshot struct {
	inspections map[primitive.ObjectID]models.Inspection
	schedules   map[primitive.ObjectID]models.MaintenanceSchedule
	workOrders  map[primitive.ObjectID]models.WorkOrder
	vehicles    map[primitive.ObjectID]models.Vehicle
}

// lock takes the store mutex unless ctx belongs to a transaction on this
// store, which already holds it.
func (m *MemoryStore) lock(ctx context.Context) func() {
	if owner, _ := ctx.Value(memoryTxKey{}).(*MemoryStore); owner == m {
		return func() {}
	}
	m.mu.Lock()
	return m.mu.Unlock
}

// WithTransaction runs fn with exclusive access and restores the previous
// state if fn returns an error or panics.
func (m *MemoryStore) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if owner, _ := ctx.Value(memoryTxKey{}).(*MemoryStore); owner == m {
		return fn(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := memorySnapshot{
		inspections: lo.Assign(m.inspections),
		schedules:   lo.Assign(m.schedules),
		workOrders:  lo.Assign(m.workOrders),
		vehicles:    lo.Assign(m.vehicles),
	}
	defer func() {
		if r := recover(); r != nil {
			m.restore(snap)
			panic(r)
		}
		if err != nil {
			m.restore(snap)
		}
	}()
	return fn(context.WithValue(ctx, memoryTxKey{}, m))
}

func (m *MemoryStore) restore(snap memorySnapshot) {
	m.inspections = snap.inspections
	m.schedules = snap.schedules
	m.workOrders = snap.workOrders
	m.vehicles = snap.vehicles
}

func cloneInspection(in models.Inspection) models.Inspection {
	in.Items = append([]models.InspectionItem(nil), in.Items...)
	return in
}

func cloneSchedule(s models.MaintenanceSchedule) models.MaintenanceSchedule {
	s.AppliedWorkOrderIDs = append([]string{}, s.AppliedWorkOrderIDs...)
	return s
}

func cloneWorkOrder(wo models.WorkOrder) models.WorkOrder {
	wo.InspectionItemIDs = append([]string(nil), wo.InspectionItemIDs...)
	return wo
}

func lookupID(entity, id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, models.NotFoundError(entity, id)
	}
	return oid, nil
}

func matchScope(branchID, vehicleID, wantBranch, wantVehicle string) bool {
	return (wantBranch == "" || branchID == wantBranch) && (wantVehicle == "" || vehicleID == wantVehicle)
}

func sortByCreation[T any](items []T, key func(T) (int64, string)) {
	sort.Slice(items, func(i, j int) bool {
		ti, idi := key(items[i])
		tj, idj := key(items[j])
		if ti != tj {
			return ti < tj
		}
		return idi < idj
	})
}

// InsertInspection stores a new inspection.
func (m *MemoryStore) InsertInspection(ctx context.Context, inspection *models.Inspection) error {
	defer m.lock(ctx)()
	if inspection.ID.IsZero() {
		inspection.ID = primitive.NewObjectID()
	}
	if _, ok := m.inspections[inspection.ID]; ok {
		return fmt.Errorf("inspection %s already exists", inspection.ID.Hex())
	}
	m.inspections[inspection.ID] = cloneInspection(*inspection)
	return nil
}

// FindInspectionByID returns a copy of the inspection.
func (m *MemoryStore) FindInspectionByID(ctx context.Context, id string) (*models.Inspection, error) {
	oid, err := lookupID("inspection", id)
	if err != nil {
		return nil, err
	}
	defer m.lock(ctx)()
	in, ok := m.inspections[oid]
	if !ok {
		return nil, models.NotFoundError("inspection", id)
	}
	out := cloneInspection(in)
	return &out, nil
}

// FindInspections returns matching inspections in creation order.
func (m *MemoryStore) FindInspections(ctx context.Context, f InspectionFilter) ([]models.Inspection, error) {
	defer m.lock(ctx)()
	var out []models.Inspection
	for _, in := range m.inspections {
		if !matchScope(in.BranchID, in.VehicleID, f.BranchID, f.VehicleID) {
			continue
		}
		if len(f.Statuses) > 0 && !lo.Contains(f.Statuses, in.Status) {
			continue
		}
		out = append(out, cloneInspection(in))
	}
	sortByCreation(out, func(in models.Inspection) (int64, string) { return in.CreatedAt.UnixNano(), in.ID.Hex() })
	return out, nil
}

// UpdateInspection replaces the inspection if the version matches.
func (m *MemoryStore) UpdateInspection(ctx context.Context, inspection *models.Inspection) error {
	defer m.lock(ctx)()
	stored, ok := m.inspections[inspection.ID]
	if !ok {
		return models.NotFoundError("inspection", inspection.ID.Hex())
	}
	if stored.Version != inspection.Version {
		return fmt.Errorf("inspection %s: %w", inspection.ID.Hex(), models.ErrConcurrentUpdate)
	}
	inspection.Version++
	m.inspections[inspection.ID] = cloneInspection(*inspection)
	return nil
}

// InsertSchedule stores a new maintenance schedule.
func (m *MemoryStore) InsertSchedule(ctx context.Context, schedule *models.MaintenanceSchedule) error {
	defer m.lock(ctx)()
	if schedule.ID.IsZero() {
		schedule.ID = primitive.NewObjectID()
	}
	if _, ok := m.schedules[schedule.ID]; ok {
		return fmt.Errorf("schedule %s already exists", schedule.ID.Hex())
	}
	m.schedules[schedule.ID] = cloneSchedule(*schedule)
	return nil
}

// FindScheduleByID returns a copy of the schedule.
func (m *MemoryStore) FindScheduleByID(ctx context.Context, id string) (*models.MaintenanceSchedule, error) {
	oid, err := lookupID("schedule", id)
	if err != nil {
		return nil, err
	}
	defer m.lock(ctx)()
	s, ok := m.schedules[oid]
	if !ok {
		return nil, models.NotFoundError("schedule", id)
	}
	out := cloneSchedule(s)
	return &out, nil
}

// FindSchedules returns matching schedules in creation order.
func (m *MemoryStore) FindSchedules(ctx context.Context, f ScheduleFilter) ([]models.MaintenanceSchedule, error) {
	defer m.lock(ctx)()
	var out []models.MaintenanceSchedule
	for _, s := range m.schedules {
		if !matchScope(s.BranchID, s.VehicleID, f.BranchID, f.VehicleID) {
			continue
		}
		if len(f.Statuses) > 0 && !lo.Contains(f.Statuses, s.Status) {
			continue
		}
		if len(f.RecurrenceTypes) > 0 && !lo.Contains(f.RecurrenceTypes, s.RecurrenceType) {
			continue
		}
		out = append(out, cloneSchedule(s))
	}
	sortByCreation(out, func(s models.MaintenanceSchedule) (int64, string) { return s.CreatedAt.UnixNano(), s.ID.Hex() })
	return out, nil
}

// UpdateSchedule replaces a schedule.
func (m *MemoryStore) UpdateSchedule(ctx context.Context, schedule *models.MaintenanceSchedule) error {
	defer m.lock(ctx)()
	if _, ok := m.schedules[schedule.ID]; !ok {
		return models.NotFoundError("schedule", schedule.ID.Hex())
	}
	m.schedules[schedule.ID] = cloneSchedule(*schedule)
	return nil
}

// InsertWorkOrder stores a new work order.
func (m *MemoryStore) InsertWorkOrder(ctx context.Context, workOrder *models.WorkOrder) error {
	defer m.lock(ctx)()
	if workOrder.ID.IsZero() {
		workOrder.ID = primitive.NewObjectID()
	}
	if _, ok := m.workOrders[workOrder.ID]; ok {
		return fmt.Errorf("work order %s already exists", workOrder.ID.Hex())
	}
	m.workOrders[workOrder.ID] = cloneWorkOrder(*workOrder)
	return nil
}

// FindWorkOrderByID returns a copy of the work order.
func (m *MemoryStore) FindWorkOrderByID(ctx context.Context, id string) (*models.WorkOrder, error) {
	oid, err := lookupID("work order", id)
	if err != nil {
		return nil, err
	}
	defer m.lock(ctx)()
	wo, ok := m.workOrders[oid]
	if !ok {
		return nil, models.NotFoundError("work order", id)
	}
	out := cloneWorkOrder(wo)
	return &out, nil
}

// FindWorkOrders returns matching work orders in creation order.
func (m *MemoryStore) FindWorkOrders(ctx context.Context, f WorkOrderFilter) ([]models.WorkOrder, error) {
	defer m.lock(ctx)()
	var out []models.WorkOrder
	for _, wo := range m.workOrders {
		if !matchScope(wo.BranchID, wo.VehicleID, f.BranchID, f.VehicleID) {
			continue
		}
		if f.ScheduleID != "" && wo.ScheduleID != f.ScheduleID {
			continue
		}
		if len(f.Statuses) > 0 && !lo.Contains(f.Statuses, wo.Status) {
			continue
		}
		if f.ServiceFrom != nil || f.ServiceTo != nil {
			if wo.ServiceDate == nil {
				continue
			}
			if f.ServiceFrom != nil && wo.ServiceDate.Before(*f.ServiceFrom) {
				continue
			}
			if f.ServiceTo != nil && wo.ServiceDate.After(*f.ServiceTo) {
				continue
			}
		}
		out = append(out, cloneWorkOrder(wo))
	}
	sortByCreation(out, func(wo models.WorkOrder) (int64, string) { return wo.CreatedAt.UnixNano(), wo.ID.Hex() })
	return out, nil
}

// UpdateWorkOrder replaces a work order.
func (m *MemoryStore) UpdateWorkOrder(ctx context.Context, workOrder *models.WorkOrder) error {
	defer m.lock(ctx)()
	if _, ok := m.workOrders[workOrder.ID]; !ok {
		return models.NotFoundError("work order", workOrder.ID.Hex())
	}
	m.workOrders[workOrder.ID] = cloneWorkOrder(*workOrder)
	return nil
}

// InsertVehicle stores a new vehicle.
func (m *MemoryStore) InsertVehicle(ctx context.Context, vehicle *models.Vehicle) error {
	defer m.lock(ctx)()
	if vehicle.ID.IsZero() {
		vehicle.ID = primitive.NewObjectID()
	}
	if _, ok := m.vehicles[vehicle.ID]; ok {
		return fmt.Errorf("vehicle %s already exists", vehicle.ID.Hex())
	}
	m.vehicles[vehicle.ID] = *vehicle
	return nil
}

// FindVehicleByID returns a copy of the vehicle.
func (m *MemoryStore) FindVehicleByID(ctx context.Context, id string) (*models.Vehicle, error) {
	oid, err := lookupID("vehicle", id)
	if err != nil {
		return nil, err
	}
	defer m.lock(ctx)()
	v, ok := m.vehicles[oid]
	if !ok {
		return nil, models.NotFoundError("vehicle", id)
	}
	return &v, nil
}

// FindVehicles returns matching vehicles in creation order.
func (m *MemoryStore) FindVehicles(ctx context.Context, f VehicleFilter) ([]models.Vehicle, error) {
	defer m.lock(ctx)()
	var out []models.Vehicle
	for _, v := range m.vehicles {
		if matchScope(v.BranchID, "", f.BranchID, "") {
			out = append(out, v)
		}
	}
	sortByCreation(out, func(v models.Vehicle) (int64, string) { return v.CreatedAt.UnixNano(), v.ID.Hex() })
	return out, nil
}

// UpdateVehicle replaces a vehicle.
func (m *MemoryStore) UpdateVehicle(ctx context.Context, vehicle *models.Vehicle) error {
	defer m.lock(ctx)()
	if _, ok := m.vehicles[vehicle.ID]; !ok {
		return models.NotFoundError("vehicle", vehicle.ID.Hex())
	}
	m.vehicles[vehicle.ID] = *vehicle
	return nil
}

var _ Store = (*MemoryStore)(nil)
