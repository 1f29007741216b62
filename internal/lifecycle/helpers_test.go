package lifecycle

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/ukydev/fleet-safety/internal/checklist"
	"github.com/ukydev/fleet-safety/internal/db"
	"github.com/ukydev/fleet-safety/internal/models"
)

var baseTime = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type capturePublisher struct {
	mu     sync.Mutex
	events []models.Event
}

func (p *capturePublisher) Publish(_ context.Context, ev models.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *capturePublisher) types() []models.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]models.EventType, len(p.events))
	for i, ev := range p.events {
		out[i] = ev.Type
	}
	return out
}

type countingRecorder struct {
	mu         sync.Mutex
	completed  map[models.OverallResult]int
	grounded   int
	workOrders int
	cost       float64
	advanced   int
}

func (r *countingRecorder) InspectionCompleted(_ models.InspectionSource, result models.OverallResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed[result]++
}

func (r *countingRecorder) VehicleGrounded() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.grounded++
}

func (r *countingRecorder) WorkOrderCompleted(_ models.MaintenanceKind, cost float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.workOrders++
	r.cost += cost
}

func (r *countingRecorder) ScheduleAdvanced(models.RecurrenceType) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.advanced++
}

type fixture struct {
	svc    *Service
	store  *db.MemoryStore
	clock  *fakeClock
	events *capturePublisher
	rec    *countingRecorder
	sc     Scope
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	templates, err := checklist.NewProvider()
	require.NoError(t, err)

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	f := &fixture{
		store:  db.NewMemoryStore(),
		clock:  &fakeClock{t: baseTime},
		events: &capturePublisher{},
		rec:    &countingRecorder{completed: map[models.OverallResult]int{}},
		sc:     Scope{ActorID: "user-1", BranchID: "branch-a"},
	}
	f.svc = NewService(f.store, templates, opts,
		WithPublisher(f.events),
		WithRecorder(f.rec),
		WithClock(f.clock.Now),
		WithLogger(logrus.NewEntry(logger)),
	)
	return f
}

func (f *fixture) addVehicle(t *testing.T, v models.Vehicle) *models.Vehicle {
	t.Helper()
	if v.BranchID == "" {
		v.BranchID = f.sc.BranchID
	}
	if v.Category == "" {
		v.Category = "light_vehicle"
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = f.clock.Now()
	}
	require.NoError(t, f.store.InsertVehicle(context.Background(), &v))
	return &v
}

func (f *fixture) vehicle(t *testing.T, id string) *models.Vehicle {
	t.Helper()
	v, err := f.store.FindVehicleByID(context.Background(), id)
	require.NoError(t, err)
	return v
}

// startedInspection creates and starts an inspection for a new vehicle.
func (f *fixture) startedInspection(t *testing.T, category string) *models.Inspection {
	t.Helper()
	ctx := context.Background()
	v := f.addVehicle(t, models.Vehicle{Registration: "AB12 CDE", Category: category})
	in, err := f.svc.CreateInspection(ctx, f.sc, CreateInspectionParams{VehicleID: v.ID.Hex(), Type: models.InspectionTypeMonthly})
	require.NoError(t, err)
	in, err = f.svc.StartInspection(ctx, f.sc, in.ID.Hex())
	require.NoError(t, err)
	return in
}

// answerAll records result for every item still pending.
func (f *fixture) answerAll(t *testing.T, in *models.Inspection, result models.ItemResult) *models.Inspection {
	t.Helper()
	out := in
	for _, it := range in.Items {
		if it.Result != models.ItemResultPending {
			continue
		}
		var err error
		out, err = f.svc.RecordItemResult(context.Background(), f.sc, RecordItemParams{
			InspectionID: in.ID.Hex(),
			ItemID:       it.ID.Hex(),
			Result:       result,
		})
		require.NoError(t, err)
	}
	return out
}

func itemByName(t *testing.T, in *models.Inspection, name string) models.InspectionItem {
	t.Helper()
	for _, it := range in.Items {
		if it.Name == name {
			return it
		}
	}
	t.Fatalf("no item named %q", name)
	return models.InspectionItem{}
}

func ptr[T any](v T) *T {
	return &v
}
