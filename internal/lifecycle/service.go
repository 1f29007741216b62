// Package lifecycle coordinates inspections, defect repair, maintenance
// schedules and work orders. Every operation takes an explicit Scope naming
// the acting user and branch; nothing is read from ambient state.
package lifecycle

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ukydev/fleet-safety/internal/checklist"
	"github.com/ukydev/fleet-safety/internal/db"
	"github.com/ukydev/fleet-safety/internal/models"
)

// Scope identifies who is acting and on which branch. An empty BranchID
// allows every branch.
type Scope struct {
	ActorID  string
	BranchID string
}

func (sc Scope) allows(branchID string) bool {
	return sc.BranchID == "" || sc.BranchID == branchID
}

// TemplateProvider supplies checklist templates.
type TemplateProvider interface {
	Version() string
	Template(category string) (checklist.Template, error)
	QuickTemplate() checklist.Template
}

// EventPublisher delivers lifecycle events after they have been committed.
type EventPublisher interface {
	Publish(ctx context.Context, event models.Event) error
}

// Recorder receives lifecycle outcomes for metrics.
type Recorder interface {
	InspectionCompleted(source models.InspectionSource, result models.OverallResult)
	VehicleGrounded()
	WorkOrderCompleted(kind models.MaintenanceKind, cost float64)
	ScheduleAdvanced(recurrence models.RecurrenceType)
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, models.Event) error { return nil }

type nopRecorder struct{}

func (nopRecorder) InspectionCompleted(models.InspectionSource, models.OverallResult) {}
func (nopRecorder) VehicleGrounded() {}
func (nopRecorder) WorkOrderCompleted(models.MaintenanceKind, float64) {}
func (nopRecorder) ScheduleAdvanced(models.RecurrenceType) {}

// Options tunes the orchestrator. Zero values fall back to the defaults.
type Options struct {
	InspectionIntervalMonths int
	ApprovalSLA              time.Duration
	ScheduleHorizon          time.Duration
	InspectionHorizon        time.Duration
	ExpiryHorizon            time.Duration
	// AutoCorrective raises a corrective work order when a completed
	// inspection leaves open defects.
	AutoCorrective bool
}

// Defaults.
const (
	DefaultInspectionIntervalMonths = 1
	DefaultApprovalSLA              = 48 * time.Hour
	DefaultScheduleHorizon          = 14 * 24 * time.Hour
	DefaultInspectionHorizon        = 7 * 24 * time.Hour
	DefaultExpiryHorizon            = 30 * 24 * time.Hour
)

func (o Options) withDefaults() Options {
	if o.InspectionIntervalMonths <= 0 {
		o.InspectionIntervalMonths = DefaultInspectionIntervalMonths
	}
	if o.ApprovalSLA <= 0 {
		o.ApprovalSLA = DefaultApprovalSLA
	}
	if o.ScheduleHorizon <= 0 {
		o.ScheduleHorizon = DefaultScheduleHorizon
	}
	if o.InspectionHorizon <= 0 {
		o.InspectionHorizon = DefaultInspectionHorizon
	}
	if o.ExpiryHorizon <= 0 {
		o.ExpiryHorizon = DefaultExpiryHorizon
	}
	return o
}

// Service is the lifecycle orchestrator.
type Service struct {
	store     db.Store
	templates TemplateProvider
	events    EventPublisher
	metrics   Recorder
	log       *logrus.Entry
	now       func() time.Time
	opts      Options
	locks     *keyedMutex
}

// Option customises a Service.
type Option func(*Service)

// WithPublisher sets the event publisher.
func WithPublisher(p EventPublisher) Option {
	return func(s *Service) {
		if p != nil {
			s.events = p
		}
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(s *Service) {
		if r != nil {
			s.metrics = r
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the log entry.
func WithLogger(log *logrus.Entry) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// NewService creates the orchestrator.
func NewService(store db.Store, templates TemplateProvider, opts Options, options ...Option) *Service {
	s := &Service{
		store:     store,
		templates: templates,
		events:    nopPublisher{},
		metrics:   nopRecorder{},
		log:       logrus.NewEntry(logrus.StandardLogger()),
		now:       func() time.Time { return time.Now().UTC() },
		opts:      opts.withDefaults(),
		locks:     newKeyedMutex(),
	}
	for _, o := range options {
		o(s)
	}
	s.log = s.log.WithField("component", "lifecycle")
	return s
}

// Options returns the effective options.
func (s *Service) Options() Options {
	return s.opts
}

// emit publishes an event. Delivery failures are logged; the change they
// describe is already committed.
func (s *Service) emit(ctx context.Context, sc Scope, typ models.EventType, branchID, vehicleID, entityID string, data any) {
	ev := models.Event{
		ID:         uuid.NewString(),
		Type:       typ,
		OccurredAt: s.now(),
		BranchID:   branchID,
		VehicleID:  vehicleID,
		EntityID:   entityID,
		ActorID:    sc.ActorID,
		Data:       data,
	}
	if err := s.events.Publish(ctx, ev); err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"event":     typ,
			"entity_id": entityID,
		}).Error("publish event")
	}
}

func (s *Service) vehicle(ctx context.Context, sc Scope, id string) (*models.Vehicle, error) {
	v, err := s.store.FindVehicleByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !sc.allows(v.BranchID) {
		return nil, models.NotFoundError("vehicle", id)
	}
	return v, nil
}

func (s *Service) inspection(ctx context.Context, sc Scope, id string) (*models.Inspection, error) {
	in, err := s.store.FindInspectionByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !sc.allows(in.BranchID) {
		return nil, models.NotFoundError("inspection", id)
	}
	return in, nil
}

func (s *Service) schedule(ctx context.Context, sc Scope, id string) (*models.MaintenanceSchedule, error) {
	ms, err := s.store.FindScheduleByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !sc.allows(ms.BranchID) {
		return nil, models.NotFoundError("schedule", id)
	}
	return ms, nil
}

func (s *Service) workOrder(ctx context.Context, sc Scope, id string) (*models.WorkOrder, error) {
	wo, err := s.store.FindWorkOrderByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !sc.allows(wo.BranchID) {
		return nil, models.NotFoundError("work order", id)
	}
	return wo, nil
}

func branchFor(sc Scope, owner string) string {
	if owner != "" {
		return owner
	}
	return sc.BranchID
}
