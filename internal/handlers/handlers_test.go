package handlers

import (
	"context"
	"encoding/json"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/ukydev/fleet-safety/internal/broker"
	"github.com/ukydev/fleet-safety/internal/lifecycle"
	"github.com/ukydev/fleet-safety/internal/middleware"
	"github.com/ukydev/fleet-safety/internal/models"
	"github.com/ukydev/fleet-safety/internal/recurrence"
)

// MockLifecycleService is a mock implementation of LifecycleService
type MockLifecycleService struct {
	mock.Mock
}

func (m *MockLifecycleService) CheckMeterSchedules(ctx context.Context, sc lifecycle.Scope, reading models.MeterReading) ([]recurrence.MeterStatus, error) {
	args := m.Called(ctx, sc, reading)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]recurrence.MeterStatus), args.Error(1)
}

func (m *MockLifecycleService) SubmitQuickInspection(ctx context.Context, sc lifecycle.Scope, p lifecycle.QuickInspectionParams) (*lifecycle.InspectionOutcome, error) {
	args := m.Called(ctx, sc, p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*lifecycle.InspectionOutcome), args.Error(1)
}

func discardLog() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func driverCtx() context.Context {
	return middleware.WithUser(context.Background(), &models.Claims{UserID: "drv-1", Role: models.RoleDriver, BranchID: "depot-1"})
}

var driverScope = lifecycle.Scope{ActorID: "drv-1", BranchID: "depot-1"}

func ptr(f float64) *float64 { return &f }

func TestScopeFromContext(t *testing.T) {
	sc, err := ScopeFromContext(driverCtx())
	require.NoError(t, err)
	assert.Equal(t, driverScope, sc)

	_, err = ScopeFromContext(context.Background())
	assert.ErrorIs(t, err, middleware.ErrUnauthenticated)
}

func TestReadingHandler(t *testing.T) {
	topic := broker.ReadingsTopic("fleet", "veh-1")

	t.Run("applies reading", func(t *testing.T) {
		service := new(MockLifecycleService)
		h := NewReadingHandler(service, "fleet", discardLog())

		want := models.MeterReading{VehicleID: "veh-1", Odometer: ptr(60500)}
		service.On("CheckMeterSchedules", mock.Anything, driverScope, want).
			Return([]recurrence.MeterStatus{{ScheduleID: "s-1", VehicleID: "veh-1", Due: true}}, nil)

		err := h.Handle(driverCtx(), broker.Message{Topic: topic, Payload: []byte(`{"odometer":60500}`)})
		assert.NoError(t, err)
		service.AssertExpectations(t)
	})

	tests := []struct {
		name    string
		ctx     context.Context
		topic   string
		payload string
		wantErr error
	}{
		{"unauthenticated", context.Background(), topic, `{"odometer":1}`, middleware.ErrUnauthenticated},
		{"wrong topic", driverCtx(), "fleet/vehicles/veh-1/status", `{"odometer":1}`, models.ErrValidation},
		{"invalid JSON", driverCtx(), topic, `{`, models.ErrValidation},
		{"vehicle mismatch", driverCtx(), topic, `{"vehicle_id":"veh-2","odometer":1}`, models.ErrValidation},
		{"no meter value", driverCtx(), topic, `{"vehicle_id":"veh-1"}`, models.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service := new(MockLifecycleService)
			h := NewReadingHandler(service, "fleet", discardLog())
			err := h.Handle(tt.ctx, broker.Message{Topic: tt.topic, Payload: []byte(tt.payload)})
			assert.ErrorIs(t, err, tt.wantErr)
			service.AssertNotCalled(t, "CheckMeterSchedules", mock.Anything, mock.Anything, mock.Anything)
		})
	}

	t.Run("service error", func(t *testing.T) {
		service := new(MockLifecycleService)
		h := NewReadingHandler(service, "fleet", discardLog())
		service.On("CheckMeterSchedules", mock.Anything, driverScope, mock.Anything).
			Return(nil, models.NotFoundError("vehicle", "veh-1"))

		err := h.Handle(driverCtx(), broker.Message{Topic: topic, Payload: []byte(`{"engine_hours":12}`)})
		assert.ErrorIs(t, err, models.ErrNotFound)
	})
}

func TestQuickInspectionHandler(t *testing.T) {
	req := QuickInspectionRequest{
		VehicleID:       "veh-1",
		Answers:         map[string]string{"brakes": "fail"},
		Defects:         map[string]string{"brakes": "pedal spongy"},
		OdometerReading: ptr(1200),
	}
	body, err := json.Marshal(req)
	require.NoError(t, err)

	t.Run("submits", func(t *testing.T) {
		service := new(MockLifecycleService)
		h := NewQuickInspectionHandler(service, discardLog())

		outcome := &lifecycle.InspectionOutcome{
			Inspection: &models.Inspection{ID: primitive.NewObjectID(), OverallResult: models.ResultFailCritical},
			WorkOrder:  &models.WorkOrder{ID: primitive.NewObjectID()},
		}
		service.On("SubmitQuickInspection", mock.Anything, driverScope, mock.MatchedBy(func(p lifecycle.QuickInspectionParams) bool {
			return p.VehicleID == "veh-1" && p.Answers["brakes"] == "fail" &&
				p.Defects["brakes"] == "pedal spongy" && *p.OdometerReading == 1200
		})).Return(outcome, nil)

		assert.NoError(t, h.Handle(driverCtx(), broker.Message{Topic: "fleet/inspections/quick", Payload: body}))
		service.AssertExpectations(t)
	})

	tests := []struct {
		name    string
		ctx     context.Context
		payload string
		wantErr error
	}{
		{"unauthenticated", context.Background(), string(body), middleware.ErrUnauthenticated},
		{"invalid JSON", driverCtx(), `not json`, models.ErrValidation},
		{"missing vehicle", driverCtx(), `{"answers":{}}`, models.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service := new(MockLifecycleService)
			h := NewQuickInspectionHandler(service, discardLog())
			err := h.Handle(tt.ctx, broker.Message{Topic: "fleet/inspections/quick", Payload: []byte(tt.payload)})
			assert.ErrorIs(t, err, tt.wantErr)
			service.AssertNotCalled(t, "SubmitQuickInspection", mock.Anything, mock.Anything, mock.Anything)
		})
	}

	t.Run("service error", func(t *testing.T) {
		service := new(MockLifecycleService)
		h := NewQuickInspectionHandler(service, discardLog())
		service.On("SubmitQuickInspection", mock.Anything, driverScope, mock.Anything).
			Return(nil, models.ValidationError("missing answers"))

		err := h.Handle(driverCtx(), broker.Message{Topic: "fleet/inspections/quick", Payload: body})
		assert.ErrorIs(t, err, models.ErrValidation)
	})
}
