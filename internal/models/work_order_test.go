package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestWorkOrder_Transitions(t *testing.T) {
	now := time.Date(2024, 2, 15, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		from    WorkOrderStatus
		action  func(wo *WorkOrder) error
		wantErr bool
		want    WorkOrderStatus
	}{
		{"approve pending", WorkOrderPending, func(wo *WorkOrder) error { return wo.Approve("mgr", now) }, false, WorkOrderApproved},
		{"approve approved", WorkOrderApproved, func(wo *WorkOrder) error { return wo.Approve("mgr", now) }, true, WorkOrderApproved},
		{"start pending", WorkOrderPending, func(wo *WorkOrder) error { return wo.Start(now) }, false, WorkOrderInProgress},
		{"start approved", WorkOrderApproved, func(wo *WorkOrder) error { return wo.Start(now) }, false, WorkOrderInProgress},
		{"start completed", WorkOrderCompleted, func(wo *WorkOrder) error { return wo.Start(now) }, true, WorkOrderCompleted},
		{"complete pending", WorkOrderPending, func(wo *WorkOrder) error { return wo.Complete("tech", now, now) }, false, WorkOrderCompleted},
		{"complete in progress", WorkOrderInProgress, func(wo *WorkOrder) error { return wo.Complete("tech", now, now) }, false, WorkOrderCompleted},
		{"complete completed", WorkOrderCompleted, func(wo *WorkOrder) error { return wo.Complete("tech", now, now) }, true, WorkOrderCompleted},
		{"verify completed", WorkOrderCompleted, func(wo *WorkOrder) error { return wo.Verify("qa", 4, "", now) }, false, WorkOrderVerified},
		{"verify pending", WorkOrderPending, func(wo *WorkOrder) error { return wo.Verify("qa", 4, "", now) }, true, WorkOrderPending},
		{"verify verified", WorkOrderVerified, func(wo *WorkOrder) error { return wo.Verify("qa", 4, "", now) }, true, WorkOrderVerified},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wo := &WorkOrder{ID: primitive.NewObjectID(), Status: tt.from}
			err := tt.action(wo)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidTransition)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.want, wo.Status)
		})
	}
}

func TestWorkOrder_CostsAreRecomputed(t *testing.T) {
	now := time.Now()
	wo := &WorkOrder{ID: primitive.NewObjectID(), Status: WorkOrderPending, TotalCost: 999}

	require.NoError(t, wo.SetCosts(120.5, 80, 49.5, now))
	assert.Equal(t, 250.0, wo.TotalCost)

	assert.ErrorIs(t, wo.SetCosts(-1, 0, 0, now), ErrValidation)

	wo.TotalCost = 1
	require.NoError(t, wo.Complete("tech", now, now))
	assert.Equal(t, 250.0, wo.TotalCost)

	assert.ErrorIs(t, wo.SetCosts(1, 1, 1, now), ErrInvalidTransition)
}

func TestWorkOrder_VerifyRatingRange(t *testing.T) {
	for _, rating := range []int{0, 6, -2} {
		wo := &WorkOrder{ID: primitive.NewObjectID(), Status: WorkOrderCompleted}
		assert.ErrorIs(t, wo.Verify("qa", rating, "", time.Now()), ErrValidation)
		assert.Equal(t, WorkOrderCompleted, wo.Status)
	}
}

func TestVehicle_ApplyReading(t *testing.T) {
	v := &Vehicle{OdometerReading: 1000, EngineHours: 50}
	lower, higher := 900.0, 1100.0
	hours := 55.0

	assert.False(t, v.ApplyReading(&lower, nil))
	assert.Equal(t, 1000.0, v.OdometerReading)

	assert.True(t, v.ApplyReading(&higher, &hours))
	assert.Equal(t, 1100.0, v.OdometerReading)
	assert.Equal(t, 55.0, v.EngineHours)
}

func TestMaintenanceSchedule_HasApplied(t *testing.T) {
	s := &MaintenanceSchedule{AppliedWorkOrderIDs: []string{"a", "b"}, LastWorkOrderID: "c"}
	assert.True(t, s.HasApplied("a"))
	assert.True(t, s.HasApplied("c"))
	assert.False(t, s.HasApplied("d"))
	assert.False(t, s.HasApplied(""))
}
