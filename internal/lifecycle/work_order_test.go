package lifecycle

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ukydev/fleet-safety/internal/models"
)

func TestCreateWorkOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	v := f.addVehicle(t, models.Vehicle{})
	other := f.addVehicle(t, models.Vehicle{})
	ms, err := f.svc.CreateSchedule(ctx, f.sc, CreateScheduleParams{
		VehicleID: v.ID.Hex(), Name: "Service", RecurrenceType: models.RecurrenceMonthly, RecurrenceInterval: 1,
	})
	require.NoError(t, err)

	t.Run("defaults", func(t *testing.T) {
		wo, err := f.svc.CreateWorkOrder(ctx, f.sc, CreateWorkOrderParams{
			VehicleID: v.ID.Hex(), Title: "Replace wiper", PartsCost: 20, LaborCost: 15,
		})
		require.NoError(t, err)
		assert.Equal(t, models.MaintenanceCorrective, wo.Kind)
		assert.Equal(t, "medium", wo.Priority)
		assert.Equal(t, models.WorkOrderPending, wo.Status)
		assert.Equal(t, 35.0, wo.TotalCost)
		assert.False(t, wo.IsScheduled())
	})

	t.Run("scheduled is preventive", func(t *testing.T) {
		wo, err := f.svc.CreateWorkOrder(ctx, f.sc, CreateWorkOrderParams{
			VehicleID: v.ID.Hex(), ScheduleID: ms.ID.Hex(), Title: "Monthly service", Priority: "high",
		})
		require.NoError(t, err)
		assert.Equal(t, models.MaintenancePreventive, wo.Kind)
		assert.Equal(t, "high", wo.Priority)
		assert.True(t, wo.IsScheduled())
	})

	tests := []struct {
		name    string
		params  CreateWorkOrderParams
		wantErr error
	}{
		{"missing title", CreateWorkOrderParams{VehicleID: v.ID.Hex()}, models.ErrValidation},
		{"negative cost", CreateWorkOrderParams{VehicleID: v.ID.Hex(), Title: "x", VendorCost: -5}, models.ErrValidation},
		{"schedule of another vehicle", CreateWorkOrderParams{VehicleID: other.ID.Hex(), ScheduleID: ms.ID.Hex(), Title: "x"}, models.ErrValidation},
		{"unknown schedule", CreateWorkOrderParams{VehicleID: v.ID.Hex(), ScheduleID: "65f000000000000000000009", Title: "x"}, models.ErrNotFound},
		{"unknown vehicle", CreateWorkOrderParams{VehicleID: "65f000000000000000000009", Title: "x"}, models.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateWorkOrder(ctx, f.sc, tt.params)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestCompleteWorkOrder_AdvancesMonthlySchedule(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	v := f.addVehicle(t, models.Vehicle{OdometerReading: 42000})
	start := time.Date(2024, 2, 15, 0, 0, 0, 0, time.UTC)

	ms, err := f.svc.CreateSchedule(ctx, f.sc, CreateScheduleParams{
		VehicleID: v.ID.Hex(), Name: "Oil change", ServiceType: "oil_change",
		RecurrenceType: models.RecurrenceMonthly, RecurrenceInterval: 1, StartDate: &start, EstimatedCost: 120,
	})
	require.NoError(t, err)
	wo, err := f.svc.CreateWorkOrder(ctx, f.sc, CreateWorkOrderParams{
		VehicleID: v.ID.Hex(), ScheduleID: ms.ID.Hex(), Title: "Oil change", PartsCost: 80, LaborCost: 60,
	})
	require.NoError(t, err)

	_, err = f.svc.ApproveWorkOrder(ctx, f.sc, wo.ID.Hex())
	require.NoError(t, err)
	_, err = f.svc.StartWorkOrder(ctx, f.sc, wo.ID.Hex())
	require.NoError(t, err)
	_, err = f.svc.ApproveWorkOrder(ctx, f.sc, wo.ID.Hex())
	assert.ErrorIs(t, err, models.ErrInvalidTransition)

	done, err := f.svc.CompleteWorkOrder(ctx, f.sc, CompleteWorkOrderParams{
		WorkOrderID: wo.ID.Hex(),
		ServiceDate: &start,
		Odometer:    ptr(42350.0),
		Notes:       "synthetic 5W-30",
	})
	require.NoError(t, err)

	assert.Equal(t, models.WorkOrderCompleted, done.WorkOrder.Status)
	assert.Equal(t, 140.0, done.WorkOrder.TotalCost)
	assert.Equal(t, "user-1", done.WorkOrder.CompletedBy)

	sched := done.Schedule
	require.NotNil(t, sched)
	assert.Equal(t, 1, sched.CompletedCount)
	assert.Equal(t, 140.0, sched.ActualTotalCost)
	assert.Equal(t, wo.ID.Hex(), sched.LastWorkOrderID)
	require.NotNil(t, sched.NextDueDate)
	assert.True(t, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC).Equal(*sched.NextDueDate), "next due %s", sched.NextDueDate)
	assert.Equal(t, models.ScheduleActive, sched.Status)

	assert.Equal(t, 42350.0, f.vehicle(t, v.ID.Hex()).OdometerReading)
	assert.Equal(t, 1, f.rec.workOrders)
	assert.Equal(t, 140.0, f.rec.cost)
	assert.Equal(t, 1, f.rec.advanced)
	assert.Contains(t, f.events.types(), models.EventWorkOrderCompleted)
	assert.Contains(t, f.events.types(), models.EventScheduleAdvanced)

	t.Run("second completion changes nothing", func(t *testing.T) {
		f.clock.Advance(time.Hour)
		_, err := f.svc.CompleteWorkOrder(ctx, f.sc, CompleteWorkOrderParams{WorkOrderID: wo.ID.Hex()})
		require.ErrorIs(t, err, models.ErrAlreadyApplied)

		stored, err := f.store.FindScheduleByID(ctx, ms.ID.Hex())
		require.NoError(t, err)
		assert.Equal(t, 1, stored.CompletedCount)
		assert.Equal(t, 140.0, stored.ActualTotalCost)
		assert.Len(t, stored.AppliedWorkOrderIDs, 1)
		assert.Equal(t, 1, f.rec.workOrders)
		assert.Equal(t, 1, f.rec.advanced)
	})

	t.Run("costs are frozen", func(t *testing.T) {
		_, err := f.svc.UpdateWorkOrderCosts(ctx, f.sc, wo.ID.Hex(), 1, 1, 1)
		assert.ErrorIs(t, err, models.ErrInvalidTransition)
	})

	t.Run("verify", func(t *testing.T) {
		for _, rating := range []int{0, 6} {
			_, err := f.svc.VerifyWorkOrder(ctx, f.sc, wo.ID.Hex(), rating, "")
			assert.ErrorIs(t, err, models.ErrValidation)
		}
		verified, err := f.svc.VerifyWorkOrder(ctx, f.sc, wo.ID.Hex(), 5, "clean job")
		require.NoError(t, err)
		assert.Equal(t, models.WorkOrderVerified, verified.Status)
		assert.Equal(t, 5, verified.QualityRating)

		_, err = f.svc.VerifyWorkOrder(ctx, f.sc, wo.ID.Hex(), 4, "")
		assert.ErrorIs(t, err, models.ErrInvalidTransition)

		stored, err := f.store.FindScheduleByID(ctx, ms.ID.Hex())
		require.NoError(t, err)
		assert.Equal(t, 1, stored.CompletedCount)
	})
}

func TestCompleteWorkOrder_CancelledSchedule(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	v := f.addVehicle(t, models.Vehicle{})

	ms, err := f.svc.CreateSchedule(ctx, f.sc, CreateScheduleParams{
		VehicleID: v.ID.Hex(), Name: "Tachograph calibration", ServiceType: "calibration",
		RecurrenceType: models.RecurrenceMonthly, RecurrenceInterval: 1,
	})
	require.NoError(t, err)
	wo, err := f.svc.CreateWorkOrder(ctx, f.sc, CreateWorkOrderParams{
		VehicleID: v.ID.Hex(), ScheduleID: ms.ID.Hex(), Title: "Calibrate", VendorCost: 90,
	})
	require.NoError(t, err)
	_, err = f.svc.CancelSchedule(ctx, f.sc, ms.ID.Hex())
	require.NoError(t, err)

	done, err := f.svc.CompleteWorkOrder(ctx, f.sc, CompleteWorkOrderParams{WorkOrderID: wo.ID.Hex()})
	require.NoError(t, err)
	assert.Equal(t, models.WorkOrderCompleted, done.WorkOrder.Status)
	assert.Nil(t, done.Schedule)
	assert.NotContains(t, f.events.types(), models.EventScheduleAdvanced)
	assert.Zero(t, f.rec.advanced)

	stored, err := f.store.FindScheduleByID(ctx, ms.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, models.ScheduleCancelled, stored.Status)
	assert.Zero(t, stored.CompletedCount)
	assert.Zero(t, stored.ActualTotalCost)
	assert.Empty(t, stored.AppliedWorkOrderIDs)

	tco, err := f.svc.TotalCostOfOwnership(ctx, f.sc, v.ID.Hex(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 90.0, tco.TotalCost)
	assert.Equal(t, 1, tco.WorkOrderCount)

	_, err = f.svc.CompleteWorkOrder(ctx, f.sc, CompleteWorkOrderParams{WorkOrderID: wo.ID.Hex()})
	assert.ErrorIs(t, err, models.ErrInvalidTransition)
}

func TestCompleteWorkOrder_Unscheduled(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	v := f.addVehicle(t, models.Vehicle{})
	wo, err := f.svc.CreateWorkOrder(ctx, f.sc, CreateWorkOrderParams{VehicleID: v.ID.Hex(), Title: "Fix mirror"})
	require.NoError(t, err)

	updated, err := f.svc.UpdateWorkOrderCosts(ctx, f.sc, wo.ID.Hex(), 30, 20, 0)
	require.NoError(t, err)
	assert.Equal(t, 50.0, updated.TotalCost)

	done, err := f.svc.CompleteWorkOrder(ctx, f.sc, CompleteWorkOrderParams{WorkOrderID: wo.ID.Hex()})
	require.NoError(t, err)
	assert.Nil(t, done.Schedule)
	assert.True(t, baseTime.Equal(*done.WorkOrder.ServiceDate))
	assert.NotContains(t, f.events.types(), models.EventScheduleAdvanced)

	_, err = f.svc.CompleteWorkOrder(ctx, f.sc, CompleteWorkOrderParams{WorkOrderID: wo.ID.Hex()})
	assert.ErrorIs(t, err, models.ErrInvalidTransition)
	assert.NotErrorIs(t, err, models.ErrAlreadyApplied)
}

func TestCompleteWorkOrder_EngineHoursDefaultsToVehicleMeter(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	v := f.addVehicle(t, models.Vehicle{Category: "forklift", InitialEngineHours: 100, EngineHours: 612})
	ms, err := f.svc.CreateSchedule(ctx, f.sc, CreateScheduleParams{
		VehicleID: v.ID.Hex(), Name: "Hydraulics", RecurrenceType: models.RecurrenceEngineHours, RecurrenceInterval: 500,
	})
	require.NoError(t, err)
	wo, err := f.svc.CreateWorkOrder(ctx, f.sc, CreateWorkOrderParams{VehicleID: v.ID.Hex(), ScheduleID: ms.ID.Hex(), Title: "Hydraulic service"})
	require.NoError(t, err)

	done, err := f.svc.CompleteWorkOrder(ctx, f.sc, CompleteWorkOrderParams{WorkOrderID: wo.ID.Hex()})
	require.NoError(t, err)
	require.NotNil(t, done.WorkOrder.EngineHoursAtService)
	assert.Equal(t, 612.0, *done.WorkOrder.EngineHoursAtService)
	assert.Nil(t, done.WorkOrder.OdometerAtService)
	require.NotNil(t, done.Schedule.LastCompletedReading)
	assert.Equal(t, 612.0, *done.Schedule.LastCompletedReading)
}

func TestCorrectiveWorkOrderFromDefects(t *testing.T) {
	ctx := context.Background()

	complete := func(t *testing.T, f *fixture, failing map[string]models.DefectSeverity) *models.Inspection {
		t.Helper()
		in := f.startedInspection(t, "light_vehicle")
		for name, sev := range failing {
			_, err := f.svc.RecordItemResult(ctx, f.sc, RecordItemParams{
				InspectionID: in.ID.Hex(),
				ItemID:       itemByName(t, in, name).ID.Hex(),
				Result:       models.ItemResultFail,
				Severity:     sev,
				Description:  name + " faulty",
			})
			require.NoError(t, err)
		}
		fresh, err := f.svc.GetInspection(ctx, f.sc, in.ID.Hex())
		require.NoError(t, err)
		f.answerAll(t, fresh, models.ItemResultPass)
		out, err := f.svc.CompleteInspection(ctx, f.sc, CompleteInspectionParams{InspectionID: in.ID.Hex()})
		require.NoError(t, err)
		assert.Nil(t, out.WorkOrder)
		return out.Inspection
	}

	t.Run("safety critical when any item is", func(t *testing.T) {
		f := newFixture(t, Options{})
		in := complete(t, f, map[string]models.DefectSeverity{"Service brake": models.SeverityCritical, "Horn": ""})

		wo, err := f.svc.CreateWorkOrderFromInspectionDefects(ctx, f.sc, in.ID.Hex())
		require.NoError(t, err)
		assert.True(t, wo.SafetyCritical)
		assert.Equal(t, "critical", wo.Priority)
		assert.Equal(t, models.MaintenanceCorrective, wo.Kind)
		assert.Equal(t, in.ID.Hex(), wo.InspectionID)
		assert.Len(t, wo.InspectionItemIDs, 2)
		assert.Contains(t, wo.Description, "Service brake faulty")
		assert.Contains(t, wo.Description, "Horn faulty")

		_, err = f.svc.CreateWorkOrderFromInspectionDefects(ctx, f.sc, in.ID.Hex())
		assert.ErrorIs(t, err, models.ErrAlreadyApplied)

		done, err := f.svc.CompleteWorkOrder(ctx, f.sc, CompleteWorkOrderParams{WorkOrderID: wo.ID.Hex()})
		require.NoError(t, err)
		assert.ElementsMatch(t, wo.InspectionItemIDs, done.RepairedItems)

		repaired, err := f.svc.GetInspection(ctx, f.sc, in.ID.Hex())
		require.NoError(t, err)
		assert.Empty(t, repaired.OpenDefects())
		brake := itemByName(t, repaired, "Service brake")
		assert.True(t, brake.RepairCompleted)
		assert.Equal(t, "user-1", brake.RepairCompletedBy)
		assert.Equal(t, wo.ID.Hex(), brake.RepairWorkOrderID)
		assert.Equal(t, models.ResultFailCritical, repaired.OverallResult)
	})

	t.Run("minor only", func(t *testing.T) {
		f := newFixture(t, Options{})
		in := complete(t, f, map[string]models.DefectSeverity{"Horn": ""})

		wo, err := f.svc.CreateWorkOrderFromInspectionDefects(ctx, f.sc, in.ID.Hex())
		require.NoError(t, err)
		assert.False(t, wo.SafetyCritical)
		assert.Equal(t, "medium", wo.Priority)
		require.NotNil(t, wo.DueDate)
		assert.True(t, baseTime.AddDate(0, 0, 7).Equal(*wo.DueDate))
	})

	t.Run("no defects", func(t *testing.T) {
		f := newFixture(t, Options{})
		in := complete(t, f, nil)
		_, err := f.svc.CreateWorkOrderFromInspectionDefects(ctx, f.sc, in.ID.Hex())
		assert.ErrorIs(t, err, models.ErrValidation)
	})

	t.Run("inspection not completed", func(t *testing.T) {
		f := newFixture(t, Options{})
		in := f.startedInspection(t, "light_vehicle")
		_, err := f.svc.CreateWorkOrderFromInspectionDefects(ctx, f.sc, in.ID.Hex())
		assert.ErrorIs(t, err, models.ErrInvalidTransition)
	})

	t.Run("raised on completion", func(t *testing.T) {
		f := newFixture(t, Options{})
		in := f.startedInspection(t, "light_vehicle")
		_, err := f.svc.RecordItemResult(ctx, f.sc, RecordItemParams{
			InspectionID: in.ID.Hex(),
			ItemID:       itemByName(t, in, "Horn").ID.Hex(),
			Result:       models.ItemResultFail,
		})
		require.NoError(t, err)
		fresh, err := f.svc.GetInspection(ctx, f.sc, in.ID.Hex())
		require.NoError(t, err)
		f.answerAll(t, fresh, models.ItemResultPass)

		out, err := f.svc.CompleteInspection(ctx, f.sc, CompleteInspectionParams{InspectionID: in.ID.Hex(), RaiseWorkOrder: true})
		require.NoError(t, err)
		require.NotNil(t, out.WorkOrder)
		assert.Equal(t, out.WorkOrder.ID.Hex(), out.Inspection.CorrectiveWorkOrderID)
		assert.True(t, out.CanOperate)
	})
}
