package recurrence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/ukydev/fleet-safety/internal/models"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func completedWorkOrder(serviced time.Time, cost float64) models.WorkOrder {
	return models.WorkOrder{
		ID:          primitive.NewObjectID(),
		Status:      models.WorkOrderCompleted,
		ServiceDate: &serviced,
		TotalCost:   cost,
	}
}

func TestOffset(t *testing.T) {
	from := date(2024, 1, 15)
	tests := []struct {
		typ      models.RecurrenceType
		interval float64
		want     time.Time
		ok       bool
	}{
		{models.RecurrenceDaily, 0, date(2024, 1, 16), true},
		{models.RecurrenceDaily, 3, date(2024, 1, 18), true},
		{models.RecurrenceWeekly, 1, date(2024, 1, 22), true},
		{models.RecurrenceWeekly, 2, date(2024, 1, 29), true},
		{models.RecurrenceMonthly, 1, date(2024, 2, 15), true},
		{models.RecurrenceQuarterly, 1, date(2024, 4, 15), true},
		{models.RecurrenceSemiAnnual, 1, date(2024, 7, 15), true},
		{models.RecurrenceAnnual, 1, date(2025, 1, 15), true},
		{models.RecurrenceAnnual, 2, date(2026, 1, 15), true},
		{models.RecurrenceOnce, 1, time.Time{}, false},
		{models.RecurrenceOdometer, 10000, time.Time{}, false},
		{models.RecurrenceEngineHours, 250, time.Time{}, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.typ), func(t *testing.T) {
			got, ok := Offset(tt.typ, tt.interval, from)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOffset_ClampsToMonthEnd(t *testing.T) {
	got, _ := Offset(models.RecurrenceMonthly, 1, date(2024, 1, 31))
	assert.Equal(t, date(2024, 2, 29), got)

	got, _ = Offset(models.RecurrenceMonthly, 1, date(2023, 1, 31))
	assert.Equal(t, date(2023, 2, 28), got)

	got, _ = Offset(models.RecurrenceAnnual, 1, date(2024, 2, 29))
	assert.Equal(t, date(2025, 2, 28), got)

	got, _ = Offset(models.RecurrenceQuarterly, 1, date(2024, 11, 30))
	assert.Equal(t, date(2025, 2, 28), got)
}

func TestAdvance_MonthlyRoundTrip(t *testing.T) {
	last := date(2024, 1, 15)
	due := date(2024, 2, 15)
	s := &models.MaintenanceSchedule{
		ID:                 primitive.NewObjectID(),
		RecurrenceType:     models.RecurrenceMonthly,
		RecurrenceInterval: 1,
		LastCompletedDate:  &last,
		NextDueDate:        &due,
		CompletedCount:     1,
		Status:             models.ScheduleActive,
	}

	wo := completedWorkOrder(date(2024, 2, 15), 180)
	require.NoError(t, Advance(s, wo, time.Now()))

	require.NotNil(t, s.NextDueDate)
	assert.Equal(t, date(2024, 3, 15), *s.NextDueDate)
	assert.Equal(t, date(2024, 2, 15), *s.LastCompletedDate)
	assert.Equal(t, 2, s.CompletedCount)
	assert.Equal(t, 180.0, s.ActualTotalCost)
	assert.Equal(t, wo.ID.Hex(), s.LastWorkOrderID)
}

func TestAdvance_IsIdempotentPerWorkOrder(t *testing.T) {
	s := &models.MaintenanceSchedule{
		ID:                 primitive.NewObjectID(),
		RecurrenceType:     models.RecurrenceWeekly,
		RecurrenceInterval: 1,
		Status:             models.ScheduleActive,
	}
	wo := completedWorkOrder(date(2024, 6, 1), 75)

	require.NoError(t, Advance(s, wo, time.Now()))
	before := *s
	before.AppliedWorkOrderIDs = append([]string(nil), s.AppliedWorkOrderIDs...)

	err := Advance(s, wo, time.Now())
	require.ErrorIs(t, err, models.ErrAlreadyApplied)
	assert.Equal(t, before.CompletedCount, s.CompletedCount)
	assert.Equal(t, before.ActualTotalCost, s.ActualTotalCost)
	assert.Equal(t, before.AppliedWorkOrderIDs, s.AppliedWorkOrderIDs)
	assert.Equal(t, *before.NextDueDate, *s.NextDueDate)
}

func TestAdvance_OlderServiceDoesNotMoveBackwards(t *testing.T) {
	last := date(2024, 5, 20)
	due := date(2024, 6, 20)
	s := &models.MaintenanceSchedule{
		ID:                 primitive.NewObjectID(),
		RecurrenceType:     models.RecurrenceMonthly,
		RecurrenceInterval: 1,
		LastCompletedDate:  &last,
		NextDueDate:        &due,
		CompletedCount:     1,
		ActualTotalCost:    100,
		Status:             models.ScheduleActive,
	}

	late := completedWorkOrder(date(2024, 4, 2), 40)
	require.NoError(t, Advance(s, late, time.Now()))

	assert.Equal(t, date(2024, 5, 20), *s.LastCompletedDate)
	assert.Equal(t, date(2024, 6, 20), *s.NextDueDate)
	assert.Equal(t, 2, s.CompletedCount)
	assert.Equal(t, 140.0, s.ActualTotalCost)
	assert.True(t, s.HasApplied(late.ID.Hex()))

	t.Run("meter reading", func(t *testing.T) {
		reading := 50000.0
		m := &models.MaintenanceSchedule{
			ID:                   primitive.NewObjectID(),
			RecurrenceType:       models.RecurrenceOdometer,
			RecurrenceInterval:   10000,
			LastCompletedReading: &reading,
			Status:               models.ScheduleActive,
		}
		wo := completedWorkOrder(date(2024, 4, 2), 0)
		older := 41000.0
		wo.OdometerAtService = &older
		require.NoError(t, Advance(m, wo, time.Now()))
		assert.Equal(t, 50000.0, *m.LastCompletedReading)

		newer := completedWorkOrder(date(2024, 6, 2), 0)
		at := 60100.0
		newer.OdometerAtService = &at
		require.NoError(t, Advance(m, newer, time.Now()))
		assert.Equal(t, 60100.0, *m.LastCompletedReading)
		assert.Equal(t, date(2024, 6, 2), *m.LastCompletedDate)
	})
}

func TestAdvance_OncePausesSchedule(t *testing.T) {
	s := &models.MaintenanceSchedule{
		ID:             primitive.NewObjectID(),
		RecurrenceType: models.RecurrenceOnce,
		Status:         models.ScheduleActive,
	}
	require.NoError(t, Advance(s, completedWorkOrder(date(2024, 6, 1), 10), time.Now()))
	assert.Nil(t, s.NextDueDate)
	assert.Equal(t, models.SchedulePaused, s.Status)
	assert.Equal(t, 1, s.CompletedCount)
}

func TestAdvance_Rejects(t *testing.T) {
	t.Run("not completed", func(t *testing.T) {
		s := &models.MaintenanceSchedule{ID: primitive.NewObjectID(), RecurrenceType: models.RecurrenceDaily, Status: models.ScheduleActive}
		wo := completedWorkOrder(date(2024, 6, 1), 10)
		wo.Status = models.WorkOrderInProgress
		assert.ErrorIs(t, Advance(s, wo, time.Now()), models.ErrValidation)
		assert.Zero(t, s.CompletedCount)
	})

	t.Run("cancelled schedule", func(t *testing.T) {
		s := &models.MaintenanceSchedule{ID: primitive.NewObjectID(), RecurrenceType: models.RecurrenceDaily, Status: models.ScheduleCancelled}
		assert.ErrorIs(t, Advance(s, completedWorkOrder(date(2024, 6, 1), 10), time.Now()), models.ErrInvalidTransition)
		assert.Zero(t, s.CompletedCount)
	})
}

func TestMeterDue_Odometer(t *testing.T) {
	s := models.MaintenanceSchedule{
		ID:                 primitive.NewObjectID(),
		RecurrenceType:     models.RecurrenceOdometer,
		RecurrenceInterval: 10000,
	}
	vehicle := models.Vehicle{InitialOdometer: 50000}

	vehicle.OdometerReading = 59000
	st, err := MeterDueForVehicle(s, vehicle)
	require.NoError(t, err)
	assert.False(t, st.Due)
	assert.Equal(t, 60000.0, st.DueAt)
	assert.Equal(t, 1000.0, st.Remaining)

	vehicle.OdometerReading = 60500
	st, err = MeterDueForVehicle(s, vehicle)
	require.NoError(t, err)
	assert.True(t, st.Due)
	assert.Equal(t, -500.0, st.Remaining)
}

func TestMeterDue_AfterCompletionUsesWorkOrderReading(t *testing.T) {
	s := &models.MaintenanceSchedule{
		ID:                 primitive.NewObjectID(),
		RecurrenceType:     models.RecurrenceOdometer,
		RecurrenceInterval: 10000,
		Status:             models.ScheduleActive,
	}
	wo := completedWorkOrder(date(2024, 6, 1), 300)
	reading := 61000.0
	wo.OdometerAtService = &reading
	require.NoError(t, Advance(s, wo, time.Now()))
	assert.Nil(t, s.NextDueDate)

	st := MeterDue(*s, 50000, 70000)
	assert.False(t, st.Due)
	assert.Equal(t, 71000.0, st.DueAt)

	st = MeterDue(*s, 50000, 71000)
	assert.True(t, st.Due)
}

func TestMeterDue_EngineHours(t *testing.T) {
	s := models.MaintenanceSchedule{
		ID:                 primitive.NewObjectID(),
		RecurrenceType:     models.RecurrenceEngineHours,
		RecurrenceInterval: 250,
	}
	st, err := MeterDueForVehicle(s, models.Vehicle{InitialEngineHours: 1000, EngineHours: 1249})
	require.NoError(t, err)
	assert.False(t, st.Due)

	st, err = MeterDueForVehicle(s, models.Vehicle{InitialEngineHours: 1000, EngineHours: 1250})
	require.NoError(t, err)
	assert.True(t, st.Due)

	s.RecurrenceType = models.RecurrenceMonthly
	_, err = MeterDueForVehicle(s, models.Vehicle{})
	assert.ErrorIs(t, err, models.ErrValidation)
}
