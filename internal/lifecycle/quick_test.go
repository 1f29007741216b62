package lifecycle

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ukydev/fleet-safety/internal/db"
	"github.com/ukydev/fleet-safety/internal/models"
)

func allAnswers(answer string) map[string]string {
	return map[string]string{
		"tyres": answer, "lights": answer, "brakes": answer, "wipers": answer,
		"fluids": answer, "seatbelts": answer, "horn": answer, "cab_cleanliness": answer,
	}
}

func TestSubmitQuickInspection_AllPass(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{AutoCorrective: true})
	v := f.addVehicle(t, models.Vehicle{OdometerReading: 1000})

	out, err := f.svc.SubmitQuickInspection(ctx, f.sc, QuickInspectionParams{
		VehicleID:       v.ID.Hex(),
		Answers:         allAnswers("pass"),
		OdometerReading: ptr(1200.0),
	})
	require.NoError(t, err)

	in := out.Inspection
	assert.Equal(t, models.InspectionCompleted, in.Status)
	assert.Equal(t, models.ResultPass, in.OverallResult)
	assert.Equal(t, models.SourceDriverQuick, in.Source)
	assert.Equal(t, models.InspectionTypePreTrip, in.Type)
	assert.Equal(t, 8, in.TotalItems)
	assert.Equal(t, 8, in.ItemsPassed)
	assert.Zero(t, in.CriticalDefects+in.MajorDefects+in.MinorDefects)
	assert.Nil(t, out.WorkOrder)
	assert.True(t, out.CanOperate)

	stored, err := f.svc.GetInspection(ctx, f.sc, in.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, models.InspectionCompleted, stored.Status)

	orders, err := f.store.FindWorkOrders(ctx, db.WorkOrderFilter{})
	require.NoError(t, err)
	assert.Empty(t, orders)
	assert.NotContains(t, f.events.types(), models.EventWorkOrderCreated)

	updated := f.vehicle(t, v.ID.Hex())
	assert.Equal(t, 1200.0, updated.OdometerReading)
	assert.NotNil(t, updated.NextInspectionDue)
}

func TestSubmitQuickInspection_DefectsRaiseCorrectiveWorkOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{AutoCorrective: true})
	v := f.addVehicle(t, models.Vehicle{})

	answers := allAnswers("ok")
	answers["brakes"] = "fail"
	answers["horn"] = "defect"
	answers["cab_cleanliness"] = "n/a"
	out, err := f.svc.SubmitQuickInspection(ctx, f.sc, QuickInspectionParams{
		VehicleID: v.ID.Hex(),
		Answers:   answers,
		Defects:   map[string]string{"brakes": "pedal spongy"},
	})
	require.NoError(t, err)

	in := out.Inspection
	assert.Equal(t, models.ResultFailCritical, in.OverallResult)
	assert.Equal(t, 1, in.CriticalDefects)
	assert.Equal(t, 1, in.MinorDefects)
	assert.Equal(t, 1, in.ItemsNA)
	assert.False(t, out.CanOperate)

	require.NotNil(t, out.WorkOrder)
	wo := out.WorkOrder
	assert.Equal(t, models.MaintenanceCorrective, wo.Kind)
	assert.True(t, wo.SafetyCritical)
	assert.Equal(t, "critical", wo.Priority)
	assert.Len(t, wo.InspectionItemIDs, 2)
	assert.Contains(t, wo.Description, "pedal spongy")
	assert.Equal(t, baseTime, *wo.DueDate)
	assert.Equal(t, wo.ID.Hex(), in.CorrectiveWorkOrderID)
	assert.Equal(t, wo.ID.Hex(), in.ItemBySlug("brakes").RepairWorkOrderID)

	_, err = f.svc.CreateWorkOrderFromInspectionDefects(ctx, f.sc, in.ID.Hex())
	assert.ErrorIs(t, err, models.ErrAlreadyApplied)

	assert.Contains(t, f.events.types(), models.EventVehicleGrounded)
	assert.Contains(t, f.events.types(), models.EventWorkOrderCreated)
}

func TestSubmitQuickInspection_Rejects(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	v := f.addVehicle(t, models.Vehicle{})

	missing := allAnswers("pass")
	delete(missing, "horn")
	unknown := allAnswers("pass")
	unknown["sunroof"] = "pass"
	garbled := allAnswers("pass")
	garbled["tyres"] = "probably"

	failedBrakes := allAnswers("pass")
	failedBrakes["brakes"] = "fail"

	tests := []struct {
		name    string
		answers map[string]string
		defects map[string]string
		want    string
	}{
		{"missing slug", missing, nil, "horn"},
		{"unknown slug", unknown, nil, "sunroof"},
		{"unparseable answer", garbled, nil, "probably"},
		{"defect for unknown slug", failedBrakes, map[string]string{"brake": "pedal spongy"}, "brake"},
		{"defect for unknown slug alongside a known one", failedBrakes, map[string]string{"brakes": "pedal spongy", "tyre": "bald"}, "tyre"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.SubmitQuickInspection(ctx, f.sc, QuickInspectionParams{VehicleID: v.ID.Hex(), Answers: tt.answers, Defects: tt.defects})
			require.ErrorIs(t, err, models.ErrValidation)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	inspections, err := f.store.FindInspections(ctx, db.InspectionFilter{})
	require.NoError(t, err)
	assert.Empty(t, inspections)
}

func TestSubmitQuickInspection_UnknownVehicleLeavesNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{AutoCorrective: true})

	_, err := f.svc.SubmitQuickInspection(ctx, f.sc, QuickInspectionParams{
		VehicleID: "65f000000000000000000001",
		Answers:   allAnswers("fail"),
	})
	require.ErrorIs(t, err, models.ErrNotFound)

	orders, err := f.store.FindWorkOrders(ctx, db.WorkOrderFilter{})
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestParseQuickAnswer(t *testing.T) {
	tests := []struct {
		in   string
		want models.ItemResult
		ok   bool
	}{
		{"pass", models.ItemResultPass, true},
		{" OK ", models.ItemResultPass, true},
		{"fail", models.ItemResultFail, true},
		{"Defect", models.ItemResultFail, true},
		{"N/A", models.ItemResultNA, true},
		{"", "", false},
		{"pending", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseQuickAnswer(tt.in)
			if !tt.ok {
				assert.ErrorIs(t, err, models.ErrValidation)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
