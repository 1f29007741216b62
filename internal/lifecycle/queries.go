package lifecycle

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/samber/lo"

	"github.com/ukydev/fleet-safety/internal/db"
	"github.com/ukydev/fleet-safety/internal/models"
	"github.com/ukydev/fleet-safety/internal/recurrence"
)

// DueQuery sets the look-ahead windows of a due report. Zero values use the
// service options.
type DueQuery struct {
	ScheduleHorizon   time.Duration
	InspectionHorizon time.Duration
	ExpiryHorizon     time.Duration
}

// ScheduleDue is a time-based schedule that is overdue or due soon.
type ScheduleDue struct {
	ScheduleID  string    `json:"schedule_id"`
	VehicleID   string    `json:"vehicle_id"`
	Name        string    `json:"name"`
	ServiceType string    `json:"service_type"`
	DueDate     time.Time `json:"due_date"`
}

// VehicleInspectionDue is a vehicle whose next inspection is overdue or due soon.
type VehicleInspectionDue struct {
	VehicleID    string    `json:"vehicle_id"`
	Registration string    `json:"registration"`
	DueDate      time.Time `json:"due_date"`
}

// ExpiryDue is an insurance or registration expiry inside the horizon.
type ExpiryDue struct {
	VehicleID    string    `json:"vehicle_id"`
	Registration string    `json:"registration"`
	Document     string    `json:"document"` // "insurance" or "registration"
	ExpiresAt    time.Time `json:"expires_at"`
	Expired      bool      `json:"expired"`
}

// ApprovalDue is a completed inspection waiting past the approval SLA.
type ApprovalDue struct {
	InspectionID string    `json:"inspection_id"`
	VehicleID    string    `json:"vehicle_id"`
	CompletedAt  time.Time `json:"completed_at"`
}

// DueReport partitions everything that needs attention.
type DueReport struct {
	GeneratedAt        time.Time                `json:"generated_at"`
	OverdueSchedules   []ScheduleDue            `json:"overdue_schedules"`
	DueSoonSchedules   []ScheduleDue            `json:"due_soon_schedules"`
	MeterSchedulesDue  []recurrence.MeterStatus `json:"meter_schedules_due"`
	OverdueInspections []VehicleInspectionDue   `json:"overdue_inspections"`
	DueSoonInspections []VehicleInspectionDue   `json:"due_soon_inspections"`
	ExpiringDocuments  []ExpiryDue              `json:"expiring_documents"`
	AwaitingApproval   []ApprovalDue            `json:"awaiting_approval"`
}

// DueAndOverdue builds the due report for the scope's branch. Time-based
// schedules are overdue when next_due_date < now and due soon when it falls
// within the horizon; meter schedules are checked against current readings.
func (s *Service) DueAndOverdue(ctx context.Context, sc Scope, q DueQuery) (*DueReport, error) {
	const op = "lifecycle.DueAndOverdue"
	if q.ScheduleHorizon <= 0 {
		q.ScheduleHorizon = s.opts.ScheduleHorizon
	}
	if q.InspectionHorizon <= 0 {
		q.InspectionHorizon = s.opts.InspectionHorizon
	}
	if q.ExpiryHorizon <= 0 {
		q.ExpiryHorizon = s.opts.ExpiryHorizon
	}
	now := s.now()
	report := &DueReport{GeneratedAt: now}

	schedules, err := s.store.FindSchedules(ctx, db.ScheduleFilter{
		BranchID: sc.BranchID,
		Statuses: []models.ScheduleStatus{models.ScheduleActive},
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	vehicles, err := s.store.FindVehicles(ctx, db.VehicleFilter{BranchID: sc.BranchID})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	byID := lo.KeyBy(vehicles, func(v models.Vehicle) string { return v.ID.Hex() })

	for _, ms := range schedules {
		switch {
		case ms.RecurrenceType.IsTimeBased():
			if ms.NextDueDate == nil {
				continue
			}
			due := ScheduleDue{
				ScheduleID:  ms.ID.Hex(),
				VehicleID:   ms.VehicleID,
				Name:        ms.Name,
				ServiceType: ms.ServiceType,
				DueDate:     *ms.NextDueDate,
			}
			if ms.NextDueDate.Before(now) {
				report.OverdueSchedules = append(report.OverdueSchedules, due)
			} else if !ms.NextDueDate.After(now.Add(q.ScheduleHorizon)) {
				report.DueSoonSchedules = append(report.DueSoonSchedules, due)
			}
		case ms.RecurrenceType.IsMeterBased():
			v, ok := byID[ms.VehicleID]
			if !ok {
				continue
			}
			st, err := recurrence.MeterDueForVehicle(ms, v)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", op, err)
			}
			if st.Due {
				report.MeterSchedulesDue = append(report.MeterSchedulesDue, st)
			}
		}
	}

	for _, v := range vehicles {
		if v.NextInspectionDue != nil {
			due := VehicleInspectionDue{VehicleID: v.ID.Hex(), Registration: v.Registration, DueDate: *v.NextInspectionDue}
			if v.NextInspectionDue.Before(now) {
				report.OverdueInspections = append(report.OverdueInspections, due)
			} else if !v.NextInspectionDue.After(now.Add(q.InspectionHorizon)) {
				report.DueSoonInspections = append(report.DueSoonInspections, due)
			}
		}
		docs := []struct {
			name string
			at   *time.Time
		}{
			{"insurance", v.InsuranceExpiry},
			{"registration", v.RegistrationExpiry},
		}
		for _, d := range docs {
			at := d.at
			if at == nil || at.After(now.Add(q.ExpiryHorizon)) {
				continue
			}
			report.ExpiringDocuments = append(report.ExpiringDocuments, ExpiryDue{
				VehicleID:    v.ID.Hex(),
				Registration: v.Registration,
				Document:     d.name,
				ExpiresAt:    *at,
				Expired:      at.Before(now),
			})
		}
	}

	completed, err := s.store.FindInspections(ctx, db.InspectionFilter{
		BranchID: sc.BranchID,
		Statuses: []models.InspectionStatus{models.InspectionCompleted},
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	for _, in := range completed {
		if in.IsOverdueForApproval(now, s.opts.ApprovalSLA) {
			report.AwaitingApproval = append(report.AwaitingApproval, ApprovalDue{
				InspectionID: in.ID.Hex(),
				VehicleID:    in.VehicleID,
				CompletedAt:  *in.CompletedAt,
			})
		}
	}

	sortSchedules(report.OverdueSchedules)
	sortSchedules(report.DueSoonSchedules)
	// equal expiries keep vehicle id order, then insurance before registration
	sort.SliceStable(report.ExpiringDocuments, func(i, j int) bool {
		a, b := report.ExpiringDocuments[i], report.ExpiringDocuments[j]
		if !a.ExpiresAt.Equal(b.ExpiresAt) {
			return a.ExpiresAt.Before(b.ExpiresAt)
		}
		return a.VehicleID < b.VehicleID
	})
	return report, nil
}

func sortSchedules(items []ScheduleDue) {
	sort.SliceStable(items, func(i, j int) bool { return items[i].DueDate.Before(items[j].DueDate) })
}

// CostSummary is the total cost of ownership of one vehicle over a range.
type CostSummary struct {
	VehicleID        string     `json:"vehicle_id"`
	From             *time.Time `json:"from,omitempty"`
	To               *time.Time `json:"to,omitempty"`
	PartsCost        float64    `json:"parts_cost"`
	LaborCost        float64    `json:"labor_cost"`
	VendorCost       float64    `json:"vendor_cost"`
	TotalCost        float64    `json:"total_cost"`
	WorkOrderCount   int        `json:"work_order_count"`
	ScheduledCount   int        `json:"scheduled_count"`
	UnscheduledCount int        `json:"unscheduled_count"`
	// PreventiveRatio is scheduled / total, zero when there is no work.
	PreventiveRatio float64 `json:"preventive_ratio"`
}

// TotalCostOfOwnership sums the cost components of the vehicle's completed
// work orders with a service date in [from, to]. Either bound may be nil.
func (s *Service) TotalCostOfOwnership(ctx context.Context, sc Scope, vehicleID string, from, to *time.Time) (*CostSummary, error) {
	const op = "lifecycle.TotalCostOfOwnership"
	if from != nil && to != nil && to.Before(*from) {
		return nil, fmt.Errorf("%s: %w", op, models.ValidationError("range end %s is before start %s", to.Format(time.DateOnly), from.Format(time.DateOnly)))
	}
	if _, err := s.vehicle(ctx, sc, vehicleID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	orders, err := s.store.FindWorkOrders(ctx, db.WorkOrderFilter{
		BranchID:    sc.BranchID,
		VehicleID:   vehicleID,
		Statuses:    []models.WorkOrderStatus{models.WorkOrderCompleted, models.WorkOrderVerified},
		ServiceFrom: from,
		ServiceTo:   to,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	sum := &CostSummary{
		VehicleID:      vehicleID,
		From:           from,
		To:             to,
		PartsCost:      lo.SumBy(orders, func(wo models.WorkOrder) float64 { return wo.PartsCost }),
		LaborCost:      lo.SumBy(orders, func(wo models.WorkOrder) float64 { return wo.LaborCost }),
		VendorCost:     lo.SumBy(orders, func(wo models.WorkOrder) float64 { return wo.VendorCost }),
		WorkOrderCount: len(orders),
		ScheduledCount: lo.CountBy(orders, func(wo models.WorkOrder) bool { return wo.IsScheduled() }),
	}
	sum.TotalCost = sum.PartsCost + sum.LaborCost + sum.VendorCost
	sum.UnscheduledCount = sum.WorkOrderCount - sum.ScheduledCount
	if sum.WorkOrderCount > 0 {
		sum.PreventiveRatio = float64(sum.ScheduledCount) / float64(sum.WorkOrderCount)
	}
	return sum, nil
}
