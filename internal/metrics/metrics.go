// Package metrics exposes lifecycle outcomes as Prometheus counters.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ukydev/fleet-safety/internal/models"
)

const namespace = "fleetsafety"

// Lifecycle counts inspection, work-order and schedule outcomes.
type Lifecycle struct {
	inspectionsCompleted *prometheus.CounterVec
	vehiclesGrounded     prometheus.Counter
	workOrdersCompleted  *prometheus.CounterVec
	maintenanceCost      *prometheus.CounterVec
	schedulesAdvanced    *prometheus.CounterVec
}

// NewLifecycle creates the collectors and registers them with reg. A nil
// registerer leaves them unregistered.
func NewLifecycle(reg prometheus.Registerer) (*Lifecycle, error) {
	m := &Lifecycle{
		inspectionsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "inspections_completed_total",
				Help:      "Completed inspections by source and overall result.",
			},
			[]string{"source", "result"},
		),
		vehiclesGrounded: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "vehicles_grounded_total",
				Help:      "Inspections that left a vehicle unfit to operate.",
			},
		),
		workOrdersCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "work_orders_completed_total",
				Help:      "Completed work orders by maintenance kind.",
			},
			[]string{"kind"},
		),
		maintenanceCost: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "maintenance_cost_total",
				Help:      "Sum of completed work-order costs by maintenance kind.",
			},
			[]string{"kind"},
		),
		schedulesAdvanced: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "schedules_advanced_total",
				Help:      "Maintenance schedules advanced by a completed work order.",
			},
			[]string{"recurrence"},
		),
	}
	if reg == nil {
		return m, nil
	}
	for _, c := range m.collectors() {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Lifecycle) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.inspectionsCompleted,
		m.vehiclesGrounded,
		m.workOrdersCompleted,
		m.maintenanceCost,
		m.schedulesAdvanced,
	}
}

func (m *Lifecycle) InspectionCompleted(source models.InspectionSource, result models.OverallResult) {
	m.inspectionsCompleted.WithLabelValues(string(source), string(result)).Inc()
}

func (m *Lifecycle) VehicleGrounded() {
	m.vehiclesGrounded.Inc()
}

func (m *Lifecycle) WorkOrderCompleted(kind models.MaintenanceKind, cost float64) {
	m.workOrdersCompleted.WithLabelValues(string(kind)).Inc()
	if cost > 0 {
		m.maintenanceCost.WithLabelValues(string(kind)).Add(cost)
	}
}

func (m *Lifecycle) ScheduleAdvanced(recurrence models.RecurrenceType) {
	m.schedulesAdvanced.WithLabelValues(string(recurrence)).Inc()
}
