package models

import "time"

// MeterReading is an odometer / engine-hours sample reported by a vehicle.
type MeterReading struct {
	VehicleID   string    `bson:"vehicle_id" json:"vehicle_id"`
	Timestamp   time.Time `bson:"timestamp" json:"timestamp"`
	Location    *Location `bson:"location,omitempty" json:"location,omitempty"`
	Odometer    *float64  `bson:"odometer,omitempty" json:"odometer,omitempty"`
	EngineHours *float64  `bson:"engine_hours,omitempty" json:"engine_hours,omitempty"`
}
