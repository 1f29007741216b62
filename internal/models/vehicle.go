package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Location represents a geographical location with latitude and longitude coordinates.
type Location struct {
	Lat float64 `bson:"lat" json:"lat"`
	Lon float64 `bson:"lon" json:"lon"`
}

// Vehicle represents a fleet vehicle. The lifecycle engine reads its meters
// and writes back inspection due dates; everything else is owned by the
// surrounding fleet records.
type Vehicle struct {
	ID                 primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	BranchID           string             `bson:"branch_id,omitempty" json:"branch_id,omitempty"`
	Registration       string             `bson:"registration" json:"registration"`
	Type               string             `bson:"type" json:"type"`         // "ICE" or "EV"
	Category           string             `bson:"category" json:"category"` // checklist catalog key: "light_vehicle", "hgv", "forklift"
	Make               string             `bson:"make" json:"make"`
	Model              string             `bson:"model" json:"model"`
	Year               int                `bson:"year" json:"year"`
	CurrentLocation    Location           `bson:"current_location" json:"current_location"`
	Status             string             `bson:"status" json:"status"` // "active" or "inactive"
	InitialOdometer    float64            `bson:"initial_odometer" json:"initial_odometer"`
	OdometerReading    float64            `bson:"odometer_reading" json:"odometer_reading"` // in kilometers
	InitialEngineHours float64            `bson:"initial_engine_hours" json:"initial_engine_hours"`
	EngineHours        float64            `bson:"engine_hours" json:"engine_hours"`
	LastInspectionAt   *time.Time         `bson:"last_inspection_at,omitempty" json:"last_inspection_at,omitempty"`
	NextInspectionDue  *time.Time         `bson:"next_inspection_due,omitempty" json:"next_inspection_due,omitempty"`
	InsuranceExpiry    *time.Time         `bson:"insurance_expiry,omitempty" json:"insurance_expiry,omitempty"`
	RegistrationExpiry *time.Time         `bson:"registration_expiry,omitempty" json:"registration_expiry,omitempty"`
	CreatedAt          time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt          time.Time          `bson:"updated_at" json:"updated_at"`
}

// ApplyReading raises the vehicle meters to the reading. Meters never roll
// back, so lower values are ignored. It reports whether anything changed.
func (v *Vehicle) ApplyReading(odometer, engineHours *float64) bool {
	changed := false
	if odometer != nil && *odometer > v.OdometerReading {
		v.OdometerReading = *odometer
		changed = true
	}
	if engineHours != nil && *engineHours > v.EngineHours {
		v.EngineHours = *engineHours
		changed = true
	}
	return changed
}
