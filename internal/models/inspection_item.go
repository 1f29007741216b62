package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ItemResult is the outcome recorded against a checklist item.
type ItemResult string

const (
	ItemResultPending ItemResult = "pending"
	ItemResultPass    ItemResult = "pass"
	ItemResultFail    ItemResult = "fail"
	ItemResultNA      ItemResult = "na"
)

// IsValid reports whether r is a known result.
func (r ItemResult) IsValid() bool {
	switch r {
	case ItemResultPending, ItemResultPass, ItemResultFail, ItemResultNA:
		return true
	default:
		return false
	}
}

// DefectSeverity grades a failed item. The empty value means "not classified yet".
type DefectSeverity string

const (
	SeverityNone     DefectSeverity = "none"
	SeverityMinor    DefectSeverity = "minor"
	SeverityMajor    DefectSeverity = "major"
	SeverityCritical DefectSeverity = "critical"
)

// IsDefect reports whether s is one of minor, major or critical.
func (s DefectSeverity) IsDefect() bool {
	return s == SeverityMinor || s == SeverityMajor || s == SeverityCritical
}

// InspectionItem is one checklist row. Items are embedded in their inspection
// document and never stored on their own.
type InspectionItem struct {
	ID                 primitive.ObjectID `bson:"_id" json:"id"`
	Category           string             `bson:"category" json:"category"`
	Name               string             `bson:"name" json:"name"`
	Slug               string             `bson:"slug,omitempty" json:"slug,omitempty"`
	Sequence           int                `bson:"sequence" json:"sequence"`
	Result             ItemResult         `bson:"result" json:"result"`
	DefectSeverity     DefectSeverity     `bson:"defect_severity,omitempty" json:"defect_severity,omitempty"`
	SeverityOnFail     DefectSeverity     `bson:"severity_on_fail,omitempty" json:"severity_on_fail,omitempty"`
	DefectDescription  string             `bson:"defect_description,omitempty" json:"defect_description,omitempty"`
	Notes              string             `bson:"notes,omitempty" json:"notes,omitempty"`
	RepairRequired     bool               `bson:"repair_required" json:"repair_required"`
	RepairDueDate      *time.Time         `bson:"repair_due_date,omitempty" json:"repair_due_date,omitempty"`
	RepairCompleted    bool               `bson:"repair_completed" json:"repair_completed"`
	RepairCompletedAt  *time.Time         `bson:"repair_completed_at,omitempty" json:"repair_completed_at,omitempty"`
	RepairCompletedBy  string             `bson:"repair_completed_by,omitempty" json:"repair_completed_by,omitempty"`
	RepairWorkOrderID  string             `bson:"repair_work_order_id,omitempty" json:"repair_work_order_id,omitempty"`
	SafetyCritical     bool               `bson:"safety_critical" json:"safety_critical"`
	Compliance         bool               `bson:"compliance" json:"compliance"`
	ComplianceStandard string             `bson:"compliance_standard,omitempty" json:"compliance_standard,omitempty"`
	RecordedBy         string             `bson:"recorded_by,omitempty" json:"recorded_by,omitempty"`
	RecordedAt         *time.Time         `bson:"recorded_at,omitempty" json:"recorded_at,omitempty"`
}

// HasOpenDefect reports whether the item failed and still awaits repair.
func (it InspectionItem) HasOpenDefect() bool {
	return it.Result == ItemResultFail && it.RepairRequired && !it.RepairCompleted
}
