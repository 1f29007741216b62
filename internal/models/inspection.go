package models

import (
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// InspectionType is the kind of audit pass being performed.
type InspectionType string

const (
	InspectionTypePreTrip  InspectionType = "pre_trip"
	InspectionTypePostTrip InspectionType = "post_trip"
	InspectionTypeDaily    InspectionType = "daily"
	InspectionTypeWeekly   InspectionType = "weekly"
	InspectionTypeMonthly  InspectionType = "monthly"
	InspectionTypeAnnual   InspectionType = "annual"
)

// IsValidInspectionType checks if t is one of the six inspection kinds.
func IsValidInspectionType(t InspectionType) bool {
	switch t {
	case InspectionTypePreTrip, InspectionTypePostTrip, InspectionTypeDaily,
		InspectionTypeWeekly, InspectionTypeMonthly, InspectionTypeAnnual:
		return true
	default:
		return false
	}
}

// InspectionStatus is the lifecycle state of an inspection.
type InspectionStatus string

const (
	InspectionPending    InspectionStatus = "pending"
	InspectionInProgress InspectionStatus = "in_progress"
	InspectionCompleted  InspectionStatus = "completed"
	InspectionApproved   InspectionStatus = "approved"
	InspectionRejected   InspectionStatus = "rejected"
)

// IsTerminal reports whether no further transition is possible. A rejected
// inspection is never reopened; the inspector raises a new one.
func (s InspectionStatus) IsTerminal() bool {
	return s == InspectionApproved || s == InspectionRejected
}

// OverallResult summarises the defects found by a completed inspection.
type OverallResult string

const (
	ResultPass         OverallResult = "pass"
	ResultPassMinor    OverallResult = "pass_minor"
	ResultFailMajor    OverallResult = "fail_major"
	ResultFailCritical OverallResult = "fail_critical"
)

// InspectionSource tells how the inspection was raised.
type InspectionSource string

const (
	SourceSupervisor  InspectionSource = "supervisor"
	SourceDriverQuick InspectionSource = "driver_quick"
)

// InspectionCounts is the aggregate tally over an inspection's items.
type InspectionCounts struct {
	TotalItems      int `bson:"total_items" json:"total_items"`
	ItemsPassed     int `bson:"items_passed" json:"items_passed"`
	ItemsFailed     int `bson:"items_failed" json:"items_failed"`
	ItemsNA         int `bson:"items_na" json:"items_na"`
	ItemsPending    int `bson:"items_pending" json:"items_pending"`
	CriticalDefects int `bson:"critical_defect_count" json:"critical_defect_count"`
	MajorDefects    int `bson:"major_defect_count" json:"major_defect_count"`
	MinorDefects    int `bson:"minor_defect_count" json:"minor_defect_count"`
}

// Tally counts results and defect severities over items. It always walks the
// full set so the counters cannot drift from the items.
func Tally(items []InspectionItem) InspectionCounts {
	c := InspectionCounts{TotalItems: len(items)}
	for _, it := range items {
		switch it.Result {
		case ItemResultPass:
			c.ItemsPassed++
		case ItemResultFail:
			c.ItemsFailed++
		case ItemResultNA:
			c.ItemsNA++
		default:
			c.ItemsPending++
		}
		if it.Result != ItemResultFail {
			continue
		}
		switch it.DefectSeverity {
		case SeverityCritical:
			c.CriticalDefects++
		case SeverityMajor:
			c.MajorDefects++
		case SeverityMinor:
			c.MinorDefects++
		}
	}
	return c
}

// OverallResultFor derives the overall result from the defect counters alone.
func OverallResultFor(c InspectionCounts) OverallResult {
	switch {
	case c.CriticalDefects > 0:
		return ResultFailCritical
	case c.MajorDefects > 0:
		return ResultFailMajor
	case c.MinorDefects > 0:
		return ResultPassMinor
	default:
		return ResultPass
	}
}

// Inspection is a single audit pass over one vehicle's checklist.
type Inspection struct {
	ID                    primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	BranchID              string             `bson:"branch_id,omitempty" json:"branch_id,omitempty"`
	VehicleID             string             `bson:"vehicle_id" json:"vehicle_id"`
	Type                  InspectionType     `bson:"type" json:"type"`
	Source                InspectionSource   `bson:"source" json:"source"`
	EquipmentCategory     string             `bson:"equipment_category" json:"equipment_category"`
	TemplateVersion       string             `bson:"template_version" json:"template_version"`
	Status                InspectionStatus   `bson:"status" json:"status"`
	InspectorID           string             `bson:"inspector_id,omitempty" json:"inspector_id,omitempty"`
	InspectionDate        *time.Time         `bson:"inspection_date,omitempty" json:"inspection_date,omitempty"`
	OdometerReading       *float64           `bson:"odometer_reading,omitempty" json:"odometer_reading,omitempty"`
	InspectionCounts      `bson:",inline"`
	OverallResult         OverallResult      `bson:"overall_result,omitempty" json:"overall_result,omitempty"`
	Items                 []InspectionItem   `bson:"items" json:"items"`
	Notes                 string             `bson:"notes,omitempty" json:"notes,omitempty"`
	CompletedAt           *time.Time         `bson:"completed_at,omitempty" json:"completed_at,omitempty"`
	CompletedBy           string             `bson:"completed_by,omitempty" json:"completed_by,omitempty"`
	NextInspectionDue     *time.Time         `bson:"next_inspection_due,omitempty" json:"next_inspection_due,omitempty"`
	ApprovedBy            string             `bson:"approved_by,omitempty" json:"approved_by,omitempty"`
	ApprovedAt            *time.Time         `bson:"approved_at,omitempty" json:"approved_at,omitempty"`
	ApprovalNotes         string             `bson:"approval_notes,omitempty" json:"approval_notes,omitempty"`
	ComplianceVerified    bool               `bson:"compliance_verified" json:"compliance_verified"`
	RejectedBy            string             `bson:"rejected_by,omitempty" json:"rejected_by,omitempty"`
	RejectedAt            *time.Time         `bson:"rejected_at,omitempty" json:"rejected_at,omitempty"`
	RejectionReason       string             `bson:"rejection_reason,omitempty" json:"rejection_reason,omitempty"`
	CorrectiveWorkOrderID string             `bson:"corrective_work_order_id,omitempty" json:"corrective_work_order_id,omitempty"`
	Version               int64              `bson:"version" json:"version"`
	CreatedAt             time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt             time.Time          `bson:"updated_at" json:"updated_at"`
}

func (in *Inspection) transitionError(action, reason string) error {
	return &TransitionError{
		Entity: "inspection",
		ID:     in.ID.Hex(),
		From:   string(in.Status),
		Action: action,
		Reason: reason,
	}
}

// Recompute refreshes the aggregate counters from the full item set.
func (in *Inspection) Recompute() {
	in.InspectionCounts = Tally(in.Items)
}

// Item returns a pointer to the item with the given id, or nil.
func (in *Inspection) Item(id string) *InspectionItem {
	for i := range in.Items {
		if in.Items[i].ID.Hex() == id {
			return &in.Items[i]
		}
	}
	return nil
}

// ItemBySlug returns a pointer to the item with the given slug, or nil.
func (in *Inspection) ItemBySlug(slug string) *InspectionItem {
	for i := range in.Items {
		if in.Items[i].Slug == slug {
			return &in.Items[i]
		}
	}
	return nil
}

// Start moves a pending inspection to in_progress.
func (in *Inspection) Start(actorID string, now time.Time) error {
	if in.Status != InspectionPending {
		return in.transitionError("start", "inspection must be pending")
	}
	in.Status = InspectionInProgress
	in.InspectionDate = &now
	if actorID != "" {
		in.InspectorID = actorID
	}
	in.UpdatedAt = now
	return nil
}

// EnsureRecordable checks that item results may still be recorded.
func (in *Inspection) EnsureRecordable() error {
	if in.Status != InspectionPending && in.Status != InspectionInProgress {
		return in.transitionError("record item result", "inspection must be pending or in_progress")
	}
	return nil
}

// Complete closes the checklist. nextDue overrides the default follow-up date,
// which is intervalMonths after now.
func (in *Inspection) Complete(actorID, notes string, nextDue *time.Time, intervalMonths int, now time.Time) error {
	if in.Status != InspectionInProgress {
		return in.transitionError("complete", "inspection must be in_progress")
	}
	in.Recompute()
	if in.ItemsPending > 0 {
		return &IncompleteChecklistError{InspectionID: in.ID.Hex(), Pending: in.ItemsPending}
	}
	if intervalMonths <= 0 {
		intervalMonths = 1
	}
	due := now.AddDate(0, intervalMonths, 0)
	if nextDue != nil {
		due = *nextDue
	}

	in.OverallResult = OverallResultFor(in.InspectionCounts)
	in.Status = InspectionCompleted
	in.CompletedAt = &now
	in.CompletedBy = actorID
	in.NextInspectionDue = &due
	if notes != "" {
		in.Notes = notes
	}
	in.UpdatedAt = now
	return nil
}

// Approve signs off a completed inspection. Terminal.
func (in *Inspection) Approve(actorID, notes string, now time.Time) error {
	if in.Status != InspectionCompleted {
		return in.transitionError("approve", "inspection must be completed")
	}
	in.Status = InspectionApproved
	in.ApprovedBy = actorID
	in.ApprovedAt = &now
	in.ApprovalNotes = notes
	in.ComplianceVerified = true
	in.UpdatedAt = now
	return nil
}

// Reject refuses a completed inspection. Terminal; a reason is mandatory.
func (in *Inspection) Reject(actorID, reason string, now time.Time) error {
	if in.Status != InspectionCompleted {
		return in.transitionError("reject", "inspection must be completed")
	}
	if strings.TrimSpace(reason) == "" {
		return ValidationError("inspection %s: rejection reason is required", in.ID.Hex())
	}
	in.Status = InspectionRejected
	in.RejectedBy = actorID
	in.RejectedAt = &now
	in.RejectionReason = reason
	in.UpdatedAt = now
	return nil
}

// IsOverdueForApproval is advisory: completed, and sla has elapsed since completion.
func (in *Inspection) IsOverdueForApproval(now time.Time, sla time.Duration) bool {
	if in.Status != InspectionCompleted || in.CompletedAt == nil {
		return false
	}
	return now.Sub(*in.CompletedAt) > sla
}

// CanVehicleOperate is false as soon as a critical defect is recorded,
// whatever the approval status.
func (in *Inspection) CanVehicleOperate() bool {
	return in.OverallResult != ResultFailCritical && in.CriticalDefects == 0
}

// OpenDefects returns the failed items that still require repair.
func (in *Inspection) OpenDefects() []InspectionItem {
	var out []InspectionItem
	for _, it := range in.Items {
		if it.HasOpenDefect() {
			out = append(out, it)
		}
	}
	return out
}
