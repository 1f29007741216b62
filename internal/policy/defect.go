// Package policy holds the defect classification rules: which severity a
// failed checklist item gets and how soon it has to be repaired.
package policy

import (
	"time"

	"github.com/ukydev/fleet-safety/internal/models"
)

// DefectSeverityRule decides the severity of a failed item. It is either
// Generic (derived from the item's flags) or Explicit (a fixed severity from
// the inspector or from the checklist template).
type DefectSeverityRule interface {
	severity(item models.InspectionItem) models.DefectSeverity
}

// Generic grades by item flags: safety-critical or compliance items are major,
// everything else is minor.
type Generic struct{}

func (Generic) severity(item models.InspectionItem) models.DefectSeverity {
	switch {
	case item.SafetyCritical:
		return models.SeverityMajor
	case item.Compliance:
		return models.SeverityMajor
	default:
		return models.SeverityMinor
	}
}

// Explicit always yields the given severity.
type Explicit struct {
	Severity models.DefectSeverity
}

func (e Explicit) severity(models.InspectionItem) models.DefectSeverity {
	return e.Severity
}

// RuleFor resolves the rule for one item. A caller-supplied severity wins over
// the template's severity_on_fail, which wins over the generic rule. Values
// that are not a defect grade are skipped.
func RuleFor(item models.InspectionItem, requested models.DefectSeverity) DefectSeverityRule {
	if requested.IsDefect() {
		return Explicit{Severity: requested}
	}
	if item.SeverityOnFail.IsDefect() {
		return Explicit{Severity: item.SeverityOnFail}
	}
	return Generic{}
}

// Severity grades an item. Items that did not fail have no defect.
func Severity(item models.InspectionItem, failed bool, rule DefectSeverityRule) models.DefectSeverity {
	if !failed {
		return models.SeverityNone
	}
	if rule == nil {
		rule = Generic{}
	}
	if sev := rule.severity(item); sev.IsDefect() {
		return sev
	}
	return Generic{}.severity(item)
}

// RepairDueDate returns the repair deadline for a severity.
func RepairDueDate(sev models.DefectSeverity, now time.Time) time.Time {
	switch sev {
	case models.SeverityCritical:
		return now
	case models.SeverityMajor:
		return now.AddDate(0, 0, 1)
	case models.SeverityMinor:
		return now.AddDate(0, 0, 7)
	default:
		return now.AddDate(0, 0, 30)
	}
}

// Outcome is what the caller reports for one item.
type Outcome struct {
	Result      models.ItemResult
	Severity    models.DefectSeverity
	Description string
	Notes       string
}

// Apply records the outcome on the item and classifies it. A failed item
// always ends up with a defect severity, repair_required and a due date; a
// passed or n/a item has its defect fields cleared.
func Apply(item *models.InspectionItem, out Outcome, actorID string, now time.Time) {
	item.Result = out.Result
	item.Notes = out.Notes
	item.RecordedBy = actorID
	item.RecordedAt = &now

	if out.Result != models.ItemResultFail {
		item.DefectSeverity = models.SeverityNone
		if out.Result == models.ItemResultPending {
			item.DefectSeverity = ""
		}
		item.DefectDescription = ""
		item.RepairRequired = false
		item.RepairDueDate = nil
		return
	}

	sev := Severity(*item, true, RuleFor(*item, out.Severity))
	due := RepairDueDate(sev, now)
	item.DefectSeverity = sev
	item.DefectDescription = out.Description
	item.RepairRequired = true
	item.RepairDueDate = &due
	item.RepairCompleted = false
	item.RepairCompletedAt = nil
	item.RepairCompletedBy = ""
	item.RepairWorkOrderID = ""
}
