package lifecycle

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/samber/lo"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/ukydev/fleet-safety/internal/models"
	"github.com/ukydev/fleet-safety/internal/policy"
)

// QuickInspectionParams is a driver's full quick checklist. Answers is keyed
// by item slug; every slug of the quick template must be present. Defects
// holds optional descriptions keyed by the same slugs.
type QuickInspectionParams struct {
	VehicleID       string
	Type            models.InspectionType
	Answers         map[string]string
	Defects         map[string]string
	OdometerReading *float64
	Notes           string
}

// ParseQuickAnswer maps a driver's answer to an item result.
func ParseQuickAnswer(answer string) (models.ItemResult, error) {
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "pass", "ok", "yes", "good", "true":
		return models.ItemResultPass, nil
	case "fail", "defect", "no", "bad", "false":
		return models.ItemResultFail, nil
	case "na", "n/a", "not_applicable":
		return models.ItemResultNA, nil
	default:
		return "", models.ValidationError("unrecognised answer %q", answer)
	}
}

// SubmitQuickInspection builds an inspection from the eight-item quick
// template and completes it in one atomic step. It never lingers in
// in_progress.
func (s *Service) SubmitQuickInspection(ctx context.Context, sc Scope, p QuickInspectionParams) (*InspectionOutcome, error) {
	const op = "lifecycle.SubmitQuickInspection"
	typ := p.Type
	if typ == "" {
		typ = models.InspectionTypePreTrip
	}
	if !models.IsValidInspectionType(typ) {
		return nil, fmt.Errorf("%s: %w", op, models.ValidationError("unknown inspection type %q", typ))
	}

	tpl := s.templates.QuickTemplate()
	slugs := tpl.Slugs()
	if unknown := lo.Without(lo.Keys(p.Answers), slugs...); len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, fmt.Errorf("%s: %w", op, models.ValidationError("unknown checklist items %v", unknown))
	}
	if missing := lo.Without(slugs, lo.Keys(p.Answers)...); len(missing) > 0 {
		return nil, fmt.Errorf("%s: %w", op, models.ValidationError("missing answers for %v", missing))
	}
	if unknown := lo.Without(lo.Keys(p.Defects), slugs...); len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, fmt.Errorf("%s: %w", op, models.ValidationError("defects for unknown checklist items %v", unknown))
	}
	results := make(map[string]models.ItemResult, len(slugs))
	for _, slug := range slugs {
		r, err := ParseQuickAnswer(p.Answers[slug])
		if err != nil {
			return nil, fmt.Errorf("%s: %s: %w", op, slug, err)
		}
		results[slug] = r
	}

	var out InspectionOutcome
	err := s.store.WithTransaction(ctx, func(ctx context.Context) error {
		out = InspectionOutcome{}
		v, err := s.vehicle(ctx, sc, p.VehicleID)
		if err != nil {
			return err
		}
		now := s.now()
		in := &models.Inspection{
			ID:                primitive.NewObjectID(),
			BranchID:          branchFor(sc, v.BranchID),
			VehicleID:         p.VehicleID,
			Type:              typ,
			Source:            models.SourceDriverQuick,
			EquipmentCategory: tpl.Key,
			TemplateVersion:   tpl.Version,
			Status:            models.InspectionPending,
			OdometerReading:   p.OdometerReading,
			Items:             tpl.Instantiate(),
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		if err := in.Start(sc.ActorID, now); err != nil {
			return err
		}
		for i := range in.Items {
			item := &in.Items[i]
			policy.Apply(item, policy.Outcome{
				Result:      results[item.Slug],
				Description: p.Defects[item.Slug],
			}, sc.ActorID, now)
		}
		if err := in.Complete(sc.ActorID, p.Notes, nil, s.opts.InspectionIntervalMonths, now); err != nil {
			return err
		}
		if err := s.writeBackInspection(ctx, sc, in, now); err != nil {
			return err
		}
		if s.opts.AutoCorrective && len(in.OpenDefects()) > 0 {
			wo, err := s.raiseCorrective(ctx, sc, in, now)
			if err != nil {
				return err
			}
			out.WorkOrder = wo
		}
		if err := s.store.InsertInspection(ctx, in); err != nil {
			return err
		}
		out.Inspection = in
		out.CanOperate = in.CanVehicleOperate()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.afterCompletion(ctx, sc, &out)
	return &out, nil
}
