package core

import (
	"context"
	"fmt"
	"strings"

	"outletops/pkg/domain"
)

const duplicateNameRuleName = "duplicate_name"

// DuplicateNameRule warns when a created or renamed outlet shares its name,
// case-insensitively, with another active outlet. Import matching relies on
// names, so duplicates make later imports ambiguous. It never blocks.
func DuplicateNameRule() domain.Rule {
	return duplicateNameRule{}
}

type duplicateNameRule struct{}

func (duplicateNameRule) Name() string { return duplicateNameRuleName }

func (duplicateNameRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	var counts map[string]int
	for _, change := range changes {
		if change.Entity != domain.EntityOutlet || change.Action == domain.ActionDelete {
			continue
		}
		after, ok := domain.DecodeChangePayload[domain.Outlet](change.After)
		if !ok || after.IsArchived {
			continue
		}
		if before, ok := domain.DecodeChangePayload[domain.Outlet](change.Before); ok && strings.EqualFold(before.Name, after.Name) && !before.IsArchived {
			continue
		}
		if counts == nil {
			counts = activeNameCounts(view)
		}
		if n := counts[nameKey(after.Name)]; n > 1 {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     duplicateNameRuleName,
				Severity: domain.SeverityWarn,
				Message:  fmt.Sprintf("%d active outlets are named %q", n, after.Name),
				Entity:   domain.EntityOutlet,
				EntityID: after.ID,
			})
		}
	}
	return res, nil
}

func activeNameCounts(view domain.RuleView) map[string]int {
	counts := make(map[string]int)
	for _, o := range view.ListOutlets() {
		if !o.IsArchived {
			counts[nameKey(o.Name)]++
		}
	}
	return counts
}

func nameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
