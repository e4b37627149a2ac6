package core

import (
	"context"
	"fmt"

	"outletops/pkg/domain"
)

const outletInvariantsRuleName = "outlet_invariants"

// OutletInvariantsRule blocks writes that would leave an outlet with an
// unknown stage or status, an empty history or name, or an archive flag out
// of step with its archive time.
func OutletInvariantsRule() domain.Rule {
	return outletInvariantsRule{}
}

type outletInvariantsRule struct{}

func (outletInvariantsRule) Name() string { return outletInvariantsRuleName }

func (outletInvariantsRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.Entity != domain.EntityOutlet || change.Action == domain.ActionDelete {
			continue
		}
		o, ok := domain.DecodeChangePayload[domain.Outlet](change.After)
		if !ok {
			continue
		}
		for _, msg := range outletProblems(o) {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     outletInvariantsRuleName,
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("outlet %s %s", o.ID, msg),
				Entity:   domain.EntityOutlet,
				EntityID: o.ID,
			})
		}
	}
	return res, nil
}

func outletProblems(o domain.Outlet) []string {
	var problems []string
	if o.Name == "" {
		problems = append(problems, "has no name")
	}
	if !o.CurrentStage.Valid() {
		problems = append(problems, fmt.Sprintf("is at unknown stage %q", o.CurrentStage))
	}
	if !o.Status.Valid() {
		problems = append(problems, fmt.Sprintf("has unknown status %q", o.Status))
	}
	if len(o.History) == 0 {
		problems = append(problems, "has an empty history")
	}
	for _, log := range o.History {
		if !log.Stage.Valid() {
			problems = append(problems, fmt.Sprintf("logs unknown stage %q", log.Stage))
			break
		}
	}
	if o.IsArchived != (o.ArchivedAt != nil) {
		problems = append(problems, "has an archive flag without a matching archive time")
	}
	return problems
}
