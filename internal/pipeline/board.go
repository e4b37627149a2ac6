package pipeline

import (
	"strings"

	"outletops/pkg/domain"
)

// Column is one stage lane of the pipeline board.
type Column struct {
	Stage   domain.StageInfo `json:"stage"`
	Outlets []domain.Outlet  `json:"outlets"`
}

// Board groups active outlets by current stage, one column per stage in
// pipeline order. Empty stages still get a column.
func Board(outlets []domain.Outlet) []Column {
	infos := domain.StageInfos()
	cols := make([]Column, len(infos))
	for i, info := range infos {
		cols[i] = Column{Stage: info, Outlets: []domain.Outlet{}}
	}
	for _, o := range Active(outlets) {
		if idx := o.CurrentStage.Index(); idx >= 0 {
			cols[idx].Outlets = append(cols[idx].Outlets, o)
		}
	}
	return cols
}

// Search returns active outlets whose name, description, or any history note
// contains term, ignoring case. A blank term matches every active outlet.
func Search(outlets []domain.Outlet, term string) []domain.Outlet {
	active := Active(outlets)
	needle := strings.ToLower(strings.TrimSpace(term))
	if needle == "" {
		return active
	}
	out := make([]domain.Outlet, 0)
	for _, o := range active {
		if matches(o, needle) {
			out = append(out, o)
		}
	}
	return out
}

func matches(o domain.Outlet, needle string) bool {
	if strings.Contains(strings.ToLower(o.Name), needle) ||
		strings.Contains(strings.ToLower(o.Description), needle) {
		return true
	}
	for _, log := range o.History {
		if log.Note != "" && strings.Contains(strings.ToLower(log.Note), needle) {
			return true
		}
	}
	return false
}

// FindByName returns the first active outlet whose name equals name,
// ignoring case and surrounding whitespace.
func FindByName(outlets []domain.Outlet, name string) (domain.Outlet, bool) {
	needle := strings.TrimSpace(name)
	for _, o := range outlets {
		if o.IsArchived {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(o.Name), needle) {
			return o, true
		}
	}
	return domain.Outlet{}, false
}
