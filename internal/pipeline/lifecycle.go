package pipeline

import (
	"time"

	"outletops/pkg/domain"
)

// Seed prepares a newly created outlet: an unset stage becomes the first
// stage and an empty history receives one entry for the creation stage.
func Seed(o *domain.Outlet, at time.Time, note string) {
	if o.CurrentStage == "" {
		o.CurrentStage = domain.FirstStage()
	}
	if o.Status == "" {
		o.Status = domain.DefaultStatus
	}
	if o.LastMovedAt.IsZero() {
		o.LastMovedAt = at
	}
	if len(o.History) == 0 {
		o.History = []domain.StageLog{{Stage: o.CurrentStage, Timestamp: at, Note: note}}
	}
}

// Archive soft-deletes the outlet. Stage and history are untouched.
// Archiving an archived outlet keeps the original archive time.
func Archive(o *domain.Outlet, now time.Time) bool {
	if o.IsArchived {
		return false
	}
	at := now
	o.IsArchived = true
	o.ArchivedAt = &at
	return true
}

// Restore returns an archived outlet to the active pipeline.
func Restore(o *domain.Outlet) bool {
	if !o.IsArchived && o.ArchivedAt == nil {
		return false
	}
	o.IsArchived = false
	o.ArchivedAt = nil
	return true
}

// Active filters out archived outlets, preserving order.
func Active(outlets []domain.Outlet) []domain.Outlet {
	out := make([]domain.Outlet, 0, len(outlets))
	for _, o := range outlets {
		if !o.IsArchived {
			out = append(out, o)
		}
	}
	return out
}

// Archived returns only archived outlets, preserving order.
func Archived(outlets []domain.Outlet) []domain.Outlet {
	out := make([]domain.Outlet, 0)
	for _, o := range outlets {
		if o.IsArchived {
			out = append(out, o)
		}
	}
	return out
}
