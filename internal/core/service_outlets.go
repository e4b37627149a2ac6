package core

import (
	"context"
	"strings"
	"time"

	"outletops/internal/analytics"
	"outletops/internal/pipeline"
	"outletops/internal/vocabulary"
)

// DefaultDescription is used when an outlet is added without one.
const DefaultDescription = "New outlet request."

// OutletInput carries direct-entry fields for AddOutlet. Brand, City and
// Status are matched case-insensitively against the vocabulary; Name falls
// back to Brand when blank.
type OutletInput struct {
	Name        string `json:"name"`
	Brand       string `json:"brand"`
	City        string `json:"city"`
	Status      string `json:"status"`
	Description string `json:"description"`
	Note        string `json:"note"`
}

// OutletPatch updates descriptive fields. Nil fields are left unchanged and
// an empty Brand or City clears it.
type OutletPatch struct {
	Name        *string `json:"name,omitempty"`
	Brand       *string `json:"brand,omitempty"`
	City        *string `json:"city,omitempty"`
	Status      *string `json:"status,omitempty"`
	Description *string `json:"description,omitempty"`
}

func resolveBrand(raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", nil
	}
	brand, ok := vocabulary.MatchBrand(raw)
	if !ok {
		return "", invalidInput("unrecognized brand %q", raw)
	}
	return brand, nil
}

func resolveCity(raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", nil
	}
	city, ok := vocabulary.MatchCity(raw)
	if !ok {
		return "", invalidInput("unrecognized city %q", raw)
	}
	return city, nil
}

func resolveStatus(raw string) (OperationalStatus, error) {
	if strings.TrimSpace(raw) == "" {
		return "", nil
	}
	status, ok := vocabulary.MatchStatus(raw)
	if !ok {
		return "", invalidInput("invalid operational status %q", raw)
	}
	return status, nil
}

// AddOutlet creates an outlet at the first stage with its history seeded by
// one entry carrying in.Note.
func (s *Service) AddOutlet(ctx context.Context, in OutletInput) (Outlet, Result, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = strings.TrimSpace(in.Brand)
	}
	var created Outlet
	res, err := s.run(ctx, OpAddOutlet, func(tx Transaction) (string, error) {
		if name == "" {
			return "", invalidInput("outlet name is required")
		}
		brand, err := resolveBrand(in.Brand)
		if err != nil {
			return "", err
		}
		city, err := resolveCity(in.City)
		if err != nil {
			return "", err
		}
		status, err := resolveStatus(in.Status)
		if err != nil {
			return "", err
		}
		desc := strings.TrimSpace(in.Description)
		if desc == "" {
			desc = DefaultDescription
		}
		now := s.now()
		o := Outlet{
			Base:        Base{ID: s.newID(), CreatedAt: now},
			Name:        name,
			Brand:       brand,
			City:        city,
			Status:      status,
			Description: desc,
		}
		pipeline.Seed(&o, now, strings.TrimSpace(in.Note))
		created, err = tx.CreateOutlet(o)
		return created.ID, err
	})
	return created, res, err
}

// GetOutlet returns the outlet with id, archived or not.
func (s *Service) GetOutlet(id string) (Outlet, error) {
	o, ok := s.store.GetOutlet(id)
	if !ok {
		return Outlet{}, ErrNotFound{ID: id}
	}
	return o, nil
}

// ListOutlets returns every outlet in insertion order.
func (s *Service) ListOutlets() []Outlet {
	return s.store.ListOutlets()
}

// ListActive returns the outlets shown on the pipeline.
func (s *Service) ListActive() []Outlet {
	return pipeline.Active(s.store.ListOutlets())
}

// ListArchived returns the archived outlets.
func (s *Service) ListArchived() []Outlet {
	return pipeline.Archived(s.store.ListOutlets())
}

// Search matches term against active outlet names, descriptions and notes.
func (s *Service) Search(term string) []Outlet {
	return pipeline.Search(s.store.ListOutlets(), term)
}

// Board groups active outlets by stage.
func (s *Service) Board() []pipeline.Column {
	return pipeline.Board(s.store.ListOutlets())
}

// mutate applies fn to a copy of the outlet and writes it back only when fn
// reports a change. Unknown ids fail with ErrNotFound.
func (s *Service) mutate(ctx context.Context, op, id string, fn func(o *Outlet, now time.Time) (bool, error)) (Outlet, bool, error) {
	var (
		out     Outlet
		changed bool
	)
	_, err := s.run(ctx, op, func(tx Transaction) (string, error) {
		current, ok := tx.FindOutlet(id)
		if !ok {
			return id, ErrNotFound{ID: id}
		}
		next := current.Clone()
		var err error
		changed, err = fn(&next, s.now())
		if err != nil {
			return id, err
		}
		if !changed {
			out = current
			return id, nil
		}
		out, err = tx.UpdateOutlet(id, func(o *Outlet) error {
			*o = next
			return nil
		})
		return id, err
	})
	if err != nil {
		return Outlet{}, false, err
	}
	return out, changed, nil
}

// UpdateDetails applies patch to the outlet. The stage, history and
// lastMovedAt are never touched.
func (s *Service) UpdateDetails(ctx context.Context, id string, patch OutletPatch) (Outlet, error) {
	o, _, err := s.mutate(ctx, OpUpdateOutlet, id, func(o *Outlet, _ time.Time) (bool, error) {
		if patch.Name != nil {
			name := strings.TrimSpace(*patch.Name)
			if name == "" {
				return false, invalidInput("outlet name is required")
			}
			o.Name = name
		}
		if patch.Brand != nil {
			brand, err := resolveBrand(*patch.Brand)
			if err != nil {
				return false, err
			}
			o.Brand = brand
		}
		if patch.City != nil {
			city, err := resolveCity(*patch.City)
			if err != nil {
				return false, err
			}
			o.City = city
		}
		if patch.Status != nil {
			status, err := resolveStatus(*patch.Status)
			if err != nil {
				return false, err
			}
			if status == "" {
				return false, invalidInput("operational status is required")
			}
			o.Status = status
		}
		if patch.Description != nil {
			o.Description = *patch.Description
		}
		return true, nil
	})
	return o, err
}

// UpdateCurrentNote sets the note on the most recent visit to the outlet's
// current stage.
func (s *Service) UpdateCurrentNote(ctx context.Context, id, note string) (Outlet, error) {
	o, _, err := s.mutate(ctx, OpUpdateCurrentNote, id, func(o *Outlet, now time.Time) (bool, error) {
		pipeline.UpsertNoteForStage(o, o.CurrentStage, note, now)
		return true, nil
	})
	return o, err
}

// MoveOutlet steps the outlet one stage in dir. The boolean is false when the
// outlet was already at the end of the pipeline in that direction.
func (s *Service) MoveOutlet(ctx context.Context, id string, dir pipeline.Direction) (Outlet, bool, error) {
	return s.mutate(ctx, OpMoveOutlet, id, func(o *Outlet, now time.Time) (bool, error) {
		if dir != pipeline.Forward && dir != pipeline.Backward {
			return false, invalidInput("unknown direction %q", dir)
		}
		return pipeline.Move(o, dir, now), nil
	})
}

// SetOutletStage jumps the outlet to stage. The boolean is false when the
// outlet is already there.
func (s *Service) SetOutletStage(ctx context.Context, id string, stage Stage) (Outlet, bool, error) {
	return s.mutate(ctx, OpSetOutletStage, id, func(o *Outlet, now time.Time) (bool, error) {
		if !stage.Valid() {
			return false, invalidInput("unknown stage %q", stage)
		}
		return pipeline.SetStage(o, stage, now), nil
	})
}

// UpsertStageNote writes note on the most recent visit to stage, creating a
// log entry when the stage was never visited.
func (s *Service) UpsertStageNote(ctx context.Context, id string, stage Stage, note string) (Outlet, error) {
	o, _, err := s.mutate(ctx, OpUpsertStageNote, id, func(o *Outlet, now time.Time) (bool, error) {
		if !stage.Valid() {
			return false, invalidInput("unknown stage %q", stage)
		}
		pipeline.UpsertNoteForStage(o, stage, note, now)
		return true, nil
	})
	return o, err
}

// UpsertStageTimestamp backdates or moves the most recent visit to stage and
// re-sorts the history.
func (s *Service) UpsertStageTimestamp(ctx context.Context, id string, stage Stage, ts time.Time) (Outlet, error) {
	o, _, err := s.mutate(ctx, OpUpsertStageTime, id, func(o *Outlet, _ time.Time) (bool, error) {
		if !stage.Valid() {
			return false, invalidInput("unknown stage %q", stage)
		}
		if ts.IsZero() {
			return false, invalidInput("timestamp is required")
		}
		pipeline.UpsertTimestampForStage(o, stage, ts.UTC())
		return true, nil
	})
	return o, err
}

// ArchiveOutlet removes the outlet from the active pipeline. Archiving an
// archived outlet is a no-op.
func (s *Service) ArchiveOutlet(ctx context.Context, id string) (Outlet, bool, error) {
	return s.mutate(ctx, OpArchiveOutlet, id, func(o *Outlet, now time.Time) (bool, error) {
		return pipeline.Archive(o, now), nil
	})
}

// RestoreOutlet returns an archived outlet to the pipeline.
func (s *Service) RestoreOutlet(ctx context.Context, id string) (Outlet, bool, error) {
	return s.mutate(ctx, OpRestoreOutlet, id, func(o *Outlet, _ time.Time) (bool, error) {
		return pipeline.Restore(o), nil
	})
}

// PermanentlyDeleteOutlet removes the outlet irrecoverably. It does not
// require the outlet to be archived; callers gate that.
func (s *Service) PermanentlyDeleteOutlet(ctx context.Context, id string) (Result, error) {
	return s.run(ctx, OpDeleteOutlet, func(tx Transaction) (string, error) {
		if _, ok := tx.FindOutlet(id); !ok {
			return id, ErrNotFound{ID: id}
		}
		return id, tx.DeleteOutlet(id)
	})
}

// Report computes pipeline analytics over the active outlets.
func (s *Service) Report(ctx context.Context) (analytics.Report, error) {
	var rep analytics.Report
	err := s.observe(ctx, OpBuildReport, func(context.Context) error {
		rep = analytics.Build(s.store.ListOutlets(), s.now())
		return nil
	})
	return rep, err
}

// Timeline returns the outlet's stage visits newest first.
func (s *Service) Timeline(ctx context.Context, id string) ([]analytics.TimelineEntry, error) {
	var entries []analytics.TimelineEntry
	err := s.observe(ctx, OpOutletTimeline, func(context.Context) error {
		o, ok := s.store.GetOutlet(id)
		if !ok {
			return ErrNotFound{ID: id}
		}
		entries = analytics.Timeline(o, s.now())
		return nil
	})
	return entries, err
}
