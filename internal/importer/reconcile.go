package importer

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"outletops/internal/pipeline"
	"outletops/internal/vocabulary"
	"outletops/pkg/domain"
)

// Action classifies a successfully reconciled row.
type Action string

const (
	ActionNew    Action = "New"
	ActionUpdate Action = "Update"
)

// Failure reasons reported for rejected rows.
const (
	ReasonMissingName       = "Missing Name"
	ReasonInvalidStage      = "Invalid Pipeline Stage"
	ReasonUnrecognizedBrand = "Unrecognized Brand"
	ReasonUnrecognizedCity  = "Unrecognized City"
	ReasonInvalidStatus     = "Invalid Operational Status"
)

// Notes and placeholders written by reconciliation.
const (
	UnnamedRow             = "Unnamed Row"
	PlaceholderDescription = "Imported via Bulk Processor."
	SeedNote               = "Imported via Excel"
	MoveNote               = "Moved via bulk import"
)

// Record is a validated row ready to be committed.
type Record struct {
	Row    int           `json:"row"`
	Action Action        `json:"action"`
	Outlet domain.Outlet `json:"outlet"`
}

// Failure describes a rejected row.
type Failure struct {
	Row           int    `json:"row"`
	Name          string `json:"name"`
	Reason        string `json:"reason"`
	OffendingText string `json:"offending_text,omitempty"`
}

// Summary is the outcome of reconciling one batch. Every input row lands in
// exactly one of the two lists.
type Summary struct {
	Success  []Record  `json:"success"`
	Failures []Failure `json:"failures"`
}

// Counts tallies a summary for display before commit.
type Counts struct {
	New      int `json:"new"`
	Update   int `json:"update"`
	Failures int `json:"failures"`
}

// Counts returns the New/Update/failure tallies.
func (s Summary) Counts() Counts {
	c := Counts{Failures: len(s.Failures)}
	for _, r := range s.Success {
		switch r.Action {
		case ActionNew:
			c.New++
		case ActionUpdate:
			c.Update++
		}
	}
	return c
}

// Options supplies the clock and id source used for new records.
type Options struct {
	Now   time.Time
	NewID func() string
}

func (o Options) now() time.Time {
	if o.Now.IsZero() {
		return time.Now().UTC()
	}
	return o.Now
}

func (o Options) newID() string {
	if o.NewID == nil {
		return uuid.NewString()
	}
	return o.NewID()
}

// Reconcile validates rows against the vocabulary and classifies each one as
// New or Update by case-insensitive name match against the non-archived
// outlets in existing. Neither input is modified.
func Reconcile(rows []Row, existing []domain.Outlet, opts Options) Summary {
	live := pipeline.Active(existing)
	now := opts.now()
	summary := Summary{Success: []Record{}, Failures: []Failure{}}
	for idx, row := range rows {
		number := row.Number
		if number == 0 {
			number = idx + 2
		}
		rec, fail := reconcileRow(row, live, now, opts)
		if fail != nil {
			fail.Row = number
			summary.Failures = append(summary.Failures, *fail)
			continue
		}
		rec.Row = number
		summary.Success = append(summary.Success, rec)
	}
	return summary
}

func reconcileRow(row Row, live []domain.Outlet, now time.Time, opts Options) (Record, *Failure) {
	rawName, ok := row.Get(FieldName)
	if !ok {
		return Record{}, &Failure{Name: UnnamedRow, Reason: ReasonMissingName}
	}
	name := strings.TrimSpace(rawName)
	fail := func(reason, text string) (Record, *Failure) {
		return Record{}, &Failure{Name: name, Reason: reason, OffendingText: text}
	}

	existing, found := pipeline.FindByName(live, name)

	stage := domain.FirstStage()
	if found {
		stage = existing.CurrentStage
	}
	if raw, ok := row.Get(FieldStage); ok {
		matched, ok := vocabulary.MatchStage(raw)
		if !ok {
			return fail(ReasonInvalidStage, raw)
		}
		stage = matched
	}

	var brand string
	if found {
		brand = existing.Brand
	}
	if raw, ok := row.Get(FieldBrand); ok {
		matched, ok := vocabulary.MatchBrand(raw)
		if !ok {
			return fail(ReasonUnrecognizedBrand, strings.TrimSpace(raw))
		}
		brand = matched
	}

	var city string
	if found {
		city = existing.City
	}
	if raw, ok := row.Get(FieldCity); ok {
		matched, ok := vocabulary.MatchCity(raw)
		if !ok {
			return fail(ReasonUnrecognizedCity, strings.TrimSpace(raw))
		}
		city = matched
	}

	status := domain.DefaultStatus
	if found && existing.Status != "" {
		status = existing.Status
	}
	if raw, ok := row.Get(FieldStatus); ok {
		matched, ok := vocabulary.MatchStatus(raw)
		if !ok {
			return fail(ReasonInvalidStatus, raw)
		}
		status = matched
	}

	// Unparseable dates are ignored on purpose.
	at := now
	if raw, ok := row.Get(FieldLiveDate); ok {
		if parsed, ok := ParseLiveDate(raw); ok {
			at = parsed
		}
	}

	description := ""
	if raw, ok := row.Get(FieldDescription); ok {
		description = strings.TrimSpace(raw)
	}

	if found {
		o := existing.Clone()
		o.Name = name
		o.Brand = brand
		o.City = city
		o.Status = status
		if description != "" && (o.Description == "" || o.Description == PlaceholderDescription) {
			o.Description = description
		}
		if o.Description == "" {
			o.Description = PlaceholderDescription
		}
		pipeline.Jump(&o, stage, at, now, MoveNote)
		return Record{Action: ActionUpdate, Outlet: o}, nil
	}

	if description == "" {
		description = PlaceholderDescription
	}
	o := domain.Outlet{
		Base:         domain.Base{ID: opts.newID(), CreatedAt: now},
		Name:         name,
		Brand:        brand,
		City:         city,
		Status:       status,
		Description:  description,
		CurrentStage: stage,
	}
	pipeline.Seed(&o, at, SeedNote)
	return Record{Action: ActionNew, Outlet: o}, nil
}
