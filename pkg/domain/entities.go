// Package domain defines the core persistent entities, value types, and
// rule evaluation primitives used by outletops.
package domain

import (
	"time"
)

// EntityType identifies the type of record stored in the core domain.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntityOutlet identifies a restaurant outlet record.
	EntityOutlet EntityType = "outlet"
)

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Base contains common fields for all domain records.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// OperationalStatus is the business-facing state of an outlet, independent of
// its pipeline stage.
type OperationalStatus string

// Canonical operational statuses accepted by direct entry and import.
const (
	StatusActive              OperationalStatus = "Active"
	StatusInactive            OperationalStatus = "Inactive"
	StatusClosed              OperationalStatus = "Closed"
	StatusDeboarded           OperationalStatus = "Deboarded"
	StatusTrainingPending     OperationalStatus = "Training pending"
	StatusConfirmationPending OperationalStatus = "Confirmation Pending"
	// StatusOnboarding is assigned when no status is supplied.
	StatusOnboarding OperationalStatus = "onboarding in progress"
)

// DefaultStatus is the status given to outlets created without one.
const DefaultStatus = StatusOnboarding

// Statuses returns the closed set of operational statuses.
func Statuses() []OperationalStatus {
	return []OperationalStatus{
		StatusActive,
		StatusInactive,
		StatusClosed,
		StatusDeboarded,
		StatusTrainingPending,
		StatusConfirmationPending,
		StatusOnboarding,
	}
}

// Valid reports whether the status is a member of the closed set.
func (s OperationalStatus) Valid() bool {
	for _, candidate := range Statuses() {
		if candidate == s {
			return true
		}
	}
	return false
}

// StageLog records one visit of an outlet to a pipeline stage.
type StageLog struct {
	Stage     Stage     `json:"stage"`
	Timestamp time.Time `json:"timestamp"`
	Note      string    `json:"note,omitempty"`
}

// Outlet is a restaurant location moving through the onboarding pipeline.
// Brand and City are empty when unknown.
type Outlet struct {
	Base
	Name         string            `json:"name"`
	Brand        string            `json:"brand,omitempty"`
	City         string            `json:"city,omitempty"`
	Status       OperationalStatus `json:"status"`
	Description  string            `json:"description"`
	CurrentStage Stage             `json:"current_stage"`
	LastMovedAt  time.Time         `json:"last_moved_at"`
	History      []StageLog        `json:"history"`
	IsArchived   bool              `json:"is_archived"`
	ArchivedAt   *time.Time        `json:"archived_at,omitempty"`
}

// Clone returns a deep copy so callers can mutate history without aliasing.
func (o Outlet) Clone() Outlet {
	cp := o
	if o.History != nil {
		cp.History = make([]StageLog, len(o.History))
		copy(cp.History, o.History)
	}
	if o.ArchivedAt != nil {
		t := *o.ArchivedAt
		cp.ArchivedAt = &t
	}
	return cp
}

// Change describes a mutation applied to an entity during a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Before ChangePayload
	After  ChangePayload
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate supported CRUD operations captured in audit trail.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityType
	EntityID string
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	return "transaction blocked by rules"
}
