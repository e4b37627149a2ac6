package domain

import "context"

// Transaction exposes the domain operations that a persistence implementation
// must support within an atomic scope.
type Transaction interface {
	Snapshot() TransactionView
	FindOutlet(id string) (Outlet, bool)
	ListOutlets() []Outlet
	CreateOutlet(Outlet) (Outlet, error)
	UpdateOutlet(id string, mutator func(*Outlet) error) (Outlet, error)
	DeleteOutlet(id string) error
}

// TransactionView provides read-only access to snapshot data for rules.
type TransactionView interface {
	RuleView
}

// Repository is the whole-collection contract: Load returns every outlet in
// insertion order and SaveAll replaces the collection atomically.
type Repository interface {
	Load(ctx context.Context) ([]Outlet, error)
	SaveAll(ctx context.Context, outlets []Outlet) error
}

// PersistentStore is a minimal abstraction over durable backends. It mirrors
// the subset of store capabilities used directly by higher layers.
type PersistentStore interface {
	Repository
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	GetOutlet(id string) (Outlet, bool)
	ListOutlets() []Outlet
}
