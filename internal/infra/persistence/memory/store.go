// Package memory provides an in-memory implementation of the core persistence
// store used for tests and ephemeral environments.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"outletops/pkg/domain"
)

// Compile-time contract assertions ensuring memory.Store adheres to the domain persistence interfaces.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// Outlet aliases domain.Outlet for in-memory persistence operations.
	Outlet = domain.Outlet
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
)

// memoryState keeps outlets by id plus their insertion order.
type memoryState struct {
	outlets map[string]Outlet
	order   []string
}

// Snapshot captures a point-in-time clone of the store state. Outlets are
// listed in insertion order.
type Snapshot struct {
	Outlets []Outlet `json:"outlets"`
}

// BucketOutlets names the persisted row holding the outlet collection.
const BucketOutlets = "outlets"

// Buckets lists the snapshot buckets in persistence order.
func Buckets() []string { return []string{BucketOutlets} }

// EncodeBucket marshals one snapshot bucket to JSON.
func (s Snapshot) EncodeBucket(bucket string) ([]byte, error) {
	switch bucket {
	case BucketOutlets:
		outlets := s.Outlets
		if outlets == nil {
			outlets = []Outlet{}
		}
		return json.Marshal(outlets)
	default:
		return nil, fmt.Errorf("unknown bucket %q", bucket)
	}
}

// DecodeBucket unmarshals payload into the named bucket. Unknown buckets and
// empty payloads are ignored so older tables still load.
func (s *Snapshot) DecodeBucket(bucket string, payload []byte) error {
	if len(payload) == 0 {
		return nil
	}
	switch bucket {
	case BucketOutlets:
		if err := json.Unmarshal(payload, &s.Outlets); err != nil {
			return fmt.Errorf("decode %s: %w", bucket, err)
		}
	}
	return nil
}

func newMemoryState() memoryState {
	return memoryState{outlets: make(map[string]Outlet)}
}

func (s memoryState) clone() memoryState {
	cp := memoryState{
		outlets: make(map[string]Outlet, len(s.outlets)),
		order:   append([]string(nil), s.order...),
	}
	for id, o := range s.outlets {
		cp.outlets[id] = o.Clone()
	}
	return cp
}

func (s memoryState) list() []Outlet {
	out := make([]Outlet, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.outlets[id].Clone())
	}
	return out
}

func (s *memoryState) remove(id string) {
	delete(s.outlets, id)
	for i, candidate := range s.order {
		if candidate == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			return
		}
	}
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	return Snapshot{Outlets: state.list()}
}

func memoryStateFromSnapshot(s Snapshot) memoryState {
	state := newMemoryState()
	for _, o := range s.Outlets {
		if o.ID == "" {
			continue
		}
		if _, dup := state.outlets[o.ID]; dup {
			continue
		}
		state.outlets[o.ID] = migrateOutlet(o.Clone())
		state.order = append(state.order, o.ID)
	}
	return state
}

// migrateOutlet fills fields that older snapshots may lack.
func migrateOutlet(o Outlet) Outlet {
	if o.Status == "" {
		o.Status = domain.DefaultStatus
	}
	if o.CurrentStage == "" {
		o.CurrentStage = domain.FirstStage()
	}
	if len(o.History) == 0 {
		at := o.LastMovedAt
		if at.IsZero() {
			at = o.CreatedAt
		}
		o.History = []domain.StageLog{{Stage: o.CurrentStage, Timestamp: at}}
	}
	if o.IsArchived && o.ArchivedAt == nil {
		at := o.UpdatedAt
		o.ArchivedAt = &at
	}
	return o
}

// Store provides an in-memory transactional store for the core domain.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
	nowFn  func() time.Time
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) newID() string {
	return uuid.NewString()
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(snapshot)
}

// RulesEngine exposes the currently configured engine.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// NowFunc returns the time provider used for record metadata.
func (s *Store) NowFunc() func() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nowFn
}

// SetNowFunc overrides the metadata clock. A nil fn restores time.Now.
func (s *Store) SetNowFunc(fn func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fn == nil {
		fn = func() time.Time { return time.Now().UTC() }
	}
	s.nowFn = fn
}

type transaction struct {
	store   *Store
	state   memoryState
	changes []Change
	now     time.Time
}

type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) TransactionView {
	return transactionView{state: state}
}

// ListOutlets returns all outlets, archived included, in insertion order.
func (v transactionView) ListOutlets() []Outlet {
	return v.state.list()
}

// FindOutlet returns the outlet with id.
func (v transactionView) FindOutlet(id string) (Outlet, bool) {
	o, ok := v.state.outlets[id]
	if !ok {
		return Outlet{}, false
	}
	return o.Clone(), true
}

// RunInTransaction executes fn within a transactional copy of the store state.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		store: s,
		state: s.state.clone(),
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil {
		view := newTransactionView(&tx.state)
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	s.state = tx.state
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	snapshot := s.state.clone()
	s.mu.RUnlock()
	return fn(newTransactionView(&snapshot))
}

func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() TransactionView {
	return newTransactionView(&tx.state)
}

// FindOutlet looks up an outlet within the transaction scope.
func (tx *transaction) FindOutlet(id string) (Outlet, bool) {
	return newTransactionView(&tx.state).FindOutlet(id)
}

// ListOutlets lists outlets within the transaction scope.
func (tx *transaction) ListOutlets() []Outlet {
	return tx.state.list()
}

// CreateOutlet stores a new outlet. A missing id is generated and a zero
// CreatedAt is stamped with the transaction time.
func (tx *transaction) CreateOutlet(o Outlet) (Outlet, error) {
	if o.ID == "" {
		o.ID = tx.store.newID()
	}
	if _, exists := tx.state.outlets[o.ID]; exists {
		return Outlet{}, fmt.Errorf("outlet %q already exists", o.ID)
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = tx.now
	}
	o.UpdatedAt = tx.now
	tx.state.outlets[o.ID] = o.Clone()
	tx.state.order = append(tx.state.order, o.ID)
	tx.recordChange(Change{
		Entity: domain.EntityOutlet,
		Action: domain.ActionCreate,
		Before: domain.UndefinedChangePayload(),
		After:  domain.MustChangePayload(o),
	})
	return o.Clone(), nil
}

// UpdateOutlet mutates an outlet using the provided mutator function. The id
// and creation time cannot be changed by the mutator.
func (tx *transaction) UpdateOutlet(id string, mutator func(*Outlet) error) (Outlet, error) {
	current, ok := tx.state.outlets[id]
	if !ok {
		return Outlet{}, fmt.Errorf("outlet %q not found", id)
	}
	before := current.Clone()
	if err := mutator(&current); err != nil {
		return Outlet{}, err
	}
	current.ID = id
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.outlets[id] = current.Clone()
	tx.recordChange(Change{
		Entity: domain.EntityOutlet,
		Action: domain.ActionUpdate,
		Before: domain.MustChangePayload(before),
		After:  domain.MustChangePayload(current),
	})
	return current.Clone(), nil
}

// DeleteOutlet removes an outlet from the transaction state.
func (tx *transaction) DeleteOutlet(id string) error {
	current, ok := tx.state.outlets[id]
	if !ok {
		return fmt.Errorf("outlet %q not found", id)
	}
	tx.state.remove(id)
	tx.recordChange(Change{
		Entity: domain.EntityOutlet,
		Action: domain.ActionDelete,
		Before: domain.MustChangePayload(current),
		After:  domain.UndefinedChangePayload(),
	})
	return nil
}

// replaceAll makes the transaction state equal to outlets, recording one
// change per created, updated, or deleted record.
func (tx *transaction) replaceAll(outlets []Outlet) error {
	keep := make(map[string]struct{}, len(outlets))
	order := make([]string, 0, len(outlets))
	for _, o := range outlets {
		if o.ID == "" {
			o.ID = tx.store.newID()
		}
		if _, dup := keep[o.ID]; dup {
			return fmt.Errorf("outlet %q listed twice", o.ID)
		}
		keep[o.ID] = struct{}{}
		order = append(order, o.ID)
		if _, exists := tx.state.outlets[o.ID]; exists {
			next := o
			if _, err := tx.UpdateOutlet(o.ID, func(cur *Outlet) error {
				*cur = next.Clone()
				return nil
			}); err != nil {
				return err
			}
			continue
		}
		if _, err := tx.CreateOutlet(o); err != nil {
			return err
		}
	}
	for _, id := range append([]string(nil), tx.state.order...) {
		if _, ok := keep[id]; ok {
			continue
		}
		if err := tx.DeleteOutlet(id); err != nil {
			return err
		}
	}
	tx.state.order = order
	return nil
}

// GetOutlet retrieves an outlet by id.
func (s *Store) GetOutlet(id string) (Outlet, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.state.outlets[id]
	if !ok {
		return Outlet{}, false
	}
	return o.Clone(), true
}

// ListOutlets returns all outlets in insertion order.
func (s *Store) ListOutlets() []Outlet {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.list()
}

// Load returns the whole collection.
func (s *Store) Load(_ context.Context) ([]Outlet, error) {
	return s.ListOutlets(), nil
}

// SaveAll replaces the whole collection in one transaction.
func (s *Store) SaveAll(ctx context.Context, outlets []Outlet) error {
	_, err := s.RunInTransaction(ctx, func(tx Transaction) error {
		return tx.(*transaction).replaceAll(outlets)
	})
	return err
}
