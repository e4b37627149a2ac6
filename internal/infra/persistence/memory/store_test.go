package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"outletops/pkg/domain"
)

var fixed = time.Date(2024, 2, 2, 10, 0, 0, 0, time.UTC)

func seededOutlet(name string) Outlet {
	return Outlet{
		Name:         name,
		Status:       domain.DefaultStatus,
		CurrentStage: domain.StageOnboardingRequest,
		LastMovedAt:  fixed,
		History:      []domain.StageLog{{Stage: domain.StageOnboardingRequest, Timestamp: fixed}},
	}
}

func newFixedStore(engine *RulesEngine) *Store {
	s := NewStore(engine)
	s.SetNowFunc(func() time.Time { return fixed })
	return s
}

func TestCreateUpdateDelete(t *testing.T) {
	ctx := context.Background()
	store := newFixedStore(nil)

	var created Outlet
	_, err := store.RunInTransaction(ctx, func(tx Transaction) error {
		var err error
		created, err = tx.CreateOutlet(seededOutlet("Aahar - Baner"))
		return err
	})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)
	assert.Equal(t, fixed, created.CreatedAt)
	assert.Equal(t, fixed, created.UpdatedAt)

	later := fixed.Add(time.Hour)
	store.SetNowFunc(func() time.Time { return later })
	_, err = store.RunInTransaction(ctx, func(tx Transaction) error {
		_, err := tx.UpdateOutlet(created.ID, func(o *Outlet) error {
			o.ID = "hijack"
			o.CreatedAt = time.Time{}
			o.Description = "updated"
			return nil
		})
		return err
	})
	require.NoError(t, err)
	got, ok := store.GetOutlet(created.ID)
	require.True(t, ok)
	assert.Equal(t, "updated", got.Description)
	assert.Equal(t, fixed, got.CreatedAt)
	assert.Equal(t, later, got.UpdatedAt)
	_, ok = store.GetOutlet("hijack")
	assert.False(t, ok)

	_, err = store.RunInTransaction(ctx, func(tx Transaction) error { return tx.DeleteOutlet(created.ID) })
	require.NoError(t, err)
	_, ok = store.GetOutlet(created.ID)
	assert.False(t, ok)
	assert.Empty(t, store.ListOutlets())
}

func TestTransactionErrorsRollBack(t *testing.T) {
	ctx := context.Background()
	store := newFixedStore(nil)
	boom := errors.New("boom")
	_, err := store.RunInTransaction(ctx, func(tx Transaction) error {
		if _, err := tx.CreateOutlet(seededOutlet("ghost")); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, store.ListOutlets())

	_, err = store.RunInTransaction(ctx, func(tx Transaction) error {
		_, err := tx.UpdateOutlet("missing", func(*Outlet) error { return nil })
		return err
	})
	assert.Error(t, err)
	_, err = store.RunInTransaction(ctx, func(tx Transaction) error { return tx.DeleteOutlet("missing") })
	assert.Error(t, err)
}

func TestDuplicateIDRejected(t *testing.T) {
	store := newFixedStore(nil)
	o := seededOutlet("a")
	o.ID = "same"
	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		if _, err := tx.CreateOutlet(o); err != nil {
			return err
		}
		_, err := tx.CreateOutlet(o)
		return err
	})
	assert.Error(t, err)
}

type blockAll struct{}

func (blockAll) Name() string { return "block_all" }

func (blockAll) Evaluate(_ context.Context, _ domain.RuleView, changes []Change) (Result, error) {
	res := Result{}
	for _, c := range changes {
		res.Violations = append(res.Violations, domain.Violation{Rule: "block_all", Severity: domain.SeverityBlock, Entity: c.Entity})
	}
	return res, nil
}

func TestBlockingRulesAbortCommit(t *testing.T) {
	engine := domain.NewRulesEngine()
	engine.Register(blockAll{})
	store := newFixedStore(engine)
	res, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, err := tx.CreateOutlet(seededOutlet("blocked"))
		return err
	})
	var violation domain.RuleViolationError
	require.ErrorAs(t, err, &violation)
	assert.True(t, res.HasBlocking())
	assert.Empty(t, store.ListOutlets())
	assert.Same(t, engine, store.RulesEngine())
}

func TestChangesCarryPayloads(t *testing.T) {
	var seen []Change
	engine := domain.NewRulesEngine()
	engine.Register(captureRule{changes: &seen})
	store := newFixedStore(engine)
	ctx := context.Background()

	var id string
	_, err := store.RunInTransaction(ctx, func(tx Transaction) error {
		o, err := tx.CreateOutlet(seededOutlet("captured"))
		id = o.ID
		return err
	})
	require.NoError(t, err)
	require.Len(t, seen, 1)
	assert.Equal(t, domain.ActionCreate, seen[0].Action)
	assert.False(t, seen[0].Before.Defined())
	after, ok := domain.DecodeChangePayload[Outlet](seen[0].After)
	require.True(t, ok)
	assert.Equal(t, id, after.ID)

	seen = nil
	_, err = store.RunInTransaction(ctx, func(tx Transaction) error { return tx.DeleteOutlet(id) })
	require.NoError(t, err)
	require.Len(t, seen, 1)
	assert.Equal(t, domain.ActionDelete, seen[0].Action)
	assert.False(t, seen[0].After.Defined())
}

type captureRule struct{ changes *[]Change }

func (captureRule) Name() string { return "capture" }

func (r captureRule) Evaluate(_ context.Context, _ domain.RuleView, changes []Change) (Result, error) {
	*r.changes = append(*r.changes, changes...)
	return Result{}, nil
}

func TestListPreservesInsertionOrder(t *testing.T) {
	store := newFixedStore(nil)
	names := []string{"c", "a", "b"}
	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		for _, n := range names {
			if _, err := tx.CreateOutlet(seededOutlet(n)); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
	var got []string
	for _, o := range store.ListOutlets() {
		got = append(got, o.Name)
	}
	assert.Equal(t, names, got)
}

func TestReturnedOutletsAreCopies(t *testing.T) {
	store := newFixedStore(nil)
	var id string
	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		o, err := tx.CreateOutlet(seededOutlet("copy"))
		id = o.ID
		return err
	})
	require.NoError(t, err)
	o, _ := store.GetOutlet(id)
	o.History[0].Note = "mutated"
	again, _ := store.GetOutlet(id)
	assert.Empty(t, again.History[0].Note)
}

func TestLoadAndSaveAll(t *testing.T) {
	ctx := context.Background()
	store := newFixedStore(nil)
	a, b, c := seededOutlet("a"), seededOutlet("b"), seededOutlet("c")
	a.ID, b.ID = "id-a", "id-b"
	require.NoError(t, store.SaveAll(ctx, []Outlet{a, b}))

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 2)

	b.Description = "changed"
	require.NoError(t, store.SaveAll(ctx, []Outlet{c, b}))
	loaded, err = store.Load(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, "c", loaded[0].Name)
	assert.NotEmpty(t, loaded[0].ID)
	assert.Equal(t, "changed", loaded[1].Description)
	_, ok := store.GetOutlet("id-a")
	assert.False(t, ok, "outlets absent from SaveAll are removed")

	err = store.SaveAll(ctx, []Outlet{b, b})
	assert.Error(t, err)
	loaded, _ = store.Load(ctx)
	assert.Len(t, loaded, 2, "failed SaveAll leaves the collection untouched")
}

func TestExportImportState(t *testing.T) {
	store := newFixedStore(nil)
	o := seededOutlet("exported")
	o.ID = "x1"
	require.NoError(t, store.SaveAll(context.Background(), []Outlet{o}))
	snap := store.ExportState()
	require.Len(t, snap.Outlets, 1)

	legacy := Outlet{Base: domain.Base{ID: "x2", CreatedAt: fixed}, Name: "legacy", IsArchived: true}
	snap.Outlets = append(snap.Outlets, legacy, Outlet{Name: "no id"}, snap.Outlets[0])

	other := NewStore(nil)
	other.ImportState(snap)
	list := other.ListOutlets()
	require.Len(t, list, 2)
	migrated := list[1]
	assert.Equal(t, domain.DefaultStatus, migrated.Status)
	assert.Equal(t, domain.StageOnboardingRequest, migrated.CurrentStage)
	require.Len(t, migrated.History, 1)
	assert.NotNil(t, migrated.ArchivedAt)
}

func TestViewIsReadOnlySnapshot(t *testing.T) {
	store := newFixedStore(nil)
	require.NoError(t, store.SaveAll(context.Background(), []Outlet{seededOutlet("v")}))
	err := store.View(context.Background(), func(v TransactionView) error {
		list := v.ListOutlets()
		require.Len(t, list, 1)
		_, ok := v.FindOutlet(list[0].ID)
		assert.True(t, ok)
		_, ok = v.FindOutlet("nope")
		assert.False(t, ok)
		return nil
	})
	require.NoError(t, err)
	assert.NotNil(t, store.NowFunc())
}

func TestSnapshotBucketCodec(t *testing.T) {
	o := seededOutlet("bucketed")
	o.ID = "b1"
	data, err := Snapshot{Outlets: []Outlet{o}}.EncodeBucket(BucketOutlets)
	require.NoError(t, err)

	var decoded Snapshot
	require.NoError(t, decoded.DecodeBucket(BucketOutlets, data))
	require.Len(t, decoded.Outlets, 1)
	assert.Equal(t, "bucketed", decoded.Outlets[0].Name)
	assert.True(t, fixed.Equal(decoded.Outlets[0].LastMovedAt))

	empty, err := Snapshot{}.EncodeBucket(BucketOutlets)
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(empty))

	_, err = Snapshot{}.EncodeBucket("stage_logs")
	assert.Error(t, err)
	assert.NoError(t, decoded.DecodeBucket("stage_logs", []byte(`{}`)))
	assert.Error(t, decoded.DecodeBucket(BucketOutlets, []byte(`{`)))
	assert.Equal(t, []string{BucketOutlets}, Buckets())
}
