package core

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"outletops/internal/pipeline"
	"outletops/pkg/domain"
)

func TestAddOutletSeedsHistory(t *testing.T) {
	svc, _ := newTestService(t)
	o, res, err := svc.AddOutlet(context.Background(), OutletInput{
		Name:  "  Aahar - Baner ",
		Brand: "aahar",
		City:  "PUNE",
		Note:  "Requested by ops",
	})
	require.NoError(t, err)
	assert.Empty(t, res.Violations)
	assert.Equal(t, "id-1", o.ID)
	assert.Equal(t, "Aahar - Baner", o.Name)
	assert.Equal(t, "Aahar", o.Brand)
	assert.Equal(t, "Pune", o.City)
	assert.Equal(t, domain.DefaultStatus, o.Status)
	assert.Equal(t, DefaultDescription, o.Description)
	assert.Equal(t, domain.StageOnboardingRequest, o.CurrentStage)
	assert.Equal(t, testEpoch, o.CreatedAt)
	assert.Equal(t, testEpoch, o.LastMovedAt)
	assert.Equal(t, []StageLog{{Stage: domain.StageOnboardingRequest, Timestamp: testEpoch, Note: "Requested by ops"}}, o.History)

	stored, err := svc.GetOutlet(o.ID)
	require.NoError(t, err)
	assert.Equal(t, o, stored)
}

func TestAddOutletNameFallsBackToBrand(t *testing.T) {
	svc, _ := newTestService(t)
	o, _, err := svc.AddOutlet(context.Background(), OutletInput{Brand: "Khichdi Bar", Status: "active"})
	require.NoError(t, err)
	assert.Equal(t, "Khichdi Bar", o.Name)
	assert.Equal(t, domain.StatusActive, o.Status)
}

func TestAddOutletRejectsInvalidInput(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	cases := map[string]OutletInput{
		"missing name":   {},
		"unknown brand":  {Name: "x", Brand: "Burger Barn"},
		"unknown city":   {Name: "x", City: "Delhi"},
		"unknown status": {Name: "x", Status: "Paused"},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, _, err := svc.AddOutlet(ctx, in)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
	assert.Empty(t, svc.ListOutlets())
}

func TestAddOutletWarnsOnDuplicateName(t *testing.T) {
	logger := &captureLogger{}
	svc, _ := newTestService(t, WithLogger(logger))
	ctx := context.Background()
	_, _, err := svc.AddOutlet(ctx, OutletInput{Name: "Twin"})
	require.NoError(t, err)
	_, res, err := svc.AddOutlet(ctx, OutletInput{Name: " twin"})
	require.NoError(t, err)
	require.Len(t, res.Violations, 1)
	assert.Equal(t, duplicateNameRuleName, res.Violations[0].Rule)
	assert.Equal(t, SeverityWarn, res.Violations[0].Severity)
	assert.Len(t, svc.ListActive(), 2)
	assert.True(t, logger.has("w:rule violation"))
}

func TestMoveOutletStepsAndStopsAtEnds(t *testing.T) {
	svc, clock := newTestService(t)
	ctx := context.Background()
	o, _, err := svc.AddOutlet(ctx, OutletInput{Name: "Mover"})
	require.NoError(t, err)

	_, moved, err := svc.MoveOutlet(ctx, o.ID, pipeline.Backward)
	require.NoError(t, err)
	assert.False(t, moved)

	clock.Advance(48 * time.Hour)
	got, moved, err := svc.MoveOutlet(ctx, o.ID, pipeline.Forward)
	require.NoError(t, err)
	assert.True(t, moved)
	assert.Equal(t, domain.StageOverlapCheck, got.CurrentStage)
	assert.Equal(t, clock.Now(), got.LastMovedAt)
	assert.Equal(t, clock.Now(), got.UpdatedAt)
	require.Len(t, got.History, 2)

	_, _, err = svc.MoveOutlet(ctx, o.ID, pipeline.Direction("sideways"))
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, _, err = svc.MoveOutlet(ctx, "missing", pipeline.Forward)
	assert.True(t, IsNotFound(err))
}

func TestNoopTransitionDoesNotTouchRecord(t *testing.T) {
	svc, clock := newTestService(t)
	ctx := context.Background()
	o, _, err := svc.AddOutlet(ctx, OutletInput{Name: "Still"})
	require.NoError(t, err)
	clock.Advance(time.Hour)
	got, changed, err := svc.SetOutletStage(ctx, o.ID, domain.StageOnboardingRequest)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, testEpoch, got.UpdatedAt)
}

func TestSetOutletStageReusesLatestVisit(t *testing.T) {
	svc, clock := newTestService(t)
	ctx := context.Background()
	o, _, err := svc.AddOutlet(ctx, OutletInput{Name: "Jumper"})
	require.NoError(t, err)

	clock.Advance(time.Hour)
	got, changed, err := svc.SetOutletStage(ctx, o.ID, domain.StageTraining)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Len(t, got.History, 2)

	clock.Advance(time.Hour)
	got, _, err = svc.SetOutletStage(ctx, o.ID, domain.StageOnboardingRequest)
	require.NoError(t, err)
	require.Len(t, got.History, 2, "revisiting via SetStage refreshes the old entry")
	assert.Equal(t, clock.Now(), got.History[0].Timestamp)

	_, _, err = svc.SetOutletStage(ctx, o.ID, Stage("LAUNCH"))
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestStageNotesAndTimestamps(t *testing.T) {
	svc, clock := newTestService(t)
	ctx := context.Background()
	o, _, err := svc.AddOutlet(ctx, OutletInput{Name: "Noted"})
	require.NoError(t, err)

	clock.Advance(time.Hour)
	got, err := svc.UpdateCurrentNote(ctx, o.ID, "called chef")
	require.NoError(t, err)
	require.Len(t, got.History, 1)
	assert.Equal(t, "called chef", got.History[0].Note)
	assert.Equal(t, testEpoch, got.LastMovedAt, "notes never move the outlet")

	got, err = svc.UpsertStageNote(ctx, o.ID, domain.StageChefApproval, "pending tasting")
	require.NoError(t, err)
	require.Len(t, got.History, 2)
	assert.Equal(t, domain.StageOnboardingRequest, got.CurrentStage)

	backdated := testEpoch.Add(-72 * time.Hour)
	got, err = svc.UpsertStageTimestamp(ctx, o.ID, domain.StageChefApproval, backdated)
	require.NoError(t, err)
	assert.Equal(t, domain.StageChefApproval, got.History[0].Stage)
	assert.Equal(t, backdated, got.History[0].Timestamp)

	_, err = svc.UpsertStageTimestamp(ctx, o.ID, domain.StageChefApproval, time.Time{})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = svc.UpsertStageNote(ctx, "missing", domain.StageChefApproval, "x")
	assert.True(t, IsNotFound(err))
}

func TestUpdateDetails(t *testing.T) {
	svc, clock := newTestService(t)
	ctx := context.Background()
	o, _, err := svc.AddOutlet(ctx, OutletInput{Name: "Old", Brand: "Aahar"})
	require.NoError(t, err)
	clock.Advance(time.Hour)

	name, city, status, empty := "New", "mumbai", "closed", ""
	got, err := svc.UpdateDetails(ctx, o.ID, OutletPatch{Name: &name, City: &city, Status: &status, Brand: &empty})
	require.NoError(t, err)
	assert.Equal(t, "New", got.Name)
	assert.Equal(t, "Mumbai", got.City)
	assert.Equal(t, domain.StatusClosed, got.Status)
	assert.Empty(t, got.Brand)
	assert.Equal(t, testEpoch, got.LastMovedAt)
	assert.Equal(t, DefaultDescription, got.Description)

	blank := " "
	_, err = svc.UpdateDetails(ctx, o.ID, OutletPatch{Name: &blank})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = svc.UpdateDetails(ctx, o.ID, OutletPatch{Status: &empty})
	assert.ErrorIs(t, err, ErrInvalidInput)
	bad := "Delhi"
	_, err = svc.UpdateDetails(ctx, o.ID, OutletPatch{City: &bad})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestArchiveRestoreDelete(t *testing.T) {
	svc, clock := newTestService(t)
	ctx := context.Background()
	o, _, err := svc.AddOutlet(ctx, OutletInput{Name: "Shelved"})
	require.NoError(t, err)

	clock.Advance(time.Hour)
	archived, changed, err := svc.ArchiveOutlet(ctx, o.ID)
	require.NoError(t, err)
	assert.True(t, changed)
	require.NotNil(t, archived.ArchivedAt)
	assert.Equal(t, clock.Now(), *archived.ArchivedAt)
	assert.Equal(t, o.History, archived.History)
	assert.Empty(t, svc.ListActive())
	assert.Empty(t, svc.Search("shelved"))
	assert.Len(t, svc.ListArchived(), 1)

	clock.Advance(time.Hour)
	again, changed, err := svc.ArchiveOutlet(ctx, o.ID)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, *archived.ArchivedAt, *again.ArchivedAt)

	restored, changed, err := svc.RestoreOutlet(ctx, o.ID)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.False(t, restored.IsArchived)
	assert.Nil(t, restored.ArchivedAt)
	assert.Len(t, svc.Search("shelved"), 1)
	// UpdatedAt is store bookkeeping; every modelled field survives the round trip.
	assert.True(t, restored.UpdatedAt.After(o.UpdatedAt))
	roundTrip := restored
	roundTrip.UpdatedAt = o.UpdatedAt
	assert.Equal(t, o, roundTrip)

	_, err = svc.PermanentlyDeleteOutlet(ctx, o.ID)
	require.NoError(t, err)
	_, err = svc.GetOutlet(o.ID)
	assert.True(t, IsNotFound(err))
	_, err = svc.PermanentlyDeleteOutlet(ctx, o.ID)
	var nf ErrNotFound
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, o.ID, nf.ID)
}

func TestBoardReportAndTimeline(t *testing.T) {
	svc, clock := newTestService(t)
	ctx := context.Background()
	a, _, err := svc.AddOutlet(ctx, OutletInput{Name: "A"})
	require.NoError(t, err)
	b, _, err := svc.AddOutlet(ctx, OutletInput{Name: "B"})
	require.NoError(t, err)
	_, _, err = svc.SetOutletStage(ctx, b.ID, domain.StageOutletLive)
	require.NoError(t, err)

	board := svc.Board()
	require.Len(t, board, len(domain.Stages()))
	assert.Len(t, board[0].Outlets, 1)
	assert.Len(t, board[len(board)-1].Outlets, 1)

	clock.Advance(5 * 24 * time.Hour)
	rep, err := svc.Report(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Total)
	assert.Equal(t, 1, rep.Live)
	assert.Equal(t, 1, rep.InPipeline)
	require.Len(t, rep.Delayed, 1)
	assert.Equal(t, a.ID, rep.Delayed[0].ID)

	entries, err := svc.Timeline(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, domain.StageOutletLive, entries[0].Stage)
	assert.True(t, entries[0].Latest)

	_, err = svc.Timeline(ctx, "missing")
	assert.True(t, IsNotFound(err))
}

func TestBlockingRuleAbortsMutation(t *testing.T) {
	engine := NewRulesEngine()
	engine.Register(OutletInvariantsRule())
	svc := NewInMemoryService(engine, WithClock(ClockFunc(func() time.Time { return testEpoch })))
	ctx := context.Background()
	o, _, err := svc.AddOutlet(ctx, OutletInput{Name: "Guarded"})
	require.NoError(t, err)

	_, err = svc.Store().RunInTransaction(ctx, func(tx Transaction) error {
		_, err := tx.UpdateOutlet(o.ID, func(x *Outlet) error {
			x.History = nil
			return nil
		})
		return err
	})
	var violation RuleViolationError
	require.ErrorAs(t, err, &violation)
	got, err := svc.GetOutlet(o.ID)
	require.NoError(t, err)
	assert.Len(t, got.History, 1)
	assert.Same(t, engine, svc.RulesEngine())
}

func TestClockFuncNowNilFallsBackToUTCTime(t *testing.T) {
	got := ClockFunc(nil).Now()
	assert.False(t, got.IsZero())
	assert.Equal(t, time.UTC, got.Location())

	zoned := time.Date(2024, 7, 4, 12, 0, 0, 0, time.FixedZone("ist", 19800))
	assert.True(t, ClockFunc(func() time.Time { return zoned }).Now().Equal(zoned))
	assert.Equal(t, time.UTC, ClockFunc(func() time.Time { return zoned }).Now().Location())
}

func TestDefaultServiceOptions(t *testing.T) {
	opts := defaultServiceOptions()
	require.NotNil(t, opts.clock)
	require.NotNil(t, opts.logger)
	require.NotNil(t, opts.newID)
	assert.NotEmpty(t, opts.newID())
	opts.audit.Record(context.Background(), AuditEntry{})
	opts.metrics.Observe(context.Background(), "noop", true, 0)
	_, span := opts.tracer.Start(context.Background(), "noop")
	span.End(nil)
	var l noopLogger
	l.Debug("d")
	l.Info("i")
	l.Warn("w")
	l.Error("e")
}

func TestNilOptionsKeepDefaults(t *testing.T) {
	svc := NewInMemoryService(nil, WithLogger(nil), WithAuditRecorder(nil), WithMetricsRecorder(nil), WithTracer(nil), WithClock(nil), WithIDGenerator(nil))
	_, _, err := svc.AddOutlet(context.Background(), OutletInput{Name: "Defaults"})
	require.NoError(t, err)
	assert.Nil(t, svc.BlobStore())
	assert.NotNil(t, svc.RulesEngine())
}
