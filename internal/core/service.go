package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"outletops/internal/infra/blob"
	"outletops/internal/infra/persistence/memory"
	"outletops/pkg/domain"
)

// Logger captures the structured logging surface used by the service.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Clock supplies the current time for stage timestamps and archive times.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to the Clock interface.
type ClockFunc func() time.Time

// Now returns the function's time in UTC, or the system time when nil.
func (f ClockFunc) Now() time.Time {
	if f == nil {
		return time.Now().UTC()
	}
	return f().UTC()
}

// AuditStatus reports the outcome of an audited operation.
type AuditStatus string

const (
	AuditStatusSuccess AuditStatus = "success"
	AuditStatusError   AuditStatus = "error"
)

// AuditEntry is one record in the operation audit trail.
type AuditEntry struct {
	Operation string
	Entity    EntityType
	Action    Action
	EntityID  string
	Status    AuditStatus
	Error     string
	Duration  time.Duration
	Timestamp time.Time
}

// AuditRecorder receives an entry for every mutating service operation.
type AuditRecorder interface {
	Record(ctx context.Context, entry AuditEntry)
}

// MetricsRecorder observes operation outcomes and latency.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

// Tracer opens a span around a service operation.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, TraceSpan)
}

// TraceSpan is closed with the operation's error, nil on success.
type TraceSpan interface {
	End(err error)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// NewNoopLogger returns a Logger that discards everything.
func NewNoopLogger() Logger { return noopLogger{} }

type noopAuditRecorder struct{}

func (noopAuditRecorder) Record(context.Context, AuditEntry) {}

type noopMetricsRecorder struct{}

func (noopMetricsRecorder) Observe(context.Context, string, bool, time.Duration) {}

type noopTracer struct{}

func (noopTracer) Start(ctx context.Context, _ string) (context.Context, TraceSpan) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) End(error) {}

type serviceOptions struct {
	clock    Clock
	logger   Logger
	audit    AuditRecorder
	metrics  MetricsRecorder
	tracer   Tracer
	blobs    blob.Store
	newID    func() string
	clockSet bool
}

// ServiceOption configures optional service collaborators.
type ServiceOption func(*serviceOptions)

func defaultServiceOptions() serviceOptions {
	return serviceOptions{
		clock:   ClockFunc(nil),
		logger:  noopLogger{},
		audit:   noopAuditRecorder{},
		metrics: noopMetricsRecorder{},
		tracer:  noopTracer{},
		newID:   uuid.NewString,
	}
}

// WithLogger sets the service logger. A nil logger is ignored.
func WithLogger(logger Logger) ServiceOption {
	return func(o *serviceOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithAuditRecorder sets the audit trail sink.
func WithAuditRecorder(rec AuditRecorder) ServiceOption {
	return func(o *serviceOptions) {
		if rec != nil {
			o.audit = rec
		}
	}
}

// WithMetricsRecorder sets the metrics sink.
func WithMetricsRecorder(rec MetricsRecorder) ServiceOption {
	return func(o *serviceOptions) {
		if rec != nil {
			o.metrics = rec
		}
	}
}

// WithTracer sets the span tracer.
func WithTracer(tracer Tracer) ServiceOption {
	return func(o *serviceOptions) {
		if tracer != nil {
			o.tracer = tracer
		}
	}
}

// WithClock overrides the time source. The store's metadata clock follows it
// when the store allows that.
func WithClock(clock Clock) ServiceOption {
	return func(o *serviceOptions) {
		if clock != nil {
			o.clock = clock
			o.clockSet = true
		}
	}
}

// WithBlobStore enables archiving of previewed import uploads.
func WithBlobStore(store blob.Store) ServiceOption {
	return func(o *serviceOptions) {
		o.blobs = store
	}
}

// WithIDGenerator overrides the id source for outlets and import batches.
func WithIDGenerator(fn func() string) ServiceOption {
	return func(o *serviceOptions) {
		if fn != nil {
			o.newID = fn
		}
	}
}

// Service exposes the outlet pipeline and import operations over a
// persistent store. Every mutation runs in one store transaction.
type Service struct {
	store   PersistentStore
	engine  *RulesEngine
	logger  Logger
	audit   AuditRecorder
	metrics MetricsRecorder
	tracer  Tracer
	blobs   blob.Store
	now     func() time.Time
	newID   func() string
}

type nowFuncProvider interface {
	NowFunc() func() time.Time
}

type nowFuncSetter interface {
	SetNowFunc(func() time.Time)
}

type rulesEngineProvider interface {
	RulesEngine() *RulesEngine
}

// NewService constructs a service backed by the supplied store.
func NewService(store PersistentStore, opts ...ServiceOption) *Service {
	cfg := defaultServiceOptions()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.clockSet {
		if setter, ok := store.(nowFuncSetter); ok {
			setter.SetNowFunc(cfg.clock.Now)
		}
	}
	return &Service{
		store:   store,
		engine:  extractRulesEngine(store),
		logger:  cfg.logger,
		audit:   cfg.audit,
		metrics: cfg.metrics,
		tracer:  cfg.tracer,
		blobs:   cfg.blobs,
		now:     selectNowFunc(store, cfg.clock),
		newID:   cfg.newID,
	}
}

// NewInMemoryService creates a service and in-memory store with the given rules engine.
func NewInMemoryService(engine *RulesEngine, opts ...ServiceOption) *Service {
	return NewService(memory.NewStore(engine), opts...)
}

// selectNowFunc prefers the store's own clock so record metadata and stage
// timestamps agree.
func selectNowFunc(store PersistentStore, clock Clock) func() time.Time {
	if provider, ok := store.(nowFuncProvider); ok {
		if fn := provider.NowFunc(); fn != nil {
			return func() time.Time { return fn().UTC() }
		}
	}
	if clock != nil {
		return clock.Now
	}
	return ClockFunc(nil).Now
}

func extractRulesEngine(store PersistentStore) *RulesEngine {
	if provider, ok := store.(rulesEngineProvider); ok {
		return provider.RulesEngine()
	}
	return nil
}

// Store returns the underlying storage implementation.
func (s *Service) Store() PersistentStore {
	return s.store
}

// RulesEngine returns the engine evaluated on every commit, when the store exposes one.
func (s *Service) RulesEngine() *RulesEngine {
	return s.engine
}

// BlobStore returns the upload archive, nil when disabled.
func (s *Service) BlobStore() blob.Store {
	return s.blobs
}

// ErrNotFound is returned when an operation names an unknown outlet.
type ErrNotFound struct {
	ID string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("outlet %s not found", e.ID)
}

// ErrInvalidInput marks direct-entry input rejected by the vocabulary or a
// required-field check.
var ErrInvalidInput = errors.New("invalid input")

func invalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// IsNotFound reports whether err carries an ErrNotFound.
func IsNotFound(err error) bool {
	var nf ErrNotFound
	return errors.As(err, &nf)
}

// Operation names used for tracing, metrics and audit entries.
const (
	OpAddOutlet         = "add_outlet"
	OpUpdateOutlet      = "update_outlet"
	OpUpdateCurrentNote = "update_current_note"
	OpMoveOutlet        = "move_outlet"
	OpSetOutletStage    = "set_outlet_stage"
	OpUpsertStageNote   = "upsert_stage_note"
	OpUpsertStageTime   = "upsert_stage_timestamp"
	OpArchiveOutlet     = "archive_outlet"
	OpRestoreOutlet     = "restore_outlet"
	OpDeleteOutlet      = "delete_outlet"
	OpPreviewImport     = "preview_import"
	OpCommitImport      = "commit_import"
	OpBuildReport       = "build_report"
	OpOutletTimeline    = "outlet_timeline"
)

type auditTarget struct {
	entity EntityType
	action Action
}

var auditTargets = map[string]auditTarget{
	OpAddOutlet:         {domain.EntityOutlet, ActionCreate},
	OpUpdateOutlet:      {domain.EntityOutlet, ActionUpdate},
	OpUpdateCurrentNote: {domain.EntityOutlet, ActionUpdate},
	OpMoveOutlet:        {domain.EntityOutlet, ActionUpdate},
	OpSetOutletStage:    {domain.EntityOutlet, ActionUpdate},
	OpUpsertStageNote:   {domain.EntityOutlet, ActionUpdate},
	OpUpsertStageTime:   {domain.EntityOutlet, ActionUpdate},
	OpArchiveOutlet:     {domain.EntityOutlet, ActionUpdate},
	OpRestoreOutlet:     {domain.EntityOutlet, ActionUpdate},
	OpDeleteOutlet:      {domain.EntityOutlet, ActionDelete},
	OpCommitImport:      {domain.EntityOutlet, ActionUpdate},
}

// run executes fn inside one store transaction and instruments the call.
// fn returns the id of the affected outlet, or the batch id for imports.
func (s *Service) run(ctx context.Context, op string, fn func(tx Transaction) (string, error)) (Result, error) {
	ctx, span := s.tracer.Start(ctx, op)
	started := time.Now()
	var entityID string
	res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		id, err := fn(tx)
		entityID = id
		return err
	})
	elapsed := time.Since(started)
	span.End(err)
	s.metrics.Observe(ctx, op, err == nil, elapsed)
	s.recordAudit(ctx, op, entityID, err, elapsed)
	s.logViolations(op, res)
	if err != nil {
		s.logger.Error("operation failed", "operation", op, "entity_id", entityID, "error", err)
		return res, err
	}
	s.logger.Debug("operation completed", "operation", op, "entity_id", entityID, "duration", elapsed)
	return res, nil
}

// observe instruments read-only operations. They are traced and measured but
// not audited.
func (s *Service) observe(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	ctx, span := s.tracer.Start(ctx, op)
	started := time.Now()
	err := fn(ctx)
	span.End(err)
	s.metrics.Observe(ctx, op, err == nil, time.Since(started))
	if err != nil {
		s.logger.Error("operation failed", "operation", op, "error", err)
	}
	return err
}

func (s *Service) recordAudit(ctx context.Context, op, entityID string, err error, elapsed time.Duration) {
	target, ok := auditTargets[op]
	if !ok {
		return
	}
	entry := AuditEntry{
		Operation: op,
		Entity:    target.entity,
		Action:    target.action,
		EntityID:  entityID,
		Status:    AuditStatusSuccess,
		Duration:  elapsed,
		Timestamp: s.now(),
	}
	if err != nil {
		entry.Status = AuditStatusError
		entry.Error = err.Error()
	}
	s.audit.Record(ctx, entry)
}

func (s *Service) logViolations(op string, res Result) {
	for _, v := range res.Violations {
		switch v.Severity {
		case SeverityBlock:
			s.logger.Warn("rule blocked commit", "operation", op, "rule", v.Rule, "entity_id", v.EntityID, "message", v.Message)
		case SeverityWarn:
			s.logger.Warn("rule violation", "operation", op, "rule", v.Rule, "entity_id", v.EntityID, "message", v.Message)
		default:
			s.logger.Info("rule note", "operation", op, "rule", v.Rule, "entity_id", v.EntityID, "message", v.Message)
		}
	}
}
