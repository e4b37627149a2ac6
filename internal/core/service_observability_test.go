package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"expvar"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"outletops/internal/pipeline"
	"outletops/pkg/domain"
)

type captureAuditRecorder struct {
	entries []AuditEntry
}

func (c *captureAuditRecorder) Record(_ context.Context, entry AuditEntry) {
	c.entries = append(c.entries, entry)
}

func (c *captureAuditRecorder) has(op string, status AuditStatus, predicate func(AuditEntry) bool) bool {
	for _, entry := range c.entries {
		if entry.Operation == op && entry.Status == status {
			if predicate == nil || predicate(entry) {
				return true
			}
		}
	}
	return false
}

type metricsCall struct {
	op      string
	success bool
}

type captureMetricsRecorder struct {
	calls []metricsCall
}

func (c *captureMetricsRecorder) Observe(_ context.Context, op string, success bool, _ time.Duration) {
	c.calls = append(c.calls, metricsCall{op: op, success: success})
}

func (c *captureMetricsRecorder) has(op string, success bool) bool {
	for _, call := range c.calls {
		if call.op == op && call.success == success {
			return true
		}
	}
	return false
}

type spanRecord struct {
	op  string
	err error
}

type captureTracer struct {
	started []string
	ended   []spanRecord
}

func (c *captureTracer) Start(ctx context.Context, op string) (context.Context, TraceSpan) {
	c.started = append(c.started, op)
	return ctx, &captureSpan{tracer: c, op: op}
}

func (c *captureTracer) has(op string, success bool) bool {
	for _, record := range c.ended {
		if record.op == op && (record.err == nil) == success {
			return true
		}
	}
	return false
}

type captureSpan struct {
	tracer *captureTracer
	op     string
}

func (s *captureSpan) End(err error) {
	s.tracer.ended = append(s.tracer.ended, spanRecord{op: s.op, err: err})
}

func TestServiceObservabilityOutletLifecycle(t *testing.T) {
	ctx := context.Background()
	audit := &captureAuditRecorder{}
	metrics := &captureMetricsRecorder{}
	tracer := &captureTracer{}
	logger := &captureLogger{}
	svc, _ := newTestService(t,
		WithAuditRecorder(audit),
		WithMetricsRecorder(metrics),
		WithTracer(tracer),
		WithLogger(logger),
	)

	o, _, err := svc.AddOutlet(ctx, OutletInput{Name: "Observed"})
	require.NoError(t, err)
	assert.True(t, audit.has(OpAddOutlet, AuditStatusSuccess, func(e AuditEntry) bool {
		return e.EntityID == o.ID && e.Entity == domain.EntityOutlet && e.Action == ActionCreate && e.Timestamp.Equal(testEpoch)
	}))

	_, _, err = svc.MoveOutlet(ctx, o.ID, pipeline.Forward)
	require.NoError(t, err)
	assert.True(t, audit.has(OpMoveOutlet, AuditStatusSuccess, nil))
	assert.True(t, metrics.has(OpMoveOutlet, true))
	assert.True(t, tracer.has(OpMoveOutlet, true))
	assert.True(t, logger.has("d:operation completed"))

	_, err = svc.PermanentlyDeleteOutlet(ctx, "missing")
	require.Error(t, err)
	assert.True(t, audit.has(OpDeleteOutlet, AuditStatusError, func(e AuditEntry) bool {
		return e.Action == ActionDelete && strings.Contains(e.Error, "missing")
	}))
	assert.True(t, metrics.has(OpDeleteOutlet, false))
	assert.True(t, tracer.has(OpDeleteOutlet, false))
	assert.True(t, logger.has("e:operation failed"))

	_, err = svc.Report(ctx)
	require.NoError(t, err)
	assert.True(t, metrics.has(OpBuildReport, true))
	assert.True(t, tracer.has(OpBuildReport, true))
	assert.False(t, audit.has(OpBuildReport, AuditStatusSuccess, nil), "reads are not audited")

	_, err = svc.PreviewImport(ctx, "bad.txt", strings.NewReader(""))
	require.Error(t, err)
	assert.True(t, metrics.has(OpPreviewImport, false))
	assert.Equal(t, len(tracer.started), len(tracer.ended))
}

func TestRecordAuditIgnoresUnknownOperations(t *testing.T) {
	audit := &captureAuditRecorder{}
	svc, _ := newTestService(t, WithAuditRecorder(audit))
	svc.recordAudit(context.Background(), "unknown", "id", nil, time.Millisecond)
	assert.Empty(t, audit.entries)
}

func TestBlockingViolationsAreLogged(t *testing.T) {
	logger := &captureLogger{}
	svc, _ := newTestService(t, WithLogger(logger))
	svc.logViolations(OpAddOutlet, Result{Violations: []Violation{
		{Rule: "r", Severity: SeverityBlock},
		{Rule: "r", Severity: SeverityLog},
	}})
	assert.True(t, logger.has("w:rule blocked commit"))
	assert.True(t, logger.has("i:rule note"))
}

func TestExpvarMetricsRecorder(t *testing.T) {
	rec := NewExpvarMetricsRecorder("")
	assert.True(t, strings.HasPrefix(rec.Name(), "outletops_service_metrics_"))
	ctx := context.Background()
	rec.Observe(ctx, "move_outlet", true, 2*time.Millisecond)
	rec.Observe(ctx, "move_outlet", false, 6*time.Millisecond)
	rec.Observe(ctx, "", true, time.Second)

	snap := rec.Snapshot()
	stats := snap.Operations["move_outlet"]
	assert.Equal(t, int64(1), stats.Success)
	assert.Equal(t, int64(1), stats.Error)
	assert.InDelta(t, 8.0, stats.TotalMS, 0.001)
	assert.InDelta(t, 6.0, stats.MaxMS, 0.001)
	assert.Len(t, snap.Operations, 1)

	published := expvar.Get(rec.Name())
	require.NotNil(t, published)
	var decoded ExpvarMetricsSnapshot
	require.NoError(t, json.Unmarshal([]byte(published.String()), &decoded))
	assert.Equal(t, stats, decoded.Operations["move_outlet"])
}

func TestJSONTracerWritesLinesAndRetains(t *testing.T) {
	var buf bytes.Buffer
	tracer := NewJSONTracer(&buf)
	tracer.keep = 2
	ctx := context.Background()
	for _, op := range []string{"a", "b", "c"} {
		_, span := tracer.Start(ctx, op)
		span.End(nil)
	}
	_, span := tracer.Start(ctx, "d")
	span.End(errors.New("boom"))
	span.End(nil)

	entries := tracer.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "c", entries[0].Operation)
	assert.Equal(t, "d", entries[1].Operation)
	assert.Equal(t, "error", entries[1].Status)
	assert.Equal(t, "boom", entries[1].Error)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4, "spans end once")
	var first JSONTraceEntry
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "a", first.Operation)
	assert.Equal(t, "success", first.Status)

	quiet := NewJSONTracer(nil)
	_, span = quiet.Start(ctx, "x")
	span.End(nil)
	assert.Len(t, quiet.Entries(), 1)
}
