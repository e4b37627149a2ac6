package telemetry

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/embedded"
	"go.opentelemetry.io/otel/trace/noop"

	"outletops/internal/core"
)

func TestPrometheusRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := NewPrometheusRecorder(reg)
	require.NoError(t, err)

	ctx := context.Background()
	rec.Observe(ctx, "move_outlet", true, 20*time.Millisecond)
	rec.Observe(ctx, "move_outlet", true, 30*time.Millisecond)
	rec.Observe(ctx, "move_outlet", false, time.Millisecond)
	rec.Observe(ctx, "", true, time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(rec.total.WithLabelValues("move_outlet", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.total.WithLabelValues("move_outlet", "error")))
	assert.Equal(t, 1, testutil.CollectAndCount(rec.duration))

	again, err := NewPrometheusRecorder(reg)
	require.NoError(t, err)
	again.Observe(ctx, "move_outlet", true, time.Millisecond)
	assert.Equal(t, 3.0, testutil.ToFloat64(rec.total.WithLabelValues("move_outlet", "success")), "collectors are shared")

	srv := httptest.NewServer(MetricsHandler(reg))
	defer srv.Close()
	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServiceFeedsPrometheus(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := NewPrometheusRecorder(reg)
	require.NoError(t, err)
	svc := core.NewInMemoryService(core.NewDefaultRulesEngine(), core.WithMetricsRecorder(rec))
	_, _, err = svc.AddOutlet(context.Background(), core.OutletInput{Name: "Metered"})
	require.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.total.WithLabelValues(core.OpAddOutlet, "success")))
}

type recordedSpan struct {
	trace.Span
	name   string
	status codes.Code
	errs   []error
	ended  bool
}

func (s *recordedSpan) RecordError(err error, _ ...trace.EventOption) { s.errs = append(s.errs, err) }
func (s *recordedSpan) SetStatus(code codes.Code, _ string)           { s.status = code }
func (s *recordedSpan) End(...trace.SpanEndOption)                    { s.ended = true }

type recordingTracer struct {
	embedded.Tracer
	spans []*recordedSpan
}

func (t *recordingTracer) Start(ctx context.Context, name string, _ ...trace.SpanStartOption) (context.Context, trace.Span) {
	span := &recordedSpan{Span: noop.Span{}, name: name}
	t.spans = append(t.spans, span)
	return ctx, span
}

type recordingProvider struct {
	embedded.TracerProvider
	tracer *recordingTracer
}

func (p recordingProvider) Tracer(string, ...trace.TracerOption) trace.Tracer { return p.tracer }

func TestOTelTracerSetsStatus(t *testing.T) {
	rt := &recordingTracer{}
	tracer := NewOTelTracer(recordingProvider{tracer: rt})
	ctx := context.Background()

	_, span := tracer.Start(ctx, "move_outlet")
	span.End(nil)
	_, span = tracer.Start(ctx, "delete_outlet")
	span.End(errors.New("outlet x not found"))

	require.Len(t, rt.spans, 2)
	assert.Equal(t, "outletops.move_outlet", rt.spans[0].name)
	assert.Equal(t, codes.Ok, rt.spans[0].status)
	assert.True(t, rt.spans[0].ended)
	assert.Equal(t, codes.Error, rt.spans[1].status)
	require.Len(t, rt.spans[1].errs, 1)
	assert.True(t, rt.spans[1].ended)
}

func TestOTelTracerDefaultsToGlobalProvider(t *testing.T) {
	tracer := NewOTelTracer(nil)
	ctx, span := tracer.Start(context.Background(), "noop")
	assert.NotNil(t, ctx)
	span.End(nil)
}

type lineLogger struct{ lines []string }

func (l *lineLogger) Debug(msg string, _ ...any) { l.lines = append(l.lines, "d:"+msg) }
func (l *lineLogger) Info(msg string, args ...any) {
	l.lines = append(l.lines, "i:"+msg+":"+joinArgs(args))
}
func (l *lineLogger) Warn(msg string, args ...any) {
	l.lines = append(l.lines, "w:"+msg+":"+joinArgs(args))
}
func (l *lineLogger) Error(msg string, _ ...any) { l.lines = append(l.lines, "e:"+msg) }

func joinArgs(args []any) string {
	parts := make([]string, 0, len(args))
	for _, a := range args {
		if s, ok := a.(string); ok {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, ",")
}

func TestLogAuditRecorder(t *testing.T) {
	logger := &lineLogger{}
	rec := NewLogAuditRecorder(logger)
	rec.Record(context.Background(), core.AuditEntry{Operation: "add_outlet", Status: core.AuditStatusSuccess, EntityID: "o-1"})
	rec.Record(context.Background(), core.AuditEntry{Operation: "delete_outlet", Status: core.AuditStatusError, Error: "missing"})
	require.Len(t, logger.lines, 2)
	assert.True(t, strings.HasPrefix(logger.lines[0], "i:audit:operation,add_outlet"))
	assert.Contains(t, logger.lines[0], "o-1")
	assert.True(t, strings.HasPrefix(logger.lines[1], "w:audit:"))
	assert.Contains(t, logger.lines[1], "missing")
}
