package main

import (
	"context"
	"encoding/json"
	"errors"
	"expvar"
	"fmt"
	"io"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"outletops/internal/config"
	"outletops/internal/core"
	"outletops/internal/infra/telemetry"
	"outletops/internal/logging"
)

// app carries the state shared by every subcommand.
type app struct {
	cfgFile string
	envFile string

	cfg    *config.Config
	logger *logging.Logger

	stdout io.Writer
	stderr io.Writer
}

func (a *app) load() error {
	cfg, err := config.Load(config.Options{ConfigFile: a.cfgFile, EnvFile: a.envFile})
	if err != nil {
		return err
	}
	logger, err := logging.New(logging.Options{
		Level:  cfg.Log.Level,
		Format: logging.Format(cfg.Log.Format),
		Output: a.stderr,
	})
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logger
	return nil
}

// runtime is an opened service plus what it takes to tear it down.
type runtime struct {
	svc     *core.Service
	store   core.PersistentStore
	metrics http.Handler
}

func (r *runtime) Close() error {
	return core.CloseStore(r.store)
}

// open wires storage, archive, metrics, tracing and audit per configuration.
func (a *app) open(ctx context.Context) (*runtime, error) {
	engine := core.NewDefaultRulesEngine()
	store, err := core.OpenPersistentStore(ctx, a.cfg.StorageOptions(), engine)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	blobs, err := core.OpenBlobStore(ctx, a.cfg.BlobOptions())
	if err != nil {
		return nil, errors.Join(fmt.Errorf("open blob store: %w", err), core.CloseStore(store))
	}

	rt := &runtime{store: store}
	opts := []core.ServiceOption{
		core.WithLogger(a.logger.With("component", "service")),
		core.WithAuditRecorder(telemetry.NewLogAuditRecorder(a.logger.With("component", "audit"))),
		core.WithBlobStore(blobs),
	}

	switch a.cfg.Metrics.Driver {
	case "expvar":
		opts = append(opts, core.WithMetricsRecorder(core.NewExpvarMetricsRecorder("")))
		rt.metrics = expvar.Handler()
	case "prometheus":
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		rec, err := telemetry.NewPrometheusRecorder(reg)
		if err != nil {
			return nil, errors.Join(err, core.CloseStore(store))
		}
		opts = append(opts, core.WithMetricsRecorder(rec))
		rt.metrics = telemetry.MetricsHandler(reg)
	}

	switch a.cfg.Tracing.Driver {
	case "json":
		opts = append(opts, core.WithTracer(core.NewJSONTracer(a.stderr)))
	case "otel":
		opts = append(opts, core.WithTracer(telemetry.NewOTelTracer(nil)))
	}

	rt.svc = core.NewService(store, opts...)
	a.logger.Debug("service opened",
		"storage", a.cfg.Storage.Driver,
		"blob", a.cfg.Blob.Driver,
		"metrics", a.cfg.Metrics.Driver,
		"tracing", a.cfg.Tracing.Driver,
	)
	return rt, nil
}

// withService opens the runtime, runs fn and closes it again.
func (a *app) withService(ctx context.Context, fn func(svc *core.Service) error) (err error) {
	rt, err := a.open(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := rt.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close storage: %w", cerr)
		}
	}()
	return fn(rt.svc)
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (a *app) warnViolations(res core.Result) {
	for _, v := range res.Violations {
		if _, err := fmt.Fprintf(a.stderr, "%s: %s (%s)\n", v.Severity, v.Message, v.Rule); err != nil {
			return
		}
	}
}
