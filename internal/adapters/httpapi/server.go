// Package httpapi exposes the outlet service over a JSON HTTP API.
package httpapi

import (
	"context"
	"errors"
	"expvar"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"outletops/internal/core"
	"outletops/internal/importer"
	"outletops/pkg/domain"
)

// APIPrefix is the mount point of every API route.
const APIPrefix = "/api/v1"

// DefaultMaxUploadBytes caps import uploads when Config.MaxUploadBytes is unset.
const DefaultMaxUploadBytes int64 = 10 << 20

// Config tunes the HTTP adapter.
type Config struct {
	MaxUploadBytes int64
	PreviewTTL     time.Duration
	// Metrics is mounted at MetricsPath when set.
	Metrics     http.Handler
	MetricsPath string
	Logger      core.Logger
	Now         func() time.Time
}

// Server routes HTTP requests to a core.Service.
type Server struct {
	svc      *core.Service
	previews *PreviewStore
	logger   core.Logger
	maxBytes int64
	echo     *echo.Echo
}

// New builds the router. Call Start to begin preview expiry and Stop on shutdown.
func New(svc *core.Service, cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = core.NewNoopLogger()
	}
	maxBytes := cfg.MaxUploadBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	s := &Server{
		svc:      svc,
		previews: NewPreviewStore(cfg.PreviewTTL, cfg.Now),
		logger:   logger,
		maxBytes: maxBytes,
		echo:     echo.New(),
	}
	e := s.echo
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.handleError
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			s.logger.Debug("http request", "method", v.Method, "uri", v.URI, "status", v.Status, "latency_ms", v.Latency.Milliseconds())
			return nil
		},
	}))

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]any{"status": "ok"})
	})
	e.GET("/debug/vars", echo.WrapHandler(expvar.Handler()))
	if cfg.Metrics != nil {
		path := cfg.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		e.GET(path, echo.WrapHandler(cfg.Metrics))
	}
	s.routes(e.Group(APIPrefix))
	return s
}

func (s *Server) routes(g *echo.Group) {
	g.GET("/vocabulary", s.vocabulary)
	g.GET("/board", s.board)
	g.GET("/report", s.report)

	g.GET("/outlets", s.listOutlets)
	g.POST("/outlets", s.addOutlet)
	g.GET("/outlets/:id", s.getOutlet)
	g.PATCH("/outlets/:id", s.updateOutlet)
	g.DELETE("/outlets/:id", s.deleteOutlet)
	g.GET("/outlets/:id/timeline", s.timeline)
	g.POST("/outlets/:id/move", s.moveOutlet)
	g.PUT("/outlets/:id/stage", s.setStage)
	g.PUT("/outlets/:id/note", s.updateCurrentNote)
	g.PUT("/outlets/:id/stages/:stage/note", s.upsertStageNote)
	g.PUT("/outlets/:id/stages/:stage/timestamp", s.upsertStageTimestamp)
	g.POST("/outlets/:id/archive", s.archiveOutlet)
	g.POST("/outlets/:id/restore", s.restoreOutlet)

	g.GET("/imports/template", s.template)
	g.GET("/imports/archives", s.importArchives)
	g.GET("/exports", s.export)
	g.POST("/imports", s.previewImport)
	g.GET("/imports/:batch", s.getPreview)
	g.POST("/imports/:batch/commit", s.commitImport)
	g.DELETE("/imports/:batch", s.discardPreview)
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.echo }

// Previews exposes the held import previews.
func (s *Server) Previews() *PreviewStore { return s.previews }

// Start begins background preview expiry.
func (s *Server) Start() { s.previews.Start() }

// Stop halts background work.
func (s *Server) Stop(ctx context.Context) error { return s.previews.Stop(ctx) }

type errorBody struct {
	Error      string          `json:"error"`
	Violations []violationView `json:"violations,omitempty"`
}

type violationView struct {
	Rule     string `json:"rule"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
	EntityID string `json:"entity_id,omitempty"`
}

func violations(res core.Result) []violationView {
	if len(res.Violations) == 0 {
		return nil
	}
	out := make([]violationView, 0, len(res.Violations))
	for _, v := range res.Violations {
		out = append(out, violationView{
			Rule:     v.Rule,
			Severity: string(v.Severity),
			Message:  v.Message,
			EntityID: v.EntityID,
		})
	}
	return out
}

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	var (
		rve    domain.RuleViolationError
		tooBig *http.MaxBytesError
	)
	switch {
	case core.IsNotFound(err), errors.Is(err, core.ErrArchiveDisabled):
		return http.StatusNotFound
	case errors.Is(err, core.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.As(err, &rve):
		return http.StatusUnprocessableEntity
	case errors.Is(err, importer.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, importer.ErrUnreadableFile):
		return http.StatusBadRequest
	case errors.As(err, &tooBig):
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	var (
		code = http.StatusInternalServerError
		body = errorBody{Error: err.Error()}
		he   *echo.HTTPError
		rve  domain.RuleViolationError
	)
	switch {
	case errors.As(err, &he):
		code = he.Code
		if msg, ok := he.Message.(string); ok {
			body.Error = msg
		} else {
			body.Error = http.StatusText(code)
		}
	default:
		code = statusFor(err)
		if errors.As(err, &rve) {
			body.Violations = violations(rve.Result)
		}
	}
	if code >= http.StatusInternalServerError {
		s.logger.Error("request failed", "method", c.Request().Method, "path", c.Path(), "error", err)
	}
	var werr error
	if c.Request().Method == http.MethodHead {
		werr = c.NoContent(code)
	} else {
		werr = c.JSON(code, body)
	}
	if werr != nil {
		s.logger.Warn("write error response", "error", werr)
	}
}

func badRequest(msg string) error {
	return echo.NewHTTPError(http.StatusBadRequest, msg)
}
