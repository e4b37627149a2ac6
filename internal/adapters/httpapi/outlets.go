package httpapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"outletops/internal/core"
	"outletops/internal/pipeline"
	"outletops/internal/vocabulary"
	"outletops/pkg/domain"
)

type outletResponse struct {
	Outlet     core.Outlet     `json:"outlet"`
	Changed    *bool           `json:"changed,omitempty"`
	Violations []violationView `json:"violations,omitempty"`
}

func changed(b bool) *bool { return &b }

type vocabularyResponse struct {
	Stages   []domain.StageInfo         `json:"stages"`
	Brands   []string                   `json:"brands"`
	Cities   []string                   `json:"cities"`
	Statuses []domain.OperationalStatus `json:"statuses"`
}

func (s *Server) vocabulary(c echo.Context) error {
	return c.JSON(http.StatusOK, vocabularyResponse{
		Stages:   domain.StageInfos(),
		Brands:   vocabulary.Brands(),
		Cities:   vocabulary.Cities(),
		Statuses: vocabulary.Statuses(),
	})
}

func (s *Server) board(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{"columns": s.svc.Board()})
}

func (s *Server) report(c echo.Context) error {
	report, err := s.svc.Report(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"report": report})
}

// listOutlets serves ?view=active|archived|all and ?q= search over active outlets.
func (s *Server) listOutlets(c echo.Context) error {
	if q := strings.TrimSpace(c.QueryParam("q")); q != "" {
		return c.JSON(http.StatusOK, map[string]any{"outlets": s.svc.Search(q)})
	}
	var outlets []core.Outlet
	switch strings.ToLower(c.QueryParam("view")) {
	case "", "active":
		outlets = s.svc.ListActive()
	case "archived":
		outlets = s.svc.ListArchived()
	case "all":
		outlets = s.svc.ListOutlets()
	default:
		return badRequest("view must be active, archived or all")
	}
	return c.JSON(http.StatusOK, map[string]any{"outlets": outlets})
}

func (s *Server) addOutlet(c echo.Context) error {
	var in core.OutletInput
	if err := c.Bind(&in); err != nil {
		return badRequest("invalid outlet payload")
	}
	outlet, res, err := s.svc.AddOutlet(c.Request().Context(), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, outletResponse{Outlet: outlet, Violations: violations(res)})
}

func (s *Server) getOutlet(c echo.Context) error {
	outlet, err := s.svc.GetOutlet(c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, outletResponse{Outlet: outlet})
}

func (s *Server) updateOutlet(c echo.Context) error {
	var patch core.OutletPatch
	if err := c.Bind(&patch); err != nil {
		return badRequest("invalid outlet patch")
	}
	outlet, err := s.svc.UpdateDetails(c.Request().Context(), c.Param("id"), patch)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, outletResponse{Outlet: outlet})
}

// deleteOutlet requires ?confirm=true since deletion cannot be undone.
func (s *Server) deleteOutlet(c echo.Context) error {
	confirm, _ := strconv.ParseBool(c.QueryParam("confirm"))
	if !confirm {
		return badRequest("permanent deletion requires confirm=true")
	}
	if _, err := s.svc.PermanentlyDeleteOutlet(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) timeline(c echo.Context) error {
	entries, err := s.svc.Timeline(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"timeline": entries})
}

type moveRequest struct {
	Direction string `json:"direction"`
}

func (s *Server) moveOutlet(c echo.Context) error {
	var req moveRequest
	if err := c.Bind(&req); err != nil {
		return badRequest("invalid move payload")
	}
	dir, err := pipeline.ParseDirection(req.Direction)
	if err != nil {
		return badRequest(err.Error())
	}
	outlet, moved, err := s.svc.MoveOutlet(c.Request().Context(), c.Param("id"), dir)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, outletResponse{Outlet: outlet, Changed: changed(moved)})
}

type stageRequest struct {
	Stage string `json:"stage"`
}

func parseStage(raw string) (domain.Stage, error) {
	stage, ok := vocabulary.ResolveStage(raw)
	if !ok {
		return "", badRequest("unknown stage " + strconv.Quote(raw))
	}
	return stage, nil
}

func (s *Server) setStage(c echo.Context) error {
	var req stageRequest
	if err := c.Bind(&req); err != nil {
		return badRequest("invalid stage payload")
	}
	stage, err := parseStage(req.Stage)
	if err != nil {
		return err
	}
	outlet, moved, err := s.svc.SetOutletStage(c.Request().Context(), c.Param("id"), stage)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, outletResponse{Outlet: outlet, Changed: changed(moved)})
}

type noteRequest struct {
	Note string `json:"note"`
}

func (s *Server) updateCurrentNote(c echo.Context) error {
	var req noteRequest
	if err := c.Bind(&req); err != nil {
		return badRequest("invalid note payload")
	}
	outlet, err := s.svc.UpdateCurrentNote(c.Request().Context(), c.Param("id"), req.Note)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, outletResponse{Outlet: outlet})
}

func (s *Server) upsertStageNote(c echo.Context) error {
	stage, err := parseStage(c.Param("stage"))
	if err != nil {
		return err
	}
	var req noteRequest
	if err := c.Bind(&req); err != nil {
		return badRequest("invalid note payload")
	}
	outlet, err := s.svc.UpsertStageNote(c.Request().Context(), c.Param("id"), stage, req.Note)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, outletResponse{Outlet: outlet})
}

type timestampRequest struct {
	Timestamp time.Time `json:"timestamp"`
}

func (s *Server) upsertStageTimestamp(c echo.Context) error {
	stage, err := parseStage(c.Param("stage"))
	if err != nil {
		return err
	}
	var req timestampRequest
	if err := c.Bind(&req); err != nil {
		return badRequest("timestamp must be RFC 3339")
	}
	outlet, err := s.svc.UpsertStageTimestamp(c.Request().Context(), c.Param("id"), stage, req.Timestamp)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, outletResponse{Outlet: outlet})
}

func (s *Server) archiveOutlet(c echo.Context) error {
	outlet, ok, err := s.svc.ArchiveOutlet(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, outletResponse{Outlet: outlet, Changed: changed(ok)})
}

func (s *Server) restoreOutlet(c echo.Context) error {
	outlet, ok, err := s.svc.RestoreOutlet(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, outletResponse{Outlet: outlet, Changed: changed(ok)})
}
