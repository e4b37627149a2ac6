package httpapi

import (
	"bytes"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"outletops/internal/core"
	"outletops/internal/importer"
)

// UploadField is the multipart field carrying the import file.
const UploadField = "file"

// TemplateFilename is the suggested name of the downloadable template.
const TemplateFilename = "Outlet_Import_Template.xlsx"

type previewResponse struct {
	Preview   core.ImportPreview `json:"preview"`
	ExpiresAt time.Time          `json:"expires_at"`
}

type commitResponse struct {
	Commit     core.ImportCommit `json:"commit"`
	Violations []violationView   `json:"violations,omitempty"`
}

func (s *Server) previewImport(c echo.Context) error {
	req := c.Request()
	req.Body = http.MaxBytesReader(c.Response(), req.Body, s.maxBytes)
	header, err := c.FormFile(UploadField)
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "upload exceeds size limit")
		}
		return badRequest("multipart field \"" + UploadField + "\" is required")
	}
	file, err := header.Open()
	if err != nil {
		return err
	}
	defer file.Close()

	preview, err := s.svc.PreviewImport(req.Context(), header.Filename, file)
	if err != nil {
		return err
	}
	expires := s.previews.Put(preview)
	return c.JSON(http.StatusCreated, previewResponse{Preview: preview, ExpiresAt: expires})
}

func previewGone(batchID string) error {
	return echo.NewHTTPError(http.StatusNotFound, "import preview "+batchID+" not found or expired")
}

func (s *Server) getPreview(c echo.Context) error {
	batchID := c.Param("batch")
	preview, expires, ok := s.previews.Get(batchID)
	if !ok {
		return previewGone(batchID)
	}
	return c.JSON(http.StatusOK, previewResponse{Preview: preview, ExpiresAt: expires})
}

// commitImport commits a held preview once. A commit rejected by the rules
// leaves the preview held so it can be inspected or discarded.
func (s *Server) commitImport(c echo.Context) error {
	batchID := c.Param("batch")
	preview, ok := s.previews.Take(batchID)
	if !ok {
		return previewGone(batchID)
	}
	commit, res, err := s.svc.CommitImport(c.Request().Context(), preview)
	if err != nil {
		s.previews.Put(preview)
		return err
	}
	return c.JSON(http.StatusOK, commitResponse{Commit: commit, Violations: violations(res)})
}

func (s *Server) discardPreview(c echo.Context) error {
	batchID := c.Param("batch")
	if !s.previews.Discard(batchID) {
		return previewGone(batchID)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) importArchives(c echo.Context) error {
	archives, err := s.svc.ListImportArchives(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"archives": archives})
}

func attachment(c echo.Context, filename, contentType string, body []byte) error {
	c.Response().Header().Set(echo.HeaderContentDisposition, "attachment; filename=\""+filename+"\"")
	return c.Blob(http.StatusOK, contentType, body)
}

func (s *Server) template(c echo.Context) error {
	var buf bytes.Buffer
	if err := s.svc.WriteTemplate(&buf); err != nil {
		return err
	}
	return attachment(c, TemplateFilename, importer.FormatXLSX.ContentType(), buf.Bytes())
}

// export serves ?format=xlsx|csv, defaulting to xlsx.
func (s *Server) export(c echo.Context) error {
	format, err := importer.ParseFormat(c.QueryParam("format"))
	if err != nil {
		return badRequest(err.Error())
	}
	var buf bytes.Buffer
	if err := s.svc.Export(&buf, format); err != nil {
		return err
	}
	return attachment(c, "outlets."+string(format), format.ContentType(), buf.Bytes())
}
