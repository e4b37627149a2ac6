package core

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"outletops/internal/importer"
	"outletops/internal/infra/blob"
	"outletops/internal/pipeline"
)

// ErrArchiveDisabled is returned by archive queries when no blob store is configured.
var ErrArchiveDisabled = errors.New("upload archive disabled")

// ImportPreview is the reconciled, uncommitted outcome of one uploaded file.
// Committing it is the only way its records reach the store.
type ImportPreview struct {
	BatchID   string           `json:"batch_id"`
	Filename  string           `json:"filename"`
	CreatedAt time.Time        `json:"created_at"`
	Summary   importer.Summary `json:"summary"`
	Counts    importer.Counts  `json:"counts"`
	Archive   *blob.Info       `json:"archive,omitempty"`
}

// ImportCommit reports what a commit wrote.
type ImportCommit struct {
	BatchID string `json:"batch_id"`
	Created int    `json:"created"`
	Updated int    `json:"updated"`
}

// PreviewImport parses the file, reconciles its rows against the current
// outlets and returns the classification without writing anything. When an
// archive store is configured the raw upload is kept under
// imports/<batch-id>/<filename>.
func (s *Service) PreviewImport(ctx context.Context, filename string, r io.Reader) (ImportPreview, error) {
	var preview ImportPreview
	err := s.observe(ctx, OpPreviewImport, func(ctx context.Context) error {
		source, err := importer.SourceFor(filename)
		if err != nil {
			return err
		}
		batchID := s.newID()
		var raw []byte
		if s.blobs != nil {
			raw, err = io.ReadAll(r)
			if err != nil {
				return fmt.Errorf("%w: %v", importer.ErrUnreadableFile, err)
			}
			r = bytes.NewReader(raw)
		}
		rows, err := source.ReadRows(ctx, r)
		if err != nil {
			return err
		}
		summary := importer.Reconcile(rows, s.store.ListOutlets(), importer.Options{
			Now:   s.now(),
			NewID: s.newID,
		})
		preview = ImportPreview{
			BatchID:   batchID,
			Filename:  filename,
			CreatedAt: s.now(),
			Summary:   summary,
			Counts:    summary.Counts(),
		}
		if s.blobs != nil {
			preview.Archive = s.archiveUpload(ctx, batchID, filename, raw, preview.Counts)
		}
		s.logger.Info("import previewed", "batch_id", batchID, "filename", filename,
			"new", preview.Counts.New, "update", preview.Counts.Update, "failures", preview.Counts.Failures)
		return nil
	})
	return preview, err
}

// archiveUpload stores the raw upload. Archive failures are logged and do not
// fail the preview.
func (s *Service) archiveUpload(ctx context.Context, batchID, filename string, raw []byte, counts importer.Counts) *blob.Info {
	key := blob.ImportKey(batchID, filename)
	info, err := s.blobs.Put(ctx, key, bytes.NewReader(raw), blob.PutOptions{
		ContentType: contentTypeFor(filename),
		Metadata: map[string]string{
			"batch-id": batchID,
			"filename": filename,
			"new":      fmt.Sprint(counts.New),
			"update":   fmt.Sprint(counts.Update),
			"failures": fmt.Sprint(counts.Failures),
		},
	})
	if err != nil {
		s.logger.Warn("archive upload failed", "batch_id", batchID, "key", key, "error", err)
		return nil
	}
	return &info
}

func contentTypeFor(filename string) string {
	source, err := importer.SourceFor(filename)
	if err != nil {
		return "application/octet-stream"
	}
	if _, ok := source.(importer.CSVSource); ok {
		return importer.FormatCSV.ContentType()
	}
	return importer.FormatXLSX.ContentType()
}

// CommitImport writes the preview's successful records in one transaction.
// Update records are matched again by name against the live outlets and
// replace the match in place; an Update whose match has disappeared is
// appended like a New record.
func (s *Service) CommitImport(ctx context.Context, preview ImportPreview) (ImportCommit, Result, error) {
	out := ImportCommit{BatchID: preview.BatchID}
	res, err := s.run(ctx, OpCommitImport, func(tx Transaction) (string, error) {
		out.Created, out.Updated = 0, 0
		for _, rec := range preview.Summary.Success {
			if rec.Action == importer.ActionUpdate {
				if match, ok := pipeline.FindByName(tx.ListOutlets(), rec.Outlet.Name); ok {
					next := rec.Outlet.Clone()
					if _, err := tx.UpdateOutlet(match.ID, func(o *Outlet) error {
						*o = next
						return nil
					}); err != nil {
						return preview.BatchID, fmt.Errorf("row %d: %w", rec.Row, err)
					}
					out.Updated++
					continue
				}
			}
			o := rec.Outlet.Clone()
			if _, taken := tx.FindOutlet(o.ID); taken || o.ID == "" {
				o.ID = s.newID()
			}
			o.IsArchived = false
			o.ArchivedAt = nil
			if _, err := tx.CreateOutlet(o); err != nil {
				return preview.BatchID, fmt.Errorf("row %d: %w", rec.Row, err)
			}
			out.Created++
		}
		return preview.BatchID, nil
	})
	if err != nil {
		return ImportCommit{BatchID: preview.BatchID}, res, err
	}
	s.logger.Info("import committed", "batch_id", preview.BatchID, "created", out.Created, "updated", out.Updated)
	return out, res, nil
}

// WriteTemplate writes the blank import workbook.
func (s *Service) WriteTemplate(w io.Writer) error {
	return importer.WriteTemplate(w)
}

// Export writes the active outlets in the import layout.
func (s *Service) Export(w io.Writer, format importer.Format) error {
	return importer.Export(w, format, s.ListActive())
}

// ListImportArchives lists archived uploads sorted by key.
func (s *Service) ListImportArchives(ctx context.Context) ([]blob.Info, error) {
	if s.blobs == nil {
		return nil, ErrArchiveDisabled
	}
	return s.blobs.List(ctx, blob.ImportPrefix)
}
