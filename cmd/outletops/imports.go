package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"outletops/internal/core"
	"outletops/internal/importer"
)

func writePreview(w io.Writer, p core.ImportPreview) error {
	fmt.Fprintf(w, "batch %s (%s): %d new, %d update, %d failed\n", p.BatchID, p.Filename, p.Counts.New, p.Counts.Update, p.Counts.Failures)
	if len(p.Summary.Failures) == 0 {
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ROW\tNAME\tREASON\tVALUE")
	for _, f := range p.Summary.Failures {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", f.Row, f.Name, f.Reason, f.OffendingText)
	}
	return tw.Flush()
}

func newImportCmd(a *app) *cobra.Command {
	var (
		apply  bool
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "import <file.xlsx|file.csv>",
		Short: "Preview a bulk import, and commit it with --apply",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			return a.withService(cmd.Context(), func(svc *core.Service) error {
				preview, err := svc.PreviewImport(cmd.Context(), filepath.Base(args[0]), f)
				if err != nil {
					return err
				}
				if asJSON && !apply {
					return a.printJSON(preview)
				}
				if err := writePreview(a.stdout, preview); err != nil {
					return err
				}
				if !apply {
					_, err := fmt.Fprintln(a.stdout, "dry run; pass --apply to commit")
					return err
				}
				commit, res, err := svc.CommitImport(cmd.Context(), preview)
				if err != nil {
					return err
				}
				a.warnViolations(res)
				if asJSON {
					return a.printJSON(commit)
				}
				_, err = fmt.Fprintf(a.stdout, "committed: %d created, %d updated\n", commit.Created, commit.Updated)
				return err
			})
		},
	}
	cmd.Flags().BoolVar(&apply, "apply", false, "commit the reconciled rows")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output as JSON")
	return cmd
}

// createOutput opens path for writing, or stdout for "-".
func (a *app) createOutput(path string) (io.WriteCloser, error) {
	if path == "-" {
		return nopCloser{a.stdout}, nil
	}
	return os.Create(path)
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

func writeTo(w io.WriteCloser, fn func(io.Writer) error) error {
	if err := fn(w); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

func newTemplateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "template [path]",
		Short: "Write the import template workbook",
		Args:  cobra.MaximumNArgs(1),
		// The template needs no storage.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(_ *cobra.Command, args []string) error {
			path := "Outlet_Import_Template.xlsx"
			if len(args) == 1 {
				path = args[0]
			}
			w, err := a.createOutput(path)
			if err != nil {
				return err
			}
			return writeTo(w, importer.WriteTemplate)
		},
	}
}

func newExportCmd(a *app) *cobra.Command {
	var formatArg string
	cmd := &cobra.Command{
		Use:   "export <path|->",
		Short: "Export active outlets in the import layout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if formatArg == "" {
				formatArg = strings.TrimPrefix(filepath.Ext(args[0]), ".")
			}
			format, err := importer.ParseFormat(formatArg)
			if err != nil {
				return err
			}
			return a.withService(cmd.Context(), func(svc *core.Service) error {
				w, err := a.createOutput(args[0])
				if err != nil {
					return err
				}
				return writeTo(w, func(w io.Writer) error { return svc.Export(w, format) })
			})
		},
	}
	cmd.Flags().StringVar(&formatArg, "format", "", "xlsx or csv (default from the file extension)")
	return cmd
}
