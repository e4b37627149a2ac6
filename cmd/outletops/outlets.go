package main

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"outletops/internal/analytics"
	"outletops/internal/core"
	"outletops/internal/pipeline"
	"outletops/internal/vocabulary"
	"outletops/pkg/domain"
)

func writeOutlets(w io.Writer, outlets []core.Outlet) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSTAGE\tSTATUS\tCITY\tARCHIVED")
	for _, o := range outlets {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%t\n", o.ID, o.Name, o.CurrentStage.Label(), o.Status, o.City, o.IsArchived)
	}
	return tw.Flush()
}

func (a *app) printOutlet(o core.Outlet, changed bool) error {
	if !changed {
		_, err := fmt.Fprintf(a.stdout, "%s unchanged (%s)\n", o.ID, o.CurrentStage.Label())
		return err
	}
	_, err := fmt.Fprintf(a.stdout, "%s %s: %s\n", o.ID, o.Name, o.CurrentStage.Label())
	return err
}

func newListCmd(a *app) *cobra.Command {
	var (
		view   string
		search string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List outlets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withService(cmd.Context(), func(svc *core.Service) error {
				var outlets []core.Outlet
				switch {
				case search != "":
					outlets = svc.Search(search)
				case view == "active":
					outlets = svc.ListActive()
				case view == "archived":
					outlets = svc.ListArchived()
				case view == "all":
					outlets = svc.ListOutlets()
				default:
					return fmt.Errorf("unknown view %q (want active, archived or all)", view)
				}
				if asJSON {
					return a.printJSON(outlets)
				}
				return writeOutlets(a.stdout, outlets)
			})
		},
	}
	cmd.Flags().StringVar(&view, "view", "active", "active, archived or all")
	cmd.Flags().StringVarP(&search, "search", "s", "", "search active outlets by name, description or note")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output as JSON")
	return cmd
}

func newAddCmd(a *app) *cobra.Command {
	var in core.OutletInput
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add an outlet at the first pipeline stage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withService(cmd.Context(), func(svc *core.Service) error {
				o, res, err := svc.AddOutlet(cmd.Context(), in)
				if err != nil {
					return err
				}
				a.warnViolations(res)
				return a.printOutlet(o, true)
			})
		},
	}
	cmd.Flags().StringVar(&in.Name, "name", "", "outlet name (defaults to the brand)")
	cmd.Flags().StringVar(&in.Brand, "brand", "", "brand")
	cmd.Flags().StringVar(&in.City, "city", "", "city")
	cmd.Flags().StringVar(&in.Status, "status", "", "operational status")
	cmd.Flags().StringVar(&in.Description, "description", "", "description")
	cmd.Flags().StringVar(&in.Note, "note", "", "note for the first stage")
	return cmd
}

func newMoveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "move <id> <forward|backward>",
		Short: "Move an outlet one stage",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := pipeline.ParseDirection(args[1])
			if err != nil {
				return err
			}
			return a.withService(cmd.Context(), func(svc *core.Service) error {
				o, moved, err := svc.MoveOutlet(cmd.Context(), args[0], dir)
				if err != nil {
					return err
				}
				return a.printOutlet(o, moved)
			})
		},
	}
}

func resolveStageArg(raw string) (domain.Stage, error) {
	stage, ok := vocabulary.ResolveStage(raw)
	if !ok {
		return "", fmt.Errorf("unknown stage %q", raw)
	}
	return stage, nil
}

func newStageCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stage <id> <stage>",
		Short: "Set an outlet's stage directly",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			stage, err := resolveStageArg(args[1])
			if err != nil {
				return err
			}
			return a.withService(cmd.Context(), func(svc *core.Service) error {
				o, moved, err := svc.SetOutletStage(cmd.Context(), args[0], stage)
				if err != nil {
					return err
				}
				return a.printOutlet(o, moved)
			})
		},
	}
}

func newNoteCmd(a *app) *cobra.Command {
	var stageArg string
	cmd := &cobra.Command{
		Use:   "note <id> <text>",
		Short: "Set the note for the current stage, or --stage",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withService(cmd.Context(), func(svc *core.Service) error {
				var (
					o   core.Outlet
					err error
				)
				if stageArg == "" {
					o, err = svc.UpdateCurrentNote(cmd.Context(), args[0], args[1])
				} else {
					stage, serr := resolveStageArg(stageArg)
					if serr != nil {
						return serr
					}
					o, err = svc.UpsertStageNote(cmd.Context(), args[0], stage, args[1])
				}
				if err != nil {
					return err
				}
				return a.printOutlet(o, true)
			})
		},
	}
	cmd.Flags().StringVar(&stageArg, "stage", "", "stage to annotate instead of the current one")
	return cmd
}

func newArchiveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "archive <id>",
		Short: "Archive an outlet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withService(cmd.Context(), func(svc *core.Service) error {
				o, ok, err := svc.ArchiveOutlet(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return a.printOutlet(o, ok)
			})
		},
	}
}

func newRestoreCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "restore <id>",
		Short: "Restore an archived outlet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withService(cmd.Context(), func(svc *core.Service) error {
				o, ok, err := svc.RestoreOutlet(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return a.printOutlet(o, ok)
			})
		},
	}
}

var errNotConfirmed = errors.New("permanent deletion needs --yes")

func newDeleteCmd(a *app) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Permanently delete an outlet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errNotConfirmed
			}
			return a.withService(cmd.Context(), func(svc *core.Service) error {
				if _, err := svc.PermanentlyDeleteOutlet(cmd.Context(), args[0]); err != nil {
					return err
				}
				_, err := fmt.Fprintf(a.stdout, "%s deleted\n", args[0])
				return err
			})
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm deletion")
	return cmd
}

func writeReport(w io.Writer, r analytics.Report) error {
	fmt.Fprintf(w, "total %d  live %d  in pipeline %d  delayed %d  avg cycle %dd\n",
		r.Total, r.Live, r.InPipeline, r.DelayedCount(), r.AvgCycleDays)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STAGE\tCOUNT\tAVG DAYS\tTARGET\tBOTTLENECK")
	for _, m := range r.Stages {
		flag := ""
		if m.Bottleneck {
			flag = "yes"
		}
		fmt.Fprintf(tw, "%s\t%d\t%.1f\t%d\t%s\n", m.Stage.Label, m.Count, m.AvgDays, m.Stage.TargetDays, flag)
	}
	return tw.Flush()
}

func newReportCmd(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Show pipeline analytics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withService(cmd.Context(), func(svc *core.Service) error {
				r, err := svc.Report(cmd.Context())
				if err != nil {
					return err
				}
				if asJSON {
					return a.printJSON(r)
				}
				return writeReport(a.stdout, r)
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "output as JSON")
	return cmd
}
