// Command outletops manages the outlet onboarding pipeline: it serves the
// HTTP API and runs one-shot pipeline, import and export commands.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var (
	version  = "dev"
	exitFunc = os.Exit
)

func main() {
	code := cli(os.Args[1:], os.Stdout, os.Stderr)
	exitFunc(code)
}

func cli(args []string, stdout, stderr io.Writer) int {
	root := newRootCmd(stdout, stderr)
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		if _, werr := fmt.Fprintf(stderr, "outletops: %v\n", err); werr != nil {
			return 2
		}
		return 1
	}
	return 0
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{stdout: stdout, stderr: stderr}
	root := &cobra.Command{
		Use:           "outletops",
		Short:         "Outlet onboarding pipeline and bulk import tool",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load()
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "path to outletops.yaml (default: search . and ./config)")
	root.PersistentFlags().StringVar(&a.envFile, "env-file", "", "path to a .env file (default .env)")

	root.AddCommand(
		newServeCmd(a),
		newListCmd(a),
		newAddCmd(a),
		newMoveCmd(a),
		newStageCmd(a),
		newNoteCmd(a),
		newArchiveCmd(a),
		newRestoreCmd(a),
		newDeleteCmd(a),
		newReportCmd(a),
		newImportCmd(a),
		newTemplateCmd(a),
		newExportCmd(a),
	)
	return root
}
