// cmd/paneler/main.go
//
// This is the entry point for the paneler CLI.
// Every command works on a project directory (the current directory unless
// --project says otherwise) and keeps its state under .paneler/.
//
// Flow:
// 1. Make sure .paneler/ exists with a config.yaml
// 2. Load the config and open the logbook, debug log and metrics
// 3. Hand the pipeline to the engine, or to the TUI for `paneler tui`

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type rootOptions struct {
	project  string
	workflow string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "paneler",
		Short: "Draw stratified panels from a master dataset",
		Long: `paneler draws disjoint, demographically balanced panels from a master
dataset and splits each panel into balanced sets.

Targets that the dataset cannot support are adjusted first; every stage
writes its results under .paneler/run and only reruns when its inputs change.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.project, "project", "C", "", "project directory (defaults to the working directory)")
	root.PersistentFlags().StringVar(&opts.workflow, "workflow", "", "pipeline definition id (defaults to paneling)")

	root.AddCommand(
		newInitCmd(opts),
		newInspectCmd(opts),
		newConfigureCmd(opts),
		newRunCmd(opts),
		newSplitCmd(opts),
		newVerifyCmd(opts),
		newStatusCmd(opts),
		newModulesCmd(opts),
		newTUICmd(opts),
	)
	return root
}
