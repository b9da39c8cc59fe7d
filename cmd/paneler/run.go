package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/kingrea/paneler/internal/artifact"
	"github.com/kingrea/paneler/internal/module"
	"github.com/kingrea/paneler/internal/workflow/engine"
)

func newRunCmd(opts *rootOptions) *cobra.Command {
	var (
		until       string
		force       bool
		metricsPath string
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run every stage whose outputs are missing or out of date",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openSession(opts)
			if err != nil {
				return err
			}
			defer s.Close()
			var targets []string
			if until != "" {
				targets = []string{until}
			}
			runErr := runPipeline(cmd.Context(), cmd.OutOrStdout(), s, engine.RunRequest{
				Definition: s.def,
				Targets:    targets,
				Force:      force,
			})
			if metricsPath != "" {
				if err := s.metrics.WriteFile(metricsPath); err != nil {
					return errors.Join(runErr, err)
				}
			}
			return runErr
		},
	}
	cmd.Flags().StringVar(&until, "until", "", "stop after this stage (its dependencies run first)")
	cmd.Flags().BoolVar(&force, "force", false, "rerun selected stages even when they are up to date")
	cmd.Flags().StringVar(&metricsPath, "metrics", "", "write this run's metrics to a Prometheus text file")
	return cmd
}

func newSplitCmd(opts *rootOptions) *cobra.Command {
	var sets int
	cmd := &cobra.Command{
		Use:   "split",
		Short: "Split every panel into balanced sets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openSession(opts)
			if err != nil {
				return err
			}
			defer s.Close()
			if cmd.Flags().Changed("sets") && sets != s.cfg.Project.Splits.Sets {
				s.cfg.Project.Splits.Sets = sets
				if err := s.cfg.Save(); err != nil {
					return err
				}
			}
			return runPipeline(cmd.Context(), cmd.OutOrStdout(), s, engine.RunRequest{
				Definition: s.def,
				Targets:    []string{"split-panels", "verify-splits"},
			})
		},
	}
	cmd.Flags().IntVarP(&sets, "sets", "n", 2, "number of sets per panel (saved to the config)")
	return cmd
}

func newVerifyCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Check that no record appears in two exported panels or sets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openSession(opts)
			if err != nil {
				return err
			}
			defer s.Close()
			if err := s.mctx.Artifacts.Remove(artifact.VerifiedMarker); err != nil {
				return err
			}
			return runPipeline(cmd.Context(), cmd.OutOrStdout(), s, engine.RunRequest{
				Definition: s.def,
				Targets:    []string{"verify-splits"},
			})
		},
	}
}

// runPipeline runs req with progress lines on out. Ctrl-C cancels between
// stages.
func runPipeline(parent context.Context, out io.Writer, s *session, req engine.RunRequest) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt)
	defer stop()
	req.Progress = func(ev engine.ProgressEvent) {
		if ev.Phase == engine.PhaseStarted {
			fmt.Fprintf(out, "[%d/%d] %s\n", ev.Index, ev.Total, ev.Name)
			return
		}
		printResult(out, ev.Result, ev.Err)
	}
	state, err := s.engine.Run(ctx, s.mctx, req)
	if len(state.Executed) == 0 && err == nil {
		fmt.Fprintln(out, "Nothing to do: every selected stage is up to date.")
	}
	fmt.Fprintf(out, "Pipeline %s", state.Status)
	if state.RunID != "" {
		fmt.Fprintf(out, " (run %s)", shortID(state.RunID))
	}
	fmt.Fprintln(out)
	return err
}

func printResult(out io.Writer, result module.Result, err error) {
	line := fmt.Sprintf("      %s", result.Status)
	if result.Message != "" {
		line += ": " + result.Message
	}
	if err != nil {
		line += ": " + err.Error()
	}
	fmt.Fprintln(out, line)
	for _, w := range result.Warnings {
		fmt.Fprintf(out, "      ! %s\n", w)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
