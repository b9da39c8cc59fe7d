package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/kingrea/paneler/internal/workflow/engine"
)

func newStatusCmd(opts *rootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show which stages are complete, stale or blocked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openSession(opts)
			if err != nil {
				return err
			}
			defer s.Close()
			state, err := s.engine.Status(s.mctx, s.def)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(state)
			}
			printStatus(out, state)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full state as JSON")
	return cmd
}

func printStatus(out io.Writer, state engine.State) {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return lipgloss.NewStyle().Padding(0, 1)
		}).
		Headers("Stage", "State", "Last run", "Note")
	for _, node := range state.Nodes {
		st := string(node.State)
		if node.Stale {
			st += " (stale)"
		}
		last := "-"
		note := ""
		if run := node.LastRun; run != nil {
			last = fmt.Sprintf("%s %s", run.Status, run.FinishedAt.Format("2006-01-02 15:04"))
			note = run.Message
			if n := len(run.Warnings); n > 0 {
				note = fmt.Sprintf("%s (%d warning(s))", note, n)
			}
		}
		if len(node.BlockedBy) > 0 {
			note = "waiting for " + strings.Join(node.BlockedBy, ", ")
		}
		if node.Error != "" {
			note = node.Error
		}
		t.Row(node.ID, st, last, note)
	}
	fmt.Fprintln(out, t.String())
	fmt.Fprintf(out, "Pipeline %s", state.Status)
	if state.StatusReason != "" {
		fmt.Fprintf(out, ": %s", state.StatusReason)
	}
	fmt.Fprintln(out)
}

func newModulesCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "modules",
		Short: "List the registered pipeline modules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openSession(opts)
			if err != nil {
				return err
			}
			defer s.Close()
			infos, err := s.registry.Describe()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, info := range infos {
				fmt.Fprintf(out, "%-16s %-8s %s\n", info.ID, info.Version, info.Description)
			}
			return nil
		},
	}
}
