package main

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/kingrea/paneler/internal/allocation"
	"github.com/kingrea/paneler/internal/dataset"
)

var headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)

func newInspectCmd(opts *rootOptions) *cobra.Command {
	var features []string
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Show the master distribution of the stratification features",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openSession(opts)
			if err != nil {
				return err
			}
			defer s.Close()
			pool, _, err := s.mctx.Dataset()
			if err != nil {
				return err
			}
			if len(features) == 0 {
				features = s.cfg.Project.Features
			}
			if err := pool.ValidateFeatures(features); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			size := s.cfg.Project.Panels.Size
			fmt.Fprintf(out, "Dataset: %s\n", s.cfg.DatasetPath())
			fmt.Fprintf(out, "Records: %d\n", pool.Len())
			fmt.Fprintf(out, "Columns: %v\n", pool.Columns())
			fmt.Fprintf(out, "Capacity: at most %d panel(s) of %d\n\n", allocation.MaxPossiblePanels(pool, size), size)

			targets := s.cfg.Targets()
			for _, feature := range features {
				counts, err := dataset.Counts(pool.Records(), feature)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, renderDistribution(feature, counts, pool.Len(), targets[feature]))
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVarP(&features, "feature", "f", nil, "feature to show (repeatable, defaults to the configured features)")
	return cmd
}

func renderDistribution(feature string, counts map[string]int, total int, targets map[string]float64) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return lipgloss.NewStyle().Padding(0, 1)
		}).
		Headers(feature, "Count", "Share", "Target")
	categories := dataset.SortedCategories(counts)
	for _, cat := range dataset.SortedCategories(targets) {
		if _, ok := counts[cat]; !ok {
			categories = append(categories, cat)
		}
	}
	for _, cat := range categories {
		share := 0.0
		if total > 0 {
			share = float64(counts[cat]) / float64(total)
		}
		target := "-"
		if v, ok := targets[cat]; ok {
			target = strconv.FormatFloat(v, 'f', 3, 64)
		}
		t.Row(cat, strconv.Itoa(counts[cat]), strconv.FormatFloat(share, 'f', 3, 64), target)
	}
	return t.String()
}
