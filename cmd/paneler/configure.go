package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/kingrea/paneler/internal/allocation"
	"github.com/kingrea/paneler/internal/dataset"
)

func newConfigureCmd(opts *rootOptions) *cobra.Command {
	var (
		features []string
		fromData bool
	)
	cmd := &cobra.Command{
		Use:   "configure",
		Short: "Choose stratification features and their target proportions",
		Long: `configure sets the features panels are balanced on and the ideal share of
every category. Run it in a terminal for an interactive form, or pass
--from-data to copy the master distribution as the targets.`,
		Args: cobra.NoArgs,
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

			var targets allocation.Targets
			switch {
			case fromData:
				targets, err = observedTargets(pool, features)
			case isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd()):
				features, targets, err = promptTargets(pool, features, s.cfg.Targets())
			default:
				return errors.New("configure needs a terminal for the form; pass --from-data to use the master distribution")
			}
			if err != nil {
				return err
			}
			if err := s.cfg.SetTargets(features, targets); err != nil {
				return err
			}
			s.mctx.Logbook.Info("targets configured for %s", strings.Join(features, ", "))
			fmt.Fprintf(cmd.OutOrStdout(), "Saved targets for %s to %s\n", strings.Join(features, ", "), s.cfg.ConfigPath)
			return nil
		},
	}
	cmd.Flags().StringSliceVarP(&features, "feature", "f", nil, "stratification features in priority order")
	cmd.Flags().BoolVar(&fromData, "from-data", false, "use the master distribution as the targets")
	return cmd
}

func observedTargets(pool *dataset.Pool, features []string) (allocation.Targets, error) {
	if err := pool.ValidateFeatures(features); err != nil {
		return nil, err
	}
	targets := allocation.Targets{}
	for _, feature := range features {
		dist, err := dataset.Distribution(pool.Records(), feature)
		if err != nil {
			return nil, err
		}
		targets[feature] = dist
	}
	return targets, nil
}

// promptTargets asks for the features first, then one proportion per
// category, prefilled from current targets or the master distribution.
func promptTargets(pool *dataset.Pool, features []string, current allocation.Targets) ([]string, allocation.Targets, error) {
	chosen := append([]string(nil), features...)
	pick := huh.NewForm(huh.NewGroup(
		huh.NewMultiSelect[string]().
			Title("Stratification features").
			Description("Panels are balanced on these columns, in column order.").
			Options(huh.NewOptions(pool.Columns()...)...).
			Value(&chosen).
			Validate(func(v []string) error {
				if len(v) == 0 {
					return errors.New("pick at least one feature")
				}
				return nil
			}),
	))
	if err := pick.Run(); err != nil {
		return nil, nil, err
	}
	observed, err := observedTargets(pool, chosen)
	if err != nil {
		return nil, nil, err
	}

	type entry struct {
		feature, category string
		value             string
	}
	var entries []*entry
	var groups []*huh.Group
	for _, feature := range chosen {
		var fields []huh.Field
		for _, category := range dataset.SortedCategories(observed[feature]) {
			prefill := observed[feature][category]
			if v, ok := current[feature][category]; ok {
				prefill = v
			}
			e := &entry{feature: feature, category: category, value: strconv.FormatFloat(prefill, 'f', 3, 64)}
			entries = append(entries, e)
			fields = append(fields, huh.NewInput().
				Title(category).
				Value(&e.value).
				Validate(func(v string) error {
					_, err := parseProportion(v)
					return err
				}))
		}
		groups = append(groups, huh.NewGroup(fields...).
			Title(feature).
			Description("Target share of each category; the shares must sum to 1."))
	}
	if err := huh.NewForm(groups...).Run(); err != nil {
		return nil, nil, err
	}

	targets := allocation.Targets{}
	for _, e := range entries {
		v, _ := parseProportion(e.value)
		if targets[e.feature] == nil {
			targets[e.feature] = map[string]float64{}
		}
		targets[e.feature][e.category] = v
	}
	return chosen, targets, nil
}

func parseProportion(value string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 0, fmt.Errorf("%q is not a number", value)
	}
	if v < 0 || v > 1 {
		return 0, fmt.Errorf("%v is outside 0..1", v)
	}
	return v, nil
}
