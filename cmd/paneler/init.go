package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/kingrea/paneler/internal/config"
)

func newInitCmd(opts *rootOptions) *cobra.Command {
	var datasetPath string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create .paneler/ with a starter config.yaml",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dir, err := projectDir(opts)
			if err != nil {
				return err
			}
			if err := config.InitProjectDir(dir); err != nil {
				return fmt.Errorf("init %s: %w", config.PanelerDir, err)
			}
			cfg, err := config.NewConfig(dir)
			if err != nil {
				return err
			}
			if datasetPath != "" {
				if !filepath.IsAbs(datasetPath) {
					datasetPath = filepath.Join(dir, datasetPath)
				}
				cfg.Project.Dataset.Path = datasetPath
				if err := cfg.Save(); err != nil {
					return err
				}
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Initialized %s in %s\n", config.PanelerDir, dir)
			fmt.Fprintf(out, "Config:  %s\n", cfg.ConfigPath)
			fmt.Fprintf(out, "Dataset: %s\n", cfg.DatasetPath())
			return nil
		},
	}
	cmd.Flags().StringVar(&datasetPath, "dataset", "", "master dataset path to record in the config")
	return cmd
}
