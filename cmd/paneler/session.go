package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/kingrea/paneler/internal/config"
	"github.com/kingrea/paneler/internal/logbook"
	"github.com/kingrea/paneler/internal/logging"
	"github.com/kingrea/paneler/internal/module"
	"github.com/kingrea/paneler/internal/modules"
	"github.com/kingrea/paneler/internal/telemetry"
	"github.com/kingrea/paneler/internal/workflow"
	"github.com/kingrea/paneler/internal/workflow/engine"
)

// session bundles everything a command needs to work on one project.
type session struct {
	cfg      *config.Config
	logger   *logging.Logger
	metrics  *telemetry.Metrics
	mctx     *module.ModuleContext
	registry *module.Registry
	engine   *engine.Engine
	def      workflow.WorkflowDefinition
}

func projectDir(opts *rootOptions) (string, error) {
	dir := opts.project
	if dir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("determine working directory: %w", err)
		}
		dir = cwd
	}
	return filepath.Abs(dir)
}

func openSession(opts *rootOptions) (*session, error) {
	dir, err := projectDir(opts)
	if err != nil {
		return nil, err
	}
	if err := config.InitProjectDir(dir); err != nil {
		return nil, fmt.Errorf("init %s: %w", config.PanelerDir, err)
	}
	cfg, err := config.NewConfig(dir)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(dir)
	if err != nil {
		return nil, err
	}
	lb, err := logbook.New(cfg.JournalPath())
	if err != nil {
		logger.Close()
		return nil, err
	}
	metrics := telemetry.New()
	reg := module.NewRegistry()
	modules.RegisterBuiltins(reg)
	def, err := workflow.Load(cfg.PanelerProjectDir, opts.workflow)
	if err != nil {
		logger.Close()
		return nil, err
	}
	eng, err := engine.New(reg, engine.NewRepository(cfg.StateDir()))
	if err != nil {
		logger.Close()
		return nil, err
	}
	logger.With("cli").Printf("session opened for %s (workflow %s)", dir, def.ID)
	return &session{
		cfg:      cfg,
		logger:   logger,
		metrics:  metrics,
		mctx:     module.NewContext(cfg, lb, logger, metrics),
		registry: reg,
		engine:   eng,
		def:      def,
	}, nil
}

func (s *session) Close() error {
	return s.logger.Close()
}
