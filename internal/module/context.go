package module

import (
	"context"
	"fmt"
	"sync"

	"github.com/kingrea/paneler/internal/artifact"
	"github.com/kingrea/paneler/internal/config"
	"github.com/kingrea/paneler/internal/dataset"
	"github.com/kingrea/paneler/internal/logbook"
	"github.com/kingrea/paneler/internal/logging"
	"github.com/kingrea/paneler/internal/telemetry"
	"github.com/kingrea/paneler/internal/workflow"
)

// ModuleContext carries shared runtime dependencies into every module.
type ModuleContext struct {
	Config    *config.Config
	Workflow  *workflow.Workflow
	Logbook   *logbook.Logbook
	Logger    *logging.Logger
	Artifacts *artifact.Store
	Metrics   *telemetry.Metrics

	ctx  context.Context
	data *datasetCache
}

type datasetCache struct {
	once     sync.Once
	pool     *dataset.Pool
	checksum string
	err      error
}

// NewContext builds a ModuleContext for the configured run directory with a
// fresh ArtifactStore.
func NewContext(cfg *config.Config, lb *logbook.Logbook, logger *logging.Logger, metrics *telemetry.Metrics) *ModuleContext {
	wf := workflow.New(cfg.RunDir())
	return &ModuleContext{
		Config:    cfg,
		Workflow:  wf,
		Logbook:   lb,
		Logger:    logger,
		Artifacts: artifact.NewStore(wf),
		Metrics:   metrics,
		data:      &datasetCache{},
	}
}

// Context returns the cancellation context for the current run.
func (ctx *ModuleContext) Context() context.Context {
	if ctx == nil || ctx.ctx == nil {
		return context.Background()
	}
	return ctx.ctx
}

// WithContext returns a copy bound to c. The dataset cache is shared.
func (ctx *ModuleContext) WithContext(c context.Context) *ModuleContext {
	clone := *ctx
	clone.ctx = c
	return &clone
}

// WithArtifacts allows dependency injection of a pre-built store.
func (ctx *ModuleContext) WithArtifacts(store *artifact.Store) *ModuleContext {
	clone := *ctx
	clone.Artifacts = store
	return &clone
}

// Dataset loads the configured master dataset once per context and returns
// it with the checksum of the file bytes.
func (ctx *ModuleContext) Dataset() (*dataset.Pool, string, error) {
	if ctx.Config == nil {
		return nil, "", fmt.Errorf("module: config is required to load the dataset")
	}
	if ctx.data == nil {
		ctx.data = &datasetCache{}
	}
	cache := ctx.data
	cache.once.Do(func() {
		opts := dataset.LoadOptions{
			KeyColumn: ctx.Config.Project.Dataset.KeyColumn,
			Delimiter: ctx.Config.DelimiterRune(),
		}
		cache.pool, cache.checksum, cache.err = dataset.LoadFile(ctx.Config.DatasetPath(), opts)
	})
	return cache.pool, cache.checksum, cache.err
}

// Validate ensures modules receive a usable context.
func (ctx *ModuleContext) Validate(moduleID string) error {
	if ctx == nil {
		return fmt.Errorf("%s: context is nil", moduleID)
	}
	if ctx.Config == nil {
		return fmt.Errorf("%s: config is required", moduleID)
	}
	if ctx.Workflow == nil {
		return fmt.Errorf("%s: workflow is required", moduleID)
	}
	if ctx.Artifacts == nil {
		return fmt.Errorf("%s: artifact store is required", moduleID)
	}
	return nil
}
