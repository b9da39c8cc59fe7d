package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kingrea/paneler/internal/module"
	"github.com/kingrea/paneler/internal/workflow"
	"github.com/kingrea/paneler/internal/workflow/resolver"
)

// ErrNeedsInput is returned by Run when a stage stopped because something it
// reads is missing or unusable.
var ErrNeedsInput = errors.New("workflow engine: stage needs input")

// Engine coordinates the resolver and module execution while persisting
// pipeline state.
type Engine struct {
	registry *module.Registry
	repo     StateStore
	clock    func() time.Time
	newID    func() string
}

// Option customizes the engine instance.
type Option func(*Engine)

// WithClock injects a deterministic clock (primarily for tests).
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// WithRunIDs overrides run id generation.
func WithRunIDs(next func() string) Option {
	return func(e *Engine) {
		if next != nil {
			e.newID = next
		}
	}
}

// New wires an engine to the module registry and persistence store.
func New(registry *module.Registry, repo StateStore, opts ...Option) (*Engine, error) {
	if registry == nil {
		return nil, fmt.Errorf("workflow engine: module registry is required")
	}
	if repo == nil {
		return nil, fmt.Errorf("workflow engine: state store is required")
	}
	engine := &Engine{
		registry: registry,
		repo:     repo,
		clock:    time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(engine)
	}
	return engine, nil
}

// Phase marks where a stage is in its execution.
type Phase string

const (
	PhaseStarted  Phase = "started"
	PhaseFinished Phase = "finished"
)

// ProgressEvent is sent before and after every stage that runs.
type ProgressEvent struct {
	ID     string
	Name   string
	Index  int
	Total  int
	Phase  Phase
	Result module.Result
	Err    error
}

// RunRequest selects what to run.
type RunRequest struct {
	Definition workflow.WorkflowDefinition
	// Targets limits the run to these stages and their dependencies. Empty
	// means the whole pipeline.
	Targets []string
	// Force reruns every selected stage even when its outputs are fresh.
	Force    bool
	Progress func(ProgressEvent)
}

// Run executes every stale stage needed by the request in dependency order.
// It stops at the first stage that fails or needs input; the returned state
// is persisted in both cases.
func (e *Engine) Run(ctx context.Context, mctx *module.ModuleContext, req RunRequest) (State, error) {
	if mctx == nil {
		return State{}, fmt.Errorf("workflow engine: module context is required")
	}
	res, err := resolver.New(req.Definition, e.registry)
	if err != nil {
		return State{}, err
	}
	if err := res.Refresh(mctx); err != nil {
		return State{}, err
	}
	var queue []*resolver.Node
	if req.Force {
		queue, err = res.Closure(req.Targets...)
	} else {
		queue, err = res.Queue(req.Targets...)
	}
	if err != nil {
		return State{}, err
	}

	runs := e.previousRuns(req.Definition.ID)
	state := State{
		RunID:      e.newID(),
		WorkflowID: req.Definition.ID,
		Definition: res.Definition(),
		Status:     EngineStatusRunning,
		Targets:    cloneStrings(req.Targets),
		Force:      req.Force,
		StartedAt:  e.now(),
	}
	e.log(mctx, "run %s: %d stage(s) queued", state.RunID, len(queue))
	bound := mctx.WithContext(ctx)

	var runErr error
	for i, node := range queue {
		if err := ctx.Err(); err != nil {
			runErr = fmt.Errorf("workflow engine: %w", err)
			break
		}
		event := ProgressEvent{ID: node.ID, Name: node.Ref.DisplayName(), Index: i + 1, Total: len(queue)}
		e.emit(req.Progress, event, PhaseStarted)

		started := e.now()
		result, err := node.Module.Run(bound)
		finished := e.now()
		if err != nil && result.Status == "" {
			result.Status = module.StatusFailed
		}
		if result.Status == "" {
			result.Status = module.StatusCompleted
		}
		mctx.Metrics.ObserveStage(node.ID, finished.Sub(started).Seconds())
		runs[node.ID] = ModuleRun{
			RunID:      state.RunID,
			Status:     result.Status,
			Message:    result.Message,
			Warnings:   cloneStrings(result.Warnings),
			Error:      errorString(err),
			StartedAt:  started,
			FinishedAt: finished,
		}
		state.Executed = append(state.Executed, node.ID)
		event.Result, event.Err = result, err
		e.emit(req.Progress, event, PhaseFinished)
		e.record(mctx, node.ID, result, err)

		if err != nil {
			runErr = fmt.Errorf("workflow engine: %s: %w", node.ID, err)
			break
		}
		if result.Status == module.StatusFailed {
			runErr = fmt.Errorf("workflow engine: %s failed: %s", node.ID, result.Message)
			break
		}
		if result.Status == module.StatusNeedsInput {
			runErr = fmt.Errorf("%w: %s: %s", ErrNeedsInput, node.ID, result.Message)
			break
		}
	}

	if err := res.Refresh(mctx); err != nil && runErr == nil {
		runErr = err
	}
	state.Runs = runs
	state.Nodes = summarizeNodes(res, runs)
	state.Status, state.StatusReason = deriveEngineStatus(state.Nodes, runErr)
	state.UpdatedAt = e.now()
	if err := e.repo.Save(state); err != nil {
		return state, errors.Join(runErr, fmt.Errorf("workflow engine: save state: %w", err))
	}
	return state, runErr
}

// Status evaluates the definition against the artifacts on disk without
// running anything. Results recorded by earlier runs are attached.
func (e *Engine) Status(mctx *module.ModuleContext, def workflow.WorkflowDefinition) (State, error) {
	if mctx == nil {
		return State{}, fmt.Errorf("workflow engine: module context is required")
	}
	res, err := resolver.New(def, e.registry)
	if err != nil {
		return State{}, err
	}
	if err := res.Refresh(mctx); err != nil {
		return State{}, err
	}
	state := State{WorkflowID: def.ID, Definition: res.Definition(), Runs: e.previousRuns(def.ID)}
	if last, err := e.repo.Load(); err == nil && last.WorkflowID == def.ID {
		state.RunID = last.RunID
		state.StartedAt = last.StartedAt
		state.Executed = last.Executed
	}
	state.Nodes = summarizeNodes(res, state.Runs)
	state.Status, state.StatusReason = deriveEngineStatus(state.Nodes, nil)
	state.UpdatedAt = e.now()
	return state, nil
}

// View returns the last persisted snapshot.
func (e *Engine) View() (State, error) {
	return e.repo.Load()
}

func (e *Engine) previousRuns(workflowID string) map[string]ModuleRun {
	last, err := e.repo.Load()
	if err != nil || last.WorkflowID != workflowID {
		return map[string]ModuleRun{}
	}
	return cloneRuns(last.Runs)
}

func (e *Engine) emit(fn func(ProgressEvent), event ProgressEvent, phase Phase) {
	if fn == nil {
		return
	}
	event.Phase = phase
	fn(event)
}

func (e *Engine) record(mctx *module.ModuleContext, id string, result module.Result, err error) {
	switch {
	case err != nil:
		mctx.Logbook.Error("%s: %v", id, err)
	case result.Status == module.StatusNeedsInput:
		mctx.Logbook.Warn("%s needs input: %s", id, result.Message)
	default:
		mctx.Logbook.Info("%s %s: %s", id, result.Status, result.Message)
	}
	for _, w := range result.Warnings {
		mctx.Logbook.Warn("%s: %s", id, w)
	}
	e.log(mctx, "%s -> %s %s", id, result.Status, errorString(err))
}

func (e *Engine) log(mctx *module.ModuleContext, format string, args ...any) {
	mctx.Logger.With("engine").Printf(format, args...)
}

func summarizeNodes(res *resolver.Resolver, runs map[string]ModuleRun) []ModuleStatus {
	nodes := res.Nodes()
	result := make([]ModuleStatus, 0, len(nodes))
	for _, node := range nodes {
		ref := node.Ref
		status := ModuleStatus{
			ID:           node.ID,
			ModuleID:     ref.ModuleID,
			Name:         pickName(ref, node.Module.Info()),
			Description:  ref.Description,
			State:        node.State,
			Stale:        node.Stale,
			Dependencies: cloneStrings(node.Dependencies),
			BlockedBy:    cloneStrings(node.BlockedBy),
			Error:        errorString(node.Err),
		}
		if len(node.Artifacts) > 0 {
			status.Artifacts = make(map[string]ArtifactStatus, len(node.Artifacts))
			for id, report := range node.Artifacts {
				status.Artifacts[id] = ArtifactStatus{
					ID:                  id,
					Status:              report.Status,
					Reason:              report.Reason,
					ExpectedFingerprint: report.ExpectedFingerprint,
					StoredFingerprint:   report.StoredFingerprint,
					Error:               errorString(report.Err),
				}
			}
		}
		if run, ok := runs[node.ID]; ok {
			copyRun := run
			status.LastRun = &copyRun
		}
		result = append(result, status)
	}
	return result
}

func pickName(ref workflow.ModuleRef, info module.Info) string {
	if ref.Name != "" {
		return ref.Name
	}
	if info.Name != "" {
		return info.Name
	}
	return ref.InstanceID()
}

func deriveEngineStatus(nodes []ModuleStatus, runErr error) (EngineStatus, string) {
	if errors.Is(runErr, ErrNeedsInput) {
		return EngineStatusBlocked, runErr.Error()
	}
	if runErr != nil {
		return EngineStatusError, runErr.Error()
	}
	for _, status := range nodes {
		if status.State == resolver.NodeStateError {
			return EngineStatusError, fmt.Sprintf("%s encountered an error", status.ID)
		}
	}
	for _, status := range nodes {
		if status.State != resolver.NodeStateComplete {
			return EngineStatusPending, fmt.Sprintf("%s is %s", status.ID, status.State)
		}
	}
	return EngineStatusComplete, ""
}

func (e *Engine) now() time.Time {
	if e.clock == nil {
		return time.Now()
	}
	return e.clock()
}

func errorString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
