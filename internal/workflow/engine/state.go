package engine

import (
	"time"

	"github.com/kingrea/paneler/internal/module"
	"github.com/kingrea/paneler/internal/workflow"
	"github.com/kingrea/paneler/internal/workflow/resolver"
)

// EngineStatus enumerates coarse pipeline phases.
type EngineStatus string

const (
	EngineStatusUnknown  EngineStatus = "unknown"
	EngineStatusRunning  EngineStatus = "running"
	EngineStatusPending  EngineStatus = "pending"
	EngineStatusBlocked  EngineStatus = "blocked"
	EngineStatusComplete EngineStatus = "complete"
	EngineStatusError    EngineStatus = "error"
)

// State captures the persisted snapshot of a pipeline run.
type State struct {
	RunID      string                      `json:"run_id"`
	WorkflowID string                      `json:"workflow_id"`
	Definition workflow.WorkflowDefinition `json:"definition"`
	Status     EngineStatus                `json:"status"`
	// StatusReason provides human readable explanation for non-complete states.
	StatusReason string               `json:"status_reason,omitempty"`
	Targets      []string             `json:"targets,omitempty"`
	Force        bool                 `json:"force,omitempty"`
	Nodes        []ModuleStatus       `json:"nodes"`
	Executed     []string             `json:"executed,omitempty"`
	Runs         map[string]ModuleRun `json:"runs,omitempty"`
	StartedAt    time.Time            `json:"started_at"`
	UpdatedAt    time.Time            `json:"updated_at"`
}

// Node returns the status entry for a stage.
func (s State) Node(id string) (ModuleStatus, bool) {
	for _, node := range s.Nodes {
		if node.ID == id {
			return node, true
		}
	}
	return ModuleStatus{}, false
}

// Warnings collects the warnings of every recorded run in stage order.
func (s State) Warnings() []string {
	var out []string
	for _, node := range s.Nodes {
		if run, ok := s.Runs[node.ID]; ok {
			out = append(out, run.Warnings...)
		}
	}
	return out
}

// ModuleStatus exposes resolver metadata for a pipeline stage.
type ModuleStatus struct {
	ID           string                    `json:"id"`
	ModuleID     string                    `json:"module_id"`
	Name         string                    `json:"name"`
	Description  string                    `json:"description,omitempty"`
	State        resolver.NodeState        `json:"state"`
	Stale        bool                      `json:"stale,omitempty"`
	Dependencies []string                  `json:"dependencies,omitempty"`
	BlockedBy    []string                  `json:"blocked_by,omitempty"`
	Error        string                    `json:"error,omitempty"`
	Artifacts    map[string]ArtifactStatus `json:"artifacts,omitempty"`
	LastRun      *ModuleRun                `json:"last_run,omitempty"`
}

// ArtifactStatus mirrors resolver artifact evaluation for UI/state consumers.
type ArtifactStatus struct {
	ID                  string                    `json:"id"`
	Status              module.ArtifactStatus     `json:"status"`
	Reason              module.InvalidationReason `json:"reason,omitempty"`
	ExpectedFingerprint string                    `json:"expected_fingerprint,omitempty"`
	StoredFingerprint   string                    `json:"stored_fingerprint,omitempty"`
	Error               string                    `json:"error,omitempty"`
}

// ModuleRun persists the last known result of a stage execution.
type ModuleRun struct {
	RunID      string        `json:"run_id"`
	Status     module.Status `json:"status"`
	Message    string        `json:"message,omitempty"`
	Warnings   []string      `json:"warnings,omitempty"`
	Error      string        `json:"error,omitempty"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
}

// Duration is how long the stage ran.
func (r ModuleRun) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

func cloneStrings(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, len(values))
	copy(out, values)
	return out
}

func cloneRuns(values map[string]ModuleRun) map[string]ModuleRun {
	out := make(map[string]ModuleRun, len(values))
	for id, run := range values {
		out[id] = run
	}
	return out
}
