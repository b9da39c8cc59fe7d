package module

import (
	"fmt"

	"github.com/kingrea/paneler/internal/artifact"
)

// Info describes a module's identity and intent.
type Info struct {
	ID          string
	Name        string
	Description string
	Version     string
}

// Validate ensures the info block is well-formed.
func (i Info) Validate() error {
	if i.ID == "" {
		return fmt.Errorf("module: id is required")
	}
	if i.Name == "" {
		return fmt.Errorf("module: name is required for %s", i.ID)
	}
	if i.Version == "" {
		return fmt.Errorf("module: version is required for %s", i.ID)
	}
	return nil
}

// Result captures the outcome of a module execution.
type Result struct {
	Status  Status
	Message string
	// Warnings are non-fatal findings the module wants surfaced, such as
	// short panels or capped targets.
	Warnings []string
}

// Status enumerates module run outcomes.
type Status string

const (
	StatusCompleted  Status = "completed"
	StatusNoOp       Status = "no-op"
	StatusNeedsInput Status = "needs-input"
	StatusFailed     Status = "failed"
)

// Module is implemented by every pipeline stage.
type Module interface {
	Info() Info
	Inputs() []artifact.ArtifactRef
	Outputs() []artifact.ArtifactRef
	IsComplete(ctx *ModuleContext) (bool, error)
	Run(ctx *ModuleContext) (Result, error)
}
