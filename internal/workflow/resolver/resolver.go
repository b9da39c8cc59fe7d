package resolver

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kingrea/paneler/internal/artifact"
	"github.com/kingrea/paneler/internal/module"
	"github.com/kingrea/paneler/internal/workflow"
)

// NodeState represents the resolver's understanding of a module's readiness.
type NodeState string

const (
	NodeStateUnknown  NodeState = "unknown"
	NodeStatePending  NodeState = "pending"
	NodeStateReady    NodeState = "ready"
	NodeStateBlocked  NodeState = "blocked"
	NodeStateComplete NodeState = "complete"
	NodeStateError    NodeState = "error"
)

// Node captures a workflow module instance plus its dependency metadata.
type Node struct {
	ID           string
	Ref          workflow.ModuleRef
	Module       module.Module
	Dependencies []string
	Dependents   []string

	State     NodeState
	BlockedBy []string
	// Stale is set when the module reported complete but an output or an
	// upstream stage no longer backs that claim.
	Stale bool
	Err   error

	Artifacts    map[string]ArtifactReport
	fingerprints map[string]string
}

// ArtifactReport captures the resolver's understanding of an output artifact.
type ArtifactReport struct {
	Ref                 artifact.ArtifactRef
	Status              module.ArtifactStatus
	Reason              module.InvalidationReason
	Metadata            *artifact.Metadata
	Err                 error
	StoredFingerprint   string
	ExpectedFingerprint string
}

// Resolver builds and evaluates the workflow dependency graph.
type Resolver struct {
	definition workflow.WorkflowDefinition
	nodes      map[string]*Node
	orderedIDs []string
}

// New constructs a resolver for the provided workflow definition. Modules are
// instantiated via the registry immediately so downstream code can run them.
func New(def workflow.WorkflowDefinition, registry *module.Registry) (*Resolver, error) {
	if registry == nil {
		return nil, fmt.Errorf("workflow: module registry is required")
	}
	normalized, err := def.Normalized()
	if err != nil {
		return nil, err
	}
	nodes := make(map[string]*Node, len(normalized.Modules))
	ordered := make([]string, 0, len(normalized.Modules))
	for _, ref := range normalized.Modules {
		id := ref.InstanceID()
		mod, err := registry.Resolve(ref.ModuleID, module.Config(ref.Config.Clone()))
		if err != nil {
			return nil, fmt.Errorf("workflow %s module %s: %w", normalized.ID, id, err)
		}
		nodes[id] = &Node{
			ID:           id,
			Ref:          ref,
			Module:       mod,
			Dependencies: normalized.Dependencies(id),
			State:        NodeStateUnknown,
		}
		ordered = append(ordered, id)
	}
	for _, id := range ordered {
		node := nodes[id]
		for _, depID := range node.Dependencies {
			nodes[depID].Dependents = append(nodes[depID].Dependents, node.ID)
		}
	}
	for _, node := range nodes {
		sort.Strings(node.Dependents)
	}
	return &Resolver{
		definition: normalized,
		nodes:      nodes,
		orderedIDs: ordered,
	}, nil
}

// Definition returns a clone of the resolver's workflow definition.
func (r *Resolver) Definition() workflow.WorkflowDefinition {
	return r.definition.Clone()
}

// Nodes returns the nodes in workflow declaration order.
func (r *Resolver) Nodes() []*Node {
	out := make([]*Node, 0, len(r.orderedIDs))
	for _, id := range r.orderedIDs {
		out = append(out, r.nodes[id])
	}
	return out
}

// Node retrieves a specific module node by workflow instance ID.
func (r *Resolver) Node(id string) (*Node, bool) {
	node, ok := r.nodes[id]
	return node, ok
}

// Refresh re-evaluates module completion and dependency readiness against
// the artifacts on disk. Nodes are visited in declaration order, which the
// definition guarantees is a topological order, so a stale stage demotes
// everything downstream of it in the same pass.
func (r *Resolver) Refresh(ctx *module.ModuleContext) error {
	if ctx == nil {
		return fmt.Errorf("workflow: module context is required")
	}
	for _, id := range r.orderedIDs {
		node := r.nodes[id]
		node.reset()
		r.evaluate(ctx, node)
		if node.State == NodeStateComplete && r.upstreamIncomplete(node) {
			node.State = NodeStatePending
			node.Stale = true
		}
		if node.State == NodeStateComplete || node.State == NodeStateError {
			continue
		}
		if blockers := r.blockers(node); len(blockers) > 0 {
			node.State = NodeStateBlocked
			node.BlockedBy = blockers
		} else {
			node.State = NodeStateReady
		}
	}
	return nil
}

func (n *Node) reset() {
	n.Err = nil
	n.BlockedBy = nil
	n.Stale = false
	n.Artifacts = nil
	n.fingerprints = nil
	n.State = NodeStateUnknown
}

func (r *Resolver) evaluate(ctx *module.ModuleContext, node *Node) {
	if provider, ok := node.Module.(module.Fingerprinter); ok {
		fingerprints, err := provider.ArtifactFingerprints(ctx)
		if err != nil {
			node.State = NodeStateError
			node.Err = fmt.Errorf("workflow: fingerprints for %s: %w", node.ID, err)
			return
		}
		node.fingerprints = fingerprints
	}
	complete, err := node.Module.IsComplete(ctx)
	if err != nil {
		node.State = NodeStateError
		node.Err = err
		return
	}
	node.State = NodeStatePending
	if !complete {
		return
	}
	node.State = NodeStateComplete
	outputs := node.Module.Outputs()
	node.Artifacts = make(map[string]ArtifactReport, len(outputs))
	for _, ref := range outputs {
		report := r.CheckArtifact(ctx, node, ref)
		node.Artifacts[ref.ID] = report
		if !report.Status.Usable() {
			node.State = NodeStatePending
			node.Stale = true
		}
	}
}

func (r *Resolver) upstreamIncomplete(node *Node) bool {
	for _, depID := range node.Dependencies {
		if r.nodes[depID].State != NodeStateComplete {
			return true
		}
	}
	return false
}

// Ready returns nodes that are runnable because all dependencies are complete.
func (r *Resolver) Ready() []*Node {
	var ready []*Node
	for _, id := range r.orderedIDs {
		node := r.nodes[id]
		if node.State == NodeStateReady {
			ready = append(ready, node)
		}
	}
	return ready
}

// Queue returns modules that must run to satisfy the requested targets. If no
// targets are provided, every incomplete module is considered. Dependencies are
// returned before the modules that require them, and already-complete modules
// are skipped.
func (r *Resolver) Queue(targets ...string) ([]*Node, error) {
	closure, err := r.Closure(targets...)
	if err != nil {
		return nil, err
	}
	out := closure[:0]
	for _, node := range closure {
		if node.State != NodeStateComplete {
			out = append(out, node)
		}
	}
	return out, nil
}

// Closure returns the targets and everything they depend on, in declaration
// order, regardless of state.
func (r *Resolver) Closure(targets ...string) ([]*Node, error) {
	if len(targets) == 0 {
		targets = r.orderedIDs
	}
	needed := make(map[string]bool, len(r.nodes))
	var visit func(string) error
	visit = func(id string) error {
		if needed[id] {
			return nil
		}
		node, ok := r.nodes[id]
		if !ok {
			return fmt.Errorf("workflow: unknown module %s", id)
		}
		needed[id] = true
		for _, dep := range node.Dependencies {
			if err := visit(dep); err != nil {
				return err
			}
		}
		return nil
	}
	for _, id := range targets {
		if err := visit(id); err != nil {
			return nil, err
		}
	}
	out := make([]*Node, 0, len(needed))
	for _, id := range r.orderedIDs {
		if needed[id] {
			out = append(out, r.nodes[id])
		}
	}
	return out, nil
}

func (r *Resolver) blockers(node *Node) []string {
	var blockers []string
	for _, depID := range node.Dependencies {
		if r.nodes[depID].State != NodeStateComplete {
			blockers = append(blockers, depID)
		}
	}
	return blockers
}

// CheckArtifact evaluates a single artifact and returns its resolver status.
func (r *Resolver) CheckArtifact(ctx *module.ModuleContext, node *Node, ref artifact.ArtifactRef) ArtifactReport {
	report := ArtifactReport{Ref: ref, Status: module.ArtifactStatusUnknown}
	if ctx == nil || ctx.Artifacts == nil {
		report.Status = module.ArtifactStatusError
		report.Reason = module.InvalidationReasonCheckError
		report.Err = fmt.Errorf("workflow: artifact store unavailable")
		return report
	}
	result, err := ctx.Artifacts.Check(ref)
	report.Metadata = result.Metadata
	report.Err = err
	if report.Err == nil {
		report.Err = result.Err
	}
	switch result.State {
	case artifact.StateMissing:
		report.Status = module.ArtifactStatusMissing
		report.Reason = module.InvalidationReasonMissing
	case artifact.StateInvalid:
		report.Status = module.ArtifactStatusInvalid
		report.Reason = module.InvalidationReasonInvalidMetadata
	case artifact.StateError:
		if report.Err == nil {
			report.Err = fmt.Errorf("workflow: %s encountered an unknown error", ref.ID)
		}
		report.Status = module.ArtifactStatusError
		report.Reason = module.InvalidationReasonCheckError
	case artifact.StateReady:
		r.checkProvenance(node, ref, &report)
	}
	return report
}

func (r *Resolver) checkProvenance(node *Node, ref artifact.ArtifactRef, report *ArtifactReport) {
	if !ref.Kind.CarriesMetadata() {
		report.Status = module.ArtifactStatusReady
		return
	}
	info := node.Module.Info()
	meta := report.Metadata
	switch {
	case meta == nil:
		report.Status = module.ArtifactStatusInvalid
		report.Reason = module.InvalidationReasonInvalidMetadata
		report.Err = fmt.Errorf("workflow: %s missing metadata", ref.ID)
		return
	case meta.ModuleID != info.ID:
		report.Status = module.ArtifactStatusInvalid
		report.Reason = module.InvalidationReasonInvalidMetadata
		report.Err = fmt.Errorf("workflow: %s created by %s expected %s", ref.ID, meta.ModuleID, info.ID)
		return
	case meta.Version != info.Version:
		report.Status = module.ArtifactStatusOutdated
		report.Reason = module.InvalidationReasonVersionMismatch
		return
	}
	expected := strings.TrimSpace(node.fingerprints[ref.ID])
	if expected == "" {
		report.Status = module.ArtifactStatusReady
		return
	}
	stored := module.StoredFingerprint(meta, ref.ID)
	report.ExpectedFingerprint = expected
	report.StoredFingerprint = stored
	if stored != expected {
		report.Status = module.ArtifactStatusOutdated
		report.Reason = module.InvalidationReasonFingerprint
		return
	}
	report.Status = module.ArtifactStatusFresh
}
