package engine

import (
	"context"
	"time"

	"github.com/creatory/creatory/internal/creatory"
)

// OutcomeKind tags the result of executing one node.
type OutcomeKind string

const (
	OutcomeSucceeded    OutcomeKind = "succeeded"
	OutcomeFailed       OutcomeKind = "failed"
	OutcomePendingHuman OutcomeKind = "pending_human"
)

// Outcome is what a NodeExecutor reports back to the runner.
type Outcome struct {
	Kind   OutcomeKind
	Output map[string]any
	Err    error
}

// Succeeded builds a successful outcome.
func Succeeded(output map[string]any) Outcome {
	return Outcome{Kind: OutcomeSucceeded, Output: output}
}

// Failed builds a failed outcome.
func Failed(err error) Outcome {
	return Outcome{Kind: OutcomeFailed, Err: err}
}

// PendingHuman builds an outcome that halts the run until a creator acts.
func PendingHuman(output map[string]any) Outcome {
	return Outcome{Kind: OutcomePendingHuman, Output: output}
}

// RunContext is the read-only view of a run handed to executors.
type RunContext struct {
	RunID       string
	WorkspaceID string
	TemplateID  string
	Input       map[string]any
	// Outputs holds the outputs of nodes that already succeeded, by key.
	Outputs map[string]map[string]any
}

// NodeExecutor runs a single node. A returned error is treated as a failed
// outcome.
type NodeExecutor interface {
	Execute(ctx context.Context, node creatory.Node, rc RunContext) (Outcome, error)
}

// ExecutorFunc adapts a function to NodeExecutor.
type ExecutorFunc func(ctx context.Context, node creatory.Node, rc RunContext) (Outcome, error)

func (f ExecutorFunc) Execute(ctx context.Context, node creatory.Node, rc RunContext) (Outcome, error) {
	return f(ctx, node, rc)
}

// Executors resolves the executor for a node type.
type Executors interface {
	Lookup(t creatory.NodeType) (NodeExecutor, bool)
}

// ExecutorMap is the simplest Executors.
type ExecutorMap map[creatory.NodeType]NodeExecutor

func (m ExecutorMap) Lookup(t creatory.NodeType) (NodeExecutor, bool) {
	e, ok := m[t]
	return e, ok
}

// RunStore persists a finished run and all of its steps as one unit.
type RunStore interface {
	SaveRun(ctx context.Context, run *creatory.WorkflowRun, steps []creatory.RunStep) error
}

type EventType string

const (
	EventRunStarted       EventType = "run.started"
	EventStepFinished     EventType = "step.finished"
	EventRunFinished      EventType = "run.finished"
	EventBreakerTriggered EventType = "run.breaker_triggered"
)

type Event struct {
	Type      EventType
	RunID     string
	Template  string
	NodeKey   string
	NodeType  creatory.NodeType
	Status    creatory.RunStatus
	Steps     int
	Duration  time.Duration
	Timestamp time.Time
}
