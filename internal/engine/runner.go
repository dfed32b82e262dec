package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/creatory/creatory/internal/breaker"
	"github.com/creatory/creatory/internal/creatory"
	"github.com/creatory/creatory/internal/dag"
)

// RunRequest carries the caller-supplied parts of a new run.
type RunRequest struct {
	CreatedBy      string
	ConversationID *string
	Input          map[string]any
}

// Options configures a Runner. Executors and Store are required.
type Options struct {
	Breaker   breaker.Config
	Policy    Policy
	Executors Executors
	Store     RunStore
	Events    *EventBus
	Now       func() time.Time
}

// Runner drives a template's nodes through the run state machine.
type Runner struct {
	breaker   breaker.Config
	policy    Policy
	executors Executors
	store     RunStore
	events    *EventBus
	now       func() time.Time
}

func NewRunner(opts Options) *Runner {
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	if opts.Policy.OnFailure == "" {
		opts.Policy.OnFailure = FailureAbort
	}
	if opts.Policy.Retry.MaxAttempts < 1 {
		opts.Policy.Retry.MaxAttempts = 1
	}
	return &Runner{
		breaker:   opts.Breaker,
		policy:    opts.Policy,
		executors: opts.Executors,
		store:     opts.Store,
		events:    opts.Events,
		now:       opts.Now,
	}
}

// Run executes tmpl once and persists the result.
//
// A cyclic template is rejected before any run exists. A template whose node
// count exceeds the step budget is persisted as a failed run with no steps
// and the breaker error is returned alongside it. Otherwise every node is
// executed in order until a human gate halts the run, a failure aborts it
// (under FailureAbort) or ctx is cancelled; the run and its steps are then
// saved together.
func (r *Runner) Run(ctx context.Context, tmpl *creatory.Template, req RunRequest) (*creatory.WorkflowRun, []creatory.RunStep, error) {
	graph, err := dag.Build(tmpl.Nodes, tmpl.Edges)
	if err != nil {
		return nil, nil, fmt.Errorf("order nodes: %w", err)
	}
	nodes := graph.Nodes()
	total := len(nodes)

	startedAt := r.now()
	input := req.Input
	if input == nil {
		input = map[string]any{}
	}
	run := &creatory.WorkflowRun{
		ID:             creatory.NewID(),
		WorkspaceID:    tmpl.WorkspaceID,
		TemplateID:     tmpl.ID,
		ConversationID: req.ConversationID,
		Status:         creatory.RunStatusRunning,
		Input:          input,
		Output:         map[string]any{},
		CreatedBy:      req.CreatedBy,
		StartedAt:      &startedAt,
		CreatedAt:      startedAt,
	}
	r.events.Publish(Event{Type: EventRunStarted, RunID: run.ID, Template: tmpl.Name, Steps: total, Timestamp: startedAt})

	if err := breaker.AssertStepBudget(total, r.breaker); err != nil {
		ended := r.now()
		run.Status = creatory.RunStatusFailed
		run.EndedAt = &ended
		run.Output = summary(0, total, creatory.RunStatusFailed)
		slog.Warn("circuit breaker triggered", "run_id", run.ID, "template", tmpl.Name, "steps", total, "max_steps", r.breaker.MaxSteps)
		r.events.Publish(Event{Type: EventBreakerTriggered, RunID: run.ID, Template: tmpl.Name, Status: run.Status, Steps: total, Timestamp: ended})
		if saveErr := r.store.SaveRun(context.WithoutCancel(ctx), run, nil); saveErr != nil {
			return nil, nil, fmt.Errorf("save run: %w", saveErr)
		}
		return run, nil, err
	}

	rc := RunContext{
		RunID:       run.ID,
		WorkspaceID: tmpl.WorkspaceID,
		TemplateID:  tmpl.ID,
		Input:       input,
		Outputs:     make(map[string]map[string]any, total),
	}
	steps := make([]creatory.RunStep, 0, total)
	status := creatory.RunStatusSucceeded
	failed := 0

loop:
	for _, node := range nodes {
		if ctx.Err() != nil {
			status = creatory.RunStatusCancelled
			break
		}

		stepStarted := r.now()
		step := creatory.RunStep{
			ID:        creatory.NewID(),
			RunID:     run.ID,
			NodeKey:   node.Key,
			Status:    creatory.RunStatusRunning,
			Input:     map[string]any{"node": node.Key, "type": string(node.Type)},
			Output:    map[string]any{},
			StartedAt: &stepStarted,
			CreatedAt: stepStarted,
		}

		outcome, attempts := r.execute(ctx, node, rc)
		ended := r.now()
		step.Attempt = attempts
		step.EndedAt = &ended
		if outcome.Output != nil {
			step.Output = outcome.Output
		}

		switch outcome.Kind {
		case OutcomeSucceeded:
			step.Status = creatory.RunStatusSucceeded
			rc.Outputs[node.Key] = step.Output
		case OutcomePendingHuman:
			step.Status = creatory.RunStatusWaitingHuman
			status = creatory.RunStatusWaitingHuman
		default:
			step.Error = errorJSON(node, outcome.Err)
			if ctx.Err() != nil {
				step.Status = creatory.RunStatusCancelled
				status = creatory.RunStatusCancelled
				break
			}
			step.Status = creatory.RunStatusFailed
			failed++
			if r.policy.OnFailure == FailureAbort {
				status = creatory.RunStatusFailed
			}
		}

		steps = append(steps, step)
		r.events.Publish(Event{
			Type: EventStepFinished, RunID: run.ID, Template: tmpl.Name, NodeKey: node.Key, NodeType: node.Type,
			Status: step.Status, Duration: ended.Sub(stepStarted), Timestamp: ended,
		})

		if status != creatory.RunStatusSucceeded {
			break loop
		}
	}

	run.Status = status
	run.Output = summary(len(steps), total, status)
	if failed > 0 && r.policy.OnFailure == FailureContinue {
		run.Output["steps_failed"] = failed
	}
	if status != creatory.RunStatusWaitingHuman {
		ended := r.now()
		run.EndedAt = &ended
	}

	if err := r.store.SaveRun(context.WithoutCancel(ctx), run, steps); err != nil {
		return nil, nil, fmt.Errorf("save run: %w", err)
	}

	finished := r.now()
	r.events.Publish(Event{
		Type: EventRunFinished, RunID: run.ID, Template: tmpl.Name, Status: run.Status,
		Steps: len(steps), Duration: finished.Sub(startedAt), Timestamp: finished,
	})
	slog.Info("workflow run finished", "run_id", run.ID, "template", tmpl.Name, "status", run.Status, "steps", len(steps), "total", total)

	if status == creatory.RunStatusCancelled {
		return run, steps, ctx.Err()
	}
	return run, steps, nil
}

// execute runs node under the retry and timeout policy and returns the final
// outcome together with the number of attempts made.
func (r *Runner) execute(ctx context.Context, node creatory.Node, rc RunContext) (Outcome, int) {
	exec, ok := r.executors.Lookup(node.Type)
	if !ok {
		return Failed(fmt.Errorf("no executor for node type %q", node.Type)), 1
	}

	maxAttempts := r.policy.Retry.MaxAttempts
	var outcome Outcome
	attempt := 1
	for ; ; attempt++ {
		outcome = r.attempt(ctx, exec, node, rc)
		if outcome.Kind != OutcomeFailed || ctx.Err() != nil {
			return outcome, attempt
		}
		if attempt >= maxAttempts || !IsRetryable(outcome.Err) {
			return outcome, attempt
		}
		slog.Info("retrying node", "run_id", rc.RunID, "node", node.Key, "attempt", attempt+1, "err", outcome.Err)
		if err := sleepWithBackoff(ctx, r.policy.Retry, attempt-1); err != nil {
			return Failed(err), attempt
		}
	}
}

func (r *Runner) attempt(ctx context.Context, exec NodeExecutor, node creatory.Node, rc RunContext) Outcome {
	nodeCtx := ctx
	if r.policy.NodeTimeout > 0 {
		var cancel context.CancelFunc
		nodeCtx, cancel = context.WithTimeout(ctx, r.policy.NodeTimeout)
		defer cancel()
	}

	outcome, err := exec.Execute(nodeCtx, node, rc)
	if err != nil {
		outcome = Failed(err)
	}
	if outcome.Kind == OutcomeFailed && outcome.Err == nil {
		outcome.Err = errors.New("node reported failure")
	}
	if outcome.Kind == OutcomeFailed && ctx.Err() == nil && errors.Is(nodeCtx.Err(), context.DeadlineExceeded) {
		outcome.Err = fmt.Errorf("%w after %s: %v", ErrNodeTimeout, r.policy.NodeTimeout, outcome.Err)
	}
	return outcome
}

func summary(completed, total int, status creatory.RunStatus) map[string]any {
	return map[string]any{
		"steps_completed": completed,
		"steps_total":     total,
		"final_status":    string(status),
	}
}

func errorJSON(node creatory.Node, err error) map[string]any {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return map[string]any{
		"message":  msg,
		"node_key": node.Key,
	}
}
