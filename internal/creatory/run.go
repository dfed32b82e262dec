package creatory

import "time"

// RunStatus represents the lifecycle state of a workflow run or one of its steps.
type RunStatus string

const (
	RunStatusQueued       RunStatus = "queued"
	RunStatusRunning      RunStatus = "running"
	RunStatusWaitingHuman RunStatus = "waiting_human"
	RunStatusSucceeded    RunStatus = "succeeded"
	RunStatusFailed       RunStatus = "failed"
	RunStatusCancelled    RunStatus = "cancelled"
)

// IsTerminal reports whether no further transition is expected.
// waiting_human is not terminal: a creator may still act on the run.
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusSucceeded, RunStatusFailed, RunStatusCancelled:
		return true
	}
	return false
}

// WorkflowRun is one execution of a template.
type WorkflowRun struct {
	ID             string         `json:"id"`
	WorkspaceID    string         `json:"workspace_id"`
	TemplateID     string         `json:"template_id"`
	ConversationID *string        `json:"conversation_id,omitempty"`
	Status         RunStatus      `json:"status"`
	Input          map[string]any `json:"input_json"`
	Output         map[string]any `json:"output_json"`
	CreatedBy      string         `json:"created_by"`
	StartedAt      *time.Time     `json:"started_at,omitempty"`
	EndedAt        *time.Time     `json:"ended_at,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// RunStep records the execution of a single node within a run.
type RunStep struct {
	ID        string         `json:"id"`
	RunID     string         `json:"run_id"`
	NodeKey   string         `json:"node_key"`
	Status    RunStatus      `json:"status"`
	Attempt   int            `json:"attempt"`
	Input     map[string]any `json:"input_json"`
	Output    map[string]any `json:"output_json"`
	Error     map[string]any `json:"error_json,omitempty"`
	StartedAt *time.Time     `json:"started_at,omitempty"`
	EndedAt   *time.Time     `json:"ended_at,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// RetryPolicy defines how a failing node is re-attempted within a run.
type RetryPolicy struct {
	MaxAttempts   int           `json:"max_attempts"   yaml:"max_attempts"`
	InitialDelay  time.Duration `json:"initial_delay"  yaml:"initial_delay"`
	MaxDelay      time.Duration `json:"max_delay"      yaml:"max_delay"`
	BackoffFactor float64       `json:"backoff_factor" yaml:"backoff_factor"`
}

// DefaultRetryPolicy runs every node exactly once.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:   1,
		InitialDelay:  500 * time.Millisecond,
		MaxDelay:      10 * time.Second,
		BackoffFactor: 2.0,
	}
}

// ConcurrencyLimits controls how many runs can execute simultaneously.
type ConcurrencyLimits struct {
	GlobalMax   int `json:"global_max"   yaml:"global_max"`
	PerTemplate int `json:"per_template" yaml:"per_template"`
}

// DefaultConcurrencyLimits returns sensible defaults.
func DefaultConcurrencyLimits() ConcurrencyLimits {
	return ConcurrencyLimits{
		GlobalMax:   10,
		PerTemplate: 3,
	}
}
