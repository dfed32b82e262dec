package repository

import (
	"context"
	"sync"
	"time"

	"github.com/creatory/creatory/internal/creatory"
	memstore "github.com/creatory/creatory/internal/repository/memory"
)

// MemoryRunRepository keeps runs and their steps in memory.
type MemoryRunRepository struct {
	// mu makes SaveRun replace a run and its steps as one unit.
	mu    sync.RWMutex
	runs  *memstore.Store[*creatory.WorkflowRun]
	steps map[string][]creatory.RunStep
}

func NewMemoryRunRepository() *MemoryRunRepository {
	return &MemoryRunRepository{
		runs:  memstore.New(func(r *creatory.WorkflowRun) string { return r.ID }),
		steps: make(map[string][]creatory.RunStep),
	}
}

func (r *MemoryRunRepository) SaveRun(ctx context.Context, run *creatory.WorkflowRun, steps []creatory.RunStep) error {
	stored := cloneRun(run)
	copied := make([]creatory.RunStep, len(steps))
	for i, s := range steps {
		s.RunID = run.ID
		copied[i] = cloneStep(s)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	_ = r.runs.Set(ctx, stored)
	r.steps[run.ID] = copied
	return nil
}

func (r *MemoryRunRepository) GetRun(ctx context.Context, id string) (*creatory.WorkflowRun, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	run, err := r.runs.Get(ctx, id)
	if err != nil {
		return nil, mapErr(err, "run", id)
	}
	return cloneRun(run), nil
}

func (r *MemoryRunRepository) ListRunSteps(_ context.Context, runID string) ([]creatory.RunStep, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]creatory.RunStep, len(r.steps[runID]))
	for i, s := range r.steps[runID] {
		out[i] = cloneStep(s)
	}
	return out, nil
}

func (r *MemoryRunRepository) ListTemplateRuns(ctx context.Context, templateID string, page creatory.Page) ([]*creatory.WorkflowRun, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out, _ := r.runs.Filter(ctx, func(run *creatory.WorkflowRun) bool { return run.TemplateID == templateID })
	newestFirst(out,
		func(run *creatory.WorkflowRun) time.Time { return run.CreatedAt },
		func(run *creatory.WorkflowRun) string { return run.ID })
	out = paginate(out, page)
	for i, run := range out {
		out[i] = cloneRun(run)
	}
	return out, nil
}

// cloneRun and cloneStep keep stored JSON maps unreachable from callers.
func cloneRun(run *creatory.WorkflowRun) *creatory.WorkflowRun {
	c := *run
	c.Input = cloneMap(run.Input)
	c.Output = cloneMap(run.Output)
	return &c
}

func cloneStep(s creatory.RunStep) creatory.RunStep {
	s.Input = cloneMap(s.Input)
	s.Output = cloneMap(s.Output)
	s.Error = cloneMap(s.Error)
	return s
}
