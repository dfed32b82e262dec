package services

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/creatory/creatory/internal/creatory"
	"golang.org/x/sync/semaphore"
)

// RunLimiter caps concurrent workflow runs globally and per template.
// A run holds one global slot and one slot of its template while it
// executes.
type RunLimiter struct {
	limits creatory.ConcurrencyLimits
	global *semaphore.Weighted
	active atomic.Int64

	mu        sync.Mutex
	templates map[string]*semaphore.Weighted
}

// NewRunLimiter fills zero limits from creatory.DefaultConcurrencyLimits.
func NewRunLimiter(limits creatory.ConcurrencyLimits) *RunLimiter {
	defaults := creatory.DefaultConcurrencyLimits()
	if limits.GlobalMax <= 0 {
		limits.GlobalMax = defaults.GlobalMax
	}
	if limits.PerTemplate <= 0 {
		limits.PerTemplate = defaults.PerTemplate
	}
	return &RunLimiter{
		limits:    limits,
		global:    semaphore.NewWeighted(int64(limits.GlobalMax)),
		templates: make(map[string]*semaphore.Weighted),
	}
}

// Acquire waits for a global slot and a slot of templateID. On error no
// slot is held.
func (l *RunLimiter) Acquire(ctx context.Context, templateID string) error {
	if err := l.global.Acquire(ctx, 1); err != nil {
		return err
	}
	if err := l.template(templateID).Acquire(ctx, 1); err != nil {
		l.global.Release(1)
		return err
	}
	l.active.Add(1)
	return nil
}

// Release gives back the slots taken by a successful Acquire.
func (l *RunLimiter) Release(templateID string) {
	l.template(templateID).Release(1)
	l.global.Release(1)
	l.active.Add(-1)
}

// LimiterStats reports current usage.
type LimiterStats struct {
	ActiveRuns  int `json:"active_runs"`
	GlobalMax   int `json:"global_max"`
	PerTemplate int `json:"per_template"`
}

func (l *RunLimiter) Stats() LimiterStats {
	return LimiterStats{
		ActiveRuns:  int(l.active.Load()),
		GlobalMax:   l.limits.GlobalMax,
		PerTemplate: l.limits.PerTemplate,
	}
}

func (l *RunLimiter) template(id string) *semaphore.Weighted {
	l.mu.Lock()
	defer l.mu.Unlock()
	sem, ok := l.templates[id]
	if !ok {
		sem = semaphore.NewWeighted(int64(l.limits.PerTemplate))
		l.templates[id] = sem
	}
	return sem
}
