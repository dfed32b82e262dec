// Package worker runs the background heartbeat that reports the process is
// alive and how busy the run limiter is.
package worker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/creatory/creatory/internal/services"
	"github.com/robfig/cron/v3"
)

// DefaultSchedule is used when no heartbeat schedule is configured.
const DefaultSchedule = "@every 15s"

// Heart records a heartbeat. *metrics.Collector satisfies it.
type Heart interface {
	Heartbeat()
}

// StatsFunc reports current run concurrency. Optional.
type StatsFunc func() services.LimiterStats

// Worker beats on a cron schedule until its context is cancelled.
type Worker struct {
	schedule cron.Schedule
	spec     string
	heart    Heart
	stats    StatsFunc
}

// New parses spec and returns a Worker. heart and stats may be nil.
func New(spec string, heart Heart, stats StatsFunc) (*Worker, error) {
	if spec == "" {
		spec = DefaultSchedule
	}
	sched, err := ParseSchedule(spec)
	if err != nil {
		return nil, fmt.Errorf("parse heartbeat schedule %q: %w", spec, err)
	}
	return &Worker{schedule: sched, spec: spec, heart: heart, stats: stats}, nil
}

// ParseSchedule accepts descriptors such as "@every 15s", 6-field
// expressions with seconds and standard 5-field expressions.
func ParseSchedule(spec string) (cron.Schedule, error) {
	parser6 := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	sched, err := parser6.Parse(spec)
	if err == nil {
		return sched, nil
	}
	parser5 := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	return parser5.Parse(spec)
}

// Run blocks until ctx is done. In-flight beats finish before it returns.
func (w *Worker) Run(ctx context.Context) error {
	c := cron.New()
	c.Schedule(w.schedule, cron.FuncJob(w.beat))
	c.Start()
	slog.Info("worker started", "schedule", w.spec)

	<-ctx.Done()
	<-c.Stop().Done()
	slog.Info("worker stopped")
	return nil
}

func (w *Worker) beat() {
	if w.heart != nil {
		w.heart.Heartbeat()
	}
	if w.stats == nil {
		slog.Info("worker heartbeat")
		return
	}
	st := w.stats()
	slog.Info("worker heartbeat", "active_runs", st.ActiveRuns, "global_max", st.GlobalMax)
}
