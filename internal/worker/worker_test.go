package worker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/creatory/creatory/internal/services"
)

type countingHeart struct {
	beats atomic.Int32
}

func (h *countingHeart) Heartbeat() { h.beats.Add(1) }

func TestParseSchedule(t *testing.T) {
	for _, spec := range []string{"@every 15s", "*/5 * * * *", "0 */5 * * * *", "@hourly"} {
		sched, err := ParseSchedule(spec)
		if err != nil {
			t.Fatalf("ParseSchedule(%q): %v", spec, err)
		}
		if sched.Next(time.Now()).IsZero() {
			t.Errorf("ParseSchedule(%q): zero next time", spec)
		}
	}
}

func TestParseSchedule_Invalid(t *testing.T) {
	if _, err := ParseSchedule("not a cron"); err == nil {
		t.Fatal("expected error for invalid schedule")
	}
}

func TestNew_DefaultsAndErrors(t *testing.T) {
	w, err := New("", nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if w.spec != DefaultSchedule {
		t.Errorf("spec = %q, want %q", w.spec, DefaultSchedule)
	}
	if _, err := New("every now and then", nil, nil); err == nil {
		t.Fatal("expected error for bad spec")
	}
}

func TestBeatReportsStats(t *testing.T) {
	heart := &countingHeart{}
	called := false
	w, err := New(DefaultSchedule, heart, func() services.LimiterStats {
		called = true
		return services.LimiterStats{ActiveRuns: 2, GlobalMax: 10}
	})
	if err != nil {
		t.Fatal(err)
	}
	w.beat()
	if heart.beats.Load() != 1 || !called {
		t.Errorf("beats = %d, stats called = %v", heart.beats.Load(), called)
	}
}

func TestRunBeatsUntilCancelled(t *testing.T) {
	heart := &countingHeart{}
	w, err := New("@every 1s", heart, nil)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for heart.beats.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if heart.beats.Load() == 0 {
		t.Error("expected at least one heartbeat")
	}
}
