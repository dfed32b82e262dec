package breaker

import (
	"errors"
	"fmt"
	"testing"

	"pgregory.net/rapid"
)

func TestAssertStepBudget(t *testing.T) {
	tests := []struct {
		name      string
		requested int
		max       int
		wantErr   bool
	}{
		{"empty template", 0, 15, false},
		{"under budget", 4, 15, false},
		{"at budget", 15, 15, false},
		{"one over", 16, 15, true},
		{"zero budget with steps", 1, 0, true},
		{"zero budget zero steps", 0, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := AssertStepBudget(tt.requested, Config{MaxSteps: tt.max})
			if (err != nil) != tt.wantErr {
				t.Fatalf("AssertStepBudget(%d, %d) err = %v, wantErr %v", tt.requested, tt.max, err, tt.wantErr)
			}
			if !tt.wantErr {
				return
			}
			var te *TriggeredError
			if !errors.As(err, &te) {
				t.Fatalf("expected *TriggeredError, got %T", err)
			}
			if te.Requested != tt.requested || te.Max != tt.max {
				t.Errorf("got requested=%d max=%d", te.Requested, te.Max)
			}
		})
	}
}

func TestTriggeredErrorMessage(t *testing.T) {
	err := AssertStepBudget(20, DefaultConfig())
	want := "circuit breaker triggered: requested_steps=20 exceeds max_steps=15"
	if err == nil || err.Error() != want {
		t.Fatalf("got %v, want %q", err, want)
	}
}

func TestIsTriggeredThroughWrapping(t *testing.T) {
	err := fmt.Errorf("run template: %w", AssertStepBudget(3, Config{MaxSteps: 2}))
	if !IsTriggered(err) {
		t.Fatal("wrapped breaker error not detected")
	}
	if IsTriggered(errors.New("boom")) {
		t.Fatal("plain error detected as breaker error")
	}
}

func TestAssertStepBudgetProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		max := rapid.IntRange(0, 100).Draw(rt, "max")
		requested := rapid.IntRange(0, 200).Draw(rt, "requested")

		err := AssertStepBudget(requested, Config{MaxSteps: max})
		if (err != nil) != (requested > max) {
			rt.Fatalf("requested=%d max=%d err=%v", requested, max, err)
		}
	})
}
