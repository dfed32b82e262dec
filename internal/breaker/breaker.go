// Package breaker guards workflow runs against runaway step counts.
package breaker

import (
	"errors"
	"fmt"
)

// DefaultMaxSteps is the step ceiling applied when none is configured.
const DefaultMaxSteps = 15

// Config holds the breaker limits.
type Config struct {
	MaxSteps int `yaml:"max_steps" json:"max_steps"`
}

// DefaultConfig returns the stock limits.
func DefaultConfig() Config {
	return Config{MaxSteps: DefaultMaxSteps}
}

// TriggeredError reports a run whose step count exceeds the budget.
type TriggeredError struct {
	Requested int
	Max       int
}

func (e *TriggeredError) Error() string {
	return fmt.Sprintf("circuit breaker triggered: requested_steps=%d exceeds max_steps=%d", e.Requested, e.Max)
}

// AssertStepBudget fails iff requested exceeds cfg.MaxSteps. Equality passes.
func AssertStepBudget(requested int, cfg Config) error {
	if requested > cfg.MaxSteps {
		return &TriggeredError{Requested: requested, Max: cfg.MaxSteps}
	}
	return nil
}

// IsTriggered reports whether err is, or wraps, a TriggeredError.
func IsTriggered(err error) bool {
	var te *TriggeredError
	return errors.As(err, &te)
}
