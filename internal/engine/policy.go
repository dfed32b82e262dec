package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/creatory/creatory/internal/creatory"
)

// FailurePolicy decides what happens to a run when a node fails.
type FailurePolicy string

const (
	// FailureAbort stops the run at the first failed node and fails the run.
	FailureAbort FailurePolicy = "abort"
	// FailureContinue records the failed step and carries on with the next node.
	FailureContinue FailurePolicy = "continue"
)

// ParseFailurePolicy accepts "abort", "continue" or "" (abort).
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch FailurePolicy(s) {
	case "", FailureAbort:
		return FailureAbort, nil
	case FailureContinue:
		return FailureContinue, nil
	}
	return "", fmt.Errorf("unknown failure policy %q", s)
}

// Policy bundles the per-node execution rules of a run.
type Policy struct {
	OnFailure   FailurePolicy
	NodeTimeout time.Duration // zero means no per-node deadline
	Retry       creatory.RetryPolicy
}

// DefaultPolicy aborts on failure, has no node deadline and never retries.
func DefaultPolicy() Policy {
	return Policy{
		OnFailure: FailureAbort,
		Retry:     creatory.DefaultRetryPolicy(),
	}
}

// ErrNodeTimeout is wrapped by failures caused by Policy.NodeTimeout.
var ErrNodeTimeout = errors.New("node timed out")

// sleepWithBackoff waits for the backoff duration, returning early with the
// context error if ctx ends first.
func sleepWithBackoff(ctx context.Context, policy creatory.RetryPolicy, attempt int) error {
	timer := time.NewTimer(calculateBackoff(policy, attempt))
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// calculateBackoff computes the delay before retry number attempt+1.
func calculateBackoff(policy creatory.RetryPolicy, attempt int) time.Duration {
	factor := policy.BackoffFactor
	if factor <= 0 {
		factor = 1
	}
	delay := float64(policy.InitialDelay) * math.Pow(factor, float64(attempt))
	if policy.MaxDelay > 0 && time.Duration(delay) > policy.MaxDelay {
		return policy.MaxDelay
	}
	return time.Duration(delay)
}

// IsRetryable reports whether a node failure is worth another attempt.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNodeTimeout) {
		return true
	}
	lower := strings.ToLower(err.Error())
	retryablePatterns := []string{
		"timeout", "rate_limit", "rate limit", "too many requests",
		"429", "500", "502", "503", "504",
		"connection reset", "connection refused", "eof",
		"overloaded", "capacity",
	}
	for _, pattern := range retryablePatterns {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}
