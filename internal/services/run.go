package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/creatory/creatory/internal/creatory"
	"github.com/creatory/creatory/internal/engine"
	"github.com/creatory/creatory/internal/repository"
)

var errRunNotFound = creatory.Errorf(creatory.ErrNotFound, "Workflow run not found")

// StartRun carries the caller-supplied parts of a run.
type StartRun struct {
	ConversationID *string
	Input          map[string]any
}

// RunService starts runs through the engine and reads them back.
type RunService struct {
	templates repository.TemplateRepository
	runs      repository.RunRepository
	access    *Access
	runner    *engine.Runner
	limiter   *RunLimiter
}

func NewRunService(templates repository.TemplateRepository, runs repository.RunRepository, access *Access, runner *engine.Runner, limiter *RunLimiter) *RunService {
	return &RunService{templates: templates, runs: runs, access: access, runner: runner, limiter: limiter}
}

// Start executes a template once on behalf of userID. A breaker trip comes
// back as *breaker.TriggeredError together with the failed run.
func (s *RunService) Start(ctx context.Context, userID, templateID string, req StartRun) (*creatory.WorkflowRun, []creatory.RunStep, error) {
	tmpl, err := s.templates.GetTemplate(ctx, templateID)
	if errors.Is(err, creatory.ErrNotFound) {
		return nil, nil, errTemplateNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("get template: %w", err)
	}
	if _, err := s.access.EnsureWorkspaceMember(ctx, tmpl.WorkspaceID, userID); err != nil {
		return nil, nil, err
	}

	if req.ConversationID != nil {
		conv, err := s.access.EnsureConversationMember(ctx, *req.ConversationID, userID)
		if err != nil {
			return nil, nil, err
		}
		if conv.WorkspaceID != tmpl.WorkspaceID {
			return nil, nil, creatory.Errorf(creatory.ErrInvalid, "Conversation and template must belong to the same workspace")
		}
	}

	if s.limiter != nil {
		if err := s.limiter.Acquire(ctx, tmpl.ID); err != nil {
			return nil, nil, fmt.Errorf("wait for run slot: %w", err)
		}
		defer s.limiter.Release(tmpl.ID)
	}

	return s.runner.Run(ctx, tmpl, engine.RunRequest{
		CreatedBy:      userID,
		ConversationID: req.ConversationID,
		Input:          req.Input,
	})
}

// Get returns a run with its steps.
func (s *RunService) Get(ctx context.Context, userID, runID string) (*creatory.WorkflowRun, []creatory.RunStep, error) {
	run, err := s.authorizedRun(ctx, userID, runID)
	if err != nil {
		return nil, nil, err
	}
	steps, err := s.runs.ListRunSteps(ctx, run.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("list run steps: %w", err)
	}
	return run, steps, nil
}

// Steps returns the steps of a run in execution order.
func (s *RunService) Steps(ctx context.Context, userID, runID string) ([]creatory.RunStep, error) {
	_, steps, err := s.Get(ctx, userID, runID)
	return steps, err
}

// ListForTemplate pages through a template's runs, newest first.
func (s *RunService) ListForTemplate(ctx context.Context, userID, templateID string, page creatory.Page) ([]*creatory.WorkflowRun, error) {
	tmpl, err := s.templates.GetTemplate(ctx, templateID)
	if errors.Is(err, creatory.ErrNotFound) {
		return nil, errTemplateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get template: %w", err)
	}
	if _, err := s.access.EnsureWorkspaceMember(ctx, tmpl.WorkspaceID, userID); err != nil {
		return nil, err
	}
	return s.runs.ListTemplateRuns(ctx, tmpl.ID, ClampPage(page))
}

func (s *RunService) authorizedRun(ctx context.Context, userID, runID string) (*creatory.WorkflowRun, error) {
	run, err := s.runs.GetRun(ctx, runID)
	if errors.Is(err, creatory.ErrNotFound) {
		return nil, errRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	if _, err := s.access.EnsureWorkspaceMember(ctx, run.WorkspaceID, userID); err != nil {
		return nil, err
	}
	return run, nil
}
