package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/creatory/creatory/internal/creatory"
	"github.com/creatory/creatory/internal/repository"
)

// AgentService manages workspace agents. System agents without a workspace
// are readable by everyone.
type AgentService struct {
	repo   repository.AgentRepository
	access *Access
}

func NewAgentService(repo repository.AgentRepository, access *Access) *AgentService {
	return &AgentService{repo: repo, access: access}
}

// Create stores an agent in a workspace the caller belongs to.
func (s *AgentService) Create(ctx context.Context, userID string, a *creatory.Agent) (*creatory.Agent, error) {
	if a.WorkspaceID == nil || *a.WorkspaceID == "" {
		return nil, creatory.Errorf(creatory.ErrInvalid, "workspace_id is required")
	}
	if _, err := s.access.EnsureWorkspaceMember(ctx, *a.WorkspaceID, userID); err != nil {
		return nil, err
	}

	verr := &creatory.ValidationError{}
	a.Slug = strings.TrimSpace(a.Slug)
	if a.Slug == "" || len(a.Slug) > 120 {
		verr.Add("slug must be 1-120 characters")
	}
	if a.Name = strings.TrimSpace(a.Name); a.Name == "" || len(a.Name) > 120 {
		verr.Add("name must be 1-120 characters")
	}
	if strings.TrimSpace(a.PersonaPrompt) == "" {
		verr.Add("persona_prompt is required")
	}
	if err := verr.Err(); err != nil {
		return nil, err
	}

	a.ID = creatory.NewID()
	a.CreatedAt = time.Now().UTC()
	if a.Config == nil {
		a.Config = map[string]any{}
	}
	if err := s.repo.CreateAgent(ctx, a); err != nil {
		if errors.Is(err, creatory.ErrConflict) {
			return nil, creatory.Errorf(creatory.ErrConflict, "Agent slug already exists in this workspace")
		}
		return nil, fmt.Errorf("create agent: %w", err)
	}
	return a, nil
}

// List pages through a workspace's agents, optionally with the global
// system agents.
func (s *AgentService) List(ctx context.Context, userID, workspaceID string, includeSystem bool, page creatory.Page) ([]*creatory.Agent, error) {
	if _, err := s.access.EnsureWorkspaceMember(ctx, workspaceID, userID); err != nil {
		return nil, err
	}
	return s.repo.ListAgents(ctx, workspaceID, includeSystem, ClampPage(page))
}

// Get returns an agent. Global agents skip the membership check.
func (s *AgentService) Get(ctx context.Context, userID, id string) (*creatory.Agent, error) {
	a, err := s.repo.GetAgent(ctx, id)
	if err != nil {
		return nil, notFound(err, "Agent")
	}
	if a.WorkspaceID != nil {
		if _, err := s.access.EnsureWorkspaceMember(ctx, *a.WorkspaceID, userID); err != nil {
			return nil, err
		}
	}
	return a, nil
}
