package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/creatory/creatory/internal/creatory"
	"github.com/creatory/creatory/internal/dag"
	"github.com/creatory/creatory/internal/repository"
	"github.com/expr-lang/expr"
)

var errTemplateNotFound = creatory.Errorf(creatory.ErrNotFound, "Workflow template not found")

// TemplateService stores and lists workflow templates.
type TemplateService struct {
	repo   repository.TemplateRepository
	access *Access
}

func NewTemplateService(repo repository.TemplateRepository, access *Access) *TemplateService {
	return &TemplateService{repo: repo, access: access}
}

// Create validates t and stores it with its graph. IDs, timestamps and
// CreatedBy are assigned here.
func (s *TemplateService) Create(ctx context.Context, userID string, t *creatory.Template) (*creatory.Template, error) {
	if t.WorkspaceID == "" {
		return nil, creatory.Errorf(creatory.ErrInvalid, "workspace_id is required")
	}
	if _, err := s.access.EnsureWorkspaceMember(ctx, t.WorkspaceID, userID); err != nil {
		return nil, err
	}
	if t.Version == 0 {
		t.Version = 1
	}
	if err := ValidateTemplate(t); err != nil {
		return nil, err
	}

	t.CreatedBy = userID
	prepareTemplate(t, time.Now().UTC())
	if err := s.repo.CreateTemplate(ctx, t); err != nil {
		if errors.Is(err, creatory.ErrConflict) {
			return nil, creatory.Errorf(creatory.ErrConflict, "Template name/version already exists in this workspace")
		}
		return nil, fmt.Errorf("create template: %w", err)
	}
	return s.repo.GetTemplate(ctx, t.ID)
}

// Get returns a template with its graph, provided userID may see it.
func (s *TemplateService) Get(ctx context.Context, userID, id string) (*creatory.Template, error) {
	t, err := s.repo.GetTemplate(ctx, id)
	if errors.Is(err, creatory.ErrNotFound) {
		return nil, errTemplateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get template: %w", err)
	}
	if _, err := s.access.EnsureWorkspaceMember(ctx, t.WorkspaceID, userID); err != nil {
		return nil, err
	}
	return t, nil
}

// List pages through a workspace's templates, newest first.
func (s *TemplateService) List(ctx context.Context, userID, workspaceID string, page creatory.Page) ([]*creatory.Template, error) {
	if _, err := s.access.EnsureWorkspaceMember(ctx, workspaceID, userID); err != nil {
		return nil, err
	}
	return s.repo.ListTemplates(ctx, workspaceID, ClampPage(page))
}

// ValidateTemplate reports every problem with t at once. Node types are
// normalised to lower case in place.
func ValidateTemplate(t *creatory.Template) error {
	verr := &creatory.ValidationError{}
	name := strings.TrimSpace(t.Name)
	if name == "" || len(name) > 120 {
		verr.Add("name must be 1-120 characters")
	}
	if t.Version < 1 {
		verr.Add("version must be at least 1")
	}

	keys := make(map[string]bool, len(t.Nodes))
	for i := range t.Nodes {
		n := &t.Nodes[i]
		n.Key = strings.TrimSpace(n.Key)
		switch {
		case n.Key == "":
			verr.Add(fmt.Sprintf("node #%d has an empty node_key", i+1))
		case keys[n.Key]:
			verr.Add(fmt.Sprintf("duplicate node_key %q", n.Key))
		}
		keys[n.Key] = true

		nt, err := creatory.ParseNodeType(strings.ToLower(string(n.Type)))
		if err != nil {
			verr.Add(fmt.Sprintf("node %q has unknown type %q", n.Key, n.Type))
			continue
		}
		n.Type = nt
	}

	for _, e := range t.Edges {
		if !keys[e.SourceNodeKey] {
			verr.Add(fmt.Sprintf("edge source %q is not a node", e.SourceNodeKey))
		}
		if !keys[e.TargetNodeKey] {
			verr.Add(fmt.Sprintf("edge target %q is not a node", e.TargetNodeKey))
		}
		if e.ConditionExpr != "" {
			if _, err := expr.Compile(e.ConditionExpr, expr.AllowUndefinedVariables()); err != nil {
				verr.Add(fmt.Sprintf("edge %s->%s condition does not compile: %v", e.SourceNodeKey, e.TargetNodeKey, err))
			}
		}
	}
	if err := verr.Err(); err != nil {
		return err
	}

	if _, err := dag.Build(t.Nodes, t.Edges); err != nil {
		verr.Add(err.Error())
		return verr
	}
	return nil
}

// prepareTemplate assigns the IDs and timestamps of a new template and its
// graph.
func prepareTemplate(t *creatory.Template, now time.Time) {
	t.ID = creatory.NewID()
	t.CreatedAt = now
	t.UpdatedAt = now
	if t.Definition == nil {
		t.Definition = map[string]any{}
	}
	for i := range t.Nodes {
		t.Nodes[i].ID = creatory.NewID()
		t.Nodes[i].TemplateID = t.ID
		if t.Nodes[i].Config == nil {
			t.Nodes[i].Config = map[string]any{}
		}
	}
	for i := range t.Edges {
		t.Edges[i].ID = creatory.NewID()
		t.Edges[i].TemplateID = t.ID
		if t.Edges[i].Metadata == nil {
			t.Edges[i].Metadata = map[string]any{}
		}
	}
}
