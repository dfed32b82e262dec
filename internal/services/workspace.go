package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/creatory/creatory/internal/creatory"
	"github.com/creatory/creatory/internal/repository"
	"github.com/google/uuid"
)

// maxSlugAttempts bounds the numbered suffixes tried for a taken slug.
const maxSlugAttempts = 50

var slugPattern = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify lowercases s and collapses every run of other characters into a
// single hyphen.
func Slugify(s string) string {
	return strings.Trim(slugPattern.ReplaceAllString(strings.ToLower(strings.TrimSpace(s)), "-"), "-")
}

// WorkspaceService manages workspaces, their members and conversations.
type WorkspaceService struct {
	repo      repository.WorkspaceRepository
	access    *Access
	bootstrap *Bootstrapper
}

func NewWorkspaceService(repo repository.WorkspaceRepository, access *Access, bootstrap *Bootstrapper) *WorkspaceService {
	return &WorkspaceService{repo: repo, access: access, bootstrap: bootstrap}
}

// Create makes userID the owner of a new workspace and seeds its defaults.
// The slug comes from slug or, when empty, name; taken slugs get a numeric
// suffix.
func (s *WorkspaceService) Create(ctx context.Context, userID, name, slug string) (*creatory.Workspace, error) {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > 120 {
		return nil, creatory.Errorf(creatory.ErrInvalid, "name must be 1-120 characters")
	}
	base := Slugify(slug)
	if base == "" {
		base = Slugify(name)
	}
	if base == "" {
		base = "workspace-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	}

	now := time.Now().UTC()
	ws := &creatory.Workspace{ID: creatory.NewID(), Name: name, OwnerID: userID, CreatedAt: now}
	owner := &creatory.Membership{
		ID:          creatory.NewID(),
		WorkspaceID: ws.ID,
		UserID:      userID,
		Role:        creatory.RoleOwner,
		CreatedAt:   now,
	}

	candidate := base
	for i := 1; ; i++ {
		ws.Slug = candidate
		err := s.repo.CreateWorkspace(ctx, ws, owner)
		if err == nil {
			break
		}
		if !errors.Is(err, creatory.ErrConflict) || i > maxSlugAttempts {
			return nil, fmt.Errorf("create workspace: %w", err)
		}
		candidate = fmt.Sprintf("%s-%d", base, i)
	}

	if s.bootstrap != nil {
		if err := s.bootstrap.Bootstrap(ctx, ws); err != nil {
			return nil, err
		}
	}
	slog.Info("workspace created", "workspace_id", ws.ID, "slug", ws.Slug)
	return ws, nil
}

// List returns the workspaces userID belongs to.
func (s *WorkspaceService) List(ctx context.Context, userID string) ([]*creatory.Workspace, error) {
	return s.repo.ListUserWorkspaces(ctx, userID)
}

// Get returns a workspace the caller belongs to.
func (s *WorkspaceService) Get(ctx context.Context, userID, workspaceID string) (*creatory.Workspace, error) {
	if _, err := s.access.EnsureWorkspaceMember(ctx, workspaceID, userID); err != nil {
		return nil, err
	}
	ws, err := s.repo.GetWorkspace(ctx, workspaceID)
	if errors.Is(err, creatory.ErrNotFound) {
		return nil, errWorkspaceNotFound
	}
	return ws, err
}

// Bootstrap re-seeds the defaults of a workspace the caller belongs to.
func (s *WorkspaceService) Bootstrap(ctx context.Context, userID, workspaceID string) error {
	ws, err := s.Get(ctx, userID, workspaceID)
	if err != nil {
		return err
	}
	if s.bootstrap == nil {
		return nil
	}
	return s.bootstrap.Bootstrap(ctx, ws)
}

// AddMember grants memberID a role. Only owners and admins may do this, and
// nobody can hand out ownership.
func (s *WorkspaceService) AddMember(ctx context.Context, userID, workspaceID, memberID string, role creatory.MembershipRole) (*creatory.Membership, error) {
	m, err := s.access.EnsureWorkspaceMember(ctx, workspaceID, userID)
	if err != nil {
		return nil, err
	}
	if m.Role != creatory.RoleOwner && m.Role != creatory.RoleAdmin {
		return nil, creatory.Errorf(creatory.ErrForbidden, "Only workspace owners and admins can add members")
	}
	if memberID == "" {
		return nil, creatory.Errorf(creatory.ErrInvalid, "user_id is required")
	}
	if role == "" {
		role = creatory.RoleEditor
	}
	switch role {
	case creatory.RoleAdmin, creatory.RoleEditor, creatory.RoleViewer:
	default:
		return nil, creatory.Errorf(creatory.ErrInvalid, "role must be admin, editor or viewer")
	}

	member := &creatory.Membership{
		ID:          creatory.NewID(),
		WorkspaceID: workspaceID,
		UserID:      memberID,
		Role:        role,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.repo.AddMembership(ctx, member); err != nil {
		if errors.Is(err, creatory.ErrConflict) {
			return nil, creatory.Errorf(creatory.ErrConflict, "User is already a member of this workspace")
		}
		return nil, fmt.Errorf("add member: %w", err)
	}
	return member, nil
}

// CreateConversation opens a conversation in a workspace the caller belongs to.
func (s *WorkspaceService) CreateConversation(ctx context.Context, userID, workspaceID, title string) (*creatory.Conversation, error) {
	if _, err := s.access.EnsureWorkspaceMember(ctx, workspaceID, userID); err != nil {
		return nil, err
	}
	if len(title) > 200 {
		return nil, creatory.Errorf(creatory.ErrInvalid, "title must be at most 200 characters")
	}
	c := &creatory.Conversation{
		ID:          creatory.NewID(),
		WorkspaceID: workspaceID,
		Title:       title,
		CreatedBy:   userID,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.repo.CreateConversation(ctx, c); err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	return c, nil
}

// ListConversations pages through a workspace's conversations, newest first.
func (s *WorkspaceService) ListConversations(ctx context.Context, userID, workspaceID string, page creatory.Page) ([]*creatory.Conversation, error) {
	if _, err := s.access.EnsureWorkspaceMember(ctx, workspaceID, userID); err != nil {
		return nil, err
	}
	return s.repo.ListConversations(ctx, workspaceID, ClampPage(page))
}
