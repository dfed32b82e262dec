// Package services holds the application use cases that sit between the
// HTTP layer and the repositories.
package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/creatory/creatory/internal/creatory"
	"github.com/creatory/creatory/internal/repository"
)

var (
	errWorkspaceNotFound    = creatory.Errorf(creatory.ErrNotFound, "Workspace not found")
	errConversationNotFound = creatory.Errorf(creatory.ErrNotFound, "Conversation not found")
)

// Access answers membership questions. Non-members get the same not-found
// error as for a missing workspace.
type Access struct {
	repo repository.WorkspaceRepository
}

func NewAccess(repo repository.WorkspaceRepository) *Access {
	return &Access{repo: repo}
}

// EnsureWorkspaceMember returns userID's membership in workspaceID.
func (a *Access) EnsureWorkspaceMember(ctx context.Context, workspaceID, userID string) (*creatory.Membership, error) {
	m, err := a.repo.GetMembership(ctx, workspaceID, userID)
	if errors.Is(err, creatory.ErrNotFound) {
		return nil, errWorkspaceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("check membership: %w", err)
	}
	return m, nil
}

// EnsureConversationMember loads the conversation and checks that userID
// belongs to its workspace.
func (a *Access) EnsureConversationMember(ctx context.Context, conversationID, userID string) (*creatory.Conversation, error) {
	c, err := a.repo.GetConversation(ctx, conversationID)
	if errors.Is(err, creatory.ErrNotFound) {
		return nil, errConversationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	if _, err := a.EnsureWorkspaceMember(ctx, c.WorkspaceID, userID); err != nil {
		return nil, err
	}
	return c, nil
}

// notFound converts a repository miss into a client-facing error naming what.
func notFound(err error, what string) error {
	if errors.Is(err, creatory.ErrNotFound) {
		return creatory.Errorf(creatory.ErrNotFound, "%s not found", what)
	}
	return err
}

// ClampPage applies the listing defaults: limit 50, at most 200.
func ClampPage(p creatory.Page) creatory.Page {
	if p.Limit <= 0 {
		p.Limit = 50
	}
	if p.Limit > 200 {
		p.Limit = 200
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}
