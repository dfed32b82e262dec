package repository

import (
	"context"
	"sort"
	"time"

	"github.com/creatory/creatory/internal/creatory"
	memstore "github.com/creatory/creatory/internal/repository/memory"
)

// MemoryWorkspaceRepository keeps workspaces, memberships and
// conversations in memory.
type MemoryWorkspaceRepository struct {
	workspaces    *memstore.Store[*creatory.Workspace]
	memberships   *memstore.Store[*creatory.Membership]
	conversations *memstore.Store[*creatory.Conversation]
}

func NewMemoryWorkspaceRepository() *MemoryWorkspaceRepository {
	return &MemoryWorkspaceRepository{
		workspaces:    memstore.New(func(w *creatory.Workspace) string { return w.ID }),
		memberships:   memstore.New(func(m *creatory.Membership) string { return m.ID }),
		conversations: memstore.New(func(c *creatory.Conversation) string { return c.ID }),
	}
}

func (r *MemoryWorkspaceRepository) CreateWorkspace(ctx context.Context, ws *creatory.Workspace, owner *creatory.Membership) error {
	err := r.workspaces.Insert(ctx, ws, func(existing *creatory.Workspace) bool {
		return existing.Slug == ws.Slug
	})
	if err != nil {
		return mapErr(err, "workspace", ws.Slug)
	}
	if err := r.AddMembership(ctx, owner); err != nil {
		_ = r.workspaces.Delete(ctx, ws.ID)
		return err
	}
	return nil
}

func (r *MemoryWorkspaceRepository) GetWorkspace(ctx context.Context, id string) (*creatory.Workspace, error) {
	ws, err := r.workspaces.Get(ctx, id)
	return ws, mapErr(err, "workspace", id)
}

func (r *MemoryWorkspaceRepository) ListUserWorkspaces(ctx context.Context, userID string) ([]*creatory.Workspace, error) {
	ms, _ := r.memberships.Filter(ctx, func(m *creatory.Membership) bool { return m.UserID == userID })
	var out []*creatory.Workspace
	for _, m := range ms {
		if ws, err := r.workspaces.Get(ctx, m.WorkspaceID); err == nil {
			out = append(out, ws)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *MemoryWorkspaceRepository) GetMembership(ctx context.Context, workspaceID, userID string) (*creatory.Membership, error) {
	m, err := r.memberships.Find(ctx, func(m *creatory.Membership) bool {
		return m.WorkspaceID == workspaceID && m.UserID == userID
	})
	return m, mapErr(err, "membership", workspaceID+"/"+userID)
}

func (r *MemoryWorkspaceRepository) AddMembership(ctx context.Context, m *creatory.Membership) error {
	err := r.memberships.Insert(ctx, m, func(existing *creatory.Membership) bool {
		return existing.WorkspaceID == m.WorkspaceID && existing.UserID == m.UserID
	})
	return mapErr(err, "membership", m.WorkspaceID+"/"+m.UserID)
}

func (r *MemoryWorkspaceRepository) CreateConversation(ctx context.Context, c *creatory.Conversation) error {
	return mapErr(r.conversations.Insert(ctx, c, nil), "conversation", c.ID)
}

func (r *MemoryWorkspaceRepository) GetConversation(ctx context.Context, id string) (*creatory.Conversation, error) {
	c, err := r.conversations.Get(ctx, id)
	return c, mapErr(err, "conversation", id)
}

func (r *MemoryWorkspaceRepository) ListConversations(ctx context.Context, workspaceID string, page creatory.Page) ([]*creatory.Conversation, error) {
	out, _ := r.conversations.Filter(ctx, func(c *creatory.Conversation) bool { return c.WorkspaceID == workspaceID })
	newestFirst(out,
		func(c *creatory.Conversation) time.Time { return c.CreatedAt },
		func(c *creatory.Conversation) string { return c.ID })
	return paginate(out, page), nil
}
