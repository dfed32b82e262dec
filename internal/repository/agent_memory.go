package repository

import (
	"context"
	"sort"

	"github.com/creatory/creatory/internal/creatory"
	memstore "github.com/creatory/creatory/internal/repository/memory"
)

// MemoryAgentRepository keeps agents in memory.
type MemoryAgentRepository struct {
	store *memstore.Store[*creatory.Agent]
}

func NewMemoryAgentRepository() *MemoryAgentRepository {
	return &MemoryAgentRepository{
		store: memstore.New(func(a *creatory.Agent) string { return a.ID }),
	}
}

func sameWorkspace(a, b *string) bool {
	if a == nil || b == nil {
		return false
	}
	return *a == *b
}

func (r *MemoryAgentRepository) CreateAgent(ctx context.Context, a *creatory.Agent) error {
	err := r.store.Insert(ctx, a, func(existing *creatory.Agent) bool {
		return sameWorkspace(existing.WorkspaceID, a.WorkspaceID) && existing.Slug == a.Slug
	})
	return mapErr(err, "agent", a.Slug)
}

func (r *MemoryAgentRepository) GetAgent(ctx context.Context, id string) (*creatory.Agent, error) {
	a, err := r.store.Get(ctx, id)
	return a, mapErr(err, "agent", id)
}

func (r *MemoryAgentRepository) FindAgentBySlug(ctx context.Context, workspaceID, slug string) (*creatory.Agent, error) {
	a, err := r.store.Find(ctx, func(a *creatory.Agent) bool {
		return a.WorkspaceID != nil && *a.WorkspaceID == workspaceID && a.Slug == slug
	})
	return a, mapErr(err, "agent", slug)
}

func (r *MemoryAgentRepository) ListAgents(ctx context.Context, workspaceID string, includeSystem bool, page creatory.Page) ([]*creatory.Agent, error) {
	out, _ := r.store.Filter(ctx, func(a *creatory.Agent) bool {
		if a.WorkspaceID == nil {
			return includeSystem && a.IsSystem
		}
		return *a.WorkspaceID == workspaceID
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return paginate(out, page), nil
}
