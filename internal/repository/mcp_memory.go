package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/creatory/creatory/internal/creatory"
	memstore "github.com/creatory/creatory/internal/repository/memory"
)

// MemoryMCPRepository keeps tool servers, tools and invocations in memory.
type MemoryMCPRepository struct {
	servers     *memstore.Store[*creatory.MCPServer]
	mu          sync.Mutex // serialises UpsertTools
	tools       *memstore.Store[*creatory.MCPTool]
	invocations *memstore.Store[*creatory.ToolInvocation]
}

func NewMemoryMCPRepository() *MemoryMCPRepository {
	return &MemoryMCPRepository{
		servers:     memstore.New(func(s *creatory.MCPServer) string { return s.ID }),
		tools:       memstore.New(func(t *creatory.MCPTool) string { return t.ID }),
		invocations: memstore.New(func(i *creatory.ToolInvocation) string { return i.ID }),
	}
}

func (r *MemoryMCPRepository) CreateServer(ctx context.Context, s *creatory.MCPServer) error {
	stored := *s
	stored.AuthConfig = nil
	err := r.servers.Insert(ctx, &stored, func(existing *creatory.MCPServer) bool {
		return existing.WorkspaceID == s.WorkspaceID && existing.Name == s.Name
	})
	return mapErr(err, "mcp server", s.Name)
}

func (r *MemoryMCPRepository) GetServer(ctx context.Context, id string) (*creatory.MCPServer, error) {
	s, err := r.servers.Get(ctx, id)
	if err != nil {
		return nil, mapErr(err, "mcp server", id)
	}
	c := *s
	return &c, nil
}

func (r *MemoryMCPRepository) FindServerByName(ctx context.Context, workspaceID, name string) (*creatory.MCPServer, error) {
	s, err := r.servers.Find(ctx, func(s *creatory.MCPServer) bool {
		return s.WorkspaceID == workspaceID && s.Name == name
	})
	if err != nil {
		return nil, mapErr(err, "mcp server", name)
	}
	c := *s
	return &c, nil
}

func (r *MemoryMCPRepository) ListServers(ctx context.Context, workspaceID string) ([]*creatory.MCPServer, error) {
	out, _ := r.servers.Filter(ctx, func(s *creatory.MCPServer) bool { return s.WorkspaceID == workspaceID })
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *MemoryMCPRepository) UpsertTools(ctx context.Context, serverID string, tools []*creatory.MCPTool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range tools {
		t.ServerID = serverID
		existing, err := r.tools.Find(ctx, func(e *creatory.MCPTool) bool {
			return e.ServerID == serverID && e.Name == t.Name
		})
		if err == nil {
			t.ID = existing.ID
			t.IsEnabled = existing.IsEnabled
			t.CreatedAt = existing.CreatedAt
		}
		stored := *t
		_ = r.tools.Set(ctx, &stored)
	}
	return nil
}

func (r *MemoryMCPRepository) ListTools(ctx context.Context, serverID string) ([]*creatory.MCPTool, error) {
	out, _ := r.tools.Filter(ctx, func(t *creatory.MCPTool) bool { return t.ServerID == serverID })
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *MemoryMCPRepository) FindTool(ctx context.Context, serverID, name string) (*creatory.MCPTool, error) {
	t, err := r.tools.Find(ctx, func(t *creatory.MCPTool) bool {
		return t.ServerID == serverID && t.Name == name
	})
	return t, mapErr(err, "mcp tool", name)
}

func (r *MemoryMCPRepository) RecordInvocation(ctx context.Context, inv *creatory.ToolInvocation) error {
	stored := *inv
	return r.invocations.Set(ctx, &stored)
}

// Invocations returns the recorded invocations of a tool.
func (r *MemoryMCPRepository) Invocations(ctx context.Context, toolID string) []*creatory.ToolInvocation {
	out, _ := r.invocations.Filter(ctx, func(i *creatory.ToolInvocation) bool { return i.ToolID == toolID })
	return out
}
