package repository

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/creatory/creatory/internal/creatory"
	"github.com/creatory/creatory/internal/dag"
	memstore "github.com/creatory/creatory/internal/repository/memory"
)

// MemoryTemplateRepository keeps templates in memory. Stored templates are
// copies, so callers may keep mutating what they passed in.
type MemoryTemplateRepository struct {
	store *memstore.Store[*creatory.Template]
}

func NewMemoryTemplateRepository() *MemoryTemplateRepository {
	return &MemoryTemplateRepository{
		store: memstore.New(func(t *creatory.Template) string { return t.ID }),
	}
}

func (r *MemoryTemplateRepository) CreateTemplate(ctx context.Context, t *creatory.Template) error {
	stored := cloneTemplate(t)
	stored.Nodes = dag.PositionalOrder(stored.Nodes)
	sort.SliceStable(stored.Edges, func(i, j int) bool {
		a, b := stored.Edges[i], stored.Edges[j]
		if a.SourceNodeKey != b.SourceNodeKey {
			return a.SourceNodeKey < b.SourceNodeKey
		}
		return a.TargetNodeKey < b.TargetNodeKey
	})
	err := r.store.Insert(ctx, stored, func(existing *creatory.Template) bool {
		return existing.WorkspaceID == t.WorkspaceID && existing.Name == t.Name && existing.Version == t.Version
	})
	return mapErr(err, "template", fmt.Sprintf("%s@%d", t.Name, t.Version))
}

func (r *MemoryTemplateRepository) GetTemplate(ctx context.Context, id string) (*creatory.Template, error) {
	t, err := r.store.Get(ctx, id)
	if err != nil {
		return nil, mapErr(err, "template", id)
	}
	return cloneTemplate(t), nil
}

func (r *MemoryTemplateRepository) FindTemplate(ctx context.Context, workspaceID, name string, version int) (*creatory.Template, error) {
	t, err := r.store.Find(ctx, func(t *creatory.Template) bool {
		return t.WorkspaceID == workspaceID && t.Name == name && t.Version == version
	})
	if err != nil {
		return nil, mapErr(err, "template", fmt.Sprintf("%s@%d", name, version))
	}
	return cloneTemplate(t), nil
}

func (r *MemoryTemplateRepository) ListTemplates(ctx context.Context, workspaceID string, page creatory.Page) ([]*creatory.Template, error) {
	all, _ := r.store.Filter(ctx, func(t *creatory.Template) bool { return t.WorkspaceID == workspaceID })
	newestFirst(all,
		func(t *creatory.Template) time.Time { return t.CreatedAt },
		func(t *creatory.Template) string { return t.ID })
	all = paginate(all, page)
	out := make([]*creatory.Template, len(all))
	for i, t := range all {
		c := cloneTemplate(t)
		c.Nodes, c.Edges = nil, nil
		out[i] = c
	}
	return out, nil
}

func cloneTemplate(t *creatory.Template) *creatory.Template {
	c := *t
	c.Definition = cloneMap(t.Definition)
	c.Nodes = make([]creatory.Node, len(t.Nodes))
	for i, n := range t.Nodes {
		n.TemplateID = t.ID
		n.Config = cloneMap(n.Config)
		c.Nodes[i] = n
	}
	c.Edges = make([]creatory.Edge, len(t.Edges))
	for i, e := range t.Edges {
		e.TemplateID = t.ID
		e.Metadata = cloneMap(e.Metadata)
		c.Edges[i] = e
	}
	return &c
}
