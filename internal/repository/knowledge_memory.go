package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/creatory/creatory/internal/creatory"
	memstore "github.com/creatory/creatory/internal/repository/memory"
)

// MemoryKnowledgeRepository keeps sources, chunks and concepts in memory.
type MemoryKnowledgeRepository struct {
	mu       sync.Mutex
	sources  *memstore.Store[*creatory.KnowledgeSource]
	chunks   map[string][]*creatory.KnowledgeChunk // by source, index order
	concepts *memstore.Store[*creatory.ConceptNode]
}

func NewMemoryKnowledgeRepository() *MemoryKnowledgeRepository {
	return &MemoryKnowledgeRepository{
		sources:  memstore.New(func(s *creatory.KnowledgeSource) string { return s.ID }),
		chunks:   make(map[string][]*creatory.KnowledgeChunk),
		concepts: memstore.New(func(c *creatory.ConceptNode) string { return c.ID }),
	}
}

func (r *MemoryKnowledgeRepository) CreateSource(ctx context.Context, s *creatory.KnowledgeSource) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.sources.Insert(ctx, s, nil); err != nil {
		return mapErr(err, "source", s.ID)
	}
	return nil
}

func (r *MemoryKnowledgeRepository) GetSource(ctx context.Context, id string) (*creatory.KnowledgeSource, error) {
	s, err := r.sources.Get(ctx, id)
	return s, mapErr(err, "source", id)
}

func (r *MemoryKnowledgeRepository) ListSources(ctx context.Context, workspaceID string, page creatory.Page) ([]*creatory.KnowledgeSource, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return paginate(r.workspaceSources(ctx, workspaceID), page), nil
}

// workspaceSources lists sources newest first, ties by id, matching the
// Postgres ORDER BY. Callers hold mu.
func (r *MemoryKnowledgeRepository) workspaceSources(ctx context.Context, workspaceID string) []*creatory.KnowledgeSource {
	out, _ := r.sources.Filter(ctx, func(s *creatory.KnowledgeSource) bool { return s.WorkspaceID == workspaceID })
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (r *MemoryKnowledgeRepository) AppendChunks(ctx context.Context, sourceID string, chunks []*creatory.KnowledgeChunk) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.sources.Has(ctx, sourceID) {
		return mapErr(memstore.ErrNotFound, "source", sourceID)
	}
	existing := r.chunks[sourceID]
	next := 0
	if n := len(existing); n > 0 {
		next = existing[n-1].ChunkIndex + 1
	}
	for i, c := range chunks {
		c.SourceID = sourceID
		c.ChunkIndex = next + i
		stored := *c
		existing = append(existing, &stored)
	}
	r.chunks[sourceID] = existing
	return nil
}

func (r *MemoryKnowledgeRepository) ListChunks(_ context.Context, sourceID string, page creatory.Page) ([]*creatory.KnowledgeChunk, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	all := r.chunks[sourceID]
	out := make([]*creatory.KnowledgeChunk, len(all))
	copy(out, all)
	return paginate(out, page), nil
}

func (r *MemoryKnowledgeRepository) UpsertConcept(ctx context.Context, c *creatory.ConceptNode) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, err := r.concepts.Find(ctx, func(e *creatory.ConceptNode) bool {
		return e.WorkspaceID == c.WorkspaceID && e.ConceptKey == c.ConceptKey
	})
	if err == nil {
		c.ID = existing.ID
		c.CreatedAt = existing.CreatedAt
	}
	stored := *c
	return r.concepts.Set(ctx, &stored)
}

func (r *MemoryKnowledgeRepository) ListConcepts(ctx context.Context, workspaceID string, page creatory.Page) ([]*creatory.ConceptNode, error) {
	out, _ := r.concepts.Filter(ctx, func(c *creatory.ConceptNode) bool { return c.WorkspaceID == workspaceID })
	sort.Slice(out, func(i, j int) bool { return out[i].ConceptKey < out[j].ConceptKey })
	return paginate(out, page), nil
}

func (r *MemoryKnowledgeRepository) Concepts(ctx context.Context, workspaceID string, limit int) ([]creatory.ConceptNode, error) {
	all, _ := r.concepts.Filter(ctx, func(c *creatory.ConceptNode) bool { return c.WorkspaceID == workspaceID })
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.Before(all[j].CreatedAt)
		}
		return all[i].ConceptKey < all[j].ConceptKey
	})
	if len(all) > limit {
		all = all[:limit]
	}
	out := make([]creatory.ConceptNode, len(all))
	for i, c := range all {
		out[i] = *c
	}
	return out, nil
}

func (r *MemoryKnowledgeRepository) RetrievalChunks(ctx context.Context, workspaceID string, limit int) ([]creatory.RetrievalChunk, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []creatory.RetrievalChunk
	for _, s := range r.workspaceSources(ctx, workspaceID) {
		for _, c := range r.chunks[s.ID] {
			if len(out) >= limit {
				return out, nil
			}
			out = append(out, creatory.RetrievalChunk{
				ChunkID:     c.ID,
				SourceID:    s.ID,
				SourceTitle: s.Title,
				Content:     c.Content,
				ChunkIndex:  c.ChunkIndex,
			})
		}
	}
	return out, nil
}
