package repository

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/creatory/creatory/internal/creatory"
	memstore "github.com/creatory/creatory/internal/repository/memory"
)

// Memory is a Store kept entirely in process memory. It backs the server
// when no database URL is configured, and the tests.
type Memory struct {
	*MemoryWorkspaceRepository
	*MemoryTemplateRepository
	*MemoryRunRepository
	*MemoryKnowledgeRepository
	*MemoryAgentRepository
	*MemoryMCPRepository
}

var _ Store = (*Memory)(nil)

// NewMemory creates an empty in-memory Store.
func NewMemory() *Memory {
	return &Memory{
		MemoryWorkspaceRepository: NewMemoryWorkspaceRepository(),
		MemoryTemplateRepository:  NewMemoryTemplateRepository(),
		MemoryRunRepository:       NewMemoryRunRepository(),
		MemoryKnowledgeRepository: NewMemoryKnowledgeRepository(),
		MemoryAgentRepository:     NewMemoryAgentRepository(),
		MemoryMCPRepository:       NewMemoryMCPRepository(),
	}
}

// mapErr translates store errors into domain sentinels.
func mapErr(err error, what, key string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, memstore.ErrNotFound):
		return fmt.Errorf("%s %s: %w", what, key, creatory.ErrNotFound)
	case errors.Is(err, memstore.ErrExists):
		return fmt.Errorf("%s %s: %w", what, key, creatory.ErrConflict)
	}
	return err
}

// paginate applies page to items, defaulting the limit to 50.
func paginate[T any](items []T, page creatory.Page) []T {
	limit := page.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := max(page.Offset, 0)
	if offset >= len(items) {
		return nil
	}
	end := min(offset+limit, len(items))
	return items[offset:end]
}

// newestFirst sorts by creation time descending, falling back to id so
// equal timestamps list deterministically.
func newestFirst[T any](items []T, created func(T) time.Time, id func(T) string) {
	sort.SliceStable(items, func(i, j int) bool {
		ci, cj := created(items[i]), created(items[j])
		if !ci.Equal(cj) {
			return ci.After(cj)
		}
		return id(items[i]) < id(items[j])
	})
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

// cloneValue copies the nested maps and slices decoded JSON can hold.
func cloneValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		return cloneMap(x)
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = cloneValue(e)
		}
		return out
	}
	return v
}
