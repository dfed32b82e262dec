// Package rag ranks workspace knowledge against a query and renders cited
// previews of the result.
package rag

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/creatory/creatory/internal/creatory"
	"golang.org/x/sync/errgroup"
)

const (
	// ChunkWindow caps how many chunks are scored per query.
	ChunkWindow = 200
	// ConceptWindow caps how many concepts feed the bonus.
	ConceptWindow = 400
	DefaultTopK   = 5
)

// Corpus is the read side of the knowledge store.
type Corpus interface {
	// RetrievalChunks returns up to limit chunks of the workspace, newest
	// source first and by chunk index within a source.
	RetrievalChunks(ctx context.Context, workspaceID string, limit int) ([]creatory.RetrievalChunk, error)
	Concepts(ctx context.Context, workspaceID string, limit int) ([]creatory.ConceptNode, error)
}

// Observer receives the size of each result set. Optional.
type Observer interface {
	ObserveRetrieval(results int)
}

// Retriever combines lexical chunk scoring with a workspace-wide concept
// bonus.
type Retriever struct {
	corpus   Corpus
	observer Observer
}

func NewRetriever(corpus Corpus) *Retriever {
	return &Retriever{corpus: corpus}
}

// SetObserver configures the result-size observer.
func (r *Retriever) SetObserver(o Observer) {
	r.observer = o
}

// Retrieve returns at most topK contexts ordered by descending score, with
// citations numbered from 1. Ties keep the corpus order.
func (r *Retriever) Retrieve(ctx context.Context, workspaceID, query string, topK int) ([]creatory.RetrievedContext, error) {
	normalized := strings.ToLower(strings.TrimSpace(query))
	if normalized == "" {
		return []creatory.RetrievedContext{}, nil
	}
	if topK <= 0 {
		topK = DefaultTopK
	}
	tokens := Tokens(normalized)

	var (
		chunks   []creatory.RetrievalChunk
		concepts []creatory.ConceptNode
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		chunks, err = r.corpus.RetrievalChunks(gctx, workspaceID, ChunkWindow)
		if err != nil {
			return fmt.Errorf("load chunks: %w", err)
		}
		return nil
	})
	if len(tokens) > 0 {
		g.Go(func() error {
			var err error
			concepts, err = r.corpus.Concepts(gctx, workspaceID, ConceptWindow)
			if err != nil {
				return fmt.Errorf("load concepts: %w", err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	bonus := ConceptBonus(tokens, concepts)
	scored := make([]creatory.RetrievedContext, 0, len(chunks))
	for _, c := range chunks {
		score := ChunkScore(tokens, c.Content) + bonus
		if score <= 0 {
			continue
		}
		scored = append(scored, creatory.RetrievedContext{
			ChunkID:     c.ChunkID,
			SourceID:    c.SourceID,
			SourceTitle: c.SourceTitle,
			Content:     c.Content,
			Score:       score,
		})
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if len(scored) > topK {
		scored = scored[:topK]
	}
	for i := range scored {
		scored[i].Citation = i + 1
	}
	if r.observer != nil {
		r.observer.ObserveRetrieval(len(scored))
	}
	return scored, nil
}
