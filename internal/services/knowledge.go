package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/creatory/creatory/internal/creatory"
	"github.com/creatory/creatory/internal/rag"
	"github.com/creatory/creatory/internal/repository"
)

var errSourceNotFound = creatory.Errorf(creatory.ErrNotFound, "Knowledge source not found")

// Retriever ranks workspace knowledge against a query.
type Retriever interface {
	Retrieve(ctx context.Context, workspaceID, query string, topK int) ([]creatory.RetrievedContext, error)
}

// Citation is one numbered reference in a query answer.
type Citation struct {
	Index       int     `json:"index"`
	ChunkID     string  `json:"chunk_id"`
	SourceID    string  `json:"source_id"`
	SourceTitle string  `json:"source_title,omitempty"`
	Score       float64 `json:"score"`
	Content     string  `json:"content"`
}

// QueryResult is the answer to a knowledge query.
type QueryResult struct {
	Query         string     `json:"query"`
	AnswerPreview string     `json:"answer_preview"`
	Citations     []Citation `json:"citations"`
}

// KnowledgeService manages sources, chunks and concepts and answers queries.
type KnowledgeService struct {
	repo      repository.KnowledgeRepository
	access    *Access
	retriever Retriever
	chunkSize int
}

func NewKnowledgeService(repo repository.KnowledgeRepository, access *Access, retriever Retriever, chunkSize int) *KnowledgeService {
	if chunkSize <= 0 {
		chunkSize = rag.DefaultChunkRunes
	}
	return &KnowledgeService{repo: repo, access: access, retriever: retriever, chunkSize: chunkSize}
}

// CreateSource registers a source. Sources are ready as soon as they exist.
func (s *KnowledgeService) CreateSource(ctx context.Context, userID string, src *creatory.KnowledgeSource) (*creatory.KnowledgeSource, error) {
	if src.WorkspaceID == "" {
		return nil, creatory.Errorf(creatory.ErrInvalid, "workspace_id is required")
	}
	if _, err := s.access.EnsureWorkspaceMember(ctx, src.WorkspaceID, userID); err != nil {
		return nil, err
	}
	if !src.SourceType.Valid() {
		return nil, creatory.Errorf(creatory.ErrInvalid, "unknown source_type %q", src.SourceType)
	}

	src.ID = creatory.NewID()
	src.IngestStatus = "ready"
	src.CreatedBy = userID
	src.CreatedAt = time.Now().UTC()
	if src.Metadata == nil {
		src.Metadata = map[string]any{}
	}
	if err := s.repo.CreateSource(ctx, src); err != nil {
		return nil, fmt.Errorf("create source: %w", err)
	}
	return src, nil
}

// ListSources pages through a workspace's sources, newest first.
func (s *KnowledgeService) ListSources(ctx context.Context, userID, workspaceID string, page creatory.Page) ([]*creatory.KnowledgeSource, error) {
	if _, err := s.access.EnsureWorkspaceMember(ctx, workspaceID, userID); err != nil {
		return nil, err
	}
	return s.repo.ListSources(ctx, workspaceID, ClampPage(page))
}

// AddChunk appends one chunk after the source's current last index.
func (s *KnowledgeService) AddChunk(ctx context.Context, userID, sourceID string, chunk *creatory.KnowledgeChunk) (*creatory.KnowledgeChunk, error) {
	if strings.TrimSpace(chunk.Content) == "" {
		return nil, creatory.Errorf(creatory.ErrInvalid, "content is required")
	}
	if _, err := s.authorizedSource(ctx, userID, sourceID); err != nil {
		return nil, err
	}
	if err := s.appendChunks(ctx, sourceID, []*creatory.KnowledgeChunk{chunk}); err != nil {
		return nil, err
	}
	return chunk, nil
}

// Ingest extracts text from body, splits it and appends the pieces as chunks.
func (s *KnowledgeService) Ingest(ctx context.Context, userID, sourceID, contentType, body string) ([]*creatory.KnowledgeChunk, error) {
	if _, err := s.authorizedSource(ctx, userID, sourceID); err != nil {
		return nil, err
	}
	text, err := rag.ExtractText(contentType, body)
	if err != nil {
		return nil, creatory.Errorf(creatory.ErrInvalid, "could not read body: %v", err)
	}
	pieces := rag.SplitText(text, s.chunkSize)
	if len(pieces) == 0 {
		return nil, creatory.Errorf(creatory.ErrInvalid, "body contains no text")
	}

	chunks := make([]*creatory.KnowledgeChunk, len(pieces))
	for i, p := range pieces {
		chunks[i] = &creatory.KnowledgeChunk{
			Content:  p,
			Metadata: map[string]any{"content_type": contentType},
		}
	}
	if err := s.appendChunks(ctx, sourceID, chunks); err != nil {
		return nil, err
	}
	return chunks, nil
}

// ListChunks pages through a source's chunks by index. The limit defaults
// to 100 and is capped at 500.
func (s *KnowledgeService) ListChunks(ctx context.Context, userID, sourceID string, page creatory.Page) ([]*creatory.KnowledgeChunk, error) {
	if _, err := s.authorizedSource(ctx, userID, sourceID); err != nil {
		return nil, err
	}
	if page.Limit <= 0 {
		page.Limit = 100
	}
	page.Limit = min(page.Limit, 500)
	page.Offset = max(page.Offset, 0)
	return s.repo.ListChunks(ctx, sourceID, page)
}

// UpsertConcept creates or updates the concept with c.ConceptKey.
func (s *KnowledgeService) UpsertConcept(ctx context.Context, userID string, c *creatory.ConceptNode) (*creatory.ConceptNode, error) {
	if c.WorkspaceID == "" {
		return nil, creatory.Errorf(creatory.ErrInvalid, "workspace_id is required")
	}
	if _, err := s.access.EnsureWorkspaceMember(ctx, c.WorkspaceID, userID); err != nil {
		return nil, err
	}
	c.ConceptKey = strings.ToLower(strings.TrimSpace(c.ConceptKey))
	c.Label = strings.TrimSpace(c.Label)
	if c.ConceptKey == "" || c.Label == "" {
		return nil, creatory.Errorf(creatory.ErrInvalid, "concept_key and label are required")
	}
	if c.NodeType == "" {
		c.NodeType = "concept"
	}
	if c.Metadata == nil {
		c.Metadata = map[string]any{}
	}
	c.ID = creatory.NewID()
	c.CreatedAt = time.Now().UTC()
	if err := s.repo.UpsertConcept(ctx, c); err != nil {
		return nil, fmt.Errorf("upsert concept: %w", err)
	}
	return c, nil
}

// ListConcepts pages through a workspace's concepts by key.
func (s *KnowledgeService) ListConcepts(ctx context.Context, userID, workspaceID string, page creatory.Page) ([]*creatory.ConceptNode, error) {
	if _, err := s.access.EnsureWorkspaceMember(ctx, workspaceID, userID); err != nil {
		return nil, err
	}
	return s.repo.ListConcepts(ctx, workspaceID, ClampPage(page))
}

// Query retrieves cited context for query. topK must be within 1-20; callers
// substitute rag.DefaultTopK when the client omits it. A whitespace-only
// query yields no citations and the no-evidence preview.
func (s *KnowledgeService) Query(ctx context.Context, userID, workspaceID, query string, topK int) (*QueryResult, error) {
	if _, err := s.access.EnsureWorkspaceMember(ctx, workspaceID, userID); err != nil {
		return nil, err
	}
	if query == "" {
		return nil, creatory.Errorf(creatory.ErrInvalid, "query is required")
	}
	if topK < 1 || topK > 20 {
		return nil, creatory.Errorf(creatory.ErrInvalid, "top_k must be between 1 and 20")
	}

	contexts, err := s.retriever.Retrieve(ctx, workspaceID, query, topK)
	if err != nil {
		return nil, fmt.Errorf("retrieve: %w", err)
	}
	citations := make([]Citation, len(contexts))
	for i, c := range contexts {
		citations[i] = Citation{
			Index:       c.Citation,
			ChunkID:     c.ChunkID,
			SourceID:    c.SourceID,
			SourceTitle: c.SourceTitle,
			Score:       c.Score,
			Content:     c.Content,
		}
	}
	return &QueryResult{
		Query:         query,
		AnswerPreview: rag.RenderCitedAnswer(query, contexts),
		Citations:     citations,
	}, nil
}

func (s *KnowledgeService) authorizedSource(ctx context.Context, userID, sourceID string) (*creatory.KnowledgeSource, error) {
	src, err := s.repo.GetSource(ctx, sourceID)
	if errors.Is(err, creatory.ErrNotFound) {
		return nil, errSourceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get source: %w", err)
	}
	if _, err := s.access.EnsureWorkspaceMember(ctx, src.WorkspaceID, userID); err != nil {
		return nil, err
	}
	return src, nil
}

func (s *KnowledgeService) appendChunks(ctx context.Context, sourceID string, chunks []*creatory.KnowledgeChunk) error {
	now := time.Now().UTC()
	for _, c := range chunks {
		c.ID = creatory.NewID()
		c.SourceID = sourceID
		c.CreatedAt = now
		if c.Metadata == nil {
			c.Metadata = map[string]any{}
		}
	}
	if err := s.repo.AppendChunks(ctx, sourceID, chunks); err != nil {
		return fmt.Errorf("append chunks: %w", notFound(err, "Knowledge source"))
	}
	return nil
}
