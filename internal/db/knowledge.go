package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/creatory/creatory/internal/creatory"
)

const sourceColumns = `id, workspace_id, source_type, title, uri, metadata_json, ingest_status, created_by, created_at`

// CreateSource stores a new knowledge source.
func (d *DB) CreateSource(ctx context.Context, s *creatory.KnowledgeSource) error {
	_, err := d.Pool.ExecContext(ctx,
		`INSERT INTO knowledge_sources (`+sourceColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		s.ID, s.WorkspaceID, string(s.SourceType), s.Title, s.URI,
		encodeJSON(s.Metadata), s.IngestStatus, s.CreatedBy, s.CreatedAt,
	)
	return wrap("insert source", err)
}

// GetSource retrieves a knowledge source by ID.
func (d *DB) GetSource(ctx context.Context, id string) (*creatory.KnowledgeSource, error) {
	s, err := scanSource(d.Pool.QueryRowContext(ctx,
		`SELECT `+sourceColumns+` FROM knowledge_sources WHERE id = $1`, id))
	if err != nil {
		return nil, wrap("get source", err)
	}
	return s, nil
}

// ListSources returns a workspace's sources, newest first.
func (d *DB) ListSources(ctx context.Context, workspaceID string, page creatory.Page) ([]*creatory.KnowledgeSource, error) {
	page = clampPage(page)
	rows, err := d.Pool.QueryContext(ctx,
		`SELECT `+sourceColumns+` FROM knowledge_sources
		 WHERE workspace_id = $1 ORDER BY created_at DESC, id ASC LIMIT $2 OFFSET $3`,
		workspaceID, page.Limit, page.Offset,
	)
	if err != nil {
		return nil, wrap("list sources", err)
	}
	defer rows.Close()

	var out []*creatory.KnowledgeSource
	for rows.Next() {
		s, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func scanSource(s scanner) (*creatory.KnowledgeSource, error) {
	var (
		src  creatory.KnowledgeSource
		typ  string
		meta []byte
	)
	err := s.Scan(&src.ID, &src.WorkspaceID, &typ, &src.Title, &src.URI,
		&meta, &src.IngestStatus, &src.CreatedBy, &src.CreatedAt)
	if err != nil {
		return nil, err
	}
	src.SourceType = creatory.SourceType(typ)
	src.Metadata = decodeJSON(meta)
	return &src, nil
}

// AppendChunks assigns the next free chunk indices of sourceID to chunks and
// stores them. The source row is locked so concurrent appends do not collide.
func (d *DB) AppendChunks(ctx context.Context, sourceID string, chunks []*creatory.KnowledgeChunk) error {
	return d.withTx(ctx, func(tx *sql.Tx) error {
		var locked string
		err := tx.QueryRowContext(ctx,
			`SELECT id FROM knowledge_sources WHERE id = $1 FOR UPDATE`, sourceID,
		).Scan(&locked)
		if err != nil {
			return wrap("lock source", err)
		}

		var next int
		err = tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(chunk_index), -1) + 1 FROM knowledge_chunks WHERE source_id = $1`, sourceID,
		).Scan(&next)
		if err != nil {
			return wrap("next chunk index", err)
		}

		for i, c := range chunks {
			c.SourceID = sourceID
			c.ChunkIndex = next + i
			_, err := tx.ExecContext(ctx,
				`INSERT INTO knowledge_chunks (id, source_id, chunk_index, content, token_count, metadata_json, created_at)
				 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
				c.ID, sourceID, c.ChunkIndex, c.Content, c.TokenCount, encodeJSON(c.Metadata), c.CreatedAt,
			)
			if err != nil {
				return wrap("insert chunk", err)
			}
		}
		return nil
	})
}

// ListChunks returns a source's chunks by index.
func (d *DB) ListChunks(ctx context.Context, sourceID string, page creatory.Page) ([]*creatory.KnowledgeChunk, error) {
	page = clampPage(page)
	rows, err := d.Pool.QueryContext(ctx,
		`SELECT id, chunk_index, content, token_count, metadata_json, created_at
		 FROM knowledge_chunks WHERE source_id = $1 ORDER BY chunk_index ASC LIMIT $2 OFFSET $3`,
		sourceID, page.Limit, page.Offset,
	)
	if err != nil {
		return nil, wrap("list chunks", err)
	}
	defer rows.Close()

	var out []*creatory.KnowledgeChunk
	for rows.Next() {
		var (
			c      creatory.KnowledgeChunk
			tokens sql.NullInt64
			meta   []byte
		)
		if err := rows.Scan(&c.ID, &c.ChunkIndex, &c.Content, &tokens, &meta, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		c.SourceID = sourceID
		if tokens.Valid {
			n := int(tokens.Int64)
			c.TokenCount = &n
		}
		c.Metadata = decodeJSON(meta)
		out = append(out, &c)
	}
	return out, rows.Err()
}

// UpsertConcept inserts a concept or refreshes the one with the same key.
// On return c carries the stored ID and creation time.
func (d *DB) UpsertConcept(ctx context.Context, c *creatory.ConceptNode) error {
	err := d.Pool.QueryRowContext(ctx,
		`INSERT INTO concept_nodes (id, workspace_id, concept_key, label, node_type, metadata_json, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (workspace_id, concept_key) DO UPDATE SET
		   label = EXCLUDED.label,
		   node_type = EXCLUDED.node_type,
		   metadata_json = EXCLUDED.metadata_json
		 RETURNING id, created_at`,
		c.ID, c.WorkspaceID, c.ConceptKey, c.Label, c.NodeType, encodeJSON(c.Metadata), c.CreatedAt,
	).Scan(&c.ID, &c.CreatedAt)
	return wrap("upsert concept", err)
}

// ListConcepts returns a workspace's concepts ordered by key.
func (d *DB) ListConcepts(ctx context.Context, workspaceID string, page creatory.Page) ([]*creatory.ConceptNode, error) {
	page = clampPage(page)
	return d.queryConcepts(ctx,
		`SELECT id, workspace_id, concept_key, label, node_type, metadata_json, created_at
		 FROM concept_nodes WHERE workspace_id = $1 ORDER BY concept_key ASC LIMIT $2 OFFSET $3`,
		workspaceID, page.Limit, page.Offset)
}

// Concepts returns up to limit concepts for retrieval scoring.
func (d *DB) Concepts(ctx context.Context, workspaceID string, limit int) ([]creatory.ConceptNode, error) {
	ptrs, err := d.queryConcepts(ctx,
		`SELECT id, workspace_id, concept_key, label, node_type, metadata_json, created_at
		 FROM concept_nodes WHERE workspace_id = $1 ORDER BY created_at ASC LIMIT $2`,
		workspaceID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]creatory.ConceptNode, len(ptrs))
	for i, c := range ptrs {
		out[i] = *c
	}
	return out, nil
}

func (d *DB) queryConcepts(ctx context.Context, query string, args ...any) ([]*creatory.ConceptNode, error) {
	rows, err := d.Pool.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrap("list concepts", err)
	}
	defer rows.Close()

	var out []*creatory.ConceptNode
	for rows.Next() {
		var (
			c    creatory.ConceptNode
			meta []byte
		)
		if err := rows.Scan(&c.ID, &c.WorkspaceID, &c.ConceptKey, &c.Label, &c.NodeType, &meta, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan concept: %w", err)
		}
		c.Metadata = decodeJSON(meta)
		out = append(out, &c)
	}
	return out, rows.Err()
}

// RetrievalChunks returns up to limit chunks of a workspace, newest source
// first (ties by source id) and by chunk index within a source.
func (d *DB) RetrievalChunks(ctx context.Context, workspaceID string, limit int) ([]creatory.RetrievalChunk, error) {
	rows, err := d.Pool.QueryContext(ctx,
		`SELECT c.id, s.id, s.title, c.content, c.chunk_index
		 FROM knowledge_chunks c JOIN knowledge_sources s ON s.id = c.source_id
		 WHERE s.workspace_id = $1
		 ORDER BY s.created_at DESC, s.id ASC, c.chunk_index ASC
		 LIMIT $2`, workspaceID, limit)
	if err != nil {
		return nil, wrap("load retrieval chunks", err)
	}
	defer rows.Close()

	var out []creatory.RetrievalChunk
	for rows.Next() {
		var c creatory.RetrievalChunk
		if err := rows.Scan(&c.ChunkID, &c.SourceID, &c.SourceTitle, &c.Content, &c.ChunkIndex); err != nil {
			return nil, fmt.Errorf("scan retrieval chunk: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
