package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/creatory/creatory/internal/creatory"
)

const agentColumns = `id, workspace_id, name, slug, description, persona_prompt, config_json, is_system, created_at`

// CreateAgent stores a new agent.
func (d *DB) CreateAgent(ctx context.Context, a *creatory.Agent) error {
	_, err := d.Pool.ExecContext(ctx,
		`INSERT INTO agents (`+agentColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		a.ID, a.WorkspaceID, a.Name, a.Slug, a.Description, a.PersonaPrompt,
		encodeJSON(a.Config), a.IsSystem, a.CreatedAt,
	)
	return wrap("insert agent", err)
}

// GetAgent retrieves an agent by ID.
func (d *DB) GetAgent(ctx context.Context, id string) (*creatory.Agent, error) {
	a, err := scanAgent(d.Pool.QueryRowContext(ctx,
		`SELECT `+agentColumns+` FROM agents WHERE id = $1`, id))
	if err != nil {
		return nil, wrap("get agent", err)
	}
	return a, nil
}

// FindAgentBySlug looks up a workspace agent by slug.
func (d *DB) FindAgentBySlug(ctx context.Context, workspaceID, slug string) (*creatory.Agent, error) {
	a, err := scanAgent(d.Pool.QueryRowContext(ctx,
		`SELECT `+agentColumns+` FROM agents WHERE workspace_id = $1 AND slug = $2`, workspaceID, slug))
	if err != nil {
		return nil, wrap("find agent", err)
	}
	return a, nil
}

// ListAgents returns the agents of a workspace ordered by name. With
// includeSystem, global system agents are listed too.
func (d *DB) ListAgents(ctx context.Context, workspaceID string, includeSystem bool, page creatory.Page) ([]*creatory.Agent, error) {
	page = clampPage(page)
	rows, err := d.Pool.QueryContext(ctx,
		`SELECT `+agentColumns+` FROM agents
		 WHERE workspace_id = $1 OR ($2 AND workspace_id IS NULL AND is_system)
		 ORDER BY name ASC LIMIT $3 OFFSET $4`,
		workspaceID, includeSystem, page.Limit, page.Offset,
	)
	if err != nil {
		return nil, wrap("list agents", err)
	}
	defer rows.Close()

	var out []*creatory.Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan agent: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanAgent(s scanner) (*creatory.Agent, error) {
	var (
		a      creatory.Agent
		ws     sql.NullString
		config []byte
	)
	err := s.Scan(&a.ID, &ws, &a.Name, &a.Slug, &a.Description, &a.PersonaPrompt, &config, &a.IsSystem, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	if ws.Valid {
		a.WorkspaceID = &ws.String
	}
	a.Config = decodeJSON(config)
	return &a, nil
}
