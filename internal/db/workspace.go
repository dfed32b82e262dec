package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/creatory/creatory/internal/creatory"
)

// CreateWorkspace stores a workspace together with its owner's membership.
func (d *DB) CreateWorkspace(ctx context.Context, ws *creatory.Workspace, owner *creatory.Membership) error {
	return d.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO workspaces (id, name, slug, owner_id, created_at) VALUES ($1, $2, $3, $4, $5)`,
			ws.ID, ws.Name, ws.Slug, ws.OwnerID, ws.CreatedAt,
		)
		if err != nil {
			return wrap("insert workspace", err)
		}
		return wrap("insert membership", insertMembership(ctx, tx, owner))
	})
}

// GetWorkspace retrieves a workspace by ID.
func (d *DB) GetWorkspace(ctx context.Context, id string) (*creatory.Workspace, error) {
	ws := &creatory.Workspace{}
	err := d.Pool.QueryRowContext(ctx,
		`SELECT id, name, slug, owner_id, created_at FROM workspaces WHERE id = $1`, id,
	).Scan(&ws.ID, &ws.Name, &ws.Slug, &ws.OwnerID, &ws.CreatedAt)
	if err != nil {
		return nil, wrap("get workspace", err)
	}
	return ws, nil
}

// ListUserWorkspaces returns the workspaces userID belongs to, oldest first.
func (d *DB) ListUserWorkspaces(ctx context.Context, userID string) ([]*creatory.Workspace, error) {
	rows, err := d.Pool.QueryContext(ctx,
		`SELECT w.id, w.name, w.slug, w.owner_id, w.created_at
		 FROM workspaces w JOIN workspace_memberships m ON m.workspace_id = w.id
		 WHERE m.user_id = $1 ORDER BY w.created_at ASC`, userID,
	)
	if err != nil {
		return nil, wrap("list workspaces", err)
	}
	defer rows.Close()

	var out []*creatory.Workspace
	for rows.Next() {
		ws := &creatory.Workspace{}
		if err := rows.Scan(&ws.ID, &ws.Name, &ws.Slug, &ws.OwnerID, &ws.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan workspace: %w", err)
		}
		out = append(out, ws)
	}
	return out, rows.Err()
}

// GetMembership returns userID's membership in workspaceID.
func (d *DB) GetMembership(ctx context.Context, workspaceID, userID string) (*creatory.Membership, error) {
	m := &creatory.Membership{}
	var role string
	err := d.Pool.QueryRowContext(ctx,
		`SELECT id, workspace_id, user_id, role, created_at
		 FROM workspace_memberships WHERE workspace_id = $1 AND user_id = $2`, workspaceID, userID,
	).Scan(&m.ID, &m.WorkspaceID, &m.UserID, &role, &m.CreatedAt)
	if err != nil {
		return nil, wrap("get membership", err)
	}
	m.Role = creatory.MembershipRole(role)
	return m, nil
}

// AddMembership grants a user a role in a workspace.
func (d *DB) AddMembership(ctx context.Context, m *creatory.Membership) error {
	return wrap("insert membership", insertMembership(ctx, d.Pool, m))
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertMembership(ctx context.Context, x execer, m *creatory.Membership) error {
	_, err := x.ExecContext(ctx,
		`INSERT INTO workspace_memberships (id, workspace_id, user_id, role, created_at) VALUES ($1, $2, $3, $4, $5)`,
		m.ID, m.WorkspaceID, m.UserID, string(m.Role), m.CreatedAt,
	)
	return err
}

// CreateConversation stores a new conversation.
func (d *DB) CreateConversation(ctx context.Context, c *creatory.Conversation) error {
	_, err := d.Pool.ExecContext(ctx,
		`INSERT INTO conversations (id, workspace_id, title, created_by, created_at) VALUES ($1, $2, $3, $4, $5)`,
		c.ID, c.WorkspaceID, c.Title, c.CreatedBy, c.CreatedAt,
	)
	return wrap("insert conversation", err)
}

// GetConversation retrieves a conversation by ID.
func (d *DB) GetConversation(ctx context.Context, id string) (*creatory.Conversation, error) {
	c := &creatory.Conversation{}
	err := d.Pool.QueryRowContext(ctx,
		`SELECT id, workspace_id, title, created_by, created_at FROM conversations WHERE id = $1`, id,
	).Scan(&c.ID, &c.WorkspaceID, &c.Title, &c.CreatedBy, &c.CreatedAt)
	if err != nil {
		return nil, wrap("get conversation", err)
	}
	return c, nil
}

// ListConversations returns a workspace's conversations, newest first.
func (d *DB) ListConversations(ctx context.Context, workspaceID string, page creatory.Page) ([]*creatory.Conversation, error) {
	page = clampPage(page)
	rows, err := d.Pool.QueryContext(ctx,
		`SELECT id, workspace_id, title, created_by, created_at FROM conversations
		 WHERE workspace_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		workspaceID, page.Limit, page.Offset,
	)
	if err != nil {
		return nil, wrap("list conversations", err)
	}
	defer rows.Close()

	var out []*creatory.Conversation
	for rows.Next() {
		c := &creatory.Conversation{}
		if err := rows.Scan(&c.ID, &c.WorkspaceID, &c.Title, &c.CreatedBy, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
