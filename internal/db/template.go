package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/creatory/creatory/internal/creatory"
)

const templateColumns = `id, workspace_id, name, description, version, definition_json, is_published, created_by, created_at, updated_at`

// CreateTemplate stores a template with all of its nodes and edges in one
// transaction.
func (d *DB) CreateTemplate(ctx context.Context, t *creatory.Template) error {
	return d.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO workflow_templates (`+templateColumns+`)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			t.ID, t.WorkspaceID, t.Name, t.Description, t.Version,
			encodeJSON(t.Definition), t.IsPublished, t.CreatedBy, t.CreatedAt, t.UpdatedAt,
		)
		if err != nil {
			return wrap("insert template", err)
		}
		for _, n := range t.Nodes {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO workflow_nodes (id, template_id, node_key, node_type, config_json, position_x, position_y)
				 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
				n.ID, t.ID, n.Key, string(n.Type), encodeJSON(n.Config), n.PositionX, n.PositionY,
			)
			if err != nil {
				return wrap("insert node", err)
			}
		}
		for _, e := range t.Edges {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO workflow_edges (id, template_id, source_node_key, target_node_key, condition_expr, metadata_json)
				 VALUES ($1, $2, $3, $4, $5, $6)`,
				e.ID, t.ID, e.SourceNodeKey, e.TargetNodeKey, e.ConditionExpr, encodeJSON(e.Metadata),
			)
			if err != nil {
				return wrap("insert edge", err)
			}
		}
		return nil
	})
}

// GetTemplate retrieves a template with nodes in positional order and edges
// ordered by source then target.
func (d *DB) GetTemplate(ctx context.Context, id string) (*creatory.Template, error) {
	t, err := scanTemplate(d.Pool.QueryRowContext(ctx,
		`SELECT `+templateColumns+` FROM workflow_templates WHERE id = $1`, id))
	if err != nil {
		return nil, wrap("get template", err)
	}
	if err := d.loadGraph(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// FindTemplate looks a template up by its natural key.
func (d *DB) FindTemplate(ctx context.Context, workspaceID, name string, version int) (*creatory.Template, error) {
	t, err := scanTemplate(d.Pool.QueryRowContext(ctx,
		`SELECT `+templateColumns+` FROM workflow_templates
		 WHERE workspace_id = $1 AND name = $2 AND version = $3`, workspaceID, name, version))
	if err != nil {
		return nil, wrap("find template", err)
	}
	if err := d.loadGraph(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// ListTemplates returns a workspace's templates, newest first, without
// their graphs.
func (d *DB) ListTemplates(ctx context.Context, workspaceID string, page creatory.Page) ([]*creatory.Template, error) {
	page = clampPage(page)
	rows, err := d.Pool.QueryContext(ctx,
		`SELECT `+templateColumns+` FROM workflow_templates
		 WHERE workspace_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		workspaceID, page.Limit, page.Offset,
	)
	if err != nil {
		return nil, wrap("list templates", err)
	}
	defer rows.Close()

	var out []*creatory.Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTemplate(s scanner) (*creatory.Template, error) {
	t := &creatory.Template{}
	var def []byte
	err := s.Scan(&t.ID, &t.WorkspaceID, &t.Name, &t.Description, &t.Version,
		&def, &t.IsPublished, &t.CreatedBy, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	t.Definition = decodeJSON(def)
	return t, nil
}

func (d *DB) loadGraph(ctx context.Context, t *creatory.Template) error {
	rows, err := d.Pool.QueryContext(ctx,
		`SELECT id, node_key, node_type, config_json, position_x, position_y
		 FROM workflow_nodes WHERE template_id = $1
		 ORDER BY position_x ASC NULLS LAST, node_key ASC`, t.ID)
	if err != nil {
		return wrap("list nodes", err)
	}
	defer rows.Close()

	t.Nodes = []creatory.Node{}
	for rows.Next() {
		var (
			n      creatory.Node
			typ    string
			config []byte
			x, y   sql.NullFloat64
		)
		if err := rows.Scan(&n.ID, &n.Key, &typ, &config, &x, &y); err != nil {
			return fmt.Errorf("scan node: %w", err)
		}
		n.TemplateID = t.ID
		n.Type = creatory.NodeType(typ)
		n.Config = decodeJSON(config)
		if x.Valid {
			n.PositionX = creatory.Float(x.Float64)
		}
		if y.Valid {
			n.PositionY = creatory.Float(y.Float64)
		}
		t.Nodes = append(t.Nodes, n)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("list nodes: %w", err)
	}

	erows, err := d.Pool.QueryContext(ctx,
		`SELECT id, source_node_key, target_node_key, condition_expr, metadata_json
		 FROM workflow_edges WHERE template_id = $1
		 ORDER BY source_node_key ASC, target_node_key ASC`, t.ID)
	if err != nil {
		return wrap("list edges", err)
	}
	defer erows.Close()

	t.Edges = []creatory.Edge{}
	for erows.Next() {
		var (
			e    creatory.Edge
			meta []byte
		)
		if err := erows.Scan(&e.ID, &e.SourceNodeKey, &e.TargetNodeKey, &e.ConditionExpr, &meta); err != nil {
			return fmt.Errorf("scan edge: %w", err)
		}
		e.TemplateID = t.ID
		e.Metadata = decodeJSON(meta)
		t.Edges = append(t.Edges, e)
	}
	return erows.Err()
}
