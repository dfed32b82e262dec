package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/creatory/creatory/internal/creatory"
)

const serverColumns = `id, workspace_id, name, transport, endpoint, auth_config, is_active, created_at`

// CreateServer stores a new MCP server. Only the sealed auth config is
// written.
func (d *DB) CreateServer(ctx context.Context, s *creatory.MCPServer) error {
	_, err := d.Pool.ExecContext(ctx,
		`INSERT INTO mcp_servers (`+serverColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		s.ID, s.WorkspaceID, s.Name, string(s.Transport), s.Endpoint, s.SealedAuth, s.IsActive, s.CreatedAt,
	)
	return wrap("insert mcp server", err)
}

// GetServer retrieves an MCP server by ID.
func (d *DB) GetServer(ctx context.Context, id string) (*creatory.MCPServer, error) {
	s, err := scanServer(d.Pool.QueryRowContext(ctx,
		`SELECT `+serverColumns+` FROM mcp_servers WHERE id = $1`, id))
	if err != nil {
		return nil, wrap("get mcp server", err)
	}
	return s, nil
}

// FindServerByName looks up a workspace's MCP server by name.
func (d *DB) FindServerByName(ctx context.Context, workspaceID, name string) (*creatory.MCPServer, error) {
	s, err := scanServer(d.Pool.QueryRowContext(ctx,
		`SELECT `+serverColumns+` FROM mcp_servers WHERE workspace_id = $1 AND name = $2`, workspaceID, name))
	if err != nil {
		return nil, wrap("find mcp server", err)
	}
	return s, nil
}

// ListServers returns a workspace's MCP servers ordered by name.
func (d *DB) ListServers(ctx context.Context, workspaceID string) ([]*creatory.MCPServer, error) {
	rows, err := d.Pool.QueryContext(ctx,
		`SELECT `+serverColumns+` FROM mcp_servers WHERE workspace_id = $1 ORDER BY name ASC`, workspaceID)
	if err != nil {
		return nil, wrap("list mcp servers", err)
	}
	defer rows.Close()

	var out []*creatory.MCPServer
	for rows.Next() {
		s, err := scanServer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan mcp server: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func scanServer(sc scanner) (*creatory.MCPServer, error) {
	var (
		s         creatory.MCPServer
		transport string
	)
	err := sc.Scan(&s.ID, &s.WorkspaceID, &s.Name, &transport, &s.Endpoint, &s.SealedAuth, &s.IsActive, &s.CreatedAt)
	if err != nil {
		return nil, err
	}
	s.Transport = creatory.TransportType(transport)
	return &s, nil
}

// UpsertTools inserts or refreshes the tools a server advertises. On return
// every tool carries its stored ID.
func (d *DB) UpsertTools(ctx context.Context, serverID string, tools []*creatory.MCPTool) error {
	return d.withTx(ctx, func(tx *sql.Tx) error {
		for _, t := range tools {
			t.ServerID = serverID
			err := tx.QueryRowContext(ctx,
				`INSERT INTO mcp_tools (id, server_id, name, description, input_schema, is_enabled, created_at)
				 VALUES ($1, $2, $3, $4, $5, $6, $7)
				 ON CONFLICT (server_id, name) DO UPDATE SET
				   description = EXCLUDED.description,
				   input_schema = EXCLUDED.input_schema
				 RETURNING id, is_enabled, created_at`,
				t.ID, serverID, t.Name, t.Description, encodeJSON(t.InputSchema), t.IsEnabled, t.CreatedAt,
			).Scan(&t.ID, &t.IsEnabled, &t.CreatedAt)
			if err != nil {
				return wrap("upsert mcp tool", err)
			}
		}
		return nil
	})
}

const toolColumns = `id, server_id, name, description, input_schema, is_enabled, created_at`

// ListTools returns a server's tools ordered by name.
func (d *DB) ListTools(ctx context.Context, serverID string) ([]*creatory.MCPTool, error) {
	rows, err := d.Pool.QueryContext(ctx,
		`SELECT `+toolColumns+` FROM mcp_tools WHERE server_id = $1 ORDER BY name ASC`, serverID)
	if err != nil {
		return nil, wrap("list mcp tools", err)
	}
	defer rows.Close()

	var out []*creatory.MCPTool
	for rows.Next() {
		t, err := scanTool(rows)
		if err != nil {
			return nil, fmt.Errorf("scan mcp tool: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// FindTool looks up a server's tool by name.
func (d *DB) FindTool(ctx context.Context, serverID, name string) (*creatory.MCPTool, error) {
	t, err := scanTool(d.Pool.QueryRowContext(ctx,
		`SELECT `+toolColumns+` FROM mcp_tools WHERE server_id = $1 AND name = $2`, serverID, name))
	if err != nil {
		return nil, wrap("find mcp tool", err)
	}
	return t, nil
}

func scanTool(sc scanner) (*creatory.MCPTool, error) {
	var (
		t      creatory.MCPTool
		schema []byte
	)
	if err := sc.Scan(&t.ID, &t.ServerID, &t.Name, &t.Description, &schema, &t.IsEnabled, &t.CreatedAt); err != nil {
		return nil, err
	}
	t.InputSchema = decodeJSON(schema)
	return &t, nil
}

// RecordInvocation appends a tool invocation to the audit log.
func (d *DB) RecordInvocation(ctx context.Context, inv *creatory.ToolInvocation) error {
	var response any
	if inv.Response != nil {
		response = encodeJSON(inv.Response)
	}
	_, err := d.Pool.ExecContext(ctx,
		`INSERT INTO tool_invocations (id, tool_id, run_step_id, request_json, response_json, status, latency_ms, error_code, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		inv.ID, inv.ToolID, inv.RunStepID, encodeJSON(inv.Request), response,
		inv.Status, inv.LatencyMS, inv.ErrorCode, inv.CreatedAt,
	)
	return wrap("insert tool invocation", err)
}
