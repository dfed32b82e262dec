package creatory

import "time"

// TransportType is how the backend talks to an MCP server.
type TransportType string

const (
	TransportStdio TransportType = "stdio"
	TransportHTTP  TransportType = "http"
	TransportSSE   TransportType = "sse"
)

// Valid reports whether t is a supported transport.
func (t TransportType) Valid() bool {
	return t == TransportStdio || t == TransportHTTP || t == TransportSSE
}

// MCPServer is a registered tool server. AuthConfig only lives in memory;
// storage keeps SealedAuth, its encrypted form.
type MCPServer struct {
	ID          string         `json:"id"`
	WorkspaceID string         `json:"workspace_id"`
	Name        string         `json:"name"`
	Transport   TransportType  `json:"transport"`
	Endpoint    string         `json:"endpoint"`
	AuthConfig  map[string]any `json:"-"`
	SealedAuth  string         `json:"-"`
	IsActive    bool           `json:"is_active"`
	CreatedAt   time.Time      `json:"created_at"`
}

// MCPTool is a tool advertised by an MCP server.
type MCPTool struct {
	ID          string         `json:"id"`
	ServerID    string         `json:"server_id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"input_schema"`
	IsEnabled   bool           `json:"is_enabled"`
	CreatedAt   time.Time      `json:"created_at"`
}

// ToolInvocation is the audit record of one tool call.
type ToolInvocation struct {
	ID        string         `json:"id"`
	ToolID    string         `json:"tool_id"`
	RunStepID *string        `json:"run_step_id,omitempty"`
	Request   map[string]any `json:"request_json"`
	Response  map[string]any `json:"response_json,omitempty"`
	Status    string         `json:"status"`
	LatencyMS int64          `json:"latency_ms"`
	ErrorCode string         `json:"error_code,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}
