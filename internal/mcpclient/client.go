// Package mcpclient talks to registered tool servers over the Model Context
// Protocol.
package mcpclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/creatory/creatory/internal/creatory"
	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// ToolSpec describes a tool advertised by a server.
type ToolSpec struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// ToolError is returned when the server reports that a call failed.
type ToolError struct {
	Tool    string
	Message string
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("tool %s failed: %s", e.Tool, e.Message)
}

// Session is an initialised connection to one server.
type Session interface {
	ListTools(ctx context.Context) ([]ToolSpec, error)
	CallTool(ctx context.Context, name string, args map[string]any) (map[string]any, error)
	Close() error
}

// Dialer opens sessions to registered servers. The server's AuthConfig must
// already be decrypted.
type Dialer interface {
	Dial(ctx context.Context, srv *creatory.MCPServer) (Session, error)
}

// ClientDialer dials real servers with mcp-go.
type ClientDialer struct {
	Name        string
	Version     string
	CallTimeout time.Duration
}

// NewDialer returns a ClientDialer identifying itself as name/version.
func NewDialer(name, version string, callTimeout time.Duration) *ClientDialer {
	return &ClientDialer{Name: name, Version: version, CallTimeout: callTimeout}
}

func (d *ClientDialer) Dial(ctx context.Context, srv *creatory.MCPServer) (Session, error) {
	c, err := newClient(srv)
	if err != nil {
		return nil, fmt.Errorf("create %s client for %s: %w", srv.Transport, srv.Name, err)
	}
	return Connect(ctx, c, d.Name, d.Version, d.CallTimeout)
}

func newClient(srv *creatory.MCPServer) (*client.Client, error) {
	headers := stringMap(srv.AuthConfig["headers"])
	switch srv.Transport {
	case creatory.TransportHTTP:
		t, err := transport.NewStreamableHTTP(srv.Endpoint, transport.WithHTTPHeaders(headers))
		if err != nil {
			return nil, err
		}
		return client.NewClient(t), nil
	case creatory.TransportSSE:
		t, err := transport.NewSSE(srv.Endpoint, transport.WithHeaders(headers))
		if err != nil {
			return nil, err
		}
		return client.NewClient(t), nil
	case creatory.TransportStdio:
		fields := strings.Fields(srv.Endpoint)
		if len(fields) == 0 {
			return nil, errors.New("stdio endpoint must name a command")
		}
		var env []string
		for k, v := range stringMap(srv.AuthConfig["env"]) {
			env = append(env, k+"="+v)
		}
		return client.NewClient(transport.NewStdio(fields[0], env, fields[1:]...)), nil
	}
	return nil, fmt.Errorf("unsupported transport %q", srv.Transport)
}

// InProcessDialer serves every dial from one in-process server.
type InProcessDialer struct {
	Server *server.MCPServer
}

func (d *InProcessDialer) Dial(ctx context.Context, _ *creatory.MCPServer) (Session, error) {
	c, err := client.NewInProcessClient(d.Server)
	if err != nil {
		return nil, fmt.Errorf("create in-process client: %w", err)
	}
	return Connect(ctx, c, "creatory", "test", 0)
}

// Connect starts c and performs the protocol handshake.
func Connect(ctx context.Context, c *client.Client, name, version string, callTimeout time.Duration) (Session, error) {
	if err := c.Start(ctx); err != nil {
		c.Close()
		return nil, fmt.Errorf("start mcp client: %w", err)
	}

	req := mcp.InitializeRequest{}
	req.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	req.Params.ClientInfo = mcp.Implementation{Name: name, Version: version}
	if _, err := c.Initialize(ctx, req); err != nil {
		c.Close()
		return nil, fmt.Errorf("initialize mcp session: %w", err)
	}
	return &session{c: c, callTimeout: callTimeout}, nil
}

type session struct {
	c           *client.Client
	callTimeout time.Duration
}

func (s *session) ListTools(ctx context.Context) ([]ToolSpec, error) {
	res, err := s.c.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("list tools: %w", err)
	}
	out := make([]ToolSpec, 0, len(res.Tools))
	for _, t := range res.Tools {
		out = append(out, ToolSpec{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: schemaMap(t.InputSchema),
		})
	}
	return out, nil
}

func (s *session) CallTool(ctx context.Context, name string, args map[string]any) (map[string]any, error) {
	if s.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.callTimeout)
		defer cancel()
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	res, err := s.c.CallTool(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("call tool %s: %w", name, err)
	}

	text := contentText(res.Content)
	if res.IsError {
		return nil, &ToolError{Tool: name, Message: text}
	}
	out := map[string]any{"text": text}
	if res.StructuredContent != nil {
		out["structured"] = res.StructuredContent
	}
	return out, nil
}

func (s *session) Close() error {
	return s.c.Close()
}

func contentText(contents []mcp.Content) string {
	var parts []string
	for _, c := range contents {
		switch v := c.(type) {
		case mcp.TextContent:
			parts = append(parts, v.Text)
		case *mcp.TextContent:
			parts = append(parts, v.Text)
		}
	}
	return strings.Join(parts, "\n")
}

func schemaMap(schema mcp.ToolInputSchema) map[string]any {
	out := map[string]any{}
	raw, err := json.Marshal(schema)
	if err != nil {
		return out
	}
	_ = json.Unmarshal(raw, &out)
	return out
}

func stringMap(v any) map[string]string {
	out := map[string]string{}
	m, ok := v.(map[string]any)
	if !ok {
		return out
	}
	for k, val := range m {
		if s, ok := val.(string); ok {
			out[k] = s
		}
	}
	return out
}
