package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/creatory/creatory/internal/creatory"
	"github.com/creatory/creatory/internal/crypto"
	"github.com/creatory/creatory/internal/mcpclient"
	"github.com/creatory/creatory/internal/repository"
	"golang.org/x/time/rate"
)

var (
	errServerNotFound = creatory.Errorf(creatory.ErrNotFound, "MCP server not found")
	errToolNotFound   = creatory.Errorf(creatory.ErrNotFound, "MCP tool not found")
)

// Invocation statuses and error codes recorded for every tool call.
const (
	InvocationSucceeded = "succeeded"
	InvocationFailed    = "failed"

	ErrorCodeTool      = "tool_error"
	ErrorCodeTimeout   = "timeout"
	ErrorCodeTransport = "transport_error"
)

// ToolObserver is told about every tool call. Optional.
type ToolObserver interface {
	ObserveToolInvocation(status string, latency time.Duration)
}

// MCPOptions tunes MCPService. Zero values pick the defaults.
type MCPOptions struct {
	InvokeRate  float64 // calls per second per server; default 5
	InvokeBurst int     // default 10
	Observer    ToolObserver
}

// MCPService registers tool servers, syncs their tool lists and invokes
// tools with per-server throttling. Credentials are sealed before storage
// and opened only to dial.
type MCPService struct {
	repo     repository.MCPRepository
	access   *Access
	sealer   *crypto.Encryptor
	dialer   mcpclient.Dialer
	observer ToolObserver

	rps   rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewMCPService(repo repository.MCPRepository, access *Access, sealer *crypto.Encryptor, dialer mcpclient.Dialer, opts MCPOptions) *MCPService {
	if opts.InvokeRate <= 0 {
		opts.InvokeRate = 5
	}
	if opts.InvokeBurst <= 0 {
		opts.InvokeBurst = 10
	}
	return &MCPService{
		repo:     repo,
		access:   access,
		sealer:   sealer,
		dialer:   dialer,
		observer: opts.Observer,
		rps:      rate.Limit(opts.InvokeRate),
		burst:    opts.InvokeBurst,
		limiters: make(map[string]*rate.Limiter),
	}
}

// RegisterServer stores a server with its auth config sealed.
func (s *MCPService) RegisterServer(ctx context.Context, userID string, srv *creatory.MCPServer) (*creatory.MCPServer, error) {
	if srv.WorkspaceID == "" {
		return nil, creatory.Errorf(creatory.ErrInvalid, "workspace_id is required")
	}
	if _, err := s.access.EnsureWorkspaceMember(ctx, srv.WorkspaceID, userID); err != nil {
		return nil, err
	}
	verr := &creatory.ValidationError{}
	if srv.Name = strings.TrimSpace(srv.Name); srv.Name == "" || len(srv.Name) > 120 {
		verr.Add("name must be 1-120 characters")
	}
	if !srv.Transport.Valid() {
		verr.Add(fmt.Sprintf("unknown transport %q", srv.Transport))
	}
	if strings.TrimSpace(srv.Endpoint) == "" {
		verr.Add("endpoint is required")
	}
	if err := verr.Err(); err != nil {
		return nil, err
	}

	sealed, err := s.sealer.Seal(srv.AuthConfig)
	if err != nil {
		return nil, fmt.Errorf("seal auth config: %w", err)
	}
	srv.ID = creatory.NewID()
	srv.SealedAuth = sealed
	srv.IsActive = true
	srv.CreatedAt = time.Now().UTC()
	if err := s.repo.CreateServer(ctx, srv); err != nil {
		if errors.Is(err, creatory.ErrConflict) {
			return nil, creatory.Errorf(creatory.ErrConflict, "MCP server already exists in this workspace")
		}
		return nil, fmt.Errorf("create server: %w", err)
	}
	srv.AuthConfig = nil
	return srv, nil
}

// ListServers returns a workspace's servers by name.
func (s *MCPService) ListServers(ctx context.Context, userID, workspaceID string) ([]*creatory.MCPServer, error) {
	if _, err := s.access.EnsureWorkspaceMember(ctx, workspaceID, userID); err != nil {
		return nil, err
	}
	return s.repo.ListServers(ctx, workspaceID)
}

// ListTools returns the tools last synced from a server.
func (s *MCPService) ListTools(ctx context.Context, userID, serverID string) ([]*creatory.MCPTool, error) {
	if _, err := s.authorizedServer(ctx, userID, serverID); err != nil {
		return nil, err
	}
	return s.repo.ListTools(ctx, serverID)
}

// SyncTools asks the server for its tool list and upserts it.
func (s *MCPService) SyncTools(ctx context.Context, userID, serverID string) ([]*creatory.MCPTool, error) {
	srv, err := s.authorizedServer(ctx, userID, serverID)
	if err != nil {
		return nil, err
	}
	sess, err := s.dial(ctx, srv)
	if err != nil {
		return nil, err
	}
	defer sess.Close()

	specs, err := sess.ListTools(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tools on %s: %w", srv.Name, err)
	}
	now := time.Now().UTC()
	tools := make([]*creatory.MCPTool, len(specs))
	for i, spec := range specs {
		tools[i] = &creatory.MCPTool{
			ID:          creatory.NewID(),
			ServerID:    srv.ID,
			Name:        spec.Name,
			Description: spec.Description,
			InputSchema: spec.InputSchema,
			IsEnabled:   true,
			CreatedAt:   now,
		}
	}
	if err := s.repo.UpsertTools(ctx, srv.ID, tools); err != nil {
		return nil, fmt.Errorf("store tools: %w", err)
	}
	slog.Info("mcp tools synced", "server", srv.Name, "tools", len(tools))
	return s.repo.ListTools(ctx, srv.ID)
}

// Invoke calls a tool on behalf of userID and returns the audit record.
// A failing tool still yields a record with status failed.
func (s *MCPService) Invoke(ctx context.Context, userID, serverID, toolName string, args map[string]any) (*creatory.ToolInvocation, error) {
	srv, err := s.authorizedServer(ctx, userID, serverID)
	if err != nil {
		return nil, err
	}
	inv, err := s.invoke(ctx, srv, toolName, args)
	var failed *InvocationError
	if errors.As(err, &failed) {
		return failed.Invocation, nil
	}
	return inv, err
}

// InvokeTool resolves a server by name within a workspace and calls one of
// its tools. It lets workflow tool nodes reach MCP servers.
func (s *MCPService) InvokeTool(ctx context.Context, workspaceID, serverName, toolName string, args map[string]any) (map[string]any, error) {
	srv, err := s.repo.FindServerByName(ctx, workspaceID, serverName)
	if errors.Is(err, creatory.ErrNotFound) {
		return nil, errServerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find server: %w", err)
	}
	inv, err := s.invoke(ctx, srv, toolName, args)
	if err != nil {
		return nil, err
	}
	return inv.Response, nil
}

// InvocationError reports a tool call that failed after it was recorded.
type InvocationError struct {
	Invocation *creatory.ToolInvocation
	Err        error
}

func (e *InvocationError) Error() string { return e.Err.Error() }

func (e *InvocationError) Unwrap() error { return e.Err }

// invoke calls the tool and records the attempt. A failed call returns the
// record inside an *InvocationError.
func (s *MCPService) invoke(ctx context.Context, srv *creatory.MCPServer, toolName string, args map[string]any) (*creatory.ToolInvocation, error) {
	if !srv.IsActive {
		return nil, creatory.Errorf(creatory.ErrInvalid, "MCP server %s is inactive", srv.Name)
	}
	tool, err := s.repo.FindTool(ctx, srv.ID, toolName)
	if errors.Is(err, creatory.ErrNotFound) {
		return nil, errToolNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find tool: %w", err)
	}
	if !tool.IsEnabled {
		return nil, creatory.Errorf(creatory.ErrInvalid, "MCP tool %s is disabled", tool.Name)
	}
	if args == nil {
		args = map[string]any{}
	}

	if err := s.limiter(srv.ID).Wait(ctx); err != nil {
		return nil, fmt.Errorf("wait for %s rate limit: %w", srv.Name, err)
	}

	start := time.Now()
	result, callErr := s.call(ctx, srv, tool.Name, args)
	latency := time.Since(start)

	inv := &creatory.ToolInvocation{
		ID:        creatory.NewID(),
		ToolID:    tool.ID,
		Request:   args,
		Response:  result,
		Status:    InvocationSucceeded,
		LatencyMS: latency.Milliseconds(),
		CreatedAt: start.UTC(),
	}
	if callErr != nil {
		inv.Status = InvocationFailed
		inv.ErrorCode = errorCode(callErr)
		inv.Response = map[string]any{"error": callErr.Error()}
		slog.Warn("mcp tool invocation failed", "server", srv.Name, "tool", tool.Name, "code", inv.ErrorCode, "err", callErr)
	}
	if s.observer != nil {
		s.observer.ObserveToolInvocation(inv.Status, latency)
	}
	if err := s.repo.RecordInvocation(context.WithoutCancel(ctx), inv); err != nil {
		return nil, fmt.Errorf("record invocation: %w", err)
	}
	if callErr != nil {
		return nil, &InvocationError{Invocation: inv, Err: callErr}
	}
	return inv, nil
}

func (s *MCPService) call(ctx context.Context, srv *creatory.MCPServer, tool string, args map[string]any) (map[string]any, error) {
	sess, err := s.dial(ctx, srv)
	if err != nil {
		return nil, err
	}
	defer sess.Close()
	return sess.CallTool(ctx, tool, args)
}

func (s *MCPService) dial(ctx context.Context, srv *creatory.MCPServer) (mcpclient.Session, error) {
	auth, err := s.sealer.Open(srv.SealedAuth)
	if err != nil {
		return nil, fmt.Errorf("open auth config for %s: %w", srv.Name, err)
	}
	dialed := *srv
	dialed.AuthConfig = auth
	sess, err := s.dialer.Dial(ctx, &dialed)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", srv.Name, err)
	}
	return sess, nil
}

func (s *MCPService) limiter(serverID string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.limiters[serverID]
	if !ok {
		l = rate.NewLimiter(s.rps, s.burst)
		s.limiters[serverID] = l
	}
	return l
}

func (s *MCPService) authorizedServer(ctx context.Context, userID, serverID string) (*creatory.MCPServer, error) {
	srv, err := s.repo.GetServer(ctx, serverID)
	if errors.Is(err, creatory.ErrNotFound) {
		return nil, errServerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get server: %w", err)
	}
	if _, err := s.access.EnsureWorkspaceMember(ctx, srv.WorkspaceID, userID); err != nil {
		return nil, err
	}
	return srv, nil
}

func errorCode(err error) string {
	var toolErr *mcpclient.ToolError
	switch {
	case errors.As(err, &toolErr):
		return ErrorCodeTool
	case errors.Is(err, context.DeadlineExceeded):
		return ErrorCodeTimeout
	}
	return ErrorCodeTransport
}
