package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/creatory/creatory/internal/auth"
	"github.com/creatory/creatory/internal/breaker"
	"github.com/creatory/creatory/internal/catalog"
	"github.com/creatory/creatory/internal/creatory"
	"github.com/creatory/creatory/internal/crypto"
	"github.com/creatory/creatory/internal/engine"
	"github.com/creatory/creatory/internal/mcpclient"
	"github.com/creatory/creatory/internal/metrics"
	"github.com/creatory/creatory/internal/nodes"
	"github.com/creatory/creatory/internal/rag"
	"github.com/creatory/creatory/internal/repository"
	"github.com/creatory/creatory/internal/services"
	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

type testEnv struct {
	handler http.Handler
	issuer  *auth.Issuer
	user    string
	token   string
}

func echoServer() *server.MCPServer {
	s := server.NewMCPServer("echo", "1.0.0", server.WithToolCapabilities(true))
	s.AddTool(mcp.NewTool("echo", mcp.WithString("text", mcp.Required())),
		func(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args, _ := req.Params.Arguments.(map[string]any)
			text, _ := args["text"].(string)
			if text == "" {
				return mcp.NewToolResultError("text is required"), nil
			}
			return mcp.NewToolResultText(text), nil
		})
	return s
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := repository.NewMemory()
	access := services.NewAccess(store)
	cat, err := catalog.Builtin()
	if err != nil {
		t.Fatal(err)
	}
	collector := metrics.NewCollector("creatory")
	events := engine.NewEventBus()
	events.Subscribe(collector.HandleEvent)
	retriever := rag.NewRetriever(store)
	retriever.SetObserver(collector)

	sealer, err := crypto.NewEncryptor(crypto.KeyFromSecret("api-test"))
	if err != nil {
		t.Fatal(err)
	}
	mcpSvc := services.NewMCPService(store, access, sealer, &mcpclient.InProcessDialer{Server: echoServer()}, services.MCPOptions{Observer: collector})

	runner := engine.NewRunner(engine.Options{
		Breaker:   breaker.DefaultConfig(),
		Policy:    engine.DefaultPolicy(),
		Executors: nodes.NewRegistry(nodes.Deps{Tools: mcpSvc, Retriever: retriever}),
		Store:     store,
		Events:    events,
	})
	limiter := services.NewRunLimiter(creatory.DefaultConcurrencyLimits())

	issuer, err := auth.NewIssuer("api-test-secret", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	srv := NewServer(Services{
		Workspaces: services.NewWorkspaceService(store, access, services.NewBootstrapper(store, store, cat)),
		Templates:  services.NewTemplateService(store, access),
		Runs:       services.NewRunService(store, store, access, runner, limiter),
		Knowledge:  services.NewKnowledgeService(store, access, retriever, 0),
		Agents:     services.NewAgentService(store, access),
		MCP:        mcpSvc,
	}, issuer, "/api/v1")
	srv.SetRunLimiter(limiter)
	srv.SetMetricsHandler(collector.Handler())

	env := &testEnv{handler: srv.Handler(), issuer: issuer, user: uuid.NewString()}
	env.token = env.tokenFor(t, env.user)
	return env
}

func (e *testEnv) tokenFor(t *testing.T, user string) string {
	t.Helper()
	tok, err := e.issuer.Issue(user)
	if err != nil {
		t.Fatal(err)
	}
	return tok
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatal(err)
		}
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

func errorOf(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	return decode[map[string]string](t, w)["error"]
}

func (e *testEnv) createWorkspace(t *testing.T, name string) string {
	t.Helper()
	w := e.do(t, "POST", "/api/v1/workspaces", e.token, map[string]string{"name": name})
	if w.Code != http.StatusCreated {
		t.Fatalf("create workspace: %d %s", w.Code, w.Body.String())
	}
	return decode[map[string]any](t, w)["id"].(string)
}

func (e *testEnv) starterTemplate(t *testing.T, wsID string) string {
	t.Helper()
	w := e.do(t, "GET", "/api/v1/workflows/templates?workspace_id="+wsID, e.token, nil)
	list := decode[[]map[string]any](t, w)
	if len(list) != 1 {
		t.Fatalf("expected starter template, got %s", w.Body.String())
	}
	return list[0]["id"].(string)
}

func TestAPI_Health(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, "GET", "/api/v1/health", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", w.Code)
	}
	if decode[map[string]string](t, w)["status"] != "ok" {
		t.Errorf("body: %s", w.Body.String())
	}
}

func TestAPI_RequiresBearerToken(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, "GET", "/api/v1/workspaces", "", nil)
	if w.Code != http.StatusUnauthorized || errorOf(t, w) != "Missing bearer token" {
		t.Errorf("missing token: %d %s", w.Code, w.Body.String())
	}
	w = env.do(t, "GET", "/api/v1/workspaces", "not-a-jwt", nil)
	if w.Code != http.StatusUnauthorized || errorOf(t, w) != "Invalid token" {
		t.Errorf("bad token: %d %s", w.Code, w.Body.String())
	}
}

func TestAPI_WorkspaceLifecycle(t *testing.T) {
	env := newTestEnv(t)
	wsID := env.createWorkspace(t, "Latte Lab")

	w := env.do(t, "GET", "/api/v1/workspaces", env.token, nil)
	if list := decode[[]map[string]any](t, w); len(list) != 1 || list[0]["slug"] != "latte-lab" {
		t.Errorf("list: %s", w.Body.String())
	}

	editor := uuid.NewString()
	w = env.do(t, "POST", "/api/v1/workspaces/"+wsID+"/members", env.token, map[string]string{"user_id": editor})
	if w.Code != http.StatusCreated || decode[map[string]any](t, w)["role"] != "editor" {
		t.Fatalf("add member: %d %s", w.Code, w.Body.String())
	}
	w = env.do(t, "POST", "/api/v1/workspaces/"+wsID+"/members", env.tokenFor(t, editor), map[string]string{"user_id": uuid.NewString()})
	if w.Code != http.StatusForbidden {
		t.Errorf("editor add member: got %d, want 403", w.Code)
	}
	w = env.do(t, "POST", "/api/v1/workspaces/"+wsID+"/members", env.token, map[string]string{"user_id": editor})
	if w.Code != http.StatusConflict {
		t.Errorf("duplicate member: got %d, want 409", w.Code)
	}

	w = env.do(t, "GET", "/api/v1/workspaces/"+wsID, env.tokenFor(t, uuid.NewString()), nil)
	if w.Code != http.StatusNotFound || errorOf(t, w) != "Workspace not found" {
		t.Errorf("stranger: %d %s", w.Code, w.Body.String())
	}

	w = env.do(t, "POST", "/api/v1/workspaces/"+wsID+"/bootstrap", env.token, nil)
	if w.Code != http.StatusOK {
		t.Errorf("bootstrap: %d %s", w.Code, w.Body.String())
	}

	w = env.do(t, "POST", "/api/v1/conversations", env.token, map[string]string{"workspace_id": wsID, "title": "Ep 1"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create conversation: %d %s", w.Code, w.Body.String())
	}
	w = env.do(t, "GET", "/api/v1/conversations?workspace_id="+wsID, env.token, nil)
	if list := decode[[]map[string]any](t, w); len(list) != 1 {
		t.Errorf("conversations: %s", w.Body.String())
	}
}

func TestAPI_RunStarterTemplate(t *testing.T) {
	env := newTestEnv(t)
	wsID := env.createWorkspace(t, "Latte Lab")
	tmplID := env.starterTemplate(t, wsID)

	w := env.do(t, "POST", "/api/v1/workflows/templates/"+tmplID+"/run", env.token, map[string]any{"input_json": map[string]any{"idea": "crema"}})
	if w.Code != http.StatusCreated {
		t.Fatalf("run: %d %s", w.Code, w.Body.String())
	}
	run := decode[map[string]any](t, w)
	if run["status"] != "waiting_human" {
		t.Errorf("status: got %v", run["status"])
	}
	if steps := run["steps"].([]any); len(steps) != 4 {
		t.Errorf("steps: got %d, want 4", len(steps))
	}
	runID := run["id"].(string)

	w = env.do(t, "GET", "/api/v1/workflows/runs/"+runID, env.token, nil)
	if w.Code != http.StatusOK || decode[map[string]any](t, w)["id"] != runID {
		t.Errorf("get run: %d %s", w.Code, w.Body.String())
	}
	w = env.do(t, "GET", "/api/v1/workflows/runs/"+runID+"/steps", env.token, nil)
	if steps := decode[[]map[string]any](t, w); len(steps) != 4 || steps[3]["node_key"] != "human_review" {
		t.Errorf("steps: %s", w.Body.String())
	}
	w = env.do(t, "GET", "/api/v1/workflows/templates/"+tmplID+"/runs", env.token, nil)
	if runs := decode[[]map[string]any](t, w); len(runs) != 1 {
		t.Errorf("template runs: %s", w.Body.String())
	}

	// Runs without a body use an empty input.
	w = env.do(t, "POST", "/api/v1/workflows/templates/"+tmplID+"/run", env.token, nil)
	if w.Code != http.StatusCreated {
		t.Errorf("run without body: %d %s", w.Code, w.Body.String())
	}

	w = env.do(t, "GET", "/api/v1/workflows/stats", env.token, nil)
	if stats := decode[map[string]any](t, w); stats["global_max"] != float64(10) || stats["active_runs"] != float64(0) {
		t.Errorf("stats: %s", w.Body.String())
	}

	w = env.do(t, "GET", "/metrics", "", nil)
	if !strings.Contains(w.Body.String(), "creatory_workflow_runs_total") {
		t.Errorf("metrics missing run counter")
	}
}

func TestAPI_TemplateErrors(t *testing.T) {
	env := newTestEnv(t)
	wsID := env.createWorkspace(t, "Latte Lab")

	nodes := make([]map[string]any, 16)
	for i := range nodes {
		nodes[i] = map[string]any{"node_key": fmt.Sprintf("n%02d", i), "type": "agent", "position_x": i}
	}
	w := env.do(t, "POST", "/api/v1/workflows/templates", env.token, map[string]any{
		"workspace_id": wsID, "name": "too long", "nodes": nodes,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", w.Code, w.Body.String())
	}
	tmplID := decode[map[string]any](t, w)["id"].(string)
	w = env.do(t, "POST", "/api/v1/workflows/templates/"+tmplID+"/run", env.token, nil)
	if w.Code != http.StatusBadRequest || !strings.Contains(errorOf(t, w), "circuit breaker") {
		t.Errorf("breaker: %d %s", w.Code, w.Body.String())
	}

	w = env.do(t, "POST", "/api/v1/workflows/templates", env.token, map[string]any{
		"workspace_id": wsID, "name": "loop",
		"nodes": []map[string]any{{"node_key": "a", "type": "agent"}, {"node_key": "b", "type": "agent"}},
		"edges": []map[string]any{
			{"source_node_key": "a", "target_node_key": "b"},
			{"source_node_key": "b", "target_node_key": "a"},
		},
	})
	if w.Code != http.StatusBadRequest || !strings.Contains(errorOf(t, w), "cyclic graph") {
		t.Errorf("cycle: %d %s", w.Code, w.Body.String())
	}

	w = env.do(t, "POST", "/api/v1/workflows/templates", env.token, map[string]any{
		"workspace_id": wsID, "name": "odd",
		"nodes": []map[string]any{{"node_key": "a", "type": "painter"}, {"node_key": "b", "type": "sculptor"}},
	})
	if msg := errorOf(t, w); w.Code != http.StatusBadRequest || !strings.Contains(msg, "painter") || !strings.Contains(msg, "sculptor") {
		t.Errorf("unknown types: %d %s", w.Code, w.Body.String())
	}

	w = env.do(t, "GET", "/api/v1/workflows/templates/"+uuid.NewString(), env.token, nil)
	if w.Code != http.StatusNotFound || errorOf(t, w) != "Workflow template not found" {
		t.Errorf("missing template: %d %s", w.Code, w.Body.String())
	}
	w = env.do(t, "GET", "/api/v1/workflows/templates/not-a-uuid", env.token, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("malformed id: got %d, want 404", w.Code)
	}
	w = env.do(t, "GET", "/api/v1/workflows/templates?workspace_id="+wsID+"&limit=abc", env.token, nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad limit: got %d, want 400", w.Code)
	}
	w = env.do(t, "GET", "/api/v1/workflows/templates", env.token, nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing workspace_id: got %d, want 400", w.Code)
	}
	w = env.do(t, "POST", "/api/v1/workflows/templates", env.token, "{")
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad body: got %d, want 400", w.Code)
	}
}

func TestAPI_Knowledge(t *testing.T) {
	env := newTestEnv(t)
	wsID := env.createWorkspace(t, "Latte Lab")

	w := env.do(t, "POST", "/api/v1/knowledge/sources", env.token, map[string]any{
		"workspace_id": wsID, "source_type": "text", "title": "Notes",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create source: %d %s", w.Code, w.Body.String())
	}
	srcID := decode[map[string]any](t, w)["id"].(string)

	w = env.do(t, "POST", "/api/v1/knowledge/sources/"+srcID+"/chunks", env.token, map[string]any{"content": "Latte art needs microfoam."})
	if w.Code != http.StatusCreated || decode[map[string]any](t, w)["chunk_index"] != float64(0) {
		t.Fatalf("add chunk: %d %s", w.Code, w.Body.String())
	}
	w = env.do(t, "POST", "/api/v1/knowledge/sources/"+srcID+"/ingest", env.token, "Espresso first.\n\nThen latte art.")
	if w.Code != http.StatusCreated {
		t.Fatalf("ingest: %d %s", w.Code, w.Body.String())
	}
	w = env.do(t, "GET", "/api/v1/knowledge/sources/"+srcID+"/chunks", env.token, nil)
	if chunks := decode[[]map[string]any](t, w); len(chunks) != 2 {
		t.Errorf("chunks: %s", w.Body.String())
	}

	w = env.do(t, "POST", "/api/v1/knowledge/concepts", env.token, map[string]any{
		"workspace_id": wsID, "concept_key": "latte", "label": "Latte",
	})
	if w.Code != http.StatusCreated {
		t.Errorf("concept: %d %s", w.Code, w.Body.String())
	}

	w = env.do(t, "POST", "/api/v1/knowledge/query", env.token, map[string]any{"workspace_id": wsID, "query": "latte art"})
	if w.Code != http.StatusOK {
		t.Fatalf("query: %d %s", w.Code, w.Body.String())
	}
	res := decode[map[string]any](t, w)
	if cites := res["citations"].([]any); len(cites) != 2 {
		t.Errorf("citations: %s", w.Body.String())
	}

	w = env.do(t, "POST", "/api/v1/knowledge/query", env.token, map[string]any{"workspace_id": wsID, "query": "latte", "top_k": 21})
	if w.Code != http.StatusBadRequest {
		t.Errorf("top_k 21: got %d, want 400", w.Code)
	}
	w = env.do(t, "POST", "/api/v1/knowledge/query", env.token, map[string]any{"workspace_id": wsID, "query": "latte", "top_k": 0})
	if w.Code != http.StatusBadRequest {
		t.Errorf("top_k 0: got %d, want 400", w.Code)
	}
	w = env.do(t, "POST", "/api/v1/knowledge/query", env.token, map[string]any{"workspace_id": wsID, "query": "   "})
	if w.Code != http.StatusOK {
		t.Fatalf("blank query: %d %s", w.Code, w.Body.String())
	}
	if cites := decode[map[string]any](t, w)["citations"].([]any); len(cites) != 0 {
		t.Errorf("blank query citations: %s", w.Body.String())
	}
	w = env.do(t, "POST", "/api/v1/knowledge/query", env.token, map[string]any{"workspace_id": wsID, "query": ""})
	if w.Code != http.StatusBadRequest {
		t.Errorf("empty query: got %d, want 400", w.Code)
	}
	w = env.do(t, "POST", "/api/v1/knowledge/sources/"+uuid.NewString()+"/chunks", env.token, map[string]any{"content": "x"})
	if w.Code != http.StatusNotFound || errorOf(t, w) != "Knowledge source not found" {
		t.Errorf("missing source: %d %s", w.Code, w.Body.String())
	}
}

func TestAPI_Agents(t *testing.T) {
	env := newTestEnv(t)
	wsID := env.createWorkspace(t, "Latte Lab")

	w := env.do(t, "POST", "/api/v1/agents", env.token, map[string]any{
		"workspace_id": wsID, "slug": "editor", "name": "Editor", "persona_prompt": "Keep it short.",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create agent: %d %s", w.Code, w.Body.String())
	}
	agentID := decode[map[string]any](t, w)["id"].(string)

	w = env.do(t, "GET", "/api/v1/agents?workspace_id="+wsID, env.token, nil)
	if list := decode[[]map[string]any](t, w); len(list) != 2 {
		t.Errorf("agents: %s", w.Body.String())
	}
	w = env.do(t, "GET", "/api/v1/agents?workspace_id="+wsID+"&include_system=maybe", env.token, nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad include_system: got %d", w.Code)
	}
	w = env.do(t, "GET", "/api/v1/agents/"+agentID, env.token, nil)
	if w.Code != http.StatusOK {
		t.Errorf("get agent: %d %s", w.Code, w.Body.String())
	}
	w = env.do(t, "GET", "/api/v1/agents/"+uuid.NewString(), env.token, nil)
	if w.Code != http.StatusNotFound || errorOf(t, w) != "Agent not found" {
		t.Errorf("missing agent: %d %s", w.Code, w.Body.String())
	}
}

func TestAPI_MCP(t *testing.T) {
	env := newTestEnv(t)
	wsID := env.createWorkspace(t, "Latte Lab")

	w := env.do(t, "POST", "/api/v1/mcp/servers", env.token, map[string]any{
		"workspace_id": wsID, "name": "echo", "transport": "http", "endpoint": "http://localhost:9/mcp",
		"auth_config_json": map[string]any{"headers": map[string]any{"Authorization": "Bearer hidden"}},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("register: %d %s", w.Code, w.Body.String())
	}
	if strings.Contains(w.Body.String(), "hidden") {
		t.Errorf("auth config leaked: %s", w.Body.String())
	}
	srvID := decode[map[string]any](t, w)["id"].(string)

	w = env.do(t, "POST", "/api/v1/mcp/servers/"+srvID+"/sync", env.token, nil)
	if tools := decode[[]map[string]any](t, w); w.Code != http.StatusOK || len(tools) != 1 {
		t.Fatalf("sync: %d %s", w.Code, w.Body.String())
	}
	w = env.do(t, "GET", "/api/v1/mcp/servers/"+srvID+"/tools", env.token, nil)
	if tools := decode[[]map[string]any](t, w); len(tools) != 1 || tools[0]["name"] != "echo" {
		t.Errorf("tools: %s", w.Body.String())
	}

	w = env.do(t, "POST", "/api/v1/mcp/servers/"+srvID+"/tools/echo/invoke", env.token, map[string]any{"arguments": map[string]any{"text": "hi"}})
	if inv := decode[map[string]any](t, w); w.Code != http.StatusCreated || inv["status"] != "succeeded" {
		t.Errorf("invoke: %d %s", w.Code, w.Body.String())
	}
	w = env.do(t, "POST", "/api/v1/mcp/servers/"+srvID+"/tools/echo/invoke", env.token, nil)
	if inv := decode[map[string]any](t, w); w.Code != http.StatusCreated || inv["status"] != "failed" || inv["error_code"] != "tool_error" {
		t.Errorf("failed invoke: %d %s", w.Code, w.Body.String())
	}
	w = env.do(t, "POST", "/api/v1/mcp/servers/"+srvID+"/tools/nope/invoke", env.token, nil)
	if w.Code != http.StatusNotFound || errorOf(t, w) != "MCP tool not found" {
		t.Errorf("missing tool: %d %s", w.Code, w.Body.String())
	}

	w = env.do(t, "GET", "/api/v1/mcp/servers?workspace_id="+wsID, env.token, nil)
	if list := decode[[]map[string]any](t, w); len(list) != 1 {
		t.Errorf("servers: %s", w.Body.String())
	}
}

func TestAPI_ToolNodeCallsMCPServer(t *testing.T) {
	env := newTestEnv(t)
	wsID := env.createWorkspace(t, "Latte Lab")

	w := env.do(t, "POST", "/api/v1/mcp/servers", env.token, map[string]any{
		"workspace_id": wsID, "name": "echo", "transport": "stdio", "endpoint": "echo-server",
	})
	srvID := decode[map[string]any](t, w)["id"].(string)
	env.do(t, "POST", "/api/v1/mcp/servers/"+srvID+"/sync", env.token, nil)

	w = env.do(t, "POST", "/api/v1/workflows/templates", env.token, map[string]any{
		"workspace_id": wsID, "name": "echo flow",
		"nodes": []map[string]any{{
			"node_key": "say", "type": "tool",
			"config_json": map[string]any{"server": "echo", "tool": "echo", "arguments": map[string]any{"text": "{{idea}}"}},
		}},
	})
	tmplID := decode[map[string]any](t, w)["id"].(string)

	w = env.do(t, "POST", "/api/v1/workflows/templates/"+tmplID+"/run", env.token, map[string]any{"input_json": map[string]any{"idea": "crema"}})
	if w.Code != http.StatusCreated {
		t.Fatalf("run: %d %s", w.Code, w.Body.String())
	}
	run := decode[map[string]any](t, w)
	if run["status"] != "succeeded" {
		t.Fatalf("status: %v", run["status"])
	}
	step := run["steps"].([]any)[0].(map[string]any)
	result := step["output_json"].(map[string]any)["tool_result"].(map[string]any)
	if result["text"] != "crema" {
		t.Errorf("tool result: %v", result)
	}
}
