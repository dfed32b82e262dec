package api

import (
	"net/http"

	"github.com/creatory/creatory/internal/creatory"
	"github.com/go-chi/chi/v5"
)

type registerServerRequest struct {
	WorkspaceID string                 `json:"workspace_id"`
	Name        string                 `json:"name"`
	Transport   creatory.TransportType `json:"transport"`
	Endpoint    string                 `json:"endpoint"`
	AuthConfig  map[string]any         `json:"auth_config_json"`
}

func (s *Server) registerServer(w http.ResponseWriter, r *http.Request) {
	var req registerServerRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	srv, err := s.svc.MCP.RegisterServer(r.Context(), currentUser(r), &creatory.MCPServer{
		WorkspaceID: req.WorkspaceID,
		Name:        req.Name,
		Transport:   req.Transport,
		Endpoint:    req.Endpoint,
		AuthConfig:  req.AuthConfig,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, srv)
}

func (s *Server) listServers(w http.ResponseWriter, r *http.Request) {
	wsID, ok := queryWorkspace(w, r)
	if !ok {
		return
	}
	list, err := s.svc.MCP.ListServers(r.Context(), currentUser(r), wsID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(list))
}

func (s *Server) syncTools(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "MCP server")
	if !ok {
		return
	}
	tools, err := s.svc.MCP.SyncTools(r.Context(), currentUser(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(tools))
}

func (s *Server) listTools(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "MCP server")
	if !ok {
		return
	}
	tools, err := s.svc.MCP.ListTools(r.Context(), currentUser(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(tools))
}

type invokeToolRequest struct {
	Arguments map[string]any `json:"arguments"`
}

// invokeTool calls a tool and returns the invocation record. A call the tool
// rejects still answers 201 with status "failed".
// POST /mcp/servers/{id}/tools/{tool}/invoke
func (s *Server) invokeTool(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "MCP server")
	if !ok {
		return
	}
	var req invokeToolRequest
	if !decodeOptionalJSON(w, r, &req) {
		return
	}
	inv, err := s.svc.MCP.Invoke(r.Context(), currentUser(r), id, chi.URLParam(r, "tool"), req.Arguments)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, inv)
}
