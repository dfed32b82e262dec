package api

import (
	"net/http"

	"github.com/creatory/creatory/internal/creatory"
)

type createWorkspaceRequest struct {
	Name string `json:"name"`
	Slug string `json:"slug"`
}

func (s *Server) createWorkspace(w http.ResponseWriter, r *http.Request) {
	var req createWorkspaceRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	ws, err := s.svc.Workspaces.Create(r.Context(), currentUser(r), req.Name, req.Slug)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ws)
}

func (s *Server) listWorkspaces(w http.ResponseWriter, r *http.Request) {
	list, err := s.svc.Workspaces.List(r.Context(), currentUser(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(list))
}

func (s *Server) getWorkspace(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "Workspace")
	if !ok {
		return
	}
	ws, err := s.svc.Workspaces.Get(r.Context(), currentUser(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ws)
}

type addMemberRequest struct {
	UserID string                  `json:"user_id"`
	Role   creatory.MembershipRole `json:"role"`
}

// addMember grants a user a role in the workspace.
// POST /workspaces/{id}/members
func (s *Server) addMember(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "Workspace")
	if !ok {
		return
	}
	var req addMemberRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	m, err := s.svc.Workspaces.AddMember(r.Context(), currentUser(r), id, req.UserID, req.Role)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (s *Server) bootstrapWorkspace(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "Workspace")
	if !ok {
		return
	}
	if err := s.svc.Workspaces.Bootstrap(r.Context(), currentUser(r), id); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "bootstrapped"})
}

type createConversationRequest struct {
	WorkspaceID string `json:"workspace_id"`
	Title       string `json:"title"`
}

func (s *Server) createConversation(w http.ResponseWriter, r *http.Request) {
	var req createConversationRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	c, err := s.svc.Workspaces.CreateConversation(r.Context(), currentUser(r), req.WorkspaceID, req.Title)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) listConversations(w http.ResponseWriter, r *http.Request) {
	wsID, ok := queryWorkspace(w, r)
	if !ok {
		return
	}
	page, ok := parsePagination(w, r)
	if !ok {
		return
	}
	list, err := s.svc.Workspaces.ListConversations(r.Context(), currentUser(r), wsID, page)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(list))
}

// nonNil keeps empty listings encoding as [] rather than null.
func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
