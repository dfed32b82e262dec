package api

import (
	"net/http"
	"strconv"

	"github.com/creatory/creatory/internal/creatory"
)

func (s *Server) createAgent(w http.ResponseWriter, r *http.Request) {
	var a creatory.Agent
	if !decodeJSON(w, r, &a) {
		return
	}
	a.IsSystem = false
	created, err := s.svc.Agents.Create(r.Context(), currentUser(r), &a)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// listAgents returns a workspace's agents and, unless include_system=false,
// the global system agents.
// GET /agents?workspace_id=...&include_system=true
func (s *Server) listAgents(w http.ResponseWriter, r *http.Request) {
	wsID, ok := queryWorkspace(w, r)
	if !ok {
		return
	}
	includeSystem := true
	if v := r.URL.Query().Get("include_system"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeMessage(w, http.StatusBadRequest, "include_system must be a boolean")
			return
		}
		includeSystem = b
	}
	page, ok := parsePagination(w, r)
	if !ok {
		return
	}
	list, err := s.svc.Agents.List(r.Context(), currentUser(r), wsID, includeSystem, page)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(list))
}

func (s *Server) getAgent(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "Agent")
	if !ok {
		return
	}
	a, err := s.svc.Agents.Get(r.Context(), currentUser(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}
