package api

import (
	"net/http"

	"github.com/creatory/creatory/internal/creatory"
	"github.com/creatory/creatory/internal/services"
)

// runDetail is a run with its steps inlined.
type runDetail struct {
	*creatory.WorkflowRun
	Steps []creatory.RunStep `json:"steps"`
}

func (s *Server) createTemplate(w http.ResponseWriter, r *http.Request) {
	var tmpl creatory.Template
	if !decodeJSON(w, r, &tmpl) {
		return
	}
	created, err := s.svc.Templates.Create(r.Context(), currentUser(r), &tmpl)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) listTemplates(w http.ResponseWriter, r *http.Request) {
	wsID, ok := queryWorkspace(w, r)
	if !ok {
		return
	}
	page, ok := parsePagination(w, r)
	if !ok {
		return
	}
	list, err := s.svc.Templates.List(r.Context(), currentUser(r), wsID, page)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(list))
}

func (s *Server) getTemplate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "Workflow template")
	if !ok {
		return
	}
	tmpl, err := s.svc.Templates.Get(r.Context(), currentUser(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tmpl)
}

type runTemplateRequest struct {
	ConversationID *string        `json:"conversation_id"`
	Input          map[string]any `json:"input_json"`
}

// runTemplate executes a template synchronously and returns the run with
// its steps. A tripped circuit breaker answers 400.
// POST /workflows/templates/{id}/run
func (s *Server) runTemplate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "Workflow template")
	if !ok {
		return
	}
	var req runTemplateRequest
	if !decodeOptionalJSON(w, r, &req) {
		return
	}
	run, steps, err := s.svc.Runs.Start(r.Context(), currentUser(r), id, services.StartRun{
		ConversationID: req.ConversationID,
		Input:          req.Input,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, runDetail{WorkflowRun: run, Steps: nonNil(steps)})
}

func (s *Server) listTemplateRuns(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "Workflow template")
	if !ok {
		return
	}
	page, ok := parsePagination(w, r)
	if !ok {
		return
	}
	runs, err := s.svc.Runs.ListForTemplate(r.Context(), currentUser(r), id, page)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(runs))
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "Workflow run")
	if !ok {
		return
	}
	run, steps, err := s.svc.Runs.Get(r.Context(), currentUser(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, runDetail{WorkflowRun: run, Steps: nonNil(steps)})
}

func (s *Server) listRunSteps(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "Workflow run")
	if !ok {
		return
	}
	steps, err := s.svc.Runs.Steps(r.Context(), currentUser(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(steps))
}
