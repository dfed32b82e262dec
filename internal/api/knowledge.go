package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/creatory/creatory/internal/creatory"
	"github.com/creatory/creatory/internal/rag"
)

// maxIngestBytes caps raw bodies posted to the ingest endpoint.
const maxIngestBytes = 10 << 20

func (s *Server) createSource(w http.ResponseWriter, r *http.Request) {
	var src creatory.KnowledgeSource
	if !decodeJSON(w, r, &src) {
		return
	}
	created, err := s.svc.Knowledge.CreateSource(r.Context(), currentUser(r), &src)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) listSources(w http.ResponseWriter, r *http.Request) {
	wsID, ok := queryWorkspace(w, r)
	if !ok {
		return
	}
	page, ok := parsePagination(w, r)
	if !ok {
		return
	}
	list, err := s.svc.Knowledge.ListSources(r.Context(), currentUser(r), wsID, page)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(list))
}

func (s *Server) addChunk(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "Knowledge source")
	if !ok {
		return
	}
	var chunk creatory.KnowledgeChunk
	if !decodeJSON(w, r, &chunk) {
		return
	}
	created, err := s.svc.Knowledge.AddChunk(r.Context(), currentUser(r), id, &chunk)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) listChunks(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "Knowledge source")
	if !ok {
		return
	}
	page, ok := parsePagination(w, r)
	if !ok {
		return
	}
	list, err := s.svc.Knowledge.ListChunks(r.Context(), currentUser(r), id, page)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(list))
}

// ingestSource splits a raw text or HTML body into chunks of the source.
// POST /knowledge/sources/{id}/ingest
func (s *Server) ingestSource(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "Knowledge source")
	if !ok {
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxIngestBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeMessage(w, http.StatusRequestEntityTooLarge, "body exceeds 10 MiB")
			return
		}
		writeMessage(w, http.StatusBadRequest, "could not read body")
		return
	}
	chunks, err := s.svc.Knowledge.Ingest(r.Context(), currentUser(r), id, r.Header.Get("Content-Type"), string(body))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, chunks)
}

func (s *Server) upsertConcept(w http.ResponseWriter, r *http.Request) {
	var c creatory.ConceptNode
	if !decodeJSON(w, r, &c) {
		return
	}
	saved, err := s.svc.Knowledge.UpsertConcept(r.Context(), currentUser(r), &c)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, saved)
}

func (s *Server) listConcepts(w http.ResponseWriter, r *http.Request) {
	wsID, ok := queryWorkspace(w, r)
	if !ok {
		return
	}
	page, ok := parsePagination(w, r)
	if !ok {
		return
	}
	list, err := s.svc.Knowledge.ListConcepts(r.Context(), currentUser(r), wsID, page)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(list))
}

type queryRequest struct {
	WorkspaceID string `json:"workspace_id"`
	Query       string `json:"query"`
	TopK        *int   `json:"top_k"`
}

func (s *Server) queryKnowledge(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	topK := rag.DefaultTopK
	if req.TopK != nil {
		topK = *req.TopK
	}
	res, err := s.svc.Knowledge.Query(r.Context(), currentUser(r), req.WorkspaceID, req.Query, topK)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
