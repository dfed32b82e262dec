package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/creatory/creatory/internal/auth"
	"github.com/creatory/creatory/internal/breaker"
	"github.com/creatory/creatory/internal/creatory"
	"github.com/creatory/creatory/internal/dag"
	"github.com/creatory/creatory/internal/services"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
)

// Services are the use cases the HTTP layer exposes.
type Services struct {
	Workspaces *services.WorkspaceService
	Templates  *services.TemplateService
	Runs       *services.RunService
	Knowledge  *services.KnowledgeService
	Agents     *services.AgentService
	MCP        *services.MCPService
}

type Server struct {
	svc         Services
	issuer      *auth.Issuer
	prefix      string
	corsOrigins []string
	limiter     *services.RunLimiter
	metrics     http.Handler
}

func NewServer(svc Services, issuer *auth.Issuer, prefix string) *Server {
	if prefix == "" {
		prefix = "/api/v1"
	}
	return &Server{svc: svc, issuer: issuer, prefix: prefix, corsOrigins: []string{"*"}}
}

// SetCORSOrigins restricts the origins allowed by CORS.
func (s *Server) SetCORSOrigins(origins []string) {
	if len(origins) > 0 {
		s.corsOrigins = origins
	}
}

// SetRunLimiter exposes run concurrency at /workflows/stats.
func (s *Server) SetRunLimiter(limiter *services.RunLimiter) {
	s.limiter = limiter
}

// SetMetricsHandler mounts h at /metrics.
func (s *Server) SetMetricsHandler(h http.Handler) {
	s.metrics = h
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: !allowsAny(s.corsOrigins),
	}))

	r.Route(s.prefix, func(r chi.Router) {
		r.Get("/health", s.health)

		r.Group(func(r chi.Router) {
			r.Use(s.authenticate)

			r.Route("/workspaces", func(r chi.Router) {
				r.Post("/", s.createWorkspace)
				r.Get("/", s.listWorkspaces)
				r.Get("/{id}", s.getWorkspace)
				r.Post("/{id}/members", s.addMember)
				r.Post("/{id}/bootstrap", s.bootstrapWorkspace)
			})
			r.Route("/conversations", func(r chi.Router) {
				r.Post("/", s.createConversation)
				r.Get("/", s.listConversations)
			})
			r.Route("/workflows", func(r chi.Router) {
				r.Get("/stats", s.runStats)
				r.Post("/templates", s.createTemplate)
				r.Get("/templates", s.listTemplates)
				r.Get("/templates/{id}", s.getTemplate)
				r.Post("/templates/{id}/run", s.runTemplate)
				r.Get("/templates/{id}/runs", s.listTemplateRuns)
				r.Get("/runs/{id}", s.getRun)
				r.Get("/runs/{id}/steps", s.listRunSteps)
			})
			r.Route("/knowledge", func(r chi.Router) {
				r.Post("/sources", s.createSource)
				r.Get("/sources", s.listSources)
				r.Post("/sources/{id}/chunks", s.addChunk)
				r.Get("/sources/{id}/chunks", s.listChunks)
				r.Post("/sources/{id}/ingest", s.ingestSource)
				r.Post("/concepts", s.upsertConcept)
				r.Get("/concepts", s.listConcepts)
				r.Post("/query", s.queryKnowledge)
			})
			r.Route("/agents", func(r chi.Router) {
				r.Post("/", s.createAgent)
				r.Get("/", s.listAgents)
				r.Get("/{id}", s.getAgent)
			})
			r.Route("/mcp/servers", func(r chi.Router) {
				r.Post("/", s.registerServer)
				r.Get("/", s.listServers)
				r.Post("/{id}/sync", s.syncTools)
				r.Get("/{id}/tools", s.listTools)
				r.Post("/{id}/tools/{tool}/invoke", s.invokeTool)
			})
		})
	})

	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}
	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) runStats(w http.ResponseWriter, r *http.Request) {
	if s.limiter == nil {
		writeJSON(w, http.StatusOK, services.LimiterStats{})
		return
	}
	writeJSON(w, http.StatusOK, s.limiter.Stats())
}

func allowsAny(origins []string) bool {
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeError maps a service error onto a status code. Errors built with
// creatory.Errorf carry a message meant for the client; anything else is
// logged and reported as a 500.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case breaker.IsTriggered(err), errors.Is(err, dag.ErrCyclicGraph), errors.Is(err, creatory.ErrInvalid):
		status = http.StatusBadRequest
	case errors.Is(err, creatory.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, creatory.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, creatory.ErrConflict):
		status = http.StatusConflict
	}

	msg := err.Error()
	var clientErr *creatory.Error
	if errors.As(err, &clientErr) {
		msg = clientErr.Message
	}
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		msg = "internal server error"
	}
	writeMessage(w, status, msg)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// decodeOptionalJSON is decodeJSON for bodies that may be empty.
func decodeOptionalJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(r.Body).Decode(v)
	if err != nil && !errors.Is(err, io.EOF) {
		writeMessage(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// pathID reads a UUID path parameter. A malformed id answers 404 with the
// resource's usual not-found message.
func pathID(w http.ResponseWriter, r *http.Request, name, resource string) (string, bool) {
	id := chi.URLParam(r, name)
	if _, err := uuid.Parse(id); err != nil {
		writeMessage(w, http.StatusNotFound, resource+" not found")
		return "", false
	}
	return id, true
}

// queryWorkspace reads the required workspace_id query parameter.
func queryWorkspace(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.URL.Query().Get("workspace_id")
	if _, err := uuid.Parse(id); err != nil {
		writeMessage(w, http.StatusBadRequest, "workspace_id query parameter must be a UUID")
		return "", false
	}
	return id, true
}

// parsePagination reads limit and offset. Absent values are left zero for
// the services to default; malformed ones are rejected.
func parsePagination(w http.ResponseWriter, r *http.Request) (creatory.Page, bool) {
	var p creatory.Page
	q := r.URL.Query()
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeMessage(w, http.StatusBadRequest, "limit must be a positive integer")
			return p, false
		}
		p.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeMessage(w, http.StatusBadRequest, "offset must be a non-negative integer")
			return p, false
		}
		p.Offset = n
	}
	return p, true
}

// authenticate resolves the bearer token to a user id.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			writeMessage(w, http.StatusUnauthorized, "Missing bearer token")
			return
		}
		userID, err := s.issuer.Parse(strings.TrimSpace(token))
		if err != nil {
			writeMessage(w, http.StatusUnauthorized, "Invalid token")
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithUser(r.Context(), userID)))
	})
}

func currentUser(r *http.Request) string {
	return auth.UserFromContext(r.Context())
}
