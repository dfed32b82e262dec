// Package repository defines the storage ports of the backend and their
// in-memory adapters. *db.DB satisfies every port for PostgreSQL.
package repository

import (
	"context"

	"github.com/creatory/creatory/internal/creatory"
)

// WorkspaceRepository stores workspaces, memberships and conversations.
type WorkspaceRepository interface {
	CreateWorkspace(ctx context.Context, ws *creatory.Workspace, owner *creatory.Membership) error
	GetWorkspace(ctx context.Context, id string) (*creatory.Workspace, error)
	ListUserWorkspaces(ctx context.Context, userID string) ([]*creatory.Workspace, error)
	GetMembership(ctx context.Context, workspaceID, userID string) (*creatory.Membership, error)
	AddMembership(ctx context.Context, m *creatory.Membership) error
	CreateConversation(ctx context.Context, c *creatory.Conversation) error
	GetConversation(ctx context.Context, id string) (*creatory.Conversation, error)
	ListConversations(ctx context.Context, workspaceID string, page creatory.Page) ([]*creatory.Conversation, error)
}

// TemplateRepository stores workflow templates with their graphs.
type TemplateRepository interface {
	// CreateTemplate stores the template, nodes and edges atomically.
	// A duplicate name/version in the workspace yields ErrConflict.
	CreateTemplate(ctx context.Context, t *creatory.Template) error
	GetTemplate(ctx context.Context, id string) (*creatory.Template, error)
	FindTemplate(ctx context.Context, workspaceID, name string, version int) (*creatory.Template, error)
	ListTemplates(ctx context.Context, workspaceID string, page creatory.Page) ([]*creatory.Template, error)
}

// RunRepository stores workflow runs and their steps.
type RunRepository interface {
	SaveRun(ctx context.Context, run *creatory.WorkflowRun, steps []creatory.RunStep) error
	GetRun(ctx context.Context, id string) (*creatory.WorkflowRun, error)
	ListRunSteps(ctx context.Context, runID string) ([]creatory.RunStep, error)
	ListTemplateRuns(ctx context.Context, templateID string, page creatory.Page) ([]*creatory.WorkflowRun, error)
}

// KnowledgeRepository stores sources, chunks and concepts, and serves the
// retrieval corpus.
type KnowledgeRepository interface {
	CreateSource(ctx context.Context, s *creatory.KnowledgeSource) error
	GetSource(ctx context.Context, id string) (*creatory.KnowledgeSource, error)
	ListSources(ctx context.Context, workspaceID string, page creatory.Page) ([]*creatory.KnowledgeSource, error)
	AppendChunks(ctx context.Context, sourceID string, chunks []*creatory.KnowledgeChunk) error
	ListChunks(ctx context.Context, sourceID string, page creatory.Page) ([]*creatory.KnowledgeChunk, error)
	UpsertConcept(ctx context.Context, c *creatory.ConceptNode) error
	ListConcepts(ctx context.Context, workspaceID string, page creatory.Page) ([]*creatory.ConceptNode, error)
	RetrievalChunks(ctx context.Context, workspaceID string, limit int) ([]creatory.RetrievalChunk, error)
	Concepts(ctx context.Context, workspaceID string, limit int) ([]creatory.ConceptNode, error)
}

// AgentRepository stores agents.
type AgentRepository interface {
	CreateAgent(ctx context.Context, a *creatory.Agent) error
	GetAgent(ctx context.Context, id string) (*creatory.Agent, error)
	FindAgentBySlug(ctx context.Context, workspaceID, slug string) (*creatory.Agent, error)
	ListAgents(ctx context.Context, workspaceID string, includeSystem bool, page creatory.Page) ([]*creatory.Agent, error)
}

// MCPRepository stores tool servers, their tools and the invocation log.
type MCPRepository interface {
	CreateServer(ctx context.Context, s *creatory.MCPServer) error
	GetServer(ctx context.Context, id string) (*creatory.MCPServer, error)
	FindServerByName(ctx context.Context, workspaceID, name string) (*creatory.MCPServer, error)
	ListServers(ctx context.Context, workspaceID string) ([]*creatory.MCPServer, error)
	UpsertTools(ctx context.Context, serverID string, tools []*creatory.MCPTool) error
	ListTools(ctx context.Context, serverID string) ([]*creatory.MCPTool, error)
	FindTool(ctx context.Context, serverID, name string) (*creatory.MCPTool, error)
	RecordInvocation(ctx context.Context, inv *creatory.ToolInvocation) error
}

// Store bundles every repository.
type Store interface {
	WorkspaceRepository
	TemplateRepository
	RunRepository
	KnowledgeRepository
	AgentRepository
	MCPRepository
}
