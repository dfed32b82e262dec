package creatory

import (
	"fmt"
	"time"
)

// NodeType identifies what a workflow node does when executed.
type NodeType string

const (
	NodeTypeAgent     NodeType = "agent"
	NodeTypeTool      NodeType = "tool"
	NodeTypeHumanGate NodeType = "human_gate"
	NodeTypeRouter    NodeType = "router"
	NodeTypeMemory    NodeType = "memory"
)

// NodeTypes lists every node type a template may contain.
var NodeTypes = []NodeType{NodeTypeAgent, NodeTypeTool, NodeTypeHumanGate, NodeTypeRouter, NodeTypeMemory}

// ParseNodeType converts a raw string into a NodeType.
func ParseNodeType(s string) (NodeType, error) {
	for _, t := range NodeTypes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: unknown node type %q", ErrInvalid, s)
}

// Agentic reports whether the node type is backed by a model or a tool call.
func (t NodeType) Agentic() bool {
	return t == NodeTypeAgent || t == NodeTypeTool
}

// Template is a versioned workflow definition owned by a workspace.
type Template struct {
	ID          string         `json:"id"`
	WorkspaceID string         `json:"workspace_id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Version     int            `json:"version"`
	Definition  map[string]any `json:"definition_json"`
	IsPublished bool           `json:"is_published"`
	CreatedBy   string         `json:"created_by,omitempty"`
	Nodes       []Node         `json:"nodes"`
	Edges       []Edge         `json:"edges"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// Node is a single step of a template, addressed by its key.
type Node struct {
	ID         string         `json:"id"`
	TemplateID string         `json:"template_id"`
	Key        string         `json:"node_key"`
	Type       NodeType       `json:"type"`
	Config     map[string]any `json:"config_json"`
	PositionX  *float64       `json:"position_x,omitempty"`
	PositionY  *float64       `json:"position_y,omitempty"`
}

// Edge is a directed dependency between two nodes of the same template.
type Edge struct {
	ID            string         `json:"id"`
	TemplateID    string         `json:"template_id"`
	SourceNodeKey string         `json:"source_node_key"`
	TargetNodeKey string         `json:"target_node_key"`
	ConditionExpr string         `json:"condition_expr,omitempty"`
	Metadata      map[string]any `json:"metadata_json"`
}

// Float returns a pointer to v. Handy for node positions.
func Float(v float64) *float64 { return &v }
