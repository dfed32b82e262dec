// Package nodes implements the executors behind each workflow node type.
package nodes

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/creatory/creatory/internal/creatory"
	"github.com/creatory/creatory/internal/engine"
)

// ToolInvoker calls a tool registered on one of the workspace's MCP servers.
type ToolInvoker interface {
	InvokeTool(ctx context.Context, workspaceID, serverName, toolName string, args map[string]any) (map[string]any, error)
}

// Retriever looks up cited knowledge for a workspace.
type Retriever interface {
	Retrieve(ctx context.Context, workspaceID, query string, topK int) ([]creatory.RetrievedContext, error)
}

// Deps are the optional collaborators of the executors. Nil members make
// the corresponding node types fall back to simulated execution.
type Deps struct {
	Tools       ToolInvoker
	Retriever   Retriever
	PreferLocal bool
}

// NewRegistry returns an executor for every node type.
func NewRegistry(deps Deps) engine.ExecutorMap {
	return engine.ExecutorMap{
		creatory.NodeTypeAgent:     &AgentNode{preferLocal: deps.PreferLocal},
		creatory.NodeTypeTool:      &ToolNode{tools: deps.Tools},
		creatory.NodeTypeHumanGate: &HumanGateNode{},
		creatory.NodeTypeRouter:    &RouterNode{},
		creatory.NodeTypeMemory:    &MemoryNode{retriever: deps.Retriever},
	}
}

// successOutput is the output every simulated node reports.
func successOutput(node creatory.Node) map[string]any {
	cfg := node.Config
	if cfg == nil {
		cfg = map[string]any{}
	}
	return map[string]any{
		"message": fmt.Sprintf("Node %s executed successfully", node.Key),
		"summary": map[string]any{
			"agentic": node.Type.Agentic(),
			"config":  cfg,
		},
	}
}

var templatePattern = regexp.MustCompile(`\{\{[^{}]+\}\}`)

// resolveTemplate replaces {{key}} with values from the run input and
// {{node.field}} with fields of earlier node outputs. Unknown references are
// left untouched.
func resolveTemplate(template string, rc engine.RunContext) string {
	return templatePattern.ReplaceAllStringFunc(template, func(match string) string {
		key := strings.TrimSpace(strings.Trim(match, "{}"))
		parts := strings.SplitN(key, ".", 2)
		if len(parts) == 2 {
			if out, ok := rc.Outputs[parts[0]]; ok {
				if val, ok := out[parts[1]]; ok {
					return fmt.Sprintf("%v", val)
				}
			}
		}
		if val, ok := rc.Input[key]; ok {
			return fmt.Sprintf("%v", val)
		}
		return match
	})
}

func configString(node creatory.Node, key string) string {
	s, _ := node.Config[key].(string)
	return strings.TrimSpace(s)
}
