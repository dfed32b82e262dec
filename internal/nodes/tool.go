package nodes

import (
	"context"
	"fmt"

	"github.com/creatory/creatory/internal/creatory"
	"github.com/creatory/creatory/internal/engine"
)

// ToolNode calls an MCP tool when the node names one and a ToolInvoker is
// available, and simulates success otherwise.
type ToolNode struct {
	tools ToolInvoker
}

func (n *ToolNode) Execute(ctx context.Context, node creatory.Node, rc engine.RunContext) (engine.Outcome, error) {
	server, tool := configString(node, "server"), configString(node, "tool")
	if n.tools == nil || server == "" || tool == "" {
		return engine.Succeeded(successOutput(node)), nil
	}

	args := map[string]any{}
	if raw, ok := node.Config["arguments"].(map[string]any); ok {
		for k, v := range raw {
			if s, ok := v.(string); ok {
				v = resolveTemplate(s, rc)
			}
			args[k] = v
		}
	}

	result, err := n.tools.InvokeTool(ctx, rc.WorkspaceID, server, tool, args)
	if err != nil {
		return engine.Failed(fmt.Errorf("tool %s/%s: %w", server, tool, err)), nil
	}
	out := successOutput(node)
	out["tool_result"] = result
	return engine.Succeeded(out), nil
}
