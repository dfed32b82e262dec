package nodes

import (
	"context"

	"github.com/creatory/creatory/internal/creatory"
	"github.com/creatory/creatory/internal/engine"
	"github.com/creatory/creatory/internal/provider"
)

// AgentNode simulates an agent step. When the node carries a prompt, the
// output also records which providers would draft and refine it.
type AgentNode struct {
	preferLocal bool
}

func (n *AgentNode) Execute(_ context.Context, node creatory.Node, rc engine.RunContext) (engine.Outcome, error) {
	out := successOutput(node)
	if prompt := configString(node, "prompt"); prompt != "" {
		resolved := resolveTemplate(prompt, rc)
		preferLocal := n.preferLocal
		if v, ok := node.Config["prefer_local"].(bool); ok {
			preferLocal = v
		}
		out["prompt"] = resolved
		out["routing"] = provider.RouteForTask(resolved, preferLocal)
	}
	return engine.Succeeded(out), nil
}
