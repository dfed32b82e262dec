package nodes

import (
	"context"
	"fmt"

	"github.com/creatory/creatory/internal/creatory"
	"github.com/creatory/creatory/internal/engine"
)

const defaultMemoryTopK = 5

// MemoryNode attaches workspace knowledge matching its "query".
type MemoryNode struct {
	retriever Retriever
}

func (n *MemoryNode) Execute(ctx context.Context, node creatory.Node, rc engine.RunContext) (engine.Outcome, error) {
	out := successOutput(node)
	query := configString(node, "query")
	if n.retriever == nil || query == "" {
		return engine.Succeeded(out), nil
	}

	topK := defaultMemoryTopK
	switch v := node.Config["top_k"].(type) {
	case float64:
		if v >= 1 {
			topK = int(v)
		}
	case int:
		if v >= 1 {
			topK = v
		}
	}
	resolved := resolveTemplate(query, rc)
	results, err := n.retriever.Retrieve(ctx, rc.WorkspaceID, resolved, topK)
	if err != nil {
		return engine.Failed(fmt.Errorf("retrieve %q: %w", resolved, err)), nil
	}
	if results == nil {
		results = []creatory.RetrievedContext{}
	}
	out["query"] = resolved
	out["citations"] = results
	return engine.Succeeded(out), nil
}
