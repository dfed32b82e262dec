package nodes

import (
	"context"
	"fmt"

	"github.com/creatory/creatory/internal/creatory"
	"github.com/creatory/creatory/internal/engine"
	"github.com/expr-lang/expr"
)

// RouterNode evaluates its optional "expression" and reports the result as
// the chosen route. Edges are never gated on it.
type RouterNode struct{}

func (RouterNode) Execute(_ context.Context, node creatory.Node, rc engine.RunContext) (engine.Outcome, error) {
	out := successOutput(node)
	expression := configString(node, "expression")
	if expression == "" {
		return engine.Succeeded(out), nil
	}

	env := routeEnv(rc)
	program, err := expr.Compile(expression, expr.Env(env))
	if err != nil {
		return engine.Failed(fmt.Errorf("compile expression %q: %w", expression, err)), nil
	}
	route, err := expr.Run(program, env)
	if err != nil {
		return engine.Failed(fmt.Errorf("evaluate expression %q: %w", expression, err)), nil
	}
	out["route"] = route
	return engine.Succeeded(out), nil
}

func routeEnv(rc engine.RunContext) map[string]any {
	outputs := make(map[string]any, len(rc.Outputs))
	for k, v := range rc.Outputs {
		outputs[k] = v
	}
	return map[string]any{
		"input":   rc.Input,
		"outputs": outputs,
	}
}
