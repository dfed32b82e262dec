package nodes

import (
	"context"

	"github.com/creatory/creatory/internal/creatory"
	"github.com/creatory/creatory/internal/engine"
)

type HumanGateNode struct{}

func (HumanGateNode) Execute(context.Context, creatory.Node, engine.RunContext) (engine.Outcome, error) {
	return engine.PendingHuman(map[string]any{
		"message":    "Awaiting creator confirmation before continuing.",
		"human_gate": true,
	}), nil
}
