package catalog

import "github.com/creatory/creatory/internal/creatory"

// DirectorAgentSlug identifies the coordinator agent every workspace gets.
const DirectorAgentSlug = "main-director"

// DirectorAgent describes the workspace's default coordinator agent.
func DirectorAgent(workspaceID string) creatory.Agent {
	ws := workspaceID
	return creatory.Agent{
		WorkspaceID: &ws,
		Name:        "Main Director Agent",
		Slug:        DirectorAgentSlug,
		PersonaPrompt: "You are the central coordinator for creator workflows. " +
			"Break ideas into concrete tasks, propose tool calls, and keep outputs ready for publishing.",
		Config: map[string]any{
			"mode":                 "director",
			"supports_dual_stream": true,
			"supports_injection":   true,
		},
		IsSystem: true,
	}
}
