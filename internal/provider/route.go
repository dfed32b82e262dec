package provider

import "strings"

// Provider names understood by the router.
const (
	Ollama = "ollama"
	OpenAI = "openai"
	VLLM   = "vllm"
)

var complexMarkers = []string{
	"strategy",
	"campaign",
	"go-to-market",
	"research",
	"multi-step",
	"long-form",
}

// Decision says which provider drafts and which refines a prompt.
type Decision struct {
	DraftProvider  string `json:"draft_provider"`
	RefineProvider string `json:"refine_provider"`
	Reason         string `json:"reason"`
}

// IsComplex reports whether prompt mentions any multi-stage marker.
func IsComplex(prompt string) bool {
	p := strings.ToLower(strings.TrimSpace(prompt))
	for _, m := range complexMarkers {
		if strings.Contains(p, m) {
			return true
		}
	}
	return false
}

// RouteForTask picks providers for prompt. Drafts always go to the local model.
func RouteForTask(prompt string, preferLocal bool) Decision {
	complex := IsComplex(prompt)

	if preferLocal {
		refine := Ollama
		if complex {
			refine = VLLM
		}
		return Decision{
			DraftProvider:  Ollama,
			RefineProvider: refine,
			Reason:         "Local-first routing requested by workspace or user preference.",
		}
	}

	if complex {
		return Decision{
			DraftProvider:  Ollama,
			RefineProvider: OpenAI,
			Reason:         "Complex request detected: use low-cost draft + higher-reasoning refinement.",
		}
	}
	return Decision{
		DraftProvider:  Ollama,
		RefineProvider: OpenAI,
		Reason:         "Default hybrid route for responsive drafting and reliable final polish.",
	}
}
