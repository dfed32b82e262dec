package rag

import (
	"fmt"
	"strings"

	"github.com/creatory/creatory/internal/creatory"
)

const previewRunes = 240

// RenderCitedAnswer formats contexts as a cited preview for query.
func RenderCitedAnswer(query string, contexts []creatory.RetrievedContext) string {
	if len(contexts) == 0 {
		return fmt.Sprintf("No direct RAG evidence found for: %s\nTry uploading more sources or broadening your prompt.", query)
	}

	lines := make([]string, 0, len(contexts)+1)
	lines = append(lines, "RAG notes for: "+query)
	for _, c := range contexts {
		title := c.SourceTitle
		if title == "" {
			title = "Untitled source"
		}
		lines = append(lines, fmt.Sprintf("[%d] %s: %s", c.Citation, title, truncateRunes(c.Content, previewRunes)))
	}
	return strings.Join(lines, "\n")
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
