package rag

import (
	"math"
	"strings"
	"unicode/utf8"

	"github.com/creatory/creatory/internal/creatory"
)

const (
	tokenTrimSet      = ".,:;!?()[]{}\"'"
	minTokenRunes     = 3
	longChunkRunes    = 2000
	longChunkPenalty  = 0.05
	conceptBonusStep  = 0.05
	conceptBonusLimit = 0.35
)

// Tokens lowercases text, splits it on whitespace, trims surrounding
// punctuation and keeps words longer than two characters. Duplicates are
// kept.
func Tokens(text string) []string {
	words := strings.Fields(strings.ToLower(text))
	out := make([]string, 0, len(words))
	for _, w := range words {
		w = strings.Trim(w, tokenTrimSet)
		if utf8.RuneCountInString(w) >= minTokenRunes {
			out = append(out, w)
		}
	}
	return out
}

// ChunkScore is the fraction of query tokens found in content, less a small
// penalty for very long chunks, floored at zero.
func ChunkScore(tokens []string, content string) float64 {
	if len(tokens) == 0 {
		return 0
	}
	lower := strings.ToLower(content)
	hits := 0
	for _, tok := range tokens {
		if strings.Contains(lower, tok) {
			hits++
		}
	}
	if hits == 0 {
		return 0
	}
	density := float64(hits) / float64(len(tokens))
	penalty := 0.0
	if utf8.RuneCountInString(content) > longChunkRunes {
		penalty = longChunkPenalty
	}
	return math.Max(0, density-penalty)
}

// ConceptBonus adds 0.05 per concept whose key or label contains any query
// token, capped at 0.35.
func ConceptBonus(tokens []string, concepts []creatory.ConceptNode) float64 {
	if len(tokens) == 0 {
		return 0
	}
	matches := 0
	for _, c := range concepts {
		hay := strings.ToLower(c.ConceptKey + " " + c.Label)
		for _, tok := range tokens {
			if strings.Contains(hay, tok) {
				matches++
				break
			}
		}
	}
	if matches == 0 {
		return 0
	}
	return math.Min(conceptBonusLimit, conceptBonusStep*float64(matches))
}
