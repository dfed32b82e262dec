package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/creatory/creatory/internal/creatory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

type fakeCorpus struct {
	chunks       []creatory.RetrievalChunk
	concepts     []creatory.ConceptNode
	chunkLimit   int
	conceptCalls int
	err          error
}

func (f *fakeCorpus) RetrievalChunks(_ context.Context, _ string, limit int) ([]creatory.RetrievalChunk, error) {
	f.chunkLimit = limit
	if f.err != nil {
		return nil, f.err
	}
	if len(f.chunks) > limit {
		return f.chunks[:limit], nil
	}
	return f.chunks, nil
}

func (f *fakeCorpus) Concepts(_ context.Context, _ string, limit int) ([]creatory.ConceptNode, error) {
	f.conceptCalls++
	if len(f.concepts) > limit {
		return f.concepts[:limit], nil
	}
	return f.concepts, nil
}

func chunk(id, content string) creatory.RetrievalChunk {
	return creatory.RetrievalChunk{ChunkID: id, SourceID: "src-" + id, SourceTitle: "Title " + id, Content: content}
}

type countingObserver struct{ last int }

func (o *countingObserver) ObserveRetrieval(n int) { o.last = n }

func TestTokens(t *testing.T) {
	got := Tokens(`  Best "Espresso" grinders, (2024) at an ok price! `)
	assert.Equal(t, []string{"best", "espresso", "grinders", "2024", "price"}, got)
	assert.Empty(t, Tokens("a an to of"))
}

func TestChunkScore(t *testing.T) {
	tokens := Tokens("espresso grinder review")
	assert.InDelta(t, 2.0/3.0, ChunkScore(tokens, "An ESPRESSO grinder for home"), 1e-9)
	assert.Zero(t, ChunkScore(tokens, "nothing relevant"))
	assert.Zero(t, ChunkScore(nil, "espresso"))

	long := "espresso " + strings.Repeat("x", 2000)
	assert.InDelta(t, 1.0/3.0-0.05, ChunkScore(tokens, long), 1e-9)
}

func TestChunkScorePenaltyFloorsAtZero(t *testing.T) {
	tokens := make([]string, 30)
	for i := range tokens {
		tokens[i] = fmt.Sprintf("tok%02d", i)
	}
	long := "tok00 " + strings.Repeat("y", 2100)
	assert.Zero(t, ChunkScore(tokens, long))
}

func TestConceptBonus(t *testing.T) {
	tokens := Tokens("latte art tutorial")
	concepts := []creatory.ConceptNode{
		{ConceptKey: "latte", Label: "Latte"},
		{ConceptKey: "milk", Label: "Milk Foam"},
		{ConceptKey: "beans", Label: "Roasting"},
	}
	assert.InDelta(t, 0.05, ConceptBonus(tokens, concepts), 1e-9)

	many := make([]creatory.ConceptNode, 10)
	for i := range many {
		many[i] = creatory.ConceptNode{ConceptKey: fmt.Sprintf("tutorial-%d", i)}
	}
	assert.InDelta(t, 0.35, ConceptBonus(tokens, many), 1e-9)
	assert.Zero(t, ConceptBonus(nil, many))
}

func TestRetrieveEmptyQuery(t *testing.T) {
	corpus := &fakeCorpus{chunks: []creatory.RetrievalChunk{chunk("a", "anything")}}
	got, err := NewRetriever(corpus).Retrieve(context.Background(), "ws", "   ", 5)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Zero(t, corpus.chunkLimit, "empty query must not touch the corpus")
}

func TestRetrieveRanksAndCites(t *testing.T) {
	corpus := &fakeCorpus{chunks: []creatory.RetrievalChunk{
		chunk("weak", "espresso basics"),
		chunk("none", "unrelated text"),
		chunk("strong", "espresso grinder settings"),
		chunk("tie", "grinder espresso"),
	}}
	obs := &countingObserver{}
	r := NewRetriever(corpus)
	r.SetObserver(obs)

	got, err := r.Retrieve(context.Background(), "ws", "Espresso Grinder", 5)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "strong", got[0].ChunkID)
	assert.Equal(t, "tie", got[1].ChunkID, "equal scores keep corpus order")
	assert.Equal(t, "weak", got[2].ChunkID)
	for i, c := range got {
		assert.Equal(t, i+1, c.Citation)
		assert.Greater(t, c.Score, 0.0)
	}
	assert.Equal(t, ChunkWindow, corpus.chunkLimit)
	assert.Equal(t, 3, obs.last)
}

func TestRetrieveTopK(t *testing.T) {
	var chunks []creatory.RetrievalChunk
	for i := 0; i < 10; i++ {
		chunks = append(chunks, chunk(fmt.Sprint(i), "espresso"))
	}
	got, err := NewRetriever(&fakeCorpus{chunks: chunks}).Retrieve(context.Background(), "ws", "espresso", 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"0", "1", "2"}, []string{got[0].ChunkID, got[1].ChunkID, got[2].ChunkID})
}

func TestRetrieveConceptBonusLiftsAllChunks(t *testing.T) {
	corpus := &fakeCorpus{
		chunks:   []creatory.RetrievalChunk{chunk("a", "unrelated"), chunk("b", "latte foam")},
		concepts: []creatory.ConceptNode{{ConceptKey: "latte", Label: "Latte"}},
	}
	got, err := NewRetriever(corpus).Retrieve(context.Background(), "ws", "latte", 5)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].ChunkID)
	assert.InDelta(t, 1.05, got[0].Score, 1e-9)
	assert.InDelta(t, 0.05, got[1].Score, 1e-9)
}

func TestRetrieveShortTokensOnly(t *testing.T) {
	corpus := &fakeCorpus{chunks: []creatory.RetrievalChunk{chunk("a", "ai is ok")}}
	got, err := NewRetriever(corpus).Retrieve(context.Background(), "ws", "ai ok", 5)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Zero(t, corpus.conceptCalls)
}

func TestRetrieveCorpusError(t *testing.T) {
	corpus := &fakeCorpus{err: errors.New("db down")}
	_, err := NewRetriever(corpus).Retrieve(context.Background(), "ws", "espresso", 5)
	require.Error(t, err)
}

func TestRetrieveProperties(t *testing.T) {
	words := []string{"espresso", "grinder", "latte", "milk", "beans", "roast", "crema", "tamp"}
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(0, 40).Draw(rt, "chunks")
		chunks := make([]creatory.RetrievalChunk, n)
		for i := range chunks {
			picked := rapid.SliceOfN(rapid.SampledFrom(words), 1, 6).Draw(rt, fmt.Sprintf("words_%d", i))
			chunks[i] = chunk(fmt.Sprint(i), strings.Join(picked, " "))
		}
		query := strings.Join(rapid.SliceOfN(rapid.SampledFrom(words), 1, 3).Draw(rt, "query"), " ")
		topK := rapid.IntRange(1, 20).Draw(rt, "topK")

		r := NewRetriever(&fakeCorpus{chunks: chunks})
		first, err := r.Retrieve(context.Background(), "ws", query, topK)
		if err != nil {
			rt.Fatal(err)
		}
		second, _ := r.Retrieve(context.Background(), "ws", query, topK)

		if len(first) > topK {
			rt.Fatalf("got %d results for top_k %d", len(first), topK)
		}
		if len(first) != len(second) {
			rt.Fatalf("non-deterministic length")
		}
		for i := range first {
			if first[i] != second[i] {
				rt.Fatalf("non-deterministic result at %d", i)
			}
			if first[i].Citation != i+1 || first[i].Score <= 0 {
				rt.Fatalf("bad result %+v at %d", first[i], i)
			}
			if i > 0 && first[i].Score > first[i-1].Score {
				rt.Fatalf("scores not descending at %d", i)
			}
		}
	})
}
