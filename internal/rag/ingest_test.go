package rag

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractTextHTML(t *testing.T) {
	html := `<html><head><style>p{}</style><script>var x=1;</script></head>
<body><nav>Menu</nav><h1>Latte  Art</h1><p>Pour slowly.</p><ul><li>Milk</li></ul><footer>(c)</footer></body></html>`
	got, err := ExtractText("text/html; charset=utf-8", html)
	require.NoError(t, err)
	assert.Equal(t, "Latte Art\n\nPour slowly.\n\nMilk", got)
}

func TestExtractTextPlain(t *testing.T) {
	got, err := ExtractText("text/plain", "  just text \n")
	require.NoError(t, err)
	assert.Equal(t, "just text", got)
}

func TestSplitText(t *testing.T) {
	text := "first paragraph\n\nsecond paragraph\n\n\n\nthird"
	assert.Equal(t, []string{"first paragraph\n\nsecond paragraph"}, SplitText("first paragraph\n\nsecond paragraph", 100))

	chunks := SplitText(text, 20)
	assert.Equal(t, []string{"first paragraph", "second paragraph", "third"}, chunks)
}

func TestSplitTextLongParagraph(t *testing.T) {
	para := strings.TrimSpace(strings.Repeat("word ", 100))
	chunks := SplitText(para, 42)
	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(c), 42)
	}
	assert.Equal(t, para, strings.Join(chunks, " "))
}

func TestSplitTextEmpty(t *testing.T) {
	assert.Empty(t, SplitText("  \n\n  ", 10))
}
