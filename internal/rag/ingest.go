package rag

import (
	"errors"
	"fmt"
	"mime"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// DefaultChunkRunes is the target chunk size used by ingestion.
const DefaultChunkRunes = 1200

// Media types ExtractText understands beyond plain text and HTML.
const (
	MediaPDF  = "application/pdf"
	MediaDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	MediaXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// ErrUnsupportedMedia is returned for bodies with no extractable text.
var ErrUnsupportedMedia = errors.New("unsupported content type")

// ExtractText turns an uploaded body into plain text. HTML is parsed and its
// readable text kept; PDF, DOCX, XLSX and feed documents are unpacked; other
// text is returned trimmed. Images, audio, video and opaque binaries are refused.
func ExtractText(contentType, body string) (string, error) {
	mediaType, _, _ := mime.ParseMediaType(contentType)
	switch {
	case mediaType == "text/html", mediaType == "application/xhtml+xml":
		return extractHTML(body)
	case mediaType == MediaPDF:
		return extractPDF([]byte(body))
	case mediaType == MediaDOCX:
		return extractDOCX([]byte(body))
	case mediaType == MediaXLSX:
		return extractXLSX([]byte(body))
	case mediaType == "application/rss+xml", mediaType == "application/atom+xml",
		mediaType == "application/feed+json":
		return extractFeed(body)
	case strings.HasPrefix(mediaType, "image/"), strings.HasPrefix(mediaType, "audio/"),
		strings.HasPrefix(mediaType, "video/"), mediaType == "application/octet-stream":
		return "", fmt.Errorf("%w: %s", ErrUnsupportedMedia, mediaType)
	}
	return strings.TrimSpace(body), nil
}

func extractHTML(body string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	doc.Find("script, style, noscript, nav, footer").Remove()

	var blocks []string
	doc.Find("h1, h2, h3, h4, p, li, blockquote, pre").Each(func(_ int, s *goquery.Selection) {
		if t := strings.Join(strings.Fields(s.Text()), " "); t != "" {
			blocks = append(blocks, t)
		}
	})
	if len(blocks) == 0 {
		return strings.Join(strings.Fields(doc.Find("body").Text()), " "), nil
	}
	return strings.Join(blocks, "\n\n"), nil
}

// SplitText packs paragraphs into chunks of at most size runes. Paragraphs
// longer than size are cut on word boundaries where possible.
func SplitText(text string, size int) []string {
	if size <= 0 {
		size = DefaultChunkRunes
	}
	var chunks []string
	var cur []rune
	flush := func() {
		if s := strings.TrimSpace(string(cur)); s != "" {
			chunks = append(chunks, s)
		}
		cur = cur[:0]
	}

	for _, para := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n\n") {
		p := []rune(strings.TrimSpace(para))
		if len(p) == 0 {
			continue
		}
		if len(cur) > 0 && len(cur)+2+len(p) > size {
			flush()
		}
		for len(p) > size {
			cut := lastSpace(p[:size])
			if cut <= 0 {
				cut = size
			}
			if len(cur) > 0 {
				flush()
			}
			cur = append(cur, p[:cut]...)
			flush()
			p = []rune(strings.TrimSpace(string(p[cut:])))
		}
		if len(p) == 0 {
			continue
		}
		if len(cur) > 0 {
			cur = append(cur, '\n', '\n')
		}
		cur = append(cur, p...)
	}
	flush()
	return chunks
}

func lastSpace(r []rune) int {
	for i := len(r) - 1; i > 0; i-- {
		if r[i] == ' ' || r[i] == '\n' || r[i] == '\t' {
			return i
		}
	}
	return -1
}
