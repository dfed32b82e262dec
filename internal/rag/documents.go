package rag

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/ledongthuc/pdf"
	"github.com/mmcdole/gofeed"
	"github.com/xuri/excelize/v2"
)

func extractPDF(data []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("parse pdf: %w", err)
	}

	var sb strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		content, err := p.GetPlainText(nil)
		if err != nil {
			continue
		}
		sb.WriteString(content)
		sb.WriteString("\n")
	}
	return strings.TrimSpace(sb.String()), nil
}

// extractDOCX reads word/document.xml and keeps one line per paragraph.
func extractDOCX(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open docx: %w", err)
	}
	for _, f := range zr.File {
		if f.Name != "word/document.xml" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", fmt.Errorf("open docx body: %w", err)
		}
		defer rc.Close()
		return paragraphText(rc)
	}
	return "", errors.New("docx has no word/document.xml")
}

func paragraphText(r io.Reader) (string, error) {
	var sb strings.Builder
	dec := xml.NewDecoder(r)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("parse docx body: %w", err)
		}
		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		switch se.Name.Local {
		case "t":
			var run struct {
				Text string `xml:",chardata"`
			}
			if err := dec.DecodeElement(&run, &se); err == nil {
				sb.WriteString(run.Text)
			}
		case "p":
			sb.WriteString("\n")
		}
	}
	return strings.TrimSpace(sb.String()), nil
}

// extractXLSX flattens every sheet into tab separated rows.
func extractXLSX(data []byte) (string, error) {
	xf, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("open xlsx: %w", err)
	}
	defer xf.Close()

	var sb strings.Builder
	for _, sheet := range xf.GetSheetList() {
		rows, err := xf.GetRows(sheet)
		if err != nil {
			continue
		}
		for _, row := range rows {
			if line := strings.TrimSpace(strings.Join(row, "\t")); line != "" {
				sb.WriteString(line)
				sb.WriteString("\n")
			}
		}
	}
	return strings.TrimSpace(sb.String()), nil
}

// extractFeed renders each feed item as a titled block. Item bodies are
// usually HTML and get flattened to text.
func extractFeed(body string) (string, error) {
	feed, err := gofeed.NewParser().ParseString(body)
	if err != nil {
		return "", fmt.Errorf("parse feed: %w", err)
	}

	var blocks []string
	for _, item := range feed.Items {
		text := item.Content
		if text == "" {
			text = item.Description
		}
		if doc, err := goquery.NewDocumentFromReader(strings.NewReader(text)); err == nil {
			text = doc.Text()
		}
		text = strings.Join(strings.Fields(text), " ")
		title := strings.TrimSpace(item.Title)
		switch {
		case title != "" && text != "":
			blocks = append(blocks, title+"\n"+text)
		case title != "":
			blocks = append(blocks, title)
		case text != "":
			blocks = append(blocks, text)
		}
	}
	return strings.Join(blocks, "\n\n"), nil
}
