package httpapi

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"golang.org/x/net/html"

	"github.com/mrwind-up-bird/mini-chat-rag/internal/apperr"
)

// extractUploadContent turns the raw bytes of an uploaded file into plain
// text, dispatching on the file extension. Uploads arrive in memory, so
// this reads against byte readers rather than the filesystem paths the
// worker's extraction helpers use for URLs.
func extractUploadContent(filename string, data []byte) (string, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".txt":
		return normalizeUploadText(string(data)), nil
	case ".html", ".htm":
		return extractHTMLBytes(data)
	case ".epub":
		return extractEPUBBytes(data)
	case ".pdf":
		return extractPDFBytes(data)
	default:
		return "", apperr.InvalidInput(fmt.Sprintf("unsupported upload extension %q", filepath.Ext(filename)))
	}
}

func extractHTMLBytes(data []byte) (string, error) {
	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return "", apperr.Wrap(apperr.KindInvalidInput, "parse html upload", err)
	}
	return extractVisibleText(doc), nil
}

func extractEPUBBytes(data []byte) (string, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", apperr.Wrap(apperr.KindInvalidInput, "open epub upload", err)
	}
	var sb strings.Builder
	for _, f := range reader.File {
		ext := strings.ToLower(filepath.Ext(f.Name))
		if ext != ".xhtml" && ext != ".html" && ext != ".htm" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			continue
		}
		body, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			continue
		}
		doc, err := html.Parse(bytes.NewReader(body))
		if err != nil {
			continue
		}
		sb.WriteString(extractVisibleText(doc))
		sb.WriteString("\n")
	}
	return normalizeUploadText(sb.String()), nil
}

func extractPDFBytes(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", apperr.Wrap(apperr.KindInvalidInput, "open pdf upload", err)
	}
	var sb strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		sb.WriteString(text)
		sb.WriteString("\n")
	}
	return normalizeUploadText(sb.String()), nil
}

// extractVisibleText walks an HTML node tree collecting text content,
// skipping script/style elements.
func extractVisibleText(n *html.Node) string {
	var buf strings.Builder
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		switch node.Type {
		case html.TextNode:
			buf.WriteString(node.Data)
			buf.WriteString(" ")
		case html.ElementNode:
			if node.Data == "script" || node.Data == "style" {
				return
			}
		}
		for child := node.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
		if node.Type == html.ElementNode && (node.Data == "p" || node.Data == "br" || node.Data == "div" || node.Data == "li") {
			buf.WriteString(" ")
		}
	}
	walk(n)
	return buf.String()
}

func normalizeUploadText(text string) string {
	text = strings.ReplaceAll(text, "\x00", "")
	if !utf8.ValidString(text) {
		text = strings.ToValidUTF8(text, "")
	}
	fields := strings.Fields(text)
	return strings.TrimSpace(strings.Join(fields, " "))
}
