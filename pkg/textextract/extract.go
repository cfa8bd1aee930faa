// Package textextract converts binary document formats to plain text.
package textextract

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

type ExtractedText struct {
	Content string
	Pages   int
}

// Extract returns the plain text of a document by file extension or MIME
// type. Unsupported types return an error the caller can skip on.
func Extract(data io.ReaderAt, size int64, fileType string) (*ExtractedText, error) {
	switch normalizeType(fileType) {
	case "pdf":
		return extractPDF(data, size)
	case "docx":
		return extractDOCX(data, size)
	case "txt", "md":
		return extractPlain(data, size)
	default:
		return nil, fmt.Errorf("unsupported file type: %s", fileType)
	}
}

func Supported(fileType string) bool {
	switch normalizeType(fileType) {
	case "pdf", "docx", "txt", "md":
		return true
	}
	return false
}

func normalizeType(t string) string {
	t = strings.ToLower(strings.TrimPrefix(t, "."))
	switch t {
	case "application/pdf":
		return "pdf"
	case "application/vnd.openxmlformats-officedocument.wordprocessingml.document":
		return "docx"
	case "text/plain":
		return "txt"
	case "text/markdown":
		return "md"
	}
	return t
}

func extractPDF(data io.ReaderAt, size int64) (*ExtractedText, error) {
	reader, err := pdf.NewReader(data, size)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}

	var buf strings.Builder
	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		buf.WriteString(text)
		buf.WriteString("\n")
	}

	return &ExtractedText{Content: buf.String(), Pages: numPages}, nil
}

func extractDOCX(data io.ReaderAt, size int64) (*ExtractedText, error) {
	reader, err := zip.NewReader(data, size)
	if err != nil {
		return nil, fmt.Errorf("open docx: %w", err)
	}

	var buf strings.Builder
	for _, f := range reader.File {
		if filepath.Base(f.Name) != "document.xml" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open document.xml: %w", err)
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("read document.xml: %w", err)
		}
		buf.WriteString(stripXMLTags(string(content)))
		break
	}

	return &ExtractedText{Content: buf.String(), Pages: 1}, nil
}

func extractPlain(data io.ReaderAt, size int64) (*ExtractedText, error) {
	buf := make([]byte, size)
	if _, err := data.ReadAt(buf, 0); err != nil && err != io.EOF {
		return nil, fmt.Errorf("read text: %w", err)
	}
	return &ExtractedText{Content: string(bytes.TrimSpace(buf)), Pages: 1}, nil
}

// stripXMLTags drops markup and inserts breaks at paragraph boundaries.
func stripXMLTags(s string) string {
	var buf strings.Builder
	inTag := false
	for i := 0; i < len(s); i++ {
		switch {
		case s[i] == '<':
			inTag = true
			if strings.HasPrefix(s[i:], "</w:p>") {
				buf.WriteByte('\n')
			}
		case s[i] == '>':
			inTag = false
		case !inTag:
			buf.WriteByte(s[i])
		}
	}
	return strings.TrimSpace(buf.String())
}
