package retrieval

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"code.sajari.com/docconv"
)

// ExtractText pulls plain text out of an uploaded document. Plain-text
// formats pass through directly; PDF, Word and HTML go through docconv.
func ExtractText(data []byte, fileName, contentType string) (string, error) {
	ext := strings.ToLower(filepath.Ext(fileName))
	switch ext {
	case ".txt", ".md", ".csv":
		return string(data), nil
	}

	if contentType == "" || contentType == "application/octet-stream" {
		contentType = mimeTypeForExt(ext)
	}

	res, err := docconv.Convert(bytes.NewReader(data), contentType, false)
	if err != nil {
		return "", fmt.Errorf("extract %s: %w", fileName, err)
	}
	if strings.TrimSpace(res.Body) == "" {
		return "", fmt.Errorf("extract %s: no text content", fileName)
	}
	return res.Body, nil
}

func mimeTypeForExt(ext string) string {
	switch ext {
	case ".pdf":
		return "application/pdf"
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case ".html":
		return "text/html"
	default:
		return "text/plain"
	}
}
