package document

import (
	"bytes"
	"net/url"
	"strings"
)

// IsPDFContentType checks if the Content-Type header indicates a PDF.
func IsPDFContentType(contentType string) bool {
	return strings.Contains(strings.ToLower(contentType), "pdf")
}

// IsPDFURL checks if the URL path names a PDF file.
func IsPDFURL(rawURL string) bool {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		p = u.Path
	}
	return strings.HasSuffix(strings.ToLower(p), ".pdf")
}

// IsPDFContent checks for the %PDF magic, allowing leading whitespace.
func IsPDFContent(content []byte) bool {
	return bytes.HasPrefix(bytes.TrimLeft(content[:min(len(content), 1024)], " \t\r\n\x00"), []byte("%PDF"))
}

// IsPDF combines all detection methods.
// Checks in order: URL, Content-Type, then magic bytes.
func IsPDF(rawURL, contentType string, content []byte) bool {
	return IsPDFURL(rawURL) || IsPDFContentType(contentType) || IsPDFContent(content)
}
