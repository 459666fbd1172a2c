package document

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Extraction is the raw text pulled out of a binary document.
type Extraction struct {
	Text  string
	Pages int
}

// TextExtractor turns document bytes into text. Implementations are chosen
// at startup; a parser tries them in order until one yields text.
type TextExtractor interface {
	Name() string
	Extract(ctx context.Context, content []byte) (*Extraction, error)
}

// NativePDF extracts text in-process.
type NativePDF struct{}

func (NativePDF) Name() string { return "native" }

func (NativePDF) Extract(ctx context.Context, content []byte) (ext *Extraction, err error) {
	defer func() {
		if r := recover(); r != nil {
			ext, err = nil, fmt.Errorf("pdf reader panic: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("failed to open pdf: %w", err)
	}

	var sb strings.Builder
	pages := r.NumPage()
	for i := 1; i <= pages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to read page %d: %w", i, err)
		}
		sb.WriteString(text)
		sb.WriteString("\n")
	}
	return &Extraction{Text: sb.String(), Pages: pages}, nil
}

// Poppler shells out to pdftotext, which preserves layout better than the
// native reader on multi-column agendas.
type Poppler struct {
	Path string
}

// NewPoppler locates pdftotext on PATH.
func NewPoppler() (*Poppler, error) {
	path, err := exec.LookPath("pdftotext")
	if err != nil {
		return nil, fmt.Errorf("pdftotext not available: %w", err)
	}
	return &Poppler{Path: path}, nil
}

func (p *Poppler) Name() string { return "pdftotext" }

func (p *Poppler) Extract(ctx context.Context, content []byte) (*Extraction, error) {
	cmd := exec.CommandContext(ctx, p.Path, "-layout", "-enc", "UTF-8", "-", "-")
	cmd.Stdin = bytes.NewReader(content)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("pdftotext failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	text := stdout.String()
	pages := strings.Count(text, "\f")
	if pages == 0 && strings.TrimSpace(text) != "" {
		pages = 1
	}
	return &Extraction{Text: strings.ReplaceAll(text, "\f", "\n"), Pages: pages}, nil
}

// PDFExtractors builds the extractor chain named in configuration. Unknown
// names and unavailable tools are configuration errors.
func PDFExtractors(names []string) ([]TextExtractor, error) {
	if len(names) == 0 {
		names = []string{"native"}
	}
	var out []TextExtractor
	for _, name := range names {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "native":
			out = append(out, NativePDF{})
		case "pdftotext", "poppler":
			p, err := NewPoppler()
			if err != nil {
				return nil, err
			}
			out = append(out, p)
		default:
			return nil, fmt.Errorf("unknown pdf extractor %q", name)
		}
	}
	return out, nil
}
