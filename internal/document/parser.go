// Package document turns fetched payloads into ParsedDocuments: text
// extraction for PDF and HTML, normalization, classification, fingerprinting
// and a confidence estimate.
package document

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/mfenderov/agenda-watch/internal/classifier"
	"github.com/mfenderov/agenda-watch/internal/textnorm"
	"github.com/mfenderov/agenda-watch/pkg/models"
)

// DefaultMinMainChars is the smallest content container accepted as the
// page's main element.
const DefaultMinMainChars = 500

// Parser is safe for concurrent use.
type Parser struct {
	pdf          []TextExtractor
	classifier   *classifier.Classifier
	minMainChars int
}

// Option customizes a Parser.
type Option func(*Parser)

// WithPDFExtractors sets the PDF extractor chain.
func WithPDFExtractors(ex ...TextExtractor) Option {
	return func(p *Parser) { p.pdf = ex }
}

// WithClassifier replaces the default classifier.
func WithClassifier(c *classifier.Classifier) Option {
	return func(p *Parser) { p.classifier = c }
}

// NewParser creates a parser using the native PDF extractor and the default
// classifier unless overridden.
func NewParser(opts ...Option) *Parser {
	p := &Parser{
		pdf:          []TextExtractor{NativePDF{}},
		classifier:   classifier.New(),
		minMainChars: DefaultMinMainChars,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse extracts and classifies res. Extraction problems become warnings on
// the returned document; Parse never fails.
func (p *Parser) Parse(ctx context.Context, res *models.FetchResult) *models.ParsedDocument {
	doc := &models.ParsedDocument{SourceURL: res.URL}

	if IsPDF(res.URL, res.ContentType, res.Content) {
		doc.Kind = models.KindPDF
		p.extractPDF(ctx, res.Content, doc)
	} else {
		doc.Kind = models.KindHTML
		p.extractHTML(res.Content, doc)
	}

	doc.Text = textnorm.Normalize(doc.Text)
	doc.Fingerprint = textnorm.Fingerprint(doc.Text)
	doc.DocType = p.classifier.Classify(doc.Text)
	if doc.Kind == models.KindPDF {
		doc.Confidence = pdfConfidence(doc.Text, doc.PageCount, doc.Warnings)
	} else {
		doc.Confidence = htmlConfidence(doc.Text, doc.Warnings)
	}
	if doc.DocType == models.DocTypeAgenda {
		doc.Facts = ExtractFacts(doc.Text)
	}

	slog.Debug("parsed document",
		"url", res.URL,
		"kind", doc.Kind,
		"doc_type", doc.DocType,
		"chars", len(doc.Text),
		"confidence", doc.Confidence,
		"warnings", len(doc.Warnings))
	return doc
}

func (p *Parser) extractPDF(ctx context.Context, content []byte, doc *models.ParsedDocument) {
	if len(p.pdf) == 0 {
		doc.Warnings = append(doc.Warnings, "no_pdf_extractor")
		return
	}
	for _, ex := range p.pdf {
		out, err := ex.Extract(ctx, content)
		if err != nil {
			doc.Warnings = append(doc.Warnings, fmt.Sprintf("%s: %v", ex.Name(), err))
			continue
		}
		if strings.TrimSpace(out.Text) == "" {
			doc.Warnings = append(doc.Warnings, ex.Name()+": no text extracted")
			continue
		}
		doc.Text = out.Text
		doc.PageCount = out.Pages
		return
	}
}

func (p *Parser) extractHTML(content []byte, doc *models.ParsedDocument) {
	doc.PageCount = 1
	if !utf8.Valid(content) {
		content = []byte(strings.ToValidUTF8(string(content), "�"))
	}
	text, title, warnings, err := htmlText(content, p.minMainChars)
	if err != nil {
		doc.Warnings = append(doc.Warnings, err.Error())
		doc.Text = string(content)
		return
	}
	doc.Text = text
	doc.Title = title
	doc.Warnings = append(doc.Warnings, warnings...)
}
