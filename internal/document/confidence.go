package document

import (
	"regexp"

	"github.com/mfenderov/agenda-watch/internal/classifier"
)

var numericDate = regexp.MustCompile(`(?i)\d{1,2}/\d{1,2}/\d{2,4}|\d{4}-\d{2}-\d{2}|\b(january|february|march|april|may|june|july|august|september|october|november|december)\s+\d{1,2}`)

// pdfConfidence scores how trustworthy a PDF extraction looks.
func pdfConfidence(text string, pages int, warnings []string) float64 {
	if len(text) < 100 {
		return 0.1
	}
	c := 0.6
	if len(text) > 1000 {
		c += 0.1
	}
	if pages > 1 {
		c += 0.1
	}
	if classifier.ContainsAgendaVocabulary(text) {
		c += 0.1
	}
	c -= 0.05 * float64(len(warnings))
	return clamp(c)
}

func htmlConfidence(text string, warnings []string) float64 {
	if len(text) < 100 {
		return 0.1
	}
	c := 0.5
	if classifier.ContainsAgendaVocabulary(text) {
		c += 0.1
	}
	if numericDate.MatchString(text) {
		c += 0.1
	}
	for _, w := range warnings {
		if w == WarnNoMainElement {
			c -= 0.1
		}
	}
	return clamp(c)
}

func clamp(c float64) float64 {
	return max(0, min(1, c))
}
