package document

import (
	"regexp"
	"strings"

	"github.com/mfenderov/agenda-watch/internal/textnorm"
	"github.com/mfenderov/agenda-watch/pkg/models"
)

const (
	factScanLines = 400
	maxFactItems  = 10
)

var (
	factDatePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(January|February|March|April|May|June|July|August|September|October|November|December)\s+\d{1,2},?\s+\d{4}`),
		regexp.MustCompile(`(?i)\b(Jan|Feb|Mar|Apr|Jun|Jul|Aug|Sep|Sept|Oct|Nov|Dec)\.?\s+\d{1,2},?\s+\d{4}`),
		regexp.MustCompile(`\b\d{1,2}/\d{1,2}/\d{4}\b`),
		regexp.MustCompile(`\b\d{1,2}-\d{1,2}-\d{4}\b`),
		regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`),
	}
	factTime         = regexp.MustCompile(`(?i)\b\d{1,2}:\d{2}\s*(am|pm|a\.m\.|p\.m\.)`)
	factBodyPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)board\s+of\s+supervisors`),
		regexp.MustCompile(`(?i)board\s+of\s+\w+`),
		regexp.MustCompile(`(?i)city\s+council`),
		regexp.MustCompile(`(?i)planning\s+commission`),
		regexp.MustCompile(`(?i)committee\s+on\s+\w+`),
		regexp.MustCompile(`(?i)metro\s+board`),
	}
	locationKeywords = []string{"location:", "address:", "zoom:", "meeting location", "board room", "city hall", "chambers"}
	factItem         = regexp.MustCompile(`^(\d+\\?[.)]|[•\-*])\s+`)
)

// ExtractFacts pulls the meeting date, time, body, location and the first
// agenda items out of agenda text. Missing facts stay empty.
func ExtractFacts(text string) *models.Facts {
	facts := &models.Facts{}
	lines := strings.Split(text, "\n")
	if len(lines) > factScanLines {
		lines = lines[:factScanLines]
	}

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if len(line) < 3 {
			continue
		}
		lower := strings.ToLower(line)

		if facts.MeetingDate == "" {
			for _, p := range factDatePatterns {
				if m := p.FindString(line); m != "" {
					facts.MeetingDate = m
					break
				}
			}
		}
		if facts.MeetingTime == "" {
			facts.MeetingTime = factTime.FindString(line)
		}
		if facts.Committee == "" {
			for _, p := range factBodyPatterns {
				if m := p.FindString(line); m != "" {
					facts.Committee = titleCase(m)
					break
				}
			}
		}
		if facts.Location == "" {
			facts.Location = location(line, lower)
		}
		if len(facts.Items) < maxFactItems && len(line) > 20 && factItem.MatchString(line) {
			if item := strings.TrimSpace(factItem.ReplaceAllString(line, "")); len(item) > 15 {
				facts.Items = append(facts.Items, textnorm.Truncate(item, 150))
			}
		}
	}
	return facts
}

func location(line, lower string) string {
	for _, kw := range locationKeywords {
		if !strings.Contains(lower, kw) {
			continue
		}
		if _, after, ok := strings.Cut(line, ":"); ok && len(strings.TrimSpace(after)) > 5 {
			return textnorm.Truncate(strings.TrimSpace(after), 120)
		}
		return textnorm.Truncate(line, 120)
	}
	return ""
}

func titleCase(s string) string {
	words := strings.Fields(strings.ToLower(s))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
