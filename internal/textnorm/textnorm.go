// Package textnorm strips volatile artifacts from extracted document text and
// derives order-insensitive content fingerprints.
package textnorm

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

var (
	pageOfPattern    = regexp.MustCompile(`\b[Pp]age\s+\d+\s+(of|/)\s+\d+\b`)
	pagePattern      = regexp.MustCompile(`\b[Pp]age\s+\d+\b`)
	printedPattern   = regexp.MustCompile(`\b[Pp]rinted[ \t]+(on|at)[ \t]+[^\n]+`)
	updatedPattern   = regexp.MustCompile(`\b[Uu]pdated([ \t]+(on|at))?[ \t]*[^\n]*`)
	generatedPattern = regexp.MustCompile(`\b[Gg]enerated([ \t]+(on|at))?[ \t]*[^\n]*`)
	blankRunPattern  = regexp.MustCompile(`\n\s*\n\s*\n+`)
	spacePattern     = regexp.MustCompile(`[ \t]+`)
	whitespace       = regexp.MustCompile(`\s+`)
)

// FingerprintLength is the number of hex characters kept from the digest.
const FingerprintLength = 16

// Normalize removes page markers and printed/updated/generated timestamps,
// collapses blank-line runs and horizontal whitespace, and trims the result.
func Normalize(text string) string {
	text = pageOfPattern.ReplaceAllString(text, "")
	text = pagePattern.ReplaceAllString(text, "")
	text = printedPattern.ReplaceAllString(text, "")
	text = updatedPattern.ReplaceAllString(text, "")
	text = generatedPattern.ReplaceAllString(text, "")
	text = blankRunPattern.ReplaceAllString(text, "\n\n")
	text = spacePattern.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// Fingerprint hashes the sorted set of meaningful lines of text. Case,
// whitespace and line order do not affect the result, and lines of three
// characters or fewer are ignored.
func Fingerprint(text string) string {
	lines := significantLines(strings.ToLower(text))
	sort.Strings(lines)
	sum := sha256.Sum256([]byte(strings.Join(lines, "\n")))
	return hex.EncodeToString(sum[:])[:FingerprintLength]
}

func significantLines(text string) []string {
	raw := strings.Split(text, "\n")
	lines := make([]string, 0, len(raw))
	for _, line := range raw {
		line = strings.TrimSpace(whitespace.ReplaceAllString(line, " "))
		if utf8.RuneCountInString(line) > 3 {
			lines = append(lines, line)
		}
	}
	return lines
}

// Truncate cuts text to at most n runes.
func Truncate(text string, n int) string {
	if n <= 0 || utf8.RuneCountInString(text) <= n {
		return text
	}
	runes := []rune(text)
	return string(runes[:n])
}
