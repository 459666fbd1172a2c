package document

import (
	"bytes"
	"fmt"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/PuerkitoBio/goquery"
)

// WarnNoMainElement is recorded when no content container was found and the
// whole body was used.
const WarnNoMainElement = "no_main_element_found"

var mainSelectors = []string{
	"main",
	"article",
	"[role=main]",
	"#content",
	"div[class*=content]",
	"div[class*=main]",
}

// htmlText converts an HTML page to line-structured text. It prefers the
// largest main-content container holding more than minMain characters.
func htmlText(content []byte, minMain int) (text, title string, warnings []string, err error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return "", "", nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	title = strings.TrimSpace(doc.Find("title").First().Text())
	doc.Find("script, style, noscript, template, iframe").Remove()

	var best *goquery.Selection
	bestLen := minMain
	for _, sel := range mainSelectors {
		doc.Find(sel).Each(func(_ int, s *goquery.Selection) {
			if n := len(strings.TrimSpace(s.Text())); n > bestLen {
				best, bestLen = s, n
			}
		})
	}
	if best == nil {
		warnings = append(warnings, WarnNoMainElement)
		best = doc.Find("body")
		if best.Length() == 0 {
			best = doc.Selection
		}
	}

	fragment, err := goquery.OuterHtml(best)
	if err != nil {
		return strings.TrimSpace(best.Text()), title, append(warnings, "html_serialize_failed"), nil
	}
	markdown, err := htmltomarkdown.ConvertString(fragment)
	if err != nil {
		return strings.TrimSpace(best.Text()), title, append(warnings, "markdown_conversion_failed"), nil
	}
	return strings.TrimSpace(markdown), title, warnings, nil
}
