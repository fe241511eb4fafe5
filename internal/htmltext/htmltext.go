// Package htmltext sanitizes post HTML and derives plain text, excerpts and
// display strings from it.
package htmltext

import (
	"fmt"
	"math"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const DefaultDescriptionLength = 155

// Sanitizer cleans HTML submitted through the admin API.
type Sanitizer struct {
	policy *bluemonday.Policy
}

func NewSanitizer() *Sanitizer {
	p := bluemonday.UGCPolicy()
	p.RequireNoFollowOnLinks(true)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	p.AllowElements("figure", "figcaption")
	p.AllowAttrs("class").OnElements("h2", "h3", "h4", "p", "figure", "figcaption", "pre", "code", "span", "div")
	return &Sanitizer{policy: p}
}

func (s *Sanitizer) Sanitize(src string) string {
	if src == "" {
		return ""
	}
	return strings.TrimSpace(s.policy.Sanitize(src))
}

const blockSelector = "p, li, h1, h2, h3, h4, h5, h6, blockquote, pre, figcaption, div, tr"

// PlainText drops markup, scripts and styles and collapses whitespace. Block
// boundaries become a single space.
func PlainText(src string) string {
	if strings.TrimSpace(src) == "" {
		return ""
	}
	if !strings.Contains(src, "<") {
		return strings.Join(strings.Fields(src), " ")
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(src))
	if err != nil {
		return strings.Join(strings.Fields(src), " ")
	}
	doc.Find("script, style, noscript").Remove()
	doc.Find("br").Each(func(_ int, s *goquery.Selection) {
		s.ReplaceWithNodes(space())
	})
	doc.Find(blockSelector).Each(func(_ int, s *goquery.Selection) {
		s.AppendNodes(space())
	})
	return strings.Join(strings.Fields(doc.Text()), " ")
}

func space() *html.Node {
	return &html.Node{Type: html.TextNode, Data: " "}
}

// Excerpt is the first n runes of the plain text, with an ellipsis when cut.
func Excerpt(src string, n int) string {
	text := PlainText(src)
	r := []rune(text)
	if n <= 0 || len(r) <= n {
		return text
	}
	return strings.TrimSpace(string(r[:n])) + "…"
}

// TruncateDescription shortens text for meta descriptions. It cuts one rune
// short of maxLength and prefers to end on 。、 a space or a newline when
// one falls past 70% of the limit; otherwise it appends an ellipsis.
func TruncateDescription(text string, maxLength int) string {
	if maxLength <= 0 {
		maxLength = DefaultDescriptionLength
	}
	r := []rune(text)
	if len(r) <= maxLength {
		return text
	}
	truncated := r[:maxLength-1]

	lastBreak := -1
	for i := len(truncated) - 1; i >= 0; i-- {
		switch truncated[i] {
		case '。', '、', ' ', '\n':
			lastBreak = i
		}
		if lastBreak >= 0 {
			break
		}
	}
	if float64(lastBreak) > float64(maxLength)*0.7 {
		return string(truncated[:lastBreak+1])
	}
	return string(truncated) + "…"
}

const (
	minFontSize = 0.875
	maxFontSize = 2.0
)

// FontSize maps a hashtag count linearly onto 0.875rem..2rem, rounded to
// three decimals. Equal bounds yield the midpoint.
func FontSize(count, minCount, maxCount int) float64 {
	if maxCount == minCount {
		return (minFontSize + maxFontSize) / 2
	}
	normalized := float64(count-minCount) / float64(maxCount-minCount)
	size := minFontSize + normalized*(maxFontSize-minFontSize)
	return math.Round(size*1000) / 1000
}

var jaPrinter = message.NewPrinter(language.Japanese)

// FormatCount renders 12345 as "12k+" and smaller counts with digit
// grouping.
func FormatCount(n int) string {
	if n >= 10000 {
		return fmt.Sprintf("%dk+", n/1000)
	}
	return jaPrinter.Sprintf("%d", n)
}
