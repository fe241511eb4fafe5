// Package toc assigns anchor ids to h2/h3 headings in article HTML and
// builds the outline used by the table of contents and scroll spy.
//
// The pass works on the markup as text rather than a parsed DOM: article
// bodies come from the CMS editor and from imported markdown, and the output
// must leave every byte outside the rewritten opening tags untouched.
package toc

import (
	"regexp"
	"strconv"
	"strings"

	"kotoba/internal/domain/content"
)

// MaxIDLength bounds the generated id before any "-n" suffix.
const MaxIDLength = 60

var (
	openTag = regexp.MustCompile(`(?i)<(h[23])([^>]*)>`)
	anyTag  = regexp.MustCompile(`<[^>]*>`)
)

type Result struct {
	HTML     string
	Headings []content.Heading
}

// Process rewrites src so every non-empty h2/h3 carries a unique id and
// returns the outline in document order. Headings whose text is empty after
// removing markup are left as they are.
func Process(src string) Result {
	headings := make([]content.Heading, 0)
	seen := make(map[string]int)
	used := make(map[string]struct{})

	var b strings.Builder
	copied := 0
	pos := 0
	for pos < len(src) {
		loc := openTag.FindStringSubmatchIndex(src[pos:])
		if loc == nil {
			break
		}
		start, openEnd := pos+loc[0], pos+loc[1]
		tag := src[pos+loc[2] : pos+loc[3]]
		attrs := src[pos+loc[4] : pos+loc[5]]

		closeStart, closeEnd := findClose(src, openEnd, tag)
		if closeStart < 0 {
			pos = start + 1
			continue
		}
		pos = closeEnd

		inner := src[openEnd:closeStart]
		text := PlainText(inner)
		if text == "" {
			continue
		}

		base := Slugify(text)
		if base == "" {
			base = "heading-" + strconv.Itoa(len(headings))
		}
		n := seen[base]
		id := base
		if n > 0 {
			id = base + "-" + strconv.Itoa(n)
		}
		// "a", "a", "a-1" would otherwise hand out a-1 twice.
		for {
			if _, taken := used[id]; !taken {
				break
			}
			n++
			id = base + "-" + strconv.Itoa(n)
		}
		seen[base] = n + 1
		used[id] = struct{}{}

		headings = append(headings, content.Heading{
			Level: int(tag[1] - '0'),
			ID:    id,
			Text:  text,
		})

		if b.Len() == 0 {
			b.Grow(len(src) + 16*4)
		}
		b.WriteString(src[copied:start])
		b.WriteByte('<')
		b.WriteString(tag)
		b.WriteString(setID(attrs, id))
		b.WriteByte('>')
		b.WriteString(src[openEnd:closeEnd])
		copied = closeEnd
	}

	if len(headings) == 0 {
		return Result{HTML: src, Headings: headings}
	}
	b.WriteString(src[copied:])
	return Result{HTML: b.String(), Headings: headings}
}

// PlainText drops every tag from a heading body. Adjacent inline elements
// are joined without a separator, so <b>A</b><i>B</i> reads "AB".
func PlainText(inner string) string {
	return strings.TrimFunc(anyTag.ReplaceAllString(inner, ""), isSpace)
}

// Slugify turns heading text into an anchor id: lower-cased, whitespace runs
// become "-", only word characters, kana, CJK ideographs and "-" survive.
func Slugify(text string) string {
	text = strings.ToLower(text)

	var b strings.Builder
	n := 0
	prevSpace := false
	for _, r := range text {
		if n >= MaxIDLength {
			break
		}
		if isSpace(r) {
			if !prevSpace {
				b.WriteByte('-')
				n++
			}
			prevSpace = true
			continue
		}
		prevSpace = false
		if !allowedIDRune(r) {
			continue
		}
		b.WriteRune(r)
		n++
	}
	return b.String()
}

func setID(attrs, id string) string {
	start, end, ok := findIDAttr(attrs)
	if !ok {
		return ` id="` + id + `"` + attrs
	}
	return attrs[:start] + `id="` + id + `"` + attrs[end:]
}

// findIDAttr walks the attribute list of an opening tag and returns the span
// of the id attribute, name through value. Quoted values are skipped whole so
// text such as title="a id=b" is never taken for an attribute.
func findIDAttr(attrs string) (int, int, bool) {
	i := 0
	for i < len(attrs) {
		for i < len(attrs) && (isAttrSpace(attrs[i]) || attrs[i] == '/') {
			i++
		}
		if i >= len(attrs) {
			break
		}
		nameStart := i
		for i < len(attrs) && !isAttrSpace(attrs[i]) && attrs[i] != '=' && attrs[i] != '/' {
			i++
		}
		if i == nameStart {
			// stray '='
			i++
			continue
		}
		name := attrs[nameStart:i]

		j := i
		for j < len(attrs) && isAttrSpace(attrs[j]) {
			j++
		}
		if j < len(attrs) && attrs[j] == '=' {
			j++
			for j < len(attrs) && isAttrSpace(attrs[j]) {
				j++
			}
			switch {
			case j < len(attrs) && (attrs[j] == '"' || attrs[j] == '\''):
				q := attrs[j]
				k := strings.IndexByte(attrs[j+1:], q)
				if k < 0 {
					j = len(attrs)
				} else {
					j += k + 2
				}
			default:
				for j < len(attrs) && !isAttrSpace(attrs[j]) {
					j++
				}
			}
			i = j
		}
		if strings.EqualFold(name, "id") {
			return nameStart, i, true
		}
	}
	return 0, 0, false
}

func isAttrSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f'
}

func findClose(s string, from int, tag string) (int, int) {
	want := "</" + tag + ">"
	for i := from; i+len(want) <= len(s); {
		j := strings.IndexByte(s[i:], '<')
		if j < 0 {
			break
		}
		i += j
		if i+len(want) > len(s) {
			break
		}
		if strings.EqualFold(s[i:i+len(want)], want) {
			return i, i + len(want)
		}
		i++
	}
	return -1, -1
}

func allowedIDRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '_' || r == '-':
		return true
	case r >= 0x3040 && r <= 0x309F: // hiragana
		return true
	case r >= 0x30A0 && r <= 0x30FF: // katakana
		return true
	case r >= 0x4E00 && r <= 0x9FFF:
		return true
	case r >= 0xF900 && r <= 0xFAFF:
		return true
	}
	return false
}

// isSpace matches the whitespace class browsers use for \s and trim(),
// which differs from unicode.IsSpace on U+0085 and U+FEFF.
func isSpace(r rune) bool {
	switch r {
	case '\t', '\n', '\v', '\f', '\r', ' ', 0x00A0, 0x1680, 0x2028, 0x2029, 0x202F, 0x205F, 0x3000, 0xFEFF:
		return true
	}
	return r >= 0x2000 && r <= 0x200A
}
