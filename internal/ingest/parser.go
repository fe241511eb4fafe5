package ingest

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

var errNoFrontMatter = errors.New("no front matter found")
var errInvalidFrontMatter = errors.New("invalid front matter")

type FrontMatter struct {
	Title   string `yaml:"title"`
	Slug    string `yaml:"slug"`
	Date    string `yaml:"date"`
	Updated string `yaml:"updated"`

	// category is a single name; categories lists several, first one wins the URL
	Category   string   `yaml:"category"`
	Categories []string `yaml:"categories"`
	Hashtags   []string `yaml:"hashtags"`
	Tags       []string `yaml:"tags"`

	Excerpt   string `yaml:"excerpt"`
	Thumbnail string `yaml:"thumbnail"`

	// published defaults to true; draft: true overrides it
	Published *bool `yaml:"published"`
	Draft     bool  `yaml:"draft"`
	Hidden    bool  `yaml:"hidden"`
}

func (fm FrontMatter) IsPublished() bool {
	if fm.Draft {
		return false
	}
	if fm.Published != nil {
		return *fm.Published
	}
	return true
}

// CategoryNames merges category and categories, keeping order.
func (fm FrontMatter) CategoryNames() []string {
	var out []string
	if c := strings.TrimSpace(fm.Category); c != "" {
		out = append(out, c)
	}
	for _, c := range fm.Categories {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, c)
		}
	}
	return out
}

func (fm FrontMatter) HashtagNames() []string {
	return append(append([]string{}, fm.Hashtags...), fm.Tags...)
}

func ParseFrontMatter(raw []byte) (FrontMatter, []byte, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return FrontMatter{}, raw, errNoFrontMatter
	}

	// 统一换行符
	norm := bytes.ReplaceAll(raw, []byte("\r\n"), []byte("\n"))
	norm = bytes.ReplaceAll(norm, []byte("\r"), []byte("\n"))
	// editors on Windows like to prepend a BOM
	norm = bytes.TrimPrefix(norm, []byte("\xef\xbb\xbf"))

	const (
		sep      = "---"
		sepLine  = sep + "\n"
		closeMid = "\n" + sep + "\n"
	)

	if !bytes.HasPrefix(norm, []byte(sepLine)) {
		return FrontMatter{}, norm, errNoFrontMatter
	}
	rest := norm[len(sepLine):]

	var yamlPart, bodyPart []byte
	switch {
	case bytes.HasPrefix(rest, []byte(sepLine)):
		// empty front matter
		bodyPart = rest[len(sepLine):]
	case bytes.Contains(rest, []byte(closeMid)):
		parts := bytes.SplitN(rest, []byte(closeMid), 2)
		yamlPart, bodyPart = parts[0], parts[1]
	case bytes.HasSuffix(rest, []byte("\n"+sep)):
		yamlPart = rest[:len(rest)-len("\n"+sep)]
	case bytes.Equal(bytes.TrimSpace(rest), []byte(sep)):
	default:
		return FrontMatter{}, norm, errInvalidFrontMatter
	}

	var fm FrontMatter
	if yamlPart = bytes.TrimSpace(yamlPart); len(yamlPart) > 0 {
		if err := yaml.Unmarshal(yamlPart, &fm); err != nil {
			return FrontMatter{}, norm, err
		}
	}
	return fm, bytes.TrimSpace(bodyPart), nil
}

func ResolveSlug(fm FrontMatter, path string) string {
	if s := strings.TrimSpace(fm.Slug); s != "" {
		return slugify(s)
	}
	if t := strings.TrimSpace(fm.Title); t != "" {
		return slugify(t)
	}
	base := filepath.Base(path)
	return slugify(strings.TrimSuffix(base, filepath.Ext(base)))
}

// ParseTime accepts the usual front matter layouts in loc.
func ParseTime(s string, loc *time.Location) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	if loc == nil {
		loc = time.Local
	}
	for _, layout := range []string{
		time.RFC3339,
		time.DateOnly,
		"2006-01-02 15:04",
		time.DateTime,
		"2006/01/02",
		"2006/01/02 15:04",
	} {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t
		}
	}
	return time.Time{}
}

// slugify keeps letters and digits of any script and folds the rest into
// single dashes. 日本語 titles stay readable in URLs.
func slugify(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	var out []rune
	lastDash := false

	for len(s) > 0 {
		r, size := utf8.DecodeRuneInString(s)
		s = s[size:]

		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == 'ー':
			out = append(out, unicode.ToLower(r))
			lastDash = false
		default:
			if !lastDash && len(out) > 0 {
				out = append(out, '-')
				lastDash = true
			}
		}
	}
	for len(out) > 0 && out[len(out)-1] == '-' {
		out = out[:len(out)-1]
	}
	return string(out)
}
