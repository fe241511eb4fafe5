// Package search is an in-memory full-text index over published posts.
// Japanese text is segmented with kagome so that queries match on words
// rather than raw substrings.
package search

import (
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/ikawaha/kagome-dict/ipa"
	"github.com/ikawaha/kagome/v2/tokenizer"
	"golang.org/x/text/unicode/norm"
)

const (
	TitleWeight   = 3
	ExcerptWeight = 2
	BodyWeight    = 1

	// bonus when the whole query appears verbatim
	TitlePhraseBonus = 5
	BodyPhraseBonus  = 2

	DefaultLimit = 100
)

type Document struct {
	ID        string
	Title     string
	Excerpt   string
	Body      string // plain text
	Published time.Time
}

type Hit struct {
	ID    string
	Score int
}

type entry struct {
	doc                     Document
	title, excerpt, body    string
	titleT, excerptT, bodyT map[string]struct{}
}

type Index struct {
	tok *tokenizer.Tokenizer

	mu   sync.RWMutex
	docs map[string]*entry
}

func New() (*Index, error) {
	t, err := tokenizer.New(ipa.Dict(), tokenizer.OmitBosEos())
	if err != nil {
		return nil, err
	}
	return &Index{tok: t, docs: map[string]*entry{}}, nil
}

// Rebuild replaces the whole index.
func (ix *Index) Rebuild(docs []Document) {
	next := make(map[string]*entry, len(docs))
	for _, d := range docs {
		next[d.ID] = ix.analyze(d)
	}
	ix.mu.Lock()
	ix.docs = next
	ix.mu.Unlock()
}

func (ix *Index) Upsert(d Document) {
	e := ix.analyze(d)
	ix.mu.Lock()
	ix.docs[d.ID] = e
	ix.mu.Unlock()
}

func (ix *Index) Remove(id string) {
	ix.mu.Lock()
	delete(ix.docs, id)
	ix.mu.Unlock()
}

func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.docs)
}

// Search returns up to limit hits, best first. A document matches when
// every query term occurs in one of its fields or when the query occurs in
// it verbatim. Equal scores are ordered newest first.
func (ix *Index) Search(q string, limit int) []Hit {
	if limit <= 0 {
		limit = DefaultLimit
	}
	phrase := normalize(q)
	if phrase == "" {
		return []Hit{}
	}
	terms := ix.terms(phrase)

	type scored struct {
		Hit
		published time.Time
	}
	var found []scored

	ix.mu.RLock()
	for id, e := range ix.docs {
		s, ok := score(e, phrase, terms)
		if !ok {
			continue
		}
		found = append(found, scored{Hit: Hit{ID: id, Score: s}, published: e.doc.Published})
	}
	ix.mu.RUnlock()

	sort.Slice(found, func(i, j int) bool {
		a, b := found[i], found[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if !a.published.Equal(b.published) {
			return a.published.After(b.published)
		}
		return a.ID < b.ID
	})
	if len(found) > limit {
		found = found[:limit]
	}
	out := make([]Hit, 0, len(found))
	for _, f := range found {
		out = append(out, f.Hit)
	}
	return out
}

func score(e *entry, phrase string, terms []string) (int, bool) {
	s := 0
	all := len(terms) > 0
	for _, t := range terms {
		hit := false
		if _, ok := e.titleT[t]; ok {
			s += TitleWeight
			hit = true
		}
		if _, ok := e.excerptT[t]; ok {
			s += ExcerptWeight
			hit = true
		}
		if _, ok := e.bodyT[t]; ok {
			s += BodyWeight
			hit = true
		}
		if !hit {
			all = false
		}
	}

	verbatim := false
	if strings.Contains(e.title, phrase) {
		s += TitlePhraseBonus
		verbatim = true
	}
	if strings.Contains(e.excerpt, phrase) || strings.Contains(e.body, phrase) {
		s += BodyPhraseBonus
		verbatim = true
	}
	return s, all || verbatim
}

func (ix *Index) analyze(d Document) *entry {
	e := &entry{
		doc:     d,
		title:   normalize(d.Title),
		excerpt: normalize(d.Excerpt),
		body:    normalize(d.Body),
	}
	e.titleT = toSet(ix.terms(e.title))
	e.excerptT = toSet(ix.terms(e.excerpt))
	e.bodyT = toSet(ix.terms(e.body))
	return e
}

// Tokens segments normalized text into index terms, dropping particles,
// auxiliary verbs and symbols. If nothing survives, the raw surfaces are used.
func (ix *Index) Tokens(text string) []string {
	return ix.terms(normalize(text))
}

func (ix *Index) terms(text string) []string {
	if text == "" {
		return nil
	}
	var kept, raw []string
	for _, tok := range ix.tok.Analyze(text, tokenizer.Search) {
		surface := strings.TrimSpace(tok.Surface)
		if surface == "" || isPunct(surface) {
			continue
		}
		raw = append(raw, surface)
		if pos := tok.POS(); len(pos) > 0 {
			switch pos[0] {
			case "助詞", "助動詞", "記号":
				continue
			}
		}
		kept = append(kept, surface)
	}
	if len(kept) == 0 {
		kept = raw
	}
	return dedup(kept)
}

// normalize folds width and case and collapses whitespace.
func normalize(s string) string {
	s = norm.NFKC.String(s)
	s = strings.ToLower(s)
	return strings.Join(strings.Fields(s), " ")
}

func isPunct(s string) bool {
	for _, r := range s {
		if !unicode.IsPunct(r) && !unicode.IsSymbol(r) && !unicode.IsSpace(r) {
			return false
		}
	}
	return true
}

func toSet(items []string) map[string]struct{} {
	m := make(map[string]struct{}, len(items))
	for _, it := range items {
		m[it] = struct{}{}
	}
	return m
}

func dedup(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := items[:0]
	for _, it := range items {
		if _, ok := seen[it]; ok {
			continue
		}
		seen[it] = struct{}{}
		out = append(out, it)
	}
	return out
}
