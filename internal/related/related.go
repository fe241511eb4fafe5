// Package related ranks other published articles by topical overlap with a
// source article.
package related

import "sort"

const (
	CategoryWeight = 10
	HashtagWeight  = 3

	// DefaultLimit is how many related articles an article page shows.
	DefaultLimit = 3
	// MinCategoryPool is the size below which the pool is topped up with
	// recent articles.
	MinCategoryPool = 10
	// MaxPool caps the candidate pool.
	MaxPool = 20
)

// Source describes the article related items are picked for.
type Source struct {
	ID           string
	CategoryIDs  []string
	HashtagSlugs []string
}

type Candidate struct {
	ID           string
	CategoryIDs  []string
	HashtagSlugs []string
}

type Scored struct {
	ID    string
	Score int
}

// Score adds CategoryWeight once when any category is shared and
// HashtagWeight for every shared hashtag slug.
func Score(src Source, c Candidate) int {
	return score(setOf(src.CategoryIDs), setOf(src.HashtagSlugs), c)
}

// Rank scores every candidate except the source itself, highest first.
// Equal scores keep pool order.
func Rank(src Source, pool []Candidate) []Scored {
	cats := setOf(src.CategoryIDs)
	tags := setOf(src.HashtagSlugs)

	out := make([]Scored, 0, len(pool))
	for _, c := range pool {
		if c.ID == src.ID {
			continue
		}
		out = append(out, Scored{ID: c.ID, Score: score(cats, tags, c)})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	return out
}

// Select returns up to limit candidate ids ordered by Rank. There is no
// minimum score: when overlap is sparse the result degrades to whatever
// recent articles the pool was topped up with.
func Select(src Source, pool []Candidate, limit int) []string {
	if limit <= 0 {
		limit = DefaultLimit
	}
	ranked := Rank(src, pool)
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	ids := make([]string, 0, len(ranked))
	for _, s := range ranked {
		ids = append(ids, s.ID)
	}
	return ids
}

// AssemblePool builds the candidate pool: every article sharing a category
// (in the order given), then, only when that yields fewer than
// MinCategoryPool, the recent articles not already present. The source is
// never included and the pool never exceeds MaxPool.
func AssemblePool(sourceID string, sameCategory, recent []Candidate) []Candidate {
	seen := make(map[string]struct{}, len(sameCategory)+len(recent))
	pool := make([]Candidate, 0, MaxPool)

	add := func(c Candidate) {
		if c.ID == sourceID {
			return
		}
		if _, ok := seen[c.ID]; ok {
			return
		}
		seen[c.ID] = struct{}{}
		pool = append(pool, c)
	}

	for _, c := range sameCategory {
		add(c)
	}
	if len(pool) < MinCategoryPool {
		for _, c := range recent {
			add(c)
		}
	}
	if len(pool) > MaxPool {
		pool = pool[:MaxPool]
	}
	return pool
}

func score(cats, tags map[string]struct{}, c Candidate) int {
	s := 0
	for _, id := range c.CategoryIDs {
		if _, ok := cats[id]; ok {
			s += CategoryWeight
			break
		}
	}
	counted := make(map[string]struct{}, len(c.HashtagSlugs))
	for _, slug := range c.HashtagSlugs {
		if _, dup := counted[slug]; dup {
			continue
		}
		counted[slug] = struct{}{}
		if _, ok := tags[slug]; ok {
			s += HashtagWeight
		}
	}
	return s
}

func setOf(items []string) map[string]struct{} {
	m := make(map[string]struct{}, len(items))
	for _, it := range items {
		m[it] = struct{}{}
	}
	return m
}
