package related

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nagano() Source {
	return Source{
		ID:           "src",
		CategoryIDs:  []string{"nagano"},
		HashtagSlugs: []string{"白馬", "スキー"},
	}
}

func TestScore(t *testing.T) {
	src := nagano()

	assert.Equal(t, 13, Score(src, Candidate{ID: "x", CategoryIDs: []string{"nagano"}, HashtagSlugs: []string{"白馬"}}))
	assert.Equal(t, 6, Score(src, Candidate{ID: "y", CategoryIDs: []string{"tokyo"}, HashtagSlugs: []string{"白馬", "スキー"}}))
	assert.Equal(t, 0, Score(src, Candidate{ID: "z"}))
}

func TestScore_CategoryOverlapIsBoolean(t *testing.T) {
	src := Source{ID: "s", CategoryIDs: []string{"a", "b", "c"}}
	assert.Equal(t, CategoryWeight, Score(src, Candidate{ID: "c", CategoryIDs: []string{"a", "b", "c"}}))
}

func TestSelect_OrdersByScore(t *testing.T) {
	pool := []Candidate{
		{ID: "z"},
		{ID: "y", CategoryIDs: []string{"tokyo"}, HashtagSlugs: []string{"白馬", "スキー"}},
		{ID: "x", CategoryIDs: []string{"nagano"}, HashtagSlugs: []string{"白馬"}},
	}
	assert.Equal(t, []string{"x", "y", "z"}, Select(nagano(), pool, 3))
}

func TestSelect_EmptyPool(t *testing.T) {
	got := Select(nagano(), nil, 3)
	require.NotNil(t, got)
	assert.Empty(t, got)
}

func TestSelect_ExcludesSourceAndRespectsLimit(t *testing.T) {
	pool := []Candidate{
		{ID: "src", CategoryIDs: []string{"nagano"}, HashtagSlugs: []string{"白馬", "スキー"}},
		{ID: "a", CategoryIDs: []string{"nagano"}},
		{ID: "b", CategoryIDs: []string{"nagano"}},
		{ID: "c", CategoryIDs: []string{"nagano"}},
		{ID: "d", CategoryIDs: []string{"nagano"}},
	}
	got := Select(nagano(), pool, 3)
	assert.Len(t, got, 3)
	assert.NotContains(t, got, "src")
}

func TestSelect_TiesKeepPoolOrder(t *testing.T) {
	pool := []Candidate{{ID: "r1"}, {ID: "r2"}, {ID: "r3"}, {ID: "r4"}}
	assert.Equal(t, []string{"r1", "r2", "r3"}, Select(nagano(), pool, 0))
}

func TestRank_HigherScoreComesFirst(t *testing.T) {
	src := nagano()
	var pool []Candidate
	for i := 0; i < 15; i++ {
		c := Candidate{ID: fmt.Sprintf("p%d", i)}
		if i%3 == 0 {
			c.CategoryIDs = []string{"nagano"}
		}
		if i%2 == 0 {
			c.HashtagSlugs = append(c.HashtagSlugs, "白馬")
		}
		if i%5 == 0 {
			c.HashtagSlugs = append(c.HashtagSlugs, "スキー")
		}
		pool = append(pool, c)
	}

	ranked := Rank(src, pool)
	require.Len(t, ranked, len(pool))
	for i := 1; i < len(ranked); i++ {
		assert.GreaterOrEqual(t, ranked[i-1].Score, ranked[i].Score)
	}
}

func TestAssemblePool(t *testing.T) {
	t.Run("tops up with recent when category pool is small", func(t *testing.T) {
		same := []Candidate{{ID: "c1"}, {ID: "c2"}, {ID: "c1"}}
		recent := []Candidate{{ID: "src"}, {ID: "c2"}, {ID: "r1"}, {ID: "r2"}}

		pool := AssemblePool("src", same, recent)
		ids := make([]string, 0, len(pool))
		for _, c := range pool {
			ids = append(ids, c.ID)
		}
		assert.Equal(t, []string{"c1", "c2", "r1", "r2"}, ids)
	})

	t.Run("skips recent when category pool is large enough", func(t *testing.T) {
		var same []Candidate
		for i := 0; i < MinCategoryPool; i++ {
			same = append(same, Candidate{ID: fmt.Sprintf("c%d", i)})
		}
		pool := AssemblePool("src", same, []Candidate{{ID: "r1"}})
		assert.Len(t, pool, MinCategoryPool)
	})

	t.Run("caps at max pool", func(t *testing.T) {
		var same []Candidate
		for i := 0; i < MaxPool+5; i++ {
			same = append(same, Candidate{ID: fmt.Sprintf("c%d", i)})
		}
		assert.Len(t, AssemblePool("src", same, nil), MaxPool)
	})
}
