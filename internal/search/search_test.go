package search

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newIndex(t *testing.T) *Index {
	t.Helper()
	ix, err := New()
	require.NoError(t, err)
	return ix
}

func ids(hits []Hit) []string {
	out := make([]string, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.ID)
	}
	return out
}

func at(day int) time.Time {
	return time.Date(2025, 3, day, 0, 0, 0, 0, time.UTC)
}

func TestSearch_TitleOutranksBody(t *testing.T) {
	ix := newIndex(t)
	ix.Rebuild([]Document{
		{ID: "title", Title: "白馬でスキー", Body: "雪がたくさん降った。", Published: at(1)},
		{ID: "body", Title: "東京の夜", Body: "いつか白馬に行きたい。", Published: at(2)},
		{ID: "other", Title: "京都の寺", Body: "紅葉が見頃だった。", Published: at(3)},
	})
	require.Equal(t, 3, ix.Len())

	hits := ix.Search("白馬", 10)
	assert.Equal(t, []string{"title", "body"}, ids(hits))
	assert.Greater(t, hits[0].Score, hits[1].Score)
}

func TestSearch_EmptyQuery(t *testing.T) {
	ix := newIndex(t)
	ix.Rebuild([]Document{{ID: "a", Title: "a"}})

	hits := ix.Search("   ", 10)
	require.NotNil(t, hits)
	assert.Empty(t, hits)
}

func TestSearch_TiesNewestFirst(t *testing.T) {
	ix := newIndex(t)
	ix.Rebuild([]Document{
		{ID: "old", Title: "golang notes", Published: at(1)},
		{ID: "new", Title: "golang notes", Published: at(5)},
	})
	assert.Equal(t, []string{"new", "old"}, ids(ix.Search("golang", 10)))
}

func TestSearch_WidthAndCase(t *testing.T) {
	ix := newIndex(t)
	ix.Rebuild([]Document{{ID: "go", Title: "Go tips", Published: at(1)}})

	assert.Equal(t, []string{"go"}, ids(ix.Search("ＧＯ", 10)))
}

func TestSearch_Limit(t *testing.T) {
	ix := newIndex(t)
	var docs []Document
	for i := 1; i <= 5; i++ {
		docs = append(docs, Document{ID: string(rune('a' + i)), Title: "旅行記", Published: at(i)})
	}
	ix.Rebuild(docs)

	assert.Len(t, ix.Search("旅行記", 3), 3)
	assert.Len(t, ix.Search("旅行記", 0), 5)
}

func TestUpsertRemove(t *testing.T) {
	ix := newIndex(t)
	ix.Upsert(Document{ID: "a", Title: "写真の撮り方", Published: at(1)})
	assert.Equal(t, []string{"a"}, ids(ix.Search("写真", 10)))

	ix.Upsert(Document{ID: "a", Title: "料理の記録", Published: at(1)})
	assert.Empty(t, ix.Search("写真", 10))

	ix.Remove("a")
	assert.Zero(t, ix.Len())
}

func TestTokens_DropsParticles(t *testing.T) {
	ix := newIndex(t)
	toks := ix.Tokens("東京の朝、")
	assert.Contains(t, toks, "東京")
	assert.NotContains(t, toks, "の")
	assert.NotContains(t, toks, "、")

	assert.Equal(t, []string{"の"}, ix.Tokens("の"))
}
