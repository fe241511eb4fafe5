package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kotoba/internal/domain/content"
	domainerr "kotoba/internal/domain/errors"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	base := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	tick, seq := 0, 0
	s, err := Open(OpenOptions{
		Path: filepath.Join(t.TempDir(), "kotoba.db"),
		Now: func() time.Time {
			tick++
			return base.Add(time.Duration(tick) * time.Minute)
		},
		NewID: func() string {
			seq++
			return fmt.Sprintf("id-%03d", seq)
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func day(d int) *time.Time {
	t := time.Date(2025, 3, d, 12, 0, 0, 0, time.UTC)
	return &t
}

type fixture struct {
	nagano, tokyo content.Category
	hakuba, ski   content.Hashtag
}

func seedTaxonomy(t *testing.T, s *Store) fixture {
	t.Helper()
	ctx := context.Background()
	var f fixture
	var err error
	f.nagano, err = s.CreateCategory(ctx, content.Category{Name: "長野", Slug: "nagano", IsActive: true, OrderNum: 2})
	require.NoError(t, err)
	f.tokyo, err = s.CreateCategory(ctx, content.Category{Name: "東京", Slug: "tokyo", IsActive: true, OrderNum: 1})
	require.NoError(t, err)

	tags, err := s.EnsureHashtags(ctx, []string{"白馬", "#スキー", "白馬"})
	require.NoError(t, err)
	require.Len(t, tags, 2)
	f.hakuba, f.ski = tags[0], tags[1]
	return f
}

func TestOpen_MissingPath(t *testing.T) {
	_, err := Open(OpenOptions{})
	assert.Error(t, err)
}

func TestTimeKey_NewestFirst(t *testing.T) {
	older := timeKey(*day(1), "a")
	newer := timeKey(*day(2), "b")
	assert.Less(t, string(newer), string(older))
	assert.Equal(t, "a", idFromTimeKey(older))
	assert.Equal(t, "", idFromTimeKey([]byte("short")))
}

func TestPostLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	f := seedTaxonomy(t, s)

	created, err := s.CreatePost(ctx, content.Post{
		Title:       " 白馬の朝 ",
		Slug:        "Hakuba Morning",
		Content:     "<h2>朝</h2><p>雪</p>",
		CategoryIDs: []string{f.nagano.ID},
		HashtagIDs:  []string{f.hakuba.ID, f.ski.ID, f.hakuba.ID},
		IsPublished: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "白馬の朝", created.Title)
	assert.Equal(t, "hakuba-morning", created.Slug)
	require.NotNil(t, created.PublishedAt)
	assert.Len(t, created.Categories, 1)
	assert.Equal(t, []string{"白馬", "スキー"}, created.HashtagSlugs())

	tag, err := s.GetHashtag(ctx, f.hakuba.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, tag.Count)

	got, err := s.GetPostBySlug(ctx, "hakuba-morning", true)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)

	// rename and drop a hashtag
	got.Post.Slug = "hakuba-dawn"
	got.Post.HashtagIDs = []string{f.hakuba.ID}
	got.Post.UpdatedAt = time.Time{}
	updated, err := s.UpdatePost(ctx, got.Post)
	require.NoError(t, err)
	assert.True(t, updated.UpdatedAt.After(created.UpdatedAt))
	assert.True(t, created.CreatedAt.Equal(updated.CreatedAt))

	_, err = s.GetPostBySlug(ctx, "hakuba-morning", false)
	assert.ErrorIs(t, err, ErrNotFound)
	ski, err := s.GetHashtag(ctx, f.ski.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, ski.Count)

	require.NoError(t, s.DeletePost(ctx, created.ID))
	_, err = s.GetPost(ctx, created.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	tag, err = s.GetHashtag(ctx, f.hakuba.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, tag.Count)

	assert.ErrorIs(t, s.DeletePost(ctx, created.ID), ErrNotFound)
}

func TestCreatePost_Validation(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.CreatePost(ctx, content.Post{Slug: "x", CategoryIDs: []string{"nope"}})
	require.ErrorIs(t, err, domainerr.ErrInvalid)

	var ve domainerr.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Fields(), "title")
	assert.Contains(t, ve.Fields(), "category_ids")
}

func TestCreatePost_SlugConflict(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.CreatePost(ctx, content.Post{Title: "a", Slug: "same"})
	require.NoError(t, err)
	_, err = s.CreatePost(ctx, content.Post{Title: "b", Slug: "SAME"})
	assert.ErrorIs(t, err, ErrConflict)

	other, err := s.CreatePost(ctx, content.Post{Title: "c", Slug: "other"})
	require.NoError(t, err)
	other.Post.Slug = "same"
	_, err = s.UpdatePost(ctx, other.Post)
	assert.ErrorIs(t, err, ErrConflict)

	// failed update leaves the original slug in place
	_, err = s.GetPostBySlug(ctx, "other", false)
	assert.NoError(t, err)
}

func TestListPosts(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	f := seedTaxonomy(t, s)

	mk := func(title, slug string, d int, cat content.Category, tags ...string) content.PostView {
		v, err := s.CreatePost(ctx, content.Post{
			Title:       title,
			Slug:        slug,
			CategoryIDs: []string{cat.ID},
			HashtagIDs:  tags,
			PublishedAt: day(d),
			IsPublished: true,
		})
		require.NoError(t, err)
		return v
	}
	mk("い", "p1", 1, f.nagano, f.hakuba.ID)
	mk("う", "p2", 2, f.tokyo)
	mk("あ", "p3", 3, f.nagano, f.ski.ID)
	mk("お", "p4", 4, f.tokyo, f.hakuba.ID)
	mk("え", "p5", 5, f.nagano)
	_, err := s.CreatePost(ctx, content.Post{Title: "下書き", Slug: "draft", CategoryIDs: []string{f.nagano.ID}})
	require.NoError(t, err)

	slugs := func(p Page) []string {
		out := make([]string, 0, len(p.Posts))
		for _, v := range p.Posts {
			out = append(out, v.Slug)
		}
		return out
	}

	t.Run("latest", func(t *testing.T) {
		page, err := s.ListPosts(ctx, ListOptions{Limit: 10})
		require.NoError(t, err)
		assert.Equal(t, []string{"p5", "p4", "p3", "p2", "p1"}, slugs(page))
		assert.Equal(t, 5, page.Total)
		assert.False(t, page.HasMore)
	})

	t.Run("pagination", func(t *testing.T) {
		page, err := s.ListPosts(ctx, ListOptions{Page: 2, Limit: 2})
		require.NoError(t, err)
		assert.Equal(t, []string{"p3", "p2"}, slugs(page))
		assert.True(t, page.HasMore)
		assert.Equal(t, 2, page.Page)

		page, err = s.ListPosts(ctx, ListOptions{Page: 9, Limit: 2})
		require.NoError(t, err)
		assert.Empty(t, page.Posts)
		assert.NotNil(t, page.Posts)
		assert.False(t, page.HasMore)
	})

	t.Run("category", func(t *testing.T) {
		page, err := s.ListPosts(ctx, ListOptions{Category: "nagano"})
		require.NoError(t, err)
		assert.Equal(t, []string{"p5", "p3", "p1"}, slugs(page))

		page, err = s.ListPosts(ctx, ListOptions{Category: "missing"})
		require.NoError(t, err)
		assert.Zero(t, page.Total)
	})

	t.Run("hashtags match any", func(t *testing.T) {
		page, err := s.ListPosts(ctx, ListOptions{Hashtags: []string{"白馬", "スキー"}})
		require.NoError(t, err)
		assert.Equal(t, []string{"p4", "p3", "p1"}, slugs(page))

		page, err = s.ListPosts(ctx, ListOptions{Category: "tokyo", Hashtags: []string{"白馬"}})
		require.NoError(t, err)
		assert.Equal(t, []string{"p4"}, slugs(page))
	})

	t.Run("title", func(t *testing.T) {
		page, err := s.ListPosts(ctx, ListOptions{Sort: SortTitle, Limit: 10})
		require.NoError(t, err)
		assert.Equal(t, []string{"p3", "p1", "p2", "p5", "p4"}, slugs(page))
	})

	t.Run("popular", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			_, err := s.IncrementView(ctx, "p2")
			require.NoError(t, err)
		}
		_, err := s.IncrementView(ctx, "p1")
		require.NoError(t, err)

		page, err := s.ListPosts(ctx, ListOptions{Sort: SortPopular, Limit: 3})
		require.NoError(t, err)
		assert.Equal(t, []string{"p2", "p1", "p3"}, slugs(page))
	})

	t.Run("status", func(t *testing.T) {
		page, err := s.ListPosts(ctx, ListOptions{Status: StatusDraft})
		require.NoError(t, err)
		assert.Equal(t, []string{"draft"}, slugs(page))

		page, err = s.ListPosts(ctx, ListOptions{Status: StatusAll, Limit: 100})
		require.NoError(t, err)
		assert.Equal(t, 6, page.Total)
	})

	all, err := s.AllPublished(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func TestParseSort(t *testing.T) {
	assert.Equal(t, SortPopular, ParseSort("popular"))
	assert.Equal(t, SortTitle, ParseSort(" title "))
	assert.Equal(t, SortLatest, ParseSort("random"))
	assert.Equal(t, SortLatest, ParseSort(""))
}

func TestIncrementView(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.CreatePost(ctx, content.Post{Title: "t", Slug: "pub", IsPublished: true})
	require.NoError(t, err)
	_, err = s.CreatePost(ctx, content.Post{Title: "t", Slug: "draft"})
	require.NoError(t, err)

	n, err := s.IncrementView(ctx, "pub")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = s.IncrementView(ctx, "pub")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = s.IncrementView(ctx, "draft")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.IncrementView(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCategories(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	f := seedTaxonomy(t, s)

	_, err := s.CreateCategory(ctx, content.Category{Name: "dup", Slug: "nagano"})
	assert.ErrorIs(t, err, ErrConflict)

	hidden, err := s.CreateCategory(ctx, content.Category{Name: "非公開", Slug: "hidden"})
	require.NoError(t, err)

	_, err = s.CreatePost(ctx, content.Post{Title: "t", Slug: "p", CategoryIDs: []string{f.nagano.ID}})
	require.NoError(t, err)

	cats, err := s.ListCategories(ctx, true)
	require.NoError(t, err)
	require.Len(t, cats, 2)
	assert.Equal(t, "tokyo", cats[0].Slug)
	assert.Equal(t, 1, cats[1].PostCount)

	all, err := s.ListCategories(ctx, false)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	err = s.DeleteCategory(ctx, f.nagano.ID)
	assert.ErrorIs(t, err, ErrCategoryInUse)
	assert.ErrorIs(t, err, ErrConflict)

	require.NoError(t, s.DeleteCategory(ctx, hidden.ID))
	_, err = s.GetCategoryBySlug(ctx, "hidden")
	assert.ErrorIs(t, err, ErrNotFound)

	f.tokyo.Slug = "edo"
	renamed, err := s.UpdateCategory(ctx, f.tokyo)
	require.NoError(t, err)
	assert.Equal(t, "edo", renamed.Slug)
	_, err = s.GetCategoryBySlug(ctx, "tokyo")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestHashtags(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	f := seedTaxonomy(t, s)

	unused, err := s.CreateHashtag(ctx, content.Hashtag{Name: "ＧＯ"})
	require.NoError(t, err)
	assert.Equal(t, "GO", unused.Name)
	assert.Equal(t, "go", unused.Slug)

	for i, tags := range [][]string{{f.hakuba.ID}, {f.hakuba.ID, f.ski.ID}} {
		_, err := s.CreatePost(ctx, content.Post{Title: "t", Slug: fmt.Sprintf("p%d", i), HashtagIDs: tags})
		require.NoError(t, err)
	}

	popular, err := s.PopularHashtags(ctx, 20)
	require.NoError(t, err)
	require.Len(t, popular, 2)
	assert.Equal(t, "白馬", popular[0].Name)
	assert.Equal(t, 2, popular[0].Count)

	sugg, err := s.SuggestHashtags(ctx, "go", 5)
	require.NoError(t, err)
	require.Len(t, sugg, 1)
	assert.Equal(t, unused.ID, sugg[0].ID)

	sugg, err = s.SuggestHashtags(ctx, "  ", 5)
	require.NoError(t, err)
	assert.Empty(t, sugg)

	removed, err := s.DeleteUnusedHashtags(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	require.NoError(t, s.DeleteHashtag(ctx, f.hakuba.ID))
	p, err := s.GetPostBySlug(ctx, "p1", false)
	require.NoError(t, err)
	assert.Equal(t, []string{f.ski.ID}, p.HashtagIDs)

	names, err := s.ListHashtags(ctx)
	require.NoError(t, err)
	require.Len(t, names, 1)
	assert.Equal(t, "スキー", names[0].Name)
}

func TestReactions(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	p, err := s.CreatePost(ctx, content.Post{Title: "t", Slug: "p", IsPublished: true})
	require.NoError(t, err)

	n, err := s.IncrementReaction(ctx, p.ID, content.ReactionHeart)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = s.IncrementReaction(ctx, p.ID, content.ReactionHeart)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	_, err = s.IncrementReaction(ctx, p.ID, content.ReactionFire)
	require.NoError(t, err)

	counts, err := s.Reactions(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, map[content.ReactionType]int{content.ReactionHeart: 2, content.ReactionFire: 1}, counts)

	_, err = s.IncrementReaction(ctx, p.ID, "wow")
	assert.ErrorIs(t, err, domainerr.ErrInvalid)
	_, err = s.IncrementReaction(ctx, "missing", content.ReactionLight)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.DeletePost(ctx, p.ID))
	counts, err = s.Reactions(ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, counts)
}

func TestRelatedPosts(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	f := seedTaxonomy(t, s)

	mk := func(slug string, d int, published bool, cat content.Category, tags ...string) content.PostView {
		v, err := s.CreatePost(ctx, content.Post{
			Title: slug, Slug: slug, PublishedAt: day(d), IsPublished: published,
			CategoryIDs: []string{cat.ID}, HashtagIDs: tags,
		})
		require.NoError(t, err)
		return v
	}
	src := mk("src", 10, true, f.nagano, f.hakuba.ID, f.ski.ID)
	mk("z", 1, true, f.tokyo)
	mk("y", 2, true, f.tokyo, f.hakuba.ID, f.ski.ID)
	mk("x", 3, true, f.nagano, f.hakuba.ID)
	mk("draft", 4, false, f.nagano, f.hakuba.ID, f.ski.ID)

	got, err := s.RelatedPosts(ctx, src, 3)
	require.NoError(t, err)
	slugs := make([]string, 0, len(got))
	for _, v := range got {
		slugs = append(slugs, v.Slug)
	}
	assert.Equal(t, []string{"x", "y", "z"}, slugs)

	got, err = s.RelatedPosts(ctx, src, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "x", got[0].Slug)
}

func TestThumbnails(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	const url = "/media/2025/03/a.jpg"

	for i := 0; i < 2; i++ {
		_, err := s.CreatePost(ctx, content.Post{Title: "t", Slug: fmt.Sprintf("p%d", i), ThumbnailURL: url})
		require.NoError(t, err)
	}
	_, err := s.CreatePost(ctx, content.Post{Title: "t", Slug: "other", ThumbnailURL: "/media/b.jpg"})
	require.NoError(t, err)

	using, err := s.PostsUsingThumbnail(ctx, url)
	require.NoError(t, err)
	assert.Len(t, using, 2)

	n, err := s.ClearThumbnail(ctx, url)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	using, err = s.PostsUsingThumbnail(ctx, url)
	require.NoError(t, err)
	assert.Empty(t, using)
}

func TestMedia(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	older := content.Media{ID: "1", Path: "2025/03/a.jpg", CreatedAt: *day(1)}
	newer := content.Media{ID: "2", Path: "2025/03/b.jpg", CreatedAt: *day(2)}
	require.NoError(t, s.PutMedia(ctx, older))
	require.NoError(t, s.PutMedia(ctx, newer))
	assert.ErrorIs(t, s.PutMedia(ctx, content.Media{}), domainerr.ErrInvalid)

	list, err := s.ListMedia(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "2", list[0].ID)

	require.NoError(t, s.DeleteMedia(ctx, older.Path))
	assert.ErrorIs(t, s.DeleteMedia(ctx, older.Path), ErrNotFound)
	_, err = s.GetMedia(ctx, newer.Path)
	assert.NoError(t, err)
}

func TestStatsAndReindex(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	f := seedTaxonomy(t, s)

	_, err := s.CreatePost(ctx, content.Post{Title: "a", Slug: "a", IsPublished: true, CategoryIDs: []string{f.nagano.ID}, HashtagIDs: []string{f.ski.ID}})
	require.NoError(t, err)
	_, err = s.CreatePost(ctx, content.Post{Title: "b", Slug: "b"})
	require.NoError(t, err)
	_, err = s.IncrementView(ctx, "a")
	require.NoError(t, err)

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Posts: 2, Published: 1, Drafts: 1, Categories: 2, Hashtags: 2, TotalViews: 1}, st)

	n, err := s.Reindex(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	page, err := s.ListPosts(ctx, ListOptions{Category: "nagano"})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
	tag, err := s.GetHashtagBySlug(ctx, "スキー")
	require.NoError(t, err)
	assert.Equal(t, 1, tag.Count)
}

func TestCanceledContext(t *testing.T) {
	s := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.ListPosts(ctx, ListOptions{})
	assert.ErrorIs(t, err, context.Canceled)
}
