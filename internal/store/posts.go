package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	bolt "go.etcd.io/bbolt"

	"kotoba/internal/domain/content"
	domainerr "kotoba/internal/domain/errors"
)

type Sort string

const (
	SortLatest  Sort = "latest"
	SortPopular Sort = "popular"
	SortTitle   Sort = "title"
)

// ParseSort falls back to SortLatest for anything unknown.
func ParseSort(s string) Sort {
	switch Sort(strings.TrimSpace(s)) {
	case SortPopular:
		return SortPopular
	case SortTitle:
		return SortTitle
	default:
		return SortLatest
	}
}

type Status string

const (
	StatusPublished Status = "published"
	StatusDraft     Status = "draft"
	StatusAll       Status = "all"
)

func (s Status) match(p content.Post) bool {
	switch s {
	case StatusAll:
		return true
	case StatusDraft:
		return !p.IsPublished
	default:
		return p.IsPublished
	}
}

const (
	DefaultPageSize = 6
	MaxPageSize     = 100
)

type ListOptions struct {
	Category string   // category slug
	Hashtags []string // hashtag slugs, a post matches when it has any of them
	Sort     Sort
	// Zero value lists published posts only.
	Status Status
	Page   int
	Limit  int
}

func (o ListOptions) normalized() ListOptions {
	if o.Page <= 0 {
		o.Page = 1
	}
	if o.Limit <= 0 {
		o.Limit = DefaultPageSize
	}
	if o.Limit > MaxPageSize {
		o.Limit = MaxPageSize
	}
	if o.Sort == "" {
		o.Sort = SortLatest
	}
	if o.Status == "" {
		o.Status = StatusPublished
	}
	return o
}

type Page struct {
	Posts   []content.PostView `json:"posts"`
	Total   int                `json:"count"`
	HasMore bool               `json:"hasMore"`
	Page    int                `json:"page"`
}

func (s *Store) CreatePost(ctx context.Context, p content.Post) (content.PostView, error) {
	p.Normalize()
	now := s.now()
	if p.ID == "" {
		p.ID = s.newID()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = now
	}
	if p.IsPublished && p.PublishedAt == nil {
		t := now
		p.PublishedAt = &t
	}

	var view content.PostView
	err := s.update(ctx, func(tx *bolt.Tx) error {
		if err := validatePost(tx, p); err != nil {
			return err
		}
		if tx.Bucket(bPosts).Get([]byte(p.ID)) != nil {
			return fmt.Errorf("%w: post %s already exists", ErrConflict, p.ID)
		}
		if err := claimSlug(tx.Bucket(bPostSlug), p.Slug, p.ID); err != nil {
			return err
		}
		if err := putJSON(tx.Bucket(bPosts), []byte(p.ID), p); err != nil {
			return err
		}
		if err := indexPost(tx, p); err != nil {
			return err
		}
		if err := recountHashtags(tx, p.HashtagIDs); err != nil {
			return err
		}
		var err error
		view, err = viewOf(tx, p)
		return err
	})
	return view, err
}

// UpdatePost replaces the editable fields of an existing post. CreatedAt and
// ViewCount always come from the stored row; a zero UpdatedAt means now.
func (s *Store) UpdatePost(ctx context.Context, p content.Post) (content.PostView, error) {
	p.Normalize()

	var view content.PostView
	err := s.update(ctx, func(tx *bolt.Tx) error {
		old, err := getPost(tx, p.ID)
		if err != nil {
			return err
		}
		if err := validatePost(tx, p); err != nil {
			return err
		}

		p.CreatedAt = old.CreatedAt
		p.ViewCount = old.ViewCount
		if p.UpdatedAt.IsZero() {
			p.UpdatedAt = s.now()
		}
		if p.IsPublished && p.PublishedAt == nil {
			p.PublishedAt = old.PublishedAt
			if p.PublishedAt == nil {
				t := s.now()
				p.PublishedAt = &t
			}
		}

		slugB := tx.Bucket(bPostSlug)
		if old.Slug != p.Slug {
			if err := claimSlug(slugB, p.Slug, p.ID); err != nil {
				return err
			}
			if err := releaseSlug(slugB, old.Slug, p.ID); err != nil {
				return err
			}
		}

		if err := unindexPost(tx, old); err != nil {
			return err
		}
		if err := putJSON(tx.Bucket(bPosts), []byte(p.ID), p); err != nil {
			return err
		}
		if err := indexPost(tx, p); err != nil {
			return err
		}
		if err := recountHashtags(tx, append(append([]string{}, old.HashtagIDs...), p.HashtagIDs...)); err != nil {
			return err
		}
		view, err = viewOf(tx, p)
		return err
	})
	return view, err
}

// DeletePost removes the post with its relations and reactions.
func (s *Store) DeletePost(ctx context.Context, id string) error {
	return s.update(ctx, func(tx *bolt.Tx) error {
		p, err := getPost(tx, id)
		if err != nil {
			return err
		}
		if err := unindexPost(tx, p); err != nil {
			return err
		}
		if err := releaseSlug(tx.Bucket(bPostSlug), p.Slug, p.ID); err != nil {
			return err
		}
		if err := tx.Bucket(bPosts).Delete([]byte(p.ID)); err != nil {
			return err
		}
		if err := tx.Bucket(bReactions).DeleteBucket([]byte(p.ID)); err != nil && !errors.Is(err, bolt.ErrBucketNotFound) {
			return err
		}
		return recountHashtags(tx, p.HashtagIDs)
	})
}

func (s *Store) GetPost(ctx context.Context, id string) (content.PostView, error) {
	var view content.PostView
	err := s.view(ctx, func(tx *bolt.Tx) error {
		p, err := getPost(tx, strings.TrimSpace(id))
		if err != nil {
			return err
		}
		view, err = viewOf(tx, p)
		return err
	})
	return view, err
}

// GetPostBySlug resolves a slug. Drafts are reported as ErrNotFound when
// publishedOnly is set.
func (s *Store) GetPostBySlug(ctx context.Context, slug string, publishedOnly bool) (content.PostView, error) {
	slug = content.NormalizeSlug(slug)
	if slug == "" {
		return content.PostView{}, ErrNotFound
	}
	var view content.PostView
	err := s.view(ctx, func(tx *bolt.Tx) error {
		id := tx.Bucket(bPostSlug).Get([]byte(slug))
		if id == nil {
			return ErrNotFound
		}
		p, err := getPost(tx, string(id))
		if err != nil {
			return err
		}
		if publishedOnly && !p.IsPublished {
			return ErrNotFound
		}
		view, err = viewOf(tx, p)
		return err
	})
	return view, err
}

func (s *Store) ListPosts(ctx context.Context, opt ListOptions) (Page, error) {
	opt = opt.normalized()
	out := Page{Posts: []content.PostView{}, Page: opt.Page}

	err := s.view(ctx, func(tx *bolt.Tx) error {
		posts, err := scanPosts(tx, opt)
		if err != nil {
			return err
		}
		sortPosts(posts, opt.Sort)

		out.Total = len(posts)
		start := (opt.Page - 1) * opt.Limit
		if start > len(posts) {
			start = len(posts)
		}
		end := start + opt.Limit
		if end > len(posts) {
			end = len(posts)
		}
		for _, p := range posts[start:end] {
			v, err := viewOf(tx, p)
			if err != nil {
				return err
			}
			out.Posts = append(out.Posts, v)
		}
		out.HasMore = end < out.Total
		return nil
	})
	return out, err
}

// AllPublished returns every published post, newest first.
func (s *Store) AllPublished(ctx context.Context) ([]content.PostView, error) {
	out := []content.PostView{}
	err := s.view(ctx, func(tx *bolt.Tx) error {
		posts, err := scanPosts(tx, ListOptions{Status: StatusPublished})
		if err != nil {
			return err
		}
		for _, p := range posts {
			v, err := viewOf(tx, p)
			if err != nil {
				return err
			}
			out = append(out, v)
		}
		return nil
	})
	return out, err
}

// IncrementView bumps the view counter of a published post and returns the
// new value. UpdatedAt is left alone.
func (s *Store) IncrementView(ctx context.Context, slug string) (int, error) {
	slug = content.NormalizeSlug(slug)
	var count int
	err := s.update(ctx, func(tx *bolt.Tx) error {
		id := tx.Bucket(bPostSlug).Get([]byte(slug))
		if id == nil {
			return ErrNotFound
		}
		p, err := getPost(tx, string(id))
		if err != nil {
			return err
		}
		if !p.IsPublished {
			return ErrNotFound
		}
		p.ViewCount++
		count = p.ViewCount
		return putJSON(tx.Bucket(bPosts), []byte(p.ID), p)
	})
	return count, err
}

func (s *Store) PostsUsingThumbnail(ctx context.Context, url string) ([]content.Post, error) {
	url = strings.TrimSpace(url)
	out := []content.Post{}
	if url == "" {
		return out, nil
	}
	err := s.view(ctx, func(tx *bolt.Tx) error {
		return tx.Bucket(bPosts).ForEach(func(_, v []byte) error {
			var p content.Post
			if err := json.Unmarshal(v, &p); err != nil {
				return nil
			}
			if p.ThumbnailURL == url {
				out = append(out, p)
			}
			return nil
		})
	})
	return out, err
}

// ClearThumbnail blanks thumbnail_url on every post pointing at url and
// reports how many were changed.
func (s *Store) ClearThumbnail(ctx context.Context, url string) (int, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return 0, nil
	}
	cleared := 0
	err := s.update(ctx, func(tx *bolt.Tx) error {
		b := tx.Bucket(bPosts)
		var hits []content.Post
		err := b.ForEach(func(_, v []byte) error {
			var p content.Post
			if err := json.Unmarshal(v, &p); err != nil {
				return nil
			}
			if p.ThumbnailURL == url {
				hits = append(hits, p)
			}
			return nil
		})
		if err != nil {
			return err
		}
		// bbolt forbids writes inside ForEach
		for _, p := range hits {
			p.ThumbnailURL = ""
			if err := putJSON(b, []byte(p.ID), p); err != nil {
				return err
			}
			cleared++
		}
		return nil
	})
	return cleared, err
}

func validatePost(tx *bolt.Tx, p content.Post) error {
	var ve domainerr.ValidationError
	if p.Title == "" {
		ve.Add("title", "is required")
	}
	if p.Slug == "" {
		ve.Add("slug", "is required")
	} else if strings.ContainsAny(p.Slug, "/?#%\\") {
		ve.Add("slug", "must not contain URL delimiters")
	}
	catB := tx.Bucket(bCategories)
	for _, id := range p.CategoryIDs {
		if catB.Get([]byte(id)) == nil {
			ve.Add("category_ids", "unknown category "+id)
		}
	}
	tagB := tx.Bucket(bHashtags)
	for _, id := range p.HashtagIDs {
		if tagB.Get([]byte(id)) == nil {
			ve.Add("hashtag_ids", "unknown hashtag "+id)
		}
	}
	return ve.Err()
}

func getPost(tx *bolt.Tx, id string) (content.Post, error) {
	var p content.Post
	if id == "" {
		return p, ErrNotFound
	}
	err := getJSON(tx.Bucket(bPosts), []byte(id), &p)
	return p, err
}

func indexPost(tx *bolt.Tx, p content.Post) error {
	key := timeKey(p.PublishedTime(), p.ID)
	if err := tx.Bucket(bIdxPublished).Put(key, []byte{1}); err != nil {
		return err
	}
	for _, id := range p.CategoryIDs {
		sb, err := tx.Bucket(bIdxCat).CreateBucketIfNotExists([]byte(id))
		if err != nil {
			return err
		}
		if err := sb.Put(key, []byte{1}); err != nil {
			return err
		}
	}
	for _, id := range p.HashtagIDs {
		sb, err := tx.Bucket(bIdxTag).CreateBucketIfNotExists([]byte(id))
		if err != nil {
			return err
		}
		if err := sb.Put(key, []byte{1}); err != nil {
			return err
		}
	}
	return nil
}

func unindexPost(tx *bolt.Tx, p content.Post) error {
	key := timeKey(p.PublishedTime(), p.ID)
	if err := tx.Bucket(bIdxPublished).Delete(key); err != nil {
		return err
	}
	for _, id := range p.CategoryIDs {
		if sb := tx.Bucket(bIdxCat).Bucket([]byte(id)); sb != nil {
			if err := sb.Delete(key); err != nil {
				return err
			}
		}
	}
	for _, id := range p.HashtagIDs {
		if sb := tx.Bucket(bIdxTag).Bucket([]byte(id)); sb != nil {
			if err := sb.Delete(key); err != nil {
				return err
			}
		}
	}
	return nil
}

// scanPosts walks the publish-time index (or a category's sub-index) newest
// first and applies the status and hashtag filters.
func scanPosts(tx *bolt.Tx, opt ListOptions) ([]content.Post, error) {
	opt = opt.normalized()

	idx := tx.Bucket(bIdxPublished)
	if cat := content.NormalizeSlug(opt.Category); cat != "" {
		catID := tx.Bucket(bCategorySlug).Get([]byte(cat))
		if catID == nil {
			return nil, nil
		}
		idx = tx.Bucket(bIdxCat).Bucket(catID)
		if idx == nil {
			return nil, nil
		}
	}

	var tagIDs map[string]struct{}
	if len(opt.Hashtags) > 0 {
		tagIDs = make(map[string]struct{}, len(opt.Hashtags))
		slugB := tx.Bucket(bHashtagSlug)
		for _, slug := range opt.Hashtags {
			if id := slugB.Get([]byte(content.NormalizeSlug(slug))); id != nil {
				tagIDs[string(id)] = struct{}{}
			}
		}
		if len(tagIDs) == 0 {
			return nil, nil
		}
	}

	postsB := tx.Bucket(bPosts)
	var out []content.Post
	c := idx.Cursor()
	for k, _ := c.First(); k != nil; k, _ = c.Next() {
		id := idFromTimeKey(k)
		if id == "" {
			continue
		}
		var p content.Post
		if err := getJSON(postsB, []byte(id), &p); err != nil {
			continue
		}
		if !opt.Status.match(p) {
			continue
		}
		if tagIDs != nil && !hasAny(p.HashtagIDs, tagIDs) {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func sortPosts(posts []content.Post, by Sort) {
	switch by {
	case SortPopular:
		sort.SliceStable(posts, func(i, j int) bool {
			if posts[i].ViewCount != posts[j].ViewCount {
				return posts[i].ViewCount > posts[j].ViewCount
			}
			return posts[i].Title < posts[j].Title
		})
	case SortTitle:
		sort.SliceStable(posts, func(i, j int) bool {
			return posts[i].Title < posts[j].Title
		})
	}
	// SortLatest is the index order.
}

func viewOf(tx *bolt.Tx, p content.Post) (content.PostView, error) {
	v := content.PostView{
		Post:       p,
		Categories: []content.Category{},
		Hashtags:   []content.Hashtag{},
	}
	catB := tx.Bucket(bCategories)
	for _, id := range p.CategoryIDs {
		var c content.Category
		if err := getJSON(catB, []byte(id), &c); err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return v, err
		}
		v.Categories = append(v.Categories, c)
	}
	tagB := tx.Bucket(bHashtags)
	for _, id := range p.HashtagIDs {
		var h content.Hashtag
		if err := getJSON(tagB, []byte(id), &h); err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return v, err
		}
		v.Hashtags = append(v.Hashtags, h)
	}
	return v, nil
}

func hasAny(ids []string, set map[string]struct{}) bool {
	for _, id := range ids {
		if _, ok := set[id]; ok {
			return true
		}
	}
	return false
}
