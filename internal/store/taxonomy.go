package store

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"

	bolt "go.etcd.io/bbolt"

	"kotoba/internal/domain/content"
	domainerr "kotoba/internal/domain/errors"
)

func (s *Store) CreateCategory(ctx context.Context, c content.Category) (content.Category, error) {
	c.Normalize()
	now := s.now()
	if c.ID == "" {
		c.ID = s.newID()
	}
	c.CreatedAt, c.UpdatedAt = now, now
	c.PostCount = 0

	err := s.update(ctx, func(tx *bolt.Tx) error {
		if err := validateCategory(c); err != nil {
			return err
		}
		if err := claimSlug(tx.Bucket(bCategorySlug), c.Slug, c.ID); err != nil {
			return err
		}
		return putJSON(tx.Bucket(bCategories), []byte(c.ID), c)
	})
	return c, err
}

func (s *Store) UpdateCategory(ctx context.Context, c content.Category) (content.Category, error) {
	c.Normalize()
	err := s.update(ctx, func(tx *bolt.Tx) error {
		old, err := loadCategory(tx, c.ID)
		if err != nil {
			return err
		}
		if err := validateCategory(c); err != nil {
			return err
		}
		slugB := tx.Bucket(bCategorySlug)
		if old.Slug != c.Slug {
			if err := claimSlug(slugB, c.Slug, c.ID); err != nil {
				return err
			}
			if err := releaseSlug(slugB, old.Slug, c.ID); err != nil {
				return err
			}
		}
		c.CreatedAt = old.CreatedAt
		c.UpdatedAt = s.now()
		c.PostCount = 0
		if err := putJSON(tx.Bucket(bCategories), []byte(c.ID), c); err != nil {
			return err
		}
		c.PostCount = old.PostCount
		return nil
	})
	return c, err
}

// DeleteCategory refuses with ErrCategoryInUse while any post references it.
func (s *Store) DeleteCategory(ctx context.Context, id string) error {
	return s.update(ctx, func(tx *bolt.Tx) error {
		c, err := loadCategory(tx, id)
		if err != nil {
			return err
		}
		if c.PostCount > 0 {
			return ErrCategoryInUse
		}
		if err := tx.Bucket(bIdxCat).DeleteBucket([]byte(c.ID)); err != nil && !errors.Is(err, bolt.ErrBucketNotFound) {
			return err
		}
		if err := releaseSlug(tx.Bucket(bCategorySlug), c.Slug, c.ID); err != nil {
			return err
		}
		return tx.Bucket(bCategories).Delete([]byte(c.ID))
	})
}

func (s *Store) GetCategory(ctx context.Context, id string) (content.Category, error) {
	var c content.Category
	err := s.view(ctx, func(tx *bolt.Tx) error {
		var err error
		c, err = loadCategory(tx, strings.TrimSpace(id))
		return err
	})
	return c, err
}

func (s *Store) GetCategoryBySlug(ctx context.Context, slug string) (content.Category, error) {
	slug = content.NormalizeSlug(slug)
	var c content.Category
	err := s.view(ctx, func(tx *bolt.Tx) error {
		id := tx.Bucket(bCategorySlug).Get([]byte(slug))
		if id == nil {
			return ErrNotFound
		}
		var err error
		c, err = loadCategory(tx, string(id))
		return err
	})
	return c, err
}

// ListCategories orders by order_num, then name.
func (s *Store) ListCategories(ctx context.Context, activeOnly bool) ([]content.Category, error) {
	out := []content.Category{}
	err := s.view(ctx, func(tx *bolt.Tx) error {
		idx := tx.Bucket(bIdxCat)
		return tx.Bucket(bCategories).ForEach(func(_, v []byte) error {
			var c content.Category
			if err := json.Unmarshal(v, &c); err != nil {
				return nil
			}
			if activeOnly && !c.IsActive {
				return nil
			}
			c.PostCount = countKeys(idx.Bucket([]byte(c.ID)))
			out = append(out, c)
			return nil
		})
	})
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].OrderNum != out[j].OrderNum {
			return out[i].OrderNum < out[j].OrderNum
		}
		return out[i].Name < out[j].Name
	})
	return out, err
}

func loadCategory(tx *bolt.Tx, id string) (content.Category, error) {
	var c content.Category
	if id == "" {
		return c, ErrNotFound
	}
	if err := getJSON(tx.Bucket(bCategories), []byte(id), &c); err != nil {
		return c, err
	}
	c.PostCount = countKeys(tx.Bucket(bIdxCat).Bucket([]byte(id)))
	return c, nil
}

func validateCategory(c content.Category) error {
	var ve domainerr.ValidationError
	if c.Name == "" {
		ve.Add("name", "is required")
	}
	if c.Slug == "" {
		ve.Add("slug", "is required")
	} else if strings.ContainsAny(c.Slug, "/?#%\\") {
		ve.Add("slug", "must not contain URL delimiters")
	}
	return ve.Err()
}

func (s *Store) CreateHashtag(ctx context.Context, h content.Hashtag) (content.Hashtag, error) {
	h.Normalize()
	now := s.now()
	if h.ID == "" {
		h.ID = s.newID()
	}
	h.CreatedAt, h.UpdatedAt = now, now
	h.Count = 0

	err := s.update(ctx, func(tx *bolt.Tx) error {
		if err := validateHashtag(h); err != nil {
			return err
		}
		if err := claimSlug(tx.Bucket(bHashtagSlug), h.Slug, h.ID); err != nil {
			return err
		}
		return putJSON(tx.Bucket(bHashtags), []byte(h.ID), h)
	})
	return h, err
}

func (s *Store) UpdateHashtag(ctx context.Context, h content.Hashtag) (content.Hashtag, error) {
	h.Normalize()
	err := s.update(ctx, func(tx *bolt.Tx) error {
		var old content.Hashtag
		if err := getJSON(tx.Bucket(bHashtags), []byte(h.ID), &old); err != nil {
			return err
		}
		if err := validateHashtag(h); err != nil {
			return err
		}
		slugB := tx.Bucket(bHashtagSlug)
		if old.Slug != h.Slug {
			if err := claimSlug(slugB, h.Slug, h.ID); err != nil {
				return err
			}
			if err := releaseSlug(slugB, old.Slug, h.ID); err != nil {
				return err
			}
		}
		h.CreatedAt = old.CreatedAt
		h.UpdatedAt = s.now()
		h.Count = old.Count
		return putJSON(tx.Bucket(bHashtags), []byte(h.ID), h)
	})
	return h, err
}

// DeleteHashtag unlinks the hashtag from every post before removing it.
func (s *Store) DeleteHashtag(ctx context.Context, id string) error {
	return s.update(ctx, func(tx *bolt.Tx) error {
		var h content.Hashtag
		if err := getJSON(tx.Bucket(bHashtags), []byte(id), &h); err != nil {
			return err
		}
		return deleteHashtag(tx, h)
	})
}

func deleteHashtag(tx *bolt.Tx, h content.Hashtag) error {
	idxTag := tx.Bucket(bIdxTag)
	if sb := idxTag.Bucket([]byte(h.ID)); sb != nil {
		var postIDs []string
		c := sb.Cursor()
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			if id := idFromTimeKey(k); id != "" {
				postIDs = append(postIDs, id)
			}
		}
		postsB := tx.Bucket(bPosts)
		for _, pid := range postIDs {
			p, err := getPost(tx, pid)
			if err != nil {
				continue
			}
			p.HashtagIDs = without(p.HashtagIDs, h.ID)
			if err := putJSON(postsB, []byte(p.ID), p); err != nil {
				return err
			}
		}
		if err := idxTag.DeleteBucket([]byte(h.ID)); err != nil {
			return err
		}
	}
	if err := releaseSlug(tx.Bucket(bHashtagSlug), h.Slug, h.ID); err != nil {
		return err
	}
	return tx.Bucket(bHashtags).Delete([]byte(h.ID))
}

func (s *Store) GetHashtag(ctx context.Context, id string) (content.Hashtag, error) {
	var h content.Hashtag
	err := s.view(ctx, func(tx *bolt.Tx) error {
		return getJSON(tx.Bucket(bHashtags), []byte(strings.TrimSpace(id)), &h)
	})
	return h, err
}

func (s *Store) GetHashtagBySlug(ctx context.Context, slug string) (content.Hashtag, error) {
	slug = content.NormalizeSlug(slug)
	var h content.Hashtag
	err := s.view(ctx, func(tx *bolt.Tx) error {
		id := tx.Bucket(bHashtagSlug).Get([]byte(slug))
		if id == nil {
			return ErrNotFound
		}
		return getJSON(tx.Bucket(bHashtags), id, &h)
	})
	return h, err
}

// ListHashtags orders by name.
func (s *Store) ListHashtags(ctx context.Context) ([]content.Hashtag, error) {
	out, err := s.allHashtags(ctx)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, err
}

// PopularHashtags returns the most used hashtags; unused ones are left out.
func (s *Store) PopularHashtags(ctx context.Context, limit int) ([]content.Hashtag, error) {
	all, err := s.allHashtags(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]content.Hashtag, 0, len(all))
	for _, h := range all {
		if h.Count > 0 {
			out = append(out, h)
		}
	}
	sortByCount(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// SuggestHashtags matches q case-insensitively anywhere in the name or slug.
func (s *Store) SuggestHashtags(ctx context.Context, q string, limit int) ([]content.Hashtag, error) {
	q = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(q), "#"))
	out := []content.Hashtag{}
	if q == "" {
		return out, nil
	}
	all, err := s.allHashtags(ctx)
	if err != nil {
		return nil, err
	}
	for _, h := range all {
		if strings.Contains(strings.ToLower(h.Name), q) || strings.Contains(h.Slug, q) {
			out = append(out, h)
		}
	}
	sortByCount(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// DeleteUnusedHashtags removes every hashtag no post carries and returns
// how many were removed.
func (s *Store) DeleteUnusedHashtags(ctx context.Context) (int, error) {
	removed := 0
	err := s.update(ctx, func(tx *bolt.Tx) error {
		var unused []content.Hashtag
		idx := tx.Bucket(bIdxTag)
		err := tx.Bucket(bHashtags).ForEach(func(_, v []byte) error {
			var h content.Hashtag
			if err := json.Unmarshal(v, &h); err != nil {
				return nil
			}
			if countKeys(idx.Bucket([]byte(h.ID))) == 0 {
				unused = append(unused, h)
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, h := range unused {
			if err := deleteHashtag(tx, h); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	return removed, err
}

// EnsureHashtags returns the hashtags for names, creating missing ones.
// Names that normalize to the same slug collapse into one hashtag.
func (s *Store) EnsureHashtags(ctx context.Context, names []string) ([]content.Hashtag, error) {
	out := []content.Hashtag{}
	err := s.update(ctx, func(tx *bolt.Tx) error {
		slugB := tx.Bucket(bHashtagSlug)
		tagB := tx.Bucket(bHashtags)
		seen := make(map[string]struct{}, len(names))
		for _, name := range names {
			h := content.Hashtag{Name: name}
			h.Normalize()
			if h.Name == "" || h.Slug == "" {
				continue
			}
			if _, ok := seen[h.Slug]; ok {
				continue
			}
			seen[h.Slug] = struct{}{}

			if id := slugB.Get([]byte(h.Slug)); id != nil {
				var existing content.Hashtag
				if err := getJSON(tagB, id, &existing); err != nil {
					return err
				}
				out = append(out, existing)
				continue
			}
			now := s.now()
			h.ID = s.newID()
			h.CreatedAt, h.UpdatedAt = now, now
			if err := claimSlug(slugB, h.Slug, h.ID); err != nil {
				return err
			}
			if err := putJSON(tagB, []byte(h.ID), h); err != nil {
				return err
			}
			out = append(out, h)
		}
		return nil
	})
	return out, err
}

func (s *Store) allHashtags(ctx context.Context) ([]content.Hashtag, error) {
	out := []content.Hashtag{}
	err := s.view(ctx, func(tx *bolt.Tx) error {
		return tx.Bucket(bHashtags).ForEach(func(_, v []byte) error {
			var h content.Hashtag
			if err := json.Unmarshal(v, &h); err != nil {
				return nil
			}
			out = append(out, h)
			return nil
		})
	})
	return out, err
}

// recountHashtags refreshes the denormalized Count of the given hashtags.
func recountHashtags(tx *bolt.Tx, ids []string) error {
	tagB := tx.Bucket(bHashtags)
	idx := tx.Bucket(bIdxTag)
	done := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := done[id]; ok {
			continue
		}
		done[id] = struct{}{}

		var h content.Hashtag
		if err := getJSON(tagB, []byte(id), &h); err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return err
		}
		h.Count = countKeys(idx.Bucket([]byte(id)))
		if err := putJSON(tagB, []byte(id), h); err != nil {
			return err
		}
	}
	return nil
}

func validateHashtag(h content.Hashtag) error {
	var ve domainerr.ValidationError
	if h.Name == "" {
		ve.Add("name", "is required")
	}
	if h.Slug == "" {
		ve.Add("slug", "is required")
	} else if strings.ContainsAny(h.Slug, "/?#%\\") {
		ve.Add("slug", "must not contain URL delimiters")
	}
	return ve.Err()
}

func sortByCount(tags []content.Hashtag) {
	sort.SliceStable(tags, func(i, j int) bool {
		if tags[i].Count != tags[j].Count {
			return tags[i].Count > tags[j].Count
		}
		return tags[i].Name < tags[j].Name
	})
}

func without(ids []string, drop string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != drop {
			out = append(out, id)
		}
	}
	return out
}
