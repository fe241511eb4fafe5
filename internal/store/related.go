package store

import (
	"context"
	"encoding/json"

	bolt "go.etcd.io/bbolt"

	"kotoba/internal/domain/content"
	"kotoba/internal/related"
)

// RelatedPosts picks up to limit published posts related to v. The pool is
// the newest posts sharing a category, topped up with the newest posts
// overall when that is thin.
func (s *Store) RelatedPosts(ctx context.Context, v content.PostView, limit int) ([]content.PostView, error) {
	out := []content.PostView{}
	err := s.view(ctx, func(tx *bolt.Tx) error {
		slugs := hashtagSlugs(tx)
		candidate := func(p content.Post) related.Candidate {
			c := related.Candidate{ID: p.ID, CategoryIDs: p.CategoryIDs}
			for _, id := range p.HashtagIDs {
				if slug, ok := slugs[id]; ok {
					c.HashtagSlugs = append(c.HashtagSlugs, slug)
				}
			}
			return c
		}

		// one extra so the pool is still full after the source is dropped
		want := related.MaxPool + 1
		seen := make(map[string]struct{}, want)
		var same []related.Candidate
		for _, catID := range v.CategoryIDs {
			if len(same) >= want {
				break
			}
			same = collectPublished(tx, tx.Bucket(bIdxCat).Bucket([]byte(catID)), seen, same, want, candidate)
		}

		var recent []related.Candidate
		if len(same) < related.MinCategoryPool+1 {
			recent = collectPublished(tx, tx.Bucket(bIdxPublished), map[string]struct{}{}, nil, want, candidate)
		}

		pool := related.AssemblePool(v.ID, same, recent)
		src := related.Source{ID: v.ID, CategoryIDs: v.CategoryIDs, HashtagSlugs: v.HashtagSlugs()}
		for _, id := range related.Select(src, pool, limit) {
			p, err := getPost(tx, id)
			if err != nil {
				continue
			}
			pv, err := viewOf(tx, p)
			if err != nil {
				return err
			}
			out = append(out, pv)
		}
		return nil
	})
	return out, err
}

func collectPublished(tx *bolt.Tx, idx *bolt.Bucket, seen map[string]struct{}, dst []related.Candidate, want int, conv func(content.Post) related.Candidate) []related.Candidate {
	if idx == nil {
		return dst
	}
	c := idx.Cursor()
	for k, _ := c.First(); k != nil && len(dst) < want; k, _ = c.Next() {
		id := idFromTimeKey(k)
		if _, ok := seen[id]; ok || id == "" {
			continue
		}
		p, err := getPost(tx, id)
		if err != nil || !p.IsPublished {
			continue
		}
		seen[id] = struct{}{}
		dst = append(dst, conv(p))
	}
	return dst
}

func hashtagSlugs(tx *bolt.Tx) map[string]string {
	out := map[string]string{}
	_ = tx.Bucket(bHashtags).ForEach(func(k, v []byte) error {
		var h content.Hashtag
		if err := json.Unmarshal(v, &h); err == nil {
			out[string(k)] = h.Slug
		}
		return nil
	})
	return out
}
