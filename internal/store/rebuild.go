package store

import (
	"context"
	"encoding/json"

	bolt "go.etcd.io/bbolt"

	"kotoba/internal/domain/content"
)

type Stats struct {
	Posts      int `json:"posts"`
	Published  int `json:"published"`
	Drafts     int `json:"drafts"`
	Categories int `json:"categories"`
	Hashtags   int `json:"hashtags"`
	Media      int `json:"media"`
	TotalViews int `json:"total_views"`
}

func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.view(ctx, func(tx *bolt.Tx) error {
		err := tx.Bucket(bPosts).ForEach(func(_, v []byte) error {
			var p content.Post
			if err := json.Unmarshal(v, &p); err != nil {
				return nil
			}
			st.Posts++
			if p.IsPublished {
				st.Published++
			} else {
				st.Drafts++
			}
			st.TotalViews += p.ViewCount
			return nil
		})
		if err != nil {
			return err
		}
		st.Categories = countKeys(tx.Bucket(bCategories))
		st.Hashtags = countKeys(tx.Bucket(bHashtags))
		st.Media = countKeys(tx.Bucket(bMedia))
		return nil
	})
	return st, err
}

// Reindex drops every derived bucket and rebuilds it from the post rows,
// then recounts all hashtags. It returns the number of posts indexed.
func (s *Store) Reindex(ctx context.Context) (int, error) {
	n := 0
	err := s.update(ctx, func(tx *bolt.Tx) error {
		_ = tx.DeleteBucket(bIdxPublished)
		_ = tx.DeleteBucket(bIdxCat)
		_ = tx.DeleteBucket(bIdxTag)
		_ = tx.DeleteBucket(bPostSlug)
		for _, name := range [][]byte{bIdxPublished, bIdxCat, bIdxTag, bPostSlug} {
			if _, err := tx.CreateBucket(name); err != nil {
				return err
			}
		}

		var posts []content.Post
		err := tx.Bucket(bPosts).ForEach(func(_, v []byte) error {
			var p content.Post
			if err := json.Unmarshal(v, &p); err != nil {
				return nil
			}
			posts = append(posts, p)
			return nil
		})
		if err != nil {
			return err
		}

		slugB := tx.Bucket(bPostSlug)
		for _, p := range posts {
			if err := claimSlug(slugB, p.Slug, p.ID); err != nil {
				return err
			}
			if err := indexPost(tx, p); err != nil {
				return err
			}
			n++
		}

		var tagIDs []string
		_ = tx.Bucket(bHashtags).ForEach(func(k, _ []byte) error {
			tagIDs = append(tagIDs, string(k))
			return nil
		})
		return recountHashtags(tx, tagIDs)
	})
	return n, err
}
