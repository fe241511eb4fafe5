package store

import (
	"context"
	"strings"

	bolt "go.etcd.io/bbolt"

	"kotoba/internal/domain/content"
	domainerr "kotoba/internal/domain/errors"
)

// Reactions returns the counts recorded for a post. Types never reacted with
// are absent from the map.
func (s *Store) Reactions(ctx context.Context, postID string) (map[content.ReactionType]int, error) {
	out := map[content.ReactionType]int{}
	err := s.view(ctx, func(tx *bolt.Tx) error {
		sb := tx.Bucket(bReactions).Bucket([]byte(strings.TrimSpace(postID)))
		if sb == nil {
			return nil
		}
		return sb.ForEach(func(k, v []byte) error {
			out[content.ReactionType(k)] = int(decodeCount(v))
			return nil
		})
	})
	return out, err
}

func (s *Store) IncrementReaction(ctx context.Context, postID string, t content.ReactionType) (int, error) {
	postID = strings.TrimSpace(postID)
	if !t.Valid() {
		var ve domainerr.ValidationError
		ve.Add("reaction_type", "invalid reaction_type")
		return 0, ve
	}
	var count int
	err := s.update(ctx, func(tx *bolt.Tx) error {
		if tx.Bucket(bPosts).Get([]byte(postID)) == nil {
			return ErrNotFound
		}
		sb, err := tx.Bucket(bReactions).CreateBucketIfNotExists([]byte(postID))
		if err != nil {
			return err
		}
		n := decodeCount(sb.Get([]byte(t))) + 1
		count = int(n)
		return sb.Put([]byte(t), encodeCount(n))
	})
	return count, err
}
