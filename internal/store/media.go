package store

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	bolt "go.etcd.io/bbolt"

	"kotoba/internal/domain/content"
	domainerr "kotoba/internal/domain/errors"
)

func (s *Store) PutMedia(ctx context.Context, m content.Media) error {
	if strings.TrimSpace(m.Path) == "" {
		var ve domainerr.ValidationError
		ve.Add("path", "is required")
		return ve
	}
	return s.update(ctx, func(tx *bolt.Tx) error {
		return putJSON(tx.Bucket(bMedia), []byte(m.Path), m)
	})
}

func (s *Store) GetMedia(ctx context.Context, path string) (content.Media, error) {
	var m content.Media
	err := s.view(ctx, func(tx *bolt.Tx) error {
		return getJSON(tx.Bucket(bMedia), []byte(path), &m)
	})
	return m, err
}

// ListMedia returns every object, newest first.
func (s *Store) ListMedia(ctx context.Context) ([]content.Media, error) {
	out := []content.Media{}
	err := s.view(ctx, func(tx *bolt.Tx) error {
		return tx.Bucket(bMedia).ForEach(func(_, v []byte) error {
			var m content.Media
			if err := json.Unmarshal(v, &m); err != nil {
				return nil
			}
			out = append(out, m)
			return nil
		})
	})
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, err
}

func (s *Store) DeleteMedia(ctx context.Context, path string) error {
	return s.update(ctx, func(tx *bolt.Tx) error {
		b := tx.Bucket(bMedia)
		if b.Get([]byte(path)) == nil {
			return ErrNotFound
		}
		return b.Delete([]byte(path))
	})
}
