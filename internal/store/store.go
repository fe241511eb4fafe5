// Package store keeps posts, taxonomy, reactions and media metadata in a
// single bbolt file.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
	// ErrCategoryInUse is returned when deleting a category that still has posts.
	ErrCategoryInUse = fmt.Errorf("%w: category has posts", ErrConflict)
)

type Store struct {
	db    *bolt.DB
	now   func() time.Time
	newID func() string
}

type OpenOptions struct {
	Path    string // e.g. ".kotoba/kotoba.db"
	Timeout time.Duration

	// Now and NewID default to time.Now and uuid.NewString.
	Now   func() time.Time
	NewID func() string
}

func Open(opt OpenOptions) (*Store, error) {
	if opt.Path == "" {
		return nil, errors.New("store: missing path")
	}
	if err := os.MkdirAll(filepath.Dir(opt.Path), 0o755); err != nil {
		return nil, err
	}
	if opt.Timeout <= 0 {
		opt.Timeout = time.Second
	}
	db, err := bolt.Open(opt.Path, 0o600, &bolt.Options{
		Timeout: opt.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", opt.Path, err)
	}

	s := &Store{db: db, now: opt.Now, newID: opt.NewID}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range topLevelBuckets {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("create bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) view(ctx context.Context, fn func(tx *bolt.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(fn)
}

func (s *Store) update(ctx context.Context, fn func(tx *bolt.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(fn)
}

func getJSON(b *bolt.Bucket, key []byte, v any) error {
	if b == nil {
		return ErrNotFound
	}
	raw := b.Get(key)
	if raw == nil {
		return ErrNotFound
	}
	return json.Unmarshal(raw, v)
}

func putJSON(b *bolt.Bucket, key []byte, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.Put(key, raw)
}

// claimSlug maps slug to id unless another record already owns it.
func claimSlug(b *bolt.Bucket, slug, id string) error {
	if owner := b.Get([]byte(slug)); owner != nil && string(owner) != id {
		return fmt.Errorf("%w: slug %q is already used", ErrConflict, slug)
	}
	return b.Put([]byte(slug), []byte(id))
}

func releaseSlug(b *bolt.Bucket, slug, id string) error {
	if owner := b.Get([]byte(slug)); owner != nil && string(owner) == id {
		return b.Delete([]byte(slug))
	}
	return nil
}

func countKeys(b *bolt.Bucket) int {
	if b == nil {
		return 0
	}
	n := 0
	c := b.Cursor()
	for k, _ := c.First(); k != nil; k, _ = c.Next() {
		n++
	}
	return n
}
