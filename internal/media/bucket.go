// Package media stores uploaded images on the local filesystem and keeps
// their metadata in the store.
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"kotoba/internal/domain/content"
	domainerr "kotoba/internal/domain/errors"
	"kotoba/internal/store"
)

var (
	ErrUnsupportedType = fmt.Errorf("%w: unsupported media type", domainerr.ErrInvalid)
	ErrTooLarge        = fmt.Errorf("%w: file too large", domainerr.ErrInvalid)
	ErrBadPath         = fmt.Errorf("%w: bad media path", domainerr.ErrInvalid)
)

// extensions by sniffed content type. SVG is refused since it can carry script.
var extensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

const DefaultMaxBytes = 10 << 20

// Metadata is the part of the store the bucket writes to.
type Metadata interface {
	PutMedia(ctx context.Context, m content.Media) error
	GetMedia(ctx context.Context, path string) (content.Media, error)
	ListMedia(ctx context.Context) ([]content.Media, error)
	DeleteMedia(ctx context.Context, path string) error
	ClearThumbnail(ctx context.Context, url string) (int, error)
}

type Options struct {
	Root          string // directory holding objects
	PublicBaseURL string // e.g. "/media"
	MaxBytes      int64
	Logger        *slog.Logger
	Now           func() time.Time
	NewID         func() string
}

type Bucket struct {
	root     string
	baseURL  string
	maxBytes int64
	meta     Metadata
	log      *slog.Logger
	now      func() time.Time
	newID    func() string
}

func New(meta Metadata, opt Options) (*Bucket, error) {
	if opt.Root == "" {
		return nil, errors.New("media: missing root")
	}
	if err := os.MkdirAll(opt.Root, 0o755); err != nil {
		return nil, fmt.Errorf("media: %w", err)
	}
	b := &Bucket{
		root:     opt.Root,
		baseURL:  strings.TrimRight(opt.PublicBaseURL, "/"),
		maxBytes: opt.MaxBytes,
		meta:     meta,
		log:      opt.Logger,
		now:      opt.Now,
		newID:    opt.NewID,
	}
	if b.maxBytes <= 0 {
		b.maxBytes = DefaultMaxBytes
	}
	if b.baseURL == "" {
		b.baseURL = "/media"
	}
	if b.log == nil {
		b.log = slog.Default()
	}
	if b.now == nil {
		b.now = time.Now
	}
	if b.newID == nil {
		b.newID = uuid.NewString
	}
	b.log = b.log.With("component", "media")
	return b, nil
}

// URL is the public address of an object path.
func (b *Bucket) URL(p string) string {
	return b.baseURL + "/" + p
}

// Upload stores r under YYYY/MM/<uuid><ext>. The declared content type is
// ignored in favour of what the bytes look like.
func (b *Bucket) Upload(ctx context.Context, name string, r io.Reader) (content.Media, error) {
	data, err := io.ReadAll(io.LimitReader(r, b.maxBytes+1))
	if err != nil {
		return content.Media{}, fmt.Errorf("media: read upload: %w", err)
	}
	if int64(len(data)) > b.maxBytes {
		return content.Media{}, ErrTooLarge
	}
	ctype := http.DetectContentType(data)
	ext, ok := extensions[ctype]
	if !ok {
		return content.Media{}, fmt.Errorf("%w: %s", ErrUnsupportedType, ctype)
	}

	now := b.now()
	id := b.newID()
	rel := path.Join(now.Format("2006"), now.Format("01"), id+ext)
	if err := b.write(rel, data); err != nil {
		return content.Media{}, err
	}

	m := content.Media{
		ID:          id,
		Name:        filepath.Base(strings.TrimSpace(name)),
		Path:        rel,
		URL:         b.URL(rel),
		ContentType: ctype,
		Size:        int64(len(data)),
		CreatedAt:   now,
	}
	if err := b.meta.PutMedia(ctx, m); err != nil {
		_ = os.Remove(b.abs(rel))
		return content.Media{}, err
	}
	b.log.Info("uploaded", "path", rel, "size", m.Size)
	return m, nil
}

func (b *Bucket) write(rel string, data []byte) error {
	dst := b.abs(rel)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("media: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return fmt.Errorf("media: %w", err)
	}
	if _, err := io.Copy(tmp, bytes.NewReader(data)); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("media: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("media: write: %w", err)
	}
	return os.Rename(tmp.Name(), dst)
}

func (b *Bucket) List(ctx context.Context) ([]content.Media, error) {
	return b.meta.ListMedia(ctx)
}

// Delete removes objects by path. Posts using an object as thumbnail lose
// it first; the number of posts changed is returned.
func (b *Bucket) Delete(ctx context.Context, paths []string) (int, error) {
	cleared := 0
	for _, raw := range paths {
		rel, err := cleanPath(raw)
		if err != nil {
			return cleared, err
		}
		url := b.URL(rel)
		if m, err := b.meta.GetMedia(ctx, rel); err == nil && m.URL != "" {
			url = m.URL
		}
		n, err := b.meta.ClearThumbnail(ctx, url)
		if err != nil {
			return cleared, err
		}
		cleared += n

		if err := os.Remove(b.abs(rel)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return cleared, fmt.Errorf("media: remove %s: %w", rel, err)
		}
		if err := b.meta.DeleteMedia(ctx, rel); err != nil && !errors.Is(err, store.ErrNotFound) {
			return cleared, err
		}
		b.log.Info("deleted", "path", rel, "thumbnails_cleared", n)
	}
	return cleared, nil
}

// Handler serves objects below the public base URL.
func (b *Bucket) Handler() http.Handler {
	return http.StripPrefix(b.baseURL+"/", http.FileServer(http.Dir(b.root)))
}

func (b *Bucket) Prefix() string {
	return b.baseURL + "/"
}

func (b *Bucket) abs(rel string) string {
	return filepath.Join(b.root, filepath.FromSlash(rel))
}

func cleanPath(p string) (string, error) {
	p = strings.TrimSpace(p)
	p = strings.TrimPrefix(p, "/")
	if p == "" {
		return "", ErrBadPath
	}
	c := path.Clean(p)
	if c == "." || c == ".." || strings.HasPrefix(c, "../") {
		return "", fmt.Errorf("%w: %s", ErrBadPath, p)
	}
	return c, nil
}
