package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"kotoba/internal/domain/content"
	"kotoba/internal/htmltext"
	"kotoba/internal/metrics"
	"kotoba/internal/render"
	"kotoba/internal/store"
)

// Target is the store surface the importer writes to.
type Target interface {
	GetCategoryBySlug(ctx context.Context, slug string) (content.Category, error)
	CreateCategory(ctx context.Context, c content.Category) (content.Category, error)
	EnsureHashtags(ctx context.Context, names []string) ([]content.Hashtag, error)
	GetPostBySlug(ctx context.Context, slug string, publishedOnly bool) (content.PostView, error)
	CreatePost(ctx context.Context, p content.Post) (content.PostView, error)
	UpdatePost(ctx context.Context, p content.Post) (content.PostView, error)
}

type Importer struct {
	Store     Target
	Markdown  *render.MarkdownRenderer
	Sanitizer *htmltext.Sanitizer
	Logger    *slog.Logger
}

type Report struct {
	Created   int
	Updated   int
	Unchanged int
	Warnings  []Warning
}

func NewImporter(st Target, logger *slog.Logger) *Importer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{
		Store:     st,
		Markdown:  render.NewMarkdownRenderer(),
		Sanitizer: htmltext.NewSanitizer(),
		Logger:    logger.With("component", "import"),
	}
}

// Apply upserts articles by slug. Categories are matched by slug and created
// when missing; hashtags go through EnsureHashtags. Posts whose stored form
// already matches are left alone so view counts and updated_at stay put.
func (im *Importer) Apply(ctx context.Context, arts []Article) (Report, error) {
	var rep Report
	for _, a := range arts {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		outcome, warns, err := im.apply(ctx, a)
		rep.Warnings = append(rep.Warnings, warns...)
		if err != nil {
			return rep, fmt.Errorf("import %s: %w", a.SourcePath, err)
		}
		switch outcome {
		case "created":
			rep.Created++
		case "updated":
			rep.Updated++
		default:
			rep.Unchanged++
		}
		metrics.RecordImport(outcome)
		im.Logger.Debug("applied", "path", a.SourcePath, "slug", a.Slug, "outcome", outcome, "hash", a.ContentHash)
	}
	im.Logger.Info("import finished", "created", rep.Created, "updated", rep.Updated, "unchanged", rep.Unchanged)
	return rep, nil
}

func (im *Importer) apply(ctx context.Context, a Article) (string, []Warning, error) {
	var warns []Warning

	md, err := im.Markdown.Render(a.Body)
	if err != nil {
		return "", nil, fmt.Errorf("markdown: %w", err)
	}
	if md.H1Count > 0 {
		warns = append(warns, Warning{Path: a.SourcePath, Msg: "body contains h1 headings; the title is already the page h1"})
	}

	catIDs, err := im.categoryIDs(ctx, a.Categories)
	if err != nil {
		return "", warns, err
	}
	tags, err := im.Store.EnsureHashtags(ctx, a.Hashtags)
	if err != nil {
		return "", warns, err
	}
	tagIDs := make([]string, 0, len(tags))
	for _, h := range tags {
		tagIDs = append(tagIDs, h.ID)
	}

	thumb := a.Thumbnail
	if thumb == "" {
		thumb = md.FirstImage
	}
	p := content.Post{
		Title:        a.Title,
		Slug:         a.Slug,
		Content:      im.Sanitizer.Sanitize(string(md.HTML)),
		Excerpt:      a.Excerpt,
		ThumbnailURL: thumb,
		CategoryIDs:  catIDs,
		HashtagIDs:   tagIDs,
		IsPublished:  a.Published,
		CreatedAt:    a.Date,
		UpdatedAt:    a.Updated,
	}
	if a.Published {
		d := a.Date
		p.PublishedAt = &d
	}
	p.Normalize()

	existing, err := im.Store.GetPostBySlug(ctx, a.Slug, false)
	switch {
	case errors.Is(err, store.ErrNotFound):
		if _, err := im.Store.CreatePost(ctx, p); err != nil {
			return "", warns, err
		}
		return "created", warns, nil
	case err != nil:
		return "", warns, err
	}

	if samePost(existing.Post, p) {
		return "unchanged", warns, nil
	}
	p.ID = existing.ID
	if _, err := im.Store.UpdatePost(ctx, p); err != nil {
		return "", warns, err
	}
	return "updated", warns, nil
}

func (im *Importer) categoryIDs(ctx context.Context, names []string) ([]string, error) {
	var ids []string
	for _, name := range names {
		slug := content.NormalizeSlug(slugify(name))
		if slug == "" {
			continue
		}
		c, err := im.Store.GetCategoryBySlug(ctx, slug)
		if errors.Is(err, store.ErrNotFound) {
			c, err = im.Store.CreateCategory(ctx, content.Category{Name: name, Slug: slug, IsActive: true})
			if err == nil {
				im.Logger.Info("created category", "name", name, "slug", slug)
			}
		}
		if err != nil {
			return nil, fmt.Errorf("category %q: %w", name, err)
		}
		ids = append(ids, c.ID)
	}
	return ids, nil
}

func samePost(old, p content.Post) bool {
	if old.Title != p.Title || old.Content != p.Content || old.Excerpt != p.Excerpt ||
		old.ThumbnailURL != p.ThumbnailURL || old.IsPublished != p.IsPublished {
		return false
	}
	if !slices.Equal(old.CategoryIDs, p.CategoryIDs) || !slices.Equal(old.HashtagIDs, p.HashtagIDs) {
		return false
	}
	if (old.PublishedAt == nil) != (p.PublishedAt == nil) {
		return false
	}
	if old.PublishedAt != nil && !old.PublishedAt.Equal(*p.PublishedAt) {
		return false
	}
	return old.UpdatedAt.Equal(p.UpdatedAt)
}
