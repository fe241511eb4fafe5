// Package build exports the published site as static files.
package build

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"kotoba/internal/app"
	"kotoba/internal/domain/config"
	"kotoba/internal/domain/content"
	"kotoba/internal/domain/site"
	"kotoba/internal/htmltext"
	"kotoba/internal/render"
	"kotoba/internal/store"
	"kotoba/internal/toc"
)

const (
	cloudSize    = 20
	relatedLimit = 3
)

type Builder struct {
	Cfg      config.Config
	Store    *store.Store
	Renderer render.Renderer
	Logger   *slog.Logger
}

type Result struct {
	Posts    int
	Hashtags int
	Files    int
}

// Run renders every published page into Cfg.Build.PublicDir. Listing pages
// hold the whole result set since query-string filters have no static form.
func (b *Builder) Run(ctx context.Context) (*Result, error) {
	log := b.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "build")

	outDir := b.Cfg.Build.PublicDir
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir public: %w", err)
	}

	posts, err := b.Store.AllPublished(ctx)
	if err != nil {
		return nil, fmt.Errorf("load posts: %w", err)
	}

	res := &Result{Posts: len(posts)}
	steps := []struct {
		name string
		fn   func() (int, error)
	}{
		{"home", func() (int, error) { return b.buildHome(ctx, outDir, posts) }},
		{"posts", func() (int, error) { return b.buildPosts(ctx, outDir, posts) }},
		{"hashtags", func() (int, error) {
			n, err := b.buildHashtags(ctx, outDir, posts)
			res.Hashtags = n
			return n, err
		}},
		{"404", func() (int, error) { return b.buildNotFound(ctx, outDir) }},
		{"sitemap", func() (int, error) { return b.buildSitemap(ctx, outDir) }},
		{"static assets", func() (int, error) {
			return copyTree(filepath.Join(b.Cfg.Build.ThemeDir, b.Cfg.Site.Theme, "static"), outDir)
		}},
		{"media", func() (int, error) { return b.copyMedia(outDir) }},
	}
	for _, s := range steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, err := s.fn()
		if err != nil {
			return nil, fmt.Errorf("build %s: %w", s.name, err)
		}
		res.Files += n
		log.Debug("built", "step", s.name, "files", n)
	}
	log.Info("export complete", "dir", outDir, "posts", res.Posts, "hashtags", res.Hashtags, "files", res.Files)
	return res, nil
}

func (b *Builder) base(title, description, canonicalPath string) render.Base {
	base := render.Base{
		Site:        b.Cfg.Site,
		PageTitle:   title,
		Description: description,
	}
	if canonicalPath != "" {
		base.Canonical = site.Absolute(b.Cfg.Site.SiteURL, canonicalPath)
	}
	return base
}

func (b *Builder) buildHome(ctx context.Context, outDir string, posts []content.PostView) (int, error) {
	tags, err := b.Store.PopularHashtags(ctx, cloudSize)
	if err != nil {
		return 0, err
	}
	page := render.HomePage{
		Base:  b.base(b.Cfg.Site.Title, b.Cfg.Site.Description, "/"),
		Posts: render.NewPostCards(posts),
		Total: len(posts),
		Hashtags: render.NewHashtagCloud(tags,
			func(h content.Hashtag) string { return site.HashtagPath(h.Slug) }, nil),
	}
	htmlBytes, err := b.Renderer.RenderHome(ctx, page)
	if err != nil {
		return 0, err
	}
	return 1, writeFile(outDir, "index.html", htmlBytes)
}

func (b *Builder) buildPosts(ctx context.Context, outDir string, posts []content.PostView) (int, error) {
	rb := app.RouteBuilder{Store: b.Store}
	routes := rb.BuildPostRoutes(posts)
	for i, v := range posts {
		res := toc.Process(v.Content)
		rel, err := b.Store.RelatedPosts(ctx, v, relatedLimit)
		if err != nil {
			return i, fmt.Errorf("related %s: %w", v.Slug, err)
		}
		counts, err := b.Store.Reactions(ctx, v.ID)
		if err != nil {
			return i, fmt.Errorf("reactions %s: %w", v.Slug, err)
		}
		desc := v.Excerpt
		if desc == "" {
			desc = htmltext.TruncateDescription(htmltext.PlainText(v.Content), 160)
		}
		urlPath := routes[i].URLPath()
		page := render.PostPage{
			Base:      b.base(v.Title+" | "+b.Cfg.Site.Name, desc, urlPath),
			Post:      v,
			URL:       urlPath,
			HTML:      template.HTML(res.HTML),
			TOC:       res.Headings,
			Related:   render.NewPostCards(rel),
			Reactions: render.NewReactionCounts(counts),
			ViewCount: htmltext.FormatCount(v.ViewCount),
		}
		htmlBytes, err := b.Renderer.RenderPost(ctx, page)
		if err != nil {
			return i, fmt.Errorf("render %s: %w", v.Slug, err)
		}
		if err := writeFile(outDir, filepath.FromSlash(routes[i].OutPath), htmlBytes); err != nil {
			return i, err
		}
	}
	return len(posts), nil
}

func (b *Builder) buildHashtags(ctx context.Context, outDir string, posts []content.PostView) (int, error) {
	rb := app.RouteBuilder{Store: b.Store}
	routes := rb.BuildHashtagRoutes(posts)
	for i, r := range routes {
		h, err := b.Store.GetHashtagBySlug(ctx, r.Slug)
		if err != nil {
			return i, fmt.Errorf("hashtag %s: %w", r.Slug, err)
		}
		var tagged []content.PostView
		for _, v := range posts {
			for _, t := range v.Hashtags {
				if t.Slug == r.Slug {
					tagged = append(tagged, v)
					break
				}
			}
		}
		page := render.HashtagPage{
			Base:    b.base("#"+h.Name+" | "+b.Cfg.Site.Name, b.Cfg.Site.Description, r.URLPath()),
			Hashtag: h,
			Posts:   render.NewPostCards(tagged),
			Total:   len(tagged),
		}
		htmlBytes, err := b.Renderer.RenderHashtag(ctx, page)
		if err != nil {
			return i, err
		}
		if err := writeFile(outDir, filepath.FromSlash(r.OutPath), htmlBytes); err != nil {
			return i, err
		}
	}
	return len(routes), nil
}

func (b *Builder) buildNotFound(ctx context.Context, outDir string) (int, error) {
	page := render.NotFoundPage{
		Base: b.base("ページが見つかりません | "+b.Cfg.Site.Name, b.Cfg.Site.Description, ""),
	}
	htmlBytes, err := b.Renderer.RenderNotFound(ctx, page)
	if err != nil {
		return 0, err
	}
	return 1, writeFile(outDir, "404.html", htmlBytes)
}

func (b *Builder) buildSitemap(ctx context.Context, outDir string) (int, error) {
	rb := app.RouteBuilder{Store: b.Store}
	entries, err := rb.Sitemap(ctx, b.Cfg.Site.SiteURL, b.Cfg.Build.Now)
	if err != nil {
		return 0, err
	}
	var buf bytes.Buffer
	if err := site.WriteSitemap(&buf, entries); err != nil {
		return 0, err
	}
	if err := writeFile(outDir, "sitemap.xml", buf.Bytes()); err != nil {
		return 0, err
	}
	if err := writeFile(outDir, "robots.txt", []byte(site.Robots(b.Cfg.Site.SiteURL))); err != nil {
		return 1, err
	}
	return 2, nil
}

// copyMedia mirrors the media directory when objects are served from this
// site rather than an external host.
func (b *Builder) copyMedia(outDir string) (int, error) {
	base := strings.Trim(b.Cfg.Media.PublicBaseURL, "/")
	if base == "" || strings.Contains(base, "://") || strings.HasPrefix(b.Cfg.Media.PublicBaseURL, "//") {
		return 0, nil
	}
	return copyTree(b.Cfg.Media.Dir, filepath.Join(outDir, filepath.FromSlash(base)))
}

// copyTree copies regular files below src into dst. A missing src copies
// nothing.
func copyTree(src, dst string) (int, error) {
	info, err := os.Stat(src)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	if !info.IsDir() {
		return 0, nil
	}

	n := 0
	err = filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		// temp files from an upload in progress
		if strings.HasPrefix(d.Name(), ".") {
			return nil
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		in, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		if err := writeFile(dst, rel, in); err != nil {
			return err
		}
		n++
		return nil
	})
	return n, err
}

func writeFile(outDir, rel string, data []byte) error {
	dst := filepath.Join(outDir, rel)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}
