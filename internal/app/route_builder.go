package app

import (
	"context"
	"path"
	"sort"
	"time"

	"kotoba/internal/domain/content"
	"kotoba/internal/domain/site"
)

// Catalog is the read side of the store the builder needs.
type Catalog interface {
	AllPublished(ctx context.Context) ([]content.PostView, error)
	ListCategories(ctx context.Context, activeOnly bool) ([]content.Category, error)
}

type RouteBuilder struct {
	Store Catalog
}

func (rb *RouteBuilder) BuildPostRoutes(posts []content.PostView) []site.Route {
	routes := make([]site.Route, 0, len(posts))
	for _, v := range posts {
		routes = append(routes, site.PostRoute(v))
	}
	return routes
}

// BuildHashtagRoutes lists one page per hashtag carried by a published post.
func (rb *RouteBuilder) BuildHashtagRoutes(posts []content.PostView) []site.Route {
	seen := map[string]struct{}{}
	var routes []site.Route
	for _, v := range posts {
		for _, h := range v.Hashtags {
			if _, ok := seen[h.Slug]; ok || h.Slug == "" {
				continue
			}
			seen[h.Slug] = struct{}{}
			routes = append(routes, site.Route{
				Kind:    site.RouteHashtag,
				Slug:    h.Slug,
				OutPath: path.Join("hashtags", h.Slug, "index.html"),
			})
		}
	}
	sort.Slice(routes, func(i, j int) bool { return routes[i].Slug < routes[j].Slug })
	return routes
}

// Sitemap lists the home page, active categories and every published post.
func (rb *RouteBuilder) Sitemap(ctx context.Context, siteURL string, now time.Time) ([]site.SitemapEntry, error) {
	cats, err := rb.Store.ListCategories(ctx, true)
	if err != nil {
		return nil, err
	}
	posts, err := rb.Store.AllPublished(ctx)
	if err != nil {
		return nil, err
	}

	entries := make([]site.SitemapEntry, 0, 1+len(cats)+len(posts))
	entries = append(entries, site.SitemapEntry{
		Loc:        site.Absolute(siteURL, "/"),
		LastMod:    now,
		ChangeFreq: site.ChangeDaily,
		Priority:   1.0,
	})
	for _, c := range cats {
		r := site.Route{Kind: site.RouteCategory, Slug: c.Slug}
		entries = append(entries, site.SitemapEntry{
			Loc:        site.Absolute(siteURL, r.URLPath()),
			LastMod:    now,
			ChangeFreq: site.ChangeDaily,
			Priority:   0.6,
		})
	}
	for i, r := range rb.BuildPostRoutes(posts) {
		entries = append(entries, site.SitemapEntry{
			Loc:        site.Absolute(siteURL, r.URLPath()),
			LastMod:    posts[i].UpdatedAt,
			ChangeFreq: site.ChangeWeekly,
			Priority:   0.8,
		})
	}
	return entries, nil
}
