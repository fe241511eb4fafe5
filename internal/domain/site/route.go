package site

import (
	"fmt"
	"net/url"
	"path"
	"strings"

	"kotoba/internal/domain/content"
)

type RouteKind string

const (
	RouteIndex    RouteKind = "index"
	RoutePost     RouteKind = "post"
	RouteCategory RouteKind = "category"
	RouteHashtag  RouteKind = "hashtag"
	RouteSearch   RouteKind = "search"
	RouteSitemap  RouteKind = "sitemap"
	RouteRobots   RouteKind = "robots"
	RouteNotFound RouteKind = "404"
)

// UncategorizedSegment stands in for the category part of an article URL
// when the post has no category.
const UncategorizedSegment = "posts"

type Route struct {
	Kind    RouteKind
	Slug    string
	Key     string // category slug for posts
	Page    int
	OutPath string
}

func (r Route) String() string {
	var parts []string
	parts = append(parts, string(r.Kind))
	if r.Slug != "" {
		parts = append(parts, "slug="+r.Slug)
	}
	if r.Key != "" {
		parts = append(parts, "key="+r.Key)
	}
	if r.Page > 0 {
		parts = append(parts, fmt.Sprintf("page=%d", r.Page))
	}
	if r.OutPath != "" {
		parts = append(parts, "out="+r.OutPath)
	}
	return strings.Join(parts, " ")
}

// URLPath is the site-relative address of the route.
func (r Route) URLPath() string {
	switch r.Kind {
	case RoutePost:
		return "/" + url.PathEscape(r.Key) + "/" + url.PathEscape(r.Slug) + "/"
	case RouteHashtag:
		return HashtagPath(r.Slug)
	case RouteCategory:
		return "/?category=" + url.QueryEscape(r.Slug)
	case RouteSearch:
		return "/search"
	case RouteSitemap:
		return "/sitemap.xml"
	case RouteRobots:
		return "/robots.txt"
	case RouteNotFound:
		return "/404.html"
	default:
		return "/"
	}
}

// PostRoute places an article under its first category.
func PostRoute(v content.PostView) Route {
	seg := UncategorizedSegment
	if c, ok := v.PrimaryCategory(); ok && c.Slug != "" {
		seg = c.Slug
	}
	return Route{
		Kind:    RoutePost,
		Slug:    v.Slug,
		Key:     seg,
		OutPath: path.Join(seg, v.Slug, "index.html"),
	}
}

func PostPath(v content.PostView) string {
	return PostRoute(v).URLPath()
}

func HashtagPath(slug string) string {
	return "/hashtags/" + url.PathEscape(slug) + "/"
}

// Absolute joins base (e.g. https://example.com) and a site-relative path.
func Absolute(base, p string) string {
	return strings.TrimRight(base, "/") + p
}
