// Package listing holds the query-string state of post listings: the active
// filter and the pager.
package listing

import (
	"net/url"
	"strconv"
	"strings"

	"kotoba/internal/store"
)

// SortLabels are the Japanese labels shown in the sort selector.
var SortLabels = map[store.Sort]string{
	store.SortLatest:  "最新順",
	store.SortPopular: "人気順",
	store.SortTitle:   "タイトル順",
}

type Filter struct {
	Category string
	Hashtags []string
	Sort     store.Sort
	// 0 when the query did not carry a usable page.
	Page int
}

// ParseFilter reads category, hashtags (comma separated), sort and page.
// An unknown sort becomes latest; a page that is not a positive integer is
// dropped.
func ParseFilter(q url.Values) Filter {
	f := Filter{
		Category: q.Get("category"),
		Sort:     store.ParseSort(q.Get("sort")),
	}
	if raw := q.Get("hashtags"); raw != "" {
		for _, h := range strings.Split(raw, ",") {
			if h != "" {
				f.Hashtags = append(f.Hashtags, h)
			}
		}
	}
	if raw := q.Get("page"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			f.Page = n
		}
	}
	return f
}

func (f Filter) Values() url.Values {
	v := url.Values{}
	if f.Category != "" {
		v.Set("category", f.Category)
	}
	if len(f.Hashtags) > 0 {
		v.Set("hashtags", strings.Join(f.Hashtags, ","))
	}
	if f.Sort != "" && f.Sort != store.SortLatest {
		v.Set("sort", string(f.Sort))
	}
	if f.Page > 1 {
		v.Set("page", strconv.Itoa(f.Page))
	}
	return v
}

// Encode is the query string without the leading '?'. Defaults are omitted.
func (f Filter) Encode() string {
	return f.Values().Encode()
}

// ActiveCount counts the category and each hashtag; sort and page are not
// filters.
func (f Filter) ActiveCount() int {
	n := len(f.Hashtags)
	if f.Category != "" {
		n++
	}
	return n
}

func (f Filter) HasActive() bool {
	return f.ActiveCount() > 0
}

// Clear resets to the unfiltered first page.
func (f Filter) Clear() Filter {
	return Filter{Sort: store.SortLatest, Page: 1}
}

func (f Filter) WithCategory(slug string) Filter {
	f.Category = slug
	f.Page = 0
	return f
}

// ToggleHashtag adds slug, or removes it when already selected.
func (f Filter) ToggleHashtag(slug string) Filter {
	out := make([]string, 0, len(f.Hashtags)+1)
	found := false
	for _, h := range f.Hashtags {
		if h == slug {
			found = true
			continue
		}
		out = append(out, h)
	}
	if !found {
		out = append(out, slug)
	}
	f.Hashtags = out
	f.Page = 0
	return f
}

func (f Filter) WithSort(s store.Sort) Filter {
	f.Sort = s
	f.Page = 0
	return f
}

func (f Filter) ListOptions(limit int) store.ListOptions {
	return store.ListOptions{
		Category: f.Category,
		Hashtags: f.Hashtags,
		Sort:     f.Sort,
		Status:   store.StatusPublished,
		Page:     f.Page,
		Limit:    limit,
	}
}

// Href is path plus the encoded filter.
func (f Filter) Href(path string) string {
	if q := f.Encode(); q != "" {
		return path + "?" + q
	}
	return path
}
