package serve

import (
	"bytes"
	"errors"
	"html/template"
	"net/http"
	"net/url"
	"strings"

	"kotoba/internal/app"
	"kotoba/internal/domain/content"
	"kotoba/internal/domain/site"
	"kotoba/internal/htmltext"
	"kotoba/internal/listing"
	"kotoba/internal/metrics"
	"kotoba/internal/render"
	"kotoba/internal/store"
)

const (
	homePerPage     = 6
	searchPerPage   = 12
	searchMaxHits   = 100
	cloudSize       = 20
	relatedLimit    = 3
	descriptionSize = 160
)

var sortOrder = []store.Sort{store.SortLatest, store.SortPopular, store.SortTitle}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	f := listing.ParseFilter(r.URL.Query())

	page, err := s.st.ListPosts(ctx, f.ListOptions(homePerPage))
	if err != nil {
		s.pageError(w, r, err)
		return
	}
	cats, err := s.st.ListCategories(ctx, true)
	if err != nil {
		s.pageError(w, r, err)
		return
	}
	tags, err := s.st.PopularHashtags(ctx, cloudSize)
	if err != nil {
		s.pageError(w, r, err)
		return
	}

	links := make([]render.CategoryLink, 0, len(cats))
	for _, c := range cats {
		links = append(links, render.CategoryLink{
			Category: c,
			URL:      f.WithCategory(c.Slug).Href("/"),
			Active:   c.Slug == f.Category,
		})
	}
	selected := make(map[string]bool, len(f.Hashtags))
	for _, h := range f.Hashtags {
		selected[h] = true
	}
	cloud := render.NewHashtagCloud(tags,
		func(h content.Hashtag) string { return f.ToggleHashtag(h.Slug).Href("/") },
		func(h content.Hashtag) bool { return selected[h.Slug] },
	)
	sorts := make([]render.SortOption, 0, len(sortOrder))
	for _, so := range sortOrder {
		sorts = append(sorts, render.SortOption{
			Label:  listing.SortLabels[so],
			URL:    f.WithSort(so).Href("/"),
			Active: so == f.Sort,
		})
	}

	q := f.Values()
	q.Del("page")
	data := render.HomePage{
		Base:        s.base(s.cfg.Site.Title, s.cfg.Site.Description, "/"),
		Posts:       render.NewPostCards(page.Posts),
		Total:       page.Total,
		Filter:      f,
		Categories:  links,
		Hashtags:    cloud,
		SortOptions: sorts,
		ClearURL:    f.Clear().Href("/"),
		Pager:       render.NewPager("/", q, page.Page, page.Total, homePerPage),
	}
	html, err := s.tpl.RenderHome(ctx, data)
	if err != nil {
		s.pageError(w, r, err)
		return
	}
	writeHTML(w, html)
}

func (s *Server) handlePost(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	v, err := s.st.GetPostBySlug(ctx, r.PathValue("slug"), true)
	if errors.Is(err, store.ErrNotFound) {
		s.handleNotFound(w, r)
		return
	}
	if err != nil {
		s.pageError(w, r, err)
		return
	}

	canonical := site.PostPath(v)
	if r.URL.EscapedPath() != canonical && r.URL.Path != unescape(canonical) {
		http.Redirect(w, r, canonical, http.StatusMovedPermanently)
		return
	}

	res := s.processed(v.Post)
	rel, err := s.st.RelatedPosts(ctx, v, relatedLimit)
	if err != nil {
		s.log.Warn("related posts failed", "post", v.ID, "err", err)
	}
	counts, err := s.st.Reactions(ctx, v.ID)
	if err != nil {
		s.log.Warn("reactions failed", "post", v.ID, "err", err)
	}

	desc := v.Excerpt
	if desc == "" {
		desc = htmltext.TruncateDescription(htmltext.PlainText(v.Content), descriptionSize)
	}
	data := render.PostPage{
		Base:      s.base(v.Title+" | "+s.cfg.Site.Name, desc, canonical),
		Post:      v,
		URL:       canonical,
		HTML:      template.HTML(res.HTML),
		TOC:       res.Headings,
		Related:   render.NewPostCards(rel),
		Reactions: render.NewReactionCounts(counts),
		ViewCount: htmltext.FormatCount(v.ViewCount),
	}
	html, err := s.tpl.RenderPost(ctx, data)
	if err != nil {
		s.pageError(w, r, err)
		return
	}
	writeHTML(w, html)
}

// handleAddSlash sends /<category>/<slug> to its trailing-slash form.
func (s *Server) handleAddSlash(w http.ResponseWriter, r *http.Request) {
	target := r.URL.EscapedPath() + "/"
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}
	http.Redirect(w, r, target, http.StatusMovedPermanently)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := strings.TrimSpace(r.URL.Query().Get("q"))

	var views []content.PostView
	if query != "" {
		metrics.RecordSearch("page")
		for _, hit := range s.search.Search(query, searchMaxHits) {
			v, err := s.st.GetPost(ctx, hit.ID)
			if err != nil || !v.IsPublished {
				continue
			}
			views = append(views, v)
		}
	}

	total := len(views)
	info := listing.PaginationInfo(total, 1, searchPerPage)
	current := listing.ValidatePage(r.URL.Query().Get("page"), info.TotalPages)
	info = listing.PaginationInfo(total, current, searchPerPage)
	pageViews := views[min(info.Offset, total):min(info.Offset+searchPerPage, total)]

	title := "検索"
	if query != "" {
		title = "「" + query + "」の検索結果"
	}
	data := render.SearchPage{
		Base:  s.base(title+" | "+s.cfg.Site.Name, s.cfg.Site.Description, ""),
		Query: query,
		Posts: render.NewPostCards(pageViews),
		Total: total,
		Pager: render.NewPager("/search", url.Values{"q": {query}}, current, total, searchPerPage),
	}
	html, err := s.tpl.RenderSearch(ctx, data)
	if err != nil {
		s.pageError(w, r, err)
		return
	}
	writeHTML(w, html)
}

func (s *Server) handleHashtag(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	h, err := s.st.GetHashtagBySlug(ctx, r.PathValue("slug"))
	if errors.Is(err, store.ErrNotFound) {
		s.handleNotFound(w, r)
		return
	}
	if err != nil {
		s.pageError(w, r, err)
		return
	}

	current := listing.ValidatePage(r.URL.Query().Get("page"), 0)
	page, err := s.st.ListPosts(ctx, store.ListOptions{
		Hashtags: []string{h.Slug},
		Page:     current,
		Limit:    searchPerPage,
	})
	if err != nil {
		s.pageError(w, r, err)
		return
	}

	p := site.HashtagPath(h.Slug)
	data := render.HashtagPage{
		Base:    s.base("#"+h.Name+" | "+s.cfg.Site.Name, s.cfg.Site.Description, p),
		Hashtag: h,
		Posts:   render.NewPostCards(page.Posts),
		Total:   page.Total,
		Pager:   render.NewPager(p, url.Values{}, page.Page, page.Total, searchPerPage),
	}
	html, err := s.tpl.RenderHashtag(ctx, data)
	if err != nil {
		s.pageError(w, r, err)
		return
	}
	writeHTML(w, html)
}

func (s *Server) handleSitemap(w http.ResponseWriter, r *http.Request) {
	rb := app.RouteBuilder{Store: s.st}
	entries, err := rb.Sitemap(r.Context(), s.cfg.Site.SiteURL, s.now())
	if err != nil {
		s.pageError(w, r, err)
		return
	}
	var buf bytes.Buffer
	if err := site.WriteSitemap(&buf, entries); err != nil {
		s.pageError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) handleRobots(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(site.Robots(s.cfg.Site.SiteURL)))
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	data := render.NotFoundPage{
		Base: s.base("ページが見つかりません | "+s.cfg.Site.Name, s.cfg.Site.Description, ""),
		Path: r.URL.Path,
	}
	html, err := s.tpl.RenderNotFound(r.Context(), data)
	if err != nil {
		s.log.Error("render 404", "err", err)
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusNotFound)
	_, _ = w.Write(html)
}

// pageError is writeError for HTML routes: errors are logged and the reader
// gets a plain 500.
func (s *Server) pageError(w http.ResponseWriter, r *http.Request, err error) {
	s.log.Error("page failed", "path", r.URL.Path, "err", err)
	http.Error(w, "internal server error", http.StatusInternalServerError)
}

func unescape(p string) string {
	if u, err := url.PathUnescape(p); err == nil {
		return u
	}
	return p
}
