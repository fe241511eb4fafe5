package serve

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kotoba/internal/auth"
	"kotoba/internal/domain/config"
	"kotoba/internal/domain/content"
	"kotoba/internal/media"
	"kotoba/internal/render"
	"kotoba/internal/store"
)

const testPassword = "correct horse battery staple"

type harness struct {
	srv     *Server
	st      *store.Store
	handler http.Handler
	post    content.PostView
	nagano  content.Category
}

func themesDir(t *testing.T) string {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	require.True(t, ok)
	return filepath.Join(filepath.Dir(file), "..", "..", "themes")
}

func newHarness(t *testing.T, mutate func(*config.Config)) *harness {
	t.Helper()
	dir := t.TempDir()
	ctx := context.Background()

	cfg := config.Default()
	cfg.Site.SiteURL = "https://example.com"
	cfg.Build.ThemeDir = themesDir(t)
	cfg.Server.RateBurst = 100
	cfg.Admin.Password = testPassword
	if mutate != nil {
		mutate(&cfg)
	}

	st, err := store.Open(store.OpenOptions{Path: filepath.Join(dir, "kotoba.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	tpl, err := render.NewTemplateRenderer(cfg.Build.ThemeDir, cfg.Site.Theme)
	require.NoError(t, err)
	bucket, err := media.New(st, media.Options{Root: filepath.Join(dir, "media"), PublicBaseURL: "/media"})
	require.NoError(t, err)
	a, err := auth.New(auth.Options{Password: cfg.Admin.Password, Secret: strings.Repeat("k", 32)})
	require.NoError(t, err)

	srv, err := New(Options{
		Config:   cfg,
		Store:    st,
		Renderer: tpl,
		Media:    bucket,
		Auth:     a,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)

	nagano, err := st.CreateCategory(ctx, content.Category{Name: "長野", Slug: "nagano", IsActive: true})
	require.NoError(t, err)
	tags, err := st.EnsureHashtags(ctx, []string{"ski", "白馬"})
	require.NoError(t, err)
	published := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	post, err := st.CreatePost(ctx, content.Post{
		Title:       "白馬の朝",
		Slug:        "hakuba",
		Content:     "<p>はじめに</p><h2>雪の状態</h2><p>新雪が積もった。</p><h3>リフト</h3><p>混雑なし</p>",
		CategoryIDs: []string{nagano.ID},
		HashtagIDs:  []string{tags[0].ID, tags[1].ID},
		IsPublished: true,
		PublishedAt: &published,
	})
	require.NoError(t, err)
	require.NoError(t, srv.RefreshSearch(ctx))

	return &harness{srv: srv, st: st, handler: srv.Handler(), post: post, nagano: nagano}
}

func (h *harness) do(t *testing.T, method, target string, body io.Reader, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func (h *harness) login(t *testing.T) *http.Cookie {
	t.Helper()
	rec := h.do(t, http.MethodPost, "/api/admin/login", strings.NewReader(`{"password":"`+testPassword+`"}`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	for _, c := range rec.Result().Cookies() {
		if c.Name == auth.CookieName {
			return c
		}
	}
	t.Fatal("no session cookie")
	return nil
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestPublicPages(t *testing.T) {
	h := newHarness(t, nil)

	rec := h.do(t, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "白馬の朝")
	assert.Contains(t, rec.Body.String(), "/nagano/hakuba/")

	rec = h.do(t, http.MethodGet, "/nagano/hakuba/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `<h2 id="雪の状態">`)
	assert.Contains(t, body, `class="toc-h3"`)
	assert.Contains(t, body, `data-reaction="heart"`)
	assert.Contains(t, body, `<link rel="canonical" href="https://example.com/nagano/hakuba/">`)

	rec = h.do(t, http.MethodGet, "/tokyo/hakuba/", nil)
	assert.Equal(t, http.StatusMovedPermanently, rec.Code)
	assert.Equal(t, "/nagano/hakuba/", rec.Header().Get("Location"))

	rec = h.do(t, http.MethodGet, "/nagano/hakuba", nil)
	assert.Equal(t, http.StatusMovedPermanently, rec.Code)
	assert.Equal(t, "/nagano/hakuba/", rec.Header().Get("Location"))

	rec = h.do(t, http.MethodGet, "/nagano/missing/", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "ページが見つかりません")

	rec = h.do(t, http.MethodGet, "/hashtags/ski/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "白馬の朝")

	rec = h.do(t, http.MethodGet, "/hashtags/unknown/", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = h.do(t, http.MethodGet, "/a/b/c", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestArticleCacheIsKeyedByRevision(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	rec := h.do(t, http.MethodGet, "/nagano/hakuba/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, h.srv.articles.Len())

	p := h.post.Post
	p.Content = "<h2>改訂</h2><p>新しい本文</p>"
	_, err := h.st.UpdatePost(ctx, p)
	require.NoError(t, err)

	rec = h.do(t, http.MethodGet, "/nagano/hakuba/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `<h2 id="改訂">`)
	assert.Equal(t, 2, h.srv.articles.Len())
}

func TestSearchPage(t *testing.T) {
	h := newHarness(t, nil)

	rec := h.do(t, http.MethodGet, "/search?q="+url.QueryEscape("新雪"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "白馬の朝")

	rec = h.do(t, http.MethodGet, "/search?q="+url.QueryEscape("東京タワー"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "白馬の朝")
}

func TestSitemapAndRobots(t *testing.T) {
	h := newHarness(t, nil)

	rec := h.do(t, http.MethodGet, "/sitemap.xml", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/xml")
	assert.Contains(t, rec.Body.String(), "<loc>https://example.com/nagano/hakuba/</loc>")
	assert.Contains(t, rec.Body.String(), "<loc>https://example.com/?category=nagano</loc>")

	rec = h.do(t, http.MethodGet, "/robots.txt", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Sitemap: https://example.com/sitemap.xml")
	assert.Contains(t, rec.Body.String(), "Disallow: /admin")
}

func TestStaticAssets(t *testing.T) {
	h := newHarness(t, nil)
	rec := h.do(t, http.MethodGet, "/css/main.css", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = h.do(t, http.MethodGet, "/js/main.js", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAPIPosts(t *testing.T) {
	h := newHarness(t, nil)

	rec := h.do(t, http.MethodGet, "/api/posts?category=nagano", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[store.Page](t, rec)
	assert.Equal(t, 1, page.Total)
	assert.Equal(t, 1, page.Page)
	assert.False(t, page.HasMore)
	require.Len(t, page.Posts, 1)
	assert.Equal(t, "hakuba", page.Posts[0].Slug)

	rec = h.do(t, http.MethodGet, "/api/posts?category=tokyo", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, decode[store.Page](t, rec).Total)

	rec = h.do(t, http.MethodGet, "/api/posts?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPIViewAndReactions(t *testing.T) {
	h := newHarness(t, nil)

	rec := h.do(t, http.MethodPost, "/api/posts/hakuba/view", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	view := decode[viewResponse](t, rec)
	assert.True(t, view.Success)
	assert.Equal(t, 1, view.ViewCount)

	rec = h.do(t, http.MethodPost, "/api/posts/nope/view", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = h.do(t, http.MethodPost, "/api/reactions", strings.NewReader(fmt.Sprintf(`{"post_id":%q,"reaction_type":"heart"}`, h.post.ID)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, reactResponse{Success: true, Count: 1}, decode[reactResponse](t, rec))

	rec = h.do(t, http.MethodPost, "/api/reactions", strings.NewReader(fmt.Sprintf(`{"post_id":%q,"reaction_type":"sad"}`, h.post.ID)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = h.do(t, http.MethodPost, "/api/reactions", strings.NewReader(`{"reaction_type":"heart"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = h.do(t, http.MethodPost, "/api/reactions", strings.NewReader(`{"post_id":"missing","reaction_type":"heart"}`))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = h.do(t, http.MethodGet, "/api/reactions?postId="+h.post.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]int{"light": 0, "heart": 1, "thumbs": 0, "fire": 0}, decode[map[string]int](t, rec))

	rec = h.do(t, http.MethodGet, "/api/reactions", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRateLimit(t *testing.T) {
	h := newHarness(t, func(c *config.Config) {
		c.Server.RateLimit = 0.001
		c.Server.RateBurst = 2
	})

	for i := 0; i < 2; i++ {
		rec := h.do(t, http.MethodPost, "/api/posts/hakuba/view", nil)
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec := h.do(t, http.MethodPost, "/api/posts/hakuba/view", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	// reads are not limited
	rec = h.do(t, http.MethodGet, "/api/reactions?postId="+h.post.ID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSuggest(t *testing.T) {
	h := newHarness(t, nil)

	rec := h.do(t, http.MethodGet, "/api/search/suggest?q="+url.QueryEscape("白"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	short := decode[suggestResponse](t, rec)
	assert.Empty(t, short.Posts)
	assert.Empty(t, short.Hashtags)

	rec = h.do(t, http.MethodGet, "/api/search/suggest?q="+url.QueryEscape("白馬"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[suggestResponse](t, rec)
	require.Len(t, got.Posts, 1)
	assert.Equal(t, "/nagano/hakuba/", got.Posts[0].URL)
	require.Len(t, got.Hashtags, 1)
	assert.Equal(t, "白馬", got.Hashtags[0].Name)
}

func TestAdminAuth(t *testing.T) {
	h := newHarness(t, nil)

	rec := h.do(t, http.MethodGet, "/api/admin/stats", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = h.do(t, http.MethodGet, "/admin", nil)
	assert.Equal(t, http.StatusTemporaryRedirect, rec.Code)
	assert.Equal(t, "/admin/login?redirect=%2Fadmin", rec.Header().Get("Location"))

	rec = h.do(t, http.MethodGet, "/admin/login?redirect=https://evil.example", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "evil.example")

	rec = h.do(t, http.MethodPost, "/api/admin/login", strings.NewReader(`{"password":"wrong"}`))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Invalid password", decode[errorBody](t, rec).Error)

	cookie := h.login(t)
	rec = h.do(t, http.MethodGet, "/api/admin/stats", nil, cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode[store.Stats](t, rec)
	assert.Equal(t, 1, stats.Posts)
	assert.Equal(t, 2, stats.Hashtags)

	rec = h.do(t, http.MethodGet, "/admin", nil, cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "白馬の朝")

	rec = h.do(t, http.MethodGet, "/admin/login", nil, cookie)
	assert.Equal(t, http.StatusTemporaryRedirect, rec.Code)
	assert.Equal(t, "/admin", rec.Header().Get("Location"))

	rec = h.do(t, http.MethodPost, "/api/admin/logout", nil, cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	cleared := rec.Result().Cookies()
	require.Len(t, cleared, 1)
	assert.Equal(t, -1, cleared[0].MaxAge)
}

func TestAdminLogin_NotConfigured(t *testing.T) {
	h := newHarness(t, func(c *config.Config) { c.Admin.Password = "" })
	rec := h.do(t, http.MethodPost, "/api/admin/login", strings.NewReader(`{"password":"anything"}`))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Server configuration error", decode[errorBody](t, rec).Error)
}

func TestAdminPosts(t *testing.T) {
	h := newHarness(t, nil)
	cookie := h.login(t)

	rec := h.do(t, http.MethodPost, "/api/admin/posts", strings.NewReader(`{"slug":"x y"}`), cookie)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	bad := decode[errorBody](t, rec)
	assert.Contains(t, bad.Fields, "title")
	assert.Contains(t, bad.Fields, "slug")
	assert.Contains(t, bad.Fields, "content")

	payload := fmt.Sprintf(`{
		"title": "松本城の桜",
		"slug": "matsumoto",
		"content": "<p>満開の桜</p><script>alert(1)</script>",
		"category_ids": [%q],
		"hashtags": ["桜", "ski"],
		"is_published": true
	}`, h.nagano.ID)
	rec = h.do(t, http.MethodPost, "/api/admin/posts", strings.NewReader(payload), cookie)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[content.PostView](t, rec)
	assert.NotContains(t, created.Content, "<script>")
	assert.ElementsMatch(t, []string{"桜", "ski"}, created.HashtagSlugs())

	rec = h.do(t, http.MethodPost, "/api/admin/posts", strings.NewReader(payload), cookie)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = h.do(t, http.MethodGet, "/search?q="+url.QueryEscape("満開"), nil)
	assert.Contains(t, rec.Body.String(), "松本城の桜")

	unpublish := strings.Replace(payload, `"is_published": true`, `"is_published": false`, 1)
	rec = h.do(t, http.MethodPut, "/api/admin/posts/"+created.ID, strings.NewReader(unpublish), cookie)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.False(t, decode[content.PostView](t, rec).IsPublished)

	rec = h.do(t, http.MethodGet, "/search?q="+url.QueryEscape("満開"), nil)
	assert.NotContains(t, rec.Body.String(), "松本城の桜")
	rec = h.do(t, http.MethodGet, "/nagano/matsumoto/", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = h.do(t, http.MethodGet, "/api/admin/posts?status=draft", nil, cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	drafts := decode[store.Page](t, rec)
	require.Len(t, drafts.Posts, 1)
	assert.Equal(t, "matsumoto", drafts.Posts[0].Slug)

	rec = h.do(t, http.MethodDelete, "/api/admin/posts/"+created.ID, nil, cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = h.do(t, http.MethodGet, "/api/admin/posts/"+created.ID, nil, cookie)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminTaxonomy(t *testing.T) {
	h := newHarness(t, nil)
	cookie := h.login(t)

	rec := h.do(t, http.MethodPost, "/api/admin/categories", strings.NewReader(`{"name":"東京","slug":"tokyo","order_num":1}`), cookie)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	tokyo := decode[content.Category](t, rec)
	assert.True(t, tokyo.IsActive)

	rec = h.do(t, http.MethodPut, "/api/admin/categories/"+tokyo.ID, strings.NewReader(`{"name":"東京都","slug":"tokyo","is_active":false}`), cookie)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.False(t, decode[content.Category](t, rec).IsActive)

	rec = h.do(t, http.MethodDelete, "/api/admin/categories/"+h.nagano.ID, nil, cookie)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "category has posts", decode[errorBody](t, rec).Error)

	rec = h.do(t, http.MethodDelete, "/api/admin/categories/"+tokyo.ID, nil, cookie)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(t, http.MethodPost, "/api/admin/hashtags", strings.NewReader(`{"name":"#紅葉"}`), cookie)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	momiji := decode[content.Hashtag](t, rec)
	assert.Equal(t, "紅葉", momiji.Slug)

	rec = h.do(t, http.MethodPost, "/api/admin/hashtags/prune", nil, cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, pruneResponse{Success: true, Removed: 1}, decode[pruneResponse](t, rec))

	rec = h.do(t, http.MethodGet, "/api/admin/hashtags/"+momiji.ID, nil, cookie)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// 1x1 transparent PNG
var tinyPNG = []byte{
	0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a, 0x00, 0x00, 0x00, 0x0d,
	0x49, 0x48, 0x44, 0x52, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0x15, 0xc4, 0x89, 0x00, 0x00, 0x00,
	0x0d, 0x49, 0x44, 0x41, 0x54, 0x78, 0x9c, 0x63, 0x00, 0x01, 0x00, 0x00,
	0x05, 0x00, 0x01, 0x0d, 0x0a, 0x2d, 0xb4, 0x00, 0x00, 0x00, 0x00, 0x49,
	0x45, 0x4e, 0x44, 0xae, 0x42, 0x60, 0x82,
}

func multipartBody(t *testing.T, name string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestAdminMedia(t *testing.T) {
	h := newHarness(t, nil)
	cookie := h.login(t)

	upload := func(name string, data []byte) *httptest.ResponseRecorder {
		body, ctype := multipartBody(t, name, data)
		req := httptest.NewRequest(http.MethodPost, "/api/admin/media", body)
		req.Header.Set("Content-Type", ctype)
		req.AddCookie(cookie)
		rec := httptest.NewRecorder()
		h.handler.ServeHTTP(rec, req)
		return rec
	}

	rec := upload("pixel.png", tinyPNG)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	m := decode[content.Media](t, rec)
	assert.Equal(t, "image/png", m.ContentType)
	assert.True(t, strings.HasPrefix(m.URL, "/media/"))

	rec = h.do(t, http.MethodGet, m.URL, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, tinyPNG, rec.Body.Bytes())

	rec = upload("evil.svg", []byte(`<svg xmlns="http://www.w3.org/2000/svg"><script/></svg>`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodGet, "/api/admin/media", nil, cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]content.Media](t, rec), 1)

	p := h.post.Post
	p.ThumbnailURL = m.URL
	_, err := h.st.UpdatePost(context.Background(), p)
	require.NoError(t, err)

	rec = h.do(t, http.MethodDelete, "/api/admin/media", strings.NewReader(`{"paths":["`+m.Path+`"]}`), cookie)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, deleteMediaResponse{Success: true, Cleared: 1}, decode[deleteMediaResponse](t, rec))

	rec = h.do(t, http.MethodGet, m.URL, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = h.do(t, http.MethodDelete, "/api/admin/media", strings.NewReader(`{"paths":[]}`), cookie)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSSEBroadcast(t *testing.T) {
	h := newHarness(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/dev/events", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		h.handler.ServeHTTP(rec, req)
		close(done)
	}()

	require.Eventually(t, func() bool {
		h.srv.sseMu.Lock()
		defer h.srv.sseMu.Unlock()
		return len(h.srv.sseConns) == 1
	}, time.Second, 5*time.Millisecond)
	h.srv.broadcastSSE("reload")
	h.srv.closeSSE()
	cancel()
	<-done

	assert.Contains(t, rec.Body.String(), "data: hello\n\n")
	assert.Contains(t, rec.Body.String(), "data: reload\n\n")
}
