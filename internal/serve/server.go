// Package serve is the HTTP front of kotoba: public pages, the JSON API and
// the admin API.
package serve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"

	"kotoba/internal/auth"
	"kotoba/internal/domain/config"
	"kotoba/internal/domain/content"
	domainerr "kotoba/internal/domain/errors"
	"kotoba/internal/htmltext"
	"kotoba/internal/ingest"
	"kotoba/internal/media"
	"kotoba/internal/metrics"
	"kotoba/internal/render"
	"kotoba/internal/search"
	"kotoba/internal/store"
	"kotoba/internal/toc"
)

type Options struct {
	Config   config.Config
	Store    *store.Store
	Renderer render.Renderer
	Media    *media.Bucket
	Auth     *auth.Authenticator
	// Importer is only needed in watch mode.
	Importer *ingest.Importer
	Logger   *slog.Logger
	Now      func() time.Time
}

type Server struct {
	cfg      config.Config
	st       *store.Store
	tpl      render.Renderer
	media    *media.Bucket
	auth     *auth.Authenticator
	importer *ingest.Importer
	log      *slog.Logger
	now      func() time.Time

	validate  *domainerr.Validator
	sanitizer *htmltext.Sanitizer
	search    *search.Index
	articles  *lru.Cache[string, toc.Result]
	limiter   *rateLimiter

	sseMu     sync.Mutex
	sseConns  map[chan string]struct{}
	devReload bool
	watcher   *fsnotify.Watcher
	watchOnce sync.Once
}

func New(opt Options) (*Server, error) {
	if opt.Store == nil || opt.Renderer == nil || opt.Media == nil || opt.Auth == nil {
		return nil, errors.New("serve: store, renderer, media and auth are required")
	}
	if opt.Logger == nil {
		opt.Logger = slog.Default()
	}
	if opt.Now == nil {
		opt.Now = time.Now
	}

	idx, err := search.New()
	if err != nil {
		return nil, fmt.Errorf("serve: search index: %w", err)
	}
	size := opt.Config.Server.ContentCacheSize
	if size <= 0 {
		size = 256
	}
	cache, err := lru.New[string, toc.Result](size)
	if err != nil {
		return nil, fmt.Errorf("serve: article cache: %w", err)
	}

	return &Server{
		cfg:       opt.Config,
		st:        opt.Store,
		tpl:       opt.Renderer,
		media:     opt.Media,
		auth:      opt.Auth,
		importer:  opt.Importer,
		log:       opt.Logger.With("component", "serve"),
		now:       opt.Now,
		validate:  domainerr.NewValidator(),
		sanitizer: htmltext.NewSanitizer(),
		search:    idx,
		articles:  cache,
		limiter:   newRateLimiter(rate.Limit(opt.Config.Server.RateLimit), opt.Config.Server.RateBurst),
		sseConns:  make(map[chan string]struct{}),
	}, nil
}

func (s *Server) Close() error {
	if s.watcher != nil {
		return s.watcher.Close()
	}
	return nil
}

// Handler is the full middleware chain around the router.
func (s *Server) Handler() http.Handler {
	return s.accessLog(s.auth.Middleware(s.routes()))
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	// pages
	mux.HandleFunc("GET /{$}", s.handleHome)
	mux.HandleFunc("GET /search", s.handleSearch)
	mux.HandleFunc("GET /hashtags/{slug}/{$}", s.handleHashtag)
	mux.HandleFunc("GET /{category}/{slug}/{$}", s.handlePost)
	mux.HandleFunc("GET /{category}/{slug}", s.handleAddSlash)
	mux.HandleFunc("GET /sitemap.xml", s.handleSitemap)
	mux.HandleFunc("GET /robots.txt", s.handleRobots)
	mux.HandleFunc("GET /admin/login", s.handleAdminLogin)
	mux.HandleFunc("GET /admin", s.handleAdminDashboard)
	mux.HandleFunc("/", s.handleNotFound)

	// dev SSE
	mux.HandleFunc("GET /dev/events", s.handleSSE)
	mux.Handle("GET /metrics", metrics.Handler())

	staticDir := filepath.Join(s.cfg.Build.ThemeDir, s.cfg.Site.Theme, "static")
	fileServer := http.FileServer(http.Dir(staticDir))
	mux.Handle("GET /css/{file}", fileServer)
	mux.Handle("GET /js/{file}", fileServer)
	mux.Handle("GET /images/{file}", fileServer)
	mux.Handle("GET /favicon.ico", fileServer)
	if prefix := s.media.Prefix(); strings.HasPrefix(prefix, "/") {
		mux.Handle("GET "+prefix+"{year}/{month}/{file}", s.media.Handler())
	}

	// public API
	mux.HandleFunc("GET /api/posts", s.handleAPIPosts)
	mux.HandleFunc("POST /api/posts/{slug}/view", s.limiter.wrap(s.handleAPIView))
	mux.HandleFunc("GET /api/reactions", s.handleAPIReactions)
	mux.HandleFunc("POST /api/reactions", s.limiter.wrap(s.handleAPIReact))
	mux.HandleFunc("GET /api/search/suggest", s.handleAPISuggest)
	mux.HandleFunc("POST /api/admin/login", s.limiter.wrap(s.handleAPILogin))
	mux.HandleFunc("POST /api/admin/logout", s.handleAPILogout)

	// admin API, guarded by auth.Middleware
	mux.HandleFunc("GET /api/admin/stats", s.handleAdminStats)
	mux.HandleFunc("GET /api/admin/posts", s.handleAdminListPosts)
	mux.HandleFunc("POST /api/admin/posts", s.handleAdminCreatePost)
	mux.HandleFunc("GET /api/admin/posts/{id}", s.handleAdminGetPost)
	mux.HandleFunc("PUT /api/admin/posts/{id}", s.handleAdminUpdatePost)
	mux.HandleFunc("DELETE /api/admin/posts/{id}", s.handleAdminDeletePost)
	mux.HandleFunc("GET /api/admin/categories", s.handleAdminListCategories)
	mux.HandleFunc("POST /api/admin/categories", s.handleAdminCreateCategory)
	mux.HandleFunc("GET /api/admin/categories/{id}", s.handleAdminGetCategory)
	mux.HandleFunc("PUT /api/admin/categories/{id}", s.handleAdminUpdateCategory)
	mux.HandleFunc("DELETE /api/admin/categories/{id}", s.handleAdminDeleteCategory)
	mux.HandleFunc("GET /api/admin/hashtags", s.handleAdminListHashtags)
	mux.HandleFunc("POST /api/admin/hashtags", s.handleAdminCreateHashtag)
	mux.HandleFunc("POST /api/admin/hashtags/prune", s.handleAdminPruneHashtags)
	mux.HandleFunc("GET /api/admin/hashtags/{id}", s.handleAdminGetHashtag)
	mux.HandleFunc("PUT /api/admin/hashtags/{id}", s.handleAdminUpdateHashtag)
	mux.HandleFunc("DELETE /api/admin/hashtags/{id}", s.handleAdminDeleteHashtag)
	mux.HandleFunc("GET /api/admin/media", s.handleAdminListMedia)
	mux.HandleFunc("POST /api/admin/media", s.handleAdminUploadMedia)
	mux.HandleFunc("DELETE /api/admin/media", s.handleAdminDeleteMedia)

	return mux
}

func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	if err := s.RefreshSearch(ctx); err != nil {
		return err
	}
	go s.limiter.cleanupLoop(ctx)

	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}

	// 支持 ctx 取消
	go func() {
		<-ctx.Done()
		timeout := s.cfg.Server.ShutdownTimeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		sctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		s.closeSSE()
		_ = srv.Shutdown(sctx)
	}()

	s.log.Info("listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// RefreshSearch rebuilds the search index from every published post.
func (s *Server) RefreshSearch(ctx context.Context) error {
	posts, err := s.st.AllPublished(ctx)
	if err != nil {
		return fmt.Errorf("search refresh: %w", err)
	}
	docs := make([]search.Document, 0, len(posts))
	for _, v := range posts {
		docs = append(docs, documentOf(v))
	}
	s.search.Rebuild(docs)
	s.log.Debug("search index rebuilt", "documents", len(docs))
	return nil
}

// syncSearch keeps one post's search entry in step with its publish state.
func (s *Server) syncSearch(v content.PostView) {
	if v.IsPublished {
		s.search.Upsert(documentOf(v))
		return
	}
	s.search.Remove(v.ID)
}

func documentOf(v content.PostView) search.Document {
	return search.Document{
		ID:        v.ID,
		Title:     v.Title,
		Excerpt:   v.Excerpt,
		Body:      htmltext.PlainText(v.Content),
		Published: v.PublishedTime(),
	}
}

// processed returns the post body with heading ids and its outline, cached
// per content revision.
func (s *Server) processed(p content.Post) toc.Result {
	key := content.FingerprintOf(p).Key()
	if res, ok := s.articles.Get(key); ok {
		metrics.RecordCache(true)
		return res
	}
	metrics.RecordCache(false)
	res := toc.Process(p.Content)
	s.articles.Add(key, res)
	return res
}

func (s *Server) base(title, description, canonicalPath string) render.Base {
	b := render.Base{
		Site:        s.cfg.Site,
		PageTitle:   title,
		Description: description,
		DevReload:   s.devReload,
	}
	if canonicalPath != "" {
		b.Canonical = strings.TrimRight(s.cfg.Site.SiteURL, "/") + canonicalPath
	}
	return b
}
