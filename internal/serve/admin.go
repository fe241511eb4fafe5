package serve

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"kotoba/internal/auth"
	"kotoba/internal/domain/content"
	"kotoba/internal/media"
	"kotoba/internal/render"
	"kotoba/internal/store"
)

const (
	adminPageSize   = 20
	dashboardRecent = 10
)

func (s *Server) handleAdminLogin(w http.ResponseWriter, r *http.Request) {
	data := render.AdminLoginPage{
		Base:     s.base("ログイン | "+s.cfg.Site.Name, "", ""),
		Redirect: auth.SafeRedirect(r.URL.Query().Get("redirect")),
	}
	html, err := s.tpl.RenderAdminLogin(r.Context(), data)
	if err != nil {
		s.pageError(w, r, err)
		return
	}
	writeHTML(w, html)
}

func (s *Server) handleAdminDashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	stats, err := s.st.Stats(ctx)
	if err != nil {
		s.pageError(w, r, err)
		return
	}
	recent, err := s.st.ListPosts(ctx, store.ListOptions{Status: store.StatusAll, Limit: dashboardRecent})
	if err != nil {
		s.pageError(w, r, err)
		return
	}
	data := render.AdminDashboardPage{
		Base:   s.base("管理画面 | "+s.cfg.Site.Name, "", ""),
		Stats:  stats,
		Recent: recent.Posts,
	}
	html, err := s.tpl.RenderAdminDashboard(ctx, data)
	if err != nil {
		s.pageError(w, r, err)
		return
	}
	writeHTML(w, html)
}

func (s *Server) handleAdminStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.st.Stats(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// posts

type postInput struct {
	Title        string     `json:"title" validate:"required,max=200"`
	Slug         string     `json:"slug" validate:"required,max=200,slug"`
	Content      string     `json:"content" validate:"required"`
	Excerpt      string     `json:"excerpt" validate:"max=500"`
	ThumbnailURL string     `json:"thumbnail_url" validate:"max=2000"`
	CategoryIDs  []string   `json:"category_ids"`
	HashtagIDs   []string   `json:"hashtag_ids"`
	// Hashtags are names; missing ones are created.
	Hashtags    []string   `json:"hashtags" validate:"dive,max=50"`
	IsPublished bool       `json:"is_published"`
	PublishedAt *time.Time `json:"published_at"`
}

// readPost decodes, validates and sanitizes a post body and resolves its
// hashtag names to ids.
func (s *Server) readPost(r *http.Request) (content.Post, error) {
	var in postInput
	if err := decodeJSON(r, &in); err != nil {
		return content.Post{}, err
	}
	if err := s.validate.Struct(in); err != nil {
		return content.Post{}, err
	}
	p := content.Post{
		Title:        in.Title,
		Slug:         in.Slug,
		Content:      s.sanitizer.Sanitize(in.Content),
		Excerpt:      in.Excerpt,
		ThumbnailURL: in.ThumbnailURL,
		CategoryIDs:  in.CategoryIDs,
		HashtagIDs:   in.HashtagIDs,
		IsPublished:  in.IsPublished,
		PublishedAt:  in.PublishedAt,
	}
	if len(in.Hashtags) > 0 {
		tags, err := s.st.EnsureHashtags(r.Context(), in.Hashtags)
		if err != nil {
			return content.Post{}, err
		}
		for _, h := range tags {
			p.HashtagIDs = append(p.HashtagIDs, h.ID)
		}
	}
	return p, nil
}

func parseStatus(raw string) store.Status {
	switch store.Status(raw) {
	case store.StatusPublished, store.StatusDraft:
		return store.Status(raw)
	default:
		return store.StatusAll
	}
}

// GET /api/admin/posts?status=&category=&sort=&page=&limit=
func (s *Server) handleAdminListPosts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opt := store.ListOptions{
		Category: q.Get("category"),
		Sort:     store.ParseSort(q.Get("sort")),
		Status:   parseStatus(q.Get("status")),
		Limit:    adminPageSize,
	}
	if n, err := strconv.Atoi(q.Get("page")); err == nil {
		opt.Page = n
	}
	if n, err := strconv.Atoi(q.Get("limit")); err == nil && n > 0 {
		opt.Limit = n
	}
	page, err := s.st.ListPosts(r.Context(), opt)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleAdminGetPost(w http.ResponseWriter, r *http.Request) {
	v, err := s.st.GetPost(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleAdminCreatePost(w http.ResponseWriter, r *http.Request) {
	p, err := s.readPost(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	v, err := s.st.CreatePost(r.Context(), p)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.syncSearch(v)
	s.log.Info("post created", "id", v.ID, "slug", v.Slug)
	writeJSON(w, http.StatusCreated, v)
}

func (s *Server) handleAdminUpdatePost(w http.ResponseWriter, r *http.Request) {
	p, err := s.readPost(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	p.ID = r.PathValue("id")
	v, err := s.st.UpdatePost(r.Context(), p)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.syncSearch(v)
	s.log.Info("post updated", "id", v.ID, "slug", v.Slug)
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleAdminDeletePost(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.st.DeletePost(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.search.Remove(id)
	s.log.Info("post deleted", "id", id)
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

// categories

type categoryInput struct {
	Name        string `json:"name" validate:"required,max=100"`
	Slug        string `json:"slug" validate:"required,max=100,slug"`
	Description string `json:"description" validate:"max=500"`
	OrderNum    int    `json:"order_num" validate:"min=0"`
	IsActive    *bool  `json:"is_active"`
}

func (s *Server) readCategory(r *http.Request) (content.Category, error) {
	var in categoryInput
	if err := decodeJSON(r, &in); err != nil {
		return content.Category{}, err
	}
	if err := s.validate.Struct(in); err != nil {
		return content.Category{}, err
	}
	c := content.Category{
		Name:        in.Name,
		Slug:        in.Slug,
		Description: in.Description,
		OrderNum:    in.OrderNum,
		IsActive:    true,
	}
	if in.IsActive != nil {
		c.IsActive = *in.IsActive
	}
	return c, nil
}

// GET /api/admin/categories?active=true
func (s *Server) handleAdminListCategories(w http.ResponseWriter, r *http.Request) {
	activeOnly, _ := strconv.ParseBool(r.URL.Query().Get("active"))
	cats, err := s.st.ListCategories(r.Context(), activeOnly)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cats)
}

func (s *Server) handleAdminGetCategory(w http.ResponseWriter, r *http.Request) {
	c, err := s.st.GetCategory(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleAdminCreateCategory(w http.ResponseWriter, r *http.Request) {
	c, err := s.readCategory(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	c, err = s.st.CreateCategory(r.Context(), c)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) handleAdminUpdateCategory(w http.ResponseWriter, r *http.Request) {
	c, err := s.readCategory(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	c.ID = r.PathValue("id")
	c, err = s.st.UpdateCategory(r.Context(), c)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleAdminDeleteCategory(w http.ResponseWriter, r *http.Request) {
	if err := s.st.DeleteCategory(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

// hashtags

type hashtagInput struct {
	Name string `json:"name" validate:"required,max=50"`
	Slug string `json:"slug" validate:"max=50,slug"`
}

func (s *Server) readHashtag(r *http.Request) (content.Hashtag, error) {
	var in hashtagInput
	if err := decodeJSON(r, &in); err != nil {
		return content.Hashtag{}, err
	}
	if err := s.validate.Struct(in); err != nil {
		return content.Hashtag{}, err
	}
	return content.Hashtag{Name: in.Name, Slug: in.Slug}, nil
}

func (s *Server) handleAdminListHashtags(w http.ResponseWriter, r *http.Request) {
	tags, err := s.st.ListHashtags(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tags)
}

func (s *Server) handleAdminGetHashtag(w http.ResponseWriter, r *http.Request) {
	h, err := s.st.GetHashtag(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h)
}

func (s *Server) handleAdminCreateHashtag(w http.ResponseWriter, r *http.Request) {
	h, err := s.readHashtag(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	h, err = s.st.CreateHashtag(r.Context(), h)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, h)
}

func (s *Server) handleAdminUpdateHashtag(w http.ResponseWriter, r *http.Request) {
	h, err := s.readHashtag(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	h.ID = r.PathValue("id")
	h, err = s.st.UpdateHashtag(r.Context(), h)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h)
}

func (s *Server) handleAdminDeleteHashtag(w http.ResponseWriter, r *http.Request) {
	if err := s.st.DeleteHashtag(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

type pruneResponse struct {
	Success bool `json:"success"`
	Removed int  `json:"removed"`
}

func (s *Server) handleAdminPruneHashtags(w http.ResponseWriter, r *http.Request) {
	n, err := s.st.DeleteUnusedHashtags(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.log.Info("unused hashtags removed", "count", n)
	writeJSON(w, http.StatusOK, pruneResponse{Success: true, Removed: n})
}

// media

func (s *Server) handleAdminListMedia(w http.ResponseWriter, r *http.Request) {
	items, err := s.media.List(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleAdminUploadMedia(w http.ResponseWriter, r *http.Request) {
	limit := s.cfg.Media.MaxUploadMB << 20
	if limit <= 0 {
		limit = media.DefaultMaxBytes
	}
	// multipart overhead on top of the file itself
	r.Body = http.MaxBytesReader(w, r.Body, limit+1<<20)

	file, header, err := r.FormFile("file")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			s.writeError(w, r, media.ErrTooLarge)
			return
		}
		writeErrorMsg(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	m, err := s.media.Upload(r.Context(), header.Filename, file)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

type deleteMediaRequest struct {
	Paths []string `json:"paths" validate:"required,min=1,dive,required"`
}

type deleteMediaResponse struct {
	Success bool `json:"success"`
	// posts whose thumbnail pointed at a removed object
	Cleared int `json:"cleared"`
}

func (s *Server) handleAdminDeleteMedia(w http.ResponseWriter, r *http.Request) {
	var req deleteMediaRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.validate.Struct(req); err != nil {
		s.writeError(w, r, err)
		return
	}
	cleared, err := s.media.Delete(r.Context(), req.Paths)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.log.Info("media deleted", "paths", strings.Join(req.Paths, ","), "cleared_thumbnails", cleared)
	writeJSON(w, http.StatusOK, deleteMediaResponse{Success: true, Cleared: cleared})
}
