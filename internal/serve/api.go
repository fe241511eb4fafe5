package serve

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"kotoba/internal/auth"
	"kotoba/internal/domain/content"
	"kotoba/internal/domain/site"
	"kotoba/internal/listing"
	"kotoba/internal/metrics"
	"kotoba/internal/store"
)

const (
	suggestMinRunes = 2
	suggestLimit    = 5
)

// GET /api/posts?category=&hashtags=&sort=&page=&limit=
func (s *Server) handleAPIPosts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := store.DefaultPageSize
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeErrorMsg(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	page, err := s.st.ListPosts(r.Context(), listing.ParseFilter(q).ListOptions(limit))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

type viewResponse struct {
	Success   bool `json:"success"`
	ViewCount int  `json:"viewCount"`
}

// POST /api/posts/{slug}/view
func (s *Server) handleAPIView(w http.ResponseWriter, r *http.Request) {
	n, err := s.st.IncrementView(r.Context(), r.PathValue("slug"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	metrics.RecordView()
	writeJSON(w, http.StatusOK, viewResponse{Success: true, ViewCount: n})
}

// GET /api/reactions?postId=
func (s *Server) handleAPIReactions(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.URL.Query().Get("postId"))
	if id == "" {
		writeErrorMsg(w, http.StatusBadRequest, "postId is required")
		return
	}
	counts, err := s.st.Reactions(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make(map[content.ReactionType]int, len(content.ReactionTypes))
	for _, t := range content.ReactionTypes {
		out[t] = counts[t]
	}
	writeJSON(w, http.StatusOK, out)
}

type reactRequest struct {
	PostID       string `json:"post_id"`
	ReactionType string `json:"reaction_type"`
}

type reactResponse struct {
	Success bool `json:"success"`
	Count   int  `json:"count"`
}

// POST /api/reactions {post_id, reaction_type}
func (s *Server) handleAPIReact(w http.ResponseWriter, r *http.Request) {
	var req reactRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.PostID) == "" || req.ReactionType == "" {
		writeErrorMsg(w, http.StatusBadRequest, "post_id and reaction_type are required")
		return
	}
	t := content.ReactionType(req.ReactionType)
	if !t.Valid() {
		writeErrorMsg(w, http.StatusBadRequest, "invalid reaction_type")
		return
	}
	n, err := s.st.IncrementReaction(r.Context(), req.PostID, t)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	metrics.RecordReaction(string(t))
	writeJSON(w, http.StatusOK, reactResponse{Success: true, Count: n})
}

type suggestPost struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Slug  string `json:"slug"`
	URL   string `json:"url"`
}

type suggestResponse struct {
	Posts    []suggestPost     `json:"posts"`
	Hashtags []content.Hashtag `json:"hashtags"`
}

// GET /api/search/suggest?q=
func (s *Server) handleAPISuggest(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	out := suggestResponse{Posts: []suggestPost{}, Hashtags: []content.Hashtag{}}
	if utf8.RuneCountInString(q) < suggestMinRunes {
		writeJSON(w, http.StatusOK, out)
		return
	}
	metrics.RecordSearch("suggest")

	ctx := r.Context()
	for _, hit := range s.search.Search(q, suggestLimit) {
		v, err := s.st.GetPost(ctx, hit.ID)
		if err != nil || !v.IsPublished {
			continue
		}
		out.Posts = append(out.Posts, suggestPost{ID: v.ID, Title: v.Title, Slug: v.Slug, URL: site.PostPath(v)})
	}
	tags, err := s.st.SuggestHashtags(ctx, q, suggestLimit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out.Hashtags = tags
	writeJSON(w, http.StatusOK, out)
}

type loginRequest struct {
	Password string `json:"password"`
}

type successResponse struct {
	Success bool `json:"success"`
}

// POST /api/admin/login {password}
func (s *Server) handleAPILogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	token, err := s.auth.Login(req.Password)
	switch {
	case errors.Is(err, auth.ErrNotConfigured):
		s.log.Error("admin login attempted without a configured password")
		writeErrorMsg(w, http.StatusInternalServerError, "Server configuration error")
		return
	case errors.Is(err, auth.ErrInvalidPassword):
		s.log.Warn("admin login failed", "ip", clientIP(r))
		writeErrorMsg(w, http.StatusUnauthorized, "Invalid password")
		return
	case err != nil:
		s.writeError(w, r, err)
		return
	}
	s.auth.SetCookie(w, token)
	s.log.Info("admin login", "ip", clientIP(r))
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

// POST /api/admin/logout
func (s *Server) handleAPILogout(w http.ResponseWriter, r *http.Request) {
	s.auth.ClearCookie(w)
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}
