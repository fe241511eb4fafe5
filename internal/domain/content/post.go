package content

import (
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

type Post struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	Slug         string     `json:"slug"`
	Content      string     `json:"content"`
	Excerpt      string     `json:"excerpt,omitempty"`
	ThumbnailURL string     `json:"thumbnail_url,omitempty"`
	CategoryIDs  []string   `json:"category_ids"`
	HashtagIDs   []string   `json:"hashtag_ids"`
	ViewCount    int        `json:"view_count"`
	PublishedAt  *time.Time `json:"published_at,omitempty"`
	IsPublished  bool       `json:"is_published"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// PublishedTime returns the publish date, falling back to creation time for
// rows imported without one.
func (p Post) PublishedTime() time.Time {
	if p.PublishedAt != nil && !p.PublishedAt.IsZero() {
		return *p.PublishedAt
	}
	return p.CreatedAt
}

type Category struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Slug        string    `json:"slug"`
	Description string    `json:"description,omitempty"`
	OrderNum    int       `json:"order_num"`
	IsActive    bool      `json:"is_active"`
	PostCount   int       `json:"post_count"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Hashtag struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	Count     int       `json:"count"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type ReactionType string

const (
	ReactionLight  ReactionType = "light"
	ReactionHeart  ReactionType = "heart"
	ReactionThumbs ReactionType = "thumbs"
	ReactionFire   ReactionType = "fire"
)

var ReactionTypes = []ReactionType{ReactionLight, ReactionHeart, ReactionThumbs, ReactionFire}

func (t ReactionType) Valid() bool {
	for _, v := range ReactionTypes {
		if t == v {
			return true
		}
	}
	return false
}

// PostView is a post together with its resolved category and hashtag rows.
type PostView struct {
	Post
	Categories []Category `json:"categories"`
	Hashtags   []Hashtag  `json:"hashtags"`
}

// PrimaryCategory is the category used in article URLs.
func (v PostView) PrimaryCategory() (Category, bool) {
	if len(v.Categories) == 0 {
		return Category{}, false
	}
	return v.Categories[0], true
}

func (v PostView) CategoryIDSet() []string {
	out := make([]string, 0, len(v.Categories))
	for _, c := range v.Categories {
		out = append(out, c.ID)
	}
	return out
}

func (v PostView) HashtagSlugs() []string {
	out := make([]string, 0, len(v.Hashtags))
	for _, h := range v.Hashtags {
		out = append(out, h.Slug)
	}
	return out
}

type Heading struct {
	Level int    `json:"level"`
	ID    string `json:"id"`
	Text  string `json:"text"`
}

func (p *Post) Normalize() {
	p.Title = strings.TrimSpace(p.Title)
	p.Slug = NormalizeSlug(p.Slug)
	p.Excerpt = strings.TrimSpace(p.Excerpt)
	p.ThumbnailURL = strings.TrimSpace(p.ThumbnailURL)
	p.CategoryIDs = normalizeIDs(p.CategoryIDs)
	p.HashtagIDs = normalizeIDs(p.HashtagIDs)
}

func (c *Category) Normalize() {
	c.Name = strings.TrimSpace(c.Name)
	c.Slug = NormalizeSlug(c.Slug)
	c.Description = strings.TrimSpace(c.Description)
	if c.OrderNum < 0 {
		c.OrderNum = 0
	}
}

func (h *Hashtag) Normalize() {
	h.Name = strings.TrimPrefix(norm.NFKC.String(strings.TrimSpace(h.Name)), "#")
	if h.Slug == "" {
		h.Slug = h.Name
	}
	h.Slug = NormalizeSlug(h.Slug)
}

// NormalizeSlug folds full-width forms (ＡＢＣ, １２３) and case so that slugs
// typed on a Japanese keyboard match their ASCII spelling.
func NormalizeSlug(s string) string {
	s = norm.NFKC.String(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, "#")
	s = strings.ToLower(s)
	return strings.Join(strings.Fields(s), "-")
}

func normalizeIDs(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if _, ok := seen[item]; ok {
			continue
		}
		seen[item] = struct{}{}
		out = append(out, item)
	}
	return out
}
