package render

import (
	"html/template"
	"net/url"
	"time"

	"kotoba/internal/domain/config"
	"kotoba/internal/domain/content"
	"kotoba/internal/domain/site"
	"kotoba/internal/htmltext"
	"kotoba/internal/listing"
	"kotoba/internal/store"
)

const cardExcerptLength = 120

// Base carries what every page layout reads.
type Base struct {
	Site        config.SiteConfig
	PageTitle   string
	Description string
	Canonical   string
	// Set in watch mode; the layout then subscribes to /dev/events.
	DevReload bool
}

type PostCard struct {
	URL          string
	Title        string
	Excerpt      string
	ThumbnailURL string
	PublishedAt  time.Time
	ViewCount    string
	Categories   []content.Category
	Hashtags     []content.Hashtag
}

func NewPostCard(v content.PostView) PostCard {
	excerpt := v.Excerpt
	if excerpt == "" {
		excerpt = htmltext.Excerpt(v.Content, cardExcerptLength)
	}
	return PostCard{
		URL:          site.PostPath(v),
		Title:        v.Title,
		Excerpt:      excerpt,
		ThumbnailURL: v.ThumbnailURL,
		PublishedAt:  v.PublishedTime(),
		ViewCount:    htmltext.FormatCount(v.ViewCount),
		Categories:   v.Categories,
		Hashtags:     v.Hashtags,
	}
}

func NewPostCards(views []content.PostView) []PostCard {
	out := make([]PostCard, 0, len(views))
	for _, v := range views {
		out = append(out, NewPostCard(v))
	}
	return out
}

type PagerItem struct {
	Number   int
	URL      string
	Current  bool
	Ellipsis bool
}

type Pager struct {
	Current    int
	TotalPages int
	Prev       string
	Next       string
	Items      []PagerItem
	Info       listing.Info
}

const pagerSiblings = 1

// NewPager builds pager links for path, keeping the other query parameters.
func NewPager(path string, q url.Values, current, totalItems, perPage int) Pager {
	info := listing.PaginationInfo(totalItems, current, perPage)
	p := Pager{Current: current, TotalPages: info.TotalPages, Info: info}
	if info.TotalPages <= 1 {
		return p
	}
	if info.HasPrevious {
		p.Prev = listing.PageURL(path, current-1, q)
	}
	if info.HasNext {
		p.Next = listing.PageURL(path, current+1, q)
	}
	for _, it := range listing.PaginationRange(current, info.TotalPages, pagerSiblings) {
		if it.IsEllipsis() {
			p.Items = append(p.Items, PagerItem{Ellipsis: true})
			continue
		}
		p.Items = append(p.Items, PagerItem{
			Number:  it.Number,
			URL:     listing.PageURL(path, it.Number, q),
			Current: it.Number == current,
		})
	}
	return p
}

type CategoryLink struct {
	content.Category
	URL    string
	Active bool
}

type HashtagChip struct {
	content.Hashtag
	URL        string
	Active     bool
	FontSize   float64
	CountLabel string
}

// NewHashtagCloud sizes tags by count relative to the smallest and largest.
func NewHashtagCloud(tags []content.Hashtag, href func(content.Hashtag) string, active func(content.Hashtag) bool) []HashtagChip {
	if len(tags) == 0 {
		return nil
	}
	lo, hi := tags[0].Count, tags[0].Count
	for _, t := range tags {
		lo = min(lo, t.Count)
		hi = max(hi, t.Count)
	}
	out := make([]HashtagChip, 0, len(tags))
	for _, t := range tags {
		chip := HashtagChip{
			Hashtag:    t,
			URL:        href(t),
			FontSize:   htmltext.FontSize(t.Count, lo, hi),
			CountLabel: htmltext.FormatCount(t.Count),
		}
		if active != nil {
			chip.Active = active(t)
		}
		out = append(out, chip)
	}
	return out
}

type SortOption struct {
	Label  string
	URL    string
	Active bool
}

type HomePage struct {
	Base
	Posts       []PostCard
	Total       int
	Filter      listing.Filter
	Categories  []CategoryLink
	Hashtags    []HashtagChip
	SortOptions []SortOption
	ClearURL    string
	Pager       Pager
}

type ReactionCount struct {
	Type  content.ReactionType
	Emoji string
	Count int
}

var reactionEmoji = map[content.ReactionType]string{
	content.ReactionLight:  "💡",
	content.ReactionHeart:  "❤️",
	content.ReactionThumbs: "👍",
	content.ReactionFire:   "🔥",
}

// NewReactionCounts lists every reaction type in display order, zero when
// missing from counts.
func NewReactionCounts(counts map[content.ReactionType]int) []ReactionCount {
	out := make([]ReactionCount, 0, len(content.ReactionTypes))
	for _, t := range content.ReactionTypes {
		out = append(out, ReactionCount{Type: t, Emoji: reactionEmoji[t], Count: counts[t]})
	}
	return out
}

type PostPage struct {
	Base
	Post      content.PostView
	URL       string
	HTML      template.HTML
	TOC       []content.Heading
	Related   []PostCard
	Reactions []ReactionCount
	ViewCount string
}

type SearchPage struct {
	Base
	Query string
	Posts []PostCard
	Total int
	Pager Pager
}

type HashtagPage struct {
	Base
	Hashtag content.Hashtag
	Posts   []PostCard
	Total   int
	Pager   Pager
}

type NotFoundPage struct {
	Base
	Path string
}

type AdminLoginPage struct {
	Base
	Redirect string
}

type AdminDashboardPage struct {
	Base
	Stats  store.Stats
	Recent []content.PostView
}
