package listing

import (
	"net/url"
	"strconv"
	"strings"
)

const Ellipsis = "..."

// PageItem is one slot of a pager: a page number, or an ellipsis when
// Number is 0.
type PageItem struct {
	Number int
}

func (p PageItem) IsEllipsis() bool { return p.Number == 0 }

func (p PageItem) String() string {
	if p.IsEllipsis() {
		return Ellipsis
	}
	return strconv.Itoa(p.Number)
}

// PaginationRange lays out a pager around current. When every page fits in
// siblings+5 slots all pages are listed; otherwise the first and last page
// stay visible and the gaps collapse into ellipses.
func PaginationRange(current, total, siblings int) []PageItem {
	if siblings < 0 {
		siblings = 0
	}
	if total <= 0 {
		return []PageItem{}
	}
	if siblings+5 >= total {
		return pages(1, total)
	}

	left := max(current-siblings, 1)
	right := min(current+siblings, total)
	showLeft := left > 2
	showRight := right < total-1
	edge := 3 + 2*siblings

	switch {
	case !showLeft && showRight:
		return append(pages(1, edge), PageItem{}, PageItem{Number: total})
	case showLeft && !showRight:
		return append([]PageItem{{Number: 1}, {}}, pages(total-edge+1, total)...)
	}
	out := []PageItem{{Number: 1}, {}}
	out = append(out, pages(left, right)...)
	return append(out, PageItem{}, PageItem{Number: total})
}

func pages(from, to int) []PageItem {
	out := make([]PageItem, 0, to-from+1)
	for i := from; i <= to; i++ {
		out = append(out, PageItem{Number: i})
	}
	return out
}

type Info struct {
	TotalPages  int
	Offset      int
	Limit       int
	HasNext     bool
	HasPrevious bool
	// 1-based, inclusive
	StartIndex int
	EndIndex   int
}

// PaginationInfo computes pager metadata; perPage <= 0 means 12.
func PaginationInfo(totalItems, current, perPage int) Info {
	if perPage <= 0 {
		perPage = 12
	}
	totalPages := (totalItems + perPage - 1) / perPage
	offset := (current - 1) * perPage
	return Info{
		TotalPages:  totalPages,
		Offset:      offset,
		Limit:       perPage,
		HasNext:     current < totalPages,
		HasPrevious: current > 1,
		StartIndex:  offset + 1,
		EndIndex:    min(offset+perPage, totalItems),
	}
}

// ValidatePage parses raw and clamps it into 1..total. total <= 0 leaves the
// upper bound open.
func ValidatePage(raw string, total int) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 1 {
		return 1
	}
	if total > 0 && n > total {
		return total
	}
	return n
}

// PageURL returns path with the page parameter replaced, keeping the rest of
// the query.
func PageURL(path string, page int, q url.Values) string {
	v := url.Values{}
	for k, vs := range q {
		v[k] = append([]string(nil), vs...)
	}
	v.Set("page", strconv.Itoa(page))
	return path + "?" + v.Encode()
}
