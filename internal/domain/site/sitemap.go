package site

import (
	"encoding/xml"
	"fmt"
	"io"
	"time"
)

type ChangeFreq string

const (
	ChangeDaily  ChangeFreq = "daily"
	ChangeWeekly ChangeFreq = "weekly"
)

type SitemapEntry struct {
	Loc        string
	LastMod    time.Time
	ChangeFreq ChangeFreq
	Priority   float64
}

type urlset struct {
	XMLName xml.Name     `xml:"urlset"`
	Xmlns   string       `xml:"xmlns,attr"`
	URLs    []sitemapURL `xml:"url"`
}

type sitemapURL struct {
	Loc        string `xml:"loc"`
	LastMod    string `xml:"lastmod,omitempty"`
	ChangeFreq string `xml:"changefreq,omitempty"`
	Priority   string `xml:"priority,omitempty"`
}

// WriteSitemap encodes entries in the sitemaps.org 0.9 format.
func WriteSitemap(w io.Writer, entries []SitemapEntry) error {
	set := urlset{Xmlns: "http://www.sitemaps.org/schemas/sitemap/0.9"}
	for _, e := range entries {
		u := sitemapURL{
			Loc:        e.Loc,
			ChangeFreq: string(e.ChangeFreq),
			Priority:   fmt.Sprintf("%.1f", e.Priority),
		}
		if !e.LastMod.IsZero() {
			u.LastMod = e.LastMod.UTC().Format(time.RFC3339)
		}
		set.URLs = append(set.URLs, u)
	}
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(set); err != nil {
		return err
	}
	return enc.Flush()
}

// Robots allows everything but the admin area and points at the sitemap.
func Robots(siteURL string) string {
	return "User-agent: *\nAllow: /\nDisallow: /admin\nDisallow: /api/\n\nSitemap: " + Absolute(siteURL, "/sitemap.xml") + "\n"
}
