package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"
)

type Warning struct {
	Path string
	Msg  string
}

// Article is one parsed source file, ready to be applied to the store.
type Article struct {
	SourcePath  string
	ContentHash string

	Title      string
	Slug       string
	Categories []string
	Hashtags   []string
	Excerpt    string
	Thumbnail  string
	Published  bool
	Date       time.Time
	Updated    time.Time

	Body []byte // markdown without front matter
}

type Result struct {
	Article Article
	Warns   []Warning
	Skip    bool
	Err     error
}

type Options struct {
	SourceDir string
	// Location for dates without a zone; nil means time.Local.
	Location *time.Location
	Workers  int
}

func HashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Ingest parses every markdown file under opt.SourceDir on a worker pool.
// Articles come back sorted by path; duplicate slugs after the first are
// dropped with a warning.
func Ingest(ctx context.Context, opt Options) ([]Article, []Warning, error) {
	files, err := DiscoverSource(opt.SourceDir)
	if err != nil {
		return nil, nil, err
	}

	workers := opt.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	jobs := make(chan SourceFile)
	results := make(chan Result)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for sf := range jobs {
				r := parseFile(sf, opt.Location)
				select {
				case results <- r:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		defer func() {
			close(jobs)
			wg.Wait()
			close(results)
		}()
		for _, f := range files {
			select {
			case jobs <- f:
			case <-ctx.Done():
				return
			}
		}
	}()

	var out []Article
	var warns []Warning
	for r := range results {
		if r.Err != nil {
			cancel()
			for range results {
			}
			return nil, nil, r.Err
		}
		warns = append(warns, r.Warns...)
		if r.Skip {
			continue
		}
		out = append(out, r.Article)
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	sort.Slice(out, func(i, j int) bool { return out[i].SourcePath < out[j].SourcePath })
	seen := make(map[string]struct{}, len(out))
	filtered := make([]Article, 0, len(out))
	for _, a := range out {
		if _, ok := seen[a.Slug]; ok {
			warns = append(warns, Warning{Path: a.SourcePath, Msg: "duplicate slug, skipped: " + a.Slug})
			continue
		}
		seen[a.Slug] = struct{}{}
		filtered = append(filtered, a)
	}
	return filtered, warns, nil
}

func parseFile(sf SourceFile, loc *time.Location) Result {
	st, err := os.Stat(sf.Path)
	if err != nil {
		return Result{Err: err}
	}
	raw, err := os.ReadFile(sf.Path)
	if err != nil {
		return Result{Err: err}
	}

	var warns []Warning
	fm, body, fmErr := ParseFrontMatter(raw)
	if fmErr != nil && !errors.Is(fmErr, errNoFrontMatter) {
		warns = append(warns, Warning{
			Path: sf.Path,
			Msg:  "failed to parse front matter: " + fmErr.Error(),
		})
		return Result{Warns: warns, Skip: true}
	}
	if fm.Hidden {
		return Result{Skip: true}
	}

	slug := ResolveSlug(fm, sf.Path)
	if slug == "" {
		warns = append(warns, Warning{Path: sf.Path, Msg: "empty slug"})
		return Result{Warns: warns, Skip: true}
	}

	a := Article{
		SourcePath:  sf.Path,
		ContentHash: HashBytes(raw),
		Title:       strings.TrimSpace(fm.Title),
		Slug:        slug,
		Categories:  fm.CategoryNames(),
		Hashtags:    fm.HashtagNames(),
		Excerpt:     strings.TrimSpace(fm.Excerpt),
		Thumbnail:   strings.TrimSpace(fm.Thumbnail),
		Published:   fm.IsPublished(),
		Date:        ParseTime(fm.Date, loc),
		Updated:     ParseTime(fm.Updated, loc),
		Body:        body,
	}
	if a.Date.IsZero() {
		a.Date = st.ModTime()
		warns = append(warns, Warning{
			Path: sf.Path,
			Msg:  "using file modification time for date",
		})
	}
	if a.Updated.IsZero() || a.Updated.Before(a.Date) {
		a.Updated = a.Date
	}
	if a.Title == "" {
		warns = append(warns, Warning{Path: sf.Path, Msg: "title is empty"})
	}
	return Result{Article: a, Warns: warns}
}
