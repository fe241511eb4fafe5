package serve

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"kotoba/internal/ingest"
)

const (
	watchDebounce = 200 * time.Millisecond
	reimportLimit = 30 * time.Second
)

// Reimport reads the source directory again, applies it to the store and
// refreshes the search index. Connected browsers are told to reload.
func (s *Server) Reimport(ctx context.Context) error {
	if s.importer == nil {
		return errors.New("reimport: no importer configured")
	}
	loc, err := time.LoadLocation(s.cfg.Site.TimeZone)
	if err != nil {
		loc = time.Local
	}
	arts, warns, err := ingest.Ingest(ctx, ingest.Options{SourceDir: s.cfg.Build.SourceDir, Location: loc})
	if err != nil {
		return fmt.Errorf("ingest: %w", err)
	}
	for _, w := range warns {
		s.log.Warn("ingest", "path", w.Path, "msg", w.Msg)
	}
	rep, err := s.importer.Apply(ctx, arts)
	if err != nil {
		return fmt.Errorf("import: %w", err)
	}
	if err := s.RefreshSearch(ctx); err != nil {
		return err
	}
	s.log.Info("reimport complete", "created", rep.Created, "updated", rep.Updated, "unchanged", rep.Unchanged)
	s.broadcastSSE("reload")
	return nil
}

// StartWatch watches the source and theme directories and reimports on
// change. Pages rendered afterwards subscribe to /dev/events.
func (s *Server) StartWatch(ctx context.Context) error {
	var err error
	s.watchOnce.Do(func() {
		w, e := fsnotify.NewWatcher()
		if e != nil {
			err = e
			return
		}
		s.watcher = w
		s.devReload = true

		for _, root := range []string{s.cfg.Build.SourceDir, filepath.Join(s.cfg.Build.ThemeDir, s.cfg.Site.Theme)} {
			if e := addDirs(w, root); e != nil {
				err = fmt.Errorf("watch %s: %w", root, e)
				return
			}
		}
		go s.watchLoop(ctx)
	})
	return err
}

func addDirs(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return w.Add(path)
	})
}

func (s *Server) watchLoop(ctx context.Context) {
	s.log.Info("watching for file changes", "dir", s.cfg.Build.SourceDir)
	debounce := time.NewTicker(time.Hour)
	debounce.Stop()

	trigger := func() {
		select {
		case <-debounce.C:
		default:
		}
		debounce.Reset(watchDebounce)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&fsnotify.Create != 0 {
				// new directories need their own watch
				_ = addDirs(s.watcher, ev.Name)
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				trigger()
			}
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.log.Warn("watcher error", "err", err)
		case <-debounce.C:
			debounce.Stop()
			ctx2, cancel := context.WithTimeout(ctx, reimportLimit)
			if err := s.Reimport(ctx2); err != nil {
				s.log.Error("reimport failed", "err", err)
			}
			cancel()
		}
	}
}

func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := make(chan string, 8)

	s.sseMu.Lock()
	s.sseConns[ch] = struct{}{}
	s.sseMu.Unlock()

	defer func() {
		s.sseMu.Lock()
		if _, ok := s.sseConns[ch]; ok {
			delete(s.sseConns, ch)
			close(ch)
		}
		s.sseMu.Unlock()
	}()
	fmt.Fprintf(w, "data: %s\n\n", "hello")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", msg)
			flusher.Flush()
		}
	}
}

func (s *Server) broadcastSSE(msg string) {
	s.sseMu.Lock()
	defer s.sseMu.Unlock()
	for ch := range s.sseConns {
		select {
		case ch <- msg:
		default:
		}
	}
}

// closeSSE ends every open event stream so Shutdown does not wait on them.
func (s *Server) closeSSE() {
	s.sseMu.Lock()
	defer s.sseMu.Unlock()
	for ch := range s.sseConns {
		delete(s.sseConns, ch)
		close(ch)
	}
}
