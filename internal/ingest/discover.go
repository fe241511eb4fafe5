package ingest

import (
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
)

type SourceFile struct {
	Path string
}

// DiscoverSource lists markdown files below root. Dot directories such as
// .git and files starting with _ are skipped.
func DiscoverSource(root string) ([]SourceFile, error) {
	var out []SourceFile

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() {
			if path != root && strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(name, "_") || strings.HasPrefix(name, ".") {
			return nil
		}
		lower := strings.ToLower(name)
		if strings.HasSuffix(lower, ".md") || strings.HasSuffix(lower, ".markdown") {
			out = append(out, SourceFile{Path: path})
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, err
}
