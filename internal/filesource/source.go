// Package filesource turns local selections into candidate files for the
// upload queue. Explicit paths (a picker) and a dropped directory produce the
// same lazy, finite sequence so callers never care where files came from.
package filesource

import (
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"mime"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/dharsanguruparan/snapdrop/internal/model"
)

// Source yields candidate files. A non-nil error paired with a file means that
// single entry could not be inspected; iteration continues with the next one.
type Source = iter.Seq2[model.File, error]

// Paths yields one file per path, in the order given. Directories are
// reported as errors rather than expanded; use Dir for those.
func Paths(paths ...string) Source {
	return func(yield func(model.File, error) bool) {
		for _, p := range paths {
			f, err := Stat(p)
			if !yield(f, err) {
				return
			}
		}
	}
}

// Dir yields the regular files inside root sorted by name. Hidden entries are
// skipped. When recursive is false only the top level is read.
func Dir(root string, recursive bool) Source {
	return func(yield func(model.File, error) bool) {
		var paths []string
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if path == root {
				return nil
			}
			if strings.HasPrefix(d.Name(), ".") {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if d.IsDir() {
				if !recursive {
					return filepath.SkipDir
				}
				return nil
			}
			if d.Type().IsRegular() {
				paths = append(paths, path)
			}
			return nil
		})
		if err != nil {
			yield(model.File{Path: root, Name: filepath.Base(root)}, fmt.Errorf("read dir %s: %w", root, err))
			return
		}
		sort.Strings(paths)
		for _, p := range paths {
			f, statErr := Stat(p)
			if !yield(f, statErr) {
				return
			}
		}
	}
}

// Concat chains sources one after another.
func Concat(sources ...Source) Source {
	return func(yield func(model.File, error) bool) {
		for _, src := range sources {
			for f, err := range src {
				if !yield(f, err) {
					return
				}
			}
		}
	}
}

// Collect drains src into files and per-entry errors.
func Collect(src Source) ([]model.File, []error) {
	var (
		files []model.File
		errs  []error
	)
	for f, err := range src {
		if err != nil {
			errs = append(errs, err)
			continue
		}
		files = append(files, f)
	}
	return files, errs
}

// ErrNotRegular is returned for paths that are directories or devices.
var ErrNotRegular = errors.New("not a regular file")

// Stat inspects a single local path and declares its media type.
func Stat(path string) (model.File, error) {
	f := model.File{Name: filepath.Base(path), Path: path}
	info, err := os.Stat(path)
	if err != nil {
		return f, fmt.Errorf("stat %s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		return f, fmt.Errorf("%s: %w", path, ErrNotRegular)
	}
	f.Size = info.Size()
	f.ContentType = DetectType(path)
	return f, nil
}

// DetectType declares a media type the way a browser would, from the file
// extension, and sniffs the content when the extension is unknown.
func DetectType(path string) string {
	if byExt := mime.TypeByExtension(strings.ToLower(filepath.Ext(path))); byExt != "" {
		mt, _, _ := strings.Cut(byExt, ";")
		return strings.TrimSpace(mt)
	}
	detected, err := mimetype.DetectFile(path)
	if err != nil || detected == nil {
		return "application/octet-stream"
	}
	mt, _, _ := strings.Cut(detected.String(), ";")
	return mt
}
