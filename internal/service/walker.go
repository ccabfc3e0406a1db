package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/src-d/enry/v2"

	"github.com/Strob0t/CodeTutor/internal/config"
	"github.com/Strob0t/CodeTutor/internal/domain/repository"
)

// binarySniffLen matches git's heuristic: a NUL byte in the first 8000
// bytes marks a file as binary.
const binarySniffLen = 8000

// WalkConfig is the file filter applied to a checkout.
type WalkConfig struct {
	MaxFileSize  int64
	MaxTotalSize int64
	// AllowedExtensions limits inclusion to these extensions. Empty means
	// every extension with a known language.
	AllowedExtensions []string
	DeniedExtensions  []string
	// DeniedPatterns are shell patterns matched against each path segment,
	// or against the whole relative path when they contain a slash.
	DeniedPatterns []string
	SkipVendored   bool
}

// WalkConfigFrom converts the walker section of the service config.
func WalkConfigFrom(c config.Walker) WalkConfig {
	return WalkConfig{
		MaxFileSize:       int64(c.MaxFileSize),
		MaxTotalSize:      int64(c.MaxTotalSize),
		AllowedExtensions: c.AllowedExtensions,
		DeniedExtensions:  c.DeniedExtensions,
		DeniedPatterns:    c.DeniedPatterns,
		SkipVendored:      c.SkipVendored,
	}
}

// WalkResult is the ordered outcome of a walk.
type WalkResult struct {
	// Entries holds every regular file outside pruned directories, sorted
	// by path, with its inclusion decision.
	Entries       []repository.FileEntry
	IncludedBytes int64
	// Truncated is set when the total-size budget stopped inclusion.
	Truncated bool
}

// Included returns the included entries in path order.
func (r *WalkResult) Included() []repository.FileEntry {
	out := make([]repository.FileEntry, 0, len(r.Entries))
	for _, e := range r.Entries {
		if e.Included {
			out = append(out, e)
		}
	}
	return out
}

// Skipped counts excluded entries.
func (r *WalkResult) Skipped() int {
	n := 0
	for _, e := range r.Entries {
		if !e.Included {
			n++
		}
	}
	return n
}

// Walker produces the filtered, ordered file list of a checkout.
type Walker struct {
	cfg     WalkConfig
	allowed map[string]bool
	denied  map[string]bool
}

// NewWalker builds a Walker for cfg.
func NewWalker(cfg WalkConfig) *Walker {
	w := &Walker{cfg: cfg, denied: make(map[string]bool)}
	for _, ext := range cfg.DeniedExtensions {
		w.denied[normalizeExt(ext)] = true
	}
	if len(cfg.AllowedExtensions) > 0 {
		w.allowed = make(map[string]bool)
		for _, ext := range cfg.AllowedExtensions {
			w.allowed[normalizeExt(ext)] = true
		}
	}
	return w
}

// Walk traverses root and decides for every file whether it is included.
// The result is deterministic for a given tree. Symlinks are never followed.
func (w *Walker) Walk(ctx context.Context, root string) (*WalkResult, error) {
	var entries []repository.FileEntry

	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == root {
				return err
			}
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if p == root {
			return nil
		}
		rel, relErr := filepath.Rel(root, p)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if w.deniedPath(rel) || (w.cfg.SkipVendored && enry.IsVendor(rel+"/")) {
				return fs.SkipDir
			}
			return nil
		}

		entry := repository.FileEntry{Path: rel, Language: languageOf(rel)}
		if !d.Type().IsRegular() {
			entry.Reason = repository.ReasonNotRegular
		} else if info, infoErr := d.Info(); infoErr != nil {
			entry.Reason = repository.ReasonUnreadable
		} else {
			entry.Size = info.Size()
		}
		entries = append(entries, entry)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}

	slices.SortStableFunc(entries, func(a, b repository.FileEntry) int {
		return strings.Compare(a.Path, b.Path)
	})

	res := &WalkResult{Entries: entries}
	for i := range res.Entries {
		e := &res.Entries[i]
		if e.Reason != repository.ReasonNone {
			continue
		}
		if e.Reason = w.decide(root, e); e.Reason != repository.ReasonNone {
			continue
		}
		if res.Truncated || res.IncludedBytes+e.Size > w.cfg.MaxTotalSize {
			res.Truncated = true
			e.Reason = repository.ReasonBudget
			continue
		}
		e.Included = true
		res.IncludedBytes += e.Size
	}
	return res, nil
}

// decide applies the per-file rules. Cheap checks run first so that only
// surviving candidates are opened for the binary sniff.
func (w *Walker) decide(root string, e *repository.FileEntry) repository.ExclusionReason {
	if w.deniedPath(e.Path) {
		return repository.ReasonDeniedPath
	}
	if w.cfg.SkipVendored && enry.IsVendor(e.Path) {
		return repository.ReasonVendored
	}
	if !w.extensionAllowed(e.Path) {
		return repository.ReasonExtension
	}
	if e.Size > w.cfg.MaxFileSize {
		return repository.ReasonTooLarge
	}

	head, err := readHead(filepath.Join(root, filepath.FromSlash(e.Path)), binarySniffLen)
	if err != nil {
		return repository.ReasonUnreadable
	}
	if enry.IsBinary(head) {
		e.Binary = true
		return repository.ReasonBinary
	}
	if e.Language == "" {
		e.Language = strings.ToLower(enry.GetLanguage(path.Base(e.Path), head))
	}
	return repository.ReasonNone
}

func (w *Walker) extensionAllowed(p string) bool {
	ext := strings.ToLower(path.Ext(p))
	if w.denied[ext] {
		return false
	}
	if w.allowed != nil {
		return w.allowed[ext]
	}
	return languageOf(p) != ""
}

// deniedPath reports whether any segment of rel (or rel itself, for
// patterns containing a slash) matches a denied pattern.
func (w *Walker) deniedPath(rel string) bool {
	segments := strings.Split(rel, "/")
	for _, pattern := range w.cfg.DeniedPatterns {
		if strings.Contains(pattern, "/") {
			pattern = strings.Trim(pattern, "/")
			if ok, _ := path.Match(pattern, rel); ok || strings.HasPrefix(rel, pattern+"/") {
				return true
			}
			continue
		}
		for _, seg := range segments {
			if ok, _ := path.Match(pattern, seg); ok {
				return true
			}
		}
	}
	return false
}

func readHead(p string, n int) ([]byte, error) {
	f, err := os.Open(p) //nolint:gosec // path is inside the task's own checkout
	if err != nil {
		return nil, err
	}
	defer f.Close()

	buf := make([]byte, n)
	read, err := io.ReadFull(f, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return buf[:read], nil
}
