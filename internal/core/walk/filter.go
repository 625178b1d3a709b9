package walk

import (
	"path"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Filter answers include/exclude for a single root. The watcher keeps one
// per watch directory so event paths are screened with the same rules the
// scan uses.
type Filter struct {
	opts Options
	exts map[string]bool
	ig   *ignoreMatcher
}

func NewFilter(root string, opts Options) (*Filter, error) {
	ig, err := loadIgnoreMatcher(root)
	if err != nil {
		return nil, err
	}
	exts := make(map[string]bool, len(opts.ExcludeExtensions))
	for _, ext := range opts.ExcludeExtensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		exts[ext] = true
	}
	return &Filter{opts: opts, exts: exts, ig: ig}, nil
}

// ShouldInclude reports whether the root-relative path survives the
// exclusion rules.
func (f *Filter) ShouldInclude(rel string, isDir bool) bool {
	if f == nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	name := path.Base(rel)

	if isDir {
		if isHidden(name) || isDefaultSkippedDir(name) {
			return false
		}
		if f.ig.isIgnored(rel, true) {
			return false
		}
		if anyGlobMatch(f.opts.ExcludeGlobs, rel) {
			return false
		}
		return true
	}

	if isHidden(name) {
		return false
	}
	if f.exts[strings.ToLower(path.Ext(name))] {
		return false
	}
	if f.ig.isIgnored(rel, false) {
		return false
	}
	if anyGlobMatch(f.opts.ExcludeGlobs, rel) {
		return false
	}
	return true
}

func anyGlobMatch(patterns []string, rel string) bool {
	for _, pat := range patterns {
		if matchesGlob(pat, rel) {
			return true
		}
	}
	return false
}

func matchesGlob(pattern string, rel string) bool {
	pat := strings.TrimSpace(pattern)
	if pat == "" {
		return false
	}
	pat = strings.ReplaceAll(pat, "\\", "/")
	rel = filepath.ToSlash(rel)

	// Patterns without a separator match against the basename.
	if !strings.Contains(pat, "/") {
		ok, _ := doublestar.Match(pat, path.Base(rel))
		return ok
	}

	ok, _ := doublestar.Match(pat, rel)
	return ok
}
