package walk

import (
	"context"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Options are the enumeration exclusion rules. Hidden entries are always
// skipped; everything else is opt-out.
type Options struct {
	ExcludeExtensions []string
	ExcludeGlobs      []string
	MaxFileSize       int64
}

// Entry is one enumerated file. Paths are absolute and slash-normalized.
type Entry struct {
	Path      string
	Name      string
	SizeBytes int64
	ModTime   time.Time
}

// ListFiles enumerates all indexable files under the given roots, applying
// the exclusion rules and any .fdxignore patterns found in each root. The
// walk checks ctx between directories so a shutdown does not wait for a
// full traversal.
func ListFiles(ctx context.Context, roots []string, opts Options) ([]Entry, error) {
	var entries []Entry
	seen := map[string]bool{}
	for _, root := range roots {
		root = strings.TrimSpace(root)
		if root == "" {
			continue
		}
		abs, err := filepath.Abs(root)
		if err != nil {
			return nil, err
		}
		f, err := NewFilter(abs, opts)
		if err != nil {
			return nil, err
		}

		err = filepath.WalkDir(abs, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				// Unreadable subtrees are skipped, not fatal.
				if d != nil && d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if p == abs {
				return nil
			}
			rel, err := filepath.Rel(abs, p)
			if err != nil {
				return err
			}
			rel = filepath.ToSlash(rel)

			if d.IsDir() {
				if err := ctx.Err(); err != nil {
					return err
				}
				if !f.ShouldInclude(rel, true) {
					return filepath.SkipDir
				}
				return nil
			}
			if !d.Type().IsRegular() {
				return nil
			}
			if !f.ShouldInclude(rel, false) {
				return nil
			}

			info, err := d.Info()
			if err != nil {
				return nil
			}
			if opts.MaxFileSize > 0 && info.Size() > opts.MaxFileSize {
				return nil
			}

			key := filepath.ToSlash(p)
			if seen[key] {
				return nil
			}
			seen[key] = true
			entries = append(entries, Entry{
				Path:      key,
				Name:      d.Name(),
				SizeBytes: info.Size(),
				ModTime:   info.ModTime(),
			})
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries, nil
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

func isDefaultSkippedDir(name string) bool {
	switch name {
	case ".git", "node_modules", "__pycache__", ".venv", "venv":
		return true
	default:
		return false
	}
}
