package sqlite

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"filedex/internal/index/store"
	"filedex/internal/model"
)

// SemanticSearch scans the embedding table and ranks by cosine similarity,
// normalized from [-1,1] into [0,1]. The corpus is single-node sized, so a
// linear scan is the whole engine.
func (s *Store) SemanticSearch(vector []float32, limit int) ([]store.SemanticHit, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("store is not open")
	}
	if len(vector) == 0 {
		return nil, fmt.Errorf("vector is required")
	}
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.Query(`SELECT path, dim, vector FROM embeddings`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hits []store.SemanticHit
	for rows.Next() {
		var path string
		var dim int
		var blob []byte
		if err := rows.Scan(&path, &dim, &blob); err != nil {
			return nil, err
		}
		if dim != len(vector) {
			continue
		}
		cos, ok := cosine(vector, decodeVector(blob, dim))
		if !ok {
			continue
		}
		hits = append(hits, store.SemanticHit{Path: path, Score: (cos + 1) / 2})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// ListRecent returns records modified since the cutoff, newest first.
func (s *Store) ListRecent(since time.Time, limit int) ([]model.FileRecord, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("store is not open")
	}
	if limit <= 0 {
		limit = 50
	}
	return s.queryRecords(
		`SELECT path, name, extension, size, mtime, ctime, category, digest, indexed_at
		 FROM files WHERE mtime >= ? ORDER BY mtime DESC LIMIT ?`,
		since.Unix(), limit,
	)
}

// ListByCategory returns records of a category, optionally restricted to
// specific extensions, newest first.
func (s *Store) ListByCategory(category model.Category, extensions []string, limit int) ([]model.FileRecord, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("store is not open")
	}
	if limit <= 0 {
		limit = 50
	}

	var sb strings.Builder
	args := []any{}
	sb.WriteString(`SELECT path, name, extension, size, mtime, ctime, category, digest, indexed_at FROM files WHERE 1=1`)
	if category != "" {
		sb.WriteString(` AND category = ?`)
		args = append(args, string(category))
	}
	if len(extensions) > 0 {
		sb.WriteString(` AND extension IN (` + placeholders(len(extensions)) + `)`)
		for _, ext := range extensions {
			ext = strings.ToLower(strings.TrimSpace(ext))
			if !strings.HasPrefix(ext, ".") {
				ext = "." + ext
			}
			args = append(args, ext)
		}
	}
	sb.WriteString(` ORDER BY mtime DESC LIMIT ?`)
	args = append(args, limit)

	return s.queryRecords(sb.String(), args...)
}

// FindDuplicates groups live records sharing a non-empty content digest.
func (s *Store) FindDuplicates(limit int) ([]model.DuplicateGroup, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("store is not open")
	}
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.Query(
		`SELECT digest, size, GROUP_CONCAT(path, x'0a')
		 FROM files
		 WHERE digest != ''
		 GROUP BY digest HAVING COUNT(1) > 1
		 ORDER BY size DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.DuplicateGroup
	for rows.Next() {
		var g model.DuplicateGroup
		var joined string
		if err := rows.Scan(&g.ContentDigest, &g.SizeBytes, &joined); err != nil {
			return nil, err
		}
		g.Paths = strings.Split(joined, "\n")
		sort.Strings(g.Paths)
		out = append(out, g)
	}
	return out, rows.Err()
}

// ListLargeFiles returns records at or above minSize bytes, largest first.
func (s *Store) ListLargeFiles(minSize int64, limit int) ([]model.FileRecord, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("store is not open")
	}
	if limit <= 0 {
		limit = 50
	}
	return s.queryRecords(
		`SELECT path, name, extension, size, mtime, ctime, category, digest, indexed_at
		 FROM files WHERE size >= ? ORDER BY size DESC LIMIT ?`,
		minSize, limit,
	)
}

// ListOldFiles returns records untouched for at least the given number of
// days, oldest first.
func (s *Store) ListOldFiles(days int, limit int) ([]model.FileRecord, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("store is not open")
	}
	if days <= 0 {
		days = 365
	}
	if limit <= 0 {
		limit = 50
	}
	cutoff := time.Now().AddDate(0, 0, -days).Unix()
	return s.queryRecords(
		`SELECT path, name, extension, size, mtime, ctime, category, digest, indexed_at
		 FROM files WHERE mtime <= ? ORDER BY mtime ASC LIMIT ?`,
		cutoff, limit,
	)
}

func (s *Store) queryRecords(query string, args ...any) ([]model.FileRecord, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.FileRecord
	for rows.Next() {
		var rec model.FileRecord
		var mtime, ctime, indexedAt int64
		var category string
		if err := rows.Scan(&rec.Path, &rec.Name, &rec.Extension, &rec.SizeBytes, &mtime, &ctime, &category, &rec.ContentDigest, &indexedAt); err != nil {
			return nil, err
		}
		rec.ModifiedTime = time.Unix(mtime, 0)
		if ctime > 0 {
			rec.CreatedTime = time.Unix(ctime, 0)
		}
		rec.Category = model.Category(category)
		rec.LastIndexedAt = time.Unix(indexedAt, 0)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func cosine(a, b []float32) (float64, bool) {
	if len(a) != len(b) || len(a) == 0 {
		return 0, false
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0, false
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb)), true
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
