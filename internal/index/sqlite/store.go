package sqlite

import (
	"database/sql"
	_ "embed"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"filedex/internal/index/store"
	"filedex/internal/model"
)

//go:embed schema.sql
var schemaSQL string

// Store holds file records, embeddings and the deletion/movement history
// in a single SQLite database. The lexical inverted index lives beside it
// (internal/index/lexical); the meta facade keeps the two in step.
type Store struct {
	db *sql.DB
}

func Open(dbPath string) (*Store, error) {
	if strings.TrimSpace(dbPath) == "" {
		return nil, fmt.Errorf("dbPath is required")
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	s := &Store{db: db}
	if err := s.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping reports whether the database is reachable.
func (s *Store) Ping() error {
	if s == nil || s.db == nil {
		return fmt.Errorf("store is not open")
	}
	return s.db.Ping()
}

func (s *Store) init() error {
	if _, err := s.db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return err
	}
	if _, err := s.db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		return err
	}
	_, _ = s.db.Exec("PRAGMA journal_mode = WAL")
	_, _ = s.db.Exec("PRAGMA synchronous = NORMAL")

	return execStatements(s.db, schemaSQL)
}

// UpsertFile writes the file row and its embedding in one transaction.
// A nil embedding leaves any previous embedding row untouched; the caller
// clears it explicitly via DeleteEmbedding when re-extraction lost it.
func (s *Store) UpsertFile(rec model.FileRecord) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("store is not open")
	}
	rec.Path = filepath.Clean(rec.Path)
	if strings.TrimSpace(rec.Path) == "" {
		return fmt.Errorf("path is required")
	}
	if rec.Name == "" {
		rec.Name = filepath.Base(rec.Path)
	}
	if rec.Category == "" {
		rec.Category = model.CategoryForPath(rec.Path)
	}
	if rec.LastIndexedAt.IsZero() {
		rec.LastIndexedAt = time.Now()
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(
		`INSERT INTO files (path, name, extension, size, mtime, ctime, category, digest, text, indexed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET
		   name=excluded.name,
		   extension=excluded.extension,
		   size=excluded.size,
		   mtime=excluded.mtime,
		   ctime=excluded.ctime,
		   category=excluded.category,
		   digest=excluded.digest,
		   text=excluded.text,
		   indexed_at=excluded.indexed_at`,
		rec.Path,
		rec.Name,
		strings.ToLower(rec.Extension),
		rec.SizeBytes,
		rec.ModifiedTime.Unix(),
		unixOrZero(rec.CreatedTime),
		string(rec.Category),
		rec.ContentDigest,
		rec.ExtractedText,
		rec.LastIndexedAt.Unix(),
	); err != nil {
		return err
	}

	if len(rec.Embedding) > 0 {
		if _, err := tx.Exec(
			`INSERT INTO embeddings (path, dim, vector, created_at)
			 VALUES (?, ?, ?, ?)
			 ON CONFLICT(path) DO UPDATE SET
			   dim=excluded.dim,
			   vector=excluded.vector,
			   created_at=excluded.created_at`,
			rec.Path,
			len(rec.Embedding),
			encodeVector(rec.Embedding),
			time.Now().Unix(),
		); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *Store) GetByPath(path string) (model.FileRecord, error) {
	if s == nil || s.db == nil {
		return model.FileRecord{}, fmt.Errorf("store is not open")
	}
	path = filepath.Clean(path)
	if strings.TrimSpace(path) == "" {
		return model.FileRecord{}, fmt.Errorf("path is required")
	}

	var rec model.FileRecord
	var mtime, ctime, indexedAt int64
	var category string
	err := s.db.QueryRow(
		`SELECT path, name, extension, size, mtime, ctime, category, digest, text, indexed_at
		 FROM files WHERE path = ?`, path,
	).Scan(&rec.Path, &rec.Name, &rec.Extension, &rec.SizeBytes, &mtime, &ctime, &category, &rec.ContentDigest, &rec.ExtractedText, &indexedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.FileRecord{}, store.ErrNotFound
	}
	if err != nil {
		return model.FileRecord{}, err
	}
	rec.ModifiedTime = time.Unix(mtime, 0)
	if ctime > 0 {
		rec.CreatedTime = time.Unix(ctime, 0)
	}
	rec.Category = model.Category(category)
	rec.LastIndexedAt = time.Unix(indexedAt, 0)

	if v, dim, err := s.getEmbedding(rec.Path); err == nil && dim > 0 {
		rec.Embedding = v
	}
	return rec, nil
}

// DeleteFile removes the file row and its embedding, returning the record
// that was removed. The caller is responsible for history bookkeeping.
func (s *Store) DeleteFile(path string) (model.FileRecord, error) {
	rec, err := s.GetByPath(path)
	if err != nil {
		return model.FileRecord{}, err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return model.FileRecord{}, err
	}
	defer func() { _ = tx.Rollback() }()

	if err := deleteFileTx(tx, rec.Path); err != nil {
		return model.FileRecord{}, err
	}
	if err := tx.Commit(); err != nil {
		return model.FileRecord{}, err
	}
	return rec, nil
}

// DeleteWithHistory removes the file row and appends the deletion record
// in the same transaction, so the record and history entry never diverge.
func (s *Store) DeleteWithHistory(path string, dr model.DeletionRecord) (model.FileRecord, error) {
	rec, err := s.GetByPath(path)
	if err != nil {
		return model.FileRecord{}, err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return model.FileRecord{}, err
	}
	defer func() { _ = tx.Rollback() }()

	if err := deleteFileTx(tx, rec.Path); err != nil {
		return model.FileRecord{}, err
	}
	if err := insertDeletionTx(tx, dr); err != nil {
		return model.FileRecord{}, err
	}
	if err := tx.Commit(); err != nil {
		return model.FileRecord{}, err
	}
	return rec, nil
}

// RenameWithHistory updates the record's path in place (a rename, not a
// delete-then-create) and appends the movement record atomically.
func (s *Store) RenameWithHistory(oldPath, newPath string, mr model.MovementRecord) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("store is not open")
	}
	oldPath = filepath.Clean(oldPath)
	newPath = filepath.Clean(newPath)
	if strings.TrimSpace(oldPath) == "" || strings.TrimSpace(newPath) == "" {
		return fmt.Errorf("oldPath and newPath are required")
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.Exec(
		`UPDATE files SET path = ?, name = ?, indexed_at = ? WHERE path = ?`,
		newPath, filepath.Base(newPath), time.Now().Unix(), oldPath,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	if _, err := tx.Exec(`UPDATE embeddings SET path = ? WHERE path = ?`, newPath, oldPath); err != nil {
		return err
	}
	if err := insertMovementTx(tx, mr); err != nil {
		return err
	}
	return tx.Commit()
}

// ListUnder returns change-detection metadata for every live record whose
// path sits under one of the given directories.
func (s *Store) ListUnder(dirs []string) (map[string]store.Meta, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("store is not open")
	}

	out := map[string]store.Meta{}
	for _, dir := range dirs {
		dir = filepath.Clean(dir)
		if strings.TrimSpace(dir) == "" {
			continue
		}
		prefix := dir + string(filepath.Separator)
		rows, err := s.db.Query(
			`SELECT path, name, size, mtime, digest, category FROM files
			 WHERE path = ? OR path LIKE ? ESCAPE '\'`,
			dir, escapeLike(prefix)+"%",
		)
		if err != nil {
			return nil, err
		}
		for rows.Next() {
			var m store.Meta
			var category string
			if err := rows.Scan(&m.Path, &m.Name, &m.SizeBytes, &m.MTime, &m.Digest, &category); err != nil {
				_ = rows.Close()
				return nil, err
			}
			m.Category = model.Category(category)
			out[m.Path] = m
		}
		if err := rows.Err(); err != nil {
			_ = rows.Close()
			return nil, err
		}
		_ = rows.Close()
	}
	return out, nil
}

func (s *Store) CountFiles() (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("store is not open")
	}
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(1) FROM files`).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// StatsByCategory aggregates count and total bytes per category over live
// records.
func (s *Store) StatsByCategory() (map[model.Category]model.CategoryStat, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("store is not open")
	}
	rows, err := s.db.Query(`SELECT category, COUNT(1), COALESCE(SUM(size), 0) FROM files GROUP BY category`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[model.Category]model.CategoryStat{}
	for rows.Next() {
		var category string
		var st model.CategoryStat
		if err := rows.Scan(&category, &st.Count, &st.TotalBytes); err != nil {
			return nil, err
		}
		out[model.Category(category)] = st
	}
	return out, rows.Err()
}

// Vacuum reclaims space after retention cleanup.
func (s *Store) Vacuum() error {
	if s == nil || s.db == nil {
		return fmt.Errorf("store is not open")
	}
	_, err := s.db.Exec("VACUUM")
	return err
}

func (s *Store) getEmbedding(path string) ([]float32, int, error) {
	var dim int
	var blob []byte
	err := s.db.QueryRow(`SELECT dim, vector FROM embeddings WHERE path = ?`, path).Scan(&dim, &blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, err
	}
	return decodeVector(blob, dim), dim, nil
}

// DeleteEmbedding drops the embedding row for a path whose re-extraction
// no longer yields one.
func (s *Store) DeleteEmbedding(path string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("store is not open")
	}
	_, err := s.db.Exec(`DELETE FROM embeddings WHERE path = ?`, filepath.Clean(path))
	return err
}

func deleteFileTx(tx *sql.Tx, path string) error {
	if _, err := tx.Exec(`DELETE FROM embeddings WHERE path = ?`, path); err != nil {
		return err
	}
	res, err := tx.Exec(`DELETE FROM files WHERE path = ?`, path)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(blob []byte, dim int) []float32 {
	if dim <= 0 || len(blob) < dim*4 {
		return nil
	}
	out := make([]float32, dim)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return out
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}

func execStatements(db *sql.DB, sqlText string) error {
	if db == nil {
		return fmt.Errorf("db is nil")
	}
	sqlText = strings.ReplaceAll(sqlText, "\r\n", "\n")

	var cleaned strings.Builder
	for _, line := range strings.Split(sqlText, "\n") {
		trim := strings.TrimSpace(line)
		if trim == "" {
			continue
		}
		if strings.HasPrefix(trim, "--") {
			continue
		}
		cleaned.WriteString(line)
		cleaned.WriteString("\n")
	}

	parts := strings.Split(cleaned.String(), ";")
	for _, raw := range parts {
		stmt := strings.TrimSpace(raw)
		if stmt == "" {
			continue
		}
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt, err)
		}
	}
	return nil
}
