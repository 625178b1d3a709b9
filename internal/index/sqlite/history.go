package sqlite

import (
	"crypto/rand"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"filedex/internal/model"
)

// NewHistoryID returns a time-sortable id for a history record.
func NewHistoryID(at time.Time) string {
	return ulid.MustNew(ulid.Timestamp(at), rand.Reader).String()
}

// RecordDeletion appends a deletion history entry. Entries are immutable
// once written.
func (s *Store) RecordDeletion(dr model.DeletionRecord) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("store is not open")
	}
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if err := insertDeletionTx(tx, dr); err != nil {
		return err
	}
	return tx.Commit()
}

// RecordMovement appends a movement history entry.
func (s *Store) RecordMovement(mr model.MovementRecord) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("store is not open")
	}
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if err := insertMovementTx(tx, mr); err != nil {
		return err
	}
	return tx.Commit()
}

func insertDeletionTx(tx *sql.Tx, dr model.DeletionRecord) error {
	if strings.TrimSpace(dr.OriginalPath) == "" {
		return fmt.Errorf("original path is required")
	}
	if dr.DeletedAt.IsZero() {
		dr.DeletedAt = time.Now()
	}
	if dr.ID == "" {
		dr.ID = NewHistoryID(dr.DeletedAt)
	}
	if dr.Filename == "" {
		dr.Filename = filepath.Base(dr.OriginalPath)
	}
	if dr.Reason == "" {
		dr.Reason = model.ReasonUnknown
	}
	if dr.Category == "" {
		dr.Category = model.CategoryForPath(dr.OriginalPath)
	}

	_, err := tx.Exec(
		`INSERT INTO deleted_files (id, original_path, filename, size, category, digest, reason, deleted_at, recoverable, backup_path)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		dr.ID,
		dr.OriginalPath,
		dr.Filename,
		dr.SizeBytes,
		string(dr.Category),
		dr.ContentDigest,
		string(dr.Reason),
		dr.DeletedAt.Unix(),
		boolToInt(dr.Recoverable),
		dr.BackupPath,
	)
	return err
}

func insertMovementTx(tx *sql.Tx, mr model.MovementRecord) error {
	if strings.TrimSpace(mr.OriginalPath) == "" || strings.TrimSpace(mr.NewPath) == "" {
		return fmt.Errorf("original and new paths are required")
	}
	if mr.MovedAt.IsZero() {
		mr.MovedAt = time.Now()
	}
	if mr.ID == "" {
		mr.ID = NewHistoryID(mr.MovedAt)
	}
	if mr.Filename == "" {
		mr.Filename = filepath.Base(mr.OriginalPath)
	}
	if mr.MovementType == "" {
		mr.MovementType = model.MoveUnknown
	}

	_, err := tx.Exec(
		`INSERT INTO file_movements (id, original_path, new_path, filename, size, movement_type, reason, moved_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		mr.ID,
		mr.OriginalPath,
		mr.NewPath,
		mr.Filename,
		mr.SizeBytes,
		string(mr.MovementType),
		mr.Reason,
		mr.MovedAt.Unix(),
	)
	return err
}

// RecentDeletions lists deletion history entries, newest first.
func (s *Store) RecentDeletions(limit int) ([]model.DeletionRecord, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("store is not open")
	}
	if limit <= 0 {
		limit = 10
	}
	return s.queryDeletions(
		`SELECT id, original_path, filename, size, category, digest, reason, deleted_at, recoverable, backup_path
		 FROM deleted_files ORDER BY deleted_at DESC, id DESC LIMIT ?`, limit,
	)
}

// RecentMovements lists movement history entries, newest first.
func (s *Store) RecentMovements(limit int) ([]model.MovementRecord, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("store is not open")
	}
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.Query(
		`SELECT id, original_path, new_path, filename, size, movement_type, reason, moved_at
		 FROM file_movements ORDER BY moved_at DESC, id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.MovementRecord
	for rows.Next() {
		var mr model.MovementRecord
		var movedAt int64
		var movementType string
		if err := rows.Scan(&mr.ID, &mr.OriginalPath, &mr.NewPath, &mr.Filename, &mr.SizeBytes, &movementType, &mr.Reason, &movedAt); err != nil {
			return nil, err
		}
		mr.MovementType = model.MovementType(movementType)
		mr.MovedAt = time.Unix(movedAt, 0)
		out = append(out, mr)
	}
	return out, rows.Err()
}

// SearchDeleted finds deletion entries whose filename or original path
// contains the query, restricted to the last daysBack days.
func (s *Store) SearchDeleted(query string, daysBack int) ([]model.DeletionRecord, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("store is not open")
	}
	if daysBack <= 0 {
		daysBack = 30
	}
	cutoff := time.Now().AddDate(0, 0, -daysBack).Unix()

	query = strings.TrimSpace(query)
	if query == "" {
		return s.queryDeletions(
			`SELECT id, original_path, filename, size, category, digest, reason, deleted_at, recoverable, backup_path
			 FROM deleted_files WHERE deleted_at >= ? ORDER BY deleted_at DESC, id DESC`, cutoff,
		)
	}

	like := "%" + escapeLike(query) + "%"
	return s.queryDeletions(
		`SELECT id, original_path, filename, size, category, digest, reason, deleted_at, recoverable, backup_path
		 FROM deleted_files
		 WHERE (filename LIKE ? ESCAPE '\' OR original_path LIKE ? ESCAPE '\') AND deleted_at >= ?
		 ORDER BY deleted_at DESC, id DESC`,
		like, like, cutoff,
	)
}

// DeletionStats summarizes the history tables.
func (s *Store) DeletionStats() (model.DeletionStats, error) {
	if s == nil || s.db == nil {
		return model.DeletionStats{}, fmt.Errorf("store is not open")
	}

	var st model.DeletionStats
	if err := s.db.QueryRow(`SELECT COUNT(1) FROM deleted_files`).Scan(&st.TotalDeleted); err != nil {
		return model.DeletionStats{}, err
	}

	dayStart := time.Now().Truncate(24 * time.Hour).Unix()
	if err := s.db.QueryRow(`SELECT COUNT(1) FROM deleted_files WHERE deleted_at >= ?`, dayStart).Scan(&st.DeletedToday); err != nil {
		return model.DeletionStats{}, err
	}
	if err := s.db.QueryRow(`SELECT COUNT(1) FROM deleted_files WHERE recoverable = 1`).Scan(&st.Recoverable); err != nil {
		return model.DeletionStats{}, err
	}
	if err := s.db.QueryRow(`SELECT COUNT(1) FROM file_movements`).Scan(&st.TotalMovements); err != nil {
		return model.DeletionStats{}, err
	}

	rows, err := s.db.Query(`SELECT category, COUNT(1) FROM deleted_files GROUP BY category`)
	if err != nil {
		return model.DeletionStats{}, err
	}
	defer rows.Close()

	st.ByCategory = map[model.Category]int{}
	for rows.Next() {
		var category string
		var n int
		if err := rows.Scan(&category, &n); err != nil {
			return model.DeletionStats{}, err
		}
		st.ByCategory[model.Category(category)] = n
	}
	return st, rows.Err()
}

// PruneHistory removes history entries older than the retention cutoff and
// returns how many were dropped.
func (s *Store) PruneHistory(before time.Time) (int64, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("store is not open")
	}
	cutoff := before.Unix()

	var total int64
	res, err := s.db.Exec(`DELETE FROM deleted_files WHERE deleted_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	if n, err := res.RowsAffected(); err == nil {
		total += n
	}
	res, err = s.db.Exec(`DELETE FROM file_movements WHERE moved_at < ?`, cutoff)
	if err != nil {
		return total, err
	}
	if n, err := res.RowsAffected(); err == nil {
		total += n
	}
	return total, nil
}

func (s *Store) queryDeletions(query string, args ...any) ([]model.DeletionRecord, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.DeletionRecord
	for rows.Next() {
		var dr model.DeletionRecord
		var deletedAt int64
		var category, reason string
		var recoverable int
		if err := rows.Scan(&dr.ID, &dr.OriginalPath, &dr.Filename, &dr.SizeBytes, &category, &dr.ContentDigest, &reason, &deletedAt, &recoverable, &dr.BackupPath); err != nil {
			return nil, err
		}
		dr.Category = model.Category(category)
		dr.Reason = model.DeletionReason(reason)
		dr.DeletedAt = time.Unix(deletedAt, 0)
		dr.Recoverable = recoverable != 0
		out = append(out, dr)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
