package store

import (
	"errors"

	"filedex/internal/model"
)

// ErrNotFound is returned by point lookups for paths the store does not know.
var ErrNotFound = errors.New("not found")

// LexicalHit is one ranked inverted-index match.
type LexicalHit struct {
	Path    string
	Score   float64
	Snippet string
}

// SemanticHit is one ranked embedding-similarity match. Score is cosine
// similarity normalized into [0,1].
type SemanticHit struct {
	Path  string
	Score float64
}

// Meta is the subset of a FileRecord the indexer needs for change
// detection and move correlation.
type Meta struct {
	Path      string
	Name      string
	SizeBytes int64
	MTime     int64
	Digest    string
	Category  model.Category
}
