package lexical

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/blevesearch/bleve/v2"
	_ "github.com/blevesearch/bleve/v2/analysis/analyzer/simple"
	"github.com/blevesearch/bleve/v2/mapping"

	"filedex/internal/index/store"
	"filedex/internal/model"
)

// Index is the derived inverted index over file names, paths and extracted
// text. One document per FileRecord, keyed by path; rebuilt incrementally
// whenever the owning record's text fields change.
type Index struct {
	path string
	idx  bleve.Index
}

func Open(path string) (*Index, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("index path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	var idx bleve.Index
	if _, err := os.Stat(filepath.Join(path, "index_meta.json")); err == nil {
		idx, err = bleve.Open(path)
		if err != nil {
			return nil, err
		}
	} else {
		var err error
		idx, err = bleve.New(path, buildMapping())
		if err != nil {
			return nil, err
		}
	}
	return &Index{path: path, idx: idx}, nil
}

func (x *Index) Close() error {
	if x == nil || x.idx == nil {
		return nil
	}
	return x.idx.Close()
}

// Upsert replaces the document for a record.
func (x *Index) Upsert(rec model.FileRecord) error {
	if x == nil || x.idx == nil {
		return fmt.Errorf("index is not open")
	}
	if strings.TrimSpace(rec.Path) == "" {
		return fmt.Errorf("path is required")
	}
	doc := map[string]any{
		"path":     rec.Path,
		"name":     rec.Name,
		"dir":      filepath.ToSlash(filepath.Dir(rec.Path)),
		"text":     rec.ExtractedText,
		"category": string(rec.Category),
	}
	return x.idx.Index(rec.Path, doc)
}

func (x *Index) Delete(path string) error {
	if x == nil || x.idx == nil {
		return fmt.Errorf("index is not open")
	}
	return x.idx.Delete(path)
}

// Rename moves a document to a new key without touching the extracted text.
func (x *Index) Rename(oldPath string, rec model.FileRecord) error {
	if err := x.Delete(oldPath); err != nil {
		return err
	}
	return x.Upsert(rec)
}

// Search runs the lexical stage query: filename term and prefix matches
// are boosted so that, for equal term frequency, a filename match ranks at
// least as high as a body-text match.
func (x *Index) Search(q string, limit int) ([]store.LexicalHit, error) {
	if x == nil || x.idx == nil {
		return nil, fmt.Errorf("index is not open")
	}
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, fmt.Errorf("query is required")
	}
	if limit <= 0 {
		limit = 10
	}

	nameQ := bleve.NewMatchQuery(q)
	nameQ.SetField("name")
	nameQ.SetBoost(2.0)

	prefixQ := bleve.NewPrefixQuery(strings.ToLower(q))
	prefixQ.SetField("name")
	prefixQ.SetBoost(1.5)

	dirQ := bleve.NewMatchQuery(q)
	dirQ.SetField("dir")
	dirQ.SetBoost(1.2)

	textQ := bleve.NewMatchQuery(q)
	textQ.SetField("text")

	query := bleve.NewDisjunctionQuery(nameQ, prefixQ, dirQ, textQ)

	req := bleve.NewSearchRequestOptions(query, limit, 0, false)
	req.Fields = []string{"path"}
	req.Highlight = bleve.NewHighlightWithStyle("html")
	req.Highlight.Fields = []string{"text"}

	res, err := x.idx.Search(req)
	if err != nil {
		return nil, err
	}

	maxScore := res.MaxScore
	out := make([]store.LexicalHit, 0, len(res.Hits))
	for _, hit := range res.Hits {
		h := store.LexicalHit{Path: hit.ID, Score: hit.Score}
		if maxScore > 0 {
			h.Score = hit.Score / maxScore
		}
		if hit.Fragments != nil {
			if frags := hit.Fragments["text"]; len(frags) > 0 {
				h.Snippet = normalizeSnippet(frags[0])
			}
		}
		out = append(out, h)
	}
	return out, nil
}

// CountDocs reports the number of indexed documents.
func (x *Index) CountDocs() (uint64, error) {
	if x == nil || x.idx == nil {
		return 0, fmt.Errorf("index is not open")
	}
	return x.idx.DocCount()
}

func buildMapping() mapping.IndexMapping {
	idxMapping := bleve.NewIndexMapping()
	idxMapping.DefaultAnalyzer = "standard"

	doc := bleve.NewDocumentMapping()
	doc.Dynamic = false

	keyword := bleve.NewTextFieldMapping()
	keyword.Analyzer = "keyword"
	keyword.Store = true
	keyword.Index = true
	keyword.DocValues = true

	text := bleve.NewTextFieldMapping()
	text.Analyzer = "standard"
	text.Store = true
	text.Index = true

	name := bleve.NewTextFieldMapping()
	name.Analyzer = "simple"
	name.Store = true
	name.Index = true

	doc.AddFieldMappingsAt("path", keyword)
	doc.AddFieldMappingsAt("name", name)
	doc.AddFieldMappingsAt("dir", text)
	doc.AddFieldMappingsAt("text", text)
	doc.AddFieldMappingsAt("category", keyword)

	idxMapping.DefaultMapping = doc
	return idxMapping
}

func normalizeSnippet(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	s = strings.ReplaceAll(s, "<mark>", "<<")
	s = strings.ReplaceAll(s, "</mark>", ">>")
	return s
}
