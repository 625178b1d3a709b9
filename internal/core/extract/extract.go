package extract

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cespare/xxhash/v2"

	"filedex/internal/model"
)

// ErrExtractionFailed marks a file whose content could not be read or
// processed. The record is still indexed on metadata alone.
var ErrExtractionFailed = errors.New("extraction failed")

// digestLimit bounds how much content feeds the digest. Matching on the
// first 1 MiB is enough to correlate moved files without rereading large
// media end to end.
const digestLimit = 1 << 20

// maxTextBytes bounds how much extracted text is stored per file.
const maxTextBytes = 256 << 10

// Embedder turns extracted text into a dense vector. A nil Embedder
// disables the semantic side entirely.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Result is everything extraction contributes to a file record beyond
// filesystem metadata.
type Result struct {
	Category  model.Category
	Digest    string
	Text      string
	Embedding []float32
	Failed    bool
}

type Extractor struct {
	embedder Embedder
	timeout  time.Duration
	log      *slog.Logger
}

func New(embedder Embedder, timeout time.Duration, log *slog.Logger) *Extractor {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Extractor{embedder: embedder, timeout: timeout, log: log}
}

// Extract computes the digest, extracted text and embedding for one file.
// Failures degrade instead of aborting: a Result with Failed=true still
// carries whatever stages succeeded, and the caller indexes the metadata.
func (e *Extractor) Extract(ctx context.Context, path string) (Result, error) {
	if e == nil {
		return Result{}, fmt.Errorf("extractor is nil")
	}
	if strings.TrimSpace(path) == "" {
		return Result{}, fmt.Errorf("path is required")
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	res := Result{Category: model.CategoryForPath(path)}

	head, err := readHead(ctx, path, digestLimit)
	if err != nil {
		e.log.Warn("content read failed", "path", path, "error", err)
		res.Failed = true
		return res, fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}
	if len(head) > 0 {
		res.Digest = Digest(head)
	}

	if !isTextLike(res.Category, head) {
		return res, nil
	}

	text, err := readText(ctx, path)
	if err != nil {
		e.log.Warn("text extraction failed", "path", path, "error", err)
		res.Failed = true
		return res, fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}
	res.Text = text

	if e.embedder != nil && res.Text != "" {
		vec, err := e.embedder.Embed(ctx, embedInput(path, res.Text))
		if err != nil {
			// Missing embedding only drops the file from the semantic
			// stage; lexical search still covers it.
			e.log.Warn("embedding failed", "path", path, "error", err)
		} else {
			res.Embedding = vec
		}
	}
	return res, nil
}

// Digest hashes the leading content chunk. Empty content has no digest so
// two empty files never correlate.
func Digest(head []byte) string {
	if len(head) == 0 {
		return ""
	}
	sum := xxhash.Sum64(head)
	var buf [8]byte
	for i := 0; i < 8; i++ {
		buf[i] = byte(sum >> (56 - 8*i))
	}
	return hex.EncodeToString(buf[:])
}

// DigestFile computes just the content digest, for correlation checks
// that do not need text or embeddings.
func DigestFile(path string) (string, error) {
	head, err := readHead(context.Background(), path, digestLimit)
	if err != nil {
		return "", err
	}
	return Digest(head), nil
}

// readHead reads up to limit bytes in bounded chunks, checking the context
// between chunks so a hung mount cannot stall the scan past the per-file
// timeout.
func readHead(ctx context.Context, path string, limit int64) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	const chunkSize = 64 << 10
	out := make([]byte, 0, chunkSize)
	chunk := make([]byte, chunkSize)
	var total int64
	for total < limit {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		want := int64(chunkSize)
		if remaining := limit - total; remaining < want {
			want = remaining
		}
		n, err := f.Read(chunk[:want])
		out = append(out, chunk[:n]...)
		total += int64(n)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func readText(ctx context.Context, path string) (string, error) {
	raw, err := readHead(ctx, path, maxTextBytes)
	if err != nil {
		return "", err
	}
	s := strings.ToValidUTF8(string(raw), "")
	s = strings.ReplaceAll(s, "\x00", "")
	return strings.TrimSpace(s), nil
}

// isTextLike decides whether the body is worth extracting. Category covers
// the common cases; the content sniff rescues extensionless text files and
// rejects binaries with text extensions.
func isTextLike(category model.Category, head []byte) bool {
	switch category {
	case model.CategoryImage, model.CategoryVideo, model.CategoryAudio, model.CategoryArchive:
		return false
	}
	if len(head) == 0 {
		return false
	}
	sample := head
	if len(sample) > 4096 {
		sample = sample[:4096]
	}
	var control int
	for _, b := range sample {
		if b == 0 {
			return false
		}
		if b < 0x09 {
			control++
		}
	}
	if control*10 > len(sample) {
		return false
	}
	return utf8.Valid(sample) || len(sample) == 4096
}

// embedInput prefixes the path so filename tokens contribute to the vector
// even when the body never mentions them.
func embedInput(path, text string) string {
	const budget = 8 << 10
	if len(text) > budget {
		text = text[:budget]
	}
	return path + "\n" + text
}
