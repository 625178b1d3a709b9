package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// ErrCollaboratorUnavailable means the model endpoint could not be reached
// or kept failing after retries. Callers degrade rather than propagate.
var ErrCollaboratorUnavailable = errors.New("model endpoint unavailable")

const (
	defaultTimeout = 30 * time.Second
	maxAttempts    = 3
	baseBackoff    = 500 * time.Millisecond
)

// Client talks to an Ollama-compatible endpoint for embeddings and rerank
// scoring. Transient failures are retried with exponential backoff.
type Client struct {
	baseURL    string
	embedModel string
	chatModel  string
	http       *http.Client
	log        *slog.Logger
}

type Options struct {
	BaseURL    string
	EmbedModel string
	ChatModel  string
	Timeout    time.Duration
	Logger     *slog.Logger
}

func New(opts Options) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("base url is required")
	}
	if strings.TrimSpace(opts.EmbedModel) == "" {
		return nil, fmt.Errorf("embed model is required")
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	chat := strings.TrimSpace(opts.ChatModel)
	if chat == "" {
		chat = opts.EmbedModel
	}
	return &Client{
		baseURL:    base,
		embedModel: opts.EmbedModel,
		chatModel:  chat,
		http:       &http.Client{Timeout: timeout},
		log:        log,
	}, nil
}

type embedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embedResponse struct {
	Embedding []float64 `json:"embedding"`
}

// Embed returns the dense vector for the given text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if c == nil {
		return nil, ErrCollaboratorUnavailable
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("text is required")
	}

	var resp embedResponse
	err := c.post(ctx, "/api/embeddings", embedRequest{Model: c.embedModel, Prompt: text}, &resp)
	if err != nil {
		return nil, err
	}
	if len(resp.Embedding) == 0 {
		return nil, fmt.Errorf("%w: empty embedding", ErrCollaboratorUnavailable)
	}
	vec := make([]float32, len(resp.Embedding))
	for i, v := range resp.Embedding {
		vec[i] = float32(v)
	}
	return vec, nil
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
}

// Score asks the chat model to rate how relevant a document is to the
// query, on a 0..10 scale, and returns it normalized into [0,1].
func (c *Client) Score(ctx context.Context, query, name, snippet string) (float64, error) {
	if c == nil {
		return 0, ErrCollaboratorUnavailable
	}
	prompt := fmt.Sprintf(
		"Rate from 0 to 10 how relevant this file is to the query.\nQuery: %s\nFile name: %s\nExcerpt: %s\nAnswer with a single number.",
		query, name, snippet,
	)

	var resp generateResponse
	err := c.post(ctx, "/api/generate", generateRequest{Model: c.chatModel, Prompt: prompt}, &resp)
	if err != nil {
		return 0, err
	}
	score, ok := parseScore(resp.Response)
	if !ok {
		return 0, fmt.Errorf("unparseable score %q", resp.Response)
	}
	return score / 10, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			wait := baseBackoff << (attempt - 1)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = err
			c.log.Debug("model request failed", "path", path, "attempt", attempt+1, "error", err)
			continue
		}

		data, readErr := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
		resp.Body.Close()
		if readErr != nil {
			lastErr = readErr
			continue
		}
		if resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("status %d", resp.StatusCode)
			continue
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("%w: status %d: %s", ErrCollaboratorUnavailable, resp.StatusCode, strings.TrimSpace(string(data)))
		}
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}
	return fmt.Errorf("%w: %v", ErrCollaboratorUnavailable, lastErr)
}

// parseScore pulls the first number out of a model reply.
func parseScore(s string) (float64, bool) {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return (r < '0' || r > '9') && r != '.' && r != '-'
	})
	for _, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			continue
		}
		if v < 0 {
			v = 0
		}
		if v > 10 {
			v = 10
		}
		return v, true
	}
	return 0, false
}
