package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := New(Options{BaseURL: srv.URL, EmbedModel: "nomic-embed-text", Timeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestEmbed(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embeddings" {
			t.Fatalf("path=%s", r.URL.Path)
		}
		var req embedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if req.Model != "nomic-embed-text" || req.Prompt == "" {
			t.Fatalf("req=%+v", req)
		}
		_ = json.NewEncoder(w).Encode(embedResponse{Embedding: []float64{0.25, -0.5}})
	}))

	vec, err := c.Embed(context.Background(), "budget report")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) != 2 || vec[0] != 0.25 || vec[1] != -0.5 {
		t.Fatalf("vec=%v", vec)
	}
}

func TestEmbedRetriesServerErrors(t *testing.T) {
	var calls atomic.Int64
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(embedResponse{Embedding: []float64{1}})
	}))

	vec, err := c.Embed(context.Background(), "x")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) != 1 || calls.Load() != 3 {
		t.Fatalf("vec=%v calls=%d", vec, calls.Load())
	}
}

func TestEmbedGivesUpAfterRetries(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))

	_, err := c.Embed(context.Background(), "x")
	if !errors.Is(err, ErrCollaboratorUnavailable) {
		t.Fatalf("err=%v", err)
	}
}

func TestEmbedClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int64
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))

	_, err := c.Embed(context.Background(), "x")
	if !errors.Is(err, ErrCollaboratorUnavailable) {
		t.Fatalf("err=%v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("calls=%d", calls.Load())
	}
}

func TestScore(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Fatalf("path=%s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(generateResponse{Response: "I'd say 8 out of 10."})
	}))

	score, err := c.Score(context.Background(), "tax forms", "w2-2024.pdf", "")
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if score != 0.8 {
		t.Fatalf("score=%v", score)
	}
}

func TestParseScore(t *testing.T) {
	cases := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"7", 7, true},
		{"Relevance: 9.5/10", 9.5, true},
		{"42", 10, true},
		{"no idea", 0, false},
	}
	for _, tc := range cases {
		got, ok := parseScore(tc.in)
		if ok != tc.ok || got != tc.want {
			t.Fatalf("parseScore(%q)=(%v,%v) want (%v,%v)", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestNewValidation(t *testing.T) {
	if _, err := New(Options{EmbedModel: "m"}); err == nil {
		t.Fatalf("expected base url error")
	}
	if _, err := New(Options{BaseURL: "http://localhost:11434"}); err == nil {
		t.Fatalf("expected model error")
	}
}
