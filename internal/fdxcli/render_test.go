package fdxcli

import (
	"strings"
	"testing"
	"time"

	"filedex/internal/core/pipeline"
	"filedex/internal/model"
)

func TestRenderHits(t *testing.T) {
	var sb strings.Builder
	renderHits(&sb, pipeline.Response{
		Hits: []model.Hit{
			{Path: "/docs/a.txt", Name: "a.txt", Score: 0.91, Snippet: "found <<here>>"},
			{Path: "/docs/b.txt", Name: "b.txt", Score: 0.42},
		},
		Method:    model.MethodHybrid,
		ElapsedMS: 12,
	})
	out := sb.String()
	if !strings.Contains(out, "/docs/a.txt") || !strings.Contains(out, "found <<here>>") {
		t.Fatalf("out=%q", out)
	}
	if !strings.Contains(out, "2 results (hybrid, 12ms)") {
		t.Fatalf("out=%q", out)
	}
}

func TestRenderHitsEmpty(t *testing.T) {
	var sb strings.Builder
	renderHits(&sb, pipeline.Response{})
	if !strings.Contains(sb.String(), "no results") {
		t.Fatalf("out=%q", sb.String())
	}
}

func TestRenderMovements(t *testing.T) {
	var sb strings.Builder
	renderMovements(&sb, []model.MovementRecord{{
		OriginalPath: "/a/x.pdf",
		NewPath:      "/b/x.pdf",
		MovementType: model.MoveArchive,
		MovedAt:      time.Date(2026, 2, 1, 9, 30, 0, 0, time.UTC),
	}})
	out := sb.String()
	if !strings.Contains(out, "/a/x.pdf -> /b/x.pdf") || !strings.Contains(out, "archive") {
		t.Fatalf("out=%q", out)
	}
}

func TestHumanSize(t *testing.T) {
	cases := map[int64]string{
		512:     "512B",
		2 << 10: "2.0KiB",
		3 << 20: "3.0MiB",
		5 << 30: "5.0GiB",
	}
	for n, want := range cases {
		if got := humanSize(n); got != want {
			t.Fatalf("humanSize(%d)=%q want %q", n, got, want)
		}
	}
}

func TestRootCommandTree(t *testing.T) {
	root := NewRootCmd()
	want := []string{"search", "recent", "deleted", "moved", "report", "scan", "status"}
	for _, name := range want {
		found := false
		for _, c := range root.Commands() {
			if c.Name() == name {
				found = true
				break
			}
		}
		if !found {
			t.Fatalf("missing subcommand %q", name)
		}
	}
}
