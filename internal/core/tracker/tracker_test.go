package tracker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"filedex/internal/model"
)

var now = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func TestResolveDigestMatch(t *testing.T) {
	tr := New(2*time.Minute, nil)

	res := tr.Resolve(
		[]Vanished{{Path: "/home/u/docs/report.pdf", Name: "report.pdf", SizeBytes: 100, Digest: "abc"}},
		[]Appeared{{Path: "/home/u/archive/report.pdf", Name: "report.pdf", SizeBytes: 100, Digest: "abc", ModTime: now}},
		now, model.ReasonUnknown,
	)
	require.Len(t, res.Movements, 1)
	require.Empty(t, res.Deletions)
	require.Equal(t, "/home/u/archive/report.pdf", res.Movements[0].NewPath)
	require.Equal(t, model.MoveArchive, res.Movements[0].MovementType)
	require.True(t, res.Claimed["/home/u/archive/report.pdf"])
}

func TestResolveDigestBeatsNameSize(t *testing.T) {
	tr := New(2*time.Minute, nil)

	// The renamed copy shares the digest; the impostor shares name+size.
	res := tr.Resolve(
		[]Vanished{{Path: "/a/data.csv", Name: "data.csv", SizeBytes: 50, Digest: "d1"}},
		[]Appeared{
			{Path: "/b/data.csv", Name: "data.csv", SizeBytes: 50, Digest: "zz", ModTime: now},
			{Path: "/b/renamed.csv", Name: "renamed.csv", SizeBytes: 50, Digest: "d1", ModTime: now},
		},
		now, model.ReasonUnknown,
	)
	require.Len(t, res.Movements, 1)
	require.Equal(t, "/b/renamed.csv", res.Movements[0].NewPath)
}

func TestResolveNameSizeFallback(t *testing.T) {
	tr := New(2*time.Minute, nil)

	res := tr.Resolve(
		[]Vanished{{Path: "/a/photo.jpg", Name: "photo.jpg", SizeBytes: 2048, Category: model.CategoryImage}},
		[]Appeared{{Path: "/b/photo.jpg", Name: "photo.jpg", SizeBytes: 2048, ModTime: now}},
		now, model.ReasonUnknown,
	)
	require.Len(t, res.Movements, 1)
	require.Equal(t, model.MoveReorganize, res.Movements[0].MovementType)
}

func TestResolveAmbiguousNameSizeRecordsDeletion(t *testing.T) {
	tr := New(2*time.Minute, nil)

	res := tr.Resolve(
		[]Vanished{{Path: "/a/readme.md", Name: "readme.md", SizeBytes: 10}},
		[]Appeared{
			{Path: "/b/readme.md", Name: "readme.md", SizeBytes: 10, ModTime: now},
			{Path: "/c/readme.md", Name: "readme.md", SizeBytes: 10, ModTime: now},
		},
		now, model.ReasonUserAction,
	)
	require.Empty(t, res.Movements)
	require.Len(t, res.Deletions, 1)
	require.Equal(t, model.ReasonUserAction, res.Deletions[0].Reason)
}

func TestResolveOutsideWindowIsDeletion(t *testing.T) {
	tr := New(time.Minute, nil)

	// Discovered ten minutes ago: coincidental, not a destination.
	res := tr.Resolve(
		[]Vanished{{Path: "/a/f.txt", Name: "f.txt", SizeBytes: 5, Digest: "x"}},
		[]Appeared{{Path: "/b/f.txt", Name: "f.txt", SizeBytes: 5, Digest: "x", ModTime: now, SeenAt: now.Add(-10 * time.Minute)}},
		now, model.ReasonUnknown,
	)
	require.Empty(t, res.Movements)
	require.Len(t, res.Deletions, 1)
}

func TestResolveOldModTimeStillCorrelates(t *testing.T) {
	tr := New(2*time.Minute, nil)

	// A rename preserves mtime, so the destination's content can be far
	// older than the window. Discovery in the current pass is what counts.
	res := tr.Resolve(
		[]Vanished{{Path: "/data/report.pdf", Name: "report.pdf", SizeBytes: 900, Digest: "abc123"}},
		[]Appeared{{Path: "/data/archive/report.pdf", Name: "report.pdf", SizeBytes: 900, Digest: "abc123", ModTime: now.Add(-time.Hour)}},
		now, model.ReasonUnknown,
	)
	require.Len(t, res.Movements, 1)
	require.Empty(t, res.Deletions)
	require.Equal(t, model.MoveArchive, res.Movements[0].MovementType)
}

func TestResolveDeletionKeepsDigest(t *testing.T) {
	tr := New(2*time.Minute, nil)

	res := tr.Resolve(
		[]Vanished{
			{Path: "/a/kept.bin", Name: "kept.bin", SizeBytes: 80, Digest: "feed"},
			{Path: "/a/blank", Name: "blank", SizeBytes: 0, Digest: ""},
		},
		nil, now, model.ReasonUserAction,
	)
	require.Len(t, res.Deletions, 2)
	for _, d := range res.Deletions {
		switch d.OriginalPath {
		case "/a/kept.bin":
			require.Equal(t, "feed", d.ContentDigest)
			require.True(t, d.Recoverable)
		case "/a/blank":
			require.Empty(t, d.ContentDigest)
			require.False(t, d.Recoverable)
		}
	}
}

func TestResolveEmptyDigestNeverMatchesByDigest(t *testing.T) {
	tr := New(2*time.Minute, nil)

	res := tr.Resolve(
		[]Vanished{{Path: "/a/empty1", Name: "empty1", SizeBytes: 0, Digest: ""}},
		[]Appeared{{Path: "/b/empty2", Name: "empty2", SizeBytes: 0, Digest: "", ModTime: now}},
		now, model.ReasonUnknown,
	)
	require.Empty(t, res.Movements)
	require.Len(t, res.Deletions, 1)
}

func TestResolveDigestTieBreaks(t *testing.T) {
	tr := New(5*time.Minute, nil)

	// Same digest twice: same-name candidate wins.
	res := tr.Resolve(
		[]Vanished{{Path: "/a/dup.txt", Name: "dup.txt", SizeBytes: 7, Digest: "dd"}},
		[]Appeared{
			{Path: "/b/copy.txt", Name: "copy.txt", SizeBytes: 7, Digest: "dd", ModTime: now},
			{Path: "/b/dup.txt", Name: "dup.txt", SizeBytes: 7, Digest: "dd", ModTime: now.Add(-time.Minute)},
		},
		now, model.ReasonUnknown,
	)
	require.Len(t, res.Movements, 1)
	require.Equal(t, "/b/dup.txt", res.Movements[0].NewPath)

	// No name match: newest mtime wins.
	res = tr.Resolve(
		[]Vanished{{Path: "/a/dup.txt", Name: "dup.txt", SizeBytes: 7, Digest: "dd"}},
		[]Appeared{
			{Path: "/b/old.txt", Name: "old.txt", SizeBytes: 7, Digest: "dd", ModTime: now.Add(-time.Minute)},
			{Path: "/b/new.txt", Name: "new.txt", SizeBytes: 7, Digest: "dd", ModTime: now},
		},
		now, model.ReasonUnknown,
	)
	require.Len(t, res.Movements, 1)
	require.Equal(t, "/b/new.txt", res.Movements[0].NewPath)
}

func TestResolveOneDestinationPerVanished(t *testing.T) {
	tr := New(2*time.Minute, nil)

	res := tr.Resolve(
		[]Vanished{
			{Path: "/a/x.txt", Name: "x.txt", SizeBytes: 3, Digest: "h"},
			{Path: "/a/y.txt", Name: "y.txt", SizeBytes: 3, Digest: "h"},
		},
		[]Appeared{{Path: "/b/x.txt", Name: "x.txt", SizeBytes: 3, Digest: "h", ModTime: now}},
		now, model.ReasonUnknown,
	)
	require.Len(t, res.Movements, 1)
	require.Len(t, res.Deletions, 1)
	require.Equal(t, "/a/y.txt", res.Deletions[0].OriginalPath)
}

func TestInferMovementType(t *testing.T) {
	cases := []struct {
		oldPath, newPath string
		want             model.MovementType
	}{
		{"/h/doc.pdf", "/h/archives-2025/doc.pdf", model.MoveArchive},
		{"/h/doc.pdf", "/mnt/backup/doc.pdf", model.MoveBackup},
		{"/h/doc.pdf", "/h/tmp/doc.pdf", model.MoveReorganize},
		{"/h/doc.pdf", "/h/projects/doc.pdf", model.MoveReorganize},
		{"/h/doc.pdf", "/h/report.pdf", model.MoveUnknown},
	}
	for _, tc := range cases {
		got, _ := InferMovementType(tc.oldPath, tc.newPath)
		require.Equal(t, tc.want, got, "old=%s new=%s", tc.oldPath, tc.newPath)
	}
}
