package fdxcli

import (
	"encoding/json"
	"fmt"
	"io"

	"filedex/internal/core/pipeline"
	"filedex/internal/model"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func renderHits(w io.Writer, resp pipeline.Response) {
	if len(resp.Hits) == 0 {
		fmt.Fprintln(w, "no results")
		return
	}
	for i, h := range resp.Hits {
		fmt.Fprintf(w, "%2d. %.3f  %s\n", i+1, h.Score, h.Path)
		if h.Snippet != "" {
			fmt.Fprintf(w, "      %s\n", h.Snippet)
		}
	}
	cached := ""
	if resp.Cached {
		cached = ", cached"
	}
	fmt.Fprintf(w, "%d results (%s, %dms%s)\n", len(resp.Hits), resp.Method, resp.ElapsedMS, cached)
}

func renderFiles(w io.Writer, files []model.FileRecord) {
	if len(files) == 0 {
		fmt.Fprintln(w, "no files")
		return
	}
	for _, f := range files {
		fmt.Fprintf(w, "%s  %-8s  %s  %s\n",
			f.ModifiedTime.Format("2006-01-02 15:04"), f.Category, humanSize(f.SizeBytes), f.Path)
	}
}

func renderDeletions(w io.Writer, records []model.DeletionRecord) {
	if len(records) == 0 {
		fmt.Fprintln(w, "no deletions recorded")
		return
	}
	for _, d := range records {
		marker := " "
		if d.Recoverable {
			marker = "R"
		}
		fmt.Fprintf(w, "%s %s  %-11s  %s\n",
			marker, d.DeletedAt.Format("2006-01-02 15:04"), d.Reason, d.OriginalPath)
	}
}

func renderMovements(w io.Writer, records []model.MovementRecord) {
	if len(records) == 0 {
		fmt.Fprintln(w, "no movements recorded")
		return
	}
	for _, m := range records {
		fmt.Fprintf(w, "%s  %-10s  %s -> %s\n",
			m.MovedAt.Format("2006-01-02 15:04"), m.MovementType, m.OriginalPath, m.NewPath)
	}
}

func renderDeletionStats(w io.Writer, st model.DeletionStats) {
	fmt.Fprintf(w, "total deleted:   %d\n", st.TotalDeleted)
	fmt.Fprintf(w, "deleted today:   %d\n", st.DeletedToday)
	fmt.Fprintf(w, "recoverable:     %d\n", st.Recoverable)
	fmt.Fprintf(w, "total movements: %d\n", st.TotalMovements)
	if len(st.ByCategory) > 0 {
		fmt.Fprintln(w, "by category:")
		for cat, n := range st.ByCategory {
			fmt.Fprintf(w, "  %-10s %d\n", cat, n)
		}
	}
}

func humanSize(n int64) string {
	switch {
	case n >= 1<<30:
		return fmt.Sprintf("%.1fGiB", float64(n)/(1<<30))
	case n >= 1<<20:
		return fmt.Sprintf("%.1fMiB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1fKiB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%dB", n)
	}
}
