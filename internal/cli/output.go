// Package cli formats docrag command output as text or JSON.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/hyperjump/docrag/internal/failure"
	"github.com/hyperjump/docrag/internal/indexer"
	"github.com/hyperjump/docrag/internal/models"
	"github.com/hyperjump/docrag/internal/tasks"
	"github.com/hyperjump/docrag/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseFormat maps a flag value to an OutputFormat.
func ParseFormat(s string) (OutputFormat, error) {
	switch OutputFormat(s) {
	case OutputText, "":
		return OutputText, nil
	case OutputJSON:
		return OutputJSON, nil
	}
	return "", fmt.Errorf("unknown output format %q (supported: text, json)", s)
}

// QueryOutput is what the query command prints.
type QueryOutput struct {
	Query     string       `json:"query"`
	ProjectID string       `json:"project_id"`
	Hits      []models.Hit `json:"hits"`
	TookMs    int64        `json:"took_ms"`
}

// WriteQuery writes query hits to w.
func WriteQuery(w io.Writer, out QueryOutput, format OutputFormat) error {
	if format == OutputJSON {
		if out.Hits == nil {
			out.Hits = []models.Hit{}
		}
		return writeJSON(w, out)
	}
	fmt.Fprintf(w, "\n%d chunks from project %s in %dms\n\n", len(out.Hits), out.ProjectID, out.TookMs)
	for _, h := range out.Hits {
		fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
		fmt.Fprintf(w, "Rank: %d | Score: %.4f | %s", h.Rank, h.Score, h.Chunk.SourceTag)
		if h.Chunk.ResourceID != "" {
			fmt.Fprintf(w, " | resource %s", h.Chunk.ResourceID)
		}
		fmt.Fprintf(w, "\n\n%s\n\n", utils.Preview(h.Chunk.Text, 300))
	}
	return nil
}

// OutcomeOutput is the JSON form of a task outcome.
type OutcomeOutput struct {
	ResourceID string        `json:"resource_id"`
	Path       string        `json:"path,omitempty"`
	Status     models.Status `json:"status"`
	Chunks     int           `json:"chunks"`
	Kind       string        `json:"kind,omitempty"`
	Error      string        `json:"error,omitempty"`
}

// NewOutcomeOutput converts a task outcome for printing.
func NewOutcomeOutput(o tasks.Outcome, path string) OutcomeOutput {
	out := OutcomeOutput{ResourceID: o.ResourceID, Path: path, Status: o.Status, Chunks: o.Chunks}
	if o.Kind != failure.None {
		out.Kind = string(o.Kind)
	}
	if o.Err != nil {
		out.Error = o.Err.Error()
	}
	return out
}

// WriteOutcomes writes ingestion outcomes to w.
func WriteOutcomes(w io.Writer, outs []OutcomeOutput, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, outs)
	}
	for _, o := range outs {
		name := o.Path
		if name == "" {
			name = o.ResourceID
		}
		if o.Status == models.StatusComplete {
			fmt.Fprintf(w, "ok      %s (%d chunks, resource %s)\n", name, o.Chunks, o.ResourceID)
			continue
		}
		fmt.Fprintf(w, "failed  %s: %s", name, o.Kind)
		if o.Error != "" {
			fmt.Fprintf(w, ": %s", o.Error)
		}
		fmt.Fprintln(w)
	}
	return nil
}

// StatusOutput is what the status command prints.
type StatusOutput struct {
	Projects  []indexer.ProjectStats   `json:"projects"`
	Resources map[models.Status]int64 `json:"resources"`
	DiskBytes int64                   `json:"disk_bytes"`
}

// WriteStatus writes index and ledger status to w.
func WriteStatus(w io.Writer, st StatusOutput, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, st)
	}
	fmt.Fprintf(w, "Projects: %d (%s on disk)\n", len(st.Projects), FormatBytes(st.DiskBytes))
	for _, p := range st.Projects {
		fmt.Fprintf(w, "  %-24s %6d chunks  %4d resources  rev %-4d %s  %s\n",
			p.Project, p.Chunks, p.Resources, p.Revision, p.IndexType, FormatBytes(p.DiskBytes))
	}
	statuses := make([]string, 0, len(st.Resources))
	for s := range st.Resources {
		statuses = append(statuses, string(s))
	}
	sort.Strings(statuses)
	fmt.Fprintln(w, "Resources:")
	for _, s := range statuses {
		fmt.Fprintf(w, "  %-12s %d\n", s, st.Resources[models.Status(s)])
	}
	return nil
}

// FormatBytes renders n with a binary unit suffix.
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
