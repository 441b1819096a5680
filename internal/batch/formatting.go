package batch

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/MeKo-Tech/imas/internal/pipeline"
)

// formatBatchResults formats the batch results in the specified format.
func formatBatchResults(r *Result, format string) (string, error) {
	switch strings.ToLower(format) {
	case pipeline.FormatJSON:
		return formatJSON(r)
	case pipeline.FormatCSV:
		return formatCSV(r)
	case pipeline.FormatText, "":
		return formatText(r), nil
	default:
		return "", fmt.Errorf("unsupported format %q", format)
	}
}

// formatJSON formats results as indented JSON.
func formatJSON(r *Result) (string, error) {
	bts, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(bts) + "\n", nil
}

// csvHeader names the columns of the csv format.
var csvHeader = []string{"rank", "file", "matches", "raw_matches", "model", "generalized_keypoints", "overlay", "error"}

// formatCSV formats results as CSV, one row per target.
func formatCSV(r *Result) (string, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(csvHeader); err != nil {
		return "", err
	}
	for i, e := range r.Entries {
		row := []string{
			strconv.Itoa(i + 1),
			e.File,
			strconv.Itoa(e.Matches),
			strconv.Itoa(e.RawMatches),
			e.Model,
			strconv.Itoa(e.Generalized),
			e.Overlay,
			e.Error,
		}
		if err := w.Write(row); err != nil {
			return "", err
		}
	}
	w.Flush()
	return buf.String(), w.Error()
}

// formatText writes a ranked table. Failed targets are listed as comments.
func formatText(r *Result) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# reference: %s\n", r.Reference)
	sb.WriteString("# rank matches raw model file\n")
	for i, e := range r.Entries {
		if e.Failed() {
			fmt.Fprintf(&sb, "# %s: %s\n", e.File, e.Error)
			continue
		}
		model := e.Model
		if model == "" {
			model = "-"
		}
		fmt.Fprintf(&sb, "%d %d %d %s %s\n", i+1, e.Matches, e.RawMatches, model, e.File)
	}
	return sb.String()
}
