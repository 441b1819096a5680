package pipeline

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/MeKo-Tech/imas/internal/matcher"
)

// Output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatCSV  = "csv"
)

// RecordHeader names the 14 fields of a match record.
var RecordHeader = []string{
	"x1", "y1", "scale1", "angle1", "tx1", "ty1", "theta1",
	"x2", "y2", "scale2", "angle2", "tx2", "ty2", "theta2",
}

// Format renders res in the named format.
func Format(res *MatchResult, format string) (string, error) {
	switch strings.ToLower(format) {
	case FormatText, "":
		return ToText(res)
	case FormatJSON:
		return ToJSON(res)
	case FormatCSV:
		return ToCSV(res)
	default:
		return "", fmt.Errorf("unsupported format %q", format)
	}
}

// ToText writes one line of 14 space-separated fields per match.
func ToText(res *MatchResult) (string, error) {
	if res == nil {
		return "", errors.New("nil result")
	}
	var sb strings.Builder
	for _, m := range res.Matches {
		for i, v := range m.Record() {
			if i > 0 {
				sb.WriteByte(' ')
			}
			sb.WriteString(formatField(v))
		}
		sb.WriteByte('\n')
	}
	return sb.String(), nil
}

// matchJSON is the wire form of a MatchResult: records instead of raw keypoints.
type matchJSON struct {
	*MatchResult
	Matches [][matcher.RecordLen]float64 `json:"matches"`
}

// ToJSON serialises res with the matches as 14-field arrays.
func ToJSON(res *MatchResult) (string, error) {
	if res == nil {
		return "", errors.New("nil result")
	}
	b, err := json.MarshalIndent(matchJSON{MatchResult: res, Matches: matcher.Records(res.Matches)}, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ToCSV writes a header line followed by one row per match.
func ToCSV(res *MatchResult) (string, error) {
	if res == nil {
		return "", errors.New("nil result")
	}
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write(RecordHeader)
	row := make([]string, matcher.RecordLen)
	for _, m := range res.Matches {
		for i, v := range m.Record() {
			row[i] = formatField(v)
		}
		_ = w.Write(row)
	}
	w.Flush()
	return buf.String(), w.Error()
}

// DetectionToJSON serialises a detection with its generalized keypoints.
func DetectionToJSON(det *Detection) (string, error) {
	if det == nil {
		return "", errors.New("nil detection")
	}
	b, err := json.MarshalIndent(det, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// DetectionToText summarises a detection, one generalized keypoint per line.
func DetectionToText(det *Detection) (string, error) {
	if det == nil {
		return "", errors.New("nil detection")
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %dx%d, %d views: %s\n", det.Width, det.Height, det.Views, det.Stats)
	for _, g := range det.Keypoints {
		fmt.Fprintf(&sb, "%s %s %d\n", formatField(g.X), formatField(g.Y), g.Len())
	}
	return sb.String(), nil
}

func formatField(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
