package parser

import (
	"cmp"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/aluiziolira/saturday-punter/models"
)

// ExportPrefix is the literal prefix every export link text starts with.
const ExportPrefix = "ExportSelections"

// candidatePattern accepts "ExportSelections The Buccaneer <digits>.csv" with
// space or underscore separators, case-insensitively.
var candidatePattern = regexp.MustCompile(`(?i)^ExportSelections[ _]The[ _]Buccaneer[ _]+(\d+)\.csv`)

// HasExportPrefix reports whether trimmed link text starts with ExportPrefix.
func HasExportPrefix(name string) bool {
	return strings.HasPrefix(strings.TrimSpace(name), ExportPrefix)
}

// ParseCandidateName extracts the timestamp digits of an export name, with
// leading zeros removed. It returns false for any name that does not match
// the export naming pattern. Timestamps of any length are accepted.
func ParseCandidateName(name string) (string, bool) {
	match := candidatePattern.FindStringSubmatch(strings.TrimSpace(name))
	if match == nil {
		return "", false
	}
	ts := strings.TrimLeft(match[1], "0")
	if ts == "" {
		ts = "0"
	}
	return ts, true
}

// CompareTimestamps orders two timestamps returned by ParseCandidateName
// numerically.
func CompareTimestamps(a, b string) int {
	if c := cmp.Compare(len(a), len(b)); c != 0 {
		return c
	}
	return strings.Compare(a, b)
}

// IsNearMiss reports whether a rejected export name still mentions the
// Buccaneer system, which usually means the naming scheme drifted.
func IsNearMiss(name string) bool {
	return strings.Contains(name, "Buccaneer")
}

// MissingColumnError reports a required column absent from an export header.
type MissingColumnError struct {
	Column string
}

func (e *MissingColumnError) Error() string {
	return fmt.Sprintf("critical column missing: %s", e.Column)
}

// NormalizeHeader trims whitespace and a UTF-8 byte order mark from header cells.
func NormalizeHeader(header []string) []string {
	out := make([]string, len(header))
	for i, h := range header {
		out[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	}
	return out
}

// MapColumns returns, for each of models.SelectionColumns, its index in
// header. Exact names are tried first; if any is missing the whole mapping
// falls back to case-insensitive matching.
func MapColumns(header []string) ([]int, error) {
	header = NormalizeHeader(header)

	exact := make(map[string]int, len(header))
	folded := make(map[string]int, len(header))
	for i, h := range header {
		if _, ok := exact[h]; !ok {
			exact[h] = i
		}
		if _, ok := folded[strings.ToLower(h)]; !ok {
			folded[strings.ToLower(h)] = i
		}
	}

	indexes := make([]int, len(models.SelectionColumns))
	complete := true
	for i, col := range models.SelectionColumns {
		idx, ok := exact[col]
		if !ok {
			complete = false
			break
		}
		indexes[i] = idx
	}
	if complete {
		return indexes, nil
	}

	for i, col := range models.SelectionColumns {
		if idx, ok := exact[col]; ok {
			indexes[i] = idx
			continue
		}
		idx, ok := folded[strings.ToLower(col)]
		if !ok {
			return nil, &MissingColumnError{Column: col}
		}
		indexes[i] = idx
	}
	return indexes, nil
}

// ParseNumeric converts a cell to a number, returning NaN when it is not one.
func ParseNumeric(value string) float64 {
	value = strings.TrimSpace(value)
	if value == "" {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(value, 64)
	if err != nil || math.IsInf(v, 0) {
		return math.NaN()
	}
	return v
}

// ValidateRunner rejects rows that carry no data at all.
func ValidateRunner(r *models.Runner) error {
	if r == nil {
		return fmt.Errorf("runner is nil")
	}
	for _, v := range r.Values {
		if strings.TrimSpace(v) != "" {
			return nil
		}
	}
	return fmt.Errorf("runner row is blank")
}
