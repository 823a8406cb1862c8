// Package pipeline cleans a downloaded selections export: it keeps the
// columns the chooser needs, coerces the sort keys to numbers, drops
// duplicate rows and sorts runners by venue, race and rating.
package pipeline

import (
	"cmp"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/aluiziolira/saturday-punter/models"
	"github.com/aluiziolira/saturday-punter/parser"
	lru "github.com/hashicorp/golang-lru/v2"
)

// ErrNoExport is returned by LatestExport when the directory holds no export.
var ErrNoExport = errors.New("pipeline: no selections export found")

const defaultDedupeSize = 10000

// OutputWriter defines the interface for cleaned selections output.
type OutputWriter interface {
	Write(runners []*models.Runner) error
	Close() error
	Validate() error
}

// Pipeline turns a raw export into a sorted SelectionSet.
type Pipeline struct {
	dedupeSize int
	logger     *slog.Logger
	metrics    *metrics
}

// NewPipeline builds a pipeline whose duplicate filter remembers up to
// dedupeSize rows.
func NewPipeline(dedupeSize int, logger *slog.Logger) *Pipeline {
	if dedupeSize <= 0 {
		dedupeSize = defaultDedupeSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		dedupeSize: dedupeSize,
		logger:     logger.With(slog.String("component", "pipeline")),
		metrics:    newMetrics(),
	}
}

// ProcessFile cleans the export at path.
func (p *Pipeline) ProcessFile(path string) (*models.SelectionSet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open export: %w", err)
	}
	defer f.Close()

	runners, err := p.Process(f)
	if err != nil {
		return nil, fmt.Errorf("process %s: %w", filepath.Base(path), err)
	}

	set := &models.SelectionSet{
		Source:  path,
		Runners: runners,
		Stats:   ComputeStats(runners),
	}
	p.logger.Info("export processed",
		slog.String("status", "ok"),
		slog.String("source", filepath.Base(path)),
		slog.Int("rows", set.Stats.Rows),
		slog.Int("venues", set.Stats.Venues),
		slog.Int("ultimates", set.Stats.Ultimates),
	)
	return set, nil
}

// Process reads a CSV export and returns its cleaned, sorted runners.
func (p *Pipeline) Process(r io.Reader) ([]*models.Runner, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("export is empty")
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	indexes, err := parser.MapColumns(header)
	if err != nil {
		return nil, err
	}

	seen, err := lru.New[string, struct{}](p.dedupeSize)
	if err != nil {
		return nil, fmt.Errorf("create duplicate filter: %w", err)
	}

	var runners []*models.Runner
	var duplicates int
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read record: %w", err)
		}
		runner, dup := p.prepare(record, indexes, seen)
		if dup {
			duplicates++
		}
		if runner != nil {
			runners = append(runners, runner)
		}
	}
	if duplicates > 0 {
		p.logger.Warn("duplicate rows dropped", slog.Int("dropped", duplicates))
	}

	Sort(runners)
	return runners, nil
}

// prepare builds a runner from record. It returns nil for rows that are
// skipped, and reports whether the row was a duplicate.
func (p *Pipeline) prepare(record []string, indexes []int, seen *lru.Cache[string, struct{}]) (*models.Runner, bool) {
	values := make([]string, len(indexes))
	for i, idx := range indexes {
		if idx < len(record) {
			values[i] = record[idx]
		}
	}

	runner := &models.Runner{Values: values}
	if err := parser.ValidateRunner(runner); err != nil {
		p.metrics.addValidation("blank_row")
		return nil, false
	}

	key := strings.Join(values, "\x1f")
	if seen.Contains(key) {
		p.metrics.addValidation("duplicate_row")
		return nil, true
	}
	seen.Add(key, struct{}{})

	runner.RaceNumber = parser.ParseNumeric(values[models.ColRaceNumber])
	if math.IsNaN(runner.RaceNumber) {
		p.metrics.addValidation("non_numeric_rn")
	}
	runner.UltimRating = parser.ParseNumeric(values[models.ColUltimrating])
	if math.IsNaN(runner.UltimRating) {
		p.metrics.addValidation("non_numeric_ultimrating")
	}

	p.metrics.incrementProcessed()
	return runner, false
}

// GetMetrics returns a snapshot of the internal counters.
func (p *Pipeline) GetMetrics() map[string]interface{} {
	return p.metrics.snapshot()
}

// Sort orders runners by Venue ascending, RN ascending and Ultimrating
// descending. Missing values sort last and ties keep input order.
func Sort(runners []*models.Runner) {
	slices.SortStableFunc(runners, compareRunners)
}

func compareRunners(a, b *models.Runner) int {
	if c := compareText(a.Venue(), b.Venue()); c != 0 {
		return c
	}
	if c := compareNumber(a.RaceNumber, b.RaceNumber, false); c != 0 {
		return c
	}
	return compareNumber(a.UltimRating, b.UltimRating, true)
}

func compareText(a, b string) int {
	switch {
	case a == b:
		return 0
	case a == "":
		return 1
	case b == "":
		return -1
	}
	return strings.Compare(a, b)
}

func compareNumber(a, b float64, descending bool) int {
	aNaN, bNaN := math.IsNaN(a), math.IsNaN(b)
	switch {
	case aNaN && bNaN:
		return 0
	case aNaN:
		return 1
	case bNaN:
		return -1
	}
	if descending {
		return cmp.Compare(b, a)
	}
	return cmp.Compare(a, b)
}

// ComputeStats summarises runners for the ready email.
func ComputeStats(runners []*models.Runner) models.SelectionStats {
	venues := make(map[string]struct{})
	stats := models.SelectionStats{Rows: len(runners)}
	for _, r := range runners {
		if v := r.Venue(); v != "" {
			venues[v] = struct{}{}
		}
		if r.UltimRating > 90 {
			stats.Ultimates++
		}
	}
	stats.Venues = len(venues)
	return stats
}

// LatestExport returns the most recently modified selections export in dir.
func LatestExport(dir string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, parser.ExportPrefix+"*.csv"))
	if err != nil {
		return "", fmt.Errorf("glob exports: %w", err)
	}

	var latest string
	var latestMod int64
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		if mod := info.ModTime().UnixNano(); latest == "" || mod > latestMod {
			latest, latestMod = m, mod
		}
	}
	if latest == "" {
		return "", fmt.Errorf("%w in %s", ErrNoExport, dir)
	}
	return latest, nil
}

// WriteSet writes runners to w, closes it and validates the output.
func WriteSet(w OutputWriter, set *models.SelectionSet) error {
	if err := w.Write(set.Runners); err != nil {
		_ = w.Close()
		return err
	}
	if err := w.Validate(); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

type metrics struct {
	mu         sync.Mutex
	processed  int64
	validation map[string]int
}

func newMetrics() *metrics {
	return &metrics{
		validation: make(map[string]int),
	}
}

func (m *metrics) incrementProcessed() {
	m.mu.Lock()
	m.processed++
	m.mu.Unlock()
}

func (m *metrics) addValidation(kind string) {
	m.mu.Lock()
	m.validation[kind]++
	m.mu.Unlock()
}

func (m *metrics) snapshot() map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	copyValidation := make(map[string]int, len(m.validation))
	for k, v := range m.validation {
		copyValidation[k] = v
	}

	return map[string]interface{}{
		"processed_runners": m.processed,
		"validation_errors": copyValidation,
	}
}
