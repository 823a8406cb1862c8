// Package workflow runs the weekly sequence: preflight, download, process
// and notify.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/aluiziolira/saturday-punter/config"
	"github.com/aluiziolira/saturday-punter/models"
	"github.com/aluiziolira/saturday-punter/notify"
	"github.com/aluiziolira/saturday-punter/pipeline"
	"github.com/google/uuid"
)

// ErrNoDownload means the bot produced no file that exists on disk.
var ErrNoDownload = errors.New("download failed or file not found")

// Downloader fetches the selections export.
type Downloader interface {
	Run(ctx context.Context) models.DownloadResult
}

// Processor cleans a downloaded export.
type Processor interface {
	ProcessFile(path string) (*models.SelectionSet, error)
}

// Notifier delivers the ready email. An empty recipient means the chooser.
type Notifier interface {
	Send(ctx context.Context, subject, bodyHTML, to string) error
}

// Prober checks the vendor site before a browser is launched.
type Prober interface {
	Check(ctx context.Context) models.ProbeReport
}

// Summary describes one workflow run.
type Summary struct {
	RunID      string
	Probe      *models.ProbeReport
	Download   models.DownloadResult
	Path       string
	Stats      models.SelectionStats
	OutputFile string
	Notified   bool
	StartTime  time.Time
	EndTime    time.Time
}

// Duration is the wall time of the run.
func (s Summary) Duration() time.Duration {
	return s.EndTime.Sub(s.StartTime)
}

// Workflow wires the stages together.
type Workflow struct {
	downloader   Downloader
	processor    Processor
	notifier     Notifier
	prober       Prober
	dashboardURL string
	outputFormat string
	outputFile   string
	logger       *slog.Logger
	now          func() time.Time
}

// Option customises a Workflow.
type Option func(*Workflow)

// WithProber enables the advisory preflight check.
func WithProber(p Prober) Option {
	return func(w *Workflow) { w.prober = p }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Workflow) { w.logger = logger }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(w *Workflow) { w.now = now }
}

// New builds a workflow. The cleaned output file is written only when the
// configuration names a format.
func New(cfg *config.Config, d Downloader, p Processor, n Notifier, opts ...Option) *Workflow {
	w := &Workflow{
		downloader:   d,
		processor:    p,
		notifier:     n,
		dashboardURL: cfg.DashboardURL,
		outputFormat: cfg.OutputFormat,
		outputFile:   cfg.OutputFile,
		logger:       slog.Default(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With(slog.String("component", "workflow"))
	return w
}

// Run executes the workflow once. A failed download or processing step stops
// the run with an error; a failed notification only clears Summary.Notified.
func (w *Workflow) Run(ctx context.Context) (Summary, error) {
	summary := Summary{StartTime: w.now()}

	if w.prober != nil {
		report := w.prober.Check(ctx)
		summary.Probe = &report
		if !report.Healthy() {
			w.logger.Warn("preflight check not healthy, continuing",
				slog.Bool("reachable", report.Reachable),
				slog.Any("missing", report.Missing),
				slog.String("error_type", report.ErrorType),
			)
		}
	}

	w.logger.Info("step 1: downloading")
	result := w.downloader.Run(ctx)
	summary.Download = result
	summary.RunID = result.RunID
	if summary.RunID == "" {
		summary.RunID = uuid.NewString()
	}
	logger := w.logger.With(slog.String("run_id", summary.RunID))

	path, err := existingFile(result)
	if err != nil {
		logger.Error("pipeline stopped", slog.Any("error", err))
		summary.EndTime = w.now()
		return summary, err
	}
	summary.Path = path
	logger.Info("file ready", slog.String("status", "ok"), slog.String("file", filepath.Base(path)))

	logger.Info("step 2: processing", slog.String("path", path))
	set, err := w.processor.ProcessFile(path)
	if err != nil {
		logger.Error("processing failed, pipeline stopped", slog.Any("error", err))
		summary.EndTime = w.now()
		return summary, fmt.Errorf("process selections: %w", err)
	}
	summary.Stats = set.Stats
	logger.Info("data validated", slog.String("status", "ok"), slog.Int("runners", set.Stats.Rows))

	if w.outputFormat != "" {
		if out, err := w.writeOutput(set); err != nil {
			logger.Warn("cleaned output not written", slog.Any("error", err))
		} else {
			summary.OutputFile = out
		}
	}

	logger.Info("step 3: notifying")
	summary.Notified = w.notify(ctx, set, logger)

	summary.EndTime = w.now()
	return summary, nil
}

func existingFile(result models.DownloadResult) (string, error) {
	if !result.OK() {
		if result.Fatal != "" {
			return "", fmt.Errorf("%w: %s", ErrNoDownload, result.Fatal)
		}
		return "", fmt.Errorf("%w after %d attempts", ErrNoDownload, len(result.Attempts))
	}
	info, err := os.Stat(result.Path)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrNoDownload, err)
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("%w: %s is not a regular file", ErrNoDownload, result.Path)
	}
	return result.Path, nil
}

func (w *Workflow) writeOutput(set *models.SelectionSet) (string, error) {
	out, err := pipeline.NewWriter(w.outputFormat, w.outputFile)
	if err != nil {
		return "", err
	}
	if err := pipeline.WriteSet(out, set); err != nil {
		return "", err
	}
	return w.outputFile, nil
}

func (w *Workflow) notify(ctx context.Context, set *models.SelectionSet, logger *slog.Logger) bool {
	if w.notifier == nil {
		logger.Info("no notifier configured, skipping email")
		return false
	}
	subject, body, err := notify.ReadyEmail(set, w.dashboardURL)
	if err != nil {
		logger.Warn("pipeline complete, email not rendered", slog.Any("error", err))
		return false
	}
	if err := w.notifier.Send(ctx, subject, body, ""); err != nil {
		logger.Warn("pipeline complete, email failed (check config and password)", slog.Any("error", err))
		return false
	}
	logger.Info("pipeline complete, email sent", slog.String("status", "ok"))
	return true
}
