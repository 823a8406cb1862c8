// Package bot downloads the weekly selections export from the System
// Builder web application.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aluiziolira/saturday-punter/config"
	"github.com/aluiziolira/saturday-punter/models"
	"github.com/google/uuid"
)

// Bot runs bounded download attempts against the System Builder.
type Bot struct {
	cfg      *config.Config
	launcher Launcher
	secrets  config.SecretStore
	Metrics  *Metrics
	logger   *slog.Logger
	now      func() time.Time
	sleep    sleepFunc
}

// Option customises a Bot.
type Option func(*Bot)

// WithLauncher replaces the go-rod launcher.
func WithLauncher(l Launcher) Option {
	return func(b *Bot) { b.launcher = l }
}

// WithSecretStore replaces the OS keyring.
func WithSecretStore(s config.SecretStore) Option {
	return func(b *Bot) { b.secrets = s }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Bot) { b.logger = l }
}

// WithMetrics shares a metrics bundle.
func WithMetrics(m *Metrics) Option {
	return func(b *Bot) { b.Metrics = m }
}

// WithClock sets the time source used for the target date and timings.
func WithClock(now func() time.Time) Option {
	return func(b *Bot) { b.now = now }
}

// WithSleep replaces the context-aware sleep used for every fixed delay.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(b *Bot) { b.sleep = sleep }
}

// New builds a bot configured from cfg.
func New(cfg *config.Config, opts ...Option) (*Bot, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	b := &Bot{
		cfg:     cfg,
		secrets: config.KeyringStore{},
		logger:  slog.Default(),
		now:     time.Now,
		sleep:   sleepContext,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.With(slog.String("component", "bot"))
	if b.Metrics == nil {
		b.Metrics = NewMetrics()
	}
	if b.launcher == nil {
		b.launcher = NewRodLauncher(cfg, b.logger)
	}
	return b, nil
}

// Run downloads the selections export. It never returns an error: a result
// without a path means no file was produced, and Fatal is set when the run
// could not start at all.
func (b *Bot) Run(ctx context.Context) models.DownloadResult {
	runID := uuid.NewString()
	logger := b.logger.With(slog.String("run_id", runID))
	result := models.DownloadResult{RunID: runID, StartTime: b.now()}

	creds, err := config.ResolveCredentials(b.cfg, b.secrets)
	if err != nil {
		perr := ErrPrecondition{Err: err}
		b.Metrics.IncError(errorTypeLabel(perr))
		logger.Error("bot cannot start", slog.Any("error", perr))
		result.Fatal = perr.Error()
		result.EndTime = b.now()
		return result
	}

	result.TargetDate = ResolveTargetDate(b.cfg.Testing, b.now(), logger)
	logger.Info("bot started",
		slog.String("url", b.cfg.SystemBuilderURL),
		slog.String("target_date", result.TargetDate),
		slog.Any("credentials", creds),
		slog.Int("max_attempts", b.cfg.MaxAttempts),
	)

	for index := 1; index <= b.cfg.MaxAttempts; index++ {
		if ctx.Err() != nil {
			logger.Warn("run canceled", slog.Any("error", ctx.Err()))
			break
		}

		attemptLog := logger.With(slog.Int("attempt", index))
		started := b.now()
		path, err := b.attempt(ctx, index, creds, result.TargetDate, attemptLog)
		if err == nil {
			err = verifyDownload(path)
		}
		record := models.BotAttempt{Index: index, StartedAt: started, Elapsed: b.now().Sub(started)}

		if err == nil {
			record.Outcome = models.OutcomeSuccess
			record.Path = path
			result.Attempts = append(result.Attempts, record)
			result.Path = path
			b.Metrics.IncAttempt(string(record.Outcome), record.Elapsed)
			b.Metrics.IncDownload()
			attemptLog.Info("bot finished", slog.String("status", "ok"), slog.String("path", path))
			break
		}

		record.Outcome = models.OutcomeFailure
		record.Reason = err.Error()
		record.ErrorType = errorTypeLabel(err)
		result.Attempts = append(result.Attempts, record)
		b.Metrics.IncAttempt(string(record.Outcome), record.Elapsed)
		b.Metrics.IncError(record.ErrorType)
		attemptLog.Error("attempt failed", slog.String("error_type", record.ErrorType), slog.Any("error", err))

		if index < b.cfg.MaxAttempts {
			attemptLog.Info("retrying", slog.Duration("delay", b.cfg.RetryDelay))
			if err := b.sleep(ctx, b.cfg.RetryDelay); err != nil {
				logger.Warn("run canceled", slog.Any("error", err))
				break
			}
		}
	}

	if !result.OK() {
		logger.Error("all attempts failed", slog.Int("attempts", len(result.Attempts)))
	}
	result.EndTime = b.now()
	return result
}

// attempt runs one pass in a fresh session and always closes it.
func (b *Bot) attempt(ctx context.Context, index int, creds config.Credentials, targetDate string, logger *slog.Logger) (string, error) {
	diag := NewDiagnostics(b.cfg.DiagnosticsDir, logger)

	sess, err := b.launcher.Launch(ctx)
	if err != nil {
		return "", ErrSession{Err: err}
	}
	defer func() {
		if err := sess.Close(); err != nil {
			logger.Warn("close session failed", slog.Any("error", err))
		}
	}()

	path, err := b.drive(ctx, sess, creds, targetDate, diag, logger)
	if err != nil {
		diag.Capture(ctx, sess, fmt.Sprintf("99_error_attempt_%d", index))
		return "", err
	}
	return path, nil
}

func (b *Bot) drive(ctx context.Context, sess Session, creds config.Credentials, targetDate string, diag *Diagnostics, logger *slog.Logger) (string, error) {
	logger.Info("navigating", slog.String("url", b.cfg.SystemBuilderURL))
	if err := sess.Navigate(ctx, b.cfg.SystemBuilderURL); err != nil {
		return "", ErrStep{Step: "navigate", Err: err}
	}
	diag.Snapshot(ctx, sess, artifact{Shot: "01_login_page", Dump: "debug_login_source.html"})

	form := &Form{
		creds:       creds,
		targetDate:  targetDate,
		stepTimeout: b.cfg.StepTimeout,
		settle:      b.cfg.SettleDelay,
		diag:        diag,
		sleep:       b.sleep,
		logger:      logger,
		metrics:     b.Metrics,
	}
	if _, err := form.Run(ctx, sess); err != nil {
		return "", err
	}

	waiter := &Waiter{
		appear: b.cfg.ModalAppearTimeout,
		vanish: b.cfg.GenerationTimeout,
		settle: b.cfg.SettleDelay,
		sleep:  b.sleep,
		now:    b.now,
		logger: logger,
	}
	waiter.Wait(ctx, sess)

	scanner := &Scanner{
		rounds:   b.cfg.ScanRounds,
		interval: b.cfg.ScanInterval,
		finalizer: &Finalizer{
			dir:     b.cfg.DownloadPath,
			timeout: b.cfg.DownloadTimeout,
			sleep:   b.sleep,
			logger:  logger,
		},
		diag:    diag,
		sleep:   b.sleep,
		logger:  logger,
		metrics: b.Metrics,
	}
	return scanner.Run(ctx, sess)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
