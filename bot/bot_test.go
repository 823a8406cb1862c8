package bot

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/aluiziolira/saturday-punter/config"
	"github.com/aluiziolira/saturday-punter/models"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newTestBot(t *testing.T, cfg *config.Config, launcher Launcher, secrets config.SecretStore) (*Bot, *sleepRecorder) {
	t.Helper()
	sleeper := &sleepRecorder{}
	b, err := New(cfg,
		WithLauncher(launcher),
		WithSecretStore(secrets),
		WithLogger(discardLogger()),
		WithClock(func() time.Time { return tuesday }),
		WithSleep(sleeper.sleep),
	)
	if err != nil {
		t.Fatalf("new bot: %v", err)
	}
	return b, sleeper
}

var withPassword = stubSecrets{config.SystemBuilderKeyringService: "secret"}

func TestNewRequiresConfig(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Fatalf("expected error for nil config")
	}
}

func TestRunMissingPasswordLaunchesNothing(t *testing.T) {
	cfg := testConfig(t)
	launcher := &fakeLauncher{next: func(int) (*fakeSession, error) { return newHappySession(), nil }}
	b, sleeper := newTestBot(t, cfg, launcher, stubSecrets{})

	result := b.Run(context.Background())

	if launcher.launches != 0 {
		t.Fatalf("launches = %d, want 0", launcher.launches)
	}
	if result.OK() || result.Fatal == "" {
		t.Fatalf("expected fatal result, got %+v", result)
	}
	if len(result.Attempts) != 0 {
		t.Fatalf("attempts = %d, want 0", len(result.Attempts))
	}
	if len(sleeper.calls) != 0 {
		t.Fatalf("precondition failure must not back off, slept %v", sleeper.calls)
	}
	if got := testutil.ToFloat64(b.Metrics.ErrorsTotal.WithLabelValues("precondition")); got != 1 {
		t.Fatalf("precondition errors = %v, want 1", got)
	}
}

func TestRunHappyPathDownloadsNewest(t *testing.T) {
	cfg := testConfig(t)
	var sess *fakeSession
	launcher := &fakeLauncher{next: func(int) (*fakeSession, error) {
		sess = newHappySession()
		return sess, nil
	}}
	b, _ := newTestBot(t, cfg, launcher, withPassword)

	result := b.Run(context.Background())

	if !result.OK() {
		t.Fatalf("expected success, got %+v", result)
	}
	if want := filepath.Join(cfg.DownloadPath, newestExport); result.Path != want {
		t.Fatalf("path = %q, want %q", result.Path, want)
	}
	if result.TargetDate != "24/01/2026" {
		t.Fatalf("target date = %q, want 24/01/2026", result.TargetDate)
	}
	if len(result.Attempts) != 1 || result.Attempts[0].Outcome != models.OutcomeSuccess {
		t.Fatalf("attempts = %+v", result.Attempts)
	}
	if got := sess.count("click link:" + newestExport); got != 2 {
		t.Fatalf("newest export clicked %d times, want 2", got)
	}
	if got := sess.count("click link:" + olderExport); got != 0 {
		t.Fatalf("older export clicked %d times", got)
	}
	if sess.closed != 1 {
		t.Fatalf("session closed %d times, want 1", sess.closed)
	}
	if got := sess.elements[selDateField].value; got != "24/01/2026" {
		t.Fatalf("date field = %q", got)
	}
	if got := sess.elements[selUsername].value; got != "punter" {
		t.Fatalf("username field = %q", got)
	}
	if got := testutil.ToFloat64(b.Metrics.DownloadsTotal); got != 1 {
		t.Fatalf("downloads metric = %v, want 1", got)
	}
	for _, name := range []string{"01_login_page.png", "02_dashboard.png", "03_generate_page.png", "debug_generate_source.html"} {
		if !hasArtifact(t, cfg.DiagnosticsDir, name) {
			t.Fatalf("missing diagnostic %s", name)
		}
	}
}

func TestRunAllAttemptsFail(t *testing.T) {
	cfg := testConfig(t)
	launcher := &fakeLauncher{next: func(int) (*fakeSession, error) {
		sess := newHappySession()
		delete(sess.elements, selUsername)
		return sess, nil
	}}
	b, sleeper := newTestBot(t, cfg, launcher, withPassword)

	result := b.Run(context.Background())

	if result.OK() {
		t.Fatalf("expected failure, got path %q", result.Path)
	}
	if result.Fatal != "" {
		t.Fatalf("attempt failures are not fatal: %q", result.Fatal)
	}
	if launcher.launches != 3 || len(result.Attempts) != 3 {
		t.Fatalf("launches = %d, attempts = %d, want 3", launcher.launches, len(result.Attempts))
	}
	for i, a := range result.Attempts {
		if a.Index != i+1 || a.Outcome != models.OutcomeFailure || a.ErrorType != "selector" {
			t.Fatalf("attempt %d = %+v", i, a)
		}
	}
	for _, sess := range launcher.sessions {
		if sess.closed != 1 {
			t.Fatalf("session closed %d times, want 1", sess.closed)
		}
	}
	if got := countArtifacts(t, cfg.DiagnosticsDir, "99_error_attempt_"); got != 3 {
		t.Fatalf("error screenshots = %d, want 3", got)
	}
	if got := sleeper.count(cfg.RetryDelay); got != 2 {
		t.Fatalf("retry delays = %d, want 2", got)
	}
	if got := testutil.ToFloat64(b.Metrics.AttemptsTotal.WithLabelValues("failure")); got != 3 {
		t.Fatalf("failed attempts metric = %v, want 3", got)
	}
}

func TestRunRecoversAfterLaunchFailure(t *testing.T) {
	cfg := testConfig(t)
	launcher := &fakeLauncher{next: func(n int) (*fakeSession, error) {
		if n == 1 {
			return nil, errors.New("launch timed out")
		}
		return newHappySession(), nil
	}}
	b, sleeper := newTestBot(t, cfg, launcher, withPassword)

	result := b.Run(context.Background())

	if !result.OK() {
		t.Fatalf("expected success on second attempt, got %+v", result)
	}
	if len(result.Attempts) != 2 {
		t.Fatalf("attempts = %d, want 2", len(result.Attempts))
	}
	if got := result.Attempts[0].ErrorType; got != "session" {
		t.Fatalf("first attempt error type = %q, want session", got)
	}
	if result.FailedAttempts() != 1 {
		t.Fatalf("failed attempts = %d, want 1", result.FailedAttempts())
	}
	if got := sleeper.count(cfg.RetryDelay); got != 1 {
		t.Fatalf("retry delays = %d, want 1", got)
	}
}

func TestRunScanTimeoutIsDistinct(t *testing.T) {
	cfg := testConfig(t)
	cfg.MaxAttempts = 1
	launcher := &fakeLauncher{next: func(int) (*fakeSession, error) {
		sess := newHappySession()
		sess.listing = nil
		sess.pageLinks = []string{"Home", "Logout"}
		return sess, nil
	}}
	b, _ := newTestBot(t, cfg, launcher, withPassword)

	result := b.Run(context.Background())

	if result.OK() {
		t.Fatalf("expected failure")
	}
	if got := result.Attempts[0].ErrorType; got != "timeout" {
		t.Fatalf("error type = %q, want timeout", got)
	}
	for _, name := range []string{"99_timeout.png", "debug_timeout_source.html", "99_error_attempt_1.png", "97_poll_mid.png"} {
		if !hasArtifact(t, cfg.DiagnosticsDir, name) {
			t.Fatalf("missing diagnostic %s", name)
		}
	}
	if got := testutil.ToFloat64(b.Metrics.ScanRoundsTotal); got != float64(cfg.ScanRounds) {
		t.Fatalf("scan rounds = %v, want %d", got, cfg.ScanRounds)
	}
}

func TestRunVerifiesDownloadedFile(t *testing.T) {
	cfg := testConfig(t)
	cfg.MaxAttempts = 1
	launcher := &fakeLauncher{next: func(int) (*fakeSession, error) {
		sess := newHappySession()
		sess.skipWrite = true
		return sess, nil
	}}
	b, _ := newTestBot(t, cfg, launcher, withPassword)

	result := b.Run(context.Background())

	if result.OK() {
		t.Fatalf("a path that is not on disk must not be reported")
	}
	if got := result.Attempts[0].ErrorType; got != "download" {
		t.Fatalf("error type = %q, want download", got)
	}
}

func TestRunDateOverrideWins(t *testing.T) {
	cfg := testConfig(t)
	cfg.Testing = config.TestingConfig{EnableDateOverride: true, OverrideDate: "2026-02-07"}
	var sess *fakeSession
	launcher := &fakeLauncher{next: func(int) (*fakeSession, error) {
		sess = newHappySession()
		return sess, nil
	}}
	b, _ := newTestBot(t, cfg, launcher, withPassword)

	result := b.Run(context.Background())

	if result.TargetDate != "07/02/2026" {
		t.Fatalf("target date = %q, want 07/02/2026", result.TargetDate)
	}
	if got := sess.elements[selDateField].value; got != "07/02/2026" {
		t.Fatalf("date field = %q", got)
	}
}

func TestRunCanceledBeforeStart(t *testing.T) {
	cfg := testConfig(t)
	launcher := &fakeLauncher{next: func(int) (*fakeSession, error) { return newHappySession(), nil }}
	b, _ := newTestBot(t, cfg, launcher, withPassword)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result := b.Run(ctx)

	if result.OK() || launcher.launches != 0 {
		t.Fatalf("canceled run launched %d sessions, result %+v", launcher.launches, result)
	}
}
