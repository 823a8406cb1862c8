package bot

import (
	"context"
	"errors"
	"fmt"
)

// ErrStep is a transient failure of one interaction step (selector not
// found, click rejected, navigation hiccup).
type ErrStep struct {
	Step     string
	Strategy string
	Err      error
}

func (e ErrStep) Error() string {
	if e.Strategy != "" {
		return fmt.Errorf("step %s (%s): %w", e.Step, e.Strategy, e.Err).Error()
	}
	return fmt.Errorf("step %s: %w", e.Step, e.Err).Error()
}

func (e ErrStep) Unwrap() error {
	return e.Err
}

// ErrScanTimeout means no export candidate appeared within the scan rounds.
type ErrScanTimeout struct {
	Rounds int
	Err    error
}

func (e ErrScanTimeout) Error() string {
	return fmt.Errorf("timeout: no export candidate after %d scan rounds: %w", e.Rounds, e.Err).Error()
}

func (e ErrScanTimeout) Unwrap() error {
	return e.Err
}

// ErrSession means a browser session could not be created.
type ErrSession struct {
	Err error
}

func (e ErrSession) Error() string {
	return fmt.Errorf("session: %w", e.Err).Error()
}

func (e ErrSession) Unwrap() error {
	return e.Err
}

// ErrDownload means the download event failed or the file is not on disk.
type ErrDownload struct {
	Name string
	Err  error
}

func (e ErrDownload) Error() string {
	return fmt.Errorf("download %q: %w", e.Name, e.Err).Error()
}

func (e ErrDownload) Unwrap() error {
	return e.Err
}

// ErrPrecondition is fatal: it is reported before any session exists and is
// never retried.
type ErrPrecondition struct {
	Err error
}

func (e ErrPrecondition) Error() string {
	return fmt.Errorf("precondition: %w", e.Err).Error()
}

func (e ErrPrecondition) Unwrap() error {
	return e.Err
}

var errNoCandidates = errors.New("file list was empty or file not found")

func errorTypeLabel(err error) string {
	if err == nil {
		return "unknown"
	}
	var precondition ErrPrecondition
	if errors.As(err, &precondition) {
		return "precondition"
	}
	var timeout ErrScanTimeout
	if errors.As(err, &timeout) {
		return "timeout"
	}
	var download ErrDownload
	if errors.As(err, &download) {
		return "download"
	}
	var session ErrSession
	if errors.As(err, &session) {
		return "session"
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	var step ErrStep
	if errors.As(err, &step) {
		return "selector"
	}
	return "other"
}
