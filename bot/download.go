package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

const clickSettle = time.Second

// Finalizer downloads the chosen export into the download directory.
type Finalizer struct {
	dir     string
	timeout time.Duration
	sleep   sleepFunc
	logger  *slog.Logger
}

// Download clicks el and waits for the download it starts. The listing
// link often ignores a single click, so it is clicked twice.
func (f *Finalizer) Download(ctx context.Context, sess Session, el Element, name string) (string, error) {
	path, err := sess.ExpectDownload(ctx, f.dir, f.timeout, func() error {
		if err := el.ScrollIntoView(); err != nil {
			return fmt.Errorf("scroll: %w", err)
		}
		if err := el.Center(); err != nil {
			return fmt.Errorf("center: %w", err)
		}
		if err := f.sleep(ctx, clickSettle); err != nil {
			return err
		}
		if err := el.Click(); err != nil {
			return fmt.Errorf("first click: %w", err)
		}
		if err := el.Click(); err != nil {
			return fmt.Errorf("second click: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", ErrDownload{Name: name, Err: err}
	}
	f.logger.Info("export downloaded", slog.String("path", path))
	return path, nil
}

// verifyDownload checks that path is a regular file on disk.
func verifyDownload(path string) error {
	if path == "" {
		return ErrDownload{Err: errors.New("empty path")}
	}
	info, err := os.Stat(path)
	if err != nil {
		return ErrDownload{Name: filepath.Base(path), Err: err}
	}
	if !info.Mode().IsRegular() {
		return ErrDownload{Name: filepath.Base(path), Err: fmt.Errorf("%s is not a regular file", path)}
	}
	return nil
}
