package bot

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

const diagnosticsTimeout = 15 * time.Second

type artifact struct {
	Shot string
	Dump string
}

// Diagnostics writes screenshots and page dumps for a human operator.
// Failures are logged and never returned: artifacts must not block a run.
type Diagnostics struct {
	dir    string
	logger *slog.Logger
}

// NewDiagnostics writes artifacts under dir, overwriting earlier runs.
func NewDiagnostics(dir string, logger *slog.Logger) *Diagnostics {
	return &Diagnostics{dir: dir, logger: logger}
}

// Capture saves a full-page screenshot as <name>.png.
func (d *Diagnostics) Capture(ctx context.Context, sess Session, name string) {
	if d == nil || sess == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), diagnosticsTimeout)
	defer cancel()

	img, err := sess.Screenshot(ctx)
	if err != nil {
		d.logger.Warn("screenshot failed", slog.String("name", name), slog.Any("error", err))
		return
	}
	d.write(name+".png", img)
}

// Dump saves the current page HTML as name.
func (d *Diagnostics) Dump(ctx context.Context, sess Session, name string) {
	if d == nil || sess == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), diagnosticsTimeout)
	defer cancel()

	html, err := sess.HTML(ctx)
	if err != nil {
		d.logger.Warn("page dump failed", slog.String("name", name), slog.Any("error", err))
		return
	}
	d.write(name, []byte(html))
}

// Snapshot captures a screenshot and a page dump.
func (d *Diagnostics) Snapshot(ctx context.Context, sess Session, a artifact) {
	if a.Shot != "" {
		d.Capture(ctx, sess, a.Shot)
	}
	if a.Dump != "" {
		d.Dump(ctx, sess, a.Dump)
	}
}

func (d *Diagnostics) write(name string, data []byte) {
	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		d.logger.Warn("create diagnostics dir failed", slog.String("dir", d.dir), slog.Any("error", err))
		return
	}
	path := filepath.Join(d.dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		d.logger.Warn("write diagnostic failed", slog.String("path", path), slog.Any("error", err))
		return
	}
	d.logger.Debug("diagnostic saved", slog.String("path", path))
}
