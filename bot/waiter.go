package bot

import (
	"context"
	"log/slog"
	"time"
)

const selProgress = "#lblProgress"

// Waiter watches the "Please wait" modal shown while the export is
// generated. It is an optimization: the scanner polls for the result
// whether or not the wait succeeded.
type Waiter struct {
	appear time.Duration
	vanish time.Duration
	settle time.Duration
	sleep  sleepFunc
	now    func() time.Time
	logger *slog.Logger
}

// Wait blocks until the modal is gone or its bounds expire. It never fails.
func (w *Waiter) Wait(ctx context.Context, sess Session) {
	if err := sess.WaitVisible(ctx, selProgress, w.appear); err != nil {
		w.logger.Warn("progress modal did not appear, generation may have been instant", slog.Any("error", err))
	} else {
		w.logger.Info("progress modal appeared, generation started")
	}

	now := w.now
	if now == nil {
		now = time.Now
	}
	started := now()
	if err := sess.WaitHidden(ctx, selProgress, w.vanish); err != nil {
		w.logger.Warn("progress modal wait failed, continuing to poll", slog.Any("error", err))
		return
	}
	w.logger.Info("progress modal gone", slog.String("status", "ok"), slog.Duration("waited", now().Sub(started)))

	if err := w.sleep(ctx, w.settle); err != nil {
		w.logger.Warn("settle interrupted", slog.Any("error", err))
	}
}
