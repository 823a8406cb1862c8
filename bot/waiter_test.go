package bot

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func newTestWaiter() (*Waiter, *sleepRecorder) {
	sleeper := &sleepRecorder{}
	return &Waiter{
		appear: 5 * time.Second,
		vanish: 5 * time.Minute,
		settle: 2 * time.Second,
		sleep:  sleeper.sleep,
		logger: discardLogger(),
	}, sleeper
}

func TestWaiterSettlesAfterModalVanishes(t *testing.T) {
	waiter, sleeper := newTestWaiter()
	waiter.Wait(context.Background(), newFakeSession())

	if len(sleeper.calls) != 1 || sleeper.calls[0] != 2*time.Second {
		t.Fatalf("sleeps = %v, want one settle delay", sleeper.calls)
	}
}

func TestWaiterToleratesMissingModal(t *testing.T) {
	waiter, sleeper := newTestWaiter()
	sess := newFakeSession()
	sess.visibleErr[selProgress] = errors.New("timeout")

	waiter.Wait(context.Background(), sess)

	if len(sleeper.calls) != 1 {
		t.Fatalf("an instant job still settles, sleeps = %v", sleeper.calls)
	}
}

func TestWaiterSwallowsVanishTimeout(t *testing.T) {
	waiter, sleeper := newTestWaiter()
	sess := newFakeSession()
	sess.hiddenErr[selProgress] = context.DeadlineExceeded

	waiter.Wait(context.Background(), sess)

	if len(sleeper.calls) != 0 {
		t.Fatalf("no settle after a failed wait, sleeps = %v", sleeper.calls)
	}
}

func TestWaiterReportsWaitOnInjectedClock(t *testing.T) {
	waiter, _ := newTestWaiter()
	var buf bytes.Buffer
	waiter.logger = slog.New(slog.NewTextHandler(&buf, nil))
	clock := tuesday
	waiter.now = func() time.Time {
		current := clock
		clock = clock.Add(90 * time.Second)
		return current
	}

	waiter.Wait(context.Background(), newFakeSession())

	if !strings.Contains(buf.String(), "waited=1m30s") {
		t.Fatalf("wait duration should come from the injected clock:\n%s", buf.String())
	}
}
