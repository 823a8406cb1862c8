package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/aluiziolira/saturday-punter/config"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

const stableWindow = 500 * time.Millisecond

// RodLauncher starts a local Chrome per session with go-rod.
type RodLauncher struct {
	cfg    *config.Config
	logger *slog.Logger
}

// NewRodLauncher builds a launcher configured from cfg.
func NewRodLauncher(cfg *config.Config, logger *slog.Logger) *RodLauncher {
	if logger == nil {
		logger = slog.Default()
	}
	return &RodLauncher{cfg: cfg, logger: logger.With(slog.String("component", "rod"))}
}

// Launch starts Chrome, connects, and opens a page in a fresh incognito
// context. Launch is bounded by LaunchTimeout.
func (r *RodLauncher) Launch(ctx context.Context) (Session, error) {
	l := launcher.New().Headless(r.cfg.Headless)
	if r.cfg.BrowserBin != "" {
		l = l.Bin(r.cfg.BrowserBin)
	}

	type launched struct {
		url string
		err error
	}
	ch := make(chan launched, 1)
	go func() {
		u, err := l.Launch()
		ch <- launched{url: u, err: err}
	}()

	launchCtx, cancel := context.WithTimeout(ctx, r.cfg.LaunchTimeout)
	defer cancel()

	var controlURL string
	select {
	case res := <-ch:
		if res.err != nil {
			return nil, fmt.Errorf("launch chrome: %w", res.err)
		}
		controlURL = res.url
	case <-launchCtx.Done():
		l.Kill()
		return nil, fmt.Errorf("launch chrome: %w", launchCtx.Err())
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("connect to chrome: %w", err)
	}

	incognito, err := browser.Incognito()
	if err != nil {
		_ = browser.Close()
		l.Kill()
		return nil, fmt.Errorf("create incognito context: %w", err)
	}

	page, err := incognito.Page(proto.TargetCreateTarget{})
	if err != nil {
		_ = browser.Close()
		l.Kill()
		return nil, fmt.Errorf("open page: %w", err)
	}

	if r.cfg.UserAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: r.cfg.UserAgent}); err != nil {
			r.logger.Debug("set user agent failed", slog.Any("error", err))
		}
	}

	// ASP.NET confirm() dialogs block the page until answered.
	go page.EachEvent(func(e *proto.PageJavascriptDialogOpening) {
		r.logger.Debug("accepting dialog", slog.String("message", e.Message))
		go func() {
			_ = proto.PageHandleJavaScriptDialog{Accept: true}.Call(page)
		}()
	})()

	return &rodSession{
		launcher:    l,
		browser:     browser,
		incognito:   incognito,
		page:        page,
		navTimeout:  r.cfg.NavigationTimeout,
		stepTimeout: r.cfg.StepTimeout,
	}, nil
}

type rodSession struct {
	launcher    *launcher.Launcher
	browser     *rod.Browser
	incognito   *rod.Browser
	page        *rod.Page
	navTimeout  time.Duration
	stepTimeout time.Duration
}

func (s *rodSession) Navigate(ctx context.Context, url string) error {
	page := s.page.Context(ctx).Timeout(s.navTimeout)
	defer page.CancelTimeout()
	if err := page.Navigate(url); err != nil {
		return err
	}
	return page.WaitLoad()
}

func (s *rodSession) WaitStable(ctx context.Context) error {
	page := s.page.Context(ctx).Timeout(s.navTimeout)
	defer page.CancelTimeout()
	return page.WaitStable(stableWindow)
}

func (s *rodSession) Element(ctx context.Context, selector string, timeout time.Duration) (Element, error) {
	page := s.page.Context(ctx).Timeout(timeout)
	defer page.CancelTimeout()
	el, err := page.Element(selector)
	if err != nil {
		return nil, lookupError(selector, err)
	}
	return &rodElement{el: el.CancelTimeout(), timeout: s.stepTimeout}, nil
}

func (s *rodSession) ElementByText(ctx context.Context, selector, pattern string, timeout time.Duration) (Element, error) {
	page := s.page.Context(ctx).Timeout(timeout)
	defer page.CancelTimeout()
	el, err := page.ElementR(selector, pattern)
	if err != nil {
		return nil, lookupError(fmt.Sprintf("%s /%s/", selector, pattern), err)
	}
	return &rodElement{el: el.CancelTimeout(), timeout: s.stepTimeout}, nil
}

func (s *rodSession) Elements(ctx context.Context, selector string) ([]Element, error) {
	els, err := s.page.Context(ctx).Elements(selector)
	if err != nil {
		return nil, err
	}
	out := make([]Element, 0, len(els))
	for _, el := range els {
		out = append(out, &rodElement{el: el, timeout: s.stepTimeout})
	}
	return out, nil
}

func (s *rodSession) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	page := s.page.Context(ctx).Timeout(timeout)
	defer page.CancelTimeout()
	el, err := page.Element(selector)
	if err != nil {
		return lookupError(selector, err)
	}
	return el.WaitVisible()
}

func (s *rodSession) WaitHidden(ctx context.Context, selector string, timeout time.Duration) error {
	page := s.page.Context(ctx).Timeout(timeout)
	defer page.CancelTimeout()

	// A missing node counts as hidden.
	has, el, err := page.Has(selector)
	if err != nil {
		return lookupError(selector, err)
	}
	if !has {
		return nil
	}
	if err := el.WaitInvisible(); err != nil {
		if page.GetContext().Err() == nil {
			if still, _, herr := s.page.Context(ctx).Has(selector); herr == nil && !still {
				return nil
			}
		}
		return fmt.Errorf("%s: wait hidden: %w", selector, err)
	}
	return nil
}

func (s *rodSession) ExpectDownload(ctx context.Context, dir string, timeout time.Duration, trigger func() error) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create download dir: %w", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	wait := s.incognito.Context(waitCtx).WaitDownload(dir)

	if err := trigger(); err != nil {
		cancel()
		wait()
		return "", err
	}

	info := wait()
	target, err := completedDownload(dir, info, waitCtx.Err())
	if err != nil {
		return "", err
	}
	if err := os.Rename(filepath.Join(dir, info.GUID), target); err != nil {
		return "", fmt.Errorf("save download: %w", err)
	}
	return target, nil
}

// completedDownload decides whether a finished WaitDownload produced a
// whole file and returns where to save it. WaitDownload hands back the
// begin event even when its context ended before the completed event, so
// any wait error means the file on disk may be partial.
func completedDownload(dir string, info *proto.PageDownloadWillBegin, waitErr error) (string, error) {
	if waitErr != nil {
		return "", fmt.Errorf("wait for download: %w", waitErr)
	}
	if info == nil || info.GUID == "" {
		return "", errors.New("download did not start")
	}
	name := filepath.Base(info.SuggestedFilename)
	if name == "" || name == "." || name == string(filepath.Separator) {
		name = info.GUID
	}
	return filepath.Join(dir, name), nil
}

func (s *rodSession) HTML(ctx context.Context) (string, error) {
	return s.page.Context(ctx).HTML()
}

func (s *rodSession) Screenshot(ctx context.Context) ([]byte, error) {
	return s.page.Context(ctx).Screenshot(true, nil)
}

func (s *rodSession) Close() error {
	var errs []error
	if err := s.page.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close page: %w", err))
	}
	if err := s.browser.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close browser: %w", err))
	}
	s.launcher.Kill()
	return errors.Join(errs...)
}

type rodElement struct {
	el      *rod.Element
	timeout time.Duration
}

func (e *rodElement) bounded() *rod.Element {
	return e.el.Timeout(e.timeout)
}

func (e *rodElement) Text() (string, error) {
	el := e.bounded()
	defer el.CancelTimeout()
	return el.Text()
}

func (e *rodElement) Visible() (bool, error) {
	el := e.bounded()
	defer el.CancelTimeout()
	return el.Visible()
}

func (e *rodElement) ScrollIntoView() error {
	el := e.bounded()
	defer el.CancelTimeout()
	return el.ScrollIntoView()
}

func (e *rodElement) Center() error {
	el := e.bounded()
	defer el.CancelTimeout()
	_, err := el.Eval(`() => this.scrollIntoView({block: 'center'})`)
	return err
}

func (e *rodElement) Hover() error {
	el := e.bounded()
	defer el.CancelTimeout()
	return el.Hover()
}

func (e *rodElement) Click() error {
	el := e.bounded()
	defer el.CancelTimeout()
	return el.Click(proto.InputMouseButtonLeft, 1)
}

func (e *rodElement) Clear() error {
	el := e.bounded()
	defer el.CancelTimeout()
	_, err := el.Eval(`() => { this.value = '' }`)
	return err
}

func (e *rodElement) Input(text string) error {
	el := e.bounded()
	defer el.CancelTimeout()
	return el.Input(text)
}

func lookupError(selector string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", selector, ErrNotFound)
	}
	return fmt.Errorf("%s: %w", selector, err)
}
