package bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aluiziolira/saturday-punter/config"
)

const (
	newestExport = "ExportSelections The Buccaneer 20260124.csv"
	olderExport  = "ExportSelections The Buccaneer 20260117.csv"
)

var errFakeNotFound = errors.New("no such element")

type fakeElement struct {
	sess   *fakeSession
	name   string
	text   string
	hidden bool
	value  string
	failOn map[string]error
}

func (e *fakeElement) do(op string) error {
	e.sess.record(op + " " + e.name)
	return e.failOn[op]
}

func (e *fakeElement) Text() (string, error) {
	if err := e.failOn["text"]; err != nil {
		return "", err
	}
	return e.text, nil
}

func (e *fakeElement) Visible() (bool, error) {
	return !e.hidden, e.failOn["visible"]
}

func (e *fakeElement) ScrollIntoView() error { return e.do("scroll") }
func (e *fakeElement) Center() error         { return e.do("center") }
func (e *fakeElement) Hover() error          { return e.do("hover") }
func (e *fakeElement) Click() error          { return e.do("click") }

func (e *fakeElement) Clear() error {
	e.value = ""
	return e.do("clear")
}

func (e *fakeElement) Input(text string) error {
	e.value += text
	return e.do("input")
}

type fakeSession struct {
	mu sync.Mutex

	elements map[string]*fakeElement
	byText   map[string]*fakeElement
	// listing returns the result container's link texts for the nth scan.
	listing    func(call int) []string
	pageLinks  []string
	pageErrors []string

	visibleErr  map[string]error
	hiddenErr   map[string]error
	navigateErr error

	downloadName string
	downloadErr  error
	skipWrite    bool

	listCalls   int
	downloads   int
	screenshots int
	closed      int
	actions     []string
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		elements:   map[string]*fakeElement{},
		byText:     map[string]*fakeElement{},
		visibleErr: map[string]error{},
		hiddenErr:  map[string]error{},
	}
}

// newHappySession serves every control of the form and lists two exports.
func newHappySession() *fakeSession {
	s := newFakeSession()
	for _, sel := range []string{selUsername, selPassword, selLoginButton, selGenerate, selDateField, selExport, selBody} {
		s.addElement(sel, "")
	}
	s.addElement(selPanelToggle, "Show Selections")
	s.byText[textDateMarker] = &fakeElement{sess: s, name: "marker", text: textDateMarker}
	s.listing = func(int) []string {
		return []string{"Home", olderExport, newestExport, "ExportSelections Other File 123.csv"}
	}
	s.downloadName = newestExport
	return s
}

func (s *fakeSession) addElement(selector, text string) *fakeElement {
	el := &fakeElement{sess: s, name: selector, text: text, failOn: map[string]error{}}
	s.elements[selector] = el
	return el
}

func (s *fakeSession) addText(pattern string) *fakeElement {
	el := &fakeElement{sess: s, name: "text:" + pattern, text: pattern, failOn: map[string]error{}}
	s.byText[pattern] = el
	return el
}

func (s *fakeSession) record(action string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actions = append(s.actions, action)
}

func (s *fakeSession) count(action string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, a := range s.actions {
		if a == action {
			n++
		}
	}
	return n
}

func (s *fakeSession) links(texts []string) []Element {
	out := make([]Element, len(texts))
	for i, text := range texts {
		out[i] = &fakeElement{sess: s, name: "link:" + text, text: text, failOn: map[string]error{}}
	}
	return out
}

func (s *fakeSession) Navigate(ctx context.Context, url string) error {
	s.record("navigate " + url)
	return s.navigateErr
}

func (s *fakeSession) WaitStable(ctx context.Context) error {
	return ctx.Err()
}

func (s *fakeSession) Element(ctx context.Context, selector string, timeout time.Duration) (Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if el, ok := s.elements[selector]; ok {
		return el, nil
	}
	return nil, fmt.Errorf("%s: %w", selector, errFakeNotFound)
}

func (s *fakeSession) ElementByText(ctx context.Context, selector, pattern string, timeout time.Duration) (Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if el, ok := s.byText[pattern]; ok {
		return el, nil
	}
	return nil, fmt.Errorf("%s /%s/: %w", selector, pattern, errFakeNotFound)
}

func (s *fakeSession) Elements(ctx context.Context, selector string) ([]Element, error) {
	switch selector {
	case selResultLinks:
		s.mu.Lock()
		s.listCalls++
		call := s.listCalls
		s.mu.Unlock()
		if s.listing == nil {
			return nil, nil
		}
		return s.links(s.listing(call)), nil
	case selAllLinks:
		return s.links(s.pageLinks), nil
	case selPageErrors:
		return s.links(s.pageErrors), nil
	}
	return nil, nil
}

func (s *fakeSession) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	return s.visibleErr[selector]
}

func (s *fakeSession) WaitHidden(ctx context.Context, selector string, timeout time.Duration) error {
	return s.hiddenErr[selector]
}

func (s *fakeSession) ExpectDownload(ctx context.Context, dir string, timeout time.Duration, trigger func() error) (string, error) {
	s.mu.Lock()
	s.downloads++
	s.mu.Unlock()

	if err := trigger(); err != nil {
		return "", err
	}
	if s.downloadErr != nil {
		return "", s.downloadErr
	}
	path := filepath.Join(dir, s.downloadName)
	if s.skipWrite {
		return path, nil
	}
	if err := os.WriteFile(path, []byte("Venue,RN\nRandwick,1\n"), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func (s *fakeSession) HTML(ctx context.Context) (string, error) {
	return "<html><body></body></html>", nil
}

func (s *fakeSession) Screenshot(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.screenshots++
	return []byte("png"), nil
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}

type fakeLauncher struct {
	mu       sync.Mutex
	launches int
	sessions []*fakeSession
	// next builds the session for the nth launch (1-based).
	next func(n int) (*fakeSession, error)
}

func (l *fakeLauncher) Launch(ctx context.Context) (Session, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.launches++
	sess, err := l.next(l.launches)
	if err != nil {
		return nil, err
	}
	l.sessions = append(l.sessions, sess)
	return sess, nil
}

type sleepRecorder struct {
	mu    sync.Mutex
	calls []time.Duration
}

func (r *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, d)
	return ctx.Err()
}

func (r *sleepRecorder) count(d time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.calls {
		if c == d {
			n++
		}
	}
	return n
}

type stubSecrets map[string]string

func (s stubSecrets) Get(service, user string) (string, error) {
	if v, ok := s[service]; ok {
		return v, nil
	}
	return "", errors.New("secret not found")
}

// tuesday is 20 January 2026; the next Saturday is 24/01/2026.
var tuesday = time.Date(2026, time.January, 20, 9, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv("SYSTEM_BUILDER_PASSWORD", "")
	t.Setenv("SYSTEM_BUILDER_USER", "")

	cfg := config.DefaultConfig()
	cfg.SystemBuilderUser = "punter"
	cfg.DownloadPath = t.TempDir()
	cfg.DiagnosticsDir = t.TempDir()
	return cfg
}

func hasArtifact(t *testing.T, dir, name string) bool {
	t.Helper()
	_, err := os.Stat(filepath.Join(dir, name))
	return err == nil
}

func countArtifacts(t *testing.T, dir, prefix string) int {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read diagnostics dir: %v", err)
	}
	n := 0
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), prefix) {
			n++
		}
	}
	return n
}
