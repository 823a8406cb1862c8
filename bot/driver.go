package bot

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Session lookups when no element matches.
var ErrNotFound = errors.New("element not found")

// Launcher creates one fresh, isolated browser session per attempt.
type Launcher interface {
	Launch(ctx context.Context) (Session, error)
}

// Session is a single page in an isolated browser context. Every blocking
// call is bounded by ctx or an explicit timeout. Close releases the whole
// browser and must be safe to call once on every exit path.
type Session interface {
	Navigate(ctx context.Context, url string) error
	// WaitStable waits until the page stops changing (network and DOM).
	WaitStable(ctx context.Context) error
	Element(ctx context.Context, selector string, timeout time.Duration) (Element, error)
	// ElementByText returns the first element matching selector whose text
	// matches the regular expression pattern.
	ElementByText(ctx context.Context, selector, pattern string, timeout time.Duration) (Element, error)
	// Elements returns all current matches without waiting.
	Elements(ctx context.Context, selector string) ([]Element, error)
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) error
	// WaitHidden succeeds once selector is hidden or detached.
	WaitHidden(ctx context.Context, selector string, timeout time.Duration) error
	// ExpectDownload arms a download listener, runs trigger and waits for
	// the download it started. The file is saved in dir under the name the
	// browser suggests and the full path is returned.
	ExpectDownload(ctx context.Context, dir string, timeout time.Duration, trigger func() error) (string, error)
	HTML(ctx context.Context) (string, error)
	Screenshot(ctx context.Context) ([]byte, error)
	Close() error
}

// Element is a handle to a DOM node of the current page state.
type Element interface {
	Text() (string, error)
	Visible() (bool, error)
	ScrollIntoView() error
	// Center scrolls the element to the middle of the viewport.
	Center() error
	Hover() error
	Click() error
	// Clear empties an input without firing its change handlers.
	Clear() error
	Input(text string) error
}
