package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aluiziolira/saturday-punter/config"
)

// Selectors of the System Builder pages.
const (
	selUsername      = "input[id='MainContent_txtUserName']"
	selPassword      = "input[id='MainContent_txtPassword']"
	selLoginButton   = "input[id='MainContent_btnLogin']"
	selPanelToggle   = "#MainContent_lbtnShowSelections"
	selGenerate      = "#MainContent_lbtnGenerateSelections"
	selDateField     = "#MainContent_txtSelectionsDate"
	selExport        = "#MainContent_lbtnExportSelections"
	selPageErrors    = ".failureNotification, .validation-summary-errors"
	selClickable     = "a, input, button"
	selMarkerHolders = "label, span, td, th, legend, h1, h2, h3"
	selBody          = "body"

	textGenerate   = "Generate Selections"
	textExport     = "Export Selections"
	textDateMarker = "Selections Date"
)

const (
	hoverPause = 500 * time.Millisecond
	blurPause  = time.Second
)

// FormState is a state of the remote form flow.
type FormState int

const (
	StateNotLoggedIn FormState = iota
	StateLoggedIn
	StateSelectionsPanelOpen
	StateGeneratePageReached
	StateDateSet
	StateExportTriggered
)

func (s FormState) String() string {
	switch s {
	case StateNotLoggedIn:
		return "not_logged_in"
	case StateLoggedIn:
		return "logged_in"
	case StateSelectionsPanelOpen:
		return "selections_panel_open"
	case StateGeneratePageReached:
		return "generate_page_reached"
	case StateDateSet:
		return "date_set"
	case StateExportTriggered:
		return "export_triggered"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// FailurePolicy decides what a failed transition does to the attempt.
type FailurePolicy int

const (
	// Escalate ends the attempt.
	Escalate FailurePolicy = iota
	// Warn logs and moves to the next state anyway; later steps fail
	// naturally if the transition really did not happen.
	Warn
)

// Transition is one edge of the form state machine. Strategies are tried in
// order; Confirm checks the postcondition and only ever warns.
type Transition struct {
	From       FormState
	To         FormState
	Step       string
	Strategies []Strategy
	OnFailure  FailurePolicy
	Confirm    func(ctx context.Context, sess Session) error
	// FailureShot is captured when every strategy failed.
	FailureShot string
	// Snapshot is captured once the transition is over, success or not.
	Snapshot *artifact
}

type sleepFunc func(ctx context.Context, d time.Duration) error

// Form drives login, panel toggle, generate, date and export.
type Form struct {
	creds       config.Credentials
	targetDate  string
	stepTimeout time.Duration
	settle      time.Duration
	diag        *Diagnostics
	sleep       sleepFunc
	logger      *slog.Logger
	metrics     *Metrics
}

// Transitions returns the transition table in execution order.
func (f *Form) Transitions() []Transition {
	return []Transition{
		{
			From:       StateNotLoggedIn,
			To:         StateLoggedIn,
			Step:       "login",
			Strategies: []Strategy{{Name: "form", Run: f.login}},
			OnFailure:  Escalate,
			Snapshot:   &artifact{Shot: "02_dashboard", Dump: "debug_dashboard_source.html"},
		},
		{
			From: StateLoggedIn,
			To:   StateSelectionsPanelOpen,
			Step: "panel_toggle",
			Strategies: []Strategy{
				{Name: "deliberate", Run: f.togglePanel},
				{Name: "direct", Run: f.clickPanelUnlessOpen},
			},
			OnFailure:   Warn,
			FailureShot: "98_show_btn_fail",
		},
		{
			From: StateSelectionsPanelOpen,
			To:   StateGeneratePageReached,
			Step: "generate",
			Strategies: []Strategy{
				{Name: "precise", Run: clickSelector(selGenerate, f.stepTimeout)},
				{Name: "text", Run: clickText(textGenerate, f.stepTimeout)},
			},
			OnFailure: Warn,
			Confirm:   f.confirmGeneratePage,
			Snapshot:  &artifact{Shot: "03_generate_page", Dump: "debug_generate_source.html"},
		},
		{
			From:       StateGeneratePageReached,
			To:         StateDateSet,
			Step:       "date",
			Strategies: []Strategy{{Name: "type_and_blur", Run: f.setDate}},
			OnFailure:  Escalate,
		},
		{
			From: StateDateSet,
			To:   StateExportTriggered,
			Step: "export",
			Strategies: []Strategy{
				{Name: "precise", Run: f.clickExport},
				{Name: "text", Run: clickText(textExport, f.stepTimeout)},
			},
			OnFailure: Escalate,
		},
	}
}

// Run walks the transition table from StateNotLoggedIn and returns the last
// state reached.
func (f *Form) Run(ctx context.Context, sess Session) (FormState, error) {
	state := StateNotLoggedIn
	for _, tr := range f.Transitions() {
		if tr.From != state {
			return state, fmt.Errorf("transition %s starts at %s, form is at %s", tr.Step, tr.From, state)
		}
		next, err := f.apply(ctx, sess, tr)
		if err != nil {
			return state, err
		}
		state = next
	}
	return state, nil
}

func (f *Form) apply(ctx context.Context, sess Session, tr Transition) (FormState, error) {
	logger := f.logger.With(slog.String("step", tr.Step))
	logger.Info("step started", slog.String("from", tr.From.String()))

	strategy, err := runStrategies(ctx, logger, f.metrics, tr.Step, sess, tr.Strategies)
	if err != nil {
		if tr.FailureShot != "" {
			f.diag.Capture(ctx, sess, tr.FailureShot)
		}
		if tr.OnFailure == Escalate || ctx.Err() != nil {
			logger.Error("step failed", slog.Any("error", err))
			return tr.From, err
		}
		logger.Warn("step failed, continuing", slog.Any("error", err))
	} else {
		logger.Info("step completed", slog.String("strategy", strategy), slog.String("to", tr.To.String()))
	}

	if tr.Confirm != nil {
		if cerr := tr.Confirm(ctx, sess); cerr != nil {
			logger.Warn("postcondition not observed", slog.Any("error", cerr))
		}
	}
	if tr.Snapshot != nil {
		f.diag.Snapshot(ctx, sess, *tr.Snapshot)
	}
	return tr.To, nil
}

func (f *Form) login(ctx context.Context, sess Session) error {
	if err := fill(ctx, sess, selUsername, f.creds.Username, f.stepTimeout); err != nil {
		return err
	}
	if err := fill(ctx, sess, selPassword, f.creds.Password, f.stepTimeout); err != nil {
		return err
	}
	if err := clickSelector(selLoginButton, f.stepTimeout)(ctx, sess); err != nil {
		return err
	}
	return sess.WaitStable(ctx)
}

// togglePanel opens the selections panel with scroll, hover and click; a
// bare click is ignored by the page's client-side handlers.
func (f *Form) togglePanel(ctx context.Context, sess Session) error {
	el, err := sess.Element(ctx, selPanelToggle, f.stepTimeout)
	if err != nil {
		return err
	}
	label, err := el.Text()
	if err != nil {
		return err
	}
	f.logger.Info("panel toggle label", slog.String("label", strings.TrimSpace(label)))

	switch {
	case strings.Contains(label, "Show"):
	case strings.Contains(label, "Hide"):
		f.logger.Info("selections panel already open")
		return nil
	default:
		return fmt.Errorf("unexpected toggle label %q", strings.TrimSpace(label))
	}

	if err := el.ScrollIntoView(); err != nil {
		return err
	}
	if err := el.Hover(); err != nil {
		return err
	}
	if err := f.sleep(ctx, hoverPause); err != nil {
		return err
	}
	if err := el.Click(); err != nil {
		return err
	}
	if err := sess.WaitStable(ctx); err != nil {
		return err
	}
	return f.sleep(ctx, f.settle)
}

func (f *Form) clickPanelUnlessOpen(ctx context.Context, sess Session) error {
	el, err := sess.Element(ctx, selPanelToggle, f.stepTimeout)
	if err != nil {
		return err
	}
	if label, err := el.Text(); err == nil && strings.Contains(label, "Hide") {
		return nil
	}
	return el.Click()
}

func (f *Form) confirmGeneratePage(ctx context.Context, sess Session) error {
	if _, err := sess.ElementByText(ctx, selMarkerHolders, textDateMarker, f.stepTimeout); err == nil {
		f.logger.Info("generate page reached", slog.String("status", "ok"))
		return nil
	}

	err := fmt.Errorf("%q marker not found", textDateMarker)
	els, lookupErr := sess.Elements(ctx, selPageErrors)
	if lookupErr != nil {
		return err
	}
	var messages []string
	for _, el := range els {
		text, terr := el.Text()
		if terr == nil && strings.TrimSpace(text) != "" {
			messages = append(messages, strings.TrimSpace(text))
		}
	}
	if len(messages) > 0 {
		f.logger.Error("page reports validation errors", slog.Any("messages", messages))
	}
	return err
}

// setDate types the target date and then clicks the page body; the date
// validator only fires on blur.
func (f *Form) setDate(ctx context.Context, sess Session) error {
	if err := sess.WaitVisible(ctx, selDateField, f.stepTimeout); err != nil {
		return err
	}
	if err := fill(ctx, sess, selDateField, f.targetDate, f.stepTimeout); err != nil {
		return err
	}
	f.logger.Info("target date typed", slog.String("target_date", f.targetDate))

	body, err := sess.Element(ctx, selBody, f.stepTimeout)
	if err != nil {
		return err
	}
	if err := body.Click(); err != nil {
		return fmt.Errorf("blur date field: %w", err)
	}
	return f.sleep(ctx, blurPause)
}

func (f *Form) clickExport(ctx context.Context, sess Session) error {
	el, err := sess.Element(ctx, selExport, f.stepTimeout)
	if err != nil {
		return err
	}
	visible, err := el.Visible()
	if err != nil {
		return err
	}
	if !visible {
		return fmt.Errorf("%s is not visible", selExport)
	}
	if err := el.Hover(); err != nil {
		return err
	}
	if err := f.sleep(ctx, hoverPause); err != nil {
		return err
	}
	return el.Click()
}

func fill(ctx context.Context, sess Session, selector, value string, timeout time.Duration) error {
	el, err := sess.Element(ctx, selector, timeout)
	if err != nil {
		return err
	}
	if err := el.Clear(); err != nil {
		return err
	}
	return el.Input(value)
}

func clickSelector(selector string, timeout time.Duration) func(context.Context, Session) error {
	return func(ctx context.Context, sess Session) error {
		el, err := sess.Element(ctx, selector, timeout)
		if err != nil {
			return err
		}
		return el.Click()
	}
}

func clickText(text string, timeout time.Duration) func(context.Context, Session) error {
	return func(ctx context.Context, sess Session) error {
		el, err := sess.ElementByText(ctx, selClickable, text, timeout)
		if err != nil {
			return err
		}
		return el.Click()
	}
}
