package notify

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"log/slog"
	"net/smtp"
	"strings"
	"testing"

	"github.com/aluiziolira/saturday-punter/config"
	"github.com/aluiziolira/saturday-punter/models"
	"github.com/jordan-wright/email"
)

type stubSecrets map[string]string

func (s stubSecrets) Get(service, user string) (string, error) {
	if v, ok := s[service]; ok {
		return v, nil
	}
	return "", errors.New("not found")
}

type capture struct {
	mail  *email.Email
	addr  string
	auth  smtp.Auth
	tls   *tls.Config
	calls int
	err   error
}

func (c *capture) send(mail *email.Email, addr string, auth smtp.Auth, tlsConfig *tls.Config) error {
	c.calls++
	c.mail, c.addr, c.auth, c.tls = mail, addr, auth, tlsConfig
	return c.err
}

func testNotifier(t *testing.T, mutate func(*config.Config), secrets stubSecrets, c *capture) *Notifier {
	t.Helper()
	t.Setenv("NOTIFICATION_EMAIL_PASSWORD", "")
	cfg := config.DefaultConfig()
	cfg.DashboardURL = "http://desk.example.test:8501"
	cfg.Notification.NotificationEmail = "ops@example.test"
	cfg.Notification.ChooserEmail = "chooser@example.test"
	if mutate != nil {
		mutate(cfg)
	}
	return New(cfg,
		WithSecretStore(secrets),
		WithTransport(c.send),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
}

func TestSendDefaultsToChooser(t *testing.T) {
	c := &capture{}
	n := testNotifier(t, nil, stubSecrets{config.EmailKeyringService: "abcd efgh ijkl"}, c)

	if err := n.Send(context.Background(), "Selections", "<html><body><p>hi</p></body></html>", ""); err != nil {
		t.Fatalf("send: %v", err)
	}
	if c.calls != 1 {
		t.Fatalf("transport calls = %d, want 1", c.calls)
	}
	if c.mail.From != "ops@example.test" {
		t.Fatalf("from = %q, want notification email fallback", c.mail.From)
	}
	if len(c.mail.To) != 1 || c.mail.To[0] != "chooser@example.test" {
		t.Fatalf("to = %v", c.mail.To)
	}
	if c.mail.Subject != "🏇 Selections" {
		t.Fatalf("subject = %q", c.mail.Subject)
	}
	if c.addr != "smtp.gmail.com:465" || c.tls.ServerName != "smtp.gmail.com" {
		t.Fatalf("addr = %q, server name = %q", c.addr, c.tls.ServerName)
	}
	if c.auth == nil {
		t.Fatalf("expected PLAIN auth")
	}
}

func TestSendPrefersSenderAndExplicitRecipient(t *testing.T) {
	c := &capture{}
	n := testNotifier(t, func(cfg *config.Config) {
		cfg.Notification.SenderEmail = "sender@example.test"
	}, stubSecrets{config.EmailKeyringService: "secret"}, c)

	if err := n.Send(context.Background(), "s", "<p>x</p>", "other@example.test"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if c.mail.From != "sender@example.test" || c.mail.To[0] != "other@example.test" {
		t.Fatalf("from = %q, to = %v", c.mail.From, c.mail.To)
	}
}

func TestSendMissingConfig(t *testing.T) {
	c := &capture{}
	n := testNotifier(t, func(cfg *config.Config) {
		cfg.Notification.NotificationEmail = ""
	}, stubSecrets{config.EmailKeyringService: "secret"}, c)

	if err := n.Send(context.Background(), "s", "b", ""); !errors.Is(err, ErrMissingEmailConfig) {
		t.Fatalf("err = %v, want ErrMissingEmailConfig", err)
	}
	if c.calls != 0 {
		t.Fatalf("transport must not be called")
	}
}

func TestSendMissingPassword(t *testing.T) {
	c := &capture{}
	n := testNotifier(t, nil, stubSecrets{config.EmailKeyringService: "   "}, c)

	if err := n.Send(context.Background(), "s", "b", ""); !errors.Is(err, ErrMissingEmailPassword) {
		t.Fatalf("err = %v, want ErrMissingEmailPassword", err)
	}
	if c.calls != 0 {
		t.Fatalf("transport must not be called")
	}
}

func TestSendEnvironmentPassword(t *testing.T) {
	c := &capture{}
	n := testNotifier(t, nil, stubSecrets{}, c)
	t.Setenv("NOTIFICATION_EMAIL_PASSWORD", "from env")

	if err := n.Send(context.Background(), "s", "b", ""); err != nil {
		t.Fatalf("send: %v", err)
	}
}

func TestSendTransportFailure(t *testing.T) {
	c := &capture{err: errors.New("535 bad credentials")}
	n := testNotifier(t, nil, stubSecrets{config.EmailKeyringService: "secret"}, c)

	err := n.Send(context.Background(), "s", "b", "")
	if err == nil || !strings.Contains(err.Error(), "535") {
		t.Fatalf("err = %v, want wrapped transport error", err)
	}
}

func TestSendCanceled(t *testing.T) {
	c := &capture{}
	n := testNotifier(t, nil, stubSecrets{config.EmailKeyringService: "secret"}, c)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := n.Send(ctx, "s", "b", ""); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if c.calls != 0 {
		t.Fatalf("transport must not be called")
	}
}

func TestComposeParts(t *testing.T) {
	n := testNotifier(t, nil, nil, &capture{})

	mail, err := n.Compose("Subject line", "<html><body><p>body</p></body></html>", "")
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	text := string(mail.Text)
	if !strings.Contains(text, "Subject line") || !strings.Contains(text, "OPEN TRADING DESK: http://desk.example.test:8501") {
		t.Fatalf("text part = %q", text)
	}
	html := string(mail.HTML)
	want := "<p>Or open: <a href='http://desk.example.test:8501'>http://desk.example.test:8501</a></p></body>"
	if !strings.Contains(html, want) {
		t.Fatalf("html part missing fallback link: %q", html)
	}

	fragment, err := n.Compose("s", "<p>fragment</p>", "")
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	if strings.Contains(string(fragment.HTML), "Or open") {
		t.Fatalf("fragment without </body> should be left alone: %q", fragment.HTML)
	}
}

func TestReadyEmail(t *testing.T) {
	set := &models.SelectionSet{
		Source: "/tmp/downloads/ExportSelections The Buccaneer <1>.csv",
		Stats:  models.SelectionStats{Rows: 42, Venues: 5, Ultimates: 7},
	}
	subject, body, err := ReadyEmail(set, "http://localhost:8501")
	if err != nil {
		t.Fatalf("ready email: %v", err)
	}
	if subject != "Please choose Saturday Punter selections (42 Runners)" {
		t.Fatalf("subject = %q", subject)
	}
	for _, want := range []string{
		"Saturday Racing Data Ready",
		"<b>Total Runners:</b> 42",
		"<b>Venues:</b> 5",
		"ExportSelections The Buccaneer &lt;1&gt;.csv",
		`href="http://localhost:8501"`,
		"Open Trading Desk",
		"</body>",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("body missing %q:\n%s", want, body)
		}
	}
	if strings.Contains(body, "/tmp/downloads") {
		t.Fatalf("body should name the file, not the path")
	}
}

func TestSimulationEmail(t *testing.T) {
	subject, body, err := SimulationEmail("http://localhost:8501")
	if err != nil {
		t.Fatalf("simulation email: %v", err)
	}
	if !strings.Contains(subject, "(Simulation)") || !strings.Contains(body, "Test Mode") {
		t.Fatalf("subject = %q body = %q", subject, body)
	}
}
