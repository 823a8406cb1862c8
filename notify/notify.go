// Package notify emails the chooser when a cleaned selection set is ready.
package notify

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"net"
	"net/smtp"
	"strconv"
	"strings"

	"github.com/aluiziolira/saturday-punter/config"
	"github.com/jordan-wright/email"
)

var (
	// ErrMissingEmailConfig means no sender or no recipient is configured.
	ErrMissingEmailConfig = errors.New("missing email config: set sender_email (or notification_email) and chooser_email")
	// ErrMissingEmailPassword means neither the environment nor the keyring holds the sender password.
	ErrMissingEmailPassword = errors.New("email password not found (set NOTIFICATION_EMAIL_PASSWORD or store it in the keyring)")
)

const (
	subjectPrefix  = "🏇 "
	passwordEnvKey = "NOTIFICATION_EMAIL_PASSWORD"
	bodyCloseTag   = "</body>"
)

// Transport delivers a composed message.
type Transport func(mail *email.Email, addr string, auth smtp.Auth, tlsConfig *tls.Config) error

func sendWithTLS(mail *email.Email, addr string, auth smtp.Auth, tlsConfig *tls.Config) error {
	return mail.SendWithTLS(addr, auth, tlsConfig)
}

// Notifier sends HTML notifications over SMTP with implicit TLS.
type Notifier struct {
	cfg          config.NotificationConfig
	dashboardURL string
	secrets      config.SecretStore
	transport    Transport
	logger       *slog.Logger
}

// Option customises a Notifier.
type Option func(*Notifier)

// WithSecretStore replaces the OS keyring.
func WithSecretStore(store config.SecretStore) Option {
	return func(n *Notifier) { n.secrets = store }
}

// WithTransport replaces the SMTP delivery.
func WithTransport(t Transport) Option {
	return func(n *Notifier) { n.transport = t }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(n *Notifier) { n.logger = logger }
}

// New builds a Notifier from the loaded configuration.
func New(cfg *config.Config, opts ...Option) *Notifier {
	n := &Notifier{
		cfg:          cfg.Notification,
		dashboardURL: cfg.DashboardURL,
		secrets:      config.KeyringStore{},
		transport:    sendWithTLS,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(n)
	}
	n.logger = n.logger.With(slog.String("component", "notify"))
	return n
}

// Send emails subject and bodyHTML to "to", or to the chooser when to is empty.
func (n *Notifier) Send(ctx context.Context, subject, bodyHTML, to string) error {
	mail, err := n.Compose(subject, bodyHTML, to)
	if err != nil {
		return err
	}

	password := strings.ReplaceAll(config.LookupSecret(passwordEnvKey, config.EmailKeyringService, n.secrets), " ", "")
	password = strings.TrimSpace(password)
	if password == "" {
		return ErrMissingEmailPassword
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	host := n.cfg.SMTPHost
	addr := net.JoinHostPort(host, strconv.Itoa(n.cfg.SMTPPort))
	n.logger.Info("sending email",
		slog.String("from", mail.From),
		slog.Any("to", mail.To),
		slog.String("addr", addr),
		slog.Int("password_len", len(password)),
	)

	auth := smtp.PlainAuth("", mail.From, password, host)
	if err := n.transport(mail, addr, auth, &tls.Config{ServerName: host}); err != nil {
		return fmt.Errorf("send email: %w", err)
	}

	n.logger.Info("email sent", slog.String("status", "ok"), slog.Any("to", mail.To))
	return nil
}

// Compose builds the message without sending it. The plain-text part always
// carries the dashboard link; the HTML part gains a fallback link before
// </body> when the body has one.
func (n *Notifier) Compose(subject, bodyHTML, to string) (*email.Email, error) {
	from := n.cfg.SenderEmail
	if from == "" {
		from = n.cfg.NotificationEmail
	}
	if to == "" {
		to = n.cfg.ChooserEmail
	}
	if from == "" || to == "" {
		return nil, ErrMissingEmailConfig
	}

	mail := email.NewEmail()
	mail.From = from
	mail.To = []string{to}
	mail.Subject = subjectPrefix + subject
	mail.Text = []byte(plainText(subject, n.dashboardURL))
	mail.HTML = []byte(withFallbackLink(bodyHTML, n.dashboardURL))
	return mail, nil
}

func plainText(subject, dashboardURL string) string {
	var b strings.Builder
	b.WriteString(subject + "\n\n")
	b.WriteString("The system has processed the latest data.\n\n")
	b.WriteString("OPEN TRADING DESK: " + dashboardURL + "\n\n")
	b.WriteString("(If the link above is not clickable, copy and paste it into your browser)\n")
	return b.String()
}

func withFallbackLink(bodyHTML, dashboardURL string) string {
	escaped := html.EscapeString(dashboardURL)
	link := fmt.Sprintf("<p>Or open: <a href='%s'>%s</a></p>", escaped, escaped)
	return strings.ReplaceAll(bodyHTML, bodyCloseTag, link+bodyCloseTag)
}
