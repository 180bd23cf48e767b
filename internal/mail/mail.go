// Package mail implements the provider.Mailer capability over SMTP.
// Registration confirmations and waitlist notices go through here; like every
// provider the mailer is optional and the registry hands out nil when the
// SMTP settings are absent.
package mail

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/opencamphq/campd/internal/provider"
)

// Config holds the SMTP connection settings.
type Config struct {
	// Host is the SMTP server hostname. Mandatory.
	Host string
	// Port is the SMTP port. Defaults to 587 (submission with STARTTLS).
	Port int
	// Username and Password authenticate via PLAIN when both are set.
	// Servers without auth (local relays) may leave them empty.
	Username string
	Password string
	// From is the sender address on outgoing mail. Mandatory.
	From string
	// Timeout bounds the reachability probe. Defaults to provider.DefaultTimeout.
	Timeout time.Duration
}

// validate checks mandatory fields and returns a copy with defaults applied.
func (c Config) validate() (Config, error) {
	if c.Host == "" {
		return Config{}, provider.NewError(provider.KindConfiguration, "smtp host is not set")
	}
	if c.From == "" {
		return Config{}, provider.NewError(provider.KindConfiguration, "smtp sender address is not set")
	}
	if !strings.Contains(c.From, "@") {
		return Config{}, provider.NewError(provider.KindConfiguration,
			fmt.Sprintf("smtp sender address %q is not a mail address", c.From))
	}
	out := c
	if out.Port <= 0 {
		out.Port = 587
	}
	if out.Timeout <= 0 {
		out.Timeout = provider.DefaultTimeout
	}
	return out, nil
}

// sendFunc matches smtp.SendMail; tests swap in a recorder.
type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Mailer implements provider.Mailer over a plain SMTP submission.
type Mailer struct {
	// cfg is the validated, immutable configuration.
	cfg Config
	// send performs the SMTP transaction. smtp.SendMail in production.
	send sendFunc
	// dial probes the server for Ping. net.DialTimeout in production.
	dial func(network, addr string, timeout time.Duration) (net.Conn, error)
	// log is the structured logger, tagged with the provider name.
	log *slog.Logger
}

// New validates cfg and returns a ready Mailer.
func New(cfg Config, log *slog.Logger) (*Mailer, error) {
	validated, err := cfg.validate()
	if err != nil {
		return nil, err
	}
	return &Mailer{
		cfg:  validated,
		send: smtp.SendMail,
		dial: net.DialTimeout,
		log:  log.With(slog.String("provider", "smtp")),
	}, nil
}

// Name returns the vendor label.
func (m *Mailer) Name() string { return "smtp" }

// addr returns the host:port dial target.
func (m *Mailer) addr() string {
	return net.JoinHostPort(m.cfg.Host, fmt.Sprintf("%d", m.cfg.Port))
}

// auth returns the PLAIN auth when credentials are configured, nil otherwise.
func (m *Mailer) auth() smtp.Auth {
	if m.cfg.Username == "" {
		return nil
	}
	return smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
}

// Ping checks that the SMTP server accepts TCP connections.
func (m *Mailer) Ping(_ context.Context) error {
	conn, err := m.dial("tcp", m.addr(), m.cfg.Timeout)
	if err != nil {
		return provider.NewError(provider.KindServer,
			fmt.Sprintf("smtp server %s is unreachable", m.addr()))
	}
	_ = conn.Close()
	return nil
}

// Send delivers a plain-text message to a single recipient. The context
// deadline is not plumbed into net/smtp (it has no context API); the dial
// timeout bounds the slow path instead.
func (m *Mailer) Send(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return provider.Classify(err)
	}
	if !strings.Contains(to, "@") {
		return provider.NewError(provider.KindValidation,
			fmt.Sprintf("recipient %q is not a mail address", to))
	}

	msg := buildMessage(m.cfg.From, to, subject, body)
	if err := m.send(m.addr(), m.auth(), m.cfg.From, []string{to}, msg); err != nil {
		return provider.NewError(provider.KindServer, fmt.Sprintf("smtp send failed: %v", err))
	}

	m.log.Info("mail sent",
		slog.String("to", to),
		slog.String("subject", subject),
	)
	return nil
}

// buildMessage renders an RFC 5322 plain-text message. The subject is
// Q-encoded so registrations with non-ASCII camp names survive transit.
func buildMessage(from, to, subject, body string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	return []byte(b.String())
}

// Compile-time capability check.
var _ provider.Mailer = (*Mailer)(nil)
