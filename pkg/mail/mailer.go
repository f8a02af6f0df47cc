package mail

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/mail"
	"net/smtp"
	"strconv"
	"strings"
	"time"
)

// ErrSMTPDisabled is returned when configuration turns SMTP delivery off.
// Callers that treat email as best-effort check for it with errors.Is.
var ErrSMTPDisabled = errors.New("smtp: delivery disabled")

// Message represents an outbound email. From is optional; when empty the
// configured sender address is used.
type Message struct {
	From    string
	To      []string
	Subject string
	Body    string
}

// Mailer abstracts outbound message delivery.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPSettings carries the dialer parameters for the SMTP mailer.
type SMTPSettings struct {
	Enabled  bool
	Host     string
	Port     int
	Username string
	Password string
	From     string
	UseTLS   bool
	Timeout  time.Duration
}

// deliverFunc performs the SMTP exchange for an already validated message.
// Tests substitute it to capture the payload without a network round trip.
type deliverFunc func(ctx context.Context, cfg SMTPSettings, from string, recipients []string, payload string) error

type smtpMailer struct {
	cfg     SMTPSettings
	deliver deliverFunc
	now     func() time.Time
}

// NewSMTPMailer builds a Mailer speaking SMTP with implicit TLS or
// opportunistic STARTTLS. A disabled configuration still yields a usable
// Mailer whose Send returns ErrSMTPDisabled.
func NewSMTPMailer(cfg SMTPSettings) (Mailer, error) {
	if cfg.Enabled {
		if strings.TrimSpace(cfg.Host) == "" {
			return nil, errors.New("smtp: host is required when enabled")
		}
		if cfg.Port == 0 {
			return nil, errors.New("smtp: port is required when enabled")
		}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	return &smtpMailer{
		cfg:     cfg,
		deliver: deliverSMTP,
		now:     time.Now,
	}, nil
}

func (m *smtpMailer) Send(ctx context.Context, msg Message) error {
	if !m.cfg.Enabled {
		return ErrSMTPDisabled
	}

	from := strings.TrimSpace(msg.From)
	if from == "" {
		from = strings.TrimSpace(m.cfg.From)
	}
	if from == "" {
		return errors.New("smtp: sender address is required")
	}
	if _, err := mail.ParseAddress(from); err != nil {
		return fmt.Errorf("smtp: invalid from address: %w", err)
	}

	recipients := dedupeRecipients(msg.To)
	if len(recipients) == 0 {
		return errors.New("smtp: at least one recipient is required")
	}
	for _, rcpt := range recipients {
		if _, err := mail.ParseAddress(rcpt); err != nil {
			return fmt.Errorf("smtp: invalid recipient address %q: %w", rcpt, err)
		}
	}

	payload := buildPayload(from, recipients, msg.Subject, msg.Body, m.now())
	return m.deliver(ctx, m.cfg, from, recipients, payload)
}

func deliverSMTP(ctx context.Context, cfg SMTPSettings, from string, recipients []string, payload string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	address := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	dialer := &net.Dialer{Timeout: cfg.Timeout}

	var (
		conn net.Conn
		err  error
	)
	if cfg.UseTLS {
		tlsDialer := &tls.Dialer{NetDialer: dialer, Config: &tls.Config{ServerName: cfg.Host}}
		conn, err = tlsDialer.DialContext(ctx, "tcp", address)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", address)
	}
	if err != nil {
		return fmt.Errorf("smtp: dial %s: %w", address, err)
	}

	client, err := smtp.NewClient(conn, cfg.Host)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("smtp: handshake: %w", err)
	}
	// Close also closes the underlying connection; harmless after Quit.
	defer client.Close()

	if !cfg.UseTLS {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(&tls.Config{ServerName: cfg.Host}); err != nil {
				return fmt.Errorf("smtp: start tls: %w", err)
			}
		}
	}

	if strings.TrimSpace(cfg.Username) != "" {
		auth := smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("smtp: auth: %w", err)
		}
	}

	if err := client.Mail(from); err != nil {
		return fmt.Errorf("smtp: mail from: %w", err)
	}
	for _, rcpt := range recipients {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("smtp: rcpt to %s: %w", rcpt, err)
		}
	}

	wc, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp: data command: %w", err)
	}
	if _, err := io.WriteString(wc, payload); err != nil {
		_ = wc.Close()
		return fmt.Errorf("smtp: write body: %w", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("smtp: close data writer: %w", err)
	}

	return client.Quit()
}

// buildPayload renders the RFC 5322 message: header block, blank line, body.
func buildPayload(from string, to []string, subject, body string, sent time.Time) string {
	var b strings.Builder
	writeHeader(&b, "From", from)
	writeHeader(&b, "To", strings.Join(to, ", "))
	writeHeader(&b, "Subject", sanitizeHeader(subject))
	writeHeader(&b, "Date", sent.Format(time.RFC1123Z))
	writeHeader(&b, "MIME-Version", "1.0")
	writeHeader(&b, "Content-Type", "text/plain; charset=UTF-8")
	b.WriteString("\r\n")
	b.WriteString(body)
	return b.String()
}

func writeHeader(b *strings.Builder, name, value string) {
	b.WriteString(name)
	b.WriteString(": ")
	b.WriteString(value)
	b.WriteString("\r\n")
}

// sanitizeHeader strips CR and LF so caller-supplied values cannot inject
// additional headers.
func sanitizeHeader(value string) string {
	value = strings.ReplaceAll(value, "\r", " ")
	value = strings.ReplaceAll(value, "\n", " ")
	return value
}

func dedupeRecipients(addresses []string) []string {
	seen := make(map[string]struct{}, len(addresses))
	out := make([]string, 0, len(addresses))
	for _, addr := range addresses {
		addr = strings.TrimSpace(addr)
		if addr == "" {
			continue
		}
		if _, dup := seen[addr]; dup {
			continue
		}
		seen[addr] = struct{}{}
		out = append(out, addr)
	}
	return out
}
