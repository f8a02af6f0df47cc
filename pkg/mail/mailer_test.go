package mail

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestNewSMTPMailerValidatesConfig(t *testing.T) {
	if _, err := NewSMTPMailer(SMTPSettings{Enabled: true}); err == nil || !strings.Contains(err.Error(), "host is required") {
		t.Fatalf("expected host validation error, got %v", err)
	}

	if _, err := NewSMTPMailer(SMTPSettings{Enabled: true, Host: "smtp.example.com"}); err == nil || !strings.Contains(err.Error(), "port is required") {
		t.Fatalf("expected port validation error, got %v", err)
	}

	mailer, err := NewSMTPMailer(SMTPSettings{Enabled: false})
	if err != nil {
		t.Fatalf("expected disabled configuration to succeed: %v", err)
	}
	if mailer == nil {
		t.Fatal("expected mailer to be returned")
	}
}

func TestSendDisabledReturnsSentinel(t *testing.T) {
	mailer, err := NewSMTPMailer(SMTPSettings{Enabled: false})
	if err != nil {
		t.Fatalf("unexpected error creating mailer: %v", err)
	}

	err = mailer.Send(context.Background(), Message{
		To:      []string{"parent@example.com"},
		Subject: "Welcome",
		Body:    "Hello",
	})
	if !errors.Is(err, ErrSMTPDisabled) {
		t.Fatalf("expected ErrSMTPDisabled, got %v", err)
	}
}

func TestSendWritesHeadersAndBody(t *testing.T) {
	mailer := newTestMailer(t, SMTPSettings{
		Enabled: true,
		Host:    "smtp.example.com",
		Port:    587,
		From:    "no-reply@classpad.example.com",
	})

	sent := time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)
	mailer.now = func() time.Time { return sent }

	var gotFrom string
	var gotRecipients []string
	var gotPayload string
	mailer.deliver = func(_ context.Context, _ SMTPSettings, from string, recipients []string, payload string) error {
		gotFrom = from
		gotRecipients = recipients
		gotPayload = payload
		return nil
	}

	err := mailer.Send(context.Background(), Message{
		To:      []string{"parent@example.com", " parent@example.com ", "teacher@example.com"},
		Subject: "Line\r\nBreak",
		Body:    "Welcome aboard",
	})
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}

	if gotFrom != "no-reply@classpad.example.com" {
		t.Fatalf("expected configured sender, got %q", gotFrom)
	}
	if len(gotRecipients) != 2 {
		t.Fatalf("expected recipients deduplicated to 2, got %v", gotRecipients)
	}

	headers, body, found := strings.Cut(gotPayload, "\r\n\r\n")
	if !found {
		t.Fatalf("expected blank line between headers and body in %q", gotPayload)
	}
	if body != "Welcome aboard" {
		t.Fatalf("unexpected body %q", body)
	}
	if !strings.Contains(headers, "From: no-reply@classpad.example.com") {
		t.Fatalf("missing From header in %q", headers)
	}
	if !strings.Contains(headers, "To: parent@example.com, teacher@example.com") {
		t.Fatalf("missing To header in %q", headers)
	}
	if !strings.Contains(headers, "Subject: Line  Break") {
		t.Fatalf("expected sanitised subject in %q", headers)
	}
	if !strings.Contains(headers, "Date: "+sent.Format(time.RFC1123Z)) {
		t.Fatalf("missing Date header in %q", headers)
	}
}

func TestSendRejectsMissingRecipients(t *testing.T) {
	mailer := newTestMailer(t, SMTPSettings{
		Enabled: true,
		Host:    "smtp.example.com",
		Port:    587,
		From:    "no-reply@classpad.example.com",
	})
	mailer.deliver = failDeliver(t)

	err := mailer.Send(context.Background(), Message{
		To:      []string{"   ", "\t"},
		Subject: "No recipients",
		Body:    "Body",
	})
	if err == nil || !strings.Contains(err.Error(), "at least one recipient") {
		t.Fatalf("expected missing recipient error, got %v", err)
	}
}

func TestSendRejectsInvalidSender(t *testing.T) {
	mailer := newTestMailer(t, SMTPSettings{
		Enabled: true,
		Host:    "smtp.example.com",
		Port:    587,
	})
	mailer.deliver = failDeliver(t)

	err := mailer.Send(context.Background(), Message{
		To: []string{"parent@example.com"},
	})
	if err == nil || !strings.Contains(err.Error(), "sender address is required") {
		t.Fatalf("expected missing sender error, got %v", err)
	}

	err = mailer.Send(context.Background(), Message{
		From: "not-an-address",
		To:   []string{"parent@example.com"},
	})
	if err == nil || !strings.Contains(err.Error(), "invalid from address") {
		t.Fatalf("expected invalid from error, got %v", err)
	}
}

func TestSendRejectsInvalidRecipient(t *testing.T) {
	mailer := newTestMailer(t, SMTPSettings{
		Enabled: true,
		Host:    "smtp.example.com",
		Port:    587,
		From:    "no-reply@classpad.example.com",
	})
	mailer.deliver = failDeliver(t)

	err := mailer.Send(context.Background(), Message{
		To: []string{"parent@example.com", "bad-address"},
	})
	if err == nil || !strings.Contains(err.Error(), "invalid recipient address") {
		t.Fatalf("expected invalid recipient error, got %v", err)
	}
}

func TestDefaultTimeoutApplied(t *testing.T) {
	mailer := newTestMailer(t, SMTPSettings{
		Enabled: true,
		Host:    "smtp.example.com",
		Port:    587,
		From:    "no-reply@classpad.example.com",
		UseTLS:  true,
	})

	if mailer.cfg.Timeout != 10*time.Second {
		t.Fatalf("expected default 10s timeout, got %v", mailer.cfg.Timeout)
	}
}

func TestDedupeRecipients(t *testing.T) {
	addresses := []string{"alice@example.com", "bob@example.com", " alice@example.com ", "", "bob@example.com"}
	result := dedupeRecipients(addresses)
	if len(result) != 2 {
		t.Fatalf("expected 2 unique addresses, got %d: %v", len(result), result)
	}
	if result[0] != "alice@example.com" || result[1] != "bob@example.com" {
		t.Fatalf("unexpected result order or content: %v", result)
	}
}

func newTestMailer(t *testing.T, cfg SMTPSettings) *smtpMailer {
	t.Helper()

	mailer, err := NewSMTPMailer(cfg)
	if err != nil {
		t.Fatalf("unexpected error creating mailer: %v", err)
	}
	sm, ok := mailer.(*smtpMailer)
	if !ok {
		t.Fatalf("expected *smtpMailer, got %T", mailer)
	}
	return sm
}

func failDeliver(t *testing.T) deliverFunc {
	return func(context.Context, SMTPSettings, string, []string, string) error {
		t.Helper()
		t.Fatal("deliver must not be reached for invalid messages")
		return nil
	}
}
