package mail

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/opencamphq/campd/internal/provider"
)

// testLogger returns a logger that discards all output.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func validConfig() Config {
	return Config{
		Host:     "mail.example.org",
		Username: "campd",
		Password: "hunter22hunter22",
		From:     "noreply@example.org",
	}
}

func Test_Config_Validate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing host", func(c *Config) { c.Host = "" }},
		{"missing sender", func(c *Config) { c.From = "" }},
		{"malformed sender", func(c *Config) { c.From = "not-an-address" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := validConfig()
			tc.mutate(&cfg)
			_, err := cfg.validate()
			if !provider.IsKind(err, provider.KindConfiguration) {
				t.Errorf("want configuration error, got %v", err)
			}
		})
	}

	t.Run("defaults applied", func(t *testing.T) {
		t.Parallel()
		got, err := validConfig().validate()
		if err != nil {
			t.Fatalf("validate: %v", err)
		}
		if got.Port != 587 {
			t.Errorf("port: want 587, got %d", got.Port)
		}
		if got.Timeout != provider.DefaultTimeout {
			t.Errorf("timeout: want %v, got %v", provider.DefaultTimeout, got.Timeout)
		}
	})
}

func Test_Send_RecordsTransaction(t *testing.T) {
	t.Parallel()

	m, err := New(validConfig(), testLogger())
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte
	m.send = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, msg
		return nil
	}

	err = m.Send(context.Background(), "parent@example.com", "Registration confirmed", "See you at Pinewood!\nBring sunscreen.")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if gotAddr != "mail.example.org:587" {
		t.Errorf("addr: got %q", gotAddr)
	}
	if gotFrom != "noreply@example.org" {
		t.Errorf("from: got %q", gotFrom)
	}
	if len(gotTo) != 1 || gotTo[0] != "parent@example.com" {
		t.Errorf("to: got %v", gotTo)
	}

	msg := string(gotMsg)
	for _, want := range []string{
		"From: noreply@example.org\r\n",
		"To: parent@example.com\r\n",
		"Subject: Registration confirmed\r\n",
		"Content-Type: text/plain; charset=utf-8\r\n",
		"See you at Pinewood!\r\nBring sunscreen.",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("message missing %q:\n%s", want, msg)
		}
	}
}

func Test_Send_RejectsMalformedRecipient(t *testing.T) {
	t.Parallel()

	m, err := New(validConfig(), testLogger())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	m.send = func(string, smtp.Auth, string, []string, []byte) error {
		t.Fatal("send must not run for a malformed recipient")
		return nil
	}

	got := m.Send(context.Background(), "no-at-sign", "s", "b")
	if !provider.IsKind(got, provider.KindValidation) {
		t.Errorf("want validation error, got %v", got)
	}
}

func Test_Send_ServerFailure(t *testing.T) {
	t.Parallel()

	m, err := New(validConfig(), testLogger())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	m.send = func(string, smtp.Auth, string, []string, []byte) error {
		return errors.New("550 mailbox unavailable")
	}

	got := m.Send(context.Background(), "parent@example.com", "s", "b")
	if !provider.IsKind(got, provider.KindServer) {
		t.Errorf("want server error, got %v", got)
	}
}

func Test_Ping(t *testing.T) {
	t.Parallel()

	m, err := New(validConfig(), testLogger())
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	t.Run("reachable", func(t *testing.T) {
		t.Parallel()
		probe := *m
		probe.dial = func(_, addr string, _ time.Duration) (net.Conn, error) {
			if addr != "mail.example.org:587" {
				t.Errorf("dial addr: got %q", addr)
			}
			server, client := net.Pipe()
			go func() { _, _ = io.Copy(io.Discard, server) }()
			return client, nil
		}
		if err := probe.Ping(context.Background()); err != nil {
			t.Errorf("ping: %v", err)
		}
	})

	t.Run("unreachable", func(t *testing.T) {
		t.Parallel()
		probe := *m
		probe.dial = func(string, string, time.Duration) (net.Conn, error) {
			return nil, errors.New("connection refused")
		}
		if err := probe.Ping(context.Background()); !provider.IsKind(err, provider.KindServer) {
			t.Errorf("want server error, got %v", err)
		}
	})
}

func Test_buildMessage_EncodesSubject(t *testing.T) {
	t.Parallel()

	msg := string(buildMessage("a@b.c", "d@e.f", "Lager bestätigt", "hi"))
	if strings.Contains(msg, "Subject: Lager bestätigt") {
		t.Error("non-ASCII subject must be encoded")
	}
	if !strings.Contains(msg, "Subject: =?utf-8?q?") {
		t.Errorf("want Q-encoded subject, got:\n%s", msg)
	}
}
