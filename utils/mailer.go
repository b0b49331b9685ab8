package utils

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/cppla/we-api/config"
)

// Mailer delivers plain text messages.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// NewMailer returns an SMTP mailer, or a LogMailer when SMTP is not configured.
func NewMailer(cfg config.SMTPSection, log *zap.Logger) Mailer {
	if cfg.Host == "" || cfg.From == "" {
		return LogMailer{Log: log}
	}
	return &SMTPMailer{cfg: cfg}
}

// LogMailer writes messages to the debug log instead of sending them. Development only.
type LogMailer struct {
	Log *zap.Logger
}

func (m LogMailer) Send(_ context.Context, _, subject, body string) error {
	m.Log.Debug("smtp not configured, mail not sent", zap.String("subject", subject), zap.String("body", body))
	return nil
}

type SMTPMailer struct {
	cfg config.SMTPSection
}

// Send sends a plain text email using SMTP settings from config.
func (m *SMTPMailer) Send(ctx context.Context, to, subject, body string) error {
	cfg := m.cfg
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	auth := smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)

	fromName := cfg.FromName
	if fromName == "" {
		fromName = "We"
	}
	msg := buildMessage(fmt.Sprintf("%s <%s>", encodeRFC2047(fromName), cfg.From), to, subject, body)

	if !cfg.TLS {
		// Plain SMTP without TLS (not recommended)
		return smtp.SendMail(addr, auth, cfg.From, []string{to}, []byte(msg))
	}

	// STARTTLS with timeouts
	d := net.Dialer{Timeout: 5 * time.Second}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	// ensure we don't hang forever
	_ = conn.SetDeadline(time.Now().Add(15 * time.Second))
	c, err := smtp.NewClient(conn, cfg.Host)
	if err != nil {
		_ = conn.Close()
		return err
	}
	defer c.Close()
	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: cfg.Host}); err != nil {
			return err
		}
	}
	if cfg.Username != "" {
		if err := c.Auth(auth); err != nil {
			return err
		}
	}
	if err := c.Mail(cfg.From); err != nil {
		return err
	}
	if err := c.Rcpt(to); err != nil {
		return err
	}
	wc, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := wc.Write([]byte(msg)); err != nil {
		_ = wc.Close()
		return err
	}
	if err := wc.Close(); err != nil {
		return err
	}
	return c.Quit()
}

func buildMessage(from, to, subject, body string) string {
	var msg strings.Builder
	for _, h := range [][2]string{
		{"From", from},
		{"To", to},
		{"Subject", encodeRFC2047(subject)},
		{"MIME-Version", "1.0"},
		{"Content-Type", "text/plain; charset=UTF-8"},
	} {
		msg.WriteString(h[0] + ": " + h[1] + "\r\n")
	}
	msg.WriteString("\r\n")
	msg.WriteString(body)
	return msg.String()
}

// encodeRFC2047 encodes a string for non-ASCII mail headers
func encodeRFC2047(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] >= 128 {
			return "=?UTF-8?B?" + base64.StdEncoding.EncodeToString([]byte(s)) + "?="
		}
	}
	return s
}
