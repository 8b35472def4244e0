// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package mailer delivers one-time codes and other account notices.

Two back-ends exist:

  - LogDeliverer: writes the message to the structured log (development).
  - SMTPDeliverer: sends a plain-text mail through an SMTP relay using STARTTLS.

Delivery is fire-and-forget from the caller's point of view: the auth service
logs a failed delivery and carries on.
*/
package mailer

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/taibuivan/yomira-auth/internal/platform/config"
	"github.com/taibuivan/yomira-auth/internal/platform/ctxutil"
)

// defaultSendTimeout bounds a single SMTP conversation when ctx has no deadline.
const defaultSendTimeout = 15 * time.Second

// Message is a delivered notice.
type Message struct {
	Subject string
	Body    string
}

// # Log Back-end

// LogDeliverer prints messages to the log instead of sending them.
type LogDeliverer struct {
	logger *slog.Logger
}

// NewLogDeliverer returns a deliverer writing through logger.
func NewLogDeliverer(logger *slog.Logger) *LogDeliverer {
	return &LogDeliverer{logger: logger}
}

// Deliver logs the message. It never fails.
func (deliverer *LogDeliverer) Deliver(ctx context.Context, recipient string, message Message) error {
	deliverer.logger.InfoContext(ctx, "mail_delivered_to_log",
		slog.String("request_id", ctxutil.GetRequestID(ctx)),
		slog.String("recipient", recipient),
		slog.String("subject", message.Subject),
		slog.String("body", message.Body),
	)
	return nil
}

// # SMTP Back-end

// SMTPDeliverer sends messages through an SMTP relay.
type SMTPDeliverer struct {
	host     string
	port     int
	username string
	password string
	from     string
}

// NewSMTPDeliverer builds a deliverer from the mail configuration.
func NewSMTPDeliverer(cfg config.MailConfig) *SMTPDeliverer {
	return &SMTPDeliverer{
		host:     cfg.Host,
		port:     cfg.Port,
		username: cfg.Username,
		password: cfg.Password,
		from:     cfg.From,
	}
}

/*
Deliver sends message to recipient.

The conversation upgrades to TLS whenever the server offers STARTTLS and only
authenticates over an encrypted channel.

Returns:
  - error: Wrapped as mailer_smtp_<step>_failed
*/
func (deliverer *SMTPDeliverer) Deliver(ctx context.Context, recipient string, message Message) error {
	if strings.ContainsAny(recipient, "\r\n") {
		return errors.New("mailer_smtp_recipient_failed: invalid recipient")
	}

	dialer := net.Dialer{Timeout: defaultSendTimeout}
	address := net.JoinHostPort(deliverer.host, strconv.Itoa(deliverer.port))

	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return fmt.Errorf("mailer_smtp_dial_failed: %w", err)
	}
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(defaultSendTimeout)
	}
	_ = conn.SetDeadline(deadline)

	client, err := smtp.NewClient(conn, deliverer.host)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("mailer_smtp_handshake_failed: %w", err)
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: deliverer.host, MinVersion: tls.VersionTLS12}); err != nil {
			return fmt.Errorf("mailer_smtp_starttls_failed: %w", err)
		}
	}

	if deliverer.username != "" {
		auth := smtp.PlainAuth("", deliverer.username, deliverer.password, deliverer.host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("mailer_smtp_auth_failed: %w", err)
		}
	}

	if err := client.Mail(deliverer.from); err != nil {
		return fmt.Errorf("mailer_smtp_mail_from_failed: %w", err)
	}
	if err := client.Rcpt(recipient); err != nil {
		return fmt.Errorf("mailer_smtp_rcpt_failed: %w", err)
	}

	writer, err := client.Data()
	if err != nil {
		return fmt.Errorf("mailer_smtp_data_failed: %w", err)
	}
	if _, err := writer.Write(buildMessage(deliverer.from, recipient, message, time.Now())); err != nil {
		_ = writer.Close()
		return fmt.Errorf("mailer_smtp_write_failed: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("mailer_smtp_data_failed: %w", err)
	}

	return client.Quit()
}

// buildMessage renders a minimal RFC 5322 plain-text message.
func buildMessage(from, to string, message Message, now time.Time) []byte {
	var buf bytes.Buffer

	headers := [][2]string{
		{"From", from},
		{"To", to},
		{"Subject", mime.QEncoding.Encode("utf-8", message.Subject)},
		{"Date", now.UTC().Format(time.RFC1123Z)},
		{"Message-ID", "<" + uuid.NewString() + "@" + domainOf(from) + ">"},
		{"MIME-Version", "1.0"},
		{"Content-Type", "text/plain; charset=UTF-8"},
		{"Content-Transfer-Encoding", "8bit"},
	}
	for _, header := range headers {
		buf.WriteString(header[0] + ": " + header[1] + "\r\n")
	}
	buf.WriteString("\r\n")
	buf.WriteString(strings.ReplaceAll(message.Body, "\n", "\r\n"))
	buf.WriteString("\r\n")

	return buf.Bytes()
}

func domainOf(address string) string {
	if at := strings.LastIndexByte(address, '@'); at >= 0 && at < len(address)-1 {
		return address[at+1:]
	}
	return "localhost"
}
