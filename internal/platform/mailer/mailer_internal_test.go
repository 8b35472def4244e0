// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

/*
TestBuildMessage renders CRLF-separated headers and body.
*/
func TestBuildMessage(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	raw := string(buildMessage("no-reply@yomira.app", "alice@x.com", Message{
		Subject: "Your activation code",
		Body:    "Code: 123456\nValid for 5 minutes.",
	}, now))

	head, body, found := strings.Cut(raw, "\r\n\r\n")
	require.True(t, found)

	assert.Contains(t, head, "From: no-reply@yomira.app\r\n")
	assert.Contains(t, head, "To: alice@x.com\r\n")
	assert.Contains(t, head, "Subject: Your activation code\r\n")
	assert.Contains(t, head, "Date: Sun, 01 Mar 2026 12:00:00 +0000")
	assert.Contains(t, head, "@yomira.app>")
	assert.Equal(t, "Code: 123456\r\nValid for 5 minutes.\r\n", body)
}

/*
TestBuildMessage_EncodesNonASCIISubject keeps headers 7-bit.
*/
func TestBuildMessage_EncodesNonASCIISubject(t *testing.T) {
	raw := string(buildMessage("a@b.c", "d@e.f", Message{Subject: "Mã kích hoạt"}, time.Now()))
	assert.Contains(t, raw, "Subject: =?utf-8?q?")
}

/*
TestLogDeliverer writes recipient and body to the log.
*/
func TestLogDeliverer(t *testing.T) {
	var buf bytes.Buffer
	deliverer := NewLogDeliverer(slog.New(slog.NewJSONHandler(&buf, nil)))

	require.NoError(t, deliverer.Deliver(context.Background(), "alice@x.com", Message{Subject: "s", Body: "123456"}))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "mail_delivered_to_log", entry["msg"])
	assert.Equal(t, "alice@x.com", entry["recipient"])
	assert.Equal(t, "123456", entry["body"])
}

/*
TestSMTPDeliverer_RejectsHeaderInjection refuses recipients carrying line breaks.
*/
func TestSMTPDeliverer_RejectsHeaderInjection(t *testing.T) {
	deliverer := &SMTPDeliverer{host: "127.0.0.1", port: 1}
	err := deliverer.Deliver(context.Background(), "a@x.com\r\nBcc: evil@x.com", Message{})
	assert.ErrorContains(t, err, "invalid recipient")
}
