// Package delivery renders planned envelopes as RFC 5322 messages and
// hands them to the outbound SMTP relay.
package delivery

import (
	"bytes"
	"fmt"
	"time"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"

	"github.com/leolive/onebody/mailroom"
	"github.com/leolive/onebody/server/idgen"
)

// Render builds the wire form of one envelope. Deliveries carry the
// planner's message-id with the embedded correlation token; rejections
// get a fresh id and are marked auto-replied so they never trigger
// counter-bounces.
func Render(env *mailroom.Envelope, hostname string) ([]byte, error) {
	from := mail.Address{Name: env.FromName, Address: env.From}

	messageID := env.MessageID
	if messageID == "" {
		messageID = fmt.Sprintf("<%s@%s>", idgen.New(), hostname)
	}

	var msgHeader message.Header
	msgHeader.Set("From", from.String())
	msgHeader.Set("To", env.To)
	msgHeader.Set("Subject", env.Subject)
	msgHeader.Set("Message-ID", messageID)
	msgHeader.Set("Date", time.Now().Format(time.RFC1123Z))
	if env.Rejection {
		msgHeader.Set("Auto-Submitted", "auto-replied")
		msgHeader.Set("X-Auto-Response-Suppress", "All")
	}
	if env.HTMLBody != "" {
		msgHeader.Set("Content-Type", "multipart/alternative")
	} else {
		msgHeader.Set("Content-Type", "text/plain; charset=utf-8")
	}

	var buf bytes.Buffer
	w, err := message.CreateWriter(&buf, msgHeader)
	if err != nil {
		return nil, fmt.Errorf("failed to create message writer: %w", err)
	}

	if env.HTMLBody == "" {
		w.Write([]byte(env.Body))
		w.Close()
		return buf.Bytes(), nil
	}

	var textHeader message.Header
	textHeader.Set("Content-Type", "text/plain; charset=utf-8")
	tw, err := w.CreatePart(textHeader)
	if err != nil {
		return nil, fmt.Errorf("failed to create text part: %w", err)
	}
	tw.Write([]byte(env.Body))
	tw.Close()

	var htmlHeader message.Header
	htmlHeader.Set("Content-Type", "text/html; charset=utf-8")
	hw, err := w.CreatePart(htmlHeader)
	if err != nil {
		return nil, fmt.Errorf("failed to create html part: %w", err)
	}
	hw.Write([]byte(env.HTMLBody))
	hw.Close()

	w.Close()
	return buf.Bytes(), nil
}
