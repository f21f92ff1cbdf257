package lmtp

import (
	"context"
	"errors"
	"io"

	"github.com/emersion/go-smtp"

	"github.com/leolive/onebody/consts"
	"github.com/leolive/onebody/logger"
	"github.com/leolive/onebody/server/delivery"
)

// session handles one LMTP connection. Routing is driven entirely by
// the message headers; the envelope sender and recipients are only
// recorded for logging.
type session struct {
	server *Server
	ctx    context.Context
	remote string

	from string
	rcpt []string
}

func (s *session) Mail(from string, opts *smtp.MailOptions) error {
	s.from = from
	logger.Debug("LMTP MAIL FROM accepted", "from", from, "remote", s.remote)
	return nil
}

func (s *session) Rcpt(to string, opts *smtp.RcptOptions) error {
	s.rcpt = append(s.rcpt, to)
	logger.Debug("LMTP RCPT TO accepted", "to", to, "remote", s.remote)
	return nil
}

func (s *session) Data(r io.Reader) error {
	raw, err := io.ReadAll(r)
	if err != nil {
		return &smtp.SMTPError{
			Code:         451,
			EnhancedCode: smtp.EnhancedCode{4, 3, 0},
			Message:      "Failed to read message",
		}
	}

	envelopes, err := s.server.handler.Receive(s.ctx, raw)
	if err != nil {
		if errors.Is(err, consts.ErrMalformedMessage) {
			return &smtp.SMTPError{
				Code:         554,
				EnhancedCode: smtp.EnhancedCode{5, 6, 0},
				Message:      "Message content rejected",
			}
		}
		// Directory or store failure: fail this one message and let the
		// upstream MTA retry.
		return &smtp.SMTPError{
			Code:         451,
			EnhancedCode: smtp.EnhancedCode{4, 3, 0},
			Message:      "Temporary processing failure",
		}
	}

	for i := range envelopes {
		env := &envelopes[i]
		messageBytes, err := delivery.Render(env, s.server.srv.Domain)
		if err != nil {
			logger.Error("failed to render envelope", "to", env.To, "error", err)
			continue
		}
		if err := s.server.sender.Send(env.From, env.To, messageBytes); err != nil {
			logger.Error("failed to relay envelope", "to", env.To, "error", err)
		}
	}
	return nil
}

func (s *session) Reset() {
	s.from = ""
	s.rcpt = nil
}

func (s *session) Logout() error {
	return nil
}
