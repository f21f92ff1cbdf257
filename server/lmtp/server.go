// Package lmtp is the pre-authenticated inbound channel: the upstream
// MTA hands complete MIME payloads to this server one at a time, and
// each payload is routed through the mailroom.
package lmtp

import (
	"context"
	"fmt"
	"time"

	"github.com/emersion/go-smtp"

	"github.com/leolive/onebody/config"
	"github.com/leolive/onebody/logger"
	"github.com/leolive/onebody/mailroom"
	"github.com/leolive/onebody/server/delivery"
)

// Server wraps the go-smtp server in LMTP mode.
type Server struct {
	srv     *smtp.Server
	addr    string
	handler *mailroom.Handler
	sender  delivery.Sender
}

type backend struct {
	server *Server
}

func (b *backend) NewSession(c *smtp.Conn) (smtp.Session, error) {
	return &session{
		server: b.server,
		ctx:    context.Background(),
		remote: c.Conn().RemoteAddr().String(),
	}, nil
}

// New creates an LMTP server delivering into handler and sending the
// resulting envelopes through sender.
func New(cfg config.LMTPServerConfig, handler *mailroom.Handler, sender delivery.Sender) *Server {
	s := &Server{addr: cfg.Addr, handler: handler, sender: sender}

	srv := smtp.NewServer(&backend{server: s})
	srv.LMTP = true
	srv.Addr = cfg.Addr
	srv.Domain = cfg.Hostname
	srv.ReadTimeout = 60 * time.Second
	srv.WriteTimeout = 60 * time.Second
	if cfg.MaxMessageBytes > 0 {
		srv.MaxMessageBytes = cfg.MaxMessageBytes
	}
	s.srv = srv
	return s
}

// Start serves until the listener fails or Close is called.
func (s *Server) Start() error {
	logger.Info("LMTP server listening", "addr", s.addr)
	if err := s.srv.ListenAndServe(); err != nil {
		return fmt.Errorf("LMTP server failed: %w", err)
	}
	return nil
}

func (s *Server) Close() error {
	return s.srv.Close()
}
