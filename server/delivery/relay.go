package delivery

import (
	"crypto/tls"
	"fmt"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"

	"github.com/leolive/onebody/config"
	"github.com/leolive/onebody/logger"
	"github.com/leolive/onebody/pkg/metrics"
)

// Sender is the outbound transport collaborator: it accepts one
// rendered envelope at a time. Retry policy lives here, not in the
// routing core.
type Sender interface {
	Send(from, to string, messageBytes []byte) error
}

// SMTPRelaySender submits envelopes to a smarthost over SMTP,
// optionally with TLS/STARTTLS and SASL PLAIN authentication.
type SMTPRelaySender struct {
	Host        string // host:port
	UseTLS      bool
	UseStartTLS bool
	TLSVerify   bool
	Username    string
	Password    string
}

func NewSMTPRelaySender(cfg config.RelayConfig) *SMTPRelaySender {
	return &SMTPRelaySender{
		Host:        cfg.Host,
		UseTLS:      cfg.UseTLS,
		UseStartTLS: cfg.UseStartTLS,
		TLSVerify:   cfg.TLSVerify,
		Username:    cfg.Username,
		Password:    cfg.Password,
	}
}

// Send submits one message to the relay.
func (r *SMTPRelaySender) Send(from, to string, messageBytes []byte) error {
	if r.Host == "" {
		return fmt.Errorf("SMTP relay host not configured")
	}

	err := r.send(from, to, messageBytes)
	if err != nil {
		metrics.RelayDeliveriesTotal.WithLabelValues("failure").Inc()
		return err
	}
	metrics.RelayDeliveriesTotal.WithLabelValues("success").Inc()
	return nil
}

func (r *SMTPRelaySender) send(from, to string, messageBytes []byte) error {
	tlsConfig := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: !r.TLSVerify,
	}

	var c *smtp.Client
	var err error
	switch {
	case r.UseStartTLS:
		c, err = smtp.DialStartTLS(r.Host, tlsConfig)
	case r.UseTLS:
		c, err = smtp.DialTLS(r.Host, tlsConfig)
	default:
		c, err = smtp.Dial(r.Host)
	}
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP relay: %w", err)
	}
	defer c.Close()

	if r.Username != "" {
		if err := c.Auth(sasl.NewPlainClient("", r.Username, r.Password)); err != nil {
			return fmt.Errorf("failed to authenticate to SMTP relay: %w", err)
		}
	}

	if err := c.Mail(from, nil); err != nil {
		return fmt.Errorf("failed to set sender: %w", err)
	}
	if err := c.Rcpt(to, nil); err != nil {
		return fmt.Errorf("failed to set recipient: %w", err)
	}
	wc, err := c.Data()
	if err != nil {
		return fmt.Errorf("failed to open data: %w", err)
	}
	if _, err := wc.Write(messageBytes); err != nil {
		wc.Close()
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("failed to finish data: %w", err)
	}

	if err := c.Quit(); err != nil {
		logger.Debug("relay quit failed", "error", err)
	}
	return nil
}
