package email

import (
	"context"
	"crypto/tls"
	"errors"
	"strings"
	"time"

	"gopkg.in/gomail.v2"

	"github.com/echohealth/echo_backend/config"
)

type Client struct {
	cfg  Config
	dial func() (gomail.SendCloser, error)
}

// NewFromCentral creates a new email client from central config
func NewFromCentral(cfg config.EmailConfig) (*Client, error) {
	return New(FromCentralConfig(cfg))
}

func New(cfg Config) (*Client, error) {
	if cfg.Enabled && cfg.SMTPHost == "" {
		return nil, invalid("smtp host is required when email is enabled")
	}
	c := &Client{cfg: cfg}
	c.dial = c.dialSMTP
	return c, nil
}

// Enabled reports whether Send will attempt delivery.
func (c *Client) Enabled() bool { return c.cfg.Enabled }

// Config returns the template settings used to build messages.
func (c *Client) Config() Config { return c.cfg }

// Send delivers one copy of m per recipient over a single SMTP session. Failed
// copies are returned joined as *DeliveryError; the others are still sent.
func (c *Client) Send(ctx context.Context, m Message) error {
	if !c.cfg.Enabled {
		return ErrDisabled
	}
	msgs, rcpts, err := buildMessages(c.cfg.From, m)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.SMTPTimeout())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- c.deliver(m.Kind, msgs, rcpts) }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) deliver(kind Kind, msgs []*gomail.Message, rcpts []string) error {
	s, err := c.dial()
	if err != nil {
		return &DeliveryError{Kind: kind, Recipient: strings.Join(rcpts, ","), Err: err}
	}
	defer s.Close()

	var errs []error
	for i, msg := range msgs {
		if err := gomail.Send(s, msg); err != nil {
			errs = append(errs, &DeliveryError{Kind: kind, Recipient: rcpts[i], Err: err})
		}
	}
	return errors.Join(errs...)
}

func (c *Client) dialSMTP() (gomail.SendCloser, error) {
	d := gomail.NewDialer(c.cfg.SMTPHost, c.cfg.SMTPPort, c.cfg.SMTPUsername, c.cfg.SMTPPassword)
	d.SSL = c.cfg.SMTPUseTLS
	if c.cfg.SMTPUseTLS {
		d.TLSConfig = &tls.Config{ServerName: c.cfg.SMTPHost, MinVersion: tls.VersionTLS12}
	}
	return d.Dial()
}

func buildMessages(from string, m Message) ([]*gomail.Message, []string, error) {
	from = strings.TrimSpace(from)
	if from == "" {
		return nil, nil, invalid("from is required")
	}
	subject := strings.TrimSpace(m.Subject)
	if subject == "" {
		return nil, nil, invalid("subject is required")
	}
	if strings.TrimSpace(m.TextBody) == "" {
		return nil, nil, invalid("text body is required")
	}

	var rcpts []string
	for _, to := range m.To {
		if to = strings.TrimSpace(to); to != "" {
			rcpts = append(rcpts, to)
		}
	}
	if len(rcpts) == 0 {
		return nil, nil, invalid("no recipients")
	}

	date := time.Now()
	msgs := make([]*gomail.Message, len(rcpts))
	for i, to := range rcpts {
		msg := gomail.NewMessage()
		msg.SetHeader("From", from)
		msg.SetHeader("To", to)
		msg.SetHeader("Subject", subject)
		msg.SetDateHeader("Date", date)
		if m.Kind != "" {
			msg.SetHeader(headerKind, string(m.Kind))
		}
		msg.SetBody("text/plain", m.TextBody)
		if strings.TrimSpace(m.HTMLBody) != "" {
			msg.AddAlternative("text/html", m.HTMLBody)
		}
		msgs[i] = msg
	}
	return msgs, rcpts, nil
}
