// Package notify emails invoices to customers.
package notify

import (
	"context"
	"errors"
	"fmt"

	"gopkg.in/gomail.v2"

	"github.com/imrishuroy/go-orderdesk/internal/orders"
)

// ErrDisabled is returned by Send when no SMTP host is configured.
var ErrDisabled = errors.New("email notifications disabled")

// Sender delivers messages. *gomail.Dialer satisfies it.
type Sender interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTPConfig holds the mail server settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Dispatcher sends one invoice email per created order. There are no retries.
type Dispatcher struct {
	sender Sender
	from   string
}

// NewDispatcher builds a Dispatcher over SMTP. An empty host disables it.
func NewDispatcher(cfg SMTPConfig) *Dispatcher {
	if cfg.Host == "" {
		return &Dispatcher{}
	}
	from := cfg.From
	if from == "" {
		from = cfg.Username
	}
	return &Dispatcher{
		sender: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   from,
	}
}

// NewDispatcherWithSender is used by tests and alternate transports.
func NewDispatcherWithSender(s Sender, from string) *Dispatcher {
	return &Dispatcher{sender: s, from: from}
}

// Enabled reports whether Send will attempt delivery.
func (d *Dispatcher) Enabled() bool { return d.sender != nil }

// Send emails the invoice at artifactPath to the order's customer.
func (d *Dispatcher) Send(ctx context.Context, o orders.Order, artifactPath string) error {
	if !d.Enabled() {
		return ErrDisabled
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := d.sender.DialAndSend(Message(d.from, o, artifactPath)); err != nil {
		return fmt.Errorf("send invoice for %s: %w", o.OrderID, err)
	}
	return nil
}

// Message builds the invoice email.
func Message(from string, o orders.Order, artifactPath string) *gomail.Message {
	m := gomail.NewMessage()
	m.SetHeader("From", from)
	m.SetHeader("To", o.CustomerEmail)
	m.SetHeader("Subject", "Invoice for Order "+o.OrderID)
	m.SetBody("text/plain", "Please find your invoice attached.")
	m.Attach(artifactPath, gomail.Rename(o.OrderID+".pdf"))
	return m
}
