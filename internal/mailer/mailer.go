// Package mailer sends notification mail. Delivery is best effort: callers
// hand messages to an Async dispatcher and never wait on the SMTP server.
package mailer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/wneessen/go-mail"

	"github.com/Skotchmaster/data_delivery/internal/config"
)

type Message struct {
	To      string
	Subject string
	Body    string
}

type Sender interface {
	Send(ctx context.Context, msg Message) error
}

type SMTP struct {
	client *mail.Client
	from   string
}

func NewSMTP(cfg config.MailConfig) (*SMTP, error) {
	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTimeout(time.Duration(cfg.TimeoutSeconds) * time.Second),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}
	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("mail client: %w", err)
	}
	return &SMTP{client: client, from: cfg.From}, nil
}

func (s *SMTP) Send(ctx context.Context, msg Message) error {
	m := mail.NewMsg()
	if err := m.From(s.from); err != nil {
		return fmt.Errorf("mail from: %w", err)
	}
	if err := m.To(msg.To); err != nil {
		return fmt.Errorf("mail to: %w", err)
	}
	m.Subject(msg.Subject)
	m.SetBodyString(mail.TypeTextPlain, msg.Body)
	return s.client.DialAndSendWithContext(ctx, m)
}

// LogSender writes messages to the log instead of sending them. Used when
// no SMTP host is configured.
type LogSender struct {
	Logger *slog.Logger
}

func (s LogSender) Send(ctx context.Context, msg Message) error {
	s.Logger.Info("mail_not_sent", "to", msg.To, "subject", msg.Subject)
	return nil
}

type Async struct {
	Sender  Sender
	Timeout time.Duration
	Logger  *slog.Logger

	wg sync.WaitGroup
}

func NewAsync(s Sender, timeout time.Duration, l *slog.Logger) *Async {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Async{Sender: s, Timeout: timeout, Logger: l}
}

// Dispatch sends msg in the background. Failures are logged and dropped.
func (a *Async) Dispatch(msg Message) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), a.Timeout)
		defer cancel()
		if err := a.Sender.Send(ctx, msg); err != nil {
			a.Logger.Warn("mail_send_failed", "to", msg.To, "subject", msg.Subject, "error", err)
		}
	}()
}

// Wait blocks until every dispatched message has been handled.
func (a *Async) Wait() {
	a.wg.Wait()
}
