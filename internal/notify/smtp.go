package notify

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/wneessen/go-mail"
)

// SMTPConfig describes an SMTP relay.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	// StartTLS requires STARTTLS; otherwise it is used opportunistically.
	StartTLS bool
	Timeout  time.Duration
}

// SMTPMailer delivers messages through an SMTP relay. A new connection is
// dialed per message.
type SMTPMailer struct {
	cfg SMTPConfig
}

var _ Notifier = (*SMTPMailer)(nil)

// NewSMTPMailer validates cfg and creates an SMTPMailer.
func NewSMTPMailer(cfg SMTPConfig) (*SMTPMailer, error) {
	if cfg.Host == "" {
		return nil, errors.New("smtp host is required")
	}
	if cfg.From == "" {
		return nil, errors.New("smtp sender address is required")
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &SMTPMailer{cfg: cfg}, nil
}

func (m *SMTPMailer) client() (*mail.Client, error) {
	policy := mail.TLSOpportunistic
	if m.cfg.StartTLS {
		policy = mail.TLSMandatory
	}
	opts := []mail.Option{
		mail.WithPort(m.cfg.Port),
		mail.WithTimeout(m.cfg.Timeout),
		mail.WithTLSPolicy(policy),
	}
	if m.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(m.cfg.Username),
			mail.WithPassword(m.cfg.Password),
		)
	}
	return mail.NewClient(m.cfg.Host, opts...)
}

// Send delivers msg, bounded by both ctx and the configured timeout.
func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	if msg.To == "" {
		return ErrNoRecipient
	}

	em := mail.NewMsg()
	if err := em.From(m.cfg.From); err != nil {
		return errors.Wrap(err, "set sender")
	}
	if err := em.To(msg.To); err != nil {
		return errors.Wrap(err, "set recipient")
	}
	em.Subject(msg.Subject)
	em.SetBodyString(mail.TypeTextPlain, msg.Body)

	c, err := m.client()
	if err != nil {
		return errors.Wrap(err, "create smtp client")
	}

	ctx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	defer cancel()

	if err := c.DialAndSendWithContext(ctx, em); err != nil {
		return errors.Wrap(err, "send mail")
	}
	return nil
}
