package pkg

import (
	"context"
	"errors"
	"fmt"

	gomail "github.com/wneessen/go-mail"
)

// SMTPConfig holds the settings of an outgoing mail server.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	UseTLS   bool
}

// EmailMessage is a plain text or HTML email.
type EmailMessage struct {
	To      []string `json:"to"`
	CC      []string `json:"cc"`
	Subject string   `json:"subject"`
	Body    string   `json:"body"`
	IsHTML  bool     `json:"isHtml"`
}

// Mailer sends emails over SMTP.
type Mailer interface {
	Send(ctx context.Context, cfg SMTPConfig, msg EmailMessage) error
}

// SMTPMailer is the go-mail backed Mailer.
type SMTPMailer struct{}

// BuildMessage validates msg and turns it into a go-mail message.
func BuildMessage(cfg SMTPConfig, msg EmailMessage) (*gomail.Msg, error) {
	if len(msg.To) == 0 {
		return nil, errors.New("no recipients specified")
	}
	from := cfg.From
	if from == "" {
		from = cfg.Username
	}

	m := gomail.NewMsg()
	if err := m.From(from); err != nil {
		return nil, fmt.Errorf("failed to set from: %w", err)
	}
	if err := m.To(msg.To...); err != nil {
		return nil, fmt.Errorf("failed to set to: %w", err)
	}
	if len(msg.CC) > 0 {
		if err := m.Cc(msg.CC...); err != nil {
			return nil, fmt.Errorf("failed to set cc: %w", err)
		}
	}
	m.Subject(msg.Subject)
	if msg.IsHTML {
		m.SetBodyString(gomail.TypeTextHTML, msg.Body)
	} else {
		m.SetBodyString(gomail.TypeTextPlain, msg.Body)
	}
	return m, nil
}

func (slf *SMTPMailer) Send(ctx context.Context, cfg SMTPConfig, msg EmailMessage) error {
	if cfg.Host == "" {
		return errors.New("SMTP host not configured")
	}
	m, err := BuildMessage(cfg, msg)
	if err != nil {
		return err
	}

	tlsPolicy := gomail.TLSOpportunistic
	if cfg.UseTLS {
		tlsPolicy = gomail.TLSMandatory
	}
	opts := []gomail.Option{
		gomail.WithPort(cfg.Port),
		gomail.WithTLSPolicy(tlsPolicy),
	}
	if cfg.Password != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(cfg.Username),
			gomail.WithPassword(cfg.Password),
		)
	}
	client, err := gomail.NewClient(cfg.Host, opts...)
	if err != nil {
		return fmt.Errorf("failed to create SMTP client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}
