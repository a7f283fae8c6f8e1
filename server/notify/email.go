package notify

import (
	"context"
	"fmt"

	"github.com/Daskott/haven/shared"
	"gopkg.in/gomail.v2"
)

const (
	DEFAULT_MAIL_SERVER = "smtp.gmail.com"
	DEFAULT_MAIL_PORT   = 587
)

// SMTPMailer sends plain text alerts through an SMTP relay, using STARTTLS when
// the relay offers it.
type SMTPMailer struct {
	username string
	password string
	send     func(m ...*gomail.Message) error
}

func NewSMTPMailer(config shared.MailConfig) *SMTPMailer {
	server := config.Server
	if server == "" {
		server = DEFAULT_MAIL_SERVER
	}

	port := config.Port
	if port == 0 {
		port = DEFAULT_MAIL_PORT
	}

	dialer := gomail.NewDialer(server, port, config.Username, config.Password)

	return &SMTPMailer{
		username: config.Username,
		password: config.Password,
		send:     dialer.DialAndSend,
	}
}

func (m *SMTPMailer) Enabled() bool {
	return m.username != "" && m.password != ""
}

// Send delivers one message addressed to every recipient. It does nothing
// when no mail credentials are configured.
func (m *SMTPMailer) Send(ctx context.Context, subject string, recipients []string, body string) error {
	if !m.Enabled() || len(recipients) == 0 {
		return nil
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.username)
	msg.SetHeader("To", recipients...)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)

	if err := m.send(msg); err != nil {
		return fmt.Errorf("smtp: %v", err)
	}

	return nil
}
