// Package mail delivers the verification and password reset emails.
package mail

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/smtp"
	"strconv"
	"strings"
	"text/template"
	"time"
)

// ErrNotConfigured is returned by SMTPSender when no SMTP host is set.
var ErrNotConfigured = errors.New("mail: smtp not configured")

// Message is a plain-text email.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Sender delivers a Message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPSender sends through an SMTP relay. smtp.SendMail upgrades to STARTTLS when the server offers it.
type SMTPSender struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string

	// sendMail is swapped in tests.
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPSender returns an SMTPSender. From defaults to username when empty.
func NewSMTPSender(host string, port int, username, password, from string) *SMTPSender {
	if from == "" {
		from = username
	}
	if port == 0 {
		port = 587
	}
	return &SMTPSender{Host: host, Port: port, Username: username, Password: password, From: from, sendMail: smtp.SendMail}
}

func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.Host == "" {
		return ErrNotConfigured
	}
	raw, err := buildMessage(s.From, msg, time.Now())
	if err != nil {
		return err
	}
	var auth smtp.Auth
	if s.Username != "" {
		auth = smtp.PlainAuth("", s.Username, s.Password, s.Host)
	}
	addr := s.Host + ":" + strconv.Itoa(s.Port)
	if err := s.sendMail(addr, auth, s.From, []string{msg.To}, raw); err != nil {
		return fmt.Errorf("mail: send to smtp relay: %w", err)
	}
	return nil
}

func buildMessage(from string, msg Message, now time.Time) ([]byte, error) {
	for _, h := range []string{from, msg.To, msg.Subject} {
		if strings.ContainsAny(h, "\r\n") {
			return nil, errors.New("mail: header contains a line break")
		}
	}
	var b bytes.Buffer
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + msg.To + "\r\n")
	b.WriteString("Subject: " + msg.Subject + "\r\n")
	b.WriteString("Date: " + now.Format(time.RFC1123Z) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n\r\n")
	b.WriteString(strings.ReplaceAll(msg.Body, "\n", "\r\n"))
	b.WriteString("\r\n")
	return b.Bytes(), nil
}

var (
	otpTemplate = template.Must(template.New("otp").Parse(`Hi {{.Name}},

Your ONE-Go Security verification code is {{.Code}}.
It expires in {{.Minutes}} minutes. If you did not sign up, ignore this email.
`))
	resetTemplate = template.Must(template.New("reset").Parse(`Hi {{.Name}},

We received a request to reset your ONE-Go Security password.
Open this link within {{.Minutes}} minutes to choose a new one:

{{.Link}}

If you did not ask for this, you can ignore this email.
`))
)

// Mailer renders the product emails and hands them to a Sender.
type Mailer struct {
	sender Sender
}

func NewMailer(sender Sender) *Mailer {
	return &Mailer{sender: sender}
}

// SendEmailOTP sends the registration verification code.
func (m *Mailer) SendEmailOTP(ctx context.Context, to, name, code string, ttl time.Duration) error {
	body, err := render(otpTemplate, map[string]any{"Name": name, "Code": code, "Minutes": int(ttl.Minutes())})
	if err != nil {
		return err
	}
	return m.sender.Send(ctx, Message{To: to, Subject: "Your ONE-Go Security verification code", Body: body})
}

// SendPasswordReset sends the reset link.
func (m *Mailer) SendPasswordReset(ctx context.Context, to, name, link string, ttl time.Duration) error {
	body, err := render(resetTemplate, map[string]any{"Name": name, "Link": link, "Minutes": int(ttl.Minutes())})
	if err != nil {
		return err
	}
	return m.sender.Send(ctx, Message{To: to, Subject: "Reset your ONE-Go Security password", Body: body})
}

func render(t *template.Template, data any) (string, error) {
	var b bytes.Buffer
	if err := t.Execute(&b, data); err != nil {
		return "", err
	}
	return b.String(), nil
}
