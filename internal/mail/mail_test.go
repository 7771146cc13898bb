package mail

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureSender struct {
	msgs []Message
	err  error
}

func (c *captureSender) Send(_ context.Context, msg Message) error {
	c.msgs = append(c.msgs, msg)
	return c.err
}

func TestMailer_SendEmailOTP(t *testing.T) {
	s := &captureSender{}
	m := NewMailer(s)

	require.NoError(t, m.SendEmailOTP(context.Background(), "a@example.com", "Ada", "042917", 10*time.Minute))
	require.Len(t, s.msgs, 1)
	assert.Equal(t, "a@example.com", s.msgs[0].To)
	assert.Contains(t, s.msgs[0].Body, "042917")
	assert.Contains(t, s.msgs[0].Body, "10 minutes")
	assert.Contains(t, s.msgs[0].Body, "Hi Ada")
}

func TestMailer_SendPasswordReset(t *testing.T) {
	s := &captureSender{}
	m := NewMailer(s)
	link := "http://localhost:3000/reset-password?token=abc"

	require.NoError(t, m.SendPasswordReset(context.Background(), "a@example.com", "Ada", link, time.Hour))
	require.Len(t, s.msgs, 1)
	assert.Contains(t, s.msgs[0].Body, link)
	assert.Contains(t, s.msgs[0].Body, "60 minutes")
}

func TestMailer_PropagatesSenderError(t *testing.T) {
	m := NewMailer(&captureSender{err: errors.New("relay down")})
	assert.Error(t, m.SendEmailOTP(context.Background(), "a@example.com", "Ada", "123456", time.Minute))
}

func TestSMTPSender_NotConfigured(t *testing.T) {
	s := NewSMTPSender("", 0, "", "", "")
	err := s.Send(context.Background(), Message{To: "a@example.com"})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestSMTPSender_Send(t *testing.T) {
	s := NewSMTPSender("smtp.example.com", 0, "user@example.com", "secret", "")
	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte
	s.sendMail = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, msg
		assert.NotNil(t, a)
		return nil
	}

	err := s.Send(context.Background(), Message{To: "a@example.com", Subject: "Hello", Body: "line1\nline2"})
	require.NoError(t, err)
	assert.Equal(t, "smtp.example.com:587", gotAddr)
	assert.Equal(t, "user@example.com", gotFrom)
	assert.Equal(t, []string{"a@example.com"}, gotTo)
	raw := string(gotMsg)
	assert.Contains(t, raw, "Subject: Hello\r\n")
	assert.Contains(t, raw, "line1\r\nline2")
}

func TestSMTPSender_RejectsHeaderInjection(t *testing.T) {
	s := NewSMTPSender("smtp.example.com", 25, "", "", "noreply@example.com")
	s.sendMail = func(string, smtp.Auth, string, []string, []byte) error {
		t.Fatal("sendMail should not be called")
		return nil
	}
	err := s.Send(context.Background(), Message{To: "a@example.com\r\nBcc: x@example.com", Subject: "x"})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "line break"))
}
