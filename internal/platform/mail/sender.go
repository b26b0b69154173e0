package mail

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	gomail "gopkg.in/gomail.v2"
)

// Attachment is an in-memory file attached to an outgoing message.
type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Message is a plain-text email.
type Message struct {
	To          string
	Subject     string
	Body        string
	Attachments []Attachment
}

// Sender delivers messages over SMTP. The zero value is a disabled sender
// that rejects every send, letting callers treat mail as optional.
type Sender struct {
	dialer *gomail.Dialer
	from   string
}

// ErrDisabled is returned when no SMTP relay is configured.
var ErrDisabled = errors.New("mail: sender disabled")

// NewSender constructs an SMTP sender. An empty host yields a disabled sender.
func NewSender(host string, port int, username, password, from string) *Sender {
	host = strings.TrimSpace(host)
	if host == "" {
		return &Sender{}
	}
	return &Sender{
		dialer: gomail.NewDialer(host, port, username, password),
		from:   from,
	}
}

// Enabled reports whether the sender can deliver mail.
func (s *Sender) Enabled() bool { return s != nil && s.dialer != nil }

// Send delivers one message, honouring context cancellation.
func (s *Sender) Send(ctx context.Context, msg Message) error {
	if !s.Enabled() {
		return ErrDisabled
	}
	if strings.TrimSpace(msg.To) == "" {
		return errors.New("mail: recipient is required")
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/plain", msg.Body)
	for _, att := range msg.Attachments {
		data := att.Data
		settings := []gomail.FileSetting{
			gomail.SetCopyFunc(func(w io.Writer) error {
				_, err := w.Write(data)
				return err
			}),
		}
		if att.ContentType != "" {
			settings = append(settings, gomail.SetHeader(map[string][]string{
				"Content-Type": {att.ContentType},
			}))
		}
		m.Attach(att.Filename, settings...)
	}

	done := make(chan error, 1)
	go func() {
		done <- s.dialer.DialAndSend(m)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		if err != nil {
			return fmt.Errorf("mail: send to %s: %w", msg.To, err)
		}
		return nil
	}
}
