package delivery

import (
	"context"
	"fmt"
	"io"

	"procurement/internal/model"

	"gopkg.in/gomail.v2"
)

// mailDialer is the part of *gomail.Dialer the sender uses.
type mailDialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTPSender emails the RFQ document as an attachment.
type SMTPSender struct {
	dialer mailDialer
	from   string
}

func NewSMTPSender(host string, port int, username, password, from string) *SMTPSender {
	return &SMTPSender{dialer: gomail.NewDialer(host, port, username, password), from: from}
}

func (s *SMTPSender) Method() model.Channel {
	return model.ChannelEmail
}

func (s *SMTPSender) Send(ctx context.Context, supplier model.Supplier, doc *Document, msg Message) error {
	if supplier.Email == "" {
		return ErrNoAddress
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetAddressHeader("To", supplier.Email, supplier.DisplayName())
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/plain", msg.Body)
	m.Attach(doc.FileName,
		gomail.SetCopyFunc(func(w io.Writer) error {
			_, err := w.Write(doc.Content)
			return err
		}),
		gomail.SetHeader(map[string][]string{"Content-Type": {doc.ContentType}}),
	)

	if err := runWithContext(ctx, func() error { return s.dialer.DialAndSend(m) }); err != nil {
		return fmt.Errorf("smtp delivery to %s: %w", supplier.Email, err)
	}
	return nil
}
