package email

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"gopkg.in/gomail.v2"
)

// SendResult carries the external message id assigned to a delivery.
type SendResult struct {
	MessageID string
}

// Sender delivers one outbound reply.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) (*SendResult, error)
}

// SMTPSender sends via SMTP using gomail. SMTP servers do not echo a
// message id back, so the sender assigns its own RFC 5322 Message-ID
// and returns it as the external id of the delivery.
type SMTPSender struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

func (s *SMTPSender) Send(ctx context.Context, to, subject, body string) (*SendResult, error) {
	messageID := generateMessageID(s.From)

	m := gomail.NewMessage()
	m.SetHeader("From", s.From)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetHeader("Message-ID", messageID)
	m.SetBody("text/plain", body)

	d := gomail.NewDialer(s.Host, s.Port, s.Username, s.Password)

	if err := d.DialAndSend(m); err != nil {
		return nil, fmt.Errorf("smtp send error: %w", err)
	}

	return &SendResult{MessageID: messageID}, nil
}

// SendWithRetry retries transient SMTP failures with exponential backoff.
func SendWithRetry(ctx context.Context, s Sender, to, subject, body string, maxElapsed time.Duration) (*SendResult, error) {
	var result *SendResult

	operation := func() error {
		r, err := s.Send(ctx, to, subject, body)
		if err != nil {
			return err
		}
		result = r
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxElapsedTime = maxElapsed

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return nil, err
	}
	return result, nil
}

func generateMessageID(from string) string {
	domain := "localhost"
	if i := strings.LastIndex(from, "@"); i >= 0 && i < len(from)-1 {
		domain = strings.TrimSuffix(from[i+1:], ">")
	}
	return fmt.Sprintf("<%s@%s>", uuid.NewString(), domain)
}
