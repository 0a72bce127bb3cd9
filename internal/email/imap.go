package email

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"strings"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-message/mail"
)

// IMAPFetcher implements Fetcher against an IMAP INBOX. Each fetch
// opens a fresh connection, searches messages from the lookback
// window, and returns envelope plus plain-text body.
type IMAPFetcher struct {
	Host     string
	Port     int
	Username string
	Password string
	TLS      bool

	// Lookback bounds the UID search window. Records already seen are
	// deduplicated downstream by the upsert-by-message-id contract, so
	// re-fetching a window is harmless.
	Lookback time.Duration
}

func (f *IMAPFetcher) connect(_ context.Context) (*imapclient.Client, error) {
	addr := fmt.Sprintf("%s:%d", f.Host, f.Port)

	var client *imapclient.Client
	var err error
	if f.TLS {
		client, err = imapclient.DialTLS(addr, nil)
	} else {
		client, err = imapclient.DialStartTLS(addr, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("connecting to IMAP %s: %w", addr, err)
	}

	if err := client.Login(f.Username, f.Password).Wait(); err != nil {
		_ = client.Logout().Wait()
		return nil, fmt.Errorf("IMAP login for %s: %w", f.Username, err)
	}
	return client, nil
}

func (f *IMAPFetcher) FetchNewMessages(ctx context.Context, maxCount int) ([]InboundMessage, error) {
	client, err := f.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = client.Logout().Wait() }()

	if _, err := client.Select("INBOX", nil).Wait(); err != nil {
		return nil, fmt.Errorf("selecting INBOX: %w", err)
	}

	lookback := f.Lookback
	if lookback <= 0 {
		lookback = 7 * 24 * time.Hour
	}
	criteria := &imap.SearchCriteria{
		Since: time.Now().Add(-lookback),
	}

	searchData, err := client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("searching messages: %w", err)
	}

	uids := searchData.AllUIDs()
	if len(uids) == 0 {
		return nil, nil
	}
	if maxCount > 0 && len(uids) > maxCount {
		uids = uids[len(uids)-maxCount:]
	}

	bodySection := &imap.FetchItemBodySection{Peek: true}
	fetchOpts := &imap.FetchOptions{
		Envelope:    true,
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{bodySection},
	}

	fetchCmd := client.Fetch(imap.UIDSetNum(uids...), fetchOpts)
	defer fetchCmd.Close()

	var messages []InboundMessage
	for {
		msg := fetchCmd.Next()
		if msg == nil {
			break
		}
		buf, err := msg.Collect()
		if err != nil {
			continue
		}

		inbound := messageFromBuffer(buf, bodySection)
		if inbound.MessageID == "" {
			// A message without a Message-ID cannot be tracked
			// idempotently; skip it rather than duplicate later.
			continue
		}
		messages = append(messages, inbound)
	}

	if err := fetchCmd.Close(); err != nil {
		return messages, fmt.Errorf("fetching messages: %w", err)
	}
	return messages, nil
}

func messageFromBuffer(buf *imapclient.FetchMessageBuffer, section *imap.FetchItemBodySection) InboundMessage {
	var m InboundMessage

	if buf.Envelope != nil {
		m.MessageID = strings.Trim(buf.Envelope.MessageID, "<>")
		m.Subject = decodeHeader(buf.Envelope.Subject)
		m.ReceivedAt = buf.Envelope.Date
		if len(buf.Envelope.From) > 0 {
			m.From = buf.Envelope.From[0].Addr()
		}
		if len(buf.Envelope.To) > 0 {
			m.To = buf.Envelope.To[0].Addr()
		}
	}
	// Without threading headers the message id doubles as thread id;
	// replies generated here carry it forward.
	m.ThreadID = m.MessageID

	if raw := buf.FindBodySection(section); raw != nil {
		m.Body = extractTextBody(raw)
	}
	return m
}

// extractTextBody parses a raw RFC 2822 message with go-message and
// returns the first text/plain part, falling back to the raw bytes.
func extractTextBody(raw []byte) string {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return string(raw)
	}
	defer mr.Close()

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}

		header, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		contentType, _, _ := header.ContentType()
		if contentType != "text/plain" {
			continue
		}

		body, err := io.ReadAll(part.Body)
		if err != nil {
			continue
		}
		return string(body)
	}
	return ""
}

func decodeHeader(s string) string {
	dec := &mime.WordDecoder{}
	decoded, err := dec.DecodeHeader(s)
	if err != nil {
		return s
	}
	return decoded
}
