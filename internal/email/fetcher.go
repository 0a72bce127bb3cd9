package email

import (
	"context"
	"time"
)

// InboundMessage is one message pulled from the mailbox, keyed by the
// provider-assigned Message-ID.
type InboundMessage struct {
	MessageID  string
	ThreadID   string
	From       string
	To         string
	Subject    string
	Body       string
	ReceivedAt time.Time
}

// Fetcher pulls new messages from the inbound mailbox, bounded by a
// per-cycle maximum.
type Fetcher interface {
	FetchNewMessages(ctx context.Context, maxCount int) ([]InboundMessage, error)
}
