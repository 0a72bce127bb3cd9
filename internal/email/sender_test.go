package email

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakySender struct {
	failures int
	calls    int
}

func (f *flakySender) Send(ctx context.Context, to, subject, body string) (*SendResult, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, errors.New("connection reset")
	}
	return &SendResult{MessageID: "<ok@test>"}, nil
}

func TestSendWithRetry_RecoversFromTransientFailure(t *testing.T) {
	s := &flakySender{failures: 2}

	result, err := SendWithRetry(context.Background(), s, "a@example.com", "s", "b", 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "<ok@test>", result.MessageID)
	assert.Equal(t, 3, s.calls)
}

func TestSendWithRetry_GivesUp(t *testing.T) {
	s := &flakySender{failures: 1000}

	_, err := SendWithRetry(context.Background(), s, "a@example.com", "s", "b", time.Millisecond)
	require.Error(t, err)
	assert.Greater(t, s.calls, 0)
}

func TestSendWithRetry_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := &flakySender{failures: 1000}
	_, err := SendWithRetry(ctx, s, "a@example.com", "s", "b", 10*time.Second)
	assert.Error(t, err)
}

func TestGenerateMessageID(t *testing.T) {
	id := generateMessageID("sales@example.com")
	assert.True(t, strings.HasPrefix(id, "<"))
	assert.True(t, strings.HasSuffix(id, "@example.com>"))

	// Unparseable sender falls back to a localhost domain.
	assert.True(t, strings.HasSuffix(generateMessageID("nodomain"), "@localhost>"))

	assert.NotEqual(t, generateMessageID("a@b.c"), generateMessageID("a@b.c"))
}
