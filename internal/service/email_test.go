package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/akshatj2209/calender-assistant-sub001/internal/db"
	"github.com/akshatj2209/calender-assistant-sub001/internal/models"
)

func newEmailService(t *testing.T) (*EmailService, *db.Memory) {
	t.Helper()
	store := db.NewMemory()
	return NewEmailService(store, zap.NewNop()), store
}

func seedEmail(t *testing.T, svc *EmailService, messageID string) *models.EmailRecord {
	t.Helper()
	rec, err := svc.Upsert(context.Background(), models.EmailRecord{
		MessageID:  messageID,
		From:       "alice@example.com",
		To:         "sales@example.com",
		Subject:    "Demo?",
		Body:       "Can we see a demo next week?",
		ReceivedAt: time.Now().Add(-time.Hour),
	})
	require.NoError(t, err)
	return rec
}

func TestProcessingLifecycle(t *testing.T) {
	svc, _ := newEmailService(t)
	ctx := context.Background()

	rec := seedEmail(t, svc, "m1")
	assert.Equal(t, models.ProcessingPending, rec.ProcessingStatus)

	require.NoError(t, svc.MarkProcessing(ctx, rec.ID))

	intent := &models.IntentAnalysis{
		IsDemoRequest: true,
		Confidence:    0.92,
		IntentType:    "demo_request",
	}
	done, err := svc.MarkProcessed(ctx, rec.ID, true, intent)
	require.NoError(t, err)
	assert.Equal(t, models.ProcessingCompleted, done.ProcessingStatus)
	require.NotNil(t, done.IsDemoRequest)
	assert.True(t, *done.IsDemoRequest)
	require.NotNil(t, done.Intent)
	assert.InDelta(t, 0.92, done.Intent.Confidence, 1e-9)
}

func TestMarkFailed_Idempotent(t *testing.T) {
	svc, _ := newEmailService(t)
	ctx := context.Background()

	rec := seedEmail(t, svc, "m1")

	first, err := svc.MarkFailed(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ProcessingFailed, first.ProcessingStatus)
	assert.Equal(t, 1, first.RetryCount)

	// Repeating the failure mark keeps the record failed.
	second, err := svc.MarkFailed(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ProcessingFailed, second.ProcessingStatus)
	assert.Equal(t, 2, second.RetryCount)
}

func TestMarkResponseSent(t *testing.T) {
	svc, _ := newEmailService(t)
	ctx := context.Background()

	rec := seedEmail(t, svc, "m1")

	_, err := svc.MarkResponseSent(ctx, rec.ID, "")
	assert.ErrorIs(t, err, db.ErrInvalidArgument)

	_, err = svc.MarkResponseSent(ctx, "missing", "<r1@test>")
	assert.ErrorIs(t, err, db.ErrNotFound)

	got, err := svc.MarkResponseSent(ctx, rec.ID, "<r1@test>")
	require.NoError(t, err)
	assert.True(t, got.ResponseGenerated, "responseSent implies responseGenerated")
	assert.True(t, got.ResponseSent)
	require.NotNil(t, got.ResponseMessageID)
	assert.Equal(t, "<r1@test>", *got.ResponseMessageID)
}

func TestListFailed_ScopedToUser(t *testing.T) {
	svc, _ := newEmailService(t)
	ctx := context.Background()

	a := seedEmail(t, svc, "m1")
	_, err := svc.Upsert(ctx, models.EmailRecord{
		MessageID:  "m2",
		From:       "bob@example.com",
		To:         "support@example.com",
		Subject:    "Help",
		ReceivedAt: time.Now(),
	})
	require.NoError(t, err)

	_, err = svc.MarkFailed(ctx, a.ID)
	require.NoError(t, err)

	failed, err := svc.ListFailed(ctx, "sales@example.com", 10)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, a.ID, failed[0].ID)

	none, err := svc.ListFailed(ctx, "support@example.com", 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestCleanup(t *testing.T) {
	svc, _ := newEmailService(t)
	ctx := context.Background()

	_, err := svc.Cleanup(ctx, 0)
	assert.ErrorIs(t, err, db.ErrInvalidArgument)

	old, err := svc.Upsert(ctx, models.EmailRecord{
		MessageID:  "old",
		From:       "a@example.com",
		ReceivedAt: time.Now().AddDate(0, 0, -120),
	})
	require.NoError(t, err)
	fresh := seedEmail(t, svc, "fresh")

	deleted, err := svc.Cleanup(ctx, 90)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, err = svc.Get(ctx, old.ID)
	assert.ErrorIs(t, err, db.ErrNotFound)
	_, err = svc.Get(ctx, fresh.ID)
	assert.NoError(t, err)
}
