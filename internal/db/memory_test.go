package db

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akshatj2209/calender-assistant-sub001/internal/models"
)

func TestUpsertEmail_CreateThenMerge(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	first, err := store.UpsertEmailByMessageID(ctx, models.EmailRecord{
		MessageID: "m1",
		From:      "alice@example.com",
		Subject:   "Demo?",
		Body:      "Can we see a demo?",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, first.ID)
	assert.Equal(t, models.ProcessingPending, first.ProcessingStatus)

	// Re-delivery of the same external id merges, never duplicates.
	demo := true
	second, err := store.UpsertEmailByMessageID(ctx, models.EmailRecord{
		MessageID:     "m1",
		ThreadID:      "t1",
		IsDemoRequest: &demo,
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "t1", second.ThreadID)
	require.NotNil(t, second.IsDemoRequest)
	assert.True(t, *second.IsDemoRequest)

	// Zero-valued fields never erase stored data.
	assert.Equal(t, "alice@example.com", second.From)
	assert.Equal(t, "Demo?", second.Subject)
	assert.Equal(t, "Can we see a demo?", second.Body)
}

func TestUpsertEmail_ConcurrentSameID(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	done := make(chan struct{})
	for i := 0; i < 10; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			_, err := store.UpsertEmailByMessageID(ctx, models.EmailRecord{
				MessageID: "race",
				Subject:   "hello",
			})
			assert.NoError(t, err)
		}()
	}
	for i := 0; i < 10; i++ {
		<-done
	}

	recs, total, err := store.SearchEmails(ctx, models.EmailFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, recs, 1)
	assert.Equal(t, "race", recs[0].MessageID)
}

func TestUpsertEmail_MissingMessageID(t *testing.T) {
	store := NewMemory()
	_, err := store.UpsertEmailByMessageID(context.Background(), models.EmailRecord{})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestUpdateEmail_NotFound(t *testing.T) {
	store := NewMemory()
	_, err := store.UpdateEmail(context.Background(), "missing", models.EmailUpdate{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSearchEmails_FiltersAndPagination(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	base := time.Now().UTC()
	for i := 0; i < 5; i++ {
		_, err := store.UpsertEmailByMessageID(ctx, models.EmailRecord{
			MessageID:  string(rune('a' + i)),
			To:         "sales@example.com",
			ReceivedAt: base.Add(-time.Duration(i) * time.Hour),
		})
		require.NoError(t, err)
	}

	recs, total, err := store.SearchEmails(ctx, models.EmailFilter{Page: 1, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, recs, 2)
	// Newest first.
	assert.True(t, recs[0].ReceivedAt.After(recs[1].ReceivedAt))

	recs, total, err = store.SearchEmails(ctx, models.EmailFilter{Page: 3, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	assert.Len(t, recs, 1)

	recs, _, err = store.SearchEmails(ctx, models.EmailFilter{User: "nobody@example.com"})
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestDeleteEmailsBefore(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	old := time.Now().AddDate(0, 0, -100)
	recent := time.Now().AddDate(0, 0, -10)

	_, err := store.UpsertEmailByMessageID(ctx, models.EmailRecord{MessageID: "old", ReceivedAt: old})
	require.NoError(t, err)
	_, err = store.UpsertEmailByMessageID(ctx, models.EmailRecord{MessageID: "recent", ReceivedAt: recent})
	require.NoError(t, err)

	deleted, err := store.DeleteEmailsBefore(ctx, time.Now().AddDate(0, 0, -90))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, err = store.GetEmailByMessageID(ctx, "old")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.GetEmailByMessageID(ctx, "recent")
	assert.NoError(t, err)
}

func newTestResponse(t *testing.T, store *Memory, status models.ResponseStatus) *models.ScheduledResponse {
	t.Helper()
	resp := &models.ScheduledResponse{
		RecipientEmail: "alice@example.com",
		Subject:        "Re: Demo?",
		Body:           "Here are some times",
		Status:         status,
		ScheduledAt:    time.Now().Add(time.Hour),
	}
	require.NoError(t, store.CreateResponse(context.Background(), resp))
	return resp
}

func TestTransitionResponse_CAS(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()
	resp := newTestResponse(t, store, models.ResponseScheduled)

	now := time.Now().UTC()
	sent, err := store.TransitionResponse(ctx, resp.ID, models.SendableStatuses(), models.ResponseSent, &now)
	require.NoError(t, err)
	assert.Equal(t, models.ResponseSent, sent.Status)
	require.NotNil(t, sent.SentAt)
	assert.WithinDuration(t, now, *sent.SentAt, time.Second)

	// Second transition from a terminal state is rejected.
	_, err = store.TransitionResponse(ctx, resp.ID, models.SendableStatuses(), models.ResponseSent, &now)
	assert.ErrorIs(t, err, ErrAlreadyTerminal)

	// sentAt is immutable once set.
	later := now.Add(time.Hour)
	_, err = store.TransitionResponse(ctx, resp.ID, []models.ResponseStatus{models.ResponseSent}, models.ResponseSent, &later)
	require.NoError(t, err)
	got, err := store.GetResponse(ctx, resp.ID)
	require.NoError(t, err)
	assert.WithinDuration(t, now, *got.SentAt, time.Second)
}

func TestTransitionResponse_ConflictVsNotFound(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	_, err := store.TransitionResponse(ctx, "missing", models.SendableStatuses(), models.ResponseCancelled, nil)
	assert.ErrorIs(t, err, ErrNotFound)

	resp := newTestResponse(t, store, models.ResponseDraft)
	_, err = store.TransitionResponse(ctx, resp.ID, []models.ResponseStatus{models.ResponseDraft}, models.ResponseEditing, nil)
	require.NoError(t, err)

	// A record mid-edit is a conflict, not terminal.
	_, err = store.TransitionResponse(ctx, resp.ID, models.SendableStatuses(), models.ResponseCancelled, nil)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestUpdateResponse_ExpectedStatus(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()
	resp := newTestResponse(t, store, models.ResponseDraft)

	subject := "Updated subject"
	updated, err := store.UpdateResponse(ctx, resp.ID, models.ResponseEdit{Subject: &subject}, models.SendableStatuses())
	require.NoError(t, err)
	assert.Equal(t, "Updated subject", updated.Subject)
	assert.NotNil(t, updated.LastEditedAt)
	assert.Equal(t, models.ResponseDraft, updated.Status)

	_, err = store.TransitionResponse(ctx, resp.ID, models.SendableStatuses(), models.ResponseCancelled, nil)
	require.NoError(t, err)

	_, err = store.UpdateResponse(ctx, resp.ID, models.ResponseEdit{Subject: &subject}, models.SendableStatuses())
	assert.ErrorIs(t, err, ErrAlreadyTerminal)
}

func TestListDueResponses(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	due := &models.ScheduledResponse{
		RecipientEmail: "a@example.com",
		Subject:        "s", Body: "b",
		Status:      models.ResponseScheduled,
		ScheduledAt: time.Now().Add(-time.Hour),
	}
	future := &models.ScheduledResponse{
		RecipientEmail: "b@example.com",
		Subject:        "s", Body: "b",
		Status:      models.ResponseScheduled,
		ScheduledAt: time.Now().Add(time.Hour),
	}
	cancelled := &models.ScheduledResponse{
		RecipientEmail: "c@example.com",
		Subject:        "s", Body: "b",
		Status:      models.ResponseCancelled,
		ScheduledAt: time.Now().Add(-time.Hour),
	}
	require.NoError(t, store.CreateResponse(ctx, due))
	require.NoError(t, store.CreateResponse(ctx, future))
	require.NoError(t, store.CreateResponse(ctx, cancelled))

	got, err := store.ListDueResponses(ctx, time.Now(), 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, due.ID, got[0].ID)
}

func TestEmailStats(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	demo := true
	now := time.Now().UTC()
	completed := models.ProcessingCompleted

	rec, err := store.UpsertEmailByMessageID(ctx, models.EmailRecord{
		MessageID: "s1", ReceivedAt: now, IsDemoRequest: &demo,
	})
	require.NoError(t, err)
	_, err = store.UpdateEmail(ctx, rec.ID, models.EmailUpdate{ProcessingStatus: &completed})
	require.NoError(t, err)

	_, err = store.UpsertEmailByMessageID(ctx, models.EmailRecord{MessageID: "s2", ReceivedAt: now})
	require.NoError(t, err)

	stats, err := store.EmailStats(ctx, now.Add(-time.Minute), now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.Completed)
	assert.Equal(t, 1, stats.Pending)
	assert.Equal(t, 1, stats.DemoRequests)
}
