package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/akshatj2209/calender-assistant-sub001/internal/db"
	"github.com/akshatj2209/calender-assistant-sub001/internal/email"
	"github.com/akshatj2209/calender-assistant-sub001/internal/models"
)

// fakeSender records deliveries and can be told to fail.
type fakeSender struct {
	mu    sync.Mutex
	calls int
	fail  bool
}

func (f *fakeSender) Send(ctx context.Context, to, subject, body string) (*email.SendResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.fail {
		return nil, errors.New("smtp unavailable")
	}
	return &email.SendResult{MessageID: fmt.Sprintf("<r%d@test>", f.calls)}, nil
}

func (f *fakeSender) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newTestServices(t *testing.T, sender email.Sender) (*EmailService, *ResponseService, *db.Memory) {
	t.Helper()
	store := db.NewMemory()
	log := zap.NewNop()
	emails := NewEmailService(store, log)
	responses := NewResponseService(store, emails, sender, nil, log)
	responses.SendRetryBudget = time.Millisecond
	return emails, responses, store
}

func createLinkedResponse(t *testing.T, emails *EmailService, responses *ResponseService, status models.ResponseStatus, scheduledAt time.Time) (*models.EmailRecord, *models.ScheduledResponse) {
	t.Helper()
	ctx := context.Background()

	rec, err := emails.Upsert(ctx, models.EmailRecord{
		MessageID: "m-" + string(status) + scheduledAt.String(),
		From:      "alice@example.com",
		Subject:   "Demo?",
	})
	require.NoError(t, err)

	resp := &models.ScheduledResponse{
		EmailRecordID:  &rec.ID,
		RecipientEmail: rec.From,
		Subject:        "Re: Demo?",
		Body:           "Times below",
		ProposedSlots: []models.TimeSlot{
			{Start: time.Now().Add(24 * time.Hour), End: time.Now().Add(25 * time.Hour)},
		},
		Status:      status,
		ScheduledAt: time.Now().Add(time.Hour),
	}
	require.NoError(t, responses.Create(ctx, resp))

	if !scheduledAt.After(time.Now()) {
		// Backdate directly through the store; the service refuses
		// past times on create.
		_, err := responses.store.UpdateResponse(ctx, resp.ID,
			models.ResponseEdit{ScheduledAt: &scheduledAt},
			models.SendableStatuses())
		require.NoError(t, err)
		resp.ScheduledAt = scheduledAt
	}
	return rec, resp
}

func TestCreate_Validation(t *testing.T) {
	_, responses, _ := newTestServices(t, &fakeSender{})
	ctx := context.Background()

	err := responses.Create(ctx, &models.ScheduledResponse{
		Subject: "s", Body: "b",
		ScheduledAt: time.Now().Add(time.Hour),
	})
	assert.ErrorIs(t, err, db.ErrInvalidArgument)

	// Auto-generated responses must carry slots.
	id := "some-email"
	err = responses.Create(ctx, &models.ScheduledResponse{
		EmailRecordID:  &id,
		RecipientEmail: "a@example.com",
		Subject:        "s", Body: "b",
		ScheduledAt: time.Now().Add(time.Hour),
	})
	assert.ErrorIs(t, err, db.ErrInvalidArgument)

	// Past schedule is rejected at creation.
	err = responses.Create(ctx, &models.ScheduledResponse{
		RecipientEmail: "a@example.com",
		Subject:        "s", Body: "b",
		ScheduledAt: time.Now().Add(-time.Minute),
	})
	assert.ErrorIs(t, err, db.ErrInvalidArgument)
}

func TestAtMostOnceSend(t *testing.T) {
	sender := &fakeSender{}
	emails, responses, _ := newTestServices(t, sender)
	ctx := context.Background()

	rec, resp := createLinkedResponse(t, emails, responses, models.ResponseScheduled, time.Now().Add(-time.Hour))

	// A send-now and a dispatch delivery race on the same response.
	results := make(chan error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := responses.Deliver(ctx, resp.ID)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var wins, losses int
	for err := range results {
		if err == nil {
			wins++
			continue
		}
		if errors.Is(err, db.ErrConflict) || errors.Is(err, db.ErrAlreadyTerminal) {
			losses++
		}
	}
	assert.Equal(t, 1, wins, "exactly one delivery must win")
	assert.Equal(t, 1, losses, "the loser must observe a conflict")
	assert.Equal(t, 1, sender.callCount(), "the transport must be called exactly once")

	got, err := responses.Get(ctx, resp.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ResponseSent, got.Status)
	require.NotNil(t, got.SentAt)

	linked, err := emails.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.True(t, linked.ResponseSent)
	require.NotNil(t, linked.ResponseMessageID)
	assert.NotEmpty(t, *linked.ResponseMessageID)
}

func TestDeliver_Success(t *testing.T) {
	sender := &fakeSender{}
	emails, responses, _ := newTestServices(t, sender)
	ctx := context.Background()

	rec, resp := createLinkedResponse(t, emails, responses, models.ResponseScheduled, time.Now().Add(-time.Hour))

	sent, err := responses.Deliver(ctx, resp.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ResponseSent, sent.Status)
	require.NotNil(t, sent.SentAt)
	assert.WithinDuration(t, time.Now(), *sent.SentAt, 5*time.Second)

	linked, err := emails.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.True(t, linked.ResponseSent)
	assert.True(t, linked.ResponseGenerated)
	assert.Equal(t, "<r1@test>", *linked.ResponseMessageID)
}

func TestDeliver_TransportFailure(t *testing.T) {
	sender := &fakeSender{fail: true}
	emails, responses, _ := newTestServices(t, sender)
	ctx := context.Background()

	rec, resp := createLinkedResponse(t, emails, responses, models.ResponseScheduled, time.Now().Add(-time.Hour))

	_, err := responses.Deliver(ctx, resp.ID)
	assert.ErrorIs(t, err, db.ErrTransport)

	got, err := responses.Get(ctx, resp.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ResponseFailed, got.Status)
	assert.Nil(t, got.SentAt)

	linked, err := emails.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.False(t, linked.ResponseSent)
}

func TestTerminalImmutability(t *testing.T) {
	sender := &fakeSender{}
	emails, responses, store := newTestServices(t, sender)
	ctx := context.Background()

	for _, terminal := range []models.ResponseStatus{
		models.ResponseSent, models.ResponseCancelled, models.ResponseFailed,
	} {
		t.Run(string(terminal), func(t *testing.T) {
			_, resp := createLinkedResponse(t, emails, responses, models.ResponseScheduled, time.Now().Add(time.Hour))
			_, err := store.TransitionResponse(ctx, resp.ID, models.SendableStatuses(), terminal, nil)
			require.NoError(t, err)

			before, err := responses.Get(ctx, resp.ID)
			require.NoError(t, err)

			subject := "changed"
			_, err = responses.Edit(ctx, resp.ID, models.ResponseEdit{Subject: &subject})
			assert.ErrorIs(t, err, db.ErrAlreadyTerminal)

			_, err = responses.Reschedule(ctx, resp.ID, time.Now().Add(2*time.Hour))
			assert.ErrorIs(t, err, db.ErrAlreadyTerminal)

			_, err = responses.Cancel(ctx, resp.ID)
			assert.ErrorIs(t, err, db.ErrAlreadyTerminal)

			_, err = responses.SendNow(ctx, resp.ID)
			assert.ErrorIs(t, err, db.ErrAlreadyTerminal)

			after, err := responses.Get(ctx, resp.ID)
			require.NoError(t, err)
			assert.Equal(t, before, after, "terminal records must not mutate")
		})
	}
}

func TestReschedule(t *testing.T) {
	emails, responses, _ := newTestServices(t, &fakeSender{})
	ctx := context.Background()

	_, draft := createLinkedResponse(t, emails, responses, models.ResponseDraft, time.Now().Add(time.Hour))

	// Past target is rejected with no mutation.
	_, err := responses.Reschedule(ctx, draft.ID, time.Now().Add(-time.Minute))
	assert.ErrorIs(t, err, db.ErrInvalidArgument)

	// Valid target updates scheduledAt and leaves status unchanged.
	target := time.Now().Add(48 * time.Hour)
	updated, err := responses.Reschedule(ctx, draft.ID, target)
	require.NoError(t, err)
	assert.Equal(t, models.ResponseDraft, updated.Status)
	assert.WithinDuration(t, target, updated.ScheduledAt, time.Second)
}

func TestEdit_PreservesSlots(t *testing.T) {
	emails, responses, _ := newTestServices(t, &fakeSender{})
	ctx := context.Background()

	_, resp := createLinkedResponse(t, emails, responses, models.ResponseScheduled, time.Now().Add(time.Hour))

	subject := "Re: Demo follow-up"
	body := "Updated body"
	when := time.Now().Add(3 * time.Hour)
	updated, err := responses.Edit(ctx, resp.ID, models.ResponseEdit{
		Subject:     &subject,
		Body:        &body,
		ScheduledAt: &when,
	})
	require.NoError(t, err)
	assert.Equal(t, subject, updated.Subject)
	assert.Equal(t, body, updated.Body)
	assert.Equal(t, models.ResponseScheduled, updated.Status, "edit restores the prior status")
	assert.Equal(t, resp.ProposedSlots, updated.ProposedSlots, "slots are read-only once generated")
	assert.NotNil(t, updated.LastEditedAt)

	empty := ""
	_, err = responses.Edit(ctx, resp.ID, models.ResponseEdit{Subject: &empty})
	assert.ErrorIs(t, err, db.ErrInvalidArgument)

	_, err = responses.Edit(ctx, "missing", models.ResponseEdit{Subject: &subject})
	assert.ErrorIs(t, err, db.ErrNotFound)
}

func TestSendNow_BypassesSchedule(t *testing.T) {
	sender := &fakeSender{}
	emails, responses, _ := newTestServices(t, sender)
	ctx := context.Background()

	// Scheduled far in the future; send-now ignores the gate.
	_, resp := createLinkedResponse(t, emails, responses, models.ResponseScheduled, time.Now().Add(time.Hour))

	sent, err := responses.SendNow(ctx, resp.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ResponseSent, sent.Status)
	assert.Equal(t, 1, sender.callCount())
}
