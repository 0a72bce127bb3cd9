package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/akshatj2209/calender-assistant-sub001/internal/db"
	"github.com/akshatj2209/calender-assistant-sub001/internal/email"
	"github.com/akshatj2209/calender-assistant-sub001/internal/metrics"
	"github.com/akshatj2209/calender-assistant-sub001/internal/models"
)

// ResponseService owns the ScheduledResponse lifecycle. Send-now and
// due dispatch share the single Deliver path, so the at-most-once
// property holds identically for both triggers.
//
// Mutations and deliveries on the same response serialize on a
// per-record lock; the final commit is still a store compare-and-set,
// so a racing writer outside this process resolves to exactly one
// winner. A delivery holds only its own record's lock while the
// transport call is in flight.
type ResponseService struct {
	store   db.Store
	emails  *EmailService
	sender  email.Sender
	limiter *rate.Limiter
	log     *zap.Logger

	// SendRetryBudget bounds the transport retry loop for one delivery.
	SendRetryBudget time.Duration

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewResponseService(store db.Store, emails *EmailService, sender email.Sender, limiter *rate.Limiter, log *zap.Logger) *ResponseService {
	return &ResponseService{
		store:           store,
		emails:          emails,
		sender:          sender,
		limiter:         limiter,
		log:             log,
		SendRetryBudget: 15 * time.Second,
		locks:           make(map[string]*sync.Mutex),
	}
}

// lockRecord acquires the per-response mutex and returns its unlock.
func (s *ResponseService) lockRecord(id string) func() {
	s.mu.Lock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	s.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// Create registers a new response in DRAFT or SCHEDULED state.
// Auto-generated responses must carry at least one proposed slot.
func (s *ResponseService) Create(ctx context.Context, resp *models.ScheduledResponse) error {
	if resp.RecipientEmail == "" || resp.Subject == "" || resp.Body == "" {
		return fmt.Errorf("%w: recipient, subject and body are required", db.ErrInvalidArgument)
	}
	if resp.Status == "" {
		resp.Status = models.ResponseDraft
	}
	if !resp.Status.Sendable() {
		return fmt.Errorf("%w: a response starts in draft or scheduled state", db.ErrInvalidArgument)
	}
	if resp.EmailRecordID != nil && len(resp.ProposedSlots) == 0 {
		return fmt.Errorf("%w: generated responses need proposed time slots", db.ErrInvalidArgument)
	}
	if resp.ScheduledAt.IsZero() {
		return fmt.Errorf("%w: scheduled time is required", db.ErrInvalidArgument)
	}
	if !resp.ScheduledAt.After(time.Now()) {
		return fmt.Errorf("%w: scheduled time must be in the future", db.ErrInvalidArgument)
	}

	if err := s.store.CreateResponse(ctx, resp); err != nil {
		return err
	}
	metrics.ResponsesCreated.Inc()
	s.log.Info("scheduled response created",
		zap.String("response_id", resp.ID),
		zap.String("to", resp.RecipientEmail),
		zap.Time("scheduled_at", resp.ScheduledAt),
	)
	return nil
}

func (s *ResponseService) Get(ctx context.Context, id string) (*models.ScheduledResponse, error) {
	return s.store.GetResponse(ctx, id)
}

// Edit updates subject, body and/or scheduledAt. Proposed slots are
// read-only once generated and are never touched. The record passes
// through EDITING so a concurrent dispatch commit fails rather than
// racing the new values; the prior status is restored on save.
func (s *ResponseService) Edit(ctx context.Context, id string, edit models.ResponseEdit) (*models.ScheduledResponse, error) {
	if edit.Subject != nil && *edit.Subject == "" {
		return nil, fmt.Errorf("%w: subject must not be empty", db.ErrInvalidArgument)
	}
	if edit.Body != nil && *edit.Body == "" {
		return nil, fmt.Errorf("%w: body must not be empty", db.ErrInvalidArgument)
	}

	unlock := s.lockRecord(id)
	defer unlock()

	// Validity of the new schedule is judged now, at commit time, not
	// when the request was formed.
	if edit.ScheduledAt != nil && !edit.ScheduledAt.After(time.Now()) {
		return nil, fmt.Errorf("%w: scheduled time must be in the future", db.ErrInvalidArgument)
	}

	current, err := s.store.GetResponse(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status.Terminal() {
		return nil, db.ErrAlreadyTerminal
	}
	if !current.Status.Sendable() {
		return nil, db.ErrConflict
	}
	prior := current.Status

	if _, err := s.store.TransitionResponse(ctx, id, []models.ResponseStatus{prior}, models.ResponseEditing, nil); err != nil {
		return nil, err
	}

	if _, err := s.store.UpdateResponse(ctx, id, edit, []models.ResponseStatus{models.ResponseEditing}); err != nil {
		// Release the claim before surfacing the error.
		_, _ = s.store.TransitionResponse(ctx, id, []models.ResponseStatus{models.ResponseEditing}, prior, nil)
		return nil, err
	}

	return s.store.TransitionResponse(ctx, id, []models.ResponseStatus{models.ResponseEditing}, prior, nil)
}

// Reschedule moves the target send time, leaving status unchanged.
// The new time is re-checked against now at commit, closing the race
// where a request sits in a queue past its own deadline.
func (s *ResponseService) Reschedule(ctx context.Context, id string, newDate time.Time) (*models.ScheduledResponse, error) {
	unlock := s.lockRecord(id)
	defer unlock()

	if !newDate.After(time.Now()) {
		return nil, fmt.Errorf("%w: scheduled time must be in the future", db.ErrInvalidArgument)
	}

	return s.store.UpdateResponse(ctx, id,
		models.ResponseEdit{ScheduledAt: &newDate},
		models.SendableStatuses(),
	)
}

// Cancel moves a live response to CANCELLED. Terminal records reject
// with AlreadyTerminal; a record mid-edit or mid-send conflicts.
func (s *ResponseService) Cancel(ctx context.Context, id string) (*models.ScheduledResponse, error) {
	unlock := s.lockRecord(id)
	defer unlock()

	resp, err := s.store.TransitionResponse(ctx, id, models.SendableStatuses(), models.ResponseCancelled, nil)
	if err != nil {
		return nil, err
	}
	s.log.Info("scheduled response cancelled", zap.String("response_id", id))
	return resp, nil
}

// SendNow forces an immediate delivery attempt, bypassing the
// scheduledAt gate. It runs the same delivery path as due dispatch.
func (s *ResponseService) SendNow(ctx context.Context, id string) (*models.ScheduledResponse, error) {
	return s.Deliver(ctx, id)
}

// Deliver attempts delivery of one response: claim the record lock,
// re-read, send, then commit SENT (or FAILED) by compare-and-set.
// No transient status is ever persisted; a crash mid-send leaves the
// record in DRAFT/SCHEDULED for the next cycle.
func (s *ResponseService) Deliver(ctx context.Context, id string) (*models.ScheduledResponse, error) {
	unlock := s.lockRecord(id)
	defer unlock()

	resp, err := s.store.GetResponse(ctx, id)
	if err != nil {
		return nil, err
	}
	if resp.Status.Terminal() {
		return nil, db.ErrAlreadyTerminal
	}
	if !resp.Status.Sendable() {
		return nil, db.ErrConflict
	}

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	result, sendErr := email.SendWithRetry(ctx, s.sender, resp.RecipientEmail, resp.Subject, resp.Body, s.SendRetryBudget)
	if sendErr != nil {
		metrics.SendFailures.Inc()
		s.log.Error("response delivery failed",
			zap.String("response_id", id),
			zap.String("to", resp.RecipientEmail),
			zap.Error(sendErr),
		)
		if _, err := s.store.TransitionResponse(ctx, id, models.SendableStatuses(), models.ResponseFailed, nil); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", db.ErrTransport, sendErr)
	}

	now := time.Now().UTC()
	sent, err := s.store.TransitionResponse(ctx, id, models.SendableStatuses(), models.ResponseSent, &now)
	if err != nil {
		// Another writer won the commit; the caller treats this as
		// already handled.
		return nil, err
	}

	if sent.EmailRecordID != nil {
		if _, err := s.emails.MarkResponseSent(ctx, *sent.EmailRecordID, result.MessageID); err != nil {
			s.log.Error("failed to mark source email response-sent",
				zap.String("email_id", *sent.EmailRecordID),
				zap.String("response_id", id),
				zap.Error(err),
			)
		}
	}

	metrics.ResponsesSent.Inc()
	s.log.Info("response delivered",
		zap.String("response_id", id),
		zap.String("to", sent.RecipientEmail),
		zap.String("message_id", result.MessageID),
	)
	return sent, nil
}

// ListDue surfaces sendable responses whose target time has arrived.
func (s *ResponseService) ListDue(ctx context.Context, now time.Time, limit int) ([]models.ScheduledResponse, error) {
	return s.store.ListDueResponses(ctx, now, limit)
}
