package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/akshatj2209/calender-assistant-sub001/internal/db"
	"github.com/akshatj2209/calender-assistant-sub001/internal/metrics"
	"github.com/akshatj2209/calender-assistant-sub001/internal/models"
)

// EmailService owns the EmailRecord processing lifecycle.
type EmailService struct {
	store db.Store
	log   *zap.Logger
}

func NewEmailService(store db.Store, log *zap.Logger) *EmailService {
	return &EmailService{store: store, log: log}
}

// Upsert creates or merges a record by external message id. Duplicate
// delivery is expected and is a no-op beyond the merge.
func (s *EmailService) Upsert(ctx context.Context, rec models.EmailRecord) (*models.EmailRecord, error) {
	return s.store.UpsertEmailByMessageID(ctx, rec)
}

func (s *EmailService) Get(ctx context.Context, id string) (*models.EmailRecord, error) {
	return s.store.GetEmail(ctx, id)
}

func (s *EmailService) GetByMessageID(ctx context.Context, messageID string) (*models.EmailRecord, error) {
	return s.store.GetEmailByMessageID(ctx, messageID)
}

func (s *EmailService) Update(ctx context.Context, id string, upd models.EmailUpdate) (*models.EmailRecord, error) {
	return s.store.UpdateEmail(ctx, id, upd)
}

func (s *EmailService) Delete(ctx context.Context, id string) error {
	return s.store.DeleteEmail(ctx, id)
}

func (s *EmailService) Search(ctx context.Context, f models.EmailFilter) ([]models.EmailRecord, int, error) {
	return s.store.SearchEmails(ctx, f)
}

// MarkProcessing claims a pending record for classification.
func (s *EmailService) MarkProcessing(ctx context.Context, id string) error {
	status := models.ProcessingInProgress
	_, err := s.store.UpdateEmail(ctx, id, models.EmailUpdate{ProcessingStatus: &status})
	return err
}

// MarkProcessed records a definitive classification verdict.
func (s *EmailService) MarkProcessed(ctx context.Context, id string, isDemoRequest bool, intent *models.IntentAnalysis) (*models.EmailRecord, error) {
	status := models.ProcessingCompleted
	rec, err := s.store.UpdateEmail(ctx, id, models.EmailUpdate{
		ProcessingStatus: &status,
		IsDemoRequest:    &isDemoRequest,
		Intent:           intent,
	})
	if err != nil {
		return nil, err
	}
	metrics.EmailsProcessed.Inc()
	return rec, nil
}

// MarkFailed is idempotent: repeating it leaves the record FAILED.
// The failure reason is logged by the caller, not stored here.
func (s *EmailService) MarkFailed(ctx context.Context, id string) (*models.EmailRecord, error) {
	status := models.ProcessingFailed
	return s.store.UpdateEmail(ctx, id, models.EmailUpdate{
		ProcessingStatus: &status,
		IncrementRetry:   true,
	})
}

// MarkSkipped excludes a record from processing by policy.
func (s *EmailService) MarkSkipped(ctx context.Context, id string) (*models.EmailRecord, error) {
	status := models.ProcessingSkipped
	return s.store.UpdateEmail(ctx, id, models.EmailUpdate{ProcessingStatus: &status})
}

// MarkResponseSent records the external id of the delivered reply.
// responseSent implies responseGenerated, so both flags are set.
func (s *EmailService) MarkResponseSent(ctx context.Context, id, responseMessageID string) (*models.EmailRecord, error) {
	if responseMessageID == "" {
		return nil, fmt.Errorf("%w: response message id is required", db.ErrInvalidArgument)
	}
	yes := true
	return s.store.UpdateEmail(ctx, id, models.EmailUpdate{
		ResponseGenerated: &yes,
		ResponseSent:      &yes,
		ResponseMessageID: &responseMessageID,
	})
}

func (s *EmailService) ListPending(ctx context.Context, limit int) ([]models.EmailRecord, error) {
	return s.store.ListEmailsByStatus(ctx, models.ProcessingPending, "", limit)
}

// ListFailed is the retry read surface. Retry counts on the returned
// records are advisory; nothing here re-dispatches them.
func (s *EmailService) ListFailed(ctx context.Context, user string, limit int) ([]models.EmailRecord, error) {
	return s.store.ListEmailsByStatus(ctx, models.ProcessingFailed, user, limit)
}

func (s *EmailService) ListDemoRequests(ctx context.Context, limit int) ([]models.EmailRecord, error) {
	return s.store.ListDemoRequests(ctx, limit)
}

func (s *EmailService) Stats(ctx context.Context, since, until time.Time) (*models.EmailStats, error) {
	return s.store.EmailStats(ctx, since, until)
}

// Cleanup deletes records received more than olderThanDays ago,
// regardless of status, and returns how many were removed.
func (s *EmailService) Cleanup(ctx context.Context, olderThanDays int) (int64, error) {
	if olderThanDays <= 0 {
		return 0, fmt.Errorf("%w: retention days must be positive", db.ErrInvalidArgument)
	}
	cutoff := time.Now().AddDate(0, 0, -olderThanDays)
	deleted, err := s.store.DeleteEmailsBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		metrics.RecordsCleaned.Add(float64(deleted))
		s.log.Info("retention cleanup removed records",
			zap.Int64("deleted", deleted),
			zap.Int("older_than_days", olderThanDays),
		)
	}
	return deleted, nil
}
