package jobs

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/akshatj2209/calender-assistant-sub001/internal/classifier"
	"github.com/akshatj2209/calender-assistant-sub001/internal/email"
	"github.com/akshatj2209/calender-assistant-sub001/internal/metrics"
	"github.com/akshatj2209/calender-assistant-sub001/internal/models"
	"github.com/akshatj2209/calender-assistant-sub001/internal/responder"
	"github.com/akshatj2209/calender-assistant-sub001/internal/service"
)

// Intake pulls new mail, classifies it, and creates a draft response
// for every demo request. One message's failure never aborts the
// batch; a fetch failure aborts the cycle only.
type Intake struct {
	fetcher    email.Fetcher
	classifier classifier.Classifier
	emails     *service.EmailService
	responses  *service.ResponseService
	generator  *responder.Generator
	log        *zap.Logger

	selfAddress string        // mail from this address is skipped by policy
	batchMax    int           // per-cycle fetch bound
	sendDelay   time.Duration // how far ahead a generated reply is scheduled
}

func NewIntake(
	fetcher email.Fetcher,
	cls classifier.Classifier,
	emails *service.EmailService,
	responses *service.ResponseService,
	generator *responder.Generator,
	selfAddress string,
	batchMax int,
	sendDelay time.Duration,
	log *zap.Logger,
) *Intake {
	if batchMax <= 0 {
		batchMax = 25
	}
	if sendDelay <= 0 {
		sendDelay = time.Hour
	}
	return &Intake{
		fetcher:     fetcher,
		classifier:  cls,
		emails:      emails,
		responses:   responses,
		generator:   generator,
		selfAddress: strings.ToLower(selfAddress),
		batchMax:    batchMax,
		sendDelay:   sendDelay,
		log:         log,
	}
}

// Cycle is one intake pass.
func (j *Intake) Cycle(ctx context.Context) error {
	messages, err := j.fetcher.FetchNewMessages(ctx, j.batchMax)
	if err != nil {
		return fmt.Errorf("fetching new messages: %w", err)
	}
	if len(messages) == 0 {
		return nil
	}

	j.log.Info("intake cycle fetched messages", zap.Int("count", len(messages)))

	for _, msg := range messages {
		if err := j.processMessage(ctx, msg); err != nil {
			j.log.Error("message processing failed",
				zap.String("message_id", msg.MessageID),
				zap.Error(err),
			)
		}
	}
	return nil
}

func (j *Intake) processMessage(ctx context.Context, msg email.InboundMessage) error {
	rec, err := j.emails.Upsert(ctx, models.EmailRecord{
		MessageID:  msg.MessageID,
		ThreadID:   msg.ThreadID,
		From:       msg.From,
		To:         msg.To,
		Subject:    msg.Subject,
		Body:       msg.Body,
		ReceivedAt: msg.ReceivedAt,
	})
	if err != nil {
		return fmt.Errorf("upserting email record: %w", err)
	}

	if rec.ProcessingStatus != models.ProcessingPending {
		// Re-delivered message, already classified or claimed.
		return nil
	}

	if j.selfAddress != "" && strings.ToLower(rec.From) == j.selfAddress {
		_, err := j.emails.MarkSkipped(ctx, rec.ID)
		return err
	}

	if err := j.emails.MarkProcessing(ctx, rec.ID); err != nil {
		return err
	}

	verdict, err := j.classifier.Classify(ctx, rec.Subject, rec.Body)
	if err != nil {
		metrics.ClassificationFailures.Inc()
		if _, markErr := j.emails.MarkFailed(ctx, rec.ID); markErr != nil {
			j.log.Error("failed to mark record failed",
				zap.String("email_id", rec.ID),
				zap.Error(markErr),
			)
		}
		return fmt.Errorf("classifying message: %w", err)
	}

	rec, err = j.emails.MarkProcessed(ctx, rec.ID, verdict.IsDemoRequest, verdict)
	if err != nil {
		return err
	}

	j.log.Info("email classified",
		zap.String("email_id", rec.ID),
		zap.Bool("is_demo_request", verdict.IsDemoRequest),
		zap.Float64("confidence", verdict.Confidence),
	)

	if !verdict.IsDemoRequest {
		return nil
	}
	return j.generateResponse(ctx, rec)
}

func (j *Intake) generateResponse(ctx context.Context, rec *models.EmailRecord) error {
	slots := j.generator.ProposeSlots(time.Now(), intentPreferences(rec))
	subject, body, err := j.generator.Compose(rec, slots)
	if err != nil {
		return err
	}

	resp := &models.ScheduledResponse{
		EmailRecordID:  &rec.ID,
		RecipientName:  recipientName(rec),
		RecipientEmail: rec.From,
		Subject:        subject,
		Body:           body,
		ProposedSlots:  slots,
		Status:         models.ResponseDraft,
		ScheduledAt:    time.Now().Add(j.sendDelay),
	}
	if err := j.responses.Create(ctx, resp); err != nil {
		return fmt.Errorf("creating scheduled response: %w", err)
	}

	generated := true
	if _, err := j.emails.Update(ctx, rec.ID, models.EmailUpdate{ResponseGenerated: &generated}); err != nil {
		return err
	}

	j.log.Info("response drafted for demo request",
		zap.String("email_id", rec.ID),
		zap.String("response_id", resp.ID),
		zap.Time("scheduled_at", resp.ScheduledAt),
	)
	return nil
}

func intentPreferences(rec *models.EmailRecord) []string {
	if rec.Intent == nil {
		return nil
	}
	return rec.Intent.TimePreferences
}

func recipientName(rec *models.EmailRecord) string {
	if rec.Intent != nil && rec.Intent.ContactInfo != nil {
		return rec.Intent.ContactInfo.Name
	}
	return ""
}
