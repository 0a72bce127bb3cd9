package db

import (
	"context"
	"time"

	"github.com/akshatj2209/calender-assistant-sub001/internal/models"
)

// Store is the persistence boundary shared by the services and both
// background jobs. All state transitions on responses go through
// TransitionResponse / UpdateResponse, which commit only if the
// record's status at commit time still matches an expected pre-state.
type Store interface {
	// UpsertEmailByMessageID creates the record on first sight of
	// rec.MessageID, or merges rec into the existing record. Non-zero
	// fields overwrite; zero fields never erase stored data. Safe
	// under concurrent calls with the same MessageID.
	UpsertEmailByMessageID(ctx context.Context, rec models.EmailRecord) (*models.EmailRecord, error)

	GetEmail(ctx context.Context, id string) (*models.EmailRecord, error)
	GetEmailByMessageID(ctx context.Context, messageID string) (*models.EmailRecord, error)
	UpdateEmail(ctx context.Context, id string, upd models.EmailUpdate) (*models.EmailRecord, error)
	DeleteEmail(ctx context.Context, id string) error

	// SearchEmails returns one page of matches (newest first) plus the
	// total match count.
	SearchEmails(ctx context.Context, f models.EmailFilter) ([]models.EmailRecord, int, error)

	// ListEmailsByStatus is the read surface behind list-pending and
	// list-failed. user filters on the recipient mailbox; empty means all.
	ListEmailsByStatus(ctx context.Context, status models.ProcessingStatus, user string, limit int) ([]models.EmailRecord, error)
	ListDemoRequests(ctx context.Context, limit int) ([]models.EmailRecord, error)

	EmailStats(ctx context.Context, since, until time.Time) (*models.EmailStats, error)

	// DeleteEmailsBefore removes records received before cutoff,
	// regardless of status, and returns the number deleted.
	DeleteEmailsBefore(ctx context.Context, cutoff time.Time) (int64, error)

	CreateResponse(ctx context.Context, resp *models.ScheduledResponse) error
	GetResponse(ctx context.Context, id string) (*models.ScheduledResponse, error)
	ListResponsesByStatus(ctx context.Context, statuses []models.ResponseStatus, limit int) ([]models.ScheduledResponse, error)

	// ListDueResponses returns sendable responses whose ScheduledAt is
	// at or before now, oldest due first.
	ListDueResponses(ctx context.Context, now time.Time, limit int) ([]models.ScheduledResponse, error)

	// UpdateResponse applies edit iff the current status is in expect.
	// Absent id yields ErrNotFound; a terminal status yields
	// ErrAlreadyTerminal; any other mismatch yields ErrConflict.
	UpdateResponse(ctx context.Context, id string, edit models.ResponseEdit, expect []models.ResponseStatus) (*models.ScheduledResponse, error)

	// TransitionResponse moves the record from one of the expected
	// statuses to the target status, with the same error classification
	// as UpdateResponse. sentAt, when non-nil, is persisted exactly
	// once at the transition into SENT.
	TransitionResponse(ctx context.Context, id string, from []models.ResponseStatus, to models.ResponseStatus, sentAt *time.Time) (*models.ScheduledResponse, error)
}
