package models

import "time"

type ResponseStatus string

const (
	ResponseDraft     ResponseStatus = "draft"
	ResponseScheduled ResponseStatus = "scheduled"
	ResponseEditing   ResponseStatus = "editing"
	ResponseSent      ResponseStatus = "sent"
	ResponseCancelled ResponseStatus = "cancelled"
	ResponseFailed    ResponseStatus = "failed"
)

// Terminal reports whether no further transition is permitted.
func (s ResponseStatus) Terminal() bool {
	return s == ResponseSent || s == ResponseCancelled || s == ResponseFailed
}

// Sendable reports whether the dispatcher may pick this response up.
// EDITING is deliberately excluded: a record mid-edit is invisible to
// dispatch until the edit commits back to DRAFT or SCHEDULED.
func (s ResponseStatus) Sendable() bool {
	return s == ResponseDraft || s == ResponseScheduled
}

// SendableStatuses is the CAS pre-state set for every delivery and
// user mutation on a live response.
func SendableStatuses() []ResponseStatus {
	return []ResponseStatus{ResponseDraft, ResponseScheduled}
}

// TimeSlot is one proposed meeting window.
type TimeSlot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// ScheduledResponse is one generated reply with its own delivery
// lifecycle, referencing (but not owning) its source EmailRecord.
type ScheduledResponse struct {
	ID            string  `json:"id"`
	EmailRecordID *string `json:"email_record_id,omitempty"`

	RecipientName  string `json:"recipient_name"`
	RecipientEmail string `json:"recipient_email"`
	Subject        string `json:"subject"`
	Body           string `json:"body"`

	// ProposedSlots are read-only once generated; edits never touch them.
	ProposedSlots []TimeSlot `json:"proposed_slots"`

	Status ResponseStatus `json:"status"`

	ScheduledAt  time.Time  `json:"scheduled_at"`
	CreatedAt    time.Time  `json:"created_at"`
	LastEditedAt *time.Time `json:"last_edited_at,omitempty"`
	SentAt       *time.Time `json:"sent_at,omitempty"`
}

// ResponseEdit carries the only fields a user edit may change.
type ResponseEdit struct {
	Subject     *string
	Body        *string
	ScheduledAt *time.Time
}
