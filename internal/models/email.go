package models

import "time"

type ProcessingStatus string

const (
	ProcessingPending    ProcessingStatus = "pending"
	ProcessingInProgress ProcessingStatus = "processing"
	ProcessingCompleted  ProcessingStatus = "completed"
	ProcessingFailed     ProcessingStatus = "failed"
	ProcessingSkipped    ProcessingStatus = "skipped"
)

// Terminal reports whether no further classification runs for this record.
// A terminal email can still receive response-sent updates later.
func (s ProcessingStatus) Terminal() bool {
	return s == ProcessingCompleted || s == ProcessingFailed || s == ProcessingSkipped
}

// ContactInfo is extracted from the email body by the classifier.
type ContactInfo struct {
	Name    string `json:"name,omitempty"`
	Email   string `json:"email,omitempty"`
	Company string `json:"company,omitempty"`
}

// IntentAnalysis is the classifier verdict for one inbound email.
type IntentAnalysis struct {
	IsDemoRequest   bool         `json:"is_demo_request"`
	Confidence      float64      `json:"confidence"`
	IntentType      string       `json:"intent_type"`
	TimePreferences []string     `json:"time_preferences,omitempty"`
	ContactInfo     *ContactInfo `json:"contact_info,omitempty"`
}

// EmailRecord is one externally-received message. MessageID is the
// provider-assigned id and is unique; re-delivery of the same MessageID
// merges into the existing record instead of creating a duplicate.
type EmailRecord struct {
	ID        string `json:"id"`
	MessageID string `json:"message_id"`
	ThreadID  string `json:"thread_id,omitempty"`

	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`

	ReceivedAt time.Time `json:"received_at"`

	IsDemoRequest *bool           `json:"is_demo_request,omitempty"`
	Intent        *IntentAnalysis `json:"intent,omitempty"`

	ProcessingStatus ProcessingStatus `json:"processing_status"`

	ResponseGenerated bool    `json:"response_generated"`
	ResponseSent      bool    `json:"response_sent"`
	ResponseMessageID *string `json:"response_message_id,omitempty"`

	RetryCount int `json:"retry_count"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EmailUpdate is a partial update; nil fields are left untouched.
type EmailUpdate struct {
	Subject           *string
	Body              *string
	ProcessingStatus  *ProcessingStatus
	IsDemoRequest     *bool
	Intent            *IntentAnalysis
	ResponseGenerated *bool
	ResponseSent      *bool
	ResponseMessageID *string
	IncrementRetry    bool
}

// EmailFilter narrows an email search. Zero values mean "no filter".
type EmailFilter struct {
	User              string
	Status            ProcessingStatus
	IsDemoRequest     *bool
	ResponseGenerated *bool
	ResponseSent      *bool
	Since             *time.Time
	Until             *time.Time

	Page  int
	Limit int
}

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// Normalize clamps pagination to page >= 1 and 1 <= limit <= 100.
func (f *EmailFilter) Normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = DefaultPageLimit
	}
	if f.Limit > MaxPageLimit {
		f.Limit = MaxPageLimit
	}
}

// EmailStats aggregates records received within a period.
type EmailStats struct {
	Total         int `json:"total"`
	Pending       int `json:"pending"`
	Processing    int `json:"processing"`
	Completed     int `json:"completed"`
	Failed        int `json:"failed"`
	Skipped       int `json:"skipped"`
	DemoRequests  int `json:"demo_requests"`
	ResponsesSent int `json:"responses_sent"`
}
