package db

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/akshatj2209/calender-assistant-sub001/internal/models"
)

// Memory is a mutex-guarded in-process Store. It backs the service and
// job tests and the no-database dev mode; every mutation is applied
// atomically under the lock, so the compare-and-set discipline holds
// exactly as it does for the Postgres implementation.
type Memory struct {
	mu        sync.Mutex
	emails    map[string]*models.EmailRecord
	byMessage map[string]string // external message id -> internal id
	responses map[string]*models.ScheduledResponse
}

func NewMemory() *Memory {
	return &Memory{
		emails:    make(map[string]*models.EmailRecord),
		byMessage: make(map[string]string),
		responses: make(map[string]*models.ScheduledResponse),
	}
}

func copyEmail(r *models.EmailRecord) *models.EmailRecord {
	c := *r
	if r.IsDemoRequest != nil {
		v := *r.IsDemoRequest
		c.IsDemoRequest = &v
	}
	if r.Intent != nil {
		v := *r.Intent
		c.Intent = &v
	}
	if r.ResponseMessageID != nil {
		v := *r.ResponseMessageID
		c.ResponseMessageID = &v
	}
	return &c
}

func copyResponse(r *models.ScheduledResponse) *models.ScheduledResponse {
	c := *r
	if r.EmailRecordID != nil {
		v := *r.EmailRecordID
		c.EmailRecordID = &v
	}
	if r.LastEditedAt != nil {
		v := *r.LastEditedAt
		c.LastEditedAt = &v
	}
	if r.SentAt != nil {
		v := *r.SentAt
		c.SentAt = &v
	}
	c.ProposedSlots = append([]models.TimeSlot(nil), r.ProposedSlots...)
	return &c
}

func (m *Memory) UpsertEmailByMessageID(ctx context.Context, rec models.EmailRecord) (*models.EmailRecord, error) {
	if rec.MessageID == "" {
		return nil, ErrInvalidArgument
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()

	if id, ok := m.byMessage[rec.MessageID]; ok {
		existing := m.emails[id]
		mergeEmail(existing, rec)
		existing.UpdatedAt = now
		return copyEmail(existing), nil
	}

	created := rec
	if created.ID == "" {
		created.ID = uuid.NewString()
	}
	if created.ProcessingStatus == "" {
		created.ProcessingStatus = models.ProcessingPending
	}
	if created.ReceivedAt.IsZero() {
		created.ReceivedAt = now
	}
	created.CreatedAt = now
	created.UpdatedAt = now

	m.emails[created.ID] = copyEmail(&created)
	m.byMessage[created.MessageID] = created.ID
	return copyEmail(&created), nil
}

// mergeEmail overwrites dst with the non-zero fields of src only.
func mergeEmail(dst *models.EmailRecord, src models.EmailRecord) {
	if src.ThreadID != "" {
		dst.ThreadID = src.ThreadID
	}
	if src.From != "" {
		dst.From = src.From
	}
	if src.To != "" {
		dst.To = src.To
	}
	if src.Subject != "" {
		dst.Subject = src.Subject
	}
	if src.Body != "" {
		dst.Body = src.Body
	}
	if !src.ReceivedAt.IsZero() {
		dst.ReceivedAt = src.ReceivedAt
	}
	if src.IsDemoRequest != nil {
		v := *src.IsDemoRequest
		dst.IsDemoRequest = &v
	}
	if src.Intent != nil {
		v := *src.Intent
		dst.Intent = &v
	}
	if src.ProcessingStatus != "" {
		dst.ProcessingStatus = src.ProcessingStatus
	}
}

func (m *Memory) GetEmail(ctx context.Context, id string) (*models.EmailRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.emails[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyEmail(rec), nil
}

func (m *Memory) GetEmailByMessageID(ctx context.Context, messageID string) (*models.EmailRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.byMessage[messageID]
	if !ok {
		return nil, ErrNotFound
	}
	return copyEmail(m.emails[id]), nil
}

func (m *Memory) UpdateEmail(ctx context.Context, id string, upd models.EmailUpdate) (*models.EmailRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.emails[id]
	if !ok {
		return nil, ErrNotFound
	}

	if upd.Subject != nil {
		rec.Subject = *upd.Subject
	}
	if upd.Body != nil {
		rec.Body = *upd.Body
	}
	if upd.ProcessingStatus != nil {
		rec.ProcessingStatus = *upd.ProcessingStatus
	}
	if upd.IsDemoRequest != nil {
		v := *upd.IsDemoRequest
		rec.IsDemoRequest = &v
	}
	if upd.Intent != nil {
		v := *upd.Intent
		rec.Intent = &v
	}
	if upd.ResponseGenerated != nil {
		rec.ResponseGenerated = *upd.ResponseGenerated
	}
	if upd.ResponseSent != nil {
		rec.ResponseSent = *upd.ResponseSent
	}
	if upd.ResponseMessageID != nil {
		v := *upd.ResponseMessageID
		rec.ResponseMessageID = &v
	}
	if upd.IncrementRetry {
		rec.RetryCount++
	}
	rec.UpdatedAt = time.Now().UTC()

	return copyEmail(rec), nil
}

func (m *Memory) DeleteEmail(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.emails[id]
	if !ok {
		return ErrNotFound
	}
	delete(m.byMessage, rec.MessageID)
	delete(m.emails, id)
	return nil
}

func matchesFilter(rec *models.EmailRecord, f models.EmailFilter) bool {
	if f.User != "" && rec.To != f.User && rec.From != f.User {
		return false
	}
	if f.Status != "" && rec.ProcessingStatus != f.Status {
		return false
	}
	if f.IsDemoRequest != nil {
		if rec.IsDemoRequest == nil || *rec.IsDemoRequest != *f.IsDemoRequest {
			return false
		}
	}
	if f.ResponseGenerated != nil && rec.ResponseGenerated != *f.ResponseGenerated {
		return false
	}
	if f.ResponseSent != nil && rec.ResponseSent != *f.ResponseSent {
		return false
	}
	if f.Since != nil && rec.ReceivedAt.Before(*f.Since) {
		return false
	}
	if f.Until != nil && rec.ReceivedAt.After(*f.Until) {
		return false
	}
	return true
}

func (m *Memory) SearchEmails(ctx context.Context, f models.EmailFilter) ([]models.EmailRecord, int, error) {
	f.Normalize()

	m.mu.Lock()
	defer m.mu.Unlock()

	var matched []*models.EmailRecord
	for _, rec := range m.emails {
		if matchesFilter(rec, f) {
			matched = append(matched, rec)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].ReceivedAt.After(matched[j].ReceivedAt)
	})

	total := len(matched)
	start := (f.Page - 1) * f.Limit
	if start >= total {
		return nil, total, nil
	}
	end := start + f.Limit
	if end > total {
		end = total
	}

	out := make([]models.EmailRecord, 0, end-start)
	for _, rec := range matched[start:end] {
		out = append(out, *copyEmail(rec))
	}
	return out, total, nil
}

func (m *Memory) ListEmailsByStatus(ctx context.Context, status models.ProcessingStatus, user string, limit int) ([]models.EmailRecord, error) {
	recs, _, err := m.SearchEmails(ctx, models.EmailFilter{
		Status: status,
		User:   user,
		Limit:  limit,
	})
	return recs, err
}

func (m *Memory) ListDemoRequests(ctx context.Context, limit int) ([]models.EmailRecord, error) {
	demo := true
	recs, _, err := m.SearchEmails(ctx, models.EmailFilter{
		IsDemoRequest: &demo,
		Limit:         limit,
	})
	return recs, err
}

func (m *Memory) EmailStats(ctx context.Context, since, until time.Time) (*models.EmailStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := &models.EmailStats{}
	for _, rec := range m.emails {
		if rec.ReceivedAt.Before(since) || rec.ReceivedAt.After(until) {
			continue
		}
		stats.Total++
		switch rec.ProcessingStatus {
		case models.ProcessingPending:
			stats.Pending++
		case models.ProcessingInProgress:
			stats.Processing++
		case models.ProcessingCompleted:
			stats.Completed++
		case models.ProcessingFailed:
			stats.Failed++
		case models.ProcessingSkipped:
			stats.Skipped++
		}
		if rec.IsDemoRequest != nil && *rec.IsDemoRequest {
			stats.DemoRequests++
		}
		if rec.ResponseSent {
			stats.ResponsesSent++
		}
	}
	return stats, nil
}

func (m *Memory) DeleteEmailsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var deleted int64
	for id, rec := range m.emails {
		if rec.ReceivedAt.Before(cutoff) {
			delete(m.byMessage, rec.MessageID)
			delete(m.emails, id)
			deleted++
		}
	}
	return deleted, nil
}

func (m *Memory) CreateResponse(ctx context.Context, resp *models.ScheduledResponse) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if resp.ID == "" {
		resp.ID = uuid.NewString()
	}
	if resp.CreatedAt.IsZero() {
		resp.CreatedAt = time.Now().UTC()
	}
	m.responses[resp.ID] = copyResponse(resp)
	return nil
}

func (m *Memory) GetResponse(ctx context.Context, id string) (*models.ScheduledResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	resp, ok := m.responses[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyResponse(resp), nil
}

func (m *Memory) ListResponsesByStatus(ctx context.Context, statuses []models.ResponseStatus, limit int) ([]models.ScheduledResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	wanted := make(map[models.ResponseStatus]bool, len(statuses))
	for _, s := range statuses {
		wanted[s] = true
	}

	var out []models.ScheduledResponse
	for _, resp := range m.responses {
		if wanted[resp.Status] {
			out = append(out, *copyResponse(resp))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) ListDueResponses(ctx context.Context, now time.Time, limit int) ([]models.ScheduledResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.ScheduledResponse
	for _, resp := range m.responses {
		if resp.Status.Sendable() && !resp.ScheduledAt.After(now) {
			out = append(out, *copyResponse(resp))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ScheduledAt.Before(out[j].ScheduledAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// classifyStatusMismatch maps a failed expected-status check onto the
// error taxonomy: terminal records are AlreadyTerminal, anything else
// is a Conflict the caller treats as "already handled".
func classifyStatusMismatch(current models.ResponseStatus) error {
	if current.Terminal() {
		return ErrAlreadyTerminal
	}
	return ErrConflict
}

func statusIn(s models.ResponseStatus, set []models.ResponseStatus) bool {
	for _, v := range set {
		if s == v {
			return true
		}
	}
	return false
}

func (m *Memory) UpdateResponse(ctx context.Context, id string, edit models.ResponseEdit, expect []models.ResponseStatus) (*models.ScheduledResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	resp, ok := m.responses[id]
	if !ok {
		return nil, ErrNotFound
	}
	if !statusIn(resp.Status, expect) {
		return nil, classifyStatusMismatch(resp.Status)
	}

	if edit.Subject != nil {
		resp.Subject = *edit.Subject
	}
	if edit.Body != nil {
		resp.Body = *edit.Body
	}
	if edit.ScheduledAt != nil {
		resp.ScheduledAt = *edit.ScheduledAt
	}
	now := time.Now().UTC()
	resp.LastEditedAt = &now

	return copyResponse(resp), nil
}

func (m *Memory) TransitionResponse(ctx context.Context, id string, from []models.ResponseStatus, to models.ResponseStatus, sentAt *time.Time) (*models.ScheduledResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	resp, ok := m.responses[id]
	if !ok {
		return nil, ErrNotFound
	}
	if !statusIn(resp.Status, from) {
		return nil, classifyStatusMismatch(resp.Status)
	}

	resp.Status = to
	if sentAt != nil && to == models.ResponseSent && resp.SentAt == nil {
		v := *sentAt
		resp.SentAt = &v
	}
	return copyResponse(resp), nil
}

var _ Store = (*Memory)(nil)
