package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/akshatj2209/calender-assistant-sub001/internal/models"
)

// Postgres is the pgx-backed Store.
type Postgres struct {
	Pool *pgxpool.Pool
}

func NewPostgres(ctx context.Context, conn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, conn)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	return &Postgres{Pool: pool}, nil
}

func (p *Postgres) Close() {
	p.Pool.Close()
}

// InitSchema creates the tables if they do not exist. The unique index
// on message_id is what makes upsert-by-external-id race-free.
func (p *Postgres) InitSchema(ctx context.Context) error {
	_, err := p.Pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS email_records (
			id                  TEXT PRIMARY KEY,
			message_id          TEXT NOT NULL UNIQUE,
			thread_id           TEXT NOT NULL DEFAULT '',
			from_addr           TEXT NOT NULL DEFAULT '',
			to_addr             TEXT NOT NULL DEFAULT '',
			subject             TEXT NOT NULL DEFAULT '',
			body                TEXT NOT NULL DEFAULT '',
			received_at         TIMESTAMPTZ NOT NULL,
			is_demo_request     BOOLEAN,
			intent              JSONB,
			processing_status   TEXT NOT NULL DEFAULT 'pending',
			response_generated  BOOLEAN NOT NULL DEFAULT FALSE,
			response_sent       BOOLEAN NOT NULL DEFAULT FALSE,
			response_message_id TEXT,
			retry_count         INT NOT NULL DEFAULT 0,
			created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at          TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS scheduled_responses (
			id              TEXT PRIMARY KEY,
			email_record_id TEXT,
			recipient_name  TEXT NOT NULL DEFAULT '',
			recipient_email TEXT NOT NULL,
			subject         TEXT NOT NULL,
			body            TEXT NOT NULL,
			proposed_slots  JSONB NOT NULL DEFAULT '[]',
			status          TEXT NOT NULL,
			scheduled_at    TIMESTAMPTZ NOT NULL,
			created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			last_edited_at  TIMESTAMPTZ,
			sent_at         TIMESTAMPTZ
		);
		CREATE INDEX IF NOT EXISTS idx_email_records_status ON email_records (processing_status);
		CREATE INDEX IF NOT EXISTS idx_email_records_received ON email_records (received_at);
		CREATE INDEX IF NOT EXISTS idx_responses_due ON scheduled_responses (status, scheduled_at);
	`)
	return err
}

const emailColumns = `id, message_id, thread_id, from_addr, to_addr, subject, body,
	received_at, is_demo_request, intent, processing_status,
	response_generated, response_sent, response_message_id, retry_count,
	created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEmail(row rowScanner) (*models.EmailRecord, error) {
	var rec models.EmailRecord
	var intentJSON []byte

	err := row.Scan(
		&rec.ID, &rec.MessageID, &rec.ThreadID, &rec.From, &rec.To,
		&rec.Subject, &rec.Body, &rec.ReceivedAt, &rec.IsDemoRequest,
		&intentJSON, &rec.ProcessingStatus, &rec.ResponseGenerated,
		&rec.ResponseSent, &rec.ResponseMessageID, &rec.RetryCount,
		&rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if len(intentJSON) > 0 {
		var intent models.IntentAnalysis
		if err := json.Unmarshal(intentJSON, &intent); err != nil {
			return nil, fmt.Errorf("decoding intent payload: %w", err)
		}
		rec.Intent = &intent
	}
	return &rec, nil
}

func (p *Postgres) UpsertEmailByMessageID(ctx context.Context, rec models.EmailRecord) (*models.EmailRecord, error) {
	if rec.MessageID == "" {
		return nil, ErrInvalidArgument
	}

	var intentJSON []byte
	if rec.Intent != nil {
		b, err := json.Marshal(rec.Intent)
		if err != nil {
			return nil, fmt.Errorf("encoding intent payload: %w", err)
		}
		intentJSON = b
	}

	var receivedAt *time.Time
	if !rec.ReceivedAt.IsZero() {
		receivedAt = &rec.ReceivedAt
	}

	row := p.Pool.QueryRow(ctx, `
		INSERT INTO email_records
			(id, message_id, thread_id, from_addr, to_addr, subject, body,
			 received_at, is_demo_request, intent, processing_status)
		VALUES
			($1, $2, $3, $4, $5, $6, $7,
			 COALESCE($8, NOW()), $9, $10, COALESCE(NULLIF($11, ''), 'pending'))
		ON CONFLICT (message_id) DO UPDATE SET
			thread_id         = COALESCE(NULLIF($3, ''), email_records.thread_id),
			from_addr         = COALESCE(NULLIF($4, ''), email_records.from_addr),
			to_addr           = COALESCE(NULLIF($5, ''), email_records.to_addr),
			subject           = COALESCE(NULLIF($6, ''), email_records.subject),
			body              = COALESCE(NULLIF($7, ''), email_records.body),
			received_at       = COALESCE($8, email_records.received_at),
			is_demo_request   = COALESCE($9, email_records.is_demo_request),
			intent            = COALESCE($10, email_records.intent),
			processing_status = COALESCE(NULLIF($11, ''), email_records.processing_status),
			updated_at        = NOW()
		RETURNING `+emailColumns,
		uuid.NewString(), rec.MessageID, rec.ThreadID, rec.From, rec.To,
		rec.Subject, rec.Body, receivedAt, rec.IsDemoRequest, intentJSON,
		string(rec.ProcessingStatus),
	)
	return scanEmail(row)
}

func (p *Postgres) GetEmail(ctx context.Context, id string) (*models.EmailRecord, error) {
	row := p.Pool.QueryRow(ctx,
		`SELECT `+emailColumns+` FROM email_records WHERE id = $1`, id)
	return scanEmail(row)
}

func (p *Postgres) GetEmailByMessageID(ctx context.Context, messageID string) (*models.EmailRecord, error) {
	row := p.Pool.QueryRow(ctx,
		`SELECT `+emailColumns+` FROM email_records WHERE message_id = $1`, messageID)
	return scanEmail(row)
}

func (p *Postgres) UpdateEmail(ctx context.Context, id string, upd models.EmailUpdate) (*models.EmailRecord, error) {
	set := []string{"updated_at = NOW()"}
	args := []any{id}

	add := func(expr string, val any) {
		args = append(args, val)
		set = append(set, fmt.Sprintf(expr, len(args)))
	}

	if upd.Subject != nil {
		add("subject = $%d", *upd.Subject)
	}
	if upd.Body != nil {
		add("body = $%d", *upd.Body)
	}
	if upd.ProcessingStatus != nil {
		add("processing_status = $%d", string(*upd.ProcessingStatus))
	}
	if upd.IsDemoRequest != nil {
		add("is_demo_request = $%d", *upd.IsDemoRequest)
	}
	if upd.Intent != nil {
		b, err := json.Marshal(upd.Intent)
		if err != nil {
			return nil, fmt.Errorf("encoding intent payload: %w", err)
		}
		add("intent = $%d", b)
	}
	if upd.ResponseGenerated != nil {
		add("response_generated = $%d", *upd.ResponseGenerated)
	}
	if upd.ResponseSent != nil {
		add("response_sent = $%d", *upd.ResponseSent)
	}
	if upd.ResponseMessageID != nil {
		add("response_message_id = $%d", *upd.ResponseMessageID)
	}
	if upd.IncrementRetry {
		set = append(set, "retry_count = retry_count + 1")
	}

	row := p.Pool.QueryRow(ctx,
		`UPDATE email_records SET `+strings.Join(set, ", ")+
			` WHERE id = $1 RETURNING `+emailColumns,
		args...,
	)
	return scanEmail(row)
}

func (p *Postgres) DeleteEmail(ctx context.Context, id string) error {
	tag, err := p.Pool.Exec(ctx, `DELETE FROM email_records WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func buildEmailWhere(f models.EmailFilter) (string, []any) {
	var conds []string
	var args []any

	add := func(expr string, val any) {
		args = append(args, val)
		conds = append(conds, fmt.Sprintf(expr, len(args)))
	}

	if f.User != "" {
		args = append(args, f.User)
		conds = append(conds, fmt.Sprintf("(to_addr = $%d OR from_addr = $%d)", len(args), len(args)))
	}
	if f.Status != "" {
		add("processing_status = $%d", string(f.Status))
	}
	if f.IsDemoRequest != nil {
		add("is_demo_request = $%d", *f.IsDemoRequest)
	}
	if f.ResponseGenerated != nil {
		add("response_generated = $%d", *f.ResponseGenerated)
	}
	if f.ResponseSent != nil {
		add("response_sent = $%d", *f.ResponseSent)
	}
	if f.Since != nil {
		add("received_at >= $%d", *f.Since)
	}
	if f.Until != nil {
		add("received_at <= $%d", *f.Until)
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (p *Postgres) SearchEmails(ctx context.Context, f models.EmailFilter) ([]models.EmailRecord, int, error) {
	f.Normalize()
	where, args := buildEmailWhere(f)

	var total int
	if err := p.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM email_records`+where, args...,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	offset := (f.Page - 1) * f.Limit
	args = append(args, f.Limit, offset)
	rows, err := p.Pool.Query(ctx,
		fmt.Sprintf(`SELECT %s FROM email_records%s ORDER BY received_at DESC LIMIT $%d OFFSET $%d`,
			emailColumns, where, len(args)-1, len(args)),
		args...,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []models.EmailRecord
	for rows.Next() {
		rec, err := scanEmail(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *rec)
	}
	return out, total, rows.Err()
}

func (p *Postgres) ListEmailsByStatus(ctx context.Context, status models.ProcessingStatus, user string, limit int) ([]models.EmailRecord, error) {
	recs, _, err := p.SearchEmails(ctx, models.EmailFilter{
		Status: status,
		User:   user,
		Limit:  limit,
	})
	return recs, err
}

func (p *Postgres) ListDemoRequests(ctx context.Context, limit int) ([]models.EmailRecord, error) {
	demo := true
	recs, _, err := p.SearchEmails(ctx, models.EmailFilter{
		IsDemoRequest: &demo,
		Limit:         limit,
	})
	return recs, err
}

func (p *Postgres) EmailStats(ctx context.Context, since, until time.Time) (*models.EmailStats, error) {
	var stats models.EmailStats
	err := p.Pool.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE processing_status = 'pending'),
			COUNT(*) FILTER (WHERE processing_status = 'processing'),
			COUNT(*) FILTER (WHERE processing_status = 'completed'),
			COUNT(*) FILTER (WHERE processing_status = 'failed'),
			COUNT(*) FILTER (WHERE processing_status = 'skipped'),
			COUNT(*) FILTER (WHERE is_demo_request IS TRUE),
			COUNT(*) FILTER (WHERE response_sent IS TRUE)
		FROM email_records
		WHERE received_at >= $1 AND received_at <= $2`,
		since, until,
	).Scan(
		&stats.Total, &stats.Pending, &stats.Processing, &stats.Completed,
		&stats.Failed, &stats.Skipped, &stats.DemoRequests, &stats.ResponsesSent,
	)
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

func (p *Postgres) DeleteEmailsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := p.Pool.Exec(ctx,
		`DELETE FROM email_records WHERE received_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const responseColumns = `id, email_record_id, recipient_name, recipient_email,
	subject, body, proposed_slots, status, scheduled_at, created_at,
	last_edited_at, sent_at`

func scanResponse(row rowScanner) (*models.ScheduledResponse, error) {
	var resp models.ScheduledResponse
	var slotsJSON []byte

	err := row.Scan(
		&resp.ID, &resp.EmailRecordID, &resp.RecipientName,
		&resp.RecipientEmail, &resp.Subject, &resp.Body, &slotsJSON,
		&resp.Status, &resp.ScheduledAt, &resp.CreatedAt,
		&resp.LastEditedAt, &resp.SentAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if len(slotsJSON) > 0 {
		if err := json.Unmarshal(slotsJSON, &resp.ProposedSlots); err != nil {
			return nil, fmt.Errorf("decoding proposed slots: %w", err)
		}
	}
	return &resp, nil
}

func (p *Postgres) CreateResponse(ctx context.Context, resp *models.ScheduledResponse) error {
	if resp.ID == "" {
		resp.ID = uuid.NewString()
	}
	slotsJSON, err := json.Marshal(resp.ProposedSlots)
	if err != nil {
		return fmt.Errorf("encoding proposed slots: %w", err)
	}

	return p.Pool.QueryRow(ctx, `
		INSERT INTO scheduled_responses
			(id, email_record_id, recipient_name, recipient_email,
			 subject, body, proposed_slots, status, scheduled_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at`,
		resp.ID, resp.EmailRecordID, resp.RecipientName, resp.RecipientEmail,
		resp.Subject, resp.Body, slotsJSON, string(resp.Status), resp.ScheduledAt,
	).Scan(&resp.CreatedAt)
}

func (p *Postgres) GetResponse(ctx context.Context, id string) (*models.ScheduledResponse, error) {
	row := p.Pool.QueryRow(ctx,
		`SELECT `+responseColumns+` FROM scheduled_responses WHERE id = $1`, id)
	return scanResponse(row)
}

func statusStrings(statuses []models.ResponseStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

func (p *Postgres) ListResponsesByStatus(ctx context.Context, statuses []models.ResponseStatus, limit int) ([]models.ScheduledResponse, error) {
	rows, err := p.Pool.Query(ctx,
		`SELECT `+responseColumns+` FROM scheduled_responses
		 WHERE status = ANY($1) ORDER BY created_at LIMIT $2`,
		statusStrings(statuses), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectResponses(rows)
}

func (p *Postgres) ListDueResponses(ctx context.Context, now time.Time, limit int) ([]models.ScheduledResponse, error) {
	rows, err := p.Pool.Query(ctx,
		`SELECT `+responseColumns+` FROM scheduled_responses
		 WHERE status = ANY($1) AND scheduled_at <= $2
		 ORDER BY scheduled_at LIMIT $3`,
		statusStrings(models.SendableStatuses()), now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectResponses(rows)
}

func collectResponses(rows pgx.Rows) ([]models.ScheduledResponse, error) {
	var out []models.ScheduledResponse
	for rows.Next() {
		resp, err := scanResponse(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *resp)
	}
	return out, rows.Err()
}

// mismatchError re-reads the record after a zero-row conditional update
// to tell NotFound apart from a status conflict.
func (p *Postgres) mismatchError(ctx context.Context, id string) error {
	var status models.ResponseStatus
	err := p.Pool.QueryRow(ctx,
		`SELECT status FROM scheduled_responses WHERE id = $1`, id,
	).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	return classifyStatusMismatch(status)
}

func (p *Postgres) UpdateResponse(ctx context.Context, id string, edit models.ResponseEdit, expect []models.ResponseStatus) (*models.ScheduledResponse, error) {
	set := []string{"last_edited_at = NOW()"}
	args := []any{id, statusStrings(expect)}

	add := func(expr string, val any) {
		args = append(args, val)
		set = append(set, fmt.Sprintf(expr, len(args)))
	}
	if edit.Subject != nil {
		add("subject = $%d", *edit.Subject)
	}
	if edit.Body != nil {
		add("body = $%d", *edit.Body)
	}
	if edit.ScheduledAt != nil {
		add("scheduled_at = $%d", *edit.ScheduledAt)
	}

	row := p.Pool.QueryRow(ctx,
		`UPDATE scheduled_responses SET `+strings.Join(set, ", ")+
			` WHERE id = $1 AND status = ANY($2) RETURNING `+responseColumns,
		args...,
	)
	resp, err := scanResponse(row)
	if errors.Is(err, ErrNotFound) {
		return nil, p.mismatchError(ctx, id)
	}
	return resp, err
}

func (p *Postgres) TransitionResponse(ctx context.Context, id string, from []models.ResponseStatus, to models.ResponseStatus, sentAt *time.Time) (*models.ScheduledResponse, error) {
	row := p.Pool.QueryRow(ctx, `
		UPDATE scheduled_responses
		SET status = $3,
		    sent_at = CASE WHEN $4::timestamptz IS NOT NULL AND sent_at IS NULL
		                   THEN $4 ELSE sent_at END
		WHERE id = $1 AND status = ANY($2)
		RETURNING `+responseColumns,
		id, statusStrings(from), string(to), sentAt,
	)
	resp, err := scanResponse(row)
	if errors.Is(err, ErrNotFound) {
		return nil, p.mismatchError(ctx, id)
	}
	return resp, err
}

var _ Store = (*Postgres)(nil)
