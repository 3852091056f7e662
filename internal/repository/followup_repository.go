package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/onurcolak/followup-engine/internal/domain"
)

const followUpColumns = `id, recipient_id, recipient_phone, kind, channel, body, status, is_recurring, cadence,
		scheduled_at, next_run_at, sent_at, gateway_message_id, last_error, response_received, responded_at,
		created_at, updated_at`

// leaseFree matches rows nobody holds, or whose holder's lease went stale.
const leaseFree = `(claim_token IS NULL OR claimed_at < ?)`

// FollowUpRepository handles database operations for follow-ups.
type FollowUpRepository struct {
	db *sqlx.DB
}

func NewFollowUpRepository(db *sqlx.DB) *FollowUpRepository {
	return &FollowUpRepository{db: db}
}

func (r *FollowUpRepository) Create(ctx context.Context, f *domain.FollowUp) (*domain.FollowUp, error) {
	query := `
		INSERT INTO follow_ups (
			recipient_id, recipient_phone, kind, channel, body, status,
			is_recurring, cadence, scheduled_at, next_run_at
		) VALUES (?, ?, ?, ?, ?, 'pending', ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		f.RecipientID, f.RecipientPhone, f.Kind, f.Channel, f.Body,
		f.IsRecurring, f.Cadence, f.ScheduledAt, f.NextRunAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create follow-up: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get last insert id: %w", err)
	}

	return r.GetByID(ctx, id)
}

// GetByID returns nil, nil when the row does not exist.
func (r *FollowUpRepository) GetByID(ctx context.Context, id int64) (*domain.FollowUp, error) {
	query := `SELECT ` + followUpColumns + ` FROM follow_ups WHERE id = ?`

	var f domain.FollowUp
	if err := r.db.GetContext(ctx, &f, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get follow-up: %w", err)
	}

	return &f, nil
}

// DueOneShot lists pending one-shot rows whose scheduled time has passed and
// that no live dispatch pass holds.
func (r *FollowUpRepository) DueOneShot(ctx context.Context, now, staleBefore time.Time, limit int) ([]domain.FollowUp, error) {
	query := `
		SELECT ` + followUpColumns + `
		FROM follow_ups
		WHERE status = 'pending'
		  AND is_recurring = FALSE
		  AND scheduled_at IS NOT NULL
		  AND scheduled_at <= ?
		  AND ` + leaseFree + `
		ORDER BY scheduled_at ASC, id ASC
		LIMIT ?
	`

	var rows []domain.FollowUp
	if err := r.db.SelectContext(ctx, &rows, query, now, staleBefore, limit); err != nil {
		return nil, fmt.Errorf("failed to get due one-shot follow-ups: %w", err)
	}

	return rows, nil
}

// DueRecurring lists pending recurring rows whose next run has passed. Rows
// without next_run_at are paused and never selected.
func (r *FollowUpRepository) DueRecurring(ctx context.Context, now, staleBefore time.Time, limit int) ([]domain.FollowUp, error) {
	query := `
		SELECT ` + followUpColumns + `
		FROM follow_ups
		WHERE status = 'pending'
		  AND is_recurring = TRUE
		  AND next_run_at IS NOT NULL
		  AND next_run_at <= ?
		  AND ` + leaseFree + `
		ORDER BY next_run_at ASC, id ASC
		LIMIT ?
	`

	var rows []domain.FollowUp
	if err := r.db.SelectContext(ctx, &rows, query, now, staleBefore, limit); err != nil {
		return nil, fmt.Errorf("failed to get due recurring follow-ups: %w", err)
	}

	return rows, nil
}

// Claim leases a row for one dispatch attempt. The update only matches while
// the row is still pending, still due at now (unless requireDue is false) and
// not leased by another pass, so concurrent callers cannot both win.
// claimedAt is the wall-clock claim time the lease age is measured from.
func (r *FollowUpRepository) Claim(
	ctx context.Context,
	id int64,
	token string,
	now, claimedAt, staleBefore time.Time,
	requireDue bool,
) (bool, error) {
	query := `
		UPDATE follow_ups
		SET claim_token = ?, claimed_at = ?
		WHERE id = ?
		  AND status = 'pending'
		  AND ` + leaseFree
	args := []any{token, claimedAt, id, staleBefore}

	if requireDue {
		query += `
		  AND ((is_recurring = FALSE AND scheduled_at IS NOT NULL AND scheduled_at <= ?)
		    OR (is_recurring = TRUE AND next_run_at IS NOT NULL AND next_run_at <= ?))`
		args = append(args, now, now)
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to claim follow-up: %w", err)
	}

	return affectedOne(result)
}

// MarkSent completes a one-shot row. A row cancelled while in flight keeps
// its cancelled status.
func (r *FollowUpRepository) MarkSent(
	ctx context.Context,
	id int64,
	token string,
	sentAt time.Time,
	gatewayMessageID string,
) (bool, error) {
	query := `
		UPDATE follow_ups
		SET status = IF(status = 'pending', 'sent', status),
		    sent_at = ?,
		    gateway_message_id = ?,
		    last_error = NULL,
		    claim_token = NULL,
		    claimed_at = NULL
		WHERE id = ? AND claim_token = ?
	`

	result, err := r.db.ExecContext(ctx, query, sentAt, nullIfEmpty(gatewayMessageID), id, token)
	if err != nil {
		return false, fmt.Errorf("failed to mark follow-up as sent: %w", err)
	}

	return affectedOne(result)
}

// MarkRecurringSent records a recurring send and moves next_run_at forward.
// A nil nextRunAt pauses the row.
func (r *FollowUpRepository) MarkRecurringSent(
	ctx context.Context,
	id int64,
	token string,
	sentAt time.Time,
	nextRunAt *time.Time,
	gatewayMessageID string,
) (bool, error) {
	query := `
		UPDATE follow_ups
		SET sent_at = ?,
		    next_run_at = ?,
		    gateway_message_id = ?,
		    last_error = NULL,
		    claim_token = NULL,
		    claimed_at = NULL
		WHERE id = ? AND claim_token = ?
	`

	result, err := r.db.ExecContext(ctx, query, sentAt, nextRunAt, nullIfEmpty(gatewayMessageID), id, token)
	if err != nil {
		return false, fmt.Errorf("failed to mark recurring follow-up as sent: %w", err)
	}

	return affectedOne(result)
}

func (r *FollowUpRepository) MarkFailed(ctx context.Context, id int64, token, reason string) (bool, error) {
	query := `
		UPDATE follow_ups
		SET status = IF(status = 'pending', 'failed', status),
		    last_error = ?,
		    claim_token = NULL,
		    claimed_at = NULL
		WHERE id = ? AND claim_token = ?
	`

	result, err := r.db.ExecContext(ctx, query, reason, id, token)
	if err != nil {
		return false, fmt.Errorf("failed to mark follow-up as failed: %w", err)
	}

	return affectedOne(result)
}

// ReleaseClaim drops the lease without touching the schedule, so the row is
// picked up again by the next pass.
func (r *FollowUpRepository) ReleaseClaim(ctx context.Context, id int64, token, reason string) (bool, error) {
	query := `
		UPDATE follow_ups
		SET last_error = ?,
		    claim_token = NULL,
		    claimed_at = NULL
		WHERE id = ? AND claim_token = ?
	`

	result, err := r.db.ExecContext(ctx, query, reason, id, token)
	if err != nil {
		return false, fmt.Errorf("failed to release follow-up claim: %w", err)
	}

	return affectedOne(result)
}

func (r *FollowUpRepository) Cancel(ctx context.Context, id int64) (bool, error) {
	query := `UPDATE follow_ups SET status = 'cancelled' WHERE id = ? AND status = 'pending'`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("failed to cancel follow-up: %w", err)
	}

	return affectedOne(result)
}

func (r *FollowUpRepository) CancelRecurringForRecipient(ctx context.Context, recipientID int64) (int64, error) {
	query := `
		UPDATE follow_ups
		SET status = 'cancelled'
		WHERE recipient_id = ? AND is_recurring = TRUE AND status = 'pending'
	`

	result, err := r.db.ExecContext(ctx, query, recipientID)
	if err != nil {
		return 0, fmt.Errorf("failed to cancel recurring follow-ups: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}

	return rows, nil
}

// ReplayFailedByID puts a failed one-shot row back in the queue, due now.
func (r *FollowUpRepository) ReplayFailedByID(ctx context.Context, id int64, now time.Time) (bool, error) {
	query := `
		UPDATE follow_ups
		SET status = 'pending',
		    scheduled_at = ?,
		    last_error = NULL,
		    claim_token = NULL,
		    claimed_at = NULL
		WHERE id = ? AND status = 'failed' AND is_recurring = FALSE
	`

	result, err := r.db.ExecContext(ctx, query, now, id)
	if err != nil {
		return false, fmt.Errorf("failed to replay failed follow-up: %w", err)
	}

	return affectedOne(result)
}

// ListByRecipientPhone returns a page of a recipient's follow-ups, newest first.
func (r *FollowUpRepository) ListByRecipientPhone(
	ctx context.Context,
	phone string,
	page, pageSize int,
) ([]domain.FollowUp, int64, error) {
	offset := (page - 1) * pageSize

	var totalCount int64
	countQuery := "SELECT COUNT(*) FROM follow_ups WHERE recipient_phone = ?"
	if err := r.db.GetContext(ctx, &totalCount, countQuery, phone); err != nil {
		return nil, 0, fmt.Errorf("failed to count follow-ups: %w", err)
	}

	query := `
		SELECT ` + followUpColumns + `
		FROM follow_ups
		WHERE recipient_phone = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?
	`

	var rows []domain.FollowUp
	if err := r.db.SelectContext(ctx, &rows, query, phone, pageSize, offset); err != nil {
		return nil, 0, fmt.Errorf("failed to list follow-ups: %w", err)
	}

	return rows, totalCount, nil
}

// PendingCounts counts rows that are due at now. It has no side effects.
func (r *FollowUpRepository) PendingCounts(ctx context.Context, now time.Time) (domain.PendingCounts, error) {
	query := `
		SELECT
			COALESCE(SUM(CASE WHEN is_recurring = FALSE AND scheduled_at IS NOT NULL AND scheduled_at <= ? THEN 1 ELSE 0 END), 0) AS scheduled_pending,
			COALESCE(SUM(CASE WHEN is_recurring = TRUE AND next_run_at IS NOT NULL AND next_run_at <= ? THEN 1 ELSE 0 END), 0) AS recurring_pending
		FROM follow_ups
		WHERE status = 'pending'
	`

	var counts struct {
		Scheduled int64 `db:"scheduled_pending"`
		Recurring int64 `db:"recurring_pending"`
	}

	if err := r.db.GetContext(ctx, &counts, query, now, now); err != nil {
		return domain.PendingCounts{}, fmt.Errorf("failed to get pending counts: %w", err)
	}

	return domain.PendingCounts{
		ScheduledPending: counts.Scheduled,
		RecurringPending: counts.Recurring,
		TotalPending:     counts.Scheduled + counts.Recurring,
	}, nil
}

// LatestOpenForRecipient returns the most recently sent follow-up of the
// recipient that has not been answered yet, or nil.
func (r *FollowUpRepository) LatestOpenForRecipient(ctx context.Context, recipientID int64) (*domain.FollowUp, error) {
	query := `
		SELECT ` + followUpColumns + `
		FROM follow_ups
		WHERE recipient_id = ?
		  AND sent_at IS NOT NULL
		  AND response_received = FALSE
		ORDER BY sent_at DESC, id DESC
		LIMIT 1
	`

	var f domain.FollowUp
	if err := r.db.GetContext(ctx, &f, query, recipientID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get latest open follow-up: %w", err)
	}

	return &f, nil
}

// MarkResponded flips response_received once; later calls are no-ops.
func (r *FollowUpRepository) MarkResponded(ctx context.Context, id int64, at time.Time) (bool, error) {
	query := `
		UPDATE follow_ups
		SET response_received = TRUE, responded_at = ?
		WHERE id = ? AND response_received = FALSE
	`

	result, err := r.db.ExecContext(ctx, query, at, id)
	if err != nil {
		return false, fmt.Errorf("failed to mark follow-up as responded: %w", err)
	}

	return affectedOne(result)
}

// RecordManualSend stores an operator resend. A failed one-shot that went
// out by hand is considered sent.
func (r *FollowUpRepository) RecordManualSend(
	ctx context.Context,
	id int64,
	sentAt time.Time,
	gatewayMessageID string,
) error {
	query := `
		UPDATE follow_ups
		SET status = IF(status = 'failed' AND is_recurring = FALSE, 'sent', status),
		    sent_at = ?,
		    gateway_message_id = ?,
		    last_error = NULL
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, query, sentAt, nullIfEmpty(gatewayMessageID), id)
	if err != nil {
		return fmt.Errorf("failed to record manual send: %w", err)
	}

	ok, err := affectedOne(result)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrFollowUpNotFound
	}

	return nil
}

func affectedOne(result sql.Result) (bool, error) {
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return rows == 1, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
