package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"golang.org/x/sync/errgroup"

	"github.com/onurcolak/followup-engine/environments"
	"github.com/onurcolak/followup-engine/internal/domain"
	"github.com/onurcolak/followup-engine/internal/observability"
	"github.com/onurcolak/followup-engine/pkg/logger"
)

// Small internal interfaces so the dispatcher can be tested without a
// database or a gateway.
type followUpStore interface {
	GetByID(ctx context.Context, id int64) (*domain.FollowUp, error)
	DueOneShot(ctx context.Context, now, staleBefore time.Time, limit int) ([]domain.FollowUp, error)
	DueRecurring(ctx context.Context, now, staleBefore time.Time, limit int) ([]domain.FollowUp, error)
	Claim(ctx context.Context, id int64, token string, now, claimedAt, staleBefore time.Time, requireDue bool) (bool, error)
	MarkSent(ctx context.Context, id int64, token string, sentAt time.Time, gatewayMessageID string) (bool, error)
	MarkRecurringSent(ctx context.Context, id int64, token string, sentAt time.Time, nextRunAt *time.Time, gatewayMessageID string) (bool, error)
	MarkFailed(ctx context.Context, id int64, token, reason string) (bool, error)
	ReleaseClaim(ctx context.Context, id int64, token, reason string) (bool, error)
	PendingCounts(ctx context.Context, now time.Time) (domain.PendingCounts, error)
}

type recipientDirectory interface {
	FindByID(ctx context.Context, id int64) (*domain.Recipient, error)
	TouchLastMessage(ctx context.Context, id int64, at time.Time) error
}

type messageSender interface {
	SendText(ctx context.Context, phone, body string) (*domain.GatewayReceipt, error)
}

type Outcome string

const (
	OutcomeSent    Outcome = "sent"
	OutcomeFailed  Outcome = "failed"
	OutcomeSkipped Outcome = "skipped"
)

// Generic reasons stored in last_error. Gateway error text stays in the logs.
const (
	reasonGatewayTimeout     = "gateway timeout"
	reasonGatewayUnavailable = "gateway unavailable"
	reasonGatewayFailed      = "gateway send failed"
	reasonNoRecipient        = "recipient not found"
	reasonNoCadence          = "recurring follow-up has no cadence"
	reasonDirectoryError     = "recipient lookup failed"
)

// Dispatcher turns due follow-ups into sent messages. Each pass is stateless:
// overlapping passes are safe because every row is claimed with a conditional
// update before it is sent.
type Dispatcher struct {
	store      followUpStore
	recipients recipientDirectory
	sender     messageSender
	cfg        environments.DispatchConfig
	newToken   func() string
	clock      func() time.Time
}

func NewDispatcher(
	store followUpStore,
	recipients recipientDirectory,
	sender messageSender,
	cfg environments.DispatchConfig,
) *Dispatcher {
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 100
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 20 * time.Second
	}
	if cfg.LeaseTimeout <= cfg.SendTimeout {
		cfg.LeaseTimeout = 2 * cfg.SendTimeout
	}

	return &Dispatcher{
		store:      store,
		recipients: recipients,
		sender:     sender,
		cfg:        cfg,
		newToken:   uuid.NewString,
		clock:      func() time.Time { return time.Now().UTC() },
	}
}

// RunOnce dispatches every follow-up due at now. Lease ages are measured on
// the wall clock, not against now.
func (d *Dispatcher) RunOnce(ctx context.Context, now time.Time) (domain.DispatchSummary, error) {
	observability.DispatchPasses.Inc()

	staleBefore := d.clock().Add(-d.cfg.LeaseTimeout)

	oneShot, err := d.store.DueOneShot(ctx, now, staleBefore, d.cfg.BatchSize)
	if err != nil {
		return domain.DispatchSummary{}, fmt.Errorf("failed to get due one-shot follow-ups: %w", err)
	}

	recurring, err := d.store.DueRecurring(ctx, now, staleBefore, d.cfg.BatchSize)
	if err != nil {
		return domain.DispatchSummary{}, fmt.Errorf("failed to get due recurring follow-ups: %w", err)
	}

	rows := append(oneShot, recurring...)
	if len(rows) == 0 {
		logger.Debugf("No follow-ups due at %s", now.Format(time.RFC3339))
		return domain.DispatchSummary{}, nil
	}

	logger.Infof("Dispatching %d due follow-ups (%d one-shot, %d recurring)", len(rows), len(oneShot), len(recurring))

	var (
		mu      sync.Mutex
		summary domain.DispatchSummary
	)

	g := new(errgroup.Group)
	g.SetLimit(d.cfg.Concurrency)

	for _, row := range rows {
		row := row
		g.Go(func() error {
			outcome := d.dispatch(ctx, row, now, true)

			mu.Lock()
			defer mu.Unlock()
			switch outcome {
			case OutcomeSent:
				summary.Attempted++
				summary.Sent++
			case OutcomeFailed:
				summary.Attempted++
				summary.Failed++
			default:
				summary.Skipped++
			}
			return nil
		})
	}

	_ = g.Wait()

	return summary, nil
}

// Dispatch sends one pending follow-up right away, outside the due-time
// selection. It shares claim and completion logic with RunOnce.
func (d *Dispatcher) Dispatch(ctx context.Context, row domain.FollowUp, now time.Time) Outcome {
	return d.dispatch(ctx, row, now, false)
}

func (d *Dispatcher) PendingCounts(ctx context.Context, now time.Time) (domain.PendingCounts, error) {
	return d.store.PendingCounts(ctx, now)
}

func (d *Dispatcher) dispatch(ctx context.Context, row domain.FollowUp, now time.Time, requireDue bool) Outcome {
	kind := "one_shot"
	if row.IsRecurring {
		kind = "recurring"
	}

	outcome := d.dispatchClaimed(ctx, row, now, requireDue)
	observability.DispatchRows.WithLabelValues(kind, string(outcome)).Inc()

	return outcome
}

func (d *Dispatcher) dispatchClaimed(ctx context.Context, row domain.FollowUp, now time.Time, requireDue bool) Outcome {
	token := d.newToken()

	// A row claimed late in a long pass gets a fresh lease.
	claimedAt := d.clock()
	won, err := d.store.Claim(ctx, row.ID, token, now, claimedAt, claimedAt.Add(-d.cfg.LeaseTimeout), requireDue)
	if err != nil {
		logger.Errorf("Failed to claim follow-up %d: %v", row.ID, err)
		return OutcomeSkipped
	}
	if !won {
		logger.Debugf("Follow-up %d already claimed or no longer due", row.ID)
		return OutcomeSkipped
	}

	// Completion writes must land even if the pass is being cancelled.
	storeCtx := context.WithoutCancel(ctx)

	if row.IsRecurring && row.Cadence == nil {
		logger.Warnf("Recurring follow-up %d has no cadence, marking failed", row.ID)
		d.markFailed(storeCtx, row.ID, token, reasonNoCadence)
		return OutcomeFailed
	}

	recipient, err := d.recipients.FindByID(ctx, row.RecipientID)
	if err != nil {
		logger.Errorf("Failed to resolve recipient %d of follow-up %d: %v", row.RecipientID, row.ID, err)
		d.releaseClaim(storeCtx, row.ID, token, reasonDirectoryError)
		return OutcomeFailed
	}
	if recipient == nil || recipient.Phone == "" {
		logger.Warnf("Recipient %d of follow-up %d not found, marking failed", row.RecipientID, row.ID)
		d.markFailed(storeCtx, row.ID, token, reasonNoRecipient)
		return OutcomeFailed
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.cfg.SendTimeout)
	receipt, err := d.sender.SendText(sendCtx, recipient.Phone, row.Body)
	cancel()

	if err != nil {
		reason := failureReason(err)
		logger.Errorf("Failed to send follow-up %d: %v", row.ID, err)

		if row.IsRecurring {
			// Keep next_run_at so the next pass retries this occurrence.
			d.releaseClaim(storeCtx, row.ID, token, reason)
		} else {
			d.markFailed(storeCtx, row.ID, token, reason)
		}
		return OutcomeFailed
	}

	var gatewayID string
	if receipt != nil {
		gatewayID = receipt.MessageID
	}

	var completed bool
	if row.IsRecurring {
		var nextRunAt *time.Time
		if next, ok := domain.NextOccurrence(*row.Cadence, nextRunBase(row, now)); ok {
			nextRunAt = &next
		} else {
			logger.Infof("Cadence of follow-up %d has ended, pausing it", row.ID)
		}
		completed, err = d.store.MarkRecurringSent(storeCtx, row.ID, token, now, nextRunAt, gatewayID)
	} else {
		completed, err = d.store.MarkSent(storeCtx, row.ID, token, now, gatewayID)
	}

	switch {
	case err != nil:
		logger.Errorf("Follow-up %d was sent but could not be recorded: %v", row.ID, err)
	case !completed:
		logger.Warnf("Follow-up %d was sent after its claim expired", row.ID)
	default:
		logger.Infof("Sent follow-up %d (gatewayMessageId: %s)", row.ID, gatewayID)
	}

	if err := d.recipients.TouchLastMessage(storeCtx, recipient.ID, now); err != nil {
		logger.Warnf("Failed to update last message of recipient %d: %v", recipient.ID, err)
	}

	return OutcomeSent
}

func (d *Dispatcher) markFailed(ctx context.Context, id int64, token, reason string) {
	if ok, err := d.store.MarkFailed(ctx, id, token, reason); err != nil {
		logger.Errorf("Failed to mark follow-up %d as failed: %v", id, err)
	} else if !ok {
		logger.Warnf("Follow-up %d lost its claim before it could be marked failed", id)
	}
}

func (d *Dispatcher) releaseClaim(ctx context.Context, id int64, token, reason string) {
	if _, err := d.store.ReleaseClaim(ctx, id, token, reason); err != nil {
		logger.Errorf("Failed to release claim on follow-up %d: %v", id, err)
	}
}

// nextRunBase is the send time, or the scheduled next run when a send-now
// happens ahead of it, so next_run_at never moves backwards.
func nextRunBase(row domain.FollowUp, sentAt time.Time) time.Time {
	if row.NextRunAt != nil && row.NextRunAt.After(sentAt) {
		return *row.NextRunAt
	}
	return sentAt
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return reasonGatewayTimeout
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return reasonGatewayUnavailable
	default:
		return reasonGatewayFailed
	}
}
