package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/onurcolak/followup-engine/environments"
	"github.com/onurcolak/followup-engine/internal/domain"
	"github.com/onurcolak/followup-engine/internal/observability"
	"github.com/onurcolak/followup-engine/internal/ratelimit"
	"github.com/onurcolak/followup-engine/pkg/logger"
	"github.com/onurcolak/followup-engine/pkg/whatsapp"
)

type followUpRepository interface {
	Create(ctx context.Context, f *domain.FollowUp) (*domain.FollowUp, error)
	GetByID(ctx context.Context, id int64) (*domain.FollowUp, error)
	Cancel(ctx context.Context, id int64) (bool, error)
	ReplayFailedByID(ctx context.Context, id int64, now time.Time) (bool, error)
	ListByRecipientPhone(ctx context.Context, phone string, page, pageSize int) ([]domain.FollowUp, int64, error)
	RecordManualSend(ctx context.Context, id int64, sentAt time.Time, gatewayMessageID string) error
}

type recipientWriter interface {
	Upsert(ctx context.Context, name, phone string) (int64, error)
}

type rowDispatcher interface {
	Dispatch(ctx context.Context, row domain.FollowUp, now time.Time) Outcome
}

type cooldownGuard interface {
	CheckAndRecord(
		ctx context.Context,
		subject string,
		now time.Time,
		window time.Duration,
		send func(ctx context.Context) error,
	) (ratelimit.Decision, error)
}

const (
	CooldownScopeFollowUp  = "followup"
	CooldownScopeRecipient = "recipient"
)

type CreateFollowUpParams struct {
	RecipientPhone string
	RecipientName  string
	Kind           string
	Channel        domain.Channel
	Body           string
	ScheduledAt    *time.Time
	IsRecurring    bool
	Cadence        *domain.Cadence
}

type FollowUpService struct {
	repo        followUpRepository
	recipients  recipientWriter
	dispatcher  rowDispatcher
	sender      messageSender
	limiter     cooldownGuard
	cooldown    environments.CooldownConfig
	sendTimeout time.Duration
}

func NewFollowUpService(
	repo followUpRepository,
	recipients recipientWriter,
	dispatcher rowDispatcher,
	sender messageSender,
	limiter cooldownGuard,
	cooldown environments.CooldownConfig,
	sendTimeout time.Duration,
) *FollowUpService {
	if sendTimeout <= 0 {
		sendTimeout = 20 * time.Second
	}

	return &FollowUpService{
		repo:        repo,
		recipients:  recipients,
		dispatcher:  dispatcher,
		sender:      sender,
		limiter:     limiter,
		cooldown:    cooldown,
		sendTimeout: sendTimeout,
	}
}

// Create stores a new pending follow-up. One-shot rows default to being due
// now; recurring rows start at ScheduledAt (or now) and need a cadence.
func (s *FollowUpService) Create(ctx context.Context, p CreateFollowUpParams, now time.Time) (*domain.FollowUp, error) {
	phone := whatsapp.NormalizePhone(p.RecipientPhone)
	if phone == "" {
		return nil, domain.ErrInvalidPhone
	}

	channel := p.Channel
	if channel == "" {
		channel = domain.ChannelManual
	}

	f := &domain.FollowUp{
		RecipientPhone: phone,
		Kind:           p.Kind,
		Channel:        channel,
		Body:           p.Body,
		IsRecurring:    p.IsRecurring,
	}

	start := now
	if p.ScheduledAt != nil {
		start = p.ScheduledAt.UTC()
	}

	if p.IsRecurring {
		if p.Cadence == nil {
			return nil, fmt.Errorf("%w: recurring follow-ups need a cadence", domain.ErrInvalidCadence)
		}
		if err := p.Cadence.Validate(); err != nil {
			return nil, err
		}
		f.Cadence = p.Cadence
		f.NextRunAt = &start
	} else {
		f.ScheduledAt = &start
	}

	recipientID, err := s.recipients.Upsert(ctx, p.RecipientName, phone)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve recipient: %w", err)
	}
	f.RecipientID = recipientID

	created, err := s.repo.Create(ctx, f)
	if err != nil {
		return nil, err
	}

	logger.Infof("Created follow-up %d for recipient %d (recurring: %t)", created.ID, recipientID, created.IsRecurring)

	return created, nil
}

func (s *FollowUpService) Get(ctx context.Context, id int64) (*domain.FollowUp, error) {
	f, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if f == nil {
		return nil, domain.ErrFollowUpNotFound
	}
	return f, nil
}

// SendNow dispatches a pending follow-up immediately through the same claim
// and completion path as the scheduled pass.
func (s *FollowUpService) SendNow(ctx context.Context, id int64, now time.Time) (*domain.FollowUp, error) {
	f, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if f.Status != domain.StatusPending {
		return nil, domain.ErrNotPending
	}

	switch s.dispatcher.Dispatch(ctx, *f, now) {
	case OutcomeSkipped:
		return nil, domain.ErrClaimLost
	case OutcomeFailed:
		return nil, domain.ErrSendFailed
	}

	return s.Get(ctx, id)
}

func (s *FollowUpService) Cancel(ctx context.Context, id int64) (*domain.FollowUp, error) {
	ok, err := s.repo.Cancel(ctx, id)
	if err != nil {
		return nil, err
	}

	f, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrNotPending
	}

	logger.Infof("Cancelled follow-up %d", id)
	return f, nil
}

// ReplayFailed queues a failed one-shot follow-up again, due now.
func (s *FollowUpService) ReplayFailed(ctx context.Context, id int64, now time.Time) (*domain.FollowUp, error) {
	ok, err := s.repo.ReplayFailedByID(ctx, id, now)
	if err != nil {
		return nil, err
	}

	f, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrNotFailed
	}

	logger.Infof("Replayed failed follow-up %d", id)
	return f, nil
}

func (s *FollowUpService) History(ctx context.Context, phone string, page, pageSize int) ([]domain.FollowUp, int64, error) {
	normalized := whatsapp.NormalizePhone(phone)
	if normalized == "" {
		return nil, 0, domain.ErrInvalidPhone
	}
	return s.repo.ListByRecipientPhone(ctx, normalized, page, pageSize)
}

// Resend sends the body of an already dispatched (or failed) follow-up again
// on an operator's request, at most once per cool-down window per subject.
func (s *FollowUpService) Resend(ctx context.Context, id int64, now time.Time) (*domain.FollowUp, error) {
	f, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	switch {
	case f.Status == domain.StatusCancelled:
		return nil, domain.ErrFollowUpCancelled
	case f.SentAt == nil && f.Status != domain.StatusFailed:
		return nil, domain.ErrNothingToResend
	}

	decision, err := s.limiter.CheckAndRecord(ctx, s.cooldownSubject(f), now, s.cooldown.Window, func(ctx context.Context) error {
		sendCtx, cancel := context.WithTimeout(ctx, s.sendTimeout)
		defer cancel()

		receipt, err := s.sender.SendText(sendCtx, f.RecipientPhone, f.Body)
		if err != nil {
			return err
		}

		var gatewayID string
		if receipt != nil {
			gatewayID = receipt.MessageID
		}
		if err := s.repo.RecordManualSend(context.WithoutCancel(ctx), f.ID, now, gatewayID); err != nil {
			logger.Errorf("Follow-up %d was resent but could not be recorded: %v", f.ID, err)
		}
		return nil
	})
	if err != nil {
		if decision.Allowed {
			observability.ResendDecisions.WithLabelValues("send_failed").Inc()
			logger.Errorf("Manual resend of follow-up %d failed: %v", f.ID, err)
			return nil, domain.ErrSendFailed
		}
		return nil, err
	}

	if !decision.Allowed {
		observability.ResendDecisions.WithLabelValues("blocked").Inc()
		return nil, &domain.CooldownError{Remaining: decision.Remaining, RemainingSeconds: decision.RemainingSeconds}
	}

	observability.ResendDecisions.WithLabelValues("sent").Inc()
	logger.Infof("Manually resent follow-up %d", f.ID)

	return s.Get(ctx, id)
}

func (s *FollowUpService) cooldownSubject(f *domain.FollowUp) string {
	if s.cooldown.Scope == CooldownScopeFollowUp {
		return "followup:" + strconv.FormatInt(f.ID, 10)
	}
	return "recipient:" + f.RecipientPhone
}

// IsConflict reports whether err is a state conflict rather than a failure.
func IsConflict(err error) bool {
	return errors.Is(err, domain.ErrNotPending) ||
		errors.Is(err, domain.ErrNotFailed) ||
		errors.Is(err, domain.ErrClaimLost) ||
		errors.Is(err, domain.ErrFollowUpCancelled) ||
		errors.Is(err, domain.ErrNothingToResend)
}
