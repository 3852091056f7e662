package correlator

import (
	"context"
	"sync"
	"time"

	"github.com/onurcolak/followup-engine/environments"
	"github.com/onurcolak/followup-engine/internal/domain"
	"github.com/onurcolak/followup-engine/internal/observability"
	"github.com/onurcolak/followup-engine/pkg/logger"
)

type recipientDirectory interface {
	FindByPhone(ctx context.Context, phone string) (*domain.Recipient, error)
	MarkResponded(ctx context.Context, id int64, at time.Time) error
}

type followUpStore interface {
	LatestOpenForRecipient(ctx context.Context, recipientID int64) (*domain.FollowUp, error)
	MarkResponded(ctx context.Context, id int64, at time.Time) (bool, error)
	CancelRecurringForRecipient(ctx context.Context, recipientID int64) (int64, error)
}

type responseAnalyzer interface {
	Analyze(ctx context.Context, req domain.AnalysisRequest) (domain.AnalysisResult, error)
}

// eventDeduper remembers gateway event ids so redelivered webhooks are ignored.
type eventDeduper interface {
	MarkEventSeen(ctx context.Context, eventID string, ttl time.Duration) (bool, error)
	ForgetEvent(ctx context.Context, eventID string) error
}

type job struct {
	text       string
	recipient  domain.Recipient
	followUpID int64
}

// Correlator attributes inbound replies to the follow-up they answer. Lookups
// happen on the webhook request; analysis runs on a bounded worker pool so the
// webhook never waits for it.
type Correlator struct {
	recipients recipientDirectory
	store      followUpStore
	analyzer   responseAnalyzer
	deduper    eventDeduper
	cfg        environments.CorrelatorConfig
	now        func() time.Time

	mu      sync.Mutex
	queue   chan job
	started bool
	closed  bool
	wg      sync.WaitGroup
}

func New(
	recipients recipientDirectory,
	store followUpStore,
	analyzer responseAnalyzer,
	deduper eventDeduper,
	cfg environments.CorrelatorConfig,
) *Correlator {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 64
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.LookupTimeout <= 0 {
		cfg.LookupTimeout = min(cfg.Timeout, 5*time.Second)
	}

	return &Correlator{
		recipients: recipients,
		store:      store,
		analyzer:   analyzer,
		deduper:    deduper,
		cfg:        cfg,
		now:        func() time.Time { return time.Now().UTC() },
		queue:      make(chan job, cfg.QueueSize),
	}
}

// Start launches the analysis workers. ctx bounds every job they run.
func (c *Correlator) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started || c.closed {
		return
	}
	c.started = true

	for i := 0; i < c.cfg.Workers; i++ {
		c.wg.Add(1)
		go c.worker(ctx)
	}

	logger.Infof("Reply correlator started with %d workers", c.cfg.Workers)
}

// Stop stops accepting jobs and waits for queued ones to finish.
func (c *Correlator) Stop() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.queue)
	c.mu.Unlock()

	c.wg.Wait()
	logger.Infof("Reply correlator stopped")
}

// OnInboundMessage never returns an error: every failure is logged and the
// event is dropped, so the webhook can always acknowledge. Lookups are bounded
// by the lookup timeout whatever ctx carries.
func (c *Correlator) OnInboundMessage(ctx context.Context, msg domain.InboundMessage) {
	if msg.FromMe || msg.IsGroup {
		observability.InboundEvents.WithLabelValues("ignored").Inc()
		return
	}
	if msg.Phone == "" {
		observability.InboundEvents.WithLabelValues("ignored").Inc()
		return
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.LookupTimeout)
	defer cancel()

	recipient, err := c.recipients.FindByPhone(ctx, msg.Phone)
	if err != nil {
		logger.Errorf("Failed to resolve inbound sender: %v", err)
		observability.InboundEvents.WithLabelValues("error").Inc()
		return
	}
	if recipient == nil {
		logger.Debugf("Inbound message from unknown phone, ignoring")
		observability.InboundEvents.WithLabelValues("unknown_sender").Inc()
		return
	}

	f, err := c.store.LatestOpenForRecipient(ctx, recipient.ID)
	if err != nil {
		logger.Errorf("Failed to find open follow-up for recipient %d: %v", recipient.ID, err)
		observability.InboundEvents.WithLabelValues("error").Inc()
		return
	}
	if f == nil {
		logger.Debugf("No open follow-up for recipient %d", recipient.ID)
		observability.InboundEvents.WithLabelValues("no_open_followup").Inc()
		return
	}

	// The event id is only remembered once its job is queued, so a redelivery
	// after a failed lookup is processed again.
	dedupe := c.deduper != nil && msg.EventID != ""
	if dedupe {
		first, err := c.deduper.MarkEventSeen(ctx, msg.EventID, c.cfg.DedupeTTL)
		if err != nil {
			logger.Warnf("Failed to check inbound event %s, processing anyway: %v", msg.EventID, err)
			dedupe = false
		} else if !first {
			observability.InboundEvents.WithLabelValues("duplicate").Inc()
			return
		}
	}

	if !c.enqueue(job{text: msg.Text, recipient: *recipient, followUpID: f.ID}) {
		if dedupe {
			forgetCtx, cancelForget := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.LookupTimeout)
			if err := c.deduper.ForgetEvent(forgetCtx, msg.EventID); err != nil {
				logger.Warnf("Failed to forget dropped inbound event %s: %v", msg.EventID, err)
			}
			cancelForget()
		}
		return
	}

	observability.InboundEvents.WithLabelValues("queued").Inc()
}

func (c *Correlator) enqueue(j job) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		logger.Warnf("Correlator stopped, dropping reply to follow-up %d", j.followUpID)
		observability.InboundEvents.WithLabelValues("dropped").Inc()
		return false
	}

	select {
	case c.queue <- j:
		return true
	default:
		logger.Warnf("Analysis queue full, dropping reply to follow-up %d", j.followUpID)
		observability.InboundEvents.WithLabelValues("dropped").Inc()
		return false
	}
}

func (c *Correlator) worker(ctx context.Context) {
	defer c.wg.Done()

	for j := range c.queue {
		c.process(ctx, j)
	}
}

func (c *Correlator) process(ctx context.Context, j job) {
	jobCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.Timeout)
	defer cancel()

	result, err := c.analyzer.Analyze(jobCtx, domain.AnalysisRequest{
		Text:        j.text,
		RecipientID: j.recipient.ID,
		FollowUpID:  j.followUpID,
	})
	if err != nil {
		// The reply still happened; only the classification is missing.
		logger.Warnf("Analysis of reply to follow-up %d failed: %v", j.followUpID, err)
		observability.AnalysisJobs.WithLabelValues("analyzer_error").Inc()
	}

	// Any attributed reply answers the follow-up. IsResponse only classifies it.
	now := c.now()

	marked, err := c.store.MarkResponded(jobCtx, j.followUpID, now)
	if err != nil {
		logger.Errorf("Failed to mark follow-up %d as responded: %v", j.followUpID, err)
		observability.AnalysisJobs.WithLabelValues("error").Inc()
		return
	}
	if !marked {
		logger.Debugf("Follow-up %d was already answered", j.followUpID)
	}

	if err := c.recipients.MarkResponded(jobCtx, j.recipient.ID, now); err != nil {
		logger.Warnf("Failed to update response flag of recipient %d: %v", j.recipient.ID, err)
	}

	if result.WantsStop && c.cfg.CancelOnStop {
		n, err := c.store.CancelRecurringForRecipient(jobCtx, j.recipient.ID)
		if err != nil {
			logger.Errorf("Failed to cancel recurring follow-ups of recipient %d: %v", j.recipient.ID, err)
		} else {
			logger.Infof("Recipient %d asked to stop, cancelled %d recurring follow-ups", j.recipient.ID, n)
		}
	}

	observability.AnalysisJobs.WithLabelValues("ok").Inc()
	logger.Infof("Follow-up %d answered (response: %t, label: %s, stop: %t)",
		j.followUpID, result.IsResponse, result.Label, result.WantsStop)
}
