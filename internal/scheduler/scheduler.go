package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/onurcolak/followup-engine/internal/domain"
	"github.com/onurcolak/followup-engine/pkg/logger"
	"github.com/onurcolak/followup-engine/pkg/webhook"
)

// passRunner matches Dispatcher.RunOnce and lets the scheduler be tested with
// a small fake.
type passRunner interface {
	RunOnce(ctx context.Context, now time.Time) (domain.DispatchSummary, error)
}

type alertNotifier interface {
	SendAlert(ctx context.Context, alert webhook.Alert) error
}

// Scheduler is the in-process timer that drives dispatch passes. External
// cron triggers call the same runner directly; both may overlap safely.
type Scheduler struct {
	runner          passRunner
	interval        time.Duration
	alerts          alertNotifier
	alertThreshold  int // Number of consecutive all-fail passes before alert
	lastAlertSentAt time.Time
	now             func() time.Time

	// Internal state
	running  bool
	stopChan chan struct{}
	doneChan chan struct{}
	mu       sync.RWMutex

	// Statistics
	lastRunAt     time.Time
	followUpsSent int64
	runsCount     int64

	consecutiveAllFailCount int
}

func NewScheduler(runner passRunner, interval time.Duration) *Scheduler {
	return &Scheduler{
		runner:   runner,
		interval: interval,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SetAlerts configures the notifier called after threshold consecutive passes
// in which every attempted follow-up failed. A nil notifier disables alerts.
func (s *Scheduler) SetAlerts(notifier alertNotifier, threshold int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = notifier
	s.alertThreshold = threshold
}

func (s *Scheduler) StartWithParams(ctx context.Context, intervalSeconds int) error {
	if intervalSeconds <= 0 {
		intervalSeconds = 60
	}

	s.mu.Lock()
	s.interval = time.Duration(intervalSeconds) * time.Second
	s.consecutiveAllFailCount = 0
	s.mu.Unlock()

	return s.Start(ctx)
}

func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()

	if s.running {
		s.mu.Unlock()
		logger.Warnf("Scheduler is already running")
		return nil
	}
	if s.interval <= 0 {
		s.interval = time.Minute
	}

	s.running = true
	s.stopChan = make(chan struct{})
	s.doneChan = make(chan struct{})
	interval := s.interval
	stopChan, doneChan := s.stopChan, s.doneChan
	s.mu.Unlock()

	logger.Infof("Starting scheduler with interval: %v", interval)

	go s.run(ctx, interval, stopChan, doneChan)

	return nil
}

func (s *Scheduler) run(ctx context.Context, interval time.Duration, stopChan, doneChan chan struct{}) {
	defer close(doneChan)

	s.RunPass(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.Infof("Scheduler running. Next pass in %v", interval)

	for {
		select {
		case <-ticker.C:
			s.RunPass(ctx)
			logger.Debugf("Next pass in %v", interval)

		case <-stopChan:
			logger.Warnf("Scheduler received stop signal")
			return

		case <-ctx.Done():
			logger.Warnf("Scheduler context cancelled")
			return
		}
	}
}

// RunPass runs one dispatch pass and records it in the scheduler statistics.
// The HTTP trigger uses it too, so manual and timed passes share the counters.
func (s *Scheduler) RunPass(ctx context.Context) (domain.DispatchSummary, error) {
	s.mu.Lock()
	s.lastRunAt = s.now()
	s.runsCount++
	runNumber := s.runsCount
	startedAt := s.lastRunAt
	s.mu.Unlock()

	logger.Infof("[Run #%d] Starting dispatch pass at %s", runNumber, startedAt.Format(time.RFC3339))

	summary, err := s.runner.RunOnce(ctx, startedAt)
	if err != nil {
		logger.Errorf("[Run #%d] Error running dispatch pass: %v", runNumber, err)
		return summary, err
	}

	if summary.Attempted == 0 {
		logger.Debugf("[Run #%d] No follow-ups due", runNumber)
		return summary, nil
	}

	s.mu.Lock()
	s.followUpsSent += int64(summary.Sent)

	var alert *webhook.Alert
	if summary.AllFailed() {
		s.consecutiveAllFailCount++
		logger.Warnf("[Run #%d] All %d attempted follow-ups failed (consecutive count: %d/%d)",
			runNumber, summary.Attempted, s.consecutiveAllFailCount, s.alertThreshold)

		if s.alerts != nil && s.alertThreshold > 0 && s.consecutiveAllFailCount >= s.alertThreshold {
			alert = &webhook.Alert{
				Alert:               "consecutive_all_fail",
				RunNumber:           runNumber,
				ConsecutiveFailures: s.consecutiveAllFailCount,
				FollowUpsInBatch:    summary.Attempted,
				Timestamp:           startedAt.Format(time.RFC3339),
				Message: fmt.Sprintf(
					"All %d follow-ups failed for %d consecutive passes",
					summary.Attempted,
					s.consecutiveAllFailCount,
				),
			}
		}
	} else if summary.Sent > 0 {
		if s.consecutiveAllFailCount > 0 {
			logger.Debugf("[Run #%d] Resetting consecutive failure count (was: %d)", runNumber, s.consecutiveAllFailCount)
		}
		s.consecutiveAllFailCount = 0
	}
	notifier := s.alerts
	s.mu.Unlock()

	if alert != nil {
		go s.sendAlert(context.WithoutCancel(ctx), notifier, *alert)
	}

	logger.Infof("[Run #%d] Attempted %d follow-ups: %d sent, %d failed, %d skipped",
		runNumber, summary.Attempted, summary.Sent, summary.Failed, summary.Skipped)

	return summary, nil
}

func (s *Scheduler) Stop() error {
	s.mu.Lock()

	if !s.running {
		s.mu.Unlock()
		logger.Warnf("Scheduler is not running")
		return nil
	}

	s.running = false
	stopChan := s.stopChan
	doneChan := s.doneChan
	s.mu.Unlock()

	close(stopChan)

	// Wait for the current pass to finish
	<-doneChan

	logger.Infof("Scheduler stopped")
	return nil
}

func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

func (s *Scheduler) GetStatus() SchedulerStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status := SchedulerStatus{
		Running:                 s.running,
		LastRunAt:               s.lastRunAt,
		FollowUpsSent:           s.followUpsSent,
		RunsCount:               s.runsCount,
		IntervalSeconds:         int(s.interval.Seconds()),
		ConsecutiveAllFailCount: s.consecutiveAllFailCount,
		LastAlertSentAt:         s.lastAlertSentAt,
	}

	if s.running && !s.lastRunAt.IsZero() {
		status.NextRunAt = s.lastRunAt.Add(s.interval)
	}

	return status
}

func (s *Scheduler) sendAlert(ctx context.Context, notifier alertNotifier, alert webhook.Alert) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := notifier.SendAlert(ctx, alert); err != nil {
		logger.Errorf("Failed to send alert: %v", err)
		return
	}

	s.mu.Lock()
	s.lastAlertSentAt = s.now()
	s.mu.Unlock()

	logger.Infof("Alert sent successfully (consecutive failures: %d)", alert.ConsecutiveFailures)
}

type SchedulerStatus struct {
	Running                 bool      `json:"running"`
	LastRunAt               time.Time `json:"lastRunAt,omitempty"`
	NextRunAt               time.Time `json:"nextRunAt,omitempty"`
	FollowUpsSent           int64     `json:"followUpsSent"`
	RunsCount               int64     `json:"runsCount"`
	IntervalSeconds         int       `json:"intervalSeconds"`
	ConsecutiveAllFailCount int       `json:"consecutiveAllFailCount"`
	LastAlertSentAt         time.Time `json:"lastAlertSentAt,omitempty"`
}
