package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/onurcolak/followup-engine/environments"
	"github.com/onurcolak/followup-engine/internal/domain"
)

var ana = domain.Recipient{ID: 1, Name: "Ana", Phone: "5511987654321"}

func testDispatchConfig() environments.DispatchConfig {
	return environments.DispatchConfig{
		BatchSize:    50,
		Concurrency:  4,
		SendTimeout:  time.Second,
		LeaseTimeout: time.Minute,
	}
}

func ptr[T any](v T) *T { return &v }

func newTestDispatcher(store *memStore, dir *fakeDirectory, sender *fakeSender) *Dispatcher {
	return NewDispatcher(store, dir, sender, testDispatchConfig())
}

func oneShot(at time.Time) domain.FollowUp {
	return domain.FollowUp{
		RecipientID:    ana.ID,
		RecipientPhone: ana.Phone,
		Kind:           "appointment_reminder",
		Channel:        domain.ChannelAutomatic,
		Body:           "Lembrete da sua consulta",
		ScheduledAt:    &at,
	}
}

func recurringDaily(next time.Time) domain.FollowUp {
	return domain.FollowUp{
		RecipientID:    ana.ID,
		RecipientPhone: ana.Phone,
		Kind:           "reactivation",
		Channel:        domain.ChannelTemplate,
		Body:           "Sentimos sua falta!",
		IsRecurring:    true,
		Cadence:        &domain.Cadence{Every: 1, Unit: domain.UnitDay},
		NextRunAt:      &next,
	}
}

func TestRunOnce_SendsDueOneShot(t *testing.T) {
	store := newMemStore()
	dir := newFakeDirectory(ana)
	sender := &fakeSender{}
	d := newTestDispatcher(store, dir, sender)

	now := time.Now().UTC()
	id := store.add(oneShot(now.Add(-time.Second)))

	summary, err := d.RunOnce(context.Background(), now)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	if summary != (domain.DispatchSummary{Attempted: 1, Sent: 1}) {
		t.Fatalf("unexpected summary: %+v", summary)
	}

	f := store.get(id)
	if f.Status != domain.StatusSent {
		t.Fatalf("expected status sent, got %s", f.Status)
	}
	if f.SentAt == nil || !f.SentAt.Equal(now) {
		t.Fatalf("expected sentAt=%s, got %v", now, f.SentAt)
	}
	if f.GatewayMessageID == nil || *f.GatewayMessageID != "gw-"+ana.Phone {
		t.Fatalf("expected gateway message id to be stored, got %v", f.GatewayMessageID)
	}
	if store.claimToken(id) != "" {
		t.Fatalf("expected claim to be cleared")
	}
	if _, ok := dir.touched[ana.ID]; !ok {
		t.Fatalf("expected recipient last message to be updated")
	}
}

func TestRunOnce_NotYetDueIsIgnored(t *testing.T) {
	store := newMemStore()
	sender := &fakeSender{}
	d := newTestDispatcher(store, newFakeDirectory(ana), sender)

	now := time.Now().UTC()
	store.add(oneShot(now.Add(time.Hour)))

	summary, err := d.RunOnce(context.Background(), now)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if summary != (domain.DispatchSummary{}) || sender.callCount() != 0 {
		t.Fatalf("expected nothing dispatched, got %+v with %d sends", summary, sender.callCount())
	}
}

func TestRunOnce_RecurrenceAdvances(t *testing.T) {
	store := newMemStore()
	sender := &fakeSender{}
	d := newTestDispatcher(store, newFakeDirectory(ana), sender)

	now := time.Date(2024, 3, 12, 10, 0, 0, 0, time.UTC)
	prev := now.Add(-time.Second)
	id := store.add(recurringDaily(prev))

	if _, err := d.RunOnce(context.Background(), now); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	f := store.get(id)
	if f.Status != domain.StatusPending {
		t.Fatalf("recurring row must stay pending, got %s", f.Status)
	}
	if f.NextRunAt == nil || !f.NextRunAt.Equal(now.Add(24*time.Hour)) {
		t.Fatalf("expected nextRunAt=%s, got %v", now.Add(24*time.Hour), f.NextRunAt)
	}
	if !f.NextRunAt.After(prev) {
		t.Fatalf("nextRunAt must strictly increase")
	}

	// Not due again until the next day.
	summary, _ := d.RunOnce(context.Background(), now.Add(time.Hour))
	if summary.Attempted != 0 || sender.callCount() != 1 {
		t.Fatalf("row fired again before its next run: %+v, sends=%d", summary, sender.callCount())
	}

	summary, _ = d.RunOnce(context.Background(), now.Add(24*time.Hour))
	if summary.Sent != 1 || sender.callCount() != 2 {
		t.Fatalf("expected second occurrence to be sent, got %+v, sends=%d", summary, sender.callCount())
	}
}

func TestRunOnce_RecurringCadenceEndedPauses(t *testing.T) {
	store := newMemStore()
	d := newTestDispatcher(store, newFakeDirectory(ana), &fakeSender{})

	now := time.Now().UTC()
	row := recurringDaily(now.Add(-time.Second))
	row.Cadence.EndsAt = ptr(now.Add(time.Hour))
	id := store.add(row)

	if _, err := d.RunOnce(context.Background(), now); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	f := store.get(id)
	if f.Status != domain.StatusPending || f.NextRunAt != nil {
		t.Fatalf("expected paused pending row, got status=%s nextRunAt=%v", f.Status, f.NextRunAt)
	}
}

func TestRunOnce_RecurringFailureIsRetried(t *testing.T) {
	store := newMemStore()
	sender := &fakeSender{err: errGatewayDown}
	d := newTestDispatcher(store, newFakeDirectory(ana), sender)

	now := time.Now().UTC()
	due := now.Add(-time.Second)
	id := store.add(recurringDaily(due))

	summary, err := d.RunOnce(context.Background(), now)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if summary.Failed != 1 {
		t.Fatalf("expected one failure, got %+v", summary)
	}

	f := store.get(id)
	if f.Status != domain.StatusPending {
		t.Fatalf("expected pending after failure, got %s", f.Status)
	}
	if f.NextRunAt == nil || !f.NextRunAt.Equal(due) {
		t.Fatalf("nextRunAt must be unchanged, got %v", f.NextRunAt)
	}
	if f.LastError == nil || *f.LastError != reasonGatewayFailed {
		t.Fatalf("expected generic failure reason, got %v", f.LastError)
	}
	if store.claimToken(id) != "" {
		t.Fatalf("claim must be released after failure")
	}

	sender.setErr(nil)
	later := now.Add(time.Minute)
	summary, _ = d.RunOnce(context.Background(), later)
	if summary.Sent != 1 {
		t.Fatalf("expected row to be re-selected and sent, got %+v", summary)
	}
	if f := store.get(id); f.NextRunAt == nil || !f.NextRunAt.Equal(later.Add(24*time.Hour)) {
		t.Fatalf("expected nextRunAt to advance from the successful send, got %v", f.NextRunAt)
	}
}

func TestRunOnce_OneShotTerminality(t *testing.T) {
	store := newMemStore()
	sender := &fakeSender{err: errGatewayDown}
	d := newTestDispatcher(store, newFakeDirectory(ana), sender)

	now := time.Now().UTC()
	failedID := store.add(oneShot(now.Add(-time.Second)))

	if _, err := d.RunOnce(context.Background(), now); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if got := store.get(failedID).Status; got != domain.StatusFailed {
		t.Fatalf("expected failed, got %s", got)
	}

	sender.setErr(nil)
	sentID := store.add(oneShot(now.Add(-time.Second)))

	for i := 0; i < 3; i++ {
		if _, err := d.RunOnce(context.Background(), now.Add(time.Duration(i+1)*time.Minute)); err != nil {
			t.Fatalf("RunOnce: %v", err)
		}
	}

	if sender.callCount() != 1 {
		t.Fatalf("expected exactly one successful send, got %d", sender.callCount())
	}
	if got := store.get(failedID).Status; got != domain.StatusFailed {
		t.Fatalf("failed row must stay failed, got %s", got)
	}
	if got := store.get(sentID).Status; got != domain.StatusSent {
		t.Fatalf("expected sent, got %s", got)
	}
}

func TestRunOnce_ConcurrentPassesSendOnce(t *testing.T) {
	store := newMemStore()
	sender := &fakeSender{delay: 20 * time.Millisecond}
	d := newTestDispatcher(store, newFakeDirectory(ana), sender)

	now := time.Now().UTC()
	ids := make([]int64, 0, 5)
	for i := 0; i < 5; i++ {
		ids = append(ids, store.add(oneShot(now.Add(-time.Second))))
	}
	recurringID := store.add(recurringDaily(now.Add(-time.Second)))

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		total domain.DispatchSummary
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, err := d.RunOnce(context.Background(), now)
			if err != nil {
				t.Errorf("RunOnce: %v", err)
				return
			}
			mu.Lock()
			total.Sent += s.Sent
			mu.Unlock()
		}()
	}
	wg.Wait()

	if sender.callCount() != 6 {
		t.Fatalf("expected exactly 6 gateway calls, got %d", sender.callCount())
	}
	if total.Sent != 6 {
		t.Fatalf("expected 6 sends across passes, got %d", total.Sent)
	}
	for _, id := range ids {
		if got := store.get(id).Status; got != domain.StatusSent {
			t.Fatalf("row %d: expected sent, got %s", id, got)
		}
	}
	if f := store.get(recurringID); f.NextRunAt == nil || !f.NextRunAt.Equal(now.Add(24*time.Hour)) {
		t.Fatalf("recurring row advanced incorrectly: %v", f.NextRunAt)
	}
}

func TestRunOnce_UnknownRecipientFails(t *testing.T) {
	store := newMemStore()
	sender := &fakeSender{}
	d := newTestDispatcher(store, newFakeDirectory(), sender)

	now := time.Now().UTC()
	oneID := store.add(oneShot(now.Add(-time.Second)))
	recID := store.add(recurringDaily(now.Add(-time.Second)))

	summary, _ := d.RunOnce(context.Background(), now)
	if summary.Failed != 2 || sender.callCount() != 0 {
		t.Fatalf("expected two failures and no sends, got %+v sends=%d", summary, sender.callCount())
	}
	for _, id := range []int64{oneID, recID} {
		f := store.get(id)
		if f.Status != domain.StatusFailed {
			t.Fatalf("row %d: expected failed, got %s", id, f.Status)
		}
		if f.LastError == nil || *f.LastError != reasonNoRecipient {
			t.Fatalf("row %d: unexpected last error %v", id, f.LastError)
		}
	}
}

func TestRunOnce_RecurringWithoutCadenceFails(t *testing.T) {
	store := newMemStore()
	sender := &fakeSender{}
	d := newTestDispatcher(store, newFakeDirectory(ana), sender)

	now := time.Now().UTC()
	row := recurringDaily(now.Add(-time.Second))
	row.Cadence = nil
	id := store.add(row)

	if _, err := d.RunOnce(context.Background(), now); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if got := store.get(id).Status; got != domain.StatusFailed {
		t.Fatalf("expected failed, got %s", got)
	}
	if sender.callCount() != 0 {
		t.Fatalf("expected no send")
	}
}

func TestRunOnce_RecurringWithoutNextRunIsPaused(t *testing.T) {
	store := newMemStore()
	sender := &fakeSender{}
	d := newTestDispatcher(store, newFakeDirectory(ana), sender)

	row := recurringDaily(time.Now())
	row.NextRunAt = nil
	store.add(row)

	summary, _ := d.RunOnce(context.Background(), time.Now().Add(time.Hour))
	if summary.Attempted != 0 || sender.callCount() != 0 {
		t.Fatalf("paused row must never be selected: %+v", summary)
	}
}

func TestRunOnce_CancelledWhileInFlight(t *testing.T) {
	store := newMemStore()
	sender := &fakeSender{block: make(chan struct{})}
	d := newTestDispatcher(store, newFakeDirectory(ana), sender)

	now := time.Now().UTC()
	id := store.add(recurringDaily(now.Add(-time.Second)))

	done := make(chan domain.DispatchSummary)
	go func() {
		s, _ := d.RunOnce(context.Background(), now)
		done <- s
	}()

	deadline := time.After(time.Second)
	for store.claimToken(id) == "" {
		select {
		case <-deadline:
			t.Fatalf("row was never claimed")
		case <-time.After(time.Millisecond):
		}
	}

	store.setStatus(id, domain.StatusCancelled)
	close(sender.block)
	<-done

	if got := store.get(id).Status; got != domain.StatusCancelled {
		t.Fatalf("completion overwrote cancellation: %s", got)
	}

	sender.block = nil
	summary, _ := d.RunOnce(context.Background(), now.Add(48*time.Hour))
	if summary.Attempted != 0 || sender.callCount() != 1 {
		t.Fatalf("cancelled row dispatched again: %+v sends=%d", summary, sender.callCount())
	}
}

func TestRunOnce_StaleLeaseIsTakenOver(t *testing.T) {
	store := newMemStore()
	sender := &fakeSender{}
	d := newTestDispatcher(store, newFakeDirectory(ana), sender)

	now := time.Now().UTC()
	id := store.add(oneShot(now.Add(-time.Hour)))

	store.mu.Lock()
	store.rows[id].claimToken = "crashed-pass"
	store.rows[id].claimedAt = now.Add(-10 * time.Minute)
	store.mu.Unlock()

	summary, _ := d.RunOnce(context.Background(), now)
	if summary.Sent != 1 {
		t.Fatalf("expected stale lease to be taken over, got %+v", summary)
	}

	id2 := store.add(oneShot(now.Add(-time.Hour)))
	store.mu.Lock()
	store.rows[id2].claimToken = "live-pass"
	store.rows[id2].claimedAt = now.Add(-10 * time.Second)
	store.mu.Unlock()

	summary, _ = d.RunOnce(context.Background(), now)
	if summary.Attempted != 0 {
		t.Fatalf("live lease must be respected, got %+v", summary)
	}
}

func TestRunOnce_LongPassKeepsLeasesFresh(t *testing.T) {
	store := newMemStore()
	sender := &fakeSender{delay: 90 * time.Millisecond}
	cfg := testDispatchConfig()
	cfg.Concurrency = 1
	cfg.SendTimeout = 200 * time.Millisecond
	cfg.LeaseTimeout = 300 * time.Millisecond
	d := NewDispatcher(store, newFakeDirectory(ana), sender, cfg)

	start := time.Now().UTC()
	for i := 0; i < 8; i++ {
		row := oneShot(start.Add(-time.Second))
		row.Body = fmt.Sprintf("row-%d", i)
		store.add(row)
	}

	first := make(chan domain.DispatchSummary, 1)
	go func() {
		s, _ := d.RunOnce(context.Background(), start)
		first <- s
	}()

	// The first pass is now older than the lease but still sending.
	time.Sleep(400 * time.Millisecond)
	second, err := d.RunOnce(context.Background(), time.Now().UTC())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	firstSummary := <-first

	sender.mu.Lock()
	perRow := make(map[string]int)
	for _, call := range sender.calls {
		perRow[call]++
	}
	total := len(sender.calls)
	sender.mu.Unlock()

	if total != 8 {
		t.Fatalf("expected 8 gateway calls for 8 rows, got %d", total)
	}
	for call, n := range perRow {
		if n != 1 {
			t.Errorf("%s sent %d times", call, n)
		}
	}
	if firstSummary.Sent+second.Sent != 8 {
		t.Fatalf("expected 8 sends across both passes, got %d and %d", firstSummary.Sent, second.Sent)
	}
}

func TestRunOnce_SendTimeoutIsolatesRow(t *testing.T) {
	store := newMemStore()
	sender := &fakeSender{block: make(chan struct{})}
	cfg := testDispatchConfig()
	cfg.SendTimeout = 30 * time.Millisecond
	d := NewDispatcher(store, newFakeDirectory(ana), sender, cfg)

	now := time.Now().UTC()
	id := store.add(oneShot(now.Add(-time.Second)))

	summary, err := d.RunOnce(context.Background(), now)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if summary.Failed != 1 {
		t.Fatalf("expected timeout failure, got %+v", summary)
	}
	f := store.get(id)
	if f.LastError == nil || *f.LastError != reasonGatewayTimeout {
		t.Fatalf("expected timeout reason, got %v", f.LastError)
	}
}

func TestRunOnce_StoreErrorIsReturned(t *testing.T) {
	store := newMemStore()
	store.err = errGatewayDown
	d := newTestDispatcher(store, newFakeDirectory(ana), &fakeSender{})

	if _, err := d.RunOnce(context.Background(), time.Now()); err == nil {
		t.Fatalf("expected error from store")
	}
}

func TestDispatch_SendsBeforeDueTime(t *testing.T) {
	store := newMemStore()
	sender := &fakeSender{}
	d := newTestDispatcher(store, newFakeDirectory(ana), sender)

	now := time.Now().UTC()
	id := store.add(oneShot(now.Add(time.Hour)))

	if got := d.Dispatch(context.Background(), store.get(id), now); got != OutcomeSent {
		t.Fatalf("expected sent, got %s", got)
	}
	if got := store.get(id).Status; got != domain.StatusSent {
		t.Fatalf("expected status sent, got %s", got)
	}
}

func TestDispatch_RecurringAheadOfScheduleNeverMovesNextRunBack(t *testing.T) {
	store := newMemStore()
	sender := &fakeSender{}
	d := newTestDispatcher(store, newFakeDirectory(ana), sender)

	now := time.Now().UTC()
	scheduled := now.Add(10 * 24 * time.Hour)
	id := store.add(recurringDaily(scheduled))

	if got := d.Dispatch(context.Background(), store.get(id), now); got != OutcomeSent {
		t.Fatalf("expected sent, got %s", got)
	}

	f := store.get(id)
	if f.NextRunAt == nil || !f.NextRunAt.After(scheduled) {
		t.Fatalf("nextRunAt must strictly increase past %s, got %v", scheduled, f.NextRunAt)
	}
	if !f.NextRunAt.Equal(scheduled.Add(24 * time.Hour)) {
		t.Fatalf("expected nextRunAt=%s, got %s", scheduled.Add(24*time.Hour), f.NextRunAt)
	}
	if f.SentAt == nil || !f.SentAt.Equal(now) {
		t.Fatalf("expected sentAt=%s, got %v", now, f.SentAt)
	}
}

func TestPendingCounts(t *testing.T) {
	store := newMemStore()
	d := newTestDispatcher(store, newFakeDirectory(ana), &fakeSender{})

	now := time.Now().UTC()
	store.add(oneShot(now.Add(-time.Minute)))
	store.add(oneShot(now.Add(time.Minute)))
	store.add(recurringDaily(now.Add(-time.Minute)))

	counts, err := d.PendingCounts(context.Background(), now)
	if err != nil {
		t.Fatalf("PendingCounts: %v", err)
	}
	want := domain.PendingCounts{ScheduledPending: 1, RecurringPending: 1, TotalPending: 2}
	if counts != want {
		t.Fatalf("expected %+v, got %+v", want, counts)
	}
}
