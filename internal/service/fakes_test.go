package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/onurcolak/followup-engine/internal/domain"
)

// memStore mimics the conditional updates of the MySQL repository.
type memStore struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]*memRow
	err    error
}

type memRow struct {
	f          domain.FollowUp
	claimToken string
	claimedAt  time.Time
}

func newMemStore() *memStore {
	return &memStore{rows: make(map[int64]*memRow)}
}

func (s *memStore) add(f domain.FollowUp) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	f.ID = s.nextID
	if f.Status == "" {
		f.Status = domain.StatusPending
	}
	s.rows[f.ID] = &memRow{f: f}
	return f.ID
}

func (s *memStore) get(id int64) domain.FollowUp {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rows[id].f
}

func (s *memStore) setStatus(id int64, status domain.FollowUpStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[id].f.Status = status
}

func (s *memStore) claimToken(id int64) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rows[id].claimToken
}

func (s *memStore) leaseFree(r *memRow, staleBefore time.Time) bool {
	return r.claimToken == "" || r.claimedAt.Before(staleBefore)
}

func dueAt(f domain.FollowUp, now time.Time) bool {
	if f.IsRecurring {
		return f.NextRunAt != nil && !f.NextRunAt.After(now)
	}
	return f.ScheduledAt != nil && !f.ScheduledAt.After(now)
}

func (s *memStore) GetByID(_ context.Context, id int64) (*domain.FollowUp, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return nil, s.err
	}
	r, ok := s.rows[id]
	if !ok {
		return nil, nil
	}
	f := r.f
	return &f, nil
}

func (s *memStore) due(now, staleBefore time.Time, limit int, recurring bool) ([]domain.FollowUp, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return nil, s.err
	}

	var out []domain.FollowUp
	for _, r := range s.rows {
		if r.f.Status == domain.StatusPending && r.f.IsRecurring == recurring &&
			dueAt(r.f, now) && s.leaseFree(r, staleBefore) {
			out = append(out, r.f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memStore) DueOneShot(_ context.Context, now, staleBefore time.Time, limit int) ([]domain.FollowUp, error) {
	return s.due(now, staleBefore, limit, false)
}

func (s *memStore) DueRecurring(_ context.Context, now, staleBefore time.Time, limit int) ([]domain.FollowUp, error) {
	return s.due(now, staleBefore, limit, true)
}

func (s *memStore) Claim(_ context.Context, id int64, token string, now, claimedAt, staleBefore time.Time, requireDue bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rows[id]
	if !ok || r.f.Status != domain.StatusPending || !s.leaseFree(r, staleBefore) {
		return false, nil
	}
	if requireDue && !dueAt(r.f, now) {
		return false, nil
	}
	r.claimToken = token
	r.claimedAt = claimedAt
	return true, nil
}

func (s *memStore) complete(id int64, token string, fn func(f *domain.FollowUp)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rows[id]
	if !ok || r.claimToken != token {
		return false
	}
	fn(&r.f)
	r.claimToken = ""
	r.claimedAt = time.Time{}
	return true
}

func (s *memStore) MarkSent(_ context.Context, id int64, token string, sentAt time.Time, gatewayMessageID string) (bool, error) {
	return s.complete(id, token, func(f *domain.FollowUp) {
		if f.Status == domain.StatusPending {
			f.Status = domain.StatusSent
		}
		f.SentAt = &sentAt
		f.GatewayMessageID = &gatewayMessageID
		f.LastError = nil
	}), nil
}

func (s *memStore) MarkRecurringSent(_ context.Context, id int64, token string, sentAt time.Time, nextRunAt *time.Time, gatewayMessageID string) (bool, error) {
	return s.complete(id, token, func(f *domain.FollowUp) {
		f.SentAt = &sentAt
		f.NextRunAt = nextRunAt
		f.GatewayMessageID = &gatewayMessageID
		f.LastError = nil
	}), nil
}

func (s *memStore) MarkFailed(_ context.Context, id int64, token, reason string) (bool, error) {
	return s.complete(id, token, func(f *domain.FollowUp) {
		if f.Status == domain.StatusPending {
			f.Status = domain.StatusFailed
		}
		f.LastError = &reason
	}), nil
}

func (s *memStore) ReleaseClaim(_ context.Context, id int64, token, reason string) (bool, error) {
	return s.complete(id, token, func(f *domain.FollowUp) {
		f.LastError = &reason
	}), nil
}

func (s *memStore) PendingCounts(_ context.Context, now time.Time) (domain.PendingCounts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var c domain.PendingCounts
	for _, r := range s.rows {
		if r.f.Status != domain.StatusPending || !dueAt(r.f, now) {
			continue
		}
		if r.f.IsRecurring {
			c.RecurringPending++
		} else {
			c.ScheduledPending++
		}
	}
	c.TotalPending = c.ScheduledPending + c.RecurringPending
	return c, nil
}

func (s *memStore) Create(_ context.Context, f *domain.FollowUp) (*domain.FollowUp, error) {
	id := s.add(*f)
	out := s.get(id)
	return &out, nil
}

func (s *memStore) Cancel(_ context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rows[id]
	if !ok || r.f.Status != domain.StatusPending {
		return false, nil
	}
	r.f.Status = domain.StatusCancelled
	return true, nil
}

func (s *memStore) ReplayFailedByID(_ context.Context, id int64, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rows[id]
	if !ok || r.f.Status != domain.StatusFailed || r.f.IsRecurring {
		return false, nil
	}
	r.f.Status = domain.StatusPending
	r.f.ScheduledAt = &now
	r.f.LastError = nil
	r.claimToken = ""
	return true, nil
}

func (s *memStore) ListByRecipientPhone(_ context.Context, phone string, page, pageSize int) ([]domain.FollowUp, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var all []domain.FollowUp
	for _, r := range s.rows {
		if r.f.RecipientPhone == phone {
			all = append(all, r.f)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })

	total := int64(len(all))
	start := (page - 1) * pageSize
	if start >= len(all) {
		return nil, total, nil
	}
	end := start + pageSize
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], total, nil
}

func (s *memStore) RecordManualSend(_ context.Context, id int64, sentAt time.Time, gatewayMessageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rows[id]
	if !ok {
		return domain.ErrFollowUpNotFound
	}
	if r.f.Status == domain.StatusFailed && !r.f.IsRecurring {
		r.f.Status = domain.StatusSent
	}
	r.f.SentAt = &sentAt
	r.f.GatewayMessageID = &gatewayMessageID
	return nil
}

type fakeDirectory struct {
	mu      sync.Mutex
	byID    map[int64]domain.Recipient
	nextID  int64
	touched map[int64]time.Time
	err     error
}

func newFakeDirectory(recipients ...domain.Recipient) *fakeDirectory {
	d := &fakeDirectory{byID: make(map[int64]domain.Recipient), touched: make(map[int64]time.Time)}
	for _, r := range recipients {
		d.byID[r.ID] = r
		if r.ID > d.nextID {
			d.nextID = r.ID
		}
	}
	return d
}

func (d *fakeDirectory) FindByID(_ context.Context, id int64) (*domain.Recipient, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.err != nil {
		return nil, d.err
	}
	r, ok := d.byID[id]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (d *fakeDirectory) TouchLastMessage(_ context.Context, id int64, at time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.touched[id] = at
	return nil
}

func (d *fakeDirectory) Upsert(_ context.Context, name, phone string) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for id, r := range d.byID {
		if r.Phone == phone {
			return id, nil
		}
	}
	d.nextID++
	d.byID[d.nextID] = domain.Recipient{ID: d.nextID, Name: name, Phone: phone}
	return d.nextID, nil
}

// fakeSender records gateway calls. block, when set, is waited on before
// answering so tests can hold a send in flight.
type fakeSender struct {
	mu    sync.Mutex
	calls []string
	err   error
	block chan struct{}
	delay time.Duration
}

func (s *fakeSender) SendText(ctx context.Context, phone, body string) (*domain.GatewayReceipt, error) {
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return nil, s.err
	}
	s.calls = append(s.calls, phone+"|"+body)
	return &domain.GatewayReceipt{MessageID: "gw-" + phone}, nil
}

func (s *fakeSender) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func (s *fakeSender) setErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

var errGatewayDown = errors.New("gateway down")
