package sweeper

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skaidler/captiondeck/app/models"
)

// fakeRepo holds subscription rows and applies the strict expiry predicate
// the SQL sweep uses.
type fakeRepo struct {
	mu    sync.Mutex
	rows  map[string]*models.Subscription
	calls int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{rows: make(map[string]*models.Subscription)}
}

func (r *fakeRepo) UpsertSubscription(_ context.Context, sub *models.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *sub
	r.rows[sub.ProviderSubscriptionID] = &cp
	return nil
}

func (r *fakeRepo) GetSubscriptionByProviderID(_ context.Context, id string) (*models.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sub, ok := r.rows[id]; ok {
		cp := *sub
		return &cp, nil
	}
	return nil, errors.New("record not found")
}

func (r *fakeRepo) GetSubscriptionByUser(_ context.Context, _ string) (*models.Subscription, error) {
	return nil, errors.New("record not found")
}

func (r *fakeRepo) DeleteSubscriptionByProviderID(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.rows[id]
	delete(r.rows, id)
	return ok, nil
}

func (r *fakeRepo) DeleteExpiredSubscriptions(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	var n int64
	for id, sub := range r.rows {
		if sub.IsExpired(now) {
			delete(r.rows, id)
			n++
		}
	}
	return n, nil
}

func (r *fakeRepo) sweepCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func (r *fakeRepo) has(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.rows[id]
	return ok
}

func fixedTermRow(id string, expiresAt time.Time) *models.Subscription {
	return &models.Subscription{
		UserID:                 "u_" + id,
		PlanID:                 "pro_30d",
		ProviderSubscriptionID: id,
		Status:                 models.SubscriptionStatusActive,
		ExpiresAt:              &expiresAt,
	}
}

func TestSweepOnce_ExpiryIsStrict(t *testing.T) {
	repo := newFakeRepo()
	expiry := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, repo.UpsertSubscription(context.Background(), fixedTermRow("pay_1", expiry)))

	s := New(repo, nil, time.Hour)

	// One second before, and at the exact instant, the row survives.
	s.now = func() time.Time { return expiry.Add(-time.Second) }
	s.sweepOnce()
	assert.True(t, repo.has("pay_1"))

	s.now = func() time.Time { return expiry }
	s.sweepOnce()
	assert.True(t, repo.has("pay_1"))

	s.now = func() time.Time { return expiry.Add(time.Second) }
	s.sweepOnce()
	assert.False(t, repo.has("pay_1"))
}

func TestSweepOnce_LeavesAutoRenewingRows(t *testing.T) {
	repo := newFakeRepo()
	require.NoError(t, repo.UpsertSubscription(context.Background(), &models.Subscription{
		UserID:                 "u_1",
		ProviderSubscriptionID: "sub_1",
		Status:                 models.SubscriptionStatusActive,
	}))

	s := New(repo, nil, time.Hour)
	s.now = func() time.Time { return time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC) }
	s.sweepOnce()

	// No expiry field means only provider events terminate the row.
	assert.True(t, repo.has("sub_1"))
}

func TestStartRunsImmediatelyAndStops(t *testing.T) {
	repo := newFakeRepo()
	s := New(repo, nil, time.Hour)

	s.Start()
	deadline := time.Now().Add(2 * time.Second)
	for repo.sweepCalls() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	assert.GreaterOrEqual(t, repo.sweepCalls(), 1)

	s.Stop()
	// Stop is idempotent and Start/Stop can cycle.
	s.Stop()
	s.Start()
	s.Stop()
}

func TestDefaultInterval(t *testing.T) {
	s := New(newFakeRepo(), nil, 0)
	assert.Equal(t, DefaultInterval, s.interval)
}
