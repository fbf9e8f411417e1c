package billing

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skaidler/captiondeck/app/models"
	"github.com/skaidler/captiondeck/internal/pkg/entitlements"
	"github.com/skaidler/captiondeck/internal/pkg/quota"
)

type memUsageStore struct {
	mu   sync.Mutex
	rows map[string]map[entitlements.Feature]int
}

func (s *memUsageStore) key(userID, day string) string { return userID + "|" + day }

func (s *memUsageStore) IncrementBelowCap(_ context.Context, userID, day string, feature entitlements.Feature, cap int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[s.key(userID, day)]
	if !ok || row[feature] >= cap {
		return false, nil
	}
	row[feature]++
	return true, nil
}

func (s *memUsageStore) InsertDayRow(_ context.Context, userID, day string, feature entitlements.Feature) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[s.key(userID, day)]; ok {
		return false, nil
	}
	if s.rows == nil {
		s.rows = make(map[string]map[entitlements.Feature]int)
	}
	s.rows[s.key(userID, day)] = map[entitlements.Feature]int{feature: 1}
	return true, nil
}

func (s *memUsageStore) GetCount(_ context.Context, userID, day string, feature entitlements.Feature) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if row, ok := s.rows[s.key(userID, day)]; ok {
		return row[feature], nil
	}
	return 0, nil
}

func (s *memUsageStore) DeleteStale(_ context.Context, today string) (int64, error) {
	return 0, nil
}

// Full lifecycle: one-time purchase creates the entitlement, a later delete
// removes it, and subsequent usage checks fall back to the free-tier cap
// instead of the lapsed paid entitlement.
func TestOneTimePurchaseLifecycle(t *testing.T) {
	repo := newFakeRepo()
	rec := newTestReconciler(repo, nil)
	start := time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC)
	rec.now = func() time.Time { return start }
	ctx := context.Background()

	_, err := repo.GetSubscriptionByUser(ctx, "U")
	require.Error(t, err, "user starts without an entitlement")

	ev, err := ParseWebhookEvent([]byte(`{
		"type": "payment_succeeded",
		"data": {
			"payment_id": "X",
			"billing_reason": "one_time",
			"metadata": { "user_id": "U", "plan_id": "P" }
		}
	}`))
	require.NoError(t, err)
	require.NoError(t, rec.Apply(ctx, ev))

	sub, err := repo.GetSubscriptionByProviderID(ctx, "X")
	require.NoError(t, err)
	assert.Equal(t, "U", sub.UserID)
	assert.Equal(t, "P", sub.PlanID)
	assert.Equal(t, models.SubscriptionStatusActive, sub.Status)
	require.NotNil(t, sub.ExpiresAt)
	assert.Equal(t, start.Add(models.OneTimePurchaseTerm), *sub.ExpiresAt)

	ev, err = ParseWebhookEvent([]byte(`{"type":"subscription_deleted","data":{"subscription_id":"X"}}`))
	require.NoError(t, err)
	require.NoError(t, rec.Apply(ctx, ev))
	assert.Equal(t, 0, repo.count())

	// Back on the free tier: flyers are evaluated against the daily cap.
	counter := quota.NewCounter(&memUsageStore{})
	assert.True(t, counter.CheckLimit(ctx, "U", entitlements.FeatureFlyers))
	assert.Equal(t, entitlements.DefaultFlyerDailyLimit, counter.Remaining(ctx, "U", entitlements.FeatureFlyers))
}
