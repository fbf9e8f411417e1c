package billing

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/skaidler/captiondeck/app/models"
	"github.com/skaidler/captiondeck/internal/pkg/cache"
)

const subscriptionCacheTTL = 30 * time.Second

func subscriptionCacheKey(userID string) string {
	return "subscription:user:" + userID
}

// CurrentSubscription returns the user's entitlement row, reading through a
// short-lived Redis cache. The reconciler deletes the entry after every
// successful webhook apply, so entitlement changes take effect on the next
// read; the TTL only bounds staleness when that invalidation is lost. Cache
// failures fall through to the store.
func CurrentSubscription(ctx context.Context, repo Repository, userID string) (*models.Subscription, error) {
	key := subscriptionCacheKey(userID)
	raw, err := cache.Get(key)
	if err == nil {
		var sub models.Subscription
		if jsonErr := json.Unmarshal([]byte(raw), &sub); jsonErr == nil {
			return &sub, nil
		}
	} else if !cache.IsNotFound(err) {
		log.Printf("subscription cache read failed for user %s: %v", userID, err)
	}

	sub, err := repo.GetSubscriptionByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	if raw, jsonErr := json.Marshal(sub); jsonErr == nil {
		// Best effort; a failed cache write costs one extra store read later.
		_ = cache.Set(key, string(raw), subscriptionCacheTTL)
	}
	return sub, nil
}
