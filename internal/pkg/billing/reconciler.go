package billing

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/skaidler/captiondeck/app/models"
	"github.com/skaidler/captiondeck/internal/pkg/cache"
	"gorm.io/gorm"
)

// Reconciler applies exactly one validated provider event to the entitlement
// store. Every effect is keyed by provider_subscription_id and is either
// idempotent (delete) or last-write-wins (upsert), so redelivery and
// out-of-order arrival converge to the last-applied state. No event timestamp
// comparison happens; the provider carries no ordering metadata.
type Reconciler struct {
	repo       Repository
	provider   ProviderClient
	now        func() time.Time
	invalidate func(userID string)
}

// NewReconciler creates a reconciler from an injected repository and provider
// client. provider may be nil when no side-effect channel is configured.
func NewReconciler(repo Repository, provider ProviderClient) *Reconciler {
	return &Reconciler{
		repo:     repo,
		provider: provider,
		now:      time.Now,
		invalidate: func(userID string) {
			// Best effort; the cache TTL bounds staleness if this write is lost.
			if err := cache.Delete(subscriptionCacheKey(userID)); err != nil {
				log.Printf("subscription cache invalidation failed for user %s: %v", userID, err)
			}
		},
	}
}

// NewReconcilerFromDB creates a reconciler from a GORM DB handle.
func NewReconcilerFromDB(db *gorm.DB) *Reconciler {
	return NewReconciler(NewRepository(db), NewProviderClientFromEnv())
}

// Apply dispatches one event. State machine per provider_subscription_id:
// absent -> active on success, active -> active on repeated success,
// active -> absent on deletion or failure, absent -> absent as a no-op.
// Cancellation is deletion; there is no persisted canceled resting state.
func (r *Reconciler) Apply(ctx context.Context, ev Event) error {
	switch e := ev.(type) {
	case PaymentSucceededEvent:
		return r.applyPaymentSucceeded(ctx, e)
	case SubscriptionDeletedEvent:
		return r.deleteByProviderID(ctx, e.SubscriptionID)
	case PaymentFailedEvent:
		// A failed renewal is immediate loss of entitlement.
		return r.deleteByProviderID(ctx, e.SubscriptionID)
	default:
		return fmt.Errorf("%w: %T", ErrUnhandledEvent, ev)
	}
}

func (r *Reconciler) applyPaymentSucceeded(ctx context.Context, e PaymentSucceededEvent) error {
	key := e.SubscriptionID
	var expiresAt *time.Time
	if e.OneTime() {
		// One-time purchases reuse the payment id as the subscription key and
		// carry a fixed term; only the sweeper terminates them.
		key = e.PaymentID
		t := r.now().Add(models.OneTimePurchaseTerm)
		expiresAt = &t
	}

	sub := &models.Subscription{
		UserID:                 e.UserID,
		PlanID:                 e.PlanID,
		ProviderSubscriptionID: key,
		Status:                 models.SubscriptionStatusActive,
		Email:                  e.Email,
		ExpiresAt:              expiresAt,
	}
	if err := r.repo.UpsertSubscription(ctx, sub); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	r.invalidate(e.UserID)

	if e.FixedTerm && !e.OneTime() && r.provider != nil {
		// Fire-and-forget: stopping auto-renewal at period end must not block
		// or fail the local state update.
		subID := e.SubscriptionID
		go func() {
			cctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := r.provider.CancelAtPeriodEnd(cctx, subID); err != nil {
				log.Printf("cancel_at_period_end failed for subscription %s: %v", subID, err)
			}
		}()
	}

	return nil
}

func (r *Reconciler) deleteByProviderID(ctx context.Context, providerSubscriptionID string) error {
	// Delete events carry no user id, so resolve the owner before the row goes
	// away to invalidate the right cache entry.
	var userID string
	if sub, err := r.repo.GetSubscriptionByProviderID(ctx, providerSubscriptionID); err == nil {
		userID = sub.UserID
	}

	found, err := r.repo.DeleteSubscriptionByProviderID(ctx, providerSubscriptionID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !found {
		// Redelivered or out-of-order delete; nothing to do.
		log.Printf("delete for unknown subscription %s ignored", providerSubscriptionID)
		return nil
	}
	if userID != "" {
		r.invalidate(userID)
	}
	return nil
}
