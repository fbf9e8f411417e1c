package billing

import (
	"context"
	"time"

	"github.com/skaidler/captiondeck/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository provides the store operations used by the reconciler, the expiry
// sweeper and the read paths. All writes are conditional on the unique
// provider_subscription_id key so concurrent redeliveries converge.
type Repository interface {
	UpsertSubscription(ctx context.Context, sub *models.Subscription) error
	GetSubscriptionByProviderID(ctx context.Context, providerSubscriptionID string) (*models.Subscription, error)
	GetSubscriptionByUser(ctx context.Context, userID string) (*models.Subscription, error)
	DeleteSubscriptionByProviderID(ctx context.Context, providerSubscriptionID string) (bool, error)
	DeleteExpiredSubscriptions(ctx context.Context, now time.Time) (int64, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a subscription repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

// UpsertSubscription inserts or updates the row for the event's
// provider_subscription_id. The insert path itself absorbs the uniqueness
// conflict of two concurrent creates: the prior existence check in callers is
// advisory, this clause is authoritative. created_at is deliberately absent
// from the assignment set so it is written once and never touched again.
func (r *gormRepository) UpsertSubscription(ctx context.Context, sub *models.Subscription) error {
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider_subscription_id"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"user_id",
			"plan_id",
			"status",
			"email",
			"expires_at",
			"updated_at",
		}),
	}).Create(sub).Error; err != nil {
		return err
	}

	// Ensure ID and created_at reflect the stored row after upsert.
	return r.db.WithContext(ctx).
		Where("provider_subscription_id = ?", sub.ProviderSubscriptionID).
		First(sub).Error
}

func (r *gormRepository) GetSubscriptionByProviderID(ctx context.Context, providerSubscriptionID string) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.WithContext(ctx).
		Where("provider_subscription_id = ?", providerSubscriptionID).
		First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *gormRepository) GetSubscriptionByUser(ctx context.Context, userID string) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// DeleteSubscriptionByProviderID removes the matching row. Zero rows affected
// is reported as found=false, not an error; delete events are idempotent.
func (r *gormRepository) DeleteSubscriptionByProviderID(ctx context.Context, providerSubscriptionID string) (bool, error) {
	tx := r.db.WithContext(ctx).
		Where("provider_subscription_id = ?", providerSubscriptionID).
		Delete(&models.Subscription{})
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

// DeleteExpiredSubscriptions removes fixed-term rows whose term has elapsed.
// The comparison is strict: a row expiring exactly at now survives this tick.
func (r *gormRepository) DeleteExpiredSubscriptions(ctx context.Context, now time.Time) (int64, error) {
	tx := r.db.WithContext(ctx).
		Where("expires_at IS NOT NULL AND expires_at < ?", now).
		Delete(&models.Subscription{})
	return tx.RowsAffected, tx.Error
}
