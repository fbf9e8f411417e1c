package models

import "time"

const (
	SubscriptionStatusActive   = "active"
	SubscriptionStatusCanceled = "canceled"
)

// Fixed entitlement term for one-time purchases. Auto-renewing subscriptions
// never carry an expiry; the provider terminates them via webhook events.
const OneTimePurchaseTerm = 30 * 24 * time.Hour

// Subscription is the authoritative entitlement record. Presence of a row is
// the entitlement: cancellation and payment failure delete the row instead of
// flipping a soft-delete flag, so a redelivered delete event stays a no-op.
type Subscription struct {
	ID                     uint       `gorm:"primaryKey" json:"id"`
	UserID                 string     `gorm:"type:varchar(191);not null;index" json:"user_id"`
	PlanID                 string     `gorm:"type:varchar(191);not null" json:"plan_id"`
	ProviderSubscriptionID string     `gorm:"type:varchar(191);not null;uniqueIndex:ux_subscriptions_provider_subid" json:"provider_subscription_id"`
	Status                 string     `gorm:"type:varchar(32);not null;default:'active'" json:"status"`
	Email                  string     `gorm:"type:varchar(200);default:''" json:"email"`
	ExpiresAt              *time.Time `gorm:"type:timestamp;default:null;index" json:"expires_at,omitempty"`
	CreatedAt              time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt              time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsExpired reports whether a fixed-term entitlement has elapsed. A nil
// ExpiresAt never expires locally.
func (s *Subscription) IsExpired(now time.Time) bool {
	return s.ExpiresAt != nil && now.After(*s.ExpiresAt)
}
