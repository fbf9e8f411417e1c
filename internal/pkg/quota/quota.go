package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/skaidler/captiondeck/app/models"
	"github.com/skaidler/captiondeck/internal/pkg/entitlements"
	"gorm.io/gorm"
)

var (
	// ErrQuotaExceeded means today's counter already sits at the cap.
	ErrQuotaExceeded = errors.New("quota: daily limit reached")

	// ErrStoreUnavailable wraps transient usage-store failures. Read paths
	// fail closed instead of surfacing it.
	ErrStoreUnavailable = errors.New("quota: usage store unavailable")
)

// Store is the conditional-write surface over the usage table. The guarded
// increment is the whole point: check and advance happen in one statement, so
// concurrent callers cannot both pass an "under cap" read before writing.
type Store interface {
	// IncrementBelowCap advances today's counter by one only while it is
	// strictly below cap. Returns false when no row matched (absent or at cap).
	IncrementBelowCap(ctx context.Context, userID, day string, feature entitlements.Feature, cap int) (bool, error)
	// InsertDayRow creates the day's row with the feature counter at one,
	// ignoring the uniqueness conflict of a concurrent create.
	InsertDayRow(ctx context.Context, userID, day string, feature entitlements.Feature) (bool, error)
	// GetCount reads today's counter; an absent row reads as zero.
	GetCount(ctx context.Context, userID, day string, feature entitlements.Feature) (int, error)
	// DeleteStale removes rows whose day key is not today.
	DeleteStale(ctx context.Context, today string) (int64, error)
}

// Counter enforces and advances the free-tier daily usage caps.
type Counter struct {
	store Store
	now   func() time.Time
}

// NewCounter creates a counter from an injected store.
func NewCounter(store Store) *Counter {
	return &Counter{store: store, now: time.Now}
}

// NewCounterFromDB creates a counter backed by the GORM usage table.
func NewCounterFromDB(db *gorm.DB) *Counter {
	return NewCounter(NewStore(db))
}

// CheckLimit reports whether today's counter is strictly below the cap. It is
// advisory only; Increment re-checks inside its conditional write. Store
// errors read as "at cap" so an outage never grants unbounded free usage.
func (c *Counter) CheckLimit(ctx context.Context, userID string, feature entitlements.Feature) bool {
	if !feature.Valid() {
		return false
	}
	limit := entitlements.DailyLimit(feature)
	count, err := c.store.GetCount(ctx, userID, models.UsageDay(c.now()), feature)
	if err != nil {
		return false
	}
	return count < limit
}

// Remaining returns cap minus today's counter, floored at zero. Fails closed
// to zero on store errors.
func (c *Counter) Remaining(ctx context.Context, userID string, feature entitlements.Feature) int {
	if !feature.Valid() {
		return 0
	}
	limit := entitlements.DailyLimit(feature)
	count, err := c.store.GetCount(ctx, userID, models.UsageDay(c.now()), feature)
	if err != nil {
		return 0
	}
	if count >= limit {
		return 0
	}
	return limit - count
}

// Increment consumes one unit of today's quota. The sequence is a
// compare-and-swap loop over the row, never a read followed by a blind write:
// guarded update, then conditional insert for the day's first use, then one
// retry of the guarded update for the race where another caller created the
// row in between. ErrQuotaExceeded when the cap holds.
func (c *Counter) Increment(ctx context.Context, userID string, feature entitlements.Feature) error {
	if !feature.Valid() {
		return fmt.Errorf("quota: unknown feature %q", feature)
	}
	limit := entitlements.DailyLimit(feature)
	if limit <= 0 {
		return ErrQuotaExceeded
	}
	day := models.UsageDay(c.now())

	ok, err := c.store.IncrementBelowCap(ctx, userID, day, feature, limit)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if ok {
		return nil
	}

	inserted, err := c.store.InsertDayRow(ctx, userID, day, feature)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if inserted {
		return nil
	}

	ok, err = c.store.IncrementBelowCap(ctx, userID, day, feature, limit)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if ok {
		return nil
	}
	return ErrQuotaExceeded
}

// SweepStale garbage-collects rows from previous days. Housekeeping only:
// losing a stale row early is harmless, and today's rows are never touched.
func (c *Counter) SweepStale(ctx context.Context) (int64, error) {
	return c.store.DeleteStale(ctx, models.UsageDay(c.now()))
}
