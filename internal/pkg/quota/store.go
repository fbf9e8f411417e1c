package quota

import (
	"context"
	"errors"
	"fmt"

	"github.com/skaidler/captiondeck/app/models"
	"github.com/skaidler/captiondeck/internal/pkg/entitlements"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type gormStore struct {
	db *gorm.DB
}

// NewStore creates a usage store backed by GORM.
func NewStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

// columnFor maps a feature to its counter column. Features are a closed set,
// so the column name never comes from request input.
func columnFor(feature entitlements.Feature) (string, error) {
	switch feature {
	case entitlements.FeatureCaptions:
		return "captions_count", nil
	case entitlements.FeatureFlyers:
		return "flyers_count", nil
	default:
		return "", fmt.Errorf("quota: unknown feature %q", feature)
	}
}

func (s *gormStore) IncrementBelowCap(ctx context.Context, userID, day string, feature entitlements.Feature, cap int) (bool, error) {
	col, err := columnFor(feature)
	if err != nil {
		return false, err
	}
	tx := s.db.WithContext(ctx).Model(&models.UsageRecord{}).
		Where("user_id = ? AND usage_date = ? AND "+col+" < ?", userID, day, cap).
		UpdateColumn(col, gorm.Expr(col+" + ?", 1))
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

func (s *gormStore) InsertDayRow(ctx context.Context, userID, day string, feature entitlements.Feature) (bool, error) {
	rec := &models.UsageRecord{
		UserID:    userID,
		UsageDate: day,
	}
	switch feature {
	case entitlements.FeatureCaptions:
		rec.CaptionsCount = 1
	case entitlements.FeatureFlyers:
		rec.FlyersCount = 1
	default:
		return false, fmt.Errorf("quota: unknown feature %q", feature)
	}

	tx := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "user_id"},
			{Name: "usage_date"},
		},
		DoNothing: true,
	}).Create(rec)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

func (s *gormStore) GetCount(ctx context.Context, userID, day string, feature entitlements.Feature) (int, error) {
	var rec models.UsageRecord
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND usage_date = ?", userID, day).
		Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	switch feature {
	case entitlements.FeatureCaptions:
		return rec.CaptionsCount, nil
	case entitlements.FeatureFlyers:
		return rec.FlyersCount, nil
	default:
		return 0, fmt.Errorf("quota: unknown feature %q", feature)
	}
}

func (s *gormStore) DeleteStale(ctx context.Context, today string) (int64, error) {
	tx := s.db.WithContext(ctx).
		Where("usage_date <> ?", today).
		Delete(&models.UsageRecord{})
	return tx.RowsAffected, tx.Error
}
