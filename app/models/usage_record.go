package models

import "time"

// UsageDateLayout is the UTC calendar-day key format for usage rows.
const UsageDateLayout = "2006-01-02"

// UsageRecord tallies free-tier feature usage for one user on one UTC day.
// Counters only move forward within a day; the daily reset happens because the
// composite key changes at rollover, never by mutating a counter backward.
type UsageRecord struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	UserID        string    `gorm:"type:varchar(191);not null;uniqueIndex:ux_usage_records_user_day,priority:1" json:"user_id"`
	UsageDate     string    `gorm:"type:varchar(10);not null;uniqueIndex:ux_usage_records_user_day,priority:2;index" json:"usage_date"`
	CaptionsCount int       `gorm:"not null;default:0" json:"captions_count"`
	FlyersCount   int       `gorm:"not null;default:0" json:"flyers_count"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// UsageDay formats a point in time as the UTC day key used by usage rows.
func UsageDay(t time.Time) string {
	return t.UTC().Format(UsageDateLayout)
}
