package entitlements

import (
	"github.com/skaidler/captiondeck/internal/pkg/env"
)

// Feature identifies a rate-limited generation feature.
type Feature string

const (
	FeatureCaptions Feature = "captions"
	FeatureFlyers   Feature = "flyers"
)

// Default free-tier daily caps; overridable via env.
const (
	DefaultCaptionDailyLimit = 5
	DefaultFlyerDailyLimit   = 3
)

// Valid reports whether f names a known feature.
func (f Feature) Valid() bool {
	switch f {
	case FeatureCaptions, FeatureFlyers:
		return true
	default:
		return false
	}
}

// DailyLimit returns the free-tier daily cap for a feature. Caps are
// configuration, not data: they live in env, not in usage rows.
func DailyLimit(f Feature) int {
	switch f {
	case FeatureCaptions:
		return env.GetEnvInt("CAPTION_DAILY_LIMIT", DefaultCaptionDailyLimit)
	case FeatureFlyers:
		return env.GetEnvInt("FLYER_DAILY_LIMIT", DefaultFlyerDailyLimit)
	default:
		return 0
	}
}
