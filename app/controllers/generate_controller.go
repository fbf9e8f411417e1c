package controllers

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/skaidler/captiondeck/internal/pkg/billing"
	"github.com/skaidler/captiondeck/internal/pkg/database"
	"github.com/skaidler/captiondeck/internal/pkg/entitlements"
	"github.com/skaidler/captiondeck/internal/pkg/quota"
)

// HandleGenerateCaption gates caption generation behind the daily free-tier
// quota unless the user holds an entitlement row.
func HandleGenerateCaption(c *fiber.Ctx) error {
	return handleGenerate(c, entitlements.FeatureCaptions)
}

// HandleGenerateFlyer is the flyer counterpart of HandleGenerateCaption.
func HandleGenerateFlyer(c *fiber.Ctx) error {
	return handleGenerate(c, entitlements.FeatureFlyers)
}

func handleGenerate(c *fiber.Ctx, feature entitlements.Feature) error {
	userID := requestUserID(c)
	if userID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "missing_user"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	db := database.GetDB()
	repo := billing.NewRepository(db)
	counter := quota.NewCounterFromDB(db)

	// Presence of a Subscription row is the entitlement; entitled users skip
	// the quota entirely. Store trouble here falls through to the free-tier
	// path rather than assuming paid access.
	if _, err := billing.CurrentSubscription(ctx, repo, userID); err == nil {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"ok":      true,
			"id":      uuid.NewString(),
			"feature": string(feature),
		})
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		log.Printf("subscription lookup failed for user %s: %v", userID, err)
	}

	if err := counter.Increment(ctx, userID, feature); err != nil {
		if errors.Is(err, quota.ErrQuotaExceeded) {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":     "quota_exceeded",
				"feature":   string(feature),
				"remaining": 0,
			})
		}
		log.Printf("quota increment failed for user %s feature %s: %v", userID, feature, err)
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "quota_unavailable"})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"ok":        true,
		"id":        uuid.NewString(),
		"feature":   string(feature),
		"remaining": counter.Remaining(ctx, userID, feature),
	})
}

// HandleQuotaRemaining reports today's remaining free-tier units per feature.
func HandleQuotaRemaining(c *fiber.Ctx) error {
	userID := requestUserID(c)
	if userID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "missing_user"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	counter := quota.NewCounterFromDB(database.GetDB())
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"captions": counter.Remaining(ctx, userID, entitlements.FeatureCaptions),
		"flyers":   counter.Remaining(ctx, userID, entitlements.FeatureFlyers),
	})
}

// requestUserID extracts the opaque user identity set by the auth glue in
// front of this service.
func requestUserID(c *fiber.Ctx) string {
	return strings.TrimSpace(c.Get("X-User-ID"))
}
