package controllers

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/skaidler/captiondeck/internal/pkg/billing"
	"github.com/skaidler/captiondeck/internal/pkg/database"
)

// HandleGetSubscription returns the user's current entitlement row for UI
// display, read through the cache.
func HandleGetSubscription(c *fiber.Ctx) error {
	userID := requestUserID(c)
	if userID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "missing_user"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	repo := billing.NewRepository(database.GetDB())
	sub, err := billing.CurrentSubscription(ctx, repo, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "no_subscription"})
		}
		log.Printf("subscription read failed for user %s: %v", userID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "subscription_lookup_failed"})
	}

	return c.Status(fiber.StatusOK).JSON(sub)
}

// HandleAdminDeleteSubscription is the administrative override: it applies
// the same idempotent delete effect a provider event would.
func HandleAdminDeleteSubscription(c *fiber.Ctx) error {
	providerSubscriptionID := strings.TrimSpace(c.Params("providerSubscriptionId"))
	if providerSubscriptionID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "missing_subscription_id"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	rec := billing.NewReconcilerFromDB(database.GetDB())
	if err := rec.Apply(ctx, billing.SubscriptionDeletedEvent{SubscriptionID: providerSubscriptionID}); err != nil {
		log.Printf("admin delete failed for subscription %s: %v", providerSubscriptionID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "delete_failed"})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true})
}
