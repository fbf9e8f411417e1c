package controllers

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/skaidler/captiondeck/internal/pkg/billing"
	"github.com/skaidler/captiondeck/internal/pkg/database"
	"github.com/skaidler/captiondeck/internal/pkg/env"
)

// newWebhookReconciler builds the reconciler applied to verified events.
// A package variable so tests can substitute a repository-backed fake.
var newWebhookReconciler = func() *billing.Reconciler {
	return billing.NewReconcilerFromDB(database.GetDB())
}

// HandlePaymentWebhook receives provider events. Response contract: 401 only
// on signature failure, 200 acknowledgements for processed and safely dropped
// events, 5xx only when the store is unavailable so the provider redelivers.
func HandlePaymentWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	signature := strings.TrimSpace(c.Get("X-Webhook-Signature"))
	secret := env.GetEnv("PAYMENT_WEBHOOK_SECRET", "")

	if !billing.VerifyWebhookSignature(rawBody, signature, secret) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid_signature"})
	}

	ev, err := billing.ParseWebhookEvent(rawBody)
	if err != nil {
		if errors.Is(err, billing.ErrUnhandledEvent) {
			return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "ignored": true})
		}
		// Malformed events are dropped and acknowledged; redelivery cannot
		// supply the missing metadata.
		log.Printf("dropping malformed webhook event: %v", err)
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "ignored": true})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	rec := newWebhookReconciler()
	if err := rec.Apply(ctx, ev); err != nil {
		log.Printf("webhook reconcile failed (%s): %v", ev.Kind(), err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "reconcile_failed"})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true})
}
