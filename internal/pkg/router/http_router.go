package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/skaidler/captiondeck/app/controllers"
	"github.com/skaidler/captiondeck/internal/pkg/middleware"
)

type HttpRouter struct {
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true})
	})

	// Provider events come in on the public surface, authenticated solely by
	// the signature header.
	app.Post("/webhook/payment", controllers.HandlePaymentWebhook)

	admin := app.Group("/admin", middleware.AdminAuthMiddleware())
	admin.Delete("/subscriptions/:providerSubscriptionId", controllers.HandleAdminDeleteSubscription)
}

func NewHttpRouter() *HttpRouter {
	return &HttpRouter{}
}
