package router

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/storage/redis"

	"github.com/skaidler/captiondeck/app/controllers"
	"github.com/skaidler/captiondeck/internal/pkg/env"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	// Rate limiting over redis so limits hold across instances, like the
	// quota rows do.
	storage := redis.New(redis.Config{
		Host: env.GetEnv("CACHE_HOST", "localhost"),
		Port: env.GetEnvInt("CACHE_PORT", 6379),
	})

	api := app.Group("/api", limiter.New(limiter.Config{
		Max:        120,
		Expiration: time.Minute,
		Storage:    storage,
	}))
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	v1 := api.Group("/v1")
	v1.Post("/generate/caption", controllers.HandleGenerateCaption)
	v1.Post("/generate/flyer", controllers.HandleGenerateFlyer)
	v1.Get("/quota", controllers.HandleQuotaRemaining)
	v1.Get("/subscription", controllers.HandleGetSubscription)
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}
