package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/skaidler/captiondeck/internal/pkg/billing"
	"github.com/skaidler/captiondeck/internal/pkg/cache"
	"github.com/skaidler/captiondeck/internal/pkg/database"
	"github.com/skaidler/captiondeck/internal/pkg/env"
	"github.com/skaidler/captiondeck/internal/pkg/quota"
	"github.com/skaidler/captiondeck/internal/pkg/router"
	"github.com/skaidler/captiondeck/internal/pkg/sweeper"
)

func main() {
	app, sw := NewApplication()
	sw.Start()

	// Shut the sweeper down cleanly; an interrupted sweep just reruns on the
	// next start.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		sw.Stop()
		_ = app.Shutdown()
	}()

	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	log.Fatal(err)
}

func NewApplication() (*fiber.App, *sweeper.Sweeper) {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	db := database.GetDB()
	sw := sweeper.New(
		billing.NewRepository(db),
		quota.NewCounterFromDB(db),
		time.Duration(env.GetEnvInt("SWEEP_INTERVAL_HOURS", 24))*time.Hour,
	)

	app := fiber.New(fiber.Config{
		AppName: "captiondeck",
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// fiber metrics
	app.Get("/metrics", basicauth.New(basicauth.Config{
		Users: map[string]string{
			env.GetEnv("METRICS_USER", "admin"): env.GetEnv("METRICS_PASSWORD", "test"),
		},
	}), monitor.New())

	// ROUTER
	router.InstallRouter(app)

	return app, sw
}
