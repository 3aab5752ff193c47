package http

import (
	"time"

	"github.com/gofiber/fiber/v3"
	"go.uber.org/fx"

	"github.com/echohealth/echo_backend/config"
	"github.com/echohealth/echo_backend/internal/api/http/router"
	"github.com/echohealth/echo_backend/internal/app"
)

// Start runs the API server with its background workers until interrupted.
func Start(cfg *config.Config, timeout time.Duration) {
	fx.New(
		fx.Supply(cfg),
		app.InfraModule,
		app.ServiceModule,
		app.WorkerModule,
		router.Module,
		Module,

		// Requesting *fiber.App forces NewServer to run and register its hooks.
		fx.Invoke(func(*fiber.App) {}),

		fx.StopTimeout(timeout),
		fx.WithLogger(app.FxLogger),
	).Run()
}
