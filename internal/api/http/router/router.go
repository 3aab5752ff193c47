package router

import (
	"log/slog"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"

	"github.com/echohealth/echo_backend/config"
	"github.com/echohealth/echo_backend/internal/api/http/handler"
	"github.com/echohealth/echo_backend/internal/api/http/middleware"
	"github.com/echohealth/echo_backend/internal/service/account"
	"github.com/echohealth/echo_backend/internal/service/appointment"
	"github.com/echohealth/echo_backend/internal/service/ledger"
	"github.com/echohealth/echo_backend/pkg/authorize"
	pasetotoken "github.com/echohealth/echo_backend/pkg/paseto"
)

// Module provides the Router to the fx graph.
var Module = fx.Module("router", fx.Provide(NewRouter))

type Params struct {
	fx.In

	Cfg            *config.Config
	Redis          *redis.Client
	Auth           authorize.IAuthorization
	AccountSvc     account.Service
	AppointmentSvc appointment.Service
	LedgerSvc      ledger.Service
	PasetoMgr      *pasetotoken.Manager
}

type Router struct {
	p Params
}

func NewRouter(p Params) *Router {
	return &Router{p: p}
}

type requirePermFunc func(authorize.Resource, authorize.Action) fiber.Handler

func (r *Router) Register(app *fiber.App) {
	// 1. Health & Metrics
	r.registerSystemRoutes(app)

	// 2. Middlewares
	authRequired := middleware.AuthRequired(r.p.PasetoMgr, r.p.AccountSvc)
	idempotent := func(c fiber.Ctx) error { return c.Next() }
	if r.p.Redis != nil {
		idempotent = middleware.Idempotency(
			middleware.NewRedisResponseCache(r.p.Redis),
			r.p.Cfg.Wallet.IdempotencyTTL(),
		)
	} else {
		slog.Warn("redis not configured, Idempotency-Key is ignored")
	}
	requirePerm := func(res authorize.Resource, act authorize.Action) fiber.Handler {
		return middleware.RequirePermission(r.p.Auth, res, act)
	}

	// 3. Handlers
	authH := handler.NewAuthHandler(r.p.AccountSvc)
	accountH := handler.NewAccountHandler(r.p.AccountSvc)
	appointmentH := handler.NewAppointmentHandler(r.p.AppointmentSvc)
	walletH := handler.NewWalletHandler(r.p.LedgerSvc)
	adminH := handler.NewAdminHandler(r.p.AccountSvc, r.p.LedgerSvc)

	api := app.Group("/api/v1")

	r.registerAuthRoutes(api, authH, accountH, authRequired, requirePerm)
	r.registerAppointmentRoutes(api, appointmentH, authRequired, requirePerm)
	r.registerWalletRoutes(api, walletH, authRequired, idempotent, requirePerm)
	r.registerAdminRoutes(api, adminH, authRequired, requirePerm)
}

func (r *Router) registerSystemRoutes(app *fiber.App) {
	app.Get(healthcheck.LivenessEndpoint, healthcheck.New())
	app.Get(healthcheck.ReadinessEndpoint, healthcheck.New(healthcheck.Config{
		Probe: func(c fiber.Ctx) bool {
			if !authorize.IsPolicyHealthy() {
				return false
			}
			if r.p.Redis == nil {
				return true
			}
			return r.p.Redis.Ping(c.Context()).Err() == nil
		},
	}))
	app.Get(healthcheck.StartupEndpoint, healthcheck.New())

	if r.p.Cfg.Observability.Enabled && r.p.Cfg.Observability.Metrics.Enabled {
		path := r.p.Cfg.Observability.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		app.Get(path, adaptor.HTTPHandler(promhttp.Handler()))
	}
}
