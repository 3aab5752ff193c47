package router

import (
	"github.com/gofiber/fiber/v3"

	"github.com/echohealth/echo_backend/internal/api/http/handler"
	"github.com/echohealth/echo_backend/pkg/authorize"
)

func (r *Router) registerWalletRoutes(
	api fiber.Router,
	wh *handler.WalletHandler,
	authRequired fiber.Handler,
	idempotent fiber.Handler,
	requirePerm requirePermFunc,
) {
	wallet := api.Group("/wallet", authRequired)
	wallet.Get("/", requirePerm(authorize.ResourceWallet, authorize.ActionRead), wh.Get)
	wallet.Post("/withdraw", requirePerm(authorize.ResourceWithdrawal, authorize.ActionCreate), idempotent, wh.Withdraw)
}
