package router

import (
	"github.com/gofiber/fiber/v3"

	"github.com/echohealth/echo_backend/internal/api/http/handler"
	"github.com/echohealth/echo_backend/pkg/authorize"
)

func (r *Router) registerAdminRoutes(
	api fiber.Router,
	h *handler.AdminHandler,
	authRequired fiber.Handler,
	requirePerm requirePermFunc,
) {
	admin := api.Group("/admin", authRequired)

	apps := admin.Group("/applications")
	apps.Get("/", requirePerm(authorize.ResourceApplication, authorize.ActionList), h.ListApplications)
	apps.Patch("/:id", requirePerm(authorize.ResourceApplication, authorize.ActionUpdate), h.SetApproval)
	apps.Get("/:id/document", requirePerm(authorize.ResourceDocument, authorize.ActionRead), h.ApplicationDocument)

	wd := admin.Group("/withdrawals")
	wd.Get("/", requirePerm(authorize.ResourceWithdrawal, authorize.ActionList), h.ListWithdrawals)
	wd.Post("/:id/retry", requirePerm(authorize.ResourceWithdrawal, authorize.ActionExecute), h.RetryWithdrawal)
	wd.Post("/:id/reverse", requirePerm(authorize.ResourceWithdrawal, authorize.ActionExecute), h.ReverseWithdrawal)
	wd.Post("/:id/resolve", requirePerm(authorize.ResourceWithdrawal, authorize.ActionExecute), h.ResolveWithdrawal)

	wallets := admin.Group("/wallets/:owner_id")
	wallets.Post("/refunds", requirePerm(authorize.ResourceRefund, authorize.ActionCreate), h.Refund)
	wallets.Get("/audit", requirePerm(authorize.ResourceLedgerAudit, authorize.ActionRead), h.Audit)
}
