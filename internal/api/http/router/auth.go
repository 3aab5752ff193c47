package router

import (
	"github.com/gofiber/fiber/v3"

	"github.com/echohealth/echo_backend/internal/api/http/handler"
	"github.com/echohealth/echo_backend/pkg/authorize"
)

func (r *Router) registerAuthRoutes(
	api fiber.Router,
	h *handler.AuthHandler,
	ah *handler.AccountHandler,
	authRequired fiber.Handler,
	requirePerm requirePermFunc,
) {
	group := api.Group("/auth")
	group.Post("/register/doctor", h.RegisterDoctor)
	group.Post("/register/patient", h.RegisterPatient)
	group.Post("/login", h.Login)
	group.Post("/refresh", h.Refresh)
	group.Post("/logout", authRequired, h.Logout)

	me := api.Group("/accounts/me", authRequired)
	me.Get("/", requirePerm(authorize.ResourceAccount, authorize.ActionRead), ah.Me)
	me.Post("/password", requirePerm(authorize.ResourceAccount, authorize.ActionUpdate), ah.ChangePassword)
	me.Post("/document", requirePerm(authorize.ResourceDocument, authorize.ActionCreate), ah.UploadDocument)

	api.Get("/doctors", authRequired, requirePerm(authorize.ResourceDoctor, authorize.ActionList), ah.ListDoctors)
}
