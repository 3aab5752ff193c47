package handler

import (
	"github.com/gofiber/fiber/v3"

	"github.com/echohealth/echo_backend/internal/service/account"
)

type AccountHandler struct {
	svc account.Service
}

func NewAccountHandler(svc account.Service) *AccountHandler {
	return &AccountHandler{svc: svc}
}

// GET /api/v1/accounts/me
func (h *AccountHandler) Me(c fiber.Ctx) error {
	p, valid := principal(c)
	if !valid {
		return unauthorized(c, "unauthorized")
	}
	a, err := h.svc.Me(c.Context(), p)
	if err != nil {
		return mapAccountError(c, err)
	}
	return ok(c, a)
}

// POST /api/v1/accounts/me/password
func (h *AccountHandler) ChangePassword(c fiber.Ctx) error {
	p, valid := principal(c)
	if !valid {
		return unauthorized(c, "unauthorized")
	}

	var body struct {
		CurrentPassword string `json:"current_password" validate:"required"`
		NewPassword     string `json:"new_password" validate:"required"`
	}
	if err := decode(c, &body); err != nil {
		return badRequest(c, err.Error())
	}

	if err := h.svc.ChangePassword(c.Context(), p, body.CurrentPassword, body.NewPassword); err != nil {
		return mapAccountError(c, err)
	}
	return noContent(c)
}

// POST /api/v1/accounts/me/document
func (h *AccountHandler) UploadDocument(c fiber.Ctx) error {
	p, valid := principal(c)
	if !valid {
		return unauthorized(c, "unauthorized")
	}

	var body struct {
		Filename    string `json:"filename" validate:"required,max=255"`
		ContentType string `json:"content_type" validate:"required"`
	}
	if err := decode(c, &body); err != nil {
		return badRequest(c, err.Error())
	}

	u, err := h.svc.PresignDocumentUpload(c.Context(), p, body.Filename, body.ContentType)
	if err != nil {
		return mapAccountError(c, err)
	}
	return created(c, u)
}

// GET /api/v1/doctors
func (h *AccountHandler) ListDoctors(c fiber.Ctx) error {
	var q struct {
		Page    int `query:"page" validate:"gte=0"`
		PerPage int `query:"per_page" validate:"gte=0,lte=100"`
	}
	if err := decodeQuery(c, &q); err != nil {
		return badRequest(c, err.Error())
	}

	docs, err := h.svc.ListDoctors(c.Context(), account.Page{Page: q.Page, PerPage: q.PerPage})
	if err != nil {
		return mapAccountError(c, err)
	}
	return ok(c, docs)
}
