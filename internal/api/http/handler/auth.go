package handler

import (
	"errors"

	"github.com/gofiber/fiber/v3"

	"github.com/echohealth/echo_backend/internal/service/account"
)

type AuthHandler struct {
	svc account.Service
}

func NewAuthHandler(svc account.Service) *AuthHandler {
	return &AuthHandler{svc: svc}
}

// POST /api/v1/auth/register/doctor
func (h *AuthHandler) RegisterDoctor(c fiber.Ctx) error {
	var body struct {
		Email           string `json:"email" validate:"required"`
		Password        string `json:"password" validate:"required"`
		FullName        string `json:"full_name" validate:"required"`
		Phone           string `json:"phone" validate:"required"`
		Specialty       string `json:"specialty"`
		ConsultationFee int64  `json:"consultation_fee" validate:"gte=0"`
	}
	if err := decode(c, &body); err != nil {
		return badRequest(c, err.Error())
	}

	a, err := h.svc.RegisterDoctor(c.Context(), account.RegisterDoctorRequest{
		Email:           body.Email,
		Password:        body.Password,
		FullName:        body.FullName,
		Phone:           body.Phone,
		Specialty:       body.Specialty,
		ConsultationFee: body.ConsultationFee,
	})
	if err != nil {
		return mapAccountError(c, err)
	}

	return created(c, fiber.Map{
		"account": a,
		"message": "registration received; an administrator will review your application",
	})
}

// POST /api/v1/auth/register/patient
func (h *AuthHandler) RegisterPatient(c fiber.Ctx) error {
	var body struct {
		Email    string `json:"email" validate:"required"`
		Password string `json:"password" validate:"required"`
		FullName string `json:"full_name" validate:"required"`
		Phone    string `json:"phone"`
	}
	if err := decode(c, &body); err != nil {
		return badRequest(c, err.Error())
	}

	a, err := h.svc.RegisterPatient(c.Context(), account.RegisterPatientRequest{
		Email:    body.Email,
		Password: body.Password,
		FullName: body.FullName,
		Phone:    body.Phone,
	})
	if err != nil {
		return mapAccountError(c, err)
	}

	return created(c, fiber.Map{"account": a})
}

// POST /api/v1/auth/login
func (h *AuthHandler) Login(c fiber.Ctx) error {
	var body struct {
		Email    string `json:"email" validate:"required"`
		Password string `json:"password" validate:"required"`
	}
	if err := decode(c, &body); err != nil {
		return badRequest(c, err.Error())
	}

	tokens, err := h.svc.Login(c.Context(), account.LoginRequest{Email: body.Email, Password: body.Password})
	if err != nil {
		return mapAccountError(c, err)
	}

	return ok(c, tokenResponse(tokens))
}

// POST /api/v1/auth/refresh
func (h *AuthHandler) Refresh(c fiber.Ctx) error {
	var body struct {
		RefreshToken string `json:"refresh_token" validate:"required"`
	}
	if err := decode(c, &body); err != nil {
		return badRequest(c, err.Error())
	}

	tokens, err := h.svc.RefreshTokens(c.Context(), body.RefreshToken)
	if err != nil {
		return mapAccountError(c, err)
	}

	return ok(c, tokenResponse(tokens))
}

// POST /api/v1/auth/logout  (requires AuthRequired middleware)
func (h *AuthHandler) Logout(c fiber.Ctx) error {
	p, valid := principal(c)
	if !valid || p.SessionID == nil {
		return unauthorized(c, "unauthorized")
	}

	if err := h.svc.Logout(c.Context(), *p.SessionID); err != nil && !errors.Is(err, account.ErrSessionNotFound) {
		return internalError(c)
	}

	return noContent(c)
}

func tokenResponse(t *account.AuthTokens) fiber.Map {
	return fiber.Map{
		"access_token":  t.AccessToken,
		"refresh_token": t.RefreshToken,
		"expires_in":    t.ExpiresIn,
		"account":       t.Account,
	}
}

// ---------------------------------------------------------------------------
// Error mapping
// ---------------------------------------------------------------------------

func mapAccountError(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, account.ErrInvalidEmail),
		errors.Is(err, account.ErrPasswordTooShort),
		errors.Is(err, account.ErrNameRequired),
		errors.Is(err, account.ErrInvalidPhone),
		errors.Is(err, account.ErrInvalidFee),
		errors.Is(err, account.ErrWrongPassword),
		errors.Is(err, account.ErrInvalidApprovalState),
		errors.Is(err, account.ErrNotDoctor):
		return badRequest(c, err.Error())
	case errors.Is(err, account.ErrEmailTaken):
		return conflict(c, err.Error())
	case errors.Is(err, account.ErrInvalidCredentials),
		errors.Is(err, account.ErrSessionNotFound),
		errors.Is(err, account.ErrInvalidToken):
		return unauthorized(c, err.Error())
	case errors.Is(err, account.ErrNotApproved):
		return forbidden(c, err.Error())
	case errors.Is(err, account.ErrForbidden):
		return forbidden(c, "forbidden")
	case errors.Is(err, account.ErrNotFound),
		errors.Is(err, account.ErrNoDocument):
		return notFound(c, err.Error())
	case errors.Is(err, account.ErrDocumentsDisabled):
		return serviceUnavailable(c, err.Error())
	default:
		return internalError(c)
	}
}
