package handler

import (
	"errors"

	"github.com/gofiber/fiber/v3"

	"github.com/echohealth/echo_backend/internal/service/ledger"
	"github.com/echohealth/echo_backend/pkg/payout"
)

type WalletHandler struct {
	svc ledger.Service
}

func NewWalletHandler(svc ledger.Service) *WalletHandler {
	return &WalletHandler{svc: svc}
}

// GET /api/v1/wallet?limit=
func (h *WalletHandler) Get(c fiber.Ctx) error {
	p, valid := principal(c)
	if !valid {
		return unauthorized(c, "unauthorized")
	}

	var q struct {
		Limit int `query:"limit" validate:"gte=0"`
	}
	if err := decodeQuery(c, &q); err != nil {
		return badRequest(c, err.Error())
	}

	l, err := h.svc.GetLedger(c.Context(), p.UserID, q.Limit)
	if err != nil {
		return mapLedgerError(c, err)
	}
	return ok(c, l)
}

// POST /api/v1/wallet/withdraw
func (h *WalletHandler) Withdraw(c fiber.Ctx) error {
	p, valid := principal(c)
	if !valid {
		return unauthorized(c, "unauthorized")
	}

	var body struct {
		Amount      int64  `json:"amount" validate:"gt=0"`
		PhoneNumber string `json:"phone_number" validate:"required"`
	}
	if err := decode(c, &body); err != nil {
		return badRequest(c, err.Error())
	}

	res, err := h.svc.Withdraw(c.Context(), p.UserID, body.Amount, body.PhoneNumber)
	if err != nil {
		return mapWithdrawError(c, res, err)
	}
	return created(c, res)
}

// mapWithdrawError keeps the transaction in the body when the debit was
// recorded but the payout did not complete.
func mapWithdrawError(c fiber.Ctx, res *ledger.WithdrawResult, err error) error {
	switch {
	case res != nil && errors.Is(err, payout.ErrGatewayRejected):
		return failWith(c, fiber.StatusBadRequest, "payout rejected by provider", res)
	case res != nil && payout.IsUnavailable(err):
		return failWith(c, fiber.StatusBadGateway, "payout provider unavailable; withdrawal is pending", res)
	default:
		return mapLedgerError(c, err)
	}
}

func mapLedgerError(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, ledger.ErrInvalidAmount),
		errors.Is(err, ledger.ErrBelowMinimum),
		errors.Is(err, ledger.ErrInvalidDestination),
		errors.Is(err, ledger.ErrInsufficientBalance),
		errors.Is(err, ledger.ErrInvalidOutcome),
		errors.Is(err, ledger.ErrReferenceRequired),
		errors.Is(err, payout.ErrGatewayRejected):
		return badRequest(c, err.Error())
	case errors.Is(err, ledger.ErrWalletNotFound),
		errors.Is(err, ledger.ErrTransactionNotFound):
		return notFound(c, err.Error())
	case errors.Is(err, ledger.ErrInvalidTransition),
		errors.Is(err, ledger.ErrAlreadyReversed),
		errors.Is(err, ledger.ErrAlreadyCredited),
		errors.Is(err, ledger.ErrPayoutInFlight):
		return conflict(c, err.Error())
	case payout.IsUnavailable(err):
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "payout provider unavailable"})
	default:
		return internalError(c)
	}
}
