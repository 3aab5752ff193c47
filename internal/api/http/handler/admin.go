package handler

import (
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"github.com/echohealth/echo_backend/internal/repo"
	"github.com/echohealth/echo_backend/internal/service/account"
	"github.com/echohealth/echo_backend/internal/service/ledger"
)

// AdminHandler serves doctor application review and wallet operator actions.
type AdminHandler struct {
	accounts account.Service
	ledger   ledger.Service
}

func NewAdminHandler(accounts account.Service, l ledger.Service) *AdminHandler {
	return &AdminHandler{accounts: accounts, ledger: l}
}

// ---------------------------------------------------------------------------
// Doctor applications
// ---------------------------------------------------------------------------

// GET /api/v1/admin/applications?state=
func (h *AdminHandler) ListApplications(c fiber.Ctx) error {
	p, valid := principal(c)
	if !valid {
		return unauthorized(c, "unauthorized")
	}

	var q struct {
		State   string `query:"state" validate:"omitempty,oneof=PENDING APPROVED REJECTED"`
		Page    int    `query:"page" validate:"gte=0"`
		PerPage int    `query:"per_page" validate:"gte=0,lte=100"`
	}
	if err := decodeQuery(c, &q); err != nil {
		return badRequest(c, err.Error())
	}
	if q.State == "" {
		q.State = string(repo.ApprovalPending)
	}

	list, err := h.accounts.ListApplications(c.Context(), p, repo.ApprovalState(q.State),
		account.Page{Page: q.Page, PerPage: q.PerPage})
	if err != nil {
		return mapAccountError(c, err)
	}
	return ok(c, list)
}

// PATCH /api/v1/admin/applications/:id
func (h *AdminHandler) SetApproval(c fiber.Ctx) error {
	p, valid := principal(c)
	if !valid {
		return unauthorized(c, "unauthorized")
	}
	id, valid := paramID(c, "id")
	if !valid {
		return badRequest(c, "invalid doctor id")
	}

	var body struct {
		ApprovalState string `json:"approval_state" validate:"required,oneof=APPROVED REJECTED"`
	}
	if err := decode(c, &body); err != nil {
		return badRequest(c, err.Error())
	}

	a, err := h.accounts.SetApprovalState(c.Context(), p, id, repo.ApprovalState(body.ApprovalState))
	if err != nil {
		return mapAccountError(c, err)
	}
	return ok(c, a)
}

// GET /api/v1/admin/applications/:id/document
func (h *AdminHandler) ApplicationDocument(c fiber.Ctx) error {
	p, valid := principal(c)
	if !valid {
		return unauthorized(c, "unauthorized")
	}
	id, valid := paramID(c, "id")
	if !valid {
		return badRequest(c, "invalid doctor id")
	}

	u, err := h.accounts.PresignDocumentDownload(c.Context(), p, id)
	if err != nil {
		return mapAccountError(c, err)
	}
	return ok(c, u)
}

// ---------------------------------------------------------------------------
// Withdrawals
// ---------------------------------------------------------------------------

// GET /api/v1/admin/withdrawals?status=&older_than=
func (h *AdminHandler) ListWithdrawals(c fiber.Ctx) error {
	var q struct {
		Status    string `query:"status" validate:"omitempty,oneof=PENDING COMPLETED FAILED"`
		OlderThan string `query:"older_than"`
		Limit     int    `query:"limit" validate:"gte=0"`
	}
	if err := decodeQuery(c, &q); err != nil {
		return badRequest(c, err.Error())
	}

	f := ledger.WithdrawalFilter{Status: repo.TransactionStatus(q.Status), Limit: q.Limit}
	if q.OlderThan != "" {
		d, err := time.ParseDuration(q.OlderThan)
		if err != nil || d < 0 {
			return badRequest(c, "older_than must be a duration such as 15m or 2h")
		}
		f.OlderThan = d
	}

	list, err := h.ledger.ListWithdrawals(c.Context(), f)
	if err != nil {
		return mapLedgerError(c, err)
	}
	return ok(c, list)
}

// POST /api/v1/admin/withdrawals/:id/retry
func (h *AdminHandler) RetryWithdrawal(c fiber.Ctx) error {
	id, valid := paramID(c, "id")
	if !valid {
		return badRequest(c, "invalid transaction id")
	}

	res, err := h.ledger.RetryWithdrawal(c.Context(), id)
	if err != nil {
		return mapWithdrawError(c, res, err)
	}
	return ok(c, res)
}

// POST /api/v1/admin/withdrawals/:id/reverse
func (h *AdminHandler) ReverseWithdrawal(c fiber.Ctx) error {
	id, valid := paramID(c, "id")
	if !valid {
		return badRequest(c, "invalid transaction id")
	}

	tx, err := h.ledger.ReverseWithdrawal(c.Context(), id)
	if err != nil {
		return mapLedgerError(c, err)
	}
	return created(c, tx)
}

// POST /api/v1/admin/withdrawals/:id/resolve
func (h *AdminHandler) ResolveWithdrawal(c fiber.Ctx) error {
	id, valid := paramID(c, "id")
	if !valid {
		return badRequest(c, "invalid transaction id")
	}

	var body struct {
		Outcome   string `json:"outcome" validate:"required,oneof=COMPLETED FAILED"`
		Reference string `json:"reference" validate:"max=128"`
	}
	if err := decode(c, &body); err != nil {
		return badRequest(c, err.Error())
	}

	tx, err := h.ledger.ResolveWithdrawal(c.Context(), id, repo.TransactionStatus(body.Outcome), body.Reference)
	if err != nil {
		return mapLedgerError(c, err)
	}
	return ok(c, tx)
}

// ---------------------------------------------------------------------------
// Wallets
// ---------------------------------------------------------------------------

// POST /api/v1/admin/wallets/:owner_id/refunds
func (h *AdminHandler) Refund(c fiber.Ctx) error {
	owner, valid := paramID(c, "owner_id")
	if !valid {
		return badRequest(c, "invalid owner id")
	}

	var body struct {
		Amount        int64  `json:"amount" validate:"gt=0"`
		Description   string `json:"description" validate:"max=500"`
		AppointmentID string `json:"appointment_id" validate:"omitempty,uuid"`
	}
	if err := decode(c, &body); err != nil {
		return badRequest(c, err.Error())
	}

	var appt *uuid.UUID
	if body.AppointmentID != "" {
		id := uuid.MustParse(body.AppointmentID)
		appt = &id
	}

	tx, err := h.ledger.Refund(c.Context(), owner, body.Amount, body.Description, appt)
	if err != nil {
		return mapLedgerError(c, err)
	}
	return created(c, tx)
}

// GET /api/v1/admin/wallets/:owner_id/audit
func (h *AdminHandler) Audit(c fiber.Ctx) error {
	owner, valid := paramID(c, "owner_id")
	if !valid {
		return badRequest(c, "invalid owner id")
	}

	r, err := h.ledger.Audit(c.Context(), owner)
	if err != nil {
		return mapLedgerError(c, err)
	}
	return ok(c, r)
}
