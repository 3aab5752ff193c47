package handler

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"github.com/echohealth/echo_backend/internal/repo"
	"github.com/echohealth/echo_backend/internal/service/appointment"
	"github.com/echohealth/echo_backend/pkg/authorize"
)

type AppointmentHandler struct {
	svc appointment.Service
}

func NewAppointmentHandler(svc appointment.Service) *AppointmentHandler {
	return &AppointmentHandler{svc: svc}
}

func mapAppointmentError(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, appointment.ErrNotFound):
		return notFound(c, err.Error())
	case errors.Is(err, appointment.ErrForbidden):
		return forbidden(c, err.Error())
	case errors.Is(err, appointment.ErrDoctorUnavailable),
		errors.Is(err, appointment.ErrInvalidSchedule),
		errors.Is(err, appointment.ErrInvalidStatus),
		errors.Is(err, appointment.ErrNothingToUpdate):
		return badRequest(c, err.Error())
	case errors.Is(err, appointment.ErrInvalidTransition):
		return conflict(c, err.Error())
	default:
		return internalError(c)
	}
}

// POST /appointments
func (h *AppointmentHandler) Book(c fiber.Ctx) error {
	p, valid := principal(c)
	if !valid {
		return unauthorized(c, "unauthorized")
	}

	var body struct {
		DoctorID string `json:"doctor_id" validate:"required,uuid"`
		Date     string `json:"date" validate:"required"`
		Time     string `json:"time" validate:"required"`
		Notes    string `json:"notes" validate:"max=2000"`
	}
	if err := decode(c, &body); err != nil {
		return badRequest(c, err.Error())
	}

	a, err := h.svc.Book(c.Context(), p, appointment.BookRequest{
		DoctorID: uuid.MustParse(body.DoctorID),
		Date:     body.Date,
		Time:     body.Time,
		Notes:    body.Notes,
	})
	if err != nil {
		return mapAppointmentError(c, err)
	}
	return created(c, a)
}

// GET /appointments
func (h *AppointmentHandler) List(c fiber.Ctx) error {
	p, valid := principal(c)
	if !valid {
		return unauthorized(c, "unauthorized")
	}

	var q struct {
		Status  string `query:"status"`
		Page    int    `query:"page" validate:"gte=0"`
		PerPage int    `query:"per_page" validate:"gte=0,lte=100"`
	}
	if err := decodeQuery(c, &q); err != nil {
		return badRequest(c, err.Error())
	}

	list, err := h.svc.List(c.Context(), p, appointment.ListRequest{
		Status:  repo.AppointmentStatus(q.Status),
		Page:    q.Page,
		PerPage: q.PerPage,
	})
	if err != nil {
		return mapAppointmentError(c, err)
	}
	return ok(c, list)
}

// GET /appointments/:id
func (h *AppointmentHandler) Get(c fiber.Ctx) error {
	p, valid := principal(c)
	if !valid {
		return unauthorized(c, "unauthorized")
	}
	id, valid := paramID(c, "id")
	if !valid {
		return badRequest(c, "invalid appointment id")
	}

	a, err := h.svc.Get(c.Context(), p, id)
	if err != nil {
		return mapAppointmentError(c, err)
	}
	return ok(c, a)
}

// PATCH /appointments/:id
func (h *AppointmentHandler) Update(c fiber.Ctx) error {
	p, valid := principal(c)
	if !valid {
		return unauthorized(c, "unauthorized")
	}
	id, valid := paramID(c, "id")
	if !valid {
		return badRequest(c, "invalid appointment id")
	}

	var body struct {
		Date   *string `json:"date"`
		Time   *string `json:"time"`
		Status *string `json:"status" validate:"omitnil,oneof=SCHEDULED RESCHEDULED COMPLETED CANCELLED"`
		Notes  *string `json:"notes" validate:"omitnil,max=2000"`
	}
	if err := decode(c, &body); err != nil {
		return badRequest(c, err.Error())
	}

	req := appointment.UpdateRequest{Date: body.Date, Time: body.Time, Notes: body.Notes}
	if body.Status != nil {
		s := repo.AppointmentStatus(*body.Status)
		req.Status = &s
	}

	a, err := h.svc.Update(c.Context(), p, id, req)
	if err != nil {
		return mapAppointmentError(c, err)
	}
	return ok(c, a)
}

// POST /appointments/:id/complete
func (h *AppointmentHandler) Complete(c fiber.Ctx) error {
	return h.transition(c, h.svc.Complete)
}

// POST /appointments/:id/cancel
func (h *AppointmentHandler) Cancel(c fiber.Ctx) error {
	return h.transition(c, h.svc.Cancel)
}

type transitionFunc func(ctx context.Context, p authorize.Principal, id uuid.UUID) (*repo.Appointment, error)

func (h *AppointmentHandler) transition(c fiber.Ctx, fn transitionFunc) error {
	p, valid := principal(c)
	if !valid {
		return unauthorized(c, "unauthorized")
	}
	id, valid := paramID(c, "id")
	if !valid {
		return badRequest(c, "invalid appointment id")
	}

	a, err := fn(c.Context(), p, id)
	if err != nil {
		return mapAppointmentError(c, err)
	}
	return ok(c, a)
}
