package appointment

import "errors"

var (
	ErrNotFound          = errors.New("appointment not found")
	ErrForbidden         = errors.New("not allowed to access this appointment")
	ErrDoctorUnavailable = errors.New("doctor does not exist or is not approved")
	ErrInvalidSchedule   = errors.New("date must be YYYY-MM-DD and time HH:MM")
	ErrInvalidStatus     = errors.New("unknown appointment status")
	ErrInvalidTransition = errors.New("appointment status change not allowed")
	ErrNothingToUpdate   = errors.New("no fields to update")
)
