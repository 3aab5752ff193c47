package account

import "errors"

var (
	ErrInvalidEmail         = errors.New("a valid email address is required")
	ErrEmailTaken           = errors.New("email is already registered")
	ErrPasswordTooShort     = errors.New("password is too short")
	ErrNameRequired         = errors.New("full name is required")
	ErrInvalidPhone         = errors.New("phone must be a valid Kenyan mobile number")
	ErrInvalidFee           = errors.New("consultation fee must not be negative")
	ErrInvalidCredentials   = errors.New("email or password is incorrect")
	ErrNotApproved          = errors.New("doctor account is not approved")
	ErrSessionNotFound      = errors.New("session not found or expired")
	ErrInvalidToken         = errors.New("invalid or expired token")
	ErrWrongPassword        = errors.New("current password is incorrect")
	ErrNotFound             = errors.New("account not found")
	ErrNotDoctor            = errors.New("account is not a doctor")
	ErrInvalidApprovalState = errors.New("approval state must be APPROVED or REJECTED")
	ErrForbidden            = errors.New("not allowed")
	ErrDocumentsDisabled    = errors.New("document storage is not configured")
	ErrNoDocument           = errors.New("doctor has not uploaded a document")
)
