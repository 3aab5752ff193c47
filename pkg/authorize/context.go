package authorize

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/echohealth/echo_backend/pkg/reqctx"
)

// Principal is the authenticated caller as seen by capability checks.
type Principal struct {
	UserID    uuid.UUID
	Role      Role
	SessionID *uuid.UUID
}

func (p Principal) Validate() error {
	if p.UserID == uuid.Nil {
		return fmt.Errorf("%w: principal has no user id", ErrInvalidArgs)
	}
	if _, ok := KnownRoles[p.Role]; !ok {
		return fmt.Errorf("%w: unknown role: %q", ErrInvalidArgs, p.Role)
	}
	return nil
}

func (p Principal) IsAdmin() bool   { return p.Role == RoleAdmin }
func (p Principal) IsDoctor() bool  { return p.Role == RoleDoctor }
func (p Principal) IsPatient() bool { return p.Role == RolePatient }

// PrincipalFromClaims maps verified token claims onto a Principal.
func PrincipalFromClaims(c reqctx.AuthClaims) Principal {
	return Principal{
		UserID:    c.GetUserID(),
		Role:      Role(c.GetRole()),
		SessionID: c.GetSessionID(),
	}
}
