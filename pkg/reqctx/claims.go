package reqctx

import (
	"context"

	"github.com/google/uuid"
)

// AuthClaims is what the auth middleware stores for an authenticated caller.
// pkg/paseto's Claims implements it.
type AuthClaims interface {
	GetUserID() uuid.UUID
	// GetRole is one of ADMIN, DOCTOR or PATIENT.
	GetRole() string
	GetSessionID() *uuid.UUID
}

func WithClaims(ctx context.Context, claims AuthClaims) context.Context {
	return context.WithValue(ctx, keyClaims, claims)
}

// ClaimsFromContext returns nil for anonymous requests.
func ClaimsFromContext(ctx context.Context) AuthClaims {
	claims, _ := ctx.Value(keyClaims).(AuthClaims)
	return claims
}

func UserIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	claims := ClaimsFromContext(ctx)
	if claims == nil {
		return uuid.Nil, false
	}
	return claims.GetUserID(), true
}

// RoleFromContext returns "" for anonymous requests.
func RoleFromContext(ctx context.Context) string {
	if claims := ClaimsFromContext(ctx); claims != nil {
		return claims.GetRole()
	}
	return ""
}
