package middleware

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	pasetotoken "github.com/echohealth/echo_backend/pkg/paseto"
	"github.com/echohealth/echo_backend/pkg/reqctx"
)

// TokenVerifier is satisfied by *pasetotoken.Manager.
type TokenVerifier interface {
	Verify(token string) (*pasetotoken.Claims, error)
}

// SessionChecker is satisfied by account.Service.
type SessionChecker interface {
	SessionActive(ctx context.Context, sessionID uuid.UUID) (bool, error)
}

// AuthRequired validates a Bearer PASETO access token and checks its session.
// On success, stores *pasetotoken.Claims in c.Locals(pasetotoken.CtxKeyClaims)
// and on the request context.
func AuthRequired(tokens TokenVerifier, sessions SessionChecker) fiber.Handler {
	return func(c fiber.Ctx) error {
		h := c.Get(fiber.HeaderAuthorization)
		if h == "" {
			return fiber.ErrUnauthorized
		}

		parts := strings.SplitN(h, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return fiber.ErrUnauthorized
		}

		claims, err := tokens.Verify(strings.TrimSpace(parts[1]))
		if err != nil {
			return fiber.ErrUnauthorized
		}

		// Only access tokens are accepted on protected routes
		if claims.Type != pasetotoken.TokenTypeAccess || claims.SessionID == nil {
			return fiber.ErrUnauthorized
		}

		active, err := sessions.SessionActive(c.Context(), *claims.SessionID)
		if err != nil {
			return err
		}
		if !active {
			return fiber.ErrUnauthorized
		}

		c.Locals(pasetotoken.CtxKeyClaims, claims)
		c.SetContext(reqctx.WithClaims(c.Context(), claims))
		return c.Next()
	}
}
