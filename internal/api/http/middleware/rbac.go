package middleware

import (
	"errors"

	"github.com/gofiber/fiber/v3"

	"github.com/echohealth/echo_backend/pkg/authorize"
	pasetotoken "github.com/echohealth/echo_backend/pkg/paseto"
)

// RequirePermission checks the caller's role may perform action on resource.
// Ownership of the concrete record is checked by the services.
func RequirePermission(auth authorize.IAuthorization, resource authorize.Resource, action authorize.Action) fiber.Handler {
	return func(c fiber.Ctx) error {
		claims, ok := pasetotoken.ClaimsFromFiber(c)
		if !ok {
			return fiber.ErrUnauthorized
		}

		p := authorize.PrincipalFromClaims(claims)
		if err := auth.MustEnforce(c.Context(), p, resource, action); err != nil {
			if errors.Is(err, authorize.ErrForbidden) {
				return fiber.ErrForbidden
			}
			return err
		}

		return c.Next()
	}
}
