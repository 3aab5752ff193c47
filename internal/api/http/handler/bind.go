package handler

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"github.com/echohealth/echo_backend/pkg/authorize"
	pasetotoken "github.com/echohealth/echo_backend/pkg/paseto"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// report JSON field names
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			name, _, _ = strings.Cut(f.Tag.Get("query"), ",")
		}
		return name
	})
	return v
}

// decode binds the JSON body into out and validates its struct tags. The
// returned error message is safe to show to the client.
func decode(c fiber.Ctx, out any) error {
	if err := c.Bind().JSON(out); err != nil {
		return errors.New("invalid request body")
	}
	return check(out)
}

func decodeQuery(c fiber.Ctx, out any) error {
	if err := c.Bind().Query(out); err != nil {
		return errors.New("invalid query parameters")
	}
	return check(out)
}

func check(out any) error {
	err := validate.Struct(out)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return errors.New("invalid request")
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return fmt.Errorf("%s is required", fe.Field())
	case "email":
		return fmt.Errorf("%s must be a valid email address", fe.Field())
	case "oneof":
		return fmt.Errorf("%s must be one of: %s", fe.Field(), fe.Param())
	case "min", "gte":
		return fmt.Errorf("%s must be at least %s", fe.Field(), fe.Param())
	case "gt":
		return fmt.Errorf("%s must be greater than %s", fe.Field(), fe.Param())
	case "max", "lte":
		return fmt.Errorf("%s must be at most %s", fe.Field(), fe.Param())
	case "uuid":
		return fmt.Errorf("%s must be a UUID", fe.Field())
	default:
		return fmt.Errorf("%s is invalid", fe.Field())
	}
}

func principal(c fiber.Ctx) (authorize.Principal, bool) {
	claims, ok := pasetotoken.ClaimsFromFiber(c)
	if !ok {
		return authorize.Principal{}, false
	}
	return authorize.PrincipalFromClaims(claims), true
}

func paramID(c fiber.Ctx, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Params(name))
	return id, err == nil
}
