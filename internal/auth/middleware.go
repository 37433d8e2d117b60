package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/iwongu/pottery-app/internal/shared/apperr"
	"github.com/iwongu/pottery-app/internal/users"

	"github.com/gofiber/fiber/v2"
)

var errNoLookup = errors.New("no user lookup configured")

type UserLookup interface {
	GetByEmail(ctx context.Context, email string) (users.User, error)
}

// JWTMiddleware validates bearer tokens, resolves the token subject to a user
// and stores it with users.SetCurrent.
func JWTMiddleware(svc *Service, lookup UserLookup) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := bearerFromHeader(c.Get("Authorization"))
		if token == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "missing bearer token")
		}

		email, err := svc.ValidateAccessToken(token)
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, err.Error())
		}
		if lookup == nil {
			return fiber.NewError(fiber.StatusUnauthorized, errNoLookup.Error())
		}

		user, err := lookup.GetByEmail(c.Context(), email)
		if err != nil {
			if apperr.IsKind(err, apperr.KindNotFound) {
				return fiber.NewError(fiber.StatusUnauthorized, "could not validate credentials")
			}
			return apperr.HTTP(err)
		}

		users.SetCurrent(c, user)
		return c.Next()
	}
}

func bearerFromHeader(header string) string {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
