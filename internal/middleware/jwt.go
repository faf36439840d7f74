package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/teller-bank/teller_bank/internal/auth"
)

// TokenVerifier validates access tokens.
type TokenVerifier interface {
	Verify(ctx context.Context, accessToken string) (*auth.Claims, error)
}

// JWTAuth returns a middleware that validates bearer access tokens and stores
// the caller in the request locals.
func JWTAuth(verifier TokenVerifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authz := c.Get(fiber.HeaderAuthorization)
		if len(authz) < len("Bearer ") || !strings.EqualFold(authz[:len("Bearer ")], "bearer ") {
			return fiber.NewError(http.StatusUnauthorized, "missing bearer token")
		}
		tokenStr := strings.TrimSpace(authz[len("Bearer "):])
		claims, err := verifier.Verify(c.UserContext(), tokenStr)
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrTokenExpired):
				return fiber.NewError(http.StatusUnauthorized, "token has expired")
			case errors.Is(err, auth.ErrTokenRevoked):
				return fiber.NewError(http.StatusUnauthorized, "token invalidated")
			case errors.Is(err, auth.ErrInvalidToken):
				return fiber.NewError(http.StatusUnauthorized, "invalid token")
			default:
				return fiber.NewError(http.StatusInternalServerError, err.Error())
			}
		}

		c.Locals("user_id", claims.Subject)
		c.Locals("role", claims.Role)
		c.Locals("token_version", claims.Version)
		return c.Next()
	}
}

// RequireRole rejects callers whose role differs. It must run after JWTAuth.
func RequireRole(role string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		got, _ := c.Locals("role").(string)
		if got != role {
			return fiber.NewError(http.StatusForbidden, "insufficient role")
		}
		return c.Next()
	}
}
