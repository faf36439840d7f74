package middleware

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/teller-bank/teller_bank/internal/auth"
)

type stubVerifier map[string]*auth.Claims

func (s stubVerifier) Verify(_ context.Context, token string) (*auth.Claims, error) {
	switch token {
	case "expired":
		return nil, auth.ErrTokenExpired
	case "revoked":
		return nil, auth.ErrTokenRevoked
	}
	claims, ok := s[token]
	if !ok {
		return nil, auth.ErrInvalidToken
	}
	return claims, nil
}

func newAuthApp() *fiber.App {
	verifier := stubVerifier{
		"customer": {Role: "customer", RegisteredClaims: jwt.RegisteredClaims{Subject: "u1"}},
		"admin":    {Role: "admin", RegisteredClaims: jwt.RegisteredClaims{Subject: "a1"}},
	}
	app := fiber.New()
	api := app.Group("/api", JWTAuth(verifier))
	api.Get("/me", func(c *fiber.Ctx) error {
		return c.SendString(c.Locals("user_id").(string))
	})
	api.Get("/admin", RequireRole("admin"), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})
	return app
}

func status(t *testing.T, app *fiber.App, path, authz string) int {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodGet, path, nil)
	if authz != "" {
		req.Header.Set(fiber.HeaderAuthorization, authz)
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	resp.Body.Close()
	return resp.StatusCode
}

func TestJWTAuth(t *testing.T) {
	app := newAuthApp()
	cases := []struct {
		authz string
		want  int
	}{
		{"", fiber.StatusUnauthorized},
		{"Basic abc", fiber.StatusUnauthorized},
		{"Bearer nope", fiber.StatusUnauthorized},
		{"Bearer expired", fiber.StatusUnauthorized},
		{"Bearer revoked", fiber.StatusUnauthorized},
		{"Bearer customer", fiber.StatusOK},
		{"bearer customer", fiber.StatusOK},
	}
	for _, tc := range cases {
		if got := status(t, app, "/api/me", tc.authz); got != tc.want {
			t.Fatalf("authz %q: expected %d got %d", tc.authz, tc.want, got)
		}
	}
}

func TestRequireRole(t *testing.T) {
	app := newAuthApp()
	if got := status(t, app, "/api/admin", "Bearer customer"); got != fiber.StatusForbidden {
		t.Fatalf("customer: expected %d got %d", fiber.StatusForbidden, got)
	}
	if got := status(t, app, "/api/admin", "Bearer admin"); got != fiber.StatusNoContent {
		t.Fatalf("admin: expected %d got %d", fiber.StatusNoContent, got)
	}
}
