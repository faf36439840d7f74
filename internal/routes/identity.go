package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/teller-bank/teller_bank/internal/banking"
	"github.com/teller-bank/teller_bank/internal/identity"
)

// RegisterIdentityRoutes wires customer self-registration.
func RegisterIdentityRoutes(r fiber.Router, h *identity.Handler) {
	r.Post("/identity/register", h.Register)
}

// RegisterMeRoutes wires the caller's profile and accounts.
func RegisterMeRoutes(r fiber.Router, ids *identity.Handler, accounts *banking.Handler) {
	r.Get("/me", ids.Me)
	r.Get("/me/accounts", accounts.Mine)
}
