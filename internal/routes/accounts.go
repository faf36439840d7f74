package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/teller-bank/teller_bank/internal/banking"
	"github.com/teller-bank/teller_bank/internal/identity"
)

// RegisterAccountRoutes wires account and money movement endpoints. Money
// movements run behind the idempotency middleware.
func RegisterAccountRoutes(r fiber.Router, h *banking.Handler, idempotent fiber.Handler) {
	r.Post("/accounts", h.Open)
	r.Get("/accounts/:number", h.Get)
	r.Get("/accounts/:number/transactions", h.AccountHistory)
	r.Post("/accounts/:number/deposit", idempotent, h.Deposit)
	r.Post("/accounts/:number/withdraw", idempotent, h.Withdraw)
	r.Post("/transfers", idempotent, h.Transfer)
}

// RegisterAdminRoutes wires the administrator endpoints.
func RegisterAdminRoutes(r fiber.Router, h *banking.Handler, users *identity.Handler) {
	r.Get("/users", users.ListUsers)
	r.Post("/users", users.CreateUser)
	r.Get("/accounts", h.List)
	r.Delete("/accounts/:number", h.Close)
	r.Post("/accounts/:number/monthly-cycle", h.MonthlyCycle)
	r.Get("/transactions", h.History)
	r.Delete("/transactions", h.ClearHistory)
}
