package banking

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/teller-bank/teller_bank/internal/account"
	"github.com/teller-bank/teller_bank/internal/ledger"
	"github.com/teller-bank/teller_bank/internal/txlog"
	"github.com/teller-bank/teller_bank/internal/validation"
)

// RoleAdmin is the role claim that lifts ownership checks.
const RoleAdmin = "admin"

// Handler exposes account and money movement endpoints.
type Handler struct {
	engine *Engine
}

// NewHandler constructs a banking handler.
func NewHandler(engine *Engine) *Handler {
	return &Handler{engine: engine}
}

type openRequest struct {
	Kind    string          `json:"account_type" validate:"required,oneof=checking savings CHECKING SAVINGS"`
	OwnerID string          `json:"owner_id" validate:"max=64"`
	Opening decimal.Decimal `json:"opening_balance" validate:"nonnegative_cents"`
}

type amountRequest struct {
	Amount decimal.Decimal `json:"amount" validate:"positive_cents"`
}

type transferRequest struct {
	Source      string          `json:"source_account" validate:"required"`
	Destination string          `json:"destination_account" validate:"required"`
	Amount      decimal.Decimal `json:"amount" validate:"positive_cents"`
}

type accountResponse struct {
	Number              string    `json:"account_number"`
	Kind                string    `json:"account_type"`
	OwnerID             string    `json:"owner_id"`
	Balance             string    `json:"balance"`
	OverdraftLimit      string    `json:"overdraft_limit,omitempty"`
	MonthlyFee          string    `json:"monthly_fee,omitempty"`
	MonthlyTransactions *int      `json:"monthly_transactions,omitempty"`
	MinimumBalance      string    `json:"minimum_balance,omitempty"`
	InterestRate        string    `json:"interest_rate,omitempty"`
	CreatedAt           time.Time `json:"created_at"`
}

type receiptResponse struct {
	CorrelationID string           `json:"correlation_id"`
	Kind          string           `json:"kind"`
	Amount        string           `json:"amount"`
	State         State            `json:"state"`
	Source        *accountResponse `json:"source,omitempty"`
	Destination   *accountResponse `json:"destination,omitempty"`
	Records       []txlog.Record   `json:"records"`
	AuditWarning  string           `json:"audit_warning,omitempty"`
	CompletedAt   time.Time        `json:"completed_at"`
}

func toAccountResponse(a account.Account) accountResponse {
	out := accountResponse{
		Number:    a.Number,
		Kind:      string(a.Kind),
		OwnerID:   a.OwnerID,
		Balance:   a.Balance().StringFixed(2),
		CreatedAt: a.CreatedAt,
	}
	switch a.Kind {
	case account.Checking:
		count := a.MonthlyTransactions
		out.OverdraftLimit = a.Terms.OverdraftLimit.StringFixed(2)
		out.MonthlyFee = a.Terms.MonthlyFee.StringFixed(2)
		out.MonthlyTransactions = &count
	case account.Savings:
		out.MinimumBalance = a.Terms.MinimumBalance.StringFixed(2)
		out.InterestRate = a.Terms.InterestRate.String()
	}
	return out
}

func toAccountResponses(accts []account.Account) []accountResponse {
	out := make([]accountResponse, 0, len(accts))
	for _, a := range accts {
		out = append(out, toAccountResponse(a))
	}
	return out
}

func toReceiptResponse(r Receipt) receiptResponse {
	out := receiptResponse{
		CorrelationID: r.CorrelationID,
		Kind:          string(r.Kind),
		Amount:        r.Amount.StringFixed(2),
		State:         r.State,
		Records:       r.Records,
		CompletedAt:   r.CompletedAt,
	}
	if r.Source != nil {
		src := toAccountResponse(*r.Source)
		out.Source = &src
	}
	if r.Destination != nil {
		dst := toAccountResponse(*r.Destination)
		out.Destination = &dst
	}
	if r.AuditErr != nil {
		out.AuditWarning = "movement committed but the audit record could not be written"
	}
	return out
}

// Open creates an account for the caller.
func (h *Handler) Open(c *fiber.Ctx) error {
	var req openRequest
	if err := validation.ParseBody(c, &req); err != nil {
		return err
	}
	kind, err := account.ParseKind(req.Kind)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	acct, err := h.engine.OpenAccount(actorContext(c), OpenInput{Kind: kind, OwnerID: req.OwnerID, Opening: req.Opening})
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusCreated).JSON(toAccountResponse(acct))
}

// Get returns one account.
func (h *Handler) Get(c *fiber.Ctx) error {
	acct, err := h.engine.Account(actorContext(c), c.Params("number"))
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusOK).JSON(toAccountResponse(acct))
}

// Mine lists the caller's accounts.
func (h *Handler) Mine(c *fiber.Ctx) error {
	uid, _ := c.Locals("user_id").(string)
	if uid == "" {
		return fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}
	accts, err := h.engine.AccountsByOwner(actorContext(c), uid)
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"accounts": toAccountResponses(accts)})
}

// List returns every account.
func (h *Handler) List(c *fiber.Ctx) error {
	accts, err := h.engine.Accounts(c.UserContext())
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"accounts": toAccountResponses(accts)})
}

// Close deletes an empty account.
func (h *Handler) Close(c *fiber.Ctx) error {
	if err := h.engine.CloseAccount(actorContext(c), c.Params("number")); err != nil {
		return mapError(err)
	}
	return c.SendStatus(http.StatusNoContent)
}

// Deposit credits the account in the path.
func (h *Handler) Deposit(c *fiber.Ctx) error {
	var req amountRequest
	if err := validation.ParseBody(c, &req); err != nil {
		return err
	}
	receipt, err := h.engine.Deposit(actorContext(c), c.Params("number"), req.Amount)
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusCreated).JSON(toReceiptResponse(receipt))
}

// Withdraw debits the account in the path.
func (h *Handler) Withdraw(c *fiber.Ctx) error {
	var req amountRequest
	if err := validation.ParseBody(c, &req); err != nil {
		return err
	}
	receipt, err := h.engine.Withdraw(actorContext(c), c.Params("number"), req.Amount)
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusCreated).JSON(toReceiptResponse(receipt))
}

// Transfer moves money between two accounts.
func (h *Handler) Transfer(c *fiber.Ctx) error {
	var req transferRequest
	if err := validation.ParseBody(c, &req); err != nil {
		return err
	}
	receipt, err := h.engine.Transfer(actorContext(c), req.Source, req.Destination, req.Amount)
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusCreated).JSON(toReceiptResponse(receipt))
}

// MonthlyCycle applies the fee or interest posting to one account.
func (h *Handler) MonthlyCycle(c *fiber.Ctx) error {
	res, err := h.engine.ApplyMonthlyCycle(c.UserContext(), c.Params("number"))
	if err != nil {
		return mapError(err)
	}
	body := fiber.Map{
		"account":  toAccountResponse(res.Account),
		"fee":      res.Cycle.Fee.StringFixed(2),
		"interest": res.Cycle.Interest.StringFixed(2),
		"records":  res.Records,
	}
	if res.AuditErr != nil {
		body["audit_warning"] = "cycle applied but the audit record could not be written"
	}
	return c.Status(http.StatusOK).JSON(body)
}

// AccountHistory lists the records of one account.
func (h *Handler) AccountHistory(c *fiber.Ctx) error {
	records, err := h.engine.AccountHistory(actorContext(c), c.Params("number"))
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"transactions": records})
}

// History lists the whole log.
func (h *Handler) History(c *fiber.Ctx) error {
	records, err := h.engine.History(c.UserContext())
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"transactions": records})
}

// ClearHistory wipes the log.
func (h *Handler) ClearHistory(c *fiber.Ctx) error {
	if err := h.engine.ClearHistory(c.UserContext()); err != nil {
		return mapError(err)
	}
	return c.SendStatus(http.StatusNoContent)
}

func actorContext(c *fiber.Ctx) context.Context {
	uid, _ := c.Locals("user_id").(string)
	if uid == "" {
		return c.UserContext()
	}
	role, _ := c.Locals("role").(string)
	return WithActor(c.UserContext(), Actor{UserID: uid, Admin: role == RoleAdmin})
}

func mapError(err error) error {
	switch {
	case errors.Is(err, account.ErrInvalidAmount), errors.Is(err, account.ErrUnknownKind):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, account.ErrSameAccount):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, account.ErrAccountNotFound):
		return fiber.NewError(http.StatusNotFound, err.Error())
	case errors.Is(err, account.ErrPolicyViolation):
		return fiber.NewError(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, ErrNotOwner):
		return fiber.NewError(http.StatusForbidden, err.Error())
	case errors.Is(err, ledger.ErrBalanceNotZero), errors.Is(err, ledger.ErrDuplicateAccount):
		return fiber.NewError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrTransferFailed):
		return fiber.NewError(http.StatusConflict, "transfer failed, no funds moved; retry the transfer")
	default:
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
}
