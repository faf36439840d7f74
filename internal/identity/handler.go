package identity

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/teller-bank/teller_bank/internal/validation"
)

// Handler exposes identity endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs an identity HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type createUserRequest struct {
	Registration
	Role string `json:"role" validate:"required,oneof=customer admin"`
}

// ProfileResponse is the public view of a user.
type ProfileResponse struct {
	UserID    string     `json:"user_id"`
	Username  string     `json:"username"`
	FullName  string     `json:"full_name"`
	Email     string     `json:"email"`
	Role      string     `json:"role"`
	CreatedAt time.Time  `json:"created_at"`
	LastLogin *time.Time `json:"last_login,omitempty"`
}

// Profile converts a user for responses.
func Profile(u User) ProfileResponse {
	return ProfileResponse{
		UserID:    u.ID,
		Username:  u.Username,
		FullName:  u.FullName,
		Email:     u.Email,
		Role:      u.Role,
		CreatedAt: u.CreatedAt,
		LastLogin: u.LastLogin,
	}
}

// Register handles customer onboarding.
func (h *Handler) Register(c *fiber.Ctx) error {
	var req Registration
	if err := validation.ParseBody(c, &req); err != nil {
		return err
	}
	user, err := h.service.Register(c.UserContext(), req)
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusCreated).JSON(Profile(user))
}

// CreateUser lets an administrator create a customer or another admin.
func (h *Handler) CreateUser(c *fiber.Ctx) error {
	var req createUserRequest
	if err := validation.ParseBody(c, &req); err != nil {
		return err
	}
	user, err := h.service.CreateUser(c.UserContext(), req.Registration, req.Role)
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusCreated).JSON(Profile(user))
}

// ListUsers returns every registered user.
func (h *Handler) ListUsers(c *fiber.Ctx) error {
	users, err := h.service.List(c.UserContext())
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	out := make([]ProfileResponse, 0, len(users))
	for _, u := range users {
		out = append(out, Profile(u))
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"users": out})
}

// Me returns the authenticated user's profile.
func (h *Handler) Me(c *fiber.Ctx) error {
	uid, _ := c.Locals("user_id").(string)
	if uid == "" {
		return fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}
	user, err := h.service.FindByID(c.UserContext(), uid)
	if err != nil {
		return fiber.NewError(http.StatusUnauthorized, "user not found")
	}
	return c.Status(http.StatusOK).JSON(Profile(user))
}

func mapError(err error) error {
	switch {
	case errors.Is(err, ErrUserExists):
		return fiber.NewError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrWeakPassword), errors.Is(err, ErrInvalidProfile), errors.Is(err, ErrInvalidRole):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	default:
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
}
