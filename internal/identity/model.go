package identity

import (
	"errors"
	"time"
)

const (
	// RoleCustomer may only act on accounts they own.
	RoleCustomer = "customer"
	// RoleAdmin may act on every account and manage the audit trail.
	RoleAdmin = "admin"
)

var (
	ErrUserExists         = errors.New("user exists")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrWeakPassword       = errors.New("password must be at least 8 characters")
	ErrInvalidProfile     = errors.New("invalid user profile")
	ErrInvalidRole        = errors.New("role must be customer or admin")
)

// User represents a registered bank customer or administrator.
type User struct {
	ID           string
	Username     string
	FullName     string
	Email        string
	Role         string
	PasswordHash []byte
	TokenVersion int
	CreatedAt    time.Time
	LastLogin    *time.Time
}

// IsAdmin reports whether the user holds the admin role.
func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// Credentials request structure.
type Credentials struct {
	Username string
	Password string
}

// Registration captures a new user's profile. The password limit follows bcrypt.
type Registration struct {
	Username string `json:"username" validate:"required,min=3,max=64"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	FullName string `json:"full_name" validate:"max=128"`
	Email    string `json:"email" validate:"omitempty,email"`
}
