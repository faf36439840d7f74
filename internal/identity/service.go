package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/teller-bank/teller_bank/internal/validation"
)

// Service manages identity lifecycle.
type Service struct {
	repo Repository
}

// NewService creates a new identity service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Register creates a customer and stores a hashed password.
func (s *Service) Register(ctx context.Context, reg Registration) (User, error) {
	return s.create(ctx, reg, RoleCustomer)
}

// CreateUser creates a user with an explicit role on behalf of an administrator.
func (s *Service) CreateUser(ctx context.Context, reg Registration, role string) (User, error) {
	switch role {
	case RoleCustomer, RoleAdmin:
	default:
		return User{}, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
	return s.create(ctx, reg, role)
}

// List returns every user ordered by creation time.
func (s *Service) List(ctx context.Context) ([]User, error) {
	return s.repo.List(ctx)
}

// EnsureAdmin creates the named admin if no user with that username exists.
func (s *Service) EnsureAdmin(ctx context.Context, username, password string) (User, error) {
	user, err := s.repo.FindByUsername(ctx, username)
	if err == nil {
		if !user.IsAdmin() {
			return User{}, fmt.Errorf("user %s exists without the admin role", username)
		}
		return user, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return User{}, err
	}
	return s.create(ctx, Registration{Username: username, Password: password, FullName: "Administrator"}, RoleAdmin)
}

func (s *Service) create(ctx context.Context, reg Registration, role string) (User, error) {
	reg.Username = strings.TrimSpace(reg.Username)
	reg.Email = strings.TrimSpace(reg.Email)
	reg.FullName = strings.TrimSpace(reg.FullName)
	if err := validation.Struct(reg); err != nil {
		var verr *validation.Error
		if errors.As(err, &verr) && verr.Field == "password" && verr.Tag == "min" {
			return User{}, ErrWeakPassword
		}
		return User{}, fmt.Errorf("%w: %w", ErrInvalidProfile, err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(reg.Password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, err
	}

	user := User{
		ID:           uuid.New().String(),
		Username:     reg.Username,
		FullName:     reg.FullName,
		Email:        reg.Email,
		Role:         role,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}

	if err := s.repo.Create(ctx, user); err != nil {
		return User{}, err
	}

	return user, nil
}

// Authenticate verifies credentials and records the login.
func (s *Service) Authenticate(ctx context.Context, creds Credentials) (User, error) {
	user, err := s.repo.FindByUsername(ctx, strings.TrimSpace(creds.Username))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return User{}, ErrInvalidCredentials
		}
		return User{}, err
	}

	if err := bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(creds.Password)); err != nil {
		return User{}, ErrInvalidCredentials
	}

	now := time.Now().UTC()
	if err := s.repo.TouchLogin(ctx, user.ID, now); err != nil {
		return User{}, err
	}
	user.LastLogin = &now
	return user, nil
}

// FindByID returns a user by identifier.
func (s *Service) FindByID(ctx context.Context, id string) (User, error) {
	return s.repo.FindByID(ctx, id)
}
