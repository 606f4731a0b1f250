package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/vovakirdan/lanchat-server/internal/store"
)

var (
	// ErrInvalidCredentials is returned when username/password don't match.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserExists is returned when provisioning an existing username.
	ErrUserExists = errors.New("user already exists")
	// ErrInvalidUsername is returned when username doesn't meet constraints.
	ErrInvalidUsername = errors.New("invalid username")
	// ErrInvalidPassword is returned when password doesn't meet constraints.
	ErrInvalidPassword = errors.New("invalid password")
)

// Service provides credential checks and account provisioning.
type Service struct {
	store     store.UserStore
	jwtConfig *JWTConfig
}

// NewService creates a new authentication service.
func NewService(userStore store.UserStore, jwtConfig *JWTConfig) *Service {
	return &Service{
		store:     userStore,
		jwtConfig: jwtConfig,
	}
}

// VerifyCredentials returns the user when password matches.
func (s *Service) VerifyCredentials(ctx context.Context, username, password string) (*store.User, error) {
	user, err := s.store.GetUserByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	if err := ComparePassword(user.PasswordHash, password); err != nil {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// Login validates credentials, records the login as last seen and returns a JWT token.
func (s *Service) Login(ctx context.Context, username, password string) (string, *store.User, error) {
	user, err := s.VerifyCredentials(ctx, username, password)
	if err != nil {
		return "", nil, err
	}

	if err := s.store.TouchLastSeen(ctx, user.Username); err != nil {
		return "", nil, fmt.Errorf("touch last seen: %w", err)
	}

	token, err := GenerateToken(s.jwtConfig, user.ID, user.Username)
	if err != nil {
		return "", nil, fmt.Errorf("generate token: %w", err)
	}
	return token, user, nil
}

// ChangePassword replaces the password after verifying the current one.
func (s *Service) ChangePassword(ctx context.Context, username, currentPassword, newPassword string) error {
	if err := validatePassword(newPassword); err != nil {
		return err
	}
	user, err := s.VerifyCredentials(ctx, username, currentPassword)
	if err != nil {
		return err
	}
	return s.setHash(ctx, user.Username, newPassword)
}

// SetPassword replaces the password without checking the current one.
// Used by operator tooling only.
func (s *Service) SetPassword(ctx context.Context, username, newPassword string) error {
	if err := validatePassword(newPassword); err != nil {
		return err
	}
	return s.setHash(ctx, strings.TrimSpace(username), newPassword)
}

func (s *Service) setHash(ctx context.Context, username, password string) error {
	hashed, err := HashPassword(password)
	if err != nil {
		return err
	}
	if err := s.store.UpdatePassword(ctx, username, hashed); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

// Provision creates an account. It reports created=false without error when
// the username already exists, so bulk seeding can be re-run safely.
func (s *Service) Provision(ctx context.Context, username, password string) (bool, error) {
	username = strings.TrimSpace(username)
	if err := validateUsername(username); err != nil {
		return false, err
	}
	if err := validatePassword(password); err != nil {
		return false, err
	}

	hashed, err := HashPassword(password)
	if err != nil {
		return false, err
	}

	if _, err := s.store.CreateUser(ctx, username, hashed); err != nil {
		if errors.Is(err, store.ErrUserExists) {
			return false, nil
		}
		return false, fmt.Errorf("create user: %w", err)
	}
	return true, nil
}

// ValidateToken validates a JWT token and returns the claims.
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	return ValidateToken(s.jwtConfig, tokenString)
}

func validateUsername(username string) error {
	if len(username) < 2 || len(username) > 32 {
		return ErrInvalidUsername
	}
	// "broadcast" addresses the shared channel and can't be a person.
	if strings.EqualFold(username, store.BroadcastTarget) {
		return ErrInvalidUsername
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) < 6 {
		return ErrInvalidPassword
	}
	return nil
}
