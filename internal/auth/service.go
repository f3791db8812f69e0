package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/vovakirdan/legacy-gateway/internal/store"
)

var (
	// ErrInvalidCredentials is returned when email/password don't match.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserExists is returned when the email is already registered.
	ErrUserExists = errors.New("user already exists")
	// ErrInvalidUsername is returned when username doesn't meet constraints.
	ErrInvalidUsername = errors.New("invalid username")
	// ErrInvalidEmail is returned for malformed emails.
	ErrInvalidEmail = errors.New("invalid email")
	// ErrInvalidPassword is returned when password doesn't meet constraints.
	ErrInvalidPassword = errors.New("invalid password")
	// ErrInvalidToken is returned when a token fails validation or names no account.
	ErrInvalidToken = errors.New("invalid token")
)

// Service provides authentication operations.
type Service struct {
	store     store.AccountStore
	jwtConfig *JWTConfig
}

// NewService creates a new authentication service.
func NewService(accounts store.AccountStore, jwtConfig *JWTConfig) *Service {
	return &Service{
		store:     accounts,
		jwtConfig: jwtConfig,
	}
}

// Register creates an account with a hashed password and returns a token.
func (s *Service) Register(ctx context.Context, username, email, password string) (string, *store.Account, error) {
	username = strings.TrimSpace(username)
	if len(username) < 2 || len(username) > 32 {
		return "", nil, ErrInvalidUsername
	}
	email = strings.TrimSpace(email)
	if _, err := mail.ParseAddress(email); err != nil {
		return "", nil, ErrInvalidEmail
	}
	if err := validatePassword(password); err != nil {
		return "", nil, err
	}

	if existing, err := s.store.GetAccountByEmail(ctx, email); err == nil && existing != nil {
		return "", nil, ErrUserExists
	}

	hashed, err := hashPassword(password)
	if err != nil {
		return "", nil, err
	}

	account, err := s.store.CreateAccount(ctx, username, email, hashed)
	if err != nil {
		return "", nil, fmt.Errorf("create account: %w", err)
	}

	token, err := GenerateToken(s.jwtConfig, account.ID, account.Username)
	if err != nil {
		return "", nil, fmt.Errorf("generate token: %w", err)
	}
	return token, account, nil
}

// Login validates credentials and returns a token.
func (s *Service) Login(ctx context.Context, email, password string) (string, *store.Account, error) {
	account, err := s.store.GetAccountByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		return "", nil, ErrInvalidCredentials
	}
	if err := checkPassword(account.PasswordHash, password); err != nil {
		return "", nil, err
	}

	token, err := GenerateToken(s.jwtConfig, account.ID, account.Username)
	if err != nil {
		return "", nil, fmt.Errorf("generate token: %w", err)
	}
	return token, account, nil
}

// AccountByToken validates a token as sent by clients (raw or with a
// "Bearer " prefix) and loads its account.
func (s *Service) AccountByToken(ctx context.Context, token string) (*store.Account, error) {
	token = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(token), "Bearer "))
	if token == "" {
		return nil, ErrInvalidToken
	}

	claims, err := ValidateToken(s.jwtConfig, token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	account, err := s.store.GetAccountByID(ctx, claims.AccountID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, fmt.Errorf("load account: %w", err)
	}
	return account, nil
}
