package auth

import (
	"context"
	"fmt"

	"whytrade-api/internal/database"
	"whytrade-api/internal/logging"
)

// UserStore is the persistence surface the auth service needs
type UserStore interface {
	CreateUser(ctx context.Context, user *database.User) error
	GetUserByID(ctx context.Context, id string) (*database.User, error)
	GetUserByEmail(ctx context.Context, email string) (*database.User, error)
	EmailExists(ctx context.Context, email string) (bool, error)
}

var _ UserStore = (*database.Repository)(nil)

// Service handles registration, login, and token validation
type Service struct {
	store     UserStore
	passwords *PasswordManager
	tokens    *JWTManager
	log       *logging.Logger
}

// NewService creates an auth service
func NewService(store UserStore, cfg Config) *Service {
	return &Service{
		store:     store,
		passwords: NewPasswordManager(cfg.BcryptCost),
		tokens:    NewJWTManager(cfg.JWTSecret, cfg.AccessTokenDuration),
		log:       logging.WithComponent("auth"),
	}
}

// Register creates a new user account
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*UserResponse, error) {
	exists, err := s.store.EmailExists(ctx, req.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to check email: %w", err)
	}
	if exists {
		return nil, ErrEmailExists
	}

	hash, err := s.passwords.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &database.User{
		Email:        req.Email,
		PasswordHash: hash,
		FullName:     req.FullName,
		IsActive:     true,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		// Two concurrent registrations can pass the existence check; the
		// unique index on email decides the race.
		if database.IsUniqueViolation(err) {
			return nil, ErrEmailExists
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.log.Info("user registered: %s", user.Email)
	resp := userResponse(user)
	return &resp, nil
}

// Login verifies credentials and issues an access token
func (s *Service) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	user, err := s.store.GetUserByEmail(ctx, req.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if user == nil || !s.passwords.VerifyPassword(req.Password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, ErrInactiveUser
	}

	token, err := s.tokens.GenerateAccessToken(user.ID, user.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	s.log.Info("user logged in: %s", user.Email)
	return &LoginResponse{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresIn:   int64(s.tokens.TokenDuration().Seconds()),
		User:        userResponse(user),
	}, nil
}

// CurrentUser returns the account behind a validated token's user ID
func (s *Service) CurrentUser(ctx context.Context, userID string) (*UserResponse, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if user == nil {
		return nil, ErrUnauthorized
	}
	if !user.IsActive {
		return nil, ErrInactiveUser
	}
	resp := userResponse(user)
	return &resp, nil
}

// ValidateToken validates an access token and returns its claims
func (s *Service) ValidateToken(tokenString string) (*UserClaims, error) {
	return s.tokens.ValidateAccessToken(tokenString)
}

func userResponse(user *database.User) UserResponse {
	return UserResponse{
		ID:        user.ID,
		Email:     user.Email,
		FullName:  user.FullName,
		IsActive:  user.IsActive,
		CreatedAt: user.CreatedAt,
	}
}
