package auth

import (
	"time"
)

// UserClaims represents the JWT claims for a user
type UserClaims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

// RegisterRequest represents a user registration request
type RegisterRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
	FullName string `json:"full_name" binding:"required,min=1,max=100"`
}

// LoginRequest represents a user login request
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse represents a successful login response
type LoginResponse struct {
	AccessToken string       `json:"access_token"`
	TokenType   string       `json:"token_type"` // Always "bearer"
	ExpiresIn   int64        `json:"expires_in"` // Seconds until expiry
	User        UserResponse `json:"user"`
}

// UserResponse represents user data returned to the client; the password
// hash never leaves the server.
type UserResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// Config holds authentication configuration
type Config struct {
	JWTSecret           string
	AccessTokenDuration time.Duration
	BcryptCost          int
}

// AuthError is an authentication error with a stable code
type AuthError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e AuthError) Error() string {
	return e.Message
}

// Common authentication errors
var (
	ErrInvalidCredentials = AuthError{Code: "INVALID_CREDENTIALS", Message: "incorrect email or password"}
	ErrEmailExists        = AuthError{Code: "EMAIL_EXISTS", Message: "email already registered"}
	ErrInvalidToken       = AuthError{Code: "INVALID_TOKEN", Message: "invalid or expired token"}
	ErrTokenExpired       = AuthError{Code: "TOKEN_EXPIRED", Message: "token has expired"}
	ErrInactiveUser       = AuthError{Code: "INACTIVE_USER", Message: "account is inactive"}
	ErrUnauthorized       = AuthError{Code: "UNAUTHORIZED", Message: "unauthorized access"}
	ErrWeakPassword       = AuthError{Code: "WEAK_PASSWORD", Message: "password does not meet requirements"}
)
