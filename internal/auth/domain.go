package auth

import (
	"fmt"
	"time"

	"github.com/stockdesk/stockdesk/internal/platform/httpx"
)

var (
	ErrMissingFields   = fmt.Errorf("%w: username, password and CodeSecret are required", httpx.ErrValidation)
	ErrUserExists      = fmt.Errorf("%w: user already exists", httpx.ErrDuplicate)
	ErrWrongSecretCode = fmt.Errorf("%w: incorrect secret code", httpx.ErrUnauthorized)
	ErrMissingToken    = fmt.Errorf("%w: missing token", httpx.ErrUnauthorized)
	ErrInvalidToken    = fmt.Errorf("%w: invalid or expired token", httpx.ErrUnauthorized)
	errUserNotFound    = fmt.Errorf("%w: user", httpx.ErrNotFound)
)

// User represents an operator account.
type User struct {
	ID             int64
	Username       string
	PasswordHash   string
	SecretCodeHash string
	CreatedAt      time.Time
}

// Credentials is the body of register and login calls.
type Credentials struct {
	Username   string `json:"username"`
	Password   string `json:"password"`
	SecretCode string `json:"CodeSecret"`
}

// PublicUser is the user shape returned to clients.
type PublicUser struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

type RegisterResult struct {
	Message string     `json:"message"`
	User    PublicUser `json:"user"`
}

type LoginResult struct {
	Message string     `json:"message"`
	Token   string     `json:"token"`
	User    PublicUser `json:"user"`
}
