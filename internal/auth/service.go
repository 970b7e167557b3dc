package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/stockdesk/stockdesk/internal/platform/httpx"
	"github.com/stockdesk/stockdesk/internal/shared"
)

const hashCost = 10

// Claims are carried by issued tokens.
type Claims struct {
	UserID   int64  `json:"userId"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Service wraps authentication business rules.
type Service struct {
	repo   Repository
	secret []byte
	ttl    time.Duration
	clock  func() time.Time
}

// NewService constructs a new Service signing tokens with secret.
func NewService(repo Repository, secret string, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = 8 * time.Hour
	}
	return &Service{repo: repo, secret: []byte(secret), ttl: ttl, clock: time.Now}
}

// Register creates an operator account.
func (s *Service) Register(ctx context.Context, in Credentials) (RegisterResult, error) {
	in.Username = strings.TrimSpace(in.Username)
	if in.Username == "" || in.Password == "" || in.SecretCode == "" {
		return RegisterResult{}, ErrMissingFields
	}
	if _, err := s.repo.FindByUsername(ctx, in.Username); err == nil {
		return RegisterResult{}, ErrUserExists
	} else if !errors.Is(err, httpx.ErrNotFound) {
		return RegisterResult{}, err
	}
	pw, err := bcrypt.GenerateFromPassword([]byte(in.Password), hashCost)
	if err != nil {
		return RegisterResult{}, fmt.Errorf("hash password: %w", err)
	}
	code, err := bcrypt.GenerateFromPassword([]byte(in.SecretCode), hashCost)
	if err != nil {
		return RegisterResult{}, fmt.Errorf("hash secret code: %w", err)
	}
	user, err := s.repo.Create(ctx, User{Username: in.Username, PasswordHash: string(pw), SecretCodeHash: string(code)})
	if err != nil {
		return RegisterResult{}, err
	}
	return RegisterResult{
		Message: "Utilisateur créé avec succès",
		User:    PublicUser{ID: user.ID, Username: user.Username},
	}, nil
}

// Login checks username, password then secret code and issues a token.
func (s *Service) Login(ctx context.Context, in Credentials) (LoginResult, error) {
	if in.Username == "" || in.Password == "" || in.SecretCode == "" {
		return LoginResult{}, ErrMissingFields
	}
	user, err := s.repo.FindByUsername(ctx, strings.TrimSpace(in.Username))
	if errors.Is(err, httpx.ErrNotFound) {
		return LoginResult{}, shared.ErrInvalidCredentials
	}
	if err != nil {
		return LoginResult{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(in.Password)); err != nil {
		return LoginResult{}, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.SecretCodeHash), []byte(in.SecretCode)); err != nil {
		return LoginResult{}, ErrWrongSecretCode
	}
	token, err := s.IssueToken(user.ID, user.Username)
	if err != nil {
		return LoginResult{}, err
	}
	return LoginResult{
		Message: "Connexion réussie",
		Token:   token,
		User:    PublicUser{ID: user.ID, Username: user.Username},
	}, nil
}

// IssueToken signs an HS256 token for the user.
func (s *Service) IssueToken(userID int64, username string) (string, error) {
	now := s.clock()
	claims := Claims{
		UserID:   userID,
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ParseToken validates a token and returns the caller it identifies.
func (s *Service) ParseToken(raw string) (shared.Principal, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.clock), jwt.WithExpirationRequired())
	if err != nil {
		return shared.Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return shared.Principal{UserID: claims.UserID, Username: claims.Username}, nil
}
