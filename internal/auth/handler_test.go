package auth_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/stockdesk/stockdesk/internal/auth"
	"github.com/stockdesk/stockdesk/internal/platform/httpx"
	"github.com/stockdesk/stockdesk/internal/shared"
	_ "github.com/stockdesk/stockdesk/testing"
)

type stubRepo struct {
	users map[string]auth.User
}

func newStubRepo() *stubRepo {
	return &stubRepo{users: make(map[string]auth.User)}
}

func (s *stubRepo) FindByUsername(ctx context.Context, username string) (*auth.User, error) {
	u, ok := s.users[username]
	if !ok {
		return nil, httpx.ErrNotFound
	}
	return &u, nil
}

func (s *stubRepo) Create(ctx context.Context, user auth.User) (*auth.User, error) {
	if _, ok := s.users[user.Username]; ok {
		return nil, auth.ErrUserExists
	}
	user.ID = int64(len(s.users) + 1)
	s.users[user.Username] = user
	return &user, nil
}

func newRouter(svc *auth.Service) http.Handler {
	r := chi.NewRouter()
	r.Route("/api/auth", auth.NewHandler(nil, svc).MountRoutes)
	r.With(svc.Middleware).Get("/api/me", func(w http.ResponseWriter, r *http.Request) {
		p, _ := shared.PrincipalFromContext(r.Context())
		httpx.JSON(w, http.StatusOK, map[string]any{"id": p.UserID, "username": p.Username})
	})
	return r
}

func post(t *testing.T, h http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.RemoteAddr = "10.0.0.1:1234"
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestRegisterAndLogin(t *testing.T) {
	repo := newStubRepo()
	svc := auth.NewService(repo, "s3cret", time.Hour)
	router := newRouter(svc)

	rr := post(t, router, "/api/auth/register", `{"username":"nadia","password":"pw-123","CodeSecret":"4321"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	require.Contains(t, rr.Body.String(), `"username":"nadia"`)
	require.NotEqual(t, "pw-123", repo.users["nadia"].PasswordHash)
	require.NotEqual(t, "4321", repo.users["nadia"].SecretCodeHash)

	rr = post(t, router, "/api/auth/register", `{"username":"nadia","password":"other","CodeSecret":"1"}`)
	require.Equal(t, http.StatusConflict, rr.Code)

	rr = post(t, router, "/api/auth/login", `{"username":"nadia","password":"pw-123","CodeSecret":"4321"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var res auth.LoginResult
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&res))
	require.NotEmpty(t, res.Token)

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.Header.Set("Authorization", "Bearer "+res.Token)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"username":"nadia"`)
}

func TestLoginFailures(t *testing.T) {
	repo := newStubRepo()
	svc := auth.NewService(repo, "s3cret", time.Hour)
	_, err := svc.Register(context.Background(), auth.Credentials{Username: "omar", Password: "pw", SecretCode: "99"})
	require.NoError(t, err)
	router := newRouter(svc)

	cases := map[string]int{
		`{"username":"omar","password":"pw"}`:                    http.StatusBadRequest,
		`{"username":"ghost","password":"pw","CodeSecret":"99"}`: http.StatusUnauthorized,
		`{"username":"omar","password":"bad","CodeSecret":"99"}`: http.StatusUnauthorized,
		`{"username":"omar","password":"pw","CodeSecret":"00"}`:  http.StatusUnauthorized,
	}
	for body, status := range cases {
		rr := post(t, router, "/api/auth/login", body)
		require.Equal(t, status, rr.Code, body)
	}

	_, err = svc.Login(context.Background(), auth.Credentials{Username: "omar", Password: "pw", SecretCode: "00"})
	require.ErrorIs(t, err, auth.ErrWrongSecretCode)
	_, err = svc.Login(context.Background(), auth.Credentials{Username: "omar", Password: "nope", SecretCode: "99"})
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestLoginIsRateLimited(t *testing.T) {
	svc := auth.NewService(newStubRepo(), "s3cret", time.Hour)
	router := newRouter(svc)

	var last int
	for i := 0; i < 11; i++ {
		last = post(t, router, "/api/auth/login", `{"username":"x","password":"y","CodeSecret":"z"}`).Code
	}
	require.Equal(t, http.StatusTooManyRequests, last)
}

func TestMiddlewareRejectsBadTokens(t *testing.T) {
	svc := auth.NewService(newStubRepo(), "s3cret", time.Hour)
	router := newRouter(svc)

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.Claims{
		UserID: 1,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	})
	expiredToken, err := expired.SignedString([]byte("s3cret"))
	require.NoError(t, err)

	foreign, err := auth.NewService(newStubRepo(), "other", time.Hour).IssueToken(1, "eve")
	require.NoError(t, err)

	headers := []string{"", "Bearer", "Token abc", "Bearer not-a-jwt", "Bearer " + expiredToken, "Bearer " + foreign}
	for _, h := range headers {
		req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
		if h != "" {
			req.Header.Set("Authorization", h)
		}
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		require.Equal(t, http.StatusUnauthorized, rr.Code, h)
	}
}
