package httpapi

import (
	"context"
	"net/http"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"posledger/backend/internal/domain"
	"posledger/backend/internal/store/memory"
)

func TestLoginIssuesParsableToken(t *testing.T) {
	repo := memory.New()
	createTestUser(t, repo, "admin", "admin123", domain.RoleAdmin, true)
	auth := NewAuthManager(testSecret, time.Hour, repo)

	resp, err := auth.Login(context.Background(), domain.LoginRequest{Username: " Admin ", Password: "admin123"})
	require.NoError(t, err)
	require.Equal(t, domain.RoleAdmin, resp.Role)
	require.NotEmpty(t, resp.ExpiresAt)

	actor, err := auth.ParseToken(resp.AccessToken)
	require.NoError(t, err)
	require.Equal(t, "admin", actor.Username)
	require.Equal(t, domain.RoleAdmin, actor.Role)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	repo := memory.New()
	createTestUser(t, repo, "admin", "admin123", domain.RoleAdmin, true)
	createTestUser(t, repo, "lama", "lama1234", domain.RoleCashier, false)
	auth := NewAuthManager(testSecret, time.Hour, repo)

	_, err := auth.Login(context.Background(), domain.LoginRequest{Username: "admin", Password: "wrong"})
	require.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = auth.Login(context.Background(), domain.LoginRequest{Username: "ghost", Password: "admin123"})
	require.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = auth.Login(context.Background(), domain.LoginRequest{Username: "lama", Password: "lama1234"})
	require.ErrorIs(t, err, ErrInactiveAccount)
}

func TestLoginRejectsPlainTextStoredPassword(t *testing.T) {
	repo := memory.New()
	require.NoError(t, repo.CreateUser(context.Background(), domain.UserAccount{
		Username: "legacy",
		Password: "plain-password",
		Role:     domain.RoleCashier,
		Active:   true,
	}))
	auth := NewAuthManager(testSecret, time.Hour, repo)

	_, err := auth.Login(context.Background(), domain.LoginRequest{Username: "legacy", Password: "plain-password"})
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestParseTokenRejectsForeignTokens(t *testing.T) {
	auth := NewAuthManager(testSecret, time.Hour, memory.New())
	other := NewAuthManager("another-secret-that-is-long-enough!!", time.Hour, memory.New())

	token, err := other.Issue(domain.Actor{Username: "admin", Role: domain.RoleAdmin}, time.Now().Add(time.Hour))
	require.NoError(t, err)
	_, err = auth.ParseToken(token)
	require.ErrorIs(t, err, ErrInvalidToken)

	expired, err := auth.Issue(domain.Actor{Username: "admin", Role: domain.RoleAdmin}, time.Now().Add(-time.Minute))
	require.NoError(t, err)
	_, err = auth.ParseToken(expired)
	require.ErrorIs(t, err, ErrInvalidToken)

	unknownRole, err := auth.Issue(domain.Actor{Username: "admin", Role: "owner"}, time.Now().Add(time.Hour))
	require.NoError(t, err)
	_, err = auth.ParseToken(unknownRole)
	require.ErrorIs(t, err, ErrInvalidToken)

	none := jwtlib.NewWithClaims(jwtlib.SigningMethodNone, jwtlib.MapClaims{"sub": "admin", "role": "admin", "iss": tokenIssuer})
	unsigned, err := none.SignedString(jwtlib.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = auth.ParseToken(unsigned)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestLoginEndpoint(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/auth/login", "", domain.LoginRequest{Username: "admin", Password: "admin123"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decodeBody[domain.LoginResponse](t, rec)
	require.NotEmpty(t, resp.AccessToken)

	rec = env.do(t, http.MethodGet, "/api/v1/users", resp.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/auth/login", "", domain.LoginRequest{Username: "admin", Password: "nope"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}
