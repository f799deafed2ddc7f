package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"athlo/config"
	apimiddleware "athlo/internal/delivery/api/middleware"
	"athlo/internal/delivery/api/router"
	"athlo/internal/delivery/api/router/handler"
	deliverycontext "athlo/internal/delivery/context"
	"athlo/internal/domain/entity"
	domainerrors "athlo/internal/domain/errors"
	"athlo/internal/domain/service"
	"athlo/internal/infra/auth"
	"athlo/internal/infra/metrics"
	"athlo/internal/infra/persistence/jsonstore"
	"athlo/internal/usecase/impl"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocloud.dev/blob/memblob"
	"golang.org/x/crypto/bcrypt"
)

type stubVerifier struct {
	identities map[string]*service.FederatedIdentity
}

func (v *stubVerifier) Verify(_ context.Context, idToken string) (*service.FederatedIdentity, error) {
	identity, ok := v.identities[idToken]
	if !ok {
		return nil, domainerrors.ErrInvalidToken
	}

	return identity, nil
}

func (v *stubVerifier) Provider() entity.ProviderType { return entity.ProviderTypeGoogle }

type discardPublisher struct{}

func (discardPublisher) PublishAuthEvent(context.Context, *entity.AuthEvent) error { return nil }
func (discardPublisher) Close() error                                             { return nil }

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string          `json:"code"`
		Message string          `json:"message"`
		Details json.RawMessage `json:"details"`
	} `json:"error"`
	Meta struct {
		RequestID string `json:"request_id"`
	} `json:"meta"`
}

type testServer struct {
	echo *echo.Echo
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	cfg := &config.Config{
		Auth: &config.AuthConfig{
			SecretKey:         "api-test-secret",
			SigningAlgorithm:  "HS256",
			AccessTokenTTL:    15 * time.Minute,
			RefreshTokenTTL:   7 * 24 * time.Hour,
			BcryptCost:        bcrypt.MinCost,
			MinPasswordLength: 8,
		},
		GoogleOAuth: &config.GoogleOAuthConfig{},
		Metrics:     &config.MetricsConfig{Enabled: true, Path: "/metrics"},
	}
	cfg.Env.Version = "test"
	cfg.Env.Debug = true
	cfg.HTTP.MaxRequestBodySize = "100KB"

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	bucket := memblob.OpenBucket(nil)
	t.Cleanup(func() { _ = bucket.Close() })

	users := jsonstore.NewUserRepository(bucket)
	tokens := jsonstore.NewRefreshTokenRepository(bucket)
	hasher := auth.NewBcryptHasher(cfg)
	tokenSvc, err := auth.NewJWTService(cfg, tokens)
	require.NoError(t, err)
	m := metrics.New(cfg)

	verifier := &stubVerifier{identities: map[string]*service.FederatedIdentity{
		"google-ok": {Subject: "g-1", Email: "g@x.com", Name: "Gee", EmailVerified: true},
	}}

	authUC := impl.NewAuthService(impl.AuthServiceParams{
		UserRepo:         users,
		RefreshTokenRepo: tokens,
		Hasher:           hasher,
		TokenService:     tokenSvc,
		Verifier:         verifier,
		Publisher:        discardPublisher{},
		Metrics:          m,
		Config:           cfg,
		Logger:           logger,
	})
	userUC := impl.NewUserService(impl.UserServiceParams{
		UserRepo:         users,
		RefreshTokenRepo: tokens,
		Hasher:           hasher,
		Publisher:        discardPublisher{},
		Metrics:          m,
		Config:           cfg,
		Logger:           logger,
	})

	e := newEcho(ServerParams{
		Cfg:     cfg,
		Logger:  logger,
		Metrics: m,
		RouterParams: router.RouterParams{
			AuthHandler:    handler.NewAuthHandler(handler.AuthHandlerParams{AuthUC: authUC, Logger: logger}),
			UserHandler:    handler.NewUserHandler(handler.UserHandlerParams{UserUC: userUC, Logger: logger}),
			HealthHandler:  handler.NewHealthHandler(cfg),
			AuthMiddleware: apimiddleware.NewAuthMiddleware(apimiddleware.AuthMiddlewareParams{TokenService: tokenSvc, UserUC: userUC}),
		},
	})

	return &testServer{echo: e}
}

func (s *testServer) do(t *testing.T, method, path string, body any, accessToken string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if reader != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if accessToken != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+accessToken)
	}
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)

	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())

	return env
}

func decodeData[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var out T
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &out))

	return out
}

func assertError(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) {
	t.Helper()

	assert.Equal(t, status, rec.Code, rec.Body.String())
	env := decode(t, rec)
	require.NotNil(t, env.Error, rec.Body.String())
	assert.Equal(t, code, env.Error.Code)
	assert.NotEmpty(t, env.Meta.RequestID)
}

func (s *testServer) registerAndLogin(t *testing.T, email, password string) handler.LoginResponse {
	t.Helper()

	rec := s.do(t, http.MethodPost, "/auth/register", handler.RegisterRequest{Email: email, Password: password, Name: "Tester"}, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodPost, "/auth/login", handler.LoginRequest{Email: email, Password: password}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	return decodeData[handler.LoginResponse](t, rec)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(deliverycontext.HeaderXRequestID, "req-123")
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "req-123", rec.Header().Get(deliverycontext.HeaderXRequestID))

	env := decode(t, rec)
	assert.Equal(t, "req-123", env.Meta.RequestID)
	assert.JSONEq(t, `{"status":"healthy","version":"test"}`, string(env.Data))
}

func TestRegisterResponseShape(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/auth/register", handler.RegisterRequest{Email: "a@x.com", Password: "password1", Name: "Ana"}, "")
	require.Equal(t, http.StatusCreated, rec.Code)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &fields))
	assert.Equal(t, "a@x.com", fields["email"])
	assert.Equal(t, "Ana", fields["name"])
	assert.Equal(t, "metric", fields["preferred_units"])
	assert.Equal(t, true, fields["is_active"])
	assert.Equal(t, "email", fields["auth_provider"])
	assert.NotEmpty(t, fields["id"])
	assert.NotEmpty(t, fields["created_at"])
	assert.NotContains(t, fields, "password_hash")
	assert.NotContains(t, fields, "access_token")
}

func TestRegisterErrors(t *testing.T) {
	s := newTestServer(t)
	s.registerAndLogin(t, "taken@x.com", "password1")

	t.Run("duplicate email", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/auth/register", handler.RegisterRequest{Email: "taken@x.com", Password: "password1", Name: "Again"}, "")
		assertError(t, rec, http.StatusConflict, "DUPLICATE_EMAIL")
	})

	t.Run("weak password", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/auth/register", handler.RegisterRequest{Email: "weak@x.com", Password: "short", Name: "Weak"}, "")
		assertError(t, rec, http.StatusBadRequest, "WEAK_PASSWORD")
	})

	t.Run("invalid email", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/auth/register", handler.RegisterRequest{Email: "not-an-email", Password: "password1", Name: "Bad"}, "")
		assertError(t, rec, http.StatusBadRequest, "VALIDATION_FAILED")

		var details map[string]string
		require.NoError(t, json.Unmarshal(decode(t, rec).Error.Details, &details))
		assert.Equal(t, "email", details["email"])
	})

	t.Run("malformed body", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/auth/register", `{"email":`, "")
		assertError(t, rec, http.StatusBadRequest, "VALIDATION_FAILED")
	})
}

func TestLoginRefreshLogoutFlow(t *testing.T) {
	s := newTestServer(t)
	login := s.registerAndLogin(t, "flow@x.com", "password1")

	assert.Equal(t, "bearer", login.TokenType)
	assert.Equal(t, int64(900), login.ExpiresIn)
	assert.Equal(t, "flow@x.com", login.User.Email)
	assert.NotEmpty(t, login.AccessToken)
	assert.NotEmpty(t, login.RefreshToken)

	rec := s.do(t, http.MethodGet, "/users/me", nil, login.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, login.User.ID, decodeData[handler.UserResponse](t, rec).ID)

	rec = s.do(t, http.MethodPost, "/auth/refresh", handler.RefreshTokenRequest{RefreshToken: login.RefreshToken}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rotated := decodeData[handler.TokenResponse](t, rec)
	assert.NotEqual(t, login.RefreshToken, rotated.RefreshToken)
	assert.Equal(t, "bearer", rotated.TokenType)

	rec = s.do(t, http.MethodPost, "/auth/refresh", handler.RefreshTokenRequest{RefreshToken: login.RefreshToken}, "")
	assertError(t, rec, http.StatusUnauthorized, "REVOKED_REFRESH_TOKEN")

	rec = s.do(t, http.MethodPost, "/auth/logout", handler.RefreshTokenRequest{RefreshToken: rotated.RefreshToken}, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(t, http.MethodPost, "/auth/logout", handler.RefreshTokenRequest{RefreshToken: "never-issued"}, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(t, http.MethodPost, "/auth/refresh", handler.RefreshTokenRequest{RefreshToken: rotated.RefreshToken}, "")
	assertError(t, rec, http.StatusUnauthorized, "REVOKED_REFRESH_TOKEN")

	rec = s.do(t, http.MethodPost, "/auth/refresh", handler.RefreshTokenRequest{RefreshToken: "never-issued"}, "")
	assertError(t, rec, http.StatusUnauthorized, "INVALID_REFRESH_TOKEN")
}

func TestLoginRejected(t *testing.T) {
	s := newTestServer(t)
	s.registerAndLogin(t, "a@x.com", "password1")

	rec := s.do(t, http.MethodPost, "/auth/login", handler.LoginRequest{Email: "a@x.com", Password: "wrong-pass"}, "")
	assertError(t, rec, http.StatusUnauthorized, "INVALID_CREDENTIALS")

	rec = s.do(t, http.MethodPost, "/auth/login", handler.LoginRequest{Email: "ghost@x.com", Password: "password1"}, "")
	assertError(t, rec, http.StatusUnauthorized, "INVALID_CREDENTIALS")
}

func TestBearerAuthentication(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name   string
		header string
	}{
		{name: "missing header", header: ""},
		{name: "wrong scheme", header: "Basic dXNlcjpwYXNz"},
		{name: "empty token", header: "Bearer "},
		{name: "garbage token", header: "Bearer not.a.jwt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/users/me", nil)
			if tt.header != "" {
				req.Header.Set(echo.HeaderAuthorization, tt.header)
			}
			rec := httptest.NewRecorder()
			s.echo.ServeHTTP(rec, req)

			assertError(t, rec, http.StatusUnauthorized, "INVALID_ACCESS_TOKEN")
		})
	}
}

func TestUpdateProfile(t *testing.T) {
	s := newTestServer(t)
	login := s.registerAndLogin(t, "p@x.com", "password1")

	rec := s.do(t, http.MethodPut, "/users/me", map[string]string{"preferred_units": "imperial", "name": "Pat"}, login.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	user := decodeData[handler.UserResponse](t, rec)
	assert.Equal(t, "imperial", user.PreferredUnits)
	assert.Equal(t, "Pat", user.Name)

	rec = s.do(t, http.MethodPut, "/users/me", map[string]string{"preferred_units": "nautical"}, login.AccessToken)
	assertError(t, rec, http.StatusBadRequest, "VALIDATION_FAILED")
}

func TestChangePassword(t *testing.T) {
	s := newTestServer(t)
	login := s.registerAndLogin(t, "c@x.com", "password1")

	rec := s.do(t, http.MethodPut, "/users/me/password", handler.ChangePasswordRequest{CurrentPassword: "wrong-pass", NewPassword: "new-password"}, login.AccessToken)
	assertError(t, rec, http.StatusUnauthorized, "INVALID_CREDENTIALS")

	rec = s.do(t, http.MethodPut, "/users/me/password", handler.ChangePasswordRequest{CurrentPassword: "password1", NewPassword: "new-password"}, login.AccessToken)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(t, http.MethodPost, "/auth/login", handler.LoginRequest{Email: "c@x.com", Password: "new-password"}, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDeactivateAndDelete(t *testing.T) {
	s := newTestServer(t)

	deactivated := s.registerAndLogin(t, "d@x.com", "password1")
	rec := s.do(t, http.MethodPost, "/users/me/deactivate", nil, deactivated.AccessToken)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(t, http.MethodGet, "/users/me", nil, deactivated.AccessToken)
	assertError(t, rec, http.StatusForbidden, "ACCOUNT_DEACTIVATED")

	rec = s.do(t, http.MethodPost, "/auth/login", handler.LoginRequest{Email: "d@x.com", Password: "password1"}, "")
	assertError(t, rec, http.StatusForbidden, "ACCOUNT_DEACTIVATED")

	deleted := s.registerAndLogin(t, "x@x.com", "password1")
	rec = s.do(t, http.MethodDelete, "/users/me", nil, deleted.AccessToken)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(t, http.MethodGet, "/users/me", nil, deleted.AccessToken)
	assertError(t, rec, http.StatusUnauthorized, "INVALID_ACCESS_TOKEN")

	rec = s.do(t, http.MethodPost, "/auth/refresh", handler.RefreshTokenRequest{RefreshToken: deleted.RefreshToken}, "")
	assertError(t, rec, http.StatusUnauthorized, "INVALID_REFRESH_TOKEN")
}

func TestGoogleLogin(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/oauth/google", handler.GoogleLoginRequest{IDToken: "google-ok"}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	login := decodeData[handler.LoginResponse](t, rec)
	assert.Equal(t, "g@x.com", login.User.Email)
	assert.Equal(t, "google", login.User.AuthProvider)

	rec = s.do(t, http.MethodPost, "/oauth/google", handler.GoogleLoginRequest{IDToken: "forged"}, "")
	assertError(t, rec, http.StatusUnauthorized, "INVALID_TOKEN")

	rec = s.do(t, http.MethodPost, "/oauth/google", map[string]string{}, "")
	assertError(t, rec, http.StatusBadRequest, "VALIDATION_FAILED")
}

func TestUnknownRoute(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/nope", nil, "")
	assertError(t, rec, http.StatusNotFound, "HTTP_ERROR")
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)
	s.registerAndLogin(t, "m@x.com", "password1")
	s.do(t, http.MethodPost, "/auth/login", handler.LoginRequest{Email: "m@x.com", Password: "wrong-pass"}, "")

	rec := s.do(t, http.MethodGet, "/metrics", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, `athlo_http_requests_total{method="POST",route="/auth/login",status="200"} 1`)
	assert.Contains(t, body, `athlo_http_requests_total{method="POST",route="/auth/login",status="401"} 1`)
	assert.Contains(t, body, `athlo_auth_operations_total{operation="login",outcome="INVALID_CREDENTIALS"} 1`)
	assert.Contains(t, body, `athlo_auth_operations_total{operation="register",outcome="success"} 1`)
}
