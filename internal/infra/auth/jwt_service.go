package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"time"

	"athlo/config"
	"athlo/internal/domain/entity"
	"athlo/internal/domain/repository"
	"athlo/internal/domain/service"
	"athlo/internal/errors"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	accessTokenType   = "access"
	refreshTokenBytes = 32

	// A fresh 256-bit token colliding is not expected; the retry covers a
	// broken entropy source surfacing as a unique violation.
	refreshCreateAttempts = 3
)

// accessClaims is the payload of a signed access token.
type accessClaims struct {
	Type string `json:"type"`
	jwt.RegisteredClaims
}

// jwtService is a concrete implementation of the TokenService interface using the JWT standard.
type jwtService struct {
	secret     []byte
	method     jwt.SigningMethod
	accessTTL  time.Duration
	refreshTTL time.Duration
	tokens     repository.RefreshTokenRepository
	now        func() time.Time
}

// NewJWTService is the constructor for jwtService.
// Access tokens are stateless JWTs; refresh tokens are opaque strings stored through tokens.
func NewJWTService(cfg *config.Config, tokens repository.RefreshTokenRepository) (service.TokenService, error) {
	return newJWTService(cfg, tokens, time.Now)
}

func newJWTService(cfg *config.Config, tokens repository.RefreshTokenRepository, now func() time.Time) (*jwtService, error) {
	if cfg == nil || cfg.Auth == nil {
		return nil, errors.New("auth configuration must be provided")
	}
	if cfg.Auth.SecretKey == "" {
		return nil, errors.New("jwt secret must be provided")
	}

	method := jwt.GetSigningMethod(cfg.Auth.SigningAlgorithm)
	if _, ok := method.(*jwt.SigningMethodHMAC); !ok {
		return nil, errors.Errorf("unsupported signing algorithm %q", cfg.Auth.SigningAlgorithm)
	}

	return &jwtService{
		secret:     []byte(cfg.Auth.SecretKey),
		method:     method,
		accessTTL:  cfg.Auth.AccessTokenTTL,
		refreshTTL: cfg.Auth.RefreshTokenTTL,
		tokens:     tokens,
		now:        now,
	}, nil
}

// IssueAccess signs an access token whose subject is the user id.
func (s *jwtService) IssueAccess(userID uuid.UUID) (string, error) {
	issuedAt := s.now()
	claims := accessClaims{
		Type: accessTokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(s.accessTTL)),
		},
	}

	signed, err := jwt.NewWithClaims(s.method, claims).SignedString(s.secret)
	if err != nil {
		return "", errors.Wrap(err, "failed to sign access token")
	}

	return signed, nil
}

// IssueRefresh creates and stores a new refresh token for the user.
func (s *jwtService) IssueRefresh(ctx context.Context, userID uuid.UUID) (string, *entity.RefreshToken, error) {
	var lastErr error
	for range refreshCreateAttempts {
		raw, err := randomToken()
		if err != nil {
			return "", nil, err
		}

		now := s.now().UTC()
		record := &entity.RefreshToken{
			ID:        uuid.New(),
			UserID:    userID,
			Token:     raw,
			ExpiresAt: now.Add(s.refreshTTL),
			CreatedAt: now,
			UpdatedAt: now,
		}

		err = s.tokens.Create(ctx, record)
		if err == nil {
			return raw, record, nil
		}
		if !errors.Is(err, repository.ErrRefreshTokenExists) {
			return "", nil, err
		}
		lastErr = err
	}

	return "", nil, errors.Wrap(lastErr, "failed to store a unique refresh token")
}

// DecodeAccess verifies signature, algorithm, expiry and token type.
func (s *jwtService) DecodeAccess(tokenString string) (uuid.UUID, bool) {
	claims := &accessClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{s.method.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !token.Valid {
		return uuid.Nil, false
	}
	if claims.Type != accessTokenType {
		return uuid.Nil, false
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, false
	}

	return userID, true
}

// AccessTokenTTL returns the configured lifetime of access tokens.
func (s *jwtService) AccessTokenTTL() time.Duration {
	return s.accessTTL
}

func randomToken() (string, error) {
	buf := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", errors.Wrap(err, "failed to read random bytes")
	}

	return base64.RawURLEncoding.EncodeToString(buf), nil
}
