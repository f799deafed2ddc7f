package google

import (
	"context"
	"log/slog"

	"athlo/config"
	"athlo/internal/domain/entity"
	domainerrors "athlo/internal/domain/errors"
	"athlo/internal/domain/service"
	"athlo/internal/errors"

	"google.golang.org/api/idtoken"
)

// IDTokenVerifier checks the token signature locally against Google's
// published keys.
type IDTokenVerifier struct {
	clientID string
	validate func(ctx context.Context, idToken, audience string) (*idtoken.Payload, error)
	logger   *slog.Logger
}

// NewIDTokenVerifier creates a verifier backed by idtoken.Validate.
func NewIDTokenVerifier(cfg *config.GoogleOAuthConfig, logger *slog.Logger) *IDTokenVerifier {
	return &IDTokenVerifier{
		clientID: cfg.ClientID,
		validate: idtoken.Validate,
		logger:   logger,
	}
}

// Verify implements service.IdentityVerifier.
func (v *IDTokenVerifier) Verify(ctx context.Context, idToken string) (*service.FederatedIdentity, error) {
	if idToken == "" {
		return nil, domainerrors.ErrInvalidToken.WithDetails("empty token")
	}

	payload, err := v.validate(ctx, idToken, v.clientID)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, domainerrors.ErrIdentityProviderUnavailable.WrapMessage(err.Error())
		}
		v.logger.DebugContext(ctx, "Google ID token rejected", slog.Any("error", err))

		return nil, domainerrors.ErrInvalidToken.WithDetails("signature or claims rejected")
	}

	if !validIssuer(payload.Issuer) {
		return nil, domainerrors.ErrInvalidToken.WithDetails("unexpected issuer")
	}
	if payload.Subject == "" {
		return nil, domainerrors.ErrInvalidToken.WithDetails("missing subject")
	}

	return &service.FederatedIdentity{
		Subject:       payload.Subject,
		Email:         stringClaim(payload.Claims, "email"),
		Name:          stringClaim(payload.Claims, "name"),
		Picture:       stringClaim(payload.Claims, "picture"),
		EmailVerified: boolClaim(payload.Claims, "email_verified"),
		Audience:      payload.Audience,
	}, nil
}

// Provider implements service.IdentityVerifier.
func (v *IDTokenVerifier) Provider() entity.ProviderType {
	return entity.ProviderTypeGoogle
}

func stringClaim(claims map[string]any, key string) string {
	s, _ := claims[key].(string)

	return s
}

func boolClaim(claims map[string]any, key string) bool {
	switch v := claims[key].(type) {
	case bool:
		return v
	case string:
		return v == "true"
	default:
		return false
	}
}
