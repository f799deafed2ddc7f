package google

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"

	"athlo/config"
	"athlo/internal/domain/entity"
	domainerrors "athlo/internal/domain/errors"
	"athlo/internal/domain/service"
	"athlo/internal/errors"
)

// tokenInfoResponse is the subset of the tokeninfo payload the verifier reads.
type tokenInfoResponse struct {
	Iss           string   `json:"iss"`
	Sub           string   `json:"sub"`
	Aud           string   `json:"aud"`
	Email         string   `json:"email"`
	EmailVerified flexBool `json:"email_verified"`
	Name          string   `json:"name"`
	Picture       string   `json:"picture"`
}

// TokenInfoVerifier asks Google's tokeninfo endpoint to validate the token.
type TokenInfoVerifier struct {
	clientID string
	endpoint string
	client   *http.Client
	logger   *slog.Logger
}

// NewTokenInfoVerifier creates a verifier that calls cfg.TokenInfoURL.
func NewTokenInfoVerifier(cfg *config.GoogleOAuthConfig, client *http.Client, logger *slog.Logger) *TokenInfoVerifier {
	return &TokenInfoVerifier{
		clientID: cfg.ClientID,
		endpoint: cfg.TokenInfoURL,
		client:   client,
		logger:   logger,
	}
}

// Verify implements service.IdentityVerifier.
func (v *TokenInfoVerifier) Verify(ctx context.Context, idToken string) (*service.FederatedIdentity, error) {
	if idToken == "" {
		return nil, domainerrors.ErrInvalidToken.WithDetails("empty token")
	}

	endpoint, err := url.Parse(v.endpoint)
	if err != nil {
		return nil, errors.Wrap(err, "invalid tokeninfo url")
	}
	query := endpoint.Query()
	query.Set("id_token", idToken)
	endpoint.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build tokeninfo request")
	}

	resp, err := v.client.Do(req)
	if err != nil {
		v.logger.WarnContext(ctx, "Google tokeninfo request failed", slog.Any("error", err))

		return nil, domainerrors.ErrIdentityProviderUnavailable.WrapMessage(err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		v.logger.DebugContext(ctx, "Google rejected ID token", slog.Int("status", resp.StatusCode))

		return nil, domainerrors.ErrInvalidToken.WithDetails("rejected by provider")
	}

	var info tokenInfoResponse
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, domainerrors.ErrInvalidToken.WithDetails("unreadable tokeninfo response")
	}

	if !validIssuer(info.Iss) {
		return nil, domainerrors.ErrInvalidToken.WithDetails("unexpected issuer")
	}
	if v.clientID != "" && info.Aud != v.clientID {
		return nil, domainerrors.ErrInvalidToken.WithDetails("audience mismatch")
	}
	if info.Sub == "" {
		return nil, domainerrors.ErrInvalidToken.WithDetails("missing subject")
	}

	return &service.FederatedIdentity{
		Subject:       info.Sub,
		Email:         info.Email,
		Name:          info.Name,
		Picture:       info.Picture,
		EmailVerified: bool(info.EmailVerified),
		Audience:      info.Aud,
	}, nil
}

// Provider implements service.IdentityVerifier.
func (v *TokenInfoVerifier) Provider() entity.ProviderType {
	return entity.ProviderTypeGoogle
}
