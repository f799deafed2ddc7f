// Package google verifies Google ID tokens for federated sign-in.
package google

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"athlo/config"
	"athlo/internal/domain/constants"
	"athlo/internal/domain/service"
	"athlo/internal/errors"

	"go.uber.org/fx"
)

var validIssuers = []string{"accounts.google.com", "https://accounts.google.com"}

// Params holds dependencies for the identity verifier, injected by Fx.
type Params struct {
	fx.In

	Config *config.Config
	Logger *slog.Logger
}

// NewIdentityVerifier returns the verifier selected by googleOAuth.mode.
func NewIdentityVerifier(params Params) (service.IdentityVerifier, error) {
	cfg := params.Config.GoogleOAuth
	if cfg == nil {
		return nil, errors.New("googleOAuth configuration must be provided")
	}

	switch cfg.Mode {
	case constants.GoogleModeTokenInfo, "":
		return NewTokenInfoVerifier(cfg, &http.Client{Timeout: cfg.Timeout}, params.Logger), nil
	case constants.GoogleModeIDToken:
		return NewIDTokenVerifier(cfg, params.Logger), nil
	default:
		return nil, errors.Errorf("unsupported google verification mode %q", cfg.Mode)
	}
}

func validIssuer(iss string) bool {
	for _, v := range validIssuers {
		if iss == v {
			return true
		}
	}

	return false
}

// flexBool decodes both JSON booleans and the "true"/"false" strings the
// tokeninfo endpoint returns.
type flexBool bool

func (b *flexBool) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(string(data), `"`)
	if raw == "" || raw == "null" {
		*b = false
		return nil
	}

	v, err := strconv.ParseBool(raw)
	if err != nil {
		return errors.Wrapf(err, "invalid boolean %s", data)
	}
	*b = flexBool(v)

	return nil
}
