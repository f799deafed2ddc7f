package service

import (
	"context"
	"time"

	"athlo/internal/domain/entity"

	"github.com/google/uuid"
)

// TokenService issues access tokens and refresh tokens.
type TokenService interface {
	// IssueAccess signs a short-lived access token for the user.
	IssueAccess(userID uuid.UUID) (string, error)

	// IssueRefresh generates an opaque refresh token and persists its record.
	IssueRefresh(ctx context.Context, userID uuid.UUID) (string, *entity.RefreshToken, error)

	// DecodeAccess returns the subject of a valid access token. Any
	// verification failure yields ok == false, never an error.
	DecodeAccess(token string) (userID uuid.UUID, ok bool)

	// AccessTokenTTL is the configured access token lifetime.
	AccessTokenTTL() time.Duration
}
