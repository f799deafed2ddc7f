package entity

import (
	"time"

	"github.com/google/uuid"
)

// RefreshToken is a stored, single-use capability to mint a new token pair.
// Once Revoked is set it is never cleared; redeemed tokens are kept for audit.
type RefreshToken struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Token     string // Opaque random string handed to the client.
	ExpiresAt time.Time
	Revoked   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ExpiredAt reports whether the token is expired at the given instant.
// A token is already expired exactly at its expiry time.
func (t *RefreshToken) ExpiredAt(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// UsableAt reports whether the token can still be redeemed.
func (t *RefreshToken) UsableAt(now time.Time) bool {
	return !t.Revoked && !t.ExpiredAt(now)
}
