// Package jsonstore implements the domain repositories on top of recordstore
// collections. Records are JSON objects with snake_case field names, RFC 3339
// timestamps and canonical UUID strings.
package jsonstore

import (
	"time"

	"athlo/internal/domain/entity"

	"github.com/google/uuid"
)

const (
	usersCollection         = "users"
	refreshTokensCollection = "refresh_tokens"
)

type userDocument struct {
	ID              uuid.UUID `json:"id"`
	Email           string    `json:"email"`
	PasswordHash    *string   `json:"password_hash"`
	Name            string    `json:"name"`
	PreferredUnits  string    `json:"preferred_units"`
	IsActive        bool      `json:"is_active"`
	AuthProvider    string    `json:"auth_provider"`
	ProviderSubject *string   `json:"provider_subject"`
	AvatarURL       *string   `json:"avatar_url"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (d userDocument) DocumentID() uuid.UUID { return d.ID }

func (d userDocument) Touched(at time.Time) userDocument {
	d.UpdatedAt = at

	return d
}

func fromUserDomain(u *entity.User) userDocument {
	return userDocument{
		ID:              u.ID,
		Email:           u.Email,
		PasswordHash:    optional(u.PasswordHash),
		Name:            u.Name,
		PreferredUnits:  string(u.PreferredUnits),
		IsActive:        u.IsActive,
		AuthProvider:    string(u.AuthProvider),
		ProviderSubject: optional(u.ProviderSubject),
		AvatarURL:       optional(u.AvatarURL),
		CreatedAt:       u.CreatedAt,
		UpdatedAt:       u.UpdatedAt,
	}
}

func (d userDocument) toDomain() *entity.User {
	provider := entity.ProviderType(d.AuthProvider)
	if provider == "" {
		provider = entity.ProviderTypeEmail
	}

	return &entity.User{
		ID:              d.ID,
		Email:           d.Email,
		PasswordHash:    deref(d.PasswordHash),
		Name:            d.Name,
		PreferredUnits:  entity.UnitPreference(d.PreferredUnits),
		IsActive:        d.IsActive,
		AuthProvider:    provider,
		ProviderSubject: deref(d.ProviderSubject),
		AvatarURL:       deref(d.AvatarURL),
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
	}
}

type refreshTokenDocument struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Revoked   bool      `json:"revoked"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (d refreshTokenDocument) DocumentID() uuid.UUID { return d.ID }

func (d refreshTokenDocument) Touched(at time.Time) refreshTokenDocument {
	d.UpdatedAt = at

	return d
}

func fromRefreshTokenDomain(t *entity.RefreshToken) refreshTokenDocument {
	return refreshTokenDocument{
		ID:        t.ID,
		UserID:    t.UserID,
		Token:     t.Token,
		ExpiresAt: t.ExpiresAt,
		Revoked:   t.Revoked,
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}
}

func (d refreshTokenDocument) toDomain() *entity.RefreshToken {
	return &entity.RefreshToken{
		ID:        d.ID,
		UserID:    d.UserID,
		Token:     d.Token,
		ExpiresAt: d.ExpiresAt,
		Revoked:   d.Revoked,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}

	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}

	return *s
}
