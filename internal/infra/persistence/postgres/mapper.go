package postgres

import (
	"athlo/internal/domain/entity"
	"athlo/internal/infra/persistence/model"
)

func toUserDomain(m *model.UserModel) *entity.User {
	if m == nil {
		return nil
	}

	return &entity.User{
		ID:              m.ID,
		Email:           m.Email,
		PasswordHash:    deref(m.PasswordHash),
		Name:            m.Name,
		PreferredUnits:  entity.UnitPreference(m.PreferredUnits),
		IsActive:        m.IsActive,
		AuthProvider:    entity.ProviderType(m.AuthProvider),
		ProviderSubject: deref(m.ProviderSubject),
		AvatarURL:       deref(m.AvatarURL),
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
}

func fromUserDomain(u *entity.User) *model.UserModel {
	if u == nil {
		return nil
	}

	return &model.UserModel{
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

func toRefreshTokenDomain(m *model.RefreshTokenModel) *entity.RefreshToken {
	if m == nil {
		return nil
	}

	return &entity.RefreshToken{
		ID:        m.ID,
		UserID:    m.UserID,
		Token:     m.Token,
		ExpiresAt: m.ExpiresAt,
		Revoked:   m.Revoked,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func fromRefreshTokenDomain(t *entity.RefreshToken) *model.RefreshTokenModel {
	if t == nil {
		return nil
	}

	return &model.RefreshTokenModel{
		ID:        t.ID,
		UserID:    t.UserID,
		Token:     t.Token,
		ExpiresAt: t.ExpiresAt,
		Revoked:   t.Revoked,
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}
}

// optional maps the empty string to SQL NULL.
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
