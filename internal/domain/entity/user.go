// Package entity contains the core business objects of the project,
// each representing a unique, identifiable concept within the domain.
package entity

import (
	"time"

	"github.com/google/uuid"
)

// UnitPreference is the measurement system a user wants values rendered in.
type UnitPreference string

const (
	UnitsMetric   UnitPreference = "metric"
	UnitsImperial UnitPreference = "imperial"
)

// Valid reports whether the preference is one of the supported systems.
func (u UnitPreference) Valid() bool {
	return u == UnitsMetric || u == UnitsImperial
}

// ProviderType tags how an account authenticates.
type ProviderType string

const (
	ProviderTypeEmail  ProviderType = "email"
	ProviderTypeGoogle ProviderType = "google"
)

// User is the identity record for a single account.
type User struct {
	ID              uuid.UUID      // Globally unique identifier.
	Email           string         // Unique, compared exactly as stored.
	PasswordHash    string         // bcrypt digest. Empty for accounts that only sign in through a provider.
	Name            string         // Display name.
	PreferredUnits  UnitPreference // Rendering preference for measurements.
	IsActive        bool           // Inactive accounts cannot sign in or refresh.
	AuthProvider    ProviderType   // Most recent provider the account was created or linked with.
	ProviderSubject string         // External subject id issued by the federated provider.
	AvatarURL       string         // Picture reported by the federated provider.
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// HasPassword reports whether the account can sign in with a password.
func (u *User) HasPassword() bool {
	return u.PasswordHash != ""
}

// NewUser returns an active user with a fresh id and matching timestamps.
func NewUser(email, name string, provider ProviderType, now time.Time) *User {
	return &User{
		ID:             uuid.New(),
		Email:          email,
		Name:           name,
		PreferredUnits: UnitsMetric,
		IsActive:       true,
		AuthProvider:   provider,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}
