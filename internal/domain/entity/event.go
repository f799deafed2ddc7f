package entity

import (
	"time"

	"github.com/google/uuid"
)

// AuthEventType names an audit event emitted by the authentication flows.
type AuthEventType string

const (
	EventUserRegistered    AuthEventType = "user.registered"
	EventIdentityLinked    AuthEventType = "user.identity_linked"
	EventRefreshTokenReuse AuthEventType = "refresh_token.reuse_detected"
	EventUserDeleted       AuthEventType = "user.deleted"
	EventUserDeactivated   AuthEventType = "user.deactivated"
)

// AuthEvent is a single audit record describing something that happened to an account.
type AuthEvent struct {
	ID         uuid.UUID         `json:"id"`
	Type       AuthEventType     `json:"type"`
	UserID     uuid.UUID         `json:"user_id"`
	RequestID  string            `json:"request_id,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
	Attributes map[string]string `json:"attributes,omitempty"`
}
