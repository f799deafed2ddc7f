package service

import (
	"context"

	"athlo/internal/domain/entity"
)

// EventPublisher defines the interface for publishing audit events to a message queue
type EventPublisher interface {
	// PublishAuthEvent delivers a single audit event.
	PublishAuthEvent(ctx context.Context, event *entity.AuthEvent) error

	// Close releases any resources held by the publisher
	Close() error
}
