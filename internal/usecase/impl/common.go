// Package impl contains the implementation of the application's business logic.
package impl

import (
	"context"
	"log/slog"
	"time"
	"unicode/utf8"

	"athlo/config"
	deliverycontext "athlo/internal/delivery/context"
	"athlo/internal/domain/entity"
	domainerrors "athlo/internal/domain/errors"
	"athlo/internal/domain/repository"
	"athlo/internal/domain/service"
	"athlo/internal/errors"

	"github.com/google/uuid"
)

const (
	outcomeSuccess           = "success"
	defaultMinPasswordLength = 8
)

// Operation names reported to the outcome counter.
const (
	opRegister          = "register"
	opLogin             = "login"
	opLoginFederated    = "login_federated"
	opRefresh           = "refresh"
	opLogout            = "logout"
	opGetUser           = "get_user"
	opUpdateProfile     = "update_profile"
	opChangePassword    = "change_password"
	opDeactivateAccount = "deactivate_account"
	opDeleteAccount     = "delete_account"
)

// serviceSupport bundles the cross-cutting collaborators shared by the services.
type serviceSupport struct {
	events  service.EventPublisher
	metrics service.AuthMetrics
	logger  *slog.Logger
	now     func() time.Time
}

// log returns a request-scoped logger if available, otherwise falls back to the service's logger.
func (s *serviceSupport) log(ctx context.Context) *slog.Logger {
	return deliverycontext.GetLoggerOrDefault(ctx, s.logger)
}

// observe reports the outcome of an operation. Call it deferred with the
// address of the named error result.
func (s *serviceSupport) observe(operation string, errp *error) {
	if s.metrics == nil {
		return
	}

	outcome := outcomeSuccess
	if *errp != nil {
		outcome = domainerrors.CodeOf(*errp)
	}
	s.metrics.ObserveOutcome(operation, outcome)
}

// publish emits an audit event. Failures are logged and swallowed.
func (s *serviceSupport) publish(ctx context.Context, eventType entity.AuthEventType, userID uuid.UUID, attrs map[string]string) {
	if s.events == nil {
		return
	}

	event := &entity.AuthEvent{
		ID:         uuid.New(),
		Type:       eventType,
		UserID:     userID,
		RequestID:  deliverycontext.GetRequestIDFromContext(ctx),
		OccurredAt: s.now().UTC(),
		Attributes: attrs,
	}
	if err := s.events.PublishAuthEvent(ctx, event); err != nil {
		s.log(ctx).Warn("Failed to publish auth event",
			slog.String("event_type", string(eventType)),
			slog.String("user_id", userID.String()),
			slog.Any("error", err),
		)
	}
}

// modifyUser applies fn to the stored user atomically. Errors raised by fn
// come back unchanged; anything else from the repository is wrapped with msg.
func modifyUser(ctx context.Context, users repository.UserRepository, id uuid.UUID, msg string, fn repository.UserMutation) (*entity.User, error) {
	var fnErr error

	user, err := users.Modify(ctx, id, func(u *entity.User) error {
		fnErr = fn(u)

		return fnErr
	})
	if err != nil {
		if fnErr != nil && !errors.Is(fnErr, repository.ErrUnchanged) {
			return nil, fnErr
		}

		return nil, errors.Wrap(err, msg)
	}

	return user, nil
}

func minPasswordLength(cfg *config.Config) int {
	if cfg != nil && cfg.Auth != nil && cfg.Auth.MinPasswordLength > 0 {
		return cfg.Auth.MinPasswordLength
	}

	return defaultMinPasswordLength
}

// checkPasswordStrength counts characters, not bytes.
func checkPasswordStrength(password string, minLength int) error {
	if utf8.RuneCountInString(password) < minLength {
		return domainerrors.ErrWeakPassword
	}

	return nil
}
