// Package handler contains the Pub/Sub push handlers of the audit worker.
package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"athlo/config"
	deliverycontext "athlo/internal/delivery/context"
	"athlo/internal/domain/constants"
	"athlo/internal/domain/entity"
	"athlo/internal/errors"
	"athlo/internal/infra/pubsub"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/fx"
	"google.golang.org/api/idtoken"
)

// PushHandler receives audit events pushed by Pub/Sub and writes them to the audit log.
type PushHandler struct {
	verifyPushAuth bool
	logger         *slog.Logger
	validate       func(ctx context.Context, token, audience string) (*idtoken.Payload, error)
}

// PushHandlerParams holds dependencies for the PushHandler
type PushHandlerParams struct {
	fx.In

	Config *config.Config
	Logger *slog.Logger
}

// NewPushHandler creates a new Pub/Sub push handler
func NewPushHandler(params PushHandlerParams) *PushHandler {
	// Only pushes from Google outside development carry an OIDC token.
	verifyPushAuth := params.Config.PubSub != nil &&
		params.Config.PubSub.Provider == constants.PubSubProviderGoogle &&
		params.Config.Env.Env != constants.EnvDevelop

	return &PushHandler{
		verifyPushAuth: verifyPushAuth,
		logger:         params.Logger,
		validate:       idtoken.Validate,
	}
}

// HandlePush acknowledges every well-formed message. Malformed payloads are
// answered with 400 so the subscription can dead-letter them.
func (h *PushHandler) HandlePush(c echo.Context) error {
	ctx := c.Request().Context()

	if h.verifyPushAuth {
		if err := h.verifyPubSubToken(c.Request()); err != nil {
			h.logger.Warn("[Worker] Invalid Pub/Sub token", slog.Any("error", err))

			return c.NoContent(http.StatusUnauthorized)
		}
	}

	var pushMsg pubsub.PushMessage
	if err := c.Bind(&pushMsg); err != nil {
		h.logger.Error("[Worker] Failed to parse push message", slog.Any("error", err))

		return c.NoContent(http.StatusBadRequest)
	}

	data, err := base64.StdEncoding.DecodeString(pushMsg.Message.Data)
	if err != nil {
		h.logger.Error("[Worker] Failed to decode message data", slog.Any("error", err))

		return c.NoContent(http.StatusBadRequest)
	}

	var event entity.AuthEvent
	if err := json.Unmarshal(data, &event); err != nil {
		h.logger.Error("[Worker] Failed to parse auth event", slog.Any("error", err))

		return c.NoContent(http.StatusBadRequest)
	}
	if event.Type == "" || event.UserID == uuid.Nil {
		h.logger.Error("[Worker] Auth event is missing its type or user",
			slog.String("message_id", pushMsg.Message.MessageID),
		)

		return c.NoContent(http.StatusBadRequest)
	}

	requestID := h.extractRequestID(ctx, &pushMsg, &event)
	reqLogger := h.logger.With(slog.String("request_id", requestID))

	h.record(reqLogger, &pushMsg, &event)

	return c.NoContent(http.StatusOK)
}

// record writes one audit line. Reuse of a revoked refresh token is raised to
// warning level so it stands out in the log stream.
func (h *PushHandler) record(logger *slog.Logger, pushMsg *pubsub.PushMessage, event *entity.AuthEvent) {
	level := slog.LevelInfo
	if event.Type == entity.EventRefreshTokenReuse {
		level = slog.LevelWarn
	}

	attrs := []slog.Attr{
		slog.String("event_id", event.ID.String()),
		slog.String("event_type", string(event.Type)),
		slog.String("user_id", event.UserID.String()),
		slog.Time("occurred_at", event.OccurredAt),
		slog.String("message_id", pushMsg.Message.MessageID),
	}
	for key, value := range event.Attributes {
		attrs = append(attrs, slog.String("attr."+key, value))
	}

	logger.LogAttrs(context.Background(), level, "[Worker] Auth event", attrs...)
}

// extractRequestID prefers message attributes, then the event payload, then the push request itself.
func (h *PushHandler) extractRequestID(ctx context.Context, pushMsg *pubsub.PushMessage, event *entity.AuthEvent) string {
	if requestID, ok := pushMsg.Message.Attributes["request_id"]; ok && requestID != "" {
		return requestID
	}

	if event.RequestID != "" {
		return event.RequestID
	}

	if requestID := deliverycontext.GetRequestIDFromContext(ctx); requestID != "" {
		return requestID
	}

	return uuid.New().String()
}

// verifyPubSubToken verifies the JWT token from Google Pub/Sub push requests
// Reference: https://cloud.google.com/pubsub/docs/push#authenticating_standard_push_requests
func (h *PushHandler) verifyPubSubToken(req *http.Request) error {
	authHeader := req.Header.Get("Authorization")
	if authHeader == "" {
		return errors.New("missing authorization header")
	}

	const bearerPrefix = "Bearer "
	if !strings.HasPrefix(authHeader, bearerPrefix) {
		return errors.New("invalid authorization header format")
	}
	token := strings.TrimPrefix(authHeader, bearerPrefix)

	// The audience is the URL of this endpoint
	scheme := "https"
	if req.TLS == nil {
		scheme = "http"
	}
	audience := fmt.Sprintf("%s://%s%s", scheme, req.Host, req.URL.Path)

	payload, err := h.validate(req.Context(), token, audience)
	if err != nil {
		return errors.Wrap(err, "failed to validate token")
	}

	if payload.Issuer != "accounts.google.com" && payload.Issuer != "https://accounts.google.com" {
		return errors.Errorf("invalid issuer: %s", payload.Issuer)
	}

	if emailVerified, ok := payload.Claims["email_verified"].(bool); ok && !emailVerified {
		return errors.New("email not verified")
	}

	return nil
}
