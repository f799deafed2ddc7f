package handler

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"athlo/config"
	"athlo/internal/domain/constants"
	"athlo/internal/domain/entity"
	"athlo/internal/errors"
	"athlo/internal/infra/pubsub"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/idtoken"
)

func newHandler(t *testing.T, buf *bytes.Buffer) *PushHandler {
	t.Helper()

	cfg := &config.Config{}
	cfg.Env.Env = constants.EnvDevelop

	return NewPushHandler(PushHandlerParams{
		Config: cfg,
		Logger: slog.New(slog.NewJSONHandler(buf, nil)),
	})
}

func pushBody(t *testing.T, data string, attrs map[string]string) string {
	t.Helper()

	var msg pubsub.PushMessage
	msg.Message.Data = data
	msg.Message.MessageID = "m-1"
	msg.Message.Attributes = attrs
	msg.Subscription = "projects/local/subscriptions/auth-events-sub"

	raw, err := json.Marshal(msg)
	require.NoError(t, err)

	return string(raw)
}

func encodeEvent(t *testing.T, event *entity.AuthEvent) string {
	t.Helper()

	raw, err := json.Marshal(event)
	require.NoError(t, err)

	return base64.StdEncoding.EncodeToString(raw)
}

func serve(h *PushHandler, body string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/push/auth-events", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	for key, values := range header {
		req.Header[key] = values
	}
	rec := httptest.NewRecorder()
	c := echo.New().NewContext(req, rec)
	_ = h.HandlePush(c)

	return rec
}

func TestHandlePush_RecordsEvent(t *testing.T) {
	var buf bytes.Buffer
	h := newHandler(t, &buf)

	event := &entity.AuthEvent{
		ID:         uuid.New(),
		Type:       entity.EventRefreshTokenReuse,
		UserID:     uuid.New(),
		OccurredAt: time.Date(2025, 5, 10, 8, 30, 0, 0, time.UTC),
		Attributes: map[string]string{"token_id": "t-1"},
	}

	rec := serve(h, pushBody(t, encodeEvent(t, event), map[string]string{"request_id": "req-9"}), nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "WARN", line["level"])
	assert.Equal(t, "req-9", line["request_id"])
	assert.Equal(t, string(entity.EventRefreshTokenReuse), line["event_type"])
	assert.Equal(t, event.UserID.String(), line["user_id"])
	assert.Equal(t, "t-1", line["attr.token_id"])
}

func TestHandlePush_RequestIDFallsBackToEvent(t *testing.T) {
	var buf bytes.Buffer
	h := newHandler(t, &buf)

	event := &entity.AuthEvent{ID: uuid.New(), Type: entity.EventUserRegistered, UserID: uuid.New(), RequestID: "from-event"}
	rec := serve(h, pushBody(t, encodeEvent(t, event), nil), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "INFO", line["level"])
	assert.Equal(t, "from-event", line["request_id"])
}

func TestHandlePush_RejectsMalformed(t *testing.T) {
	var buf bytes.Buffer
	h := newHandler(t, &buf)

	tests := []struct {
		name string
		body string
	}{
		{name: "not json", body: "{"},
		{name: "data not base64", body: pushBody(t, "%%%", nil)},
		{name: "payload not json", body: pushBody(t, base64.StdEncoding.EncodeToString([]byte("nope")), nil)},
		{name: "missing user", body: pushBody(t, encodeEvent(t, &entity.AuthEvent{Type: entity.EventUserDeleted}), nil)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(h, tt.body, nil)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestHandlePush_VerifiesGooglePushToken(t *testing.T) {
	var buf bytes.Buffer
	h := newHandler(t, &buf)
	h.verifyPushAuth = true

	var gotAudience string
	h.validate = func(_ context.Context, token, audience string) (*idtoken.Payload, error) {
		gotAudience = audience
		if token != "good" {
			return nil, errors.New("bad signature")
		}

		return &idtoken.Payload{Issuer: "https://accounts.google.com", Claims: map[string]any{"email_verified": true}}, nil
	}

	body := pushBody(t, encodeEvent(t, &entity.AuthEvent{ID: uuid.New(), Type: entity.EventUserDeleted, UserID: uuid.New()}), nil)

	rec := serve(h, body, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = serve(h, body, http.Header{"Authorization": {"Bearer forged"}})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = serve(h, body, http.Header{"Authorization": {"Bearer good"}})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "http://example.com/push/auth-events", gotAudience)
}
