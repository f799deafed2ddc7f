// Package handler contains the HTTP handlers for the API.
package handler

import (
	"log/slog"
	"net/http"

	"athlo/internal/delivery/api/response"
	"athlo/internal/delivery/api/validator"
	domainerrors "athlo/internal/domain/errors"
	"athlo/internal/usecase"

	"github.com/labstack/echo/v4"
	"go.uber.org/fx"
)

// AuthHandlerParams holds dependencies for AuthHandler, injected by Fx.
type AuthHandlerParams struct {
	fx.In

	AuthUC usecase.AuthUsecase
	Logger *slog.Logger
}

// AuthHandler serves the unauthenticated sign-in endpoints.
type AuthHandler struct {
	authUC usecase.AuthUsecase
	logger *slog.Logger
}

// NewAuthHandler is the constructor for AuthHandler
func NewAuthHandler(params AuthHandlerParams) *AuthHandler {
	return &AuthHandler{
		authUC: params.AuthUC,
		logger: params.Logger,
	}
}

// Register handles account creation
func (h *AuthHandler) Register(c echo.Context) error {
	var req RegisterRequest
	if err := c.Bind(&req); err != nil {
		return response.BindingError(c, "Invalid registration input")
	}
	if err := c.Validate(&req); err != nil {
		return validationFailed(c, err)
	}

	user, err := h.authUC.Register(c.Request().Context(), usecase.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
	})
	if err != nil {
		return response.HandleAppError(c, err)
	}

	return response.Success(c, http.StatusCreated, toUserResponse(user))
}

// Login handles email and password sign-in
func (h *AuthHandler) Login(c echo.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return response.BindingError(c, "Invalid login input")
	}
	if err := c.Validate(&req); err != nil {
		return validationFailed(c, err)
	}

	out, err := h.authUC.Login(c.Request().Context(), usecase.LoginInput{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		return response.HandleAppError(c, err)
	}

	return response.Success(c, http.StatusOK, toLoginResponse(out))
}

// GoogleLogin exchanges a Google ID token for a token pair
func (h *AuthHandler) GoogleLogin(c echo.Context) error {
	var req GoogleLoginRequest
	if err := c.Bind(&req); err != nil {
		return response.BindingError(c, "Invalid Google sign-in input")
	}
	if err := c.Validate(&req); err != nil {
		return validationFailed(c, err)
	}

	out, err := h.authUC.LoginWithFederatedIdentity(c.Request().Context(), req.IDToken)
	if err != nil {
		return response.HandleAppError(c, err)
	}

	return response.Success(c, http.StatusOK, toLoginResponse(out))
}

// Refresh rotates a refresh token
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req RefreshTokenRequest
	if err := c.Bind(&req); err != nil {
		return response.BindingError(c, "Invalid refresh token input")
	}
	if err := c.Validate(&req); err != nil {
		return validationFailed(c, err)
	}

	pair, err := h.authUC.RefreshTokens(c.Request().Context(), req.RefreshToken)
	if err != nil {
		return response.HandleAppError(c, err)
	}

	return response.Success(c, http.StatusOK, toTokenResponse(*pair))
}

// Logout revokes a refresh token. It answers 204 whether or not the token was known.
func (h *AuthHandler) Logout(c echo.Context) error {
	var req RefreshTokenRequest
	if err := c.Bind(&req); err != nil {
		return response.BindingError(c, "Invalid logout input")
	}
	if err := c.Validate(&req); err != nil {
		return validationFailed(c, err)
	}

	h.authUC.Logout(c.Request().Context(), req.RefreshToken)

	return c.NoContent(http.StatusNoContent)
}

func validationFailed(c echo.Context, err error) error {
	return response.BadRequestWithDetails(c,
		domainerrors.ErrValidationFailed.ErrorCode(),
		domainerrors.ErrValidationFailed.Message(),
		validator.Describe(err),
	)
}
