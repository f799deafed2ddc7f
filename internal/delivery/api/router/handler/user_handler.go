package handler

import (
	"log/slog"
	"net/http"

	"athlo/internal/delivery/api/middleware"
	"athlo/internal/delivery/api/response"
	domainerrors "athlo/internal/domain/errors"
	"athlo/internal/usecase"

	"github.com/labstack/echo/v4"
	"go.uber.org/fx"
)

// UserHandlerParams holds dependencies for UserHandler, injected by Fx.
type UserHandlerParams struct {
	fx.In

	UserUC usecase.UserUsecase
	Logger *slog.Logger
}

// UserHandler serves the endpoints of the signed-in user.
type UserHandler struct {
	userUC usecase.UserUsecase
	logger *slog.Logger
}

// NewUserHandler is the constructor for UserHandler
func NewUserHandler(params UserHandlerParams) *UserHandler {
	return &UserHandler{
		userUC: params.UserUC,
		logger: params.Logger,
	}
}

// GetProfile returns the authenticated user
func (h *UserHandler) GetProfile(c echo.Context) error {
	user, ok := middleware.GetUser(c)
	if !ok {
		return unauthenticated(c)
	}

	return response.Success(c, http.StatusOK, toUserResponse(user))
}

// UpdateProfile changes the display name and unit preference
func (h *UserHandler) UpdateProfile(c echo.Context) error {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return unauthenticated(c)
	}

	var req UpdateProfileRequest
	if err := c.Bind(&req); err != nil {
		return response.BindingError(c, "Invalid profile input")
	}

	user, err := h.userUC.UpdateProfile(c.Request().Context(), userID, usecase.UpdateProfileInput{
		Name:           req.Name,
		PreferredUnits: req.PreferredUnits,
	})
	if err != nil {
		return response.HandleAppError(c, err)
	}

	return response.Success(c, http.StatusOK, toUserResponse(user))
}

// ChangePassword replaces the password after checking the current one
func (h *UserHandler) ChangePassword(c echo.Context) error {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return unauthenticated(c)
	}

	var req ChangePasswordRequest
	if err := c.Bind(&req); err != nil {
		return response.BindingError(c, "Invalid password input")
	}
	if err := c.Validate(&req); err != nil {
		return validationFailed(c, err)
	}

	if err := h.userUC.ChangePassword(c.Request().Context(), userID, req.CurrentPassword, req.NewPassword); err != nil {
		return response.HandleAppError(c, err)
	}

	return c.NoContent(http.StatusNoContent)
}

// Deactivate disables the account
func (h *UserHandler) Deactivate(c echo.Context) error {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return unauthenticated(c)
	}

	if err := h.userUC.DeactivateAccount(c.Request().Context(), userID); err != nil {
		return response.HandleAppError(c, err)
	}

	return c.NoContent(http.StatusNoContent)
}

// Delete removes the account
func (h *UserHandler) Delete(c echo.Context) error {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return unauthenticated(c)
	}

	if err := h.userUC.DeleteAccount(c.Request().Context(), userID); err != nil {
		return response.HandleAppError(c, err)
	}

	return c.NoContent(http.StatusNoContent)
}

func unauthenticated(c echo.Context) error {
	return response.Unauthorized(c, domainerrors.ErrInvalidAccessToken.ErrorCode(), "User not found in request context")
}
