package middleware

import (
	"strings"

	"athlo/internal/delivery/api/response"
	"athlo/internal/domain/entity"
	domainerrors "athlo/internal/domain/errors"
	"athlo/internal/domain/service"
	"athlo/internal/errors"
	"athlo/internal/usecase"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/fx"
)

const contextKeyUser = "auth_user"

// AuthMiddlewareParams holds dependencies for AuthMiddleware, injected by Fx.
type AuthMiddlewareParams struct {
	fx.In

	TokenService service.TokenService
	UserUC       usecase.UserUsecase
}

// AuthMiddleware authenticates bearer access tokens.
type AuthMiddleware struct {
	tokens service.TokenService
	users  usecase.UserUsecase
}

// NewAuthMiddleware is the constructor for AuthMiddleware.
func NewAuthMiddleware(params AuthMiddlewareParams) *AuthMiddleware {
	return &AuthMiddleware{
		tokens: params.TokenService,
		users:  params.UserUC,
	}
}

// Authenticate decodes the access token and loads its user. A token whose
// user no longer exists is treated like an invalid token.
func (m *AuthMiddleware) Authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		token, ok := bearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
		if !ok {
			return response.Unauthorized(c, domainerrors.ErrInvalidAccessToken.ErrorCode(), "Missing or malformed bearer token")
		}

		userID, ok := m.tokens.DecodeAccess(token)
		if !ok {
			return response.Unauthorized(c, domainerrors.ErrInvalidAccessToken.ErrorCode(), domainerrors.ErrInvalidAccessToken.Message())
		}

		user, err := m.users.GetUserByID(c.Request().Context(), userID)
		if err != nil {
			if errors.Is(err, domainerrors.ErrNotFound) {
				return response.Unauthorized(c, domainerrors.ErrInvalidAccessToken.ErrorCode(), domainerrors.ErrInvalidAccessToken.Message())
			}

			return errors.WithStack(err)
		}

		if !user.IsActive {
			return response.Forbidden(c, domainerrors.ErrAccountDeactivated.ErrorCode(), domainerrors.ErrAccountDeactivated.Message())
		}

		c.Set(contextKeyUser, user)

		return next(c)
	}
}

// GetUser returns the user stored by Authenticate.
func GetUser(c echo.Context) (*entity.User, bool) {
	user, ok := c.Get(contextKeyUser).(*entity.User)

	return user, ok && user != nil
}

// GetUserID returns the id of the user stored by Authenticate.
func GetUserID(c echo.Context) (uuid.UUID, bool) {
	user, ok := GetUser(c)
	if !ok {
		return uuid.Nil, false
	}

	return user.ID, true
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}

	token = strings.TrimSpace(token)

	return token, token != ""
}
