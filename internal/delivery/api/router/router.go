// Package router registers the API routes.
package router

import (
	"athlo/internal/delivery/api/middleware"
	"athlo/internal/delivery/api/router/handler"

	"github.com/labstack/echo/v4"
	"go.uber.org/fx"
)

type RouterParams struct {
	fx.In

	AuthHandler    *handler.AuthHandler
	UserHandler    *handler.UserHandler
	HealthHandler  *handler.HealthHandler
	AuthMiddleware *middleware.AuthMiddleware
}

// router holds all the handlers that need to be registered.
type router struct {
	authHandler    *handler.AuthHandler
	userHandler    *handler.UserHandler
	healthHandler  *handler.HealthHandler
	authMiddleware *middleware.AuthMiddleware
}

// NewRouter is the constructor for the Router.
// Fx will inject the required handlers here.
func NewRouter(params RouterParams) *router {
	return &router{
		authHandler:    params.AuthHandler,
		userHandler:    params.UserHandler,
		healthHandler:  params.HealthHandler,
		authMiddleware: params.AuthMiddleware,
	}
}

// RegisterRoutes sets up all the API routes for the application.
func (r *router) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", r.healthHandler.Check)

	authGroup := e.Group("/auth")
	{
		authGroup.POST("/register", r.authHandler.Register)
		authGroup.POST("/login", r.authHandler.Login)
		authGroup.POST("/refresh", r.authHandler.Refresh)
		authGroup.POST("/logout", r.authHandler.Logout)
	}

	oauthGroup := e.Group("/oauth")
	{
		oauthGroup.POST("/google", r.authHandler.GoogleLogin)
	}

	// Everything under /users acts on the bearer's own account.
	usersGroup := e.Group("/users")
	usersGroup.Use(r.authMiddleware.Authenticate)
	{
		usersGroup.GET("/me", r.userHandler.GetProfile)
		usersGroup.PUT("/me", r.userHandler.UpdateProfile)
		usersGroup.DELETE("/me", r.userHandler.Delete)
		usersGroup.PUT("/me/password", r.userHandler.ChangePassword)
		usersGroup.POST("/me/deactivate", r.userHandler.Deactivate)
	}
}
