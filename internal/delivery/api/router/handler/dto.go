package handler

import (
	"time"

	"athlo/internal/domain/entity"
	"athlo/internal/usecase"
)

const tokenTypeBearer = "bearer"

// RegisterRequest is the body of POST /auth/register.
type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	Name     string `json:"name" validate:"required"`
}

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// RefreshTokenRequest is the body of POST /auth/refresh and POST /auth/logout.
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// GoogleLoginRequest is the body of POST /oauth/google.
type GoogleLoginRequest struct {
	IDToken string `json:"id_token" validate:"required"`
}

// UpdateProfileRequest is the body of PUT /users/me. Omitted fields are left unchanged.
type UpdateProfileRequest struct {
	Name           *string `json:"name"`
	PreferredUnits *string `json:"preferred_units"`
}

// ChangePasswordRequest is the body of PUT /users/me/password.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required"`
}

// UserResponse is the public view of an account. It never carries the hash.
type UserResponse struct {
	ID             string    `json:"id"`
	Email          string    `json:"email"`
	Name           string    `json:"name"`
	PreferredUnits string    `json:"preferred_units"`
	IsActive       bool      `json:"is_active"`
	AuthProvider   string    `json:"auth_provider"`
	AvatarURL      string    `json:"avatar_url,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// TokenResponse carries a freshly issued pair. ExpiresIn is in seconds.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

// LoginResponse is a token pair together with the signed-in user.
type LoginResponse struct {
	TokenResponse
	User UserResponse `json:"user"`
}

func toUserResponse(user *entity.User) UserResponse {
	return UserResponse{
		ID:             user.ID.String(),
		Email:          user.Email,
		Name:           user.Name,
		PreferredUnits: string(user.PreferredUnits),
		IsActive:       user.IsActive,
		AuthProvider:   string(user.AuthProvider),
		AvatarURL:      user.AvatarURL,
		CreatedAt:      user.CreatedAt.UTC(),
	}
}

func toTokenResponse(pair usecase.TokenPair) TokenResponse {
	return TokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    tokenTypeBearer,
		ExpiresIn:    int64(pair.ExpiresIn / time.Second),
	}
}

func toLoginResponse(out *usecase.LoginOutput) LoginResponse {
	return LoginResponse{
		TokenResponse: toTokenResponse(out.TokenPair),
		User:          toUserResponse(out.User),
	}
}
