package impl

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"athlo/config"
	"athlo/internal/domain/entity"
	domainerrors "athlo/internal/domain/errors"
	"athlo/internal/domain/repository"
	"athlo/internal/domain/service"
	"athlo/internal/errors"
	"athlo/internal/usecase"

	"go.uber.org/fx"
)

// authService implements the AuthUsecase interface.
type authService struct {
	serviceSupport

	userRepo             repository.UserRepository
	refreshTokenRepo     repository.RefreshTokenRepository
	hasher               service.PasswordHasher
	tokenService         service.TokenService
	verifier             service.IdentityVerifier
	minPasswordLength    int
	requireVerifiedEmail bool
}

// AuthServiceParams holds dependencies for AuthService, injected by Fx.
type AuthServiceParams struct {
	fx.In

	UserRepo         repository.UserRepository
	RefreshTokenRepo repository.RefreshTokenRepository
	Hasher           service.PasswordHasher
	TokenService     service.TokenService
	Verifier         service.IdentityVerifier
	Publisher        service.EventPublisher
	Metrics          service.AuthMetrics
	Config           *config.Config
	Logger           *slog.Logger
}

// NewAuthService is the constructor for authService. It receives all dependencies as interfaces.
func NewAuthService(params AuthServiceParams) usecase.AuthUsecase {
	return newAuthService(params, time.Now)
}

func newAuthService(params AuthServiceParams, now func() time.Time) *authService {
	requireVerified := false
	if params.Config != nil && params.Config.GoogleOAuth != nil {
		requireVerified = params.Config.GoogleOAuth.RequireVerifiedEmail
	}

	return &authService{
		serviceSupport: serviceSupport{
			events:  params.Publisher,
			metrics: params.Metrics,
			logger:  params.Logger,
			now:     now,
		},
		userRepo:             params.UserRepo,
		refreshTokenRepo:     params.RefreshTokenRepo,
		hasher:               params.Hasher,
		tokenService:         params.TokenService,
		verifier:             params.Verifier,
		minPasswordLength:    minPasswordLength(params.Config),
		requireVerifiedEmail: requireVerified,
	}
}

// Register creates an email/password account.
func (srv *authService) Register(ctx context.Context, input usecase.RegisterInput) (_ *entity.User, err error) {
	defer srv.observe(opRegister, &err)

	if _, err := srv.userRepo.FindByEmail(ctx, input.Email); err == nil {
		return nil, domainerrors.ErrDuplicateEmail
	} else if !errors.Is(err, repository.ErrUserNotFound) {
		return nil, errors.Wrap(err, "failed to look up email")
	}

	if err := checkPasswordStrength(input.Password, srv.minPasswordLength); err != nil {
		return nil, err
	}

	hash, err := srv.hasher.Hash(input.Password)
	if err != nil {
		return nil, err
	}

	user := entity.NewUser(input.Email, input.Name, entity.ProviderTypeEmail, srv.now().UTC())
	user.PasswordHash = hash

	// A concurrent registration for the same email loses here with ErrDuplicateEmail.
	if err := srv.userRepo.Create(ctx, user); err != nil {
		srv.log(ctx).Warn("Failed to create user", slog.String("email", input.Email), slog.Any("error", err))

		return nil, err
	}

	srv.publish(ctx, entity.EventUserRegistered, user.ID, map[string]string{"provider": string(entity.ProviderTypeEmail)})
	srv.log(ctx).Info("User registered", slog.String("user_id", user.ID.String()))

	return user, nil
}

// Login verifies the password and issues a token pair.
func (srv *authService) Login(ctx context.Context, input usecase.LoginInput) (_ *usecase.LoginOutput, err error) {
	defer srv.observe(opLogin, &err)

	user, err := srv.userRepo.FindByEmail(ctx, input.Email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, domainerrors.ErrInvalidCredentials
		}

		return nil, errors.Wrap(err, "failed to find user by email")
	}

	// Accounts created through a federated provider have no hash to check against.
	if !user.HasPassword() || !srv.hasher.Check(input.Password, user.PasswordHash) {
		srv.log(ctx).Info("Login rejected", slog.String("email", input.Email))

		return nil, domainerrors.ErrInvalidCredentials
	}

	if !user.IsActive {
		return nil, domainerrors.ErrAccountDeactivated
	}

	pair, err := srv.issueTokens(ctx, user)
	if err != nil {
		return nil, err
	}

	return &usecase.LoginOutput{User: user, TokenPair: *pair}, nil
}

// LoginWithFederatedIdentity resolves the account by subject, then by email, and
// creates one when neither matches.
func (srv *authService) LoginWithFederatedIdentity(ctx context.Context, idToken string) (_ *usecase.LoginOutput, err error) {
	defer srv.observe(opLoginFederated, &err)

	identity, err := srv.verifier.Verify(ctx, idToken)
	if err != nil {
		return nil, err
	}
	if identity.Email == "" {
		return nil, domainerrors.ErrInvalidToken.WithDetails("identity carries no email")
	}
	if srv.requireVerifiedEmail && !identity.EmailVerified {
		return nil, domainerrors.ErrInvalidToken.WithDetails("email is not verified")
	}

	user, err := srv.resolveFederatedUser(ctx, identity)
	if err != nil {
		return nil, err
	}

	if !user.IsActive {
		return nil, domainerrors.ErrAccountDeactivated
	}

	pair, err := srv.issueTokens(ctx, user)
	if err != nil {
		return nil, err
	}

	return &usecase.LoginOutput{User: user, TokenPair: *pair}, nil
}

func (srv *authService) resolveFederatedUser(ctx context.Context, identity *service.FederatedIdentity) (*entity.User, error) {
	provider := srv.verifier.Provider()

	user, err := srv.userRepo.FindByProviderSubject(ctx, provider, identity.Subject)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, repository.ErrUserNotFound) {
		return nil, errors.Wrap(err, "failed to find user by provider subject")
	}

	user, err = srv.userRepo.FindByEmail(ctx, identity.Email)
	switch {
	case err == nil:
		return srv.linkIdentity(ctx, user, provider, identity)
	case errors.Is(err, repository.ErrUserNotFound):
		return srv.createFederatedUser(ctx, provider, identity)
	default:
		return nil, errors.Wrap(err, "failed to find user by email")
	}
}

// linkIdentity attaches the external identity to an existing account. The
// password hash is kept, so both credentials stay usable.
func (srv *authService) linkIdentity(ctx context.Context, user *entity.User, provider entity.ProviderType, identity *service.FederatedIdentity) (*entity.User, error) {
	linked, err := modifyUser(ctx, srv.userRepo, user.ID, "failed to link federated identity", func(stored *entity.User) error {
		stored.ProviderSubject = identity.Subject
		stored.AuthProvider = provider
		if stored.AvatarURL == "" && identity.Picture != "" {
			stored.AvatarURL = identity.Picture
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	srv.publish(ctx, entity.EventIdentityLinked, linked.ID, map[string]string{"provider": string(provider)})
	srv.log(ctx).Info("Federated identity linked",
		slog.String("user_id", linked.ID.String()),
		slog.String("provider", string(provider)),
	)

	return linked, nil
}

func (srv *authService) createFederatedUser(ctx context.Context, provider entity.ProviderType, identity *service.FederatedIdentity) (*entity.User, error) {
	name := identity.Name
	if name == "" {
		name, _, _ = strings.Cut(identity.Email, "@")
	}

	user := entity.NewUser(identity.Email, name, provider, srv.now().UTC())
	user.ProviderSubject = identity.Subject
	user.AvatarURL = identity.Picture

	if err := srv.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}

	srv.publish(ctx, entity.EventUserRegistered, user.ID, map[string]string{"provider": string(provider)})
	srv.log(ctx).Info("User registered through federated identity",
		slog.String("user_id", user.ID.String()),
		slog.String("provider", string(provider)),
	)

	return user, nil
}

// RefreshTokens redeems the presented token and issues a new pair.
func (srv *authService) RefreshTokens(ctx context.Context, refreshToken string) (_ *usecase.TokenPair, err error) {
	defer srv.observe(opRefresh, &err)

	record, err := srv.refreshTokenRepo.FindByToken(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, repository.ErrRefreshTokenNotFound) {
			return nil, domainerrors.ErrInvalidRefreshToken
		}

		return nil, errors.Wrap(err, "failed to find refresh token")
	}

	if record.Revoked {
		srv.reportReuse(ctx, record)

		return nil, domainerrors.ErrRevokedRefreshToken
	}

	if record.ExpiredAt(srv.now()) {
		return nil, domainerrors.ErrExpiredRefreshToken
	}

	user, err := srv.userRepo.FindByID(ctx, record.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, domainerrors.ErrInvalidRefreshToken
		}

		return nil, errors.Wrap(err, "failed to find refresh token owner")
	}
	if !user.IsActive {
		return nil, domainerrors.ErrInvalidRefreshToken
	}

	// Only one concurrent redemption can flip the flag; the losers see reuse.
	if err := srv.refreshTokenRepo.Revoke(ctx, record.ID); err != nil {
		switch {
		case errors.Is(err, repository.ErrRefreshTokenAlreadyRevoked):
			srv.reportReuse(ctx, record)

			return nil, domainerrors.ErrRevokedRefreshToken
		case errors.Is(err, repository.ErrRefreshTokenNotFound):
			return nil, domainerrors.ErrInvalidRefreshToken
		default:
			return nil, errors.Wrap(err, "failed to redeem refresh token")
		}
	}

	return srv.issueTokens(ctx, user)
}

func (srv *authService) reportReuse(ctx context.Context, record *entity.RefreshToken) {
	srv.log(ctx).Warn("Revoked refresh token presented",
		slog.String("user_id", record.UserID.String()),
		slog.String("token_id", record.ID.String()),
	)
	srv.publish(ctx, entity.EventRefreshTokenReuse, record.UserID, map[string]string{"token_id": record.ID.String()})
}

// Logout revokes the token when it is still active.
func (srv *authService) Logout(ctx context.Context, refreshToken string) {
	var err error
	defer srv.observe(opLogout, &err)

	record, findErr := srv.refreshTokenRepo.FindByToken(ctx, refreshToken)
	if findErr != nil {
		if !errors.Is(findErr, repository.ErrRefreshTokenNotFound) {
			err = findErr
			srv.log(ctx).Warn("Logout lookup failed", slog.Any("error", findErr))
		}

		return
	}
	if record.Revoked {
		return
	}

	revokeErr := srv.refreshTokenRepo.Revoke(ctx, record.ID)
	if revokeErr != nil && !errors.Is(revokeErr, repository.ErrRefreshTokenAlreadyRevoked) {
		err = revokeErr
		srv.log(ctx).Warn("Logout revoke failed",
			slog.String("user_id", record.UserID.String()),
			slog.Any("error", revokeErr),
		)
	}
}

func (srv *authService) issueTokens(ctx context.Context, user *entity.User) (*usecase.TokenPair, error) {
	access, err := srv.tokenService.IssueAccess(user.ID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to issue access token")
	}

	refresh, _, err := srv.tokenService.IssueRefresh(ctx, user.ID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to issue refresh token")
	}

	return &usecase.TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    srv.tokenService.AccessTokenTTL(),
	}, nil
}
