package impl

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"athlo/config"
	"athlo/internal/domain/entity"
	domainerrors "athlo/internal/domain/errors"
	"athlo/internal/domain/repository"
	"athlo/internal/domain/service"
	"athlo/internal/errors"
	"athlo/internal/usecase"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func registerInput(email, password, name string) usecase.RegisterInput {
	return usecase.RegisterInput{Email: email, Password: password, Name: name}
}

func loginInput(email, password string) usecase.LoginInput {
	return usecase.LoginInput{Email: email, Password: password}
}

func TestAuthService_Register(t *testing.T) {
	f := newFixture(t)

	user := f.register(t, "a@x.com", "password1", "Ana")

	assert.Equal(t, "a@x.com", user.Email)
	assert.Equal(t, "Ana", user.Name)
	assert.Equal(t, entity.ProviderTypeEmail, user.AuthProvider)
	assert.Equal(t, entity.UnitsMetric, user.PreferredUnits)
	assert.True(t, user.IsActive)
	assert.NotEqual(t, "password1", user.PasswordHash)
	assert.True(t, f.hasher.Check("password1", user.PasswordHash))

	stored, err := f.userRepo.FindByID(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, user.PasswordHash, stored.PasswordHash)

	registered := f.events.ofType(entity.EventUserRegistered)
	require.Len(t, registered, 1)
	assert.Equal(t, user.ID, registered[0].UserID)
	assert.Equal(t, "email", registered[0].Attributes["provider"])
	assert.Equal(t, 1, f.metrics.count(opRegister, outcomeSuccess))
}

func TestAuthService_RegisterDuplicateEmail(t *testing.T) {
	f := newFixture(t)
	f.register(t, "dup@x.com", "password1", "First")

	tests := []struct {
		name     string
		password string
		display  string
	}{
		{name: "same password", password: "password1", display: "First"},
		{name: "different password and name", password: "another-pass", display: "Second"},
		{name: "weak password still reports duplicate", password: "short", display: "Third"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.auth.Register(context.Background(), registerInput("dup@x.com", tt.password, tt.display))
			assert.ErrorIs(t, err, domainerrors.ErrDuplicateEmail)
		})
	}

	assert.Equal(t, 3, f.metrics.count(opRegister, "DUPLICATE_EMAIL"))
}

func TestAuthService_RegisterConcurrentSameEmail(t *testing.T) {
	f := newFixture(t)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.auth.Register(context.Background(), registerInput("race@x.com", "password1", "Racer"))
			if err == nil {
				wins.Add(1)
				return
			}
			assert.ErrorIs(t, err, domainerrors.ErrDuplicateEmail)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
}

func TestAuthService_RegisterPasswordLength(t *testing.T) {
	f := newFixture(t)

	_, err := f.auth.Register(context.Background(), registerInput("weak@x.com", "1234567", "Weak"))
	assert.ErrorIs(t, err, domainerrors.ErrWeakPassword)

	_, err = f.userRepo.FindByEmail(context.Background(), "weak@x.com")
	assert.Error(t, err, "no user is created for a weak password")

	// Eight characters, more than eight bytes.
	_, err = f.auth.Register(context.Background(), registerInput("runes@x.com", "pässwörd", "Runes"))
	assert.NoError(t, err)
}

func TestAuthService_RegisterSurvivesPublisherFailure(t *testing.T) {
	f := newFixture(t)
	f.events.err = errors.New("broker offline")

	user, err := f.auth.Register(context.Background(), registerInput("pub@x.com", "password1", "Pub"))
	require.NoError(t, err)
	assert.NotNil(t, user)
}

func TestAuthService_Login(t *testing.T) {
	f := newFixture(t)
	user := f.register(t, "a@x.com", "password1", "Ana")

	out, err := f.auth.Login(context.Background(), loginInput("a@x.com", "password1"))
	require.NoError(t, err)

	assert.Equal(t, user.ID, out.User.ID)
	assert.NotEmpty(t, out.AccessToken)
	assert.NotEmpty(t, out.RefreshToken)
	assert.Equal(t, 15*time.Minute, out.ExpiresIn)

	subject, ok := f.tokens.DecodeAccess(out.AccessToken)
	require.True(t, ok)
	assert.Equal(t, user.ID, subject)

	record, err := f.tokenRepo.FindByToken(context.Background(), out.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, record.UserID)
	assert.False(t, record.Revoked)
}

func TestAuthService_LoginFailures(t *testing.T) {
	f := newFixture(t)
	f.register(t, "a@x.com", "password1", "Ana")

	federated := entity.NewUser("fed@x.com", "Fed", entity.ProviderTypeGoogle, time.Now())
	federated.ProviderSubject = "g-42"
	require.NoError(t, f.userRepo.Create(context.Background(), federated))

	tests := []struct {
		name     string
		email    string
		password string
	}{
		{name: "wrong password", email: "a@x.com", password: "password2"},
		{name: "unknown email", email: "nobody@x.com", password: "password1"},
		{name: "email differs in case", email: "A@x.com", password: "password1"},
		{name: "account without password", email: "fed@x.com", password: ""},
		{name: "account without password and a guess", email: "fed@x.com", password: "password1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := f.auth.Login(context.Background(), loginInput(tt.email, tt.password))
			assert.Nil(t, out)
			assert.ErrorIs(t, err, domainerrors.ErrInvalidCredentials)
		})
	}
	assert.Equal(t, len(tests), f.metrics.count(opLogin, "INVALID_CREDENTIALS"))
}

func TestAuthService_LoginStorageFailure(t *testing.T) {
	f := newFixture(t)
	f.auth.userRepo = &failingUsers{UserRepository: f.userRepo, findByEmailErr: errStorageDown}

	_, err := f.auth.Login(context.Background(), loginInput("a@x.com", "password1"))
	assert.ErrorIs(t, err, errStorageDown)
	assert.NotErrorIs(t, err, domainerrors.ErrInvalidCredentials)
}

func TestAuthService_DeactivatedAccount(t *testing.T) {
	f := newFixture(t)
	user := f.register(t, "d@x.com", "password1", "Dee")

	out, err := f.auth.Login(context.Background(), loginInput("d@x.com", "password1"))
	require.NoError(t, err)

	require.NoError(t, f.users.DeactivateAccount(context.Background(), user.ID))

	_, err = f.auth.Login(context.Background(), loginInput("d@x.com", "password1"))
	assert.ErrorIs(t, err, domainerrors.ErrAccountDeactivated)

	_, err = f.auth.Login(context.Background(), loginInput("d@x.com", "wrong-pass"))
	assert.ErrorIs(t, err, domainerrors.ErrInvalidCredentials)

	_, err = f.auth.RefreshTokens(context.Background(), out.RefreshToken)
	assert.ErrorIs(t, err, domainerrors.ErrInvalidRefreshToken)
}

func TestAuthService_EndToEndRotation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	user := f.register(t, "a@x.com", "password1", "Ana")
	login, err := f.auth.Login(ctx, loginInput("a@x.com", "password1"))
	require.NoError(t, err)
	assert.Equal(t, user.ID, login.User.ID)

	pair, err := f.auth.RefreshTokens(ctx, login.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, login.RefreshToken, pair.RefreshToken)

	subject, ok := f.tokens.DecodeAccess(pair.AccessToken)
	require.True(t, ok)
	assert.Equal(t, user.ID, subject)

	redeemed, err := f.tokenRepo.FindByToken(ctx, login.RefreshToken)
	require.NoError(t, err)
	assert.True(t, redeemed.Revoked)

	_, err = f.auth.RefreshTokens(ctx, login.RefreshToken)
	assert.ErrorIs(t, err, domainerrors.ErrRevokedRefreshToken)

	reuse := f.events.ofType(entity.EventRefreshTokenReuse)
	require.Len(t, reuse, 1)
	assert.Equal(t, user.ID, reuse[0].UserID)

	// The rotated token still works once.
	_, err = f.auth.RefreshTokens(ctx, pair.RefreshToken)
	assert.NoError(t, err)
}

func TestAuthService_RefreshUnknownToken(t *testing.T) {
	f := newFixture(t)

	_, err := f.auth.RefreshTokens(context.Background(), "never-issued")
	assert.ErrorIs(t, err, domainerrors.ErrInvalidRefreshToken)
	assert.Equal(t, 1, f.metrics.count(opRefresh, "INVALID_REFRESH_TOKEN"))
}

func TestAuthService_RefreshExpiryBoundary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "e@x.com", "password1", "Eve")

	login, err := f.auth.Login(ctx, loginInput("e@x.com", "password1"))
	require.NoError(t, err)
	record, err := f.tokenRepo.FindByToken(ctx, login.RefreshToken)
	require.NoError(t, err)

	f.auth.now = func() time.Time { return record.ExpiresAt }
	_, err = f.auth.RefreshTokens(ctx, login.RefreshToken)
	assert.ErrorIs(t, err, domainerrors.ErrExpiredRefreshToken)

	f.auth.now = func() time.Time { return record.ExpiresAt.Add(time.Hour) }
	_, err = f.auth.RefreshTokens(ctx, login.RefreshToken)
	assert.ErrorIs(t, err, domainerrors.ErrExpiredRefreshToken)

	f.auth.now = func() time.Time { return record.ExpiresAt.Add(-time.Nanosecond) }
	_, err = f.auth.RefreshTokens(ctx, login.RefreshToken)
	assert.NoError(t, err)
}

func TestAuthService_RefreshAfterAccountDeleted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.register(t, "gone@x.com", "password1", "Gone")

	login, err := f.auth.Login(ctx, loginInput("gone@x.com", "password1"))
	require.NoError(t, err)
	require.NoError(t, f.users.DeleteAccount(ctx, user.ID))

	// The token itself is left untouched by the delete.
	record, err := f.tokenRepo.FindByToken(ctx, login.RefreshToken)
	require.NoError(t, err)
	assert.False(t, record.Revoked)

	_, err = f.auth.RefreshTokens(ctx, login.RefreshToken)
	assert.ErrorIs(t, err, domainerrors.ErrInvalidRefreshToken)
}

func TestAuthService_ConcurrentRefreshHasOneWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "c@x.com", "password1", "Cee")

	login, err := f.auth.Login(ctx, loginInput("c@x.com", "password1"))
	require.NoError(t, err)

	const callers = 10
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.auth.RefreshTokens(ctx, login.RefreshToken)
			if err == nil {
				wins.Add(1)
				return
			}
			assert.ErrorIs(t, err, domainerrors.ErrRevokedRefreshToken)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.Len(t, f.events.ofType(entity.EventRefreshTokenReuse), callers-1)
}

func TestAuthService_Logout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "l@x.com", "password1", "Lou")

	login, err := f.auth.Login(ctx, loginInput("l@x.com", "password1"))
	require.NoError(t, err)

	f.auth.Logout(ctx, login.RefreshToken)
	f.auth.Logout(ctx, login.RefreshToken)
	f.auth.Logout(ctx, "never-issued")

	record, err := f.tokenRepo.FindByToken(ctx, login.RefreshToken)
	require.NoError(t, err)
	assert.True(t, record.Revoked)

	_, err = f.auth.RefreshTokens(ctx, login.RefreshToken)
	assert.ErrorIs(t, err, domainerrors.ErrRevokedRefreshToken)
	assert.Equal(t, 3, f.metrics.count(opLogout, outcomeSuccess))
}

func TestAuthService_LogoutReportsSwallowedStorageFailures(t *testing.T) {
	storageDown := domainerrors.NewStorageError(errStorageDown, "storage down")

	tests := []struct {
		name   string
		tokens func(repository.RefreshTokenRepository) repository.RefreshTokenRepository
	}{
		{
			name: "lookup fails",
			tokens: func(inner repository.RefreshTokenRepository) repository.RefreshTokenRepository {
				return &failingTokens{RefreshTokenRepository: inner, findErr: storageDown}
			},
		},
		{
			name: "revoke fails",
			tokens: func(inner repository.RefreshTokenRepository) repository.RefreshTokenRepository {
				return &failingTokens{RefreshTokenRepository: inner, revokeErr: storageDown}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			f.register(t, "l@x.com", "password1", "Lou")
			login, err := f.auth.Login(ctx, loginInput("l@x.com", "password1"))
			require.NoError(t, err)

			f.auth.refreshTokenRepo = tt.tokens(f.tokenRepo)
			f.auth.Logout(ctx, login.RefreshToken)

			assert.Equal(t, 1, f.metrics.count(opLogout, domainerrors.CodeStorageFailed))
			assert.Zero(t, f.metrics.count(opLogout, outcomeSuccess))
		})
	}
}

func federatedIdentity(subject, email string) *service.FederatedIdentity {
	return &service.FederatedIdentity{
		Subject:       subject,
		Email:         email,
		Name:          "Federated Name",
		Picture:       "https://example.com/avatar.png",
		EmailVerified: true,
		Audience:      "client-123",
	}
}

func TestAuthService_FederatedLinksExistingAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.register(t, "b@x.com", "password1", "Bea")

	f.verifier.On("Verify", mock.Anything, "google-token").
		Return(federatedIdentity("g-100", "b@x.com"), nil)

	out, err := f.auth.LoginWithFederatedIdentity(ctx, "google-token")
	require.NoError(t, err)
	assert.Equal(t, user.ID, out.User.ID)
	assert.NotEmpty(t, out.AccessToken)
	assert.NotEmpty(t, out.RefreshToken)

	stored, err := f.userRepo.FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.ProviderTypeGoogle, stored.AuthProvider)
	assert.Equal(t, "g-100", stored.ProviderSubject)
	assert.Equal(t, "https://example.com/avatar.png", stored.AvatarURL)
	assert.Equal(t, user.PasswordHash, stored.PasswordHash)
	assert.Equal(t, "Bea", stored.Name)

	_, err = f.auth.Login(ctx, loginInput("b@x.com", "password1"))
	assert.NoError(t, err, "password login keeps working after linking")

	assert.Len(t, f.events.ofType(entity.EventIdentityLinked), 1)
	f.verifier.AssertExpectations(t)
}

func TestAuthService_FederatedFindsBySubjectFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.verifier.On("Verify", mock.Anything, "first").
		Return(federatedIdentity("g-7", "old@x.com"), nil).Once()
	first, err := f.auth.LoginWithFederatedIdentity(ctx, "first")
	require.NoError(t, err)

	// Same subject, new email at the provider: the subject wins.
	f.verifier.On("Verify", mock.Anything, "second").
		Return(federatedIdentity("g-7", "new@x.com"), nil).Once()
	second, err := f.auth.LoginWithFederatedIdentity(ctx, "second")
	require.NoError(t, err)

	assert.Equal(t, first.User.ID, second.User.ID)
	users, err := f.userRepo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 1)
}

func TestAuthService_FederatedCreatesAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.verifier.On("Verify", mock.Anything, "new-user").
		Return(federatedIdentity("g-200", "fresh@x.com"), nil)

	out, err := f.auth.LoginWithFederatedIdentity(ctx, "new-user")
	require.NoError(t, err)

	assert.Equal(t, "fresh@x.com", out.User.Email)
	assert.Equal(t, "Federated Name", out.User.Name)
	assert.Equal(t, entity.ProviderTypeGoogle, out.User.AuthProvider)
	assert.Equal(t, "g-200", out.User.ProviderSubject)
	assert.False(t, out.User.HasPassword())
	assert.True(t, out.User.IsActive)

	_, err = f.auth.Login(ctx, loginInput("fresh@x.com", ""))
	assert.ErrorIs(t, err, domainerrors.ErrInvalidCredentials)

	registered := f.events.ofType(entity.EventUserRegistered)
	require.Len(t, registered, 1)
	assert.Equal(t, "google", registered[0].Attributes["provider"])
}

func TestAuthService_FederatedNameFallback(t *testing.T) {
	f := newFixture(t)

	identity := federatedIdentity("g-300", "nameless@x.com")
	identity.Name = ""
	f.verifier.On("Verify", mock.Anything, "tok").Return(identity, nil)

	out, err := f.auth.LoginWithFederatedIdentity(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, "nameless", out.User.Name)
}

func TestAuthService_FederatedKeepsExistingAvatar(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	user := entity.NewUser("pic@x.com", "Pic", entity.ProviderTypeEmail, time.Now())
	user.AvatarURL = "https://example.com/mine.png"
	require.NoError(t, f.userRepo.Create(ctx, user))

	f.verifier.On("Verify", mock.Anything, "tok").Return(federatedIdentity("g-400", "pic@x.com"), nil)

	out, err := f.auth.LoginWithFederatedIdentity(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/mine.png", out.User.AvatarURL)
}

func TestAuthService_FederatedRejections(t *testing.T) {
	t.Run("verifier rejects", func(t *testing.T) {
		f := newFixture(t)
		f.verifier.On("Verify", mock.Anything, "bad").Return(nil, domainerrors.ErrInvalidToken)

		_, err := f.auth.LoginWithFederatedIdentity(context.Background(), "bad")
		assert.ErrorIs(t, err, domainerrors.ErrInvalidToken)
		assert.Equal(t, 1, f.metrics.count(opLoginFederated, "INVALID_TOKEN"))
	})

	t.Run("provider unavailable", func(t *testing.T) {
		f := newFixture(t)
		f.verifier.On("Verify", mock.Anything, "tok").Return(nil, domainerrors.ErrIdentityProviderUnavailable)

		_, err := f.auth.LoginWithFederatedIdentity(context.Background(), "tok")
		assert.ErrorIs(t, err, domainerrors.ErrIdentityProviderUnavailable)
	})

	t.Run("missing email", func(t *testing.T) {
		f := newFixture(t)
		f.verifier.On("Verify", mock.Anything, "tok").Return(federatedIdentity("g-1", ""), nil)

		_, err := f.auth.LoginWithFederatedIdentity(context.Background(), "tok")
		assert.ErrorIs(t, err, domainerrors.ErrInvalidToken)
	})

	t.Run("unverified email when required", func(t *testing.T) {
		f := newFixture(t, func(cfg *config.Config) { cfg.GoogleOAuth.RequireVerifiedEmail = true })
		identity := federatedIdentity("g-1", "u@x.com")
		identity.EmailVerified = false
		f.verifier.On("Verify", mock.Anything, "tok").Return(identity, nil)

		_, err := f.auth.LoginWithFederatedIdentity(context.Background(), "tok")
		assert.ErrorIs(t, err, domainerrors.ErrInvalidToken)
	})

	t.Run("deactivated account", func(t *testing.T) {
		f := newFixture(t)
		user := f.register(t, "off@x.com", "password1", "Off")
		require.NoError(t, f.users.DeactivateAccount(context.Background(), user.ID))
		f.verifier.On("Verify", mock.Anything, "tok").Return(federatedIdentity("g-9", "off@x.com"), nil)

		_, err := f.auth.LoginWithFederatedIdentity(context.Background(), "tok")
		assert.ErrorIs(t, err, domainerrors.ErrAccountDeactivated)
	})
}

func TestAuthService_FederatedLinkUpdateFailure(t *testing.T) {
	f := newFixture(t)
	f.register(t, "b@x.com", "password1", "Bea")
	f.auth.userRepo = &failingUsers{UserRepository: f.userRepo, modifyErr: errStorageDown}
	f.verifier.On("Verify", mock.Anything, "tok").Return(federatedIdentity("g-1", "b@x.com"), nil)

	_, err := f.auth.LoginWithFederatedIdentity(context.Background(), "tok")
	assert.ErrorIs(t, err, errStorageDown)
	assert.Empty(t, f.events.ofType(entity.EventIdentityLinked))
}
