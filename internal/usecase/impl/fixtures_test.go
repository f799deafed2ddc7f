package impl

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"athlo/config"
	"athlo/internal/domain/entity"
	"athlo/internal/domain/repository"
	"athlo/internal/domain/service"
	"athlo/internal/errors"
	"athlo/internal/infra/auth"
	"athlo/internal/infra/persistence/jsonstore"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gocloud.dev/blob/memblob"
	"golang.org/x/crypto/bcrypt"
)

func newDiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestConfig() *config.Config {
	return &config.Config{
		Auth: &config.AuthConfig{
			SecretKey:         "orchestrator-test-secret",
			SigningAlgorithm:  "HS256",
			AccessTokenTTL:    15 * time.Minute,
			RefreshTokenTTL:   7 * 24 * time.Hour,
			BcryptCost:        bcrypt.MinCost,
			MinPasswordLength: 8,
		},
		GoogleOAuth: &config.GoogleOAuthConfig{},
	}
}

// mockVerifier stands in for the federated identity provider.
type mockVerifier struct {
	mock.Mock
}

func (m *mockVerifier) Verify(ctx context.Context, idToken string) (*service.FederatedIdentity, error) {
	args := m.Called(ctx, idToken)
	identity, _ := args.Get(0).(*service.FederatedIdentity)

	return identity, args.Error(1)
}

func (m *mockVerifier) Provider() entity.ProviderType {
	return entity.ProviderTypeGoogle
}

// recordingPublisher keeps every published event.
type recordingPublisher struct {
	mu     sync.Mutex
	events []*entity.AuthEvent
	err    error
}

func (p *recordingPublisher) PublishAuthEvent(_ context.Context, event *entity.AuthEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.events = append(p.events, event)

	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) ofType(eventType entity.AuthEventType) []*entity.AuthEvent {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []*entity.AuthEvent
	for _, e := range p.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}

	return out
}

// recordingMetrics counts outcomes per operation.
type recordingMetrics struct {
	mu     sync.Mutex
	counts map[string]int
}

func (m *recordingMetrics) ObserveOutcome(operation, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.counts == nil {
		m.counts = map[string]int{}
	}
	m.counts[operation+"/"+outcome]++
}

func (m *recordingMetrics) count(operation, outcome string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.counts[operation+"/"+outcome]
}

type fixture struct {
	auth      *authService
	users     *userService
	userRepo  repository.UserRepository
	tokenRepo repository.RefreshTokenRepository
	hasher    service.PasswordHasher
	tokens    service.TokenService
	verifier  *mockVerifier
	events    *recordingPublisher
	metrics   *recordingMetrics
}

func newFixture(t *testing.T, tweaks ...func(*config.Config)) *fixture {
	t.Helper()

	cfg := newTestConfig()
	for _, tweak := range tweaks {
		tweak(cfg)
	}

	bucket := memblob.OpenBucket(nil)
	t.Cleanup(func() { _ = bucket.Close() })

	userRepo := jsonstore.NewUserRepository(bucket)
	tokenRepo := jsonstore.NewRefreshTokenRepository(bucket)
	hasher := auth.NewBcryptHasher(cfg)
	tokens, err := auth.NewJWTService(cfg, tokenRepo)
	require.NoError(t, err)

	f := &fixture{
		userRepo:  userRepo,
		tokenRepo: tokenRepo,
		hasher:    hasher,
		tokens:    tokens,
		verifier:  &mockVerifier{},
		events:    &recordingPublisher{},
		metrics:   &recordingMetrics{},
	}

	f.auth = newAuthService(AuthServiceParams{
		UserRepo:         userRepo,
		RefreshTokenRepo: tokenRepo,
		Hasher:           hasher,
		TokenService:     tokens,
		Verifier:         f.verifier,
		Publisher:        f.events,
		Metrics:          f.metrics,
		Config:           cfg,
		Logger:           newDiscardLogger(),
	}, time.Now)

	f.users = newUserService(UserServiceParams{
		UserRepo:         userRepo,
		RefreshTokenRepo: tokenRepo,
		Hasher:           hasher,
		Publisher:        f.events,
		Metrics:          f.metrics,
		Config:           cfg,
		Logger:           newDiscardLogger(),
	}, time.Now)

	return f
}

func (f *fixture) register(t *testing.T, email, password, name string) *entity.User {
	t.Helper()

	user, err := f.auth.Register(context.Background(), registerInput(email, password, name))
	require.NoError(t, err)

	return user
}

// failingUsers wraps a repository and fails selected calls.
type failingUsers struct {
	repository.UserRepository
	findByEmailErr error
	modifyErr      error
}

func (f *failingUsers) FindByEmail(ctx context.Context, email string) (*entity.User, error) {
	if f.findByEmailErr != nil {
		return nil, f.findByEmailErr
	}

	return f.UserRepository.FindByEmail(ctx, email)
}

func (f *failingUsers) Modify(ctx context.Context, id uuid.UUID, fn repository.UserMutation) (*entity.User, error) {
	if f.modifyErr != nil {
		return nil, f.modifyErr
	}

	return f.UserRepository.Modify(ctx, id, fn)
}

// gatedHasher parks the first Hash call until release is closed, so a test
// can interleave another operation with a slow password hash.
type gatedHasher struct {
	service.PasswordHasher
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newGatedHasher(inner service.PasswordHasher) *gatedHasher {
	return &gatedHasher{
		PasswordHasher: inner,
		entered:        make(chan struct{}),
		release:        make(chan struct{}),
	}
}

func (h *gatedHasher) Hash(password string) (string, error) {
	first := false
	h.once.Do(func() { first = true })
	if first {
		close(h.entered)
		<-h.release
	}

	return h.PasswordHasher.Hash(password)
}

var errStorageDown = errors.New("storage down")

// failingTokens wraps a refresh token repository and fails selected calls.
type failingTokens struct {
	repository.RefreshTokenRepository
	findErr   error
	revokeErr error
}

func (f *failingTokens) FindByToken(ctx context.Context, token string) (*entity.RefreshToken, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}

	return f.RefreshTokenRepository.FindByToken(ctx, token)
}

func (f *failingTokens) Revoke(ctx context.Context, id uuid.UUID) error {
	if f.revokeErr != nil {
		return f.revokeErr
	}

	return f.RefreshTokenRepository.Revoke(ctx, id)
}
