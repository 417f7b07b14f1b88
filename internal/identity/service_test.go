package identity_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/novachat/nova/internal/identity"
	"github.com/novachat/nova/internal/shared"
)

type stubStore struct {
	tokens  map[string]*identity.Token
	cred    *identity.Credential
	lookups atomic.Int64
}

func newStubStore() *stubStore {
	return &stubStore{tokens: make(map[string]*identity.Token)}
}

func (s *stubStore) FindToken(ctx context.Context, id string) (*identity.Token, error) {
	s.lookups.Add(1)
	token, ok := s.tokens[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return token, nil
}

func (s *stubStore) InsertToken(ctx context.Context, token *identity.Token) error {
	s.tokens[token.ID] = token
	return nil
}

func (s *stubStore) DeleteToken(ctx context.Context, id string) error {
	if _, ok := s.tokens[id]; !ok {
		return shared.ErrNotFound
	}
	delete(s.tokens, id)
	return nil
}

func (s *stubStore) FindCredential(ctx context.Context, email string) (*identity.Credential, error) {
	if s.cred == nil || s.cred.Email != email {
		return nil, shared.ErrNotFound
	}
	return s.cred, nil
}

func TestAuthorizeCachesLookups(t *testing.T) {
	store := newStubStore()
	mock := clock.NewMock()
	store.tokens["tok-1"] = &identity.Token{ID: "tok-1", UserID: 42, ExpiresAt: mock.Now().Add(time.Hour)}

	svc := identity.NewService(store, identity.ServiceConfig{}, mock, nil)

	for range 3 {
		token, err := svc.Authorize(context.Background(), "tok-1")
		require.NoError(t, err)
		assert.Equal(t, int64(42), token.UserID)
	}
	assert.Equal(t, int64(1), store.lookups.Load(), "repeat authorizations should hit the cache")
}

func TestAuthorizeFailures(t *testing.T) {
	store := newStubStore()
	mock := clock.NewMock()
	svc := identity.NewService(store, identity.ServiceConfig{}, mock, nil)

	_, err := svc.Authorize(context.Background(), "")
	assert.ErrorIs(t, err, shared.ErrAuthFailure)

	_, err = svc.Authorize(context.Background(), "unknown")
	assert.ErrorIs(t, err, shared.ErrAuthFailure)
}

func TestAuthorizeExpiredToken(t *testing.T) {
	store := newStubStore()
	mock := clock.NewMock()
	store.tokens["tok-exp"] = &identity.Token{ID: "tok-exp", UserID: 7, ExpiresAt: mock.Now().Add(time.Minute)}

	svc := identity.NewService(store, identity.ServiceConfig{}, mock, nil)

	_, err := svc.Authorize(context.Background(), "tok-exp")
	require.NoError(t, err)

	mock.Add(2 * time.Minute)
	_, err = svc.Authorize(context.Background(), "tok-exp")
	assert.ErrorIs(t, err, shared.ErrAuthFailure)
}

func TestLoginIssuesToken(t *testing.T) {
	hashed, err := bcrypt.GenerateFromPassword([]byte("correctpass"), bcrypt.DefaultCost)
	require.NoError(t, err)

	store := newStubStore()
	store.cred = &identity.Credential{UserID: 9, Email: "user@test.local", PasswordHash: string(hashed), IsActive: true}
	mock := clock.NewMock()
	svc := identity.NewService(store, identity.ServiceConfig{TokenTTL: time.Hour}, mock, nil)

	token, err := svc.Login(context.Background(), "user@test.local", "correctpass", "127.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, int64(9), token.UserID)
	assert.Equal(t, identity.DefaultScope, token.Scope)
	assert.Equal(t, mock.Now().Add(time.Hour), token.ExpiresAt)

	// Issued token authorizes without a store round trip.
	store.lookups.Store(0)
	got, err := svc.Authorize(context.Background(), token.ID)
	require.NoError(t, err)
	assert.Equal(t, token.ID, got.ID)
	assert.Zero(t, store.lookups.Load())

	_, err = svc.Login(context.Background(), "user@test.local", "wrongpass", "127.0.0.1")
	assert.ErrorIs(t, err, shared.ErrAuthFailure)
}

func TestInvalidate(t *testing.T) {
	store := newStubStore()
	mock := clock.NewMock()
	store.tokens["tok-gone"] = &identity.Token{ID: "tok-gone", UserID: 3, ExpiresAt: mock.Now().Add(time.Hour)}

	svc := identity.NewService(store, identity.ServiceConfig{}, mock, nil)

	_, err := svc.Authorize(context.Background(), "tok-gone")
	require.NoError(t, err)

	require.NoError(t, svc.Invalidate(context.Background(), "tok-gone"))
	_, err = svc.Authorize(context.Background(), "tok-gone")
	assert.ErrorIs(t, err, shared.ErrAuthFailure)
}
