package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/singleflight"

	"github.com/novachat/nova/internal/shared"
)

// ServiceConfig bounds the token cache and sets issued-token lifetime.
type ServiceConfig struct {
	CacheSize int
	CacheTTL  time.Duration
	TokenTTL  time.Duration
}

func (c ServiceConfig) withDefaults() ServiceConfig {
	if c.CacheSize <= 0 {
		c.CacheSize = 10000
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = time.Hour
	}
	if c.TokenTTL <= 0 {
		c.TokenTTL = 7 * 24 * time.Hour
	}
	return c
}

// Service resolves opaque tokens to validated identities, caching results in
// a process-wide TTL-bounded cache and falling back to the store on miss.
type Service struct {
	store  Store
	cache  *expirable.LRU[string, *Token]
	group  singleflight.Group
	clock  clock.Clock
	logger *slog.Logger
	cfg    ServiceConfig
}

// NewService constructs a Service. A nil clock defaults to wall time.
func NewService(store Store, cfg ServiceConfig, clk clock.Clock, logger *slog.Logger) *Service {
	cfg = cfg.withDefaults()
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  store,
		cache:  expirable.NewLRU[string, *Token](cfg.CacheSize, nil, cfg.CacheTTL),
		clock:  clk,
		logger: logger,
		cfg:    cfg,
	}
}

// Authorize resolves a token string to an identity. Unknown, expired and
// empty tokens all fail with shared.ErrAuthFailure.
func (s *Service) Authorize(ctx context.Context, token string) (*Token, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, shared.ErrAuthFailure
	}

	if cached, ok := s.cache.Get(token); ok {
		if cached.Expired(s.clock.Now()) {
			s.cache.Remove(token)
			return nil, shared.ErrAuthFailure
		}
		return cached, nil
	}

	// Concurrent misses for the same token coalesce to one store lookup.
	value, err, _ := s.group.Do(token, func() (any, error) {
		found, err := s.store.FindToken(ctx, token)
		if err != nil {
			return nil, err
		}
		s.cache.Add(token, found)
		return found, nil
	})
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.ErrAuthFailure
		}
		return nil, fmt.Errorf("%w: token lookup: %v", shared.ErrStorage, err)
	}

	found := value.(*Token)
	if found.Expired(s.clock.Now()) {
		s.cache.Remove(token)
		return nil, shared.ErrAuthFailure
	}
	return found, nil
}

// Login checks credentials and issues a fresh token.
func (s *Service) Login(ctx context.Context, email, password, addr string) (*Token, error) {
	cred, err := s.store.FindCredential(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.ErrAuthFailure
		}
		return nil, fmt.Errorf("%w: credential lookup: %v", shared.ErrStorage, err)
	}
	if !cred.IsActive {
		return nil, shared.ErrAuthFailure
	}
	if err := bcrypt.CompareHashAndPassword([]byte(cred.PasswordHash), []byte(password)); err != nil {
		return nil, shared.ErrAuthFailure
	}

	now := s.clock.Now()
	token := &Token{
		ID:         uuid.NewString(),
		UserID:     cred.UserID,
		Scope:      DefaultScope,
		IssuedAt:   now,
		ExpiresAt:  now.Add(s.cfg.TokenTTL),
		IssuedAddr: addr,
	}
	if err := s.store.InsertToken(ctx, token); err != nil {
		return nil, fmt.Errorf("%w: token insert: %v", shared.ErrStorage, err)
	}
	s.cache.Add(token.ID, token)
	return token, nil
}

// Invalidate drops a token from the cache and the store (logout).
func (s *Service) Invalidate(ctx context.Context, tokenID string) error {
	s.cache.Remove(tokenID)
	if err := s.store.DeleteToken(ctx, tokenID); err != nil && !errors.Is(err, shared.ErrNotFound) {
		return fmt.Errorf("%w: token delete: %v", shared.ErrStorage, err)
	}
	return nil
}
