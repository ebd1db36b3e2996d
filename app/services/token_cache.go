// Package services provides external provider integrations and technical concerns like tokens
package services

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/amirphl/esim-fulfillment/app/metrics"
)

// Provider names an external API that requires a bearer token
type Provider string

const (
	ProviderStorefront  Provider = "digiseller"
	ProviderProvisioner Provider = "airalo"
)

// BearerToken is a provider token with an absolute expiry
type BearerToken struct {
	Value     string    `json:"value"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ValidAt reports whether the token can be used at the given instant
func (t *BearerToken) ValidAt(now time.Time) bool {
	return t != nil && t.Value != "" && t.ExpiresAt.After(now)
}

// TokenExchanger performs the credential exchange of one provider
type TokenExchanger interface {
	ExchangeToken(ctx context.Context) (*BearerToken, error)
}

// TokenStore persists tokens so replicas and restarts can reuse them.
// Load returns nil, nil when nothing is stored.
type TokenStore interface {
	Load(ctx context.Context, provider Provider) (*BearerToken, error)
	Store(ctx context.Context, provider Provider, token *BearerToken) error
}

// TokenCache hands out bearer tokens per provider
type TokenCache interface {
	GetToken(ctx context.Context, provider Provider, force bool) (string, error)
	Invalidate(provider Provider)
}

// TokenCacheImpl keeps one live token per provider and replaces it atomically.
// Concurrent misses may exchange more than once; the last writer wins.
type TokenCacheImpl struct {
	exchangers map[Provider]TokenExchanger
	slots      map[Provider]*atomic.Pointer[BearerToken]
	store      TokenStore
	logger     *log.Logger
	now        func() time.Time
}

// NewTokenCache creates a cache for the given providers. store may be nil.
func NewTokenCache(store TokenStore, logger *log.Logger, providers ...Provider) *TokenCacheImpl {
	if logger == nil {
		logger = log.Default()
	}
	c := &TokenCacheImpl{
		exchangers: make(map[Provider]TokenExchanger, len(providers)),
		slots:      make(map[Provider]*atomic.Pointer[BearerToken], len(providers)),
		store:      store,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, p := range providers {
		c.slots[p] = &atomic.Pointer[BearerToken]{}
	}
	return c
}

// Register binds the exchanger of a provider. Call it while wiring, before serving traffic.
func (c *TokenCacheImpl) Register(provider Provider, exchanger TokenExchanger) {
	if _, ok := c.slots[provider]; !ok {
		c.slots[provider] = &atomic.Pointer[BearerToken]{}
	}
	c.exchangers[provider] = exchanger
}

// GetToken returns the cached token while it is unexpired, otherwise exchanges a new one.
// force skips both the memory slot and the persisted copy.
func (c *TokenCacheImpl) GetToken(ctx context.Context, provider Provider, force bool) (string, error) {
	slot, ok := c.slots[provider]
	if !ok {
		return "", fmt.Errorf("token cache: unknown provider %q", provider)
	}
	now := c.now()

	if !force {
		if cached := slot.Load(); cached.ValidAt(now) {
			return cached.Value, nil
		}
		if stored := c.loadStored(ctx, provider); stored.ValidAt(now) {
			slot.Store(stored)
			return stored.Value, nil
		}
	}

	exchanger, ok := c.exchangers[provider]
	if !ok {
		return "", fmt.Errorf("token cache: no exchanger registered for %q", provider)
	}

	token, err := exchanger.ExchangeToken(ctx)
	if err != nil {
		result := "error"
		if IsAuthError(err) {
			result = "auth_error"
		}
		metrics.TokenExchangesTotal.WithLabelValues(string(provider), result).Inc()
		return "", err
	}
	if token == nil || token.Value == "" {
		metrics.TokenExchangesTotal.WithLabelValues(string(provider), "auth_error").Inc()
		return "", &AuthError{Provider: provider, Reason: "token exchange returned an empty token"}
	}
	metrics.TokenExchangesTotal.WithLabelValues(string(provider), "ok").Inc()

	slot.Store(token)
	c.persist(ctx, provider, token)

	return token.Value, nil
}

// Invalidate drops the in-memory token of a provider
func (c *TokenCacheImpl) Invalidate(provider Provider) {
	if slot, ok := c.slots[provider]; ok {
		slot.Store(nil)
	}
}

func (c *TokenCacheImpl) loadStored(ctx context.Context, provider Provider) *BearerToken {
	if c.store == nil {
		return nil
	}
	token, err := c.store.Load(ctx, provider)
	if err != nil {
		c.logger.Printf("token cache: load %s token from store failed: %v", provider, err)
		return nil
	}
	return token
}

func (c *TokenCacheImpl) persist(ctx context.Context, provider Provider, token *BearerToken) {
	if c.store == nil {
		return
	}
	if err := c.store.Store(ctx, provider, token); err != nil {
		c.logger.Printf("token cache: persist %s token failed: %v", provider, err)
	}
}
