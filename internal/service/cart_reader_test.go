package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CreativeSeo33/new3-sub001/internal/cache"
	"github.com/CreativeSeo33/new3-sub001/internal/domain"
	"github.com/CreativeSeo33/new3-sub001/internal/logger"
)

type fakeCache struct {
	mu    sync.Mutex
	carts map[string]domain.Cart

	gets, sets int
}

func newFakeCache() *fakeCache {
	return &fakeCache{carts: make(map[string]domain.Cart)}
}

func (c *fakeCache) Get(_ context.Context, key string) (*domain.Cart, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.gets++
	cart, ok := c.carts[key]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	return &cart, nil
}

func (c *fakeCache) Set(_ context.Context, key string, cart *domain.Cart) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sets++
	c.carts[key] = *cart
	return nil
}

func (c *fakeCache) Delete(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, key := range keys {
		delete(c.carts, key)
	}
	return nil
}

func (c *fakeCache) setCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sets
}

func TestResolve_CacheHit(t *testing.T) {
	repo := newFakeCartRepo()
	fc := newFakeCache()
	cctx := newTestContext(repo)
	reader := NewCartReader(cctx, fc, logger.NewNop())
	ctx := t.Context()

	userID := "user-1"
	cart := seedCart(repo)
	cart.UserID = &userID
	repo.carts[cart.ID] = cart
	fc.carts[cache.UserKey(userID)] = cart

	resolved, err := reader.Resolve(ctx, &userID, nil)
	require.NoError(t, err)
	assert.Equal(t, cart.ID, resolved.Cart.ID)

	// storage was never touched
	assert.Equal(t, 1, fc.gets)
}

func TestResolve_CacheMissFillsCache(t *testing.T) {
	repo := newFakeCartRepo()
	fc := newFakeCache()
	cctx := newTestContext(repo)
	reader := NewCartReader(cctx, fc, logger.NewNop())
	ctx := t.Context()

	userID := "user-1"
	cart := seedCart(repo)
	cart.UserID = &userID
	repo.carts[cart.ID] = cart

	resolved, err := reader.Resolve(ctx, &userID, nil)
	require.NoError(t, err)
	assert.Equal(t, cart.ID, resolved.Cart.ID)

	// the fill completes before Resolve returns, so a later
	// invalidation can never race with it
	assert.Equal(t, 1, fc.setCount())
	cached, err := fc.Get(ctx, cache.UserKey(userID))
	require.NoError(t, err)
	assert.Equal(t, cart.ID, cached.ID)
}

func TestResolve_FreshCartSkipsCache(t *testing.T) {
	repo := newFakeCartRepo()
	fc := newFakeCache()
	cctx := newTestContext(repo)
	reader := NewCartReader(cctx, fc, logger.NewNop())

	// no identity at all: a cart and token are created, nothing cached
	resolved, err := reader.Resolve(t.Context(), nil, nil)
	require.NoError(t, err)
	require.NotNil(t, resolved.NewToken)

	assert.Zero(t, fc.gets)
	assert.Zero(t, fc.setCount())
}

func TestResolve_UserWithTokenBypassesCache(t *testing.T) {
	repo := newFakeCartRepo()
	fc := newFakeCache()
	cctx := newTestContext(repo)
	reader := NewCartReader(cctx, fc, logger.NewNop())
	ctx := t.Context()

	guest, err := cctx.GetOrCreate(ctx, nil, nil)
	require.NoError(t, err)

	// a stale cached guest cart must not short-circuit the adopt/merge path
	fc.carts[cache.UserKey("user-1")] = guest.Cart

	userID := "user-1"
	resolved, err := reader.Resolve(ctx, &userID, guest.NewToken)
	require.NoError(t, err)

	require.NotNil(t, resolved.Cart.UserID)
	assert.Equal(t, userID, *resolved.Cart.UserID)
	assert.Zero(t, fc.gets)
}
