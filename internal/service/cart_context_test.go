package service

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/currency"

	"github.com/CreativeSeo33/new3-sub001/internal/cache"
	"github.com/CreativeSeo33/new3-sub001/internal/domain"
	"github.com/CreativeSeo33/new3-sub001/internal/logger"
)

func newTestContext(repo *fakeCartRepo) *CartContext {
	return NewCartContext(repo, NewCartLocks(), cache.Noop{}, logger.NewNop(), currency.USD, time.Hour, 50*time.Millisecond)
}

func TestGetOrCreate_NewGuestCart(t *testing.T) {
	repo := newFakeCartRepo()
	cctx := newTestContext(repo)

	resolved, err := cctx.GetOrCreate(t.Context(), nil, nil)
	require.NoError(t, err)

	require.NotNil(t, resolved.NewToken)
	assert.Equal(t, resolved.NewToken, resolved.Cart.Token)
	assert.Nil(t, resolved.Cart.UserID)
	assert.Equal(t, int64(0), resolved.Cart.Version)
	assert.Equal(t, domain.PolicySnapshot, resolved.Cart.PricingPolicy)
}

func TestGetOrCreate_ExistingToken(t *testing.T) {
	repo := newFakeCartRepo()
	cctx := newTestContext(repo)
	ctx := t.Context()

	first, err := cctx.GetOrCreate(ctx, nil, nil)
	require.NoError(t, err)

	second, err := cctx.GetOrCreate(ctx, nil, first.NewToken)
	require.NoError(t, err)

	assert.Nil(t, second.NewToken)
	assert.Equal(t, first.Cart.ID, second.Cart.ID)
}

func TestGetOrCreate_UnknownTokenCreatesFresh(t *testing.T) {
	repo := newFakeCartRepo()
	cctx := newTestContext(repo)

	stale := uuid.New()
	resolved, err := cctx.GetOrCreate(t.Context(), nil, &stale)
	require.NoError(t, err)

	require.NotNil(t, resolved.NewToken)
	assert.NotEqual(t, stale, *resolved.NewToken)
}

func TestGetOrCreate_NewUserCart(t *testing.T) {
	repo := newFakeCartRepo()
	cctx := newTestContext(repo)

	userID := "user-1"
	resolved, err := cctx.GetOrCreate(t.Context(), &userID, nil)
	require.NoError(t, err)

	assert.Nil(t, resolved.NewToken)
	require.NotNil(t, resolved.Cart.UserID)
	assert.Equal(t, userID, *resolved.Cart.UserID)
	assert.Nil(t, resolved.Cart.Token)
}

func TestGetOrCreate_AdoptsGuestCartOnFirstLogin(t *testing.T) {
	repo := newFakeCartRepo()
	catalog := newFakeCatalog(testProduct(1, 10, 100))
	cctx := newTestContext(repo)
	m := newTestManager(repo, catalog)
	ctx := t.Context()

	guest, err := cctx.GetOrCreate(ctx, nil, nil)
	require.NoError(t, err)
	_, err = m.AddItem(ctx, guest.Cart.ID, VersionAny, 1, 2, nil)
	require.NoError(t, err)

	userID := "user-1"
	resolved, err := cctx.GetOrCreate(ctx, &userID, guest.NewToken)
	require.NoError(t, err)

	assert.Equal(t, guest.Cart.ID, resolved.Cart.ID)
	require.NotNil(t, resolved.Cart.UserID)
	assert.Equal(t, userID, *resolved.Cart.UserID)
	// adoption is a mutation and moves the version
	assert.Equal(t, int64(2), resolved.Cart.Version)
	assert.Len(t, resolved.Cart.Items, 1)
}

func TestGetOrCreate_MergesGuestIntoUserCart(t *testing.T) {
	repo := newFakeCartRepo()
	catalog := newFakeCatalog(testProduct(1, 10, 100), testProduct(2, 20, 100))
	cctx := newTestContext(repo)
	m := newTestManager(repo, catalog)
	ctx := t.Context()

	userID := "user-1"
	user, err := cctx.GetOrCreate(ctx, &userID, nil)
	require.NoError(t, err)
	_, err = m.AddItem(ctx, user.Cart.ID, VersionAny, 1, 2, nil)
	require.NoError(t, err)

	guest, err := cctx.GetOrCreate(ctx, nil, nil)
	require.NoError(t, err)
	_, err = m.AddItem(ctx, guest.Cart.ID, VersionAny, 1, 3, nil)
	require.NoError(t, err)
	_, err = m.AddItem(ctx, guest.Cart.ID, VersionAny, 2, 1, nil)
	require.NoError(t, err)

	resolved, err := cctx.GetOrCreate(ctx, &userID, guest.NewToken)
	require.NoError(t, err)

	assert.Equal(t, user.Cart.ID, resolved.Cart.ID)
	require.Len(t, resolved.Cart.Items, 2)

	// matching selection summed, the other moved over
	merged := resolved.Cart.FindItem(1, "")
	require.NotNil(t, merged)
	assert.Equal(t, 5, merged.Qty)
	moved := resolved.Cart.FindItem(2, "")
	require.NotNil(t, moved)
	assert.Equal(t, resolved.Cart.ID, moved.CartID)

	// user cart was at version 1; the merge is one more mutation
	assert.Equal(t, int64(2), resolved.Cart.Version)
	assert.Equal(t, 6, resolved.Cart.TotalItemQuantity)

	// the guest cart is gone
	_, err = repo.GetCart(ctx, guest.Cart.ID)
	assert.Equal(t, domain.KindCartNotFound, domain.KindOf(err))
}
