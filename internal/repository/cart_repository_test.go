package repository_test

import (
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"golang.org/x/text/currency"

	"github.com/CreativeSeo33/new3-sub001/internal/domain"
	"github.com/CreativeSeo33/new3-sub001/internal/port"
	"github.com/CreativeSeo33/new3-sub001/internal/repository"
)

type cartRepositorySuite struct {
	suite.Suite

	repo port.CartRepository
	pool *pgxpool.Pool
}

// entry point to run the tests in the suite
func TestCartRepositorySuite(t *testing.T) {
	suite.Run(t, new(cartRepositorySuite))
}

// before all tests in the suite
func (suite *cartRepositorySuite) SetupSuite() {
	ctx := suite.T().Context()

	var err error
	_, suite.pool, err = startPostgres(ctx)
	suite.NoError(err)

	suite.repo = repository.NewCart(suite.pool)
}

// after all tests in the suite
func (suite *cartRepositorySuite) TearDownSuite() {
	if suite.pool != nil {
		suite.pool.Close()
	}
}

func (suite *cartRepositorySuite) TestCreateGetCart() {
	defer suite.deleteAll()
	t := suite.T()
	ctx := t.Context()

	cart := randomCart()

	require.NoError(t, suite.repo.CreateCart(ctx, cart))

	actual, err := suite.repo.GetCart(ctx, cart.ID)
	require.NoError(t, err)
	assertCart(t, cart, actual)
}

func (suite *cartRepositorySuite) TestGetCart_NotFound() {
	t := suite.T()

	_, err := suite.repo.GetCart(t.Context(), domain.NewID())
	assert.Equal(t, domain.KindCartNotFound, domain.KindOf(err))
}

func (suite *cartRepositorySuite) TestFindByUser() {
	defer suite.deleteAll()
	t := suite.T()
	ctx := t.Context()

	userID := gofakeit.UUID()
	cart := randomCart()
	cart.UserID = &userID
	require.NoError(t, suite.repo.CreateCart(ctx, cart))

	actual, found, err := suite.repo.FindByUser(ctx, userID)
	require.NoError(t, err)
	require.True(t, found)
	assertCart(t, cart, actual)

	_, found, err = suite.repo.FindByUser(ctx, gofakeit.UUID())
	require.NoError(t, err)
	assert.False(t, found)

	_, _, err = suite.repo.FindByUser(ctx, "")
	require.EqualError(t, err, "userID is empty")
}

func (suite *cartRepositorySuite) TestFindByToken() {
	defer suite.deleteAll()
	t := suite.T()
	ctx := t.Context()

	token := uuid.New()
	cart := randomCart()
	cart.Token = &token
	require.NoError(t, suite.repo.CreateCart(ctx, cart))

	actual, found, err := suite.repo.FindByToken(ctx, token)
	require.NoError(t, err)
	require.True(t, found)
	assertCart(t, cart, actual)

	_, found, err = suite.repo.FindByToken(ctx, uuid.New())
	require.NoError(t, err)
	assert.False(t, found)
}

func (suite *cartRepositorySuite) TestApply_AddItems() {
	defer suite.deleteAll()
	t := suite.T()
	ctx := t.Context()

	cart := randomCart()
	require.NoError(t, suite.repo.CreateCart(ctx, cart))

	first := randomCartItem(cart.ID)
	second := randomCartItem(cart.ID)
	second.CreatedAt = first.CreatedAt.Add(time.Second)

	cart.Items = []domain.CartItem{first, second}
	cart.Version = 1
	require.NoError(t, suite.repo.Apply(ctx, cart, 0, []domain.ItemChange{
		{Type: domain.ChangeAdded, Item: first},
		{Type: domain.ChangeAdded, Item: second},
	}))

	actual, err := suite.repo.GetCart(ctx, cart.ID)
	require.NoError(t, err)

	assert.Equal(t, int64(1), actual.Version)
	require.Len(t, actual.Items, 2)
	assertCartItem(t, first, actual.Items[0])
	assertCartItem(t, second, actual.Items[1])
}

func (suite *cartRepositorySuite) TestApply_UpdateAndRemove() {
	defer suite.deleteAll()
	t := suite.T()
	ctx := t.Context()

	cart := randomCart()
	require.NoError(t, suite.repo.CreateCart(ctx, cart))

	item := randomCartItem(cart.ID)
	cart.Items = []domain.CartItem{item}
	cart.Version = 1
	require.NoError(t, suite.repo.Apply(ctx, cart, 0, []domain.ItemChange{
		{Type: domain.ChangeAdded, Item: item},
	}))

	item.Qty = item.Qty + 3
	item.RowTotal = item.EffectiveUnitPrice.Mul(decimal.NewFromInt(int64(item.Qty)))
	cart.Items = []domain.CartItem{item}
	cart.Version = 2
	require.NoError(t, suite.repo.Apply(ctx, cart, 1, []domain.ItemChange{
		{Type: domain.ChangeUpdated, Item: item},
	}))

	actual, err := suite.repo.GetCart(ctx, cart.ID)
	require.NoError(t, err)
	require.Len(t, actual.Items, 1)
	assertCartItem(t, item, actual.Items[0])

	cart.Items = nil
	cart.Version = 3
	require.NoError(t, suite.repo.Apply(ctx, cart, 2, []domain.ItemChange{
		{Type: domain.ChangeRemoved, Item: item},
	}))

	actual, err = suite.repo.GetCart(ctx, cart.ID)
	require.NoError(t, err)
	assert.Empty(t, actual.Items)
}

func (suite *cartRepositorySuite) TestApply_VersionConflict() {
	defer suite.deleteAll()
	t := suite.T()
	ctx := t.Context()

	cart := randomCart()
	require.NoError(t, suite.repo.CreateCart(ctx, cart))

	cart.Version = 1
	err := suite.repo.Apply(ctx, cart, 7, nil)

	de, ok := domain.AsError(err)
	require.True(t, ok)
	assert.Equal(t, domain.KindVersionConflict, de.Kind)
	assert.Equal(t, int64(0), de.CurrentVersion)
}

func (suite *cartRepositorySuite) TestDeleteCart() {
	defer suite.deleteAll()
	t := suite.T()
	ctx := t.Context()

	cart := randomCart()
	require.NoError(t, suite.repo.CreateCart(ctx, cart))

	item := randomCartItem(cart.ID)
	cart.Items = []domain.CartItem{item}
	cart.Version = 1
	require.NoError(t, suite.repo.Apply(ctx, cart, 0, []domain.ItemChange{
		{Type: domain.ChangeAdded, Item: item},
	}))

	require.NoError(t, suite.repo.DeleteCart(ctx, cart.ID))

	_, err := suite.repo.GetCart(ctx, cart.ID)
	assert.Equal(t, domain.KindCartNotFound, domain.KindOf(err))

	// items went with the cart
	var count int
	require.NoError(t, suite.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM cart_items WHERE cart_id = $1", cart.ID).Scan(&count))
	assert.Zero(t, count)
}

func (suite *cartRepositorySuite) TestDeleteExpired() {
	defer suite.deleteAll()
	t := suite.T()
	ctx := t.Context()

	expired := randomCart()
	expired.ExpiresAt = time.Now().Add(-time.Hour)
	require.NoError(t, suite.repo.CreateCart(ctx, expired))

	live := randomCart()
	require.NoError(t, suite.repo.CreateCart(ctx, live))

	purged, err := suite.repo.DeleteExpired(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)

	_, err = suite.repo.GetCart(ctx, expired.ID)
	assert.Equal(t, domain.KindCartNotFound, domain.KindOf(err))

	_, err = suite.repo.GetCart(ctx, live.ID)
	assert.NoError(t, err)
}

func (suite *cartRepositorySuite) deleteAll() {
	_, err := suite.pool.Exec(suite.T().Context(), "TRUNCATE TABLE carts CASCADE")
	suite.NoError(err)
}

func randomCart() domain.Cart {
	token := uuid.New()
	now := time.Now().UTC().Truncate(time.Microsecond)

	return domain.Cart{
		ID:            domain.NewID(),
		Token:         &token,
		Version:       0,
		Currency:      randomCurrency(),
		PricingPolicy: domain.PolicySnapshot,
		Subtotal:      decimal.Zero,
		DiscountTotal: decimal.Zero,
		Total:         decimal.Zero,
		ExpiresAt:     now.Add(30 * 24 * time.Hour),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func randomCartItem(cartID uuid.UUID) domain.CartItem {
	price := decimal.NewFromFloat(gofakeit.Price(1, 100))
	modifier := decimal.NewFromFloat(gofakeit.Price(0, 10))
	qty := gofakeit.Number(1, 5)
	now := time.Now().UTC().Truncate(time.Microsecond)

	effective := price.Add(modifier)
	optionID := int64(gofakeit.Number(1, 1000))

	return domain.CartItem{
		ID:                   domain.NewID(),
		CartID:               cartID,
		ProductID:            int64(gofakeit.Number(1, 100000)),
		ProductName:          gofakeit.ProductName(),
		Qty:                  qty,
		UnitPrice:            price,
		OptionsPriceModifier: modifier,
		EffectiveUnitPrice:   effective,
		RowTotal:             effective.Mul(decimal.NewFromInt(int64(qty))),
		OptionsHash:          domain.OptionsHash([]int64{optionID}),
		OptionsSnapshot: []domain.SelectedOption{
			{
				AssignmentID:  optionID,
				Name:          gofakeit.Word(),
				Value:         gofakeit.Word(),
				PriceModifier: modifier,
			},
		},
		PricedAt:  now,
		CreatedAt: now,
	}
}

func randomCurrency() currency.Unit {
	var (
		result currency.Unit
		err    error
	)

	for {
		// tag is not a recognized currency
		result, err = currency.ParseISO(gofakeit.CurrencyShort())
		if err == nil {
			break
		}
	}

	return result
}

func cmpOptions() cmp.Options {
	currencyComparer := cmp.Comparer(func(x, y currency.Unit) bool {
		return x.String() == y.String()
	})
	decimalComparer := cmp.Comparer(func(x, y decimal.Decimal) bool {
		return x.Equal(y)
	})

	return cmp.Options{
		currencyComparer,
		decimalComparer,
		cmpopts.EquateApproxTime(time.Second),
	}
}

func assertCart(t *testing.T, expected, actual domain.Cart) {
	t.Helper()

	opts := append(cmpOptions(), cmpopts.IgnoreFields(domain.Cart{}, "Items"))

	diff := cmp.Diff(expected, actual, opts)
	assert.Empty(t, diff)
}

func assertCartItem(t *testing.T, expected, actual domain.CartItem) {
	t.Helper()

	diff := cmp.Diff(expected, actual, cmpOptions())
	assert.Empty(t, diff)

	assert.False(t, actual.CreatedAt.IsZero())
}
