package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"

	"github.com/CreativeSeo33/new3-sub001/internal/cache"
	"github.com/CreativeSeo33/new3-sub001/internal/domain"
	"github.com/CreativeSeo33/new3-sub001/internal/logger"
)

// fakeCartRepo is a map-backed CartRepository with the same version
// guard the real one enforces. A non-nil applyGate parks the next
// Apply call mid-flight: it sends once on entry, then waits for the
// test to send back before committing.
type fakeCartRepo struct {
	mu    sync.Mutex
	carts map[uuid.UUID]domain.Cart

	applyCalls int
	applyGate  chan struct{}
}

func newFakeCartRepo() *fakeCartRepo {
	return &fakeCartRepo{carts: make(map[uuid.UUID]domain.Cart)}
}

func (r *fakeCartRepo) GetCart(_ context.Context, cartID uuid.UUID) (domain.Cart, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cart, ok := r.carts[cartID]
	if !ok {
		return domain.Cart{}, domain.ErrCartNotFound()
	}
	return copyCart(cart), nil
}

func (r *fakeCartRepo) FindByUser(_ context.Context, userID string) (domain.Cart, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, cart := range r.carts {
		if cart.UserID != nil && *cart.UserID == userID {
			return copyCart(cart), true, nil
		}
	}
	return domain.Cart{}, false, nil
}

func (r *fakeCartRepo) FindByToken(_ context.Context, token uuid.UUID) (domain.Cart, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, cart := range r.carts {
		if cart.Token != nil && *cart.Token == token {
			return copyCart(cart), true, nil
		}
	}
	return domain.Cart{}, false, nil
}

func (r *fakeCartRepo) CreateCart(_ context.Context, cart domain.Cart) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.carts[cart.ID] = copyCart(cart)
	return nil
}

func (r *fakeCartRepo) Apply(_ context.Context, cart domain.Cart, expectedVersion int64, _ []domain.ItemChange) error {
	r.mu.Lock()
	gate := r.applyGate
	r.applyGate = nil
	r.mu.Unlock()
	if gate != nil {
		gate <- struct{}{}
		<-gate
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.applyCalls++

	stored, ok := r.carts[cart.ID]
	if !ok {
		return domain.ErrCartNotFound()
	}
	if stored.Version != expectedVersion {
		return domain.ErrVersionConflict(stored.Version, nil)
	}

	r.carts[cart.ID] = copyCart(cart)
	return nil
}

func (r *fakeCartRepo) DeleteCart(_ context.Context, cartID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.carts, cartID)
	return nil
}

func (r *fakeCartRepo) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var purged int64
	for id, cart := range r.carts {
		if cart.ExpiresAt.Before(now) {
			delete(r.carts, id)
			purged++
		}
	}
	return purged, nil
}

func copyCart(cart domain.Cart) domain.Cart {
	out := cart
	out.Items = make([]domain.CartItem, len(cart.Items))
	copy(out.Items, cart.Items)
	return out
}

type fakeCatalog struct {
	mu       sync.Mutex
	products map[int64]domain.Product
}

func newFakeCatalog(products ...domain.Product) *fakeCatalog {
	c := &fakeCatalog{products: make(map[int64]domain.Product)}
	for _, p := range products {
		c.products[p.ID] = p
	}
	return c
}

func (c *fakeCatalog) GetProduct(_ context.Context, productID int64) (domain.Product, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.products[productID]
	if !ok {
		return domain.Product{}, domain.Validationf("productId", "product[%d] not found", productID)
	}
	return p, nil
}

func (c *fakeCatalog) setPrice(productID int64, amount decimal.Decimal) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p := c.products[productID]
	p.Price.Amount = amount
	c.products[productID] = p
}

func usd(amount float64) domain.Money {
	return domain.Money{Amount: decimal.NewFromFloat(amount), Currency: currency.USD}
}

func testProduct(id int64, price float64, available int) domain.Product {
	return domain.Product{
		ID:        id,
		Name:      "product",
		Price:     usd(price),
		Available: available,
		Options: map[int64]domain.ProductOption{
			10: {AssignmentID: 10, Name: "size", Value: "L", PriceModifier: decimal.NewFromInt(2)},
			20: {AssignmentID: 20, Name: "color", Value: "red", PriceModifier: decimal.NewFromInt(3)},
		},
	}
}

func newTestManager(repo *fakeCartRepo, catalog *fakeCatalog) *CartManager {
	live := NewLivePriceCalculator(catalog)
	return NewCartManager(repo, catalog, live, NewCartLocks(), cache.Noop{}, logger.NewNop(), 50*time.Millisecond, time.Hour)
}

func seedCart(repo *fakeCartRepo) domain.Cart {
	now := time.Now()
	cart := domain.Cart{
		ID:            domain.NewID(),
		Version:       0,
		Currency:      currency.USD,
		PricingPolicy: domain.PolicySnapshot,
		ExpiresAt:     now.Add(time.Hour),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	repo.carts[cart.ID] = cart
	return cart
}
