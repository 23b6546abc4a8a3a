package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/CreativeSeo33/new3-sub001/internal/cache"
	"github.com/CreativeSeo33/new3-sub001/internal/domain"
	"github.com/CreativeSeo33/new3-sub001/internal/logger"
	"github.com/CreativeSeo33/new3-sub001/internal/port"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	// DefaultLockWait bounds how long a request blocks on a busy cart.
	DefaultLockWait = 2 * time.Second
	// DefaultCartTTL is the inactivity window before the sweep may
	// purge a cart; every successful mutation extends it.
	DefaultCartTTL = 30 * 24 * time.Hour
)

// VersionAny skips the version precondition; the mutation applies
// against whatever version holds once the cart lock is granted.
const VersionAny int64 = -1

// CartManager executes every cart mutation under the per-cart lock,
// recomputes totals and persists the result with a version guard.
type CartManager struct {
	repo    port.CartRepository
	catalog port.ProductCatalog
	calc    CartCalculator
	live    *LivePriceCalculator
	locks   *CartLocks
	cache   cache.CartCache
	log     *logger.Logger

	lockWait time.Duration
	cartTTL  time.Duration
	now      func() time.Time
}

func NewCartManager(
	repo port.CartRepository,
	catalog port.ProductCatalog,
	live *LivePriceCalculator,
	locks *CartLocks,
	cartCache cache.CartCache,
	log *logger.Logger,
	lockWait, cartTTL time.Duration,
) *CartManager {
	if lockWait <= 0 {
		lockWait = DefaultLockWait
	}
	if cartTTL <= 0 {
		cartTTL = DefaultCartTTL
	}
	if cartCache == nil {
		cartCache = cache.Noop{}
	}
	return &CartManager{
		repo:     repo,
		catalog:  catalog,
		live:     live,
		locks:    locks,
		cache:    cartCache,
		log:      log,
		lockWait: lockWait,
		cartTTL:  cartTTL,
		now:      time.Now,
	}
}

// MutationResult is the updated cart plus the structured change list
// the delta builder consumes.
type MutationResult struct {
	Cart    domain.Cart
	Changes []domain.ItemChange
}

// mutate is the shared skeleton: acquire the cart lock, load, verify
// the caller's expected version, run fn, recompute totals, bump the
// version by one and persist in one transaction. The version check
// happens under the lock, so two requests carrying the same expected
// version can never both commit. Changed entries are refreshed after
// recomputation so their row totals are current.
func (m *CartManager) mutate(ctx context.Context, cartID uuid.UUID, expected int64, fn func(cart *domain.Cart) ([]domain.ItemChange, error)) (MutationResult, error) {
	release, err := m.locks.Acquire(ctx, cartID, m.lockWait)
	if err != nil {
		return MutationResult{}, err
	}
	defer release()

	cart, err := m.repo.GetCart(ctx, cartID)
	if err != nil {
		return MutationResult{}, err
	}
	if expected != VersionAny && cart.Version != expected {
		return MutationResult{}, domain.ErrPreconditionFailed(cart.Version)
	}
	base := cart.Version

	changes, err := fn(&cart)
	if err != nil {
		return MutationResult{}, err
	}

	m.finalize(&cart, base+1)
	refreshChanges(&cart, changes)

	if err := m.repo.Apply(ctx, cart, base, changes); err != nil {
		return MutationResult{}, err
	}
	m.invalidate(ctx, cart)

	return MutationResult{Cart: cart, Changes: changes}, nil
}

func (m *CartManager) finalize(cart *domain.Cart, version int64) {
	m.calc.Recalculate(cart)
	now := m.now()
	cart.Version = version
	cart.UpdatedAt = now
	cart.ExpiresAt = now.Add(m.cartTTL)
}

func refreshChanges(cart *domain.Cart, changes []domain.ItemChange) {
	for i := range changes {
		if changes[i].Type == domain.ChangeRemoved {
			continue
		}
		if cur := cart.FindItemByID(changes[i].Item.ID); cur != nil {
			changes[i].Item = *cur
		}
	}
}

func (m *CartManager) invalidate(ctx context.Context, cart domain.Cart) {
	keys := cache.Keys(cart)
	if len(keys) == 0 {
		return
	}
	if err := m.cache.Delete(ctx, keys...); err != nil {
		m.log.Warn("cache invalidate failed", "cart_id", cart.ID, "error", err)
	}
}

// AddItem merges into an existing (product, optionsHash) row or
// snapshots a new one, subject to the stock check.
func (m *CartManager) AddItem(ctx context.Context, cartID uuid.UUID, expected int64, productID int64, qty int, optionIDs []int64) (MutationResult, error) {
	if qty <= 0 {
		return MutationResult{}, domain.Validationf("qty", "qty must be positive, got %d", qty)
	}

	return m.mutate(ctx, cartID, expected, func(cart *domain.Cart) ([]domain.ItemChange, error) {
		return m.addItem(ctx, cart, productID, qty, optionIDs)
	})
}

func (m *CartManager) addItem(ctx context.Context, cart *domain.Cart, productID int64, qty int, optionIDs []int64) ([]domain.ItemChange, error) {
	product, err := m.catalog.GetProduct(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("catalog.GetProduct: %w", err)
	}
	if product.Price.Currency != cart.Currency {
		return nil, domain.Validationf("currency", "product[%d] is priced in %s, cart is %s",
			productID, product.Price.Currency, cart.Currency)
	}

	// Duplicate option ids collapse, mirroring the options hash.
	optionIDs = uniqueSorted(optionIDs)

	selected := make([]domain.SelectedOption, 0, len(optionIDs))
	modifier := decimal.Zero
	for _, id := range optionIDs {
		opt, ok := product.Options[id]
		if !ok {
			return nil, domain.Validationf("optionIds", "product[%d] has no option assignment %d", productID, id)
		}
		selected = append(selected, domain.SelectedOption{
			AssignmentID:  opt.AssignmentID,
			Name:          opt.Name,
			Value:         opt.Value,
			PriceModifier: opt.PriceModifier,
		})
		modifier = modifier.Add(opt.PriceModifier)
	}

	hash := domain.OptionsHash(optionIDs)

	if existing := cart.FindItem(productID, hash); existing != nil {
		newQty := existing.Qty + qty
		if newQty > product.Available {
			return nil, domain.ErrInsufficientStock(productID, newQty, product.Available)
		}
		existing.Qty = newQty
		return []domain.ItemChange{{Type: domain.ChangeUpdated, Item: *existing}}, nil
	}

	if qty > product.Available {
		return nil, domain.ErrInsufficientStock(productID, qty, product.Available)
	}

	now := m.now()
	item := domain.CartItem{
		ID:                   domain.NewID(),
		CartID:               cart.ID,
		ProductID:            productID,
		ProductName:          product.Name,
		Qty:                  qty,
		UnitPrice:            product.Price.Amount,
		OptionsPriceModifier: modifier,
		EffectiveUnitPrice:   product.Price.Amount.Add(modifier),
		OptionsHash:          hash,
		OptionsSnapshot:      selected,
		PricedAt:             now,
		CreatedAt:            now,
	}
	cart.Items = append(cart.Items, item)

	return []domain.ItemChange{{Type: domain.ChangeAdded, Item: item}}, nil
}

// UpdateQty changes an item's quantity; qty <= 0 removes the item.
func (m *CartManager) UpdateQty(ctx context.Context, cartID uuid.UUID, expected int64, itemID uuid.UUID, qty int) (MutationResult, error) {
	return m.mutate(ctx, cartID, expected, func(cart *domain.Cart) ([]domain.ItemChange, error) {
		return m.updateQty(ctx, cart, itemID, qty)
	})
}

func (m *CartManager) updateQty(ctx context.Context, cart *domain.Cart, itemID uuid.UUID, qty int) ([]domain.ItemChange, error) {
	item := cart.FindItemByID(itemID)
	if item == nil {
		return nil, domain.ErrItemNotFound(itemID.String())
	}

	if qty <= 0 {
		return removeFromCart(cart, itemID), nil
	}

	product, err := m.catalog.GetProduct(ctx, item.ProductID)
	if err != nil {
		return nil, fmt.Errorf("catalog.GetProduct: %w", err)
	}
	if qty > product.Available {
		return nil, domain.ErrInsufficientStock(item.ProductID, qty, product.Available)
	}

	item.Qty = qty
	return []domain.ItemChange{{Type: domain.ChangeUpdated, Item: *item}}, nil
}

// RemoveItem deletes an item; an already-gone id is surfaced as
// item_not_found so the caller can tell it apart from success.
func (m *CartManager) RemoveItem(ctx context.Context, cartID uuid.UUID, expected int64, itemID uuid.UUID) (MutationResult, error) {
	return m.mutate(ctx, cartID, expected, func(cart *domain.Cart) ([]domain.ItemChange, error) {
		if cart.FindItemByID(itemID) == nil {
			return nil, domain.ErrItemNotFound(itemID.String())
		}
		return removeFromCart(cart, itemID), nil
	})
}

func uniqueSorted(ids []int64) []int64 {
	if len(ids) == 0 {
		return nil
	}
	uniq := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		uniq[id] = struct{}{}
	}
	out := make([]int64, 0, len(uniq))
	for id := range uniq {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func removeFromCart(cart *domain.Cart, itemID uuid.UUID) []domain.ItemChange {
	for i := range cart.Items {
		if cart.Items[i].ID == itemID {
			removed := cart.Items[i]
			cart.Items = append(cart.Items[:i], cart.Items[i+1:]...)
			return []domain.ItemChange{{Type: domain.ChangeRemoved, Item: removed}}
		}
	}
	return nil
}

// ClearCart removes every item in one lock/transaction.
func (m *CartManager) ClearCart(ctx context.Context, cartID uuid.UUID, expected int64) (MutationResult, error) {
	return m.mutate(ctx, cartID, expected, func(cart *domain.Cart) ([]domain.ItemChange, error) {
		changes := make([]domain.ItemChange, 0, len(cart.Items))
		for _, item := range cart.Items {
			changes = append(changes, domain.ItemChange{Type: domain.ChangeRemoved, Item: item})
		}
		cart.Items = nil
		return changes, nil
	})
}

// SetPricingPolicy switches between SNAPSHOT and LIVE.
func (m *CartManager) SetPricingPolicy(ctx context.Context, cartID uuid.UUID, expected int64, policy domain.PricingPolicy) (MutationResult, error) {
	return m.mutate(ctx, cartID, expected, func(cart *domain.Cart) ([]domain.ItemChange, error) {
		cart.PricingPolicy = policy
		return nil, nil
	})
}

// Reprice durably overwrites every item's price snapshot with live
// values; it is the only operation that does so.
func (m *CartManager) Reprice(ctx context.Context, cartID uuid.UUID, expected int64) (MutationResult, error) {
	return m.mutate(ctx, cartID, expected, func(cart *domain.Cart) ([]domain.ItemChange, error) {
		now := m.now()
		changes := make([]domain.ItemChange, 0, len(cart.Items))

		for i := range cart.Items {
			item := &cart.Items[i]
			current, err := m.live.EffectiveUnitPriceLive(ctx, *item)
			if err != nil {
				return nil, fmt.Errorf("live.EffectiveUnitPriceLive: %w", err)
			}
			item.EffectiveUnitPrice = current
			item.PricedAt = now
			changes = append(changes, domain.ItemChange{Type: domain.ChangeUpdated, Item: *item})
		}

		return changes, nil
	})
}
