package service

import (
	"context"
	"fmt"
	"time"

	"github.com/CreativeSeo33/new3-sub001/internal/cache"
	"github.com/CreativeSeo33/new3-sub001/internal/domain"
	"github.com/CreativeSeo33/new3-sub001/internal/logger"
	"github.com/CreativeSeo33/new3-sub001/internal/port"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

// CartContext resolves the cart a request acts on: the user's active
// cart, the guest cart behind an explicit token, or a new cart whose
// token the caller must hand back to the client.
type CartContext struct {
	repo  port.CartRepository
	locks *CartLocks
	calc  CartCalculator
	cache cache.CartCache
	log   *logger.Logger

	currency currency.Unit
	cartTTL  time.Duration
	lockWait time.Duration
	now      func() time.Time
}

func NewCartContext(repo port.CartRepository, locks *CartLocks, cartCache cache.CartCache, log *logger.Logger, cur currency.Unit, cartTTL, lockWait time.Duration) *CartContext {
	if cartTTL <= 0 {
		cartTTL = DefaultCartTTL
	}
	if lockWait <= 0 {
		lockWait = DefaultLockWait
	}
	if cartCache == nil {
		cartCache = cache.Noop{}
	}
	return &CartContext{
		repo:     repo,
		locks:    locks,
		cache:    cartCache,
		log:      log,
		currency: cur,
		cartTTL:  cartTTL,
		lockWait: lockWait,
		now:      time.Now,
	}
}

// ResolvedCart carries the cart plus a freshly issued guest token when
// a new anonymous cart was created; the caller persists it (cookie).
type ResolvedCart struct {
	Cart     domain.Cart
	NewToken *uuid.UUID
}

// GetOrCreate resolves per identity: user id first, then guest token,
// then lazy creation. A guest cart found alongside a user cart is
// merged into the user cart and discarded.
func (c *CartContext) GetOrCreate(ctx context.Context, userID *string, token *uuid.UUID) (ResolvedCart, error) {
	if userID != nil {
		return c.resolveUser(ctx, *userID, token)
	}

	if token != nil {
		cart, found, err := c.repo.FindByToken(ctx, *token)
		if err != nil {
			return ResolvedCart{}, fmt.Errorf("repo.FindByToken: %w", err)
		}
		if found {
			return ResolvedCart{Cart: cart}, nil
		}
	}

	cart, err := c.create(ctx, nil)
	if err != nil {
		return ResolvedCart{}, err
	}
	return ResolvedCart{Cart: cart, NewToken: cart.Token}, nil
}

func (c *CartContext) resolveUser(ctx context.Context, userID string, token *uuid.UUID) (ResolvedCart, error) {
	userCart, found, err := c.repo.FindByUser(ctx, userID)
	if err != nil {
		return ResolvedCart{}, fmt.Errorf("repo.FindByUser: %w", err)
	}

	var guestCart *domain.Cart
	if token != nil {
		gc, guestFound, err := c.repo.FindByToken(ctx, *token)
		if err != nil {
			return ResolvedCart{}, fmt.Errorf("repo.FindByToken: %w", err)
		}
		if guestFound && gc.UserID == nil {
			guestCart = &gc
		}
	}

	switch {
	case found && guestCart != nil && guestCart.ID != userCart.ID:
		merged, err := c.Merge(ctx, userCart, *guestCart)
		if err != nil {
			return ResolvedCart{}, err
		}
		return ResolvedCart{Cart: merged}, nil

	case found:
		return ResolvedCart{Cart: userCart}, nil

	case guestCart != nil:
		// First login with only a guest cart: the user adopts it.
		adopted, err := c.adopt(ctx, *guestCart, userID)
		if err != nil {
			return ResolvedCart{}, err
		}
		return ResolvedCart{Cart: adopted}, nil

	default:
		cart, err := c.create(ctx, &userID)
		if err != nil {
			return ResolvedCart{}, err
		}
		return ResolvedCart{Cart: cart}, nil
	}
}

func (c *CartContext) create(ctx context.Context, userID *string) (domain.Cart, error) {
	now := c.now()
	cart := domain.Cart{
		ID:            domain.NewID(),
		UserID:        userID,
		Version:       0,
		Currency:      c.currency,
		PricingPolicy: domain.PolicySnapshot,
		Subtotal:      decimal.Zero,
		DiscountTotal: decimal.Zero,
		Total:         decimal.Zero,
		ExpiresAt:     now.Add(c.cartTTL),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if userID == nil {
		token := uuid.New()
		cart.Token = &token
	}

	if err := c.repo.CreateCart(ctx, cart); err != nil {
		return domain.Cart{}, fmt.Errorf("repo.CreateCart: %w", err)
	}
	return cart, nil
}

// Merge folds the guest cart into the user cart under the user cart's
// lock: matching (product, optionsHash) rows sum quantities, the rest
// move over; the guest cart is then discarded.
func (c *CartContext) Merge(ctx context.Context, userCart, guestCart domain.Cart) (domain.Cart, error) {
	release, err := c.locks.Acquire(ctx, userCart.ID, c.lockWait)
	if err != nil {
		return domain.Cart{}, err
	}
	defer release()

	// Re-read under the lock so concurrent mutations are not lost.
	cart, err := c.repo.GetCart(ctx, userCart.ID)
	if err != nil {
		return domain.Cart{}, err
	}
	expected := cart.Version

	var changes []domain.ItemChange
	for _, guestItem := range guestCart.Items {
		if existing := cart.FindItem(guestItem.ProductID, guestItem.OptionsHash); existing != nil {
			existing.Qty += guestItem.Qty
			changes = append(changes, domain.ItemChange{Type: domain.ChangeUpdated, Item: *existing})
			continue
		}

		moved := guestItem
		moved.CartID = cart.ID
		cart.Items = append(cart.Items, moved)
		changes = append(changes, domain.ItemChange{Type: domain.ChangeAdded, Item: moved})
	}

	c.calc.Recalculate(&cart)
	now := c.now()
	cart.Version = expected + 1
	cart.UpdatedAt = now
	cart.ExpiresAt = now.Add(c.cartTTL)

	for i := range changes {
		if cur := cart.FindItemByID(changes[i].Item.ID); cur != nil {
			changes[i].Item = *cur
		}
	}

	if err := c.repo.Apply(ctx, cart, expected, changes); err != nil {
		return domain.Cart{}, err
	}

	if err := c.repo.DeleteCart(ctx, guestCart.ID); err != nil {
		return domain.Cart{}, fmt.Errorf("repo.DeleteCart: %w", err)
	}

	c.invalidate(ctx, guestCart)
	c.invalidate(ctx, cart)

	c.log.Info("merged guest cart into user cart",
		"guest_cart_id", guestCart.ID, "user_cart_id", cart.ID, "moved_items", len(guestCart.Items))

	return cart, nil
}

// adopt attaches a guest cart to a user at first login.
func (c *CartContext) adopt(ctx context.Context, guestCart domain.Cart, userID string) (domain.Cart, error) {
	release, err := c.locks.Acquire(ctx, guestCart.ID, c.lockWait)
	if err != nil {
		return domain.Cart{}, err
	}
	defer release()

	cart, err := c.repo.GetCart(ctx, guestCart.ID)
	if err != nil {
		return domain.Cart{}, err
	}
	expected := cart.Version

	cart.UserID = &userID
	cart.Version = expected + 1
	cart.UpdatedAt = c.now()

	if err := c.repo.Apply(ctx, cart, expected, nil); err != nil {
		return domain.Cart{}, err
	}

	c.invalidate(ctx, cart)
	return cart, nil
}

func (c *CartContext) invalidate(ctx context.Context, cart domain.Cart) {
	keys := cache.Keys(cart)
	if len(keys) == 0 {
		return
	}
	if err := c.cache.Delete(ctx, keys...); err != nil {
		c.log.Warn("cache invalidate failed", "cart_id", cart.ID, "error", err)
	}
}
