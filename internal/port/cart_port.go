package port

import (
	"context"
	"time"

	"github.com/CreativeSeo33/new3-sub001/internal/domain"
	"github.com/google/uuid"
)

type CartRepository interface {
	GetCart(ctx context.Context, cartID uuid.UUID) (domain.Cart, error)
	FindByUser(ctx context.Context, userID string) (domain.Cart, bool, error)
	FindByToken(ctx context.Context, token uuid.UUID) (domain.Cart, bool, error)
	CreateCart(ctx context.Context, cart domain.Cart) error

	// Apply persists one mutation in a single transaction: item upserts
	// and deletes from the change list plus the cart header (totals,
	// policy, snapshots). The header update is guarded by
	// expectedVersion; a guard miss surfaces as a version_conflict.
	Apply(ctx context.Context, cart domain.Cart, expectedVersion int64, changes []domain.ItemChange) error

	DeleteCart(ctx context.Context, cartID uuid.UUID) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type IdempotencyRepository interface {
	// Insert atomically claims the key; false means another request
	// already holds it and the caller must re-read.
	Insert(ctx context.Context, rec domain.IdempotencyRecord) (bool, error)
	Get(ctx context.Context, key string) (domain.IdempotencyRecord, bool, error)

	// TakeOverProcessing resets a processing record to a fresh
	// processing state, but only when it was created before staleBefore.
	TakeOverProcessing(ctx context.Context, key string, staleBefore time.Time, rec domain.IdempotencyRecord) (bool, error)

	// ReviveExpired re-claims a record whose expires_at already passed.
	ReviveExpired(ctx context.Context, key string, now time.Time, rec domain.IdempotencyRecord) (bool, error)

	MarkDone(ctx context.Context, key string, httpStatus int, body []byte, now time.Time) error

	// Delete releases a claimed key, so a retry after a transient
	// failure starts fresh instead of replaying the failure.
	Delete(ctx context.Context, key string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type ProductCatalog interface {
	GetProduct(ctx context.Context, productID int64) (domain.Product, error)
}

// DeliveryPricer quotes shipping for the cart's current contents. It is
// called outside the cart lock, at response time.
type DeliveryPricer interface {
	Quote(ctx context.Context, cart domain.Cart) (domain.ShippingInfo, error)
}
