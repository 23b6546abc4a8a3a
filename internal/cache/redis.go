package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/CreativeSeo33/new3-sub001/internal/domain"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{
		client:  client,
		baseTTL: 15 * time.Minute,
	}
}

type RedisCache struct {
	client  *redis.Client
	baseTTL time.Duration
}

// wireCart mirrors domain.Cart with a plain currency code, since
// currency.Unit does not round-trip through JSON.
type wireCart struct {
	ID                uuid.UUID            `json:"id"`
	UserID            *string              `json:"user_id,omitempty"`
	Token             *uuid.UUID           `json:"token,omitempty"`
	Version           int64                `json:"version"`
	Currency          string               `json:"currency"`
	PricingPolicy     domain.PricingPolicy `json:"pricing_policy"`
	Subtotal          decimal.Decimal      `json:"subtotal"`
	DiscountTotal     decimal.Decimal      `json:"discount_total"`
	Total             decimal.Decimal      `json:"total"`
	TotalItemQuantity int                  `json:"total_item_quantity"`
	Shipping          domain.ShippingInfo  `json:"shipping"`
	ExpiresAt         time.Time            `json:"expires_at"`
	CreatedAt         time.Time            `json:"created_at"`
	UpdatedAt         time.Time            `json:"updated_at"`
	Items             []domain.CartItem    `json:"items"`
}

func toWire(cart *domain.Cart) wireCart {
	return wireCart{
		ID:                cart.ID,
		UserID:            cart.UserID,
		Token:             cart.Token,
		Version:           cart.Version,
		Currency:          cart.Currency.String(),
		PricingPolicy:     cart.PricingPolicy,
		Subtotal:          cart.Subtotal,
		DiscountTotal:     cart.DiscountTotal,
		Total:             cart.Total,
		TotalItemQuantity: cart.TotalItemQuantity,
		Shipping:          cart.Shipping,
		ExpiresAt:         cart.ExpiresAt,
		CreatedAt:         cart.CreatedAt,
		UpdatedAt:         cart.UpdatedAt,
		Items:             cart.Items,
	}
}

func fromWire(w wireCart) (*domain.Cart, error) {
	unit, err := currency.ParseISO(w.Currency)
	if err != nil {
		return nil, fmt.Errorf("currency.ParseISO: %w", err)
	}

	return &domain.Cart{
		ID:                w.ID,
		UserID:            w.UserID,
		Token:             w.Token,
		Version:           w.Version,
		Currency:          unit,
		PricingPolicy:     w.PricingPolicy,
		Subtotal:          w.Subtotal,
		DiscountTotal:     w.DiscountTotal,
		Total:             w.Total,
		TotalItemQuantity: w.TotalItemQuantity,
		Shipping:          w.Shipping,
		ExpiresAt:         w.ExpiresAt,
		CreatedAt:         w.CreatedAt,
		UpdatedAt:         w.UpdatedAt,
		Items:             w.Items,
	}, nil
}

func (r *RedisCache) Get(ctx context.Context, key string) (*domain.Cart, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var w wireCart
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("unmarshal cart failed: %w", err)
	}

	return fromWire(w)
}

func (r *RedisCache) Set(ctx context.Context, key string, cart *domain.Cart) error {
	data, err := json.Marshal(toWire(cart))
	if err != nil {
		return fmt.Errorf("marshal cart failed: %w", err)
	}

	jitter := time.Duration(rand.Intn(60)) * time.Second
	if err := r.client.Set(ctx, key, data, r.baseTTL+jitter).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (r *RedisCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}
