package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/CreativeSeo33/new3-sub001/internal/domain"
	"github.com/google/uuid"
)

// CartCache is keyed by the identity the request resolved with, since
// that is what the read path knows before touching storage.
type CartCache interface {
	Get(ctx context.Context, key string) (*domain.Cart, error)
	Set(ctx context.Context, key string, cart *domain.Cart) error
	Delete(ctx context.Context, keys ...string) error
}

var ErrCacheMiss = errors.New("cache miss")

func UserKey(userID string) string    { return fmt.Sprintf("cart:user:%s", userID) }
func TokenKey(token uuid.UUID) string { return fmt.Sprintf("cart:token:%s", token) }

// Keys returns every identity key the cart is reachable under.
func Keys(cart domain.Cart) []string {
	var keys []string
	if cart.UserID != nil {
		keys = append(keys, UserKey(*cart.UserID))
	}
	if cart.Token != nil {
		keys = append(keys, TokenKey(*cart.Token))
	}
	return keys
}

// Noop satisfies CartCache for deployments without redis.
type Noop struct{}

func (Noop) Get(context.Context, string) (*domain.Cart, error) { return nil, ErrCacheMiss }
func (Noop) Set(context.Context, string, *domain.Cart) error   { return nil }
func (Noop) Delete(context.Context, ...string) error           { return nil }
