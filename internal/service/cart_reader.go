package service

import (
	"context"
	"errors"

	"github.com/CreativeSeo33/new3-sub001/internal/cache"
	"github.com/CreativeSeo33/new3-sub001/internal/logger"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// CartReader is the read-through path for GET: cache first, then the
// resolver, with singleflight collapsing concurrent misses for the
// same identity.
type CartReader struct {
	cctx  *CartContext
	cache cache.CartCache
	log   *logger.Logger
	sfg   singleflight.Group
}

func NewCartReader(cctx *CartContext, cartCache cache.CartCache, log *logger.Logger) *CartReader {
	if cartCache == nil {
		cartCache = cache.Noop{}
	}
	return &CartReader{cctx: cctx, cache: cartCache, log: log}
}

func (r *CartReader) Resolve(ctx context.Context, userID *string, token *uuid.UUID) (ResolvedCart, error) {
	key := identityKey(userID, token)
	if key == "" || (userID != nil && token != nil) {
		// Either no identity yet (a cart and token will be created) or a
		// login-time merge may be pending; both bypass the cache.
		return r.cctx.GetOrCreate(ctx, userID, token)
	}

	v, err, _ := r.sfg.Do(key, func() (interface{}, error) {
		cached, err := r.cache.Get(ctx, key)
		if err == nil {
			return ResolvedCart{Cart: *cached}, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			r.log.Warn("cache get failed", "key", key, "error", err)
		}

		resolved, err := r.cctx.GetOrCreate(ctx, userID, token)
		if err != nil {
			return ResolvedCart{}, err
		}

		// Fill synchronously: a deferred fill could land after a
		// mutation's invalidation and pin a stale cart and ETag for
		// the whole cache TTL.
		if resolved.NewToken == nil {
			if err := r.cache.Set(ctx, key, &resolved.Cart); err != nil {
				r.log.Warn("cache set failed", "key", key, "error", err)
			}
		}

		return resolved, nil
	})
	if err != nil {
		return ResolvedCart{}, err
	}

	return v.(ResolvedCart), nil
}

func identityKey(userID *string, token *uuid.UUID) string {
	if userID != nil {
		return cache.UserKey(*userID)
	}
	if token != nil {
		return cache.TokenKey(*token)
	}
	return ""
}
