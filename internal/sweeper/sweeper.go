// Package sweeper runs the background retention loops: abandoned carts
// past their TTL and settled idempotency records past the replay window.
package sweeper

import (
	"context"
	"time"

	"github.com/CreativeSeo33/new3-sub001/internal/logger"
	"github.com/CreativeSeo33/new3-sub001/internal/port"
	"github.com/CreativeSeo33/new3-sub001/internal/service"
)

type Sweeper struct {
	carts port.CartRepository
	idem  *service.IdempotencyService
	log   *logger.Logger

	cartTick time.Duration
	idemTick time.Duration
	now      func() time.Time
}

func New(carts port.CartRepository, idem *service.IdempotencyService, log *logger.Logger) *Sweeper {
	return &Sweeper{
		carts:    carts,
		idem:     idem,
		log:      log,
		cartTick: 10 * time.Minute,
		idemTick: time.Hour,
		now:      time.Now,
	}
}

// Run blocks until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	cartTicker := time.NewTicker(s.cartTick)
	idemTicker := time.NewTicker(s.idemTick)
	defer cartTicker.Stop()
	defer idemTicker.Stop()

	for {
		select {
		case <-cartTicker.C:
			s.sweepCarts(ctx)
		case <-idemTicker.C:
			s.sweepIdempotency(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Sweeper) sweepCarts(ctx context.Context) {
	purged, err := s.carts.DeleteExpired(ctx, s.now())
	if err != nil {
		s.log.Error("expired cart sweep failed", "error", err)
		return
	}
	if purged > 0 {
		s.log.Info("purged expired carts", "count", purged)
	}
}

func (s *Sweeper) sweepIdempotency(ctx context.Context) {
	purged, err := s.idem.DeleteExpired(ctx, s.now())
	if err != nil {
		s.log.Error("idempotency record sweep failed", "error", err)
		return
	}
	if purged > 0 {
		s.log.Info("purged settled idempotency records", "count", purged)
	}
}
