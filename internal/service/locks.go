package service

import (
	"context"
	"sync"
	"time"

	"github.com/CreativeSeo33/new3-sub001/internal/domain"
	"github.com/google/uuid"
)

// CartLocks serializes mutations per cart id. Different carts never
// block each other; waiters on the same cart block until the holder
// releases or the bounded wait elapses. Slots are refcounted by
// holders and waiters and dropped from the map once nobody references
// them, so the map tracks only carts with in-flight requests.
type CartLocks struct {
	mu    sync.Mutex
	slots map[uuid.UUID]*lockSlot
}

type lockSlot struct {
	ch   chan struct{}
	refs int
}

func NewCartLocks() *CartLocks {
	return &CartLocks{slots: make(map[uuid.UUID]*lockSlot)}
}

func (l *CartLocks) retain(cartID uuid.UUID) *lockSlot {
	l.mu.Lock()
	defer l.mu.Unlock()

	slot, ok := l.slots[cartID]
	if !ok {
		slot = &lockSlot{ch: make(chan struct{}, 1)}
		l.slots[cartID] = slot
	}
	slot.refs++
	return slot
}

func (l *CartLocks) unretain(cartID uuid.UUID, slot *lockSlot) {
	l.mu.Lock()
	defer l.mu.Unlock()

	slot.refs--
	if slot.refs == 0 {
		delete(l.slots, cartID)
	}
}

// Acquire blocks until the cart lock is granted, wait elapses
// (cart_busy with a retry hint) or ctx is cancelled. The returned
// release function must be called exactly once.
func (l *CartLocks) Acquire(ctx context.Context, cartID uuid.UUID, wait time.Duration) (func(), error) {
	slot := l.retain(cartID)

	release := func() {
		<-slot.ch
		l.unretain(cartID, slot)
	}

	select {
	case slot.ch <- struct{}{}:
		return release, nil
	default:
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case slot.ch <- struct{}{}:
		return release, nil
	case <-timer.C:
		l.unretain(cartID, slot)
		return nil, domain.ErrCartBusy(wait)
	case <-ctx.Done():
		l.unretain(cartID, slot)
		return nil, ctx.Err()
	}
}
