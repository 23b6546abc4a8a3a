package service

import (
	"context"

	"github.com/CreativeSeo33/new3-sub001/internal/domain"
	"github.com/google/uuid"
)

type BatchOpType string

const (
	BatchAdd    BatchOpType = "add"
	BatchUpdate BatchOpType = "update"
	BatchRemove BatchOpType = "remove"
)

type BatchOp struct {
	Op        BatchOpType
	ProductID int64
	Qty       int
	OptionIDs []int64
	ItemID    uuid.UUID
}

// BatchOpResult reports the outcome of one operation of the batch.
type BatchOpResult struct {
	Index int
	Op    BatchOpType
	Err   error
}

func (r BatchOpResult) OK() bool { return r.Err == nil }

type BatchResult struct {
	Cart    domain.Cart
	Changes []domain.ItemChange
	Results []BatchOpResult
	// Applied is false when an atomic batch was rolled back entirely.
	Applied bool
}

// ExecuteBatch applies an ordered list of add/update/remove operations
// under one lock acquisition. Atomic batches persist in one transaction
// and roll back entirely on the first failure; best-effort batches
// commit each operation independently and report mixed results.
// The version counter moves once per request, not per sub-operation.
// The expected version is verified under the lock, like any single
// mutation.
func (m *CartManager) ExecuteBatch(ctx context.Context, cartID uuid.UUID, expected int64, ops []BatchOp, atomic bool) (BatchResult, error) {
	if len(ops) == 0 {
		return BatchResult{}, domain.Validationf("operations", "batch must contain at least one operation")
	}

	release, err := m.locks.Acquire(ctx, cartID, m.lockWait)
	if err != nil {
		return BatchResult{}, err
	}
	defer release()

	cart, err := m.repo.GetCart(ctx, cartID)
	if err != nil {
		return BatchResult{}, err
	}
	if expected != VersionAny && cart.Version != expected {
		return BatchResult{}, domain.ErrPreconditionFailed(cart.Version)
	}
	base := cart.Version

	if atomic {
		return m.executeAtomic(ctx, cart, base, ops)
	}
	return m.executeBestEffort(ctx, cart, base, ops)
}

func (m *CartManager) executeAtomic(ctx context.Context, cart domain.Cart, expected int64, ops []BatchOp) (BatchResult, error) {
	results := make([]BatchOpResult, 0, len(ops))
	var all []domain.ItemChange

	for i, op := range ops {
		changes, err := m.applyBatchOp(ctx, &cart, op)
		results = append(results, BatchOpResult{Index: i, Op: op.Op, Err: err})
		if err != nil {
			// Nothing was persisted; the pre-batch state stands.
			return BatchResult{Results: results, Applied: false}, nil
		}
		all = mergeChanges(all, changes)
	}

	m.finalize(&cart, expected+1)
	refreshChanges(&cart, all)

	if err := m.repo.Apply(ctx, cart, expected, all); err != nil {
		return BatchResult{}, err
	}
	m.invalidate(ctx, cart)

	return BatchResult{Cart: cart, Changes: all, Results: results, Applied: true}, nil
}

func (m *CartManager) executeBestEffort(ctx context.Context, cart domain.Cart, expected int64, ops []BatchOp) (BatchResult, error) {
	results := make([]BatchOpResult, 0, len(ops))
	var all []domain.ItemChange
	anyApplied := false

	for i, op := range ops {
		// Work on a copy so a failing op leaves the committed state intact.
		candidate := cloneCart(cart)
		changes, err := m.applyBatchOp(ctx, &candidate, op)
		if err == nil {
			// Commit this op on its own, without moving the version yet.
			m.calc.Recalculate(&candidate)
			candidate.Version = expected
			candidate.UpdatedAt = m.now()
			refreshChanges(&candidate, changes)
			err = m.repo.Apply(ctx, candidate, expected, changes)
		}

		results = append(results, BatchOpResult{Index: i, Op: op.Op, Err: err})
		if err != nil {
			continue
		}

		cart = candidate
		all = mergeChanges(all, changes)
		anyApplied = true
	}

	if anyApplied {
		// One version bump for the whole request.
		m.finalize(&cart, expected+1)
		if err := m.repo.Apply(ctx, cart, expected, nil); err != nil {
			return BatchResult{}, err
		}
		m.invalidate(ctx, cart)
	}

	return BatchResult{Cart: cart, Changes: all, Results: results, Applied: anyApplied}, nil
}

func (m *CartManager) applyBatchOp(ctx context.Context, cart *domain.Cart, op BatchOp) ([]domain.ItemChange, error) {
	switch op.Op {
	case BatchAdd:
		if op.Qty <= 0 {
			return nil, domain.Validationf("qty", "qty must be positive, got %d", op.Qty)
		}
		return m.addItem(ctx, cart, op.ProductID, op.Qty, op.OptionIDs)
	case BatchUpdate:
		return m.updateQty(ctx, cart, op.ItemID, op.Qty)
	case BatchRemove:
		if cart.FindItemByID(op.ItemID) == nil {
			return nil, domain.ErrItemNotFound(op.ItemID.String())
		}
		return removeFromCart(cart, op.ItemID), nil
	default:
		return nil, domain.Validationf("op", "unknown batch operation %q", op.Op)
	}
}

// mergeChanges folds per-op change lists into one list keyed by item
// id; a removal supersedes earlier entries for the same item.
func mergeChanges(acc, next []domain.ItemChange) []domain.ItemChange {
	for _, ch := range next {
		replaced := false
		for i := range acc {
			if acc[i].Item.ID == ch.Item.ID {
				acc[i] = ch
				replaced = true
				break
			}
		}
		if !replaced {
			acc = append(acc, ch)
		}
	}
	return acc
}

func cloneCart(cart domain.Cart) domain.Cart {
	out := cart
	out.Items = make([]domain.CartItem, len(cart.Items))
	copy(out.Items, cart.Items)
	return out
}
