package service

import (
	"github.com/CreativeSeo33/new3-sub001/internal/domain"
	"github.com/shopspring/decimal"
)

// CartCalculator derives cart totals from item rows. Totals are never
// hand-maintained; every mutation recomputes them inside the same lock.
type CartCalculator struct{}

// Recalculate rewrites each row total and the cart aggregates:
// subtotal is the sum of row totals, discountTotal sums the positive
// part of (unitPrice - effectiveUnitPrice) * qty, total is their
// difference. Pure, no I/O; shipping cost is not part of the total.
func (CartCalculator) Recalculate(cart *domain.Cart) {
	subtotal := decimal.Zero
	discount := decimal.Zero
	quantity := 0

	for i := range cart.Items {
		item := &cart.Items[i]
		qty := decimal.NewFromInt(int64(item.Qty))

		item.RowTotal = item.EffectiveUnitPrice.Mul(qty)
		subtotal = subtotal.Add(item.RowTotal)

		saved := item.UnitPrice.Sub(item.EffectiveUnitPrice).Mul(qty)
		if saved.IsPositive() {
			discount = discount.Add(saved)
		}

		quantity += item.Qty
	}

	cart.Subtotal = subtotal
	cart.DiscountTotal = discount
	cart.Total = subtotal.Sub(discount)
	cart.TotalItemQuantity = quantity
}
