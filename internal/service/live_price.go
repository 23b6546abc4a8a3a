package service

import (
	"context"
	"fmt"

	"github.com/CreativeSeo33/new3-sub001/internal/domain"
	"github.com/CreativeSeo33/new3-sub001/internal/port"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LivePriceCalculator computes what an item would cost at current
// catalog prices, independent of the stored snapshot.
type LivePriceCalculator struct {
	catalog port.ProductCatalog
}

func NewLivePriceCalculator(catalog port.ProductCatalog) *LivePriceCalculator {
	return &LivePriceCalculator{catalog: catalog}
}

// LiveQuote is the read-only live view of one item, exposed under the
// LIVE pricing policy without mutating state.
type LiveQuote struct {
	ItemID                    uuid.UUID
	CurrentEffectiveUnitPrice decimal.Decimal
	CurrentRowTotal           decimal.Decimal
	PriceChanged              bool
}

// EffectiveUnitPriceLive recomputes the item's current price from the
// product's live base price plus the currently configured modifiers of
// the options snapshotted on the item. An option assignment that no
// longer exists keeps its snapshotted modifier.
func (c *LivePriceCalculator) EffectiveUnitPriceLive(ctx context.Context, item domain.CartItem) (decimal.Decimal, error) {
	product, err := c.catalog.GetProduct(ctx, item.ProductID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("catalog.GetProduct: %w", err)
	}

	price := product.Price.Amount
	for _, selected := range item.OptionsSnapshot {
		if opt, ok := product.Options[selected.AssignmentID]; ok {
			price = price.Add(opt.PriceModifier)
		} else {
			price = price.Add(selected.PriceModifier)
		}
	}

	return price, nil
}

// Quotes builds the live view for every item of the cart.
func (c *LivePriceCalculator) Quotes(ctx context.Context, cart domain.Cart) ([]LiveQuote, error) {
	quotes := make([]LiveQuote, 0, len(cart.Items))

	for _, item := range cart.Items {
		current, err := c.EffectiveUnitPriceLive(ctx, item)
		if err != nil {
			return nil, fmt.Errorf("EffectiveUnitPriceLive: %w", err)
		}

		quotes = append(quotes, LiveQuote{
			ItemID:                    item.ID,
			CurrentEffectiveUnitPrice: current,
			CurrentRowTotal:           current.Mul(decimal.NewFromInt(int64(item.Qty))),
			PriceChanged:              !current.Equal(item.EffectiveUnitPrice),
		})
	}

	return quotes, nil
}
