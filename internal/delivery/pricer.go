// Package delivery quotes shipping for a cart. Quotes are advisory and
// assembled at response time; they never feed back into cart totals.
package delivery

import (
	"context"
	"strings"

	"github.com/CreativeSeo33/new3-sub001/internal/domain"
	"github.com/shopspring/decimal"
)

type TablePricer struct {
	// base cost per lowercase city name; cities not listed fall back
	// to defaultCost.
	rates       map[string]decimal.Decimal
	defaultCost decimal.Decimal

	// orders at or above freeAbove ship for free.
	freeAbove decimal.Decimal
}

func NewTablePricer(rates map[string]decimal.Decimal, defaultCost, freeAbove decimal.Decimal) *TablePricer {
	normalized := make(map[string]decimal.Decimal, len(rates))
	for city, cost := range rates {
		normalized[strings.ToLower(city)] = cost
	}
	return &TablePricer{rates: normalized, defaultCost: defaultCost, freeAbove: freeAbove}
}

func (p *TablePricer) Quote(_ context.Context, cart domain.Cart) (domain.ShippingInfo, error) {
	cost, known := p.rates[strings.ToLower(cart.Shipping.City)]
	if !known {
		cost = p.defaultCost
	}

	free := p.freeAbove.IsPositive() && cart.Total.GreaterThanOrEqual(p.freeAbove)
	if free {
		cost = decimal.Zero
	}

	method := cart.Shipping.Method
	if method == "" {
		method = "courier"
	}

	return domain.ShippingInfo{
		Method: method,
		Cost:   cost,
		City:   cart.Shipping.City,
		Data: map[string]any{
			"free":      free,
			"knownCity": known,
		},
	}, nil
}
