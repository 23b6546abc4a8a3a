package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/CreativeSeo33/new3-sub001/internal/domain"
	"github.com/CreativeSeo33/new3-sub001/internal/service"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ResponseMode selects the full cart body or the delta shape; delta is
// meant for high-frequency mutation loops like quantity steppers.
type ResponseMode string

const (
	ModeFull  ResponseMode = "full"
	ModeDelta ResponseMode = "delta"
)

// DetermineResponseMode reads the client's opt-in from the view query
// parameter; full is the default.
func DetermineResponseMode(r *http.Request) ResponseMode {
	if r.URL.Query().Get("view") == string(ModeDelta) {
		return ModeDelta
	}
	return ModeFull
}

type ShippingDTO struct {
	Method string          `json:"method,omitempty"`
	Cost   decimal.Decimal `json:"cost"`
	City   string          `json:"city,omitempty"`
	Data   map[string]any  `json:"data,omitempty"`
}

type CartItemDTO struct {
	ID                   uuid.UUID               `json:"id"`
	ProductID            int64                   `json:"productId"`
	Name                 string                  `json:"name"`
	UnitPrice            decimal.Decimal         `json:"unitPrice"`
	OptionsPriceModifier decimal.Decimal         `json:"optionsPriceModifier"`
	EffectiveUnitPrice   decimal.Decimal         `json:"effectiveUnitPrice"`
	Qty                  int                     `json:"qty"`
	RowTotal             decimal.Decimal         `json:"rowTotal"`
	PricedAt             time.Time               `json:"pricedAt"`
	SelectedOptions      []SelectedOptionDTO     `json:"selectedOptions"`
	OptionsHash          string                  `json:"optionsHash"`

	// Populated only under the LIVE pricing policy.
	CurrentEffectiveUnitPrice *decimal.Decimal `json:"currentEffectiveUnitPrice,omitempty"`
	CurrentRowTotal           *decimal.Decimal `json:"currentRowTotal,omitempty"`
	PriceChanged              *bool            `json:"priceChanged,omitempty"`
}

type SelectedOptionDTO struct {
	AssignmentID  int64           `json:"assignmentId"`
	Name          string          `json:"name"`
	Value         string          `json:"value"`
	PriceModifier decimal.Decimal `json:"priceModifier"`
}

type CartDTO struct {
	ID                uuid.UUID       `json:"id"`
	Version           int64           `json:"version"`
	Currency          string          `json:"currency"`
	PricingPolicy     string          `json:"pricingPolicy"`
	Subtotal          decimal.Decimal `json:"subtotal"`
	DiscountTotal     decimal.Decimal `json:"discountTotal"`
	Total             decimal.Decimal `json:"total"`
	TotalItemQuantity int             `json:"totalItemQuantity"`
	Shipping          ShippingDTO     `json:"shipping"`
	Items             []CartItemDTO   `json:"items"`
}

type TotalsDTO struct {
	ItemsCount    int             `json:"itemsCount"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	DiscountTotal decimal.Decimal `json:"discountTotal"`
	Total         decimal.Decimal `json:"total"`
}

type DeltaItemDTO struct {
	ID                 uuid.UUID       `json:"id"`
	Qty                int             `json:"qty"`
	RowTotal           decimal.Decimal `json:"rowTotal"`
	EffectiveUnitPrice decimal.Decimal `json:"effectiveUnitPrice"`
}

type CartDeltaDTO struct {
	ChangedItems   []DeltaItemDTO `json:"changedItems"`
	RemovedItemIDs []uuid.UUID    `json:"removedItemIds"`
	Totals         TotalsDTO      `json:"totals"`
}

// BuildCartDTO maps the aggregate to the response envelope. Live
// quotes, when present, annotate items with current prices.
func BuildCartDTO(cart domain.Cart, quotes []service.LiveQuote, shipping *domain.ShippingInfo) CartDTO {
	byItem := make(map[uuid.UUID]service.LiveQuote, len(quotes))
	for _, q := range quotes {
		byItem[q.ItemID] = q
	}

	items := make([]CartItemDTO, 0, len(cart.Items))
	for _, item := range cart.Items {
		dto := CartItemDTO{
			ID:                   item.ID,
			ProductID:            item.ProductID,
			Name:                 item.ProductName,
			UnitPrice:            item.UnitPrice,
			OptionsPriceModifier: item.OptionsPriceModifier,
			EffectiveUnitPrice:   item.EffectiveUnitPrice,
			Qty:                  item.Qty,
			RowTotal:             item.RowTotal,
			PricedAt:             item.PricedAt,
			SelectedOptions:      mapSelectedOptions(item.OptionsSnapshot),
			OptionsHash:          item.OptionsHash,
		}
		if q, ok := byItem[item.ID]; ok {
			price := q.CurrentEffectiveUnitPrice
			rowTotal := q.CurrentRowTotal
			changed := q.PriceChanged
			dto.CurrentEffectiveUnitPrice = &price
			dto.CurrentRowTotal = &rowTotal
			dto.PriceChanged = &changed
		}
		items = append(items, dto)
	}

	shippingDTO := ShippingDTO{
		Method: cart.Shipping.Method,
		Cost:   cart.Shipping.Cost,
		City:   cart.Shipping.City,
		Data:   cart.Shipping.Data,
	}
	if shipping != nil {
		shippingDTO = ShippingDTO{
			Method: shipping.Method,
			Cost:   shipping.Cost,
			City:   shipping.City,
			Data:   shipping.Data,
		}
	}

	return CartDTO{
		ID:                cart.ID,
		Version:           cart.Version,
		Currency:          cart.Currency.String(),
		PricingPolicy:     string(cart.PricingPolicy),
		Subtotal:          cart.Subtotal,
		DiscountTotal:     cart.DiscountTotal,
		Total:             cart.Total,
		TotalItemQuantity: cart.TotalItemQuantity,
		Shipping:          shippingDTO,
		Items:             items,
	}
}

// BuildDelta maps the mutation change list into the delta shape.
func BuildDelta(cart domain.Cart, changes []domain.ItemChange) CartDeltaDTO {
	delta := CartDeltaDTO{
		ChangedItems:   []DeltaItemDTO{},
		RemovedItemIDs: []uuid.UUID{},
		Totals: TotalsDTO{
			ItemsCount:    cart.TotalItemQuantity,
			Subtotal:      cart.Subtotal,
			DiscountTotal: cart.DiscountTotal,
			Total:         cart.Total,
		},
	}

	for _, ch := range changes {
		if ch.Type == domain.ChangeRemoved {
			delta.RemovedItemIDs = append(delta.RemovedItemIDs, ch.Item.ID)
			continue
		}
		delta.ChangedItems = append(delta.ChangedItems, DeltaItemDTO{
			ID:                 ch.Item.ID,
			Qty:                ch.Item.Qty,
			RowTotal:           ch.Item.RowTotal,
			EffectiveUnitPrice: ch.Item.EffectiveUnitPrice,
		})
	}

	return delta
}

func mapSelectedOptions(options []domain.SelectedOption) []SelectedOptionDTO {
	out := make([]SelectedOptionDTO, 0, len(options))
	for _, opt := range options {
		out = append(out, SelectedOptionDTO{
			AssignmentID:  opt.AssignmentID,
			Name:          opt.Name,
			Value:         opt.Value,
			PriceModifier: opt.PriceModifier,
		})
	}
	return out
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`

	AvailableQuantity *int     `json:"availableQuantity,omitempty"`
	CurrentVersion    *int64   `json:"currentVersion,omitempty"`
	RetryAfterMs      *int64   `json:"retryAfterMs,omitempty"`
	StoredHash        string   `json:"storedHash,omitempty"`
	ProvidedHash      string   `json:"providedHash,omitempty"`
	Cart              *CartDTO `json:"cart,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// respondRaw writes a pre-marshalled body, used for idempotent replay
// so the stored response goes out byte-identical.
func respondRaw(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
