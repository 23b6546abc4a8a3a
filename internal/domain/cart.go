package domain

import (
	"crypto/sha1"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

type PricingPolicy string

const (
	PolicySnapshot PricingPolicy = "SNAPSHOT"
	PolicyLive     PricingPolicy = "LIVE"
)

func ParsePricingPolicy(s string) (PricingPolicy, error) {
	switch PricingPolicy(strings.ToUpper(s)) {
	case PolicySnapshot:
		return PolicySnapshot, nil
	case PolicyLive:
		return PolicyLive, nil
	}
	return "", Validationf("pricingPolicy", "pricingPolicy[%s] must be SNAPSHOT or LIVE", s)
}

// Cart is the mutation aggregate. Version is the externally visible
// concurrency token and moves by exactly one per successful mutation.
type Cart struct {
	ID            uuid.UUID
	UserID        *string
	Token         *uuid.UUID
	Version       int64
	Currency      currency.Unit
	PricingPolicy PricingPolicy

	Subtotal          decimal.Decimal
	DiscountTotal     decimal.Decimal
	Total             decimal.Decimal
	TotalItemQuantity int

	Shipping ShippingInfo

	ExpiresAt time.Time
	CreatedAt time.Time
	UpdatedAt time.Time

	Items []CartItem
}

type ShippingInfo struct {
	Method string
	Cost   decimal.Decimal
	City   string
	Data   map[string]any
}

type CartItem struct {
	ID          uuid.UUID
	CartID      uuid.UUID
	ProductID   int64
	ProductName string

	Qty                  int
	UnitPrice            decimal.Decimal
	OptionsPriceModifier decimal.Decimal
	EffectiveUnitPrice   decimal.Decimal
	RowTotal             decimal.Decimal

	OptionsHash     string
	OptionsSnapshot []SelectedOption
	PricedAt        time.Time

	CreatedAt time.Time
}

// SelectedOption is the add-time snapshot of one chosen option assignment.
type SelectedOption struct {
	AssignmentID  int64
	Name          string
	Value         string
	PriceModifier decimal.Decimal
}

// FindItem returns the active item matching (productID, optionsHash), if any.
func (c *Cart) FindItem(productID int64, optionsHash string) *CartItem {
	for i := range c.Items {
		if c.Items[i].ProductID == productID && c.Items[i].OptionsHash == optionsHash {
			return &c.Items[i]
		}
	}
	return nil
}

// FindItemByID returns the item with the given id, if present in this cart.
func (c *Cart) FindItemByID(itemID uuid.UUID) *CartItem {
	for i := range c.Items {
		if c.Items[i].ID == itemID {
			return &c.Items[i]
		}
	}
	return nil
}

// OptionsHash digests a set of option-assignment ids into the row
// deduplication key. The digest is order-independent and collapses
// duplicates; an empty selection hashes to "".
func OptionsHash(optionIDs []int64) string {
	if len(optionIDs) == 0 {
		return ""
	}

	uniq := make(map[int64]struct{}, len(optionIDs))
	for _, id := range optionIDs {
		uniq[id] = struct{}{}
	}

	sorted := make([]int64, 0, len(uniq))
	for id := range uniq {
		sorted = append(sorted, id)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	parts := make([]string, len(sorted))
	for i, id := range sorted {
		parts[i] = strconv.FormatInt(id, 10)
	}

	sum := sha1.Sum([]byte(strings.Join(parts, "-")))
	return hex.EncodeToString(sum[:])
}

// NewID returns a time-sortable unique identifier.
func NewID() uuid.UUID {
	id, err := uuid.NewV7()
	if err != nil {
		// NewV7 only fails when the entropy source does; fall back to v4
		return uuid.New()
	}
	return id
}
