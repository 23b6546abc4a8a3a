package domain

import "github.com/shopspring/decimal"

// Product is the catalog view the cart needs: live price, stock and the
// option assignments a client may select.
type Product struct {
	ID        int64
	Name      string
	Price     Money
	Available int
	Options   map[int64]ProductOption
}

type ProductOption struct {
	AssignmentID  int64
	Name          string
	Value         string
	PriceModifier decimal.Decimal
}

type ChangeType string

const (
	ChangeAdded   ChangeType = "added"
	ChangeUpdated ChangeType = "changed"
	ChangeRemoved ChangeType = "removed"
)

// ItemChange is one entry of the structured change list a mutation
// produces; the delta builder and the persistence layer both consume it.
type ItemChange struct {
	Type ChangeType
	Item CartItem
}
