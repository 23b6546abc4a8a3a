package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/CreativeSeo33/new3-sub001/internal/domain"
	"github.com/CreativeSeo33/new3-sub001/internal/port"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

type cartRepository struct {
	pool *pgxpool.Pool
}

func NewCart(pool *pgxpool.Pool) port.CartRepository {
	return &cartRepository{pool: pool}
}

const cartColumns = `id, user_id, token, version, currency, pricing_policy,
	subtotal, discount_total, total, total_item_quantity,
	shipping_method, shipping_cost, shipping_city, shipping_data,
	expires_at, created_at, updated_at`

const itemColumns = `id, cart_id, product_id, product_name, qty,
	unit_price, options_price_modifier, effective_unit_price, row_total,
	options_hash, options_snapshot, priced_at, created_at`

func (r *cartRepository) GetCart(ctx context.Context, cartID uuid.UUID) (domain.Cart, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+cartColumns+` FROM carts WHERE id = $1`, cartID)

	cart, err := scanCart(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Cart{}, domain.ErrCartNotFound()
	}
	if err != nil {
		return domain.Cart{}, fmt.Errorf("scanCart: %w", err)
	}

	items, err := r.loadItems(ctx, cartID)
	if err != nil {
		return domain.Cart{}, fmt.Errorf("loadItems: %w", err)
	}
	cart.Items = items

	return cart, nil
}

func (r *cartRepository) FindByUser(ctx context.Context, userID string) (domain.Cart, bool, error) {
	if userID == "" {
		return domain.Cart{}, false, fmt.Errorf("userID is empty")
	}
	return r.findOne(ctx, `SELECT `+cartColumns+` FROM carts WHERE user_id = $1`, userID)
}

func (r *cartRepository) FindByToken(ctx context.Context, token uuid.UUID) (domain.Cart, bool, error) {
	return r.findOne(ctx, `SELECT `+cartColumns+` FROM carts WHERE token = $1`, token)
}

func (r *cartRepository) findOne(ctx context.Context, query string, arg any) (domain.Cart, bool, error) {
	row := r.pool.QueryRow(ctx, query, arg)

	cart, err := scanCart(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Cart{}, false, nil
	}
	if err != nil {
		return domain.Cart{}, false, fmt.Errorf("scanCart: %w", err)
	}

	items, err := r.loadItems(ctx, cart.ID)
	if err != nil {
		return domain.Cart{}, false, fmt.Errorf("loadItems: %w", err)
	}
	cart.Items = items

	return cart, true, nil
}

func (r *cartRepository) loadItems(ctx context.Context, cartID uuid.UUID) ([]domain.CartItem, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+itemColumns+` FROM cart_items WHERE cart_id = $1 ORDER BY created_at, id`, cartID)
	if err != nil {
		return nil, fmt.Errorf("pool.Query: %w", err)
	}
	defer rows.Close()

	var items []domain.CartItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scanItem: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (r *cartRepository) CreateCart(ctx context.Context, cart domain.Cart) error {
	shippingData, err := marshalShippingData(cart.Shipping.Data)
	if err != nil {
		return err
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO carts (`+cartColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`,
		cart.ID, cart.UserID, cart.Token, cart.Version, cart.Currency.String(), cart.PricingPolicy,
		cart.Subtotal, cart.DiscountTotal, cart.Total, cart.TotalItemQuantity,
		nullIfEmpty(cart.Shipping.Method), nullableDecimal(cart.Shipping.Cost), nullIfEmpty(cart.Shipping.City), shippingData,
		cart.ExpiresAt, cart.CreatedAt, cart.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert cart: %w", err)
	}
	return nil
}

func (r *cartRepository) Apply(ctx context.Context, cart domain.Cart, expectedVersion int64, changes []domain.ItemChange) error {
	_, err := withTx(ctx, r.pool, func(tx pgx.Tx) (struct{}, error) {
		var zero struct{}

		for _, ch := range changes {
			switch ch.Type {
			case domain.ChangeAdded, domain.ChangeUpdated:
				if err := upsertItem(ctx, tx, ch.Item); err != nil {
					return zero, fmt.Errorf("upsertItem: %w", err)
				}
			case domain.ChangeRemoved:
				// Zero rows is fine: an item added and removed within
				// one batch never reaches storage.
				if _, err := tx.Exec(ctx, `DELETE FROM cart_items WHERE id = $1`, ch.Item.ID); err != nil {
					return zero, fmt.Errorf("delete item: %w", err)
				}
			}
		}

		if err := updateHeader(ctx, tx, cart, expectedVersion); err != nil {
			return zero, err
		}
		return zero, nil
	})

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && (pgErr.Code == "40P01" || pgErr.Code == "40001") {
		// Deadlock or serialization failure; retrying is the client's call.
		return domain.ErrVersionConflict(expectedVersion, err)
	}
	return err
}

func upsertItem(ctx context.Context, tx pgx.Tx, item domain.CartItem) error {
	snapshot, err := json.Marshal(item.OptionsSnapshot)
	if err != nil {
		return fmt.Errorf("marshal options snapshot: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO cart_items (`+itemColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		ON CONFLICT (id) DO UPDATE SET
			cart_id = EXCLUDED.cart_id,
			qty = EXCLUDED.qty,
			unit_price = EXCLUDED.unit_price,
			options_price_modifier = EXCLUDED.options_price_modifier,
			effective_unit_price = EXCLUDED.effective_unit_price,
			row_total = EXCLUDED.row_total,
			priced_at = EXCLUDED.priced_at`,
		item.ID, item.CartID, item.ProductID, item.ProductName, item.Qty,
		item.UnitPrice, item.OptionsPriceModifier, item.EffectiveUnitPrice, item.RowTotal,
		item.OptionsHash, snapshot, item.PricedAt, item.CreatedAt)
	return err
}

func updateHeader(ctx context.Context, tx pgx.Tx, cart domain.Cart, expectedVersion int64) error {
	shippingData, err := marshalShippingData(cart.Shipping.Data)
	if err != nil {
		return err
	}

	tag, err := tx.Exec(ctx, `
		UPDATE carts SET
			user_id = $1, token = $2, version = $3, pricing_policy = $4,
			subtotal = $5, discount_total = $6, total = $7, total_item_quantity = $8,
			shipping_method = $9, shipping_cost = $10, shipping_city = $11, shipping_data = $12,
			expires_at = $13, updated_at = $14
		WHERE id = $15 AND version = $16`,
		cart.UserID, cart.Token, cart.Version, cart.PricingPolicy,
		cart.Subtotal, cart.DiscountTotal, cart.Total, cart.TotalItemQuantity,
		nullIfEmpty(cart.Shipping.Method), nullableDecimal(cart.Shipping.Cost), nullIfEmpty(cart.Shipping.City), shippingData,
		cart.ExpiresAt, cart.UpdatedAt,
		cart.ID, expectedVersion)
	if err != nil {
		return fmt.Errorf("update cart header: %w", err)
	}

	if tag.RowsAffected() == 0 {
		var current int64
		if err := tx.QueryRow(ctx, `SELECT version FROM carts WHERE id = $1`, cart.ID).Scan(&current); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return domain.ErrCartNotFound()
			}
			return fmt.Errorf("read current version: %w", err)
		}
		return domain.ErrVersionConflict(current, nil)
	}
	return nil
}

func (r *cartRepository) DeleteCart(ctx context.Context, cartID uuid.UUID) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM carts WHERE id = $1`, cartID); err != nil {
		return fmt.Errorf("delete cart: %w", err)
	}
	return nil
}

func (r *cartRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM carts WHERE expires_at < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired carts: %w", err)
	}
	return tag.RowsAffected(), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCart(row rowScanner) (domain.Cart, error) {
	var (
		cart         domain.Cart
		currencyCode string
		policy       string
		method, city *string
		cost         *decimal.Decimal
		data         []byte
	)

	err := row.Scan(
		&cart.ID, &cart.UserID, &cart.Token, &cart.Version, &currencyCode, &policy,
		&cart.Subtotal, &cart.DiscountTotal, &cart.Total, &cart.TotalItemQuantity,
		&method, &cost, &city, &data,
		&cart.ExpiresAt, &cart.CreatedAt, &cart.UpdatedAt)
	if err != nil {
		return domain.Cart{}, err
	}

	unit, err := currency.ParseISO(currencyCode)
	if err != nil {
		return domain.Cart{}, fmt.Errorf("currency[%s] is not valid: %w", currencyCode, err)
	}
	cart.Currency = unit
	cart.PricingPolicy = domain.PricingPolicy(policy)

	if method != nil {
		cart.Shipping.Method = *method
	}
	if city != nil {
		cart.Shipping.City = *city
	}
	if cost != nil {
		cart.Shipping.Cost = *cost
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &cart.Shipping.Data); err != nil {
			return domain.Cart{}, fmt.Errorf("unmarshal shipping data: %w", err)
		}
	}

	return cart, nil
}

func scanItem(row rowScanner) (domain.CartItem, error) {
	var (
		item     domain.CartItem
		snapshot []byte
	)

	err := row.Scan(
		&item.ID, &item.CartID, &item.ProductID, &item.ProductName, &item.Qty,
		&item.UnitPrice, &item.OptionsPriceModifier, &item.EffectiveUnitPrice, &item.RowTotal,
		&item.OptionsHash, &snapshot, &item.PricedAt, &item.CreatedAt)
	if err != nil {
		return domain.CartItem{}, err
	}

	if len(snapshot) > 0 {
		if err := json.Unmarshal(snapshot, &item.OptionsSnapshot); err != nil {
			return domain.CartItem{}, fmt.Errorf("unmarshal options snapshot: %w", err)
		}
	}
	return item, nil
}

func marshalShippingData(data map[string]any) ([]byte, error) {
	if data == nil {
		return nil, nil
	}
	out, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal shipping data: %w", err)
	}
	return out, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullableDecimal(d decimal.Decimal) *decimal.Decimal {
	if d.IsZero() {
		return nil
	}
	return &d
}
