package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/CreativeSeo33/new3-sub001/internal/domain"
	"github.com/CreativeSeo33/new3-sub001/internal/port"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// productRepository is the read-only catalog view the cart consumes:
// live price, stock level and option assignments.
type productRepository struct {
	pool *pgxpool.Pool
}

func NewProductCatalog(pool *pgxpool.Pool) port.ProductCatalog {
	return &productRepository{pool: pool}
}

func (r *productRepository) GetProduct(ctx context.Context, productID int64) (domain.Product, error) {
	var (
		product      domain.Product
		amount       decimal.Decimal
		currencyCode string
	)

	err := r.pool.QueryRow(ctx,
		`SELECT id, name, price, currency, available FROM products WHERE id = $1`, productID).
		Scan(&product.ID, &product.Name, &amount, &currencyCode, &product.Available)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Product{}, domain.Validationf("productId", "product[%d] does not exist", productID)
	}
	if err != nil {
		return domain.Product{}, fmt.Errorf("select product: %w", err)
	}

	product.Price, err = domain.NewMoney(amount, currencyCode)
	if err != nil {
		return domain.Product{}, fmt.Errorf("domain.NewMoney: %w", err)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, name, value, price_modifier FROM product_option_assignments WHERE product_id = $1`, productID)
	if err != nil {
		return domain.Product{}, fmt.Errorf("select option assignments: %w", err)
	}
	defer rows.Close()

	product.Options = make(map[int64]domain.ProductOption)
	for rows.Next() {
		var opt domain.ProductOption
		if err := rows.Scan(&opt.AssignmentID, &opt.Name, &opt.Value, &opt.PriceModifier); err != nil {
			return domain.Product{}, fmt.Errorf("scan option assignment: %w", err)
		}
		product.Options[opt.AssignmentID] = opt
	}

	return product, rows.Err()
}
