package pricing_repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"listino/internal/core/apperror"
	"listino/internal/core/id"
	"listino/internal/domain/pricing"
	"listino/internal/infrastructure/storage/postgres"
)

const (
	productsTable    = "products"
	conversionsTable = "unit_conversions"
	vatRatesTable    = "vat_rates"
)

var (
	_ pricing.CatalogFacts       = (*CatalogRepo)(nil)
	_ pricing.ProductPriceWriter = (*CatalogRepo)(nil)
)

// CatalogRepo supplies product facts to the pricing domain and writes
// recalculated default prices back.
type CatalogRepo struct {
	txm         *postgres.TxManager
	productCols []string
}

// NewCatalogRepo creates the catalog facts repository.
func NewCatalogRepo(txm *postgres.TxManager) *CatalogRepo {
	return &CatalogRepo{
		txm:         txm,
		productCols: postgres.ExtractDBColumns[pricing.Product](),
	}
}

func (r *CatalogRepo) builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

// Product retrieves one product's pricing facts.
func (r *CatalogRepo) Product(ctx context.Context, productID id.ID) (*pricing.Product, error) {
	q := r.builder().
		Select(r.productCols...).
		From(productsTable).
		Where(squirrel.Eq{"id": productID}).
		Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	var p pricing.Product
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &p, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("product", productID.String())
		}
		return nil, apperror.NewPersistence("get product", err)
	}
	return &p, nil
}

// ListProducts retrieves products matching the filter, in code order.
func (r *CatalogRepo) ListProducts(ctx context.Context, filter pricing.ProductFilter) ([]pricing.Product, error) {
	q := r.builder().
		Select(r.productCols...).
		From(productsTable).
		OrderBy("code ASC")

	if len(filter.ProductIDs) > 0 {
		q = q.Where(squirrel.Eq{"id": filter.ProductIDs})
	}
	if len(filter.Categories) > 0 {
		q = q.Where(squirrel.Eq{"category": filter.Categories})
	}
	if len(filter.Brands) > 0 {
		q = q.Where(squirrel.Eq{"brand": filter.Brands})
	}
	if filter.MinPrice != nil {
		q = q.Where(squirrel.GtOrEq{"default_price": *filter.MinPrice})
	}
	if filter.MaxPrice != nil {
		q = q.Where(squirrel.LtOrEq{"default_price": *filter.MaxPrice})
	}
	if filter.OnlyWithPrice {
		q = q.Where(squirrel.Gt{"default_price": 0})
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	var products []pricing.Product
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &products, sql, args...); err != nil {
		return nil, apperror.NewPersistence("list products", err)
	}
	return products, nil
}

// UnitConversion returns the factor from one unit to another for a product.
// Direct factors win; the inverse direction is derived when only the reverse
// row exists.
func (r *CatalogRepo) UnitConversion(ctx context.Context, productID id.ID, fromUnit, toUnit string) (decimal.Decimal, error) {
	if fromUnit == toUnit {
		return decimal.NewFromInt(1), nil
	}

	q := r.builder().
		Select("from_unit_id", "factor").
		From(conversionsTable).
		Where(squirrel.Eq{"product_id": productID}).
		Where(squirrel.Or{
			squirrel.And{squirrel.Eq{"from_unit_id": fromUnit}, squirrel.Eq{"to_unit_id": toUnit}},
			squirrel.And{squirrel.Eq{"from_unit_id": toUnit}, squirrel.Eq{"to_unit_id": fromUnit}},
		}).
		Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return decimal.Zero, fmt.Errorf("build query: %w", err)
	}

	var storedFrom string
	var factor decimal.Decimal
	err = r.txm.GetQuerier(ctx).QueryRow(ctx, sql, args...).Scan(&storedFrom, &factor)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, apperror.NewValidation("no unit conversion defined").
				WithDetail("productId", productID.String()).
				WithDetail("fromUnit", fromUnit).
				WithDetail("toUnit", toUnit)
		}
		return decimal.Zero, apperror.NewPersistence("get unit conversion", err)
	}

	if storedFrom != fromUnit {
		if factor.IsZero() {
			return decimal.Zero, apperror.NewValidation("unit conversion factor is zero").
				WithDetail("productId", productID.String())
		}
		return decimal.NewFromInt(1).Div(factor), nil
	}
	return factor, nil
}

// VATRate returns the percentage of one VAT rate.
func (r *CatalogRepo) VATRate(ctx context.Context, vatRateID string) (decimal.Decimal, error) {
	q := r.builder().
		Select("percentage").
		From(vatRatesTable).
		Where(squirrel.Eq{"id": vatRateID}).
		Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return decimal.Zero, fmt.Errorf("build query: %w", err)
	}
	var rate decimal.Decimal
	err = r.txm.GetQuerier(ctx).QueryRow(ctx, sql, args...).Scan(&rate)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, apperror.NewNotFound("vat rate", vatRateID)
		}
		return decimal.Zero, apperror.NewPersistence("get vat rate", err)
	}
	return rate, nil
}

// UpdateDefaultPrice overwrites one product's default price.
func (r *CatalogRepo) UpdateDefaultPrice(ctx context.Context, productID id.ID, price decimal.Decimal) error {
	q := r.builder().
		Update(productsTable).
		Set("default_price", price).
		Where(squirrel.Eq{"id": productID})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}
	result, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return apperror.NewPersistence("update default price", err)
	}
	if result.RowsAffected() == 0 {
		return apperror.NewNotFound("product", productID.String())
	}
	return nil
}
