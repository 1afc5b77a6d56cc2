package pricing

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"listino/internal/core/id"
)

// Product is the catalog fact record the pricing core consumes. The product
// catalog itself lives outside this module; only the fields pricing needs
// are surfaced here.
type Product struct {
	ID           id.ID           `db:"id" json:"id"`
	Code         string          `db:"code" json:"code"`
	Name         string          `db:"name" json:"name"`
	Category     string          `db:"category" json:"category"`
	Brand        string          `db:"brand" json:"brand"`
	DefaultPrice decimal.Decimal `db:"default_price" json:"defaultPrice"`
	Currency     string          `db:"currency" json:"currency"`
	VATRateID    *string         `db:"vat_rate_id" json:"vatRateId,omitempty"`
	BaseUnitID   *string         `db:"base_unit_id" json:"baseUnitId,omitempty"`
}

// ProductFilter narrows a product selection. Empty slices mean "all";
// all present conditions are ANDed.
type ProductFilter struct {
	ProductIDs    []id.ID
	Categories    []string
	Brands        []string
	MinPrice      *decimal.Decimal
	MaxPrice      *decimal.Decimal
	OnlyWithPrice bool
}

// Matches reports whether p satisfies every present condition.
func (f ProductFilter) Matches(p Product) bool {
	if len(f.ProductIDs) > 0 && !containsID(f.ProductIDs, p.ID) {
		return false
	}
	if len(f.Categories) > 0 && !containsString(f.Categories, p.Category) {
		return false
	}
	if len(f.Brands) > 0 && !containsString(f.Brands, p.Brand) {
		return false
	}
	if f.MinPrice != nil && p.DefaultPrice.LessThan(*f.MinPrice) {
		return false
	}
	if f.MaxPrice != nil && p.DefaultPrice.GreaterThan(*f.MaxPrice) {
		return false
	}
	if f.OnlyWithPrice && !p.DefaultPrice.IsPositive() {
		return false
	}
	return true
}

func containsID(ids []id.ID, target id.ID) bool {
	for _, v := range ids {
		if v == target {
			return true
		}
	}
	return false
}

func containsString(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}

// CatalogFacts supplies product default price, VAT and unit-conversion facts.
// Implemented by the product catalog (external collaborator).
type CatalogFacts interface {
	// Product returns the catalog facts for a single product.
	Product(ctx context.Context, productID id.ID) (*Product, error)

	// ListProducts returns products matching the filter.
	ListProducts(ctx context.Context, filter ProductFilter) ([]Product, error)

	// UnitConversion returns the factor converting a price expressed in
	// fromUnit into toUnit for the given product.
	UnitConversion(ctx context.Context, productID id.ID, fromUnit, toUnit string) (decimal.Decimal, error)

	// VATRate returns the percentage for a VAT rate reference.
	VATRate(ctx context.Context, vatRateID string) (decimal.Decimal, error)
}

// ProductPriceWriter pushes resolved or recalculated prices back onto the
// products' default-price field. Used by the bulk engine and the applier.
type ProductPriceWriter interface {
	UpdateDefaultPrice(ctx context.Context, productID id.ID, price decimal.Decimal) error
}

// PurchaseLine is one historical document line consumed during generation.
type PurchaseLine struct {
	ProductID id.ID
	Price     decimal.Decimal
	Quantity  decimal.Decimal
	Date      time.Time
}

// DocumentHistory streams historical purchase lines for a supplier within a
// date window. Implementations must not load the whole window at once;
// fn is invoked per line and its error aborts the stream.
type DocumentHistory interface {
	StreamPurchaseLines(ctx context.Context, supplierID id.ID, from, to time.Time, fn func(PurchaseLine) error) error
}

// PriceChange is one before/after pair recorded by the backup log.
type PriceChange struct {
	ProductID id.ID           `json:"productId"`
	OldPrice  decimal.Decimal `json:"oldPrice"`
	NewPrice  decimal.Decimal `json:"newPrice"`
}

// BackupLog records prior prices before a mass overwrite so they can be
// inspected or restored later.
type BackupLog interface {
	LogPriceChanges(ctx context.Context, reason string, changes []PriceChange) error
}
