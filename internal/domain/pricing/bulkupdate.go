package pricing

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"listino/internal/core/apperror"
	"listino/internal/core/id"
	"listino/internal/core/tx"
	"listino/pkg/logger"
)

// BulkOperation is the arithmetic applied to each selected price.
type BulkOperation string

const (
	OpIncrease           BulkOperation = "increase"
	OpDecrease           BulkOperation = "decrease"
	OpPercentageIncrease BulkOperation = "percentage_increase"
	OpPercentageDecrease BulkOperation = "percentage_decrease"
	OpSet                BulkOperation = "set"
)

// Valid reports whether the operation is one of the supported kinds.
func (o BulkOperation) Valid() bool {
	switch o {
	case OpIncrease, OpDecrease, OpPercentageIncrease, OpPercentageDecrease, OpSet:
		return true
	}
	return false
}

// BulkUpdateRequest describes one mass price recalculation over product
// default prices. Filter conditions are ANDed; an empty filter selects
// the whole catalog.
type BulkUpdateRequest struct {
	Filter    ProductFilter
	Operation BulkOperation
	// Value is the amount for increase/decrease/set, or the percentage
	// for the percentage operations.
	Value    decimal.Decimal
	Rounding RoundingStrategy

	RequestedBy id.ID
	Reason      string
}

// Validate checks the request before any computation runs.
func (r *BulkUpdateRequest) Validate() error {
	if !r.Operation.Valid() {
		return apperror.NewValidation(fmt.Sprintf("unknown bulk operation %q", r.Operation))
	}
	if r.Rounding != "" {
		if err := r.Rounding.Validate(); err != nil {
			return err
		}
	}
	if r.Value.IsNegative() {
		return apperror.NewValidation("value must not be negative; use the decrease operations instead")
	}
	if r.Operation == OpSet && r.Value.IsZero() {
		return apperror.NewValidation("set operation requires a positive target price")
	}
	return nil
}

// BulkChange is one computed price movement.
type BulkChange struct {
	ProductID   id.ID           `json:"productId"`
	ProductCode string          `json:"productCode"`
	ProductName string          `json:"productName"`
	OldPrice    decimal.Decimal `json:"oldPrice"`
	NewPrice    decimal.Decimal `json:"newPrice"`
	Delta       decimal.Decimal `json:"delta"`
	// DeltaPercent is the relative movement. A product priced at zero has
	// no meaningful base, so its percentage stays zero.
	DeltaPercent decimal.Decimal `json:"deltaPercent"`
}

// BulkUpdatePreview is the dry-run outcome. It is computed by the same code
// path as Apply, so an unchanged catalog previews exactly what Apply writes.
type BulkUpdatePreview struct {
	MatchedProducts int             `json:"matchedProducts"`
	Changes         []BulkChange    `json:"changes"`
	TotalOldValue   decimal.Decimal `json:"totalOldValue"`
	TotalNewValue   decimal.Decimal `json:"totalNewValue"`
	// AveragePercentChange is the mean of the per-change DeltaPercent values.
	AveragePercentChange decimal.Decimal `json:"averagePercentChange"`
}

// ItemOutcome is the per-product result of an Apply run.
type ItemOutcome struct {
	ProductID id.ID           `json:"productId"`
	OldPrice  decimal.Decimal `json:"oldPrice"`
	NewPrice  decimal.Decimal `json:"newPrice"`
	Updated   bool            `json:"updated"`
	Error     string          `json:"error,omitempty"`
}

// BulkUpdateResult reports an Apply run. RolledBack is true when any write
// failed: the transaction aborted and nothing was persisted.
type BulkUpdateResult struct {
	Requested  int           `json:"requested"`
	Updated    int           `json:"updated"`
	Items      []ItemOutcome `json:"items"`
	RolledBack bool          `json:"rolledBack"`
	AppliedAt  time.Time     `json:"appliedAt"`
}

// Engine performs mass recalculation of product default prices.
type Engine struct {
	catalog CatalogFacts
	writer  ProductPriceWriter
	backup  BackupLog
	txm     tx.Manager
	cache   *ResolutionCache
}

// NewEngine creates a bulk update engine. backup may be nil when no
// price-backup log is configured; cache may be nil when resolution
// caching is disabled.
func NewEngine(catalog CatalogFacts, writer ProductPriceWriter, backup BackupLog, txm tx.Manager, cache *ResolutionCache) *Engine {
	return &Engine{catalog: catalog, writer: writer, backup: backup, txm: txm, cache: cache}
}

// Preview computes the changes the request would make without persisting
// anything.
func (e *Engine) Preview(ctx context.Context, req BulkUpdateRequest) (*BulkUpdatePreview, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	changes, matched, err := e.computeChanges(ctx, req)
	if err != nil {
		return nil, err
	}

	preview := &BulkUpdatePreview{
		MatchedProducts: matched,
		Changes:         changes,
		TotalOldValue:   decimal.Zero,
		TotalNewValue:   decimal.Zero,
	}
	percentSum := decimal.Zero
	for _, c := range changes {
		preview.TotalOldValue = preview.TotalOldValue.Add(c.OldPrice)
		preview.TotalNewValue = preview.TotalNewValue.Add(c.NewPrice)
		percentSum = percentSum.Add(c.DeltaPercent)
	}
	if len(changes) > 0 {
		preview.AveragePercentChange = percentSum.Div(decimal.NewFromInt(int64(len(changes))))
	}
	return preview, nil
}

// Apply computes the same changes as Preview and persists them in a single
// transaction. Either every product is updated or none.
func (e *Engine) Apply(ctx context.Context, req BulkUpdateRequest) (*BulkUpdateResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	changes, matched, err := e.computeChanges(ctx, req)
	if err != nil {
		return nil, err
	}

	result := &BulkUpdateResult{
		Requested: matched,
		Items:     make([]ItemOutcome, 0, len(changes)),
		AppliedAt: time.Now().UTC(),
	}
	if len(changes) == 0 {
		return result, nil
	}

	txErr := e.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		if e.backup != nil {
			prior := make([]PriceChange, len(changes))
			for i, c := range changes {
				prior[i] = PriceChange{ProductID: c.ProductID, OldPrice: c.OldPrice, NewPrice: c.NewPrice}
			}
			reason := req.Reason
			if reason == "" {
				reason = "bulk price update"
			}
			if err := e.backup.LogPriceChanges(ctx, reason, prior); err != nil {
				return err
			}
		}

		for _, c := range changes {
			if err := e.writer.UpdateDefaultPrice(ctx, c.ProductID, c.NewPrice); err != nil {
				result.Items = append(result.Items, ItemOutcome{
					ProductID: c.ProductID,
					OldPrice:  c.OldPrice,
					NewPrice:  c.NewPrice,
					Error:     err.Error(),
				})
				return apperror.NewPersistence("bulk price update", err)
			}
			result.Items = append(result.Items, ItemOutcome{
				ProductID: c.ProductID,
				OldPrice:  c.OldPrice,
				NewPrice:  c.NewPrice,
				Updated:   true,
			})
			result.Updated++
		}
		return nil
	})
	if txErr != nil {
		result.RolledBack = true
		result.Updated = 0
		logger.Error(ctx, "bulk price update rolled back",
			"operation", string(req.Operation),
			"requested", result.Requested,
			"error", txErr)
		return result, txErr
	}

	// Default prices feed the resolution fallback; drop cached results now
	// that the writes are committed.
	if e.cache != nil {
		for _, c := range changes {
			e.cache.InvalidateProduct(c.ProductID)
		}
	}

	logger.Info(ctx, "bulk price update applied",
		"operation", string(req.Operation),
		"updated", result.Updated)
	return result, nil
}

// computeChanges selects products and computes new prices. Preview and Apply
// both call it, guaranteeing identical output for identical input.
func (e *Engine) computeChanges(ctx context.Context, req BulkUpdateRequest) ([]BulkChange, int, error) {
	products, err := e.catalog.ListProducts(ctx, req.Filter)
	if err != nil {
		return nil, 0, err
	}

	changes := make([]BulkChange, 0, len(products))
	for _, p := range products {
		newPrice := applyOperation(p.DefaultPrice, req.Operation, req.Value)
		if req.Rounding != "" {
			newPrice = req.Rounding.Apply(newPrice)
		}
		if newPrice.Equal(p.DefaultPrice) {
			continue
		}
		delta := newPrice.Sub(p.DefaultPrice)
		percent := decimal.Zero
		if !p.DefaultPrice.IsZero() {
			percent = delta.Div(p.DefaultPrice).Mul(decimal.NewFromInt(100))
		}
		changes = append(changes, BulkChange{
			ProductID:    p.ID,
			ProductCode:  p.Code,
			ProductName:  p.Name,
			OldPrice:     p.DefaultPrice,
			NewPrice:     newPrice,
			Delta:        delta,
			DeltaPercent: percent,
		})
	}
	return changes, len(products), nil
}

func applyOperation(price decimal.Decimal, op BulkOperation, value decimal.Decimal) decimal.Decimal {
	var out decimal.Decimal
	switch op {
	case OpIncrease:
		out = price.Add(value)
	case OpDecrease:
		out = price.Sub(value)
	case OpPercentageIncrease:
		out = applyMarkup(price, value)
	case OpPercentageDecrease:
		out = applyDiscount(price, value)
	case OpSet:
		out = value
	default:
		out = price
	}
	// Prices never go below zero.
	if out.IsNegative() {
		return decimal.Zero
	}
	return out
}
