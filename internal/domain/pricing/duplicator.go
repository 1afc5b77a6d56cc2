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

// DuplicateRequest clones an existing price list into a new one, optionally
// transforming prices and narrowing the copied entries.
type DuplicateRequest struct {
	SourceListID id.ID

	NewCode string
	NewName string

	// Overrides for the clone; zero values inherit from the source.
	ValidFrom *time.Time
	ValidTo   *time.Time
	Priority  *int
	EventID   *id.ID
	Type      ListType
	Direction Direction

	// Entry selection. Empty allow-lists copy everything.
	ProductIDs []id.ID
	Categories []string
	ActiveOnly bool

	// Price transformation applied while copying.
	MarkupPercentage decimal.Decimal
	Rounding         RoundingStrategy

	CopyAssignments bool
}

// Validate checks the request.
func (r *DuplicateRequest) Validate() error {
	if id.IsNil(r.SourceListID) {
		return apperror.NewValidation("source price list is required")
	}
	if r.NewName == "" {
		return apperror.NewValidation("new price list name is required")
	}
	if r.Rounding != "" {
		if err := r.Rounding.Validate(); err != nil {
			return err
		}
	}
	if r.MarkupPercentage.LessThan(decimal.NewFromInt(-100)) ||
		r.MarkupPercentage.GreaterThan(decimal.NewFromInt(1000)) {
		return apperror.NewValidation("markup percentage must be between -100 and 1000")
	}
	return nil
}

// DuplicateResult reports a clone run.
type DuplicateResult struct {
	NewList           *PriceList `json:"newList"`
	SourceEntries     int        `json:"sourceEntries"`
	CopiedEntries     int        `json:"copiedEntries"`
	SkippedEntries    int        `json:"skippedEntries"`
	CopiedAssignments int        `json:"copiedAssignments"`
}

// ApplyMode selects which products an apply-to-products run may touch.
type ApplyMode string

const (
	// ApplyUpdateExisting only overwrites products that already carry a
	// non-zero default price.
	ApplyUpdateExisting ApplyMode = "update_existing"
	// ApplyUpdateAll overwrites every product found in the list.
	ApplyUpdateAll ApplyMode = "update_all"
)

// ApplyToProductsRequest pushes a price list's entries onto the products'
// default prices.
type ApplyToProductsRequest struct {
	PriceListID id.ID
	Mode        ApplyMode

	// Guards. At most one may be set; both at once is a conflict.
	OnlyUpdateIfHigher bool
	OnlyUpdateIfLower  bool

	// BackupPriorPrices records old prices through the backup log before
	// any overwrite.
	BackupPriorPrices bool

	AppliedBy id.ID
}

// Validate checks the request.
func (r *ApplyToProductsRequest) Validate() error {
	if id.IsNil(r.PriceListID) {
		return apperror.NewValidation("price list is required")
	}
	switch r.Mode {
	case ApplyUpdateExisting, ApplyUpdateAll:
	default:
		return apperror.NewValidation(fmt.Sprintf("unknown apply mode %q", r.Mode))
	}
	if r.OnlyUpdateIfHigher && r.OnlyUpdateIfLower {
		return apperror.NewConflict("only_update_if_higher and only_update_if_lower are mutually exclusive")
	}
	return nil
}

// ProductApplyOutcome is the per-product report of an apply run.
type ProductApplyOutcome struct {
	ProductID id.ID           `json:"productId"`
	OldPrice  decimal.Decimal `json:"oldPrice"`
	NewPrice  decimal.Decimal `json:"newPrice"`
	Updated   bool            `json:"updated"`
	Reason    string          `json:"reason,omitempty"`
}

// ApplyToProductsResult reports an apply-to-products run.
type ApplyToProductsResult struct {
	Examined int                   `json:"examined"`
	Updated  int                   `json:"updated"`
	Skipped  int                   `json:"skipped"`
	Items    []ProductApplyOutcome `json:"items"`
}

// Duplicator clones price lists and pushes list prices back onto products.
type Duplicator struct {
	repo    Repository
	catalog CatalogFacts
	writer  ProductPriceWriter
	backup  BackupLog
	txm     tx.Manager
	cache   *ResolutionCache
}

// NewDuplicator creates a duplicator/applier. backup and cache may be nil.
func NewDuplicator(repo Repository, catalog CatalogFacts, writer ProductPriceWriter, backup BackupLog, txm tx.Manager, cache *ResolutionCache) *Duplicator {
	return &Duplicator{repo: repo, catalog: catalog, writer: writer, backup: backup, txm: txm, cache: cache}
}

// Duplicate clones a list and its selected entries in one transaction.
func (d *Duplicator) Duplicate(ctx context.Context, req DuplicateRequest) (*DuplicateResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	source, err := d.repo.GetList(ctx, req.SourceListID)
	if err != nil {
		return nil, err
	}

	clone := NewPriceList(req.NewCode, req.NewName, source.Currency)
	clone.ValidFrom = source.ValidFrom
	clone.ValidTo = source.ValidTo
	clone.Priority = source.Priority
	clone.Type = source.Type
	clone.Direction = source.Direction
	clone.EventID = source.EventID
	if req.ValidFrom != nil {
		clone.ValidFrom = req.ValidFrom
	}
	if req.ValidTo != nil {
		clone.ValidTo = req.ValidTo
	}
	if req.Priority != nil {
		clone.Priority = *req.Priority
	}
	if req.EventID != nil {
		clone.EventID = req.EventID
	}
	if req.Type != "" {
		clone.Type = req.Type
	}
	if req.Direction != "" {
		clone.Direction = req.Direction
	}
	if clone.Code == "" {
		clone.Code = source.Code + "-copy"
	}
	if err := clone.Validate(ctx); err != nil {
		return nil, err
	}

	entries, err := d.repo.EntriesForList(ctx, source.ID)
	if err != nil {
		return nil, err
	}

	categorySet := make(map[string]bool, len(req.Categories))
	if len(req.Categories) > 0 {
		for _, c := range req.Categories {
			categorySet[c] = true
		}
	}

	result := &DuplicateResult{NewList: clone, SourceEntries: len(entries)}
	copied := make([]PriceListEntry, 0, len(entries))
	for _, e := range entries {
		if req.ActiveOnly && e.Status != StatusActive {
			result.SkippedEntries++
			continue
		}
		if len(req.ProductIDs) > 0 && !containsID(req.ProductIDs, e.ProductID) {
			result.SkippedEntries++
			continue
		}
		if len(categorySet) > 0 {
			p, err := d.catalog.Product(ctx, e.ProductID)
			if apperror.IsNotFound(err) {
				// Entry pointing at a deleted product: skip, don't abort.
				result.SkippedEntries++
				continue
			}
			if err != nil {
				return nil, err
			}
			if !categorySet[p.Category] {
				result.SkippedEntries++
				continue
			}
		}

		dup := e
		dup.ID = id.New()
		dup.Version = 1
		dup.PriceListID = clone.ID
		dup.Price = finishPrice(e.Price, req.MarkupPercentage, req.Rounding)
		copied = append(copied, dup)
	}
	result.CopiedEntries = len(copied)

	var assignments []PartyAssignment
	if req.CopyAssignments {
		existing, err := d.repo.AssignmentsForList(ctx, source.ID)
		if err != nil {
			return nil, err
		}
		for _, a := range existing {
			na := a
			na.ID = id.New()
			na.Version = 1
			na.PriceListID = clone.ID
			assignments = append(assignments, na)
		}
	}

	err = d.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := d.repo.CreateList(ctx, clone); err != nil {
			return err
		}
		if len(copied) > 0 {
			if err := d.repo.CreateEntries(ctx, copied); err != nil {
				return err
			}
		}
		for i := range assignments {
			if err := d.repo.CreateAssignment(ctx, &assignments[i]); err != nil {
				return err
			}
			result.CopiedAssignments++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "price list duplicated",
		"sourceId", source.ID,
		"newId", clone.ID,
		"copied", result.CopiedEntries,
		"skipped", result.SkippedEntries)
	return result, nil
}

// ApplyToProducts overwrites product default prices with the entries of a
// price list, inside one transaction. Prior prices go to the backup log
// before the first write when requested.
func (d *Duplicator) ApplyToProducts(ctx context.Context, req ApplyToProductsRequest) (*ApplyToProductsResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.BackupPriorPrices && d.backup == nil {
		return nil, apperror.NewValidation("price backup log is not configured")
	}

	list, err := d.repo.GetList(ctx, req.PriceListID)
	if err != nil {
		return nil, err
	}
	entries, err := d.repo.EntriesForList(ctx, list.ID)
	if err != nil {
		return nil, err
	}

	result := &ApplyToProductsResult{Items: make([]ProductApplyOutcome, 0, len(entries))}
	var changes []PriceChange

	for _, e := range entries {
		if e.Status != StatusActive {
			continue
		}
		result.Examined++

		p, err := d.catalog.Product(ctx, e.ProductID)
		outcome := ProductApplyOutcome{ProductID: e.ProductID, NewPrice: e.Price}
		if apperror.IsNotFound(err) {
			outcome.Reason = "product not found"
			result.Skipped++
			result.Items = append(result.Items, outcome)
			continue
		}
		if err != nil {
			return nil, err
		}
		outcome.OldPrice = p.DefaultPrice

		switch {
		case req.Mode == ApplyUpdateExisting && !p.DefaultPrice.IsPositive():
			outcome.Reason = "no existing price"
		case req.OnlyUpdateIfHigher && !e.Price.GreaterThan(p.DefaultPrice):
			outcome.Reason = "new price not higher"
		case req.OnlyUpdateIfLower && !e.Price.LessThan(p.DefaultPrice):
			outcome.Reason = "new price not lower"
		case e.Price.Equal(p.DefaultPrice):
			outcome.Reason = "unchanged"
		}
		if outcome.Reason != "" {
			result.Skipped++
			result.Items = append(result.Items, outcome)
			continue
		}

		outcome.Updated = true
		result.Items = append(result.Items, outcome)
		changes = append(changes, PriceChange{ProductID: p.ID, OldPrice: p.DefaultPrice, NewPrice: e.Price})
	}

	if len(changes) == 0 {
		return result, nil
	}

	err = d.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		if req.BackupPriorPrices {
			reason := fmt.Sprintf("apply price list %s to products", list.Code)
			if err := d.backup.LogPriceChanges(ctx, reason, changes); err != nil {
				return err
			}
		}
		for _, c := range changes {
			if err := d.writer.UpdateDefaultPrice(ctx, c.ProductID, c.NewPrice); err != nil {
				return apperror.NewPersistence("apply price list to products", err)
			}
			result.Updated++
		}
		return nil
	})
	if err != nil {
		result.Updated = 0
		return nil, err
	}

	if d.cache != nil {
		d.cache.InvalidateAll()
	}

	logger.Info(ctx, "price list applied to products",
		"priceListId", list.ID,
		"updated", result.Updated,
		"skipped", result.Skipped)
	return result, nil
}
