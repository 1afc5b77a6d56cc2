package pricing

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"listino/internal/core/apperror"
	"listino/internal/core/id"
	"listino/pkg/logger"
)

// ApplicationMode overrides the normal precedence search.
type ApplicationMode string

const (
	ModeAutomatic       ApplicationMode = "automatic"
	ModeManual          ApplicationMode = "manual"
	ModeForcedPriceList ApplicationMode = "forced_price_list"
)

// PriceSource tells the caller where the resolved price came from.
type PriceSource string

const (
	SourceManual       PriceSource = "manual"
	SourceForcedList   PriceSource = "forced_list"
	SourcePartyList    PriceSource = "party_list"
	SourceGeneralList  PriceSource = "general_list"
	SourceDefaultPrice PriceSource = "default_price"
)

// ResolveRequest carries everything the resolver needs. Tenant/party scope is
// explicit on the request, never ambient state.
type ResolveRequest struct {
	ProductID       id.ID            `json:"productId"`
	BusinessPartyID *id.ID           `json:"businessPartyId,omitempty"`
	Quantity        decimal.Decimal  `json:"quantity"`
	UnitOfMeasureID *string          `json:"unitOfMeasureId,omitempty"`
	Currency        string           `json:"currency,omitempty"`
	Scope           Scope            `json:"-"`
	Mode            ApplicationMode  `json:"applicationMode,omitempty"`
	ForcedListID    *id.ID           `json:"forcedPriceListId,omitempty"`
	ManualPrice     *decimal.Decimal `json:"manualPrice,omitempty"`
	ReferenceDate   *time.Time       `json:"referenceDate,omitempty"`
}

// SearchStep documents one price list considered during resolution and why
// it was rejected or selected.
type SearchStep struct {
	PriceListID   id.ID  `json:"priceListId"`
	PriceListName string `json:"priceListName"`
	Stage         string `json:"stage"` // forced, party, general
	Outcome       string `json:"outcome"`
}

// ResolutionResult is the ephemeral outcome of one resolution call.
type ResolutionResult struct {
	Price    decimal.Decimal `json:"price"`
	Currency string          `json:"currency"`

	Source          PriceSource `json:"source"`
	IsPriceFromList bool        `json:"isPriceFromList"`

	AppliedPriceListID   *id.ID `json:"appliedPriceListId,omitempty"`
	AppliedPriceListName string `json:"appliedPriceListName,omitempty"`
	EntryID              *id.ID `json:"entryId,omitempty"`

	// OriginalPrice is the price before discount and unit conversion.
	OriginalPrice           decimal.Decimal `json:"originalPrice"`
	OriginalUnitOfMeasureID *string         `json:"originalUnitOfMeasureId,omitempty"`

	DiscountPercentage decimal.Decimal `json:"discountPercentage"`
	VATRateID          *string         `json:"vatRateId,omitempty"`

	SearchPath []SearchStep `json:"searchPath"`
}

// Resolver walks price lists in precedence order and returns the winning
// price with full provenance. Pure read: it never mutates anything.
type Resolver struct {
	repo    Repository
	catalog CatalogFacts
	cache   *ResolutionCache // optional
}

// NewResolver creates a resolver. cache may be nil to disable caching.
func NewResolver(repo Repository, catalog CatalogFacts, cache *ResolutionCache) *Resolver {
	return &Resolver{repo: repo, catalog: catalog, cache: cache}
}

// Resolve determines the applicable price for a product, optional party,
// quantity and date. Precedence: manual price, forced list, party-assigned
// lists, general lists, product default price — first match wins.
func (r *Resolver) Resolve(ctx context.Context, req ResolveRequest) (*ResolutionResult, error) {
	if id.IsNil(req.ProductID) {
		return nil, apperror.NewValidation("product is required").
			WithDetail("field", "productId")
	}
	if req.Quantity.IsZero() {
		req.Quantity = decimal.NewFromInt(1)
	}
	if req.Quantity.IsNegative() {
		return nil, apperror.NewValidation("quantity must be positive").
			WithDetail("field", "quantity")
	}
	if req.Mode == "" {
		req.Mode = ModeAutomatic
	}
	at := time.Now().UTC()
	if req.ReferenceDate != nil {
		at = *req.ReferenceDate
	}

	switch req.Mode {
	case ModeManual:
		if req.ManualPrice == nil {
			return nil, apperror.NewValidation("manual price is required in manual mode").
				WithDetail("field", "manualPrice")
		}
		return &ResolutionResult{
			Price:           *req.ManualPrice,
			Currency:        req.Currency,
			OriginalPrice:   *req.ManualPrice,
			Source:          SourceManual,
			IsPriceFromList: false,
		}, nil

	case ModeForcedPriceList:
		return r.resolveForced(ctx, req, at)

	case ModeAutomatic:
		return r.resolveAutomatic(ctx, req, at)

	default:
		return nil, apperror.NewValidation("unknown application mode").
			WithDetail("field", "applicationMode").
			WithDetail("value", string(req.Mode))
	}
}

func (r *Resolver) resolveForced(ctx context.Context, req ResolveRequest, at time.Time) (*ResolutionResult, error) {
	if req.ForcedListID == nil {
		return nil, apperror.NewValidation("forced price list is required in forced mode").
			WithDetail("field", "forcedPriceListId")
	}

	list, err := r.repo.GetList(ctx, *req.ForcedListID)
	if err != nil {
		if apperror.IsNotFound(err) {
			return nil, apperror.NewPriceListNotFound(req.ForcedListID.String())
		}
		return nil, err
	}
	if !list.ValidAt(at) {
		return nil, apperror.NewPriceListNotFound(list.ID.String()).
			WithDetail("status", string(list.Status))
	}

	path := []SearchStep{}
	entry, step, err := r.matchEntry(ctx, list, nil, req, "forced")
	path = append(path, step)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, apperror.NewEntryNotFound(list.ID.String(), req.ProductID.String())
	}

	res, err := r.buildListResult(ctx, list, entry, nil, req, SourceForcedList)
	if err != nil {
		return nil, err
	}
	res.SearchPath = path
	return res, nil
}

func (r *Resolver) resolveAutomatic(ctx context.Context, req ResolveRequest, at time.Time) (*ResolutionResult, error) {
	if r.cache != nil {
		if cached, ok := r.cache.Get(req, at); ok {
			return cached, nil
		}
	}

	path := []SearchStep{}

	// Party-assigned lists first.
	if req.BusinessPartyID != nil {
		partyLists, err := r.repo.ListsForParty(ctx, *req.BusinessPartyID, at)
		if err != nil {
			return nil, err
		}
		sortPartyLists(partyLists)

		// Lists are walked one priority group at a time: every list sharing
		// the effective priority is matched, the highest entry score wins and
		// a score tie goes to the older list.
		for start := 0; start < len(partyLists); {
			prio := partyLists[start].Assignment.EffectivePriority(partyLists[start].List.Priority)
			end := start + 1
			for end < len(partyLists) && partyLists[end].Assignment.EffectivePriority(partyLists[end].List.Priority) == prio {
				end++
			}

			var bestPL *PartyList
			var bestEntry *PriceListEntry
			for i := start; i < end; i++ {
				pl := &partyLists[i]
				if !pl.List.ValidAt(at) || !pl.Assignment.ValidAt(at) {
					path = append(path, SearchStep{pl.List.ID, pl.List.Name, "party", "not valid at reference date"})
					continue
				}
				entry, step, err := r.matchEntry(ctx, &pl.List, &pl.Assignment, req, "party")
				path = append(path, step)
				if err != nil {
					return nil, err
				}
				if entry == nil {
					continue
				}
				if bestEntry == nil || entry.Score > bestEntry.Score {
					bestPL, bestEntry = pl, entry
				}
			}
			if bestEntry != nil {
				res, err := r.buildListResult(ctx, &bestPL.List, bestEntry, &bestPL.Assignment, req, SourcePartyList)
				if err != nil {
					return nil, err
				}
				res.SearchPath = path
				r.cachePut(req, at, res)
				return res, nil
			}
			start = end
		}
	}

	// General (non-party-scoped) lists next.
	general, err := r.repo.GeneralLists(ctx, req.Scope, at)
	if err != nil {
		return nil, err
	}
	sortGeneralLists(general)

	for start := 0; start < len(general); {
		prio := general[start].Priority
		end := start + 1
		for end < len(general) && general[end].Priority == prio {
			end++
		}

		var bestList *PriceList
		var bestEntry *PriceListEntry
		for i := start; i < end; i++ {
			list := &general[i]
			if !list.ValidAt(at) {
				path = append(path, SearchStep{list.ID, list.Name, "general", "not valid at reference date"})
				continue
			}
			entry, step, err := r.matchEntry(ctx, list, nil, req, "general")
			path = append(path, step)
			if err != nil {
				return nil, err
			}
			if entry == nil {
				continue
			}
			if bestEntry == nil || entry.Score > bestEntry.Score {
				bestList, bestEntry = list, entry
			}
		}
		if bestEntry != nil {
			res, err := r.buildListResult(ctx, bestList, bestEntry, nil, req, SourceGeneralList)
			if err != nil {
				return nil, err
			}
			res.SearchPath = path
			r.cachePut(req, at, res)
			return res, nil
		}
		start = end
	}

	// Final fallback: product default price.
	product, err := r.catalog.Product(ctx, req.ProductID)
	if err != nil {
		return nil, err
	}
	logger.Debug(ctx, "price resolution fell back to default price",
		"product_id", req.ProductID.String(),
		"lists_considered", len(path),
	)
	res := &ResolutionResult{
		Price:           product.DefaultPrice,
		Currency:        product.Currency,
		OriginalPrice:   product.DefaultPrice,
		Source:          SourceDefaultPrice,
		IsPriceFromList: false,
		VATRateID:       product.VATRateID,
		SearchPath:      path,
	}
	r.cachePut(req, at, res)
	return res, nil
}

// matchEntry finds the best entry of one list for the request, or nil with a
// rejection step. Currency mismatches exclude the list silently.
func (r *Resolver) matchEntry(ctx context.Context, list *PriceList, assignment *PartyAssignment, req ResolveRequest, stage string) (*PriceListEntry, SearchStep, error) {
	step := SearchStep{PriceListID: list.ID, PriceListName: list.Name, Stage: stage}

	if req.Currency != "" && list.Currency != "" && list.Currency != req.Currency {
		step.Outcome = "currency mismatch: " + list.Currency
		return nil, step, nil
	}

	entries, err := r.repo.EntriesForProduct(ctx, list.ID, req.ProductID)
	if err != nil {
		return nil, step, err
	}

	var best *PriceListEntry
	for i := range entries {
		e := &entries[i]
		if e.Status != StatusActive {
			continue
		}
		if !e.MatchesQuantity(req.Quantity) {
			continue
		}
		if best == nil || e.Score > best.Score {
			best = e
		}
	}
	if best == nil {
		if len(entries) == 0 {
			step.Outcome = "no entry for product"
		} else {
			step.Outcome = "no entry matching quantity tier"
		}
		return nil, step, nil
	}

	step.Outcome = "selected"
	return best, step, nil
}

// buildListResult applies party discount and unit conversion on top of the
// selected entry price.
func (r *Resolver) buildListResult(ctx context.Context, list *PriceList, entry *PriceListEntry, assignment *PartyAssignment, req ResolveRequest, source PriceSource) (*ResolutionResult, error) {
	listID := list.ID
	entryID := entry.ID

	res := &ResolutionResult{
		Price:                entry.Price,
		Currency:             entry.Currency,
		OriginalPrice:        entry.Price,
		Source:               source,
		IsPriceFromList:      true,
		AppliedPriceListID:   &listID,
		AppliedPriceListName: list.Name,
		EntryID:              &entryID,
	}
	if res.Currency == "" {
		res.Currency = list.Currency
	}

	// The VAT rate always comes from the product, whichever list priced it.
	product, err := r.catalog.Product(ctx, req.ProductID)
	if err != nil {
		return nil, err
	}
	res.VATRateID = product.VATRateID

	// Unit conversion before discount; the original price stays visible.
	if req.UnitOfMeasureID != nil && entry.UnitOfMeasureID != nil && *req.UnitOfMeasureID != *entry.UnitOfMeasureID {
		factor, err := r.catalog.UnitConversion(ctx, req.ProductID, *entry.UnitOfMeasureID, *req.UnitOfMeasureID)
		if err != nil {
			return nil, err
		}
		res.OriginalUnitOfMeasureID = entry.UnitOfMeasureID
		res.Price = res.Price.Mul(factor)
	}

	if assignment != nil && entry.IsDiscountable && !assignment.GlobalDiscountPercentage.IsZero() {
		res.DiscountPercentage = assignment.GlobalDiscountPercentage
		res.Price = applyDiscount(res.Price, assignment.GlobalDiscountPercentage)
	}

	return res, nil
}

func (r *Resolver) cachePut(req ResolveRequest, at time.Time, res *ResolutionResult) {
	if r.cache != nil {
		r.cache.Put(req, at, res)
	}
}

// sortPartyLists orders by effective priority (assignment override wins),
// then list creation time, oldest first. Score is not part of the ordering;
// within a priority group the walk compares the matched entries directly.
func sortPartyLists(lists []PartyList) {
	sort.SliceStable(lists, func(i, j int) bool {
		pi := lists[i].Assignment.EffectivePriority(lists[i].List.Priority)
		pj := lists[j].Assignment.EffectivePriority(lists[j].List.Priority)
		if pi != pj {
			return pi < pj
		}
		return lists[i].List.CreatedAt.Before(lists[j].List.CreatedAt)
	})
}

func sortGeneralLists(lists []PriceList) {
	sort.SliceStable(lists, func(i, j int) bool {
		if lists[i].Priority != lists[j].Priority {
			return lists[i].Priority < lists[j].Priority
		}
		return lists[i].CreatedAt.Before(lists[j].CreatedAt)
	})
}
