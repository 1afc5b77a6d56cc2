// Package pricing implements price lists and price resolution: prioritized,
// time-bounded collections of product prices, the precedence rules that pick
// a winning price, and the mass operations (bulk update, generation,
// duplication) that maintain them.
package pricing

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"listino/internal/core/apperror"
	"listino/internal/core/entity"
	"listino/internal/core/id"
)

// Status is the lifecycle state of a price list or entry.
// Records are never hard-deleted; they transition between states instead.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
	StatusExpired  Status = "expired" // terminal
)

// ListType distinguishes sales lists from purchase lists.
type ListType string

const (
	TypeSales    ListType = "sales"
	TypePurchase ListType = "purchase"
)

// Direction of the price flow the list applies to.
type Direction string

const (
	DirectionOutput Direction = "output"
	DirectionInput  Direction = "input"
)

// PriceList is a named, prioritized, time-bounded collection of product prices.
type PriceList struct {
	entity.Audited

	Code string `db:"code" json:"code"`
	Name string `db:"name" json:"name"`

	// Validity window; nil on either side means open-ended.
	ValidFrom *time.Time `db:"valid_from" json:"validFrom,omitempty"`
	ValidTo   *time.Time `db:"valid_to" json:"validTo,omitempty"`

	// Priority orders lists during resolution, 0 is the highest.
	Priority int `db:"priority" json:"priority"`

	// IsDefault marks the intended fallback list for its scope. At most one
	// list should be the effective default at any instant; the precedence
	// validator flags violations, it does not correct them.
	IsDefault bool `db:"is_default" json:"isDefault"`

	Status    Status    `db:"status" json:"status"`
	Type      ListType  `db:"type" json:"type"`
	Direction Direction `db:"direction" json:"direction"`

	// Currency of every entry in the list. Resolution never converts
	// currencies; a mismatching caller currency excludes the list.
	Currency string `db:"currency" json:"currency"`

	// EventID optionally scopes the list to a single event.
	EventID *id.ID `db:"event_id" json:"eventId,omitempty"`

	// Generation is present only on generated lists (write-once record).
	Generation *GenerationMetadata `db:"-" json:"generation,omitempty"`
}

// NewPriceList creates an active sales price list with an open validity window.
func NewPriceList(code, name, currency string) *PriceList {
	return &PriceList{
		Audited:   entity.NewAudited(),
		Code:      code,
		Name:      name,
		Currency:  currency,
		Status:    StatusActive,
		Type:      TypeSales,
		Direction: DirectionOutput,
	}
}

// Validate implements entity.Validatable.
func (p *PriceList) Validate(ctx context.Context) error {
	if p.Name == "" {
		return apperror.NewValidation("name is required").
			WithDetail("field", "name")
	}
	if p.Currency == "" {
		return apperror.NewValidation("currency is required").
			WithDetail("field", "currency")
	}
	if p.Priority < 0 {
		return apperror.NewValidation("priority cannot be negative").
			WithDetail("field", "priority")
	}
	if !isValidStatus(p.Status) {
		return apperror.NewValidation("invalid status").
			WithDetail("field", "status").
			WithDetail("value", string(p.Status))
	}
	switch p.Type {
	case TypeSales, TypePurchase:
	default:
		return apperror.NewValidation("invalid list type").
			WithDetail("field", "type").
			WithDetail("value", string(p.Type))
	}
	switch p.Direction {
	case DirectionOutput, DirectionInput:
	default:
		return apperror.NewValidation("invalid direction").
			WithDetail("field", "direction").
			WithDetail("value", string(p.Direction))
	}
	if p.ValidFrom != nil && p.ValidTo != nil && p.ValidTo.Before(*p.ValidFrom) {
		return apperror.NewValidation("validTo must not precede validFrom").
			WithDetail("field", "validTo")
	}
	return nil
}

// WindowContains reports whether t falls inside the validity window.
func (p *PriceList) WindowContains(t time.Time) bool {
	if p.ValidFrom != nil && t.Before(*p.ValidFrom) {
		return false
	}
	if p.ValidTo != nil && t.After(*p.ValidTo) {
		return false
	}
	return true
}

// ValidAt reports whether the list is usable for resolution at t:
// active status and inside the validity window.
func (p *PriceList) ValidAt(t time.Time) bool {
	return p.Status == StatusActive && p.WindowContains(t)
}

// IsExpiredAt reports whether the list is past its window or marked expired.
func (p *PriceList) IsExpiredAt(t time.Time) bool {
	if p.Status == StatusExpired {
		return true
	}
	return p.ValidTo != nil && t.After(*p.ValidTo)
}

// CanTransition checks a lifecycle move. Expired is terminal; active and
// inactive flip freely; anything may expire.
func (p *PriceList) CanTransition(to Status) error {
	if !isValidStatus(to) {
		return apperror.NewValidation("invalid status").
			WithDetail("value", string(to))
	}
	if p.Status == StatusExpired && to != StatusExpired {
		return apperror.NewStatusTransition(string(p.Status), string(to))
	}
	return nil
}

func isValidStatus(s Status) bool {
	switch s {
	case StatusActive, StatusInactive, StatusExpired:
		return true
	}
	return false
}

// PriceListEntry is a single product's price within a list, optionally tiered
// by quantity.
type PriceListEntry struct {
	entity.BaseEntity

	PriceListID id.ID `db:"price_list_id" json:"priceListId"`
	ProductID   id.ID `db:"product_id" json:"productId"`

	Price    decimal.Decimal `db:"price" json:"price"`
	Currency string          `db:"currency" json:"currency"`

	// UnitOfMeasureID the price is expressed in; nil means the product's
	// base unit.
	UnitOfMeasureID *string `db:"unit_of_measure_id" json:"unitOfMeasureId,omitempty"`

	// Quantity tier. MinQuantity >= 1; MaxQuantity 0 means unbounded,
	// otherwise it must be >= MinQuantity. Tier overlap within a list is a
	// data-quality concern surfaced by validation, not rejected at write time.
	MinQuantity decimal.Decimal `db:"min_quantity" json:"minQuantity"`
	MaxQuantity decimal.Decimal `db:"max_quantity" json:"maxQuantity"`

	// Score 0..100 breaks ties between entries of the same list.
	Score int `db:"score" json:"score"`

	IsEditableInFrontend bool `db:"is_editable_in_frontend" json:"isEditableInFrontend"`
	IsDiscountable       bool `db:"is_discountable" json:"isDiscountable"`

	Status Status `db:"status" json:"status"`
}

// NewPriceListEntry creates an active entry with the default quantity tier.
func NewPriceListEntry(listID, productID id.ID, price decimal.Decimal, currency string) *PriceListEntry {
	return &PriceListEntry{
		BaseEntity:     entity.NewBaseEntity(),
		PriceListID:    listID,
		ProductID:      productID,
		Price:          price,
		Currency:       currency,
		MinQuantity:    decimal.NewFromInt(1),
		MaxQuantity:    decimal.Zero,
		IsDiscountable: true,
		Status:         StatusActive,
	}
}

// Validate implements entity.Validatable.
func (e *PriceListEntry) Validate(ctx context.Context) error {
	if id.IsNil(e.PriceListID) {
		return apperror.NewValidation("price list is required").
			WithDetail("field", "priceListId")
	}
	if id.IsNil(e.ProductID) {
		return apperror.NewValidation("product is required").
			WithDetail("field", "productId")
	}
	if e.Price.IsNegative() {
		return apperror.NewValidation("price cannot be negative").
			WithDetail("field", "price")
	}
	if e.MinQuantity.LessThan(decimal.NewFromInt(1)) {
		return apperror.NewValidation("minQuantity must be at least 1").
			WithDetail("field", "minQuantity")
	}
	if e.MaxQuantity.IsPositive() && e.MaxQuantity.LessThan(e.MinQuantity) {
		return apperror.NewValidation("maxQuantity must be 0 or >= minQuantity").
			WithDetail("field", "maxQuantity")
	}
	if e.Score < 0 || e.Score > 100 {
		return apperror.NewValidation("score must be between 0 and 100").
			WithDetail("field", "score")
	}
	return nil
}

// MatchesQuantity reports whether qty falls inside the entry's tier.
func (e *PriceListEntry) MatchesQuantity(qty decimal.Decimal) bool {
	if qty.LessThan(e.MinQuantity) {
		return false
	}
	if e.MaxQuantity.IsPositive() && qty.GreaterThan(e.MaxQuantity) {
		return false
	}
	return true
}

// PartyAssignment binds a price list to a business party, optionally
// overriding the list priority and granting a global discount.
type PartyAssignment struct {
	entity.BaseEntity

	PriceListID     id.ID `db:"price_list_id" json:"priceListId"`
	BusinessPartyID id.ID `db:"business_party_id" json:"businessPartyId"`

	IsPrimary bool `db:"is_primary" json:"isPrimary"`

	// OverridePriority replaces the list priority for this party only.
	OverridePriority *int `db:"override_priority" json:"overridePriority,omitempty"`

	// GlobalDiscountPercentage (-100..100) is applied after the list price
	// is chosen, and only to discountable entries. Negative values are a
	// surcharge.
	GlobalDiscountPercentage decimal.Decimal `db:"global_discount_percentage" json:"globalDiscountPercentage"`

	// Party-specific validity window, narrower than the list's own.
	ValidFrom *time.Time `db:"valid_from" json:"validFrom,omitempty"`
	ValidTo   *time.Time `db:"valid_to" json:"validTo,omitempty"`
}

// NewPartyAssignment creates an assignment with no override and no discount.
func NewPartyAssignment(listID, partyID id.ID) *PartyAssignment {
	return &PartyAssignment{
		BaseEntity:      entity.NewBaseEntity(),
		PriceListID:     listID,
		BusinessPartyID: partyID,
	}
}

// Validate implements entity.Validatable.
func (a *PartyAssignment) Validate(ctx context.Context) error {
	if id.IsNil(a.PriceListID) {
		return apperror.NewValidation("price list is required").
			WithDetail("field", "priceListId")
	}
	if id.IsNil(a.BusinessPartyID) {
		return apperror.NewValidation("business party is required").
			WithDetail("field", "businessPartyId")
	}
	hundred := decimal.NewFromInt(100)
	if a.GlobalDiscountPercentage.LessThan(hundred.Neg()) || a.GlobalDiscountPercentage.GreaterThan(hundred) {
		return apperror.NewValidation("globalDiscountPercentage must be between -100 and 100").
			WithDetail("field", "globalDiscountPercentage")
	}
	if a.OverridePriority != nil && *a.OverridePriority < 0 {
		return apperror.NewValidation("overridePriority cannot be negative").
			WithDetail("field", "overridePriority")
	}
	if a.ValidFrom != nil && a.ValidTo != nil && a.ValidTo.Before(*a.ValidFrom) {
		return apperror.NewValidation("validTo must not precede validFrom").
			WithDetail("field", "validTo")
	}
	return nil
}

// EffectivePriority returns the override when set, the list priority otherwise.
func (a *PartyAssignment) EffectivePriority(listPriority int) int {
	if a.OverridePriority != nil {
		return *a.OverridePriority
	}
	return listPriority
}

// ValidAt reports whether the assignment's own window contains t.
func (a *PartyAssignment) ValidAt(t time.Time) bool {
	if a.ValidFrom != nil && t.Before(*a.ValidFrom) {
		return false
	}
	if a.ValidTo != nil && t.After(*a.ValidTo) {
		return false
	}
	return true
}

// GenerationMetadata records how a generated price list was produced.
// Written once at generation time, never mutated afterward.
type GenerationMetadata struct {
	PriceListID id.ID `db:"price_list_id" json:"priceListId"`

	CalculationStrategy CalculationStrategy `db:"calculation_strategy" json:"calculationStrategy"`
	RoundingStrategy    RoundingStrategy    `db:"rounding_strategy" json:"roundingStrategy"`
	MarkupPercentage    decimal.Decimal     `db:"markup_percentage" json:"markupPercentage"`

	AnalysisFrom *time.Time `db:"analysis_from" json:"analysisFrom,omitempty"`
	AnalysisTo   *time.Time `db:"analysis_to" json:"analysisTo,omitempty"`

	DocumentsProcessed int `db:"documents_processed" json:"documentsProcessed"`
	ProductsProcessed  int `db:"products_processed" json:"productsProcessed"`

	GeneratedBy string    `db:"generated_by" json:"generatedBy"`
	GeneratedAt time.Time `db:"generated_at" json:"generatedAt"`
}
