package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"listino/internal/core/apperror"
	"listino/internal/core/id"
	"listino/internal/domain/pricing"
)

// --- Price list CRUD ---

// CreatePriceListRequest is the request body for creating a price list.
type CreatePriceListRequest struct {
	Code      string     `json:"code"`
	Name      string     `json:"name" binding:"required"`
	Currency  string     `json:"currency" binding:"required"`
	ValidFrom *time.Time `json:"validFrom"`
	ValidTo   *time.Time `json:"validTo"`
	Priority  int        `json:"priority"`
	IsDefault bool       `json:"isDefault"`
	Type      string     `json:"type"`
	Direction string     `json:"direction"`
	EventID   *string    `json:"eventId"`
}

// ToEntity converts DTO to domain entity.
func (r *CreatePriceListRequest) ToEntity() (*pricing.PriceList, error) {
	list := pricing.NewPriceList(r.Code, r.Name, r.Currency)
	list.ValidFrom = r.ValidFrom
	list.ValidTo = r.ValidTo
	list.Priority = r.Priority
	list.IsDefault = r.IsDefault
	if r.Type != "" {
		list.Type = pricing.ListType(r.Type)
	}
	if r.Direction != "" {
		list.Direction = pricing.Direction(r.Direction)
	}
	eventID, err := parseOptionalID(r.EventID, "eventId")
	if err != nil {
		return nil, err
	}
	list.EventID = eventID
	return list, nil
}

// UpdatePriceListRequest is the request body for updating a price list.
type UpdatePriceListRequest struct {
	Code      string     `json:"code"`
	Name      string     `json:"name" binding:"required"`
	Currency  string     `json:"currency" binding:"required"`
	ValidFrom *time.Time `json:"validFrom"`
	ValidTo   *time.Time `json:"validTo"`
	Priority  int        `json:"priority"`
	IsDefault bool       `json:"isDefault"`
	Type      string     `json:"type"`
	Direction string     `json:"direction"`
	EventID   *string    `json:"eventId"`
	Version   int        `json:"version" binding:"required,min=1"`
}

// ApplyTo applies update DTO to existing entity.
func (r *UpdatePriceListRequest) ApplyTo(list *pricing.PriceList) error {
	list.Code = r.Code
	list.Name = r.Name
	list.Currency = r.Currency
	list.ValidFrom = r.ValidFrom
	list.ValidTo = r.ValidTo
	list.Priority = r.Priority
	list.IsDefault = r.IsDefault
	if r.Type != "" {
		list.Type = pricing.ListType(r.Type)
	}
	if r.Direction != "" {
		list.Direction = pricing.Direction(r.Direction)
	}
	eventID, err := parseOptionalID(r.EventID, "eventId")
	if err != nil {
		return err
	}
	list.EventID = eventID
	list.Version = r.Version
	return nil
}

// ChangeStatusRequest is the request body for a status transition.
type ChangeStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// --- Entries ---

// EntryPayload is one entry in a create-entries request.
type EntryPayload struct {
	ProductID            string          `json:"productId" binding:"required"`
	Price                decimal.Decimal `json:"price"`
	Currency             string          `json:"currency"`
	UnitOfMeasureID      *string         `json:"unitOfMeasureId"`
	MinQuantity          decimal.Decimal `json:"minQuantity"`
	MaxQuantity          decimal.Decimal `json:"maxQuantity"`
	Score                int             `json:"score"`
	IsEditableInFrontend bool            `json:"isEditableInFrontend"`
	IsDiscountable       *bool           `json:"isDiscountable"`
}

// ToEntity converts the payload to a domain entry for the given list.
func (p *EntryPayload) ToEntity(listID id.ID, listCurrency string) (*pricing.PriceListEntry, error) {
	productID, err := id.Parse(p.ProductID)
	if err != nil {
		return nil, apperror.NewValidation("invalid product id").
			WithDetail("field", "productId").
			WithDetail("value", p.ProductID)
	}
	currency := p.Currency
	if currency == "" {
		currency = listCurrency
	}
	entry := pricing.NewPriceListEntry(listID, productID, p.Price, currency)
	entry.UnitOfMeasureID = p.UnitOfMeasureID
	if !p.MinQuantity.IsZero() {
		entry.MinQuantity = p.MinQuantity
	}
	entry.MaxQuantity = p.MaxQuantity
	entry.Score = p.Score
	entry.IsEditableInFrontend = p.IsEditableInFrontend
	if p.IsDiscountable != nil {
		entry.IsDiscountable = *p.IsDiscountable
	}
	return entry, nil
}

// CreateEntriesRequest is the request body for adding entries to a list.
type CreateEntriesRequest struct {
	Entries []EntryPayload `json:"entries" binding:"required,min=1"`
}

// UpdateEntryRequest is the request body for updating one entry.
type UpdateEntryRequest struct {
	Price                decimal.Decimal `json:"price"`
	Currency             string          `json:"currency" binding:"required"`
	UnitOfMeasureID      *string         `json:"unitOfMeasureId"`
	MinQuantity          decimal.Decimal `json:"minQuantity"`
	MaxQuantity          decimal.Decimal `json:"maxQuantity"`
	Score                int             `json:"score"`
	IsEditableInFrontend bool            `json:"isEditableInFrontend"`
	IsDiscountable       bool            `json:"isDiscountable"`
	Status               string          `json:"status"`
	Version              int             `json:"version" binding:"required,min=1"`
}

// ApplyTo applies update DTO to existing entry.
func (r *UpdateEntryRequest) ApplyTo(entry *pricing.PriceListEntry) {
	entry.Price = r.Price
	entry.Currency = r.Currency
	entry.UnitOfMeasureID = r.UnitOfMeasureID
	if !r.MinQuantity.IsZero() {
		entry.MinQuantity = r.MinQuantity
	}
	entry.MaxQuantity = r.MaxQuantity
	entry.Score = r.Score
	entry.IsEditableInFrontend = r.IsEditableInFrontend
	entry.IsDiscountable = r.IsDiscountable
	if r.Status != "" {
		entry.Status = pricing.Status(r.Status)
	}
	entry.Version = r.Version
}

// --- Party assignments ---

// AssignPartyRequest is the request body for assigning a list to a party.
type AssignPartyRequest struct {
	BusinessPartyID          string          `json:"businessPartyId" binding:"required"`
	IsPrimary                bool            `json:"isPrimary"`
	OverridePriority         *int            `json:"overridePriority"`
	GlobalDiscountPercentage decimal.Decimal `json:"globalDiscountPercentage"`
	ValidFrom                *time.Time      `json:"validFrom"`
	ValidTo                  *time.Time      `json:"validTo"`
}

// ToEntity converts DTO to domain assignment for the given list.
func (r *AssignPartyRequest) ToEntity(listID id.ID) (*pricing.PartyAssignment, error) {
	partyID, err := id.Parse(r.BusinessPartyID)
	if err != nil {
		return nil, apperror.NewValidation("invalid business party id").
			WithDetail("field", "businessPartyId").
			WithDetail("value", r.BusinessPartyID)
	}
	a := pricing.NewPartyAssignment(listID, partyID)
	a.IsPrimary = r.IsPrimary
	a.OverridePriority = r.OverridePriority
	a.GlobalDiscountPercentage = r.GlobalDiscountPercentage
	a.ValidFrom = r.ValidFrom
	a.ValidTo = r.ValidTo
	return a, nil
}

// --- Resolution ---

// ResolvePriceRequest is the request body for price resolution.
type ResolvePriceRequest struct {
	ProductID         string           `json:"productId" binding:"required"`
	BusinessPartyID   *string          `json:"businessPartyId"`
	Quantity          decimal.Decimal  `json:"quantity"`
	UnitOfMeasureID   *string          `json:"unitOfMeasureId"`
	Currency          string           `json:"currency"`
	ApplicationMode   string           `json:"applicationMode"`
	ForcedPriceListID *string          `json:"forcedPriceListId"`
	ManualPrice       *decimal.Decimal `json:"manualPrice"`
	ReferenceDate     *time.Time       `json:"referenceDate"`
	EventID           *string          `json:"eventId"`
	Direction         string           `json:"direction"`
}

// ToResolveRequest converts DTO to the domain request.
func (r *ResolvePriceRequest) ToResolveRequest() (pricing.ResolveRequest, error) {
	var req pricing.ResolveRequest

	productID, err := id.Parse(r.ProductID)
	if err != nil {
		return req, apperror.NewValidation("invalid product id").
			WithDetail("field", "productId").
			WithDetail("value", r.ProductID)
	}
	req.ProductID = productID

	partyID, err := parseOptionalID(r.BusinessPartyID, "businessPartyId")
	if err != nil {
		return req, err
	}
	req.BusinessPartyID = partyID

	forcedID, err := parseOptionalID(r.ForcedPriceListID, "forcedPriceListId")
	if err != nil {
		return req, err
	}
	req.ForcedListID = forcedID

	eventID, err := parseOptionalID(r.EventID, "eventId")
	if err != nil {
		return req, err
	}
	req.Scope.EventID = eventID
	if r.Direction != "" {
		req.Scope.Direction = pricing.Direction(r.Direction)
	}

	req.Quantity = r.Quantity
	req.UnitOfMeasureID = r.UnitOfMeasureID
	req.Currency = r.Currency
	if r.ApplicationMode != "" {
		req.Mode = pricing.ApplicationMode(r.ApplicationMode)
	}
	req.ManualPrice = r.ManualPrice
	req.ReferenceDate = r.ReferenceDate
	return req, nil
}

// --- Product filter (bulk update, generation) ---

// ProductFilterPayload narrows a product selection; conditions are ANDed.
type ProductFilterPayload struct {
	ProductIDs    []string         `json:"productIds"`
	Categories    []string         `json:"categories"`
	Brands        []string         `json:"brands"`
	MinPrice      *decimal.Decimal `json:"minPrice"`
	MaxPrice      *decimal.Decimal `json:"maxPrice"`
	OnlyWithPrice bool             `json:"onlyWithPrice"`
}

// ToFilter converts DTO to the domain filter.
func (p *ProductFilterPayload) ToFilter() (pricing.ProductFilter, error) {
	var f pricing.ProductFilter
	for _, raw := range p.ProductIDs {
		parsed, err := id.Parse(raw)
		if err != nil {
			return f, apperror.NewValidation("invalid product id in filter").
				WithDetail("field", "productIds").
				WithDetail("value", raw)
		}
		f.ProductIDs = append(f.ProductIDs, parsed)
	}
	f.Categories = p.Categories
	f.Brands = p.Brands
	f.MinPrice = p.MinPrice
	f.MaxPrice = p.MaxPrice
	f.OnlyWithPrice = p.OnlyWithPrice
	return f, nil
}

// --- Bulk update ---

// BulkUpdateRequest is the request body for bulk price updates.
type BulkUpdateRequest struct {
	Filter    ProductFilterPayload `json:"filter"`
	Operation string               `json:"operation" binding:"required"`
	Value     decimal.Decimal      `json:"value"`
	Rounding  string               `json:"rounding"`
	Reason    string               `json:"reason"`
}

// ToRequest converts DTO to the domain request.
func (r *BulkUpdateRequest) ToRequest(requestedBy id.ID) (pricing.BulkUpdateRequest, error) {
	var req pricing.BulkUpdateRequest
	filter, err := r.Filter.ToFilter()
	if err != nil {
		return req, err
	}
	req.Filter = filter
	req.Operation = pricing.BulkOperation(r.Operation)
	req.Value = r.Value
	req.Rounding = pricing.RoundingStrategy(r.Rounding)
	req.RequestedBy = requestedBy
	req.Reason = r.Reason
	return req, nil
}

// --- Generation ---

// GenerateRequest is the request body for price list generation.
type GenerateRequest struct {
	Source string `json:"source" binding:"required"`

	// TargetListID regenerates an existing list in place, replacing its
	// entries. When set, List is ignored.
	TargetListID *string                `json:"targetListId"`
	List         CreatePriceListRequest `json:"list"`

	Filter ProductFilterPayload `json:"filter"`

	SupplierID *string    `json:"supplierId"`
	From       *time.Time `json:"from"`
	To         *time.Time `json:"to"`
	Strategy   string     `json:"strategy"`

	MarkupPercentage decimal.Decimal `json:"markupPercentage"`
	Rounding         string          `json:"rounding"`
}

// ToRequest converts DTO to the domain request.
func (r *GenerateRequest) ToRequest(generatedBy string) (pricing.GenerateRequest, error) {
	var req pricing.GenerateRequest
	req.Source = pricing.GenerationSource(r.Source)

	if r.TargetListID != nil && *r.TargetListID != "" {
		targetID, err := parseOptionalID(r.TargetListID, "targetListId")
		if err != nil {
			return req, err
		}
		req.List.ID = *targetID
	} else {
		list, err := r.List.ToEntity()
		if err != nil {
			return req, err
		}
		req.List = *list
	}

	filter, err := r.Filter.ToFilter()
	if err != nil {
		return req, err
	}
	req.Filter = filter

	supplierID, err := parseOptionalID(r.SupplierID, "supplierId")
	if err != nil {
		return req, err
	}
	req.SupplierID = supplierID
	if r.From != nil {
		req.From = *r.From
	}
	if r.To != nil {
		req.To = *r.To
	}
	req.Strategy = pricing.CalculationStrategy(r.Strategy)
	req.MarkupPercentage = r.MarkupPercentage
	req.Rounding = pricing.RoundingStrategy(r.Rounding)
	req.GeneratedBy = generatedBy
	return req, nil
}

// --- Duplication / apply ---

// DuplicateRequest is the request body for duplicating a price list.
type DuplicateRequest struct {
	NewCode   string     `json:"newCode"`
	NewName   string     `json:"newName" binding:"required"`
	ValidFrom *time.Time `json:"validFrom"`
	ValidTo   *time.Time `json:"validTo"`
	Priority  *int       `json:"priority"`
	EventID   *string    `json:"eventId"`
	Type      string     `json:"type"`
	Direction string     `json:"direction"`

	ProductIDs []string `json:"productIds"`
	Categories []string `json:"categories"`
	ActiveOnly bool     `json:"activeOnly"`

	MarkupPercentage decimal.Decimal `json:"markupPercentage"`
	Rounding         string          `json:"rounding"`

	CopyAssignments bool `json:"copyAssignments"`
}

// ToRequest converts DTO to the domain request for the given source list.
func (r *DuplicateRequest) ToRequest(sourceListID id.ID) (pricing.DuplicateRequest, error) {
	req := pricing.DuplicateRequest{
		SourceListID:     sourceListID,
		NewCode:          r.NewCode,
		NewName:          r.NewName,
		ValidFrom:        r.ValidFrom,
		ValidTo:          r.ValidTo,
		Priority:         r.Priority,
		Categories:       r.Categories,
		ActiveOnly:       r.ActiveOnly,
		MarkupPercentage: r.MarkupPercentage,
		Rounding:         pricing.RoundingStrategy(r.Rounding),
		CopyAssignments:  r.CopyAssignments,
	}
	if r.Type != "" {
		req.Type = pricing.ListType(r.Type)
	}
	if r.Direction != "" {
		req.Direction = pricing.Direction(r.Direction)
	}
	eventID, err := parseOptionalID(r.EventID, "eventId")
	if err != nil {
		return req, err
	}
	req.EventID = eventID
	for _, raw := range r.ProductIDs {
		parsed, err := id.Parse(raw)
		if err != nil {
			return req, apperror.NewValidation("invalid product id").
				WithDetail("field", "productIds").
				WithDetail("value", raw)
		}
		req.ProductIDs = append(req.ProductIDs, parsed)
	}
	return req, nil
}

// ApplyToProductsRequest is the request body for pushing list prices onto
// product default prices.
type ApplyToProductsRequest struct {
	Mode               string `json:"mode" binding:"required"`
	OnlyUpdateIfHigher bool   `json:"onlyUpdateIfHigher"`
	OnlyUpdateIfLower  bool   `json:"onlyUpdateIfLower"`
	BackupPriorPrices  bool   `json:"backupPriorPrices"`
}

// ToRequest converts DTO to the domain request for the given list.
func (r *ApplyToProductsRequest) ToRequest(listID, appliedBy id.ID) pricing.ApplyToProductsRequest {
	return pricing.ApplyToProductsRequest{
		PriceListID:        listID,
		Mode:               pricing.ApplyMode(r.Mode),
		OnlyUpdateIfHigher: r.OnlyUpdateIfHigher,
		OnlyUpdateIfLower:  r.OnlyUpdateIfLower,
		BackupPriorPrices:  r.BackupPriorPrices,
		AppliedBy:          appliedBy,
	}
}

// --- Listing ---

// PriceListFilterRequest carries query parameters for listing price lists.
type PriceListFilterRequest struct {
	Statuses       []string `form:"status"`
	Type           string   `form:"type"`
	IncludeExpired bool     `form:"includeExpired"`
	Search         string   `form:"search"`
	EventID        *string  `form:"eventId"`
	Direction      string   `form:"direction"`
	Limit          int      `form:"limit"`
	Offset         int      `form:"offset"`
}

// ToQuery converts query parameters to the domain list query.
func (r *PriceListFilterRequest) ToQuery() (pricing.ListQuery, error) {
	var q pricing.ListQuery
	for _, s := range r.Statuses {
		q.Statuses = append(q.Statuses, pricing.Status(s))
	}
	if r.Type != "" {
		q.Type = pricing.ListType(r.Type)
	}
	q.IncludeExpired = r.IncludeExpired
	q.Search = r.Search
	eventID, err := parseOptionalID(r.EventID, "eventId")
	if err != nil {
		return q, err
	}
	q.Scope.EventID = eventID
	if r.Direction != "" {
		q.Scope.Direction = pricing.Direction(r.Direction)
	}
	q.Limit = r.Limit
	q.Offset = r.Offset
	return q, nil
}

// parseOptionalID parses an optional string ID, mapping failures to a
// validation error naming the field.
func parseOptionalID(raw *string, field string) (*id.ID, error) {
	if raw == nil || *raw == "" {
		return nil, nil
	}
	parsed, err := id.Parse(*raw)
	if err != nil {
		return nil, apperror.NewValidation("invalid id").
			WithDetail("field", field).
			WithDetail("value", *raw)
	}
	return &parsed, nil
}
