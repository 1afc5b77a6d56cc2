package handlers

import (
	"github.com/gin-gonic/gin"

	"listino/internal/core/apperror"
	"listino/internal/core/id"
	"listino/internal/domain/pricing"
	"listino/internal/infrastructure/http/v1/dto"
	"listino/internal/infrastructure/storage/postgres"
)

// PricingHandler exposes price lists, resolution and the mass operations.
type PricingHandler struct {
	base *BaseHandler

	service    *pricing.Service
	resolver   *pricing.Resolver
	validator  *pricing.Validator
	engine     *pricing.Engine
	generator  *pricing.Generator
	duplicator *pricing.Duplicator
	backup     *postgres.PriceBackupService
}

// NewPricingHandler creates the pricing handler.
func NewPricingHandler(
	base *BaseHandler,
	service *pricing.Service,
	resolver *pricing.Resolver,
	validator *pricing.Validator,
	engine *pricing.Engine,
	generator *pricing.Generator,
	duplicator *pricing.Duplicator,
	backup *postgres.PriceBackupService,
) *PricingHandler {
	return &PricingHandler{
		base:       base,
		service:    service,
		resolver:   resolver,
		validator:  validator,
		engine:     engine,
		generator:  generator,
		duplicator: duplicator,
		backup:     backup,
	}
}

// listID parses the :id path parameter.
func (h *PricingHandler) listID(c *gin.Context) (id.ID, bool) {
	parsed, err := id.Parse(c.Param("id"))
	if err != nil {
		h.base.Error(c, apperror.NewValidation("invalid price list id").
			WithDetail("value", c.Param("id")))
		return id.Nil(), false
	}
	return parsed, true
}

// userID returns the authenticated caller as an ID, zero when the subject is
// not a UUID (service tokens).
func (h *PricingHandler) userID(c *gin.Context) id.ID {
	parsed, err := id.Parse(h.base.GetUserID(c))
	if err != nil {
		return id.Nil()
	}
	return parsed
}

// --- Price list CRUD ---

// Create handles POST /price-lists.
func (h *PricingHandler) Create(c *gin.Context) {
	var req dto.CreatePriceListRequest
	if !h.base.BindJSON(c, &req) {
		return
	}
	list, err := req.ToEntity()
	if err != nil {
		h.base.Error(c, err)
		return
	}
	if err := h.service.CreateList(c.Request.Context(), list); err != nil {
		h.base.Error(c, err)
		return
	}
	h.base.Created(c, list.ID.String())
}

// List handles GET /price-lists.
func (h *PricingHandler) List(c *gin.Context) {
	var req dto.PriceListFilterRequest
	if !h.base.BindQuery(c, &req) {
		return
	}
	query, err := req.ToQuery()
	if err != nil {
		h.base.Error(c, err)
		return
	}
	lists, err := h.service.ListLists(c.Request.Context(), query)
	if err != nil {
		h.base.Error(c, err)
		return
	}
	h.base.OK(c, dto.ListResponse{
		Items:      lists,
		TotalCount: len(lists),
		Limit:      query.Limit,
		Offset:     query.Offset,
	})
}

// Get handles GET /price-lists/:id.
func (h *PricingHandler) Get(c *gin.Context) {
	listID, ok := h.listID(c)
	if !ok {
		return
	}
	list, err := h.service.GetList(c.Request.Context(), listID)
	if err != nil {
		h.base.Error(c, err)
		return
	}
	h.base.OK(c, list)
}

// Update handles PUT /price-lists/:id.
func (h *PricingHandler) Update(c *gin.Context) {
	listID, ok := h.listID(c)
	if !ok {
		return
	}
	var req dto.UpdatePriceListRequest
	if !h.base.BindJSON(c, &req) {
		return
	}
	list, err := h.service.GetList(c.Request.Context(), listID)
	if err != nil {
		h.base.Error(c, err)
		return
	}
	if err := req.ApplyTo(list); err != nil {
		h.base.Error(c, err)
		return
	}
	if err := h.service.UpdateList(c.Request.Context(), list); err != nil {
		h.base.Error(c, err)
		return
	}
	h.base.OK(c, list)
}

// ChangeStatus handles POST /price-lists/:id/status.
func (h *PricingHandler) ChangeStatus(c *gin.Context) {
	listID, ok := h.listID(c)
	if !ok {
		return
	}
	var req dto.ChangeStatusRequest
	if !h.base.BindJSON(c, &req) {
		return
	}
	list, err := h.service.ChangeStatus(c.Request.Context(), listID, pricing.Status(req.Status))
	if err != nil {
		h.base.Error(c, err)
		return
	}
	h.base.OK(c, list)
}

// --- Entries ---

// AddEntries handles POST /price-lists/:id/entries.
func (h *PricingHandler) AddEntries(c *gin.Context) {
	listID, ok := h.listID(c)
	if !ok {
		return
	}
	var req dto.CreateEntriesRequest
	if !h.base.BindJSON(c, &req) {
		return
	}
	list, err := h.service.GetList(c.Request.Context(), listID)
	if err != nil {
		h.base.Error(c, err)
		return
	}
	entries := make([]pricing.PriceListEntry, 0, len(req.Entries))
	for _, payload := range req.Entries {
		entry, err := payload.ToEntity(listID, list.Currency)
		if err != nil {
			h.base.Error(c, err)
			return
		}
		entries = append(entries, *entry)
	}
	if err := h.service.AddEntries(c.Request.Context(), listID, entries); err != nil {
		h.base.Error(c, err)
		return
	}
	h.base.OK(c, dto.SuccessResponse{Success: true})
}

// Entries handles GET /price-lists/:id/entries.
func (h *PricingHandler) Entries(c *gin.Context) {
	listID, ok := h.listID(c)
	if !ok {
		return
	}
	entries, err := h.service.EntriesForList(c.Request.Context(), listID)
	if err != nil {
		h.base.Error(c, err)
		return
	}
	h.base.OK(c, dto.ListResponse{Items: entries, TotalCount: len(entries)})
}

// UpdateEntry handles PUT /price-lists/:id/entries/:entryId.
func (h *PricingHandler) UpdateEntry(c *gin.Context) {
	listID, ok := h.listID(c)
	if !ok {
		return
	}
	entryID, err := id.Parse(c.Param("entryId"))
	if err != nil {
		h.base.Error(c, apperror.NewValidation("invalid entry id").
			WithDetail("value", c.Param("entryId")))
		return
	}
	var req dto.UpdateEntryRequest
	if !h.base.BindJSON(c, &req) {
		return
	}
	entries, err := h.service.EntriesForList(c.Request.Context(), listID)
	if err != nil {
		h.base.Error(c, err)
		return
	}
	var entry *pricing.PriceListEntry
	for i := range entries {
		if entries[i].ID == entryID {
			entry = &entries[i]
			break
		}
	}
	if entry == nil {
		h.base.Error(c, apperror.NewNotFound("price list entry", entryID.String()))
		return
	}
	req.ApplyTo(entry)
	if err := h.service.UpdateEntry(c.Request.Context(), entry); err != nil {
		h.base.Error(c, err)
		return
	}
	h.base.OK(c, entry)
}

// --- Party assignments ---

// AssignParty handles POST /price-lists/:id/assignments.
func (h *PricingHandler) AssignParty(c *gin.Context) {
	listID, ok := h.listID(c)
	if !ok {
		return
	}
	var req dto.AssignPartyRequest
	if !h.base.BindJSON(c, &req) {
		return
	}
	assignment, err := req.ToEntity(listID)
	if err != nil {
		h.base.Error(c, err)
		return
	}
	if err := h.service.AssignParty(c.Request.Context(), assignment); err != nil {
		h.base.Error(c, err)
		return
	}
	h.base.Created(c, assignment.ID.String())
}

// Assignments handles GET /price-lists/:id/assignments.
func (h *PricingHandler) Assignments(c *gin.Context) {
	listID, ok := h.listID(c)
	if !ok {
		return
	}
	assignments, err := h.service.AssignmentsForList(c.Request.Context(), listID)
	if err != nil {
		h.base.Error(c, err)
		return
	}
	h.base.OK(c, dto.ListResponse{Items: assignments, TotalCount: len(assignments)})
}

// RemoveAssignment handles DELETE /price-lists/:id/assignments/:assignmentId.
func (h *PricingHandler) RemoveAssignment(c *gin.Context) {
	assignmentID, err := id.Parse(c.Param("assignmentId"))
	if err != nil {
		h.base.Error(c, apperror.NewValidation("invalid assignment id").
			WithDetail("value", c.Param("assignmentId")))
		return
	}
	if err := h.service.RemoveAssignment(c.Request.Context(), assignmentID); err != nil {
		h.base.Error(c, err)
		return
	}
	h.base.NoContent(c)
}

// --- Resolution ---

// Resolve handles POST /prices/resolve.
func (h *PricingHandler) Resolve(c *gin.Context) {
	var req dto.ResolvePriceRequest
	if !h.base.BindJSON(c, &req) {
		return
	}
	domainReq, err := req.ToResolveRequest()
	if err != nil {
		h.base.Error(c, err)
		return
	}
	result, err := h.resolver.Resolve(c.Request.Context(), domainReq)
	if err != nil {
		h.base.Error(c, err)
		return
	}
	h.base.OK(c, result)
}

// ValidatePrecedence handles GET /prices/validate.
func (h *PricingHandler) ValidatePrecedence(c *gin.Context) {
	var scope pricing.Scope
	if raw := c.Query("eventId"); raw != "" {
		eventID, err := id.Parse(raw)
		if err != nil {
			h.base.Error(c, apperror.NewValidation("invalid event id").
				WithDetail("value", raw))
			return
		}
		scope.EventID = &eventID
	}
	if raw := c.Query("direction"); raw != "" {
		scope.Direction = pricing.Direction(raw)
	}
	report, err := h.validator.ValidatePrecedence(c.Request.Context(), scope)
	if err != nil {
		h.base.Error(c, err)
		return
	}
	h.base.OK(c, report)
}

// --- Bulk update ---

// BulkPreview handles POST /prices/bulk-update/preview.
func (h *PricingHandler) BulkPreview(c *gin.Context) {
	var req dto.BulkUpdateRequest
	if !h.base.BindJSON(c, &req) {
		return
	}
	domainReq, err := req.ToRequest(h.userID(c))
	if err != nil {
		h.base.Error(c, err)
		return
	}
	preview, err := h.engine.Preview(c.Request.Context(), domainReq)
	if err != nil {
		h.base.Error(c, err)
		return
	}
	h.base.OK(c, preview)
}

// BulkApply handles POST /prices/bulk-update.
func (h *PricingHandler) BulkApply(c *gin.Context) {
	var req dto.BulkUpdateRequest
	if !h.base.BindJSON(c, &req) {
		return
	}
	domainReq, err := req.ToRequest(h.userID(c))
	if err != nil {
		h.base.Error(c, err)
		return
	}
	result, err := h.engine.Apply(c.Request.Context(), domainReq)
	if err != nil {
		h.base.Error(c, err)
		return
	}
	h.base.OK(c, result)
}

// --- Generation ---

// GeneratePreview handles POST /price-lists/generate/preview.
func (h *PricingHandler) GeneratePreview(c *gin.Context) {
	var req dto.GenerateRequest
	if !h.base.BindJSON(c, &req) {
		return
	}
	domainReq, err := req.ToRequest(h.base.GetUserID(c))
	if err != nil {
		h.base.Error(c, err)
		return
	}
	preview, err := h.generator.Preview(c.Request.Context(), domainReq)
	if err != nil {
		h.base.Error(c, err)
		return
	}
	h.base.OK(c, preview)
}

// Generate handles POST /price-lists/generate.
func (h *PricingHandler) Generate(c *gin.Context) {
	var req dto.GenerateRequest
	if !h.base.BindJSON(c, &req) {
		return
	}
	domainReq, err := req.ToRequest(h.base.GetUserID(c))
	if err != nil {
		h.base.Error(c, err)
		return
	}
	result, err := h.generator.Generate(c.Request.Context(), domainReq)
	if err != nil {
		h.base.Error(c, err)
		return
	}
	h.base.OK(c, result)
}

// --- Duplication / apply ---

// Duplicate handles POST /price-lists/:id/duplicate.
func (h *PricingHandler) Duplicate(c *gin.Context) {
	listID, ok := h.listID(c)
	if !ok {
		return
	}
	var req dto.DuplicateRequest
	if !h.base.BindJSON(c, &req) {
		return
	}
	domainReq, err := req.ToRequest(listID)
	if err != nil {
		h.base.Error(c, err)
		return
	}
	result, err := h.duplicator.Duplicate(c.Request.Context(), domainReq)
	if err != nil {
		h.base.Error(c, err)
		return
	}
	h.base.OK(c, result)
}

// ApplyToProducts handles POST /price-lists/:id/apply.
func (h *PricingHandler) ApplyToProducts(c *gin.Context) {
	listID, ok := h.listID(c)
	if !ok {
		return
	}
	var req dto.ApplyToProductsRequest
	if !h.base.BindJSON(c, &req) {
		return
	}
	result, err := h.duplicator.ApplyToProducts(c.Request.Context(), req.ToRequest(listID, h.userID(c)))
	if err != nil {
		h.base.Error(c, err)
		return
	}
	h.base.OK(c, result)
}

// --- Backup history ---

// BackupHistory handles GET /prices/backup-history.
// Optional productId narrows the history to one product.
func (h *PricingHandler) BackupHistory(c *gin.Context) {
	limit := h.base.ParseIntQuery(c, "limit", 50)

	if raw := c.Query("productId"); raw != "" {
		productID, err := id.Parse(raw)
		if err != nil {
			h.base.Error(c, apperror.NewValidation("invalid product id").
				WithDetail("value", raw))
			return
		}
		changes, err := h.backup.ProductHistory(c.Request.Context(), productID, limit)
		if err != nil {
			h.base.Error(c, err)
			return
		}
		h.base.OK(c, dto.ListResponse{Items: changes, TotalCount: len(changes)})
		return
	}

	entries, err := h.backup.History(c.Request.Context(), limit)
	if err != nil {
		h.base.Error(c, err)
		return
	}
	h.base.OK(c, dto.ListResponse{Items: entries, TotalCount: len(entries)})
}
