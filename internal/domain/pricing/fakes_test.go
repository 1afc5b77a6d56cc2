package pricing

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"listino/internal/core/apperror"
	"listino/internal/core/id"
)

// fakeRepo is an in-memory Repository used across the package tests.
type fakeRepo struct {
	lists       map[id.ID]*PriceList
	entries     map[id.ID][]PriceListEntry
	assignments map[id.ID][]PartyAssignment
	metadata    map[id.ID]*GenerationMetadata

	failCreateEntries error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		lists:       make(map[id.ID]*PriceList),
		entries:     make(map[id.ID][]PriceListEntry),
		assignments: make(map[id.ID][]PartyAssignment),
		metadata:    make(map[id.ID]*GenerationMetadata),
	}
}

func (r *fakeRepo) addList(l *PriceList) *PriceList {
	cp := *l
	r.lists[cp.ID] = &cp
	return &cp
}

func (r *fakeRepo) CreateList(ctx context.Context, list *PriceList) error {
	cp := *list
	r.lists[cp.ID] = &cp
	return nil
}

func (r *fakeRepo) UpdateList(ctx context.Context, list *PriceList) error {
	if _, ok := r.lists[list.ID]; !ok {
		return apperror.NewPriceListNotFound(list.ID.String())
	}
	cp := *list
	r.lists[cp.ID] = &cp
	return nil
}

func (r *fakeRepo) GetList(ctx context.Context, listID id.ID) (*PriceList, error) {
	l, ok := r.lists[listID]
	if !ok {
		return nil, apperror.NewPriceListNotFound(listID.String())
	}
	cp := *l
	return &cp, nil
}

func (r *fakeRepo) ListLists(ctx context.Context, q ListQuery) ([]PriceList, error) {
	out := make([]PriceList, 0, len(r.lists))
	for _, l := range r.lists {
		if q.Scope.EventID != nil && (l.EventID == nil || *l.EventID != *q.Scope.EventID) {
			continue
		}
		out = append(out, *l)
	}
	return out, nil
}

func (r *fakeRepo) GeneralLists(ctx context.Context, scope Scope, at time.Time) ([]PriceList, error) {
	out := make([]PriceList, 0)
	for listID, l := range r.lists {
		if len(r.assignments[listID]) > 0 {
			continue
		}
		if !l.ValidAt(at) {
			continue
		}
		out = append(out, *l)
	}
	return out, nil
}

func (r *fakeRepo) ListsForParty(ctx context.Context, partyID id.ID, at time.Time) ([]PartyList, error) {
	out := make([]PartyList, 0)
	for listID, as := range r.assignments {
		l, ok := r.lists[listID]
		if !ok {
			continue
		}
		for _, a := range as {
			if a.BusinessPartyID == partyID {
				out = append(out, PartyList{List: *l, Assignment: a})
			}
		}
	}
	return out, nil
}

func (r *fakeRepo) CreateEntries(ctx context.Context, entries []PriceListEntry) error {
	if r.failCreateEntries != nil {
		return r.failCreateEntries
	}
	for _, e := range entries {
		r.entries[e.PriceListID] = append(r.entries[e.PriceListID], e)
	}
	return nil
}

func (r *fakeRepo) UpdateEntry(ctx context.Context, entry *PriceListEntry) error {
	list := r.entries[entry.PriceListID]
	for i := range list {
		if list[i].ID == entry.ID {
			list[i] = *entry
			return nil
		}
	}
	return apperror.NewEntryNotFound(entry.PriceListID.String(), entry.ProductID.String())
}

func (r *fakeRepo) DeleteEntriesForList(ctx context.Context, listID id.ID) error {
	delete(r.entries, listID)
	return nil
}

func (r *fakeRepo) EntriesForList(ctx context.Context, listID id.ID) ([]PriceListEntry, error) {
	return append([]PriceListEntry(nil), r.entries[listID]...), nil
}

func (r *fakeRepo) EntriesForProduct(ctx context.Context, listID, productID id.ID) ([]PriceListEntry, error) {
	out := make([]PriceListEntry, 0)
	for _, e := range r.entries[listID] {
		if e.ProductID == productID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *fakeRepo) CreateAssignment(ctx context.Context, a *PartyAssignment) error {
	r.assignments[a.PriceListID] = append(r.assignments[a.PriceListID], *a)
	return nil
}

func (r *fakeRepo) RemoveAssignment(ctx context.Context, assignmentID id.ID) error {
	for listID, as := range r.assignments {
		for i := range as {
			if as[i].ID == assignmentID {
				r.assignments[listID] = append(as[:i], as[i+1:]...)
				return nil
			}
		}
	}
	return apperror.NewNotFound("party assignment", assignmentID.String())
}

func (r *fakeRepo) AssignmentsForList(ctx context.Context, listID id.ID) ([]PartyAssignment, error) {
	return append([]PartyAssignment(nil), r.assignments[listID]...), nil
}

func (r *fakeRepo) AssignmentsForLists(ctx context.Context, listIDs []id.ID) (map[id.ID][]PartyAssignment, error) {
	out := make(map[id.ID][]PartyAssignment, len(listIDs))
	for _, listID := range listIDs {
		if as := r.assignments[listID]; len(as) > 0 {
			out[listID] = append([]PartyAssignment(nil), as...)
		}
	}
	return out, nil
}

func (r *fakeRepo) SaveGenerationMetadata(ctx context.Context, meta *GenerationMetadata) error {
	cp := *meta
	r.metadata[cp.PriceListID] = &cp
	return nil
}

func (r *fakeRepo) GetGenerationMetadata(ctx context.Context, listID id.ID) (*GenerationMetadata, error) {
	m, ok := r.metadata[listID]
	if !ok {
		return nil, apperror.NewNotFound("generation metadata", listID.String())
	}
	cp := *m
	return &cp, nil
}

// fakeCatalog is an in-memory CatalogFacts plus ProductPriceWriter.
type fakeCatalog struct {
	products    map[id.ID]Product
	conversions map[string]decimal.Decimal // "from->to"
	vatRates    map[string]decimal.Decimal

	writes     []PriceChange
	failWrites map[id.ID]error
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		products:    make(map[id.ID]Product),
		conversions: make(map[string]decimal.Decimal),
		vatRates:    make(map[string]decimal.Decimal),
		failWrites:  make(map[id.ID]error),
	}
}

func (c *fakeCatalog) addProduct(p Product) Product {
	if id.IsNil(p.ID) {
		p.ID = id.New()
	}
	c.products[p.ID] = p
	return p
}

func (c *fakeCatalog) Product(ctx context.Context, productID id.ID) (*Product, error) {
	p, ok := c.products[productID]
	if !ok {
		return nil, apperror.NewNotFound("product", productID.String())
	}
	return &p, nil
}

func (c *fakeCatalog) ListProducts(ctx context.Context, filter ProductFilter) ([]Product, error) {
	out := make([]Product, 0, len(c.products))
	for _, p := range c.products {
		if filter.Matches(p) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (c *fakeCatalog) UnitConversion(ctx context.Context, productID id.ID, fromUnit, toUnit string) (decimal.Decimal, error) {
	f, ok := c.conversions[fromUnit+"->"+toUnit]
	if !ok {
		return decimal.Zero, apperror.NewValidation("no conversion from " + fromUnit + " to " + toUnit)
	}
	return f, nil
}

func (c *fakeCatalog) VATRate(ctx context.Context, vatRateID string) (decimal.Decimal, error) {
	rate, ok := c.vatRates[vatRateID]
	if !ok {
		return decimal.Zero, apperror.NewNotFound("vat rate", vatRateID)
	}
	return rate, nil
}

func (c *fakeCatalog) UpdateDefaultPrice(ctx context.Context, productID id.ID, price decimal.Decimal) error {
	if err := c.failWrites[productID]; err != nil {
		return err
	}
	p, ok := c.products[productID]
	if !ok {
		return apperror.NewNotFound("product", productID.String())
	}
	c.writes = append(c.writes, PriceChange{ProductID: productID, OldPrice: p.DefaultPrice, NewPrice: price})
	p.DefaultPrice = price
	c.products[productID] = p
	return nil
}

// fakeHistory replays a fixed slice of purchase lines.
type fakeHistory struct {
	lines []PurchaseLine
}

func (h *fakeHistory) StreamPurchaseLines(ctx context.Context, supplierID id.ID, from, to time.Time, fn func(PurchaseLine) error) error {
	for _, l := range h.lines {
		if !from.IsZero() && l.Date.Before(from) {
			continue
		}
		if !to.IsZero() && l.Date.After(to) {
			continue
		}
		if err := fn(l); err != nil {
			return err
		}
	}
	return nil
}

// fakeBackup records LogPriceChanges calls.
type fakeBackup struct {
	reasons []string
	changes [][]PriceChange
}

func (b *fakeBackup) LogPriceChanges(ctx context.Context, reason string, changes []PriceChange) error {
	b.reasons = append(b.reasons, reason)
	b.changes = append(b.changes, changes)
	return nil
}

// passthroughTx satisfies tx.Manager without a database. Rollback semantics
// are asserted through the error path, not through state restoration.
type passthroughTx struct {
	runs int
}

func (t *passthroughTx) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	t.runs++
	return fn(ctx)
}

func (t *passthroughTx) ReadOnly(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func ptrTime(t time.Time) *time.Time { return &t }
func ptrInt(v int) *int              { return &v }
func ptrStr(s string) *string        { return &s }
func ptrID(v id.ID) *id.ID           { return &v }
func dec(s string) decimal.Decimal   { return decimal.RequireFromString(s) }
