package pricing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"listino/internal/core/apperror"
	"listino/internal/core/id"
)

func activeList(repo *fakeRepo, name string, priority int, createdAt time.Time) *PriceList {
	l := NewPriceList("PL-"+name, name, "EUR")
	l.Priority = priority
	l.CreatedAt = createdAt
	return repo.addList(l)
}

func addEntry(repo *fakeRepo, list *PriceList, productID id.ID, price string) *PriceListEntry {
	e := NewPriceListEntry(list.ID, productID, dec(price), list.Currency)
	repo.entries[list.ID] = append(repo.entries[list.ID], *e)
	return e
}

func TestResolveManualMode(t *testing.T) {
	r := NewResolver(newFakeRepo(), newFakeCatalog(), nil)

	manual := dec("42.50")
	res, err := r.Resolve(context.Background(), ResolveRequest{
		ProductID:   id.New(),
		Mode:        ModeManual,
		ManualPrice: &manual,
		Currency:    "EUR",
	})
	require.NoError(t, err)
	assert.True(t, res.Price.Equal(manual))
	assert.Equal(t, SourceManual, res.Source)
	assert.False(t, res.IsPriceFromList)
	assert.Nil(t, res.AppliedPriceListID)
}

func TestResolveManualModeRequiresPrice(t *testing.T) {
	r := NewResolver(newFakeRepo(), newFakeCatalog(), nil)

	_, err := r.Resolve(context.Background(), ResolveRequest{
		ProductID: id.New(),
		Mode:      ModeManual,
	})
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeValidation))
}

func TestResolveFallsBackToDefaultPrice(t *testing.T) {
	repo := newFakeRepo()
	catalog := newFakeCatalog()
	p := catalog.addProduct(Product{Name: "Widget", DefaultPrice: dec("9.90"), Currency: "EUR"})

	r := NewResolver(repo, catalog, nil)
	res, err := r.Resolve(context.Background(), ResolveRequest{ProductID: p.ID})
	require.NoError(t, err)

	assert.True(t, res.Price.Equal(dec("9.90")))
	assert.Equal(t, SourceDefaultPrice, res.Source)
	assert.False(t, res.IsPriceFromList)
	assert.Empty(t, res.SearchPath)
}

func TestResolvePartyListBeatsGeneralList(t *testing.T) {
	repo := newFakeRepo()
	catalog := newFakeCatalog()
	p := catalog.addProduct(Product{Name: "Widget", DefaultPrice: dec("12.00"), Currency: "EUR"})
	partyID := id.New()
	now := time.Now().UTC()

	general := activeList(repo, "General", 10, now.Add(-48*time.Hour))
	addEntry(repo, general, p.ID, "10.00")

	party := activeList(repo, "Party", 5, now.Add(-24*time.Hour))
	addEntry(repo, party, p.ID, "8.00")
	a := NewPartyAssignment(party.ID, partyID)
	repo.assignments[party.ID] = []PartyAssignment{*a}

	r := NewResolver(repo, catalog, nil)
	res, err := r.Resolve(context.Background(), ResolveRequest{
		ProductID:       p.ID,
		BusinessPartyID: &partyID,
		Currency:        "EUR",
	})
	require.NoError(t, err)

	assert.True(t, res.Price.Equal(dec("8.00")), "got %s", res.Price)
	assert.Equal(t, SourcePartyList, res.Source)
	assert.True(t, res.IsPriceFromList)
	require.NotNil(t, res.AppliedPriceListID)
	assert.Equal(t, party.ID, *res.AppliedPriceListID)
}

func TestResolveOverridePriorityReordersPartyLists(t *testing.T) {
	repo := newFakeRepo()
	catalog := newFakeCatalog()
	p := catalog.addProduct(Product{DefaultPrice: dec("50"), Currency: "EUR"})
	partyID := id.New()
	now := time.Now().UTC()

	// Worse list priority, but the assignment override pushes it to the front.
	overridden := activeList(repo, "Overridden", 20, now.Add(-2*time.Hour))
	addEntry(repo, overridden, p.ID, "30.00")
	oa := NewPartyAssignment(overridden.ID, partyID)
	oa.OverridePriority = ptrInt(1)
	repo.assignments[overridden.ID] = []PartyAssignment{*oa}

	plain := activeList(repo, "Plain", 5, now.Add(-1*time.Hour))
	addEntry(repo, plain, p.ID, "40.00")
	pa := NewPartyAssignment(plain.ID, partyID)
	repo.assignments[plain.ID] = []PartyAssignment{*pa}

	r := NewResolver(repo, catalog, nil)
	res, err := r.Resolve(context.Background(), ResolveRequest{ProductID: p.ID, BusinessPartyID: &partyID})
	require.NoError(t, err)

	assert.True(t, res.Price.Equal(dec("30.00")))
	assert.Equal(t, overridden.ID, *res.AppliedPriceListID)
}

func TestResolveAppliesGlobalDiscountToDiscountableEntries(t *testing.T) {
	repo := newFakeRepo()
	catalog := newFakeCatalog()
	p := catalog.addProduct(Product{DefaultPrice: dec("100"), Currency: "EUR"})
	partyID := id.New()

	list := activeList(repo, "Discounted", 1, time.Now().UTC())
	addEntry(repo, list, p.ID, "100.00")
	a := NewPartyAssignment(list.ID, partyID)
	a.GlobalDiscountPercentage = dec("15")
	repo.assignments[list.ID] = []PartyAssignment{*a}

	r := NewResolver(repo, catalog, nil)
	res, err := r.Resolve(context.Background(), ResolveRequest{ProductID: p.ID, BusinessPartyID: &partyID})
	require.NoError(t, err)

	assert.True(t, res.Price.Equal(dec("85.00")), "got %s", res.Price)
	assert.True(t, res.OriginalPrice.Equal(dec("100.00")))
	assert.True(t, res.DiscountPercentage.Equal(dec("15")))
}

func TestResolveSkipsDiscountOnNonDiscountableEntry(t *testing.T) {
	repo := newFakeRepo()
	catalog := newFakeCatalog()
	p := catalog.addProduct(Product{DefaultPrice: dec("100"), Currency: "EUR"})
	partyID := id.New()

	list := activeList(repo, "Fixed", 1, time.Now().UTC())
	e := NewPriceListEntry(list.ID, p.ID, dec("100.00"), "EUR")
	e.IsDiscountable = false
	repo.entries[list.ID] = []PriceListEntry{*e}
	a := NewPartyAssignment(list.ID, partyID)
	a.GlobalDiscountPercentage = dec("15")
	repo.assignments[list.ID] = []PartyAssignment{*a}

	r := NewResolver(repo, catalog, nil)
	res, err := r.Resolve(context.Background(), ResolveRequest{ProductID: p.ID, BusinessPartyID: &partyID})
	require.NoError(t, err)

	assert.True(t, res.Price.Equal(dec("100.00")))
	assert.True(t, res.DiscountPercentage.IsZero())
}

func TestResolveQuantityTierSelection(t *testing.T) {
	repo := newFakeRepo()
	catalog := newFakeCatalog()
	p := catalog.addProduct(Product{DefaultPrice: dec("10"), Currency: "EUR"})

	list := activeList(repo, "Tiered", 1, time.Now().UTC())
	single := NewPriceListEntry(list.ID, p.ID, dec("10.00"), "EUR")
	single.MaxQuantity = dec("9")
	bulk := NewPriceListEntry(list.ID, p.ID, dec("8.50"), "EUR")
	bulk.MinQuantity = dec("10")
	repo.entries[list.ID] = []PriceListEntry{*single, *bulk}

	r := NewResolver(repo, catalog, nil)

	res, err := r.Resolve(context.Background(), ResolveRequest{ProductID: p.ID, Quantity: dec("5")})
	require.NoError(t, err)
	assert.True(t, res.Price.Equal(dec("10.00")))

	res, err = r.Resolve(context.Background(), ResolveRequest{ProductID: p.ID, Quantity: dec("25")})
	require.NoError(t, err)
	assert.True(t, res.Price.Equal(dec("8.50")))
}

func TestResolveScoreBreaksTieWithinList(t *testing.T) {
	repo := newFakeRepo()
	catalog := newFakeCatalog()
	p := catalog.addProduct(Product{DefaultPrice: dec("10"), Currency: "EUR"})

	list := activeList(repo, "Scored", 1, time.Now().UTC())
	low := NewPriceListEntry(list.ID, p.ID, dec("9.00"), "EUR")
	low.Score = 10
	high := NewPriceListEntry(list.ID, p.ID, dec("9.50"), "EUR")
	high.Score = 90
	repo.entries[list.ID] = []PriceListEntry{*low, *high}

	r := NewResolver(repo, catalog, nil)
	res, err := r.Resolve(context.Background(), ResolveRequest{ProductID: p.ID})
	require.NoError(t, err)
	assert.True(t, res.Price.Equal(dec("9.50")))
}

func TestResolveCurrencyMismatchExcludesList(t *testing.T) {
	repo := newFakeRepo()
	catalog := newFakeCatalog()
	p := catalog.addProduct(Product{DefaultPrice: dec("10"), Currency: "USD"})

	eur := activeList(repo, "Euro", 1, time.Now().UTC())
	addEntry(repo, eur, p.ID, "7.00")

	r := NewResolver(repo, catalog, nil)
	res, err := r.Resolve(context.Background(), ResolveRequest{ProductID: p.ID, Currency: "USD"})
	require.NoError(t, err)

	assert.Equal(t, SourceDefaultPrice, res.Source)
	require.Len(t, res.SearchPath, 1)
	assert.Contains(t, res.SearchPath[0].Outcome, "currency mismatch")
}

func TestResolveUnitConversionBeforeDiscount(t *testing.T) {
	repo := newFakeRepo()
	catalog := newFakeCatalog()
	p := catalog.addProduct(Product{DefaultPrice: dec("10"), Currency: "EUR"})
	catalog.conversions["box->piece"] = dec("0.1")
	partyID := id.New()

	list := activeList(repo, "Boxed", 1, time.Now().UTC())
	e := NewPriceListEntry(list.ID, p.ID, dec("50.00"), "EUR")
	e.UnitOfMeasureID = ptrStr("box")
	repo.entries[list.ID] = []PriceListEntry{*e}
	a := NewPartyAssignment(list.ID, partyID)
	a.GlobalDiscountPercentage = dec("10")
	repo.assignments[list.ID] = []PartyAssignment{*a}

	r := NewResolver(repo, catalog, nil)
	res, err := r.Resolve(context.Background(), ResolveRequest{
		ProductID:       p.ID,
		BusinessPartyID: &partyID,
		UnitOfMeasureID: ptrStr("piece"),
	})
	require.NoError(t, err)

	// 50.00 per box, 0.1 box per piece, then 10% off: 5.00 -> 4.50.
	assert.True(t, res.Price.Equal(dec("4.50")), "got %s", res.Price)
	assert.True(t, res.OriginalPrice.Equal(dec("50.00")))
	require.NotNil(t, res.OriginalUnitOfMeasureID)
	assert.Equal(t, "box", *res.OriginalUnitOfMeasureID)
}

func TestResolveForcedListMissingEntry(t *testing.T) {
	repo := newFakeRepo()
	catalog := newFakeCatalog()
	p := catalog.addProduct(Product{DefaultPrice: dec("10"), Currency: "EUR"})

	forced := activeList(repo, "Forced", 1, time.Now().UTC())

	r := NewResolver(repo, catalog, nil)
	_, err := r.Resolve(context.Background(), ResolveRequest{
		ProductID:    p.ID,
		Mode:         ModeForcedPriceList,
		ForcedListID: &forced.ID,
	})
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeEntryNotFound))
}

func TestResolveForcedListInactive(t *testing.T) {
	repo := newFakeRepo()
	catalog := newFakeCatalog()
	p := catalog.addProduct(Product{DefaultPrice: dec("10"), Currency: "EUR"})

	l := NewPriceList("PL-OFF", "Switched off", "EUR")
	l.Status = StatusInactive
	off := repo.addList(l)
	addEntry(repo, off, p.ID, "5.00")

	r := NewResolver(repo, catalog, nil)
	_, err := r.Resolve(context.Background(), ResolveRequest{
		ProductID:    p.ID,
		Mode:         ModeForcedPriceList,
		ForcedListID: &off.ID,
	})
	require.Error(t, err)
	assert.True(t, apperror.IsNotFound(err))
}

func TestResolveReferenceDateSelectsWindow(t *testing.T) {
	repo := newFakeRepo()
	catalog := newFakeCatalog()
	p := catalog.addProduct(Product{DefaultPrice: dec("10"), Currency: "EUR"})
	now := time.Now().UTC()

	seasonal := NewPriceList("PL-SEASON", "Seasonal", "EUR")
	seasonal.ValidFrom = ptrTime(now.Add(-30 * 24 * time.Hour))
	seasonal.ValidTo = ptrTime(now.Add(-15 * 24 * time.Hour))
	stored := repo.addList(seasonal)
	addEntry(repo, stored, p.ID, "6.00")

	r := NewResolver(repo, catalog, nil)

	// Today the window is closed; the fallback applies.
	res, err := r.Resolve(context.Background(), ResolveRequest{ProductID: p.ID})
	require.NoError(t, err)
	assert.Equal(t, SourceDefaultPrice, res.Source)

	// Back-dated into the window the list wins.
	inWindow := now.Add(-20 * 24 * time.Hour)
	res, err = r.Resolve(context.Background(), ResolveRequest{ProductID: p.ID, ReferenceDate: &inWindow})
	require.NoError(t, err)
	assert.True(t, res.Price.Equal(dec("6.00")))
}

func TestResolveCachesAutomaticResults(t *testing.T) {
	repo := newFakeRepo()
	catalog := newFakeCatalog()
	p := catalog.addProduct(Product{DefaultPrice: dec("10"), Currency: "EUR"})

	list := activeList(repo, "Cached", 1, time.Now().UTC())
	addEntry(repo, list, p.ID, "7.00")

	cache := NewResolutionCache(time.Minute)
	r := NewResolver(repo, catalog, cache)

	// Pinned reference date keeps the cache key stable across calls.
	at := time.Now().UTC()
	req := ResolveRequest{ProductID: p.ID, ReferenceDate: &at}

	res, err := r.Resolve(context.Background(), req)
	require.NoError(t, err)
	require.True(t, res.Price.Equal(dec("7.00")))
	require.Equal(t, 1, cache.Len())

	// Mutate storage behind the cache; the cached price keeps winning.
	repo.entries[list.ID][0].Price = dec("99.00")
	res, err = r.Resolve(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, res.Price.Equal(dec("7.00")))

	cache.InvalidateProduct(p.ID)
	res, err = r.Resolve(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, res.Price.Equal(dec("99.00")))
}

func TestResolveRejectsNilProduct(t *testing.T) {
	r := NewResolver(newFakeRepo(), newFakeCatalog(), nil)
	_, err := r.Resolve(context.Background(), ResolveRequest{})
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeValidation))
}

func TestResolveSearchPathRecordsRejections(t *testing.T) {
	repo := newFakeRepo()
	catalog := newFakeCatalog()
	p := catalog.addProduct(Product{DefaultPrice: dec("10"), Currency: "EUR"})
	other := catalog.addProduct(Product{DefaultPrice: dec("4"), Currency: "EUR"})

	first := activeList(repo, "First", 1, time.Now().UTC().Add(-time.Hour))
	addEntry(repo, first, other.ID, "3.00")
	second := activeList(repo, "Second", 2, time.Now().UTC())
	addEntry(repo, second, p.ID, "9.00")

	r := NewResolver(repo, catalog, nil)
	res, err := r.Resolve(context.Background(), ResolveRequest{ProductID: p.ID})
	require.NoError(t, err)

	require.Len(t, res.SearchPath, 2)
	assert.Equal(t, "no entry for product", res.SearchPath[0].Outcome)
	assert.Equal(t, "selected", res.SearchPath[1].Outcome)
}

func TestResolveScoreBreaksTieAcrossEqualPriorityLists(t *testing.T) {
	repo := newFakeRepo()
	catalog := newFakeCatalog()
	p := catalog.addProduct(Product{DefaultPrice: dec("10"), Currency: "EUR"})
	now := time.Now().UTC()

	older := activeList(repo, "Older", 5, now.Add(-48*time.Hour))
	weak := NewPriceListEntry(older.ID, p.ID, dec("9.00"), "EUR")
	weak.Score = 10
	repo.entries[older.ID] = []PriceListEntry{*weak}

	newer := activeList(repo, "Newer", 5, now.Add(-time.Hour))
	strong := NewPriceListEntry(newer.ID, p.ID, dec("5.00"), "EUR")
	strong.Score = 90
	repo.entries[newer.ID] = []PriceListEntry{*strong}

	r := NewResolver(repo, catalog, nil)
	res, err := r.Resolve(context.Background(), ResolveRequest{ProductID: p.ID})
	require.NoError(t, err)

	assert.True(t, res.Price.Equal(dec("5.00")), "got %s", res.Price)
	require.NotNil(t, res.AppliedPriceListID)
	assert.Equal(t, newer.ID, *res.AppliedPriceListID)
}

func TestResolveScoreBreaksTieAcrossEqualPriorityPartyLists(t *testing.T) {
	repo := newFakeRepo()
	catalog := newFakeCatalog()
	p := catalog.addProduct(Product{DefaultPrice: dec("10"), Currency: "EUR"})
	partyID := id.New()
	now := time.Now().UTC()

	older := activeList(repo, "Older", 5, now.Add(-48*time.Hour))
	weak := NewPriceListEntry(older.ID, p.ID, dec("9.00"), "EUR")
	weak.Score = 10
	repo.entries[older.ID] = []PriceListEntry{*weak}
	repo.assignments[older.ID] = []PartyAssignment{*NewPartyAssignment(older.ID, partyID)}

	newer := activeList(repo, "Newer", 5, now.Add(-time.Hour))
	strong := NewPriceListEntry(newer.ID, p.ID, dec("5.00"), "EUR")
	strong.Score = 90
	repo.entries[newer.ID] = []PriceListEntry{*strong}
	repo.assignments[newer.ID] = []PartyAssignment{*NewPartyAssignment(newer.ID, partyID)}

	r := NewResolver(repo, catalog, nil)
	res, err := r.Resolve(context.Background(), ResolveRequest{ProductID: p.ID, BusinessPartyID: &partyID})
	require.NoError(t, err)

	assert.True(t, res.Price.Equal(dec("5.00")), "got %s", res.Price)
	assert.Equal(t, newer.ID, *res.AppliedPriceListID)
}

func TestResolvePriorityStillBeatsScore(t *testing.T) {
	repo := newFakeRepo()
	catalog := newFakeCatalog()
	p := catalog.addProduct(Product{DefaultPrice: dec("10"), Currency: "EUR"})
	now := time.Now().UTC()

	front := activeList(repo, "Front", 1, now)
	weak := NewPriceListEntry(front.ID, p.ID, dec("9.00"), "EUR")
	weak.Score = 10
	repo.entries[front.ID] = []PriceListEntry{*weak}

	back := activeList(repo, "Back", 2, now)
	strong := NewPriceListEntry(back.ID, p.ID, dec("5.00"), "EUR")
	strong.Score = 90
	repo.entries[back.ID] = []PriceListEntry{*strong}

	r := NewResolver(repo, catalog, nil)
	res, err := r.Resolve(context.Background(), ResolveRequest{ProductID: p.ID})
	require.NoError(t, err)

	assert.True(t, res.Price.Equal(dec("9.00")), "got %s", res.Price)
	assert.Equal(t, front.ID, *res.AppliedPriceListID)
}

func TestResolveListResultCarriesProductVATRate(t *testing.T) {
	repo := newFakeRepo()
	catalog := newFakeCatalog()
	vat := "VAT22"
	p := catalog.addProduct(Product{DefaultPrice: dec("10"), Currency: "EUR", VATRateID: &vat})

	list := activeList(repo, "Retail", 1, time.Now().UTC())
	addEntry(repo, list, p.ID, "8.00")

	r := NewResolver(repo, catalog, nil)
	res, err := r.Resolve(context.Background(), ResolveRequest{ProductID: p.ID})
	require.NoError(t, err)

	assert.Equal(t, SourceGeneralList, res.Source)
	require.NotNil(t, res.VATRateID)
	assert.Equal(t, "VAT22", *res.VATRateID)
}
