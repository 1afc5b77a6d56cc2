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

func seedSourceList(repo *fakeRepo, catalog *fakeCatalog) (*PriceList, []Product) {
	list := NewPriceList("PL-SRC", "Source", "EUR")
	stored := repo.addList(list)

	tools := catalog.addProduct(Product{Category: "tools", DefaultPrice: dec("10"), Currency: "EUR"})
	food := catalog.addProduct(Product{Category: "food", DefaultPrice: dec("5"), Currency: "EUR"})

	repo.entries[stored.ID] = []PriceListEntry{
		*NewPriceListEntry(stored.ID, tools.ID, dec("9.00"), "EUR"),
		*NewPriceListEntry(stored.ID, food.ID, dec("4.00"), "EUR"),
	}
	return stored, []Product{tools, food}
}

func TestDuplicateCopiesEntriesWithMarkup(t *testing.T) {
	repo := newFakeRepo()
	catalog := newFakeCatalog()
	source, _ := seedSourceList(repo, catalog)

	d := NewDuplicator(repo, catalog, catalog, nil, &passthroughTx{}, nil)
	result, err := d.Duplicate(context.Background(), DuplicateRequest{
		SourceListID:     source.ID,
		NewCode:          "PL-NEXT",
		NewName:          "Next season",
		MarkupPercentage: dec("10"),
		Rounding:         RoundNearestCent,
	})
	require.NoError(t, err)

	assert.Equal(t, 2, result.SourceEntries)
	assert.Equal(t, 2, result.CopiedEntries)
	assert.Equal(t, 0, result.SkippedEntries)
	assert.NotEqual(t, source.ID, result.NewList.ID)
	assert.Equal(t, "PL-NEXT", result.NewList.Code)

	entries, err := repo.EntriesForList(context.Background(), result.NewList.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.Equal(t, result.NewList.ID, e.PriceListID)
		assert.True(t, e.Price.Equal(dec("9.90")) || e.Price.Equal(dec("4.40")), "price %s", e.Price)
	}
}

func TestDuplicateCategoryFilterSkipsEntries(t *testing.T) {
	repo := newFakeRepo()
	catalog := newFakeCatalog()
	source, products := seedSourceList(repo, catalog)

	d := NewDuplicator(repo, catalog, catalog, nil, &passthroughTx{}, nil)
	result, err := d.Duplicate(context.Background(), DuplicateRequest{
		SourceListID: source.ID,
		NewName:      "Tools only",
		Categories:   []string{"tools"},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, result.CopiedEntries)
	assert.Equal(t, 1, result.SkippedEntries)

	entries, _ := repo.EntriesForList(context.Background(), result.NewList.ID)
	require.Len(t, entries, 1)
	assert.Equal(t, products[0].ID, entries[0].ProductID)
}

func TestDuplicateActiveOnlySkipsInactiveEntries(t *testing.T) {
	repo := newFakeRepo()
	catalog := newFakeCatalog()
	source, _ := seedSourceList(repo, catalog)
	repo.entries[source.ID][1].Status = StatusInactive

	d := NewDuplicator(repo, catalog, catalog, nil, &passthroughTx{}, nil)
	result, err := d.Duplicate(context.Background(), DuplicateRequest{
		SourceListID: source.ID,
		NewName:      "Active only",
		ActiveOnly:   true,
	})
	require.NoError(t, err)

	assert.Equal(t, 1, result.CopiedEntries)
	assert.Equal(t, 1, result.SkippedEntries)
}

func TestDuplicateCopiesAssignments(t *testing.T) {
	repo := newFakeRepo()
	catalog := newFakeCatalog()
	source, _ := seedSourceList(repo, catalog)
	partyID := id.New()
	repo.assignments[source.ID] = []PartyAssignment{*NewPartyAssignment(source.ID, partyID)}

	d := NewDuplicator(repo, catalog, catalog, nil, &passthroughTx{}, nil)
	result, err := d.Duplicate(context.Background(), DuplicateRequest{
		SourceListID:    source.ID,
		NewName:         "With parties",
		CopyAssignments: true,
	})
	require.NoError(t, err)

	assert.Equal(t, 1, result.CopiedAssignments)
	copied, _ := repo.AssignmentsForList(context.Background(), result.NewList.ID)
	require.Len(t, copied, 1)
	assert.Equal(t, partyID, copied[0].BusinessPartyID)
	assert.Equal(t, result.NewList.ID, copied[0].PriceListID)
}

func TestDuplicateOverridesWindowAndPriority(t *testing.T) {
	repo := newFakeRepo()
	catalog := newFakeCatalog()
	source, _ := seedSourceList(repo, catalog)

	from := time.Now().UTC().AddDate(0, 1, 0)
	d := NewDuplicator(repo, catalog, catalog, nil, &passthroughTx{}, nil)
	result, err := d.Duplicate(context.Background(), DuplicateRequest{
		SourceListID: source.ID,
		NewName:      "Next month",
		ValidFrom:    &from,
		Priority:     ptrInt(42),
	})
	require.NoError(t, err)

	require.NotNil(t, result.NewList.ValidFrom)
	assert.True(t, result.NewList.ValidFrom.Equal(from))
	assert.Equal(t, 42, result.NewList.Priority)
}

func TestDuplicateUnknownSourceFails(t *testing.T) {
	d := NewDuplicator(newFakeRepo(), newFakeCatalog(), newFakeCatalog(), nil, &passthroughTx{}, nil)
	_, err := d.Duplicate(context.Background(), DuplicateRequest{
		SourceListID: id.New(),
		NewName:      "Orphan",
	})
	require.Error(t, err)
	assert.True(t, apperror.IsNotFound(err))
}

func TestApplyToProductsUpdateAll(t *testing.T) {
	repo := newFakeRepo()
	catalog := newFakeCatalog()
	source, products := seedSourceList(repo, catalog)

	d := NewDuplicator(repo, catalog, catalog, nil, &passthroughTx{}, nil)
	result, err := d.ApplyToProducts(context.Background(), ApplyToProductsRequest{
		PriceListID: source.ID,
		Mode:        ApplyUpdateAll,
	})
	require.NoError(t, err)

	assert.Equal(t, 2, result.Examined)
	assert.Equal(t, 2, result.Updated)
	assert.True(t, catalog.products[products[0].ID].DefaultPrice.Equal(dec("9.00")))
	assert.True(t, catalog.products[products[1].ID].DefaultPrice.Equal(dec("4.00")))
}

func TestApplyToProductsUpdateExistingSkipsUnpriced(t *testing.T) {
	repo := newFakeRepo()
	catalog := newFakeCatalog()
	source, products := seedSourceList(repo, catalog)

	// Zero out one default price so only the other qualifies.
	p := catalog.products[products[1].ID]
	p.DefaultPrice = dec("0")
	catalog.products[products[1].ID] = p

	d := NewDuplicator(repo, catalog, catalog, nil, &passthroughTx{}, nil)
	result, err := d.ApplyToProducts(context.Background(), ApplyToProductsRequest{
		PriceListID: source.ID,
		Mode:        ApplyUpdateExisting,
	})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Updated)
	assert.Equal(t, 1, result.Skipped)
	for _, item := range result.Items {
		if item.ProductID == products[1].ID {
			assert.Equal(t, "no existing price", item.Reason)
		}
	}
}

func TestApplyToProductsOnlyIfLowerGuard(t *testing.T) {
	repo := newFakeRepo()
	catalog := newFakeCatalog()
	source, _ := seedSourceList(repo, catalog)

	d := NewDuplicator(repo, catalog, catalog, nil, &passthroughTx{}, nil)
	result, err := d.ApplyToProducts(context.Background(), ApplyToProductsRequest{
		PriceListID:       source.ID,
		Mode:              ApplyUpdateAll,
		OnlyUpdateIfLower: true,
	})
	require.NoError(t, err)

	// List prices 9.00/4.00 are both below defaults 10/5, so both pass.
	assert.Equal(t, 2, result.Updated)

	// Running again cannot lower further; everything is skipped.
	result, err = d.ApplyToProducts(context.Background(), ApplyToProductsRequest{
		PriceListID:       source.ID,
		Mode:              ApplyUpdateAll,
		OnlyUpdateIfLower: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, result.Updated)
	assert.Equal(t, 2, result.Skipped)
}

func TestApplyToProductsBothGuardsConflict(t *testing.T) {
	d := NewDuplicator(newFakeRepo(), newFakeCatalog(), newFakeCatalog(), nil, &passthroughTx{}, nil)
	_, err := d.ApplyToProducts(context.Background(), ApplyToProductsRequest{
		PriceListID:        id.New(),
		Mode:               ApplyUpdateAll,
		OnlyUpdateIfHigher: true,
		OnlyUpdateIfLower:  true,
	})
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeConflict))
}

func TestApplyToProductsBacksUpPriorPrices(t *testing.T) {
	repo := newFakeRepo()
	catalog := newFakeCatalog()
	source, _ := seedSourceList(repo, catalog)
	backup := &fakeBackup{}

	d := NewDuplicator(repo, catalog, catalog, backup, &passthroughTx{}, nil)
	_, err := d.ApplyToProducts(context.Background(), ApplyToProductsRequest{
		PriceListID:       source.ID,
		Mode:              ApplyUpdateAll,
		BackupPriorPrices: true,
	})
	require.NoError(t, err)

	require.Len(t, backup.changes, 1)
	assert.Len(t, backup.changes[0], 2)
	assert.Contains(t, backup.reasons[0], "PL-SRC")
}

func TestApplyToProductsSkipsDanglingEntries(t *testing.T) {
	repo := newFakeRepo()
	catalog := newFakeCatalog()
	source, products := seedSourceList(repo, catalog)

	// Entry whose product no longer exists in the catalog.
	ghost := NewPriceListEntry(source.ID, id.New(), dec("7.00"), "EUR")
	repo.entries[source.ID] = append(repo.entries[source.ID], *ghost)

	d := NewDuplicator(repo, catalog, catalog, nil, &passthroughTx{}, nil)
	result, err := d.ApplyToProducts(context.Background(), ApplyToProductsRequest{
		PriceListID: source.ID,
		Mode:        ApplyUpdateAll,
	})
	require.NoError(t, err)

	assert.Equal(t, 3, result.Examined)
	assert.Equal(t, 2, result.Updated)
	assert.Equal(t, 1, result.Skipped)
	var ghostOutcome *ProductApplyOutcome
	for i := range result.Items {
		if result.Items[i].ProductID == ghost.ProductID {
			ghostOutcome = &result.Items[i]
		}
	}
	require.NotNil(t, ghostOutcome)
	assert.Equal(t, "product not found", ghostOutcome.Reason)
	assert.True(t, catalog.products[products[0].ID].DefaultPrice.Equal(dec("9.00")))
}

func TestDuplicateCategoryFilterSkipsDanglingEntries(t *testing.T) {
	repo := newFakeRepo()
	catalog := newFakeCatalog()
	source, _ := seedSourceList(repo, catalog)
	ghost := NewPriceListEntry(source.ID, id.New(), dec("7.00"), "EUR")
	repo.entries[source.ID] = append(repo.entries[source.ID], *ghost)

	d := NewDuplicator(repo, catalog, catalog, nil, &passthroughTx{}, nil)
	result, err := d.Duplicate(context.Background(), DuplicateRequest{
		SourceListID: source.ID,
		NewCode:      "PL-TOOLS",
		NewName:      "Tools only",
		Categories:   []string{"tools"},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, result.CopiedEntries)
	assert.Equal(t, 2, result.SkippedEntries)
}
