package pricing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"listino/internal/core/apperror"
)

func TestBulkPreviewPercentageIncreaseWithRounding(t *testing.T) {
	catalog := newFakeCatalog()
	p := catalog.addProduct(Product{Code: "W-1", Name: "Widget", DefaultPrice: dec("19.99"), Currency: "EUR"})
	e := NewEngine(catalog, catalog, nil, &passthroughTx{}, nil)

	preview, err := e.Preview(context.Background(), BulkUpdateRequest{
		Operation: OpPercentageIncrease,
		Value:     dec("10"),
		Rounding:  RoundNearestTen,
	})
	require.NoError(t, err)

	require.Len(t, preview.Changes, 1)
	c := preview.Changes[0]
	assert.Equal(t, p.ID, c.ProductID)
	assert.True(t, c.OldPrice.Equal(dec("19.99")))
	// 19.99 * 1.10 = 21.989, then to the nearest ten cents.
	assert.True(t, c.NewPrice.Equal(dec("22.00")), "got %s", c.NewPrice)
}

func TestBulkDecreaseClampsAtZero(t *testing.T) {
	catalog := newFakeCatalog()
	catalog.addProduct(Product{DefaultPrice: dec("3.00"), Currency: "EUR"})
	e := NewEngine(catalog, catalog, nil, &passthroughTx{}, nil)

	preview, err := e.Preview(context.Background(), BulkUpdateRequest{
		Operation: OpDecrease,
		Value:     dec("5.00"),
	})
	require.NoError(t, err)

	require.Len(t, preview.Changes, 1)
	assert.True(t, preview.Changes[0].NewPrice.IsZero())
}

func TestBulkFilterNarrowsSelection(t *testing.T) {
	catalog := newFakeCatalog()
	cheap := catalog.addProduct(Product{Category: "tools", DefaultPrice: dec("5"), Currency: "EUR"})
	catalog.addProduct(Product{Category: "tools", DefaultPrice: dec("500"), Currency: "EUR"})
	catalog.addProduct(Product{Category: "food", DefaultPrice: dec("5"), Currency: "EUR"})
	e := NewEngine(catalog, catalog, nil, &passthroughTx{}, nil)

	max := dec("100")
	preview, err := e.Preview(context.Background(), BulkUpdateRequest{
		Filter:    ProductFilter{Categories: []string{"tools"}, MaxPrice: &max},
		Operation: OpIncrease,
		Value:     dec("1"),
	})
	require.NoError(t, err)

	require.Len(t, preview.Changes, 1)
	assert.Equal(t, cheap.ID, preview.Changes[0].ProductID)
}

func TestBulkSetSkipsAlreadyMatchingPrices(t *testing.T) {
	catalog := newFakeCatalog()
	catalog.addProduct(Product{DefaultPrice: dec("10.00"), Currency: "EUR"})
	catalog.addProduct(Product{DefaultPrice: dec("12.00"), Currency: "EUR"})
	e := NewEngine(catalog, catalog, nil, &passthroughTx{}, nil)

	preview, err := e.Preview(context.Background(), BulkUpdateRequest{
		Operation: OpSet,
		Value:     dec("10.00"),
	})
	require.NoError(t, err)

	assert.Equal(t, 2, preview.MatchedProducts)
	require.Len(t, preview.Changes, 1)
	assert.True(t, preview.Changes[0].OldPrice.Equal(dec("12.00")))
}

func TestBulkApplyMatchesPreview(t *testing.T) {
	catalog := newFakeCatalog()
	catalog.addProduct(Product{DefaultPrice: dec("19.99"), Currency: "EUR"})
	catalog.addProduct(Product{DefaultPrice: dec("7.50"), Currency: "EUR"})
	txm := &passthroughTx{}
	e := NewEngine(catalog, catalog, nil, txm, nil)

	req := BulkUpdateRequest{Operation: OpPercentageIncrease, Value: dec("10"), Rounding: RoundNearestTen}

	preview, err := e.Preview(context.Background(), req)
	require.NoError(t, err)

	result, err := e.Apply(context.Background(), req)
	require.NoError(t, err)

	assert.False(t, result.RolledBack)
	assert.Equal(t, len(preview.Changes), result.Updated)
	assert.Equal(t, 1, txm.runs)

	byProduct := make(map[string]BulkChange)
	for _, c := range preview.Changes {
		byProduct[c.ProductID.String()] = c
	}
	for _, item := range result.Items {
		want := byProduct[item.ProductID.String()]
		assert.True(t, item.NewPrice.Equal(want.NewPrice), "product %s", item.ProductID)
		assert.True(t, item.Updated)
	}
	// Storage now holds the previewed prices.
	for _, c := range preview.Changes {
		p := catalog.products[c.ProductID]
		assert.True(t, p.DefaultPrice.Equal(c.NewPrice))
	}
}

func TestBulkApplyRollsBackOnWriteFailure(t *testing.T) {
	catalog := newFakeCatalog()
	bad := catalog.addProduct(Product{DefaultPrice: dec("10"), Currency: "EUR"})
	catalog.failWrites[bad.ID] = errors.New("column dropped")
	e := NewEngine(catalog, catalog, nil, &passthroughTx{}, nil)

	result, err := e.Apply(context.Background(), BulkUpdateRequest{
		Operation: OpIncrease,
		Value:     dec("1"),
	})
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodePersistence))
	require.NotNil(t, result)
	assert.True(t, result.RolledBack)
	assert.Equal(t, 0, result.Updated)
}

func TestBulkApplyWritesBackupBeforeOverwrite(t *testing.T) {
	catalog := newFakeCatalog()
	catalog.addProduct(Product{DefaultPrice: dec("10"), Currency: "EUR"})
	backup := &fakeBackup{}
	e := NewEngine(catalog, catalog, backup, &passthroughTx{}, nil)

	_, err := e.Apply(context.Background(), BulkUpdateRequest{
		Operation: OpIncrease,
		Value:     dec("1"),
		Reason:    "supplier cost change",
	})
	require.NoError(t, err)

	require.Len(t, backup.changes, 1)
	assert.Equal(t, "supplier cost change", backup.reasons[0])
	require.Len(t, backup.changes[0], 1)
	assert.True(t, backup.changes[0][0].OldPrice.Equal(dec("10")))
	assert.True(t, backup.changes[0][0].NewPrice.Equal(dec("11")))
}

func TestBulkRequestValidation(t *testing.T) {
	tests := []struct {
		name string
		req  BulkUpdateRequest
	}{
		{"unknown operation", BulkUpdateRequest{Operation: "halve"}},
		{"negative value", BulkUpdateRequest{Operation: OpIncrease, Value: dec("-1")}},
		{"set to zero", BulkUpdateRequest{Operation: OpSet}},
		{"bad rounding", BulkUpdateRequest{Operation: OpIncrease, Value: dec("1"), Rounding: "nearest_euro"}},
	}
	e := NewEngine(newFakeCatalog(), newFakeCatalog(), nil, &passthroughTx{}, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Preview(context.Background(), tt.req)
			require.Error(t, err)
			assert.True(t, apperror.IsCode(err, apperror.CodeValidation))
		})
	}
}

func TestBulkPreviewReportsPercentages(t *testing.T) {
	catalog := newFakeCatalog()
	catalog.addProduct(Product{Code: "A", DefaultPrice: dec("10.00"), Currency: "EUR"})
	catalog.addProduct(Product{Code: "B", DefaultPrice: dec("20.00"), Currency: "EUR"})
	// Zero-priced product: the absolute delta applies, the percentage has no base.
	catalog.addProduct(Product{Code: "C", DefaultPrice: dec("0"), Currency: "EUR"})
	e := NewEngine(catalog, catalog, nil, &passthroughTx{}, nil)

	preview, err := e.Preview(context.Background(), BulkUpdateRequest{
		Operation: OpIncrease,
		Value:     dec("5.00"),
	})
	require.NoError(t, err)
	require.Len(t, preview.Changes, 3)

	byCode := make(map[string]BulkChange, 3)
	for _, c := range preview.Changes {
		byCode[c.ProductCode] = c
	}
	assert.True(t, byCode["A"].DeltaPercent.Equal(dec("50")), "got %s", byCode["A"].DeltaPercent)
	assert.True(t, byCode["B"].DeltaPercent.Equal(dec("25")), "got %s", byCode["B"].DeltaPercent)
	assert.True(t, byCode["C"].DeltaPercent.IsZero())
	// (50 + 25 + 0) / 3
	assert.True(t, preview.AveragePercentChange.Equal(dec("25")), "got %s", preview.AveragePercentChange)
}

func TestBulkApplyInvalidatesResolutionCache(t *testing.T) {
	repo := newFakeRepo()
	catalog := newFakeCatalog()
	p := catalog.addProduct(Product{DefaultPrice: dec("10.00"), Currency: "EUR"})
	cache := NewResolutionCache(time.Minute)

	r := NewResolver(repo, catalog, cache)
	res, err := r.Resolve(context.Background(), ResolveRequest{ProductID: p.ID})
	require.NoError(t, err)
	require.True(t, res.Price.Equal(dec("10.00")))

	e := NewEngine(catalog, catalog, nil, &passthroughTx{}, cache)
	_, err = e.Apply(context.Background(), BulkUpdateRequest{
		Operation: OpSet,
		Value:     dec("20.00"),
	})
	require.NoError(t, err)

	res, err = r.Resolve(context.Background(), ResolveRequest{ProductID: p.ID})
	require.NoError(t, err)
	assert.True(t, res.Price.Equal(dec("20.00")), "got %s", res.Price)
}
