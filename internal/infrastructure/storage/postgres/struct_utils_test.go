package postgres

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"listino/internal/core/id"
	"listino/internal/domain/pricing"
)

func TestExtractDBColumnsFlattensEmbedded(t *testing.T) {
	cols := ExtractDBColumns[pricing.PriceList]()

	for _, expected := range []string{
		"id", "version", "created_at", "updated_at",
		"code", "name", "priority", "is_default", "status", "currency",
	} {
		assert.Contains(t, cols, expected)
	}
	// The db:"-" field must not leak into SQL.
	assert.NotContains(t, cols, "generation")
}

func TestStructToMapUsesDBTags(t *testing.T) {
	list := pricing.NewPriceList("PL-1", "Retail", "EUR")
	list.Priority = 7
	list.IsDefault = true

	m := StructToMap(list)

	assert.Equal(t, list.ID, m["id"])
	assert.Equal(t, 1, m["version"])
	assert.Equal(t, "PL-1", m["code"])
	assert.Equal(t, "Retail", m["name"])
	assert.Equal(t, 7, m["priority"])
	assert.Equal(t, true, m["is_default"])
	assert.NotContains(t, m, "generation")
}

func TestStructToMapEntryTier(t *testing.T) {
	e := pricing.NewPriceListEntry(id.New(), id.New(), decimal.NewFromInt(5), "EUR")
	e.Score = 40

	m := StructToMap(e)

	assert.Equal(t, 40, m["score"])
	price, ok := m["price"].(decimal.Decimal)
	assert.True(t, ok)
	assert.True(t, price.Equal(decimal.NewFromInt(5)))
}
