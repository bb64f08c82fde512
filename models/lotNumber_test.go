package models_test

import (
	"math"
	"strings"
	"testing"

	"github.com/mmdatafocus/batchtrace_backend/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestIngredientLotNumber(t *testing.T) {
	lot, err := models.IngredientLotNumber(1, 20, " B0901 ")
	require.NoError(t, err)
	assert.Equal(t, "1-20-B0901", lot)

	// Labels may contain '-'; the numeric prefix keeps the lot number unambiguous.
	lot, err = models.IngredientLotNumber(12, 3, "2024-01-A")
	require.NoError(t, err)
	assert.Equal(t, "12-3-2024-01-A", lot)
}

func TestProductLotNumber(t *testing.T) {
	lot, err := models.ProductLotNumber(100, "MFG001", "B0901")
	require.NoError(t, err)
	assert.Equal(t, "100-MFG001-B0901", lot)
}

func TestLotNumberRejectsBadParts(t *testing.T) {
	cases := []struct {
		name string
		fn   func() (string, error)
	}{
		{"empty label", func() (string, error) { return models.IngredientLotNumber(1, 20, "  ") }},
		{"label with space", func() (string, error) { return models.IngredientLotNumber(1, 20, "B 1") }},
		{"label too long", func() (string, error) { return models.IngredientLotNumber(1, 20, strings.Repeat("A", 51)) }},
		{"zero ingredient", func() (string, error) { return models.IngredientLotNumber(0, 20, "B1") }},
		{"zero supplier", func() (string, error) { return models.IngredientLotNumber(1, 0, "B1") }},
		{"zero product", func() (string, error) { return models.ProductLotNumber(0, "MFG001", "B1") }},
		{"manufacturer with dash", func() (string, error) { return models.ProductLotNumber(1, "MFG-1", "B1") }},
		{"empty manufacturer", func() (string, error) { return models.ProductLotNumber(1, "", "B1") }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.fn()
			require.ErrorIs(t, err, models.ErrInvalidInput)
		})
	}
}

func TestWidestLotNumbersFitColumns(t *testing.T) {
	label := strings.Repeat("L", 50)
	ingredientLot, err := models.IngredientLotNumber(math.MaxInt, math.MaxInt, label)
	require.NoError(t, err)
	productLot, err := models.ProductLotNumber(math.MaxInt, strings.Repeat("M", 20), label)
	require.NoError(t, err)
	assert.Len(t, productLot, 91)
	assert.LessOrEqual(t, len(ingredientLot), models.MaxLotNumberLength)

	db := openTestDB(t)
	columns := []struct {
		model interface{}
		field string
	}{
		{&models.IngredientBatch{}, "LotNumber"},
		{&models.ProductBatch{}, "LotNumber"},
		{&models.BatchConsumption{}, "ProductBatchLot"},
		{&models.BatchConsumption{}, "IngredientBatchLot"},
		{&models.OutboxRecord{}, "AggregateId"},
	}
	for _, c := range columns {
		stmt := &gorm.Statement{DB: db}
		require.NoError(t, stmt.Parse(c.model))
		field := stmt.Schema.LookUpField(c.field)
		require.NotNil(t, field, c.field)
		assert.GreaterOrEqual(t, field.Size, models.MaxLotNumberLength, "%s.%s", stmt.Schema.Name, c.field)
	}
}
