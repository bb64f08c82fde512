package workflow

import (
	"sync"
	"testing"
	"time"

	"github.com/mmdatafocus/batchtrace_backend/models"
	"github.com/mmdatafocus/batchtrace_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func productionRequest(label string, units int, allocations ...models.NewLotAllocation) models.NewProductionBatch {
	return models.NewProductionBatch{
		ProductId:      testProduct,
		ManufacturerId: testManufacturer,
		BatchLabel:     label,
		ProducedUnits:  units,
		Allocations:    allocations,
	}
}

func alloc(ingredientId int, lotNumber string, qty string) models.NewLotAllocation {
	return models.NewLotAllocation{IngredientId: ingredientId, LotNumber: lotNumber, Quantity: dec(qty)}
}

func TestRecordProductionBatch(t *testing.T) {
	f := newFixture(t)
	plan := f.activeRecipe(t)
	beefA := f.admit(t, f.beef.ID, "BA", "300", "0.5", "2024-05-01")
	beefB := f.admit(t, f.beef.ID, "BB", "1000", "0.75", "2024-06-01")
	salt := f.admit(t, f.seasoning.ID, "S1", "100", "1.25", "2024-05-01")

	// 200 units: 500 oz beef, 50 oz seasoning.
	batch, err := f.svc.RecordProductionBatch(f.ctx, productionRequest("B0901", 200,
		alloc(f.beef.ID, beefA.LotNumber, "300"),
		alloc(f.beef.ID, beefB.LotNumber, "200"),
		alloc(f.seasoning.ID, salt.LotNumber, "50"),
	))
	require.NoError(t, err)

	assert.Equal(t, "100-MFG001-B0901", batch.LotNumber)
	assert.Equal(t, plan.ID, batch.RecipePlanId)
	assert.Equal(t, 200, batch.QuantityProduced)
	assert.True(t, date("2024-01-01").Equal(batch.ProductionDate))
	// 300*0.5 + 200*0.75 + 50*1.25
	requireDecimal(t, "362.5", batch.TotalCost)
	requireDecimal(t, "1.8125", batch.PerUnitCost)
	require.Len(t, batch.Consumptions, 3)

	requireDecimal(t, "0", f.lot(t, beefA.LotNumber).OnHandOz)
	requireDecimal(t, "800", f.lot(t, beefB.LotNumber).OnHandOz)
	requireDecimal(t, "50", f.lot(t, salt.LotNumber).OnHandOz)

	stored, err := models.FetchProductBatch(f.svc.DB, batch.LotNumber)
	require.NoError(t, err)
	requireDecimal(t, "362.5", stored.TotalCost)

	// Stored cost equals the consumption edges priced at the source lots' cost.
	total := decimal.Zero
	consumedByIngredient := map[int]decimal.Decimal{}
	for _, c := range stored.Consumptions {
		source := f.lot(t, c.IngredientBatchLot)
		requireDecimal(t, source.CostPerUnit.String(), c.CostPerUnit)
		total = total.Add(c.QuantityConsumed.Mul(source.CostPerUnit))
		consumedByIngredient[c.IngredientId] = consumedByIngredient[c.IngredientId].Add(c.QuantityConsumed)
	}
	requireDecimal(t, stored.TotalCost.String(), total)
	requireDecimal(t, stored.PerUnitCost.String(), total.DivRound(decimal.NewFromInt(200), models.PerUnitCostScale))
	for _, line := range plan.Ingredients {
		requireDecimal(t, line.Requirement(200).String(), consumedByIngredient[line.IngredientId])
	}

	var events int64
	require.NoError(t, f.svc.DB.Model(&models.OutboxRecord{}).Where("event_type = ?", models.EventProductionBatchCreated).Count(&events).Error)
	assert.EqualValues(t, 1, events)
}

func TestRecordProductionBatchAllocationMismatch(t *testing.T) {
	f := newFixture(t)
	f.activeRecipe(t)
	beef := f.admit(t, f.beef.ID, "B1", "1000", "0.5", "2024-05-01")
	salt := f.admit(t, f.seasoning.ID, "S1", "100", "1", "2024-05-01")

	_, err := f.svc.RecordProductionBatch(f.ctx, productionRequest("B0902", 200,
		alloc(f.beef.ID, beef.LotNumber, "480"),
		alloc(f.seasoning.ID, salt.LotNumber, "50"),
	))
	require.ErrorIs(t, err, models.ErrAllocationMismatch)
	var invErr *models.InventoryError
	require.ErrorAs(t, err, &invErr)
	assert.Equal(t, f.beef.ID, invErr.IngredientId)
	requireDecimal(t, "500", invErr.Required)
	requireDecimal(t, "480", invErr.Actual)

	requireDecimal(t, "1000", f.lot(t, beef.LotNumber).OnHandOz)
	requireDecimal(t, "100", f.lot(t, salt.LotNumber).OnHandOz)
	assert.EqualValues(t, 0, f.count(t, &models.ProductBatch{}))
	assert.EqualValues(t, 0, f.count(t, &models.BatchConsumption{}))

	// An ingredient that is not in the recipe is also a mismatch.
	extra := f.admit(t, f.beef.ID, "B2", "10", "1", "2024-05-01")
	_, err = f.svc.RecordProductionBatch(f.ctx, productionRequest("B0903", 200,
		alloc(f.beef.ID, beef.LotNumber, "500"),
		alloc(f.seasoning.ID, salt.LotNumber, "50"),
		alloc(99, extra.LotNumber, "10"),
	))
	require.ErrorIs(t, err, models.ErrAllocationMismatch)
}

func TestRecordProductionBatchRejectsSubScaleQuantities(t *testing.T) {
	f := newFixture(t)
	f.activeRecipe(t)
	beefA := f.admit(t, f.beef.ID, "BA", "1000", "0.5", "2024-05-01")
	beefB := f.admit(t, f.beef.ID, "BB", "1000", "0.75", "2024-06-01")
	salt := f.admit(t, f.seasoning.ID, "S1", "100", "1", "2024-05-01")

	// The two beef lines sum to exactly 500 but the store keeps six decimal places.
	_, err := f.svc.RecordProductionBatch(f.ctx, productionRequest("B0904", 200,
		alloc(f.beef.ID, beefA.LotNumber, "499.9999996"),
		alloc(f.beef.ID, beefB.LotNumber, "0.0000004"),
		alloc(f.seasoning.ID, salt.LotNumber, "50"),
	))
	require.ErrorIs(t, err, models.ErrInvalidInput)

	requireDecimal(t, "1000", f.lot(t, beefA.LotNumber).OnHandOz)
	requireDecimal(t, "1000", f.lot(t, beefB.LotNumber).OnHandOz)
	assert.EqualValues(t, 0, f.count(t, &models.ProductBatch{}))
	assert.EqualValues(t, 0, f.count(t, &models.BatchConsumption{}))
}

func TestRecordProductionBatchBatchSize(t *testing.T) {
	f := newFixture(t)
	f.activeRecipe(t)
	beef := f.admit(t, f.beef.ID, "B1", "1000", "0.5", "2024-05-01")
	salt := f.admit(t, f.seasoning.ID, "S1", "100", "1", "2024-05-01")

	_, err := f.svc.RecordProductionBatch(f.ctx, productionRequest("B150", 150,
		alloc(f.beef.ID, beef.LotNumber, "375"),
		alloc(f.seasoning.ID, salt.LotNumber, "37.5"),
	))
	require.ErrorIs(t, err, models.ErrInvalidBatchSize)

	_, err = f.svc.RecordProductionBatch(f.ctx, productionRequest("B0", 0))
	require.ErrorIs(t, err, models.ErrInvalidBatchSize)

	batch, err := f.svc.RecordProductionBatch(f.ctx, productionRequest("B200", 200,
		alloc(f.beef.ID, beef.LotNumber, "500"),
		alloc(f.seasoning.ID, salt.LotNumber, "50"),
	))
	require.NoError(t, err)
	assert.Equal(t, 200, batch.QuantityProduced)
}

func TestRecordProductionBatchNoActiveRecipe(t *testing.T) {
	f := newFixture(t)
	beef := f.admit(t, f.beef.ID, "B1", "1000", "0.5", "2024-05-01")
	_, err := f.svc.RecordProductionBatch(f.ctx, productionRequest("B1", 100, alloc(f.beef.ID, beef.LotNumber, "250")))
	require.ErrorIs(t, err, models.ErrNoActiveRecipe)
}

func TestRecordProductionBatchConcurrentConsumption(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CreateRecipePlan(f.ctx, models.NewRecipePlan{
		ProductId: testProduct,
		Lines:     []models.NewRecipeLine{{IngredientId: f.beef.ID, QuantityRequired: dec("3")}},
		Activate:  true,
	})
	require.NoError(t, err)
	lot := f.admit(t, f.beef.ID, "SHARED", "1000", "0.5", "2024-05-01")

	labels := []string{"RUN-A", "RUN-B"}
	errs := make([]error, len(labels))
	var wg sync.WaitGroup
	for i, label := range labels {
		wg.Add(1)
		go func(i int, label string) {
			defer wg.Done()
			_, errs[i] = f.svc.RecordProductionBatch(f.ctx, productionRequest(label, 200, alloc(f.beef.ID, lot.LotNumber, "600")))
		}(i, label)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		require.ErrorIs(t, err, models.ErrInsufficientStock)
		var invErr *models.InventoryError
		require.ErrorAs(t, err, &invErr)
		assert.Equal(t, lot.LotNumber, invErr.LotNumber)
		requireDecimal(t, "600", invErr.Required)
		requireDecimal(t, "400", invErr.Actual)
	}
	assert.Equal(t, 1, succeeded)
	requireDecimal(t, "400", f.lot(t, lot.LotNumber).OnHandOz)
	assert.EqualValues(t, 1, f.count(t, &models.ProductBatch{}))
	assert.EqualValues(t, 1, f.count(t, &models.BatchConsumption{}))
}

func TestRecordProductionBatchLotChecks(t *testing.T) {
	f := newFixture(t)
	f.activeRecipe(t)
	beef := f.admit(t, f.beef.ID, "B1", "1000", "0.5", "2024-04-05")
	salt := f.admit(t, f.seasoning.ID, "S1", "100", "1", "2024-05-01")

	t.Run("insufficient stock", func(t *testing.T) {
		short := f.admit(t, f.seasoning.ID, "S-SHORT", "20", "1", "2024-05-01")
		_, err := f.svc.RecordProductionBatch(f.ctx, productionRequest("X1", 200,
			alloc(f.beef.ID, beef.LotNumber, "500"),
			alloc(f.seasoning.ID, short.LotNumber, "50"),
		))
		require.ErrorIs(t, err, models.ErrInsufficientStock)
		requireDecimal(t, "1000", f.lot(t, beef.LotNumber).OnHandOz)
	})

	t.Run("lot of another ingredient", func(t *testing.T) {
		_, err := f.svc.RecordProductionBatch(f.ctx, productionRequest("X2", 200,
			alloc(f.beef.ID, beef.LotNumber, "450"),
			alloc(f.beef.ID, salt.LotNumber, "50"),
			alloc(f.seasoning.ID, salt.LotNumber, "50"),
		))
		require.ErrorIs(t, err, models.ErrLotMismatch)
	})

	t.Run("unknown lot", func(t *testing.T) {
		_, err := f.svc.RecordProductionBatch(f.ctx, productionRequest("X3", 200,
			alloc(f.beef.ID, "1-20-NOPE", "500"),
			alloc(f.seasoning.ID, salt.LotNumber, "50"),
		))
		require.ErrorIs(t, err, models.ErrLotMismatch)
	})

	t.Run("supplier pool lot", func(t *testing.T) {
		pool, err := f.svc.AdmitIngredientBatch(f.ctx, models.NewIngredientBatch{
			IngredientId:   f.beef.ID,
			SupplierId:     testSupplier,
			BatchId:        "POOL",
			Quantity:       dec("500"),
			CostPerUnit:    dec("1"),
			ExpirationDate: date("2024-05-01"),
		})
		require.NoError(t, err)
		_, err = f.svc.RecordProductionBatch(f.ctx, productionRequest("X4", 200,
			alloc(f.beef.ID, pool.LotNumber, "500"),
			alloc(f.seasoning.ID, salt.LotNumber, "50"),
		))
		require.ErrorIs(t, err, models.ErrLotMismatch)
	})

	t.Run("expired lot", func(t *testing.T) {
		f.svc.Now = func() time.Time { return time.Date(2024, 4, 5, 8, 0, 0, 0, time.UTC) }
		defer func() { f.svc.Now = func() time.Time { return fixedNow } }()
		_, err := f.svc.RecordProductionBatch(f.ctx, productionRequest("X5", 200,
			alloc(f.beef.ID, beef.LotNumber, "500"),
			alloc(f.seasoning.ID, salt.LotNumber, "50"),
		))
		require.ErrorIs(t, err, models.ErrExpiredLot)
		var invErr *models.InventoryError
		require.ErrorAs(t, err, &invErr)
		assert.Equal(t, beef.LotNumber, invErr.LotNumber)
	})

	t.Run("other manufacturer acting", func(t *testing.T) {
		ctx := utils.SetManufacturerIdInContext(f.ctx, "MFG002")
		_, err := f.svc.RecordProductionBatch(ctx, productionRequest("X6", 200,
			alloc(f.beef.ID, beef.LotNumber, "500"),
			alloc(f.seasoning.ID, salt.LotNumber, "50"),
		))
		require.ErrorIs(t, err, models.ErrInvalidInput)
	})

	assert.EqualValues(t, 0, f.count(t, &models.ProductBatch{}))
	assert.EqualValues(t, 0, f.count(t, &models.BatchConsumption{}))
	requireDecimal(t, "100", f.lot(t, salt.LotNumber).OnHandOz)
}

func TestRecordProductionBatchDuplicateLabel(t *testing.T) {
	f := newFixture(t)
	f.activeRecipe(t)
	beef := f.admit(t, f.beef.ID, "B1", "2000", "0.5", "2024-05-01")
	salt := f.admit(t, f.seasoning.ID, "S1", "200", "1", "2024-05-01")

	req := productionRequest("B0901", 200,
		alloc(f.beef.ID, beef.LotNumber, "500"),
		alloc(f.seasoning.ID, salt.LotNumber, "50"),
	)
	_, err := f.svc.RecordProductionBatch(f.ctx, req)
	require.NoError(t, err)
	_, err = f.svc.RecordProductionBatch(f.ctx, req)
	require.ErrorIs(t, err, models.ErrDuplicateBatchLabel)

	requireDecimal(t, "1500", f.lot(t, beef.LotNumber).OnHandOz)
	requireDecimal(t, "150", f.lot(t, salt.LotNumber).OnHandOz)
}

func TestRecordProductionBatchMergesRepeatedLots(t *testing.T) {
	f := newFixture(t)
	f.activeRecipe(t)
	beef := f.admit(t, f.beef.ID, "B1", "1000", "0.5", "2024-05-01")
	salt := f.admit(t, f.seasoning.ID, "S1", "100", "1", "2024-05-01")

	batch, err := f.svc.RecordProductionBatch(f.ctx, productionRequest("MERGED", 200,
		alloc(f.beef.ID, beef.LotNumber, "250"),
		alloc(f.seasoning.ID, salt.LotNumber, "50"),
		alloc(f.beef.ID, beef.LotNumber, "250"),
	))
	require.NoError(t, err)
	require.Len(t, batch.Consumptions, 2)
	requireDecimal(t, "500", batch.Consumptions[0].QuantityConsumed)
	requireDecimal(t, "500", f.lot(t, beef.LotNumber).OnHandOz)
}

func TestListEligibleLotsForRecipe(t *testing.T) {
	f := newFixture(t)
	f.activeRecipe(t)
	f.admit(t, f.beef.ID, "B2", "300", "0.5", "2024-06-01")
	first := f.admit(t, f.beef.ID, "B1", "300", "0.5", "2024-05-01")

	lines, err := f.svc.ListEligibleLotsForRecipe(f.ctx, testProduct, testManufacturer, 200)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, f.beef.ID, lines[0].IngredientId)
	requireDecimal(t, "500", lines[0].Required)
	requireDecimal(t, "600", lines[0].Available)
	assert.Equal(t, first.LotNumber, lines[0].Lots[0].LotNumber)
	assert.Empty(t, lines[1].Lots)

	_, err = f.svc.ListEligibleLotsForRecipe(f.ctx, testProduct, testManufacturer, 150)
	require.ErrorIs(t, err, models.ErrInvalidBatchSize)
}

func TestTraceProductBatch(t *testing.T) {
	f := newFixture(t)
	f.activeRecipe(t)
	beef := f.admit(t, f.beef.ID, "B1", "1000", "0.5", "2024-05-01")
	salt := f.admit(t, f.seasoning.ID, "S1", "100", "1.25", "2024-06-01")
	batch, err := f.svc.RecordProductionBatch(f.ctx, productionRequest("T1", 100,
		alloc(f.beef.ID, beef.LotNumber, "250"),
		alloc(f.seasoning.ID, salt.LotNumber, "25"),
	))
	require.NoError(t, err)

	trace, err := f.svc.TraceProductBatch(f.ctx, batch.LotNumber)
	require.NoError(t, err)
	require.Len(t, trace.Consumptions, 2)
	assert.Equal(t, beef.LotNumber, trace.Consumptions[0].IngredientBatchLot)
	assert.Equal(t, testSupplier, trace.Consumptions[0].SupplierId)
	requireDecimal(t, "125", trace.Consumptions[0].LineCost)
	requireDecimal(t, "31.25", trace.Consumptions[1].LineCost)
	assert.True(t, date("2024-06-01").Equal(trace.Consumptions[1].ExpirationDate))

	_, err = f.svc.TraceProductBatch(f.ctx, "100-MFG001-MISSING")
	require.True(t, utils.IsRecordNotFound(err))
}

func TestTraceProductBatchListsCompoundMaterials(t *testing.T) {
	f := newFixture(t)
	sauce, err := f.svc.DefineIngredient(f.ctx, models.NewIngredient{
		SupplierId: testSupplier,
		Name:       "Steak Sauce",
		Type:       models.IngredientTypeCompound,
		Formulation: models.NewFormulation{
			PackSize:           dec("16"),
			UnitPrice:          dec("12"),
			EffectiveStartDate: date("2023-06-01"),
			Materials: []models.NewFormulationMaterial{
				{MaterialIngredientId: f.seasoning.ID, QuantityRequired: dec("0.5")},
				{MaterialIngredientId: f.beef.ID, QuantityRequired: dec("0.25")},
			},
		},
	})
	require.NoError(t, err)
	_, err = f.svc.CreateRecipePlan(f.ctx, models.NewRecipePlan{
		ProductId: testProduct,
		Lines: []models.NewRecipeLine{
			{IngredientId: f.beef.ID, QuantityRequired: dec("2.5")},
			{IngredientId: sauce.ID, QuantityRequired: dec("0.5")},
		},
		Activate: true,
	})
	require.NoError(t, err)

	beef := f.admit(t, f.beef.ID, "B1", "1000", "0.5", "2024-05-01")
	sauceLot := f.admit(t, sauce.ID, "SC1", "100", "2", "2024-05-01")
	batch, err := f.svc.RecordProductionBatch(f.ctx, productionRequest("T2", 100,
		alloc(f.beef.ID, beef.LotNumber, "250"),
		alloc(sauce.ID, sauceLot.LotNumber, "50"),
	))
	require.NoError(t, err)

	trace, err := f.svc.TraceProductBatch(f.ctx, batch.LotNumber)
	require.NoError(t, err)
	require.Len(t, trace.Consumptions, 2)

	atomic := trace.Consumptions[0]
	assert.Equal(t, beef.LotNumber, atomic.IngredientBatchLot)
	assert.Equal(t, models.IngredientTypeAtomic, atomic.IngredientType)
	assert.Empty(t, atomic.Materials)

	compound := trace.Consumptions[1]
	assert.Equal(t, sauceLot.LotNumber, compound.IngredientBatchLot)
	assert.Equal(t, "Steak Sauce", compound.IngredientName)
	assert.Equal(t, models.IngredientTypeCompound, compound.IngredientType)
	require.Len(t, compound.Materials, 2)
	assert.Equal(t, f.beef.ID, compound.Materials[0].MaterialIngredientId)
	requireDecimal(t, "0.25", compound.Materials[0].QuantityRequired)

	// Materials are listed, not consumed.
	requireDecimal(t, "750", f.lot(t, beef.LotNumber).OnHandOz)
	requireDecimal(t, "50", f.lot(t, sauceLot.LotNumber).OnHandOz)
}
