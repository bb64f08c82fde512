package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mmdatafocus/batchtrace_backend/config"
	"github.com/mmdatafocus/batchtrace_backend/models"
	"github.com/mmdatafocus/batchtrace_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const productionModule = "productionBatchWorkflow.go"

// RecordProductionBatch produces input.ProducedUnits of the product from the allocated ingredient lots.
// Recipe resolution, allocation checks, lot re-checks under row locks, on-hand decrements, consumption
// rows, cost and the product lot are one transaction; any failure leaves no trace.
func (s *Service) RecordProductionBatch(ctx context.Context, input models.NewProductionBatch) (*models.ProductBatch, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}
	if acting, ok := utils.GetManufacturerIdFromContext(ctx); ok && acting != input.ManufacturerId {
		return nil, models.NewInvalidInput(fmt.Sprintf("manufacturer %s cannot record batches for %s", acting, input.ManufacturerId))
	}
	lotNumber, err := models.ProductLotNumber(input.ProductId, input.ManufacturerId, input.BatchLabel)
	if err != nil {
		return nil, err
	}
	allocations, err := input.MergedAllocations()
	if err != nil {
		return nil, err
	}

	today := s.today()
	var batch *models.ProductBatch
	err = s.withProductionLock(ctx, input.ManufacturerId, func() error {
		return s.run(ctx, productionModule, "RecordProductionBatch", input, func(uow *UnitOfWork) error {
			var err error
			batch, err = recordProductionBatch(uow, input, lotNumber, allocations, today, s.Settings.AllocationTolerance)
			return err
		})
	})
	if err != nil {
		return nil, err
	}

	s.Logger.WithFields(logrus.Fields{
		"field":          "RecordProductionBatch",
		"lot_number":     batch.LotNumber,
		"product_id":     batch.ProductId,
		"units":          batch.QuantityProduced,
		"total_cost":     batch.TotalCost.String(),
		"per_unit_cost":  batch.PerUnitCost.String(),
		"correlation_id": batch.CorrelationId,
	}).Info("production batch recorded")
	return batch, nil
}

func recordProductionBatch(uow *UnitOfWork, input models.NewProductionBatch, lotNumber string, allocations []models.LotAllocation, today time.Time, tolerance decimal.Decimal) (*models.ProductBatch, error) {
	tx := uow.Tx

	product, err := models.FetchProduct(tx, input.ProductId)
	if err != nil {
		return nil, err
	}
	if product.ManufacturerId != input.ManufacturerId {
		return nil, models.NewInvalidInput(fmt.Sprintf("product %d belongs to manufacturer %s", product.ID, product.ManufacturerId))
	}
	plan, err := models.FetchActiveRecipe(tx, input.ProductId)
	if err != nil {
		return nil, err
	}
	if !product.IsValidBatchSize(input.ProducedUnits) {
		return nil, models.NewInvalidBatchSize(product.ID, input.ProducedUnits, product.StandardBatchSize)
	}
	if err := models.CheckAllocation(plan, input.ProducedUnits, allocations, tolerance); err != nil {
		return nil, err
	}
	if exists, err := productBatchExists(tx, lotNumber); err != nil {
		return nil, err
	} else if exists {
		return nil, models.NewDuplicateBatchLabel(lotNumber)
	}

	lotNumbers := make([]string, 0, len(allocations))
	for _, a := range allocations {
		lotNumbers = append(lotNumbers, a.LotNumber)
	}
	lots, err := models.LockIngredientBatches(tx, lotNumbers)
	if err != nil {
		return nil, err
	}

	consumptions := make([]models.BatchConsumption, 0, len(allocations))
	for _, a := range allocations {
		lot, ok := lots[a.LotNumber]
		if !ok {
			return nil, models.NewLotMismatch(a.LotNumber, a.IngredientId, "lot does not exist")
		}
		if lot.IngredientId != a.IngredientId {
			return nil, models.NewLotMismatch(a.LotNumber, a.IngredientId, fmt.Sprintf("lot holds ingredient %d", lot.IngredientId))
		}
		if !lot.HeldBy(input.ManufacturerId) {
			return nil, models.NewLotMismatch(a.LotNumber, a.IngredientId, fmt.Sprintf("lot is not held by manufacturer %s", input.ManufacturerId))
		}
		if lot.IsExpired(today) {
			return nil, models.NewExpiredLot(lot.LotNumber, lot.ExpirationDate)
		}
		if lot.OnHandOz.LessThan(a.Quantity) {
			return nil, models.NewInsufficientStock(lot.LotNumber, a.Quantity, lot.OnHandOz)
		}
		consumptions = append(consumptions, models.BatchConsumption{
			ProductBatchLot:    lotNumber,
			IngredientBatchLot: lot.LotNumber,
			IngredientId:       lot.IngredientId,
			QuantityConsumed:   a.Quantity,
			CostPerUnit:        lot.CostPerUnit,
		})
	}

	for _, c := range consumptions {
		if err := models.DecrementOnHand(tx, c.IngredientBatchLot, c.QuantityConsumed); err != nil {
			return nil, err
		}
	}

	totalCost, perUnitCost := models.BatchCost(consumptions, input.ProducedUnits)
	batch := &models.ProductBatch{
		LotNumber:        lotNumber,
		ProductId:        product.ID,
		ManufacturerId:   input.ManufacturerId,
		BatchId:          input.BatchLabel,
		RecipePlanId:     plan.ID,
		QuantityProduced: input.ProducedUnits,
		TotalCost:        totalCost,
		PerUnitCost:      perUnitCost,
		ProductionDate:   today,
		CorrelationId:    uow.CorrelationId,
	}
	if err := tx.Omit("Consumptions").Create(batch).Error; err != nil {
		if utils.IsDuplicateKeyErr(err) {
			return nil, models.NewDuplicateBatchLabel(lotNumber)
		}
		return nil, err
	}
	if len(consumptions) > 0 {
		if err := tx.Create(&consumptions).Error; err != nil {
			return nil, err
		}
	}
	batch.Consumptions = consumptions

	if err := models.PublishEvent(uow.Ctx, tx, models.EventProductionBatchCreated, models.AggregateProductBatch, batch.LotNumber, today, batch); err != nil {
		return nil, err
	}
	return batch, nil
}

func productBatchExists(tx *gorm.DB, lotNumber string) (bool, error) {
	var count int64
	if err := tx.Model(&models.ProductBatch{}).Where("lot_number = ?", lotNumber).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// ConsumptionTrace is one traceability edge of a product lot.
type ConsumptionTrace struct {
	IngredientBatchLot string                `json:"ingredient_batch_lot"`
	IngredientId       int                   `json:"ingredient_id"`
	IngredientName     string                `json:"ingredient_name"`
	IngredientType     models.IngredientType `json:"ingredient_type"`
	SupplierId         int                   `json:"supplier_id"`
	QuantityConsumed   decimal.Decimal       `json:"quantity_consumed"`
	CostPerUnit        decimal.Decimal       `json:"cost_per_unit"`
	LineCost           decimal.Decimal       `json:"line_cost"`
	ExpirationDate     time.Time             `json:"expiration_date"`
	// Materials of a compound lot under the formulation active on the production date.
	// Listed for display; producing never deducts them.
	Materials []models.FormulationMaterial `json:"materials,omitempty"`
}

type ProductBatchTrace struct {
	Batch        models.ProductBatch `json:"batch"`
	Consumptions []ConsumptionTrace  `json:"consumptions"`
}

// TraceProductBatch returns the product lot and every ingredient lot it consumed.
func (s *Service) TraceProductBatch(ctx context.Context, lotNumber string) (*ProductBatchTrace, error) {
	db := s.DB.WithContext(ctx)
	batch, err := models.FetchProductBatch(db, lotNumber)
	if err != nil {
		return nil, err
	}
	sourceLots := make([]string, 0, len(batch.Consumptions))
	for _, c := range batch.Consumptions {
		sourceLots = append(sourceLots, c.IngredientBatchLot)
	}
	var lots []models.IngredientBatch
	if len(sourceLots) > 0 {
		if err := db.Where("lot_number IN ?", sourceLots).Find(&lots).Error; err != nil {
			config.LogError(s.Logger, productionModule, "TraceProductBatch", "FindSourceLots", sourceLots, err)
			return nil, err
		}
	}
	byLot := make(map[string]models.IngredientBatch, len(lots))
	for _, lot := range lots {
		byLot[lot.LotNumber] = lot
	}

	ingredientIds := make([]int, 0, len(batch.Consumptions))
	for _, c := range batch.Consumptions {
		ingredientIds = append(ingredientIds, c.IngredientId)
	}
	ingredientIds = utils.UniqueSlice(ingredientIds)
	var ingredients []models.Ingredient
	if len(ingredientIds) > 0 {
		if err := db.Where("id IN ?", ingredientIds).Find(&ingredients).Error; err != nil {
			config.LogError(s.Logger, productionModule, "TraceProductBatch", "FindIngredients", ingredientIds, err)
			return nil, err
		}
	}
	byIngredient := make(map[int]models.Ingredient, len(ingredients))
	for _, ingredient := range ingredients {
		byIngredient[ingredient.ID] = ingredient
	}

	trace := &ProductBatchTrace{Batch: *batch}
	for _, c := range batch.Consumptions {
		lot := byLot[c.IngredientBatchLot]
		ingredient := byIngredient[c.IngredientId]
		edge := ConsumptionTrace{
			IngredientBatchLot: c.IngredientBatchLot,
			IngredientId:       c.IngredientId,
			IngredientName:     ingredient.Name,
			IngredientType:     ingredient.Type,
			SupplierId:         lot.SupplierId,
			QuantityConsumed:   c.QuantityConsumed,
			CostPerUnit:        c.CostPerUnit,
			LineCost:           c.LineCost(),
			ExpirationDate:     lot.ExpirationDate,
		}
		if ingredient.Type == models.IngredientTypeCompound {
			formulation, err := models.ActiveFormulation(db, c.IngredientId, batch.ProductionDate)
			switch {
			case err == nil:
				edge.Materials = formulation.Materials
			case !errors.Is(err, models.ErrNoActiveFormulation):
				config.LogError(s.Logger, productionModule, "TraceProductBatch", "ActiveFormulation", c.IngredientId, err)
				return nil, err
			}
		}
		trace.Consumptions = append(trace.Consumptions, edge)
	}
	return trace, nil
}
