package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/mmdatafocus/batchtrace_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// PerUnitCostScale is the number of decimal places kept when dividing total cost by produced units.
const PerUnitCostScale = 12

// QuantityScale is the number of decimal places stored for quantities, pack sizes and unit costs.
// Inputs finer than this are rejected rather than rounded by the store.
const QuantityScale = 6

type ProductBatch struct {
	LotNumber        string             `gorm:"primaryKey;size:100" json:"lot_number"`
	ProductId        int                `gorm:"not null;uniqueIndex:uniq_product_manufacturer_batch,priority:1" json:"product_id"`
	ManufacturerId   string             `gorm:"size:20;not null;uniqueIndex:uniq_product_manufacturer_batch,priority:2" json:"manufacturer_id"`
	BatchId          string             `gorm:"size:50;not null;uniqueIndex:uniq_product_manufacturer_batch,priority:3" json:"batch_id"`
	RecipePlanId     int                `gorm:"not null;index" json:"recipe_plan_id"`
	QuantityProduced int                `gorm:"not null" json:"quantity_produced"`
	TotalCost        decimal.Decimal    `gorm:"type:decimal(32,12);not null" json:"total_cost"`
	PerUnitCost      decimal.Decimal    `gorm:"type:decimal(32,12);not null" json:"per_unit_cost"`
	ProductionDate   time.Time          `gorm:"type:date;not null;index" json:"production_date"`
	CorrelationId    string             `gorm:"size:64;index" json:"correlation_id"`
	Consumptions     []BatchConsumption `gorm:"foreignKey:ProductBatchLot;references:LotNumber" json:"consumptions"`
	CreatedAt        time.Time          `gorm:"autoCreateTime" json:"created_at"`
}

// BatchConsumption links a product lot to an ingredient lot it consumed.
// CostPerUnit is the ingredient lot's cost at the moment of consumption.
type BatchConsumption struct {
	ID                 int             `gorm:"primary_key" json:"id"`
	ProductBatchLot    string          `gorm:"size:100;not null;uniqueIndex:uniq_consumption_edge,priority:1" json:"product_batch_lot"`
	IngredientBatchLot string          `gorm:"size:100;not null;uniqueIndex:uniq_consumption_edge,priority:2;index" json:"ingredient_batch_lot"`
	IngredientId       int             `gorm:"not null;index" json:"ingredient_id"`
	QuantityConsumed   decimal.Decimal `gorm:"type:decimal(24,6);not null" json:"quantity_consumed"`
	CostPerUnit        decimal.Decimal `gorm:"type:decimal(24,6);not null" json:"cost_per_unit"`
}

func (c BatchConsumption) LineCost() decimal.Decimal {
	return c.QuantityConsumed.Mul(c.CostPerUnit)
}

type NewLotAllocation struct {
	IngredientId int             `json:"ingredient_id" validate:"required,gt=0"`
	LotNumber    string          `json:"lot_number" validate:"required"`
	Quantity     decimal.Decimal `json:"quantity"`
}

type NewProductionBatch struct {
	ProductId      int                `json:"product_id" validate:"required,gt=0"`
	ManufacturerId string             `json:"manufacturer_id" validate:"required"`
	BatchLabel     string             `json:"batch_label" validate:"required"`
	ProducedUnits  int                `json:"produced_units"`
	Allocations    []NewLotAllocation `json:"allocations"`
}

// validate checks the request shape only; recipe, stock and expiry checks need the transaction.
func (input *NewProductionBatch) validate() error {
	input.ManufacturerId = strings.TrimSpace(input.ManufacturerId)
	input.BatchLabel = strings.TrimSpace(input.BatchLabel)
	if err := utils.ValidateStruct(input); err != nil {
		return NewInvalidInput(err.Error())
	}
	for i := range input.Allocations {
		a := &input.Allocations[i]
		a.LotNumber = strings.TrimSpace(a.LotNumber)
		if err := utils.ValidateStruct(a); err != nil {
			return NewInvalidInput(fmt.Sprintf("allocation %d: %s", i, err.Error()))
		}
		if !a.Quantity.IsPositive() {
			return NewInvalidInput(fmt.Sprintf("allocation %d: quantity for lot %s must be greater than zero", i, a.LotNumber))
		}
		if !utils.FitsScale(a.Quantity, QuantityScale) {
			return NewInvalidInput(fmt.Sprintf("allocation %d: quantity for lot %s has more than %d decimal places", i, a.LotNumber, QuantityScale))
		}
	}
	return nil
}

func (input *NewProductionBatch) Validate() error {
	return input.validate()
}

// LotAllocation is the merged quantity drawn from one lot.
type LotAllocation struct {
	IngredientId int
	LotNumber    string
	Quantity     decimal.Decimal
}

// MergedAllocations sums pairs that name the same lot, keeping first-seen order.
// The same lot named under two different ingredients is a LotMismatch.
func (input *NewProductionBatch) MergedAllocations() ([]LotAllocation, error) {
	index := make(map[string]int)
	var merged []LotAllocation
	for _, a := range input.Allocations {
		if i, ok := index[a.LotNumber]; ok {
			if merged[i].IngredientId != a.IngredientId {
				return nil, NewLotMismatch(a.LotNumber, a.IngredientId, fmt.Sprintf("lot also allocated to ingredient %d", merged[i].IngredientId))
			}
			merged[i].Quantity = merged[i].Quantity.Add(a.Quantity)
			continue
		}
		index[a.LotNumber] = len(merged)
		merged = append(merged, LotAllocation{IngredientId: a.IngredientId, LotNumber: a.LotNumber, Quantity: a.Quantity})
	}
	return merged, nil
}

// SuppliedByIngredient totals the allocation per ingredient.
func SuppliedByIngredient(allocations []LotAllocation) map[int]decimal.Decimal {
	totals := make(map[int]decimal.Decimal)
	for _, a := range allocations {
		totals[a.IngredientId] = totals[a.IngredientId].Add(a.Quantity)
	}
	return totals
}

// CheckAllocation compares the allocation with the recipe requirement for producedUnits.
// Every line must be covered within tolerance and no ingredient outside the recipe may be allocated.
func CheckAllocation(plan *RecipePlan, producedUnits int, allocations []LotAllocation, tolerance decimal.Decimal) error {
	supplied := SuppliedByIngredient(allocations)
	inRecipe := make(map[int]bool, len(plan.Ingredients))
	for _, line := range plan.Ingredients {
		inRecipe[line.IngredientId] = true
		required := line.Requirement(producedUnits)
		if !utils.WithinTolerance(required, supplied[line.IngredientId], tolerance) {
			return NewAllocationMismatch(line.IngredientId, required, supplied[line.IngredientId])
		}
	}
	for _, ingredientId := range utils.SortedKeys(supplied) {
		if !inRecipe[ingredientId] {
			return NewAllocationMismatch(ingredientId, decimal.Zero, supplied[ingredientId])
		}
	}
	return nil
}

// BatchCost returns Σ(quantity × cost_per_unit) and that total divided by units.
func BatchCost(consumptions []BatchConsumption, producedUnits int) (total decimal.Decimal, perUnit decimal.Decimal) {
	for _, c := range consumptions {
		total = total.Add(c.LineCost())
	}
	perUnit = total.DivRound(decimal.NewFromInt(int64(producedUnits)), PerUnitCostScale)
	return total, perUnit
}

func FetchProductBatch(tx *gorm.DB, lotNumber string) (*ProductBatch, error) {
	var batch ProductBatch
	err := tx.Preload("Consumptions", func(db *gorm.DB) *gorm.DB {
		return db.Order("id ASC")
	}).Where("lot_number = ?", lotNumber).First(&batch).Error
	if err != nil {
		if utils.IsRecordNotFound(err) {
			return nil, fmt.Errorf("product batch %s: %w", lotNumber, utils.ErrorRecordNotFound)
		}
		return nil, err
	}
	return &batch, nil
}
