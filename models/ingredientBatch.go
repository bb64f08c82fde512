package models

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/mmdatafocus/batchtrace_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// IngredientBatch is a dated, costed lot. ManufacturerId nil means the lot is still held by the supplier.
// OnHandOz is set once at admission and afterwards only decreases through production.
type IngredientBatch struct {
	LotNumber      string          `gorm:"primaryKey;size:100" json:"lot_number"`
	IngredientId   int             `gorm:"not null;uniqueIndex:uniq_ingredient_supplier_batch,priority:1;index:idx_lot_eligible,priority:1" json:"ingredient_id"`
	SupplierId     int             `gorm:"not null;uniqueIndex:uniq_ingredient_supplier_batch,priority:2" json:"supplier_id"`
	BatchId        string          `gorm:"size:50;not null;uniqueIndex:uniq_ingredient_supplier_batch,priority:3" json:"batch_id"`
	ManufacturerId *string         `gorm:"size:20;index:idx_lot_eligible,priority:2" json:"manufacturer_id"`
	Quantity       decimal.Decimal `gorm:"type:decimal(24,6);not null" json:"quantity"`
	OnHandOz       decimal.Decimal `gorm:"type:decimal(24,6);not null" json:"on_hand_oz"`
	CostPerUnit    decimal.Decimal `gorm:"type:decimal(24,6);not null" json:"cost_per_unit"`
	ExpirationDate time.Time       `gorm:"type:date;not null;index:idx_lot_eligible,priority:3" json:"expiration_date"`
	ReceivedDate   time.Time       `gorm:"type:date;not null" json:"received_date"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

type NewIngredientBatch struct {
	IngredientId   int             `json:"ingredient_id" validate:"required,gt=0"`
	SupplierId     int             `json:"supplier_id" validate:"required,gt=0"`
	ManufacturerId *string         `json:"manufacturer_id"`
	BatchId        string          `json:"batch_id" validate:"required"`
	Quantity       decimal.Decimal `json:"quantity"`
	CostPerUnit    decimal.Decimal `json:"cost_per_unit"`
	ExpirationDate time.Time       `json:"expiration_date" validate:"required"`
}

// AdmissionRule is the minimum remaining shelf life an incoming lot must have.
type AdmissionRule struct {
	Today       time.Time
	MinimumDays int
}

func (r AdmissionRule) MinimumExpiration() time.Time {
	return utils.AddDays(r.Today, r.MinimumDays)
}

func (input *NewIngredientBatch) validate(tx *gorm.DB, rule AdmissionRule, loc *time.Location) error {
	input.BatchId = strings.TrimSpace(input.BatchId)
	if err := utils.ValidateStruct(input); err != nil {
		return NewInvalidInput(err.Error())
	}
	if !input.Quantity.IsPositive() {
		return NewInvalidInput("quantity must be greater than zero")
	}
	if input.CostPerUnit.IsNegative() {
		return NewInvalidInput("cost per unit must not be negative")
	}
	if !utils.FitsScale(input.Quantity, QuantityScale) || !utils.FitsScale(input.CostPerUnit, QuantityScale) {
		return NewInvalidInput(fmt.Sprintf("quantity and cost per unit allow at most %d decimal places", QuantityScale))
	}

	input.ExpirationDate = utils.DateOnly(input.ExpirationDate, loc)
	if minimum := rule.MinimumExpiration(); input.ExpirationDate.Before(minimum) {
		return NewShelfLifeViolation(input.BatchId, input.ExpirationDate, minimum)
	}

	ingredient, err := FetchIngredient(tx, input.IngredientId)
	if err != nil {
		return err
	}
	if ingredient.SupplierId != input.SupplierId {
		return NewInvalidInput(fmt.Sprintf("ingredient %d is not supplied by supplier %d", input.IngredientId, input.SupplierId))
	}
	if input.ManufacturerId != nil {
		if err := ensureExists[Manufacturer](tx, "id = ?", *input.ManufacturerId); err != nil {
			return fmt.Errorf("manufacturer %s: %w", *input.ManufacturerId, err)
		}
	}
	return nil
}

// ToModel validates the admission and returns the lot with its generated lot number.
func (input *NewIngredientBatch) ToModel(tx *gorm.DB, rule AdmissionRule, loc *time.Location) (*IngredientBatch, error) {
	if err := input.validate(tx, rule, loc); err != nil {
		return nil, err
	}
	lotNumber, err := IngredientLotNumber(input.IngredientId, input.SupplierId, input.BatchId)
	if err != nil {
		return nil, err
	}
	return &IngredientBatch{
		LotNumber:      lotNumber,
		IngredientId:   input.IngredientId,
		SupplierId:     input.SupplierId,
		BatchId:        input.BatchId,
		ManufacturerId: input.ManufacturerId,
		Quantity:       input.Quantity,
		OnHandOz:       input.Quantity,
		CostPerUnit:    input.CostPerUnit,
		ExpirationDate: input.ExpirationDate,
		ReceivedDate:   rule.Today,
	}, nil
}

func (b *IngredientBatch) IsExpired(today time.Time) bool {
	return !b.ExpirationDate.After(today)
}

func (b *IngredientBatch) HeldBy(manufacturerId string) bool {
	return b.ManufacturerId != nil && *b.ManufacturerId == manufacturerId
}

// EligibleLots lists lots with stock left that expire after today, earliest expiration first.
// A nil manufacturerId lists the supplier pool.
func EligibleLots(tx *gorm.DB, ingredientId int, manufacturerId *string, today time.Time) ([]IngredientBatch, error) {
	q := tx.Where("ingredient_id = ? AND on_hand_oz > 0 AND expiration_date > ?", ingredientId, today)
	if manufacturerId == nil {
		q = q.Where("manufacturer_id IS NULL")
	} else {
		q = q.Where("manufacturer_id = ?", *manufacturerId)
	}
	var lots []IngredientBatch
	err := q.Order("expiration_date ASC").Order("lot_number ASC").Find(&lots).Error
	return lots, err
}

// LockIngredientBatches reads the named lots FOR UPDATE in ascending lot number order.
// Lots that do not exist are absent from the result map.
func LockIngredientBatches(tx *gorm.DB, lotNumbers []string) (map[string]*IngredientBatch, error) {
	sorted := slices.Clone(lotNumbers)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	result := make(map[string]*IngredientBatch, len(sorted))
	for _, lotNumber := range sorted {
		var lot IngredientBatch
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("lot_number = ?", lotNumber).First(&lot).Error
		if err != nil {
			if utils.IsRecordNotFound(err) {
				continue
			}
			return nil, err
		}
		result[lotNumber] = &lot
	}
	return result, nil
}

// DecrementOnHand subtracts qty from the lot, guarded so the row never goes negative.
func DecrementOnHand(tx *gorm.DB, lotNumber string, qty decimal.Decimal) error {
	result := tx.Model(&IngredientBatch{}).
		Where("lot_number = ? AND on_hand_oz >= ?", lotNumber, qty).
		Update("on_hand_oz", gorm.Expr("on_hand_oz - ?", qty))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected != 1 {
		var lot IngredientBatch
		if err := tx.Where("lot_number = ?", lotNumber).First(&lot).Error; err != nil {
			return err
		}
		return NewInsufficientStock(lotNumber, qty, lot.OnHandOz)
	}
	return nil
}
