package models

import (
	"fmt"
	"time"

	"github.com/mmdatafocus/batchtrace_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type RecipePlan struct {
	ID            int                `gorm:"primary_key" json:"id"`
	ProductId     int                `gorm:"not null;uniqueIndex:uniq_plan_version,priority:1;index:idx_plan_active,priority:1" json:"product_id"`
	VersionNumber int                `gorm:"not null;uniqueIndex:uniq_plan_version,priority:2" json:"version_number"`
	CreatedDate   time.Time          `gorm:"type:date;not null" json:"created_date"`
	IsActive      bool               `gorm:"not null;default:false;index:idx_plan_active,priority:2" json:"is_active"`
	Ingredients   []RecipeIngredient `gorm:"foreignKey:PlanId" json:"ingredients"`
	CreatedAt     time.Time          `gorm:"autoCreateTime" json:"created_at"`
}

type RecipeIngredient struct {
	ID               int             `gorm:"primary_key" json:"id"`
	PlanId           int             `gorm:"not null;uniqueIndex:uniq_plan_ingredient,priority:1" json:"plan_id"`
	IngredientId     int             `gorm:"not null;uniqueIndex:uniq_plan_ingredient,priority:2;index" json:"ingredient_id"`
	QuantityRequired decimal.Decimal `gorm:"type:decimal(24,6);not null" json:"quantity_required"`
}

type NewRecipeLine struct {
	IngredientId     int             `json:"ingredient_id" validate:"required,gt=0"`
	QuantityRequired decimal.Decimal `json:"quantity_required"`
}

type NewRecipePlan struct {
	ProductId int             `json:"product_id" validate:"required,gt=0"`
	Lines     []NewRecipeLine `json:"lines"`
	Activate  bool            `json:"activate"`
}

func (input *NewRecipePlan) validate() error {
	if err := utils.ValidateStruct(input); err != nil {
		return NewInvalidInput(err.Error())
	}
	if len(input.Lines) == 0 {
		return NewEmptyRecipe(input.ProductId)
	}
	seen := make(map[int]bool, len(input.Lines))
	for _, line := range input.Lines {
		if line.IngredientId <= 0 {
			return NewInvalidInput(fmt.Sprintf("recipe line ingredient id %d must be positive", line.IngredientId))
		}
		if seen[line.IngredientId] {
			return NewDuplicateIngredient(input.ProductId, line.IngredientId)
		}
		seen[line.IngredientId] = true
		if !line.QuantityRequired.IsPositive() {
			return NewInvalidInput(fmt.Sprintf("quantity required for ingredient %d must be greater than zero", line.IngredientId))
		}
		if !utils.FitsScale(line.QuantityRequired, QuantityScale) {
			return NewInvalidInput(fmt.Sprintf("quantity required for ingredient %d has more than %d decimal places", line.IngredientId, QuantityScale))
		}
	}
	return nil
}

// ToModel validates lines against stored ingredients and builds an inactive plan.
// Version and activation are assigned by the caller under the product lock.
func (input *NewRecipePlan) ToModel(tx *gorm.DB, createdDate time.Time) (*RecipePlan, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}
	ingredientIds := make([]int, 0, len(input.Lines))
	for _, line := range input.Lines {
		ingredientIds = append(ingredientIds, line.IngredientId)
	}
	var count int64
	if err := tx.Model(&Ingredient{}).Where("id IN ?", ingredientIds).Count(&count).Error; err != nil {
		return nil, err
	}
	if int(count) != len(ingredientIds) {
		return nil, fmt.Errorf("recipe ingredients %v: %w", ingredientIds, utils.ErrorRecordNotFound)
	}

	plan := &RecipePlan{
		ProductId:   input.ProductId,
		CreatedDate: createdDate,
	}
	for _, line := range input.Lines {
		plan.Ingredients = append(plan.Ingredients, RecipeIngredient{
			IngredientId:     line.IngredientId,
			QuantityRequired: line.QuantityRequired,
		})
	}
	return plan, nil
}

// NextRecipeVersion returns 1 + the highest version recorded for the product.
// Call it while holding the product row lock.
func NextRecipeVersion(tx *gorm.DB, productId int) (int, error) {
	var maxVersion int
	if err := tx.Model(&RecipePlan{}).
		Where("product_id = ?", productId).
		Select("COALESCE(MAX(version_number), 0)").
		Scan(&maxVersion).Error; err != nil {
		return 0, err
	}
	return maxVersion + 1, nil
}

// ActivateRecipePlan clears is_active on every plan of the product and then sets it on planId.
func ActivateRecipePlan(tx *gorm.DB, productId int, planId int) error {
	if err := tx.Model(&RecipePlan{}).
		Where("product_id = ? AND id <> ? AND is_active = ?", productId, planId, true).
		Update("is_active", false).Error; err != nil {
		return err
	}
	return tx.Model(&RecipePlan{}).
		Where("id = ? AND product_id = ?", planId, productId).
		Update("is_active", true).Error
}

// FetchActiveRecipe loads the active plan with its lines. More than one active plan is reported as
// an error rather than picking one.
func FetchActiveRecipe(tx *gorm.DB, productId int) (*RecipePlan, error) {
	var plans []RecipePlan
	if err := tx.Preload("Ingredients", func(db *gorm.DB) *gorm.DB {
		return db.Order("ingredient_id ASC")
	}).Where("product_id = ? AND is_active = ?", productId, true).Find(&plans).Error; err != nil {
		return nil, err
	}
	switch len(plans) {
	case 0:
		return nil, NewNoActiveRecipe(productId)
	case 1:
		return &plans[0], nil
	default:
		return nil, fmt.Errorf("product %d has %d active recipe plans", productId, len(plans))
	}
}

// Requirement is the total quantity of the line for a production run.
func (line RecipeIngredient) Requirement(producedUnits int) decimal.Decimal {
	return line.QuantityRequired.Mul(decimal.NewFromInt(int64(producedUnits)))
}
