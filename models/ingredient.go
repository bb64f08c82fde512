package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/mmdatafocus/batchtrace_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type IngredientType string

const (
	IngredientTypeAtomic   IngredientType = "ATOMIC"
	IngredientTypeCompound IngredientType = "COMPOUND"
)

func (t IngredientType) IsValid() bool {
	return t == IngredientTypeAtomic || t == IngredientTypeCompound
}

type Ingredient struct {
	ID           int            `gorm:"primary_key" json:"id"`
	SupplierId   int            `gorm:"index;not null" json:"supplier_id"`
	Name         string         `gorm:"size:100;not null" json:"name"`
	Type         IngredientType `gorm:"size:10;not null" json:"type"`
	Formulations []Formulation  `gorm:"foreignKey:IngredientId" json:"formulations,omitempty"`
	CreatedAt    time.Time      `gorm:"autoCreateTime" json:"created_at"`
}

// Formulation is the pricing and, for compounds, the composition of an ingredient over
// [EffectiveStartDate, EffectiveEndDate]. A nil end date is open-ended.
type Formulation struct {
	ID                 int                   `gorm:"primary_key" json:"id"`
	IngredientId       int                   `gorm:"index:idx_formulation_interval,priority:1;not null" json:"ingredient_id"`
	PackSize           decimal.Decimal       `gorm:"type:decimal(24,6);not null" json:"pack_size"`
	UnitPrice          decimal.Decimal       `gorm:"type:decimal(24,6);not null" json:"unit_price"`
	EffectiveStartDate time.Time             `gorm:"type:date;not null;index:idx_formulation_interval,priority:2" json:"effective_start_date"`
	EffectiveEndDate   *time.Time            `gorm:"type:date" json:"effective_end_date"`
	Materials          []FormulationMaterial `gorm:"foreignKey:FormulationId" json:"materials,omitempty"`
}

type FormulationMaterial struct {
	ID                   int             `gorm:"primary_key" json:"id"`
	FormulationId        int             `gorm:"not null;uniqueIndex:uniq_formulation_material,priority:1" json:"formulation_id"`
	MaterialIngredientId int             `gorm:"not null;uniqueIndex:uniq_formulation_material,priority:2;index" json:"material_ingredient_id"`
	QuantityRequired     decimal.Decimal `gorm:"type:decimal(24,6);not null" json:"quantity_required"`
}

// Covers reports whether date falls inside the formulation's interval (both ends inclusive).
func (f Formulation) Covers(date time.Time) bool {
	if f.EffectiveStartDate.After(date) {
		return false
	}
	return f.EffectiveEndDate == nil || !f.EffectiveEndDate.Before(date)
}

// Overlaps reports whether the two intervals share at least one day.
func (f Formulation) Overlaps(other Formulation) bool {
	startsBeforeOtherEnds := other.EffectiveEndDate == nil || !f.EffectiveStartDate.After(*other.EffectiveEndDate)
	otherStartsBeforeEnds := f.EffectiveEndDate == nil || !other.EffectiveStartDate.After(*f.EffectiveEndDate)
	return startsBeforeOtherEnds && otherStartsBeforeEnds
}

type NewFormulationMaterial struct {
	MaterialIngredientId int             `json:"material_ingredient_id" validate:"required,gt=0"`
	QuantityRequired     decimal.Decimal `json:"quantity_required"`
}

type NewFormulation struct {
	PackSize           decimal.Decimal          `json:"pack_size"`
	UnitPrice          decimal.Decimal          `json:"unit_price"`
	EffectiveStartDate time.Time                `json:"effective_start_date" validate:"required"`
	EffectiveEndDate   *time.Time               `json:"effective_end_date"`
	Materials          []NewFormulationMaterial `json:"materials"`
}

type NewIngredient struct {
	SupplierId  int            `json:"supplier_id" validate:"required,gt=0"`
	Name        string         `json:"name" validate:"required,max=100"`
	Type        IngredientType `json:"type" validate:"required,oneof=ATOMIC COMPOUND"`
	Formulation NewFormulation `json:"formulation"`
}

func (input *NewIngredient) validate(tx *gorm.DB) error {
	input.Name = strings.TrimSpace(input.Name)
	input.Type = IngredientType(strings.ToUpper(string(input.Type)))
	if err := utils.ValidateStruct(input); err != nil {
		return NewInvalidInput(err.Error())
	}
	if err := ensureExists[Supplier](tx, "id = ?", input.SupplierId); err != nil {
		return fmt.Errorf("supplier %d: %w", input.SupplierId, err)
	}
	return nil
}

// ToModel builds the ingredient row. The formulation is built separately once the ingredient id is known.
func (input *NewIngredient) ToModel(tx *gorm.DB) (*Ingredient, error) {
	if err := input.validate(tx); err != nil {
		return nil, err
	}
	return &Ingredient{
		SupplierId: input.SupplierId,
		Name:       input.Name,
		Type:       input.Type,
	}, nil
}

// validate checks the formulation against the ingredient it belongs to. Dates are truncated to
// calendar days in loc.
func (input *NewFormulation) validate(tx *gorm.DB, ingredient *Ingredient, loc *time.Location) error {
	if err := utils.ValidateStruct(input); err != nil {
		return NewInvalidInput(err.Error())
	}
	if !input.PackSize.IsPositive() {
		return NewInvalidFormulation(ingredient.ID, "pack size must be greater than zero")
	}
	if input.UnitPrice.IsNegative() {
		return NewInvalidFormulation(ingredient.ID, "unit price must not be negative")
	}
	if !utils.FitsScale(input.PackSize, QuantityScale) || !utils.FitsScale(input.UnitPrice, QuantityScale) {
		return NewInvalidFormulation(ingredient.ID, fmt.Sprintf("pack size and unit price allow at most %d decimal places", QuantityScale))
	}
	input.EffectiveStartDate = utils.DateOnly(input.EffectiveStartDate, loc)
	if input.EffectiveEndDate != nil {
		end := utils.DateOnly(*input.EffectiveEndDate, loc)
		if end.Before(input.EffectiveStartDate) {
			return NewInvalidFormulation(ingredient.ID, fmt.Sprintf("effective end %s is before effective start %s",
				utils.FormatDate(end), utils.FormatDate(input.EffectiveStartDate)))
		}
		input.EffectiveEndDate = &end
	}

	switch ingredient.Type {
	case IngredientTypeAtomic:
		if len(input.Materials) > 0 {
			return NewInvalidFormulation(ingredient.ID, "atomic ingredients cannot have materials")
		}
		return nil
	case IngredientTypeCompound:
		if len(input.Materials) == 0 {
			return NewInvalidFormulation(ingredient.ID, "compound ingredients need at least one material")
		}
	}

	materialIds := make([]int, 0, len(input.Materials))
	for _, m := range input.Materials {
		if err := utils.ValidateStruct(m); err != nil {
			return NewInvalidInput(err.Error())
		}
		if !m.QuantityRequired.IsPositive() {
			return NewInvalidFormulation(ingredient.ID, fmt.Sprintf("material %d quantity must be greater than zero", m.MaterialIngredientId))
		}
		if !utils.FitsScale(m.QuantityRequired, QuantityScale) {
			return NewInvalidFormulation(ingredient.ID, fmt.Sprintf("material %d quantity has more than %d decimal places", m.MaterialIngredientId, QuantityScale))
		}
		if m.MaterialIngredientId == ingredient.ID {
			return NewInvalidFormulation(ingredient.ID, "an ingredient cannot be its own material")
		}
		materialIds = append(materialIds, m.MaterialIngredientId)
	}
	if len(utils.UniqueSlice(materialIds)) != len(materialIds) {
		return NewInvalidFormulation(ingredient.ID, "material listed more than once")
	}

	var materials []Ingredient
	if err := tx.Where("id IN ?", materialIds).Find(&materials).Error; err != nil {
		return err
	}
	if len(materials) != len(materialIds) {
		return fmt.Errorf("materials %v: %w", materialIds, utils.ErrorRecordNotFound)
	}
	for _, m := range materials {
		if m.Type != IngredientTypeAtomic {
			return NewInvalidFormulation(ingredient.ID, fmt.Sprintf("material %d is not atomic", m.ID))
		}
	}
	return nil
}

func (input *NewFormulation) ToModel(tx *gorm.DB, ingredient *Ingredient, loc *time.Location) (*Formulation, error) {
	if err := input.validate(tx, ingredient, loc); err != nil {
		return nil, err
	}
	formulation := &Formulation{
		IngredientId:       ingredient.ID,
		PackSize:           input.PackSize,
		UnitPrice:          input.UnitPrice,
		EffectiveStartDate: input.EffectiveStartDate,
		EffectiveEndDate:   input.EffectiveEndDate,
	}
	for _, m := range input.Materials {
		formulation.Materials = append(formulation.Materials, FormulationMaterial{
			MaterialIngredientId: m.MaterialIngredientId,
			QuantityRequired:     m.QuantityRequired,
		})
	}
	return formulation, nil
}

func FetchIngredient(tx *gorm.DB, ingredientId int) (*Ingredient, error) {
	var ingredient Ingredient
	if err := tx.Where("id = ?", ingredientId).First(&ingredient).Error; err != nil {
		if utils.IsRecordNotFound(err) {
			return nil, fmt.Errorf("ingredient %d: %w", ingredientId, utils.ErrorRecordNotFound)
		}
		return nil, err
	}
	return &ingredient, nil
}

// FormulationsCovering returns every formulation of the ingredient whose interval contains date.
func FormulationsCovering(tx *gorm.DB, ingredientId int, date time.Time) ([]Formulation, error) {
	var formulations []Formulation
	err := tx.Preload("Materials", func(db *gorm.DB) *gorm.DB {
		return db.Order("material_ingredient_id ASC")
	}).
		Where("ingredient_id = ? AND effective_start_date <= ? AND (effective_end_date IS NULL OR effective_end_date >= ?)",
			ingredientId, date, date).
		Order("effective_start_date ASC").
		Find(&formulations).Error
	return formulations, err
}

// ActiveFormulation is the single formulation covering date; none or several is NoActiveFormulation.
func ActiveFormulation(tx *gorm.DB, ingredientId int, date time.Time) (*Formulation, error) {
	formulations, err := FormulationsCovering(tx, ingredientId, date)
	if err != nil {
		return nil, err
	}
	if len(formulations) != 1 {
		return nil, NewNoActiveFormulation(ingredientId, date, len(formulations))
	}
	return &formulations[0], nil
}

// LockIngredient takes the ingredient row FOR UPDATE; formulation changes for the ingredient are serialized on it.
func LockIngredient(tx *gorm.DB, ingredientId int) (*Ingredient, error) {
	var ingredient Ingredient
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", ingredientId).First(&ingredient).Error; err != nil {
		if utils.IsRecordNotFound(err) {
			return nil, fmt.Errorf("ingredient %d: %w", ingredientId, utils.ErrorRecordNotFound)
		}
		return nil, err
	}
	return &ingredient, nil
}

// SupersedeOpenFormulations closes every open-ended formulation that starts before next on the day
// before next starts, then rejects next if it still overlaps any stored interval.
func SupersedeOpenFormulations(tx *gorm.DB, next *Formulation) error {
	var existing []Formulation
	if err := tx.Where("ingredient_id = ?", next.IngredientId).Order("effective_start_date ASC").Find(&existing).Error; err != nil {
		return err
	}
	for i := range existing {
		f := &existing[i]
		if f.EffectiveEndDate == nil && f.EffectiveStartDate.Before(next.EffectiveStartDate) {
			end := utils.AddDays(next.EffectiveStartDate, -1)
			if err := tx.Model(&Formulation{}).Where("id = ?", f.ID).Update("effective_end_date", end).Error; err != nil {
				return err
			}
			f.EffectiveEndDate = &end
		}
		if f.Overlaps(*next) {
			return NewInvalidFormulation(next.IngredientId, fmt.Sprintf("interval overlaps formulation %d starting %s", f.ID, utils.FormatDate(f.EffectiveStartDate)))
		}
	}
	return nil
}
