package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/mmdatafocus/batchtrace_backend/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Category struct {
	ID        int       `gorm:"primary_key" json:"id"`
	Name      string    `gorm:"size:100;not null;uniqueIndex" json:"name"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

type Product struct {
	ID                int       `gorm:"primary_key" json:"id"`
	Name              string    `gorm:"size:100;not null" json:"name"`
	CategoryId        int       `gorm:"index;not null;default:0" json:"category_id"`
	ManufacturerId    string    `gorm:"size:20;index;not null" json:"manufacturer_id"`
	StandardBatchSize int       `gorm:"not null" json:"standard_batch_size"`
	CreatedAt         time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewCategory struct {
	Name string `json:"name" validate:"required,max=100"`
}

type NewProduct struct {
	// ID is optional; zero lets the store assign one.
	ID                int    `json:"id" validate:"gte=0"`
	Name              string `json:"name" validate:"required,max=100"`
	CategoryId        int    `json:"category_id" validate:"gte=0"`
	ManufacturerId    string `json:"manufacturer_id" validate:"required"`
	StandardBatchSize int    `json:"standard_batch_size" validate:"gt=0"`
}

func (input *NewCategory) ToModel() (*Category, error) {
	input.Name = strings.TrimSpace(input.Name)
	if err := utils.ValidateStruct(input); err != nil {
		return nil, NewInvalidInput(err.Error())
	}
	return &Category{Name: input.Name}, nil
}

// validate checks referenced rows inside the caller's transaction.
func (input *NewProduct) validate(tx *gorm.DB) error {
	input.Name = strings.TrimSpace(input.Name)
	if err := utils.ValidateStruct(input); err != nil {
		return NewInvalidInput(err.Error())
	}
	if err := ensureExists[Manufacturer](tx, "id = ?", input.ManufacturerId); err != nil {
		return fmt.Errorf("manufacturer %s: %w", input.ManufacturerId, err)
	}
	if input.CategoryId > 0 {
		if err := ensureExists[Category](tx, "id = ?", input.CategoryId); err != nil {
			return fmt.Errorf("category %d: %w", input.CategoryId, err)
		}
	}
	return nil
}

func (input *NewProduct) ToModel(tx *gorm.DB) (*Product, error) {
	if err := input.validate(tx); err != nil {
		return nil, err
	}
	return &Product{
		ID:                input.ID,
		Name:              input.Name,
		CategoryId:        input.CategoryId,
		ManufacturerId:    input.ManufacturerId,
		StandardBatchSize: input.StandardBatchSize,
	}, nil
}

// IsValidBatchSize reports whether units is a positive multiple of the standard batch size.
func (p *Product) IsValidBatchSize(units int) bool {
	return units > 0 && p.StandardBatchSize > 0 && units%p.StandardBatchSize == 0
}

func FetchProduct(tx *gorm.DB, productId int) (*Product, error) {
	var product Product
	if err := tx.Where("id = ?", productId).First(&product).Error; err != nil {
		if utils.IsRecordNotFound(err) {
			return nil, fmt.Errorf("product %d: %w", productId, utils.ErrorRecordNotFound)
		}
		return nil, err
	}
	return &product, nil
}

// LockProduct takes the product row FOR UPDATE; recipe versioning for the product is serialized on it.
func LockProduct(tx *gorm.DB, productId int) (*Product, error) {
	var product Product
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", productId).First(&product).Error; err != nil {
		if utils.IsRecordNotFound(err) {
			return nil, fmt.Errorf("product %d: %w", productId, utils.ErrorRecordNotFound)
		}
		return nil, err
	}
	return &product, nil
}

func ensureExists[T any](tx *gorm.DB, cond string, args ...any) error {
	var model T
	var count int64
	if err := tx.Model(&model).Where(cond, args...).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return utils.ErrorRecordNotFound
	}
	return nil
}
