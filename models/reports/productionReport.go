package reports

import (
	"context"
	"fmt"
	"time"

	"github.com/mmdatafocus/batchtrace_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type BatchCostSummary struct {
	LotNumber        string          `json:"lot_number"`
	ProductId        int             `json:"product_id"`
	ProductName      string          `json:"product_name"`
	QuantityProduced int             `json:"quantity_produced"`
	TotalCost        decimal.Decimal `json:"total_cost"`
	PerUnitCost      decimal.Decimal `json:"per_unit_cost"`
	ProductionDate   time.Time       `json:"production_date"`
}

// GetBatchCostSummary looks up one of the manufacturer's product lots.
func GetBatchCostSummary(ctx context.Context, db *gorm.DB, manufacturerId string, lotNumber string) (*BatchCostSummary, error) {
	if manufacturerId == "" {
		return nil, ErrManufacturerRequired
	}
	sqlT := `
SELECT
    pb.lot_number,
    pb.product_id,
    p.name AS product_name,
    pb.quantity_produced,
    pb.total_cost,
    pb.per_unit_cost,
    pb.production_date
FROM product_batches pb
JOIN products p ON pb.product_id = p.id
WHERE pb.lot_number = @lotNumber AND pb.manufacturer_id = @manufacturerId
`
	var results []*BatchCostSummary
	err := db.WithContext(ctx).Raw(sqlT, map[string]interface{}{
		"lotNumber":      lotNumber,
		"manufacturerId": manufacturerId,
	}).Scan(&results).Error
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("product batch %s: %w", lotNumber, utils.ErrorRecordNotFound)
	}
	return results[0], nil
}

type NearlyOutOfStockProduct struct {
	ProductId         int    `json:"product_id"`
	ProductName       string `json:"product_name"`
	StandardBatchSize int    `json:"standard_batch_size"`
	TotalProduced     int    `json:"total_produced"`
}

// GetNearlyOutOfStock lists the manufacturer's products whose produced quantity is below one standard batch.
func GetNearlyOutOfStock(ctx context.Context, db *gorm.DB, manufacturerId string) ([]*NearlyOutOfStockProduct, error) {
	if manufacturerId == "" {
		return nil, ErrManufacturerRequired
	}
	sqlT := `
SELECT
    p.id AS product_id,
    p.name AS product_name,
    p.standard_batch_size,
    COALESCE(SUM(pb.quantity_produced), 0) AS total_produced
FROM products p
LEFT JOIN product_batches pb ON p.id = pb.product_id
WHERE p.manufacturer_id = @manufacturerId
GROUP BY p.id, p.name, p.standard_batch_size
HAVING COALESCE(SUM(pb.quantity_produced), 0) < p.standard_batch_size
ORDER BY p.name
`
	var results []*NearlyOutOfStockProduct
	err := db.WithContext(ctx).Raw(sqlT, map[string]interface{}{
		"manufacturerId": manufacturerId,
	}).Scan(&results).Error
	return results, err
}

type ProductCatalogEntry struct {
	ProductId        int    `json:"product_id"`
	ProductName      string `json:"product_name"`
	CategoryName     string `json:"category_name"`
	ManufacturerName string `json:"manufacturer_name"`
}

// GetProductCatalog lists every product with its category and manufacturer names.
func GetProductCatalog(ctx context.Context, db *gorm.DB) ([]*ProductCatalogEntry, error) {
	sqlT := `
SELECT
    p.id AS product_id,
    p.name AS product_name,
    COALESCE(c.name, '') AS category_name,
    m.name AS manufacturer_name
FROM products p
LEFT JOIN categories c ON p.category_id = c.id
JOIN manufacturers m ON p.manufacturer_id = m.id
ORDER BY category_name, p.name
`
	var results []*ProductCatalogEntry
	err := db.WithContext(ctx).Raw(sqlT).Scan(&results).Error
	return results, err
}

type ManufacturerRef struct {
	ManufacturerId   string `json:"manufacturer_id"`
	ManufacturerName string `json:"manufacturer_name"`
}

// GetManufacturersNotSuppliedBy lists manufacturers none of whose batches consumed a lot of the supplier.
func GetManufacturersNotSuppliedBy(ctx context.Context, db *gorm.DB, supplierId int) ([]*ManufacturerRef, error) {
	sqlT := `
SELECT
    m.id AS manufacturer_id,
    m.name AS manufacturer_name
FROM manufacturers m
WHERE m.id NOT IN (
    SELECT DISTINCT pb.manufacturer_id
    FROM product_batches pb
    JOIN batch_consumptions bc ON pb.lot_number = bc.product_batch_lot
    JOIN ingredient_batches ib ON bc.ingredient_batch_lot = ib.lot_number
    WHERE ib.supplier_id = @supplierId
)
ORDER BY m.name
`
	var results []*ManufacturerRef
	err := db.WithContext(ctx).Raw(sqlT, map[string]interface{}{
		"supplierId": supplierId,
	}).Scan(&results).Error
	return results, err
}
