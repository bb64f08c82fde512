package reports

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var ErrManufacturerRequired = errors.New("manufacturer id is required")

type OnHandLot struct {
	LotNumber      string          `json:"lot_number"`
	IngredientId   int             `json:"ingredient_id"`
	IngredientName string          `json:"ingredient_name"`
	SupplierId     int             `json:"supplier_id"`
	OnHandOz       decimal.Decimal `json:"on_hand_oz"`
	CostPerUnit    decimal.Decimal `json:"cost_per_unit"`
	ExpirationDate time.Time       `json:"expiration_date"`
}

// GetOnHandByLot lists the manufacturer's lots with stock left, by ingredient name then expiration.
func GetOnHandByLot(ctx context.Context, db *gorm.DB, manufacturerId string) ([]*OnHandLot, error) {
	if manufacturerId == "" {
		return nil, ErrManufacturerRequired
	}
	sqlT := `
SELECT
    ib.lot_number,
    ib.ingredient_id,
    i.name AS ingredient_name,
    ib.supplier_id,
    ib.on_hand_oz,
    ib.cost_per_unit,
    ib.expiration_date
FROM ingredient_batches ib
JOIN ingredients i ON ib.ingredient_id = i.id
WHERE ib.manufacturer_id = @manufacturerId AND ib.on_hand_oz > 0
ORDER BY i.name, ib.expiration_date, ib.lot_number
`
	var results []*OnHandLot
	err := db.WithContext(ctx).Raw(sqlT, map[string]interface{}{
		"manufacturerId": manufacturerId,
	}).Scan(&results).Error
	return results, err
}

type NearExpiryLot struct {
	LotNumber       string          `json:"lot_number"`
	IngredientId    int             `json:"ingredient_id"`
	IngredientName  string          `json:"ingredient_name"`
	OnHandOz        decimal.Decimal `json:"on_hand_oz"`
	ExpirationDate  time.Time       `json:"expiration_date"`
	DaysUntilExpiry int             `json:"days_until_expiry" gorm:"-"`
}

// GetNearExpiryLots lists lots with stock left that expire on or before today + horizonDays.
// Lots already past expiration are included with a negative DaysUntilExpiry.
func GetNearExpiryLots(ctx context.Context, db *gorm.DB, manufacturerId string, today time.Time, horizonDays int) ([]*NearExpiryLot, error) {
	if manufacturerId == "" {
		return nil, ErrManufacturerRequired
	}
	sqlT := `
SELECT
    ib.lot_number,
    ib.ingredient_id,
    i.name AS ingredient_name,
    ib.on_hand_oz,
    ib.expiration_date
FROM ingredient_batches ib
JOIN ingredients i ON ib.ingredient_id = i.id
WHERE ib.manufacturer_id = @manufacturerId
  AND ib.on_hand_oz > 0
  AND ib.expiration_date <= @horizon
ORDER BY ib.expiration_date, ib.lot_number
`
	var results []*NearExpiryLot
	err := db.WithContext(ctx).Raw(sqlT, map[string]interface{}{
		"manufacturerId": manufacturerId,
		"horizon":        today.AddDate(0, 0, horizonDays),
	}).Scan(&results).Error
	if err != nil {
		return nil, err
	}
	for _, r := range results {
		r.DaysUntilExpiry = int(r.ExpirationDate.Sub(today).Hours() / 24)
	}
	return results, nil
}

type SupplierSpend struct {
	SupplierId   int             `json:"supplier_id"`
	SupplierName string          `json:"supplier_name"`
	TotalSpent   decimal.Decimal `json:"total_spent"`
}

// GetSupplierSpend totals, per supplier, the cost of ingredient lots consumed by the manufacturer's batches.
func GetSupplierSpend(ctx context.Context, db *gorm.DB, manufacturerId string) ([]*SupplierSpend, error) {
	if manufacturerId == "" {
		return nil, ErrManufacturerRequired
	}
	sqlT := `
SELECT
    s.id AS supplier_id,
    s.name AS supplier_name,
    SUM(bc.quantity_consumed * bc.cost_per_unit) AS total_spent
FROM product_batches pb
JOIN batch_consumptions bc ON pb.lot_number = bc.product_batch_lot
JOIN ingredient_batches ib ON bc.ingredient_batch_lot = ib.lot_number
JOIN suppliers s ON ib.supplier_id = s.id
WHERE pb.manufacturer_id = @manufacturerId
GROUP BY s.id, s.name
ORDER BY total_spent DESC, s.id
`
	var results []*SupplierSpend
	err := db.WithContext(ctx).Raw(sqlT, map[string]interface{}{
		"manufacturerId": manufacturerId,
	}).Scan(&results).Error
	return results, err
}
