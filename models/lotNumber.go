package models

import (
	"fmt"
	"regexp"
	"strings"
)

// Batch labels are chosen by suppliers and manufacturers. The numeric and alphanumeric
// prefixes of a lot number never contain '-', so a label may, and the lot number still
// maps back to exactly one (owner, item, label) triple.
var batchLabelPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]{0,49}$`)

var manufacturerIdPattern = regexp.MustCompile(`^[A-Za-z0-9]{1,20}$`)

// MaxLotNumberLength is the width of every lot_number column. The widest id is
// 19 digits + '-' + 20 characters + '-' + 50 characters.
const MaxLotNumberLength = 100

func checkLotNumberLength(lotNumber string) (string, error) {
	if len(lotNumber) > MaxLotNumberLength {
		return "", NewInvalidInput(fmt.Sprintf("lot number %q exceeds %d characters", lotNumber, MaxLotNumberLength))
	}
	return lotNumber, nil
}

func NormalizeBatchLabel(label string) (string, error) {
	label = strings.TrimSpace(label)
	if !batchLabelPattern.MatchString(label) {
		return "", NewInvalidInput(fmt.Sprintf("batch label %q must be 1-50 characters of letters, digits, '_', '.' or '-'", label))
	}
	return label, nil
}

// IngredientLotNumber is {ingredient_id}-{supplier_id}-{batch_label}.
func IngredientLotNumber(ingredientId int, supplierId int, batchLabel string) (string, error) {
	if ingredientId <= 0 || supplierId <= 0 {
		return "", NewInvalidInput("ingredient and supplier ids must be positive")
	}
	label, err := NormalizeBatchLabel(batchLabel)
	if err != nil {
		return "", err
	}
	return checkLotNumberLength(fmt.Sprintf("%d-%d-%s", ingredientId, supplierId, label))
}

// ProductLotNumber is {product_id}-{manufacturer_id}-{batch_label}.
func ProductLotNumber(productId int, manufacturerId string, batchLabel string) (string, error) {
	if productId <= 0 {
		return "", NewInvalidInput("product id must be positive")
	}
	if !manufacturerIdPattern.MatchString(manufacturerId) {
		return "", NewInvalidInput(fmt.Sprintf("manufacturer id %q must be 1-20 letters or digits", manufacturerId))
	}
	label, err := NormalizeBatchLabel(batchLabel)
	if err != nil {
		return "", err
	}
	return checkLotNumberLength(fmt.Sprintf("%d-%s-%s", productId, manufacturerId, label))
}
