package models

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type ErrorKind string

const (
	KindShelfLifeViolation  ErrorKind = "ShelfLifeViolation"
	KindDuplicateBatchLabel ErrorKind = "DuplicateBatchLabel"
	KindNoActiveRecipe      ErrorKind = "NoActiveRecipe"
	KindNoActiveFormulation ErrorKind = "NoActiveFormulation"
	KindEmptyRecipe         ErrorKind = "EmptyRecipe"
	KindDuplicateIngredient ErrorKind = "DuplicateIngredient"
	KindInvalidBatchSize    ErrorKind = "InvalidBatchSize"
	KindAllocationMismatch  ErrorKind = "AllocationMismatch"
	KindInsufficientStock   ErrorKind = "InsufficientStock"
	KindExpiredLot          ErrorKind = "ExpiredLot"
	KindLotMismatch         ErrorKind = "LotMismatch"
	KindInvalidFormulation  ErrorKind = "InvalidFormulation"
	KindInvalidInput        ErrorKind = "InvalidInput"
)

// Sentinels for errors.Is. Details travel on the concrete *InventoryError.
var (
	ErrShelfLifeViolation  = &InventoryError{Kind: KindShelfLifeViolation}
	ErrDuplicateBatchLabel = &InventoryError{Kind: KindDuplicateBatchLabel}
	ErrNoActiveRecipe      = &InventoryError{Kind: KindNoActiveRecipe}
	ErrNoActiveFormulation = &InventoryError{Kind: KindNoActiveFormulation}
	ErrEmptyRecipe         = &InventoryError{Kind: KindEmptyRecipe}
	ErrDuplicateIngredient = &InventoryError{Kind: KindDuplicateIngredient}
	ErrInvalidBatchSize    = &InventoryError{Kind: KindInvalidBatchSize}
	ErrAllocationMismatch  = &InventoryError{Kind: KindAllocationMismatch}
	ErrInsufficientStock   = &InventoryError{Kind: KindInsufficientStock}
	ErrExpiredLot          = &InventoryError{Kind: KindExpiredLot}
	ErrLotMismatch         = &InventoryError{Kind: KindLotMismatch}
	ErrInvalidFormulation  = &InventoryError{Kind: KindInvalidFormulation}
	ErrInvalidInput        = &InventoryError{Kind: KindInvalidInput}
)

// InventoryError is returned for every rule violation in the catalog, ledger and production engine.
// Only the fields relevant to the Kind are set.
type InventoryError struct {
	Kind         ErrorKind
	ProductId    int
	IngredientId int
	LotNumber    string
	Required     decimal.Decimal
	Actual       decimal.Decimal
	Date         *time.Time
	Detail       string
}

func (e *InventoryError) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	var ctx []string
	if e.ProductId != 0 {
		ctx = append(ctx, fmt.Sprintf("product_id=%d", e.ProductId))
	}
	if e.IngredientId != 0 {
		ctx = append(ctx, fmt.Sprintf("ingredient_id=%d", e.IngredientId))
	}
	if e.LotNumber != "" {
		ctx = append(ctx, "lot="+e.LotNumber)
	}
	if !e.Required.IsZero() || !e.Actual.IsZero() {
		ctx = append(ctx, "required="+e.Required.String(), "actual="+e.Actual.String())
	}
	if e.Date != nil {
		ctx = append(ctx, "date="+e.Date.Format("2006-01-02"))
	}
	if len(ctx) > 0 {
		b.WriteString(" (")
		b.WriteString(strings.Join(ctx, " "))
		b.WriteString(")")
	}
	return b.String()
}

// Is matches any *InventoryError of the same Kind.
func (e *InventoryError) Is(target error) bool {
	t, ok := target.(*InventoryError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func KindOf(err error) (ErrorKind, bool) {
	var invErr *InventoryError
	if errors.As(err, &invErr) {
		return invErr.Kind, true
	}
	return "", false
}

func NewShelfLifeViolation(lotLabel string, expiration, minimum time.Time) error {
	return &InventoryError{
		Kind:      KindShelfLifeViolation,
		LotNumber: lotLabel,
		Date:      &minimum,
		Detail:    fmt.Sprintf("expiration %s is before the minimum acceptable date %s", expiration.Format("2006-01-02"), minimum.Format("2006-01-02")),
	}
}

func NewDuplicateBatchLabel(lotNumber string) error {
	return &InventoryError{Kind: KindDuplicateBatchLabel, LotNumber: lotNumber, Detail: "batch label already used"}
}

func NewNoActiveRecipe(productId int) error {
	return &InventoryError{Kind: KindNoActiveRecipe, ProductId: productId, Detail: "product has no active recipe plan"}
}

func NewNoActiveFormulation(ingredientId int, date time.Time, matches int) error {
	return &InventoryError{
		Kind:         KindNoActiveFormulation,
		IngredientId: ingredientId,
		Date:         &date,
		Detail:       fmt.Sprintf("%d formulations cover the date, expected exactly one", matches),
	}
}

func NewAllocationMismatch(ingredientId int, required, supplied decimal.Decimal) error {
	return &InventoryError{
		Kind:         KindAllocationMismatch,
		IngredientId: ingredientId,
		Required:     required,
		Actual:       supplied,
		Detail:       "allocated quantity does not equal the recipe requirement",
	}
}

// NewInsufficientStock reports the lot's on-hand (Actual) against the requested quantity (Required).
func NewInsufficientStock(lotNumber string, requested, onHand decimal.Decimal) error {
	return &InventoryError{
		Kind:      KindInsufficientStock,
		LotNumber: lotNumber,
		Required:  requested,
		Actual:    onHand,
		Detail:    "shortfall " + requested.Sub(onHand).String(),
	}
}

func NewExpiredLot(lotNumber string, expiration time.Time) error {
	return &InventoryError{Kind: KindExpiredLot, LotNumber: lotNumber, Date: &expiration, Detail: "lot is expired"}
}

func NewLotMismatch(lotNumber string, ingredientId int, detail string) error {
	return &InventoryError{Kind: KindLotMismatch, LotNumber: lotNumber, IngredientId: ingredientId, Detail: detail}
}

func NewInvalidFormulation(ingredientId int, detail string) error {
	return &InventoryError{Kind: KindInvalidFormulation, IngredientId: ingredientId, Detail: detail}
}

func NewInvalidInput(detail string) error {
	return &InventoryError{Kind: KindInvalidInput, Detail: detail}
}

func NewEmptyRecipe(productId int) error {
	return &InventoryError{Kind: KindEmptyRecipe, ProductId: productId, Detail: "recipe has no ingredient lines"}
}

func NewDuplicateIngredient(productId int, ingredientId int) error {
	return &InventoryError{Kind: KindDuplicateIngredient, ProductId: productId, IngredientId: ingredientId, Detail: "ingredient appears more than once in the recipe"}
}

func NewInvalidBatchSize(productId int, producedUnits int, standardBatchSize int) error {
	return &InventoryError{
		Kind:      KindInvalidBatchSize,
		ProductId: productId,
		Required:  decimal.NewFromInt(int64(standardBatchSize)),
		Actual:    decimal.NewFromInt(int64(producedUnits)),
		Detail:    fmt.Sprintf("produced units must be a positive multiple of %d", standardBatchSize),
	}
}
