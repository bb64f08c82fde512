package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mmdatafocus/batchtrace_backend/config"
	"github.com/mmdatafocus/batchtrace_backend/models"
	"github.com/mmdatafocus/batchtrace_backend/utils"
	"github.com/mmdatafocus/batchtrace_backend/workflow"
	"github.com/shopspring/decimal"
)

func main() {
	ingredientID := flag.Int("ingredient-id", 0, "Required: ingredient id")
	supplierID := flag.Int("supplier-id", 0, "Required: supplier id")
	manufacturerID := flag.String("manufacturer-id", "", "Optional: receiving manufacturer (empty keeps the lot in the supplier pool)")
	batchID := flag.String("batch", "", "Required: supplier batch label")
	quantityStr := flag.String("quantity", "", "Required: received quantity (oz)")
	costStr := flag.String("cost", "0", "Cost per unit")
	expiresStr := flag.String("expires", "", "Required: expiration date (YYYY-MM-DD)")
	flag.Parse()

	if *ingredientID <= 0 || *supplierID <= 0 || strings.TrimSpace(*batchID) == "" || *quantityStr == "" || *expiresStr == "" {
		fmt.Fprintln(os.Stderr, "--ingredient-id, --supplier-id, --batch, --quantity and --expires are required")
		os.Exit(1)
	}
	quantity, err := decimal.NewFromString(*quantityStr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid quantity: %v\n", err)
		os.Exit(1)
	}
	cost, err := decimal.NewFromString(*costStr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid cost: %v\n", err)
		os.Exit(1)
	}
	expires, err := utils.ParseDate(strings.TrimSpace(*expiresStr))
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid expiration date: %v\n", err)
		os.Exit(1)
	}

	input := models.NewIngredientBatch{
		IngredientId:   *ingredientID,
		SupplierId:     *supplierID,
		BatchId:        *batchID,
		Quantity:       quantity,
		CostPerUnit:    cost,
		ExpirationDate: expires,
	}
	if m := strings.TrimSpace(*manufacturerID); m != "" {
		input.ManufacturerId = &m
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	ctx = utils.SetSupplierIdInContext(ctx, *supplierID)

	db, err := config.ConnectDatabaseWithRetry(ctx, config.LoadDatabaseConfig())
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect database: %v\n", err)
		os.Exit(1)
	}
	svc := workflow.NewService(db, config.GetLogger(), config.LoadSettings())
	lot, err := svc.AdmitIngredientBatch(ctx, input)
	if err != nil {
		fmt.Fprintf(os.Stderr, "admit lot: %v\n", err)
		os.Exit(2)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(lot)
}
