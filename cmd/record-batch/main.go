package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mmdatafocus/batchtrace_backend/config"
	"github.com/mmdatafocus/batchtrace_backend/models"
	"github.com/mmdatafocus/batchtrace_backend/utils"
	"github.com/mmdatafocus/batchtrace_backend/workflow"
)

// Input file shape:
//
//	{"product_id":100,"manufacturer_id":"MFG001","batch_label":"B0901","produced_units":200,
//	 "allocations":[{"ingredient_id":101,"lot_number":"101-20-B0001","quantity":"500"}]}
func main() {
	file := flag.String("file", "", "Required: JSON production request")
	plan := flag.Bool("plan", false, "Print the requirement and eligible lots per recipe line instead of recording")
	trace := flag.String("trace", "", "Print the consumed ingredient lots of an existing product lot and exit")
	flag.Parse()

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	if lot := strings.TrimSpace(*trace); lot != "" {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		db, err := config.ConnectDatabaseWithRetry(ctx, config.LoadDatabaseConfig())
		if err != nil {
			fmt.Fprintf(os.Stderr, "connect database: %v\n", err)
			os.Exit(1)
		}
		result, err := workflow.NewService(db, config.GetLogger(), config.LoadSettings()).TraceProductBatch(ctx, lot)
		if err != nil {
			fail(err)
		}
		_ = enc.Encode(result)
		return
	}

	if strings.TrimSpace(*file) == "" {
		fmt.Fprintln(os.Stderr, "--file or --trace is required")
		os.Exit(1)
	}
	raw, err := os.ReadFile(*file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read %s: %v\n", *file, err)
		os.Exit(1)
	}
	var input models.NewProductionBatch
	if err := json.Unmarshal(raw, &input); err != nil {
		fmt.Fprintf(os.Stderr, "parse %s: %v\n", *file, err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	ctx = utils.SetManufacturerIdInContext(ctx, input.ManufacturerId)

	db, err := config.ConnectDatabaseWithRetry(ctx, config.LoadDatabaseConfig())
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect database: %v\n", err)
		os.Exit(1)
	}
	if config.LoadSettings().ProductionLockEnabled {
		if err := config.ConnectRedisWithRetry(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "connect redis: %v\n", err)
			os.Exit(1)
		}
	}
	svc := workflow.NewService(db, config.GetLogger(), config.LoadSettings())

	if *plan {
		lines, err := svc.ListEligibleLotsForRecipe(ctx, input.ProductId, input.ManufacturerId, input.ProducedUnits)
		if err != nil {
			fail(err)
		}
		_ = enc.Encode(lines)
		return
	}

	batch, err := svc.RecordProductionBatch(ctx, input)
	if err != nil {
		fail(err)
	}
	_ = enc.Encode(batch)
}

func fail(err error) {
	var invErr *models.InventoryError
	if errors.As(err, &invErr) {
		fmt.Fprintf(os.Stderr, "%s\n", invErr.Error())
		os.Exit(2)
	}
	fmt.Fprintf(os.Stderr, "record batch: %v\n", err)
	os.Exit(1)
}
