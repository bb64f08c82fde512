package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/mmdatafocus/batchtrace_backend/config"
	"github.com/mmdatafocus/batchtrace_backend/models"
)

func main() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	db, err := config.ConnectDatabaseWithRetry(ctx, config.LoadDatabaseConfig())
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect database: %v\n", err)
		os.Exit(1)
	}
	if err := models.MigrateTable(db); err != nil {
		fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("migration complete")
}
