package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/mmdatafocus/batchtrace_backend/config"
	"github.com/mmdatafocus/batchtrace_backend/models/reports"
	"github.com/mmdatafocus/batchtrace_backend/utils"
)

func main() {
	manufacturerID := flag.String("manufacturer-id", "", "Required: manufacturer id")
	days := flag.Int("days", 0, "Horizon in days (defaults to NEAR_EXPIRY_DAYS)")
	xlsxPath := flag.String("xlsx", "", "Optional: also write the lots to this .xlsx file")
	upload := flag.Bool("upload", false, "Upload the workbook to GCS_BUCKET under reports/<manufacturer>/")
	flag.Parse()

	if strings.TrimSpace(*manufacturerID) == "" {
		fmt.Fprintln(os.Stderr, "--manufacturer-id is required")
		os.Exit(1)
	}
	settings := config.LoadSettings()
	horizon := settings.NearExpiryDays
	if *days > 0 {
		horizon = *days
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	db, err := config.ConnectDatabaseWithRetry(ctx, config.LoadDatabaseConfig())
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect database: %v\n", err)
		os.Exit(1)
	}

	today := utils.Today(time.Now, settings.Location)
	lots, err := reports.GetNearExpiryLots(ctx, db, strings.TrimSpace(*manufacturerID), today, horizon)
	if err != nil {
		fmt.Fprintf(os.Stderr, "near expiry: %v\n", err)
		os.Exit(1)
	}
	if path := strings.TrimSpace(*xlsxPath); path != "" || *upload {
		var workbook bytes.Buffer
		if err := reports.WriteExcel(&workbook, "Near Expiry", reports.NearExpiryLotHeadings, reports.ToExcelRows(lots)); err != nil {
			fmt.Fprintf(os.Stderr, "build workbook: %v\n", err)
			os.Exit(1)
		}
		if path != "" {
			if err := os.WriteFile(path, workbook.Bytes(), 0o644); err != nil {
				fmt.Fprintf(os.Stderr, "write %s: %v\n", path, err)
				os.Exit(1)
			}
		}
		if *upload {
			object := utils.ReportObjectName(strings.TrimSpace(*manufacturerID), "near-expiry", today)
			if err := utils.UploadBytesToGCS(ctx, object, workbook.Bytes(), utils.XlsxContentType); err != nil {
				fmt.Fprintf(os.Stderr, "upload: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("uploaded %s\n", object)
		}
	}
	if len(lots) == 0 {
		fmt.Printf("No lots expiring within %d days.\n", horizon)
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "LOT\tINGREDIENT\tON HAND (OZ)\tEXPIRES\tDAYS LEFT")
	for _, lot := range lots {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n", lot.LotNumber, lot.IngredientName, lot.OnHandOz.StringFixed(2), utils.FormatDate(lot.ExpirationDate), lot.DaysUntilExpiry)
	}
	_ = w.Flush()
}

