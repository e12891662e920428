// export-transactions writes the settlement transaction report of one exchange config
// to an xlsx file, optionally archiving it to GCS_BUCKET.
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/mmdatafocus/exchange_backend/config"
	"github.com/mmdatafocus/exchange_backend/models/reports"
	"github.com/mmdatafocus/exchange_backend/utils"
)

func main() {
	configID := flag.Int("config-id", 0, "Required: exchange config id")
	out := flag.String("out", "", "Output file (default: generated report name)")
	fromStr := flag.String("from", "", "Optional: from date (YYYY-MM-DD), inclusive")
	toStr := flag.String("to", "", "Optional: to date (YYYY-MM-DD), exclusive")
	toGCS := flag.Bool("gcs", false, "Also upload the report to GCS_BUCKET under exports/")
	flag.Parse()

	if *configID <= 0 {
		fmt.Fprintln(os.Stderr, "--config-id is required")
		os.Exit(1)
	}
	from, err := utils.ParseDateParam(*fromStr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid --from: %v\n", err)
		os.Exit(1)
	}
	to, err := utils.ParseDateParam(*toStr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid --to: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}

	report, err := reports.GetTransactionReport(ctx, db, *configID, from, to)
	if err != nil {
		fmt.Fprintf(os.Stderr, "build report: %v\n", err)
		os.Exit(1)
	}
	var buf bytes.Buffer
	if err := report.WriteExcel(&buf); err != nil {
		fmt.Fprintf(os.Stderr, "render report: %v\n", err)
		os.Exit(1)
	}

	path := *out
	if path == "" {
		path = report.Filename()
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "write %s: %v\n", path, err)
		os.Exit(1)
	}
	fmt.Printf("wrote %d rows to %s\n", len(report.Rows), path)

	if *toGCS {
		uri, err := utils.UploadBytesToGCS(ctx, "exports/"+report.Filename(), buf.Bytes(), reports.XlsxContentType)
		if err != nil {
			fmt.Fprintf(os.Stderr, "upload: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("archived to %s\n", uri)
	}
}
