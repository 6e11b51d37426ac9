package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joseph-ayodele/tickets-tracker/internal/app"
	"github.com/joseph-ayodele/tickets-tracker/internal/common"
	"github.com/joseph-ayodele/tickets-tracker/internal/entity"
	"github.com/joseph-ayodele/tickets-tracker/internal/export"
	"github.com/joseph-ayodele/tickets-tracker/internal/ingest"
	"github.com/joseph-ayodele/tickets-tracker/internal/repository"
)

func printError(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
}

func printReport(r entity.Report) {
	for _, i := range r.Errors {
		fmt.Printf("  ERROR   %s\n", i)
	}
	for _, i := range r.Warnings {
		fmt.Printf("  WARNING %s\n", i)
	}
}

func main() {
	var (
		dir        = flag.String("dir", "", "directory of spreadsheet/PDF pairs (required)")
		inmem      = flag.Bool("inmem", true, "use a private in-memory SQLite database instead of DB_DRIVER/DB_URL")
		fromStr    = flag.String("from", "", "first day of the export range, YYYY-MM-DD (required)")
		toStr      = flag.String("to", "", "last day of the export range, YYYY-MM-DD (required)")
		client     = flag.String("client", "", "restrict the export to one client id")
		force      = flag.Bool("force", false, "assemble despite blocking findings, omitting the affected tickets")
		images     = flag.Bool("images", true, "copy matched page images into the bundle")
		clients    = flag.String("clients", "", "JSON file of clients to import before processing")
		out        = flag.String("out", "", "export directory (overrides EXPORT_DIR)")
		mismatched = flag.Bool("allow-mismatched", false, "accept pairs whose file names look unrelated")
		validate   = flag.Bool("validate", false, "only report what the export would contain")
	)
	flag.Parse()

	if *dir == "" || *fromStr == "" || *toStr == "" {
		printError("-dir, -from and -to are required")
		flag.Usage()
		os.Exit(2)
	}
	from, err := time.Parse(time.DateOnly, *fromStr)
	if err != nil {
		printError("invalid -from %q: %v", *fromStr, err)
		os.Exit(2)
	}
	to, err := time.Parse(time.DateOnly, *toStr)
	if err != nil {
		printError("invalid -to %q: %v", *toStr, err)
		os.Exit(2)
	}

	cfg := common.LoadConfig()
	if *inmem {
		cfg.Database.Driver = "sqlite"
	}
	if *out != "" {
		cfg.Export.OutputDir = *out
	}
	logger := app.NewLogger(cfg.LogLevel)
	slog.SetDefault(logger)
	if err := cfg.Validate(); err != nil {
		printError("%v", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := app.OpenDB(ctx, cfg, *inmem, logger)
	if err != nil {
		printError("open database: %v", err)
		os.Exit(1)
	}
	defer repository.Close(db, logger)

	a, err := app.New(cfg, db, logger)
	if err != nil {
		printError("%v", err)
		os.Exit(1)
	}
	if *clients != "" {
		n, err := a.ImportClients(ctx, *clients)
		if err != nil {
			printError("import clients: %v", err)
			os.Exit(1)
		}
		logger.Info("clients imported", "file", *clients, "count", n)
	}

	scan, err := ingest.ScanPairs(*dir, true)
	if err != nil {
		printError("scan %s: %v", *dir, err)
		os.Exit(1)
	}
	for _, path := range scan.Unpaired {
		logger.Warn("document has no counterpart, skipped", "path", path)
	}
	logger.Info("scan complete",
		"scanned", scan.Stats.Scanned,
		"documents", scan.Stats.Matched,
		"pairs", scan.Stats.Paired,
		"unpaired", scan.Stats.Unpaired)

	processed, failures, tickets := 0, 0, 0
	for _, p := range scan.Pairs {
		sub := p.Submission()
		sub.AllowMismatchedNames = *mismatched
		res, err := a.Processor.Run(ctx, sub)
		if err != nil {
			logger.Error("batch failed", "sheet", p.SheetPath, "pdf", p.PDFPath, "error", err)
			failures++
			continue
		}
		processed++
		tickets += len(res.Tickets)
	}

	req := export.Request{From: from, To: to, Client: *client, Force: *force, IncludeImages: *images}

	fmt.Printf("Batch processing complete!\n")
	fmt.Printf("- Pairs processed: %d\n", processed)
	fmt.Printf("- Failures: %d\n", failures)
	fmt.Printf("- Tickets: %d\n", tickets)

	if *validate {
		report, err := a.Exporter.Validate(ctx, req)
		if err != nil {
			printError("validate: %v", err)
			os.Exit(1)
		}
		fmt.Printf("- Validation: %d errors, %d warnings\n", len(report.Errors), len(report.Warnings))
		printReport(report)
		if len(report.Errors) > 0 {
			os.Exit(1)
		}
		return
	}

	res, err := a.Exporter.Export(ctx, req)
	if err != nil {
		printError("export: %v", err)
		if res != nil {
			printReport(res.Report)
		}
		os.Exit(1)
	}
	fmt.Printf("- Export: %s (%s)\n", res.ExportID, res.State)
	fmt.Printf("- Billable tickets: %d, total %s\n", res.TicketCount, res.TotalAmount.StringFixed(2))
	if res.Downloadable() {
		fmt.Printf("- Bundle: %s\n", res.BundlePath)
	}
	printReport(res.Report)
	if !res.Downloadable() {
		os.Exit(1)
	}
}
