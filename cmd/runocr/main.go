package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joseph-ayodele/tickets-tracker/internal/app"
	"github.com/joseph-ayodele/tickets-tracker/internal/common"
	"github.com/joseph-ayodele/tickets-tracker/internal/ocr"
	"github.com/joseph-ayodele/tickets-tracker/internal/storage"
)

func main() {
	asJSON := flag.Bool("json", false, "print the full extraction result as JSON")
	timeout := flag.Duration("timeout", 5*time.Minute, "overall extraction budget")
	flag.Parse()

	cfg := common.LoadConfig()
	logger := app.NewLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	if flag.NArg() != 1 {
		logger.Error("usage", "cmd", "runocr [-json] [-timeout 5m] <tickets.pdf>")
		os.Exit(2)
	}
	path := flag.Arg(0)

	docID, err := storage.HashFile(path)
	if err != nil {
		logger.Error("failed to hash document", "path", path, "error", err)
		os.Exit(1)
	}
	store, err := storage.NewFSStore(cfg.OCR.ArtifactDir, logger)
	if err != nil {
		logger.Error("failed to open artifact store", "dir", cfg.OCR.ArtifactDir, "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	x := ocr.NewExtractor(app.OCRConfig(cfg.OCR), store, logger)
	start := time.Now()
	res, err := x.Extract(ctx, docID, path)
	if err != nil {
		logger.Error("extraction failed", "path", path, "error", err, "duration_ms", time.Since(start).Milliseconds())
		os.Exit(1)
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			logger.Error("encode result", "error", err)
			os.Exit(1)
		}
		return
	}

	fmt.Printf("document %s: %d pages in %s\n", res.DocumentID, res.Pages, res.Duration.Round(time.Millisecond))
	for _, img := range res.Images {
		number := img.DetectedNumber
		if number == "" {
			number = "-"
		}
		fmt.Printf("  page %3d  ticket %-10s  confidence %.2f  %s\n", img.PageIndex+1, number, img.Confidence, img.ArtifactKey)
	}
	for _, f := range res.Failures {
		fmt.Printf("  page %3d  FAILED (timed out: %t): %s\n", f.PageIndex+1, f.TimedOut, f.Reason)
	}
}
