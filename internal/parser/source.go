package parser

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/tickets-tracker/constants"
)

// FileParser reads spreadsheet files from disk and parses them.
type FileParser struct {
	loc    *time.Location
	logger *slog.Logger
}

func NewFileParser(loc *time.Location, logger *slog.Logger) *FileParser {
	if logger == nil {
		logger = slog.Default()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &FileParser{loc: loc, logger: logger}
}

// ParseFile reads the first worksheet of an xlsx/xlsm workbook, or a csv file,
// and parses it. Only I/O failures are returned as errors.
func (p *FileParser) ParseFile(ctx context.Context, path string) (Result, error) {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	rows, err := ReadRows(path)
	if err != nil {
		p.logger.Error("parser.read.failed", "path", path, "error", err)
		return Result{}, err
	}
	res := Parse(rows, Options{Source: filepath.Base(path), Location: p.loc})
	p.logger.Info("parser.parse.ok",
		"path", path,
		"format", res.Report.Format,
		"blocks", res.Report.Blocks,
		"parsed", res.Report.Parsed,
		"skipped", res.Report.Skipped,
		"issues", len(res.Report.Issues),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}

// ReadRows loads a sheet as a grid of raw cell strings. Spreadsheet dates come
// back as Excel serials, which parseDate understands.
func ReadRows(path string) ([][]string, error) {
	switch ext := constants.NormalizeExt(filepath.Ext(path)); ext {
	case "xlsx", "xlsm":
		f, err := excelize.OpenFile(path)
		if err != nil {
			return nil, fmt.Errorf("open workbook: %w", err)
		}
		defer func() { _ = f.Close() }()
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("workbook %s has no sheets", filepath.Base(path))
		}
		rows, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
		if err != nil {
			return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
		}
		return rows, nil
	case "csv":
		fh, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer func() { _ = fh.Close() }()
		return readCSV(fh)
	default:
		return nil, fmt.Errorf("unsupported spreadsheet extension: %q", ext)
	}
}

func readCSV(r io.Reader) ([][]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	return rows, nil
}
