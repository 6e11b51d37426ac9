// Package ocr splits ticket PDFs into page images and recognizes the ticket
// number printed on each page.
package ocr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/joseph-ayodele/tickets-tracker/internal/entity"
	"github.com/joseph-ayodele/tickets-tracker/internal/storage"
)

type Config struct {
	Pdftoppm  string // binary name or absolute path; if empty -> "pdftoppm"
	Tesseract string // binary name or absolute path; if empty -> "tesseract"

	TesseractLang string // default "eng"
	TessdataDir   string
	DPI           int // rasterization DPI, default 300
	PSM           int // page segmentation mode, default 6 (uniform block of text)
	MaxPages      int // 0 = no limit

	Workers     int           // pages recognized concurrently, default 4
	PageTimeout time.Duration // per-page budget for rasterize + recognize, default 45s
}

type Extractor struct {
	cfg    Config
	runner Runner
	store  storage.Store
	logger *slog.Logger

	// swapped in tests; real PDFs are read with ledongthuc/pdf
	pageCount func(path string) (int, error)
	textLayer func(path string, page int) string
}

func NewExtractor(cfg Config, store storage.Store, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Pdftoppm == "" {
		cfg.Pdftoppm = "pdftoppm"
	}
	if cfg.Tesseract == "" {
		cfg.Tesseract = "tesseract"
	}
	if cfg.TesseractLang == "" {
		cfg.TesseractLang = "eng"
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 300
	}
	if cfg.PSM <= 0 {
		cfg.PSM = 6
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.PageTimeout <= 0 {
		cfg.PageTimeout = 45 * time.Second
	}
	return &Extractor{
		cfg:       cfg,
		runner:    execRunner{logger: logger},
		store:     store,
		logger:    logger,
		pageCount: pdfPageCount,
		textLayer: pdfPageText,
	}
}

// WithRunner replaces the command runner.
func (e *Extractor) WithRunner(r Runner) *Extractor {
	e.runner = r
	return e
}

// Extract produces one ExtractedImage per page. A page that fails or runs out
// of time is reported in Failures; only an unreadable document is an error.
func (e *Extractor) Extract(ctx context.Context, documentID, path string) (entity.ExtractionResult, error) {
	start := time.Now()
	res := entity.ExtractionResult{DocumentID: documentID}

	pages, err := e.pageCount(path)
	if err != nil {
		e.logger.Error("ocr.pdf.unreadable", "path", path, "error", err)
		return res, fmt.Errorf("read pdf %s: %w", path, err)
	}
	if e.cfg.MaxPages > 0 && pages > e.cfg.MaxPages {
		pages = e.cfg.MaxPages
	}
	res.Pages = pages

	tmpDir, err := os.MkdirTemp("", "tt-pages-*")
	if err != nil {
		return res, err
	}
	defer func() {
		if err := os.RemoveAll(tmpDir); err != nil {
			e.logger.Warn("failed to remove temp dir", "dir", tmpDir, "error", err)
		}
	}()

	images := make([]*entity.ExtractedImage, pages)
	failures := make([]*entity.PageFailure, pages)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Workers)
	for i := 0; i < pages; i++ {
		i := i
		g.Go(func() error {
			pctx, cancel := context.WithTimeout(gctx, e.cfg.PageTimeout)
			defer cancel()
			img, err := e.extractPage(pctx, documentID, path, tmpDir, i)
			if err != nil {
				timedOut := errors.Is(pctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil
				failures[i] = &entity.PageFailure{PageIndex: i, Reason: err.Error(), TimedOut: timedOut}
				e.logger.Warn("ocr.page.failed", "document_id", documentID, "page", i, "timed_out", timedOut, "error", err)
				return nil
			}
			images[i] = &img
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return res, err
	}

	for i := 0; i < pages; i++ {
		if images[i] != nil {
			res.Images = append(res.Images, *images[i])
		}
		if failures[i] != nil {
			res.Failures = append(res.Failures, *failures[i])
		}
	}
	sort.Slice(res.Images, func(a, b int) bool { return res.Images[a].PageIndex < res.Images[b].PageIndex })
	res.Duration = time.Since(start)

	e.logger.Info("ocr.extract.ok",
		"document_id", documentID,
		"pages", pages,
		"images", len(res.Images),
		"failures", len(res.Failures),
		"elapsed_ms", res.Duration.Milliseconds(),
	)
	return res, nil
}

func (e *Extractor) extractPage(ctx context.Context, documentID, path, tmpDir string, idx int) (entity.ExtractedImage, error) {
	png, err := e.rasterize(ctx, path, tmpDir, idx)
	if err != nil {
		return entity.ExtractedImage{}, err
	}

	text, ocrConf, err := e.recognize(ctx, png)
	if err != nil {
		return entity.ExtractedImage{}, err
	}
	if layer := Normalize(e.textLayer(path, idx+1)); layer != "" {
		text = layer + "\n" + text
	}

	key := storage.PageKey(documentID, idx)
	f, err := os.Open(png)
	if err != nil {
		return entity.ExtractedImage{}, err
	}
	defer func() { _ = f.Close() }()
	if err := e.store.Put(ctx, key, f); err != nil {
		return entity.ExtractedImage{}, fmt.Errorf("store page %d: %w", idx, err)
	}

	number, score := DetectTicketNumber(text)
	return entity.ExtractedImage{
		DocumentID:     documentID,
		PageIndex:      idx,
		DetectedNumber: number,
		Text:           text,
		Confidence:     blendConfidence(ocrConf, score, text),
		ArtifactKey:    key,
	}, nil
}
