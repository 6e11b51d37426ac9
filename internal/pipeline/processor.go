// Package pipeline runs one submitted batch: the spreadsheet parse and the PDF
// extraction run side by side, then tickets are matched to page images and
// everything is persisted.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/joseph-ayodele/tickets-tracker/constants"
	"github.com/joseph-ayodele/tickets-tracker/internal/common"
	"github.com/joseph-ayodele/tickets-tracker/internal/entity"
	"github.com/joseph-ayodele/tickets-tracker/internal/matcher"
	"github.com/joseph-ayodele/tickets-tracker/internal/parser"
	"github.com/joseph-ayodele/tickets-tracker/internal/repository"
	"github.com/joseph-ayodele/tickets-tracker/internal/storage"
)

// SheetParser reads a spreadsheet into tickets.
type SheetParser interface {
	ParseFile(ctx context.Context, path string) (parser.Result, error)
}

// Extractor turns a PDF into page images.
type Extractor interface {
	Extract(ctx context.Context, documentID, path string) (entity.ExtractionResult, error)
}

// Submission is one document pair handed to submit-batch.
type Submission struct {
	SheetPath            string
	PDFPath              string
	ClientHint           string
	AllowMismatchedNames bool
}

// Result is a processed batch with the tickets and matches it produced.
type Result struct {
	Batch   *entity.Batch
	Tickets []entity.Ticket
	Matches []entity.MatchResult
}

type Processor struct {
	logger    *slog.Logger
	parser    SheetParser
	extractor Extractor
	matcher   *matcher.Matcher
	batches   repository.BatchRepository
	tickets   repository.TicketRepository
	matches   repository.MatchRepository
	// documentID derives the artifact identity of a PDF.
	documentID func(path string) (string, error)
}

func NewProcessor(
	logger *slog.Logger,
	sheets SheetParser,
	extractor Extractor,
	m *matcher.Matcher,
	batches repository.BatchRepository,
	tickets repository.TicketRepository,
	matches repository.MatchRepository,
) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = matcher.New(matcher.DefaultConfig())
	}
	return &Processor{
		logger:     logger,
		parser:     sheets,
		extractor:  extractor,
		matcher:    m,
		batches:    batches,
		tickets:    tickets,
		matches:    matches,
		documentID: storage.HashFile,
	}
}

// Submit validates the pair and registers a QUEUED batch for the caller.
func (p *Processor) Submit(ctx context.Context, sub Submission) (*entity.Batch, error) {
	if err := CheckPair(sub.SheetPath, sub.PDFPath, sub.AllowMismatchedNames); err != nil {
		p.logger.Warn("batch.submit.rejected", "sheet", sub.SheetPath, "pdf", sub.PDFPath, "error", err)
		return nil, err
	}
	id := common.IdentityFromContext(ctx)
	b := &entity.Batch{
		SheetPath:   sub.SheetPath,
		PDFPath:     sub.PDFPath,
		ClientHint:  sub.ClientHint,
		Status:      constants.BatchQueued,
		SubmittedBy: id.UserID,
	}
	if err := p.batches.Create(ctx, b); err != nil {
		return nil, fmt.Errorf("create batch: %w", err)
	}
	return b, nil
}

// Run submits and processes a pair in one call.
func (p *Processor) Run(ctx context.Context, sub Submission) (*Result, error) {
	b, err := p.Submit(ctx, sub)
	if err != nil {
		return nil, err
	}
	return p.Process(ctx, b.ID)
}

// Process runs a QUEUED batch to MATCHED, or records it as FAILED.
func (p *Processor) Process(ctx context.Context, batchID uuid.UUID) (*Result, error) {
	start := time.Now()
	b, err := p.batches.Get(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("load batch: %w", err)
	}
	if b.Status != constants.BatchQueued {
		return nil, common.NewAppError("BATCH_STATE", fmt.Sprintf("batch %s is %s", b.ID, b.Status), common.ErrConflict)
	}
	if err := p.batches.SetStatus(ctx, b.ID, constants.BatchRunning); err != nil {
		return nil, err
	}

	res, err := p.process(ctx, b)
	if err != nil {
		p.logger.Error("batch.process.failed", "batch_id", b.ID, "error", err)
		b.Status = constants.BatchFailed
		b.Error = err.Error()
		// the caller's context may be the reason for the failure
		if ferr := p.batches.Finish(context.WithoutCancel(ctx), b); ferr != nil {
			return nil, fmt.Errorf("%w (finish batch: %v)", err, ferr)
		}
		return nil, err
	}

	b.Status = constants.BatchMatched
	if err := p.batches.Finish(ctx, b); err != nil {
		return nil, err
	}
	matched := 0
	for _, m := range res.Matches {
		if m.Matched() {
			matched++
		}
	}
	p.logger.Info("batch.process.ok",
		"batch_id", b.ID,
		"tickets", len(res.Tickets),
		"images", len(b.Extraction.Images),
		"matched", matched,
		"page_failures", len(b.Extraction.Failures),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}

func (p *Processor) process(ctx context.Context, b *entity.Batch) (*Result, error) {
	var (
		parsed    parser.Result
		extracted entity.ExtractionResult
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if parsed, err = p.parser.ParseFile(gctx, b.SheetPath); err != nil {
			return fmt.Errorf("parse %s: %w", filepath.Base(b.SheetPath), err)
		}
		return nil
	})
	g.Go(func() error {
		docID, err := p.documentID(b.PDFPath)
		if err != nil {
			return fmt.Errorf("identify %s: %w", filepath.Base(b.PDFPath), err)
		}
		if extracted, err = p.extractor.Extract(gctx, docID, b.PDFPath); err != nil {
			return fmt.Errorf("extract %s: %w", filepath.Base(b.PDFPath), err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report := parsed.Report
	report.Issues = append(report.Issues, ExtractionIssues(filepath.Base(b.PDFPath), extracted)...)
	b.Parse = &report
	b.Extraction = &extracted
	if err := p.batches.SetStatus(ctx, b.ID, constants.BatchParsed); err != nil {
		return nil, err
	}
	p.logger.Info("batch.parse.ok", "batch_id", b.ID, "tickets", len(parsed.Tickets), "pages", extracted.Pages)

	if err := p.tickets.SaveAll(ctx, b.ID, parsed.Tickets); err != nil {
		return nil, fmt.Errorf("save tickets: %w", err)
	}
	results := p.matcher.Match(parsed.Tickets, extracted.Images)
	if err := p.matches.SaveAll(ctx, b.ID, results); err != nil {
		return nil, fmt.Errorf("save matches: %w", err)
	}
	return &Result{Batch: b, Tickets: parsed.Tickets, Matches: results}, nil
}

// ExtractionIssues reports failed and timed-out pages as warnings.
func ExtractionIssues(source string, res entity.ExtractionResult) []entity.Issue {
	var out []entity.Issue
	for _, f := range res.Failures {
		code := constants.IssuePageFailed
		if f.TimedOut {
			code = constants.IssuePageTimeout
		}
		out = append(out, entity.Issue{
			Code:     code,
			Severity: entity.SeverityWarning,
			Source:   source,
			Row:      f.PageIndex + 1,
			Message:  fmt.Sprintf("page %d: %s", f.PageIndex+1, f.Reason),
		})
	}
	return out
}
