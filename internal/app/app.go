// Package app builds the component graph shared by the binaries: storage,
// the batch pipeline and the export service, all over one database.
package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/tickets-tracker/constants"
	"github.com/joseph-ayodele/tickets-tracker/internal/audit"
	"github.com/joseph-ayodele/tickets-tracker/internal/bundle"
	"github.com/joseph-ayodele/tickets-tracker/internal/common"
	"github.com/joseph-ayodele/tickets-tracker/internal/entity"
	"github.com/joseph-ayodele/tickets-tracker/internal/export"
	"github.com/joseph-ayodele/tickets-tracker/internal/matcher"
	"github.com/joseph-ayodele/tickets-tracker/internal/ocr"
	"github.com/joseph-ayodele/tickets-tracker/internal/parser"
	"github.com/joseph-ayodele/tickets-tracker/internal/pipeline"
	"github.com/joseph-ayodele/tickets-tracker/internal/repository"
	"github.com/joseph-ayodele/tickets-tracker/internal/storage"
)

// NewLogger returns a JSON logger at the given level (debug|info|warn|error).
func NewLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

// OpenDB connects to the configured database, or to a private in-memory
// SQLite database when inmem is set, checks it and migrates the schema.
func OpenDB(ctx context.Context, cfg *common.Config, inmem bool, logger *slog.Logger) (*repository.DB, error) {
	var (
		db  *repository.DB
		err error
	)
	if inmem {
		db, err = repository.OpenSQLite(ctx, "file:"+uuid.NewString()+"?mode=memory&cache=shared", logger)
	} else {
		db, err = repository.Open(ctx, repository.Config{
			Driver:           cfg.Database.Driver,
			DSN:              cfg.Database.DSN,
			MaxConns:         cfg.Database.MaxConns,
			MinConns:         cfg.Database.MinConns,
			MaxConnLifetime:  cfg.Database.MaxConnLifetime,
			MaxConnIdleTime:  cfg.Database.MaxConnIdleTime,
			DialTimeout:      cfg.Database.DialTimeout,
			StatementTimeout: cfg.Database.StatementTimeout,
		}, logger)
	}
	if err != nil {
		return nil, err
	}
	if err := repository.HealthCheck(ctx, db, 5*time.Second, logger); err != nil {
		repository.Close(db, logger)
		return nil, err
	}
	if err := repository.Migrate(ctx, db, logger); err != nil {
		repository.Close(db, logger)
		return nil, err
	}
	return db, nil
}

// App is the wired component graph.
type App struct {
	Batches repository.BatchRepository
	Tickets repository.TicketRepository
	Matches repository.MatchRepository
	Clients repository.ClientRepository
	Exports repository.ExportRepository

	Store     *storage.FSStore
	Extractor *ocr.Extractor
	Processor *pipeline.Processor
	Recorder  *audit.Recorder
	Exporter  *export.Service
}

// OCRConfig maps the environment settings onto the extractor's.
func OCRConfig(c common.OCRConfig) ocr.Config {
	return ocr.Config{
		Pdftoppm:      c.Pdftoppm,
		Tesseract:     c.Tesseract,
		TesseractLang: c.Lang,
		TessdataDir:   c.TessdataDir,
		DPI:           c.DPI,
		PSM:           c.PSM,
		MaxPages:      c.MaxPages,
		Workers:       c.Workers,
		PageTimeout:   c.PageTimeout,
	}
}

func New(cfg *common.Config, db *repository.DB, logger *slog.Logger) (*App, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, common.NewAppError("CONFIG_ERROR", "invalid EXPORT_TZ", err)
	}
	a := &App{
		Batches: repository.NewBatchRepository(db, logger),
		Tickets: repository.NewTicketRepository(db, loc, logger),
		Matches: repository.NewMatchRepository(db, logger),
		Clients: repository.NewClientRepository(db, logger),
		Exports: repository.NewExportRepository(db, logger),
	}

	if a.Store, err = storage.NewFSStore(cfg.OCR.ArtifactDir, logger); err != nil {
		return nil, common.WrapError(err, "artifact store")
	}
	a.Extractor = ocr.NewExtractor(OCRConfig(cfg.OCR), a.Store, logger)

	m := matcher.New(matcher.Config{
		ExactThreshold:    cfg.Matching.ExactThreshold,
		FuzzyThreshold:    cfg.Matching.FuzzyThreshold,
		AdvisoryThreshold: cfg.Matching.AdvisoryThreshold,
	})
	a.Processor = pipeline.NewProcessor(logger, parser.NewFileParser(loc, logger), a.Extractor, m, a.Batches, a.Tickets, a.Matches)

	if a.Recorder, err = audit.NewRecorder(repository.NewAuditRepository(db, logger), logger); err != nil {
		return nil, common.WrapError(err, "audit recorder")
	}
	assembler, err := bundle.NewAssembler(cfg.Export.OutputDir, a.Store, logger)
	if err != nil {
		return nil, common.WrapError(err, "bundle assembler")
	}
	a.Exporter = export.NewService(export.Config{
		ImagePolicy:       constants.ImagePolicy(strings.ToLower(cfg.Export.ImagePolicy)),
		AdvisoryThreshold: cfg.Matching.AdvisoryThreshold,
		Location:          loc,
		Zip:               cfg.Export.Zip,
	}, a.Tickets, a.Matches, a.Clients, a.Exports, a.Recorder, assembler, logger)
	return a, nil
}

// ImportClients loads a JSON array of clients (with patterns and rates) from
// path into the client reference tables. Rate dates are RFC 3339 timestamps.
func (a *App) ImportClients(ctx context.Context, path string) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, common.WrapError(err, "read clients")
	}
	var clients []entity.Client
	if err := json.Unmarshal(raw, &clients); err != nil {
		return 0, common.NewAppError("BAD_CLIENTS", fmt.Sprintf("decode %s: %v", path, err), common.ErrInvalidInput)
	}
	for i, c := range clients {
		if strings.TrimSpace(c.ID) == "" || strings.TrimSpace(c.Name) == "" {
			return 0, common.NewAppError("BAD_CLIENTS", fmt.Sprintf("client %d needs an id and a name", i), common.ErrInvalidInput)
		}
	}
	if err := a.Clients.Import(ctx, clients); err != nil {
		return 0, err
	}
	return len(clients), nil
}
