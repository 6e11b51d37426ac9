package bundle

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joseph-ayodele/tickets-tracker/internal/common"
	"github.com/joseph-ayodele/tickets-tracker/internal/entity"
	"github.com/joseph-ayodele/tickets-tracker/internal/storage"
)

const (
	LedgerCSV  = "ledger.csv"
	LedgerXLSX = "ledger.xlsx"
	AuditFile  = "audit.json"
	ZipFile    = "bundle.zip"
)

type AssembleOptions struct {
	IncludeImages bool
	Zip           bool
}

// Assembler writes bundles under a root directory. A bundle is built in a
// hidden temp directory and renamed into place only once complete.
type Assembler struct {
	root   string
	images storage.Store
	logger *slog.Logger
}

func NewAssembler(root string, images storage.Store, logger *slog.Logger) (*Assembler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create export dir: %w", err)
	}
	return &Assembler{root: root, images: images, logger: logger}, nil
}

// DirName is the final directory name of a bundle.
func DirName(b entity.ExportBundle) string {
	return fmt.Sprintf("export_%s_%s_%s", b.From.Format("20060102"), b.To.Format("20060102"), b.ID.String()[:8])
}

// Assemble packages b and returns the bundle directory. On any failure the
// partial output is removed.
func (a *Assembler) Assemble(ctx context.Context, b entity.ExportBundle, opts AssembleOptions) (string, error) {
	start := time.Now()
	final := filepath.Join(a.root, DirName(b))
	if _, err := os.Stat(final); err == nil {
		return "", common.NewAppError("BUNDLE_EXISTS", "bundle already exists: "+final, common.ErrConflict)
	}

	tmp, err := os.MkdirTemp(a.root, ".tmp-export-*")
	if err != nil {
		return "", fmt.Errorf("create temp bundle dir: %w", err)
	}
	done := false
	defer func() {
		if !done {
			if rmErr := os.RemoveAll(tmp); rmErr != nil {
				a.logger.Warn("failed to remove temp bundle", "dir", tmp, "error", rmErr)
			}
		}
	}()

	files, err := a.write(ctx, tmp, b, opts)
	if err != nil {
		a.logger.Error("export.bundle.failed", "export_id", b.ID, "error", err)
		return "", err
	}
	if err := Verify(tmp, b, files); err != nil {
		a.logger.Error("export.bundle.verify_failed", "export_id", b.ID, "error", err)
		return "", err
	}
	if opts.Zip {
		if err := zipDir(tmp, filepath.Join(tmp, ZipFile), files); err != nil {
			return "", fmt.Errorf("zip bundle: %w", err)
		}
	}
	if err := os.Rename(tmp, final); err != nil {
		return "", fmt.Errorf("finalize bundle: %w", err)
	}
	done = true

	a.logger.Info("export.bundle.ok",
		"export_id", b.ID,
		"path", final,
		"weeks", len(b.Weeks),
		"tickets", len(b.Ledger),
		"files", len(files),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return final, nil
}

// write emits every artifact and returns their paths relative to dir.
func (a *Assembler) write(ctx context.Context, dir string, b entity.ExportBundle, opts AssembleOptions) ([]string, error) {
	var files []string
	add := func(rel string, rows [][]string) error {
		if err := writeCSV(filepath.Join(dir, rel), rows); err != nil {
			return fmt.Errorf("write %s: %w", rel, err)
		}
		files = append(files, rel)
		return nil
	}

	if err := add(LedgerCSV, ledgerRows(b.Ledger)); err != nil {
		return nil, err
	}
	if err := writeLedgerXLSX(filepath.Join(dir, LedgerXLSX), b); err != nil {
		return nil, fmt.Errorf("write %s: %w", LedgerXLSX, err)
	}
	files = append(files, LedgerXLSX)

	for _, w := range b.Weeks {
		week := WeekDir(w)
		if err := add(filepath.Join(week, "manifest.csv"), manifestRows(w)); err != nil {
			return nil, err
		}
		for _, inv := range w.Invoices {
			rel := filepath.Join(week, ClientDir(inv.ClientID, inv.ClientName), "invoice.csv")
			if err := add(rel, invoiceRows(w, inv)); err != nil {
				return nil, err
			}
		}
	}

	if opts.IncludeImages {
		for _, row := range b.Ledger {
			if row.ImageKey == "" {
				continue
			}
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			rel := ImagePath(row)
			if err := a.copyImage(ctx, row.ImageKey, filepath.Join(dir, rel)); err != nil {
				return nil, fmt.Errorf("copy image for ticket %d: %w", row.TicketNumber, err)
			}
			files = append(files, rel)
		}
	}

	if !b.Report.Empty() {
		buf, err := json.MarshalIndent(auditDoc(b), "", "  ")
		if err != nil {
			return nil, err
		}
		if err := os.WriteFile(filepath.Join(dir, AuditFile), buf, 0o644); err != nil {
			return nil, err
		}
		files = append(files, AuditFile)
	}
	return files, nil
}

func (a *Assembler) copyImage(ctx context.Context, key, dst string) error {
	src, err := a.images.Open(ctx, key)
	if err != nil {
		return err
	}
	defer func() { _ = src.Close() }()
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, src); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

func WeekDir(w entity.WeekGroup) string {
	return weekDir(w.Start)
}

func weekDir(start time.Time) string {
	return "week_" + start.Format("2006-01-02")
}

// ClientDir names a client's directory inside a week. The id keeps clients
// whose names sanitize alike apart.
func ClientDir(id, name string) string {
	return "client_" + Sanitize(name) + "_" + Sanitize(id)
}

// ImagePath is where a ledger row's page image lands in the bundle:
// week_<monday>/client_<name>_<id>/images/<reference>/<ticket><ext>.
func ImagePath(row entity.LedgerRow) string {
	return filepath.Join(
		weekDir(row.WeekStart),
		ClientDir(row.ClientID, row.ClientName),
		"images",
		Sanitize(row.Reference),
		fmt.Sprintf("%d%s", row.TicketNumber, filepath.Ext(row.ImageKey)),
	)
}

// Sanitize makes a client name or reference safe as a path segment.
func Sanitize(name string) string {
	s := strings.Map(func(r rune) rune {
		switch r {
		case '<', '>', ':', '"', '/', '\\', '|', '?', '*':
			return '_'
		}
		if r < 0x20 {
			return '_'
		}
		return r
	}, strings.TrimSpace(name))
	s = strings.Trim(s, ". ")
	if r := []rune(s); len(r) > 50 {
		s = string(r[:50])
	}
	if s == "" {
		return "unnamed"
	}
	return s
}

func writeCSV(path string, rows [][]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

type auditDocument struct {
	ExportID    string         `json:"export_id"`
	From        string         `json:"from"`
	To          string         `json:"to"`
	GeneratedAt time.Time      `json:"generated_at"`
	Tickets     int            `json:"tickets"`
	Report      entity.Report  `json:"report"`
	Totals      map[string]any `json:"totals"`
}

func auditDoc(b entity.ExportBundle) auditDocument {
	weeks := make(map[string]string, len(b.Weeks))
	for _, w := range b.Weeks {
		weeks[w.Start.Format("2006-01-02")] = w.Total.StringFixed(2)
	}
	return auditDocument{
		ExportID:    b.ID.String(),
		From:        b.From.Format("2006-01-02"),
		To:          b.To.Format("2006-01-02"),
		GeneratedAt: time.Now().UTC(),
		Tickets:     len(b.Ledger),
		Report:      b.Report,
		Totals:      map[string]any{"weeks": weeks, "grand_total": GrandTotal(b).StringFixed(2)},
	}
}
