package bundle

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"

	"github.com/shopspring/decimal"

	"github.com/joseph-ayodele/tickets-tracker/internal/common"
	"github.com/joseph-ayodele/tickets-tracker/internal/entity"
)

// Verify reads a written bundle back and checks it against b: every file is
// present, the ledger has one row per ticket with the same amounts, and each
// manifest and invoice adds up to the totals they state.
func Verify(dir string, b entity.ExportBundle, files []string) error {
	fail := func(format string, args ...any) error {
		return common.NewAppError("BUNDLE_INCONSISTENT", fmt.Sprintf(format, args...), common.ErrConsistency)
	}
	for _, rel := range files {
		if _, err := os.Stat(filepath.Join(dir, rel)); err != nil {
			return fail("missing artifact %s", rel)
		}
	}

	rows, err := readCSV(filepath.Join(dir, LedgerCSV))
	if err != nil {
		return err
	}
	if got := len(rows) - 1; got != len(b.Ledger) {
		return fail("ledger has %d rows, want %d", got, len(b.Ledger))
	}
	want := decimal.Zero
	for _, r := range b.Ledger {
		want = want.Add(r.Amount)
	}
	got, err := sumColumn(rows[1:], 8)
	if err != nil {
		return fail("ledger: %v", err)
	}
	if !got.Equal(want) {
		return fail("ledger amounts sum to %s, want %s", money(got), money(want))
	}

	for _, w := range b.Weeks {
		week := WeekDir(w)
		if err := checkTotals(filepath.Join(dir, week, "manifest.csv"), 5, w.Total); err != nil {
			return fail("%s manifest: %v", week, err)
		}
		for _, inv := range w.Invoices {
			rel := filepath.Join(week, ClientDir(inv.ClientID, inv.ClientName), "invoice.csv")
			if err := checkTotals(filepath.Join(dir, rel), 4, inv.Subtotal); err != nil {
				return fail("%s: %v", rel, err)
			}
		}
	}
	return nil
}

// checkTotals expects a header, detail rows, then a closing total row whose
// value in col equals both the detail sum and want.
func checkTotals(path string, col int, want decimal.Decimal) error {
	rows, err := readCSV(path)
	if err != nil {
		return err
	}
	if len(rows) < 2 {
		return fmt.Errorf("no total row")
	}
	body, last := rows[1:len(rows)-1], rows[len(rows)-1]
	sum, err := sumColumn(body, col)
	if err != nil {
		return err
	}
	stated, err := decimal.NewFromString(last[col])
	if err != nil {
		return fmt.Errorf("total %q: %w", last[col], err)
	}
	if !sum.Equal(stated) || !stated.Equal(want) {
		return fmt.Errorf("rows sum to %s, stated %s, want %s", money(sum), money(stated), money(want))
	}
	return nil
}

func sumColumn(rows [][]string, col int) (decimal.Decimal, error) {
	sum := decimal.Zero
	for i, r := range rows {
		if col >= len(r) {
			return sum, fmt.Errorf("row %d is short", i+2)
		}
		v, err := decimal.NewFromString(r[col])
		if err != nil {
			return sum, fmt.Errorf("row %d: %w", i+2, err)
		}
		sum = sum.Add(v)
	}
	return sum, nil
}

func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return csv.NewReader(f).ReadAll()
}
