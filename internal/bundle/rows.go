package bundle

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/tickets-tracker/internal/entity"
)

var (
	ledgerHeader   = []string{"Week Start", "Client", "Reference", "Note", "Ticket", "Entry Date", "Net Tonnes", "Rate", "Amount", "Image", "Match Confidence"}
	manifestHeader = []string{"Client", "Client ID", "References", "Tickets", "Net Tonnes", "Subtotal"}
	invoiceHeader  = []string{"Reference", "Rate", "Tickets", "Net Tonnes", "Amount", "Ticket Numbers"}
)

const (
	totalLabel    = "TOTAL"
	subtotalLabel = "SUBTOTAL"
)

func money(d decimal.Decimal) string { return d.StringFixed(2) }

func tonnes(d decimal.Decimal) string { return d.StringFixed(2) }

func ledgerRows(ledger []entity.LedgerRow) [][]string {
	rows := [][]string{ledgerHeader}
	for _, r := range ledger {
		conf := ""
		if r.ImageKey != "" {
			conf = strconv.FormatFloat(r.MatchConfidence, 'f', 2, 64)
		}
		rows = append(rows, []string{
			r.WeekStart.Format("2006-01-02"),
			r.ClientName,
			r.Reference,
			r.Note,
			strconv.FormatInt(r.TicketNumber, 10),
			r.EntryDate.Format("2006-01-02"),
			tonnes(r.Net),
			money(r.Rate),
			money(r.Amount),
			r.ImageKey,
			conf,
		})
	}
	return rows
}

func manifestRows(w entity.WeekGroup) [][]string {
	rows := [][]string{manifestHeader}
	for _, inv := range w.Invoices {
		rows = append(rows, []string{
			inv.ClientName,
			inv.ClientID,
			strconv.Itoa(inv.ReferenceCount()),
			strconv.Itoa(inv.TicketCount()),
			tonnes(inv.NetWeight()),
			money(inv.Subtotal),
		})
	}
	rows = append(rows, []string{totalLabel, "", "", strconv.Itoa(w.TicketCount()), tonnes(w.NetWeight()), money(w.Total)})
	return rows
}

func invoiceRows(w entity.WeekGroup, inv entity.ClientInvoice) [][]string {
	rows := [][]string{invoiceHeader}
	for _, l := range inv.Lines {
		nums := make([]string, len(l.Tickets))
		for i, n := range l.Tickets {
			nums[i] = strconv.FormatInt(n, 10)
		}
		rows = append(rows, []string{
			l.Reference,
			money(l.Rate),
			strconv.Itoa(l.TicketCount),
			tonnes(l.NetWeight),
			money(l.Amount),
			strings.Join(nums, " "),
		})
	}
	rows = append(rows, []string{subtotalLabel, "", strconv.Itoa(inv.TicketCount()), tonnes(inv.NetWeight()), money(inv.Subtotal), ""})
	return rows
}

// GrandTotal sums the week totals.
func GrandTotal(b entity.ExportBundle) decimal.Decimal {
	t := decimal.Zero
	for _, w := range b.Weeks {
		t = t.Add(w.Total)
	}
	return t
}

// writeLedgerXLSX writes the ledger and a per-week client summary as sheets.
func writeLedgerXLSX(path string, b entity.ExportBundle) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	const ledgerSheet, weeksSheet = "Ledger", "Weeks"
	if err := f.SetSheetName("Sheet1", ledgerSheet); err != nil {
		return err
	}
	if _, err := f.NewSheet(weeksSheet); err != nil {
		return err
	}

	if err := f.SetSheetRow(ledgerSheet, "A1", &ledgerHeader); err != nil {
		return err
	}
	row := 2
	for _, r := range b.Ledger {
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(ledgerSheet, cell, v)
		}
		write(1, r.WeekStart.Format("2006-01-02"))
		write(2, r.ClientName)
		write(3, r.Reference)
		write(4, r.Note)
		write(5, r.TicketNumber)
		write(6, r.EntryDate.Format("2006-01-02"))
		write(7, r.Net.InexactFloat64())
		write(8, r.Rate.InexactFloat64())
		write(9, r.Amount.InexactFloat64())
		write(10, r.ImageKey)
		if r.ImageKey != "" {
			write(11, r.MatchConfidence)
		}
		row++
	}
	_ = f.SetColWidth(ledgerSheet, "A", "A", 12)
	_ = f.SetColWidth(ledgerSheet, "B", "B", 28)
	_ = f.SetColWidth(ledgerSheet, "C", "D", 22)
	_ = f.SetColWidth(ledgerSheet, "G", "I", 12)
	_ = f.SetColWidth(ledgerSheet, "J", "J", 40)

	header := []any{"Week Start", "Week End", "Client", "Tickets", "Net Tonnes", "Subtotal"}
	if err := f.SetSheetRow(weeksSheet, "A1", &header); err != nil {
		return err
	}
	row = 2
	for _, w := range b.Weeks {
		for _, inv := range w.Invoices {
			cell, _ := excelize.CoordinatesToCellName(1, row)
			vals := []any{
				w.Start.Format("2006-01-02"),
				w.End.Format("2006-01-02"),
				inv.ClientName,
				inv.TicketCount(),
				inv.NetWeight().InexactFloat64(),
				inv.Subtotal.InexactFloat64(),
			}
			if err := f.SetSheetRow(weeksSheet, cell, &vals); err != nil {
				return err
			}
			row++
		}
	}
	cell, _ := excelize.CoordinatesToCellName(1, row)
	total := []any{totalLabel, "", "", len(b.Ledger), "", GrandTotal(b).InexactFloat64()}
	if err := f.SetSheetRow(weeksSheet, cell, &total); err != nil {
		return err
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("xlsx write: %w", err)
	}
	return nil
}
