package entity

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LedgerRow is one billable ticket with its resolved billing fields.
type LedgerRow struct {
	WeekStart       time.Time       `json:"week_start"`
	ClientID        string          `json:"client_id"`
	ClientName      string          `json:"client_name"`
	Reference       string          `json:"reference"`
	Note            string          `json:"note"`
	TicketNumber    int64           `json:"ticket_number"`
	EntryDate       time.Time       `json:"entry_date"`
	Net             decimal.Decimal `json:"net_weight"`
	Rate            decimal.Decimal `json:"rate"`
	Amount          decimal.Decimal `json:"amount"`
	ImageKey        string          `json:"image_key,omitempty"`
	MatchConfidence float64         `json:"match_confidence"`
}

// ReferenceLine is one invoice line: all tickets of one reference key billed at one rate.
type ReferenceLine struct {
	Reference   string          `json:"reference"`
	Rate        decimal.Decimal `json:"rate"`
	TicketCount int             `json:"ticket_count"`
	NetWeight   decimal.Decimal `json:"net_weight"`
	Amount      decimal.Decimal `json:"amount"`
	Tickets     []int64         `json:"tickets"`
}

type ClientInvoice struct {
	ClientID   string          `json:"client_id"`
	ClientName string          `json:"client_name"`
	Lines      []ReferenceLine `json:"lines"`
	Subtotal   decimal.Decimal `json:"subtotal"`
}

func (c ClientInvoice) TicketCount() int {
	n := 0
	for _, l := range c.Lines {
		n += l.TicketCount
	}
	return n
}

func (c ClientInvoice) NetWeight() decimal.Decimal {
	w := decimal.Zero
	for _, l := range c.Lines {
		w = w.Add(l.NetWeight)
	}
	return w
}

// ReferenceCount counts distinct reference keys (a key billed at two rates counts once).
func (c ClientInvoice) ReferenceCount() int {
	seen := make(map[string]struct{}, len(c.Lines))
	for _, l := range c.Lines {
		seen[l.Reference] = struct{}{}
	}
	return len(seen)
}

// WeekGroup is a Monday..Saturday invoicing unit.
type WeekGroup struct {
	Start    time.Time       `json:"start"`
	End      time.Time       `json:"end"`
	Invoices []ClientInvoice `json:"invoices"`
	Total    decimal.Decimal `json:"total"`
}

func (w WeekGroup) TicketCount() int {
	n := 0
	for _, inv := range w.Invoices {
		n += inv.TicketCount()
	}
	return n
}

func (w WeekGroup) NetWeight() decimal.Decimal {
	t := decimal.Zero
	for _, inv := range w.Invoices {
		t = t.Add(inv.NetWeight())
	}
	return t
}

// ExportBundle is the immutable content of one finalized export.
type ExportBundle struct {
	ID     uuid.UUID   `json:"id"`
	From   time.Time   `json:"from"`
	To     time.Time   `json:"to"`
	Weeks  []WeekGroup `json:"weeks"`
	Ledger []LedgerRow `json:"ledger"`
	Report Report      `json:"report"`
}
