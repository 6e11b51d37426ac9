// Package aggregate groups billable tickets into Monday..Saturday weeks,
// then clients, then reference lines, and totals them.
package aggregate

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/joseph-ayodele/tickets-tracker/constants"
	"github.com/joseph-ayodele/tickets-tracker/internal/entity"
)

// MoneyPlaces is the precision every amount is rounded to.
const MoneyPlaces = 2

// BillableTicket is a ticket whose client and rate have been resolved.
type BillableTicket struct {
	Ticket     entity.Ticket
	EntryDate  time.Time // calendar day in the export time zone
	ClientID   string
	ClientName string
	Rate       decimal.Decimal
	Match      *entity.MatchResult
}

// Date truncates t to its calendar day, expressed at UTC midnight so dates
// from different zones compare by day alone.
func Date(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// WeekStart returns the Monday of d's week. Sunday belongs to the week that
// started six days earlier.
func WeekStart(d time.Time) time.Time {
	d = Date(d)
	offset := (int(d.Weekday()) + 6) % 7
	return d.AddDate(0, 0, -offset)
}

// WeekEnd is the Saturday closing the week that starts on monday.
func WeekEnd(monday time.Time) time.Time {
	return Date(monday).AddDate(0, 0, 5)
}

func IsSunday(d time.Time) bool { return d.Weekday() == time.Sunday }

// Amount is the rounded monetary value of a weight at a rate.
func Amount(net, rate decimal.Decimal) decimal.Decimal {
	return net.Mul(rate).Round(MoneyPlaces)
}

// SplitSundays separates Sunday entries, which are never billed in a week,
// and reports each as a warning.
func SplitSundays(lines []BillableTicket) ([]BillableTicket, []entity.Issue) {
	kept := make([]BillableTicket, 0, len(lines))
	var issues []entity.Issue
	for _, l := range lines {
		if IsSunday(l.EntryDate) {
			issues = append(issues, entity.Issue{
				Code:     constants.IssueSundayEntry,
				Severity: entity.SeverityWarning,
				Ticket:   l.Ticket.Number,
				Message:  "entered on Sunday " + l.EntryDate.Format("2006-01-02") + "; excluded from weekly billing",
			})
			continue
		}
		kept = append(kept, l)
	}
	return kept, issues
}

type lineKey struct {
	reference string
	rate      string
}

// Aggregate builds the week hierarchy. Sunday entries are skipped. Each
// reference line is priced once as round(sum(net) x rate); subtotals and
// totals are plain sums of those rounded lines. A reference billed at two
// rates in one week yields two lines.
func Aggregate(lines []BillableTicket) []entity.WeekGroup {
	type clientAcc struct {
		id, name string
		lines    map[lineKey]*entity.ReferenceLine
	}
	weeks := map[time.Time]map[string]*clientAcc{}

	for _, l := range lines {
		if IsSunday(l.EntryDate) {
			continue
		}
		ws := WeekStart(l.EntryDate)
		clients, ok := weeks[ws]
		if !ok {
			clients = map[string]*clientAcc{}
			weeks[ws] = clients
		}
		ca, ok := clients[l.ClientID]
		if !ok {
			ca = &clientAcc{id: l.ClientID, name: l.ClientName, lines: map[lineKey]*entity.ReferenceLine{}}
			clients[l.ClientID] = ca
		}
		ref := l.Ticket.Reference.Primary
		k := lineKey{reference: ref, rate: l.Rate.String()}
		rl, ok := ca.lines[k]
		if !ok {
			rl = &entity.ReferenceLine{Reference: ref, Rate: l.Rate, NetWeight: decimal.Zero}
			ca.lines[k] = rl
		}
		rl.TicketCount++
		rl.NetWeight = rl.NetWeight.Add(l.Ticket.Net)
		rl.Tickets = append(rl.Tickets, l.Ticket.Number)
	}

	out := make([]entity.WeekGroup, 0, len(weeks))
	for ws, clients := range weeks {
		wg := entity.WeekGroup{Start: ws, End: WeekEnd(ws), Total: decimal.Zero}
		for _, ca := range clients {
			inv := entity.ClientInvoice{ClientID: ca.id, ClientName: ca.name, Subtotal: decimal.Zero}
			for _, rl := range ca.lines {
				rl.Amount = Amount(rl.NetWeight, rl.Rate)
				sort.Slice(rl.Tickets, func(i, j int) bool { return rl.Tickets[i] < rl.Tickets[j] })
				inv.Lines = append(inv.Lines, *rl)
				inv.Subtotal = inv.Subtotal.Add(rl.Amount)
			}
			sort.Slice(inv.Lines, func(i, j int) bool {
				a, b := inv.Lines[i], inv.Lines[j]
				if a.Reference != b.Reference {
					return a.Reference < b.Reference
				}
				return a.Rate.LessThan(b.Rate)
			})
			wg.Invoices = append(wg.Invoices, inv)
			wg.Total = wg.Total.Add(inv.Subtotal)
		}
		sort.Slice(wg.Invoices, func(i, j int) bool {
			a, b := wg.Invoices[i], wg.Invoices[j]
			if a.ClientName != b.ClientName {
				return a.ClientName < b.ClientName
			}
			return a.ClientID < b.ClientID
		})
		out = append(out, wg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}

// Ledger lists every billed ticket with its own rounded amount, in the same
// week, client, reference order as the invoices.
func Ledger(lines []BillableTicket) []entity.LedgerRow {
	rows := make([]entity.LedgerRow, 0, len(lines))
	for _, l := range lines {
		if IsSunday(l.EntryDate) {
			continue
		}
		row := entity.LedgerRow{
			WeekStart:    WeekStart(l.EntryDate),
			ClientID:     l.ClientID,
			ClientName:   l.ClientName,
			Reference:    l.Ticket.Reference.Primary,
			Note:         l.Ticket.Reference.Note,
			TicketNumber: l.Ticket.Number,
			EntryDate:    Date(l.EntryDate),
			Net:          l.Ticket.Net,
			Rate:         l.Rate,
			Amount:       Amount(l.Ticket.Net, l.Rate),
		}
		if l.Match != nil && l.Match.Matched() {
			row.ImageKey = l.Match.ImageKey
			row.MatchConfidence = l.Match.Confidence
		}
		rows = append(rows, row)
	}
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		switch {
		case !a.WeekStart.Equal(b.WeekStart):
			return a.WeekStart.Before(b.WeekStart)
		case a.ClientName != b.ClientName:
			return a.ClientName < b.ClientName
		case a.Reference != b.Reference:
			return a.Reference < b.Reference
		}
		return a.TicketNumber < b.TicketNumber
	})
	return rows
}
