package aggregate

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/tickets-tracker/constants"
	"github.com/joseph-ayodele/tickets-tracker/internal/entity"
)

func d(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func bt(num int64, ref, net, rate, day, clientID, clientName string) BillableTicket {
	return BillableTicket{
		Ticket: entity.Ticket{
			Number:    num,
			Status:    constants.TicketReprint,
			Net:       dec(net),
			Reference: entity.ReferenceKey{Primary: ref},
		},
		EntryDate:  d(day),
		ClientID:   clientID,
		ClientName: clientName,
		Rate:       dec(rate),
	}
}

func TestWeekStart(t *testing.T) {
	cases := map[string]string{
		"2024-05-13": "2024-05-13", // Monday
		"2024-05-15": "2024-05-13",
		"2024-05-18": "2024-05-13", // Saturday
		"2024-05-19": "2024-05-13", // Sunday
		"2024-05-20": "2024-05-20",
		"2024-01-01": "2024-01-01",
		"2023-12-31": "2023-12-25",
	}
	for in, want := range cases {
		assert.Equal(t, d(want), WeekStart(d(in)), in)
	}
	assert.Equal(t, d("2024-05-18"), WeekEnd(d("2024-05-13")))

	loc := time.FixedZone("X", -5*3600)
	assert.Equal(t, d("2024-05-13"), WeekStart(time.Date(2024, 5, 14, 23, 0, 0, 0, loc)))
}

func TestAggregateSingleTicketWeek(t *testing.T) {
	weeks := Aggregate([]BillableTicket{bt(1, "#007", "8.5", "25.00", "2024-05-14", "c1", "Acme")})
	require.Len(t, weeks, 1)
	require.Len(t, weeks[0].Invoices, 1)
	require.Len(t, weeks[0].Invoices[0].Lines, 1)
	assert.Equal(t, "212.50", weeks[0].Invoices[0].Lines[0].Amount.StringFixed(2))
	assert.Equal(t, "212.50", weeks[0].Total.StringFixed(2))
}

func TestAggregateSharedReferenceBillsOneLine(t *testing.T) {
	weeks := Aggregate([]BillableTicket{
		bt(1, "#007", "10.00", "25.00", "2024-05-14", "c1", "Acme"),
		bt(2, "#007", "17.00", "25.00", "2024-05-16", "c1", "Acme"),
	})
	require.Len(t, weeks, 1)
	line := weeks[0].Invoices[0].Lines[0]
	assert.Equal(t, 2, line.TicketCount)
	assert.Equal(t, "27.00", line.NetWeight.StringFixed(2))
	assert.Equal(t, "675.00", line.Amount.StringFixed(2))
	assert.Equal(t, []int64{1, 2}, line.Tickets)
}

func TestAggregateRoundsAtLineLevel(t *testing.T) {
	// per-ticket rounding would give 0.26 + 0.26 = 0.52; the line gives 0.51
	weeks := Aggregate([]BillableTicket{
		bt(1, "#A1", "0.01", "25.5", "2024-05-14", "c1", "Acme"),
		bt(2, "#A1", "0.01", "25.5", "2024-05-14", "c1", "Acme"),
	})
	require.Len(t, weeks, 1)
	assert.Equal(t, "0.51", weeks[0].Invoices[0].Lines[0].Amount.StringFixed(2))
	assert.Equal(t, "0.51", weeks[0].Total.StringFixed(2))

	ledger := Ledger([]BillableTicket{
		bt(1, "#A1", "0.01", "25.5", "2024-05-14", "c1", "Acme"),
	})
	require.Len(t, ledger, 1)
	assert.Equal(t, "0.26", ledger[0].Amount.StringFixed(2))
}

func TestAggregateOrderingAndSplits(t *testing.T) {
	weeks := Aggregate([]BillableTicket{
		bt(5, "#B", "1", "10", "2024-05-21", "c2", "Zeta"),
		bt(4, "#B", "2", "12", "2024-05-17", "c1", "Acme"), // rate change mid-week
		bt(3, "#B", "1", "10", "2024-05-14", "c1", "Acme"),
		bt(2, "#A", "1", "10", "2024-05-14", "c1", "Acme"),
		bt(1, "#Z", "1", "10", "2024-05-14", "c2", "Zeta"),
		bt(9, "#Z", "1", "10", "2024-05-19", "c2", "Zeta"), // Sunday
	})
	require.Len(t, weeks, 2)

	w1 := weeks[0]
	assert.Equal(t, d("2024-05-13"), w1.Start)
	assert.Equal(t, d("2024-05-18"), w1.End)
	require.Len(t, w1.Invoices, 2)
	assert.Equal(t, "Acme", w1.Invoices[0].ClientName)
	assert.Equal(t, "Zeta", w1.Invoices[1].ClientName)

	acme := w1.Invoices[0]
	require.Len(t, acme.Lines, 3)
	assert.Equal(t, "#A", acme.Lines[0].Reference)
	assert.Equal(t, "#B", acme.Lines[1].Reference)
	assert.Equal(t, "10", acme.Lines[1].Rate.String())
	assert.Equal(t, "#B", acme.Lines[2].Reference)
	assert.Equal(t, "24.00", acme.Lines[2].Amount.StringFixed(2))
	assert.Equal(t, "44.00", acme.Subtotal.StringFixed(2))
	assert.Equal(t, 2, acme.ReferenceCount())
	assert.Equal(t, 3, acme.TicketCount())

	assert.Equal(t, 1, w1.Invoices[1].TicketCount())
	assert.Equal(t, "54.00", w1.Total.StringFixed(2))
	assert.Equal(t, 4, w1.TicketCount())

	assert.Equal(t, d("2024-05-20"), weeks[1].Start)
	assert.Empty(t, CheckConsistency(weeks))
}

func TestSplitSundays(t *testing.T) {
	kept, issues := SplitSundays([]BillableTicket{
		bt(1, "#A", "1", "10", "2024-05-18", "c", "C"),
		bt(2, "#A", "1", "10", "2024-05-19", "c", "C"),
	})
	require.Len(t, kept, 1)
	require.Len(t, issues, 1)
	assert.Equal(t, constants.IssueSundayEntry, issues[0].Code)
	assert.Equal(t, int64(2), issues[0].Ticket)
	assert.Equal(t, entity.SeverityWarning, issues[0].Severity)
}

func TestLedgerOrderAndImage(t *testing.T) {
	b := bt(7, "#A", "2", "10", "2024-05-14", "c1", "Acme")
	b.Match = &entity.MatchResult{PageIndex: 3, ImageKey: "pages/x/page-004.png", Confidence: 0.91, Disposition: constants.DispositionMatched}
	unmatched := bt(6, "#A", "1", "10", "2024-05-14", "c1", "Acme")
	unmatched.Match = &entity.MatchResult{PageIndex: entity.NoPage, Disposition: constants.DispositionUnmatched}

	rows := Ledger([]BillableTicket{b, unmatched, bt(1, "#A", "1", "10", "2024-05-21", "c1", "Acme")})
	require.Len(t, rows, 3)
	assert.Equal(t, int64(6), rows[0].TicketNumber)
	assert.Empty(t, rows[0].ImageKey)
	assert.Equal(t, int64(7), rows[1].TicketNumber)
	assert.Equal(t, "pages/x/page-004.png", rows[1].ImageKey)
	assert.Equal(t, "20.00", rows[1].Amount.StringFixed(2))
	assert.Equal(t, int64(1), rows[2].TicketNumber)
}

func TestCheckConsistencyFindsMismatches(t *testing.T) {
	weeks := Aggregate([]BillableTicket{
		bt(1, "#A", "1", "10", "2024-05-14", "c1", "Acme"),
		bt(2, "#B", "1", "10", "2024-05-14", "c2", "Bolt"),
	})
	require.Len(t, weeks, 1)

	weeks[0].Invoices[0].Lines[0].Amount = dec("11")
	weeks[0].Invoices[1].Subtotal = dec("9")
	weeks[0].Total = dec("100")

	issues := CheckConsistency(weeks)
	codes := map[constants.IssueCode]int{}
	for _, i := range issues {
		codes[i.Code]++
		assert.Equal(t, entity.SeverityError, i.Severity)
	}
	assert.Equal(t, 1, codes[constants.IssueLineMismatch])
	assert.Equal(t, 2, codes[constants.IssueSubtotalMismatch])
	assert.Equal(t, 1, codes[constants.IssueWeekTotalMismatch])
}
