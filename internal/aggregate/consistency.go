package aggregate

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/joseph-ayodele/tickets-tracker/constants"
	"github.com/joseph-ayodele/tickets-tracker/internal/entity"
)

// CheckConsistency re-derives every line amount, client subtotal and week
// total from the level below and reports each disagreement as an error.
func CheckConsistency(weeks []entity.WeekGroup) []entity.Issue {
	var issues []entity.Issue
	add := func(code constants.IssueCode, format string, args ...any) {
		issues = append(issues, entity.Issue{Code: code, Severity: entity.SeverityError, Message: fmt.Sprintf(format, args...)})
	}
	for _, w := range weeks {
		week := w.Start.Format("2006-01-02")
		weekSum := decimal.Zero
		for _, inv := range w.Invoices {
			sub := decimal.Zero
			for _, l := range inv.Lines {
				if want := Amount(l.NetWeight, l.Rate); !want.Equal(l.Amount) {
					add(constants.IssueLineMismatch, "week %s client %s reference %s: line amount %s, expected %s",
						week, inv.ClientName, l.Reference, l.Amount.StringFixed(MoneyPlaces), want.StringFixed(MoneyPlaces))
				}
				sub = sub.Add(l.Amount)
			}
			if !sub.Equal(inv.Subtotal) {
				add(constants.IssueSubtotalMismatch, "week %s client %s: subtotal %s, lines sum to %s",
					week, inv.ClientName, inv.Subtotal.StringFixed(MoneyPlaces), sub.StringFixed(MoneyPlaces))
			}
			weekSum = weekSum.Add(inv.Subtotal)
		}
		if !weekSum.Equal(w.Total) {
			add(constants.IssueWeekTotalMismatch, "week %s: total %s, client subtotals sum to %s",
				week, w.Total.StringFixed(MoneyPlaces), weekSum.StringFixed(MoneyPlaces))
		}
	}
	return issues
}
