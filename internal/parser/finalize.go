package parser

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/joseph-ayodele/tickets-tracker/constants"
	"github.com/joseph-ayodele/tickets-tracker/internal/entity"
	"github.com/joseph-ayodele/tickets-tracker/internal/reference"
)

// finalize converts a closed block into a ticket. ok is false when the block
// is malformed and must be skipped; issues are returned either way.
func (b *block) finalize(loc *time.Location) (entity.Ticket, []entity.Issue, bool) {
	var issues []entity.Issue
	issue := func(code constants.IssueCode, sev entity.Severity, ticket int64, msg string) {
		issues = append(issues, entity.Issue{Code: code, Severity: sev, Ticket: ticket, Row: b.startRow, Message: msg})
	}

	number, ok := parseTicketNumber(b.rawNumber)
	if !ok {
		issue(constants.IssueMalformedBlock, entity.SeverityError, 0, "unreadable ticket number "+quote(b.rawNumber))
		return entity.Ticket{}, issues, false
	}

	entry, ok := combine(b.enterDate, b.enterTime, loc)
	if !ok {
		issue(constants.IssueMissingEntryDate, entity.SeverityError, number, "missing or unreadable entry date "+quote(b.enterDate))
		return entity.Ticket{}, issues, false
	}

	status, loneVoid := statusOf(b.markers)
	if loneVoid {
		issue(constants.IssueVoidWithoutReprint, entity.SeverityWarning, number, "void marker without a preceding reprint; ticket kept as ORIGINAL")
	}

	t := entity.Ticket{
		Number:       number,
		Status:       status,
		EntryAt:      entry,
		RawReference: b.reference,
		Reference:    reference.Resolve(b.reference),
		Vehicle:      b.vehicle,
		License:      b.license,
		Attendant:    b.attendant,
		SourceRow:    b.startRow,
		Material:     strings.Join(b.material, " "),
	}
	if t.Material == "" {
		t.Material = DefaultMaterial
	}
	if exit, ok := combine(b.exitDate, b.exitTime, loc); ok {
		t.ExitAt = &exit
	}

	weights := map[string]decimal.Decimal{}
	for _, label := range []string{"GROSS", "TARE", "NET"} {
		raw, present := b.weights[label]
		if !present {
			continue
		}
		read := parseWeight
		if b.flat {
			read = parseFlatWeight
		}
		w, ok := read(raw)
		if !ok {
			issue(constants.IssueMalformedWeight, entity.SeverityWarning, number, label+" weight "+quote(raw)+" unreadable, using 0")
		}
		weights[label] = w
		if w.GreaterThan(maxTonnes) {
			issue(constants.IssueWeightOutOfRange, entity.SeverityWarning, number, label+" weight "+w.StringFixed(2)+" t exceeds 200 t")
		}
	}
	gross, hasGross := weights["GROSS"]
	tare, hasTare := weights["TARE"]
	net, hasNet := weights["NET"]
	switch {
	case hasGross && hasTare:
		calc := gross.Sub(tare)
		if hasNet && !net.Equal(calc) {
			issue(constants.IssueNetMismatch, entity.SeverityWarning, number,
				"NET "+net.StringFixed(3)+" differs from GROSS-TARE "+calc.StringFixed(3)+"; using GROSS-TARE")
		}
		net = calc
	case hasNet && hasTare:
		gross = net.Add(tare)
	case hasNet:
		gross = net
	case hasGross:
		net = gross
	default:
		issue(constants.IssueMalformedWeight, entity.SeverityWarning, number, "block carries no weights")
	}
	if net.IsNegative() {
		issue(constants.IssueMalformedWeight, entity.SeverityWarning, number, "tare exceeds gross, net set to 0")
		net, tare = decimal.Zero, gross
	}
	t.Gross, t.Tare, t.Net = gross, tare, net
	return t, issues, true
}

func quote(s string) string { return `"` + s + `"` }
