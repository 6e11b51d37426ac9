// Package bundle validates an export range and packages the invoices, ledger
// and ticket images into a bundle directory.
package bundle

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/tickets-tracker/constants"
	"github.com/joseph-ayodele/tickets-tracker/internal/aggregate"
	"github.com/joseph-ayodele/tickets-tracker/internal/entity"
	"github.com/joseph-ayodele/tickets-tracker/internal/resolver"
)

// Resolver is satisfied by *resolver.Resolver.
type Resolver interface {
	Resolve(ref string, day time.Time) (resolver.Resolution, *resolver.ResolutionFailure)
}

type Input struct {
	ID     uuid.UUID
	From   time.Time
	To     time.Time
	Client string // optional client id filter

	Tickets []entity.Ticket
	// Matches holds the current match per ticket number.
	Matches map[int64]entity.MatchResult
}

type Options struct {
	Force             bool
	ImagePolicy       constants.ImagePolicy
	AdvisoryThreshold float64
	Location          *time.Location
}

// Validate reports what an export of the input would contain and why it
// would be blocked.
func Validate(in Input, res Resolver, opts Options) entity.Report {
	return Build(in, res, opts).Report
}

// Build resolves, checks and aggregates the input. Without Force, critical
// findings are errors and the bundle must not be assembled. With Force they
// are downgraded to warnings and the affected tickets are left out. Totals
// that do not add up are errors either way.
func Build(in Input, res Resolver, opts Options) entity.ExportBundle {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.ImagePolicy == "" {
		opts.ImagePolicy = constants.ImagePolicyWarn
	}
	from, to := aggregate.Date(in.From), aggregate.Date(in.To)

	var report entity.Report
	critical := func(i entity.Issue) {
		if opts.Force {
			i.Severity = entity.SeverityWarning
			i.Message += " (forced)"
		} else {
			i.Severity = entity.SeverityError
		}
		report.Add(i)
	}
	omit := map[int64]bool{}
	omitted := func(num int64, why constants.IssueCode) {
		if !opts.Force || omit[num] {
			return
		}
		omit[num] = true
		report.AddWarning(constants.IssueOmitted, num, "left out of forced export: %s", why)
	}

	// billable, in range
	var tickets []entity.Ticket
	for _, t := range in.Tickets {
		day := aggregate.Date(t.EntryDate(opts.Location))
		if day.Before(from) || day.After(to) || !t.Status.Billable() {
			continue
		}
		if !t.Net.IsPositive() {
			report.AddWarning(constants.IssueNonPositiveNet, t.Number, "net weight %s is not positive; not billed", t.Net.String())
			continue
		}
		tickets = append(tickets, t)
	}
	sort.SliceStable(tickets, func(i, j int) bool { return tickets[i].Number < tickets[j].Number })

	counts := map[int64]int{}
	for _, t := range tickets {
		counts[t.Number]++
	}
	for _, num := range sortedDuplicates(counts) {
		critical(entity.Issue{Code: constants.IssueDuplicateTicket, Ticket: num,
			Message: fmt.Sprintf("ticket number appears %d times in range", counts[num])})
		omitted(num, constants.IssueDuplicateTicket)
	}

	var lines []aggregate.BillableTicket
	for _, t := range tickets {
		day := aggregate.Date(t.EntryDate(opts.Location))
		r, fail := res.Resolve(t.Reference.Primary, day)
		if fail != nil {
			critical(entity.Issue{Code: constants.IssueUnresolved, Ticket: t.Number, Source: t.SourceFile, Row: t.SourceRow,
				Message: fail.Error()})
			omitted(t.Number, constants.IssueUnresolved)
			continue
		}
		if in.Client != "" && r.ClientID != in.Client {
			continue
		}
		if omit[t.Number] {
			continue
		}
		bt := aggregate.BillableTicket{Ticket: t, EntryDate: day, ClientID: r.ClientID, ClientName: r.ClientName, Rate: r.Rate.PerTonne}
		if m, ok := in.Matches[t.Number]; ok {
			bt.Match = &m
		}
		lines = append(lines, bt)
	}

	lines, sundays := aggregate.SplitSundays(lines)
	for _, i := range sundays {
		report.Add(i)
	}
	kept := lines[:0]
	for _, l := range lines {
		if !hasImage(l) && opts.ImagePolicy == constants.ImagePolicyBlock {
			critical(entity.Issue{Code: constants.IssueMissingImage, Ticket: l.Ticket.Number, Message: "no matched ticket image"})
			omitted(l.Ticket.Number, constants.IssueMissingImage)
			if opts.Force {
				continue
			}
		} else {
			checkImage(&report, l, opts)
		}
		kept = append(kept, l)
	}
	lines = kept

	weeks := aggregate.Aggregate(lines)
	for _, i := range aggregate.CheckConsistency(weeks) {
		report.Add(i)
	}

	return entity.ExportBundle{
		ID:     in.ID,
		From:   from,
		To:     to,
		Weeks:  weeks,
		Ledger: aggregate.Ledger(lines),
		Report: report,
	}
}

func hasImage(l aggregate.BillableTicket) bool {
	return l.Match != nil && l.Match.PageIndex != entity.NoPage
}

func checkImage(report *entity.Report, l aggregate.BillableTicket, opts Options) {
	num := l.Ticket.Number
	switch {
	case !hasImage(l):
		report.AddWarning(constants.IssueMissingImage, num, "no matched ticket image")
	case !l.Match.Matched() || l.Match.Confidence < opts.AdvisoryThreshold:
		report.AddWarning(constants.IssueLowConfidence, num, "image on page %d matched with confidence %.2f (%s)",
			l.Match.PageIndex+1, l.Match.Confidence, l.Match.Disposition)
	}
}

func sortedDuplicates(counts map[int64]int) []int64 {
	var out []int64
	for n, c := range counts {
		if c > 1 {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
