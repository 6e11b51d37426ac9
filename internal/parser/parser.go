// Package parser turns weighbridge spreadsheets into ticket records.
//
// Two layouts are understood. The multi-row layout repeats a block per
// ticket, opened by a "TICKET #" header row, with labelled cells
// ("REFERENCE:", "ENTER:", "GROSS", ...) in the rows below. The flat layout
// is a header row followed by one ticket per row. Both are reduced with the
// same block accumulator, so status, weight and date rules are shared.
package parser

import (
	"strings"
	"time"

	"github.com/joseph-ayodele/tickets-tracker/constants"
	"github.com/joseph-ayodele/tickets-tracker/internal/entity"
)

const (
	FormatMultiRow = "multi-row"
	FormatFlat     = "flat"

	blockHeader = "TICKET #"
	detectRows  = 20

	// DefaultMaterial is used when a block names no material.
	DefaultMaterial = "CONST. & DEMO."
)

// Options configure one parse.
type Options struct {
	Source   string         // file identity recorded on tickets and issues
	Location *time.Location // zone for entry/exit timestamps, UTC when nil
}

// Result is the parse output: valid tickets in source order plus the report.
type Result struct {
	Tickets []entity.Ticket
	Report  entity.ParseReport
}

// Parse reduces rows into tickets. It never fails: malformed blocks are
// reported and skipped.
func Parse(rows [][]string, opts Options) Result {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	format := DetectFormat(rows)

	var acc accumulator
	if format == FormatMultiRow {
		for i, row := range rows {
			acc = acc.step(i+1, row)
		}
	} else {
		acc = foldFlat(rows)
	}
	acc = acc.closeBlock()

	report := entity.ParseReport{
		Source:   opts.Source,
		Format:   format,
		Blocks:   len(acc.blocks),
		ByStatus: map[constants.TicketStatus]int{},
		Issues:   acc.issues,
	}
	for i := range report.Issues {
		report.Issues[i].Source = opts.Source
	}

	seen := make(map[int64]int, len(acc.blocks))
	var tickets []entity.Ticket
	for _, b := range acc.blocks {
		t, issues, ok := b.finalize(opts.Location)
		for _, is := range issues {
			is.Source = opts.Source
			report.Issues = append(report.Issues, is)
		}
		if !ok {
			report.Skipped++
			continue
		}
		if firstRow, dup := seen[t.Number]; dup {
			report.Skipped++
			report.Issues = append(report.Issues, entity.Issue{
				Code: constants.IssueDuplicateInFile, Severity: entity.SeverityError,
				Ticket: t.Number, Source: opts.Source, Row: b.startRow,
				Message: "ticket number already used by the block at row " + itoa(firstRow),
			})
			continue
		}
		seen[t.Number] = b.startRow
		t.SourceFile = opts.Source
		tickets = append(tickets, t)
		report.ByStatus[t.Status]++
	}
	report.Parsed = len(tickets)
	return Result{Tickets: tickets, Report: report}
}

// DetectFormat reports multi-row when any row is a block header, flat
// otherwise. A single-ticket sheet has only one header.
func DetectFormat(rows [][]string) string {
	for _, row := range rows {
		if isBlockHeader(row) && !isColumnHeader(cell(row, 1)) {
			return FormatMultiRow
		}
	}
	return FormatFlat
}

func isBlockHeader(row []string) bool {
	return len(row) > 0 && normLabel(row[0]) == "TICKET #"
}

// isColumnHeader distinguishes a flat table header ("Ticket #", "Status", ...)
// from a block header whose second cell holds the ticket number.
func isColumnHeader(v string) bool {
	_, ok := headerNames[normLabel(v)]
	return ok
}

// normLabel upper-cases, trims and drops a trailing colon.
func normLabel(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	s = strings.TrimSpace(strings.TrimSuffix(s, ":"))
	return strings.Join(strings.Fields(s), " ")
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}
