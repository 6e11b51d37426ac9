package entity

import (
	"fmt"

	"github.com/joseph-ayodele/tickets-tracker/constants"
)

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is one itemized finding.
type Issue struct {
	Code     constants.IssueCode `json:"code"`
	Severity Severity            `json:"severity"`
	Ticket   int64               `json:"ticket_number,omitempty"`
	Source   string              `json:"source,omitempty"`
	Row      int                 `json:"row,omitempty"`
	Message  string              `json:"message"`
}

func (i Issue) String() string {
	if i.Ticket != 0 {
		return fmt.Sprintf("%s ticket %d: %s", i.Code, i.Ticket, i.Message)
	}
	return fmt.Sprintf("%s: %s", i.Code, i.Message)
}

// Report accumulates errors and warnings.
type Report struct {
	Errors   []Issue `json:"errors"`
	Warnings []Issue `json:"warnings"`
}

func (r *Report) AddError(code constants.IssueCode, ticket int64, format string, args ...any) {
	r.Errors = append(r.Errors, Issue{Code: code, Severity: SeverityError, Ticket: ticket, Message: fmt.Sprintf(format, args...)})
}

func (r *Report) AddWarning(code constants.IssueCode, ticket int64, format string, args ...any) {
	r.Warnings = append(r.Warnings, Issue{Code: code, Severity: SeverityWarning, Ticket: ticket, Message: fmt.Sprintf(format, args...)})
}

func (r *Report) Add(i Issue) {
	if i.Severity == SeverityError {
		r.Errors = append(r.Errors, i)
		return
	}
	i.Severity = SeverityWarning
	r.Warnings = append(r.Warnings, i)
}

func (r *Report) Merge(o Report) {
	r.Errors = append(r.Errors, o.Errors...)
	r.Warnings = append(r.Warnings, o.Warnings...)
}

func (r Report) HasErrors() bool { return len(r.Errors) > 0 }

func (r Report) Empty() bool { return len(r.Errors) == 0 && len(r.Warnings) == 0 }

// HasConsistencyErrors reports findings that indicate corrupted aggregation.
func (r Report) HasConsistencyErrors() bool {
	for _, e := range r.Errors {
		if e.Code.Consistency() {
			return true
		}
	}
	return false
}

// ParseReport summarizes one spreadsheet parse.
type ParseReport struct {
	Source   string                         `json:"source"`
	Format   string                         `json:"format"`
	Blocks   int                            `json:"blocks"`
	Parsed   int                            `json:"parsed"`
	Skipped  int                            `json:"skipped"`
	ByStatus map[constants.TicketStatus]int `json:"by_status"`
	Issues   []Issue                        `json:"issues"`
}
