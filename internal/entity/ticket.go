package entity

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/joseph-ayodele/tickets-tracker/constants"
)

// ReferenceKey is the canonical primary token of a free-text reference plus
// the note that accompanied it. Computed once at parse time.
type ReferenceKey struct {
	Primary string `json:"primary"`
	Note    string `json:"note,omitempty"`
}

func (k ReferenceKey) String() string {
	if k.Note == "" {
		return k.Primary
	}
	return fmt.Sprintf("%s (%s)", k.Primary, k.Note)
}

// Ticket is one weighing ticket parsed from a spreadsheet block.
// Weights are in tonnes.
type Ticket struct {
	ID           uuid.UUID              `json:"id"`
	BatchID      uuid.UUID              `json:"batch_id"`
	Number       int64                  `json:"ticket_number"`
	Status       constants.TicketStatus `json:"status"`
	EntryAt      time.Time              `json:"entry_at"`
	ExitAt       *time.Time             `json:"exit_at,omitempty"`
	Gross        decimal.Decimal        `json:"gross"`
	Tare         decimal.Decimal        `json:"tare"`
	Net          decimal.Decimal        `json:"net"`
	RawReference string                 `json:"raw_reference"`
	Reference    ReferenceKey           `json:"reference"`
	Material     string                 `json:"material"`
	Vehicle      string                 `json:"vehicle,omitempty"`
	License      string                 `json:"license,omitempty"`
	Attendant    string                 `json:"attendant,omitempty"`
	SourceFile   string                 `json:"source_file"`
	SourceRow    int                    `json:"source_row"`
}

// EntryDate truncates the entry timestamp to its calendar day in loc.
func (t Ticket) EntryDate(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	e := t.EntryAt.In(loc)
	return time.Date(e.Year(), e.Month(), e.Day(), 0, 0, 0, 0, loc)
}

// Billable is the status and weight half of billability; client/rate
// resolution is checked separately.
func (t Ticket) Billable() bool {
	return t.Status.Billable() && t.Net.IsPositive()
}
