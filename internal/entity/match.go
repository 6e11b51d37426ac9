package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/tickets-tracker/constants"
)

// NoPage marks a match result without an image.
const NoPage = -1

// MatchResult pairs a ticket with at most one extracted image.
type MatchResult struct {
	ID           uuid.UUID             `json:"id"`
	BatchID      uuid.UUID             `json:"batch_id"`
	TicketNumber int64                 `json:"ticket_number"`
	PageIndex    int                   `json:"page_index"`
	ImageKey     string                `json:"image_key,omitempty"`
	Confidence   float64               `json:"confidence"`
	Method       constants.MatchMethod `json:"method"`
	Disposition  constants.Disposition `json:"disposition"`
	ReviewedBy   string                `json:"reviewed_by,omitempty"`
	CreatedAt    time.Time             `json:"created_at"`
}

func (m MatchResult) Matched() bool {
	return m.Disposition == constants.DispositionMatched && m.PageIndex != NoPage
}
