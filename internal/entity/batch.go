package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/tickets-tracker/constants"
)

// Batch is one submitted spreadsheet/PDF pair.
type Batch struct {
	ID          uuid.UUID             `json:"id"`
	SheetPath   string                `json:"sheet_path"`
	PDFPath     string                `json:"pdf_path"`
	ClientHint  string                `json:"client_hint,omitempty"`
	Status      constants.BatchStatus `json:"status"`
	SubmittedBy string                `json:"submitted_by"`
	SubmittedAt time.Time             `json:"submitted_at"`
	FinishedAt  *time.Time            `json:"finished_at,omitempty"`
	Error       string                `json:"error,omitempty"`
	Parse       *ParseReport          `json:"parse,omitempty"`
	Extraction  *ExtractionResult     `json:"extraction,omitempty"`
}

// ExportRecord is the registry entry of one export request.
type ExportRecord struct {
	ID            uuid.UUID             `json:"id"`
	From          time.Time             `json:"from"`
	To            time.Time             `json:"to"`
	ClientFilter  string                `json:"client_filter,omitempty"`
	Force         bool                  `json:"force"`
	IncludeImages bool                  `json:"include_images"`
	State         constants.ExportState `json:"state"`
	BundlePath    string                `json:"bundle_path,omitempty"`
	RequestedBy   string                `json:"requested_by"`
	Report        Report                `json:"report"`
	CreatedAt     time.Time             `json:"created_at"`
	UpdatedAt     time.Time             `json:"updated_at"`
	SupersededBy  *uuid.UUID            `json:"superseded_by,omitempty"`
}

// AuditEntry is an immutable record of one export attempt.
type AuditEntry struct {
	ID          uuid.UUID              `json:"id"`
	ExportID    uuid.UUID              `json:"export_id"`
	Outcome     constants.AuditOutcome `json:"outcome"`
	State       constants.ExportState  `json:"state"`
	UserID      string                 `json:"user_id"`
	Role        string                 `json:"role"`
	RecordedAt  time.Time              `json:"recorded_at"`
	From        time.Time              `json:"from"`
	To          time.Time              `json:"to"`
	Force       bool                   `json:"force"`
	TicketCount int                    `json:"ticket_count"`
	TotalAmount string                 `json:"total_amount"`
	BundlePath  string                 `json:"bundle_path,omitempty"`
	Report      Report                 `json:"report"`
}
