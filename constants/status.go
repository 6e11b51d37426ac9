package constants

import "strings"

// TicketStatus is the canonical status tag of a weighing ticket.
// Raw spreadsheet markers are normalized into it at the parse boundary.
type TicketStatus string

const (
	TicketOriginal    TicketStatus = "ORIGINAL"
	TicketReprint     TicketStatus = "REPRINT"
	TicketReprintVoid TicketStatus = "REPRINT_VOID"
)

var allTicketStatuses = []TicketStatus{TicketOriginal, TicketReprint, TicketReprintVoid}

// Billable reports whether tickets with this status may ever be invoiced.
func (s TicketStatus) Billable() bool { return s == TicketReprint }

func (s TicketStatus) Valid() bool {
	for _, v := range allTicketStatuses {
		if v == s {
			return true
		}
	}
	return false
}

func (s TicketStatus) String() string { return string(s) }

// ParseTicketStatus accepts the stored form of a status.
func ParseTicketStatus(input string) (TicketStatus, bool) {
	s := TicketStatus(strings.ToUpper(strings.TrimSpace(input)))
	if s.Valid() {
		return s, true
	}
	return TicketOriginal, false
}

// Marker is a single status word found inside a ticket block.
type Marker int

const (
	MarkerNone Marker = iota
	MarkerOriginal
	MarkerReprint
	MarkerVoid
)

var markerSynonyms = map[string]Marker{
	"ORIGINAL":  MarkerOriginal,
	"ORIG":      MarkerOriginal,
	"NEW":       MarkerOriginal,
	"ACTIVE":    MarkerOriginal,
	"COMPLETE":  MarkerOriginal,
	"REPRINT":   MarkerReprint,
	"REPRINTED": MarkerReprint,
	"REISSUE":   MarkerReprint,
	"DUPLICATE": MarkerReprint,
	"VOID":      MarkerVoid,
	"VOIDED":    MarkerVoid,
	"CANCELLED": MarkerVoid,
	"CANCELED":  MarkerVoid,
	"INVALID":   MarkerVoid,
}

// CanonicalMarker maps one upper-case word to a status marker.
func CanonicalMarker(word string) (Marker, bool) {
	m, ok := markerSynonyms[strings.ToUpper(strings.TrimSpace(word))]
	return m, ok
}

// BatchStatus tracks a submitted document pair through the pipeline.
type BatchStatus string

// Stable values (stored as-is).
const (
	BatchQueued  BatchStatus = "QUEUED"
	BatchRunning BatchStatus = "RUNNING"
	BatchParsed  BatchStatus = "PARSED"  // parse + extract finished
	BatchMatched BatchStatus = "MATCHED" // match results persisted
	BatchFailed  BatchStatus = "FAILED"  // terminal failure
)
