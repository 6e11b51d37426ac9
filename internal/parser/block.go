package parser

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/joseph-ayodele/tickets-tracker/constants"
	"github.com/joseph-ayodele/tickets-tracker/internal/entity"
)

// markerHit is one status word in reading order; cell groups words found in
// the same spreadsheet cell.
type markerHit struct {
	marker constants.Marker
	cell   int
}

// block collects the raw cells of one ticket until it is finalized.
type block struct {
	startRow  int
	rawNumber string
	markers   []markerHit
	cells     int

	reference, vehicle, license, attendant string
	enterDate, enterTime                   string
	exitDate, exitTime                     string
	weights                                map[string]string
	material                               []string
	flat                                   bool
}

func newBlock(row int, number string) *block {
	return &block{startRow: row, rawNumber: number, weights: map[string]string{}}
}

// accumulator is the fold state. step returns a new value; nothing is shared
// between parses.
type accumulator struct {
	current *block
	blocks  []*block
	issues  []entity.Issue
}

func (a accumulator) closeBlock() accumulator {
	if a.current != nil {
		a.blocks = append(a.blocks, a.current)
		a.current = nil
	}
	return a
}

func (a accumulator) step(rowNum int, row []string) accumulator {
	if isBlockHeader(row) {
		a = a.closeBlock()
		a.current = newBlock(rowNum, cell(row, 1))
		a.current.scan(row, 2, true)
		return a
	}
	if a.current == nil {
		if isStray(row) {
			a.issues = append(a.issues, entity.Issue{
				Code: constants.IssueStrayRow, Severity: entity.SeverityWarning, Row: rowNum,
				Message: "row outside any ticket block ignored",
			})
		}
		return a
	}
	if !a.current.scan(row, 0, false) && isStray(row) {
		a.current.material = append(a.current.material, joinCells(row))
	}
	return a
}

var weightLabels = map[string]string{
	"GROSS": "GROSS", "GROSS WEIGHT": "GROSS", "GROSS WT": "GROSS",
	"TARE": "TARE", "TARE WEIGHT": "TARE", "TARE WT": "TARE",
	"NET": "NET", "NET WEIGHT": "NET", "NET WT": "NET",
}

// scan reads labelled values and status markers from a row and reports
// whether anything in it was recognized. Header rows only contribute markers.
func (b *block) scan(row []string, from int, header bool) bool {
	recognized := false
	for c := from; c < len(row); c++ {
		v := normLabel(row[c])
		if v == "" {
			continue
		}
		if !header {
			switch v {
			case "ATTENDENT", "ATTENDANT":
				b.attendant, c = cell(row, c+1), c+1
				recognized = true
				continue
			case "VEHICLE":
				b.vehicle, c = cell(row, c+1), c+1
				recognized = true
				continue
			case "LICENSE":
				b.license, c = cell(row, c+1), c+1
				recognized = true
				continue
			case "REFERENCE":
				b.reference, c = cell(row, c+1), c+1
				recognized = true
				continue
			case "ENTER":
				b.enterDate, b.enterTime, c = cell(row, c+1), cell(row, c+2), c+2
				recognized = true
				continue
			case "EXIT":
				b.exitDate, b.exitTime, c = cell(row, c+1), cell(row, c+2), c+2
				recognized = true
				continue
			}
			if w, ok := weightLabels[v]; ok {
				b.weights[w], c = cell(row, c+1), c+1
				recognized = true
				continue
			}
			if strings.Contains(v, "CONST") && len(b.material) == 0 {
				b.material = append(b.material, strings.TrimSpace(row[c]))
				recognized = true
				continue
			}
		}
		if hits, ok := markerWords(v); ok {
			b.cells++
			for _, m := range hits {
				b.markers = append(b.markers, markerHit{marker: m, cell: b.cells})
			}
			recognized = true
		}
	}
	return recognized
}

var reWord = regexp.MustCompile(`[A-Z]+`)

// markerWords accepts a cell only when every word in it is a status word, so
// references such as "#12 NEW BIN" never read as markers.
func markerWords(v string) ([]constants.Marker, bool) {
	words := reWord.FindAllString(v, -1)
	if len(words) == 0 || strings.ContainsAny(v, "0123456789") {
		return nil, false
	}
	out := make([]constants.Marker, 0, len(words))
	for _, w := range words {
		m, ok := constants.CanonicalMarker(w)
		if !ok {
			return nil, false
		}
		out = append(out, m)
	}
	return out, true
}

var reStrayCell = regexp.MustCompile(`^[A-Z0-9.\-/# ]{1,20}$`)

// isStray reports a non-empty row made only of short code-like cells with
// at least one digit, e.g. a material code that wrapped onto its own line.
func isStray(row []string) bool {
	nonEmpty, digit := 0, false
	for _, c := range row {
		c = strings.ToUpper(strings.TrimSpace(c))
		if c == "" {
			continue
		}
		if !reStrayCell.MatchString(c) {
			return false
		}
		if strings.ContainsAny(c, "0123456789") {
			digit = true
		}
		nonEmpty++
	}
	return nonEmpty > 0 && digit
}

func joinCells(row []string) string {
	parts := make([]string, 0, len(row))
	for _, c := range row {
		if c = strings.TrimSpace(c); c != "" {
			parts = append(parts, c)
		}
	}
	return strings.Join(parts, " ")
}

// statusOf applies the marker rule: a void marker escalates the block to
// REPRINT_VOID only when a reprint marker precedes it, or shares its cell
// ("VOID - REPRINT"). A void with no reprint leaves the ticket ORIGINAL.
func statusOf(hits []markerHit) (status constants.TicketStatus, loneVoid bool) {
	status = constants.TicketOriginal
	reprintCells := map[int]bool{}
	for _, h := range hits {
		if h.marker == constants.MarkerReprint {
			reprintCells[h.cell] = true
		}
	}
	sawReprint := false
	for _, h := range hits {
		switch h.marker {
		case constants.MarkerReprint:
			sawReprint = true
			if status != constants.TicketReprintVoid {
				status = constants.TicketReprint
			}
		case constants.MarkerVoid:
			if sawReprint || reprintCells[h.cell] {
				status = constants.TicketReprintVoid
			} else {
				loneVoid = true
			}
		}
	}
	return status, loneVoid && status == constants.TicketOriginal
}

func itoa(n int) string { return strconv.Itoa(n) }
