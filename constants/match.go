package constants

// MatchMethod records how a ticket was paired with an image.
type MatchMethod string

const (
	MatchExactNumber MatchMethod = "exact-number"
	MatchFuzzyText   MatchMethod = "fuzzy-text"
	MatchManual      MatchMethod = "manual"
	MatchNone        MatchMethod = "none"
)

// Disposition is the terminal outcome of matching one ticket.
type Disposition string

const (
	DispositionMatched     Disposition = "matched"
	DispositionUnmatched   Disposition = "unmatched"
	DispositionNeedsReview Disposition = "needs-review"
)

func ParseMatchMethod(s string) (MatchMethod, bool) {
	switch m := MatchMethod(s); m {
	case MatchExactNumber, MatchFuzzyText, MatchManual, MatchNone:
		return m, true
	}
	return MatchNone, false
}

func ParseDisposition(s string) (Disposition, bool) {
	switch d := Disposition(s); d {
	case DispositionMatched, DispositionUnmatched, DispositionNeedsReview:
		return d, true
	}
	return DispositionUnmatched, false
}
