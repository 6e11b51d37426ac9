package matcher

import (
	"strings"
	"unicode"

	"github.com/agext/levenshtein"

	"github.com/joseph-ayodele/tickets-tracker/internal/entity"
)

// letters OCR commonly reads in place of digits
var confusion = strings.NewReplacer(
	"O", "0",
	"I", "1", "L", "1", "|", "1",
	"S", "5", "B", "8", "Z", "2", "G", "6",
)

// DigitsOnly maps OCR look-alikes to digits, drops everything else and
// strips leading zeros.
func DigitsOnly(s string) string {
	s = confusion.Replace(strings.ToUpper(s))
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return strings.TrimLeft(b.String(), "0")
}

// Similarity is the best normalized edit similarity between a ticket number
// and the image's detected number or any number-like token in its text.
func Similarity(number string, img entity.ExtractedImage) float64 {
	best := 0.0
	try := func(tok string) {
		d := DigitsOnly(tok)
		if len(d) < 3 {
			return
		}
		if s := levenshtein.Similarity(number, d, nil); s > best {
			best = s
		}
	}
	try(img.DetectedNumber)
	for _, tok := range tokens(img.Text) {
		try(tok)
	}
	return best
}

// tokens splits on anything that is not a letter, digit or '|'. Tokens need
// at least one real digit so plain words never count as numbers.
func tokens(text string) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '|'
	})
	out := fields[:0]
	for _, f := range fields {
		if strings.ContainsAny(f, "0123456789") {
			out = append(out, f)
		}
	}
	return out
}

func lower(s string) string { return strings.ToLower(strings.TrimSpace(s)) }
