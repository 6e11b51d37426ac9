// Package reference decomposes free-text ticket references into a canonical
// primary key and an auxiliary note. Everything here is pure.
package reference

import (
	"regexp"
	"strings"

	"github.com/joseph-ayodele/tickets-tracker/internal/entity"
)

// Vendor is the hauler whose prefixed codes are normalized to short MM codes.
const Vendor = "TOPPS"

var (
	reSpaces = regexp.MustCompile(`\s+`)

	reHashNote   = regexp.MustCompile(`^(#\d{1,4})\s+(.+)$`)
	reVendorCode = regexp.MustCompile(`(?i)^(?:(` + Vendor + `)\s*-?\s*)?MM\s*-?\s*(\d{1,4})(?:\s+(.+))?$`)
	reShortNote  = regexp.MustCompile(`(?i)^([A-Z]{1,4}-?\d{1,5})\s+(.+)$`)
	reBareHash   = regexp.MustCompile(`^#\d{1,4}$`)
	reBareShort  = regexp.MustCompile(`(?i)^[A-Z]{1,4}-?\d{1,5}$`)
	reKeyShape   = regexp.MustCompile(`(?i)^#?[A-Z0-9][A-Z0-9#\-]{0,11}$`)
	reHasDigit   = regexp.MustCompile(`\d`)
)

// Resolve applies the precedence rules; the first rule that matches wins.
func Resolve(raw string) entity.ReferenceKey {
	s := strings.TrimSpace(reSpaces.ReplaceAllString(raw, " "))
	if s == "" {
		return entity.ReferenceKey{}
	}

	if m := reHashNote.FindStringSubmatch(s); m != nil {
		return entity.ReferenceKey{Primary: m[1], Note: m[2]}
	}

	if m := reVendorCode.FindStringSubmatch(s); m != nil {
		code := "MM" + m[2]
		if m[3] == "" {
			return entity.ReferenceKey{Primary: code}
		}
		note := m[3]
		if m[1] != "" {
			note = Vendor + ": " + note
		}
		return entity.ReferenceKey{Primary: code, Note: note}
	}

	if m := reShortNote.FindStringSubmatch(s); m != nil {
		return entity.ReferenceKey{Primary: strings.ToUpper(m[1]), Note: m[2]}
	}

	if reBareHash.MatchString(s) {
		return entity.ReferenceKey{Primary: s}
	}
	if reBareShort.MatchString(s) {
		return entity.ReferenceKey{Primary: strings.ToUpper(s)}
	}

	first, rest, _ := strings.Cut(s, " ")
	if IsKeyShape(first) {
		return entity.ReferenceKey{Primary: strings.ToUpper(first), Note: rest}
	}
	return entity.ReferenceKey{Primary: s}
}

// IsKeyShape reports whether a token looks like a primary key: at most 12
// alphanumerics (with # or -) and at least one digit.
func IsKeyShape(token string) bool {
	return reKeyShape.MatchString(token) && reHasDigit.MatchString(token)
}

// Normalize strips the decoration that does not distinguish two keys, for
// comparisons against client patterns: case, surrounding space and a leading '#'.
func Normalize(key string) string {
	return strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(key)), "#")
}
