package ocr

import (
	"regexp"
	"strings"
)

var (
	reLabelled  = regexp.MustCompile(`(?i)(?:\b(?:TICKET|TKT|NUMBER)\b|#)\s*(?:NO\.?|#)?\s*[:#]?\s*([A-Z]{0,3}-?\d{3,8})\b`)
	reLetterNum = regexp.MustCompile(`\b[A-Z]\d{3,6}\b`)
	rePrefixNum = regexp.MustCompile(`\b[A-Z]{2,3}-?\d{3,6}\b`)
	reDigits    = regexp.MustCompile(`\b\d{4,8}\b`)
	reDateLike  = regexp.MustCompile(`^(19|20)\d{2}$`)
)

// DetectTicketNumber picks the most plausible ticket number from page text.
// The score is in 0..1; an empty string means nothing looked like a number.
func DetectTicketNumber(text string) (string, float64) {
	if strings.TrimSpace(text) == "" {
		return "", 0
	}
	upper := strings.ToUpper(text)

	if m := reLabelled.FindStringSubmatch(upper); m != nil {
		return digitsOf(m[1]), 0.95
	}

	best, bestScore := "", 0.0
	consider := func(tok string, base float64) {
		d := digitsOf(tok)
		if d == "" || reDateLike.MatchString(d) {
			return
		}
		score := base
		// ticket numbers on scale printouts are usually 5-6 digits
		if len(d) >= 5 && len(d) <= 6 {
			score += 0.1
		}
		if strings.Count(upper, tok) > 1 {
			score += 0.05
		}
		if score > bestScore {
			best, bestScore = d, score
		}
	}
	for _, tok := range reLetterNum.FindAllString(upper, -1) {
		consider(tok, 0.7)
	}
	for _, tok := range rePrefixNum.FindAllString(upper, -1) {
		consider(tok, 0.65)
	}
	for _, tok := range reDigits.FindAllString(upper, -1) {
		consider(tok, 0.6)
	}
	if bestScore > 1 {
		bestScore = 1
	}
	return best, bestScore
}

func digitsOf(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return strings.TrimLeft(b.String(), "0")
}
