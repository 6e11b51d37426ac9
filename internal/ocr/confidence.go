package ocr

import "unicode"

// blendConfidence mixes tesseract's mean word confidence with how sure the
// number detector was. Pages with no detectable number are capped low.
func blendConfidence(ocr, detection float64, text string) float64 {
	if detection == 0 {
		return clamp01(0.3 * ocr * textQuality(text))
	}
	return clamp01(0.7*ocr + 0.3*detection)
}

// textQuality is the share of printable alphanumeric runes in text.
func textQuality(text string) float64 {
	var good, total int
	for _, r := range text {
		if unicode.IsSpace(r) {
			continue
		}
		total++
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			good++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(good) / float64(total)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
