package ocr

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// recognize runs tesseract once in TSV mode and returns the page text (words
// re-joined per line) with the mean word confidence in 0..1.
func (e *Extractor) recognize(ctx context.Context, png string) (string, float64, error) {
	args := []string{png, "stdout", "-l", e.cfg.TesseractLang, "--psm", strconv.Itoa(e.cfg.PSM)}
	if e.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", e.cfg.TessdataDir)
	}
	args = append(args, "tsv")

	out, errb, err := e.runner.Run(ctx, e.cfg.Tesseract, args...)
	if err != nil {
		return "", 0, fmt.Errorf("tesseract: %w: %s", err, truncate(string(errb), 512))
	}
	text, conf := parseTSV(string(out))
	return Normalize(reBoxNoise.ReplaceAllString(text, "")), conf, nil
}

// parseTSV reads tesseract's TSV output. Columns are located by header name;
// rows with conf -1 are structural (page, block, line) and carry no word.
func parseTSV(tsv string) (string, float64) {
	lines := strings.Split(strings.ReplaceAll(tsv, "\r\n", "\n"), "\n")
	if len(lines) == 0 {
		return "", 0
	}
	idx := map[string]int{}
	for i, h := range strings.Split(lines[0], "\t") {
		idx[strings.TrimSpace(h)] = i
	}
	confCol, okC := idx["conf"]
	textCol, okT := idx["text"]
	if !okC || !okT {
		return "", 0
	}
	lineKey := func(cols []string) string {
		var parts []string
		for _, k := range []string{"page_num", "block_num", "par_num", "line_num"} {
			if i, ok := idx[k]; ok && i < len(cols) {
				parts = append(parts, cols[i])
			}
		}
		return strings.Join(parts, ".")
	}

	var b strings.Builder
	var sum float64
	var n int
	prevLine := ""
	for _, ln := range lines[1:] {
		cols := strings.Split(ln, "\t")
		if len(cols) <= textCol || len(cols) <= confCol {
			continue
		}
		conf, err := strconv.ParseFloat(strings.TrimSpace(cols[confCol]), 64)
		if err != nil || conf < 0 {
			continue
		}
		word := strings.TrimSpace(cols[textCol])
		if word == "" {
			continue
		}
		key := lineKey(cols)
		switch {
		case b.Len() == 0:
		case key != prevLine:
			b.WriteByte('\n')
		default:
			b.WriteByte(' ')
		}
		prevLine = key
		b.WriteString(word)
		sum += conf
		n++
	}
	if n == 0 {
		return "", 0
	}
	return b.String(), sum / float64(n) / 100
}
