// Package ingest finds spreadsheet/PDF pairs on disk, either in one pass over
// a directory or continuously from a watched inbox.
package ingest

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/joseph-ayodele/tickets-tracker/constants"
	"github.com/joseph-ayodele/tickets-tracker/internal/matcher"
	"github.com/joseph-ayodele/tickets-tracker/internal/pipeline"
)

// Pair is a spreadsheet and the PDF of ticket images that goes with it.
type Pair struct {
	SheetPath string
	PDFPath   string
}

// Submission turns the pair into a submit-batch request.
func (p Pair) Submission() pipeline.Submission {
	return pipeline.Submission{SheetPath: p.SheetPath, PDFPath: p.PDFPath}
}

type ScanStats struct {
	Scanned  uint32
	Matched  uint32
	Paired   uint32
	Unpaired uint32
}

type ScanResult struct {
	Pairs []Pair
	// Unpaired lists documents with no counterpart, sorted.
	Unpaired []string
	Stats    ScanStats
}

// IsHidden checks if a file or directory is hidden (starts with '.').
func IsHidden(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}

func stemKey(path string) string {
	base := filepath.Base(path)
	return strings.ToLower(strings.TrimSuffix(base, filepath.Ext(base)))
}

// ScanPairs walks root and pairs every spreadsheet with a PDF. Identical stems
// pair first; the rest pair by name similarity at or above
// pipeline.PairThreshold, best score first.
func ScanPairs(root string, skipHidden bool) (ScanResult, error) {
	var res ScanResult
	if strings.TrimSpace(root) == "" {
		return res, errors.New("root path is required")
	}
	var sheets, pdfs []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if path != root && skipHidden && IsHidden(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		res.Stats.Scanned++
		switch constants.MapExtToFormat(filepath.Ext(path)) {
		case constants.SHEET:
			sheets = append(sheets, path)
		case constants.PDF:
			pdfs = append(pdfs, path)
		default:
			return nil
		}
		res.Stats.Matched++
		return nil
	})
	if err != nil {
		return res, fmt.Errorf("walk %s: %w", root, err)
	}
	sort.Strings(sheets)
	sort.Strings(pdfs)

	res.Pairs, res.Unpaired = pairUp(sheets, pdfs)
	res.Stats.Paired = uint32(len(res.Pairs))
	res.Stats.Unpaired = uint32(len(res.Unpaired))
	return res, nil
}

func pairUp(sheets, pdfs []string) ([]Pair, []string) {
	usedPDF := make([]bool, len(pdfs))
	usedSheet := make([]bool, len(sheets))
	var pairs []Pair

	byStem := map[string]int{}
	for i, p := range pdfs {
		if _, dup := byStem[stemKey(p)]; !dup {
			byStem[stemKey(p)] = i
		}
	}
	for i, s := range sheets {
		if j, ok := byStem[stemKey(s)]; ok && !usedPDF[j] {
			usedPDF[j], usedSheet[i] = true, true
			pairs = append(pairs, Pair{SheetPath: s, PDFPath: pdfs[j]})
		}
	}

	type candidate struct {
		sheet, pdf int
		score      float64
	}
	var cands []candidate
	for i, s := range sheets {
		if usedSheet[i] {
			continue
		}
		for j, p := range pdfs {
			if usedPDF[j] {
				continue
			}
			if sim := matcher.PairSimilarity(stemKey(s), stemKey(p)); sim >= pipeline.PairThreshold {
				cands = append(cands, candidate{sheet: i, pdf: j, score: sim})
			}
		}
	}
	sort.SliceStable(cands, func(a, b int) bool { return cands[a].score > cands[b].score })
	for _, c := range cands {
		if usedSheet[c.sheet] || usedPDF[c.pdf] {
			continue
		}
		usedSheet[c.sheet], usedPDF[c.pdf] = true, true
		pairs = append(pairs, Pair{SheetPath: sheets[c.sheet], PDFPath: pdfs[c.pdf]})
	}
	sort.Slice(pairs, func(a, b int) bool { return pairs[a].SheetPath < pairs[b].SheetPath })

	var unpaired []string
	for i, s := range sheets {
		if !usedSheet[i] {
			unpaired = append(unpaired, s)
		}
	}
	for j, p := range pdfs {
		if !usedPDF[j] {
			unpaired = append(unpaired, p)
		}
	}
	sort.Strings(unpaired)
	return pairs, unpaired
}
