package pipeline

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/joseph-ayodele/tickets-tracker/constants"
	"github.com/joseph-ayodele/tickets-tracker/internal/common"
	"github.com/joseph-ayodele/tickets-tracker/internal/matcher"
)

// PairThreshold is the minimum stem similarity of a spreadsheet/PDF pair.
const PairThreshold = 0.9

func stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// CheckPair rejects document pairs of the wrong kinds, and pairs whose file
// names look unrelated unless allowMismatched is set.
func CheckPair(sheetPath, pdfPath string, allowMismatched bool) error {
	if constants.MapExtToFormat(filepath.Ext(sheetPath)) != constants.SHEET {
		return common.NewAppError("BAD_SHEET", fmt.Sprintf("%s is not a spreadsheet", filepath.Base(sheetPath)), common.ErrInvalidInput)
	}
	if constants.MapExtToFormat(filepath.Ext(pdfPath)) != constants.PDF {
		return common.NewAppError("BAD_PDF", fmt.Sprintf("%s is not a PDF", filepath.Base(pdfPath)), common.ErrInvalidInput)
	}
	if allowMismatched {
		return nil
	}
	if sim := matcher.PairSimilarity(stem(sheetPath), stem(pdfPath)); sim < PairThreshold {
		return common.NewAppError("PAIR_MISMATCH",
			fmt.Sprintf("%s and %s do not look like a pair (similarity %.2f)", filepath.Base(sheetPath), filepath.Base(pdfPath), sim),
			common.ErrInvalidInput)
	}
	return nil
}
