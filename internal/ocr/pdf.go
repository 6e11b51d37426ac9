package ocr

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/ledongthuc/pdf"
)

// rasterize renders a single page (0-based idx) to PNG and returns its path.
func (e *Extractor) rasterize(ctx context.Context, path, tmpDir string, idx int) (string, error) {
	page := strconv.Itoa(idx + 1)
	prefix := filepath.Join(tmpDir, fmt.Sprintf("page-%03d", idx+1))
	// pdftoppm -r 300 -png -f N -l N -singlefile <in.pdf> <tmp/page-N>
	_, errb, err := e.runner.Run(ctx, e.cfg.Pdftoppm,
		"-r", strconv.Itoa(e.cfg.DPI), "-png", "-f", page, "-l", page, "-singlefile", path, prefix)
	if err != nil {
		return "", fmt.Errorf("pdftoppm page %s: %w: %s", page, err, truncate(string(errb), 512))
	}
	out := prefix + ".png"
	if _, err := os.Stat(out); err != nil {
		return "", fmt.Errorf("pdftoppm produced no image for page %s", page)
	}
	return out, nil
}

// pdfPageCount reads the page tree with ledongthuc/pdf.
func pdfPageCount(path string) (n int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed pdf: %v", r)
		}
	}()
	f, r, err := pdf.Open(path)
	if err != nil {
		return 0, err
	}
	defer func() { _ = f.Close() }()
	n = r.NumPage()
	if n == 0 {
		return 0, fmt.Errorf("pdf has no pages")
	}
	return n, nil
}

// pdfPageText returns the embedded text layer of a 1-based page, if any.
// Scanned tickets usually have none; generated ones print the number as text.
func pdfPageText(path string, page int) (text string) {
	defer func() {
		if recover() != nil {
			text = ""
		}
	}()
	f, r, err := pdf.Open(path)
	if err != nil {
		return ""
	}
	defer func() { _ = f.Close() }()
	if page < 1 || page > r.NumPage() {
		return ""
	}
	p := r.Page(page)
	if p.V.IsNull() {
		return ""
	}
	text, err = p.GetPlainText(nil)
	if err != nil {
		return ""
	}
	return text
}
