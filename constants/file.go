package constants

import "strings"

// Source document kinds accepted by submit-batch.
const (
	SHEET = "SHEET"
	PDF   = "PDF"
)

// SheetExtensions holds the spreadsheet extensions the parser reads.
var SheetExtensions = map[string]struct{}{
	"xlsx": {},
	"xlsm": {},
	"csv":  {},
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// MapExtToFormat returns SHEET, PDF or "" for an extension.
func MapExtToFormat(ext string) string {
	ext = NormalizeExt(ext)
	if ext == "pdf" {
		return PDF
	}
	if _, ok := SheetExtensions[ext]; ok {
		return SHEET
	}
	return ""
}
