package parser

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

var (
	kgPerTonne   = decimal.NewFromInt(1000)
	maxTonnes    = decimal.NewFromInt(200)
	reNonNumeric = regexp.MustCompile(`[^0-9.]`)
	reIntegral   = regexp.MustCompile(`^\d+(\.0+)?$`)
)

// parseWeight strips everything but digits and the decimal point and reads the
// remainder as kilograms, returning tonnes. ok is false for empty or
// malformed input, in which case the weight is zero.
func parseWeight(raw string) (tonnes decimal.Decimal, ok bool) {
	s := reNonNumeric.ReplaceAllString(raw, "")
	if s == "" {
		return decimal.Zero, false
	}
	kg, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return kg.Div(kgPerTonne), true
}

// parseFlatWeight reads a flat-table weight. Values marked KG or above 1000
// are kilograms; anything else is already tonnes.
func parseFlatWeight(raw string) (decimal.Decimal, bool) {
	s := reNonNumeric.ReplaceAllString(raw, "")
	if s == "" {
		return decimal.Zero, false
	}
	v, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	if strings.Contains(strings.ToUpper(raw), "KG") || v.GreaterThan(kgPerTonne) {
		return v.Div(kgPerTonne), true
	}
	return v, true
}

// parseTicketNumber accepts integers and integral floats ("1234.0" from
// spreadsheets that store numbers as doubles).
func parseTicketNumber(raw string) (int64, bool) {
	s := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(raw), "#"))
	if !reIntegral.MatchString(s) {
		return 0, false
	}
	if i := strings.IndexByte(s, '.'); i >= 0 {
		s = s[:i]
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"01/02/2006",
	"1/2/2006",
	"01/02/06",
	"1/2/06",
	"01-02-2006",
	"01-02-06",
	"1/2/2006 15:04",
	"1/2/2006 3:04 PM",
	"Jan 2, 2006",
	"02-Jan-2006",
	"02-Jan-06",
}

var timeLayouts = []string{
	"15:04:05",
	"15:04",
	"3:04:05 PM",
	"3:04 PM",
	"3:04PM",
	"03:04 PM",
}

// parseDate reads a calendar date from a formatted string or an Excel serial.
// The returned value carries the time of day when the cell held one.
func parseDate(raw string) (time.Time, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, false
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		if f < 1 {
			return time.Time{}, false
		}
		t, err := excelize.ExcelDateToTime(f, false)
		if err != nil {
			return time.Time{}, false
		}
		return t, true
	}
	for _, l := range dateLayouts {
		if t, err := time.Parse(l, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// parseClock reads a time of day as an offset from midnight. Excel stores
// times as day fractions.
func parseClock(raw string) (time.Duration, bool) {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if s == "" {
		return 0, false
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f >= 0 && f < 1 {
		return time.Duration(f*24*float64(time.Hour)).Round(time.Second), true
	}
	for _, l := range timeLayouts {
		if t, err := time.Parse(l, s); err == nil {
			return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute + time.Duration(t.Second())*time.Second, true
		}
	}
	return 0, false
}

// combine builds a timestamp in loc from a date cell and an optional time cell.
func combine(dateRaw, timeRaw string, loc *time.Location) (time.Time, bool) {
	d, ok := parseDate(dateRaw)
	if !ok {
		return time.Time{}, false
	}
	at := time.Date(d.Year(), d.Month(), d.Day(), d.Hour(), d.Minute(), d.Second(), 0, loc)
	if clock, ok := parseClock(timeRaw); ok {
		at = time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, loc).Add(clock)
	}
	return at, true
}
