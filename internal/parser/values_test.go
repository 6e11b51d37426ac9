package parser

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseWeight(t *testing.T) {
	cases := []struct {
		raw  string
		want string
		ok   bool
	}{
		{"18,500 kg", "18.5", true},
		{"8500", "8.5", true},
		{" 12 340 ", "12.34", true},
		{"750.5", "0.7505", true},
		{"", "0", false},
		{"n/a", "0", false},
		{"1.2.3", "0", false},
	}
	for _, tc := range cases {
		got, ok := parseWeight(tc.raw)
		assert.Equal(t, tc.ok, ok, tc.raw)
		assert.Equal(t, tc.want, got.String(), tc.raw)
	}
}

func TestParseFlatWeight(t *testing.T) {
	cases := []struct {
		raw, want string
		ok        bool
	}{
		{"8.5", "8.5", true},
		{"1000", "1000", true},
		{"1000.5", "1.0005", true},
		{"750 kg", "0.75", true},
		{"12 T", "12", true},
		{"", "0", false},
	}
	for _, tc := range cases {
		got, ok := parseFlatWeight(tc.raw)
		assert.Equal(t, tc.ok, ok, tc.raw)
		assert.Equal(t, tc.want, got.String(), tc.raw)
	}
}

func TestParseTicketNumber(t *testing.T) {
	n, ok := parseTicketNumber("1234.0")
	assert.True(t, ok)
	assert.Equal(t, int64(1234), n)

	n, ok = parseTicketNumber("#0042")
	assert.True(t, ok)
	assert.Equal(t, int64(42), n)

	for _, bad := range []string{"", "12A", "0", "1.5"} {
		_, ok := parseTicketNumber(bad)
		assert.False(t, ok, bad)
	}
}

func TestParseDateAndClock(t *testing.T) {
	d, ok := parseDate("45761")
	assert.True(t, ok)
	assert.Equal(t, "2025-04-14", d.Format("2006-01-02"))

	d, ok = parseDate("4/14/2025")
	assert.True(t, ok)
	assert.Equal(t, "2025-04-14", d.Format("2006-01-02"))

	_, ok = parseDate("yesterday")
	assert.False(t, ok)

	c, ok := parseClock("0.3125")
	assert.True(t, ok)
	assert.Equal(t, 7*time.Hour+30*time.Minute, c)

	c, ok = parseClock("1:05 pm")
	assert.True(t, ok)
	assert.Equal(t, 13*time.Hour+5*time.Minute, c)

	at, ok := combine("2025-04-14 09:10:00", "", time.UTC)
	assert.True(t, ok)
	assert.Equal(t, time.Date(2025, 4, 14, 9, 10, 0, 0, time.UTC), at)
}
