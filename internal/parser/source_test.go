package parser

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/tickets-tracker/constants"
)

func writeWorkbook(t *testing.T, rows [][]any) string {
	t.Helper()
	f := excelize.NewFile()
	for i, row := range rows {
		cellName, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		r := row
		require.NoError(t, f.SetSheetRow("Sheet1", cellName, &r))
	}
	path := filepath.Join(t.TempDir(), "APRIL 14 2025.xlsx")
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())
	return path
}

func TestParseFileXLSX(t *testing.T) {
	path := writeWorkbook(t, [][]any{
		{"TICKET #", 7001, "", "", "REPRINT"},
		{"", "CONST. & DEMO."},
		{"REFERENCE:", "#007 JOB#2515"},
		{"ENTER:", "2025-04-14", "06:45"},
		{"GROSS", 15000, "TARE", 6500, "NET", 8500},
		{"TICKET #", 7002, "", "", "VOID - REPRINT"},
		{"ENTER:", "2025-04-14", "07:10"},
		{"NET", 9000},
	})

	res, err := NewFileParser(nil, nil).ParseFile(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, res.Tickets, 2)
	assert.Equal(t, int64(7001), res.Tickets[0].Number)
	assert.Equal(t, "8.5", res.Tickets[0].Net.String())
	assert.Equal(t, "#007", res.Tickets[0].Reference.Primary)
	assert.Equal(t, constants.TicketReprintVoid, res.Tickets[1].Status)
	assert.Equal(t, "APRIL 14 2025.xlsx", res.Report.Source)
}

func TestParseFileCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tickets.csv")
	content := "Ticket #,Status,Reference,Date,Net\n" +
		"8001,REPRINT,\"#12 north, bay\",2025-04-16,\"4,250\"\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	res, err := NewFileParser(nil, nil).ParseFile(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, res.Tickets, 1)
	assert.Equal(t, "4.25", res.Tickets[0].Net.String())
	assert.Equal(t, "north, bay", res.Tickets[0].Reference.Note)
}

func TestParseFileErrors(t *testing.T) {
	_, err := NewFileParser(nil, nil).ParseFile(context.Background(), "tickets.xls")
	assert.Error(t, err)

	_, err = NewFileParser(nil, nil).ParseFile(context.Background(), filepath.Join(t.TempDir(), "missing.xlsx"))
	assert.Error(t, err)
}
