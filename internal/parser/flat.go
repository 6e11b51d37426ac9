package parser

import (
	"github.com/joseph-ayodele/tickets-tracker/constants"
	"github.com/joseph-ayodele/tickets-tracker/internal/entity"
)

type column int

const (
	colTicket column = iota
	colStatus
	colReference
	colEntryDate
	colEntryTime
	colExitDate
	colExitTime
	colGross
	colTare
	colNet
	colMaterial
	colVehicle
	colLicense
	colAttendant
)

var headerNames = map[string]column{
	"TICKET": colTicket, "TICKET #": colTicket, "TICKET NO": colTicket, "TICKET NUMBER": colTicket,
	"STATUS": colStatus, "TYPE": colStatus,
	"REFERENCE": colReference, "REF": colReference, "JOB": colReference,
	"ENTRY DATE": colEntryDate, "DATE": colEntryDate, "DATE IN": colEntryDate, "ENTER": colEntryDate,
	"ENTRY TIME": colEntryTime, "TIME": colEntryTime, "TIME IN": colEntryTime,
	"EXIT DATE": colExitDate, "DATE OUT": colExitDate, "EXIT": colExitDate,
	"EXIT TIME": colExitTime, "TIME OUT": colExitTime,
	"GROSS": colGross, "GROSS WEIGHT": colGross, "GROSS WT": colGross,
	"TARE": colTare, "TARE WEIGHT": colTare, "TARE WT": colTare,
	"NET": colNet, "NET WEIGHT": colNet, "NET WT": colNet,
	"MATERIAL": colMaterial, "PRODUCT": colMaterial,
	"VEHICLE": colVehicle, "TRUCK": colVehicle,
	"LICENSE": colLicense, "PLATE": colLicense,
	"ATTENDANT": colAttendant, "ATTENDENT": colAttendant,
}

// findHeader returns the header row index and its column mapping, or -1 when
// no row in the first detectRows names a ticket column.
func findHeader(rows [][]string) (int, map[column]int) {
	for i := 0; i < len(rows) && i < detectRows; i++ {
		cols := map[column]int{}
		for c, v := range rows[i] {
			if k, ok := headerNames[normLabel(v)]; ok {
				if _, dup := cols[k]; !dup {
					cols[k] = c
				}
			}
		}
		if _, ok := cols[colTicket]; ok {
			return i, cols
		}
	}
	return -1, nil
}

// foldFlat reduces a header table, one block per data row. Rows with an empty
// ticket cell continue the previous block's material.
func foldFlat(rows [][]string) accumulator {
	var acc accumulator
	hdr, cols := findHeader(rows)
	if hdr < 0 {
		if len(rows) > 0 {
			acc.issues = append(acc.issues, entity.Issue{
				Code: constants.IssueMalformedBlock, Severity: entity.SeverityError, Row: 1,
				Message: "no ticket header row found",
			})
		}
		return acc
	}
	get := func(row []string, k column) string {
		c, ok := cols[k]
		if !ok {
			return ""
		}
		return cell(row, c)
	}

	for i := hdr + 1; i < len(rows); i++ {
		row, rowNum := rows[i], i+1
		number := get(row, colTicket)
		if number == "" {
			acc = acc.step(rowNum, row)
			continue
		}
		acc = acc.closeBlock()
		b := newBlock(rowNum, number)
		b.flat = true
		b.reference = get(row, colReference)
		b.enterDate, b.enterTime = get(row, colEntryDate), get(row, colEntryTime)
		b.exitDate, b.exitTime = get(row, colExitDate), get(row, colExitTime)
		b.vehicle, b.license, b.attendant = get(row, colVehicle), get(row, colLicense), get(row, colAttendant)
		if m := get(row, colMaterial); m != "" {
			b.material = append(b.material, m)
		}
		for k, label := range map[column]string{colGross: "GROSS", colTare: "TARE", colNet: "NET"} {
			if v := get(row, k); v != "" {
				b.weights[label] = v
			}
		}
		if s := get(row, colStatus); s != "" {
			b.scan([]string{s}, 0, true)
		}
		acc.current = b
	}
	return acc
}
