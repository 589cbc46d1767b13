package export

import (
	"bytes"
	"fmt"
	"strconv"

	pkgerrors "github.com/pkg/errors"
	"github.com/xuri/excelize/v2"

	"github.com/institutohope/platform/core/student"
)

const rosterSheet = "Tropa"

var rosterHeader = []string{
	"ID", "Nome", "Email", "Função", "Status", "Polo", "Cidade", "Programa",
	"Patente", "Prova Alvo", "Minutos Totais", "Dias Seguidos", "Missões", "Pontos",
}

// RosterWorkbook renders the full roster as a single-sheet workbook, ready
// for download by a mentor.
func RosterWorkbook(roster []student.Student) (*bytes.Buffer, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", rosterSheet); err != nil {
		return nil, pkgerrors.Wrap(err, "renaming sheet")
	}

	for col, h := range rosterHeader {
		cell := fmt.Sprintf("%s1", colName(col+1))
		if err := f.SetCellStr(rosterSheet, cell, h); err != nil {
			return nil, pkgerrors.Wrap(err, "writing header cell "+cell)
		}
	}

	for r, rec := range roster {
		row := []string{
			rec.ID, rec.Name, rec.Email, rec.Role, rec.Status, rec.Polo,
			rec.City, rec.Program, rec.Patent, rec.TargetExam,
			strconv.Itoa(rec.TotalMinutes), strconv.Itoa(rec.StreakDays),
			strconv.Itoa(rec.MissionsCompleted), strconv.Itoa(rec.Points),
		}
		for c, val := range row {
			cell := fmt.Sprintf("%s%d", colName(c+1), r+2)
			if err := f.SetCellStr(rosterSheet, cell, val); err != nil {
				return nil, pkgerrors.Wrap(err, "writing cell "+cell)
			}
		}
	}

	// bold header + filter
	end := colName(len(rosterHeader)) + "1"
	if bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err == nil {
		_ = f.SetCellStyle(rosterSheet, "A1", end, bold)
	}
	_ = f.AutoFilter(rosterSheet, "A1:"+end, nil)

	// width heuristic: header length vs longest value, clamped
	for c := 1; c <= len(rosterHeader); c++ {
		maxim := len(rosterHeader[c-1])
		for r := 0; r < len(roster) && r < 50; r++ {
			cell := fmt.Sprintf("%s%d", colName(c), r+2)
			if v, err := f.GetCellValue(rosterSheet, cell); err == nil && len(v) > maxim {
				maxim = len(v)
			}
		}
		w := float64(maxim) * 0.9
		if w < 12 {
			w = 12
		}
		if w > 40 {
			w = 40
		}
		_ = f.SetColWidth(rosterSheet, colName(c), colName(c), w)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, pkgerrors.Wrap(err, "writing workbook")
	}
	return buf, nil
}

func colName(n int) string {
	s := ""
	for n > 0 {
		n--
		s = string(rune('A'+(n%26))) + s
		n /= 26
	}
	return s
}
