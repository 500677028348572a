package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// decodeWorkbook renders every sheet of an XLSX workbook under header,
// skipping rows whose cells are all blank.
func decodeWorkbook(data []byte, header string) (string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	parts := []string{header}
	for _, sheet := range f.GetSheetList() {
		parts = append(parts, fmt.Sprintf("\n--- SHEET: %s ---", sheet))
		rows, err := f.GetRows(sheet)
		if err != nil {
			return "", fmt.Errorf("read sheet %q: %w", sheet, err)
		}
		for _, row := range rows {
			if blankRow(row) {
				continue
			}
			parts = append(parts, strings.Join(row, " | "))
		}
	}
	return strings.Join(parts, "\n"), nil
}

func blankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
