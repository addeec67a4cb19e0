package table

import (
	"errors"
	"fmt"

	"github.com/couchcryptid/air-quality-etl/internal/domain"
	"github.com/xuri/excelize/v2"
)

// readXLSX reads the first worksheet. Cells are taken as displayed, so date
// cells arrive in the workbook's number format.
func readXLSX(path string) (domain.RawTable, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return domain.RawTable{}, fmt.Errorf("open xlsx input: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return domain.RawTable{}, errors.New("read xlsx input: workbook has no sheets")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return domain.RawTable{}, fmt.Errorf("read xlsx sheet %q: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return domain.RawTable{}, nil
	}

	t := domain.RawTable{Header: cleanHeader(rows[0])}
	t.Rows = make([][]string, 0, len(rows)-1)
	for _, row := range rows[1:] {
		t.Rows = append(t.Rows, fitRow(row, len(t.Header)))
	}
	return t, nil
}
