package fetcher

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// ReadCSV parses comma-separated rows. When hasHeader is set the first
// row is dropped. Rule datasets are small enough to read whole.
func ReadCSV(r io.Reader, hasHeader bool) ([][]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: parse csv")
	}
	if hasHeader && len(rows) > 0 {
		rows = rows[1:]
	}
	return rows, nil
}

// ReadXLSX parses the first sheet (or the named one) of a workbook into
// string rows, skipping the header row when hasHeader is set.
func ReadXLSX(r io.Reader, sheetName string, hasHeader bool) ([][]string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: read xlsx body")
	}

	f, err := xlsx.OpenBinary(data)
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: open xlsx")
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("fetcher: xlsx has no sheets")
	}

	sheet := f.Sheets[0]
	if sheetName != "" {
		s, ok := f.Sheet[sheetName]
		if !ok {
			return nil, eris.Errorf("fetcher: xlsx sheet %q not found", sheetName)
		}
		sheet = s
	}

	var rows [][]string
	for i, row := range sheet.Rows {
		if hasHeader && i == 0 {
			continue
		}
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = strings.TrimSpace(cell.String())
		}
		rows = append(rows, cells)
	}
	return rows, nil
}

// DecodeJSON decodes a whole JSON document into out.
func DecodeJSON(r io.Reader, out any) error {
	if err := json.NewDecoder(r).Decode(out); err != nil {
		return eris.Wrap(err, "fetcher: decode json")
	}
	return nil
}
