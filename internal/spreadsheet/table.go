package spreadsheet

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"relevancy/internal/models"
)

// PreviewColumns are the columns shown from an annotated workbook.
var PreviewColumns = []string{"Title", "Relevancy predicted", "Comments made"}

var ErrEmptyWorkbook = errors.New("workbook has no header row")

// MissingColumnError reports a requested column absent from the header.
type MissingColumnError struct {
	Column string
}

func (e *MissingColumnError) Error() string {
	return fmt.Sprintf("column %q not found", e.Column)
}

// LoadTable reads the first sheet of an xlsx file. The first row is the header;
// shorter rows are padded so every row has one cell per column.
func LoadTable(path string) (*models.ResultTable, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook %s: %w", path, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmptyWorkbook
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return nil, ErrEmptyWorkbook
	}

	header := make([]string, len(rows[0]))
	for i, name := range rows[0] {
		header[i] = strings.TrimSpace(name)
	}
	table := &models.ResultTable{
		Columns: header,
		Rows:    make([][]string, 0, len(rows)-1),
	}
	for _, row := range rows[1:] {
		cells := make([]string, len(header))
		copy(cells, row)
		table.Rows = append(table.Rows, cells)
	}
	return table, nil
}

// Project keeps the named columns, in the given order, and at most limit rows.
// A limit <= 0 keeps every row.
func Project(table *models.ResultTable, columns []string, limit int) (*models.ResultTable, error) {
	if table == nil {
		return nil, ErrEmptyWorkbook
	}
	index := make(map[string]int, len(table.Columns))
	for i, name := range table.Columns {
		if _, dup := index[name]; !dup {
			index[name] = i
		}
	}
	picks := make([]int, len(columns))
	for i, name := range columns {
		pos, ok := index[name]
		if !ok {
			return nil, &MissingColumnError{Column: name}
		}
		picks[i] = pos
	}

	n := len(table.Rows)
	if limit > 0 && limit < n {
		n = limit
	}
	out := &models.ResultTable{
		Columns: append([]string(nil), columns...),
		Rows:    make([][]string, 0, n),
	}
	for _, row := range table.Rows[:n] {
		cells := make([]string, len(picks))
		for i, pos := range picks {
			if pos < len(row) {
				cells[i] = row[pos]
			}
		}
		out.Rows = append(out.Rows, cells)
	}
	return out, nil
}
