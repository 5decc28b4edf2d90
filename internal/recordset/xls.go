package recordset

import (
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"dasladen/internal/errors"
)

// ReadSheet reads one worksheet of a spreadsheet workbook; the first row is
// the header. An empty sheet name selects the first sheet.
func ReadSheet(path, sheet string) (*Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, errors.IO(errors.Wrapf(err, "open workbook %s", filepath.Base(path)))
	}
	defer f.Close()

	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	if idx, err := f.GetSheetIndex(sheet); err != nil || idx < 0 {
		return nil, errors.Configurationf("workbook %s has no sheet %q", filepath.Base(path), sheet)
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, errors.Transform(errors.Wrapf(err, "read sheet %q", sheet))
	}
	if len(rows) == 0 {
		return &Table{}, nil
	}
	t := &Table{Header: rows[0]}
	for _, r := range rows[1:] {
		row := make([]any, len(r))
		for i, v := range r {
			row[i] = v
		}
		t.Append(row)
	}
	return t, nil
}
