// Package recordset is the tabular layer behind the table-transfer tasks: a
// header plus materialized rows, the sources and sinks they are read from and
// written to, and the per-row operations applied in between.
package recordset

import (
	"fmt"
	"strconv"
	"time"

	"dasladen/internal/errors"
)

// Table is a header and its rows. Rows are at least as wide as the header.
type Table struct {
	Header []string
	Rows   [][]any
}

func New(header []string, rows ...[]any) *Table {
	t := &Table{Header: append([]string(nil), header...)}
	for _, r := range rows {
		t.Append(r)
	}
	return t
}

// Append adds a row padded with nils to the header width.
func (t *Table) Append(row []any) {
	if len(row) < len(t.Header) {
		padded := make([]any, len(t.Header))
		copy(padded, row)
		row = padded
	}
	t.Rows = append(t.Rows, row)
}

func (t *Table) Len() int { return len(t.Rows) }

// Empty reports a table without data rows.
func (t *Table) Empty() bool { return t == nil || len(t.Rows) == 0 }

// Index returns the column of field or -1.
func (t *Table) Index(field string) int {
	for i, h := range t.Header {
		if h == field {
			return i
		}
	}
	return -1
}

func (t *Table) mustIndex(field string) (int, error) {
	i := t.Index(field)
	if i < 0 {
		return -1, errors.Transformf("field %q not found in header %v", field, t.Header)
	}
	return i, nil
}

// RowMap returns row i keyed by header.
func (t *Table) RowMap(i int) map[string]any {
	m := make(map[string]any, len(t.Header))
	for j, h := range t.Header {
		m[h] = t.Rows[i][j]
	}
	return m
}

// Mode selects how a sink treats existing content.
type Mode int

const (
	Append Mode = iota
	Truncate
)

func (m Mode) String() string {
	if m == Truncate {
		return "truncate"
	}
	return "append"
}

// ProgressEvery is the row interval at which sinks report progress.
const ProgressEvery = 10000

// Progress receives the running row count while a sink writes.
type Progress func(rows int)

// Text renders a cell for text sinks.
func Text(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case time.Time:
		if x.Hour() == 0 && x.Minute() == 0 && x.Second() == 0 && x.Nanosecond() == 0 {
			return x.Format("2006-01-02")
		}
		return x.Format("2006-01-02 15:04:05")
	default:
		return fmt.Sprint(x)
	}
}
