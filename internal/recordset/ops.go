package recordset

import (
	"sort"
	"strconv"
	"strings"

	"dasladen/internal/errors"
)

// ValueFunc converts one cell.
type ValueFunc func(v any) (any, error)

var valueFuncs = map[string]ValueFunc{
	"upper": func(v any) (any, error) { return mapString(v, strings.ToUpper), nil },
	"lower": func(v any) (any, error) { return mapString(v, strings.ToLower), nil },
	"strip": func(v any) (any, error) { return mapString(v, strings.TrimSpace), nil },
	"str": func(v any) (any, error) {
		if v == nil {
			return nil, nil
		}
		return Text(v), nil
	},
	"int": func(v any) (any, error) {
		switch x := v.(type) {
		case nil:
			return nil, nil
		case int64, int:
			return x, nil
		case float64:
			return int64(x), nil
		}
		n, err := strconv.ParseInt(strings.TrimSpace(Text(v)), 10, 64)
		if err != nil {
			return nil, errors.Transformf("int(%q): %v", Text(v), err)
		}
		return n, nil
	},
	"float": func(v any) (any, error) {
		switch x := v.(type) {
		case nil:
			return nil, nil
		case float64:
			return x, nil
		case int64:
			return float64(x), nil
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(Text(v)), 64)
		if err != nil {
			return nil, errors.Transformf("float(%q): %v", Text(v), err)
		}
		return f, nil
	},
	"empty_as_null": func(v any) (any, error) { return EmptyAsNull(v), nil },
	"sanitize":      func(v any) (any, error) { return Sanitize(v), nil },
}

func mapString(v any, fn func(string) string) any {
	if s, ok := v.(string); ok {
		return fn(s)
	}
	return v
}

// LookupFunc returns the named conversion.
func LookupFunc(name string) (ValueFunc, error) {
	fn, ok := valueFuncs[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, errors.Configurationf("unknown conversion %q", name)
	}
	return fn, nil
}

// EmptyAsNull turns "" into nil.
func EmptyAsNull(v any) any {
	if s, ok := v.(string); ok && s == "" {
		return nil
	}
	return v
}

// Sanitize replaces ASCII control characters (below 32) with spaces.
func Sanitize(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	return strings.Map(func(r rune) rune {
		if r < 32 {
			return ' '
		}
		return r
	}, s)
}

// Conversion pairs a field with a conversion name.
type Conversion struct {
	Field string
	Func  string
}

// Convert applies each conversion to its field.
func Convert(t *Table, convs []Conversion) error {
	for _, c := range convs {
		fn, err := LookupFunc(c.Func)
		if err != nil {
			return err
		}
		if err := ConvertFields(t, fn, c.Field); err != nil {
			return err
		}
	}
	return nil
}

// ConvertFields applies fn to fields, or to every field when none are given.
func ConvertFields(t *Table, fn ValueFunc, fields ...string) error {
	cols := make([]int, 0, len(t.Header))
	if len(fields) == 0 {
		for i := range t.Header {
			cols = append(cols, i)
		}
	}
	for _, f := range fields {
		i, err := t.mustIndex(f)
		if err != nil {
			return err
		}
		cols = append(cols, i)
	}
	for r, row := range t.Rows {
		for _, c := range cols {
			v, err := fn(row[c])
			if err != nil {
				return errors.Wrapf(err, "row %d field %q", r+1, t.Header[c])
			}
			row[c] = v
		}
	}
	return nil
}

// Predicate decides whether a row is kept.
type Predicate interface {
	Match(row map[string]any) (bool, error)
}

// Select keeps the rows matching p.
func Select(t *Table, p Predicate) error {
	kept := t.Rows[:0]
	for i := range t.Rows {
		ok, err := p.Match(t.RowMap(i))
		if err != nil {
			return errors.Wrapf(err, "row %d", i+1)
		}
		if ok {
			kept = append(kept, t.Rows[i])
		}
	}
	t.Rows = kept
	return nil
}

// Cutout removes fields.
func Cutout(t *Table, fields []string) error {
	drop := map[int]bool{}
	for _, f := range fields {
		i, err := t.mustIndex(f)
		if err != nil {
			return err
		}
		drop[i] = true
	}
	keep := func(row []any) []any {
		out := make([]any, 0, len(row)-len(drop))
		for i, v := range row {
			if !drop[i] {
				out = append(out, v)
			}
		}
		return out
	}
	header := make([]string, 0, len(t.Header)-len(drop))
	for i, h := range t.Header {
		if !drop[i] {
			header = append(header, h)
		}
	}
	for i, row := range t.Rows {
		t.Rows[i] = keep(row[:len(t.Header)])
	}
	t.Header = header
	return nil
}

// Rename renames fields; pairs are [old, new].
func Rename(t *Table, pairs [][2]string) error {
	for _, p := range pairs {
		i, err := t.mustIndex(p[0])
		if err != nil {
			return err
		}
		t.Header[i] = p[1]
	}
	return nil
}

// RowFunc rewrites one row; returning nil drops it.
type RowFunc func(row map[string]any) (map[string]any, error)

// MapRows rewrites every row through fn. Fields introduced by fn are
// appended to the header in name order.
func MapRows(t *Table, fn RowFunc) error {
	out := make([]map[string]any, 0, len(t.Rows))
	extra := map[string]bool{}
	for i := range t.Rows {
		m, err := fn(t.RowMap(i))
		if err != nil {
			return errors.Wrapf(err, "row %d", i+1)
		}
		if m == nil {
			continue
		}
		for k := range m {
			if t.Index(k) < 0 {
				extra[k] = true
			}
		}
		out = append(out, m)
	}
	added := make([]string, 0, len(extra))
	for k := range extra {
		added = append(added, k)
	}
	sort.Strings(added)
	t.Header = append(t.Header, added...)
	t.Rows = t.Rows[:0]
	for _, m := range out {
		row := make([]any, len(t.Header))
		for i, h := range t.Header {
			row[i] = m[h]
		}
		t.Rows = append(t.Rows, row)
	}
	return nil
}
