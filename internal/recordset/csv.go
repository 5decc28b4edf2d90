package recordset

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"

	"dasladen/internal/errors"
)

// CSVOptions configures CSV sources and sinks. Zero values mean ";" and utf-8.
type CSVOptions struct {
	Delimiter string `json:"delimiter,omitempty"`
	Encoding  string `json:"encoding,omitempty"`
}

func (o CSVOptions) comma() (rune, error) {
	d := o.Delimiter
	if d == "" {
		d = ";"
	}
	if d == `\t` {
		d = "\t"
	}
	r, size := utf8.DecodeRuneInString(d)
	if size != len(d) {
		return 0, errors.Configurationf("delimiter %q must be a single character", o.Delimiter)
	}
	return r, nil
}

func (o CSVOptions) encoding() (encoding.Encoding, error) {
	name := strings.TrimSpace(o.Encoding)
	if name == "" {
		name = "utf-8"
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, errors.Configuration(errors.Wrapf(err, "encoding %q", name))
	}
	return enc, nil
}

// ReadCSV reads a delimited file; the first record is the header.
func ReadCSV(path string, opt CSVOptions) (*Table, error) {
	comma, err := opt.comma()
	if err != nil {
		return nil, err
	}
	enc, err := opt.encoding()
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.IO(errors.Wrap(err, "open csv"))
	}
	defer f.Close()

	r := csv.NewReader(transform.NewReader(f, enc.NewDecoder()))
	r.Comma = comma
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if err == io.EOF {
		return &Table{}, nil
	}
	if err != nil {
		return nil, errors.Transform(errors.Wrapf(err, "read csv header %s", filepath.Base(path)))
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	t := &Table{Header: header}
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Transform(errors.Wrapf(err, "read csv %s", filepath.Base(path)))
		}
		row := make([]any, len(rec))
		for i, v := range rec {
			row[i] = v
		}
		t.Append(row)
	}
	return t, nil
}

// WriteCSV writes t to path. Truncate replaces the file with header and
// rows; Append adds rows only, writing the header when the file is new.
func WriteCSV(path string, t *Table, opt CSVOptions, mode Mode, progress Progress) (int, error) {
	comma, err := opt.comma()
	if err != nil {
		return 0, err
	}
	enc, err := opt.encoding()
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, errors.IO(err)
	}

	flags := os.O_CREATE | os.O_WRONLY
	withHeader := true
	if mode == Truncate {
		flags |= os.O_TRUNC
	} else {
		flags |= os.O_APPEND
		if st, err := os.Stat(path); err == nil && st.Size() > 0 {
			withHeader = false
		}
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return 0, errors.IO(errors.Wrap(err, "open csv for write"))
	}
	tw := transform.NewWriter(f, enc.NewEncoder())
	w := csv.NewWriter(tw)
	w.Comma = comma

	n, werr := writeRecords(w, t, withHeader, progress)
	w.Flush()
	if werr == nil {
		werr = w.Error()
	}
	if err := tw.Close(); werr == nil && err != nil {
		werr = err
	}
	if err := f.Close(); werr == nil && err != nil {
		werr = err
	}
	if werr != nil {
		return n, errors.IO(errors.Wrapf(werr, "write csv %s", filepath.Base(path)))
	}
	return n, nil
}

func writeRecords(w *csv.Writer, t *Table, withHeader bool, progress Progress) (int, error) {
	if withHeader {
		if err := w.Write(t.Header); err != nil {
			return 0, err
		}
	}
	rec := make([]string, len(t.Header))
	for i, row := range t.Rows {
		for j := range rec {
			rec[j] = Text(row[j])
		}
		if err := w.Write(rec); err != nil {
			return i, err
		}
		if progress != nil && (i+1)%ProgressEvery == 0 {
			progress(i + 1)
		}
	}
	return len(t.Rows), nil
}
