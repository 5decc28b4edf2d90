package recordset

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/antchfx/xmlquery"

	"dasladen/internal/errors"
)

// XMLOptions selects rows and values in an XML document.
//
// With Value, each row element's Value matches are its cells and the first
// row is the header; Attr reads an attribute of each match instead of its
// text. With Mapping, the header is the mapping keys and each cell is the
// first match of the key's path under the row.
type XMLOptions struct {
	Row     string  `json:"row"`
	Value   string  `json:"value,omitempty"`
	Attr    string  `json:"attr,omitempty"`
	Mapping Mapping `json:"mapping,omitempty"`
}

// Mapping is a JSON object whose key order is kept.
type Mapping []MappingEntry

type MappingEntry struct {
	Field string
	Path  string
}

func (m *Mapping) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return errors.New("mapping must be an object")
	}
	var out Mapping
	for dec.More() {
		k, err := dec.Token()
		if err != nil {
			return err
		}
		var v string
		if err := dec.Decode(&v); err != nil {
			return err
		}
		out = append(out, MappingEntry{Field: k.(string), Path: v})
	}
	*m = out
	return nil
}

// anywhere turns a bare element name into a descendant search.
func anywhere(expr string) string {
	expr = strings.TrimSpace(expr)
	if strings.HasPrefix(expr, "/") || strings.HasPrefix(expr, ".") {
		return expr
	}
	return "//" + expr
}

// relative anchors a bare path at the current node.
func relative(expr string) string {
	expr = strings.TrimSpace(expr)
	if strings.HasPrefix(expr, "/") || strings.HasPrefix(expr, ".") {
		return expr
	}
	return "./" + expr
}

func ReadXML(path string, opt XMLOptions) (*Table, error) {
	switch {
	case opt.Row != "" && opt.Value != "":
	case opt.Row != "" && len(opt.Mapping) > 0:
	default:
		return nil, errors.Configurationf("xml source needs row with value or mapping")
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.IO(errors.Wrap(err, "open xml"))
	}
	defer f.Close()
	doc, err := xmlquery.Parse(f)
	if err != nil {
		return nil, errors.Transform(errors.Wrapf(err, "parse xml %s", filepath.Base(path)))
	}
	rows, err := xmlquery.QueryAll(doc, anywhere(opt.Row))
	if err != nil {
		return nil, errors.Configuration(errors.Wrapf(err, "row expression %q", opt.Row))
	}

	if len(opt.Mapping) > 0 {
		return xmlMapped(rows, opt.Mapping)
	}

	t := &Table{}
	for i, rn := range rows {
		cells, err := xmlquery.QueryAll(rn, relative(opt.Value))
		if err != nil {
			return nil, errors.Configuration(errors.Wrapf(err, "value expression %q", opt.Value))
		}
		vals := make([]any, len(cells))
		for j, c := range cells {
			if opt.Attr != "" {
				vals[j] = c.SelectAttr(opt.Attr)
			} else {
				vals[j] = strings.TrimSpace(c.InnerText())
			}
		}
		if i == 0 {
			t.Header = make([]string, len(vals))
			for j, v := range vals {
				t.Header[j] = Text(v)
			}
			continue
		}
		t.Append(vals)
	}
	return t, nil
}

func xmlMapped(rows []*xmlquery.Node, mapping Mapping) (*Table, error) {
	t := &Table{Header: make([]string, len(mapping))}
	for i, e := range mapping {
		t.Header[i] = e.Field
	}
	for _, rn := range rows {
		row := make([]any, len(mapping))
		for i, e := range mapping {
			if attr, ok := strings.CutPrefix(strings.TrimSpace(e.Path), "@"); ok {
				row[i] = rn.SelectAttr(attr)
				continue
			}
			n, err := xmlquery.Query(rn, relative(e.Path))
			if err != nil {
				return nil, errors.Configuration(errors.Wrapf(err, "mapping %q", e.Field))
			}
			if n != nil {
				row[i] = strings.TrimSpace(n.InnerText())
			}
		}
		t.Append(row)
	}
	return t, nil
}
