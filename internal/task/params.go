package task

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"dasladen/internal/errors"
	"dasladen/internal/recordset"
)

// Endpoint is a "source" or "target" block. Handlers read the keys they need.
type Endpoint struct {
	Connection string `json:"connection,omitempty"`
	File       string `json:"file,omitempty"`
	Folder     string `json:"folder,omitempty"`
	Path       string `json:"path,omitempty"`
	Table      string `json:"table,omitempty"`
	Schema     string `json:"schema,omitempty"`
	Delimiter  string `json:"delimiter,omitempty"`
	Encoding   string `json:"encoding,omitempty"`
	Truncate   bool   `json:"truncate,omitempty"`
	Sheet      string `json:"sheet,omitempty"`

	// SQL text
	Command string         `json:"command,omitempty"`
	Query   string         `json:"query,omitempty"`
	Params  map[string]any `json:"params,omitempty"`

	// XML
	Row     string            `json:"row,omitempty"`
	Value   string            `json:"value,omitempty"`
	Attr    string            `json:"attr,omitempty"`
	Mapping recordset.Mapping `json:"mapping,omitempty"`

	// zip
	Files       []string `json:"files,omitempty"`
	RemoveAfter []string `json:"remove_after,omitempty"`

	// lua-exec
	Module string `json:"module,omitempty"`
	Args   []any  `json:"args,omitempty"`
}

func (e Endpoint) csv() recordset.CSVOptions {
	return recordset.CSVOptions{Delimiter: e.Delimiter, Encoding: e.Encoding}
}

func (e Endpoint) mode() recordset.Mode {
	if e.Truncate {
		return recordset.Truncate
	}
	return recordset.Append
}

func (e Endpoint) xml() recordset.XMLOptions {
	return recordset.XMLOptions{Row: e.Row, Value: e.Value, Attr: e.Attr, Mapping: e.Mapping}
}

// itemSpec is the common shape of table and file tasks.
type itemSpec struct {
	Source     *Endpoint   `json:"source,omitempty"`
	Target     *Endpoint   `json:"target,omitempty"`
	Transform  *Transform  `json:"transform,omitempty"`
	Transforms []ModuleRef `json:"transforms,omitempty"`
}

func (s itemSpec) source(label string) (Endpoint, error) {
	if s.Source == nil {
		return Endpoint{}, errors.Configurationf("task %q: source is required", label)
	}
	return *s.Source, nil
}

func (s itemSpec) target(label string) (Endpoint, error) {
	if s.Target == nil {
		return Endpoint{}, errors.Configurationf("task %q: target is required", label)
	}
	return *s.Target, nil
}

func needKey(label, key, v string) error {
	if strings.TrimSpace(v) == "" {
		return errors.Configurationf("task %q: %s is required", label, key)
	}
	return nil
}

var paramRe = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// SQLText returns the statement of a source block: the inline command, or the
// query file under path (default input) with its lines joined by spaces.
// {name} placeholders are replaced from params and one trailing ";" is
// removed.
func SQLText(e Endpoint, f Folders) (string, error) {
	var sql string
	switch {
	case e.Command != "":
		sql = e.Command
	case e.Query != "":
		p := filepath.Join(f.Resolve(e.Path, "input"), e.Query)
		b, err := os.ReadFile(p)
		if err != nil {
			return "", errors.IO(errors.Wrapf(err, "read query %s", e.Query))
		}
		lines := strings.Split(strings.ReplaceAll(string(b), "\r\n", "\n"), "\n")
		sql = strings.Join(lines, " ")
	default:
		return "", errors.Configurationf("sql needs command or query")
	}
	if len(e.Params) > 0 {
		var missing []string
		sql = paramRe.ReplaceAllStringFunc(sql, func(m string) string {
			name := m[1 : len(m)-1]
			v, ok := e.Params[name]
			if !ok {
				missing = append(missing, name)
				return m
			}
			return fmt.Sprint(v)
		})
		if len(missing) > 0 {
			return "", errors.Configurationf("sql parameter(s) %s not given", strings.Join(missing, ", "))
		}
	}
	sql = strings.TrimSpace(sql)
	sql = strings.TrimSuffix(sql, ";")
	return sql, nil
}
