// Package descriptor models task descriptor files: the recognition rule, the
// document shape and its schema validation.
package descriptor

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"dasladen/internal/config"
	"dasladen/internal/connection"
	"dasladen/internal/errors"
)

// Descriptor is a parsed task descriptor file.
type Descriptor struct {
	// Name is the base name of the source file.
	Name string `json:"-"`

	Schedule    *Schedule           `json:"schedule,omitempty"`
	Tasks       []Item              `json:"tasks"`
	Connections []connection.Config `json:"connections,omitempty"`
}

// Item is one entry of "tasks". Handler-specific keys stay in Raw and are
// decoded by the handler with DecodeItem.
type Item struct {
	Name     string `json:"name,omitempty"`
	Type     string `json:"type,omitempty"`
	Disabled bool   `json:"disabled,omitempty"`

	Raw json.RawMessage `json:"-"`
}

func (it *Item) UnmarshalJSON(b []byte) error {
	type plain Item
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*it = Item(p)
	it.Raw = append(json.RawMessage(nil), b...)
	return nil
}

// Label is the item name, or its type when unnamed.
func (it Item) Label() string {
	if it.Name != "" {
		return it.Name
	}
	return it.Type
}

// DecodeItem decodes the full item object into T.
func DecodeItem[T any](it Item) (T, error) {
	var out T
	if len(it.Raw) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(it.Raw, &out); err != nil {
		return out, errors.Configuration(errors.Wrapf(err, "task %q", it.Label()))
	}
	return out, nil
}

// Map returns the item as a generic JSON object.
func (it Item) Map() (map[string]any, error) {
	m := map[string]any{}
	if len(it.Raw) == 0 {
		return m, nil
	}
	dec := json.NewDecoder(bytes.NewReader(it.Raw))
	dec.UseNumber()
	if err := dec.Decode(&m); err != nil {
		return nil, errors.Configuration(errors.Wrapf(err, "task %q", it.Label()))
	}
	return m, nil
}

var extensions = map[string]bool{".json": true, ".yaml": true, ".yml": true}

// HasDescriptorExt reports whether name carries a descriptor extension.
func HasDescriptorExt(name string) bool {
	return extensions[strings.ToLower(filepath.Ext(name))]
}

// IsDescriptor reports whether path is a regular file with a descriptor
// extension whose content parses to an object with a "tasks" key.
func IsDescriptor(path string) bool {
	if !HasDescriptorExt(path) {
		return false
	}
	st, err := os.Stat(path)
	if err != nil || !st.Mode().IsRegular() {
		return false
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	jb, _, err := config.CoerceToJSONBytes(path, b)
	if err != nil {
		return false
	}
	var top map[string]json.RawMessage
	if err := json.Unmarshal(jb, &top); err != nil {
		return false
	}
	_, ok := top["tasks"]
	return ok
}

// Load reads, validates and decodes the descriptor at path.
func Load(path string) (*Descriptor, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.IO(errors.Wrap(err, "read descriptor"))
	}
	d, err := Parse(path, b)
	if err != nil {
		return nil, err
	}
	d.Name = filepath.Base(path)
	return d, nil
}

// Parse decodes descriptor bytes; the format follows the extension of name.
func Parse(name string, data []byte) (*Descriptor, error) {
	jb, format, err := config.CoerceToJSONBytes(name, data)
	if err != nil {
		return nil, errors.Configuration(errors.Wrapf(err, "descriptor %s", filepath.Base(name)))
	}
	if err := Validate(jb); err != nil {
		return nil, errors.Wrapf(err, "descriptor %s (%s)", filepath.Base(name), format)
	}
	var d Descriptor
	if err := json.Unmarshal(jb, &d); err != nil {
		return nil, errors.Configuration(errors.Wrapf(err, "descriptor %s", filepath.Base(name)))
	}
	d.Name = filepath.Base(name)
	return &d, nil
}

//go:embed schema.cue
var schemaSource []byte

// Validate checks JSON descriptor bytes against the descriptor schema.
func Validate(jsonBytes []byte) error {
	ctx := cuecontext.New()
	schema := ctx.CompileBytes(schemaSource)
	if err := schema.Err(); err != nil {
		return errors.Wrap(err, "compile descriptor schema")
	}
	data := ctx.CompileBytes(jsonBytes)
	if err := data.Err(); err != nil {
		return errors.Configuration(errors.Wrap(err, "parse"))
	}
	def := schema.LookupPath(cue.ParsePath("#Descriptor"))
	if err := def.Unify(data).Validate(cue.Concrete(true)); err != nil {
		return errors.Configuration(errors.Wrap(err, "schema"))
	}
	return nil
}
