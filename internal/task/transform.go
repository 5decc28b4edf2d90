package task

import (
	"context"

	lua "github.com/yuin/gopher-lua"

	"dasladen/internal/errors"
	"dasladen/internal/recordset"
	"dasladen/internal/script"
	"dasladen/pkg/logx"
)

// ModuleRef names a module transform. Module is a built-in name or a Lua
// module exposing transform(row, fields, args); with Class the function is
// looked up as Class:transform.
type ModuleRef struct {
	Module string         `json:"module,omitempty"`
	Class  string         `json:"class,omitempty"`
	Fields []string       `json:"fields,omitempty"`
	Args   map[string]any `json:"args,omitempty"`
}

// Transform is the "transform" block: an optional module transform plus the
// table operations, applied in the order convert, filter, remove, rename.
type Transform struct {
	ModuleRef
	Convert [][2]string `json:"convert,omitempty"`
	Filter  string      `json:"filter,omitempty"`
	Remove  []string    `json:"remove,omitempty"`
	Rename  [][2]string `json:"rename,omitempty"`
}

var builtinTransforms = map[string]func(any) any{
	"empty_as_null":   recordset.EmptyAsNull,
	"empty_as_none":   recordset.EmptyAsNull,
	"sanitize_string": recordset.Sanitize,
	"sanitize":        recordset.Sanitize,
}

// applyTransforms runs the module transforms, then the table operations.
func applyTransforms(ctx context.Context, env *Env, spec itemSpec, t *recordset.Table, log *logx.RunLog) error {
	refs := spec.Transforms
	if len(refs) == 0 && spec.Transform != nil && spec.Transform.Module != "" {
		refs = []ModuleRef{spec.Transform.ModuleRef}
	}
	for _, ref := range refs {
		if err := moduleTransform(ctx, env, ref, t, log); err != nil {
			return err
		}
	}
	if spec.Transform == nil {
		return nil
	}
	return tableOps(env, *spec.Transform, t)
}

func tableOps(env *Env, tr Transform, t *recordset.Table) error {
	if len(tr.Convert) > 0 {
		convs := make([]recordset.Conversion, len(tr.Convert))
		for i, c := range tr.Convert {
			convs[i] = recordset.Conversion{Field: c[0], Func: c[1]}
		}
		if err := recordset.Convert(t, convs); err != nil {
			return errors.Wrap(err, "convert")
		}
	}
	if tr.Filter != "" {
		f, err := script.CompileFilter(tr.Filter, env.FilterTimeout)
		if err != nil {
			return err
		}
		defer f.Close()
		if err := recordset.Select(t, f); err != nil {
			return errors.Transform(errors.Wrap(err, "filter"))
		}
	}
	if len(tr.Remove) > 0 {
		if err := recordset.Cutout(t, tr.Remove); err != nil {
			return errors.Wrap(err, "remove")
		}
	}
	if len(tr.Rename) > 0 {
		if err := recordset.Rename(t, tr.Rename); err != nil {
			return errors.Wrap(err, "rename")
		}
	}
	return nil
}

func moduleTransform(ctx context.Context, env *Env, ref ModuleRef, t *recordset.Table, log *logx.RunLog) error {
	if fn, ok := builtinTransforms[ref.Module]; ok {
		return recordset.ConvertFields(t, func(v any) (any, error) { return fn(v), nil }, ref.Fields...)
	}
	if env.Scripts == nil {
		return errors.Configurationf("transform module %q: no module folder", ref.Module)
	}

	st := env.Scripts.NewState(ctx)
	defer st.Close()
	if err := st.Load(ref.Module); err != nil {
		return err
	}

	call := func(row map[string]any) (any, error) {
		return st.Call("transform", row, ref.Fields, ref.Args)
	}
	if ref.Class != "" {
		log.Printf("Transform data with %s", ref.Class)
		obj := st.Lookup(ref.Class)
		call = func(row map[string]any) (any, error) {
			return st.CallMethod(obj, "transform", row, ref.Fields, ref.Args)
		}
	}

	err := recordset.MapRows(t, func(row map[string]any) (map[string]any, error) {
		out, err := call(row)
		if err != nil {
			return nil, errors.Transform(err)
		}
		if out == nil {
			return nil, nil
		}
		lt, ok := out.(*lua.LTable)
		if !ok {
			return nil, errors.Transformf("transform %q returned %T, want a table", ref.Module, out)
		}
		m, ok := script.FromLValue(lt).(map[string]any)
		if !ok {
			return nil, errors.Transformf("transform %q returned a list, want a row", ref.Module)
		}
		return m, nil
	})
	return errors.Wrapf(err, "transform %s", ref.Module)
}
