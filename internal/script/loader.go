// Package script hosts the Lua side of the module: support modules run by
// lua-exec, custom task handlers, module transforms and filter expressions.
//
// Modules live in the module folder as <name>.lua (dots in the name map to
// sub-folders). Every State loads its module from disk, so edits dropped into
// the module folder take effect on the next dispatch.
package script

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	lua "github.com/yuin/gopher-lua"

	"dasladen/internal/errors"
)

// Ext is the extension of support modules.
const Ext = ".lua"

// Loader resolves module names inside a module folder.
type Loader struct {
	dir string
}

func NewLoader(dir string) *Loader { return &Loader{dir: dir} }

func (l *Loader) Dir() string { return l.dir }

// Path maps "reports.daily" to <dir>/reports/daily.lua.
func (l *Loader) Path(module string) string {
	module = strings.TrimSuffix(strings.TrimSpace(module), Ext)
	return filepath.Join(l.dir, filepath.FromSlash(strings.ReplaceAll(module, ".", "/"))+Ext)
}

// NewState returns a fresh interpreter with the standard libraries and
// package.path pointed at the module folder. Callers Close it.
func (l *Loader) NewState(ctx context.Context) *State {
	L := lua.NewState()
	if ctx != nil {
		L.SetContext(ctx)
	}
	if pkg, ok := L.GetGlobal("package").(*lua.LTable); ok {
		pkg.RawSetString("path", lua.LString(filepath.Join(l.dir, "?.lua")+";"+filepath.Join(l.dir, "?", "init.lua")))
	}
	return &State{L: L, loader: l}
}

// State is one interpreter plus the exports of the module loaded into it.
type State struct {
	L       *lua.LState
	loader  *Loader
	module  string
	exports *lua.LTable
}

func (s *State) Close() { s.L.Close() }

// SetGlobal exposes a Go value to Lua.
func (s *State) SetGlobal(name string, v any) { s.L.SetGlobal(name, ToLValue(s.L, v)) }

// HostFunc is a Go function callable from Lua. Arguments and the result use
// the FromLValue/ToLValue shapes; an error is raised as a Lua error.
type HostFunc func(args []any) (any, error)

func (s *State) Register(name string, fn HostFunc) {
	s.L.SetGlobal(name, s.L.NewFunction(func(L *lua.LState) int {
		args := make([]any, 0, L.GetTop())
		for i := 1; i <= L.GetTop(); i++ {
			args = append(args, FromLValue(L.Get(i)))
		}
		res, err := fn(args)
		if err != nil {
			L.RaiseError("%s", err.Error())
			return 0
		}
		L.Push(ToLValue(L, res))
		return 1
	}))
}

// Load runs the module file. A table returned by the chunk becomes the
// export table; otherwise the module's globals are its exports.
func (s *State) Load(module string) error {
	path := s.loader.Path(module)
	if _, err := os.Stat(path); err != nil {
		return errors.Configuration(errors.Wrapf(err, "lua module %q", module))
	}
	fn, err := s.L.LoadFile(path)
	if err != nil {
		return errors.Configuration(errors.Wrapf(err, "lua module %q", module))
	}
	s.L.Push(fn)
	if err := s.L.PCall(0, 1, nil); err != nil {
		return errors.Wrapf(err, "lua module %q", module)
	}
	ret := s.L.Get(-1)
	s.L.Pop(1)
	s.module = module
	if t, ok := ret.(*lua.LTable); ok {
		s.exports = t
	} else {
		s.exports = s.L.G.Global
	}
	return nil
}

// Lookup resolves a dotted name ("Exporter.run") against the exports, then
// against globals.
func (s *State) Lookup(name string) lua.LValue {
	parts := strings.Split(name, ".")
	for _, root := range []*lua.LTable{s.exports, s.L.G.Global} {
		if root == nil {
			continue
		}
		var cur lua.LValue = root
		for _, p := range parts {
			t, ok := cur.(*lua.LTable)
			if !ok {
				cur = lua.LNil
				break
			}
			cur = t.RawGetString(p)
		}
		if cur != lua.LNil {
			return cur
		}
	}
	return lua.LNil
}

// Call invokes the function named name and returns its first result.
func (s *State) Call(name string, args ...any) (any, error) {
	fn := s.Lookup(name)
	if fn.Type() != lua.LTFunction {
		return nil, errors.Configurationf("lua module %q has no function %q", s.module, name)
	}
	return s.CallValue(fn, args...)
}

// CallMethod invokes obj[method](obj, args...).
func (s *State) CallMethod(obj lua.LValue, method string, args ...any) (any, error) {
	t, ok := obj.(*lua.LTable)
	if !ok {
		return nil, errors.Configurationf("lua module %q: %s is not a table", s.module, method)
	}
	fn := t.RawGetString(method)
	if fn.Type() != lua.LTFunction {
		return nil, errors.Configurationf("lua module %q: no method %q", s.module, method)
	}
	return s.CallValue(fn, append([]any{obj}, args...)...)
}

func (s *State) CallValue(fn lua.LValue, args ...any) (any, error) {
	s.L.Push(fn)
	for _, a := range args {
		s.L.Push(ToLValue(s.L, a))
	}
	if err := s.L.PCall(len(args), 1, nil); err != nil {
		return nil, errors.Wrapf(err, "lua module %q", s.module)
	}
	ret := s.L.Get(-1)
	s.L.Pop(1)
	if ret == lua.LNil {
		return nil, nil
	}
	if lv, ok := ret.(*lua.LTable); ok {
		// Keep tables as Lua values so objects can be passed back in.
		return lv, nil
	}
	return FromLValue(ret), nil
}
