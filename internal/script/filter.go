package script

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	lua "github.com/yuin/gopher-lua"

	"dasladen/internal/errors"
)

// Filter is a compiled row predicate.
//
// Expressions use {field} placeholders for row values, e.g.
// "{status} == 'open' and num({amount}) > 10". Python-style "!=", None,
// True and False are accepted. num(v) converts a value to a number.
type Filter struct {
	L       *lua.LState
	fn      *lua.LFunction
	expr    string
	timeout time.Duration
}

var (
	placeholderRe = regexp.MustCompile(`\{([^{}]+)\}`)
	pyWords       = strings.NewReplacer("!=", "~=")
	pyNone        = regexp.MustCompile(`\bNone\b`)
	pyTrue        = regexp.MustCompile(`\bTrue\b`)
	pyFalse       = regexp.MustCompile(`\bFalse\b`)
)

// TranslateExpr rewrites a filter expression into a Lua expression.
func TranslateExpr(expr string) string {
	out := placeholderRe.ReplaceAllStringFunc(expr, func(m string) string {
		name := strings.TrimSpace(m[1 : len(m)-1])
		return `row["` + strings.ReplaceAll(name, `"`, `\"`) + `"]`
	})
	out = pyWords.Replace(out)
	out = pyNone.ReplaceAllString(out, "nil")
	out = pyTrue.ReplaceAllString(out, "true")
	out = pyFalse.ReplaceAllString(out, "false")
	return out
}

// CompileFilter compiles expr in a sandboxed interpreter (base, string,
// table and math libraries only). timeout bounds each evaluation; 0 means none.
func CompileFilter(expr string, timeout time.Duration) (*Filter, error) {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	for _, lib := range []struct {
		name string
		fn   lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.StringLibName, lua.OpenString},
		{lua.TabLibName, lua.OpenTable},
		{lua.MathLibName, lua.OpenMath},
	} {
		L.Push(L.NewFunction(lib.fn))
		L.Push(lua.LString(lib.name))
		L.Call(1, 0)
	}
	for _, unsafe := range []string{"dofile", "loadfile", "load", "loadstring", "require", "module"} {
		L.SetGlobal(unsafe, lua.LNil)
	}
	L.SetGlobal("num", L.NewFunction(func(L *lua.LState) int {
		switch v := L.Get(1).(type) {
		case lua.LNumber:
			L.Push(v)
		case lua.LString:
			n, err := strconv.ParseFloat(strings.TrimSpace(string(v)), 64)
			if err != nil {
				L.Push(lua.LNil)
			} else {
				L.Push(lua.LNumber(n))
			}
		default:
			L.Push(lua.LNil)
		}
		return 1
	}))

	fn, err := L.LoadString("return (" + TranslateExpr(expr) + ")")
	if err != nil {
		L.Close()
		return nil, errors.Configuration(errors.Wrapf(err, "filter %q", expr))
	}
	return &Filter{L: L, fn: fn, expr: expr, timeout: timeout}, nil
}

// Match evaluates the predicate for one row.
func (f *Filter) Match(row map[string]any) (bool, error) {
	if f.timeout > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
		defer cancel()
		f.L.SetContext(ctx)
		defer f.L.RemoveContext()
	}
	f.L.SetGlobal("row", ToLValue(f.L, row))
	f.L.Push(f.fn)
	if err := f.L.PCall(0, 1, nil); err != nil {
		return false, errors.Transform(errors.Wrapf(err, "filter %q", f.expr))
	}
	ret := f.L.Get(-1)
	f.L.Pop(1)
	return lua.LVAsBool(ret), nil
}

func (f *Filter) Close() { f.L.Close() }
