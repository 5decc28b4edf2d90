package script

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	lua "github.com/yuin/gopher-lua"
)

func writeModule(t *testing.T, dir, name, src string) {
	t.Helper()
	p := filepath.Join(dir, filepath.FromSlash(name))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(src), 0o644))
}

func TestModuleReturnsExportTable(t *testing.T) {
	dir := t.TempDir()
	writeModule(t, dir, "reports/daily.lua", `
local M = {}
function M.main(args) return "ran with " .. #args .. " args" end
return M
`)
	l := NewLoader(dir)
	assert.Equal(t, filepath.Join(dir, "reports", "daily.lua"), l.Path("reports.daily"))

	st := l.NewState(context.Background())
	defer st.Close()
	require.NoError(t, st.Load("reports.daily"))
	out, err := st.Call("main", []any{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, "ran with 2 args", out)
}

func TestGlobalsModuleAndHostFunctions(t *testing.T) {
	dir := t.TempDir()
	writeModule(t, dir, "exporter.lua", `
Exporter = {}
function Exporter:run(task)
  log("exporting " .. task.name)
  return self.kind
end
Exporter.kind = "custom"
`)
	var logged []string
	st := NewLoader(dir).NewState(context.Background())
	defer st.Close()
	st.Register("log", func(args []any) (any, error) {
		logged = append(logged, args[0].(string))
		return nil, nil
	})
	require.NoError(t, st.Load("exporter"))

	cls := st.Lookup("Exporter")
	require.Equal(t, lua.LTTable, cls.Type())
	out, err := st.CallMethod(cls, "run", map[string]any{"name": "nightly"})
	require.NoError(t, err)
	assert.Equal(t, "custom", out)
	assert.Equal(t, []string{"exporting nightly"}, logged)
}

func TestLoadMissingModule(t *testing.T) {
	st := NewLoader(t.TempDir()).NewState(context.Background())
	defer st.Close()
	require.Error(t, st.Load("nope"))
}

func TestCallMissingFunction(t *testing.T) {
	dir := t.TempDir()
	writeModule(t, dir, "empty.lua", `return {}`)
	st := NewLoader(dir).NewState(context.Background())
	defer st.Close()
	require.NoError(t, st.Load("empty"))
	_, err := st.Call("main")
	require.Error(t, err)
}

func TestFilter(t *testing.T) {
	cases := []struct {
		expr string
		row  map[string]any
		want bool
	}{
		{"{status} == 'open'", map[string]any{"status": "open"}, true},
		{"{status} != 'open'", map[string]any{"status": "open"}, false},
		{"num({amount}) > 10 and {region} ~= None", map[string]any{"amount": "12.5", "region": "EU"}, true},
		{"num({amount}) > 10", map[string]any{"amount": 3}, false},
		{"{flag} == True", map[string]any{"flag": true}, true},
	}
	for _, tc := range cases {
		t.Run(tc.expr, func(t *testing.T) {
			f, err := CompileFilter(tc.expr, 0)
			require.NoError(t, err)
			defer f.Close()
			got, err := f.Match(tc.row)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestFilterSandbox(t *testing.T) {
	f, err := CompileFilter("os == nil and io == nil and require == nil", 0)
	require.NoError(t, err)
	defer f.Close()
	ok, err := f.Match(nil)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = CompileFilter("{a} ==", 0)
	require.Error(t, err)
}

func TestTranslateExpr(t *testing.T) {
	assert.Equal(t, `row["first name"] ~= nil`, TranslateExpr("{first name} != None"))
}
