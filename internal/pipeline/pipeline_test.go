package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dasladen/internal/archive"
	"dasladen/internal/descriptor"
	"dasladen/internal/errors"
	"dasladen/internal/task"
	"dasladen/internal/task/engine"
	"dasladen/pkg/logx"
)

var noon = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

type fakeScheduler struct {
	mu    sync.Mutex
	names []string
}

func (s *fakeScheduler) Enqueue(name string, d *descriptor.Descriptor) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.names = append(s.names, name)
	if d.Schedule.IsRecurring() {
		return "each 1 day(s)", nil
	}
	return "once at '" + d.Schedule.ClockTime() + "'", nil
}

type fixture struct {
	p       *Pipeline
	folders task.Folders
	sink    *logx.MemorySink
	sched   *fakeScheduler
}

func newFixture(t *testing.T, cfg Config, opts ...Option) *fixture {
	t.Helper()
	root := t.TempDir()
	f := &fixture{sink: logx.NewMemorySink(), sched: &fakeScheduler{}}
	f.folders = task.Folders{
		Root:    root,
		Capture: filepath.Join(root, "capture"),
		Input:   filepath.Join(root, "input"),
		Output:  filepath.Join(root, "output"),
		Log:     filepath.Join(root, "log"),
		Module:  filepath.Join(root, "module"),
	}
	for _, dir := range []string{f.folders.Capture, f.folders.Input, f.folders.Output, f.folders.Module} {
		require.NoError(t, os.MkdirAll(dir, 0o755))
	}
	now := func() time.Time { return noon }
	hub := logx.NewHub([]logx.RunSink{f.sink}, logx.WithClock(now))
	runner := &task.Runner{Registry: task.Builtins(), Folders: f.folders, Hub: hub, Now: now}
	cfg.Folders = f.folders
	f.p = New(cfg, runner, f.sched, hub, logx.Nop(), append([]Option{WithClock(now)}, opts...)...)
	return f
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// bundle writes files into a scratch dir and zips them into dest.
func bundle(t *testing.T, dest string, files map[string]string) {
	t.Helper()
	scratch := t.TempDir()
	var entries []archive.Entry
	for name, content := range files {
		p := filepath.Join(scratch, name)
		writeFile(t, p, content)
		entries = append(entries, archive.Entry{Path: p, Name: name})
	}
	require.NoError(t, archive.Create(dest, entries))
}

func stagingLeft(t *testing.T, root string) []string {
	t.Helper()
	m, err := filepath.Glob(filepath.Join(root, stagingPattern))
	require.NoError(t, err)
	return m
}

func TestProcessBundle(t *testing.T) {
	f := newFixture(t, Config{})
	bundle(t, filepath.Join(f.folders.Capture, "bundle.zip"), map[string]string{
		"job.json":   `{"tasks":[{"name":"idle","type":"nop"},{"name":"off","type":"bogus","disabled":true}]}`,
		"helper.lua": `function transform(r) return r end`,
		"data.csv":   "a;b\n1;2\n",
	})

	f.p.Process(context.Background(), f.folders.Capture, []string{"bundle.zip"}, KindWatcher)

	assert.NoFileExists(t, filepath.Join(f.folders.Capture, "bundle.zip"))
	assert.FileExists(t, filepath.Join(f.folders.Module, "helper.lua"))
	assert.FileExists(t, filepath.Join(f.folders.Input, "data.csv"))
	assert.FileExists(t, filepath.Join(f.folders.Input, "job.json"))
	assert.Empty(t, stagingLeft(t, f.folders.Root))

	keys := f.sink.Keys()
	require.NotEmpty(t, keys)
	assert.Equal(t, "watcher_20260302_120000", keys[0])
	assert.Equal(t, 1, f.sink.Closed(keys[0]))

	msgs := f.sink.Messages("watcher_")
	assert.Equal(t, "Starting...", msgs[0])
	assert.Contains(t, msgs, "Moving File: helper.lua")
	assert.Contains(t, msgs, "Executing Tasks: job.json")
	assert.Contains(t, msgs, "Finished: job.json, elapsed: 0.00s")
	assert.Contains(t, msgs, "Removing ZIP: bundle.zip")
	assert.Equal(t, 2, count(msgs, task.NopMessage), "disabled item runs as nop")
	for _, m := range msgs {
		assert.False(t, strings.HasPrefix(m, "Error:"), m)
	}
}

func TestProcessNestedBundle(t *testing.T) {
	f := newFixture(t, Config{})
	scratch := t.TempDir()
	inner := filepath.Join(scratch, "inner.zip")
	bundle(t, inner, map[string]string{"deep.json": `{"tasks":[{"type":"nop"}]}`})
	require.NoError(t, archive.Create(filepath.Join(f.folders.Capture, "outer.zip"), []archive.Entry{{Path: inner, Name: "inner.zip"}}))

	f.p.Process(context.Background(), f.folders.Capture, []string{"outer.zip"}, KindWatcher)

	msgs := f.sink.Messages("watcher_")
	assert.Contains(t, msgs, "Executing Tasks: deep.json")
	assert.Contains(t, msgs, "Removing ZIP: inner.zip")
	assert.Empty(t, stagingLeft(t, f.folders.Root))
}

func TestProcessNestingBound(t *testing.T) {
	f := newFixture(t, Config{MaxNesting: 1})
	scratch := t.TempDir()
	inner := filepath.Join(scratch, "inner.zip")
	bundle(t, inner, map[string]string{"deep.json": `{"tasks":[{"type":"nop"}]}`})
	require.NoError(t, archive.Create(filepath.Join(f.folders.Capture, "outer.zip"), []archive.Entry{{Path: inner, Name: "inner.zip"}}))

	f.p.Process(context.Background(), f.folders.Capture, []string{"outer.zip"}, KindWatcher)

	msgs := f.sink.Messages("watcher_")
	assert.Contains(t, msgs, "Skipping ZIP: inner.zip, nesting deeper than 1")
	assert.NotContains(t, msgs, "Executing Tasks: deep.json")
	assert.Empty(t, stagingLeft(t, f.folders.Root))
}

func TestProcessFailingDescriptorIsDeleted(t *testing.T) {
	f := newFixture(t, Config{})
	path := filepath.Join(f.folders.Capture, "bad.json")
	writeFile(t, path, `{"tasks":[{"name":"first","type":"bogus"},{"type":"nop"}]}`)

	f.p.Process(context.Background(), f.folders.Capture, []string{"bad.json"}, KindWatcher)

	assert.NoFileExists(t, path)
	assert.FileExists(t, filepath.Join(f.folders.Input, "bad.json"))
	msgs := f.sink.Messages("watcher_")
	assert.Equal(t, 1, countPrefix(msgs, "Error: "))
	assert.Zero(t, count(msgs, task.NopMessage), "later items are not run")
	assert.Equal(t, "Finished: bad.json, elapsed: 0.00s", msgs[len(msgs)-1])
}

func TestProcessIgnoresEmptyBatch(t *testing.T) {
	f := newFixture(t, Config{})
	f.p.Process(context.Background(), f.folders.Capture, nil, KindWatcher)
	assert.Empty(t, f.sink.Keys())
}

func TestRunFile(t *testing.T) {
	f := newFixture(t, Config{})
	src := filepath.Join(t.TempDir(), "adhoc.yaml")
	writeFile(t, src, "tasks:\n  - type: nop\n")

	require.NoError(t, f.p.RunFile(context.Background(), src))

	assert.FileExists(t, src, "the original is left alone")
	assert.NoFileExists(t, filepath.Join(f.folders.Capture, "adhoc.yaml"))
	assert.Equal(t, []string{"task_20260302_120000"}, f.sink.Keys())
	assert.Contains(t, f.sink.Messages("task_"), "Executing Tasks: adhoc.yaml")
}

func TestRunFileMissing(t *testing.T) {
	f := newFixture(t, Config{})
	err := f.p.RunFile(context.Background(), filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrIO))
}

func parse(t *testing.T, name, doc string) *descriptor.Descriptor {
	t.Helper()
	d, err := descriptor.Parse(name, []byte(doc))
	require.NoError(t, err)
	return d
}

func TestDispatchTimes(t *testing.T) {
	f := newFixture(t, Config{})
	log := logx.NewHub([]logx.RunSink{f.sink}).Open("dispatch")
	d := parse(t, "rep.json", `{"schedule":{"times":3},"tasks":[{"type":"nop"}]}`)

	require.NoError(t, f.p.Dispatch(context.Background(), "rep.json", d, log))

	msgs := f.sink.Messages("dispatch")
	assert.Contains(t, msgs, "Executing Tasks (1/3): rep.json")
	assert.Contains(t, msgs, "Executing Tasks (3/3): rep.json")
	assert.Equal(t, 3, count(msgs, task.NopMessage))
}

type cancelAfter struct {
	n      int
	calls  int
	cancel context.CancelFunc
}

func (r *cancelAfter) Run(context.Context, *descriptor.Descriptor, *logx.RunLog) error {
	r.calls++
	if r.calls == r.n {
		r.cancel()
	}
	return nil
}

func TestDispatchInfinityStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r := &cancelAfter{n: 4, cancel: cancel}
	p := New(Config{}, r, nil, nil, logx.Nop())
	d := parse(t, "loop.json", `{"schedule":{"infinity":true},"tasks":[]}`)

	err := p.Dispatch(ctx, "loop.json", d, logx.Discard())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 4, r.calls)
}

func TestDispatchSchedules(t *testing.T) {
	f := newFixture(t, Config{})
	log := logx.NewHub([]logx.RunSink{f.sink}).Open("dispatch")

	rec := parse(t, "daily.json", `{"schedule":{"recurring":true},"tasks":[{"type":"nop"}]}`)
	once := parse(t, "later.json", `{"schedule":{"time":"18:00"},"tasks":[{"type":"nop"}]}`)
	require.NoError(t, f.p.Dispatch(context.Background(), "daily.json", rec, log))
	require.NoError(t, f.p.Dispatch(context.Background(), "later.json", once, log))

	assert.Equal(t, []string{"daily.json", "later.json"}, f.sched.names)
	msgs := f.sink.Messages("dispatch")
	assert.Contains(t, msgs, "Scheduling Tasks: daily.json, for: each 1 day(s)")
	assert.Contains(t, msgs, "Scheduling Tasks: later.json, for: once at '18:00'")
	assert.Zero(t, count(msgs, task.NopMessage))
}

func TestDispatchWithoutScheduler(t *testing.T) {
	p := New(Config{}, &cancelAfter{}, nil, nil, logx.Nop())
	d := parse(t, "daily.json", `{"schedule":{"recurring":true},"tasks":[]}`)
	err := p.Dispatch(context.Background(), "daily.json", d, logx.Discard())
	assert.True(t, errors.Is(err, errors.ErrSchedule))
}

func TestDispatchThroughEngine(t *testing.T) {
	eng := engine.New(engine.Config{}, logx.Nop(), nil, nil)
	f := newFixture(t, Config{}, WithExecutor(eng))
	d := parse(t, "one.json", `{"tasks":[{"type":"nop"}]}`)

	require.NoError(t, f.p.Dispatch(context.Background(), "one.json", d, logx.Discard()))

	snap := eng.Snapshot()
	assert.EqualValues(t, 1, snap.Total)
	require.Len(t, snap.History, 1)
	assert.Equal(t, "one.json", snap.History[0].Name)
	assert.Equal(t, engine.KindDescriptor, snap.History[0].Kind)
}

func TestMoveFileReplacesTarget(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.txt")
	dst := filepath.Join(dir, "sub", "a.txt")
	writeFile(t, src, "new")
	writeFile(t, dst, "old")

	require.NoError(t, moveFile(src, dst))

	assert.NoFileExists(t, src)
	b, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "new", string(b))
}

func count(msgs []string, want string) int {
	n := 0
	for _, m := range msgs {
		if m == want {
			n++
		}
	}
	return n
}

func countPrefix(msgs []string, prefix string) int {
	n := 0
	for _, m := range msgs {
		if strings.HasPrefix(m, prefix) {
			n++
		}
	}
	return n
}

func TestProcessBundleWithSubfolder(t *testing.T) {
	f := newFixture(t, Config{})
	writeFile(t, filepath.Join(f.folders.Input, "sql", "stale.sql"), "old")
	bundle(t, filepath.Join(f.folders.Capture, "bundle.zip"), map[string]string{
		"job.json":          `{"tasks":[{"type":"nop"}]}`,
		"sql/query.sql":     "select 1",
		"sql/lib/extra.sql": "select 2",
	})

	f.p.Process(context.Background(), f.folders.Capture, []string{"bundle.zip"}, KindWatcher)

	assert.FileExists(t, filepath.Join(f.folders.Input, "sql", "query.sql"))
	assert.FileExists(t, filepath.Join(f.folders.Input, "sql", "lib", "extra.sql"))
	assert.NoFileExists(t, filepath.Join(f.folders.Input, "sql", "stale.sql"), "the folder is replaced")
	assert.Empty(t, stagingLeft(t, f.folders.Root))

	msgs := f.sink.Messages("watcher_")
	assert.Contains(t, msgs, "Moving Directory: sql")
	assert.Contains(t, msgs, "Executing Tasks: job.json")
	assert.Zero(t, countPrefix(msgs, "Error:"))
}

func TestProcessCorruptArchiveRemovesStaging(t *testing.T) {
	f := newFixture(t, Config{})
	writeFile(t, filepath.Join(f.folders.Capture, "bad.zip"), "not a zip archive")
	writeFile(t, filepath.Join(f.folders.Capture, "good.json"), `{"tasks":[{"type":"nop"}]}`)

	f.p.Process(context.Background(), f.folders.Capture, []string{"bad.zip", "good.json"}, KindWatcher)

	assert.Empty(t, stagingLeft(t, f.folders.Root))
	msgs := f.sink.Messages("watcher_")
	assert.Equal(t, 1, countPrefix(msgs, "Error: "))
	assert.Equal(t, 1, countPrefix(msgs, "Removing Temporary Dir: "))
	assert.NotContains(t, msgs, "Removing ZIP: bad.zip")
	assert.Contains(t, msgs, "Executing Tasks: good.json")
	assert.Equal(t, 1, count(msgs, task.NopMessage))
	assert.NoFileExists(t, filepath.Join(f.folders.Capture, "good.json"))
}

func TestProcessBundleWithFailingDescriptor(t *testing.T) {
	f := newFixture(t, Config{})
	bundle(t, filepath.Join(f.folders.Capture, "bundle.zip"), map[string]string{
		"a_bad.json":  `{"tasks":[{"name":"broken","type":"bogus"}]}`,
		"b_good.json": `{"tasks":[{"type":"nop"}]}`,
		"data.csv":    "a;b\n1;2\n",
	})

	f.p.Process(context.Background(), f.folders.Capture, []string{"bundle.zip"}, KindWatcher)

	assert.Empty(t, stagingLeft(t, f.folders.Root))
	assert.FileExists(t, filepath.Join(f.folders.Input, "data.csv"))
	msgs := f.sink.Messages("watcher_")
	assert.Equal(t, 1, countPrefix(msgs, "Error: "))
	assert.Contains(t, msgs, "Finished: a_bad.json, elapsed: 0.00s")
	assert.Contains(t, msgs, "Executing Tasks: b_good.json")
	assert.Equal(t, 1, count(msgs, task.NopMessage))
	assert.Contains(t, msgs, "Removing Temporary Dir: "+stagingPath(t, msgs))
}

// stagingPath returns the staging area announced in msgs.
func stagingPath(t *testing.T, msgs []string) string {
	t.Helper()
	for _, m := range msgs {
		if strings.HasPrefix(m, "Creating Temporary Dir: ") {
			return strings.TrimPrefix(m, "Creating Temporary Dir: ")
		}
	}
	t.Fatal("no staging area created")
	return ""
}

func TestMoveDirReplacesTarget(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "out", "pkg")
	writeFile(t, filepath.Join(src, "a", "b.txt"), "new")
	writeFile(t, filepath.Join(dst, "old.txt"), "old")

	require.NoError(t, moveDir(src, dst))

	assert.NoDirExists(t, src)
	assert.NoFileExists(t, filepath.Join(dst, "old.txt"))
	b, err := os.ReadFile(filepath.Join(dst, "a", "b.txt"))
	require.NoError(t, err)
	assert.Equal(t, "new", string(b))
}

func TestProcessArchiveOverFileLimit(t *testing.T) {
	f := newFixture(t, Config{Limits: archive.Limits{Files: 1}})
	zipPath := filepath.Join(f.folders.Capture, "big.zip")
	bundle(t, zipPath, map[string]string{
		"one.json": `{"tasks":[{"type":"nop"}]}`,
		"two.csv":  "a\n1\n",
	})

	f.p.Process(context.Background(), f.folders.Capture, []string{"big.zip"}, KindWatcher)

	assert.FileExists(t, zipPath, "a rejected archive stays in capture")
	assert.NoFileExists(t, filepath.Join(f.folders.Input, "two.csv"))
	assert.Empty(t, stagingLeft(t, f.folders.Root))
	msgs := f.sink.Messages("watcher_")
	assert.Equal(t, 1, countPrefix(msgs, "Error: "))
	assert.NotContains(t, msgs, "Executing Tasks: one.json")
}
