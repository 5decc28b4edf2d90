package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dasladen/internal/descriptor"
	"dasladen/internal/errors"
	"dasladen/internal/eventbus"
	"dasladen/internal/task/engine"
	"dasladen/pkg/logx"
)

// 2026-03-02 is a Monday.
var monday9 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type countingRunner struct {
	mu   sync.Mutex
	runs []string
	err  error
}

func (r *countingRunner) Run(_ context.Context, d *descriptor.Descriptor, log *logx.RunLog) error {
	r.mu.Lock()
	r.runs = append(r.runs, d.Name)
	r.mu.Unlock()
	log.Println("running " + d.Name)
	return r.err
}

func (r *countingRunner) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.runs)
}

type fixture struct {
	s      *Service
	runner *countingRunner
	sink   *logx.MemorySink
	clock  time.Time
}

func newFixture(t *testing.T, exec Executor) *fixture {
	t.Helper()
	f := &fixture{runner: &countingRunner{}, sink: logx.NewMemorySink(), clock: monday9}
	now := func() time.Time { return f.clock }
	hub := logx.NewHub([]logx.RunSink{f.sink}, logx.WithClock(now))
	f.s = New(Config{Timezone: "UTC"}, f.runner, exec, hub, logx.Nop(), WithClock(now))
	return f
}

// tick advances the clock to at and ticks once.
func (f *fixture) tick(at time.Time) int {
	f.clock = at
	return f.s.Tick(context.Background(), at)
}

func parse(t *testing.T, name, doc string) *descriptor.Descriptor {
	t.Helper()
	d, err := descriptor.Parse(name, []byte(doc))
	require.NoError(t, err)
	return d
}

func TestEnqueueDescriptions(t *testing.T) {
	cases := []struct {
		name     string
		schedule string
		want     string
		triggers int
	}{
		{"daily default", `{"recurring":true}`, "each 1 day(s)", 1},
		{"daily at", `{"recurring":true,"frequency":"daily","days":2,"time":"10:30"}`, "each 2 day(s) at '10:30'", 1},
		{"weekly", `{"recurring":true,"frequency":"weekly","weekdays":["friday","monday"],"weeks":2}`, "each 2 week(s) on monday, friday", 2},
		{"weekly string", `{"recurring":true,"frequency":"weekly","weekday":"wed","time":"07:00:30"}`, "each 1 week(s) on wednesday at '07:00:30'", 1},
		{"minutes", `{"recurring":true,"frequency":"minutes","minutes":"15"}`, "each 15 minute(s)", 1},
		{"hours ignores time", `{"recurring":true,"frequency":"hours","hours":3,"time":"10:00"}`, "each 3 hour(s)", 1},
		{"timed one-shot", `{"time":"23:15"}`, "once at '23:15'", 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, nil)
			d := parse(t, "job.json", `{"schedule":`+tc.schedule+`,"tasks":[{"type":"nop"}]}`)
			got, err := f.s.Enqueue("job.json", d)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
			snap := f.s.Snapshot()
			require.Len(t, snap.Jobs, 1)
			assert.Len(t, snap.Jobs[0].Triggers, tc.triggers)
			assert.Equal(t, "UTC", snap.Timezone)
		})
	}
}

func TestEnqueueInvalidSchedule(t *testing.T) {
	f := newFixture(t, nil)
	for _, sc := range []string{
		`{"recurring":false,"time":""}`,
		`{"recurring":true,"frequency":"weekly"}`,
		`{"recurring":true,"time":"25:00"}`,
	} {
		d := parse(t, "bad.json", `{"schedule":`+sc+`,"tasks":[]}`)
		got, err := f.s.Enqueue("bad.json", d)
		assert.Equal(t, InvalidSchedule, got)
		assert.True(t, errors.Is(err, errors.ErrSchedule), "%s: %v", sc, err)
	}
	assert.Zero(t, f.s.Len())
	assert.Empty(t, f.s.Snapshot().Jobs)
}

func TestDailyJobFiresAtClockTime(t *testing.T) {
	f := newFixture(t, nil)
	d := parse(t, "daily.json", `{"schedule":{"recurring":true,"time":"10:00"},"tasks":[{"type":"nop"}]}`)
	_, err := f.s.Enqueue("daily.json", d)
	require.NoError(t, err)
	sameTime(t, monday9.Add(time.Hour), f.s.Snapshot().Jobs[0].Next)

	assert.Zero(t, f.tick(monday9.Add(59*time.Minute)))
	assert.Equal(t, 1, f.tick(monday9.Add(time.Hour)))
	assert.Equal(t, 1, f.runner.count())

	snap := f.s.Snapshot()
	require.Len(t, snap.Jobs, 1, "recurring jobs stay registered")
	sameTime(t, monday9.Add(25*time.Hour), snap.Jobs[0].Next)
	assert.Equal(t, 1, snap.Jobs[0].Runs)

	key := "scheduler_daily.json_20260302_100000"
	assert.Equal(t, []string{
		"Executing Scheduled Tasks: daily.json",
		"running daily.json",
		"Finished: daily.json, elapsed: 0.00s",
	}, f.sink.Messages(key))
	assert.Equal(t, 1, f.sink.Closed(key))
}

func TestOneShotJobRemovesItself(t *testing.T) {
	f := newFixture(t, nil)
	f.runner.err = errors.New("source unavailable")
	d := parse(t, "once.json", `{"schedule":{"time":"09:30"},"tasks":[{"type":"nop"}]}`)
	_, err := f.s.Enqueue("once.json", d)
	require.NoError(t, err)

	assert.Equal(t, 1, f.tick(monday9.Add(30*time.Minute)))
	assert.Zero(t, f.s.Len())
	assert.Zero(t, f.tick(monday9.Add(24*time.Hour+30*time.Minute)))
	assert.Equal(t, 1, f.runner.count())

	msgs := f.sink.Messages("scheduler_once.json")
	require.Len(t, msgs, 4)
	assert.Contains(t, msgs[2], "Error: ")
	assert.Contains(t, msgs[2], "source unavailable")
	assert.Equal(t, "Finished: once.json, elapsed: 0.00s", msgs[3])
}

func TestWeeklyTriggersShareOneJob(t *testing.T) {
	f := newFixture(t, nil)
	d := parse(t, "weekly.json", `{"schedule":{"recurring":true,"frequency":"weekly","weekdays":["monday","friday"],"weeks":2,"time":"08:00"},"tasks":[{"type":"nop"}]}`)
	_, err := f.s.Enqueue("weekly.json", d)
	require.NoError(t, err)

	snap := f.s.Snapshot()
	require.Len(t, snap.Jobs, 1)
	assert.Equal(t, []string{"monday", "friday"}, snap.Jobs[0].Triggers)
	// Monday 08:00 already passed: Friday comes first.
	friday := time.Date(2026, 3, 6, 8, 0, 0, 0, time.UTC)
	sameTime(t, friday, snap.Jobs[0].Next)

	assert.Equal(t, 1, f.tick(friday))
	assert.Equal(t, 1, f.runner.count())

	// Next Monday occurrence is 2026-03-09; with a two week stride the
	// following Friday is 2026-03-20.
	monday := time.Date(2026, 3, 9, 8, 0, 0, 0, time.UTC)
	sameTime(t, monday, f.s.Snapshot().Jobs[0].Next)
	assert.Equal(t, 1, f.tick(monday))
	assert.Zero(t, f.tick(time.Date(2026, 3, 13, 8, 0, 0, 0, time.UTC)))
	assert.Equal(t, 1, f.tick(time.Date(2026, 3, 20, 8, 0, 0, 0, time.UTC)))
	assert.Equal(t, 3, f.runner.count())
	assert.Equal(t, 3, f.s.Snapshot().Jobs[0].Runs)
}

func TestMinutesJobAndMissedTicks(t *testing.T) {
	f := newFixture(t, nil)
	d := parse(t, "m.json", `{"schedule":{"recurring":true,"frequency":"minutes","minutes":5},"tasks":[{"type":"nop"}]}`)
	_, err := f.s.Enqueue("m.json", d)
	require.NoError(t, err)

	assert.Zero(t, f.tick(monday9.Add(4*time.Minute)))
	assert.Equal(t, 1, f.tick(monday9.Add(5*time.Minute)))
	// A late tick fires once and reschedules from the tick time.
	late := monday9.Add(23 * time.Minute)
	assert.Equal(t, 1, f.tick(late))
	sameTime(t, late.Add(5*time.Minute), f.s.Snapshot().Jobs[0].Next)
	assert.Equal(t, 2, f.runner.count())
}

func TestEnqueueReplacesExistingJob(t *testing.T) {
	f := newFixture(t, nil)
	a := parse(t, "same.json", `{"schedule":{"recurring":true,"frequency":"hours"},"tasks":[{"type":"nop"}]}`)
	b := parse(t, "same.json", `{"schedule":{"recurring":true,"frequency":"minutes","minutes":10},"tasks":[{"type":"nop"}]}`)
	_, err := f.s.Enqueue("same.json", a)
	require.NoError(t, err)
	_, err = f.s.Enqueue("same.json", b)
	require.NoError(t, err)

	snap := f.s.Snapshot()
	require.Len(t, snap.Jobs, 1)
	assert.Equal(t, "each 10 minute(s)", snap.Jobs[0].Description)
	assert.Equal(t, 1, f.s.Len())
}

func TestFiringGoesThroughEngine(t *testing.T) {
	bus := eventbus.New()
	events, unsub := bus.Subscribe(8)
	defer unsub()
	eng := engine.New(engine.Config{}, logx.Nop(), bus, nil)
	f := newFixture(t, eng)
	d := parse(t, "e.json", `{"schedule":{"time":"09:00:01"},"tasks":[{"type":"nop"}]}`)
	_, err := f.s.Enqueue("e.json", d)
	require.NoError(t, err)

	assert.Equal(t, 1, f.tick(monday9.Add(time.Second)))
	h := eng.Snapshot().History
	require.Len(t, h, 1)
	assert.Equal(t, "e.json", h[0].Name)
	assert.Equal(t, engine.KindJob, h[0].Kind)

	ev := <-events
	assert.Equal(t, eventbus.TaskStarted, ev.Type)
}

func TestApplyTimezoneRecomputesTriggers(t *testing.T) {
	f := newFixture(t, nil)
	d := parse(t, "tz.json", `{"schedule":{"recurring":true,"time":"12:00"},"tasks":[{"type":"nop"}]}`)
	_, err := f.s.Enqueue("tz.json", d)
	require.NoError(t, err)
	sameTime(t, monday9.Add(3*time.Hour), f.s.Snapshot().Jobs[0].Next)

	f.s.Apply(Config{Timezone: "UTC"})
	assert.Equal(t, "UTC", f.s.Snapshot().Timezone)

	f.s.Apply(Config{Timezone: "Not/AZone"})
	snap := f.s.Snapshot()
	assert.Equal(t, "Local", snap.Timezone)
	assert.True(t, snap.Jobs[0].Next.After(monday9))
}

func TestStrideSchedule(t *testing.T) {
	base := stubSchedule{at: monday9.Add(time.Hour)}
	s := newStride(base, monday9, 3)
	next := s.Next(monday9)
	assert.Equal(t, monday9.Add(time.Hour), next)
	next = s.Next(next)
	assert.Equal(t, monday9.Add(time.Hour).AddDate(0, 0, 3), next)
	assert.Equal(t, monday9.Add(time.Hour).AddDate(0, 0, 9), s.Next(monday9.AddDate(0, 0, 7)))

	assert.Equal(t, base, newStride(base, monday9, 1))
}

func sameTime(t *testing.T, want, got time.Time) {
	t.Helper()
	assert.True(t, want.Equal(got), "want %s, got %s", want, got)
}

type stubSchedule struct{ at time.Time }

func (s stubSchedule) Next(time.Time) time.Time { return s.at }

func TestParseClock(t *testing.T) {
	c, err := parseClock(" 7:05 ")
	require.NoError(t, err)
	assert.Equal(t, clockTime{hour: 7, minute: 5}, c)
	c, err = parseClock("23:59:58")
	require.NoError(t, err)
	assert.Equal(t, "58 59 23 * * 1", c.spec("1"))
	for _, bad := range []string{"7", "24:00", "10:60", "10:00:61", "a:b"} {
		_, err := parseClock(bad)
		assert.Error(t, err, bad)
	}
}
