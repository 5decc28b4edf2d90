package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dasladen/internal/errors"
	"dasladen/internal/eventbus"
	"dasladen/internal/storage"
	"dasladen/pkg/logx"
)

type memRecorder struct {
	mu   sync.Mutex
	runs []storage.RunRecord
}

func (r *memRecorder) AppendRun(_ context.Context, rec storage.RunRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, rec)
	return nil
}

func drain(ch <-chan eventbus.Event) []eventbus.Event {
	var out []eventbus.Event
	for {
		select {
		case ev := <-ch:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestExecuteRecordsSuccessAndFailure(t *testing.T) {
	bus := eventbus.New()
	events, unsub := bus.Subscribe(16)
	defer unsub()
	rec := &memRecorder{}
	s := New(Config{}, logx.Nop(), bus, rec)

	ctx := context.Background()
	require.NoError(t, s.Execute(ctx, Task{Name: "ok.json", Kind: KindDescriptor, Run: func(context.Context) error { return nil }}))
	boom := errors.New("boom")
	err := s.Execute(ctx, Task{Name: "bad.json", Kind: KindJob, Run: func(context.Context) error { return boom }})
	require.ErrorIs(t, err, boom)

	var types []string
	for _, ev := range drain(events) {
		types = append(types, ev.Type)
		_, ok := ev.Data.(TaskEvent)
		assert.True(t, ok)
	}
	assert.Equal(t, []string{eventbus.TaskStarted, eventbus.TaskFinished, eventbus.TaskStarted, eventbus.TaskFailed}, types)

	snap := s.Snapshot()
	assert.Nil(t, snap.Running)
	assert.EqualValues(t, 2, snap.Total)
	assert.EqualValues(t, 1, snap.Failed)
	require.Len(t, snap.History, 2)
	assert.Equal(t, "ok.json", snap.History[0].Name)
	assert.Empty(t, snap.History[0].Error)
	assert.Equal(t, KindJob, snap.History[1].Kind)
	assert.Equal(t, "boom", snap.History[1].Error)
	assert.NotEmpty(t, snap.History[0].ID)
	assert.NotEqual(t, snap.History[0].ID, snap.History[1].ID)

	require.Len(t, rec.runs, 2)
	assert.Equal(t, "bad.json", rec.runs[1].Name)
	assert.Equal(t, "boom", rec.runs[1].Error)
}

func TestExecuteRecoversPanic(t *testing.T) {
	s := New(Config{}, logx.Nop(), nil, nil)
	err := s.Execute(context.Background(), Task{Name: "p", Run: func(context.Context) error { panic("kaboom") }})
	require.Error(t, err)
	assert.True(t, IsPanic(err))
	assert.Contains(t, err.Error(), "kaboom")
	assert.EqualValues(t, 1, s.Snapshot().Panics)

	// The executor stays usable.
	require.NoError(t, s.Execute(context.Background(), Task{Name: "after", Run: func(context.Context) error { return nil }}))
}

func TestExecuteRejectsInvalidTasks(t *testing.T) {
	s := New(Config{}, logx.Nop(), nil, nil)
	err := s.Execute(context.Background(), Task{Name: "x"})
	assert.ErrorIs(t, err, ErrInvalidTask)
	err = s.Execute(context.Background(), Task{Name: "  ", Run: func(context.Context) error { return nil }})
	assert.ErrorIs(t, err, ErrInvalidTask)
	assert.Empty(t, s.Snapshot().History)
}

func TestExecuteSerializes(t *testing.T) {
	s := New(Config{}, logx.Nop(), nil, nil)
	var active, peak atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Execute(context.Background(), Task{Name: "n", Run: func(context.Context) error {
				n := active.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				time.Sleep(2 * time.Millisecond)
				active.Add(-1)
				return nil
			}})
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, peak.Load())
	assert.EqualValues(t, 8, s.Snapshot().Total)
}

func TestHistoryIsBounded(t *testing.T) {
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := New(Config{HistorySize: 3}, logx.Nop(), nil, nil, WithClock(func() time.Time { return clock }))
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		require.NoError(t, s.Execute(context.Background(), Task{Name: name, Run: func(context.Context) error { return nil }}))
	}
	h := s.Snapshot().History
	require.Len(t, h, 3)
	assert.Equal(t, "c", h[0].Name)
	assert.Equal(t, "e", h[2].Name)
	assert.Equal(t, clock, h[2].Started)
}

func TestSnapshotShowsRunningTask(t *testing.T) {
	s := New(Config{}, logx.Nop(), nil, nil)
	var seen *HistoryItem
	require.NoError(t, s.Execute(context.Background(), Task{Name: "long.json", Kind: KindDescriptor, Run: func(context.Context) error {
		seen = s.Snapshot().Running
		return nil
	}}))
	require.NotNil(t, seen)
	assert.Equal(t, "long.json", seen.Name)
	assert.Nil(t, s.Snapshot().Running)
}
