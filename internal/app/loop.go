package app

import (
	"context"
	"time"

	"dasladen/internal/pipeline"
	"dasladen/internal/watcher"
)

// loop is the single driving loop. Everything that runs descriptors runs
// on this goroutine, so a long execution delays the next tick.
func (a *App) loop(ctx context.Context, w *watcher.Watcher) error {
	tick := a.tick
	if tick <= 0 {
		tick = time.Second
	}
	t := time.NewTicker(tick)
	defer t.Stop()

	a.lastPoll = a.now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			a.step(ctx, a.now(), w)
		}
	}
}

// step fires due jobs, then polls the capture folder when the watch
// interval has elapsed since the last poll.
func (a *App) step(ctx context.Context, now time.Time, w *watcher.Watcher) {
	a.sched.Tick(ctx, now)
	if ctx.Err() != nil || now.Sub(a.lastPoll) < a.pollInterval() {
		return
	}
	a.lastPoll = now
	if files := w.Check(); len(files) > 0 {
		a.pipe.Process(ctx, w.Dir(), files, pipeline.KindWatcher)
	}
}
