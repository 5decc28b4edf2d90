package app

import (
	"context"
	"fmt"

	"dasladen/internal/eventbus"
	"dasladen/internal/task/engine"
	"dasladen/internal/task/scheduler"
	"dasladen/pkg/logx"
)

// startStatus follows the event bus and mirrors activity into the systemd
// STATUS= line.
func (a *App) startStatus() {
	events, unsub := a.bus.Subscribe(128)
	a.sup.Go("status", func(c context.Context) error {
		defer unsub()
		a.notify("STATUS=Idle; " + a.statusSummary())
		for {
			select {
			case <-c.Done():
				return nil
			case e, ok := <-events:
				if !ok {
					return nil
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
				if s := statusLine(e); s != "" {
					a.notify("STATUS=" + s + "; " + a.statusSummary())
				}
			}
		}
	})
}

func statusLine(e eventbus.Event) string {
	switch e.Type {
	case eventbus.TaskStarted:
		if ev, ok := e.Data.(engine.TaskEvent); ok {
			return "Running " + ev.Name
		}
	case eventbus.TaskFinished:
		if ev, ok := e.Data.(engine.TaskEvent); ok {
			return fmt.Sprintf("Idle, last: %s ok in %s", ev.Name, ev.Duration)
		}
	case eventbus.TaskFailed:
		if ev, ok := e.Data.(engine.TaskEvent); ok {
			return fmt.Sprintf("Idle, last: %s failed", ev.Name)
		}
	case eventbus.BatchCaptured:
		return fmt.Sprintf("Processing %v", e.Data)
	case eventbus.JobScheduled:
		return fmt.Sprintf("Scheduled %v", e.Data)
	}
	return ""
}

// statusSummary counts scheduled jobs and engine runs and names the next
// job due.
func (a *App) statusSummary() string {
	jobs := a.sched.Snapshot().Jobs
	eng := a.engine.Snapshot()
	out := fmt.Sprintf("%d job(s), %d run(s), %d failed", len(jobs), eng.Total, eng.Failed)

	var next *scheduler.JobInfo
	for i := range jobs {
		j := &jobs[i]
		if j.Next.IsZero() {
			continue
		}
		if next == nil || j.Next.Before(next.Next) {
			next = j
		}
	}
	if next != nil {
		out += fmt.Sprintf(", next %s at %s", next.Name, next.Next.Format("2006-01-02 15:04:05"))
	}
	return out
}
