package scheduler

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"dasladen/internal/eventbus"
	"dasladen/internal/task/engine"
	"dasladen/pkg/logx"
)

type Option func(*Service)

// WithClock overrides time.Now for Enqueue and run timing.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithBus publishes job registrations on bus.
func WithBus(bus eventbus.Bus) Option {
	return func(s *Service) { s.bus = bus }
}

// New creates a scheduler. exec may be nil, in which case jobs run directly
// on the Tick caller.
func New(cfg Config, runner Runner, exec Executor, hub *logx.Hub, log logx.Logger, opts ...Option) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		cfg:    cfg,
		log:    log,
		hub:    hub,
		runner: runner,
		exec:   exec,
		now:    time.Now,
		// SecondOptional allows both 5-field and 6-field (with seconds) cron specs.
		parser:      cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		jobs:        map[string]*Job{},
		lastErrWarn: map[string]time.Time{},
	}
	for _, o := range opts {
		o(s)
	}
	s.loc = s.loadLocationLocked()
	return s
}

// Apply swaps the config. A timezone change recomputes every pending trigger.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	oldTZ := strings.TrimSpace(s.cfg.Timezone)
	newTZ := strings.TrimSpace(cfg.Timezone)
	s.cfg = cfg
	if oldTZ == newTZ {
		return
	}
	s.loc = s.loadLocationLocked()
	now := s.now().In(s.loc)
	for _, j := range s.jobs {
		for _, t := range j.triggers {
			t.next = t.sched.Next(now)
		}
	}
	s.log.Info("timezone changed", logx.String("tz", s.loc.String()), logx.Int("jobs", len(s.jobs)))
}

type due struct {
	job *Job
	trg *trigger
	at  time.Time
}

// Tick fires every trigger due at now, in due-time order, and returns the
// number of firings. It blocks while jobs run.
func (s *Service) Tick(ctx context.Context, now time.Time) int {
	s.mu.Lock()
	now = now.In(s.loc)
	var ready []due
	for _, j := range s.jobs {
		for _, t := range j.triggers {
			if !t.next.IsZero() && !t.next.After(now) {
				ready = append(ready, due{job: j, trg: t, at: t.next})
			}
		}
	}
	s.mu.Unlock()

	sort.SliceStable(ready, func(a, b int) bool {
		if ready[a].at.Equal(ready[b].at) {
			return ready[a].job.Name < ready[b].job.Name
		}
		return ready[a].at.Before(ready[b].at)
	})

	fired := 0
	for _, d := range ready {
		if ctx.Err() != nil {
			break
		}
		s.mu.Lock()
		// A one-shot job fired by an earlier trigger, or a job replaced by a
		// new Enqueue, is no longer current.
		if s.jobs[d.job.Name] != d.job {
			s.mu.Unlock()
			continue
		}
		d.trg.prev = d.at
		d.trg.next = d.trg.sched.Next(now)
		s.mu.Unlock()

		err := s.fire(ctx, d.job)
		fired++

		s.mu.Lock()
		d.job.runs++
		d.job.lastRun = d.at
		d.job.lastErr = ""
		if err != nil {
			d.job.lastErr = err.Error()
		}
		if d.job.Once && s.jobs[d.job.Name] == d.job {
			delete(s.jobs, d.job.Name)
			s.log.Info("one-shot job removed", logx.String("job", d.job.Name))
		}
		s.mu.Unlock()
	}
	return fired
}

// fire runs one job firing under its own run log. Errors end up in the run
// log; they never escape to the driving loop.
func (s *Service) fire(ctx context.Context, j *Job) error {
	start := s.now()
	log := s.hub.Open(logx.RunKey("scheduler_"+j.Name, start))
	defer log.Close()

	log.Println("Executing Scheduled Tasks: " + j.Name)
	run := func(ctx context.Context) error { return s.runner.Run(ctx, j.desc, log) }

	var err error
	if s.exec != nil {
		err = s.exec.Execute(ctx, engine.Task{Name: j.Name, Kind: engine.KindJob, Run: run})
	} else {
		err = run(ctx)
	}
	if err != nil {
		log.Printf("Error: %+v", err)
		s.reportFireError(j.Name, err)
	}
	log.Printf("Finished: %s, elapsed: %.2fs", j.Name, s.now().Sub(start).Seconds())
	return err
}
