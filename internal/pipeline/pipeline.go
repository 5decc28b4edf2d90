// Package pipeline turns a batch of captured files into work: archives are
// extracted into staging areas, support files are relocated into the
// canonical folders and task descriptors are run or scheduled.
package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"dasladen/internal/archive"
	"dasladen/internal/descriptor"
	"dasladen/internal/errors"
	"dasladen/internal/eventbus"
	"dasladen/internal/task"
	"dasladen/internal/task/engine"
	"dasladen/pkg/logx"
)

// Run-key kinds of batch logs.
const (
	KindWatcher = "watcher"
	KindTask    = "task"
)

const stagingPattern = ".staging-*"

// Runner executes a descriptor's items. *task.Runner implements it.
type Runner interface {
	Run(ctx context.Context, d *descriptor.Descriptor, log *logx.RunLog) error
}

// Executor serializes executions. *engine.Service implements it.
type Executor interface {
	Execute(ctx context.Context, t engine.Task) error
}

// Scheduler registers recurring and timed descriptors.
// *scheduler.Service implements it.
type Scheduler interface {
	Enqueue(name string, d *descriptor.Descriptor) (string, error)
}

type Config struct {
	Folders task.Folders
	// MaxNesting bounds archive-in-archive extraction. 0 means 3.
	MaxNesting int
	Limits     archive.Limits
}

type Pipeline struct {
	cfg    Config
	runner Runner
	exec   Executor
	sched  Scheduler
	hub    *logx.Hub
	log    logx.Logger
	bus    eventbus.Bus
	now    func() time.Time
}

type Option func(*Pipeline)

func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		if now != nil {
			p.now = now
		}
	}
}

func WithBus(bus eventbus.Bus) Option {
	return func(p *Pipeline) { p.bus = bus }
}

// WithExecutor routes descriptor runs through exec.
func WithExecutor(exec Executor) Option {
	return func(p *Pipeline) { p.exec = exec }
}

func New(cfg Config, runner Runner, sched Scheduler, hub *logx.Hub, log logx.Logger, opts ...Option) *Pipeline {
	if cfg.MaxNesting <= 0 {
		cfg.MaxNesting = 3
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	p := &Pipeline{cfg: cfg, runner: runner, sched: sched, hub: hub, log: log, now: time.Now}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Process runs Extract, Relocate and Execute over files found in dir, under
// one run log keyed "<kind>_<timestamp>". File-level errors are logged and
// never returned.
func (p *Pipeline) Process(ctx context.Context, dir string, files []string, kind string) {
	if len(files) == 0 {
		return
	}
	log := p.hub.Open(logx.RunKey(kind, p.now()))
	defer log.Close()

	p.log.Info("batch captured", logx.String("kind", kind), logx.Int("files", len(files)), logx.String("run_log", log.Key()))
	if p.bus != nil {
		p.bus.Publish(eventbus.Event{Type: eventbus.BatchCaptured, Time: p.now(), Data: log.Key()})
	}

	log.Println("Starting...")
	p.extractAll(ctx, dir, files, log, 0)
	p.relocateAll(dir, files, log)
	p.executeAll(ctx, dir, files, log)
}

// Stage copies path into the capture folder, replacing a file of the same
// name, and returns the staged name.
func (p *Pipeline) Stage(path string) (string, error) {
	name := filepath.Base(path)
	if err := os.MkdirAll(p.cfg.Folders.Capture, 0o755); err != nil {
		return "", errors.IO(err)
	}
	dst := filepath.Join(p.cfg.Folders.Capture, name)
	if sameFile(path, dst) {
		return name, nil
	}
	if err := copyFile(path, dst); err != nil {
		return "", err
	}
	return name, nil
}

// RunFile stages path and processes it as a one-file batch.
func (p *Pipeline) RunFile(ctx context.Context, path string) error {
	name, err := p.Stage(path)
	if err != nil {
		return err
	}
	p.Process(ctx, p.cfg.Folders.Capture, []string{name}, KindTask)
	return nil
}

// finished writes the trailer line shared by every per-file step.
func (p *Pipeline) finished(log *logx.RunLog, name string, start time.Time) {
	log.Printf("Finished: %s, elapsed: %.2fs", name, p.now().Sub(start).Seconds())
}
