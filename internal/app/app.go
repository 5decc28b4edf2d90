// Package app wires the process together and owns the driving loop.
package app

import (
	"context"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"dasladen/internal/archive"
	"dasladen/internal/config"
	"dasladen/internal/errors"
	"dasladen/internal/eventbus"
	"dasladen/internal/pipeline"
	"dasladen/internal/runtime/supervisor"
	"dasladen/internal/script"
	"dasladen/internal/storage"
	"dasladen/internal/task"
	"dasladen/internal/task/engine"
	"dasladen/internal/task/scheduler"
	"dasladen/internal/transfer"
	"dasladen/internal/watcher"
	"dasladen/pkg/logx"
)

type App struct {
	opts Options

	cfgm *config.ConfigManager
	sup  *supervisor.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store
	hub   *logx.Hub

	folders task.Folders
	engine  *engine.Service
	sched   *scheduler.Service
	pipe    *pipeline.Pipeline

	tick     time.Duration
	interval atomic.Int64 // watch interval, ns
	lastPoll time.Time

	now      func() time.Time
	sdNotify func(state string) error
}

// New loads the configuration and builds every component. Folders are
// created unless opts.NoInit is set.
func New(opts Options) (*App, error) {
	if strings.TrimSpace(opts.ConfigPath) == "" {
		opts.ConfigPath = "dasladen.json"
	}
	cfgm := config.NewConfigManager(opts.ConfigPath)
	loaded, err := cfgm.Load()
	if err != nil {
		return nil, errors.Configuration(errors.Wrapf(err, "load %s", opts.ConfigPath))
	}
	cfg := opts.apply(loaded)
	if err := validate(cfg); err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logConfig(cfg))
	log = log.With(logx.String("comp", "app"))

	a := &App{
		opts:    opts,
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     eventbus.New(),
		folders: foldersOf(cfg),
		now:     time.Now,
		sdNotify: func(state string) error {
			_, err := daemon.SdNotify(false, state)
			return err
		},
	}

	if !opts.NoInit {
		if err := a.initFolders(); err != nil {
			return nil, err
		}
	}

	a.hub = logx.NewHub(a.runSinks(cfg), logx.WithProcessLogger(log.With(logx.String("comp", "runlog"))))

	if sc, enabled, err := mapStorageConfig(cfg); err != nil {
		return nil, err
	} else if enabled {
		st, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
		if err != nil {
			return nil, errors.IO(err)
		}
		a.store = st
		log.Debug("storage enabled", logx.String("driver", sc.Driver), logx.String("path", sc.Path))
	}

	var rec engine.Recorder
	if a.store != nil {
		rec = a.store
	}
	a.engine = engine.New(engine.Config{}, log.With(logx.String("comp", "engine")), a.bus, rec)

	filterTimeout, _ := config.DurationOr("lua.filter_timeout", cfg.Lua.FilterTimeout, 0)
	runner := &task.Runner{
		Registry:      task.Builtins(),
		Folders:       a.folders,
		Scripts:       script.NewLoader(a.folders.Module),
		Hub:           a.hub,
		FTP:           transfer.Client{},
		FilterTimeout: filterTimeout,
	}

	a.sched = scheduler.New(scheduler.Config{Timezone: cfg.Scheduler.Timezone}, runner, a.engine, a.hub,
		log.With(logx.String("comp", "scheduler")), scheduler.WithBus(a.bus))

	maxFiles, maxSize, _ := cfg.ExtractLimits()
	a.pipe = pipeline.New(pipeline.Config{
		Folders:    a.folders,
		MaxNesting: cfg.Watch.MaxNesting,
		Limits:     archive.Limits{Files: maxFiles, FileSize: maxSize},
	}, runner, a.sched, a.hub, log.With(logx.String("comp", "pipeline")),
		pipeline.WithBus(a.bus), pipeline.WithExecutor(a.engine))

	a.tick, _ = cfg.TickInterval()
	interval, _ := cfg.WatchInterval()
	a.interval.Store(int64(interval))
	return a, nil
}

func foldersOf(cfg *config.Config) task.Folders {
	return task.Folders{
		Root:    cfg.Root,
		Capture: cfg.Folder(cfg.Folders.Capture),
		Input:   cfg.Folder(cfg.Folders.Input),
		Output:  cfg.Folder(cfg.Folders.Output),
		Log:     cfg.Folder(cfg.Folders.Log),
		Module:  cfg.Folder(cfg.Folders.Module),
	}
}

func (a *App) runSinks(cfg *config.Config) []logx.RunSink {
	sinks := []logx.RunSink{logx.LoggerSink{Log: a.log.With(logx.String("comp", "run"))}}
	if cfg.Logging.RunFiles != nil && *cfg.Logging.RunFiles {
		sinks = append(sinks, logx.FileSink{Dir: a.folders.Log})
	}
	if cfg.Logging.RunConsole {
		sinks = append(sinks, logx.ConsoleSink{Out: a.opts.Stdout})
	}
	return sinks
}

// validate rejects a configuration that cannot be applied. Used on load and
// before a reload is committed.
func validate(cfg *config.Config) error {
	if _, err := cfg.WatchInterval(); err != nil {
		return errors.Configuration(err)
	}
	if _, err := cfg.TickInterval(); err != nil {
		return errors.Configuration(err)
	}
	if _, err := config.ParseDuration("lua.filter_timeout", cfg.Lua.FilterTimeout); err != nil {
		return errors.Configuration(err)
	}
	if _, _, err := cfg.ExtractLimits(); err != nil {
		return errors.Configuration(err)
	}
	if tz := strings.TrimSpace(cfg.Scheduler.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return errors.Configurationf("scheduler.timezone: invalid %q: %v", tz, err)
		}
	}
	if _, _, err := mapStorageConfig(cfg); err != nil {
		return err
	}
	return nil
}

func (a *App) Logger() logx.Logger { return a.log }
func (a *App) Folders() task.Folders { return a.folders }
func (a *App) Engine() *engine.Service { return a.engine }
func (a *App) Scheduler() *scheduler.Service { return a.sched }

// Store is the run-history store, nil when storage is disabled.
func (a *App) Store() storage.Store { return a.store }

// RunFile processes one descriptor or bundle and returns.
func (a *App) RunFile(ctx context.Context, path string) error {
	if _, err := os.Stat(path); err != nil {
		return errors.IO(errors.Wrapf(err, "task file %s", path))
	}
	return a.pipe.RunFile(ctx, path)
}

// Watch runs the driving loop until ctx is canceled: every tick fires due
// jobs and, once per watch interval, polls the capture folder.
func (a *App) Watch(ctx context.Context) error {
	if st, err := os.Stat(a.folders.Capture); err != nil || !st.IsDir() {
		return errors.IOf("the '%s' folder does not exist", a.folders.Capture)
	}
	w, err := watcher.New(a.folders.Capture, a.log.With(logx.String("comp", "watcher")))
	if err != nil {
		return err
	}
	a.stageStartBundle()

	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		return validate(a.opts.apply(cfg))
	})

	a.startStatus()
	a.startReload()
	a.sup.Go("config.watch", a.cfgm.Watch)
	a.sup.Go("loop", func(c context.Context) error { return a.loop(c, w) })

	a.log.Info("started", logx.String("capture", a.folders.Capture), logx.Duration("interval", a.pollInterval()))
	a.notify(daemon.SdNotifyReady)

	<-a.sup.Context().Done()
	a.notify(daemon.SdNotifyStopping)
	a.log.Info("stopping")

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	err = a.sup.Stop(stopCtx)
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	return err
}

// Close releases the store and the process log file.
func (a *App) Close() error {
	var first error
	if a.store != nil {
		first = a.store.Close()
	}
	if a.logs != nil {
		if err := a.logs.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (a *App) pollInterval() time.Duration { return time.Duration(a.interval.Load()) }

func (a *App) notify(state string) {
	if a.sdNotify == nil {
		return
	}
	if err := a.sdNotify(state); err != nil {
		a.log.Debug("sd_notify failed", logx.Err(err))
	}
}
