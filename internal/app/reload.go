package app

import (
	"context"
	"strings"

	"dasladen/internal/config"
	"dasladen/internal/task/scheduler"
	"dasladen/pkg/logx"
)

// startReload applies configuration changes published by the config
// manager. Folders, storage, extraction limits and run-log sinks need a
// restart.
func (a *App) startReload() {
	sub := a.cfgm.Subscribe(8)
	a.sup.Go("config.reload", func(c context.Context) error {
		defer a.cfgm.Unsubscribe(sub)
		last := a.opts.apply(a.cfgm.Get())
		for {
			select {
			case <-c.Done():
				return nil
			case next, ok := <-sub:
				if !ok {
					return nil
				}
				// Coalesce bursts: keep only the latest config.
				for drained := false; !drained; {
					select {
					case newer := <-sub:
						if newer != nil {
							next = newer
						}
					default:
						drained = true
					}
				}
				cfg := a.opts.apply(next)
				a.applyConfig(last, cfg)
				last = cfg
			}
		}
	})
}

func (a *App) applyConfig(prev, cfg *config.Config) {
	sections, attrs := config.SummarizeConfigChange(prev, cfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}

	a.logs.Apply(logConfig(cfg))
	if d, err := cfg.WatchInterval(); err == nil {
		a.interval.Store(int64(d))
	}
	a.sched.Apply(scheduler.Config{Timezone: cfg.Scheduler.Timezone})

	for _, s := range sections {
		if s == "folders" || s == "storage" {
			a.log.Warn("config section changed; restart required", logx.String("section", s))
		}
	}
	if prev.Watch.MaxNesting != cfg.Watch.MaxNesting || prev.Watch.MaxFiles != cfg.Watch.MaxFiles || prev.Watch.MaxFileSize != cfg.Watch.MaxFileSize {
		a.log.Warn("archive extraction limits changed; restart required")
	}
	if prev.Logging.RunConsole != cfg.Logging.RunConsole || !sameBool(prev.Logging.RunFiles, cfg.Logging.RunFiles) {
		a.log.Warn("run log outputs changed; restart required")
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

func sameBool(a, b *bool) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
