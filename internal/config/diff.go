package config

import (
	"reflect"

	logx "dasladen/pkg/logx"
)

// SummarizeConfigChange lists the sections that differ between oldCfg and
// newCfg, plus log fields describing the new values of those sections.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 8)

	if oldCfg.Root != newCfg.Root || oldCfg.Folders != newCfg.Folders {
		// Folders are fixed for the lifetime of the process.
		changed = append(changed, "folders")
		attrs = append(attrs, logx.String("folders.capture", newCfg.Folders.Capture), logx.Bool("restart_required", true))
	}
	if oldCfg.Watch != newCfg.Watch {
		changed = append(changed, "watch")
		attrs = append(attrs, logx.String("watch.interval", newCfg.Watch.Interval), logx.Int("watch.max_nesting", newCfg.Watch.MaxNesting))
	}
	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file", newCfg.Logging.File.Enabled),
		)
	}
	if oldCfg.Scheduler != newCfg.Scheduler {
		changed = append(changed, "scheduler")
		attrs = append(attrs, logx.String("scheduler.timezone", newCfg.Scheduler.Timezone))
	}
	if !reflect.DeepEqual(oldCfg.Storage, newCfg.Storage) {
		changed = append(changed, "storage")
		attrs = append(attrs, logx.Bool("restart_required", true))
	}
	if oldCfg.Lua != newCfg.Lua {
		changed = append(changed, "lua")
	}
	return changed, attrs
}
