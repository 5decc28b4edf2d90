package app

import (
	"io"
	"strconv"
	"strings"

	"dasladen/internal/config"
	"dasladen/pkg/logx"
)

// Options are the command-line settings. Non-zero values win over the
// config file, on load and on every reload.
type Options struct {
	ConfigPath string

	// Capture overrides folders.capture.
	Capture string
	// WatchTime overrides watch.interval; a bare number is seconds.
	WatchTime string
	// NoLog disables the run-file sink.
	NoLog bool
	// Verbose echoes run logs to the console and logs at debug level.
	Verbose bool
	// NoInit skips creating the folder structure.
	NoInit bool

	// Stdout receives console run logs. Defaults to os.Stdout.
	Stdout io.Writer
}

func (o Options) apply(cfg *config.Config) *config.Config {
	out := *config.Defaults(cfg)
	if c := strings.TrimSpace(o.Capture); c != "" {
		out.Folders.Capture = c
	}
	if w := strings.TrimSpace(o.WatchTime); w != "" {
		if _, err := strconv.Atoi(w); err == nil {
			w += "s"
		}
		out.Watch.Interval = w
	}
	if o.NoLog {
		off := false
		out.Logging.RunFiles = &off
	}
	if o.Verbose {
		out.Logging.Level = "debug"
		out.Logging.Console = true
		out.Logging.RunConsole = true
	}
	return &out
}

func logConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}
