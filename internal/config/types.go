package config

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"dasladen/internal/errors"
)

// Config is the process configuration (dasladen.json / .yaml / .toml).
// Every field is optional; Defaults fills what is missing.
type Config struct {
	Root      string          `json:"root,omitempty"`
	Folders   FoldersConfig   `json:"folders"`
	Watch     WatchConfig     `json:"watch"`
	Logging   LoggingConfig   `json:"logging"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Storage   *StorageConfig  `json:"storage,omitempty"`
	Lua       LuaConfig       `json:"lua"`
}

type FoldersConfig struct {
	Capture string `json:"capture,omitempty"`
	Input   string `json:"input,omitempty"`
	Output  string `json:"output,omitempty"`
	Log     string `json:"log,omitempty"`
	Module  string `json:"module,omitempty"`
}

type WatchConfig struct {
	// Interval between capture-folder polls, e.g. "10s".
	Interval string `json:"interval,omitempty"`
	// Tick is the scheduler tick quantum, e.g. "1s".
	Tick string `json:"tick,omitempty"`
	// StartBundle is copied into the capture folder when watching starts.
	StartBundle string `json:"start_bundle,omitempty"`
	// MaxNesting bounds archive-in-archive extraction.
	MaxNesting int `json:"max_nesting,omitempty"`
	// MaxFiles bounds the entries of one archive; 0 is unlimited.
	MaxFiles int `json:"max_files,omitempty"`
	// MaxFileSize bounds one extracted entry, e.g. "512MB"; empty is unlimited.
	MaxFileSize string `json:"max_file_size,omitempty"`
}

type LoggingConfig struct {
	Level   string `json:"level,omitempty"`
	Console bool   `json:"console"`
	File    struct {
		Enabled bool   `json:"enabled"`
		Path    string `json:"path,omitempty"`
	} `json:"file"`
	// RunFiles enables log/<key>.log files for run logs.
	RunFiles *bool `json:"run_files,omitempty"`
	// RunConsole echoes run log lines to stdout.
	RunConsole bool `json:"run_console"`
}

type SchedulerConfig struct {
	Timezone string `json:"timezone,omitempty"`
}

type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

type LuaConfig struct {
	// FilterTimeout bounds one filter expression evaluation.
	FilterTimeout string `json:"filter_timeout,omitempty"`
}

const (
	DefaultWatchInterval = 10 * time.Second
	DefaultTick          = time.Second
	DefaultMaxNesting    = 3
	DefaultStartBundle   = "start.zip"
)

// Defaults returns cfg with every empty field filled in.
func Defaults(cfg *Config) *Config {
	out := Config{}
	if cfg != nil {
		out = *cfg
	}
	if strings.TrimSpace(out.Root) == "" {
		out.Root = "."
	}
	def := func(p *string, v string) {
		if strings.TrimSpace(*p) == "" {
			*p = v
		}
	}
	def(&out.Folders.Capture, "capture")
	def(&out.Folders.Input, "input")
	def(&out.Folders.Output, "output")
	def(&out.Folders.Log, "log")
	def(&out.Folders.Module, "module")
	def(&out.Watch.Interval, DefaultWatchInterval.String())
	def(&out.Watch.Tick, DefaultTick.String())
	def(&out.Watch.StartBundle, DefaultStartBundle)
	if out.Watch.MaxNesting <= 0 {
		out.Watch.MaxNesting = DefaultMaxNesting
	}
	def(&out.Logging.Level, "info")
	if out.Logging.RunFiles == nil {
		on := true
		out.Logging.RunFiles = &on
	}
	return &out
}

// Folder resolves a configured folder against Root.
func (c *Config) Folder(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(c.Root, name)
}

// WatchInterval returns the parsed poll interval.
func (c *Config) WatchInterval() (time.Duration, error) {
	return DurationOr("watch.interval", c.Watch.Interval, DefaultWatchInterval)
}

// ExtractLimits returns the per-archive bounds; zero fields are unlimited.
func (c *Config) ExtractLimits() (files int, fileSize int64, err error) {
	if c.Watch.MaxFiles < 0 {
		return 0, 0, errors.Configurationf("watch.max_files: must not be negative, got %d", c.Watch.MaxFiles)
	}
	v := strings.TrimSpace(c.Watch.MaxFileSize)
	if v == "" {
		return c.Watch.MaxFiles, 0, nil
	}
	n, err := humanize.ParseBytes(v)
	if err != nil {
		return 0, 0, errors.Configurationf("watch.max_file_size: invalid size %q: %v", v, err)
	}
	return c.Watch.MaxFiles, int64(n), nil
}

// TickInterval returns the parsed scheduler tick quantum.
func (c *Config) TickInterval() (time.Duration, error) {
	return DurationOr("watch.tick", c.Watch.Tick, DefaultTick)
}
