package app

import (
	"os"
	"strings"

	"dasladen/internal/errors"
	"dasladen/pkg/logx"
)

func (a *App) initFolders() error {
	f := a.folders
	for _, dir := range []string{f.Capture, f.Input, f.Output, f.Log, f.Module} {
		if _, err := os.Stat(dir); err == nil {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.IO(errors.Wrapf(err, "create folder %s", dir))
		}
		a.log.Info("folder created", logx.String("path", dir))
	}
	return nil
}

// stageStartBundle copies the configured start bundle into the capture
// folder. It runs after the watcher baseline, so the first poll picks it up.
func (a *App) stageStartBundle() {
	path := ""
	if cfg := a.opts.apply(a.cfgm.Get()); cfg != nil {
		path = strings.TrimSpace(cfg.Watch.StartBundle)
	}
	if path == "" {
		return
	}
	if st, err := os.Stat(path); err != nil || !st.Mode().IsRegular() {
		return
	}
	name, err := a.pipe.Stage(path)
	if err != nil {
		a.log.Warn("start bundle not staged", logx.String("path", path), logx.Err(err))
		return
	}
	a.log.Info("start bundle staged", logx.String("name", name))
}
