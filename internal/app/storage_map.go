package app

import (
	"path/filepath"
	"strings"
	"time"

	"dasladen/internal/config"
	"dasladen/internal/errors"
	"dasladen/internal/storage"
)

// mapStorageConfig turns the storage section into a storage.Config. A
// missing path defaults to the log folder; relative paths are taken from root.
func mapStorageConfig(cfg *config.Config) (storage.Config, bool, error) {
	if cfg == nil || cfg.Storage == nil {
		return storage.Config{}, false, nil
	}
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if driver == "" || driver == "none" {
		return storage.Config{}, false, nil
	}
	path := strings.TrimSpace(sc.Path)

	switch driver {
	case "file":
		if path == "" {
			path = filepath.Join(cfg.Folders.Log, "dasladen")
		}
		return storage.Config{Driver: "file", Path: cfg.Folder(path)}, true, nil
	case "sqlite", "sqlite3":
		if path == "" {
			path = filepath.Join(cfg.Folders.Log, "dasladen.db")
		}
		busy, err := config.DurationOr("storage.busy_timeout", sc.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, false, errors.Configuration(err)
		}
		return storage.Config{Driver: driver, Path: cfg.Folder(path), BusyTimeout: busy}, true, nil
	default:
		return storage.Config{}, false, errors.Configurationf("unknown storage.driver: %s", sc.Driver)
	}
}
