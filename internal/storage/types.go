package storage

import (
	"time"

	"dasladen/internal/errors"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "file": <path minus extension>.runs.jsonl
//   - "sqlite": SQLite database file
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// RunRecord is one finished descriptor execution or job firing.
// Keep it compact and schema-stable.
type RunRecord struct {
	ID       string        `json:"id"`
	Name     string        `json:"name"`
	Kind     string        `json:"kind"`
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// OK reports whether the run finished without error.
func (r RunRecord) OK() bool { return r.Error == "" }
