package engine

import (
	"context"
	"time"
)

// Config controls the serial executor.
type Config struct {
	// HistorySize bounds the in-memory run history. 0 means 200.
	HistorySize int
}

const defaultHistorySize = 200

// Kinds of executions recorded by the engine.
const (
	KindDescriptor = "descriptor"
	KindJob        = "job"
)

// Task is one execution submitted to the engine: a descriptor run from the
// pipeline or a scheduler job firing.
type Task struct {
	ID   string
	Name string
	Kind string
	Run  func(ctx context.Context) error
}

type HistoryItem struct {
	ID       string
	Name     string
	Kind     string
	Started  time.Time
	Duration time.Duration
	Error    string
}

// TaskEvent is emitted on the event bus for task lifecycle events.
type TaskEvent struct {
	ID       string        `json:"id"`
	Name     string        `json:"name"`
	Kind     string        `json:"kind"`
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// Snapshot is a lightweight view for diagnostics.
type Snapshot struct {
	// Running is the execution in flight, nil when idle.
	Running *HistoryItem

	Total  uint64
	Failed uint64
	Panics uint64

	History []HistoryItem
}
