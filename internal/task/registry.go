// Package task holds the task-type registry, the built-in handlers and the
// runner that executes a descriptor's items in order.
package task

import (
	"context"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"dasladen/internal/connection"
	"dasladen/internal/descriptor"
	"dasladen/internal/errors"
	"dasladen/internal/script"
	"dasladen/internal/transfer"
	"dasladen/pkg/logx"
)

// ErrUnknownType is returned for a type tag with no handler.
var ErrUnknownType = errors.New("no such task type")

// Handler executes one task item.
type Handler interface {
	Run(ctx context.Context, env *Env, item descriptor.Item, log *logx.RunLog) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, env *Env, item descriptor.Item, log *logx.RunLog) error

func (f HandlerFunc) Run(ctx context.Context, env *Env, item descriptor.Item, log *logx.RunLog) error {
	return f(ctx, env, item, log)
}

// Env is what handlers may touch while a descriptor runs.
type Env struct {
	Connections *connection.Provider
	Folders     Folders
	Scripts     *script.Loader
	Hub         *logx.Hub
	FTP         transfer.Client

	// FilterTimeout bounds one filter evaluation; 0 means none.
	FilterTimeout time.Duration
	Now           func() time.Time
}

func (e *Env) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// progressLog opens the per-task progress log "<type>_<name>_<ts>".
func (e *Env) progressLog(item descriptor.Item) *logx.RunLog {
	return e.Hub.Open(logx.RunKey(item.Type+"_"+item.Label(), e.now()))
}

// Folders are the resolved process folders.
type Folders struct {
	Root    string
	Capture string
	Input   string
	Output  string
	Log     string
	Module  string
}

// Resolve maps a descriptor folder value to a path. Empty selects def; the
// well-known names select the configured folders; other relative values are
// taken from Root.
func (f Folders) Resolve(folder, def string) string {
	folder = strings.TrimSpace(folder)
	if folder == "" {
		folder = def
	}
	switch folder {
	case "capture":
		return f.Capture
	case "input":
		return f.Input
	case "output":
		return f.Output
	case "log":
		return f.Log
	case "module":
		return f.Module
	}
	if filepath.IsAbs(folder) {
		return folder
	}
	return filepath.Join(f.Root, folder)
}

// Registry maps type tags to handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: map[string]Handler{}}
}

// Register adds or replaces the handler for tag.
func (r *Registry) Register(tag string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[strings.ToLower(strings.TrimSpace(tag))] = h
}

// Lookup returns the handler for tag or an ErrUnknownType configuration error.
func (r *Registry) Lookup(tag string) (Handler, error) {
	r.mu.RLock()
	h, ok := r.handlers[strings.ToLower(strings.TrimSpace(tag))]
	r.mu.RUnlock()
	if !ok {
		return nil, errors.Mark(errors.Wrapf(ErrUnknownType, "%q", tag), errors.ErrConfiguration)
	}
	return h, nil
}

// Tags lists the registered tags in order.
func (r *Registry) Tags() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.handlers))
	for k := range r.handlers {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Builtins returns a registry with every built-in tag.
func Builtins() *Registry {
	r := NewRegistry()
	for tag, t := range tableTasks {
		r.Register(tag, t)
	}
	r.Register("ftp-upload", HandlerFunc(runFTPUpload))
	r.Register("zip", HandlerFunc(runZip))
	r.Register("lua-exec", HandlerFunc(runLuaExec))
	r.Register("sql-exec", HandlerFunc(runSQLExec))
	r.Register("nop", Nop)
	r.Register("custom", HandlerFunc(runCustom))
	return r
}

// Nop logs and does nothing. Disabled items run as Nop.
var Nop Handler = HandlerFunc(func(_ context.Context, _ *Env, _ descriptor.Item, log *logx.RunLog) error {
	log.Println(NopMessage)
	return nil
})

const NopMessage = "Nothing to do. Disabled task?"
