package logx

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// RunLineTimeFormat prefixes every RunLog line.
const RunLineTimeFormat = "2006-01-02 15:04:05"

// RunKeyTimeFormat is the timestamp suffix of run keys.
const RunKeyTimeFormat = "20060102_150405"

// RunKey builds "<kind>_<YYYYMMDD_HHMMSS>". Path separators and control
// characters in kind become '_', so a key is always a single file name.
func RunKey(kind string, t time.Time) string {
	return keySafe(kind) + "_" + t.Format(RunKeyTimeFormat)
}

func keySafe(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == '/', r == '\\', r == ':', r < 0x20, r == 0x7f:
			return '_'
		}
		return r
	}, s)
}

// RunSink opens one writer per run key. Writers receive whole lines.
type RunSink interface {
	Open(key string) (io.WriteCloser, error)
}

// Hub fans RunLog lines out to every configured sink.
// Build one at process start and pass it to whatever opens run logs.
type Hub struct {
	sinks []RunSink
	log   Logger
	now   func() time.Time
}

type HubOption func(*Hub)

// WithClock overrides the line timestamp source.
func WithClock(now func() time.Time) HubOption {
	return func(h *Hub) {
		if now != nil {
			h.now = now
		}
	}
}

// WithProcessLogger reports sink open/write failures to log.
func WithProcessLogger(log Logger) HubOption {
	return func(h *Hub) { h.log = log }
}

func NewHub(sinks []RunSink, opts ...HubOption) *Hub {
	h := &Hub{now: time.Now, log: Nop()}
	for _, s := range sinks {
		if s != nil {
			h.sinks = append(h.sinks, s)
		}
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Open opens every sink for key. A sink that fails to open is reported and
// skipped; the returned RunLog is never nil.
func (h *Hub) Open(key string) *RunLog {
	if h == nil {
		return Discard()
	}
	rl := &RunLog{key: key, now: h.now, log: h.log}
	for _, s := range h.sinks {
		w, err := s.Open(key)
		if err != nil {
			h.log.Warn("run log sink open failed", String("key", key), Err(err))
			continue
		}
		rl.writers = append(rl.writers, w)
	}
	return rl
}

// RunLog is a line-oriented log for one pipeline batch, descriptor run or
// job firing. Safe for concurrent use.
type RunLog struct {
	key string
	now func() time.Time
	log Logger

	mu      sync.Mutex
	writers []io.WriteCloser
	closed  bool
}

// Discard returns a RunLog with no sinks.
func Discard() *RunLog {
	return &RunLog{key: "discard", now: time.Now, log: Nop()}
}

func (r *RunLog) Key() string { return r.key }

// Println writes one timestamped line to every sink.
func (r *RunLog) Println(msg string) {
	if r == nil {
		return
	}
	line := r.now().Format(RunLineTimeFormat) + " " + strings.TrimRight(msg, "\n") + "\n"

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	for _, w := range r.writers {
		if _, err := io.WriteString(w, line); err != nil {
			r.log.Debug("run log write failed", String("key", r.key), Err(err))
		}
	}
}

func (r *RunLog) Printf(format string, args ...any) {
	r.Println(fmt.Sprintf(format, args...))
}

// Close closes every sink. Further writes are dropped.
func (r *RunLog) Close() error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	var first error
	for _, w := range r.writers {
		if err := w.Close(); err != nil && first == nil {
			first = err
		}
	}
	r.writers = nil
	return first
}

// ---- Sinks ----

// FileSink appends to <Dir>/<key>.log.
type FileSink struct{ Dir string }

func (s FileSink) Open(key string) (io.WriteCloser, error) {
	dir := s.Dir
	if strings.TrimSpace(dir) == "" {
		dir = "log"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	if key != filepath.Base(key) || key == ".." {
		return nil, fmt.Errorf("run key %q is not a file name", key)
	}
	return os.OpenFile(filepath.Join(dir, key+".log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
}

// ConsoleSink writes lines unchanged to Out (stdout when nil).
type ConsoleSink struct{ Out io.Writer }

func (s ConsoleSink) Open(string) (io.WriteCloser, error) {
	out := s.Out
	if out == nil {
		out = Stdout()
	}
	return nopCloser{out}, nil
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

// LoggerSink forwards lines to a process Logger at debug level.
type LoggerSink struct{ Log Logger }

func (s LoggerSink) Open(key string) (io.WriteCloser, error) {
	return loggerWriter{log: s.Log.With(String("run", key))}, nil
}

type loggerWriter struct{ log Logger }

func (w loggerWriter) Write(p []byte) (int, error) {
	line := strings.TrimRight(string(p), "\n")
	if len(line) > len(RunLineTimeFormat) {
		line = line[len(RunLineTimeFormat)+1:]
	}
	w.log.Debug(line)
	return len(p), nil
}

func (loggerWriter) Close() error { return nil }

// MemorySink keeps lines in memory, keyed by run key.
type MemorySink struct {
	mu     sync.Mutex
	lines  map[string][]string
	opened []string
	closed map[string]int
}

func NewMemorySink() *MemorySink {
	return &MemorySink{lines: map[string][]string{}, closed: map[string]int{}}
}

func (s *MemorySink) Open(key string) (io.WriteCloser, error) {
	s.mu.Lock()
	s.opened = append(s.opened, key)
	s.mu.Unlock()
	return &memoryWriter{sink: s, key: key}, nil
}

// Keys lists opened run keys in open order.
func (s *MemorySink) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.opened...)
}

// Lines returns the raw lines (timestamp included) written under key.
func (s *MemorySink) Lines(key string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.lines[key]...)
}

// Messages returns Lines without the timestamp prefix, across every key
// whose name starts with prefix, in key order.
func (s *MemorySink) Messages(prefix string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.lines))
	for k := range s.lines {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	var out []string
	for _, k := range keys {
		for _, l := range s.lines[k] {
			if len(l) > len(RunLineTimeFormat) {
				l = l[len(RunLineTimeFormat)+1:]
			}
			out = append(out, l)
		}
	}
	return out
}

// Closed reports how many writers were closed for key.
func (s *MemorySink) Closed(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed[key]
}

type memoryWriter struct {
	sink *MemorySink
	key  string
}

func (w *memoryWriter) Write(p []byte) (int, error) {
	w.sink.mu.Lock()
	w.sink.lines[w.key] = append(w.sink.lines[w.key], strings.TrimRight(string(p), "\n"))
	w.sink.mu.Unlock()
	return len(p), nil
}

func (w *memoryWriter) Close() error {
	w.sink.mu.Lock()
	w.sink.closed[w.key]++
	w.sink.mu.Unlock()
	return nil
}
