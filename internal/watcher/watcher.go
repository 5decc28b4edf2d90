// Package watcher detects files arriving in the capture folder by comparing
// successive directory listings.
package watcher

import (
	"os"
	"sort"
	"time"

	"golang.org/x/time/rate"

	"dasladen/internal/errors"
	"dasladen/pkg/logx"
)

// Watcher polls one directory. It is not safe for concurrent use; the
// driving loop owns it.
type Watcher struct {
	dir  string
	seen map[string]struct{}
	log  logx.Logger
	warn rate.Sometimes
}

// New takes the baseline snapshot of dir. Files already present are never
// reported.
func New(dir string, log logx.Logger) (*Watcher, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	w := &Watcher{
		dir:  dir,
		log:  log.With(logx.String("dir", dir)),
		warn: rate.Sometimes{First: 1, Interval: time.Minute},
	}
	names, err := list(dir)
	if err != nil {
		return nil, err
	}
	w.seen = toSet(names)
	return w, nil
}

func (w *Watcher) Dir() string { return w.dir }

// Poll lists the directory and returns the names not present at the
// previous poll, in listing order. The new listing replaces the snapshot.
// On error the snapshot is kept.
func (w *Watcher) Poll() ([]string, error) {
	names, err := list(w.dir)
	if err != nil {
		return nil, err
	}
	var added []string
	for _, n := range names {
		if _, ok := w.seen[n]; !ok {
			added = append(added, n)
		}
	}
	w.seen = toSet(names)
	return added, nil
}

// Check is Poll for the driving loop: listing failures are logged at most
// once a minute and yield no files.
func (w *Watcher) Check() []string {
	added, err := w.Poll()
	if err != nil {
		w.warn.Do(func() {
			w.log.Warn("capture folder listing failed", logx.Err(err))
		})
		return nil
	}
	return added
}

func list(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.IO(errors.Wrapf(err, "list %s", dir))
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	// ReadDir already sorts; keep the order explicit for the diff.
	sort.Strings(names)
	return names, nil
}

func toSet(names []string) map[string]struct{} {
	m := make(map[string]struct{}, len(names))
	for _, n := range names {
		m[n] = struct{}{}
	}
	return m
}
