package task

import (
	"context"
	"time"

	"dasladen/internal/connection"
	"dasladen/internal/descriptor"
	"dasladen/internal/errors"
	"dasladen/internal/script"
	"dasladen/internal/transfer"
	"dasladen/pkg/logx"
)

// Runner executes a descriptor's items in order and stops at the first
// failing item.
type Runner struct {
	Registry      *Registry
	Folders       Folders
	Scripts       *script.Loader
	Hub           *logx.Hub
	FTP           transfer.Client
	FilterTimeout time.Duration
	// ConnOptions are passed to every descriptor's connection provider.
	ConnOptions []connection.Option
	Now         func() time.Time
}

func (r *Runner) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// Env builds the handler environment for d.
func (r *Runner) Env(d *descriptor.Descriptor) *Env {
	return &Env{
		Connections:   connection.NewProvider(d.Connections, r.ConnOptions...),
		Folders:       r.Folders,
		Scripts:       r.Scripts,
		Hub:           r.Hub,
		FTP:           r.FTP,
		FilterTimeout: r.FilterTimeout,
		Now:           r.Now,
	}
}

// Run executes every item of d. A disabled item runs as Nop. The returned
// error names the failing item; later items are not run.
func (r *Runner) Run(ctx context.Context, d *descriptor.Descriptor, log *logx.RunLog) error {
	env := r.Env(d)
	start := r.now()
	for _, item := range d.Tasks {
		if err := ctx.Err(); err != nil {
			return err
		}
		label := item.Label()
		log.Printf("Executing task item: %s", label)
		t0 := r.now()

		h := Nop
		if !item.Disabled {
			var err error
			if h, err = r.Registry.Lookup(item.Type); err != nil {
				return errors.Wrapf(err, "task item %q", label)
			}
		}
		if err := h.Run(ctx, env, item, log); err != nil {
			return errors.Wrapf(err, "task item %q", label)
		}
		log.Printf("Task item finished: %s, time: %.2fs", label, r.now().Sub(t0).Seconds())
	}
	log.Printf("Tasks finished: %s, time: %.2fs", d.Name, r.now().Sub(start).Seconds())
	return nil
}
