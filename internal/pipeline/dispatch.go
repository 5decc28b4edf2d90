package pipeline

import (
	"context"

	"dasladen/internal/descriptor"
	"dasladen/internal/errors"
	"dasladen/internal/task/engine"
	"dasladen/pkg/logx"
)

// Dispatch decides how a loaded descriptor runs:
//   - "times" runs it that many times in a row
//   - infinity runs it until ctx is canceled
//   - recurring or timed descriptors are handed to the scheduler
//   - anything else runs once
func (p *Pipeline) Dispatch(ctx context.Context, name string, d *descriptor.Descriptor, log *logx.RunLog) error {
	s := d.Schedule

	if n, ok := s.RepeatCount(); ok {
		for i := 1; i <= n; i++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			log.Printf("Executing Tasks (%d/%d): %s", i, n, name)
			if err := p.run(ctx, name, d, log); err != nil {
				return err
			}
		}
		return nil
	}

	if s.IsInfinite() {
		for {
			if err := ctx.Err(); err != nil {
				return err
			}
			log.Printf("Executing Tasks (infinity): %s", name)
			if err := p.run(ctx, name, d, log); err != nil {
				return err
			}
		}
	}

	if s.IsRecurring() || s.ClockTime() != "" {
		if p.sched == nil {
			return errors.Schedulef("no scheduler for %s", name)
		}
		desc, err := p.sched.Enqueue(name, d)
		log.Printf("Scheduling Tasks: %s, for: %s", name, desc)
		return err
	}

	log.Printf("Executing Tasks: %s", name)
	return p.run(ctx, name, d, log)
}

func (p *Pipeline) run(ctx context.Context, name string, d *descriptor.Descriptor, log *logx.RunLog) error {
	if p.runner == nil {
		return errors.Configurationf("no runner for %s", name)
	}
	if p.exec == nil {
		return p.runner.Run(ctx, d, log)
	}
	return p.exec.Execute(ctx, engine.Task{
		Name: name,
		Kind: engine.KindDescriptor,
		Run:  func(ctx context.Context) error { return p.runner.Run(ctx, d, log) },
	})
}
