package engine

import (
	"context"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"dasladen/internal/errors"
	"dasladen/internal/eventbus"
	"dasladen/internal/storage"
	"dasladen/pkg/logx"
)

const recordTimeout = 2 * time.Second

// Recorder persists finished runs. storage.Store implements it.
type Recorder interface {
	AppendRun(ctx context.Context, r storage.RunRecord) error
}

// Service executes tasks one at a time. Execute blocks until the task has
// finished, so a long task holds up every other caller.
type Service struct {
	cfg Config
	log logx.Logger
	bus eventbus.Bus
	rec Recorder
	now func() time.Time

	exec sync.Mutex

	hmu     sync.Mutex
	history []HistoryItem
	running *HistoryItem

	total  atomic.Uint64
	failed atomic.Uint64
	panics atomic.Uint64
}

type Option func(*Service)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates the executor. bus and rec may be nil.
func New(cfg Config, log logx.Logger, bus eventbus.Bus, rec Recorder, opts ...Option) *Service {
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = defaultHistorySize
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{cfg: cfg, log: log, bus: bus, rec: rec, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Execute runs t and returns its error. A panic inside t.Run is recovered
// and returned as an error marked with ErrPanic.
func (s *Service) Execute(ctx context.Context, t Task) error {
	if t.Run == nil {
		return errors.Wrap(ErrInvalidTask, "task Run is nil")
	}
	name := strings.TrimSpace(t.Name)
	if name == "" {
		return errors.Wrap(ErrInvalidTask, "task Name is required")
	}
	t.Name = name
	if strings.TrimSpace(t.ID) == "" {
		t.ID = uuid.NewString()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	s.exec.Lock()
	defer s.exec.Unlock()

	start := s.now()
	item := HistoryItem{ID: t.ID, Name: t.Name, Kind: t.Kind, Started: start}
	cur := item
	s.hmu.Lock()
	s.running = &cur
	s.hmu.Unlock()

	s.log.Debug("task.started", logx.String("task", t.Name), logx.String("kind", t.Kind), logx.String("id", t.ID))
	s.publish(eventbus.TaskStarted, start, TaskEvent{ID: t.ID, Name: t.Name, Kind: t.Kind, Started: start})

	err := s.runGuarded(ctx, t)

	item.Duration = s.now().Sub(start)
	s.total.Add(1)
	ev := TaskEvent{ID: t.ID, Name: t.Name, Kind: t.Kind, Started: start, Duration: item.Duration}
	if err != nil {
		item.Error = err.Error()
		ev.Error = item.Error
		s.failed.Add(1)
		s.log.Warn("task.failed", logx.String("task", t.Name), logx.String("kind", t.Kind), logx.Err(err), logx.Duration("dur", item.Duration))
		s.log.Debug("task.failed.trace", logx.String("task", t.Name), logx.ErrTrace(err))
		s.publish(eventbus.TaskFailed, s.now(), ev)
	} else {
		if item.Duration >= 750*time.Millisecond {
			s.log.Info("task.completed", logx.String("task", t.Name), logx.String("kind", t.Kind), logx.Duration("dur", item.Duration))
		} else {
			s.log.Debug("task.completed", logx.String("task", t.Name), logx.String("kind", t.Kind), logx.Duration("dur", item.Duration))
		}
		s.publish(eventbus.TaskFinished, s.now(), ev)
	}

	s.hmu.Lock()
	s.running = nil
	s.history = append(s.history, item)
	if len(s.history) > s.cfg.HistorySize {
		s.history = s.history[len(s.history)-s.cfg.HistorySize:]
	}
	s.hmu.Unlock()

	s.record(ctx, item)
	return err
}

func (s *Service) runGuarded(ctx context.Context, t Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.panics.Add(1)
			err = panicError(r)
			s.log.Error("task.panic", logx.String("task", t.Name), logx.Any("panic", r), logx.Stack(string(debug.Stack())))
		}
	}()
	return t.Run(ctx)
}

func (s *Service) publish(typ string, at time.Time, ev TaskEvent) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: typ, Time: at, Data: ev})
}

func (s *Service) record(ctx context.Context, item HistoryItem) {
	if s.rec == nil {
		return
	}
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()
	err := s.rec.AppendRun(rctx, storage.RunRecord{
		ID:       item.ID,
		Name:     item.Name,
		Kind:     item.Kind,
		Started:  item.Started,
		Duration: item.Duration,
		Error:    item.Error,
	})
	if err != nil {
		s.log.Warn("run record failed", logx.String("task", item.Name), logx.Err(err))
	}
}

func (s *Service) Snapshot() Snapshot {
	s.hmu.Lock()
	h := make([]HistoryItem, len(s.history))
	copy(h, s.history)
	var running *HistoryItem
	if s.running != nil {
		cp := *s.running
		running = &cp
	}
	s.hmu.Unlock()

	return Snapshot{
		Running: running,
		Total:   s.total.Load(),
		Failed:  s.failed.Load(),
		Panics:  s.panics.Load(),
		History: h,
	}
}
