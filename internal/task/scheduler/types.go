package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"dasladen/internal/descriptor"
	"dasladen/internal/eventbus"
	"dasladen/internal/task/engine"
	"dasladen/pkg/logx"
)

// Config controls the scheduler.
type Config struct {
	Timezone string // IANA TZ, e.g. "America/Sao_Paulo"; empty means Local
}

// InvalidSchedule is returned by Enqueue when no trigger can be derived.
const InvalidSchedule = "(error) invalid schedule"

// Runner executes a descriptor's items. *task.Runner implements it.
type Runner interface {
	Run(ctx context.Context, d *descriptor.Descriptor, log *logx.RunLog) error
}

// Executor serializes executions. *engine.Service implements it.
type Executor interface {
	Execute(ctx context.Context, t engine.Task) error
}

// Job binds a descriptor to one or more triggers. All triggers of a job
// share its state; a one-shot job is removed after its first firing.
type Job struct {
	Name        string
	Description string
	Once        bool

	desc     *descriptor.Descriptor
	triggers []*trigger

	runs    int
	lastRun time.Time
	lastErr string
}

type trigger struct {
	label string
	sched cron.Schedule
	next  time.Time
	prev  time.Time
}

type Service struct {
	mu sync.Mutex

	log logx.Logger
	cfg Config
	loc *time.Location
	bus eventbus.Bus
	hub *logx.Hub

	runner Runner
	exec   Executor
	now    func() time.Time

	parser cron.Parser
	jobs   map[string]*Job

	// Firing error throttling: key is job name.
	errMu       sync.Mutex
	lastErrWarn map[string]time.Time
}

type JobInfo struct {
	Name        string
	Description string
	Once        bool
	Triggers    []string
	Next        time.Time
	Prev        time.Time
	Runs        int
	LastError   string
}

type Snapshot struct {
	Timezone string
	Jobs     []JobInfo
}
