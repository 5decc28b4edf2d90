package scheduler

import (
	"time"

	"github.com/robfig/cron/v3"
)

// strideSchedule fires at first and then every days calendar days after it,
// keeping the wall-clock time across DST changes. It covers "every N days"
// and "every N weeks" with N > 1, which a cron spec cannot express.
type strideSchedule struct {
	first time.Time
	days  int
}

func newStride(base cron.Schedule, from time.Time, days int) cron.Schedule {
	if days <= 1 {
		return base
	}
	return &strideSchedule{first: base.Next(from), days: days}
}

func (s *strideSchedule) Next(t time.Time) time.Time {
	if t.Before(s.first) {
		return s.first
	}
	k := int(t.Sub(s.first) / (time.Duration(s.days) * 24 * time.Hour))
	next := s.first.AddDate(0, 0, k*s.days)
	for !next.After(t) {
		k++
		next = s.first.AddDate(0, 0, k*s.days)
	}
	return next.In(t.Location())
}
