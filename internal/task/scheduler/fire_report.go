package scheduler

import (
	"time"

	"dasladen/internal/errors"
	"dasladen/pkg/logx"
)

const fireWarnThrottle = 5 * time.Second

// reportFireError mirrors a failed firing to the process log. A job firing
// every minute against a broken source would otherwise flood it.
func (s *Service) reportFireError(name string, err error) {
	if err == nil {
		return
	}

	now := time.Now()
	s.errMu.Lock()
	last := s.lastErrWarn[name]
	if !last.IsZero() && now.Sub(last) < fireWarnThrottle {
		s.errMu.Unlock()
		return
	}
	s.lastErrWarn[name] = now
	s.errMu.Unlock()

	s.log.Warn("scheduled job failed",
		logx.String("job", name),
		logx.String("kind", errors.KindOf(err)),
		logx.Err(err),
	)
}
