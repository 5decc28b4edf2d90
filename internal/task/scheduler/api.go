package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"dasladen/internal/descriptor"
	"dasladen/internal/errors"
	"dasladen/internal/eventbus"
	"dasladen/pkg/logx"
)

// Enqueue registers d under name and returns a description of the schedule
// for the run log. A job already registered under name is replaced.
//
// A descriptor that is neither recurring nor timed yields InvalidSchedule
// and an ErrSchedule error; nothing is registered.
func (s *Service) Enqueue(name string, d *descriptor.Descriptor) (string, error) {
	if d == nil || d.Schedule == nil {
		return InvalidSchedule, errors.Schedulef("%s: no schedule section", name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().In(s.loc)
	job, err := s.buildJobLocked(name, d, now)
	if err != nil {
		return InvalidSchedule, errors.Wrapf(err, "%s", name)
	}

	replaced := s.removeJobLocked(name)
	for _, t := range job.triggers {
		t.next = t.sched.Next(now)
	}
	s.jobs[name] = job

	s.log.Info("job scheduled",
		logx.String("job", name),
		logx.String("schedule", job.Description),
		logx.Int("triggers", len(job.triggers)),
		logx.Time("next", job.nextLocked()),
		logx.Bool("replaced", replaced),
	)
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: eventbus.JobScheduled, Time: now, Data: name + ": " + job.Description})
	}
	return job.Description, nil
}

// Len returns the number of registered jobs.
func (s *Service) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

func (s *Service) removeJobLocked(name string) bool {
	if _, ok := s.jobs[name]; !ok {
		return false
	}
	delete(s.jobs, name)
	return true
}

func (s *Service) buildJobLocked(name string, d *descriptor.Descriptor, now time.Time) (*Job, error) {
	sc := d.Schedule
	at := sc.ClockTime()
	var clock *clockTime
	if at != "" {
		c, err := parseClock(at)
		if err != nil {
			return nil, errors.Schedule(err)
		}
		clock = &c
	}

	job := &Job{Name: name, desc: d}

	if !sc.IsRecurring() {
		if clock == nil {
			return nil, errors.Schedulef("not recurring and no time given")
		}
		sched, err := s.parser.Parse(clock.spec("*"))
		if err != nil {
			return nil, errors.Schedule(err)
		}
		job.Once = true
		job.triggers = []*trigger{{label: "daily", sched: sched}}
		job.Description = fmt.Sprintf("once at '%s'", at)
		return job, nil
	}

	n := sc.Interval()
	switch freq := sc.FrequencyOrDefault(); freq {
	case descriptor.FrequencyDaily:
		var sched cron.Schedule
		if clock == nil {
			sched = cron.Every(time.Duration(n) * 24 * time.Hour)
		} else {
			base, err := s.parser.Parse(clock.spec("*"))
			if err != nil {
				return nil, errors.Schedule(err)
			}
			sched = newStride(base, now, n)
		}
		job.triggers = []*trigger{{label: "daily", sched: sched}}
		job.Description = fmt.Sprintf("each %d day(s)", n)

	case descriptor.FrequencyWeekly:
		days := sc.WeekdayList()
		if len(days) == 0 {
			return nil, errors.Schedulef("weekly schedule without weekdays")
		}
		c := clockTime{hour: now.Hour(), minute: now.Minute(), second: now.Second()}
		if clock != nil {
			c = *clock
		}
		names := make([]string, len(days))
		for i, wd := range days {
			names[i] = strings.ToLower(wd.String())
			base, err := s.parser.Parse(c.spec(strconv.Itoa(int(wd))))
			if err != nil {
				return nil, errors.Schedule(err)
			}
			sched := base
			if n > 1 {
				sched = newStride(base, now, 7*n)
			}
			job.triggers = append(job.triggers, &trigger{label: names[i], sched: sched})
		}
		job.Description = fmt.Sprintf("each %d week(s) on %s", n, strings.Join(names, ", "))

	case descriptor.FrequencyMinutes:
		job.triggers = []*trigger{{label: "minutes", sched: cron.Every(time.Duration(n) * time.Minute)}}
		job.Description = fmt.Sprintf("each %d minute(s)", n)
		return job, nil

	case descriptor.FrequencyHours:
		job.triggers = []*trigger{{label: "hours", sched: cron.Every(time.Duration(n) * time.Hour)}}
		job.Description = fmt.Sprintf("each %d hour(s)", n)
		return job, nil

	default:
		return nil, errors.Schedulef("unknown frequency %q", freq)
	}

	if clock != nil {
		job.Description = fmt.Sprintf("%s at '%s'", job.Description, at)
	}
	return job, nil
}

func (j *Job) nextLocked() time.Time {
	var next time.Time
	for _, t := range j.triggers {
		if next.IsZero() || t.next.Before(next) {
			next = t.next
		}
	}
	return next
}

func (j *Job) prevLocked() time.Time {
	var prev time.Time
	for _, t := range j.triggers {
		if t.prev.After(prev) {
			prev = t.prev
		}
	}
	return prev
}

func (s *Service) loadLocationLocked() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone; falling back to Local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}

type clockTime struct {
	hour, minute, second int
}

// spec renders a six-field cron spec firing at c on dow.
func (c clockTime) spec(dow string) string {
	return fmt.Sprintf("%d %d %d * * %s", c.second, c.minute, c.hour, dow)
}

// parseClock accepts "HH:MM" or "HH:MM:SS".
func parseClock(s string) (clockTime, error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) != 2 && len(parts) != 3 {
		return clockTime{}, errors.Newf("invalid time %q, expected HH:MM or HH:MM:SS", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return clockTime{}, errors.Newf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return clockTime{}, errors.Newf("invalid minute in %q", s)
	}
	sec := 0
	if len(parts) == 3 {
		sec, err = strconv.Atoi(parts[2])
		if err != nil || sec < 0 || sec > 59 {
			return clockTime{}, errors.Newf("invalid second in %q", s)
		}
	}
	return clockTime{hour: h, minute: m, second: sec}, nil
}
