package scheduler

import (
	"sort"
)

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := make([]JobInfo, 0, len(s.jobs))
	for _, j := range s.jobs {
		it := JobInfo{
			Name:        j.Name,
			Description: j.Description,
			Once:        j.Once,
			Next:        j.nextLocked(),
			Prev:        j.prevLocked(),
			Runs:        j.runs,
			LastError:   j.lastErr,
		}
		for _, t := range j.triggers {
			it.Triggers = append(it.Triggers, t.label)
		}
		items = append(items, it)
	}
	sort.Slice(items, func(a, b int) bool { return items[a].Name < items[b].Name })

	return Snapshot{Timezone: s.loc.String(), Jobs: items}
}
