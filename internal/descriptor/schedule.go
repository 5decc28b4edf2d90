package descriptor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Schedule is the optional "schedule" section of a descriptor.
type Schedule struct {
	Recurring bool   `json:"recurring,omitempty"`
	Frequency string `json:"frequency,omitempty"`

	Days    Count `json:"days,omitempty"`
	Weeks   Count `json:"weeks,omitempty"`
	Minutes Count `json:"minutes,omitempty"`
	Hours   Count `json:"hours,omitempty"`

	Weekday  Weekdays `json:"weekday,omitempty"`
	Weekdays Weekdays `json:"weekdays,omitempty"`

	// Time is a clock time "HH:MM" or "HH:MM:SS".
	Time string `json:"time,omitempty"`

	Times    *Count `json:"times,omitempty"`
	Infinity bool   `json:"infinity,omitempty"`
	Infinite bool   `json:"infinite,omitempty"`
}

const (
	FrequencyDaily   = "daily"
	FrequencyWeekly  = "weekly"
	FrequencyMinutes = "minutes"
	FrequencyHours   = "hours"
)

// RepeatCount reports the "times" value when present.
func (s *Schedule) RepeatCount() (int, bool) {
	if s == nil || s.Times == nil {
		return 0, false
	}
	return int(*s.Times), true
}

func (s *Schedule) IsInfinite() bool { return s != nil && (s.Infinity || s.Infinite) }

func (s *Schedule) IsRecurring() bool { return s != nil && s.Recurring }

// ClockTime is the trimmed "time" value.
func (s *Schedule) ClockTime() string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(s.Time)
}

// FrequencyOrDefault returns the lower-cased frequency, "daily" when unset.
func (s *Schedule) FrequencyOrDefault() string {
	f := strings.ToLower(strings.TrimSpace(s.Frequency))
	if f == "" {
		return FrequencyDaily
	}
	return f
}

// Interval returns the count matching the frequency, at least 1.
func (s *Schedule) Interval() int {
	var n Count
	switch s.FrequencyOrDefault() {
	case FrequencyDaily:
		n = s.Days
	case FrequencyWeekly:
		n = s.Weeks
	case FrequencyMinutes:
		n = s.Minutes
	case FrequencyHours:
		n = s.Hours
	}
	if n < 1 {
		return 1
	}
	return int(n)
}

// WeekdayList merges "weekday" and "weekdays" in Monday..Sunday order.
func (s *Schedule) WeekdayList() []time.Weekday {
	seen := map[time.Weekday]bool{}
	for _, d := range s.Weekday {
		seen[d] = true
	}
	for _, d := range s.Weekdays {
		seen[d] = true
	}
	out := make([]time.Weekday, 0, len(seen))
	for _, d := range weekOrder {
		if seen[d] {
			out = append(out, d)
		}
	}
	return out
}

var weekOrder = []time.Weekday{
	time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday, time.Saturday, time.Sunday,
}

// Count is a non-negative integer written as a number or a numeric string.
type Count int

func (c *Count) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*c = 0
		return nil
	}
	raw := string(b)
	if len(b) > 0 && b[0] == '"' {
		if err := json.Unmarshal(b, &raw); err != nil {
			return err
		}
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 0 {
		return fmt.Errorf("invalid count %s", string(b))
	}
	*c = Count(n)
	return nil
}

// Weekdays accepts ["monday","friday"] or "monday, friday".
type Weekdays []time.Weekday

func (w *Weekdays) UnmarshalJSON(b []byte) error {
	var names []string
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		names = strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' || r == ';' })
	} else if err := json.Unmarshal(b, &names); err != nil {
		return err
	}
	out := make(Weekdays, 0, len(names))
	for _, n := range names {
		d, ok := ParseWeekday(n)
		if !ok {
			return fmt.Errorf("unknown weekday %q", n)
		}
		out = append(out, d)
	}
	*w = out
	return nil
}

func (w Weekdays) MarshalJSON() ([]byte, error) {
	names := make([]string, len(w))
	for i, d := range w {
		names[i] = strings.ToLower(d.String())
	}
	return json.Marshal(names)
}

// ParseWeekday parses an English weekday name or its three-letter prefix.
func ParseWeekday(s string) (time.Weekday, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) < 3 {
		return 0, false
	}
	for _, d := range weekOrder {
		name := strings.ToLower(d.String())
		if s == name || s == name[:3] {
			return d, true
		}
	}
	return 0, false
}
