package config

import (
	"strconv"
	"strings"
	"time"

	"dasladen/internal/errors"
)

// ParseDuration reads the duration setting key ("watch.interval",
// "lua.filter_timeout", ...). A plain number counts as seconds, so 10 and
// "10s" are the same. Empty is zero.
func ParseDuration(key, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		s = strconv.FormatFloat(n, 'f', -1, 64) + "s"
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, errors.Configurationf("%s: %q is not a duration (use 30s, 5m or seconds)", key, raw)
	}
	if d < 0 {
		return 0, errors.Configurationf("%s: %q is negative", key, raw)
	}
	return d, nil
}

// DurationOr is ParseDuration with def for an unset or zero setting.
func DurationOr(key, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDuration(key, raw)
	if err != nil || d > 0 {
		return d, err
	}
	return def, nil
}
