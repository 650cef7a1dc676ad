package config

import (
	"fmt"
	"strings"
	"time"
)

// ParseDurationField parses a Go duration string taken from a config field
// such as "telegram.poll_timeout" or "tracker.poll_interval". An empty value
// means the field was left unset and yields zero; the caller decides whether
// that falls back to a default. The field path is woven into errors so a
// validation failure points at the offending key.
func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

// ParseDurationOrDefault is ParseDurationField for fields with a built-in
// default, like the "1m" poll interval: unset or zero yields def.
func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}
