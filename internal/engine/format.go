package engine

import (
	"fmt"
	"strings"
)

// String renders a rule in the same syntax the parser accepts, so a formatted
// interval rule round-trips to the same minute count.
func (r Rule) String() string {
	switch r.Kind {
	case KindInterval:
		h := r.PeriodMinutes / 60
		m := r.PeriodMinutes % 60
		switch {
		case h > 0 && m > 0:
			return fmt.Sprintf("%dh%dm", h, m)
		case h > 0:
			return fmt.Sprintf("%dh", h)
		default:
			return fmt.Sprintf("%dm", m)
		}
	case KindWeekly:
		parts := make([]string, 0, len(r.Slots))
		for _, s := range r.Slots {
			parts = append(parts, s.String())
		}
		return strings.Join(parts, ", ")
	default:
		return string(r.Kind)
	}
}

// String renders a slot in 12-hour form, e.g. "Monday 11:30 AM".
func (s Slot) String() string {
	ap := "AM"
	h := s.Hour
	switch {
	case h == 0:
		h = 12
	case h == 12:
		ap = "PM"
	case h > 12:
		h -= 12
		ap = "PM"
	}
	return fmt.Sprintf("%s %d:%02d %s", s.Weekday.String(), h, s.Minute, ap)
}
