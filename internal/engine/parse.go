package engine

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday, "sunday": time.Sunday,
	"mon": time.Monday, "monday": time.Monday,
	"tue": time.Tuesday, "tues": time.Tuesday, "tuesday": time.Tuesday,
	"wed": time.Wednesday, "weds": time.Wednesday, "wednesday": time.Wednesday,
	"thu": time.Thursday, "thur": time.Thursday, "thurs": time.Thursday, "thursday": time.Thursday,
	"fri": time.Friday, "friday": time.Friday,
	"sat": time.Saturday, "saturday": time.Saturday,
}

var (
	intervalRe = regexp.MustCompile(`^(?:(\d+)h)?(?:(\d+)m)?$`)
	slotRe     = regexp.MustCompile(`^([a-z]+)\s+(\d{1,2}):(\d{2})\s*(am|pm)?$`)
)

// ParseRule converts user-supplied rule text into a canonical Rule.
//
// Interval syntax: bare minutes ("90") or hour/minute tokens ("1h30m", "2h").
// Weekly syntax: comma-separated "<weekday> H:MM[am|pm]" entries, weekday
// names case-insensitive with common abbreviations, time either 24-hour or
// 12-hour with am/pm.
//
// Input that looks like a schedule (a weekday name or a colon) takes the
// weekly path and failures report ErrInvalidSchedule. Interval-shaped input
// without a positive minute value reports ErrInvalidInterval. Everything else
// is ErrUnrecognizedFormat.
func ParseRule(text string) (Rule, error) {
	t := strings.ToLower(strings.TrimSpace(text))
	if t == "" {
		return Rule{}, ErrUnrecognizedFormat
	}
	if looksLikeSchedule(t) {
		return parseWeekly(t)
	}
	return parseInterval(t)
}

func looksLikeSchedule(t string) bool {
	if strings.ContainsRune(t, ':') {
		return true
	}
	for _, entry := range strings.Split(t, ",") {
		fields := strings.Fields(entry)
		if len(fields) == 0 {
			continue
		}
		if _, ok := weekdayNames[fields[0]]; ok {
			return true
		}
	}
	return false
}

func parseInterval(t string) (Rule, error) {
	t = strings.ReplaceAll(t, " ", "")
	if n, err := strconv.Atoi(t); err == nil {
		if n <= 0 {
			return Rule{}, fmt.Errorf("%w: %d minutes", ErrInvalidInterval, n)
		}
		return Rule{Kind: KindInterval, PeriodMinutes: n}, nil
	}

	m := intervalRe.FindStringSubmatch(t)
	if m == nil || (m[1] == "" && m[2] == "") {
		return Rule{}, ErrUnrecognizedFormat
	}
	total := 0
	if m[1] != "" {
		h, err := strconv.Atoi(m[1])
		if err != nil {
			return Rule{}, fmt.Errorf("%w: %q", ErrInvalidInterval, t)
		}
		total += h * 60
	}
	if m[2] != "" {
		mins, err := strconv.Atoi(m[2])
		if err != nil {
			return Rule{}, fmt.Errorf("%w: %q", ErrInvalidInterval, t)
		}
		total += mins
	}
	if total <= 0 {
		return Rule{}, fmt.Errorf("%w: no positive minute value in %q", ErrInvalidInterval, t)
	}
	return Rule{Kind: KindInterval, PeriodMinutes: total}, nil
}

func parseWeekly(t string) (Rule, error) {
	parts := strings.Split(t, ",")
	slots := make([]Slot, 0, len(parts))
	for _, part := range parts {
		s, err := parseSlot(strings.TrimSpace(part))
		if err != nil {
			return Rule{}, err
		}
		slots = append(slots, s)
	}
	if len(slots) == 0 {
		return Rule{}, ErrInvalidSchedule
	}
	return Rule{Kind: KindWeekly, Slots: slots}, nil
}

func parseSlot(part string) (Slot, error) {
	m := slotRe.FindStringSubmatch(part)
	if m == nil {
		return Slot{}, fmt.Errorf("%w: %q", ErrInvalidSchedule, part)
	}
	wd, ok := weekdayNames[m[1]]
	if !ok {
		return Slot{}, fmt.Errorf("%w: unknown weekday %q", ErrInvalidSchedule, m[1])
	}
	hour, _ := strconv.Atoi(m[2])
	minute, _ := strconv.Atoi(m[3])
	if minute > 59 {
		return Slot{}, fmt.Errorf("%w: minute out of range in %q", ErrInvalidSchedule, part)
	}
	switch m[4] {
	case "":
		if hour > 23 {
			return Slot{}, fmt.Errorf("%w: hour out of range in %q", ErrInvalidSchedule, part)
		}
	case "am":
		if hour < 1 || hour > 12 {
			return Slot{}, fmt.Errorf("%w: hour out of range in %q", ErrInvalidSchedule, part)
		}
		if hour == 12 {
			hour = 0
		}
	case "pm":
		if hour < 1 || hour > 12 {
			return Slot{}, fmt.Errorf("%w: hour out of range in %q", ErrInvalidSchedule, part)
		}
		if hour != 12 {
			hour += 12
		}
	}
	return Slot{Weekday: wd, Hour: hour, Minute: minute}, nil
}
