package engine

import "time"

// NextOccurrence computes the next absolute occurrence for a rule.
//
// Interval rules need a recorded last kill; without one there is no timer and
// ok is false. The result may lie in the past — callers must treat a past
// result as "already due", not recompute it.
//
// Weekly rules derive purely from the rule and now; ok is false only for an
// empty slot list. All weekday/time comparisons use the wall clock in loc.
func NextOccurrence(r Rule, now time.Time, lastKill *time.Time, loc *time.Location) (time.Time, bool) {
	switch r.Kind {
	case KindInterval:
		if lastKill == nil || r.PeriodMinutes <= 0 {
			return time.Time{}, false
		}
		return lastKill.Add(time.Duration(r.PeriodMinutes) * time.Minute), true
	case KindWeekly:
		return nextWeekly(r.Slots, now, loc)
	default:
		return time.Time{}, false
	}
}

func nextWeekly(slots []Slot, now time.Time, loc *time.Location) (time.Time, bool) {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	var best time.Time
	found := false
	for _, s := range slots {
		days := (int(s.Weekday) - int(local.Weekday()) + 7) % 7
		cand := time.Date(local.Year(), local.Month(), local.Day()+days, s.Hour, s.Minute, 0, 0, loc)
		if !cand.After(now) {
			// Same-day slot whose time-of-day is not strictly later than now:
			// that occurrence already passed, the next one is a week out.
			cand = cand.AddDate(0, 0, 7)
		}
		if !found || cand.Before(best) {
			best = cand
			found = true
		}
	}
	return best, found
}
