package engine

import "time"

// Tick advances one record's alert state for a single poll pass.
//
// It returns the (possibly updated) record and a non-nil Alert exactly when
// now first enters the lead window [next-lead, next). The LastAlerted mark on
// the returned record pins the alerted occurrence, so repeated ticks inside
// the same window stay silent. A window that elapses between polls is
// skipped, never backfilled.
func Tick(rec Record, now time.Time, loc *time.Location) (Record, *Alert) {
	next, ok := NextOccurrence(rec.Rule, now, rec.LastKill, loc)
	if !ok {
		return rec, nil
	}
	if rec.LastAlerted != nil && rec.LastAlerted.Equal(next) {
		return rec, nil
	}
	lead := time.Duration(rec.AlertLeadMinutes) * time.Minute
	if now.Before(next.Add(-lead)) || !now.Before(next) {
		return rec, nil
	}
	at := next
	rec.LastAlerted = &at
	return rec, &Alert{Boss: rec.Name, At: next, LeadMinutes: rec.AlertLeadMinutes}
}
