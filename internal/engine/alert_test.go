package engine

import (
	"testing"
	"time"
)

func intervalRecord(kill time.Time, leadMinutes int) Record {
	k := kill
	return Record{
		Name:             "Livera",
		Rule:             Rule{Kind: KindInterval, PeriodMinutes: 120},
		LastKill:         &k,
		AlertLeadMinutes: leadMinutes,
	}
}

func TestTickFiresInsideWindow(t *testing.T) {
	t.Parallel()
	kill := monday.Add(10 * time.Hour)
	rec := intervalRecord(kill, 10)
	next := kill.Add(120 * time.Minute)

	got, alert := Tick(rec, next.Add(-5*time.Minute), time.UTC)
	if alert == nil {
		t.Fatal("expected an alert inside the lead window")
	}
	if alert.Boss != "Livera" || !alert.At.Equal(next) || alert.LeadMinutes != 10 {
		t.Fatalf("unexpected alert: %+v", alert)
	}
	if got.LastAlerted == nil || !got.LastAlerted.Equal(next) {
		t.Fatalf("LastAlerted = %v, want %v", got.LastAlerted, next)
	}
}

func TestTickAtMostOncePerOccurrence(t *testing.T) {
	t.Parallel()
	kill := monday.Add(10 * time.Hour)
	rec := intervalRecord(kill, 10)
	next := kill.Add(120 * time.Minute)

	fired := 0
	for _, now := range []time.Time{next.Add(-8 * time.Minute), next.Add(-4 * time.Minute)} {
		var alert *Alert
		rec, alert = Tick(rec, now, time.UTC)
		if alert != nil {
			fired++
		}
	}
	if fired != 1 {
		t.Fatalf("alerts fired = %d, want exactly 1", fired)
	}
}

func TestTickWindowBoundaries(t *testing.T) {
	t.Parallel()
	kill := monday.Add(10 * time.Hour)
	next := kill.Add(120 * time.Minute)

	// Window open edge: now == next-lead fires.
	rec := intervalRecord(kill, 10)
	if _, alert := Tick(rec, next.Add(-10*time.Minute), time.UTC); alert == nil {
		t.Fatal("expected alert at window open edge")
	}

	// Just before the window: silent.
	rec = intervalRecord(kill, 10)
	if _, alert := Tick(rec, next.Add(-10*time.Minute-time.Second), time.UTC); alert != nil {
		t.Fatal("unexpected alert before the window")
	}

	// Window close edge: now == next is no longer upcoming.
	rec = intervalRecord(kill, 10)
	if _, alert := Tick(rec, next, time.UTC); alert != nil {
		t.Fatal("unexpected alert at the occurrence instant")
	}
}

func TestTickNoOccurrenceNoAlert(t *testing.T) {
	t.Parallel()
	rec := Record{
		Name:             "Livera",
		Rule:             Rule{Kind: KindInterval, PeriodMinutes: 120},
		AlertLeadMinutes: 10,
	}
	got, alert := Tick(rec, monday, time.UTC)
	if alert != nil {
		t.Fatal("unexpected alert for a boss never killed")
	}
	if got.LastAlerted != nil {
		t.Fatal("LastAlerted must stay unset")
	}
}

func TestTickRearmsAfterNewKill(t *testing.T) {
	t.Parallel()
	kill := monday.Add(10 * time.Hour)
	rec := intervalRecord(kill, 10)
	next := kill.Add(120 * time.Minute)

	rec, alert := Tick(rec, next.Add(-5*time.Minute), time.UTC)
	if alert == nil {
		t.Fatal("expected first alert")
	}

	// A kill report moves the cycle and clears the alert mark.
	newKill := next.Add(2 * time.Minute)
	rec.LastKill = &newKill
	rec.LastAlerted = nil
	newNext := newKill.Add(120 * time.Minute)

	rec, alert = Tick(rec, newNext.Add(-5*time.Minute), time.UTC)
	if alert == nil {
		t.Fatal("expected alert for the new occurrence")
	}
	if !alert.At.Equal(newNext) {
		t.Fatalf("alert.At = %v, want %v", alert.At, newNext)
	}
}

func TestTickZeroLeadNeverFires(t *testing.T) {
	t.Parallel()
	kill := monday.Add(10 * time.Hour)
	rec := intervalRecord(kill, 0)
	next := kill.Add(120 * time.Minute)

	for _, now := range []time.Time{next.Add(-time.Minute), next.Add(-time.Second), next} {
		if _, alert := Tick(rec, now, time.UTC); alert != nil {
			t.Fatalf("unexpected alert at %v with zero lead", now)
		}
	}
}
