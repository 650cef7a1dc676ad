package tracker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"bosstimer/internal/engine"
	logx "bosstimer/pkg/logx"
)

type memStore struct {
	mu      sync.Mutex
	recs    map[string]engine.Record
	saves   int
	fail    error
	loadErr error
}

func newMemStore() *memStore {
	return &memStore{recs: map[string]engine.Record{}}
}

func (m *memStore) LoadAll(ctx context.Context) (map[string]engine.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	out := make(map[string]engine.Record, len(m.recs))
	for k, v := range m.recs {
		out[k] = v
	}
	return out, nil
}

func (m *memStore) SaveAll(ctx context.Context, recs map[string]engine.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.saves++
	m.recs = make(map[string]engine.Record, len(recs))
	for k, v := range recs {
		m.recs[k] = v
	}
	return nil
}

func (m *memStore) Close() error { return nil }

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

func newService(t *testing.T, at time.Time) (*Service, *memStore, *fakeClock) {
	t.Helper()
	st := newMemStore()
	fc := &fakeClock{t: at}
	zc, err := engine.NewZoneClock(fc, "UTC")
	if err != nil {
		t.Fatalf("NewZoneClock: %v", err)
	}
	s := New(st, zc, 10, logx.Nop())
	s.Start(context.Background())
	return s, st, fc
}

// 2026-08-31 is a Monday.
var monday = time.Date(2026, time.August, 31, 9, 0, 0, 0, time.UTC)

func TestAddBossUpsertsAndPersists(t *testing.T) {
	t.Parallel()
	s, st, _ := newService(t, monday)
	ctx := context.Background()

	rec, err := s.AddBoss(ctx, "Livera", "2h")
	if err != nil {
		t.Fatalf("AddBoss: %v", err)
	}
	if rec.Rule.Kind != engine.KindInterval || rec.Rule.PeriodMinutes != 120 {
		t.Fatalf("unexpected rule: %+v", rec.Rule)
	}
	if rec.AlertLeadMinutes != 10 {
		t.Fatalf("default lead not applied: %d", rec.AlertLeadMinutes)
	}

	// Re-add with a different rule: replaces and resets state.
	if _, err := s.ReportKill(ctx, "livera", monday); err != nil {
		t.Fatalf("ReportKill: %v", err)
	}
	rec, err = s.AddBoss(ctx, "LIVERA", "monday 11:30")
	if err != nil {
		t.Fatalf("AddBoss (replace): %v", err)
	}
	if rec.Rule.Kind != engine.KindWeekly || rec.LastKill != nil {
		t.Fatalf("replace did not reset state: %+v", rec)
	}

	if st.saves != 3 {
		t.Fatalf("saves = %d, want 3", st.saves)
	}
	if len(st.recs) != 1 {
		t.Fatalf("store has %d records, want 1", len(st.recs))
	}
}

func TestAddBossRejectsBadInput(t *testing.T) {
	t.Parallel()
	s, _, _ := newService(t, monday)
	ctx := context.Background()

	if _, err := s.AddBoss(ctx, "  ", "2h"); !errors.Is(err, ErrEmptyName) {
		t.Fatalf("err = %v, want ErrEmptyName", err)
	}
	if _, err := s.AddBoss(ctx, "x", "abcdef"); !errors.Is(err, engine.ErrUnrecognizedFormat) {
		t.Fatalf("err = %v, want ErrUnrecognizedFormat", err)
	}
	if _, err := s.AddBoss(ctx, "x", "0m"); !errors.Is(err, engine.ErrInvalidInterval) {
		t.Fatalf("err = %v, want ErrInvalidInterval", err)
	}
}

func TestReportKillOnlyForIntervalBosses(t *testing.T) {
	t.Parallel()
	s, _, _ := newService(t, monday)
	ctx := context.Background()

	if _, err := s.ReportKill(ctx, "ghost", monday); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if _, err := s.AddBoss(ctx, "Garmoth", "monday 11:30"); err != nil {
		t.Fatalf("AddBoss: %v", err)
	}
	if _, err := s.ReportKill(ctx, "garmoth", monday); !errors.Is(err, ErrFixedSchedule) {
		t.Fatalf("err = %v, want ErrFixedSchedule", err)
	}
}

func TestReportKillClearsAlertMarker(t *testing.T) {
	t.Parallel()
	s, st, _ := newService(t, monday)
	ctx := context.Background()

	if _, err := s.AddBoss(ctx, "Livera", "2h"); err != nil {
		t.Fatalf("AddBoss: %v", err)
	}
	// Seed a stale alert marker directly.
	s.mu.Lock()
	rec := s.recs["livera"]
	stale := monday.Add(-time.Hour)
	rec.LastAlerted = &stale
	s.recs["livera"] = rec
	s.mu.Unlock()

	got, err := s.ReportKill(ctx, "Livera", monday)
	if err != nil {
		t.Fatalf("ReportKill: %v", err)
	}
	if got.LastAlerted != nil {
		t.Fatal("alert marker not cleared by kill report")
	}
	if got.LastKill == nil || !got.LastKill.Equal(monday) {
		t.Fatalf("LastKill = %v", got.LastKill)
	}
	if st.recs["livera"].LastKill == nil {
		t.Fatal("kill not persisted")
	}
}

func TestListSortsSoonestFirst(t *testing.T) {
	t.Parallel()
	s, _, _ := newService(t, monday)
	ctx := context.Background()

	if _, err := s.AddBoss(ctx, "Slow", "5h"); err != nil {
		t.Fatalf("AddBoss: %v", err)
	}
	if _, err := s.AddBoss(ctx, "Fast", "1h"); err != nil {
		t.Fatalf("AddBoss: %v", err)
	}
	if _, err := s.AddBoss(ctx, "Never", "9h"); err != nil {
		t.Fatalf("AddBoss: %v", err)
	}
	if _, err := s.ReportKill(ctx, "Slow", monday); err != nil {
		t.Fatalf("ReportKill: %v", err)
	}
	if _, err := s.ReportKill(ctx, "Fast", monday); err != nil {
		t.Fatalf("ReportKill: %v", err)
	}

	got := s.List()
	if len(got) != 3 {
		t.Fatalf("len = %d", len(got))
	}
	if got[0].Record.Name != "Fast" || got[1].Record.Name != "Slow" {
		t.Fatalf("order = %q, %q", got[0].Record.Name, got[1].Record.Name)
	}
	// Interval boss with no kill has no next occurrence; sorts last.
	if got[2].Record.Name != "Never" || got[2].HasNext {
		t.Fatalf("expected Never last with no next, got %+v", got[2])
	}
}

func TestRunPassEmitsAlertOnce(t *testing.T) {
	t.Parallel()
	s, st, fc := newService(t, monday)
	ctx := context.Background()

	if _, err := s.AddBoss(ctx, "Livera", "2h"); err != nil {
		t.Fatalf("AddBoss: %v", err)
	}
	if _, err := s.ReportKill(ctx, "Livera", monday); err != nil {
		t.Fatalf("ReportKill: %v", err)
	}

	var (
		mu    sync.Mutex
		fired []engine.Alert
	)
	s.SetSink(func(_ context.Context, a engine.Alert) {
		mu.Lock()
		fired = append(fired, a)
		mu.Unlock()
	})

	// Before the lead window: nothing.
	fc.set(monday.Add(time.Hour))
	if err := s.RunPass(ctx); err != nil {
		t.Fatalf("RunPass: %v", err)
	}
	if len(fired) != 0 {
		t.Fatalf("alert fired outside window: %+v", fired)
	}

	// Inside the window (respawn at +2h, lead 10m).
	fc.set(monday.Add(2*time.Hour - 5*time.Minute))
	if err := s.RunPass(ctx); err != nil {
		t.Fatalf("RunPass: %v", err)
	}
	if len(fired) != 1 {
		t.Fatalf("fired %d alerts, want 1", len(fired))
	}
	if fired[0].Boss != "Livera" || fired[0].LeadMinutes != 10 {
		t.Fatalf("unexpected alert: %+v", fired[0])
	}
	if st.recs["livera"].LastAlerted == nil {
		t.Fatal("alert marker not persisted")
	}

	// Second pass in the same window: deduped.
	fc.set(monday.Add(2*time.Hour - 2*time.Minute))
	if err := s.RunPass(ctx); err != nil {
		t.Fatalf("RunPass: %v", err)
	}
	if len(fired) != 1 {
		t.Fatalf("alert duplicated: %d", len(fired))
	}
}

func TestStartDegradesWhenLoadFails(t *testing.T) {
	t.Parallel()
	st := newMemStore()
	st.loadErr = errors.New("decode records: unexpected end of JSON input")
	fc := &fakeClock{t: monday}
	zc, err := engine.NewZoneClock(fc, "UTC")
	if err != nil {
		t.Fatalf("NewZoneClock: %v", err)
	}
	s := New(st, zc, 10, logx.Nop())
	s.Start(context.Background())
	ctx := context.Background()

	// A broken store file degrades to an empty collection; the bot stays up.
	if got := s.List(); len(got) != 0 {
		t.Fatalf("List after failed load: %d entries", len(got))
	}

	// The store recovers on the next mutation, which rewrites it whole.
	st.mu.Lock()
	st.loadErr = nil
	st.mu.Unlock()
	if _, err := s.AddBoss(ctx, "Livera", "2h"); err != nil {
		t.Fatalf("AddBoss after degraded start: %v", err)
	}
	if len(st.recs) != 1 {
		t.Fatalf("store has %d records, want 1", len(st.recs))
	}
}

func TestFailedSaveLeavesMemoryUntouched(t *testing.T) {
	t.Parallel()
	s, st, _ := newService(t, monday)
	ctx := context.Background()

	if _, err := s.AddBoss(ctx, "Livera", "2h"); err != nil {
		t.Fatalf("AddBoss: %v", err)
	}
	if _, err := s.ReportKill(ctx, "Livera", monday); err != nil {
		t.Fatalf("ReportKill: %v", err)
	}

	st.mu.Lock()
	st.fail = errors.New("disk full")
	st.mu.Unlock()

	// AddBoss: the new boss must not appear in memory.
	if _, err := s.AddBoss(ctx, "Garmoth", "3h"); err == nil {
		t.Fatal("AddBoss: expected save error")
	}
	got := s.List()
	if len(got) != 1 || got[0].Record.Name != "Livera" {
		t.Fatalf("memory changed by failed AddBoss: %+v", got)
	}

	// ReportKill: the kill time must not move.
	later := monday.Add(time.Hour)
	if _, err := s.ReportKill(ctx, "Livera", later); err == nil {
		t.Fatal("ReportKill: expected save error")
	}
	got = s.List()
	if got[0].Record.LastKill == nil || !got[0].Record.LastKill.Equal(monday) {
		t.Fatalf("kill time moved by failed ReportKill: %v", got[0].Record.LastKill)
	}

	// SetAlertLead: the lead must not change.
	if _, err := s.SetAlertLead(ctx, "Livera", 30); err == nil {
		t.Fatal("SetAlertLead: expected save error")
	}
	if got = s.List(); got[0].Record.AlertLeadMinutes != 10 {
		t.Fatalf("lead changed by failed SetAlertLead: %d", got[0].Record.AlertLeadMinutes)
	}

	// ClearAll: the collection must survive.
	if _, err := s.ClearAll(ctx); err == nil {
		t.Fatal("ClearAll: expected save error")
	}
	if got = s.List(); len(got) != 1 {
		t.Fatalf("collection lost by failed ClearAll: %d", len(got))
	}

	// Once the store heals the same mutations go through.
	st.mu.Lock()
	st.fail = nil
	st.mu.Unlock()
	if _, err := s.AddBoss(ctx, "Garmoth", "3h"); err != nil {
		t.Fatalf("AddBoss after store healed: %v", err)
	}
	if len(st.recs) != 2 {
		t.Fatalf("store has %d records, want 2", len(st.recs))
	}
}

func TestClearAll(t *testing.T) {
	t.Parallel()
	s, st, _ := newService(t, monday)
	ctx := context.Background()

	if _, err := s.AddBoss(ctx, "A", "1h"); err != nil {
		t.Fatalf("AddBoss: %v", err)
	}
	if _, err := s.AddBoss(ctx, "B", "2h"); err != nil {
		t.Fatalf("AddBoss: %v", err)
	}
	n, err := s.ClearAll(ctx)
	if err != nil {
		t.Fatalf("ClearAll: %v", err)
	}
	if n != 2 {
		t.Fatalf("removed = %d", n)
	}
	if len(st.recs) != 0 {
		t.Fatalf("store not emptied: %d", len(st.recs))
	}
	if got := s.List(); len(got) != 0 {
		t.Fatalf("List after clear: %d", len(got))
	}
}
