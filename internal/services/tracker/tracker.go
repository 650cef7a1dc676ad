package tracker

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"strings"
	"sync"
	"time"

	"bosstimer/internal/engine"
	"bosstimer/internal/storage"
	logx "bosstimer/pkg/logx"
)

var (
	ErrNotFound = errors.New("boss not found")
	// ErrFixedSchedule is returned when a kill is reported for a boss whose
	// respawn follows a weekly schedule rather than a kill-relative interval.
	ErrFixedSchedule = errors.New("boss respawns on a fixed schedule")
	ErrEmptyName     = errors.New("boss name is empty")
)

// AlertSink receives due alerts produced by a poll pass.
type AlertSink func(ctx context.Context, a engine.Alert)

// Entry is a tracked boss plus its computed next respawn.
type Entry struct {
	Record  engine.Record
	Next    time.Time
	HasNext bool
}

// Service owns the tracked boss collection. All mutations go through it; it
// persists the whole collection after each change and runs the periodic alert
// pass. Safe for concurrent use.
type Service struct {
	mu    sync.Mutex
	recs  map[string]engine.Record
	store storage.Store
	clock *engine.ZoneClock
	log   logx.Logger

	defaultLead int
	sink        AlertSink
}

func New(store storage.Store, clock *engine.ZoneClock, defaultLead int, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if defaultLead < 0 {
		defaultLead = 0
	}
	return &Service{
		recs:        map[string]engine.Record{},
		store:       store,
		clock:       clock,
		defaultLead: defaultLead,
		log:         log,
	}
}

// SetSink installs the alert delivery callback. Must be called before Start.
func (s *Service) SetSink(sink AlertSink) {
	s.mu.Lock()
	s.sink = sink
	s.mu.Unlock()
}

// Start loads the persisted collection into memory. A load failure degrades
// to an empty collection so a corrupt store file never keeps the bot down;
// the first successful mutation rewrites the file whole.
func (s *Service) Start(ctx context.Context) {
	recs, err := s.store.LoadAll(ctx)
	if err != nil {
		s.log.Error("load bosses failed; starting with empty collection", logx.Err(err))
		recs = map[string]engine.Record{}
	}
	s.mu.Lock()
	s.recs = recs
	n := len(recs)
	s.mu.Unlock()
	s.log.Info("tracker started", logx.Int("bosses", n), logx.String("tz", s.clock.Location().String()))
}

// Apply updates reloadable settings (timezone clock, default alert lead).
func (s *Service) Apply(clock *engine.ZoneClock, defaultLead int) {
	s.mu.Lock()
	if clock != nil {
		s.clock = clock
	}
	if defaultLead >= 0 {
		s.defaultLead = defaultLead
	}
	s.mu.Unlock()
}

func keyFor(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// AddBoss parses ruleText and upserts the boss. Re-adding an existing boss
// replaces its rule and resets kill/alert state.
func (s *Service) AddBoss(ctx context.Context, name, ruleText string) (engine.Record, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return engine.Record{}, ErrEmptyName
	}
	rule, err := engine.ParseRule(ruleText)
	if err != nil {
		return engine.Record{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	rec := engine.Record{
		Name:             name,
		Rule:             rule,
		AlertLeadMinutes: s.defaultLead,
	}
	if err := s.commitLocked(ctx, func(m map[string]engine.Record) {
		m[keyFor(name)] = rec
	}); err != nil {
		return engine.Record{}, err
	}
	s.log.Info("boss added", logx.String("boss", name), logx.String("rule", rule.String()))
	return rec, nil
}

// ReportKill records a kill time for an interval boss. The alert marker is
// cleared so the next respawn re-arms. At must be in the tracker's zone wall
// clock already; callers pass clock.Local()-derived times.
func (s *Service) ReportKill(ctx context.Context, name string, at time.Time) (engine.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := keyFor(name)
	rec, ok := s.recs[k]
	if !ok {
		return engine.Record{}, ErrNotFound
	}
	if rec.Rule.Kind != engine.KindInterval {
		return engine.Record{}, ErrFixedSchedule
	}
	rec.LastKill = &at
	rec.LastAlerted = nil
	if err := s.commitLocked(ctx, func(m map[string]engine.Record) {
		m[k] = rec
	}); err != nil {
		return engine.Record{}, err
	}
	s.log.Info("kill recorded", logx.String("boss", rec.Name), logx.Time("at", at))
	return rec, nil
}

// SetAlertLead changes the advance warning for one boss. The alert marker is
// cleared so the new lead takes effect for the upcoming respawn.
func (s *Service) SetAlertLead(ctx context.Context, name string, minutes int) (engine.Record, error) {
	if minutes < 0 {
		return engine.Record{}, fmt.Errorf("alert lead must be >= 0 minutes")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	k := keyFor(name)
	rec, ok := s.recs[k]
	if !ok {
		return engine.Record{}, ErrNotFound
	}
	rec.AlertLeadMinutes = minutes
	rec.LastAlerted = nil
	if err := s.commitLocked(ctx, func(m map[string]engine.Record) {
		m[k] = rec
	}); err != nil {
		return engine.Record{}, err
	}
	return rec, nil
}

// ClearAll removes every tracked boss and returns how many were removed.
func (s *Service) ClearAll(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.recs)
	if err := s.commitLocked(ctx, func(m map[string]engine.Record) {
		for k := range m {
			delete(m, k)
		}
	}); err != nil {
		return 0, err
	}
	s.log.Info("all bosses cleared", logx.Int("removed", n))
	return n, nil
}

// List returns all tracked bosses with their computed next respawn, bosses
// with a known next time first (soonest first), then the rest by name.
func (s *Service) List() []Entry {
	s.mu.Lock()
	clock := s.clock
	recs := make([]engine.Record, 0, len(s.recs))
	for _, r := range s.recs {
		recs = append(recs, r)
	}
	s.mu.Unlock()

	now := clock.Now()
	loc := clock.Location()
	out := make([]Entry, 0, len(recs))
	for _, r := range recs {
		next, ok := engine.NextOccurrence(r.Rule, now, r.LastKill, loc)
		out = append(out, Entry{Record: r, Next: next, HasNext: ok})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.HasNext != b.HasNext {
			return a.HasNext
		}
		if a.HasNext && !a.Next.Equal(b.Next) {
			return a.Next.Before(b.Next)
		}
		return keyFor(a.Record.Name) < keyFor(b.Record.Name)
	})
	return out
}

// RunPass evaluates every boss once against the current time and forwards due
// alerts to the sink. A failure on one boss never blocks the others.
func (s *Service) RunPass(ctx context.Context) error {
	s.mu.Lock()
	clock := s.clock
	sink := s.sink
	keys := make([]string, 0, len(s.recs))
	for k := range s.recs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	now := clock.Now()
	loc := clock.Location()
	var alerts []engine.Alert
	changed := false
	for _, k := range keys {
		rec, ok := s.recs[k]
		if !ok {
			continue
		}
		updated, alert := engine.Tick(rec, now, loc)
		if alert != nil {
			s.recs[k] = updated
			alerts = append(alerts, *alert)
			changed = true
		}
	}
	var saveErr error
	if changed {
		saveErr = s.saveLocked(ctx)
	}
	s.mu.Unlock()

	if sink != nil {
		for _, a := range alerts {
			func() {
				defer func() {
					if r := recover(); r != nil {
						s.log.Error("panic in alert sink", logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
					}
				}()
				sink(ctx, a)
			}()
		}
	}
	if saveErr != nil {
		return fmt.Errorf("persist alert markers: %w", saveErr)
	}
	return nil
}

// commitLocked stages mutate on a copy of the collection, persists the copy,
// and swaps it in only when the save succeeds. A failed save leaves the
// in-memory state exactly as it was.
func (s *Service) commitLocked(ctx context.Context, mutate func(map[string]engine.Record)) error {
	staged := make(map[string]engine.Record, len(s.recs))
	for k, v := range s.recs {
		staged[k] = v
	}
	mutate(staged)
	if err := s.store.SaveAll(ctx, staged); err != nil {
		s.log.Error("save bosses failed", logx.Err(err))
		return err
	}
	s.recs = staged
	return nil
}

func (s *Service) saveLocked(ctx context.Context) error {
	// Copy so the store never sees the live map.
	snapshot := make(map[string]engine.Record, len(s.recs))
	for k, v := range s.recs {
		snapshot[k] = v
	}
	if err := s.store.SaveAll(ctx, snapshot); err != nil {
		s.log.Error("save bosses failed", logx.Err(err))
		return err
	}
	return nil
}
