// Package poller drives the periodic alert pass on a fixed cadence.
package poller

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "bosstimer/pkg/logx"
)

// Pass is the work executed on every tick.
type Pass func(ctx context.Context) error

type Config struct {
	Interval time.Duration
	Location *time.Location
}

// Service runs the pass on a cron "@every" trigger. Passes are serialized: a
// tick that arrives while the previous pass is still running is skipped.
type Service struct {
	mu   sync.Mutex
	cfg  Config
	pass Pass
	log  logx.Logger

	c         *cron.Cron
	runCtx    context.Context
	runCancel context.CancelFunc
	running   bool

	// busy guards against overlapping passes when one runs long.
	busy sync.Mutex
}

func New(cfg Config, pass Pass, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Service{cfg: cfg, pass: pass, log: log}
}

func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.runCtx, s.runCancel = context.WithCancel(ctx)
	s.startCronLocked()
	s.log.Info("poller started",
		logx.Duration("interval", s.cfg.Interval),
		logx.String("tz", s.cfg.Location.String()),
	)
}

// Apply restarts the cron trigger when the interval or zone changed.
func (s *Service) Apply(cfg Config) {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	same := cfg.Interval == s.cfg.Interval && cfg.Location.String() == s.cfg.Location.String()
	s.cfg = cfg
	if !s.running || same {
		return
	}
	if s.c != nil {
		s.c.Stop()
	}
	s.startCronLocked()
	s.log.Info("poller restarted",
		logx.Duration("interval", s.cfg.Interval),
		logx.String("tz", s.cfg.Location.String()),
	)
}

func (s *Service) startCronLocked() {
	s.c = cron.New(cron.WithLocation(s.cfg.Location))
	runCtx := s.runCtx
	_, err := s.c.AddFunc("@every "+s.cfg.Interval.String(), func() {
		s.tick(runCtx)
	})
	if err != nil {
		// "@every <duration>" with a positive duration always parses; this
		// only fires if the schedule string construction itself regresses.
		s.log.Error("poller schedule rejected", logx.Err(err))
		return
	}
	s.c.Start()
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	c := s.c
	cancel := s.runCancel
	s.c = nil
	s.runCancel = nil
	s.runCtx = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if c != nil {
		select {
		case <-c.Stop().Done():
		case <-ctx.Done():
		}
	}
	s.log.Info("poller stopped")
}

func (s *Service) tick(runCtx context.Context) {
	if runCtx == nil || runCtx.Err() != nil {
		return
	}
	// Skip if the previous pass is still running.
	if !s.busy.TryLock() {
		s.log.Warn("poll pass still running; skipping tick")
		return
	}
	defer s.busy.Unlock()
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("panic in poll pass", logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
		}
	}()

	start := time.Now()
	if err := s.pass(runCtx); err != nil {
		s.log.Warn("poll pass failed", logx.Err(err), logx.Duration("took", time.Since(start)))
		return
	}
	s.log.Debug("poll pass done", logx.Duration("took", time.Since(start)))
}
