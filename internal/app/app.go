// Package app wires the configuration, transport, storage and services into
// one runnable bot and owns the startup/shutdown ordering.
package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"bosstimer/internal/commands"
	"bosstimer/internal/config"
	"bosstimer/internal/engine"
	"bosstimer/internal/services/notify"
	"bosstimer/internal/services/poller"
	"bosstimer/internal/services/tracker"
	"bosstimer/internal/storage"
	kit "bosstimer/internal/transport"
	telegram "bosstimer/internal/transport/telegram"
	logx "bosstimer/pkg/logx"
)

type App struct {
	cfgPath string
	cfgm    *config.Manager

	log  logx.Logger
	logs *logx.Service

	store   storage.Store
	adapter kit.Adapter

	clockMu sync.Mutex
	clock   *engine.ZoneClock

	track *tracker.Service
	notif *notify.Service
	poll  *poller.Service
	cmdm  *commands.Manager

	updates chan kit.Update

	runCancel context.CancelFunc
	loopWG    sync.WaitGroup
}

func New(cfgPath string) (*App, error) {
	// Console-only logger for the phase before the log service exists.
	boot := logx.NewConsole("info")

	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		boot.Error("load config failed", logx.String("path", cfgPath), logx.Err(err))
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		boot.Error("config rejected", logx.String("path", cfgPath), logx.Err(err))
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))

	ad, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: cfg.PollTimeout(),
	}, logSvc.Logger().With(logx.String("comp", "telegram")))
	if err != nil {
		logSvc.Close()
		return nil, fmt.Errorf("telegram: %w", err)
	}

	store, err := storage.Open(mapStorageConfig(cfg), logSvc.Logger().With(logx.String("comp", "storage")))
	if err != nil {
		logSvc.Close()
		return nil, fmt.Errorf("storage: %w", err)
	}

	clock, err := engine.NewZoneClock(engine.System(), cfg.Tracker.Timezone)
	if err != nil {
		logSvc.Close()
		return nil, fmt.Errorf("tracker.timezone: %w", err)
	}

	track := tracker.New(store, clock, cfg.Tracker.DefaultAlertLeadMinutes,
		logSvc.Logger().With(logx.String("comp", "tracker")))

	notif := notify.New(notify.Config{
		Target:     kit.ChatTarget{ChatID: cfg.Telegram.AlertChatID, ThreadID: cfg.Telegram.AlertThreadID},
		RatePerSec: cfg.Tracker.NotifyRatePerSec,
		RetryMax:   3,
	}, ad, logSvc.Logger().With(logx.String("comp", "notify")))

	poll := poller.New(poller.Config{
		Interval: cfg.PollInterval(),
		Location: clock.Location(),
	}, track.RunPass, logSvc.Logger().With(logx.String("comp", "poller")))

	cmdm := commands.NewManager(ad, logSvc.Logger().With(logx.String("comp", "commands")))

	a := &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		store:   store,
		adapter: ad,
		clock:   clock,
		track:   track,
		notif:   notif,
		poll:    poll,
		cmdm:    cmdm,
		updates: make(chan kit.Update, 256),
	}

	track.SetSink(func(ctx context.Context, alert engine.Alert) {
		_ = notif.Send(commands.FormatAlert(alert, a.zoneClock().Location()))
	})
	cmdm.SetRegistry(commands.Registry(commands.Deps{
		Tracker: track,
		Clock:   a.zoneClock,
	}))

	return a, nil
}

func (a *App) zoneClock() *engine.ZoneClock {
	a.clockMu.Lock()
	defer a.clockMu.Unlock()
	return a.clock
}

func (a *App) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.runCancel = cancel

	a.cfgm.SetLogger(a.logs.Logger().With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		return cfg.Validate()
	})

	if err := a.adapter.Start(runCtx, a.updates); err != nil {
		cancel()
		return fmt.Errorf("start telegram: %w", err)
	}
	a.track.Start(runCtx)
	a.notif.Start(runCtx)
	a.poll.Start(runCtx)

	a.loopWG.Add(1)
	go func() {
		defer a.loopWG.Done()
		_ = a.cmdm.DispatchLoop(runCtx, a.updates)
	}()

	sub := a.cfgm.Subscribe(8)
	a.loopWG.Add(1)
	go func() {
		defer a.loopWG.Done()
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(runCtx, sub)
	}()

	a.loopWG.Add(1)
	go func() {
		defer a.loopWG.Done()
		_ = a.cfgm.Watch(runCtx)
	}()

	if sent, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		a.log.Debug("sd_notify failed", logx.Err(err))
	} else if sent {
		a.log.Debug("sd_notify ready sent")
	}

	a.log.Info("app started")
	return nil
}

// reloadLoop applies hot config changes. Logging applies live; tracker and
// poller pick up timezone, lead and interval changes; storage and telegram
// token changes need a restart.
func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config) {
	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: keep only the latest config.
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						newCfg = newer
					}
				default:
					goto APPLY
				}
			}
		APPLY:
			sections, attrs := config.SummarizeChange(lastApplied, newCfg)
			lastApplied = newCfg
			if len(sections) == 0 {
				a.log.Debug("config reload received, but no effective changes detected")
				continue
			}

			a.logs.Apply(logx.Config{
				Level:   newCfg.Logging.Level,
				Console: newCfg.Logging.Console,
				File: logx.FileConfig{
					Enabled: newCfg.Logging.File.Enabled,
					Path:    newCfg.Logging.File.Path,
				},
			})

			for _, s := range sections {
				switch s {
				case "storage":
					a.log.Warn("storage config changed; restart required for changes to take effect")
				case "telegram":
					a.log.Warn("telegram config changed; token/chat changes require a restart")
				case "tracker":
					a.applyTrackerConfig(newCfg)
				}
			}

			fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
			a.log.Info("config reloaded", fields...)
		}
	}
}

func (a *App) applyTrackerConfig(cfg *config.Config) {
	clock, err := engine.NewZoneClock(engine.System(), cfg.Tracker.Timezone)
	if err != nil {
		// Validator checks the zone before publish; only a zoneinfo db change
		// underneath a running process can get here.
		a.log.Warn("invalid timezone on reload; keeping previous", logx.Err(err))
		clock = a.zoneClock()
	}
	a.clockMu.Lock()
	a.clock = clock
	a.clockMu.Unlock()

	a.track.Apply(clock, cfg.Tracker.DefaultAlertLeadMinutes)
	a.notif.Apply(notify.Config{
		Target:     kit.ChatTarget{ChatID: cfg.Telegram.AlertChatID, ThreadID: cfg.Telegram.AlertThreadID},
		RatePerSec: cfg.Tracker.NotifyRatePerSec,
		RetryMax:   3,
	})
	a.poll.Apply(poller.Config{
		Interval: cfg.PollInterval(),
		Location: clock.Location(),
	})
}

func (a *App) Stop(ctx context.Context) error {
	a.log.Info("stopping")
	if sent, err := daemon.SdNotify(false, daemon.SdNotifyStopping); err == nil && sent {
		a.log.Debug("sd_notify stopping sent")
	}

	if a.runCancel != nil {
		a.runCancel()
	}

	// Run a shutdown step with an upper bound so one component can't stall
	// the whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx := ctx
		var cancel context.CancelFunc
		if max > 0 {
			if dl, ok := ctx.Deadline(); ok {
				if rem := time.Until(dl); rem > 0 && rem < max {
					max = rem
				}
			}
			stepCtx, cancel = context.WithTimeout(ctx, max)
			defer cancel()
		}

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Duration("elapsed", time.Since(start)),
			)
		}
	}

	step("poller", 2*time.Second, func(c context.Context) error { a.poll.Stop(c); return nil })
	step("notify", 2*time.Second, func(c context.Context) error { a.notif.Stop(c); return nil })
	step("adapter", 2*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })
	step("storage", 1*time.Second, func(c context.Context) error { return a.store.Close() })
	step("loops", 2*time.Second, func(c context.Context) error {
		done := make(chan struct{})
		go func() {
			a.loopWG.Wait()
			close(done)
		}()
		select {
		case <-done:
			return nil
		case <-c.Done():
			return c.Err()
		}
	})

	a.log.Info("stopped")
	if a.logs != nil {
		a.logs.Close()
	}
	return nil
}

func mapStorageConfig(cfg *config.Config) storage.Config {
	out := storage.Config{Driver: "file", Path: "./bosses.json"}
	if cfg.Storage == nil {
		return out
	}
	if d := strings.TrimSpace(cfg.Storage.Driver); d != "" {
		out.Driver = d
	}
	if p := strings.TrimSpace(cfg.Storage.Path); p != "" {
		out.Path = p
	}
	if bt, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout); err == nil {
		out.BusyTimeout = bt
	}
	return out
}
