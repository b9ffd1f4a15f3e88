// Package app assembles the engine: config, logging, storage, dispatcher,
// scheduler and the reminder service, plus the background loops that keep
// them honest.
package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"dailyremind/internal/config"
	"dailyremind/internal/dispatch"
	"dailyremind/internal/eventbus"
	"dailyremind/internal/ledger"
	"dailyremind/internal/recurrence"
	"dailyremind/internal/reminders"
	"dailyremind/internal/scheduler"
	"dailyremind/internal/stats"
	"dailyremind/internal/store"
	logx "dailyremind/pkg/logx"
)

type App struct {
	cfgm *config.Manager
	logs *logx.Service
	log  logx.Logger

	store     store.Store
	bus       eventbus.Bus
	ledger    *ledger.Ledger
	stats     *stats.Aggregator
	local     *dispatch.Local
	scheduler *scheduler.Service
	reminders *reminders.Service

	sweep      *cron.Cron
	sweepEvery time.Duration

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logs, log := logx.New(cfg.Logging.Logx())
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	stCfg, err := cfg.Storage.Store()
	if err != nil {
		return nil, err
	}
	st, err := store.Open(stCfg, log.With(logx.String("comp", "store")))
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	loc, err := cfg.Scheduler.Location()
	if err != nil {
		return nil, err
	}
	schedCfg, err := cfg.Scheduler.Scheduler()
	if err != nil {
		return nil, err
	}
	sweepEvery, err := cfg.Scheduler.SweepInterval()
	if err != nil {
		return nil, err
	}

	bus := eventbus.New()
	led := ledger.New(st, log.With(logx.String("comp", "ledger")))
	agg := stats.New(st, led, loc, log.With(logx.String("comp", "stats")))
	res := recurrence.New(loc)

	local := dispatch.NewLocal(cfg.Dispatch.Local(), log.With(logx.String("comp", "dispatch")))
	if tc := cfg.Dispatch.Telegram; tc != nil {
		sink, err := dispatch.NewTelegramSink(dispatch.TelegramConfig{
			Token:  tc.Token,
			ChatID: tc.ChatID,
		}, log.With(logx.String("comp", "telegram")))
		if err != nil {
			return nil, fmt.Errorf("telegram sink: %w", err)
		}
		local.SetSink(sink)
	}

	sched := scheduler.New(schedCfg, st, led, agg, res, local, bus, loc,
		log.With(logx.String("comp", "scheduler")))
	local.SetHandler(sched)

	rem := reminders.New(st, led, agg, sched, log.With(logx.String("comp", "reminders")))

	return &App{
		cfgm:       cfgm,
		logs:       logs,
		log:        log,
		store:      st,
		bus:        bus,
		ledger:     led,
		stats:      agg,
		local:      local,
		scheduler:  sched,
		reminders:  rem,
		sweepEvery: sweepEvery,
	}, nil
}

// Accessors for the app surface.
func (a *App) Reminders() *reminders.Service { return a.reminders }
func (a *App) Scheduler() *scheduler.Service { return a.scheduler }
func (a *App) Stats() *stats.Aggregator      { return a.stats }
func (a *App) Ledger() *ledger.Ledger        { return a.ledger }
func (a *App) Store() store.Store            { return a.store }
func (a *App) Bus() eventbus.Bus             { return a.bus }
func (a *App) Logger() logx.Logger           { return a.log }

// Start brings the engine up: dispatcher workers, permission request,
// reconciliation of executions left pending across downtime, scheduling of
// every active reminder, then the sweep and config-reload loops.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.started {
		return nil
	}

	runCtx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	a.local.Start(runCtx)

	if _, err := a.scheduler.Init(ctx); err != nil {
		cancel()
		return fmt.Errorf("start: %w", err)
	}
	if err := a.scheduler.Reconcile(ctx); err != nil {
		a.log.Warn("startup reconciliation incomplete", logx.Err(err))
	}
	if err := a.scheduler.ScheduleAll(ctx); err != nil {
		a.log.Warn("startup scheduling incomplete", logx.Err(err))
	}

	a.sweep = cron.New()
	_, err := a.sweep.AddFunc(fmt.Sprintf("@every %s", a.sweepEvery), func() {
		sctx, cancel := context.WithTimeout(runCtx, a.sweepEvery)
		defer cancel()
		if err := a.scheduler.Reconcile(sctx); err != nil {
			a.log.Warn("reconciliation sweep failed", logx.Err(err))
		}
	})
	if err != nil {
		cancel()
		return fmt.Errorf("start sweep: %w", err)
	}
	a.sweep.Start()

	a.wg.Add(2)
	go func() {
		defer a.wg.Done()
		_ = a.cfgm.Watch(runCtx)
	}()
	go func() {
		defer a.wg.Done()
		a.reloadLoop(runCtx)
	}()

	a.started = true
	a.log.Info("engine started")
	return nil
}

// reloadLoop applies hot config reloads: logging always, dispatcher and
// storage changes only take effect on restart.
func (a *App) reloadLoop(ctx context.Context) {
	ch := a.cfgm.Subscribe(1)
	defer a.cfgm.Unsubscribe(ch)
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-ch:
			if !ok || cfg == nil {
				return
			}
			a.logs.Apply(cfg.Logging.Logx())
			a.log.Info("logging config applied")
		}
	}
}

// Stop winds the engine down. Outstanding timers die with the dispatcher;
// pending executions stay pending and the next start reconciles them.
func (a *App) Stop(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.started {
		return nil
	}
	a.started = false

	if a.sweep != nil {
		stopCtx := a.sweep.Stop()
		select {
		case <-stopCtx.Done():
		case <-ctx.Done():
		}
	}
	a.cancel()
	a.local.Stop(ctx)
	a.wg.Wait()

	err := a.store.Close()
	a.log.Info("engine stopped")
	if cerr := a.logs.Close(); err == nil {
		err = cerr
	}
	return err
}
