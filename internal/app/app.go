// Package app wires the components together: config, logging, storage,
// the search aggregator, the notification fanout, the cycle coordinator,
// the command router, and the Telegram adapter.
package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"tubewatch/internal/bot"
	"tubewatch/internal/config"
	"tubewatch/internal/eventbus"
	"tubewatch/internal/health"
	"tubewatch/internal/notify"
	rtsup "tubewatch/internal/runtime/supervisor"
	"tubewatch/internal/scheduler"
	"tubewatch/internal/search"
	"tubewatch/internal/storage"
	kit "tubewatch/internal/transport"
	telegram "tubewatch/internal/transport/telegram/adapter"
	logx "tubewatch/pkg/logx"
)

// startupSearchDelay is the grace period between process start and the
// first search cycle, so restarts do not hammer the search backend.
const startupSearchDelay = 30 * time.Second

type App struct {
	cfgPath string

	cfgm *config.Manager
	sup  *rtsup.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	ledger   *storage.Ledger
	registry *storage.Registry
	audit    storage.AuditStore

	agg    *search.Aggregator
	fan    *notify.Fanout
	coord  *scheduler.Coordinator
	router *bot.Router
	hlth   *health.Service

	adapter kit.Adapter
	updates chan kit.Update

	optMu   sync.Mutex
	botOpts bot.Options
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	bootLog := logx.NewConsole("INFO").With(logx.String("comp", "telegram"))

	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	ad, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, bootLog)
	if err != nil {
		return nil, err
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

	bus := eventbus.New()

	ledger, err := storage.OpenLedger(
		orDefault(cfg.Ledger.File, defaultLedgerFile),
		cfg.Ledger.MaxEntries,
		log.With(logx.String("comp", "ledger")),
	)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	registry, err := storage.OpenRegistry(
		orDefault(cfg.Users.File, defaultUsersFile),
		cfg.Users.Max,
		log.With(logx.String("comp", "registry")),
	)
	if err != nil {
		return nil, fmt.Errorf("open registry: %w", err)
	}
	audit, err := storage.OpenAudit(mapAuditConfig(cfg), log.With(logx.String("comp", "audit")))
	if err != nil {
		return nil, fmt.Errorf("open audit store: %w", err)
	}
	if audit != nil {
		log.Info("delivery audit enabled", logx.String("driver", cfg.Audit.Driver))
	}

	endpoint, err := requireEndpoint(cfg)
	if err != nil {
		return nil, err
	}
	client, err := search.NewHTTPClient(endpoint, 0)
	if err != nil {
		return nil, err
	}
	searchOpts, err := mapSearchOptions(cfg)
	if err != nil {
		return nil, err
	}
	agg := search.NewAggregator(client, ledger, searchOpts, log.With(logx.String("comp", "search")))

	fan := notify.NewFanout(ad, registry, audit, mapFanoutTargets(cfg), cfg.Notify.RatePerSec,
		log.With(logx.String("comp", "notify")))

	set, err := mapSchedulerSettings(cfg)
	if err != nil {
		return nil, err
	}
	coord := scheduler.New(agg, fan, ledger, bus, set, log.With(logx.String("comp", "scheduler")))

	hlth := health.New(mapHealthConfig(cfg), coord.Status, registry.Stats,
		log.With(logx.String("comp", "health")))

	a := &App{
		cfgPath:  cfgPath,
		cfgm:     cfgm,
		log:      log,
		logs:     logSvc,
		bus:      bus,
		ledger:   ledger,
		registry: registry,
		audit:    audit,
		agg:      agg,
		fan:      fan,
		coord:    coord,
		hlth:     hlth,
		adapter:  ad,
		updates:  make(chan kit.Update, 256),
	}
	opts, err := mapBotOptions(cfg)
	if err != nil {
		return nil, err
	}
	a.botOpts = opts
	a.router = bot.New(ad, registry, coord, fan, bus, a.botOptions, log.With(logx.String("comp", "bot")))
	return a, nil
}

func (a *App) botOptions() bot.Options {
	a.optMu.Lock()
	defer a.optMu.Unlock()
	return a.botOpts
}

func (a *App) setBotOptions(opts bot.Options) {
	a.optMu.Lock()
	a.botOpts = opts
	a.optMu.Unlock()
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor, if any.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.NewSupervisor(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))

	// Transactional config reload: validate before commit/publish.
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(c context.Context, cfg *config.Config) error {
		if err := config.Validate(cfg); err != nil {
			return err
		}
		// Durations and the quiet window must map cleanly before a reload
		// is allowed to land.
		if _, err := mapSchedulerSettings(cfg); err != nil {
			return err
		}
		if _, err := mapSearchOptions(cfg); err != nil {
			return err
		}
		return nil
	})

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}
	if err := a.coord.Start(a.sup.Context()); err != nil {
		return err
	}
	a.hlth.Start(a.sup.Context())

	a.sup.Go0("bot.dispatch", func(c context.Context) {
		a.router.Run(c, a.updates)
	})

	// Forward registration events to admins and keep a debug trail of the rest.
	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.consume", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.consumeEvent(c, e)
			}
		}
	})

	a.sup.Go0("config.reload", func(c context.Context) {
		a.reloadLoop(c)
	})
	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	// Greet the admins, then run the first cycle after a short settle delay.
	a.sup.Go0("startup.kickoff", func(c context.Context) {
		a.fan.NotifyAdmins(c, "🤖 *Video monitor started.* First search in "+startupSearchDelay.String()+".")
		select {
		case <-c.Done():
			return
		case <-time.After(startupSearchDelay):
		}
		if err := a.coord.RunNow(c); err != nil {
			a.log.Warn("startup search cycle did not run", logx.Err(err))
		}
	})

	a.log.Info("app started")
	return nil
}

func (a *App) consumeEvent(ctx context.Context, e eventbus.Event) {
	switch e.Type {
	case eventbus.EventUserRegistered:
		if data, ok := e.Data.(map[string]any); ok {
			a.fan.NotifyAdmins(ctx, fmt.Sprintf("👤 New subscriber: %v (@%v)", data["first_name"], data["username"]))
		}
	case eventbus.EventCycleCompleted:
		a.log.Debug("cycle completed", logx.Any("stats", e.Data))
	default:
		a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
	}
}

// reloadLoop applies hot config changes to the live components.
func (a *App) reloadLoop(ctx context.Context) {
	sub := a.cfgm.Subscribe(8)
	defer a.cfgm.Unsubscribe(sub)

	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: keep only the latest config in the channel.
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
			sections, attrs := config.SummarizeConfigChange(lastApplied, newCfg)
			if len(sections) == 0 {
				a.log.Debug("config reload received, but no effective changes detected")
				lastApplied = newCfg
				continue
			}
			a.applyConfig(ctx, lastApplied, newCfg)
			lastApplied = newCfg
			a.bus.Publish(eventbus.Event{Type: eventbus.EventConfigReloaded, Data: sections})

			fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
			a.log.Info("config reloaded", fields...)
		}
	}
}

func (a *App) applyConfig(ctx context.Context, oldCfg, newCfg *config.Config) {
	a.logs.Apply(logx.Config{
		Level:   newCfg.Logging.Level,
		Console: newCfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: newCfg.Logging.File.Enabled,
			Path:    newCfg.Logging.File.Path,
		},
	})

	if searchOpts, err := mapSearchOptions(newCfg); err != nil {
		a.log.Warn("invalid search config; keeping previous", logx.Err(err))
	} else {
		a.agg.SetOptions(searchOpts)
	}

	a.fan.SetTargets(mapFanoutTargets(newCfg))
	a.fan.SetRate(newCfg.Notify.RatePerSec)

	if set, err := mapSchedulerSettings(newCfg); err != nil {
		a.log.Warn("invalid scheduler config; keeping previous", logx.Err(err))
	} else if err := a.coord.Apply(ctx, set); err != nil {
		a.log.Warn("scheduler settings not applied", logx.Err(err))
	}

	if opts, err := mapBotOptions(newCfg); err != nil {
		a.log.Warn("invalid bot config; keeping previous", logx.Err(err))
	} else {
		a.setBotOptions(opts)
	}

	if oldCfg != nil {
		if oldCfg.Search.Endpoint != newCfg.Search.Endpoint {
			a.log.Warn("search.endpoint changed; restart required for changes to take effect")
		}
		if oldCfg.Users.File != newCfg.Users.File || oldCfg.Ledger.File != newCfg.Ledger.File {
			a.log.Warn("storage paths changed; restart required for changes to take effect")
		}
		if oldCfg.Health != newCfg.Health {
			a.log.Warn("health server config changed; restart required for changes to take effect")
		}
	}
}

func (a *App) Stop(ctx context.Context) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping")

	// Tell the admins before the adapter goes down.
	noticeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	a.fan.NotifyAdmins(noticeCtx, "🛑 *Video monitor stopping.*")
	cancel()

	// Bound each shutdown step so one component cannot stall the stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()
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
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name))
		}
	}

	// Cycles run under the supervisor context. The coordinator drains first
	// so an in-flight batch finishes delivery before that context is canceled.
	step("scheduler", 5*time.Second, func(c context.Context) error { return a.coord.Stop(c) })

	a.sup.Cancel()

	step("health", 1*time.Second, func(c context.Context) error { a.hlth.Stop(c); return nil })
	step("adapter", 2*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })
	step("registry", 1*time.Second, func(c context.Context) error { a.registry.Flush(); return nil })
	step("audit", 1*time.Second, func(c context.Context) error {
		if a.audit != nil {
			return a.audit.Close()
		}
		return nil
	})
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	a.log.Info("stopped")
	if a.logs != nil {
		a.logs.Close()
	}
	return nil
}
