package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"hwbot/internal/config"
	"hwbot/internal/eventbus"
	"hwbot/internal/homework"
	"hwbot/internal/notifier"
	"hwbot/internal/observability/httpserver"
	"hwbot/internal/runtime/supervisor"
	"hwbot/internal/storage"
	"hwbot/internal/transport/telegram"
	"hwbot/internal/watcher"
	"hwbot/pkg/logx"
	"hwbot/pkg/systemd"
)

const recentEvents = 200

type App struct {
	cfgm *config.ConfigManager
	sup  *supervisor.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	rec   *eventbus.Recorder
	store storage.Store

	client  *homework.Client
	adapter *telegram.Adapter
	notif   *notifier.Service
	watch   *watcher.Service
	http    *httpserver.Service
}

// New loads the configuration and builds every component. Nothing runs until Start.
func New(ctx context.Context, cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfgm.SetOverlay(config.EnvOverlay())
	cfgm.SetValidator(config.Validator)
	cfg, err := cfgm.Load(ctx)
	if err != nil {
		return nil, err
	}
	return build(cfgm, cfg)
}

func build(cfgm *config.ConfigManager, cfg *config.Config) (*App, error) {
	// Telegram logging is enabled only after the sender and target exist.
	logCfg := mapLogConfig(cfg)
	bootCfg := logCfg
	bootCfg.Telegram.Enabled = false
	logSvc, log := logx.New(bootCfg, nil)
	fail := func(err error) (*App, error) {
		_ = logSvc.Close()
		return nil, err
	}

	bus := eventbus.New()

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return fail(err)
	}
	store, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		return fail(fmt.Errorf("storage: %w", err))
	}
	closeStore := func() {
		if store != nil {
			_ = store.Close()
		}
	}

	cc, err := mapClientConfig(cfg)
	if err != nil {
		closeStore()
		return fail(err)
	}
	client, err := homework.NewClient(cc, log.With(logx.String("comp", "practicum")))
	if err != nil {
		closeStore()
		return fail(err)
	}

	tc, err := mapTelegramConfig(cfg)
	if err != nil {
		closeStore()
		return fail(err)
	}
	ad, err := telegram.New(tc, log.With(logx.String("comp", "telegram")))
	if err != nil {
		closeStore()
		return fail(fmt.Errorf("telegram: %w", err))
	}

	logSvc.SetSender(ad)
	logSvc.SetTelegramTarget(logTarget(cfg))
	logSvc.Apply(logCfg)
	log = log.With(logx.String("comp", "app"))

	nc, err := mapNotifierConfig(cfg)
	if err != nil {
		closeStore()
		return fail(err)
	}
	notif := notifier.New(nc, ad, log.With(logx.String("comp", "notifier")), bus, store)

	wc, err := mapWatcherConfig(cfg)
	if err != nil {
		closeStore()
		return fail(err)
	}
	watch, err := watcher.New(wc, client, notif, store, bus, log.With(logx.String("comp", "watcher")))
	if err != nil {
		closeStore()
		return fail(err)
	}
	ad.SetStatusFunc(func() string { return watcher.FormatStatus(watch.Snapshot()) })

	rec := eventbus.NewRecorder(recentEvents)
	hc, err := mapHTTPConfig(cfg)
	if err != nil {
		closeStore()
		return fail(err)
	}
	httpSvc := httpserver.New(hc, httpserver.Sources{
		Watcher: watch.Snapshot,
		History: notif.Snapshot,
		Journal: store,
		Events:  rec.Recent,
	}, log.With(logx.String("comp", "http")))

	log.Info("configured",
		logx.String("config", cfgm.Path()),
		logx.String("endpoint", client.Endpoint()),
		logx.String("storage", sc.Driver),
		logx.String("schedule", watch.Snapshot().Schedule),
		logx.Int64("chat_id", cfg.Telegram.ChatID),
		logx.String("bot", ad.Username()),
	)

	return &App{
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     bus,
		rec:     rec,
		store:   store,
		client:  client,
		adapter: ad,
		notif:   notif,
		watch:   watch,
		http:    httpSvc,
	}, nil
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Watcher() *watcher.Service { return a.watch }

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))

	if err := a.adapter.Start(a.sup.Context()); err != nil {
		return err
	}
	if a.http.Enabled() {
		a.http.Start(a.sup.Context())
	}

	recorded, unsubRec := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.record", func(c context.Context) {
		defer unsubRec()
		a.rec.Run(c, recorded)
	})

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	a.sup.Go("watcher", a.watch.Run)

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config.
				for drained := false; !drained; {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						drained = true
					}
				}
				a.applyConfig(c, lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})

	a.sup.Go("config.watch", a.cfgm.Watch)

	if _, err := systemd.Ready(); err != nil {
		a.log.Warn("sd_notify ready failed", logx.Err(err))
	}
	if wd, err := systemd.WatchdogInterval(); err != nil {
		a.log.Warn("watchdog interval unavailable", logx.Err(err))
	} else if wd > 0 {
		a.sup.Go0("systemd.watchdog", func(c context.Context) {
			systemd.RunWatchdog(c, wd, a.log)
		})
	}

	a.log.Info("app started")
	return nil
}

func (a *App) applyConfig(ctx context.Context, oldCfg, newCfg *config.Config) {
	sections, attrs := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Debug("config change summary", fields...)
	_, _ = systemd.Reloading()
	defer func() { _, _ = systemd.Ready() }()
	if restart := config.NeedsRestart(sections); len(restart) > 0 {
		a.log.Warn("config changed in sections applied at startup only; restart required",
			logx.String("sections", strings.Join(restart, ",")))
	}

	// Log target first so Apply() sees the final chat.
	a.logs.SetTelegramTarget(logTarget(newCfg))
	a.logs.Apply(mapLogConfig(newCfg))

	if nc, err := mapNotifierConfig(newCfg); err != nil {
		a.log.Warn("invalid notifier config; keeping previous", logx.Err(err))
	} else {
		a.notif.Apply(nc)
	}

	if wc, err := mapWatcherConfig(newCfg); err != nil {
		a.log.Warn("invalid poller config; keeping previous", logx.Err(err))
	} else if err := a.watch.Apply(wc); err != nil {
		a.log.Warn("poller config rejected; keeping previous", logx.Err(err))
	}

	if hc, err := mapHTTPConfig(newCfg); err != nil {
		a.log.Warn("invalid http config; keeping previous", logx.Err(err))
	} else {
		a.http.Apply(ctx, hc)
	}

	a.log.Info("config reloaded", fields...)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		a.closeResources()
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	if _, err := systemd.Stopping(); err != nil {
		a.log.Debug("sd_notify stopping failed", logx.Err(err))
	}

	// Cancel first so the watcher loop and config goroutines unwind immediately.
	a.sup.Cancel()

	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx := ctx
		if max > 0 {
			if dl, ok := ctx.Deadline(); ok {
				if rem := time.Until(dl); rem < max {
					max = rem
				}
			}
			if max <= 0 {
				a.log.Warn("stop step skipped (deadline reached)", logx.String("name", name))
				return
			}
			var cancel context.CancelFunc
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
			if err != nil && !errors.Is(err, context.Canceled) {
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

	step("http", time.Second, func(c context.Context) error { a.http.Stop(c); return nil })
	step("supervisor", 3*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	step("telegram", 2*time.Second, a.adapter.Stop)

	a.log.Info("stopped")
	a.closeResources()
	return nil
}

func (a *App) closeResources() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("storage close failed", logx.Err(err))
		}
	}
	if a.logs != nil {
		_ = a.logs.Close()
	}
}

// Run starts the app and blocks until ctx is cancelled or a component fails.
func Run(ctx context.Context, cfgPath string) error {
	a, err := New(ctx, cfgPath)
	if err != nil {
		return err
	}
	if err := a.Start(ctx); err != nil {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.Stop(stopCtx, StopFatalError)
		return err
	}

	select {
	case <-ctx.Done():
	case <-a.Done():
	}
	reason := StopAppStop
	switch {
	case a.Err() != nil:
		reason = StopFatalError
	case ctx.Err() != nil:
		reason = StopSignal
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer cancel()
	_ = a.Stop(stopCtx, reason)
	return a.Err()
}
