// Package app wires configuration, the classroom source, both loops, the
// notifier and destination platforms into one process.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"classbot/internal/auth"
	"classbot/internal/classroom"
	"classbot/internal/config"
	"classbot/internal/eventbus"
	"classbot/internal/notifier"
	"classbot/internal/observability/metrics"
	"classbot/internal/observability/ops"
	"classbot/internal/poller"
	"classbot/internal/reminder"
	"classbot/internal/routing"
	rtsup "classbot/internal/runtime/supervisor"
	"classbot/internal/snapshot"
	"classbot/internal/storage"
	kit "classbot/internal/transport"
	"classbot/internal/transport/discord"
	"classbot/internal/transport/telegram"
	logx "classbot/pkg/logx"
)

// loopStopGrace bounds how long Stop waits for the poll and reminder loops.
const loopStopGrace = 4 * time.Second

type Options struct {
	// Prompt obtains the OAuth code on first run; nil reads stdin.
	Prompt auth.PromptFunc
}

type App struct {
	cfgm *config.ConfigManager
	sup  *rtsup.Supervisor
	// loops owns auth, the poll loop and the reminder loop.
	loops *rtsup.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	auth      *auth.Authenticator
	platforms *kit.Multi
	discord   *discord.Platform
	telegram  *telegram.Platform

	resolver  *routing.Resolver
	formatter *notifier.Formatter
	notif     *notifier.Service
	snaps     *snapshot.Store
	roster    *snapshot.Roster
	poll      *poller.Poller
	remind    *reminder.Loop
	metrics   *metrics.Collector
	ops       *ops.Service

	remindMu     sync.Mutex
	remindCancel context.CancelFunc
	remindDone   chan struct{}
}

func New(cfgPath string, opts Options) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := validate(context.Background(), cfg); err != nil {
		return nil, err
	}
	cfgm.SetValidator(validate)

	bootLog := logx.NewConsole("INFO")

	var tg *telegram.Platform
	if cfg.Telegram.Enabled {
		tg, err = telegram.New(telegram.Config{Token: cfg.Telegram.Token, Groups: mapTelegramGroups(cfg)}, bootLog)
		if err != nil {
			return nil, err
		}
	}

	// The chat target must be set before the chat sink is enabled, or Apply warns.
	var sender kit.TextSender
	if tg != nil {
		sender = tg
	}
	logCfg := mapLogConfig(cfg)
	bootCfg := logCfg
	bootCfg.Chat.Enabled = false
	logSvc, log := logx.New(bootCfg, sender)
	logSvc.SetChatTarget(cfg.Telegram.LogChatID, cfg.Logging.Chat.ThreadID)
	logSvc.Apply(logCfg)
	cfgm.SetLogger(log.With(logx.String("comp", "config")))
	appLog := log.With(logx.String("comp", "app"))

	var dc *discord.Platform
	if cfg.Discord.Enabled {
		dcfg, err := mapDiscordConfig(cfg)
		if err != nil {
			return nil, err
		}
		if dc, err = discord.New(dcfg, log); err != nil {
			return nil, err
		}
	}
	var platforms []kit.Platform
	if dc != nil {
		platforms = append(platforms, dc)
	}
	if tg != nil {
		platforms = append(platforms, tg)
	}
	multi := kit.NewMulti(platforms...)

	bus := eventbus.New()

	var store storage.Store
	if sc, enabled, err := mapStorageConfig(cfg); err != nil {
		return nil, err
	} else if enabled {
		if store, err = storage.Open(sc, log.With(logx.String("comp", "storage"))); err != nil {
			return nil, err
		}
		appLog.Info("storage enabled", logx.String("driver", sc.Driver))
	}

	creds, token := credentialsFiles(cfg)
	prompt := opts.Prompt
	if prompt == nil {
		prompt = auth.ConsolePrompt(os.Stdin, log)
	}
	authn := auth.New(auth.Options{CredentialsFile: creds, TokenFile: token, Prompt: prompt}, log)

	copts, err := mapClassroomOptions(cfg)
	if err != nil {
		return nil, err
	}
	copts.Transport = authn.Transport()
	client := classroom.NewClient(copts)

	lookup := config.NewLookup(cfg, lookupWarn(log))
	resolver := routing.NewResolver(lookup)
	roster := snapshot.NewRoster()
	formatter := notifier.NewFormatter(lookup, roster)

	ncfg, err := mapNotifierConfig(cfg)
	if err != nil {
		return nil, err
	}
	notif := notifier.New(ncfg, multi, resolver, log, bus, store)

	snaps := snapshot.NewStore()
	concurrency := batchConcurrency(cfg)
	poll := poller.New(poller.Deps{
		Ready:       authn.Ready(),
		Fetcher:     snapshot.NewFetcher(client, concurrency, log),
		Store:       snaps,
		Roster:      roster,
		Teachers:    client,
		Groups:      multi,
		Formatter:   formatter,
		Notifier:    notif,
		Bus:         bus,
		Log:         log,
		Concurrency: concurrency,
	}, pollSettings(cfg, lookup, appLog))

	remind := reminder.New(reminder.Deps{
		Ready:     authn.Ready(),
		Store:     snaps,
		Groups:    multi,
		Formatter: formatter,
		Notifier:  notif,
		Bus:       bus,
		Log:       log,
	}, reminderSettings(lookup, appLog))

	opsCfg, err := mapOpsConfig(cfg)
	if err != nil {
		return nil, err
	}
	coll := metrics.New()

	a := &App{
		cfgm:      cfgm,
		log:       appLog,
		logs:      logSvc,
		bus:       bus,
		store:     store,
		auth:      authn,
		platforms: multi,
		discord:   dc,
		telegram:  tg,
		resolver:  resolver,
		formatter: formatter,
		notif:     notif,
		snaps:     snaps,
		roster:    roster,
		poll:      poll,
		remind:    remind,
		metrics:   coll,
	}
	a.ops = ops.New(opsCfg, ops.Routes{
		Health:     a.Health,
		Metrics:    coll.Handler(),
		Deliveries: a.recentDeliveries,
	}, log)
	return a, nil
}

func lookupWarn(log logx.Logger) func(string, error) {
	return func(key string, err error) {
		log.Warn("config value ignored; using default", logx.String("key", key), logx.Err(err))
	}
}

// Done is closed when the app supervisor context is canceled.
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	if a.platforms.Len() == 0 {
		return errors.New("no destination platform enabled")
	}
	a.sup = rtsup.NewSupervisor(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	a.loops = rtsup.NewSupervisor(a.sup.Context(),
		rtsup.WithLogger(a.log.With(logx.String("comp", "loops"))),
		rtsup.WithCancelOnError(false),
	)

	a.sup.Go("metrics", func(c context.Context) error { return a.metrics.Run(c, a.bus) })
	a.notif.Start(a.sup.Context())
	a.ops.Start(a.sup.Context())

	// A failed handshake is retried; loops stay in "authenticating" until it succeeds.
	a.loops.GoRestart("auth", a.auth.Run,
		rtsup.WithRestartBackoff(5*time.Second, 5*time.Minute),
	)
	a.loops.Go0("auth.ready", func(c context.Context) {
		select {
		case <-c.Done():
		case <-a.auth.Ready():
			a.bus.Publish(eventbus.Event{Type: eventbus.TypeAuthReady, Time: time.Now()})
		}
	})
	a.loops.Go("poll", a.poll.Run)
	if config.NewLookup(a.cfgm.Get(), nil).ReminderEnabled() {
		a.startReminder()
	}

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
				a.log.Debug("event", logx.String("type", e.Type), logx.Any("data", e.Data))
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		last := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case next, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts.
				for drained := false; !drained; {
					select {
					case newer := <-sub:
						if newer != nil {
							next = newer
						}
					default:
						drained = true
					}
				}
				a.applyConfig(c, last, next)
				last = next
			}
		}
	})
	a.sup.Go("config.watch", a.cfgm.Watch)

	a.log.Info("app started", logx.Int("platforms", a.platforms.Len()))
	return nil
}

func (a *App) startReminder() {
	a.remindMu.Lock()
	defer a.remindMu.Unlock()
	if a.remindCancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(a.loops.Context())
	done := make(chan struct{})
	a.remindCancel, a.remindDone = cancel, done
	a.loops.Go("reminder", func(context.Context) error {
		defer close(done)
		return a.remind.Run(ctx)
	})
}

func (a *App) stopReminder(ctx context.Context) {
	a.remindMu.Lock()
	cancel, done := a.remindCancel, a.remindDone
	a.remindCancel, a.remindDone = nil, nil
	a.remindMu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	select {
	case <-done:
	case <-ctx.Done():
	}
}

func (a *App) applyConfig(ctx context.Context, prev, next *config.Config) {
	sections, attrs := config.SummarizeConfigChange(prev, next)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}

	for _, s := range sections {
		switch s {
		case "storage", "classroom":
			a.log.Warn("config section changed; restart required for changes to take effect", logx.String("section", s))
		}
	}
	if prev.Discord.Enabled != next.Discord.Enabled || prev.Telegram.Enabled != next.Telegram.Enabled ||
		prev.Discord.Token != next.Discord.Token || prev.Telegram.Token != next.Telegram.Token {
		a.log.Warn("platform enablement or token changed; restart required")
	}

	a.logs.SetChatTarget(next.Telegram.LogChatID, next.Logging.Chat.ThreadID)
	a.logs.Apply(mapLogConfig(next))

	lookup := config.NewLookup(next, lookupWarn(a.log))
	a.resolver.Apply(lookup)
	a.formatter.Apply(lookup)
	a.poll.Apply(pollSettings(next, lookup, a.log))
	a.remind.Apply(reminderSettings(lookup, a.log))

	if ncfg, err := mapNotifierConfig(next); err != nil {
		a.log.Warn("invalid notifier config; keeping previous", logx.Err(err))
	} else {
		a.notif.Apply(ncfg)
	}
	if a.telegram != nil {
		a.telegram.SetGroups(mapTelegramGroups(next))
	}
	if a.discord != nil {
		a.discord.SetNewsChannel(next.Discord.NewsChannelName)
	}

	wasOn := config.NewLookup(prev, nil).ReminderEnabled()
	switch isOn := lookup.ReminderEnabled(); {
	case wasOn && !isOn:
		a.log.Info("reminder loop disabled via config")
		stopCtx, cancel := context.WithTimeout(ctx, loopStopGrace)
		a.stopReminder(stopCtx)
		cancel()
	case !wasOn && isOn:
		a.log.Info("reminder loop enabled via config")
		a.startReminder()
	}

	if oc, err := mapOpsConfig(next); err != nil {
		a.log.Warn("invalid ops config; keeping previous", logx.Err(err))
	} else {
		a.ops.Reconfigure(ctx, oc)
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

// Stop cancels both loops, waits for them, then releases outward-facing
// resources in dependency order. Each step is bounded.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))

	step := func(name string, limit time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx, cancel := context.WithTimeout(ctx, limit)
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
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
		}
	}

	step("loops", loopStopGrace, func(c context.Context) error {
		a.loops.Cancel()
		return a.loops.Wait(c)
	})
	step("ops", time.Second, func(c context.Context) error { a.ops.Stop(c); return nil })
	step("notifier", time.Second, func(c context.Context) error { a.notif.Stop(c); return nil })
	step("platforms", time.Second, func(context.Context) error {
		if a.discord != nil {
			a.discord.Close()
		}
		if a.telegram != nil {
			a.telegram.Close()
		}
		return nil
	})
	step("storage", time.Second, func(context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})

	a.sup.Cancel()
	step("supervisor", 2*time.Second, a.sup.Wait)

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}

func (a *App) Logger() logx.Logger { return a.log }
