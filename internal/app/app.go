package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"petitchat/internal/config"
	"petitchat/internal/delivery"
	"petitchat/internal/runtime/supervisor"
	"petitchat/internal/scheduler"
	"petitchat/internal/source"
	"petitchat/internal/storage"
	"petitchat/internal/transport/telegram"
	logx "petitchat/pkg/logx"
)

func noopJob(context.Context) {}

type App struct {
	cfgPath string

	cfgm *config.ConfigManager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service

	store   storage.Store
	adapter *telegram.Adapter
	runner  *delivery.Runner
	loop    *scheduler.Loop
	notify  notifier

	stopOnce sync.Once
}

// NewApp loads and validates the config, then builds every component.
// Nothing runs until Start.
func NewApp(cfgPath string, env config.Env) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfgm.SetOverlay(env.Overlay)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	fetchOpts, fetchTimeout, err := mapFetchOptions(cfg)
	if err != nil {
		return nil, err
	}
	delivOpts, err := mapDeliveryOptions(cfg, fetchTimeout)
	if err != nil {
		return nil, err
	}

	bootLog := logx.NewConsole("INFO").With(logx.String("comp", "telegram"))
	ad, err := telegram.New(telegram.Config{
		Token:   cfg.Telegram.Token,
		APIURL:  cfg.Telegram.APIURL,
		Timeout: delivOpts.SendTimeout,
	}, bootLog)
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}

	// logx.New applies immediately; set the Telegram target before enabling
	// that sink so Apply does not warn about a missing chat.
	logCfg := mapLogConfig(cfg)
	bootCfg := logCfg
	bootCfg.Telegram.Enabled = false
	logSvc, log := logx.New(bootCfg, ad)
	if chatID, ok := parseChatID(cfg.Telegram.GroupLog); ok {
		logSvc.SetTelegramTarget(chatID, cfg.Logging.Telegram.ThreadID)
	}
	logSvc.Apply(logCfg)

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}
	log.Info("storage opened", logx.String("driver", sc.Driver), logx.String("path", sc.Path))
	log.Info("channels configured", logx.Any("ids", cfg.ChannelIDs()))

	fetcher := source.NewMux(fetchOpts)
	dlog := log.With(logx.String("comp", "delivery"))
	sel := delivery.NewSelector(fetcher, delivOpts, dlog)
	coord := delivery.NewCoordinator(sel, ad, store, delivOpts, dlog)
	runner := delivery.NewRunner(mapChannels(cfg), store, coord, dlog)

	a := &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log.With(logx.String("comp", "app")),
		logs:    logSvc,
		store:   store,
		adapter: ad,
		runner:  runner,
		notify:  sdNotifier(log.With(logx.String("comp", "systemd"))),
	}

	loop, err := scheduler.New(mapSchedulerConfig(cfg), a.runCycle, log.With(logx.String("comp", "scheduler")))
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	a.loop = loop
	return a, nil
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

// RunOnce runs a single delivery cycle outside the schedule.
func (a *App) RunOnce(ctx context.Context) delivery.Report {
	return a.runner.RunCycle(ctx)
}

func (a *App) runCycle(ctx context.Context) {
	a.runner.RunCycle(ctx)
	a.notify(daemon.SdNotifyWatchdog)
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx,
		supervisor.WithLogger(a.log),
		supervisor.WithCancelOnError(true),
	)

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		return validateConfig(cfg)
	})

	a.sup.Go0("telegram.check", a.checkTelegram)
	a.sup.Go("delivery.loop", func(c context.Context) error {
		return a.loop.Run(c)
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
	})
	a.sup.GoRestart("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	}, supervisor.WithRestartBackoff(time.Second, 30*time.Second))

	a.notify(daemon.SdNotifyReady)
	a.log.Info("app started",
		logx.String("config", a.cfgPath),
		logx.String("schedule", a.loop.Spec().Kind.String()),
	)
	return nil
}

// checkTelegram confirms the token with getMe. Failures are only logged:
// the API may be briefly unreachable, and sends report their own errors.
func (a *App) checkTelegram(ctx context.Context) {
	log := a.log.With(logx.String("comp", "telegram"))
	backoff := 5 * time.Second
	for attempt := 1; ; attempt++ {
		cctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		name, err := a.adapter.Check(cctx)
		cancel()
		if err == nil {
			log.Info("telegram bot authorized", logx.String("username", name))
			return
		}
		log.Warn("telegram token check failed", logx.Int("attempt", attempt), logx.Err(err))
		if attempt == 3 {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}

// reloadLoop applies logging changes live and flags everything else.
func (a *App) reloadLoop(ctx context.Context, sub <-chan *config.Config) {
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
		drain:
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						newCfg = newer
					}
				default:
					break drain
				}
			}
			sections := config.ChangedSections(lastApplied, newCfg)
			lastApplied = newCfg
			a.applyConfig(newCfg, sections)
		}
	}
}

func (a *App) applyConfig(cfg *config.Config, sections []string) {
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}

	// Update the log target first so Apply doesn't warn when Telegram logging is enabled.
	if chatID, ok := parseChatID(cfg.Telegram.GroupLog); ok {
		a.logs.SetTelegramTarget(chatID, cfg.Logging.Telegram.ThreadID)
	} else {
		a.logs.SetTelegramTarget(0, 0)
	}
	a.logs.Apply(mapLogConfig(cfg))

	changed := strings.Join(sections, ",")
	if config.RestartRequired(sections) {
		a.log.Warn("config changed; restart required for changes to take effect", logx.String("changed", changed))
		return
	}
	a.log.Info("config reloaded", logx.String("changed", changed))
}

// Stop cancels the loop, waits for an in-flight cycle and closes storage.
// Waiting is bounded by ctx. Stop is also safe on an app that was never started.
func (a *App) Stop(ctx context.Context) error {
	var err error
	a.stopOnce.Do(func() {
		if a.sup != nil {
			a.notify(daemon.SdNotifyStopping)
			a.log.Info("stopping")
			a.sup.Cancel()

			if werr := a.sup.Wait(ctx); werr != nil {
				a.log.Warn("stop: goroutines did not finish", logx.Err(werr),
					logx.Int64("active", a.sup.Counters().Active))
				err = werr
			}
		}
		if cerr := a.store.Close(); cerr != nil {
			a.log.Warn("stop: storage close failed", logx.Err(cerr))
		}
		a.log.Info("stopped")
		_ = a.logs.Close()
	})
	return err
}
