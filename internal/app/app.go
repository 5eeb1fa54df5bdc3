// Package app wires the catalog, the daily selector, the broadcast scheduler
// and the Telegram transport together and owns their lifecycle.
package app

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"namebot/internal/bot"
	"namebot/internal/broadcast"
	"namebot/internal/catalog"
	"namebot/internal/config"
	"namebot/internal/runtime/supervisor"
	"namebot/internal/selector"
	kit "namebot/internal/transport"
	telegram "namebot/internal/transport/telegram"
	logx "namebot/pkg/logx"
)

type StopReason string

const (
	StopReasonSignal StopReason = "signal"
	StopReasonFatal  StopReason = "fatal"
)

type App struct {
	cfgPath string

	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service

	adapter *telegram.Adapter
	store   *catalog.Store
	sel     *selector.Selector
	bcast   *broadcast.Service
	router  *bot.Router

	updates chan kit.Update
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
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

	// logx.New() calls Apply() immediately. If Telegram logging is enabled but
	// the target chat isn't configured yet, Apply() will emit a warning, so
	// bootstrap with Telegram logging disabled, set the target, then Apply()
	// the final config.
	baseLogCfg := mapLogConfig(cfg)
	baseLogCfg.Telegram.Enabled = false
	logSvc, log := logx.New(baseLogCfg, ad)
	log = log.With(logx.String("comp", "app"))

	if chatID := parseGroupLog(cfg.Telegram.GroupLog); chatID != 0 {
		logSvc.SetTelegramTarget(chatID, cfg.Logging.Telegram.ThreadID)
	}
	logSvc.Apply(mapLogConfig(cfg))

	busyTimeout, err := config.ParseDurationOrDefault("catalog.busy_timeout", cfg.Catalog.BusyTimeout, 5*time.Second)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.Catalog.Path) == "" {
		return nil, fmt.Errorf("catalog.path is required")
	}
	store, err := catalog.Open(catalog.Config{
		Path:        cfg.Catalog.Path,
		BusyTimeout: busyTimeout,
	}, log.With(logx.String("comp", "catalog")))
	if err != nil {
		return nil, err
	}

	// Seed once on an empty catalog. The self name guarantees at least one
	// row even without a seed file.
	seedNames := catalog.LoadSeedNames(cfg.Catalog.SeedFile, cfg.Catalog.SelfName, log.With(logx.String("comp", "catalog")))
	if n, err := store.Seed(context.Background(), seedNames); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("seed catalog: %w", err)
	} else if n > 0 {
		log.Info("catalog seeded", logx.Int("names", n))
	}

	bcfg, err := mapBroadcastConfig(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	sel := selector.New(store, cfg.Catalog.SelfName, bcfg.Location, log.With(logx.String("comp", "selector")))
	bcast := broadcast.New(bcfg, sel, ad, log.With(logx.String("comp", "broadcast")))

	router := bot.New(bot.Config{
		Owners:      cfg.Telegram.OwnerUserIDs,
		SeedPath:    cfg.Catalog.SeedFile,
		SelfName:    cfg.Catalog.SelfName,
		BroadcastAt: fmt.Sprintf("%02d:%02d", bcfg.Hour, bcfg.Minute),
	}, store, sel, ad, log.With(logx.String("comp", "commands")))

	return &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		adapter: ad,
		store:   store,
		sel:     sel,
		bcast:   bcast,
		router:  router,
		updates: make(chan kit.Update, 256),
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

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx,
		supervisor.WithLogger(a.log),
		supervisor.WithCancelOnError(true),
	)

	// transactional config reload: validate before commit/publish
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if strings.TrimSpace(cfg.Telegram.Token) == "" {
			return fmt.Errorf("telegram.token is required")
		}
		if strings.TrimSpace(cfg.Catalog.Path) == "" {
			return fmt.Errorf("catalog.path is required")
		}
		if strings.TrimSpace(cfg.Catalog.SelfName) == "" {
			return fmt.Errorf("catalog.self_name is required")
		}
		if _, err := config.ParseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout); err != nil {
			return err
		}
		if _, err := config.ParseDurationField("catalog.busy_timeout", cfg.Catalog.BusyTimeout); err != nil {
			return err
		}
		if _, err := mapBroadcastConfig(cfg); err != nil {
			return err
		}
		return nil
	})

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}
	if err := a.bcast.Start(a.sup); err != nil {
		return err
	}

	a.sup.Go("commands.dispatch", func(c context.Context) error {
		return a.router.DispatchLoop(c, a.updates)
	})

	// hot reload config fan-out
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		prev := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
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
				a.applyConfig(prev, newCfg)
				prev = newCfg
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started")
	return nil
}

// applyConfig applies a hot-reloaded config to the running components.
// Validation already happened in the manager, so parse errors here only mean
// the previous value is kept.
func (a *App) applyConfig(prev, cfg *config.Config) {
	if cfg == nil {
		return
	}

	// update log target first (so Apply() doesn't warn when Telegram logging is enabled)
	a.logs.SetTelegramTarget(parseGroupLog(cfg.Telegram.GroupLog), cfg.Logging.Telegram.ThreadID)
	a.logs.Apply(mapLogConfig(cfg))

	if bcfg, err := mapBroadcastConfig(cfg); err != nil {
		a.log.Warn("invalid broadcast config; keeping previous", logx.Err(err))
	} else if err := a.bcast.Apply(bcfg); err != nil {
		a.log.Warn("broadcast config not applied", logx.Err(err))
	}

	if prev != nil {
		if prev.Telegram.Token != cfg.Telegram.Token {
			a.log.Warn("telegram.token changed; restart required for changes to take effect")
		}
		if prev.Catalog.Path != cfg.Catalog.Path {
			a.log.Warn("catalog.path changed; restart required for changes to take effect")
		}
	}

	a.log.Info("config reloaded")
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))

	// Cancel the run context first so background loops start unwinding immediately.
	a.sup.Cancel()

	// Run a shutdown step with an upper bound so one component can't stall the whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
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
		if err := fn(stepCtx); err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
	}

	step("broadcast", 2*time.Second, func(c context.Context) error { return a.bcast.Stop(c) })
	step("adapter", 2*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })
	step("catalog", 1*time.Second, func(context.Context) error { return a.store.Close() })
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    cfg.Logging.Telegram.Enabled,
			ThreadID:   cfg.Logging.Telegram.ThreadID,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
}

func parseGroupLog(raw string) int64 {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0
	}
	chatID, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return chatID
}

func mapBroadcastConfig(cfg *config.Config) (broadcast.Config, error) {
	hour, minute, err := config.ParseHHMMOrDefault("broadcast.time", cfg.Broadcast.Time, 15, 30)
	if err != nil {
		return broadcast.Config{}, err
	}
	resetHour, resetMinute, err := config.ParseHHMMOrDefault("broadcast.reset_time", cfg.Broadcast.ResetTime, 0, 5)
	if err != nil {
		return broadcast.Config{}, err
	}

	loc := time.Local
	if tz := strings.TrimSpace(cfg.Broadcast.Timezone); tz != "" {
		loc, err = time.LoadLocation(tz)
		if err != nil {
			return broadcast.Config{}, fmt.Errorf("broadcast.timezone: invalid %q: %w", tz, err)
		}
	}

	retry, err := config.ParseDurationOrDefault("broadcast.retry_backoff", cfg.Broadcast.RetryBackoff, time.Minute)
	if err != nil {
		return broadcast.Config{}, err
	}

	return broadcast.Config{
		Hour:         hour,
		Minute:       minute,
		ResetHour:    resetHour,
		ResetMinute:  resetMinute,
		Location:     loc,
		RetryBackoff: retry,
		TargetChat:   cfg.Telegram.TargetChat,
	}, nil
}
