// Package app wires the bot together: config, logging, storage, the Telegram
// adapter, the dialog engine, and the reminder engine.
package app

import (
	"context"
	"os"
	"strings"
	"time"

	"planbot/internal/config"
	"planbot/internal/dialog"
	"planbot/internal/dialog/blocks"
	"planbot/internal/notify"
	rtsup "planbot/internal/runtime/supervisor"
	"planbot/internal/storage"
	kit "planbot/internal/transport"
	"planbot/internal/transport/telegram"
	logx "planbot/pkg/logx"
)

// tokenEnv overrides telegram.token so the secret can stay out of the config
// file (godotenv loads .env in main).
const tokenEnv = "PLANBOT_TOKEN"

type App struct {
	cfgm *config.Manager
	sup  *rtsup.Supervisor

	log  logx.Logger
	logs *logx.Service
	loc  *time.Location

	stores    *storage.Stores
	adapter   *telegram.Adapter
	engine    *dialog.Engine
	reminders *notify.Service

	updates chan kit.Update
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if tok := strings.TrimSpace(os.Getenv(tokenEnv)); tok != "" {
		cfg.Telegram.Token = tok
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLogConfig(cfg))
	log = log.With(logx.String("comp", "app"))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	busyTimeout, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	if err != nil {
		return nil, err
	}
	stores, err := storage.Open(storage.Config{
		Driver:               cfg.Storage.Driver,
		Path:                 cfg.Storage.Path,
		BusyTimeout:          busyTimeout,
		DefaultOffsetMinutes: cfg.Storage.DefaultOffsetMinutes,
	}, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}

	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	adapter, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, log.With(logx.String("comp", "telegram")))
	if err != nil {
		return nil, err
	}

	scenario, err := blocks.NewScenario(blocks.Deps{
		Events:   stores.Events,
		Groups:   stores.Groups,
		Settings: stores.Settings,
		Loc:      loc,
	})
	if err != nil {
		return nil, err
	}
	selector := dialog.NewSelector()
	selector.SetDefault(scenario)

	engine := dialog.NewEngine(selector, stores.Conversations, adapter,
		log.With(logx.String("comp", "dialog")))

	grace, err := config.ParseDurationField("notify.grace", cfg.Notify.Grace)
	if err != nil {
		return nil, err
	}
	reminders, err := notify.New(notify.Config{
		Tick:      cfg.Notify.Tick,
		Grace:     grace,
		SendRate:  cfg.Notify.RatePerSec,
		SendBurst: cfg.Notify.Burst,
	}, notify.Deps{
		Events:   stores.Events,
		Groups:   stores.Groups,
		Settings: stores.Settings,
		Sender:   adapter,
		Loc:      loc,
		Log:      log,
	})
	if err != nil {
		return nil, err
	}

	return &App{
		cfgm:      cfgm,
		log:       log,
		logs:      logSvc,
		loc:       loc,
		stores:    stores,
		adapter:   adapter,
		engine:    engine,
		reminders: reminders,
		updates:   make(chan kit.Update, 256),
	}, nil
}

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

// dialogWorkers is the update fan-out width. The engine serializes per user,
// so this only bounds cross-user parallelism.
const dialogWorkers = 4

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log))

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}

	for i := 0; i < dialogWorkers; i++ {
		a.sup.Go("dialog.worker", func(c context.Context) {
			for {
				select {
				case <-c.Done():
					return
				case up := <-a.updates:
					// Errors are logged inside; a bad update must not take
					// the worker down.
					_ = a.engine.HandleUpdate(c, up)
				}
			}
		})
	}

	a.sup.Go("notify.run", func(c context.Context) {
		_ = a.reminders.Run(c)
	})

	a.sup.Go("config.watch", func(c context.Context) {
		_ = a.cfgm.Watch(c)
	})
	a.sup.Go("config.apply", func(c context.Context) {
		sub := a.cfgm.Subscribe(1)
		defer a.cfgm.Unsubscribe(sub)
		for {
			select {
			case <-c.Done():
				return
			case cfg, ok := <-sub:
				if !ok {
					return
				}
				// Only logging is hot-appliable; the rest needs a restart.
				a.logs.Apply(mapLogConfig(cfg))
				a.log.Info("logging config applied",
					logx.String("level", cfg.Logging.Level))
			}
		}
	})

	a.log.Info("started", logx.String("timezone", a.loc.String()))
	return nil
}

func (a *App) Stop(ctx context.Context) error {
	if err := a.adapter.Stop(ctx); err != nil {
		a.log.Warn("adapter stop failed", logx.Err(err))
	}
	if a.sup != nil {
		if err := a.sup.Stop(ctx); err != nil {
			a.log.Warn("supervisor stop timed out", logx.Err(err))
		}
	}
	if err := a.stores.Close(); err != nil {
		a.log.Warn("storage close failed", logx.Err(err))
	}
	a.log.Info("stopped")
	_ = a.logs.Close()
	return nil
}
