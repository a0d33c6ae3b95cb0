package app

import (
	"context"
	"fmt"
	"time"

	"botkit/internal/bot"
	"botkit/internal/botconfig"
	bkcfg "botkit/internal/config"
	"botkit/internal/decision"
	"botkit/internal/executor"
	"botkit/internal/logger"
	"botkit/internal/notify"
	httpapi "botkit/internal/transport/http"
	"botkit/internal/types"

	"golang.org/x/sync/errgroup"
)

// App wires the process: config in, orchestrator plus HTTP server out.
type App struct {
	cfg     *bkcfg.Config
	bot     *bot.Orchestrator
	httpSrv *httpapi.Server
	watcher *botconfig.Watcher
}

// NewApp builds the application without starting it. The bot definition
// is loaded and validated here so startup fails fast on a bad file.
func NewApp(cfg *bkcfg.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)

	var (
		botDef  types.BotConfig
		watcher *botconfig.Watcher
		err     error
	)
	if cfg.Bot.WatchDefinition {
		watcher, err = botconfig.NewWatcher(cfg.Bot.Definition)
		if err != nil {
			return nil, fmt.Errorf("load bot definition: %w", err)
		}
		botDef, _ = watcher.Snapshot()
	} else {
		botDef, err = botconfig.Load(cfg.Bot.Definition)
		if err != nil {
			return nil, fmt.Errorf("load bot definition: %w", err)
		}
	}

	var notifier executor.TextNotifier = notify.LogNotifier{}
	if cfg.Notify.Telegram.Enabled {
		notifier = notify.NewTelegram(cfg.Notify.Telegram.BotToken, cfg.Notify.Telegram.ChatID)
	}

	orchestrator := bot.New(botDef, bot.Options{
		Notifier:     notifier,
		Resolver:     decision.StateResolver{},
		BusQueueSize: cfg.Bus.QueueSize,
	})
	if err := orchestrator.Init(cfg.App.DataDir); err != nil {
		if watcher != nil {
			watcher.Close()
		}
		return nil, err
	}
	if watcher != nil {
		watcher.OnChange(func(reloaded types.BotConfig) {
			if err := orchestrator.ApplyConfig(reloaded); err != nil {
				logger.Errorf("app: definition reload failed: %v", err)
			}
		})
	}

	httpSrv, err := httpapi.NewServer(cfg.App.HTTPAddr, httpapi.NewRouter(orchestrator))
	if err != nil {
		if watcher != nil {
			watcher.Close()
		}
		orchestrator.Stop(time.Second)
		return nil, err
	}

	return &App{cfg: cfg, bot: orchestrator, httpSrv: httpSrv, watcher: watcher}, nil
}

// Run starts the bot and the HTTP server, blocking until ctx is
// cancelled or one of them fails. Shutdown is orderly: the bot stops
// first so the final lifecycle events still flow through the bus.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	if err := a.bot.Start(ctx); err != nil {
		return err
	}
	logger.Infof("app: serving on %s", a.httpSrv.Addr())

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := a.httpSrv.Start(ctx); err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		if a.watcher != nil {
			a.watcher.Close()
		}
		grace := time.Duration(a.cfg.Bot.StopGraceSeconds) * time.Second
		return a.bot.Stop(grace)
	})
	return group.Wait()
}

// Bot exposes the orchestrator for test harnesses.
func (a *App) Bot() *bot.Orchestrator {
	if a == nil {
		return nil
	}
	return a.bot
}
