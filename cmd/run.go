package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coopco/telebox/internal/bus"
	"github.com/coopco/telebox/internal/channels"
	"github.com/coopco/telebox/internal/config"
	"github.com/coopco/telebox/internal/cron"
	"github.com/coopco/telebox/internal/plugins"
	"github.com/coopco/telebox/internal/telegram"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	runCacheTTL time.Duration
	runBusSize  int
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Connect to Telegram and serve plugin commands until interrupted",
	RunE:  runRun,
}

func init() {
	runCmd.Flags().DurationVar(&runCacheTTL, "cache-ttl", 10*time.Minute, "how long resolved chats and users are cached")
	runCmd.Flags().IntVar(&runBusSize, "queue", 256, "inbound and outbound queue size")
}

func newClient(cfg *config.Config) (telegram.Client, error) {
	switch cfg.Telegram.Mode {
	case "", "user":
		return telegram.NewUserClient(telegram.UserConfig{
			APIID:   cfg.Telegram.APIID,
			APIHash: cfg.Telegram.APIHash,
			Phone:   cfg.Telegram.Phone,
			Session: cfg.Telegram.Session,
		})
	case "bot":
		return telegram.NewBotClient(cfg.Telegram.BotToken)
	default:
		return nil, fmt.Errorf("unknown telegram mode %q (want user or bot)", cfg.Telegram.Mode)
	}
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(true)
	if err != nil {
		return err
	}
	if err := setupLogging(cfg.Log); err != nil {
		return err
	}

	client, err := newClient(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The bus is never closed: late client callbacks may still publish
	// after shutdown and only see the cancelled context.
	msgBus := bus.NewMessageBus(runBusSize)

	relays := channels.NewManager(msgBus)
	if err := relays.AddConfigured(cfg.Relay); err != nil {
		return err
	}

	sched := cron.NewRobfigScheduler(time.Local)
	reg := plugins.NewRegistry()
	deps := &plugins.Deps{
		Context:   ctx,
		Client:    client,
		Config:    cfg,
		Cache:     telegram.NewEntityCache(client, runCacheTTL),
		Bus:       msgBus,
		Relays:    relays,
		Scheduler: sched,
		Exec:      plugins.ExecRunner{},
		Sleeper:   telegram.RealSleeper{},
		Registry:  reg,
	}
	if err := plugins.RegisterAll(reg, plugins.Builtin(deps)); err != nil {
		return err
	}
	disp := plugins.NewDispatcher(reg, client, cfg)

	client.OnMessage(func(m *telegram.Message) {
		in := bus.InboundMessage{Source: bus.SourceTelegram, Message: m}
		if err := msgBus.PublishInbound(ctx, in); err != nil && ctx.Err() == nil {
			slog.Warn("dropping inbound message", "chat", m.ChatID, "id", m.ID, "error", err)
		}
	})

	if err := client.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if err := client.Stop(); err != nil {
			slog.Error("telegram stop failed", "error", err)
		}
	}()

	me, err := client.Self(ctx)
	if err != nil {
		return fmt.Errorf("get self: %w", err)
	}
	disp.SetSelf(me.ID)

	if err := relays.StartAll(ctx); err != nil {
		return err
	}
	defer relays.StopAll()

	plugins.StartAll(ctx, reg)
	sched.Start()
	defer sched.Stop()
	defer func() {
		if err := plugins.StopAll(reg); err != nil {
			slog.Error("plugin stop failed", "error", err)
		}
	}()

	slog.Info("telebox running",
		"self", me.Display(),
		"mode", cfg.Telegram.Mode,
		"plugins", len(reg.Plugins()),
		"prefix", disp.Prefix(),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return disp.Run(gctx, msgBus) })
	g.Go(func() error {
		msgBus.DispatchOutbound(gctx)
		return nil
	})

	err = g.Wait()
	slog.Info("telebox shutting down")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
