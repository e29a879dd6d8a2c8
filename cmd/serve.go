package cmd

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nextlevelbuilder/bridge-echo/internal/alerts"
	discordbot "github.com/nextlevelbuilder/bridge-echo/internal/channels/discord"
	"github.com/nextlevelbuilder/bridge-echo/internal/channels/telegram"
	"github.com/nextlevelbuilder/bridge-echo/internal/claude"
	"github.com/nextlevelbuilder/bridge-echo/internal/config"
	"github.com/nextlevelbuilder/bridge-echo/internal/discord"
	"github.com/nextlevelbuilder/bridge-echo/internal/dispatch"
	"github.com/nextlevelbuilder/bridge-echo/internal/gateway"
	"github.com/nextlevelbuilder/bridge-echo/internal/injection"
	"github.com/nextlevelbuilder/bridge-echo/internal/observe"
	"github.com/nextlevelbuilder/bridge-echo/internal/queue"
	"github.com/nextlevelbuilder/bridge-echo/internal/tracker"
	"github.com/nextlevelbuilder/bridge-echo/internal/voice"
	"github.com/nextlevelbuilder/bridge-echo/internal/worker"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the bridge server",
		Run: func(cmd *cobra.Command, args []string) {
			runServe()
		},
	}
}

// channelBot is the lifecycle shared by the optional bot ingresses.
type channelBot interface {
	Start(ctx context.Context) error
	Stop() error
}

func runServe() {
	// Setup structured logging
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})))

	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	metricsHandler, shutdownMetrics, err := observe.InitProvider(observe.ProviderConfig{
		ServiceName:    "bridge-echo",
		ServiceVersion: Version,
	})
	if err != nil {
		slog.Error("failed to initialize metrics provider", "error", err)
		os.Exit(1)
	}
	defer func() {
		flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer flushCancel()
		if err := shutdownMetrics(flushCtx); err != nil {
			slog.Warn("metrics provider shutdown failed", "error", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// Create core components
	q := queue.New()
	tr := tracker.New()
	reg := voice.NewRegistry(time.Duration(cfg.Voice.SessionTimeoutSecs) * time.Second)
	dispatcher := &dispatch.Dispatcher{
		Queue:    q,
		Tracker:  tr,
		Detector: injection.NewDetector(),
		Metrics:  metrics,
	}

	var discordClient *discord.Client
	if cfg.Discord.BotToken != "" {
		discordClient = discord.NewClient(cfg.Discord.BotToken, "")
	}

	w := worker.New(worker.Options{
		Queue:      q,
		Tracker:    tr,
		Voice:      reg,
		Assistant:  &claude.Invoker{Bin: cfg.Claude.Bin, Home: cfg.Claude.Home},
		Discord:    discordClient,
		SessionTTL: time.Duration(cfg.Session.TTLSecs) * time.Second,
		SelfPath:   cfg.Claude.SelfPath,
		VoiceURL:   cfg.Voice.URL,
		VoiceToken: cfg.Voice.Token,
		Metrics:    metrics,
	})

	alertLoop := alerts.FromConfig(cfg, tr, metrics)

	server := gateway.NewServer(cfg, dispatcher, tr, reg)
	server.SetMetricsHandler(metricsHandler)

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Optional bot ingresses alongside the HTTP surface. A bot that fails
	// to come up degrades the deployment, it does not take it down.
	var bots []channelBot

	if cfg.Discord.Listen && cfg.Discord.BotToken != "" {
		b, err := discordbot.NewBot(cfg.Discord.BotToken, dispatcher)
		if err != nil {
			slog.Error("failed to initialize discord bot", "error", err)
		} else if err := b.Start(ctx); err != nil {
			slog.Error("failed to start discord bot", "error", err)
		} else {
			bots = append(bots, b)
		}
	}

	if cfg.Telegram.BotToken != "" {
		b, err := telegram.NewBot(cfg.Telegram.BotToken, dispatcher)
		if err != nil {
			slog.Error("failed to initialize telegram bot", "error", err)
		} else if err := b.Start(ctx); err != nil {
			slog.Error("failed to start telegram bot", "error", err)
		} else {
			bots = append(bots, b)
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("graceful shutdown initiated", "signal", sig)

		for _, b := range bots {
			if err := b.Stop(); err != nil {
				slog.Warn("channel bot shutdown failed", "error", err)
			}
		}
		cancel()
	}()

	slog.Info("bridge-echo starting",
		"version", Version,
		"claude_bin", cfg.Claude.Bin,
		"session_ttl_secs", cfg.Session.TTLSecs,
		"alert_thresholds_min", cfg.Alerts.ThresholdsMin,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return w.Run(gctx)
	})
	if alertLoop != nil {
		g.Go(func() error {
			return alertLoop.Run(gctx)
		})
	}
	g.Go(func() error {
		return server.Start(gctx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("bridge error", "error", err)
		os.Exit(1)
	}
}
