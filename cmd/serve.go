package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pairgate/pairgate/internal/bot"
	"github.com/pairgate/pairgate/internal/channels"
	"github.com/pairgate/pairgate/internal/channels/discord"
	"github.com/pairgate/pairgate/internal/channels/telegram"
	"github.com/pairgate/pairgate/internal/config"
	"github.com/pairgate/pairgate/internal/dispatch"
	"github.com/pairgate/pairgate/internal/opsrpc"
	"github.com/pairgate/pairgate/internal/pairing"
	"github.com/pairgate/pairgate/internal/publish"
	"github.com/pairgate/pairgate/internal/tracing"
	"github.com/pairgate/pairgate/internal/wa"
)

const shutdownTimeout = 15 * time.Second

// runDaemon assembles and runs the bot until SIGINT/SIGTERM.
func runDaemon() {
	cfgPath := resolveConfigPath()
	if _, err := os.Stat(cfgPath); err != nil {
		fmt.Fprintf(os.Stderr, "No config found at %s\n", cfgPath)
		fmt.Fprintln(os.Stderr, "Run the setup wizard first:  pairgate onboard")
		os.Exit(1)
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %s\n", err)
		os.Exit(1)
	}
	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %s\n", err)
		fmt.Fprintln(os.Stderr, "Fix it or re-run:  pairgate onboard")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("pairgate starting", "version", version, "config", cfgPath)

	// Tracing runs whenever telemetry is enabled; without the otel build tag
	// the collector has no exporter and discards spans at flush.
	var spans *tracing.Collector
	if cfg.Telemetry.Enabled {
		spans = tracing.NewCollector()
		initOTelExporter(ctx, cfg, spans)
		spans.Start()
	}

	pub, err := publish.NewS3Publisher(ctx, publish.Config{
		Bucket:        cfg.Storage.Bucket,
		Region:        cfg.Storage.Region,
		Endpoint:      cfg.Storage.Endpoint,
		AccessKey:     cfg.Storage.AccessKey,
		SecretKey:     cfg.Storage.SecretKey,
		Prefix:        cfg.Storage.Prefix,
		EncryptionKey: cfg.Storage.EncryptionKey,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error setting up storage: %s\n", err)
		os.Exit(1)
	}

	// Channel front ends share one send limiter and one router. The concrete
	// channel values stay in scope for config hot reload.
	limiter := channels.NewSendLimiter(cfg.Channels.Dispatch.SendPerMinute, 5)
	registry := channels.NewRegistry()
	var tg *telegram.Channel
	var dc *discord.Channel
	if cfg.Channels.Telegram.Enabled {
		tg = telegram.New(cfg.Channels.Telegram)
		registry.Add(tg)
	}
	if cfg.Channels.Discord.Enabled {
		dc = discord.New(cfg.Channels.Discord)
		registry.Add(dc)
	}
	router := channels.NewRouter(registry, limiter)

	// The ops sink is bound after the server exists; sessions only start once
	// channels are up, so the indirection is settled by then.
	var sink pairing.Sink
	orcOpts := []pairing.Option{
		pairing.WithSink(func(event string, s pairing.Summary) {
			if sink != nil {
				sink(event, s)
			}
		}),
	}
	if spans != nil {
		orcOpts = append(orcOpts, pairing.WithTracing(spans))
	}

	orc := pairing.NewOrchestrator(
		pairing.Config{
			SessionsDir: config.ExpandHome(cfg.Pairing.SessionsDir),
			SettleDelay: time.Duration(cfg.Pairing.SettleDelayMS) * time.Millisecond,
			MaxActive:   cfg.Pairing.MaxActive,
		},
		pairing.NewStore(),
		wa.NewConnector(),
		router,
		pub,
		orcOpts...,
	)

	dispCfg := cfg.Channels.Dispatch
	disp := dispatch.NewDispatcher(
		[]dispatch.LaneConfig{{Name: "main", Concurrency: dispCfg.Workers}},
		dispatch.QueueConfig{Cap: dispCfg.QueueCap, Drop: dispatch.DropOld},
	)
	dedupe := dispatch.NewDeduper(time.Duration(dispCfg.DedupeTTLMin)*time.Minute, 4096)

	b := bot.New(&pairing.Commands{Orc: orc}, router, disp, dedupe)

	var opsSrv *opsrpc.Server
	if cfg.Ops.Enabled {
		opsSrv = opsrpc.NewServer(cfg.Ops, orc, disp, version)
		if err := opsSrv.Start(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Error starting ops endpoint: %s\n", err)
			os.Exit(1)
		}
		sink = opsSrv.Sink()
	}

	if err := registry.StartAll(ctx, b.HandleMessage); err != nil {
		fmt.Fprintf(os.Stderr, "Error starting channels: %s\n", err)
		os.Exit(1)
	}

	watcher := startConfigWatcher(cfgPath, tg, dc)

	slog.Info("pairgate ready", "channels", registry.Names())
	<-ctx.Done()
	slog.Info("shutting down")

	shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Channels stop first so no new commands arrive; in-flight sessions are
	// cancelled next and their confirmations still go out over the channels'
	// HTTP APIs, which survive Stop.
	registry.StopAll()
	orc.Shutdown(shutCtx)

	// The remaining teardowns are independent of each other.
	var g errgroup.Group
	if opsSrv != nil {
		g.Go(func() error { opsSrv.Stop(shutCtx); return nil })
	}
	g.Go(func() error { disp.Stop(); return nil })
	if spans != nil {
		g.Go(func() error { spans.Stop(); return nil })
	}
	if watcher != nil {
		g.Go(func() error { watcher.Stop(); return nil })
	}
	g.Wait()

	slog.Info("pairgate stopped")
}

// startConfigWatcher begins watching the config file. Allow-list changes
// apply live; everything else needs a restart, and the watcher says so
// instead of letting the daemon silently run stale config.
func startConfigWatcher(cfgPath string, tg *telegram.Channel, dc *discord.Channel) *config.Watcher {
	watcher, err := config.NewWatcher(cfgPath)
	if err != nil {
		slog.Warn("config watcher unavailable", "error", err)
		return nil
	}
	watcher.OnChange(func(next *config.Config) {
		if err := next.Validate(); err != nil {
			slog.Warn("changed config is invalid, keeping current settings", "error", err)
			return
		}
		if tg != nil {
			tg.UpdateAllowFrom(next.Channels.Telegram.AllowFrom)
		}
		if dc != nil {
			dc.UpdateAllowFrom(next.Channels.Discord.AllowFrom)
		}
		slog.Info("config file changed; allow lists applied, restart for other settings", "path", cfgPath)
	})
	if err := watcher.Start(); err != nil {
		slog.Warn("config watcher failed to start", "error", err)
		return nil
	}
	return watcher
}
