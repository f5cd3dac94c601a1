// Command tohang runs the chat gateway: it pairs with the chat network over
// a protocol bridge, keeps the session alive across disconnects, and routes
// prefixed messages to built-in and user-defined commands.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/officialznkxproject-sys/tohang/pkg/api"
	"github.com/officialznkxproject-sys/tohang/pkg/auth"
	"github.com/officialznkxproject-sys/tohang/pkg/bus"
	"github.com/officialznkxproject-sys/tohang/pkg/command"
	"github.com/officialznkxproject-sys/tohang/pkg/config"
	"github.com/officialznkxproject-sys/tohang/pkg/directory"
	"github.com/officialznkxproject-sys/tohang/pkg/logging"
	"github.com/officialznkxproject-sys/tohang/pkg/protocol"
	"github.com/officialznkxproject-sys/tohang/pkg/session"
	"github.com/officialznkxproject-sys/tohang/pkg/storage"
	"github.com/officialznkxproject-sys/tohang/pkg/telemetry"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "tohang: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath = flag.String("config", "", "path to a config file (default: ~/.tohang/config.yaml, ./tohang.yaml)")
		port       = flag.Int("port", 0, "override the HTTP listen port")
	)
	flag.Parse()

	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.LoadFromPath(*configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := logging.NewLogger(cfg.LogDir())
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer logger.Close()
	logger.SetMinLevel(logging.Level(cfg.Logging.Level))

	logger.Info(logging.CategorySession, "starting", "tohang gateway starting",
		map[string]any{"version": Version, "port": cfg.Server.Port})

	store, err := storage.New(cfg.DatabasePath())
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer store.Close()

	credStore, err := auth.NewFileStore(cfg.CredentialsPath())
	if err != nil {
		return fmt.Errorf("init credential store: %w", err)
	}

	eventBus, err := buildBus(cfg, logger)
	if err != nil {
		return err
	}
	defer eventBus.Close()

	metrics := telemetry.NewMetrics()

	users := directory.New(store, logger)
	registry := command.NewRegistry(store, logger)
	command.RegisterBuiltins(registry, command.BuiltinDeps{
		OwnerID: cfg.Owner.ID,
		Version: Version,
		Users:   users,
		Weather: command.NewWeatherClient(cfg.Commands.WeatherAPIKey),
	})

	router := command.NewRouter(command.RouterConfig{
		Prefix:             cfg.Commands.Prefix,
		OwnerID:            cfg.Owner.ID,
		RateLimitPerMinute: cfg.Commands.RateLimitPerMinute,
	}, registry, users, logger, metrics)

	client := protocol.NewWSBridge(protocol.WSBridgeConfig{URL: cfg.Bridge.URL})

	manager := session.NewManager(session.Config{
		MaxReconnectAttempts: cfg.Session.MaxReconnectAttempts,
		ReconnectBaseDelay:   cfg.Session.ReconnectBaseDelay,
		QRExpiry:             cfg.Session.QRExpiry,
	}, client, credStore, session.NewBridge(eventBus, logger),
		func(ctx context.Context, msg *protocol.InboundMessage) string {
			return router.Handle(ctx, msg.SenderID, msg.Text)
		}, logger, metrics)

	server := api.NewServer(api.ServerConfig{
		Address:     fmt.Sprintf(":%d", cfg.Server.Port),
		Version:     Version,
		Session:     manager,
		Storage:     store,
		Credentials: credStore,
		EventBus:    eventBus,
		Metrics:     metrics,
		Logger:      logger,
	})

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := manager.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("session manager: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return server.Start(ctx)
	})

	g.Go(func() error {
		<-ctx.Done()
		logger.Info(logging.CategorySession, "shutting_down", "shutdown signal received", nil)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	logger.Info(logging.CategorySession, "stopped", "tohang gateway stopped", nil)
	return nil
}

// buildBus returns the in-memory bus, teed into NATS when configured.
func buildBus(cfg *config.Config, logger *logging.Logger) (bus.EventBus, error) {
	memory := bus.NewMemoryBus()
	if cfg.Bus.NATSURL == "" {
		return memory, nil
	}

	natsCfg := bus.DefaultConfig()
	natsCfg.URL = cfg.Bus.NATSURL
	natsBus, err := bus.NewNATSBus(natsCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS at %s: %w", cfg.Bus.NATSURL, err)
	}

	logger.Info(logging.CategoryNetwork, "nats_connected", "mirroring session events to NATS",
		map[string]any{"url": cfg.Bus.NATSURL})
	return bus.NewTee(memory, natsBus), nil
}
