package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/coder/quartz"
	"github.com/rs/zerolog"

	"github.com/aceystream/cardtable/internal/config"
	"github.com/aceystream/cardtable/internal/game"
	"github.com/aceystream/cardtable/internal/hub"
	"github.com/aceystream/cardtable/internal/reaper"
	"github.com/aceystream/cardtable/internal/registry"
	"github.com/aceystream/cardtable/internal/router"
	"github.com/aceystream/cardtable/internal/server"
	"github.com/aceystream/cardtable/internal/store"
)

var CLI struct {
	Config   string `short:"c" default:"cardtable.hcl" help:"Path to HCL configuration file"`
	Addr     string `short:"a" help:"Listen address (overrides config)"`
	LogLevel string `short:"l" help:"Log level (overrides config)"`
	RedisURL string `help:"Redis URL for balance persistence (overrides config)"`
}

func main() {
	kctx := kong.Parse(&CLI)

	cfg, err := config.Load(CLI.Config)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		kctx.Exit(1)
	}
	if CLI.Addr != "" {
		cfg.Server.Address = CLI.Addr
	}
	if CLI.LogLevel != "" {
		cfg.Server.LogLevel = CLI.LogLevel
	}
	if CLI.RedisURL != "" {
		cfg.Server.RedisURL = CLI.RedisURL
	}
	if err := cfg.Validate(); err != nil {
		fmt.Printf("Invalid configuration: %v\n", err)
		kctx.Exit(1)
	}

	logger, closeLog, err := setupLogging(cfg)
	if err != nil {
		fmt.Printf("Error setting up logging: %v\n", err)
		kctx.Exit(1)
	}
	defer closeLog()

	rules, err := cfg.RulesByMode()
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid table configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	balances, closeStore, err := buildStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect balance store")
	}
	defer closeStore()

	clock := quartz.NewReal()
	h := hub.New(logger, 0)
	reg := registry.New(registry.Options{
		Store:      balances,
		Rules:      rules,
		QueueDepth: cfg.Server.QueueDepth,
		Clock:      clock,
		Logger:     logger,
		OnResult:   h.Publish,
	})
	rt := router.New(reg, clock, logger, 0)

	wsServer := server.New(cfg.ListenAddress(), rt, h, logger)
	adminServer := server.NewAdmin(cfg.AdminAddress(), reg, logger)

	idle := reaper.New(reg, h, clock, logger, cfg.IdleTTL(), reaper.DefaultInterval)
	idle.Start(ctx)

	errCh := make(chan error, 2)
	go func() { errCh <- wsServer.Start() }()
	go func() { errCh <- adminServer.Start() }()

	logger.Info().
		Str("addr", cfg.ListenAddress()).
		Str("admin_addr", cfg.AdminAddress()).
		Bool("redis", cfg.Server.RedisURL != "").
		Msg("card table engine started")

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutting down")
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("server failed")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	idle.Stop()
	if err := wsServer.Stop(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("websocket shutdown incomplete")
	}
	if err := adminServer.Stop(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("admin shutdown incomplete")
	}
	reg.Close()
	h.Close()
}

func setupLogging(cfg *config.Config) (zerolog.Logger, func(), error) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs

	level, err := zerolog.ParseLevel(cfg.Server.LogLevel)
	if err != nil || cfg.Server.LogLevel == "" {
		level = zerolog.InfoLevel
	}

	var out io.Writer = zerolog.ConsoleWriter{Out: os.Stderr}
	closeLog := func() {}
	if cfg.Server.LogFile != "" {
		f, err := os.OpenFile(cfg.Server.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return zerolog.Logger{}, nil, fmt.Errorf("opening log file: %w", err)
		}
		out = f
		closeLog = func() { _ = f.Close() }
	}

	return zerolog.New(out).Level(level).With().Timestamp().Logger(), closeLog, nil
}

func buildStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (game.BalanceStore, func(), error) {
	if cfg.Server.RedisURL == "" {
		logger.Info().Int64("starting_chips", cfg.Server.StartingChips).Msg("using in-memory balance store")
		return store.NewMemoryStore(cfg.Server.StartingChips), func() {}, nil
	}

	rs, err := store.NewRedisStore(cfg.Server.RedisURL, cfg.Server.StartingChips)
	if err != nil {
		return nil, nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rs.Ping(pingCtx); err != nil {
		_ = rs.Close()
		return nil, nil, err
	}
	logger.Info().Msg("connected to redis balance store")
	return rs, func() { _ = rs.Close() }, nil
}
