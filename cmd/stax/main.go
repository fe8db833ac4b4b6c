// Command stax serves a shared 3D scene graph over MCP stdio. The scene
// survives restarts through an embedded snapshot store; an optional
// sandbox allows bulk edits through time-bounded scripts.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/chazu/stax/pkg/persist"
	"github.com/chazu/stax/pkg/sandbox"
	"github.com/chazu/stax/pkg/scene"
	"github.com/chazu/stax/pkg/server"
)

type config struct {
	DataDir        string        `env:"STAX_DATA_DIR" envDefault:"./stax-data"`
	SandboxEnabled bool          `env:"STAX_SANDBOX_ENABLED" envDefault:"false"`
	SandboxTimeout time.Duration `env:"STAX_SANDBOX_TIMEOUT" envDefault:"1s"`
	Debug          bool          `env:"STAX_DEBUG" envDefault:"false"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "stax:", err)
		os.Exit(1)
	}
}

func run() error {
	var cfg config
	if err := env.Parse(&cfg); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}

	zcfg := zap.NewProductionConfig()
	if cfg.Debug {
		zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	// stdout carries the MCP protocol; all logging goes to stderr.
	zcfg.OutputPaths = []string{"stderr"}
	logger, err := zcfg.Build()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer logger.Sync()

	ps, err := persist.Open(persist.Config{Path: cfg.DataDir, Logger: logger})
	if err != nil {
		return fmt.Errorf("open persistence: %w", err)
	}

	sc, nextID, version := ps.Load()
	logger.Info("scene loaded",
		zap.Int("objects", len(sc.Objects)),
		zap.Int("connections", len(sc.Connections)),
		zap.Uint64("version", version))

	store := scene.NewStore(sc, nextID, version, ps, logger)
	bridge := sandbox.New(cfg.SandboxEnabled, cfg.SandboxTimeout, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := server.New(store, bridge, logger)
	logger.Info("serving MCP over stdio",
		zap.String("data_dir", cfg.DataDir),
		zap.Bool("sandbox", cfg.SandboxEnabled))

	runErr := srv.Run(ctx)
	if errors.Is(runErr, context.Canceled) {
		runErr = nil
	}

	if err := ps.Close(); err != nil {
		logger.Warn("persistence close failed", zap.Error(err))
	}
	return runErr
}
