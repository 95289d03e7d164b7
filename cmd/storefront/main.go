// Package main запускает консольный клиент витрины CoffeeTime.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/mmeshcher/coffeetime-storefront/internal/config"
	"github.com/mmeshcher/coffeetime-storefront/internal/storage"
)

func main() {
	cfg, err := config.Parse()
	if err != nil {
		fmt.Fprintln(os.Stderr, "configuration error:", err)
		os.Exit(2)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger error:", err)
		os.Exit(2)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("open local state", zap.Error(err))
	}
	defer store.Close()

	a, err := newApp(ctx, cfg, store, logger, os.Stdout)
	if err != nil {
		logger.Fatal("start storefront", zap.Error(err))
	}

	if err := a.run(ctx, config.Args()); err != nil {
		fmt.Fprintln(os.Stderr, describe(err))
		os.Exit(1)
	}
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse log level %q: %w", level, err)
	}

	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	zcfg.OutputPaths = []string{"stderr"}
	zcfg.DisableStacktrace = true

	return zcfg.Build()
}
