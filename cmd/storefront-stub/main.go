// Package main запускает заглушку удалённой стороны витрины для локальной
// разработки.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/coffeetime-storefront/internal/authority"
	"github.com/mmeshcher/coffeetime-storefront/internal/config"
	"github.com/mmeshcher/coffeetime-storefront/internal/handler"
	"github.com/mmeshcher/coffeetime-storefront/internal/middleware"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	a := authority.New(authority.DefaultCatalog())
	if user, pass := os.Getenv("STUB_ADMIN_USER"), os.Getenv("STUB_ADMIN_PASSWORD"); user != "" && pass != "" {
		id := a.CreateAdmin(user, pass)
		sugar.Infow("admin account created", "username", user, "id", id)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	opts := []handler.Option{
		handler.WithMetrics(middleware.NewMetrics(reg), promhttp.HandlerFor(reg, promhttp.HandlerOpts{})),
	}
	if os.Getenv("STUB_DISABLE_CANCEL") != "" {
		sugar.Info("dedicated cancel endpoint disabled")
		opts = append(opts, handler.WithoutCancelEndpoint())
	}

	authMiddleware := middleware.NewAuthMiddleware(cfg.TokenSecret)
	h := handler.NewHandler(a, logger, authMiddleware, opts...)

	server := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           h.SetupRouter(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		sugar.Infow("starting storefront stub server", "addr", cfg.RunAddress)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}
