// Package main запускает процесс обработки заданий конвейера оценок.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/avolkhin/studentaid-system/internal/config"
	"github.com/avolkhin/studentaid-system/internal/gateway"
	"github.com/avolkhin/studentaid-system/internal/handler"
	"github.com/avolkhin/studentaid-system/internal/repository"
	"github.com/avolkhin/studentaid-system/internal/service"
	"github.com/avolkhin/studentaid-system/internal/worker"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}
	defer repo.Close()

	gatewayClient := gateway.NewClient(cfg.GatewayAddress, cfg.WorkerID)

	svc := service.NewService(repo, gatewayClient, sugar)
	defer svc.Close()

	runner := worker.NewRunner(gatewayClient, sugar, cfg.LockDuration, cfg.PollInterval)
	worker.NewHandlers(svc, sugar).RegisterAll(runner)

	h := handler.NewHandler(svc, logger)

	server := &http.Server{
		Addr:    cfg.RunAddress,
		Handler: h.SetupRouter(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Запуск цикла опроса шлюза заданий
	g.Go(func() error {
		sugar.Infow("starting job runner", "gateway", cfg.GatewayAddress, "workerId", cfg.WorkerID)
		return runner.Run(ctx)
	})

	// Запуск служебного HTTP-сервера
	g.Go(func() error {
		sugar.Infow("starting ops server", "addr", cfg.RunAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}
