// Orderflow Standalone — все компоненты в одном процессе.
//
// Хранилище в памяти, очередь tasks — worker.LocalPool, уведомления — /ws.
// RabbitMQ и PostgreSQL не нужны; состояние теряется при остановке.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/shaiso/Orderflow/internal/api"
	"github.com/shaiso/Orderflow/internal/bootstrap"
	"github.com/shaiso/Orderflow/internal/config"
	"github.com/shaiso/Orderflow/internal/engine"
	"github.com/shaiso/Orderflow/internal/lock"
	"github.com/shaiso/Orderflow/internal/notify"
	"github.com/shaiso/Orderflow/internal/orchestrator"
	"github.com/shaiso/Orderflow/internal/orders"
	"github.com/shaiso/Orderflow/internal/repo"
	"github.com/shaiso/Orderflow/internal/telemetry"
	"github.com/shaiso/Orderflow/internal/worker"
)

func main() {
	logger := telemetry.SetupLogger("orderflow-standalone")
	logger.Info("starting orderflow-standalone")

	cfg, err := config.Load("")
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	orderRepo := repo.NewMemoryOrderRepo()
	taskRepo := repo.NewMemoryTaskRepo()

	// Один процесс: общая блокировка в памяти для оркестратора и runner'а
	locker := lock.NewKeyedMutex()

	hub := notify.NewHub(logger)
	notifier, closeNotifier := bootstrap.Notifier(cfg, hub, logger)
	defer closeNotifier()

	sim := cfg.Worker.Simulation
	registry := worker.NewRegistry(&worker.SimulatedExecutor{
		MinDelay:    sim.MinDelay,
		MaxDelay:    sim.MaxDelay,
		FailureRate: sim.FailureRate,
	})
	if cfg.Worker.ProvisioningURL != "" {
		registry = worker.NewRegistry(worker.NewHTTPExecutor(cfg.Worker.ProvisioningURL))
	}

	runner := worker.NewRunner(worker.RunnerConfig{
		Tasks:    taskRepo,
		Registry: registry,
		Locker:   locker,
		Notifier: notifier,
		Timeout:  cfg.Worker.TaskTimeout,
		Logger:   logger,
	})

	pool := worker.NewLocalPool(worker.LocalConfig{
		Runner:      runner,
		Concurrency: cfg.Worker.Concurrency,
		Logger:      logger,
	})

	orch := orchestrator.New(orchestrator.Config{
		Orders:            orderRepo,
		Tasks:             taskRepo,
		Dispatcher:        pool,
		Notifier:          notifier,
		Locker:            locker,
		Blueprints:        engine.Blueprints{Strict: cfg.Orchestrator.StrictBlueprints},
		RetryDelay:        cfg.Orchestrator.RetryDelay,
		MaxRetries:        cfg.Orchestrator.MaxRetries,
		VisibilityTimeout: cfg.Orchestrator.VisibilityTimeout,
		ReconcileSpec:     cfg.Orchestrator.ReconcileSpec,
		Logger:            logger,
	})
	pool.SetOutcomeHandler(orch)

	service := orders.NewService(orders.Config{
		Orders:   orderRepo,
		Tasks:    taskRepo,
		Engine:   orch,
		IDs:      &orders.SequenceGenerator{},
		Notifier: notifier,
		Logger:   logger,
	})

	handler := api.NewHandler(api.Config{
		Orders: service,
		Hub:    hub,
		Logger: logger,
	})

	mux := bootstrap.OpsMux(time.Now())
	handler.RegisterRoutes(mux)

	addr := config.Addr(cfg.Ports.API)
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if err := pool.Start(ctx); err != nil {
		logger.Error("failed to start local pool", "error", err)
		os.Exit(1)
	}
	if err := orch.Start(ctx); err != nil {
		logger.Error("failed to start orchestrator", "error", err)
		os.Exit(1)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})

	g.Go(func() error {
		logger.Info("listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server error", "error", err)
	}

	orch.Stop()
	pool.Stop()

	logger.Info("orderflow-standalone stopped")
}
