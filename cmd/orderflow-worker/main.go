// Orderflow Worker — выполняет tasks.
//
// Worker:
//   - Получает tasks из tasks.ready
//   - Выполняет их через backend provisioning (HTTP) или имитацию
//   - Отправляет результат в tasks.completed
//
// Workers масштабируются горизонтально.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shaiso/Orderflow/internal/bootstrap"
	"github.com/shaiso/Orderflow/internal/config"
	"github.com/shaiso/Orderflow/internal/mq"
	"github.com/shaiso/Orderflow/internal/repo"
	"github.com/shaiso/Orderflow/internal/telemetry"
	"github.com/shaiso/Orderflow/internal/worker"
)

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger("orderflow-worker")
	logger.Info("starting orderflow-worker")

	cfg, err := config.Load("")
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// DB pool
	pool, err := repo.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("database connected")

	taskRepo := repo.NewTaskRepo(pool)

	// RabbitMQ
	mqConn, err := mq.NewConnection(cfg.RabbitMQURL, logger)
	if err != nil {
		logger.Error("failed to connect to RabbitMQ", "error", err)
		os.Exit(1)
	}
	defer mqConn.Close()
	logger.Info("RabbitMQ connected")

	if err := mq.SetupTopology(ctx, mqConn); err != nil {
		logger.Error("failed to setup topology", "error", err)
		os.Exit(1)
	}
	publisher := mq.NewPublisher(mqConn, logger)

	locker, closeLocker, err := bootstrap.Locker(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to create locker", "error", err)
		os.Exit(1)
	}
	defer closeLocker()

	notifier, closeNotifier := bootstrap.Notifier(cfg, publisher, logger)
	defer closeNotifier()

	runner := worker.NewRunner(worker.RunnerConfig{
		Tasks:    taskRepo,
		Registry: newRegistry(cfg),
		Locker:   locker,
		Notifier: notifier,
		Timeout:  cfg.Worker.TaskTimeout,
		Logger:   logger,
	})

	w := worker.New(worker.Config{
		Runner:      runner,
		Tasks:       taskRepo,
		Publisher:   publisher,
		Conn:        mqConn,
		Concurrency: cfg.Worker.Concurrency,
		Logger:      logger,
	})

	if err := w.Start(ctx); err != nil {
		logger.Error("failed to start worker", "error", err)
		os.Exit(1)
	}

	// HTTP: /healthz + /metrics
	addr := config.Addr(cfg.Ports.Worker)
	server := &http.Server{
		Addr:              addr,
		Handler:           bootstrap.OpsMux(time.Now()),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	// Ожидаем сигнал завершения
	<-ctx.Done()

	w.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = server.Shutdown(shutdownCtx)

	logger.Info("orderflow-worker stopped")
}

// newRegistry: HTTPExecutor для всех типов, если задан PROVISIONING_URL,
// иначе имитация backend'а.
func newRegistry(cfg *config.Config) *worker.Registry {
	if cfg.Worker.ProvisioningURL != "" {
		return worker.NewRegistry(worker.NewHTTPExecutor(cfg.Worker.ProvisioningURL))
	}

	sim := cfg.Worker.Simulation
	return worker.NewRegistry(&worker.SimulatedExecutor{
		MinDelay:    sim.MinDelay,
		MaxDelay:    sim.MaxDelay,
		FailureRate: sim.FailureRate,
	})
}
