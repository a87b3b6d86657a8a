// Orderflow Orchestrator — ведёт заказы по их tasks.
//
// Orchestrator:
//   - Получает результаты tasks из tasks.completed
//   - Отдаёт разблокированные tasks и повторяет упавшие
//   - Финализирует заказы (COMPLETED/FAILED)
//   - Подбирает зависшие tasks по расписанию (reconcile)
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
	"github.com/shaiso/Orderflow/internal/engine"
	"github.com/shaiso/Orderflow/internal/mq"
	"github.com/shaiso/Orderflow/internal/orchestrator"
	"github.com/shaiso/Orderflow/internal/repo"
	"github.com/shaiso/Orderflow/internal/telemetry"
)

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger("orderflow-orchestrator")
	logger.Info("starting orderflow-orchestrator")

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

	orch := orchestrator.New(orchestrator.Config{
		Orders:            repo.NewOrderRepo(pool),
		Tasks:             repo.NewTaskRepo(pool),
		Dispatcher:        publisher,
		Notifier:          notifier,
		Locker:            locker,
		Blueprints:        engine.Blueprints{Strict: cfg.Orchestrator.StrictBlueprints},
		RetryDelay:        cfg.Orchestrator.RetryDelay,
		MaxRetries:        cfg.Orchestrator.MaxRetries,
		VisibilityTimeout: cfg.Orchestrator.VisibilityTimeout,
		ReconcileSpec:     cfg.Orchestrator.ReconcileSpec,
		Conn:              mqConn,
		Logger:            logger,
	})

	if err := orch.Start(ctx); err != nil {
		logger.Error("failed to start orchestrator", "error", err)
		os.Exit(1)
	}

	// HTTP: /healthz + /metrics
	addr := config.Addr(cfg.Ports.Orchestrator)
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

	orch.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = server.Shutdown(shutdownCtx)

	logger.Info("orderflow-orchestrator stopped")
}
