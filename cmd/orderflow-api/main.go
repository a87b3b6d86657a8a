// Orderflow API — HTTP API заказов и WebSocket-уведомления.
//
// API:
//   - Создаёт заказы и меняет их статус
//   - При переходе в IN_PROGRESS материализует tasks и отдаёт их в RabbitMQ
//   - Транслирует события из RabbitMQ клиентам /ws
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shaiso/Orderflow/internal/api"
	"github.com/shaiso/Orderflow/internal/bootstrap"
	"github.com/shaiso/Orderflow/internal/config"
	"github.com/shaiso/Orderflow/internal/engine"
	"github.com/shaiso/Orderflow/internal/mq"
	"github.com/shaiso/Orderflow/internal/notify"
	"github.com/shaiso/Orderflow/internal/orchestrator"
	"github.com/shaiso/Orderflow/internal/orders"
	"github.com/shaiso/Orderflow/internal/repo"
	"github.com/shaiso/Orderflow/internal/telemetry"
)

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger("orderflow-api")
	logger.Info("starting orderflow-api")

	cfg, err := config.Load("")
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Подключаемся к базе данных
	pool, err := repo.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := repo.EnsureSchema(ctx, pool); err != nil {
		logger.Error("failed to apply schema", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to database")

	orderRepo := repo.NewOrderRepo(pool)
	taskRepo := repo.NewTaskRepo(pool)

	// RabbitMQ обязателен: без него tasks не дойдут до workers
	mqConn, err := mq.NewConnection(cfg.RabbitMQURL, logger)
	if err != nil {
		logger.Error("failed to connect to RabbitMQ", "error", err)
		os.Exit(1)
	}
	defer mqConn.Close()

	if err := mq.SetupTopology(ctx, mqConn); err != nil {
		logger.Error("failed to setup topology", "error", err)
		os.Exit(1)
	}
	publisher := mq.NewPublisher(mqConn, logger)
	logger.Info("RabbitMQ connected")

	locker, closeLocker, err := bootstrap.Locker(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to create locker", "error", err)
		os.Exit(1)
	}
	defer closeLocker()

	notifier, closeNotifier := bootstrap.Notifier(cfg, publisher, logger)
	defer closeNotifier()

	// Оркестратор без Start: переходы, материализация и отправка tasks.
	// Результаты tasks обрабатывает orderflow-orchestrator.
	orch := orchestrator.New(orchestrator.Config{
		Orders:     orderRepo,
		Tasks:      taskRepo,
		Dispatcher: publisher,
		Notifier:   notifier,
		Locker:     locker,
		Blueprints: engine.Blueprints{Strict: cfg.Orchestrator.StrictBlueprints},
		MaxRetries: cfg.Orchestrator.MaxRetries,
		Logger:     logger,
	})

	service := orders.NewService(orders.Config{
		Orders:   orderRepo,
		Tasks:    taskRepo,
		Engine:   orch,
		Notifier: notifier,
		Logger:   logger,
	})

	// Hub получает события всех процессов через fanout orderflow.events
	hub := notify.NewHub(logger)
	go hub.Run(ctx)

	relay := api.NewEventRelay(mqConn, hub, logger)
	go func() {
		if err := relay.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("event relay error", "error", err)
		}
	}()

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

	go func() {
		logger.Info("listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			cancel()
		}
	}()

	// Ожидаем сигнал завершения
	<-ctx.Done()
	logger.Info("shutting down")

	relay.Stop()

	// Graceful shutdown с таймаутом 10 секунд
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	logger.Info("orderflow-api stopped")
}
