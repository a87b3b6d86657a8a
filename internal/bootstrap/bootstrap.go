// Package bootstrap собирает общие зависимости сервисов из config.Config:
// блокировки по заказу, получателей уведомлений и служебный HTTP (healthz, metrics).
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Orderflow/internal/config"
	"github.com/shaiso/Orderflow/internal/lock"
	"github.com/shaiso/Orderflow/internal/notify"
)

// Locker возвращает RedisLocker, если задан RedisURL, иначе KeyedMutex.
// release закрывает клиент Redis.
func Locker(ctx context.Context, cfg *config.Config, logger *slog.Logger) (locker lock.Locker, release func(), err error) {
	if cfg.RedisURL == "" {
		logger.Warn("REDIS_URL not set, order locks are local to this process")
		return lock.NewKeyedMutex(), func() {}, nil
	}

	client, err := lock.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect redis: %w", err)
	}
	logger.Info("redis connected")

	return lock.NewRedisLocker(client, lock.RedisConfig{Logger: logger}), func() { _ = client.Close() }, nil
}

// Notifier добавляет к base публикацию в Kafka, если заданы брокеры.
// release закрывает writer Kafka.
func Notifier(cfg *config.Config, base notify.Notifier, logger *slog.Logger) (notifier notify.Notifier, release func()) {
	if cfg.Kafka.Brokers == "" {
		return base, func() {}
	}

	k := notify.NewKafkaNotifier(notify.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic), logger)
	logger.Info("publishing events to kafka", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic)

	return notify.Multi{base, k}, func() { _ = k.Close() }
}

// OpsMux возвращает mux с /healthz и /metrics.
func OpsMux(started time.Time) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "ok %s", time.Since(started).Round(time.Second))
	})
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}
