package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Значения по умолчанию для RedisLocker.
const (
	DefaultLockTTL       = 30 * time.Second
	DefaultRetryInterval = 50 * time.Millisecond
	DefaultKeyPrefix     = "orderflow:lock:"
)

// releaseScript удаляет ключ, только если он всё ещё принадлежит владельцу.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisConfig — конфигурация RedisLocker.
type RedisConfig struct {
	// TTL — время жизни блокировки, если владелец пропал.
	TTL time.Duration

	// RetryInterval — пауза между попытками SET NX.
	RetryInterval time.Duration

	// KeyPrefix — префикс ключей в Redis.
	KeyPrefix string

	// Logger — логгер.
	Logger *slog.Logger
}

// RedisLocker — распределённый Locker поверх Redis.
//
// Блокировка — ключ со случайным токеном и TTL. Снятие — Lua-скрипт
// compare-and-delete, чтобы не удалить чужую блокировку после истечения TTL.
type RedisLocker struct {
	client redis.UniversalClient
	config RedisConfig
	logger *slog.Logger
}

var _ TryLocker = (*RedisLocker)(nil)

// NewRedisLocker создаёт новый RedisLocker.
func NewRedisLocker(client redis.UniversalClient, cfg RedisConfig) *RedisLocker {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultLockTTL
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = DefaultRetryInterval
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = DefaultKeyPrefix
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &RedisLocker{
		client: client,
		config: cfg,
		logger: cfg.Logger.With("component", "redis-locker"),
	}
}

// NewRedisClient подключается к Redis по URL (redis://host:port/db).
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// Lock реализует Locker.
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	fullKey := l.config.KeyPrefix + key
	token := uuid.NewString()

	ticker := time.NewTicker(l.config.RetryInterval)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, fullKey, token, l.config.TTL).Result()
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("redis set nx %s: %w", fullKey, err)
		}
		if ok {
			return l.unlockFunc(fullKey, token), nil
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return nil, errors.Join(ErrNotAcquired, ctx.Err())
		}
	}
}

// TryLock реализует TryLocker: один SET NX без повторов.
func (l *RedisLocker) TryLock(ctx context.Context, key string) (func(), bool, error) {
	fullKey := l.config.KeyPrefix + key
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, fullKey, token, l.config.TTL).Result()
	if err != nil {
		return nil, false, fmt.Errorf("redis set nx %s: %w", fullKey, err)
	}
	if !ok {
		return nil, false, nil
	}
	return l.unlockFunc(fullKey, token), true, nil
}

// unlockFunc возвращает функцию снятия блокировки.
//
// Снятие выполняется с отдельным таймаутом: контекст вызывающего
// к этому моменту может быть уже отменён.
func (l *RedisLocker) unlockFunc(key, token string) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		n, err := releaseScript.Run(ctx, l.client, []string{key}, token).Int()
		if err != nil {
			l.logger.Error("failed to release lock", "key", key, "error", err)
			return
		}
		if n == 0 {
			l.logger.Warn("lock expired before release", "key", key)
		}
	}
}
