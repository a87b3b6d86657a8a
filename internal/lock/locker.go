// Package lock предоставляет взаимное исключение по ключу.
//
// Все read-modify-write операции над заказом и его tasks выполняются
// внутри Lock(ctx, OrderKey(orderID)). Реализации:
//   - KeyedMutex  — в пределах одного процесса
//   - RedisLocker — между процессами (SET NX PX + Lua release)
package lock

import (
	"context"
	"errors"
	"sync"
)

// ErrNotAcquired — блокировку не удалось получить до отмены контекста.
var ErrNotAcquired = errors.New("lock not acquired")

// Locker выдаёт эксклюзивную блокировку по ключу.
//
// Lock блокируется, пока блокировка не получена или ctx не отменён.
// Возвращённую unlock нужно вызвать ровно один раз.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// TryLocker — Locker с одной попыткой без ожидания.
//
// ok=false значит, что блокировку держит кто-то другой.
type TryLocker interface {
	Locker
	TryLock(ctx context.Context, key string) (unlock func(), ok bool, err error)
}

// OrderKey возвращает ключ блокировки заказа.
func OrderKey(orderID string) string {
	return "order:" + orderID
}

// KeyedMutex — Locker внутри процесса.
//
// Для каждого занятого ключа хранится канал ёмкостью 1; запись удаляется,
// когда на ключе больше никого нет.
type KeyedMutex struct {
	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	ch   chan struct{}
	refs int
}

var _ TryLocker = (*KeyedMutex)(nil)

// NewKeyedMutex создаёт новый KeyedMutex.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{entries: make(map[string]*entry)}
}

// Lock реализует Locker.
func (m *KeyedMutex) Lock(ctx context.Context, key string) (func(), error) {
	m.mu.Lock()
	e, ok := m.entries[key]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		m.entries[key] = e
	}
	e.refs++
	m.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		m.release(key, e)
		return nil, errors.Join(ErrNotAcquired, ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.ch
			m.release(key, e)
		})
	}, nil
}

// TryLock реализует TryLocker.
func (m *KeyedMutex) TryLock(_ context.Context, key string) (func(), bool, error) {
	m.mu.Lock()
	e, ok := m.entries[key]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		m.entries[key] = e
	}
	e.refs++
	m.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
	default:
		m.release(key, e)
		return nil, false, nil
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.ch
			m.release(key, e)
		})
	}, true, nil
}

// release уменьшает счётчик ссылок и удаляет пустую запись.
func (m *KeyedMutex) release(key string, e *entry) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e.refs--
	if e.refs == 0 {
		delete(m.entries, key)
	}
}

// Len возвращает количество ключей, на которых кто-то держит или ждёт блокировку.
func (m *KeyedMutex) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
