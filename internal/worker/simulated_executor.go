package worker

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/shaiso/Orderflow/internal/domain"
)

// Параметры имитации backend'а по умолчанию.
const (
	DefaultSimMinDelay    = 1 * time.Second
	DefaultSimMaxDelay    = 3 * time.Second
	DefaultSimFailureRate = 0.15
)

// SimulatedExecutor имитирует backend provisioning: случайная задержка
// в [MinDelay, MaxDelay) и отказ с вероятностью FailureRate.
//
// Используется в standalone-режиме и для демонстраций.
type SimulatedExecutor struct {
	MinDelay    time.Duration
	MaxDelay    time.Duration
	FailureRate float64

	// Rand — источник случайности (для тестов, не потокобезопасен). nil — глобальный.
	Rand *rand.Rand

	// Now — источник времени для completedAt. nil — time.Now.
	Now func() time.Time
}

// NewSimulatedExecutor создаёт SimulatedExecutor с параметрами по умолчанию.
func NewSimulatedExecutor() *SimulatedExecutor {
	return &SimulatedExecutor{
		MinDelay:    DefaultSimMinDelay,
		MaxDelay:    DefaultSimMaxDelay,
		FailureRate: DefaultSimFailureRate,
	}
}

// Execute ждёт случайную задержку и возвращает успех или имитированный отказ.
func (e *SimulatedExecutor) Execute(ctx context.Context, task *domain.Task) (*Result, error) {
	select {
	case <-time.After(e.delay()):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if e.float() < e.FailureRate {
		return nil, fmt.Errorf("%w for %s", ErrSimulatedFailure, task.TaskType)
	}

	now := time.Now
	if e.Now != nil {
		now = e.Now
	}

	return &Result{Data: map[string]any{
		"taskType":    string(task.TaskType),
		"completedAt": now().UTC().Format(time.RFC3339Nano),
	}}, nil
}

func (e *SimulatedExecutor) delay() time.Duration {
	if e.MaxDelay <= e.MinDelay {
		return max(e.MinDelay, 0)
	}
	span := int64(e.MaxDelay - e.MinDelay)
	if e.Rand != nil {
		return e.MinDelay + time.Duration(e.Rand.Int64N(span))
	}
	return e.MinDelay + time.Duration(rand.Int64N(span))
}

func (e *SimulatedExecutor) float() float64 {
	if e.Rand != nil {
		return e.Rand.Float64()
	}
	return rand.Float64()
}
