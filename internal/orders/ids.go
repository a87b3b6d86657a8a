package orders

import (
	"crypto/rand"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
)

// OrderIDPrefix — префикс идентификаторов заказов.
const OrderIDPrefix = "ORD-"

// IDGenerator выдаёт идентификаторы новых заказов.
type IDGenerator interface {
	NewOrderID() string
}

// ULIDGenerator выдаёт ORD-<ULID>. ID, выданные в одну миллисекунду,
// строго возрастают, поэтому сортировка по ID совпадает с порядком создания.
type ULIDGenerator struct {
	mu      sync.Mutex
	entropy io.Reader
	now     func() time.Time
}

// NewULIDGenerator создаёт генератор на crypto/rand.
func NewULIDGenerator() *ULIDGenerator {
	return &ULIDGenerator{
		entropy: ulid.Monotonic(rand.Reader, 0),
		now:     time.Now,
	}
}

// NewOrderID реализует IDGenerator.
func (g *ULIDGenerator) NewOrderID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return OrderIDPrefix + ulid.MustNew(ulid.Timestamp(g.now()), g.entropy).String()
}

// SequenceGenerator выдаёт ORD-0001, ORD-0002, ...
// Используется в standalone-режиме и тестах.
type SequenceGenerator struct {
	n atomic.Int64
}

// NewOrderID реализует IDGenerator.
func (g *SequenceGenerator) NewOrderID() string {
	return fmt.Sprintf("%s%04d", OrderIDPrefix, g.n.Add(1))
}
