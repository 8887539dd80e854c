package pools

import (
	"sync"
	"sync/atomic"
)

// Poolable is implemented by per-connection records that can be recycled
// once their connection is closed.
type Poolable interface {
	Reset()
}

// ConnectionPool recycles per-connection worker records.
type ConnectionPool[T Poolable] struct {
	pool sync.Pool
	gets atomic.Uint64
	puts atomic.Uint64
	news atomic.Uint64
}

// NewConnectionPool creates a new connection pool
func NewConnectionPool[T Poolable](newFunc func() T) *ConnectionPool[T] {
	cp := &ConnectionPool[T]{}
	cp.pool.New = func() any {
		cp.news.Add(1)
		return newFunc()
	}
	return cp
}

// Get retrieves a record from the pool
func (cp *ConnectionPool[T]) Get() T {
	cp.gets.Add(1)
	return cp.pool.Get().(T)
}

// Put resets obj and returns it to the pool
func (cp *ConnectionPool[T]) Put(obj T) {
	obj.Reset()
	cp.puts.Add(1)
	cp.pool.Put(obj)
}

// Stats returns pool statistics. hitRate is the share of Gets served without
// constructing a new record.
func (cp *ConnectionPool[T]) Stats() (gets, puts uint64, hitRate float64) {
	g := cp.gets.Load()
	p := cp.puts.Load()
	n := cp.news.Load()

	if g > 0 && n <= g {
		hitRate = float64(g-n) / float64(g)
	}

	return g, p, hitRate
}
