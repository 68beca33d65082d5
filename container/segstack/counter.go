package segstack

import (
	"sync/atomic"
)

// ItemCounter tracks how many values a Stack holds.
// Empty and Size are answered from it, so it must really count.
type ItemCounter interface {
	Inc()
	Dec()
	Value() int64
}

// AtomicCounter is the default ItemCounter
type AtomicCounter struct {
	n atomic.Int64
}

func (c *AtomicCounter) Inc()         { c.n.Add(1) }
func (c *AtomicCounter) Dec()         { c.n.Add(-1) }
func (c *AtomicCounter) Value() int64 { return c.n.Load() }

// EmptyCounter counts nothing.
// Other containers accept it, New rejects it with ErrNoopCounter.
type EmptyCounter struct{}

func (EmptyCounter) Inc()         {}
func (EmptyCounter) Dec()         {}
func (EmptyCounter) Value() int64 { return 0 }

func noopCounter(c ItemCounter) bool {
	switch c.(type) {
	case EmptyCounter, *EmptyCounter:
		return true
	}
	return false
}
