package segstack

import (
	"sync/atomic"
)

// payload boxes one pushed value.
// A cell never stores the payload itself but one of its two markers,
// so presence and the deleted mark change together in a single pointer CAS.
type payload[T any] struct {
	value T
	live  marker[T]
	dead  marker[T]
}

type marker[T any] struct {
	p       *payload[T]
	deleted bool
}

func newPayload[T any](v T) *payload[T] {
	p := &payload[T]{value: v}
	p.live.p = p
	p.dead.p = p
	p.dead.deleted = true
	return p
}

type cellState int

const (
	cellEmpty cellState = iota
	cellOccupied
	cellRetired
)

func (s cellState) String() string {
	switch s {
	case cellEmpty:
		return "empty"
	case cellOccupied:
		return "occupied"
	case cellRetired:
		return "retired"
	}
	return "unknown"
}

// cell transitions: empty -> occupied -> retired, a retired cell only becomes
// empty again when its whole segment is recycled.
type cell[T any] struct {
	m atomic.Pointer[marker[T]]
}

func (c *cell[T]) load() (*payload[T], bool) {
	m := c.m.Load()
	if m == nil {
		return nil, false
	}
	return m.p, m.deleted
}

func (c *cell[T]) state() cellState {
	m := c.m.Load()
	switch {
	case m == nil:
		return cellEmpty
	case m.deleted:
		return cellRetired
	default:
		return cellOccupied
	}
}

func (c *cell[T]) tryOccupy(p *payload[T]) bool {
	return c.m.CompareAndSwap(nil, &p.live)
}

func (c *cell[T]) tryRetire(p *payload[T]) bool {
	return c.m.CompareAndSwap(&p.live, &p.dead)
}

// only safe when no goroutine can reach the cell
func (c *cell[T]) reset() {
	c.m.Store(nil)
}
