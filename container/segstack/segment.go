package segstack

import (
	"sync/atomic"
)

type segment[T any] struct {
	next    *segment[T] //protected by the list lock
	version atomic.Uint64
	retired atomic.Bool
	cells   []cell[T]
}

func newSegment[T any](quasiFactor int) *segment[T] {
	return &segment[T]{cells: make([]cell[T], quasiFactor)}
}

// populated reports whether no cell is empty any more.
// Called with the list lock held.
func (s *segment[T]) populated() bool {
	for i := range s.cells {
		if s.cells[i].state() == cellEmpty {
			return false
		}
	}
	return true
}

// exhausted reports whether no cell holds a value a pop could still claim.
// Called with the list lock held.
func (s *segment[T]) exhausted() bool {
	for i := range s.cells {
		if s.cells[i].state() == cellOccupied {
			return false
		}
	}
	return true
}

// recycle prepares a reclaimed segment for reuse under a new version.
// Called by the reclaimer once no guard can reach the segment.
func (s *segment[T]) recycle() {
	s.next = nil
	for i := range s.cells {
		s.cells[i].reset()
	}
	s.retired.Store(false)
	s.version.Add(1)
}
