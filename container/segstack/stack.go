// Package segstack implements a segmented lock-free stack.
//
// Values live in fixed size segments of quasi-factor cells. Any empty cell of
// the newest segment can take a push and any occupied cell of it can serve a
// pop, so the stack is only LIFO between segments and relaxed inside one.
// That trade lets up to quasi-factor goroutines push or pop without touching
// the same word.
package segstack

import (
	"errors"
	"log/slog"
	"math/bits"

	"github.com/chenjie199234/segstack/smr"
)

var ErrNoopCounter = errors.New("[segstack] item counter must count,Empty and Size depend on it")
var ErrGuardCount = errors.New("[segstack] smr domain must provide at least 3 guards")

// guard slots used inside one operation
const (
	segGuard  = iota //segment being scanned
	listGuard        //result of createHead or removeHead
	itemGuard        //payload being handed out by Pop
	guardNeed
)

// thread safe
type Stack[T any] struct {
	list    seglist[T]
	domain  smr.Domain
	counter ItemCounter
	stat    Stat
	logger  *slog.Logger
}

// New creates a stack with quasiFactor cells per segment,
// rounded up to the next power of two and at least 2.
func New[T any](quasiFactor int, opts ...Option) *Stack[T] {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.counter == nil {
		o.counter = &AtomicCounter{}
	}
	if noopCounter(o.counter) {
		o.logger.Error("[segstack] new stack failed", slog.String("error", ErrNoopCounter.Error()))
		panic(ErrNoopCounter)
	}
	if o.stat == nil {
		o.stat = EmptyStat{}
	}
	if o.domain == nil {
		o.domain = smr.NewDomain(smr.Config{GuardCount: guardNeed, Logger: o.logger})
	} else if gc, ok := o.domain.(interface{ GuardCount() int }); ok && gc.GuardCount() < guardNeed {
		o.logger.Error("[segstack] new stack failed", slog.String("error", ErrGuardCount.Error()), slog.Int("guards", gc.GuardCount()))
		panic(ErrGuardCount)
	}
	s := &Stack[T]{
		domain:  o.domain,
		counter: o.counter,
		stat:    o.stat,
		logger:  o.logger,
	}
	s.list.init(roundQuasiFactor(quasiFactor), o.stat, o.logger)
	return s
}

func roundQuasiFactor(n int) int {
	if n <= 2 {
		return 2
	}
	return 1 << bits.Len(uint(n-1))
}

// Push always succeeds, new segments are made when the newest one is full
func (s *Stack[T]) Push(data T) bool {
	s.counter.Inc()
	h := s.domain.Attach()
	defer h.Detach()
	s.place(h, newPayload(data))
	s.stat.OnPush()
	return true
}

func (s *Stack[T]) place(h smr.Handle, p *payload[T]) {
	g, lg := h.Guard(segGuard), h.Guard(listGuard)
	seg := smr.Protect(g, &s.list.head)
	for {
		if seg == nil {
			seg = smr.Assign(g, s.list.createHead(nil, 0, lg))
			lg.Clear()
			continue
		}
		version := seg.version.Load()
		placed, retry := s.occupy(seg, p)
		if placed {
			return
		}
		if retry {
			seg = smr.Protect(g, &s.list.head)
			continue
		}
		//every cell was taken
		seg = smr.Assign(g, s.list.createHead(seg, version, lg))
		lg.Clear()
	}
}

// occupy scans seg upward for an empty cell and commits p into it.
// retry is set when the commit found seg retired and took p back.
func (s *Stack[T]) occupy(seg *segment[T], p *payload[T]) (placed, retry bool) {
	for i := range seg.cells {
		c := &seg.cells[i]
		if c.state() != cellEmpty {
			s.stat.OnPushPopulated()
			continue
		}
		if !c.tryOccupy(p) {
			s.stat.OnPushContended()
			continue
		}
		if !seg.retired.Load() {
			s.stat.OnSucceededCommit()
			return true, false
		}
		if !c.tryRetire(p) {
			//a pop already took it
			s.stat.OnSucceededCommit()
			return true, false
		}
		//nobody has seen p,place it again
		s.stat.OnFailedCommit()
		return false, true
	}
	return false, false
}

// Pop returns false only when the stack is empty
func (s *Stack[T]) Pop() (data T, ok bool) {
	h := s.domain.Attach()
	defer h.Detach()
	g, lg, ig := h.Guard(segGuard), h.Guard(listGuard), h.Guard(itemGuard)
	seg := smr.Protect(g, &s.list.head)
	for seg != nil {
		version := seg.version.Load()
		for i := len(seg.cells) - 1; i >= 0; i-- {
			c := &seg.cells[i]
			p, deleted := c.load()
			if p == nil || deleted {
				continue
			}
			if !c.tryRetire(p) {
				s.stat.OnPopContended()
				continue
			}
			data = smr.Assign(ig, p).value
			ig.Clear()
			s.counter.Dec()
			s.stat.OnPop()
			return data, true
		}
		seg = smr.Assign(g, s.list.removeHead(h, seg, version, lg))
		lg.Clear()
	}
	s.stat.OnPopEmpty()
	return
}

// Clear pops until the stack is empty.
// Values pushed concurrently may or may not be removed.
func (s *Stack[T]) Clear() {
	s.ClearWith(nil)
}

// ClearWith is Clear passing every removed value to dispose
func (s *Stack[T]) ClearWith(dispose func(T)) {
	for {
		data, ok := s.Pop()
		if !ok {
			return
		}
		if dispose != nil {
			dispose(data)
		}
	}
}

// Size is pushes minus pops seen so far,it may lag behind concurrent operations
func (s *Stack[T]) Size() int {
	return int(s.counter.Value())
}

func (s *Stack[T]) Empty() bool {
	return s.Size() == 0
}

// QuasiFactor returns the rounded number of cells per segment
func (s *Stack[T]) QuasiFactor() int {
	return s.list.quasiFactor
}

// Segments returns how many segments are linked right now
func (s *Stack[T]) Segments() int {
	return int(s.list.segments.Load())
}

func (s *Stack[T]) Statistics() Snapshot {
	return s.stat.Snapshot()
}

// Domain returns the reclaimer of removed segments,call its Scan to reclaim them eagerly
func (s *Stack[T]) Domain() smr.Domain {
	return s.domain
}
