package segstack

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/chenjie199234/segstack/smr"
)

// seglist keeps the segments newest first.
// Every change of the chain happens under lk, cells are never touched under lk except for reads.
type seglist[T any] struct {
	head atomic.Pointer[segment[T]]
	tail atomic.Pointer[segment[T]] //oldest linked segment

	lk       sync.Mutex
	segments atomic.Int64

	quasiFactor int
	pool        sync.Pool
	stat        Stat
	logger      *slog.Logger
}

func (l *seglist[T]) init(quasiFactor int, stat Stat, logger *slog.Logger) {
	l.quasiFactor = quasiFactor
	l.stat = stat
	l.logger = logger
}

func (l *seglist[T]) alloc() *segment[T] {
	if seg, ok := l.pool.Get().(*segment[T]); ok {
		return seg
	}
	return newSegment[T](l.quasiFactor)
}

func (l *seglist[T]) dispose(p unsafe.Pointer) {
	seg := (*segment[T])(p)
	seg.recycle()
	l.pool.Put(seg)
	l.stat.OnDisposeSegment()
}

// stale reports whether the caller's view of the front is out of date.
// A segment seen under a different version is a different segment.
func stale[T any](front, believed *segment[T], version uint64) bool {
	if front != believed {
		return true
	}
	return front != nil && front.version.Load() != version
}

// createHead puts a new segment in front of believed and returns it guarded by g.
// When believed is no longer the front, or still has empty cells, nothing is created
// and the actual front (maybe nil) is returned guarded instead.
func (l *seglist[T]) createHead(believed *segment[T], version uint64, g *smr.Guard) *segment[T] {
	l.lk.Lock()
	front := l.head.Load()
	if stale(front, believed, version) || (front != nil && !front.populated()) {
		//the front can't be retired while lk is held
		smr.Assign(g, front)
		l.lk.Unlock()
		return front
	}
	seg := l.alloc()
	seg.next = front
	if front == nil {
		l.tail.Store(seg)
	}
	l.head.Store(seg)
	smr.Assign(g, seg)
	n := l.segments.Add(1)
	l.lk.Unlock()

	l.stat.OnCreateSegment()
	l.logger.Debug("[segstack] segment created", slog.Uint64("version", seg.version.Load()), slog.Int64("segments", n))
	return seg
}

// removeHead unlinks believed when it is still the front and exhausted, and hands it to h for reclamation.
// It returns the new front guarded by g, or the unchanged actual front when nothing was removed.
func (l *seglist[T]) removeHead(h smr.Handle, believed *segment[T], version uint64, g *smr.Guard) *segment[T] {
	l.lk.Lock()
	front := l.head.Load()
	if front == nil {
		g.Clear()
		l.lk.Unlock()
		return nil
	}
	if stale(front, believed, version) {
		smr.Assign(g, front)
		l.lk.Unlock()
		return front
	}
	//mark before checking,a pusher that misses the mark has its cell seen by exhausted
	front.retired.Store(true)
	if !front.exhausted() {
		front.retired.Store(false)
		smr.Assign(g, front)
		l.lk.Unlock()
		return front
	}
	next := front.next
	l.head.Store(next)
	if next == nil {
		l.tail.Store(nil)
	}
	smr.Assign(g, next)
	n := l.segments.Add(-1)
	l.lk.Unlock()

	h.Retire(unsafe.Pointer(front), l.dispose)
	l.stat.OnDeleteSegment()
	l.logger.Debug("[segstack] segment removed", slog.Uint64("version", version), slog.Int64("segments", n))
	return next
}
