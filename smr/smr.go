// Package smr provides safe memory reclamation for lock-free containers.
//
// A goroutine that is about to dereference a shared pointer first publishes
// it in a Guard obtained from a Handle. An object unlinked from a shared
// structure is handed to Handle.Retire together with a disposer, and the
// disposer runs only after no Guard of the Domain publishes that object.
//
// Go's garbage collector already prevents use after free of the raw memory.
// What the domain protects is object reuse: a disposer typically resets an
// object and puts it back into a pool, and that must never happen while some
// goroutine still reads the object.
package smr

import (
	"errors"
	"sync/atomic"
	"unsafe"
)

// ErrGuardIndex is the panic value when a guard index is outside the configured guard count
var ErrGuardIndex = errors.New("[smr] guard index out of range")

// Domain hands out guard sets and defers reclamation of retired objects
type Domain interface {
	// Attach claims a guard set for the calling goroutine.
	// The returned Handle must be detached by the same goroutine and must not be shared.
	Attach() Handle
	// Scan disposes every retired object no guard publishes, including objects
	// retired through handles that are currently detached.
	Scan()
	Statistics() Stats
}

// Handle is the per goroutine view of a Domain
type Handle interface {
	Guard(i int) *Guard
	// Retire schedules p for disposal once no guard publishes it
	Retire(p unsafe.Pointer, dispose func(unsafe.Pointer))
	// Detach clears every guard and gives the handle back to the domain
	Detach()
}

// Stats is a snapshot of the domain counters
type Stats struct {
	Records   uint64 // guard sets ever allocated
	Retired   uint64 // Retire calls
	Freed     uint64 // disposers run
	Scans     uint64
	HelpScans uint64 // scans run on behalf of detached handles
}

// Pending is the number of retired objects whose disposer has not run yet
func (s Stats) Pending() uint64 {
	return s.Retired - s.Freed
}

// Guard publishes one pointer as in use
type Guard struct {
	p unsafe.Pointer
}

func (g *Guard) Set(p unsafe.Pointer) {
	atomic.StorePointer(&g.p, p)
}
func (g *Guard) Get() unsafe.Pointer {
	return atomic.LoadPointer(&g.p)
}
func (g *Guard) Clear() {
	atomic.StorePointer(&g.p, nil)
}

// Protect reads src and publishes the value in g.
// The read is repeated until the published value is still the current one,
// so the returned object was reachable from src after it became guarded.
func Protect[T any](g *Guard, src *atomic.Pointer[T]) *T {
	p := src.Load()
	for {
		g.Set(unsafe.Pointer(p))
		cur := src.Load()
		if cur == p {
			return p
		}
		p = cur
	}
}

// Assign publishes an already obtained pointer in g.
// The caller must know p cannot be disposed concurrently, usually because another guard already holds it.
func Assign[T any](g *Guard, p *T) *T {
	g.Set(unsafe.Pointer(p))
	return p
}
