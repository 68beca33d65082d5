package smr

import (
	"log/slog"
	"sync/atomic"
	"unsafe"
)

const (
	DefaultGuardCount    = 3
	DefaultScanThreshold = 64
)

type Config struct {
	// GuardCount is the number of guards every handle carries, default 3
	GuardCount int
	// ScanThreshold is the retired list length that triggers a scan, default 64
	ScanThreshold int
	// Logger defaults to slog.Default()
	Logger *slog.Logger
}

func (c *Config) validate() {
	if c.GuardCount <= 0 {
		c.GuardCount = DefaultGuardCount
	}
	if c.ScanThreshold <= 0 {
		c.ScanThreshold = DefaultScanThreshold
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// HP is a hazard pointer domain.
// Guard sets live in records that are linked once and never unlinked,
// a record is claimed by Attach and given back by Detach.
type HP struct {
	c    Config
	head atomic.Pointer[record]

	records   atomic.Uint64
	retired   atomic.Uint64
	freed     atomic.Uint64
	scans     atomic.Uint64
	helpscans atomic.Uint64
}

type retiredPtr struct {
	p       unsafe.Pointer
	dispose func(unsafe.Pointer)
}

type record struct {
	d     *HP
	next  *record //immutable after the record is linked
	owned atomic.Bool

	guards []Guard
	//only touched by the owner of the record
	retired []retiredPtr
}

func NewDomain(c Config) *HP {
	c.validate()
	return &HP{c: c}
}

func (d *HP) GuardCount() int {
	return d.c.GuardCount
}

func (d *HP) Attach() Handle {
	for r := d.head.Load(); r != nil; r = r.next {
		if !r.owned.Load() && r.owned.CompareAndSwap(false, true) {
			return r
		}
	}
	r := &record{
		d:       d,
		guards:  make([]Guard, d.c.GuardCount),
		retired: make([]retiredPtr, 0, d.c.ScanThreshold),
	}
	r.owned.Store(true)
	for {
		old := d.head.Load()
		r.next = old
		if d.head.CompareAndSwap(old, r) {
			break
		}
	}
	d.records.Add(1)
	return r
}

// Scan helps every detached record: its retired objects that are no longer guarded get disposed.
// Records attached right now are skipped, their owners scan them on Retire.
func (d *HP) Scan() {
	var helped int
	before := d.freed.Load()
	for r := d.head.Load(); r != nil; r = r.next {
		if r.owned.Load() || !r.owned.CompareAndSwap(false, true) {
			continue
		}
		if len(r.retired) > 0 {
			d.scan(r)
			d.helpscans.Add(1)
			helped++
		}
		r.owned.Store(false)
	}
	if helped > 0 {
		d.c.Logger.Debug("[smr] help scan finished",
			slog.Int("records", helped),
			slog.Uint64("freed", d.freed.Load()-before),
			slog.Uint64("pending", d.Statistics().Pending()))
	}
}

func (d *HP) Statistics() Stats {
	return Stats{
		Records:   d.records.Load(),
		Retired:   d.retired.Load(),
		Freed:     d.freed.Load(),
		Scans:     d.scans.Load(),
		HelpScans: d.helpscans.Load(),
	}
}

// scan must be called by the owner of r
func (d *HP) scan(r *record) {
	d.scans.Add(1)
	if len(r.retired) == 0 {
		return
	}
	hazards := make(map[unsafe.Pointer]struct{}, int(d.records.Load())*d.c.GuardCount)
	for rr := d.head.Load(); rr != nil; rr = rr.next {
		for i := range rr.guards {
			if p := rr.guards[i].Get(); p != nil {
				hazards[p] = struct{}{}
			}
		}
	}
	kept := r.retired[:0]
	var freed uint64
	for _, rp := range r.retired {
		if _, ok := hazards[rp.p]; ok {
			kept = append(kept, rp)
			continue
		}
		rp.dispose(rp.p)
		freed++
	}
	for i := len(kept); i < len(r.retired); i++ {
		r.retired[i] = retiredPtr{}
	}
	r.retired = kept
	d.freed.Add(freed)
}

func (r *record) Guard(i int) *Guard {
	if i < 0 || i >= len(r.guards) {
		panic(ErrGuardIndex)
	}
	return &r.guards[i]
}

func (r *record) Retire(p unsafe.Pointer, dispose func(unsafe.Pointer)) {
	if p == nil {
		return
	}
	r.retired = append(r.retired, retiredPtr{p: p, dispose: dispose})
	r.d.retired.Add(1)
	if len(r.retired) >= r.d.c.ScanThreshold {
		r.d.scan(r)
	}
}

func (r *record) Detach() {
	for i := range r.guards {
		r.guards[i].Clear()
	}
	r.owned.Store(false)
}
