package segstack

import (
	"sync/atomic"
)

// Stat receives the internal events of a Stack.
// It is purely observational.
type Stat interface {
	OnPush()
	OnPushPopulated() //a push skipped a non empty cell
	OnPushContended() //a push lost the race for an empty cell
	OnPop()
	OnPopEmpty()
	OnPopContended() //a pop lost the race for an occupied cell
	OnCreateSegment()
	OnDeleteSegment()
	OnDisposeSegment() //a removed segment was reclaimed
	OnSucceededCommit()
	OnFailedCommit() //a push landed in a retired segment and was placed again
	Snapshot() Snapshot
}

type Snapshot struct {
	Push            uint64
	PushPopulated   uint64
	PushContended   uint64
	Pop             uint64
	PopEmpty        uint64
	PopContended    uint64
	CreateSegment   uint64
	DeleteSegment   uint64
	DisposeSegment  uint64
	SucceededCommit uint64
	FailedCommit    uint64
}

// EmptyStat drops every event, it is the default
type EmptyStat struct{}

func (EmptyStat) OnPush()            {}
func (EmptyStat) OnPushPopulated()   {}
func (EmptyStat) OnPushContended()   {}
func (EmptyStat) OnPop()             {}
func (EmptyStat) OnPopEmpty()        {}
func (EmptyStat) OnPopContended()    {}
func (EmptyStat) OnCreateSegment()   {}
func (EmptyStat) OnDeleteSegment()   {}
func (EmptyStat) OnDisposeSegment()  {}
func (EmptyStat) OnSucceededCommit() {}
func (EmptyStat) OnFailedCommit()    {}
func (EmptyStat) Snapshot() Snapshot { return Snapshot{} }

// AtomicStat counts every event
type AtomicStat struct {
	push            atomic.Uint64
	pushPopulated   atomic.Uint64
	pushContended   atomic.Uint64
	pop             atomic.Uint64
	popEmpty        atomic.Uint64
	popContended    atomic.Uint64
	createSegment   atomic.Uint64
	deleteSegment   atomic.Uint64
	disposeSegment  atomic.Uint64
	succeededCommit atomic.Uint64
	failedCommit    atomic.Uint64
}

func (s *AtomicStat) OnPush()            { s.push.Add(1) }
func (s *AtomicStat) OnPushPopulated()   { s.pushPopulated.Add(1) }
func (s *AtomicStat) OnPushContended()   { s.pushContended.Add(1) }
func (s *AtomicStat) OnPop()             { s.pop.Add(1) }
func (s *AtomicStat) OnPopEmpty()        { s.popEmpty.Add(1) }
func (s *AtomicStat) OnPopContended()    { s.popContended.Add(1) }
func (s *AtomicStat) OnCreateSegment()   { s.createSegment.Add(1) }
func (s *AtomicStat) OnDeleteSegment()   { s.deleteSegment.Add(1) }
func (s *AtomicStat) OnDisposeSegment()  { s.disposeSegment.Add(1) }
func (s *AtomicStat) OnSucceededCommit() { s.succeededCommit.Add(1) }
func (s *AtomicStat) OnFailedCommit()    { s.failedCommit.Add(1) }

func (s *AtomicStat) Snapshot() Snapshot {
	return Snapshot{
		Push:            s.push.Load(),
		PushPopulated:   s.pushPopulated.Load(),
		PushContended:   s.pushContended.Load(),
		Pop:             s.pop.Load(),
		PopEmpty:        s.popEmpty.Load(),
		PopContended:    s.popContended.Load(),
		CreateSegment:   s.createSegment.Load(),
		DeleteSegment:   s.deleteSegment.Load(),
		DisposeSegment:  s.disposeSegment.Load(),
		SucceededCommit: s.succeededCommit.Load(),
		FailedCommit:    s.failedCommit.Load(),
	}
}
