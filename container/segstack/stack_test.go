package segstack

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/chenjie199234/segstack/smr"

	"golang.org/x/sync/errgroup"
)

func Test_New(t *testing.T) {
	s := New[int](2)
	if s.QuasiFactor() != 2 {
		t.Fatal("quasi factor should be 2")
	}
	if !s.Empty() || s.Size() != 0 {
		t.Fatal("new stack should be empty")
	}
	if s.Segments() != 0 {
		t.Fatal("new stack should have no segment")
	}
	if New[int](100).QuasiFactor() != 128 {
		t.Fatal("quasi factor 100 should round to 128")
	}
	if New[int](1).QuasiFactor() != 2 {
		t.Fatal("quasi factor 1 should round to 2")
	}
}

func Test_NoopCounter(t *testing.T) {
	for _, c := range []ItemCounter{EmptyCounter{}, &EmptyCounter{}} {
		func() {
			defer func() {
				if r := recover(); r != ErrNoopCounter {
					t.Fatal("empty counter should be rejected with ErrNoopCounter")
				}
			}()
			New[int](4, WithItemCounter(c))
		}()
	}
}

func Test_GuardCount(t *testing.T) {
	defer func() {
		if r := recover(); r != ErrGuardCount {
			t.Fatal("domain with 2 guards should be rejected with ErrGuardCount")
		}
	}()
	New[int](4, WithDomain(smr.NewDomain(smr.Config{GuardCount: 2})))
}

func Test_PushPop(t *testing.T) {
	st := &AtomicStat{}
	s := New[string](2, WithStat(st))
	for _, v := range []string{"A", "B", "C"} {
		if !s.Push(v) {
			t.Fatal("push should always succeed")
		}
	}
	if s.Size() != 3 || s.Empty() {
		t.Fatal("size should be 3")
	}
	if s.Segments() != 2 || st.Snapshot().CreateSegment != 2 {
		t.Fatal("third push into quasi factor 2 should make the second segment")
	}
	for _, want := range []string{"C", "B", "A"} {
		v, ok := s.Pop()
		if !ok {
			t.Fatal("pop failed,should success")
		}
		if v != want {
			t.Fatalf("pop: %s,should be %s", v, want)
		}
	}
	if _, ok := s.Pop(); ok {
		t.Fatal("pop success,should fail on empty stack")
	}
	if s.Size() != 0 || !s.Empty() || s.Segments() != 0 {
		t.Fatal("stack should be empty")
	}
	snap := st.Snapshot()
	if snap.Push != 3 || snap.Pop != 3 || snap.PopEmpty != 1 || snap.DeleteSegment != 2 {
		t.Fatalf("unexpected stats: %+v", snap)
	}
	if snap.SucceededCommit != 3 || snap.FailedCommit != 0 {
		t.Fatalf("unexpected commit stats: %+v", snap)
	}
}

func Test_PopEmpty(t *testing.T) {
	st := &AtomicStat{}
	s := New[int](2, WithStat(st))
	for i := 0; i < 5; i++ {
		if _, ok := s.Pop(); ok {
			t.Fatal("pop success,should fail on empty stack")
		}
		if s.Size() != 0 {
			t.Fatal("pop on empty stack changed the size")
		}
	}
	if st.Snapshot().PopEmpty != 5 {
		t.Fatal("every empty pop should be counted")
	}
}

func Test_SingleNewSegment(t *testing.T) {
	st := &AtomicStat{}
	s := New[int](4, WithStat(st))
	for i := 0; i < 4; i++ {
		s.Push(i)
	}
	if s.Segments() != 1 || st.Snapshot().CreateSegment != 1 {
		t.Fatal("four pushes should fit one segment")
	}
	s.Push(4)
	if s.Segments() != 2 || st.Snapshot().CreateSegment != 2 {
		t.Fatal("push into a full segment should make exactly one new segment")
	}
}

func Test_Clear(t *testing.T) {
	s := New[int](2)
	s.Clear()
	if !s.Empty() {
		t.Fatal("clear on empty stack should leave it empty")
	}
	for i := 0; i < 10; i++ {
		s.Push(i)
	}
	var disposed int
	s.ClearWith(func(int) { disposed++ })
	if disposed != 10 {
		t.Fatalf("disposer called %d times,should be 10", disposed)
	}
	if !s.Empty() || s.Size() != 0 {
		t.Fatal("stack should be empty after clear")
	}
	s.Push(1)
	s.Clear()
	if !s.Empty() {
		t.Fatal("stack should be empty after clear")
	}
}

func Test_RelaxedOrder(t *testing.T) {
	s := New[int](4)
	for i := 0; i < 8; i++ {
		s.Push(i)
	}
	//segments are popped newest first,cells inside one from the top down
	for want := 7; want >= 0; want-- {
		v, ok := s.Pop()
		if !ok || v != want {
			t.Fatalf("pop: %d,should be %d", v, want)
		}
	}
}

func Test_SegmentReclaim(t *testing.T) {
	dom := smr.NewDomain(smr.Config{})
	st := &AtomicStat{}
	s := New[int](2, WithDomain(dom), WithStat(st))
	s.Push(1)
	s.Push(2)
	s.Push(3)

	reader := dom.Attach()
	seg := smr.Protect(reader.Guard(0), &s.list.head)
	version := seg.version.Load()

	if v, _ := s.Pop(); v != 3 {
		t.Fatal("first pop should return 3")
	}
	if v, _ := s.Pop(); v != 2 {
		t.Fatal("second pop should return 2")
	}
	if s.Segments() != 1 || st.Snapshot().DeleteSegment != 1 {
		t.Fatal("drained segment should be removed by the next pop")
	}
	if !seg.retired.Load() {
		t.Fatal("removed segment should be marked retired")
	}
	dom.Scan()
	if st.Snapshot().DisposeSegment != 0 || seg.version.Load() != version {
		t.Fatal("guarded segment was reclaimed")
	}
	reader.Detach()
	dom.Scan()
	if st.Snapshot().DisposeSegment != 1 {
		t.Fatal("unguarded segment should be reclaimed by scan")
	}
	if seg.version.Load() != version+1 || seg.retired.Load() {
		t.Fatal("reclaimed segment should be recycled")
	}
	if v, _ := s.Pop(); v != 1 {
		t.Fatal("third pop should return 1")
	}
}

func Test_CommitRace(t *testing.T) {
	st := &AtomicStat{}
	s := New[int](2, WithStat(st))
	s.Push(1)

	//a pusher that loaded the head and got delayed
	h := s.domain.Attach()
	seg := smr.Protect(h.Guard(segGuard), &s.list.head)

	if v, _ := s.Pop(); v != 1 {
		t.Fatal("pop should return 1")
	}
	if _, ok := s.Pop(); ok {
		t.Fatal("stack should be empty")
	}
	if !seg.retired.Load() || s.Segments() != 0 {
		t.Fatal("drained segment should be removed")
	}

	s.counter.Inc()
	p := newPayload(7)
	placed, retry := s.occupy(seg, p)
	if placed || !retry {
		t.Fatal("push into a retired segment should be taken back")
	}
	if seg.cells[1].state() != cellRetired {
		t.Fatal("taken back cell should stay retired")
	}
	s.place(h, p)
	h.Detach()

	if s.Size() != 1 {
		t.Fatal("size should count the replaced push once")
	}
	if v, ok := s.Pop(); !ok || v != 7 {
		t.Fatal("replaced value should be popped")
	}
	if snap := st.Snapshot(); snap.FailedCommit != 1 {
		t.Fatalf("failed commit: %d,should be 1", snap.FailedCommit)
	}
}

func Test_ListRaces(t *testing.T) {
	s := New[int](2)
	s.Push(1)
	h := s.domain.Attach()
	defer h.Detach()
	g, lg := h.Guard(segGuard), h.Guard(listGuard)
	seg := smr.Protect(g, &s.list.head)
	version := seg.version.Load()

	if got := s.list.createHead(nil, 0, lg); got != seg || s.Segments() != 1 {
		t.Fatal("create with a stale head should return the actual head")
	}
	if got := s.list.createHead(seg, version, lg); got != seg || s.Segments() != 1 {
		t.Fatal("create in front of a segment with empty cells should do nothing")
	}
	if got := s.list.createHead(seg, version+1, lg); got != seg || s.Segments() != 1 {
		t.Fatal("create with a stale version should return the actual head")
	}
	if got := s.list.removeHead(h, seg, version, lg); got != seg || seg.retired.Load() || s.Segments() != 1 {
		t.Fatal("remove of a segment holding values should do nothing")
	}
	if got := s.list.removeHead(h, nil, 0, lg); got != seg {
		t.Fatal("remove with a stale head should return the actual head")
	}
}

func Test_ConcurrentPush(t *testing.T) {
	s := New[int](64)
	const per = 10000
	g := errgroup.Group{}
	for w := 0; w < 2; w++ {
		w := w
		g.Go(func() error {
			for i := 0; i < per; i++ {
				s.Push(w*per + i)
			}
			return nil
		})
	}
	g.Wait()
	if s.Size() != 2*per {
		t.Fatalf("size: %d,should be %d", s.Size(), 2*per)
	}
	seen := make([]bool, 2*per)
	for {
		v, ok := s.Pop()
		if !ok {
			break
		}
		if seen[v] {
			t.Fatalf("value %d popped twice", v)
		}
		seen[v] = true
	}
	for v, ok := range seen {
		if !ok {
			t.Fatalf("value %d lost", v)
		}
	}
	if s.Size() != 0 {
		t.Fatal("size should be 0 after draining")
	}
}

func Test_ConcurrentPushPop(t *testing.T) {
	st := &AtomicStat{}
	s := New[int](8, WithStat(st))
	const pushers, poppers, per = 4, 4, 5000
	var working atomic.Int32
	working.Store(pushers)

	var lk sync.Mutex
	popped := make(map[int]int, pushers*per)
	g := errgroup.Group{}
	for w := 0; w < pushers; w++ {
		w := w
		g.Go(func() error {
			defer working.Add(-1)
			for i := 0; i < per; i++ {
				s.Push(w*per + i)
			}
			return nil
		})
	}
	for w := 0; w < poppers; w++ {
		g.Go(func() error {
			local := make([]int, 0, per)
			for !(working.Load() == 0 && s.Empty()) {
				if v, ok := s.Pop(); ok {
					local = append(local, v)
				}
			}
			lk.Lock()
			for _, v := range local {
				popped[v]++
			}
			lk.Unlock()
			return nil
		})
	}
	g.Wait()

	if len(popped) != pushers*per {
		t.Fatalf("popped %d distinct values,should be %d", len(popped), pushers*per)
	}
	for v, n := range popped {
		if n != 1 {
			t.Fatalf("value %d popped %d times", v, n)
		}
	}
	if s.Size() != 0 {
		t.Fatal("size should be 0")
	}
	snap := st.Snapshot()
	if snap.Push != pushers*per || snap.Pop != pushers*per {
		t.Fatalf("unexpected stats: %+v", snap)
	}
	if snap.SucceededCommit != snap.Push {
		t.Fatal("every push should end with exactly one succeeded commit")
	}
	if snap.CreateSegment < snap.DeleteSegment {
		t.Fatal("more segments removed than created")
	}
}

func Benchmark_PushPop(b *testing.B) {
	b.StopTimer()
	s := New[int](64)
	wg := &sync.WaitGroup{}
	var count uint32
	b.ResetTimer()
	b.StartTimer()
	wg.Add(20)
	for i := 0; i < 10; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < 100000; j++ {
				s.Push(j)
			}
		}()
		go func() {
			defer wg.Done()
			for atomic.LoadUint32(&count) < 1000000 {
				if _, ok := s.Pop(); ok {
					atomic.AddUint32(&count, 1)
				}
			}
		}()
	}
	wg.Wait()
}
